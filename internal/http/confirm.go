package http

import (
	"errors"
	"net/http"

	"github.com/jmehdipour/optin-gateway/internal/service/confirm"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

func confirmHandler(confirmSvc *confirm.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		redirectURL, err := confirmSvc.Confirm(c.Request().Context(), c.QueryParam("token"))
		if err != nil {
			switch {
			case errors.Is(err, confirm.ErrInvalidToken):
				// One message for every token failure; no hints for probers.
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid token"})
			case errors.Is(err, confirm.ErrInvalidCampaign):
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid campaign"})
			default:
				log.Errorf("confirm failed: %v", err)
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
			}
		}

		return c.Redirect(http.StatusFound, redirectURL)
	}
}
