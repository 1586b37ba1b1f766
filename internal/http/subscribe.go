package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/jmehdipour/optin-gateway/internal/metrics"
	"github.com/jmehdipour/optin-gateway/internal/service/intake"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

type subscribeReq struct {
	Email string `json:"email" form:"email"`
}

func subscribeHandler(intakeSvc *intake.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		metrics.SubscriptionsTotal.WithLabelValues("received").Inc()

		var req subscribeReq
		if err := c.Bind(&req); err != nil {
			metrics.SubscriptionsTotal.WithLabelValues("rejected").Inc()
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		campaignID := strings.TrimSpace(c.Param("campaign_id"))
		if campaignID == "" {
			metrics.SubscriptionsTotal.WithLabelValues("rejected").Inc()
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		subID, err := intakeSvc.Subscribe(c.Request().Context(), campaignID, req.Email, c.RealIP())
		if err != nil {
			switch {
			case errors.Is(err, intake.ErrInvalidEmail):
				metrics.SubscriptionsTotal.WithLabelValues("rejected").Inc()
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid email"})
			case errors.Is(err, intake.ErrCampaignNotFound):
				metrics.SubscriptionsTotal.WithLabelValues("rejected").Inc()
				return c.JSON(http.StatusNotFound, map[string]string{"error": "campaign not found"})
			case errors.Is(err, intake.ErrQueueUnavailable):
				log.Errorf("subscribe enqueue failed: %v", err)
				return c.JSON(http.StatusBadGateway, map[string]string{"error": "temporarily unavailable"})
			default:
				log.Errorf("subscribe failed: %v", err)
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
			}
		}

		metrics.SubscriptionsTotal.WithLabelValues("queued").Inc()

		return c.JSON(http.StatusOK, map[string]any{
			"subscribed":      true,
			"subscription_id": subID,
			"message":         "check your inbox to confirm your subscription",
		})
	}
}
