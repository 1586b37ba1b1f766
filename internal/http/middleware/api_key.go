package middleware

import (
	"net/http"
	"strings"

	"github.com/jmehdipour/optin-gateway/internal/repository"
	echo "github.com/labstack/echo/v4"
)

// OwnerIDFromCtx extracts the authenticated owner id set by APIKeyMiddleware.
func OwnerIDFromCtx(c echo.Context) (int64, bool) {
	v := c.Get("owner_id")
	id, ok := v.(int64)
	return id, ok
}

// APIKeyMiddleware authenticates campaign owners using the X-API-Key
// header; guards the reporting routes only.
func APIKeyMiddleware(owners repository.OwnersRepository) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := strings.TrimSpace(c.Request().Header.Get("X-API-Key"))
			if key == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing api key"})
			}
			o, err := owners.GetByAPIKey(c.Request().Context(), key)
			if err != nil {
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "auth error"})
			}
			if o == nil || o.Status != "active" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid api key"})
			}
			c.Set("owner_id", o.ID)
			return next(c)
		}
	}
}
