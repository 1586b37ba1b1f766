package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/jmehdipour/optin-gateway/internal/http/middleware"
	"github.com/jmehdipour/optin-gateway/internal/repository"
	echo "github.com/labstack/echo/v4"
)

func listConfirmationsHandler(campaignsRepo repository.CampaignsRepository, chRepo repository.CHConfirmationsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		ownerID, ok := middleware.OwnerIDFromCtx(c)
		if !ok || ownerID <= 0 {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		campaignID := strings.TrimSpace(c.QueryParam("campaign_id"))
		if campaignID == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "campaign_id is required"})
		}

		campaign, err := campaignsRepo.GetByID(c.Request().Context(), campaignID)
		if err != nil {
			c.Logger().Errorf("campaign lookup failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}
		if campaign == nil || campaign.OwnerID != ownerID {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "campaign not found"})
		}

		limit := 50
		offset := 0
		if v := c.QueryParam("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
				limit = n
			}
		}
		if v := c.QueryParam("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				offset = n
			}
		}

		rows, err := chRepo.ListByCampaign(c.Request().Context(), campaignID, limit, offset)
		if err != nil {
			c.Logger().Errorf("clickhouse list failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"limit":   limit,
			"offset":  offset,
			"count":   len(rows),
			"results": rows,
		})
	}
}
