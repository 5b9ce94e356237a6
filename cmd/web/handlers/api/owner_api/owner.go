// package owner_api exposes owner tiers and usage.
package owner_api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"thirdcoast.systems/relay/cmd/web/handlers/common"
	"thirdcoast.systems/relay/internal/queue"
	"thirdcoast.systems/relay/internal/store"
)

type tierRequest struct {
	Tier string `json:"tier" validate:"required"`
}

// HandleStats returns the owner's tier, today's quota use and job counts.
func HandleStats(m *queue.Manager) echo.HandlerFunc {
	return func(c echo.Context) error {
		stats, err := m.Stats(c.Request().Context(), c.Param("owner_id"))
		if err != nil {
			return common.FromError(err)
		}
		return c.JSON(http.StatusOK, stats)
	}
}

// HandleSetTier moves the owner to the free or premium tier and answers with
// the resulting stats.
func HandleSetTier(m *queue.Manager) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req tierRequest
		if err := c.Bind(&req); err != nil {
			return common.ErrBadRequest("invalid json")
		}
		if err := c.Validate(&req); err != nil {
			return common.ErrBadRequest("tier is required")
		}
		tier, err := store.ParseTier(req.Tier)
		if err != nil {
			return common.FromError(err)
		}

		ctx := c.Request().Context()
		owner := c.Param("owner_id")
		if err := m.SetTier(ctx, owner, tier); err != nil {
			return common.FromError(err)
		}
		stats, err := m.Stats(ctx, owner)
		if err != nil {
			return common.FromError(err)
		}
		return c.JSON(http.StatusOK, stats)
	}
}
