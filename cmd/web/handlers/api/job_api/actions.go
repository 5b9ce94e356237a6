package job_api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"thirdcoast.systems/relay/cmd/web/handlers/common"
	"thirdcoast.systems/relay/internal/queue"
	"thirdcoast.systems/relay/internal/store"
)

// HandleAction applies pause, resume or cancel to a job.
func HandleAction(m *queue.Manager) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := common.RequireUUIDParam(c, "id")
		if err != nil {
			return err
		}
		action := c.Param("action")
		cmd, err := queue.ParseAction(action, id)
		if err != nil {
			return common.ErrNotFound(err.Error())
		}

		job, err := m.Dispatch(c.Request().Context(), cmd)
		if errors.Is(err, store.ErrConflict) && job != nil {
			return common.ErrConflict(fmt.Sprintf("cannot %s a job in state %s", action, job.State))
		}
		if err != nil {
			return common.FromError(err)
		}
		return c.JSON(http.StatusOK, NewJobResponse(job))
	}
}
