// package job_api provides acquisition job API handlers.
package job_api

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"thirdcoast.systems/relay/cmd/web/handlers/common"
	"thirdcoast.systems/relay/internal/faults"
	"thirdcoast.systems/relay/internal/queue"
	"thirdcoast.systems/relay/internal/store"
)

type createRequest struct {
	OwnerID string `json:"owner_id" validate:"required"`
	URL     string `json:"url" validate:"required"`
	Profile string `json:"profile"`
}

// JobResponse is the job as returned by the API.
type JobResponse struct {
	JobID   uuid.UUID     `json:"job_id"`
	Outcome queue.Outcome `json:"outcome,omitempty"`
	*store.Job
}

func NewJobResponse(j *store.Job) JobResponse {
	return JobResponse{JobID: j.ID, Job: j}
}

type rejection struct {
	common.Error
	JobID uuid.UUID `json:"job_id"`
}

// HandleCreate admits a job. A stored source answers 200 with a DONE job,
// a new or joined acquisition 202, and an owner over quota 429 with the
// FAILED job's id.
func HandleCreate(m *queue.Manager) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req createRequest
		if err := c.Bind(&req); err != nil {
			return common.ErrBadRequest("invalid json")
		}
		if err := c.Validate(&req); err != nil {
			return common.ErrBadRequest("owner_id and url are required")
		}

		sub, err := m.Submit(c.Request().Context(), req.OwnerID, req.URL, req.Profile)
		if err != nil {
			if faults.CodeOf(err) == faults.Internal {
				slog.Error("failed to submit job", "owner_id", req.OwnerID, "error", err)
			}
			return common.FromError(err)
		}

		resp := NewJobResponse(sub.Job)
		resp.Outcome = sub.Outcome
		switch sub.Outcome {
		case queue.OutcomeCacheHit:
			return c.JSON(http.StatusOK, resp)
		case queue.OutcomeRejected:
			return c.JSON(http.StatusTooManyRequests, rejection{
				Error: common.Error{Code: string(sub.Job.ErrorCode), Message: sub.Job.ErrorMessage},
				JobID: sub.Job.ID,
			})
		default:
			return c.JSON(http.StatusAccepted, resp)
		}
	}
}
