package job_api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/starfederation/datastar-go/datastar"
	"thirdcoast.systems/relay/cmd/web/handlers/common"
	"thirdcoast.systems/relay/internal/queue"
	"thirdcoast.systems/relay/internal/store"
)

// eventsTimeout bounds one SSE connection; clients reconnect.
const eventsTimeout = 30 * time.Minute

func HandleGet(m *queue.Manager) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := common.RequireUUIDParam(c, "id")
		if err != nil {
			return err
		}
		job, err := m.Get(c.Request().Context(), id)
		if err != nil {
			return common.FromError(err)
		}
		return c.JSON(http.StatusOK, NewJobResponse(job))
	}
}

// HandleList returns an owner's jobs, newest first.
func HandleList(m *queue.Manager) echo.HandlerFunc {
	return func(c echo.Context) error {
		owner := c.QueryParam("owner_id")
		if owner == "" {
			return common.ErrBadRequest("owner_id is required")
		}
		limit := 0
		if raw := c.QueryParam("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				return common.ErrBadRequest("invalid limit")
			}
			limit = n
		}

		jobs, err := m.List(c.Request().Context(), owner, limit)
		if err != nil {
			return common.FromError(err)
		}
		out := make([]JobResponse, 0, len(jobs))
		for _, j := range jobs {
			out = append(out, NewJobResponse(j))
		}
		return c.JSON(http.StatusOK, map[string]any{"jobs": out})
	}
}

type jobSignals struct {
	ID       string `json:"id"`
	State    string `json:"state"`
	Progress int    `json:"progress"`
	Title    string `json:"title"`
	Result   string `json:"resultRef"`
	Code     string `json:"errorCode"`
	Message  string `json:"errorMessage"`
}

func signalsFor(j *store.Job) ([]byte, error) {
	s := jobSignals{
		ID:       j.ID.String(),
		State:    string(j.State),
		Progress: j.Progress,
		Title:    j.Title,
		Code:     string(j.ErrorCode),
		Message:  j.ErrorMessage,
	}
	if j.ResultRef != nil {
		s.Result = j.ResultRef.String()
	}
	return json.Marshal(map[string]any{"job": s})
}

// HandleEvents streams the job's state and progress as datastar signal
// patches until the job is terminal.
func HandleEvents(m *queue.Manager) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := common.RequireUUIDParam(c, "id")
		if err != nil {
			return err
		}
		ctx := c.Request().Context()

		// subscribe first so no change between the read and the loop is lost
		updates, unsubscribe := m.Subscribe(id)
		defer unsubscribe()

		job, err := m.Get(ctx, id)
		if err != nil {
			return common.FromError(err)
		}

		common.SetSSEHeaders(c)
		sse := datastar.NewSSE(c.Response().Writer, c.Request())

		send := func(j *store.Job) error {
			payload, err := signalsFor(j)
			if err != nil {
				return err
			}
			if err := sse.PatchSignals(payload); err != nil {
				slog.Warn("failed to send job signals", "job_id", id, "error", err)
				return err
			}
			return nil
		}
		if err := send(job); err != nil || job.State.Terminal() {
			return nil
		}

		timeout := time.NewTimer(eventsTimeout)
		defer timeout.Stop()

		last := *job
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-timeout.C:
				slog.Info("SSE connection timeout", "job_id", id)
				return nil
			case snap, ok := <-updates:
				if !ok {
					return nil
				}
				if snap.State == last.State && snap.Progress == last.Progress && snap.Title == last.Title {
					continue
				}
				last = snap
				if err := send(&snap); err != nil {
					return nil
				}
				if snap.State.Terminal() {
					slog.Info("Job finished, closing SSE connection", "job_id", id, "state", snap.State)
					return nil
				}
			}
		}
	}
}
