package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const jobID = "6f1c1e0e-8a8e-4c1a-9a57-3f7f2b1d0c11"

type fakeAPI struct {
	polls       atomic.Int32
	unavailable atomic.Int32
	lastRange   atomic.Value
	tier        atomic.Value
	body        string
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		require.NoError(t, json.NewEncoder(w).Encode(v))
	}
	job := func(state string, progress int) map[string]any {
		j := map[string]any{
			"job_id": jobID, "id": jobID, "owner_id": "u1", "state": state, "progress": progress,
			"source_url": "https://youtu.be/dQw4w9WgXcQ", "profile": "best",
			"created_at": time.Now().Add(-time.Minute).Format(time.RFC3339Nano),
		}
		if state == "DONE" {
			j["result_ref"] = "0b8f5f55-9d4e-5c43-8a4e-3f0d1c2b7a66"
		}
		return j
	}

	mux.HandleFunc("POST /jobs", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req["owner_id"] == "over" {
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"code": "QUOTA_EXCEEDED", "message": "daily limit of 1 reached", "job_id": jobID})
			return
		}
		j := job("PENDING", 0)
		j["outcome"] = "queued"
		writeJSON(w, http.StatusAccepted, j)
	})
	mux.HandleFunc("GET /jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		if f.unavailable.Load() > 0 {
			f.unavailable.Add(-1)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if r.PathValue("id") != jobID {
			writeJSON(w, http.StatusNotFound, map[string]string{"code": "NOT_FOUND", "message": "not found"})
			return
		}
		switch f.polls.Add(1) {
		case 1:
			writeJSON(w, http.StatusOK, job("DOWNLOADING", 40))
		default:
			writeJSON(w, http.StatusOK, job("DONE", 100))
		}
	})
	mux.HandleFunc("GET /jobs", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "u1", r.URL.Query().Get("owner_id"))
		writeJSON(w, http.StatusOK, map[string]any{"jobs": []any{job("DONE", 100)}})
	})
	mux.HandleFunc("POST /jobs/{id}/{action}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("action") == "pause" {
			writeJSON(w, http.StatusConflict, map[string]string{"code": "CONFLICT", "message": "cannot pause a job in state PENDING"})
			return
		}
		writeJSON(w, http.StatusOK, job("CANCELLED", 0))
	})
	mux.HandleFunc("POST /artifacts/{id}/share", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, map[string]string{"code": "Ab3dEf9h", "artifact_id": r.PathValue("id"), "url": "/s/Ab3dEf9h"})
	})
	stats := func(owner string) map[string]any {
		tier, _ := f.tier.Load().(string)
		if tier == "" {
			tier = "free"
		}
		limit := 10
		if tier == "premium" {
			limit = 0
		}
		return map[string]any{
			"owner_id": owner, "tier": tier, "daily_limit": limit, "used_today": 3,
			"jobs": map[string]int{"DONE": 2, "FAILED": 1}, "artifacts": 2, "total_size": 3 << 20,
		}
	}
	mux.HandleFunc("GET /owners/{owner}/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, stats(r.PathValue("owner")))
	})
	mux.HandleFunc("PUT /owners/{owner}/tier", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		f.tier.Store(req["tier"])
		writeJSON(w, http.StatusOK, stats(r.PathValue("owner")))
	})
	mux.HandleFunc("GET /stream/{id}", func(w http.ResponseWriter, r *http.Request) {
		rng := r.Header.Get("Range")
		f.lastRange.Store(rng)
		if rng == "" {
			w.Write([]byte(f.body))
			return
		}
		var start int
		_, err := fmt.Sscanf(rng, "bytes=%d-", &start)
		require.NoError(t, err)
		if start >= len(f.body) {
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte(f.body[start:]))
	})
	return mux
}

func run(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()
	t.Setenv("RELAY_OWNER", "")
	t.Setenv("RELAY_URL", srv.URL)
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func newServer(t *testing.T, api *fakeAPI) *httptest.Server {
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)
	return srv
}

func TestSubmit(t *testing.T) {
	srv := newServer(t, &fakeAPI{})

	out, err := run(t, srv, "submit", "--owner", "u1", "https://youtu.be/dQw4w9WgXcQ")
	require.NoError(t, err)
	require.Contains(t, out, jobID)
	require.Contains(t, out, "queued")
	require.Contains(t, out, "PENDING")
}

func TestSubmit_RequiresOwner(t *testing.T) {
	srv := newServer(t, &fakeAPI{})
	_, err := run(t, srv, "submit", "https://youtu.be/dQw4w9WgXcQ")
	require.ErrorIs(t, err, errOwnerRequired)
}

func TestSubmit_QuotaError(t *testing.T) {
	srv := newServer(t, &fakeAPI{})
	_, err := run(t, srv, "submit", "--owner", "over", "https://youtu.be/dQw4w9WgXcQ")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusTooManyRequests, apiErr.Status)
	require.Equal(t, "QUOTA_EXCEEDED", apiErr.Code)
	require.Equal(t, jobID, apiErr.JobID)
}

func TestSubmit_WaitPollsUntilDone(t *testing.T) {
	api := &fakeAPI{}
	srv := newServer(t, api)

	out, err := run(t, srv, "submit", "--owner", "u1", "--wait", "--poll", "5ms", "https://youtu.be/dQw4w9WgXcQ")
	require.NoError(t, err)
	require.Contains(t, out, "DOWNLOADING")
	require.Contains(t, out, "DONE")
	require.Contains(t, out, "0b8f5f55-9d4e-5c43-8a4e-3f0d1c2b7a66")
	require.EqualValues(t, 2, api.polls.Load())
}

func TestStatus_RetriesUnavailable(t *testing.T) {
	api := &fakeAPI{}
	api.unavailable.Store(2)
	api.polls.Store(1)
	srv := newServer(t, api)

	out, err := run(t, srv, "status", jobID)
	require.NoError(t, err)
	require.Contains(t, out, "DONE")
	require.EqualValues(t, 0, api.unavailable.Load())
}

func TestStatus_NotFound(t *testing.T) {
	srv := newServer(t, &fakeAPI{})
	_, err := run(t, srv, "status", "00000000-0000-0000-0000-000000000000")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "NOT_FOUND", apiErr.Code)
}

func TestList(t *testing.T) {
	t.Setenv("RELAY_OWNER", "u1")
	srv := newServer(t, &fakeAPI{})
	out, err := run(t, srv, "list", "--owner", "u1")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "STATE")
	require.Contains(t, lines[1], "DONE")
}

func TestActions(t *testing.T) {
	srv := newServer(t, &fakeAPI{})

	out, err := run(t, srv, "cancel", jobID)
	require.NoError(t, err)
	require.Equal(t, jobID+" CANCELLED\n", out)

	_, err = run(t, srv, "pause", jobID)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusConflict, apiErr.Status)
}

func TestShare(t *testing.T) {
	srv := newServer(t, &fakeAPI{})
	out, err := run(t, srv, "share", "0b8f5f55-9d4e-5c43-8a4e-3f0d1c2b7a66")
	require.NoError(t, err)
	require.Equal(t, srv.URL+"/s/Ab3dEf9h\n", out)
}

func TestFetch_ResumesPartialFile(t *testing.T) {
	api := &fakeAPI{body: "0123456789"}
	srv := newServer(t, api)
	dest := filepath.Join(t.TempDir(), "out.mp4")

	_, err := run(t, srv, "fetch", "-o", dest, "a1")
	require.NoError(t, err)
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "0123456789", string(got))
	require.Equal(t, "", api.lastRange.Load())

	require.NoError(t, os.WriteFile(dest, []byte("0123"), 0o644))
	out, err := run(t, srv, "fetch", "-c", "-o", dest, "a1")
	require.NoError(t, err)
	require.Equal(t, "bytes=4-", api.lastRange.Load())
	got, err = os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "0123456789", string(got))
	require.Contains(t, out, "10 B")

	// already complete
	_, err = run(t, srv, "fetch", "-c", "-o", dest, "a1")
	require.NoError(t, err)
	got, err = os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "0123456789", string(got))
}

func TestStats(t *testing.T) {
	srv := newServer(t, &fakeAPI{})
	out, err := run(t, srv, "stats", "--owner", "u1")
	require.NoError(t, err)
	require.Contains(t, out, "free")
	require.Contains(t, out, "3 of 10")
	require.Contains(t, out, "FAILED")
	require.Contains(t, out, "3.1 MB")
}

func TestTier(t *testing.T) {
	api := &fakeAPI{}
	srv := newServer(t, api)

	out, err := run(t, srv, "tier", "--owner", "u1", "premium")
	require.NoError(t, err)
	require.Equal(t, "premium", api.tier.Load())
	require.Contains(t, out, "unlimited")

	_, err = run(t, srv, "tier", "--owner", "u1", "gold")
	require.Error(t, err)
}
