package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"thirdcoast.systems/relay/internal/blobstore"
	"thirdcoast.systems/relay/internal/extract"
	"thirdcoast.systems/relay/internal/faults"
	"thirdcoast.systems/relay/internal/queue"
	"thirdcoast.systems/relay/internal/splitter"
	"thirdcoast.systems/relay/internal/store"
	"thirdcoast.systems/relay/internal/store/storetest"
	"thirdcoast.systems/relay/internal/transcode"
)

const sourceURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

type stubProber struct{}

func (stubProber) Probe(context.Context, string) (*extract.Probe, error) {
	return &extract.Probe{
		Title:    "Clip",
		Duration: 10,
		Renditions: []extract.Rendition{
			{FormatID: "18", Height: 360, Container: "mp4", ApproxSize: 64, HasAudio: true},
		},
	}, nil
}

type stubFetcher struct{}

func (stubFetcher) Fetch(_ context.Context, url, destDir string, _ extract.Selection, progress func(float64)) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", err
	}
	progress(50)
	path := filepath.Join(destDir, "media.mp4")
	return path, os.WriteFile(path, []byte("0123456789"), 0o644)
}

type stubSplitter struct{}

func (stubSplitter) Split(_ context.Context, path string, _ int64) ([]splitter.Chunk, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	return []splitter.Chunk{{Path: path, Size: fi.Size(), Duration: 10}}, nil
}

// prefixEncoder writes "enc:" followed by the concatenated inputs.
type prefixEncoder struct{}

func (prefixEncoder) Encode(_ context.Context, job transcode.EncodeJob, progress func(float64)) error {
	out := []byte("enc:")
	for _, in := range job.Inputs {
		b, err := os.ReadFile(in)
		if err != nil {
			return err
		}
		out = append(out, b...)
	}
	progress(5)
	return os.WriteFile(job.Output, out, 0o644)
}

type fixture struct {
	st  *storetest.Memory
	fs  *blobstore.FS
	m   *queue.Manager
	srv *Webserver
}

func newFixture(t *testing.T, opts queue.Options) *fixture {
	t.Helper()
	dir := t.TempDir()
	fs, err := blobstore.NewFS(filepath.Join(dir, "blobs"))
	require.NoError(t, err)
	st := storetest.NewMemory()

	opts.ScratchDir = filepath.Join(dir, "scratch")
	opts.PollInterval = 10 * time.Millisecond
	opts.ProgressInterval = time.Nanosecond
	opts.RetryBase = time.Millisecond
	m := queue.New(queue.Deps{
		Store:    st,
		Prober:   stubProber{},
		Fetcher:  stubFetcher{},
		Splitter: stubSplitter{},
		Channel:  fs,
	}, opts)

	tr := transcode.New(st, fs, prefixEncoder{}, transcode.Options{Dir: filepath.Join(dir, "variants"), TTL: time.Hour})
	t.Cleanup(tr.Close)

	srv, err := NewWebserver(Deps{Store: st, Channel: fs, Manager: m, Transcoder: tr})
	require.NoError(t, err)
	return &fixture{st: st, fs: fs, m: m, srv: srv}
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	require.NoError(t, f.m.Start(context.Background()))
	t.Cleanup(f.m.Stop)
}

func (f *fixture) do(t *testing.T, method, target, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

// putArtifact stores an artifact whose chunks hold the given contents.
func (f *fixture) putArtifact(t *testing.T, parts ...string) *store.Artifact {
	t.Helper()
	ctx := context.Background()
	a := &store.Artifact{ID: uuid.New(), SourceIdentity: "https://example.com/" + uuid.NewString(), Title: "Fixture", Container: "mp4", Duration: 10}
	for i, p := range parts {
		path := filepath.Join(t.TempDir(), "part.mp4")
		require.NoError(t, os.WriteFile(path, []byte(p), 0o644))
		h, err := f.fs.Upload(ctx, "part.mp4", path)
		require.NoError(t, err)
		a.Chunks = append(a.Chunks, store.Chunk{Index: i, StorageRef: string(h), Size: int64(len(p))})
		a.TotalSize += int64(len(p))
	}
	stored, err := f.st.PutArtifact(ctx, a)
	require.NoError(t, err)
	return stored
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type jobBody struct {
	JobID     uuid.UUID      `json:"job_id"`
	Outcome   string         `json:"outcome"`
	State     store.JobState `json:"state"`
	Progress  int            `json:"progress"`
	ResultRef *uuid.UUID     `json:"result_ref"`
	ErrorCode string         `json:"error_code"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	JobID   string `json:"job_id"`
}

func (f *fixture) waitDone(t *testing.T, id uuid.UUID) jobBody {
	t.Helper()
	var job jobBody
	require.Eventually(t, func() bool {
		rec := f.do(t, http.MethodGet, "/jobs/"+id.String(), "")
		require.Equal(t, http.StatusOK, rec.Code)
		job = decode[jobBody](t, rec)
		return job.State == store.JobDone
	}, 5*time.Second, 10*time.Millisecond)
	return job
}

func TestJobs_SubmitRunAndStream(t *testing.T) {
	f := newFixture(t, queue.Options{})
	f.start(t)

	rec := f.do(t, http.MethodPost, "/jobs", `{"owner_id":"u1","url":"`+sourceURL+`","profile":"720p"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	created := decode[jobBody](t, rec)
	require.Equal(t, "queued", created.Outcome)

	done := f.waitDone(t, created.JobID)
	require.Equal(t, 100, done.Progress)
	require.NotNil(t, done.ResultRef)

	rec = f.do(t, http.MethodGet, "/stream/"+done.ResultRef.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "0123456789", rec.Body.String())
	require.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))
	require.Equal(t, "bytes", rec.Header().Get("Accept-Ranges"))

	// a second owner is served from the cache
	rec = f.do(t, http.MethodPost, "/jobs", `{"owner_id":"u2","url":"https://youtu.be/dQw4w9WgXcQ"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	hit := decode[jobBody](t, rec)
	require.Equal(t, "cache_hit", hit.Outcome)
	require.Equal(t, store.JobDone, hit.State)
	require.Equal(t, *done.ResultRef, *hit.ResultRef)

	rec = f.do(t, http.MethodGet, "/jobs?owner_id=u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Jobs []jobBody `json:"jobs"`
	}](t, rec)
	require.Len(t, list.Jobs, 1)
	require.Equal(t, created.JobID, list.Jobs[0].JobID)
}

func TestJobs_RejectsBadInput(t *testing.T) {
	f := newFixture(t, queue.Options{})

	cases := map[string]string{
		"missing owner":  `{"url":"` + sourceURL + `"}`,
		"missing url":    `{"owner_id":"u1"}`,
		"bad profile":    `{"owner_id":"u1","url":"` + sourceURL + `","profile":"8k"}`,
		"not json":       `{`,
		"bad url scheme": `{"owner_id":"u1","url":"ftp://example.com/a.mp4"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/jobs", body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			require.NotEmpty(t, decode[errorBody](t, rec).Code)
		})
	}

	rec := f.do(t, http.MethodGet, "/jobs", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/jobs/not-a-uuid", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/jobs/"+uuid.NewString(), "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "NOT_FOUND", decode[errorBody](t, rec).Code)
}

func TestJobs_QuotaExceeded(t *testing.T) {
	f := newFixture(t, queue.Options{DailyQuota: 1})

	rec := f.do(t, http.MethodPost, "/jobs", `{"owner_id":"u1","url":"`+sourceURL+`"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = f.do(t, http.MethodPost, "/jobs", `{"owner_id":"u1","url":"https://vimeo.com/76979871"}`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code, rec.Body.String())
	body := decode[errorBody](t, rec)
	require.Equal(t, string(faults.QuotaExceeded), body.Code)

	rec = f.do(t, http.MethodGet, "/jobs/"+body.JobID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	job := decode[jobBody](t, rec)
	require.Equal(t, store.JobFailed, job.State)
	require.Equal(t, string(faults.QuotaExceeded), job.ErrorCode)
}

func TestOwners_TierLiftsQuota(t *testing.T) {
	f := newFixture(t, queue.Options{DailyQuota: 1, PremiumQuota: 3})

	rec := f.do(t, http.MethodPost, "/jobs", `{"owner_id":"u1","url":"`+sourceURL+`"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = f.do(t, http.MethodGet, "/owners/u1/stats", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stats := decode[queue.OwnerStats](t, rec)
	require.Equal(t, store.TierFree, stats.Tier)
	require.Equal(t, 1, stats.DailyLimit)
	require.Equal(t, 1, stats.UsedToday)
	require.Equal(t, 1, stats.Jobs[store.JobPending])

	rec = f.do(t, http.MethodPut, "/owners/u1/tier", `{"tier":"gold"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPut, "/owners/u1/tier", `{"tier":"Premium"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stats = decode[queue.OwnerStats](t, rec)
	require.Equal(t, store.TierPremium, stats.Tier)
	require.Equal(t, 3, stats.DailyLimit)

	rec = f.do(t, http.MethodPost, "/jobs", `{"owner_id":"u1","url":"https://vimeo.com/76979871"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
}

func TestJobs_Actions(t *testing.T) {
	// not started: jobs stay PENDING
	f := newFixture(t, queue.Options{})

	rec := f.do(t, http.MethodPost, "/jobs", `{"owner_id":"u1","url":"`+sourceURL+`"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	id := decode[jobBody](t, rec).JobID.String()

	rec = f.do(t, http.MethodPost, "/jobs/"+id+"/pause", "")
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	require.Equal(t, "CONFLICT", decode[errorBody](t, rec).Code)

	rec = f.do(t, http.MethodPost, "/jobs/"+id+"/rewind", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/jobs/"+id+"/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, store.JobCancelled, decode[jobBody](t, rec).State)

	rec = f.do(t, http.MethodPost, "/jobs/"+id+"/resume", "")
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/jobs/"+uuid.NewString()+"/cancel", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJobs_EventsForFinishedJob(t *testing.T) {
	f := newFixture(t, queue.Options{})
	f.start(t)

	rec := f.do(t, http.MethodPost, "/jobs", `{"owner_id":"u1","url":"`+sourceURL+`"}`)
	id := decode[jobBody](t, rec).JobID
	f.waitDone(t, id)

	rec = f.do(t, http.MethodGet, "/jobs/"+id.String()+"/events", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "text/event-stream")
	require.Contains(t, rec.Body.String(), `"state":"DONE"`)
	require.Contains(t, rec.Body.String(), `"progress":100`)
}

func TestStream_Ranges(t *testing.T) {
	f := newFixture(t, queue.Options{})
	a := f.putArtifact(t, "abcdef", "ghij")
	target := "/stream/" + a.ID.String()

	rec := f.do(t, http.MethodGet, target, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "abcdefghij", rec.Body.String())
	require.Equal(t, "10", rec.Header().Get("Content-Length"))
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	// across the chunk boundary
	rec = f.do(t, http.MethodGet, target, "", "Range", "bytes=4-7")
	require.Equal(t, http.StatusPartialContent, rec.Code)
	require.Equal(t, "efgh", rec.Body.String())
	require.Equal(t, "bytes 4-7/10", rec.Header().Get("Content-Range"))

	rec = f.do(t, http.MethodGet, target+"?range=bytes=-3", "")
	require.Equal(t, http.StatusPartialContent, rec.Code)
	require.Equal(t, "hij", rec.Body.String())

	rec = f.do(t, http.MethodGet, target+"?range=8-", "")
	require.Equal(t, http.StatusPartialContent, rec.Code)
	require.Equal(t, "ij", rec.Body.String())

	rec = f.do(t, http.MethodGet, target, "", "Range", "bytes=10-20")
	require.Equal(t, http.StatusRequestedRangeNotSatisfiable, rec.Code)
	require.Equal(t, "bytes */10", rec.Header().Get("Content-Range"))

	rec = f.do(t, http.MethodGet, target, "", "If-None-Match", etag)
	require.Equal(t, http.StatusNotModified, rec.Code)
	require.Empty(t, rec.Body.String())

	rec = f.do(t, http.MethodHead, target, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "10", rec.Header().Get("Content-Length"))
	require.Empty(t, rec.Body.String())
}

func TestStream_Parts(t *testing.T) {
	f := newFixture(t, queue.Options{})
	a := f.putArtifact(t, "abcdef", "ghij")
	target := "/stream/" + a.ID.String()

	rec := f.do(t, http.MethodGet, target+"?part=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ghij", rec.Body.String())

	rec = f.do(t, http.MethodGet, target+"?part=1", "", "Range", "bytes=1-2")
	require.Equal(t, http.StatusPartialContent, rec.Code)
	require.Equal(t, "hi", rec.Body.String())
	require.Equal(t, "bytes 1-2/4", rec.Header().Get("Content-Range"))

	rec = f.do(t, http.MethodGet, target+"?part=2", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, target+"?part=x", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/stream/"+uuid.NewString(), "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStream_Variant(t *testing.T) {
	f := newFixture(t, queue.Options{})
	a := f.putArtifact(t, "abc", "def")
	target := "/stream/" + a.ID.String() + "?profile=audio"

	// first request either tails the encode or serves the finished file
	rec := f.do(t, http.MethodGet, target, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "enc:abcdef", rec.Body.String())
	require.Equal(t, "audio/mp4", rec.Header().Get("Content-Type"))

	require.Eventually(t, func() bool {
		rec = f.do(t, http.MethodGet, target, "", "Range", "bytes=0-2")
		return rec.Code == http.StatusPartialContent
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, "enc", rec.Body.String())
	require.NotEmpty(t, rec.Header().Get("ETag"))

	rec = f.do(t, http.MethodGet, "/stream/"+a.ID.String()+"?profile=4k", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/stream/"+uuid.NewString()+"?profile=720p", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestShare_CreateAndRedirect(t *testing.T) {
	f := newFixture(t, queue.Options{})
	a := f.putArtifact(t, "abc")

	rec := f.do(t, http.MethodPost, "/artifacts/"+a.ID.String()+"/share", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	share := decode[struct {
		Code string `json:"code"`
		URL  string `json:"url"`
	}](t, rec)
	require.Len(t, share.Code, 8)
	require.Equal(t, "/s/"+share.Code, share.URL)

	rec = f.do(t, http.MethodGet, share.URL+"?profile=720p", "")
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "/stream/"+a.ID.String()+"?profile=720p", rec.Header().Get("Location"))

	rec = f.do(t, http.MethodGet, "/s/nope0000", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/artifacts/"+uuid.NewString()+"/share", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, queue.Options{})

	rec := f.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())

	rec = f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "relay_")
}
