package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"thirdcoast.systems/relay/internal/store"
)

// Client talks to the relay HTTP API.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	// Retries is how often idempotent requests are retried on transport
	// errors and gateway responses.
	Retries   uint64
	RetryBase time.Duration
}

// APIError is a non-2xx API response.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
	JobID   string `json:"job_id,omitempty"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("relay: HTTP %d", e.Status)
	}
	return fmt.Sprintf("relay: %s: %s", e.Code, e.Message)
}

// Job is a job as returned by the API.
type Job struct {
	store.Job
	Outcome string `json:"outcome,omitempty"`
}

type ShareLink struct {
	Code       string `json:"code"`
	ArtifactID string `json:"artifact_id"`
	URL        string `json:"url"`
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := strings.TrimRight(c.BaseURL, "/") + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// do sends one request and decodes a JSON response into out. GETs are
// retried with exponential backoff.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return err
		}
	}

	// send reports whether a failure is worth retrying
	send := func(ctx context.Context) (bool, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), bytes.NewReader(payload))
		if err != nil {
			return false, err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.HTTP.Do(req)
		if err != nil {
			return ctx.Err() == nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			return retryableStatus(resp.StatusCode), decodeError(resp)
		}
		if out == nil {
			return false, nil
		}
		return false, json.NewDecoder(resp.Body).Decode(out)
	}

	if method != http.MethodGet {
		_, err := send(ctx)
		return err
	}
	backoff := retry.WithMaxRetries(c.Retries, retry.NewExponential(c.RetryBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		again, err := send(ctx)
		if again {
			return retry.RetryableError(err)
		}
		return err
	})
}

func decodeError(resp *http.Response) *APIError {
	apiErr := &APIError{Status: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, apiErr); err != nil || apiErr.Code == "" {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}

func (c *Client) Submit(ctx context.Context, owner, sourceURL, profile string) (*Job, error) {
	var job Job
	body := map[string]string{"owner_id": owner, "url": sourceURL, "profile": profile}
	if err := c.do(ctx, http.MethodPost, "/jobs", nil, body, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *Client) Job(ctx context.Context, id string) (*Job, error) {
	var job Job
	if err := c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(id), nil, nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *Client) Jobs(ctx context.Context, owner string, limit int) ([]Job, error) {
	q := url.Values{"owner_id": {owner}}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	var out struct {
		Jobs []Job `json:"jobs"`
	}
	if err := c.do(ctx, http.MethodGet, "/jobs", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Jobs, nil
}

// Action sends pause, resume or cancel.
func (c *Client) Action(ctx context.Context, id, action string) (*Job, error) {
	var job Job
	if err := c.do(ctx, http.MethodPost, "/jobs/"+url.PathEscape(id)+"/"+action, nil, nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *Client) Share(ctx context.Context, artifactID string) (*ShareLink, error) {
	var link ShareLink
	if err := c.do(ctx, http.MethodPost, "/artifacts/"+url.PathEscape(artifactID)+"/share", nil, nil, &link); err != nil {
		return nil, err
	}
	link.URL = c.endpoint(link.URL, nil)
	return &link, nil
}

// Download opens the artifact (or one part, or a variant) from offset. ranged
// reports whether the server honored the offset; a 200 answer starts at byte
// 0. The caller closes the body.
func (c *Client) Download(ctx context.Context, artifactID string, query url.Values, offset int64) (body io.ReadCloser, ranged bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/stream/"+url.PathEscape(artifactID), query), nil)
	if err != nil {
		return nil, false, err
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, false, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return resp.Body, false, nil
	case http.StatusPartialContent:
		return resp.Body, true, nil
	case http.StatusRequestedRangeNotSatisfiable:
		// nothing past offset: already complete
		resp.Body.Close()
		return io.NopCloser(strings.NewReader("")), true, nil
	default:
		defer resp.Body.Close()
		return nil, false, decodeError(resp)
	}
}
