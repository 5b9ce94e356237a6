package stream_api

import (
	"context"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/blake2b"
	"thirdcoast.systems/relay/cmd/web/handlers/common"
	"thirdcoast.systems/relay/internal/faults"
	"thirdcoast.systems/relay/internal/metrics"
	"thirdcoast.systems/relay/internal/store"
	"thirdcoast.systems/relay/internal/transcode"
)

// tailInterval is how often a growing variant is polled for new bytes.
var tailInterval = 250 * time.Millisecond

func serveVariant(c echo.Context, tr *transcode.Transcoder, id uuid.UUID, profile string) error {
	p, err := transcode.LookupProfile(profile)
	if err != nil {
		return common.ErrBadRequest(faults.Message(err))
	}
	ctx := c.Request().Context()

	v, partial, err := tr.Acquire(ctx, id, p.Name)
	if err != nil {
		return common.FromError(err)
	}
	if partial != nil {
		v, err = tail(c, tr, id, p, partial)
		if err != nil {
			return common.FromError(err)
		}
		if v == nil {
			return nil
		}
	}
	return serveFile(c, v, p)
}

// serveFile serves a finished variant. http.ServeContent handles Range,
// If-None-Match and HEAD.
func serveFile(c echo.Context, v *store.Variant, p transcode.Profile) error {
	f, err := os.Open(v.StoragePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return common.ErrNotFound("variant expired")
		}
		return common.FromError(err)
	}
	defer f.Close()

	h := c.Response().Header()
	h.Set("Content-Type", p.ContentType())
	h.Set("Cache-Control", "private, max-age=3600")
	h.Set("ETag", variantETag(v))

	before := c.Response().Size
	http.ServeContent(c.Response(), c.Request(), filepath.Base(v.StoragePath), v.CreatedAt, f)
	metrics.StreamedBytes.WithLabelValues("variant").Add(float64(c.Response().Size - before))
	return nil
}

func variantETag(v *store.Variant) string {
	sum := blake2b.Sum256([]byte(v.ID.String() + "@" + strconv.FormatInt(v.CreatedAt.UnixNano(), 10)))
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

// tail streams an encode in flight as its output grows. When the encode
// finishes before its output appears, the finished variant is returned for
// serveFile instead.
func tail(c echo.Context, tr *transcode.Transcoder, id uuid.UUID, p transcode.Profile, partial *transcode.Partial) (*store.Variant, error) {
	ctx := c.Request().Context()
	f, err := waitForFile(ctx, partial)
	if err != nil {
		return nil, err
	}
	if f == nil {
		if err := partial.Err(); err != nil {
			return nil, err
		}
		v, ok := tr.Cached(ctx, id, p.Name)
		if !ok {
			return nil, faults.New(faults.TranscodeFailed, "variant missing after encode")
		}
		return v, nil
	}
	defer f.Close()

	h := c.Response().Header()
	h.Set("Content-Type", partial.ContentType)
	h.Set("Cache-Control", "no-store")
	h.Set("X-Transcode-State", "encoding")
	c.Response().WriteHeader(http.StatusOK)
	if c.Request().Method == http.MethodHead {
		return nil, nil
	}

	n, err := follow(ctx, c.Response(), f, partial)
	metrics.StreamedBytes.WithLabelValues("variant").Add(float64(n))
	if err != nil && ctx.Err() == nil {
		slog.Warn("Variant tail ended early", "artifact_id", id, "profile", p.Name, "written", n, "error", err)
	}
	return nil, nil
}

// waitForFile opens the partial output once the encoder has created it. It
// returns nil, nil when the encode finishes first.
func waitForFile(ctx context.Context, partial *transcode.Partial) (*os.File, error) {
	ticker := time.NewTicker(tailInterval)
	defer ticker.Stop()
	for {
		f, err := os.Open(partial.Path)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		select {
		case <-partial.Done():
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// follow copies f to w until the encode is done. The descriptor stays valid
// across the final rename, so the tail is read from the same file.
func follow(ctx context.Context, w *echo.Response, f *os.File, partial *transcode.Partial) (int64, error) {
	ticker := time.NewTicker(tailInterval)
	defer ticker.Stop()

	var total int64
	for {
		n, err := io.Copy(w, f)
		total += n
		if err != nil {
			return total, err
		}
		if n > 0 {
			w.Flush()
		}
		select {
		case <-partial.Done():
			n, err := io.Copy(w, f)
			total += n
			w.Flush()
			if err != nil {
				return total, err
			}
			return total, partial.Err()
		case <-ctx.Done():
			return total, ctx.Err()
		case <-ticker.C:
		}
	}
}
