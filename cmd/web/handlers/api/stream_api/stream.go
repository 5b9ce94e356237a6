// package stream_api serves stored artifacts and their transcoded variants.
package stream_api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"thirdcoast.systems/relay/cmd/web/handlers/common"
	"thirdcoast.systems/relay/internal/blobstore"
	"thirdcoast.systems/relay/internal/metrics"
	"thirdcoast.systems/relay/internal/store"
	"thirdcoast.systems/relay/internal/transcode"
)

// HandleStream serves an artifact's bytes with range support. Multi-chunk
// artifacts are one logical byte sequence unless ?part=N picks a chunk.
// ?profile= serves a transcoded variant instead.
func HandleStream(st store.ArtifactStore, ch blobstore.Channel, tr *transcode.Transcoder) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := common.RequireUUIDParam(c, "artifact_id")
		if err != nil {
			return err
		}
		if profile := c.QueryParam("profile"); profile != "" {
			return serveVariant(c, tr, id, profile)
		}

		ctx := c.Request().Context()
		a, err := st.GetArtifact(ctx, id)
		if err != nil {
			return common.FromError(err)
		}
		chunks, err := st.Resolve(ctx, id)
		if err != nil {
			return common.FromError(err)
		}
		if raw := c.QueryParam("part"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return common.ErrBadRequest("invalid part")
			}
			if n < 0 || n >= len(chunks) {
				return common.ErrNotFound(fmt.Sprintf("artifact has %d parts", len(chunks)))
			}
			chunks = chunks[n : n+1]
		}

		size := totalSize(chunks)
		etag := chunkETag(chunks)
		h := c.Response().Header()
		h.Set("Content-Type", contentType(a.Container))
		h.Set("Cache-Control", "private, max-age=3600")
		h.Set("Accept-Ranges", "bytes")
		h.Set("ETag", etag)

		req := c.Request()
		if inm := req.Header.Get("If-None-Match"); inm != "" && etagMatches(inm, etag) {
			return c.NoContent(http.StatusNotModified)
		}

		spec := rangeSpec(req.Header.Get("Range"), c.QueryParam("range"))
		if ifRange := req.Header.Get("If-Range"); ifRange != "" && ifRange != etag {
			spec = ""
		}
		r, partial, err := parseRange(spec, size)
		if err != nil {
			h.Set("Content-Range", fmt.Sprintf("bytes */%d", size))
			return common.ErrRangeNotSatisfiable(spec)
		}

		status := http.StatusOK
		if partial {
			status = http.StatusPartialContent
			h.Set("Content-Range", r.contentRange(size))
		} else {
			r = byteRange{start: 0, length: size}
		}
		h.Set("Content-Length", strconv.FormatInt(r.length, 10))
		c.Response().WriteHeader(status)
		if req.Method == http.MethodHead || r.length == 0 {
			return nil
		}

		n, err := writeRange(ctx, c.Response(), ch, chunks, r.start, r.length)
		metrics.StreamedBytes.WithLabelValues("artifact").Add(float64(n))
		if err != nil && ctx.Err() == nil {
			// headers are out; all we can do is cut the body short
			slog.Warn("Artifact stream interrupted", "artifact_id", id, "written", n, "error", err)
		}
		return nil
	}
}
