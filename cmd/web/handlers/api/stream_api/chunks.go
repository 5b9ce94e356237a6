package stream_api

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"
	"thirdcoast.systems/relay/internal/blobstore"
	"thirdcoast.systems/relay/internal/store"
)

// writeRange copies [start, start+length) of the chunks' concatenation to w,
// opening only the chunks the window overlaps.
func writeRange(ctx context.Context, w io.Writer, ch blobstore.Channel, chunks []store.Chunk, start, length int64) (int64, error) {
	var written, offset int64
	for _, c := range chunks {
		if length <= 0 {
			break
		}
		end := offset + c.Size
		if start >= end {
			offset = end
			continue
		}
		local := start - offset
		n := min(c.Size-local, length)

		rc, err := ch.Open(ctx, blobstore.Handle(c.StorageRef), local, n)
		if err != nil {
			return written, fmt.Errorf("open chunk %d: %w", c.Index, err)
		}
		copied, err := io.Copy(w, rc)
		rc.Close()
		written += copied
		if err != nil {
			return written, fmt.Errorf("copy chunk %d: %w", c.Index, err)
		}
		if copied != n {
			return written, fmt.Errorf("chunk %d: short read (%d of %d bytes)", c.Index, copied, n)
		}

		start += n
		length -= n
		offset = end
	}
	return written, nil
}

func totalSize(chunks []store.Chunk) int64 {
	var n int64
	for _, c := range chunks {
		n += c.Size
	}
	return n
}

// chunkETag is a strong validator over the storage handles: a stored
// artifact never changes, and re-acquiring it yields new handles.
func chunkETag(chunks []store.Chunk) string {
	h, _ := blake2b.New256(nil)
	for _, c := range chunks {
		io.WriteString(h, c.StorageRef)
		io.WriteString(h, "\n")
		io.WriteString(h, strconv.FormatInt(c.Size, 10))
		io.WriteString(h, "\n")
	}
	return `"` + hex.EncodeToString(h.Sum(nil)[:16]) + `"`
}

// etagMatches implements If-None-Match's weak comparison.
func etagMatches(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}

func contentType(container string) string {
	switch strings.ToLower(strings.TrimPrefix(container, ".")) {
	case "mp4", "m4v":
		return "video/mp4"
	case "webm":
		return "video/webm"
	case "mkv":
		return "video/x-matroska"
	case "m4a":
		return "audio/mp4"
	case "mp3":
		return "audio/mpeg"
	case "opus", "ogg":
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}
