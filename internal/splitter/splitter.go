// Package splitter partitions media files that exceed the storage channel's
// object limit into ordered, independently playable chunks.
package splitter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"thirdcoast.systems/relay/internal/faults"
	"thirdcoast.systems/relay/pkg/ffmpeg"
)

// Segment is one planned cut, in seconds.
type Segment struct {
	Index    int
	Start    float64
	Duration float64
}

// Chunk is a produced file.
type Chunk struct {
	Path     string
	Size     int64
	Start    float64
	Duration float64
}

// Containers that survive a stream-copy cut at keyframe boundaries.
var splittable = map[string]struct{}{
	".mp4": {}, ".m4a": {}, ".mov": {}, ".mkv": {}, ".webm": {}, ".mka": {},
	".ts": {}, ".mp3": {}, ".ogg": {}, ".opus": {},
}

// Splittable reports whether files with this name can be cut without re-encoding.
func Splittable(path string) bool {
	_, ok := splittable[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Plan divides duration into ceil(size/max) equal segments. The last segment
// absorbs rounding so the segments always cover [0, duration].
func Plan(size int64, duration float64, max int64) ([]Segment, error) {
	if max <= 0 {
		return nil, fmt.Errorf("splitter: max chunk size must be positive")
	}
	if size <= max {
		return []Segment{{Index: 0, Start: 0, Duration: duration}}, nil
	}
	if duration <= 0 || math.IsNaN(duration) || math.IsInf(duration, 0) {
		return nil, faults.New(faults.UnsplittableFormat, "media has no usable duration")
	}

	n := int((size + max - 1) / max)
	step := duration / float64(n)
	segs := make([]Segment, n)
	for i := range segs {
		start := step * float64(i)
		d := step
		if i == n-1 {
			d = duration - start
		}
		segs[i] = Segment{Index: i, Start: start, Duration: d}
	}
	return segs, nil
}

// Cutter produces out from [start, start+dur) of in without re-encoding.
type Cutter interface {
	Cut(ctx context.Context, in, out string, start, dur float64) error
}

// DurationProber reports a media file's duration in seconds.
type DurationProber interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// FFmpeg cuts with stream copy and probes with ffprobe.
type FFmpeg struct{}

func (FFmpeg) Cut(ctx context.Context, in, out string, start, dur float64) error {
	return ffmpeg.CutSegment(ctx, in, out, ffmpeg.Seconds(start), ffmpeg.Seconds(dur))
}

func (FFmpeg) Duration(ctx context.Context, path string) (float64, error) {
	return ffmpeg.ProbeDuration(ctx, path)
}

// Splitter drives Plan with a Cutter. Parts still above the limit after a cut
// (keyframe spacing, uneven bitrate) are split again up to MaxDepth levels.
type Splitter struct {
	Cutter   Cutter
	Prober   DurationProber
	MaxDepth int
}

// New returns a Splitter backed by ffmpeg.
func New() *Splitter {
	return &Splitter{Cutter: FFmpeg{}, Prober: FFmpeg{}, MaxDepth: 3}
}

// Split returns path itself when it fits in max; otherwise the ordered parts
// named {base}_part{NN}{ext} next to path. On error every part it created is
// removed. The input file is never modified.
func (s *Splitter) Split(ctx context.Context, path string, max int64) ([]Chunk, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("splitter: stat input: %w", err)
	}
	if fi.Size() <= max {
		d, _ := s.probe(ctx, path)
		return []Chunk{{Path: path, Size: fi.Size(), Duration: d}}, nil
	}
	if !Splittable(path) {
		return nil, faults.Newf(faults.UnsplittableFormat, "%s container cannot be split without re-encoding", filepath.Ext(path))
	}

	var created []string
	chunks, err := s.split(ctx, path, fi.Size(), max, 0, 0, &created)
	if err != nil {
		for _, p := range created {
			_ = os.Remove(p)
		}
		return nil, err
	}
	return chunks, nil
}

func (s *Splitter) split(ctx context.Context, path string, size, max int64, offset float64, depth int, created *[]string) ([]Chunk, error) {
	maxDepth := s.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 3
	}
	if depth >= maxDepth {
		return nil, faults.Newf(faults.UnsplittableFormat, "part %s is still %s after %d splits", filepath.Base(path), humanize.Bytes(uint64(size)), depth)
	}

	duration, err := s.probe(ctx, path)
	if err != nil {
		return nil, faults.Wrap(faults.UnsplittableFormat, "probe duration", err)
	}
	plan, err := Plan(size, duration, max)
	if err != nil {
		return nil, err
	}

	slog.Info("Splitting media", "path", path, "size", humanize.Bytes(uint64(size)), "parts", len(plan), "depth", depth)

	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	var out []Chunk
	for _, seg := range plan {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		part := fmt.Sprintf("%s_part%02d%s", base, seg.Index+1, ext)
		*created = append(*created, part)
		if err := s.Cutter.Cut(ctx, path, part, seg.Start, seg.Duration); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, faults.Wrap(faults.UnsplittableFormat, fmt.Sprintf("stream copy of part %d failed", seg.Index+1), err)
		}
		pfi, err := os.Stat(part)
		if err != nil {
			return nil, faults.Wrap(faults.UnsplittableFormat, "cut produced no file", err)
		}
		if pfi.Size() == 0 {
			return nil, faults.Newf(faults.UnsplittableFormat, "part %d is empty", seg.Index+1)
		}

		if pfi.Size() <= max {
			out = append(out, Chunk{Path: part, Size: pfi.Size(), Start: offset + seg.Start, Duration: seg.Duration})
			continue
		}

		sub, err := s.split(ctx, part, pfi.Size(), max, offset+seg.Start, depth+1, created)
		if err != nil {
			return nil, err
		}
		if err := os.Remove(part); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("Failed to remove intermediate part", "path", part, "error", err)
		}
		out = append(out, sub...)
	}
	return out, nil
}

func (s *Splitter) probe(ctx context.Context, path string) (float64, error) {
	if s.Prober == nil {
		return 0, errors.New("splitter: no duration prober")
	}
	return s.Prober.Duration(ctx, path)
}
