// Package extract lists the renditions a remote media URL offers without
// downloading it.
package extract

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
	"thirdcoast.systems/relay/internal/faults"
	"thirdcoast.systems/relay/pkg/ytdlp"
)

// Rendition is one selectable quality/format option.
type Rendition struct {
	FormatID   string `json:"format_id"`
	Height     int    `json:"height,omitempty"`
	Container  string `json:"container"`
	ApproxSize int64  `json:"approx_size,omitempty"`
	AudioOnly  bool   `json:"audio_only"`
	// HasAudio is set on video renditions that already carry an audio track.
	HasAudio   bool   `json:"has_audio"`
	VideoCodec string `json:"video_codec,omitempty"`
	AudioCodec string `json:"audio_codec,omitempty"`
}

// Probe is the result of inspecting a URL.
type Probe struct {
	Title      string
	Duration   float64
	Extractor  string
	Renditions []Rendition
}

// Prober inspects a URL. Implementations must not write files.
type Prober interface {
	Name() string
	Probe(ctx context.Context, url string) (*Probe, error)
}

// Chain tries probers in order, each under Timeout.
type Chain struct {
	Probers []Prober
	Timeout time.Duration
}

var errProbeTimeout = errors.New("probe timed out")

// Probe returns the first successful probe. A failing prober falls through to
// the next one; the last failure is returned when none succeeds. Caller
// cancellation stops the chain immediately.
func (c *Chain) Probe(ctx context.Context, url string) (*Probe, error) {
	if len(c.Probers) == 0 {
		return nil, faults.New(faults.UnsupportedSource, "no extractor configured")
	}

	var lastErr error
	for _, p := range c.Probers {
		res, err := c.probeOne(ctx, p, url)
		if err == nil {
			res.Title = CleanTitle(res.Title)
			return res, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Debug("extract: prober failed", "prober", p.Name(), "url", url, "error", err)
		lastErr = err
	}
	return nil, lastErr
}

func (c *Chain) probeOne(ctx context.Context, p Prober, url string) (*Probe, error) {
	pctx := ctx
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeoutCause(ctx, c.Timeout, errProbeTimeout)
		defer cancel()
	}
	res, err := p.Probe(pctx, url)
	if err != nil && ctx.Err() == nil && errors.Is(context.Cause(pctx), errProbeTimeout) {
		return nil, faults.Wrap(faults.ExtractionTimeout, fmt.Sprintf("%s did not answer within %s", p.Name(), c.Timeout), err)
	}
	return res, err
}

// ErrInvalidProfile is returned for profiles other than best, audio or <N>p.
var ErrInvalidProfile = errors.New("profile must be best, audio or <height>p")

// NormalizeProfile canonicalizes a requested profile; empty means best.
func NormalizeProfile(profile string) (string, error) {
	p := strings.ToLower(strings.TrimSpace(profile))
	switch p {
	case "", "best":
		return "best", nil
	case "audio":
		return "audio", nil
	}
	if h, ok := ytdlp.ProfileHeight(p); ok && h <= 4320 {
		return fmt.Sprintf("%dp", h), nil
	}
	return "", ErrInvalidProfile
}

// Selection is what the downloader should fetch for a profile.
type Selection struct {
	// Format is the yt-dlp format selector.
	Format string
	// Video and Audio are the renditions expected to be picked, when known.
	Video *Rendition
	Audio *Rendition
	// EstimatedSize is the expected download size in bytes, 0 when unknown.
	EstimatedSize int64
}

// Select picks renditions for profile from the probe. Height caps prefer AVC
// video with AAC audio, mirroring the yt-dlp selector the downloader uses.
func Select(renditions []Rendition, profile string) Selection {
	sel := Selection{Format: ytdlp.FormatSelector(profile)}

	audio := bestAudio(renditions)
	if profile == "audio" {
		sel.Audio = audio
		if audio != nil {
			sel.EstimatedSize = audio.ApproxSize
		}
		return sel
	}

	limit := 0
	if h, ok := ytdlp.ProfileHeight(profile); ok {
		limit = h
	}
	video := bestVideo(renditions, limit)
	if video == nil {
		return sel
	}
	sel.Video = video
	sel.EstimatedSize = video.ApproxSize
	if !video.HasAudio && audio != nil {
		sel.Audio = audio
		if video.ApproxSize > 0 {
			sel.EstimatedSize += audio.ApproxSize
		}
	}
	return sel
}

func bestAudio(rs []Rendition) *Rendition {
	var best *Rendition
	for i := range rs {
		r := &rs[i]
		if !r.AudioOnly {
			continue
		}
		if best == nil || audioRank(r) > audioRank(best) || (audioRank(r) == audioRank(best) && r.ApproxSize > best.ApproxSize) {
			best = r
		}
	}
	return best
}

func audioRank(r *Rendition) int {
	if strings.HasPrefix(r.AudioCodec, "mp4a") {
		return 1
	}
	return 0
}

func bestVideo(rs []Rendition, maxHeight int) *Rendition {
	var cands []*Rendition
	for i := range rs {
		r := &rs[i]
		if r.AudioOnly || r.Height == 0 {
			continue
		}
		if maxHeight > 0 && r.Height > maxHeight {
			continue
		}
		cands = append(cands, r)
	}
	if len(cands) == 0 {
		return nil
	}
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.Height != b.Height {
			return a.Height > b.Height
		}
		if avc(a) != avc(b) {
			return avc(a)
		}
		return a.ApproxSize > b.ApproxSize
	})
	return cands[0]
}

func avc(r *Rendition) bool {
	return strings.HasPrefix(r.VideoCodec, "avc") || strings.HasPrefix(r.VideoCodec, "h264")
}

var titlePolicy = bluemonday.StrictPolicy()

// CleanTitle strips markup and control characters from an extracted title and
// NFC-normalizes it.
func CleanTitle(s string) string {
	s = html.UnescapeString(titlePolicy.Sanitize(s))
	s = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return ' '
		}
		return r
	}, s)
	s = strings.Join(strings.Fields(norm.NFC.String(s)), " ")
	if r := []rune(s); len(r) > 200 {
		s = strings.TrimSpace(string(r[:200]))
	}
	return s
}
