package extract

import (
	"context"
	"errors"
	"os/exec"
	"strings"

	"thirdcoast.systems/relay/internal/faults"
	"thirdcoast.systems/relay/pkg/ytdlp"
)

// InfoFetcher is the part of *ytdlp.Client the prober needs.
type InfoFetcher interface {
	GetInfo(ctx context.Context, url string, extraArgs ...string) (*ytdlp.Info, error)
}

// YtdlpProber probes any site yt-dlp supports.
type YtdlpProber struct {
	Client InfoFetcher
}

func (p *YtdlpProber) Name() string { return "yt-dlp" }

func (p *YtdlpProber) Probe(ctx context.Context, url string) (*Probe, error) {
	info, err := p.Client.GetInfo(ctx, url)
	if err != nil {
		return nil, classifyYtdlpError(err)
	}
	if info.IsLive {
		return nil, faults.New(faults.UnsupportedSource, "live streams cannot be acquired")
	}
	if len(info.Formats) == 0 && len(info.Entries) > 0 {
		return nil, faults.New(faults.UnsupportedSource, "playlists cannot be acquired")
	}

	res := &Probe{
		Title:     info.Title,
		Duration:  info.Duration,
		Extractor: info.ExtractorKey,
	}
	for _, f := range info.Formats {
		if !f.HasVideo() && !f.HasAudio() {
			// storyboards and thumbnails
			continue
		}
		res.Renditions = append(res.Renditions, Rendition{
			FormatID:   f.FormatID,
			Height:     f.Height,
			Container:  f.Ext,
			ApproxSize: estimateSize(f, info.Duration),
			AudioOnly:  !f.HasVideo(),
			HasAudio:   f.HasAudio(),
			VideoCodec: codecOrEmpty(f.VCodec),
			AudioCodec: codecOrEmpty(f.ACodec),
		})
	}
	if len(res.Renditions) == 0 && info.Ext != "" {
		// single-file extractors report no format list
		res.Renditions = append(res.Renditions, Rendition{FormatID: "best", Container: info.Ext, HasAudio: true})
	}
	return res, nil
}

// estimateSize prefers reported sizes and falls back to bitrate x duration.
func estimateSize(f ytdlp.Format, duration float64) int64 {
	if s := f.Size(); s > 0 {
		return s
	}
	if f.TBR > 0 && duration > 0 {
		return int64(f.TBR * 1000 / 8 * duration)
	}
	return 0
}

func codecOrEmpty(c string) string {
	if c == "none" {
		return ""
	}
	return c
}

var unsupportedMarkers = []string{
	"unsupported url",
	"is not a valid url",
	"video unavailable",
	"private video",
	"this video is not available",
	"http error 404",
	"http error 403",
	"requested format is not available",
	"no video formats found",
	"sign in to confirm your age",
}

var networkMarkers = []string{
	"timed out",
	"connection",
	"temporary failure in name resolution",
	"unable to download",
	"http error 5",
	"http error 429",
	"network is unreachable",
	"read error",
}

// classifyYtdlpError maps yt-dlp failures onto the fault taxonomy.
func classifyYtdlpError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, exec.ErrNotFound) {
		return faults.Wrap(faults.Internal, "yt-dlp is not installed", err)
	}
	var ee *ytdlp.ExecError
	if !errors.As(err, &ee) {
		return faults.Wrap(faults.Internal, "yt-dlp probe", err)
	}
	text := strings.ToLower(ee.Stderr)
	for _, m := range unsupportedMarkers {
		if strings.Contains(text, m) {
			return faults.Wrap(faults.UnsupportedSource, summary(ee), err)
		}
	}
	for _, m := range networkMarkers {
		if strings.Contains(text, m) {
			return faults.Wrap(faults.NetworkError, summary(ee), err)
		}
	}
	// unknown non-zero exits are treated as transient so the retry budget decides
	return faults.Wrap(faults.NetworkError, summary(ee), err)
}

// ClassifyDownloadError applies the probe classification to a download failure.
func ClassifyDownloadError(err error) error {
	return classifyYtdlpError(err)
}

func summary(ee *ytdlp.ExecError) string {
	lines := strings.Split(ee.Stderr, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); strings.HasPrefix(l, "ERROR:") {
			return strings.TrimSpace(strings.TrimPrefix(l, "ERROR:"))
		}
	}
	if ee.ExitCode != 0 {
		return "yt-dlp exited with an error"
	}
	return "yt-dlp failed"
}
