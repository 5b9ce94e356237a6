package ytdlp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

const progressPrefix = "relay-progress"

// Progress is one parsed progress report from a running download.
type Progress struct {
	Downloaded int64
	Total      int64
	Percent    float64
}

// DownloadOptions controls a single download.
type DownloadOptions struct {
	// Format is the yt-dlp format selector (see FormatSelector).
	Format string
	// MergeFormat is the container used when video and audio are merged.
	MergeFormat string
	// OnProgress receives every progress line yt-dlp prints.
	OnProgress func(Progress)
	ExtraArgs  []string
}

// Download fetches url into destDir and returns the path of the produced file.
// The output template is <destDir>/<id>.<ext>; the final path is read back
// from yt-dlp's after_move print so merges and remuxes are accounted for.
func (c *Client) Download(ctx context.Context, url string, destDir string, opts DownloadOptions) (string, error) {
	if strings.TrimSpace(url) == "" {
		return "", fmt.Errorf("ytdlp: url is required")
	}
	if strings.TrimSpace(destDir) == "" {
		return "", fmt.Errorf("ytdlp: destDir is required")
	}
	// yt-dlp prints absolute paths; a relative dir would never match them
	destDir, err := filepath.Abs(destDir)
	if err != nil {
		return "", fmt.Errorf("ytdlp: resolve destDir: %w", err)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", err
	}

	args := []string{
		"-o", filepath.Join(destDir, "%(id)s.%(ext)s"),
		"--no-playlist",
		"--no-cache-dir",
		"--no-colors",
		"--newline",
		"--progress",
		"--progress-template", "download:" + progressPrefix + " %(progress.downloaded_bytes)s %(progress.total_bytes)s %(progress.total_bytes_estimate)s",
		"--print", "after_move:filepath",
	}
	if opts.Format != "" {
		args = append(args, "--format", opts.Format)
	}
	if opts.MergeFormat != "" {
		args = append(args, "--merge-output-format", opts.MergeFormat)
	}
	args = append(args, opts.ExtraArgs...)
	args = append(args, url)

	var final string
	onLine := func(stream, line string) {
		if p, ok := ParseProgressLine(line); ok {
			if opts.OnProgress != nil {
				opts.OnProgress(p)
			}
			return
		}
		if stream == "stdout" && filepath.IsAbs(line) && strings.HasPrefix(line, destDir+string(filepath.Separator)) {
			final = line
		}
	}

	stdout, stderr, err := c.exec(ctx, onLine, args...)
	if err != nil {
		return "", wrapExecError(c.PathOrDefault(), args, stdout, stderr, err)
	}
	if final == "" {
		return "", fmt.Errorf("ytdlp: download finished without reporting a file")
	}
	return final, nil
}

var legacyProgressRe = regexp.MustCompile(`^\[download\]\s+([0-9.]+)%\s+of\s+~?\s*([0-9.]+)([KMGT]?i?B)`)

// ParseProgressLine parses either the relay progress template or yt-dlp's
// default "[download]  42.0% of 10.00MiB" line.
func ParseProgressLine(line string) (Progress, bool) {
	if rest, ok := strings.CutPrefix(line, progressPrefix+" "); ok {
		fields := strings.Fields(rest)
		if len(fields) != 3 {
			return Progress{}, false
		}
		done := parseIntField(fields[0])
		total := parseIntField(fields[1])
		if total <= 0 {
			total = parseIntField(fields[2])
		}
		p := Progress{Downloaded: done, Total: total}
		if total > 0 {
			p.Percent = min(100, float64(done)*100/float64(total))
		}
		return p, true
	}

	m := legacyProgressRe.FindStringSubmatch(line)
	if m == nil {
		return Progress{}, false
	}
	pct, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Progress{}, false
	}
	p := Progress{Percent: min(100, pct)}
	if size, err := strconv.ParseFloat(m[2], 64); err == nil {
		p.Total = int64(size * unitMultiplier(m[3]))
		p.Downloaded = int64(float64(p.Total) * p.Percent / 100)
	}
	return p, true
}

func parseIntField(s string) int64 {
	if s == "NA" || s == "None" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int64(f)
}

func unitMultiplier(unit string) float64 {
	switch unit {
	case "KiB":
		return 1 << 10
	case "MiB":
		return 1 << 20
	case "GiB":
		return 1 << 30
	case "TiB":
		return 1 << 40
	case "KB":
		return 1e3
	case "MB":
		return 1e6
	case "GB":
		return 1e9
	case "TB":
		return 1e12
	}
	return 1
}

// FormatSelector returns the yt-dlp selector for a rendition profile:
// "audio" picks the best audio stream, "<N>p" caps the height at N and
// prefers AVC video with AAC audio, anything else takes the best available.
func FormatSelector(profile string) string {
	profile = strings.ToLower(strings.TrimSpace(profile))
	switch profile {
	case "audio":
		return "bestaudio[acodec^=mp4a]/bestaudio"
	case "", "best":
		return "bestvideo[vcodec^=avc]+bestaudio[acodec^=mp4a]/bestvideo+bestaudio/best"
	}
	if h, ok := ProfileHeight(profile); ok {
		return fmt.Sprintf("bestvideo[height<=%[1]d][vcodec^=avc]+bestaudio[acodec^=mp4a]/bestvideo[height<=%[1]d]+bestaudio/best[height<=%[1]d]/best", h)
	}
	return "bestvideo+bestaudio/best"
}

// ProfileHeight parses "720p" style profiles.
func ProfileHeight(profile string) (int, bool) {
	s, ok := strings.CutSuffix(strings.ToLower(strings.TrimSpace(profile)), "p")
	if !ok {
		return 0, false
	}
	h, err := strconv.Atoi(s)
	if err != nil || h <= 0 {
		return 0, false
	}
	return h, true
}
