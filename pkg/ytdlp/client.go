package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// streamWriter wraps an io.Writer and calls a callback for each line.
type streamWriter struct {
	stream   string
	callback func(stream string, line string)
	buffer   *bytes.Buffer
	pending  []byte
}

func (w *streamWriter) Write(p []byte) (n int, err error) {
	if w.buffer != nil {
		w.buffer.Write(p)
	}

	w.pending = append(w.pending, p...)

	// yt-dlp progress output often uses carriage returns (\r) to update the same
	// console line, so both \n and \r end a line.
	for {
		idx := bytes.IndexAny(w.pending, "\r\n")
		if idx < 0 {
			break
		}

		line := string(w.pending[:idx])

		consume := 1
		if w.pending[idx] == '\r' && idx+1 < len(w.pending) && w.pending[idx+1] == '\n' {
			consume = 2
		}
		w.pending = w.pending[idx+consume:]

		if w.callback != nil {
			trimmed := strings.TrimSpace(line)
			if trimmed != "" {
				w.callback(w.stream, trimmed)
			}
		}
	}

	return len(p), nil
}

// flush emits a trailing line that had no terminator.
func (w *streamWriter) flush() {
	if len(w.pending) == 0 || w.callback == nil {
		return
	}
	if trimmed := strings.TrimSpace(string(w.pending)); trimmed != "" {
		w.callback(w.stream, trimmed)
	}
	w.pending = nil
}

type ExecError struct {
	Cmd      string
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
	Cause    error
}

func (e *ExecError) Error() string {
	cmdline := strings.TrimSpace(e.Cmd + " " + strings.Join(e.Args, " "))
	msg := lastErrorLine(e.Stderr)
	switch {
	case e.ExitCode != 0 && msg != "":
		return fmt.Sprintf("ytdlp: command failed (exit %d): %s: %s", e.ExitCode, cmdline, msg)
	case e.ExitCode != 0:
		return fmt.Sprintf("ytdlp: command failed (exit %d): %s", e.ExitCode, cmdline)
	}
	return fmt.Sprintf("ytdlp: command failed: %s", cmdline)
}

func (e *ExecError) Unwrap() error { return e.Cause }

// lastErrorLine returns the last "ERROR:" line yt-dlp printed, if any.
func lastErrorLine(stderr string) string {
	lines := strings.Split(stderr, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); strings.HasPrefix(l, "ERROR:") {
			return l
		}
	}
	return ""
}

// Client runs yt-dlp. A Client is safe for concurrent use once configured.
type Client struct {
	// Path to yt-dlp executable. Defaults to "yt-dlp" (PATH lookup).
	Path string

	// ExtraArgs are always appended before per-call args.
	ExtraArgs []string

	// LogCallback is called for each line of stdout/stderr output.
	LogCallback func(stream string, line string)

	execFn func(ctx context.Context, name string, args ...string) (stdout []byte, stderr []byte, err error)
}

func New() *Client {
	return &Client{Path: "yt-dlp"}
}

// exec runs yt-dlp with args. onLine, when set, receives every output line as
// it is produced, in addition to LogCallback.
func (c *Client) exec(ctx context.Context, onLine func(stream, line string), args ...string) (stdout []byte, stderr []byte, err error) {
	name := c.PathOrDefault()

	fullArgs := make([]string, 0, len(c.ExtraArgs)+len(args))
	fullArgs = append(fullArgs, c.ExtraArgs...)
	fullArgs = append(fullArgs, args...)

	callback := func(stream, line string) {
		if c.LogCallback != nil {
			c.LogCallback(stream, line)
		}
		if onLine != nil {
			onLine(stream, line)
		}
	}

	if c.execFn != nil {
		stdout, stderr, err = c.execFn(ctx, name, fullArgs...)
		for _, s := range []struct {
			name string
			data []byte
		}{{"stdout", stdout}, {"stderr", stderr}} {
			w := &streamWriter{stream: s.name, callback: callback}
			_, _ = w.Write(s.data)
			w.flush()
		}
		return stdout, stderr, err
	}

	slog.Debug("ytdlp: Executing command", "cmd", name, "args", fullArgs)
	cmd := exec.CommandContext(ctx, name, fullArgs...)
	var outBuf, errBuf bytes.Buffer
	outW := &streamWriter{stream: "stdout", callback: callback, buffer: &outBuf}
	errW := &streamWriter{stream: "stderr", callback: callback, buffer: &errBuf}
	cmd.Stdout = outW
	cmd.Stderr = errW

	if err := cmd.Start(); err != nil {
		return nil, nil, err
	}
	err = cmd.Wait()
	outW.flush()
	errW.flush()

	return outBuf.Bytes(), errBuf.Bytes(), err
}

// Version returns `yt-dlp --version`.
func (c *Client) Version(ctx context.Context) (string, error) {
	args := []string{"--version"}
	stdout, stderr, err := c.exec(ctx, nil, args...)
	if err != nil {
		return "", wrapExecError(c.PathOrDefault(), args, stdout, stderr, err)
	}
	return strings.TrimSpace(string(stdout)), nil
}

// Format is one entry of yt-dlp's "formats" list.
type Format struct {
	FormatID       string  `json:"format_id"`
	Ext            string  `json:"ext"`
	Height         int     `json:"height"`
	Width          int     `json:"width"`
	VCodec         string  `json:"vcodec"`
	ACodec         string  `json:"acodec"`
	Filesize       int64   `json:"filesize"`
	FilesizeApprox int64   `json:"filesize_approx"`
	TBR            float64 `json:"tbr"`
	Protocol       string  `json:"protocol"`
}

// HasVideo reports whether the format carries a video stream.
func (f Format) HasVideo() bool { return f.VCodec != "" && f.VCodec != "none" }

// HasAudio reports whether the format carries an audio stream.
func (f Format) HasAudio() bool { return f.ACodec != "" && f.ACodec != "none" }

// Size returns the exact size when known, else the approximation.
func (f Format) Size() int64 {
	if f.Filesize > 0 {
		return f.Filesize
	}
	return f.FilesizeApprox
}

// Info is a light wrapper over yt-dlp JSON output. It models only the fields
// the pipeline reads; the full JSON is preserved in Raw.
type Info struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	WebpageURL   string            `json:"webpage_url"`
	Extractor    string            `json:"extractor"`
	ExtractorKey string            `json:"extractor_key"`
	Uploader     string            `json:"uploader"`
	Duration     float64           `json:"duration"`
	Ext          string            `json:"ext"`
	IsLive       bool              `json:"is_live"`
	Formats      []Format          `json:"formats,omitempty"`
	Entries      []json.RawMessage `json:"entries,omitempty"`
	Raw          json.RawMessage   `json:"-"`
}

// GetInfo runs yt-dlp in "metadata only" mode and parses its JSON output.
// Nothing is written to disk.
func (c *Client) GetInfo(ctx context.Context, url string, extraArgs ...string) (*Info, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("ytdlp: url is required")
	}

	args := []string{"--dump-single-json", "--skip-download", "--no-playlist", "--no-cache-dir", "--no-colors"}
	args = append(args, extraArgs...)
	args = append(args, url)

	stdout, stderr, err := c.exec(ctx, nil, args...)
	if err != nil {
		return nil, wrapExecError(c.PathOrDefault(), args, stdout, stderr, err)
	}

	raw := bytes.TrimSpace(stdout)
	info := &Info{Raw: append([]byte(nil), raw...)}
	if err := json.Unmarshal(raw, info); err != nil {
		return nil, fmt.Errorf("ytdlp: parse json: %w", err)
	}

	return info, nil
}

// PathOrDefault returns the configured path or "yt-dlp" if unset.
func (c *Client) PathOrDefault() string {
	if strings.TrimSpace(c.Path) == "" {
		return "yt-dlp"
	}
	return c.Path
}

func wrapExecError(cmd string, args []string, stdout []byte, stderr []byte, cause error) error {
	exitCode := 0
	var ee *exec.ExitError
	if errors.As(cause, &ee) {
		exitCode = ee.ExitCode()
	}

	return &ExecError{
		Cmd:      cmd,
		Args:     args,
		ExitCode: exitCode,
		Stdout:   strings.TrimSpace(string(stdout)),
		Stderr:   strings.TrimSpace(string(stderr)),
		Cause:    cause,
	}
}
