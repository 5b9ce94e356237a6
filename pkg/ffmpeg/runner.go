package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// run executes ffmpeg with args. With onProgress set, stdout carries the
// -progress stream and each completed block is passed to it. Cancelling ctx
// kills the process.
func run(ctx context.Context, args []string, onProgress func(Progress)) error {
	cmd := exec.CommandContext(ctx, Binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	var stdout io.ReadCloser
	if onProgress != nil {
		var err error
		if stdout, err = cmd.StdoutPipe(); err != nil {
			return fmt.Errorf("ffmpeg: stdout pipe: %w", err)
		}
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ffmpeg: start: %w", err)
	}
	if stdout != nil {
		scanProgress(stdout, onProgress)
		// drain so ffmpeg never blocks on a full pipe after "progress=end"
		_, _ = io.Copy(io.Discard, stdout)
	}
	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg: %w", context.Cause(ctx))
		}
		return &Error{Args: args, Stderr: stderr.String(), Err: err}
	}
	return nil
}

// Error is a failed ffmpeg or ffprobe run.
type Error struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *Error) Error() string {
	if tail := stderrTail(e.Stderr, 3); tail != "" {
		return fmt.Sprintf("ffmpeg: %v: %s", e.Err, tail)
	}
	return fmt.Sprintf("ffmpeg: %v", e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Command is the command line that failed, for logs.
func (e *Error) Command() string {
	return Binary + " " + strings.Join(e.Args, " ")
}

// stderrTail keeps the last n non-empty lines; ffmpeg prints the reason last.
func stderrTail(s string, n int) string {
	var lines []string
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
