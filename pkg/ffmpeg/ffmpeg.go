// Package ffmpeg builds and runs the ffmpeg and ffprobe invocations used to cut
// and encode media.
package ffmpeg

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Binary and ProbeBinary name the executables; override for non-PATH installs.
var (
	Binary      = "ffmpeg"
	ProbeBinary = "ffprobe"
)

// Command represents an ffmpeg command being built.
type Command struct {
	input        string
	output       string
	preInput     []string // args before -i (seeking, demuxer selection)
	postInput    []string // args after -i
	filters      []string // collected -vf filters
	movflags     string   // overrides the automatic +faststart
}

// Option modifies a Command. Options are composable and order-independent
// (ffmpeg will receive args in correct order regardless of option order).
type Option interface {
	Apply(cmd *Command)
}

// OptionFunc is a function that implements Option.
type OptionFunc func(cmd *Command)

// Apply implements Option.
func (f OptionFunc) Apply(cmd *Command) { f(cmd) }

// NewCommand creates a command with input/output and applies options.
func NewCommand(input, output string, opts ...Option) *Command {
	cmd := &Command{
		input:  input,
		output: output,
	}
	for _, opt := range opts {
		opt.Apply(cmd)
	}
	return cmd
}

// outputExt is the container extension of the output, ignoring a trailing
// ".part" used for in-progress files.
func (c *Command) outputExt() string {
	return strings.ToLower(filepath.Ext(strings.TrimSuffix(c.output, ".part")))
}

// Build returns the complete ffmpeg argument list.
func (c *Command) Build() []string {
	args := []string{"-hide_banner", "-y"}

	args = append(args, c.preInput...)
	args = append(args, "-i", c.input)
	args = append(args, c.postInput...)

	if len(c.filters) > 0 {
		args = append(args, "-vf", strings.Join(c.filters, ","))
	}

	switch {
	case c.movflags != "":
		args = append(args, "-movflags", c.movflags)
	case c.outputExt() == ".mp4" || c.outputExt() == ".m4a" || c.outputExt() == ".mov":
		args = append(args, "-movflags", "+faststart")
	}

	args = append(args, c.output)
	return args
}

// withProgress inserts the machine-readable progress flags after -hide_banner -y.
func withProgress(args []string) []string {
	out := []string{args[0], args[1], "-progress", "pipe:1", "-nostats"}
	return append(out, args[2:]...)
}

// Run executes the command.
func (c *Command) Run(ctx context.Context) error {
	return run(ctx, c.Build(), nil)
}

// RunWithProgress executes the command and calls onProgress for every
// progress block, on the calling goroutine.
func (c *Command) RunWithProgress(ctx context.Context, onProgress func(Progress)) error {
	return run(ctx, withProgress(c.Build()), onProgress)
}

// --- Input Options ---

// Seek sets the start position (input seeking, before -i).
func Seek(start time.Duration) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.preInput = append(cmd.preInput, "-ss", formatDuration(start))
	})
}

// Duration sets the output duration.
func Duration(d time.Duration) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.postInput = append(cmd.postInput, "-t", formatDuration(d))
	})
}

// ConcatInput reads the input as a concat demuxer list file.
var ConcatInput Option = OptionFunc(func(cmd *Command) {
	cmd.preInput = append(cmd.preInput, "-f", "concat", "-safe", "0")
})

// --- Codec Options ---

// VideoCodec sets the video codec (-c:v).
func VideoCodec(codec string) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.postInput = append(cmd.postInput, "-c:v", codec)
	})
}

// CRF sets the constant rate factor.
func CRF(value int) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.postInput = append(cmd.postInput, "-crf", strconv.Itoa(value))
	})
}

// Preset sets the encoding preset (ultrafast, veryfast, medium, etc.).
func Preset(name string) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.postInput = append(cmd.postInput, "-preset", name)
	})
}

// PixelFormat sets the pixel format (-pix_fmt).
func PixelFormat(fmt string) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.postInput = append(cmd.postInput, "-pix_fmt", fmt)
	})
}

// AudioCodec sets the audio codec (-c:a).
func AudioCodec(codec string) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.postInput = append(cmd.postInput, "-c:a", codec)
	})
}

// AudioBitrate sets the audio bitrate (-b:a).
func AudioBitrate(bitrate string) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.postInput = append(cmd.postInput, "-b:a", bitrate)
	})
}

// CopyAll copies all streams without re-encoding (-c copy).
var CopyAll Option = OptionFunc(func(cmd *Command) {
	cmd.postInput = append(cmd.postInput, "-c", "copy")
})

// NoVideo drops video streams (-vn).
var NoVideo Option = OptionFunc(func(cmd *Command) {
	cmd.postInput = append(cmd.postInput, "-vn")
})

// MapAll maps all streams from input (-map 0).
var MapAll Option = OptionFunc(func(cmd *Command) {
	cmd.postInput = append(cmd.postInput, "-map", "0")
})

// --- Filter Options ---

// Filter adds a video filter to the filter chain.
func Filter(f string) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.filters = append(cmd.filters, f)
	})
}

// ScaleMaxHeight scales down to at most h lines, keeping aspect and an even width.
// Sources shorter than h are left alone.
func ScaleMaxHeight(h int) Option {
	return Filter("scale=-2:'min(" + strconv.Itoa(h) + ",ih)'")
}

// --- Output Options ---

// OutputFormat forces the output muxer (-f after inputs).
func OutputFormat(name string) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.postInput = append(cmd.postInput, "-f", name)
	})
}

// Fragmented writes a fragmented MP4 whose prefix is playable while the file
// is still being written.
var Fragmented Option = OptionFunc(func(cmd *Command) {
	cmd.movflags = "+frag_keyframe+empty_moov+default_base_moof"
})

// AvoidNegativeTS shifts timestamps so stream-copied cuts start at zero.
var AvoidNegativeTS Option = OptionFunc(func(cmd *Command) {
	cmd.postInput = append(cmd.postInput, "-avoid_negative_ts", "make_zero")
})

// LogLevel sets the logging level.
func LogLevel(level string) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.preInput = append([]string{"-loglevel", level}, cmd.preInput...)
	})
}

// ExtraArgs adds raw arguments (escape hatch for unsupported options).
func ExtraArgs(args ...string) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.postInput = append(cmd.postInput, args...)
	})
}

// --- Utility ---

func formatDuration(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

// Seconds converts a float second count to a Duration.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
