package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CutSegment stream-copies [start, start+dur) of input into output.
// Cuts land on the nearest preceding keyframe.
func CutSegment(ctx context.Context, input, output string, start, dur time.Duration) error {
	return NewCommand(input, output, CutOptions(start, dur)...).Run(ctx)
}

// CutOptions are the options CutSegment uses.
func CutOptions(start, dur time.Duration) []Option {
	return []Option{Seek(start), Duration(dur), CopyAll, MapAll, AvoidNegativeTS}
}

// WriteConcatList writes a concat demuxer list for parts into dir and
// returns its path.
func WriteConcatList(dir string, parts []string) (string, error) {
	if len(parts) == 0 {
		return "", fmt.Errorf("ffmpeg: concat list needs at least one part")
	}
	var b strings.Builder
	b.WriteString("ffconcat version 1.0\n")
	for _, p := range parts {
		abs, err := filepath.Abs(p)
		if err != nil {
			return "", err
		}
		// single quotes are escaped as '\'' inside a quoted path
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}
	f, err := os.CreateTemp(dir, "concat-*.txt")
	if err != nil {
		return "", err
	}
	if _, err := f.WriteString(b.String()); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), f.Close()
}

// EncodeOptions describes one rendition encode.
type EncodeOptions struct {
	// MaxHeight caps the output height; 0 keeps the source height.
	MaxHeight int
	// AudioOnly drops video and writes an AAC-only MP4.
	AudioOnly bool
	// Concat treats the input as a concat list written by WriteConcatList.
	Concat bool
}

// EncodeCommand builds a fragmented H.264/AAC MP4 encode. The output can be
// served while it grows.
func EncodeCommand(input, output string, opts EncodeOptions) *Command {
	var o []Option
	if opts.Concat {
		o = append(o, ConcatInput)
	}
	if opts.AudioOnly {
		o = append(o, NoVideo)
	} else {
		o = append(o, PresetH264()...)
		if opts.MaxHeight > 0 {
			o = append(o, ScaleMaxHeight(opts.MaxHeight))
		}
	}
	o = append(o, PresetAAC()...)
	o = append(o, OutputFormat("mp4"), Fragmented)
	return NewCommand(input, output, o...)
}
