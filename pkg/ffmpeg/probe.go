package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
)

// Media is what the pipeline needs to know about a file before cutting or
// encoding it.
type Media struct {
	Duration   float64
	FormatName string
	Height     int
	VideoCodec string
	AudioCodec string
}

func (m *Media) HasVideo() bool { return m.VideoCodec != "" }

type ffprobeOutput struct {
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType   string `json:"codec_type"`
		CodecName   string `json:"codec_name"`
		Height      int    `json:"height"`
		Disposition struct {
			AttachedPic int `json:"attached_pic"`
		} `json:"disposition"`
	} `json:"streams"`
}

// Probe runs ffprobe on path.
func Probe(ctx context.Context, path string) (*Media, error) {
	args := []string{"-hide_banner", "-v", "error", "-print_format", "json", "-show_format", "-show_streams", path}
	cmd := exec.CommandContext(ctx, ProbeBinary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, &Error{Args: args, Stderr: stderr.String(), Err: err}
	}
	return parseProbeOutput(stdout.Bytes())
}

func parseProbeOutput(raw []byte) (*Media, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("ffprobe: parse output: %w", err)
	}
	m := &Media{FormatName: out.Format.FormatName}
	if out.Format.Duration != "" {
		m.Duration, _ = strconv.ParseFloat(out.Format.Duration, 64)
	}
	for _, s := range out.Streams {
		switch {
		// cover art shows up as a one-frame video stream
		case s.CodecType == "video" && s.Disposition.AttachedPic == 0 && m.VideoCodec == "":
			m.VideoCodec = s.CodecName
			m.Height = s.Height
		case s.CodecType == "audio" && m.AudioCodec == "":
			m.AudioCodec = s.CodecName
		}
	}
	return m, nil
}

// ProbeDuration returns the container duration in seconds, or 0 when ffprobe
// reports none.
func ProbeDuration(ctx context.Context, path string) (float64, error) {
	m, err := Probe(ctx, path)
	if err != nil {
		return 0, err
	}
	return m.Duration, nil
}
