package transcode

import (
	"context"
	"os"
	"path/filepath"

	"thirdcoast.systems/relay/pkg/ffmpeg"
)

// EncodeJob is one variant encode. Inputs are played back to back.
type EncodeJob struct {
	Inputs  []string
	Output  string
	Profile Profile
}

// Encoder runs the external encode. progress receives the number of seconds
// of output written so far.
type Encoder interface {
	Encode(ctx context.Context, job EncodeJob, progress func(seconds float64)) error
}

// FFmpegEncoder encodes fragmented H.264/AAC MP4 with ffmpeg.
type FFmpegEncoder struct{}

func (FFmpegEncoder) Encode(ctx context.Context, job EncodeJob, progress func(float64)) error {
	input := job.Inputs[0]
	concat := len(job.Inputs) > 1
	if concat {
		list, err := ffmpeg.WriteConcatList(filepath.Dir(job.Output), job.Inputs)
		if err != nil {
			return err
		}
		defer os.Remove(list)
		input = list
	}

	cmd := ffmpeg.EncodeCommand(input, job.Output, ffmpeg.EncodeOptions{
		MaxHeight: job.Profile.MaxHeight,
		AudioOnly: job.Profile.AudioOnly,
		Concat:    concat,
	})

	return cmd.RunWithProgress(ctx, func(p ffmpeg.Progress) {
		if progress != nil {
			progress(p.Seconds())
		}
	})
}
