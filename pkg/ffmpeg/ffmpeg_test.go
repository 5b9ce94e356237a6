package ffmpeg

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keepFiles = flag.Bool("keep", false, "keep generated test files for inspection")

func TestCommandBuild(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		output   string
		opts     []Option
		wantArgs []string
	}{
		{
			name:   "simple copy",
			input:  "input.mkv",
			output: "output.mp4",
			opts:   []Option{CopyAll},
			wantArgs: []string{
				"-hide_banner", "-y",
				"-i", "input.mkv",
				"-c", "copy",
				"-movflags", "+faststart",
				"output.mp4",
			},
		},
		{
			name:   "segment cut",
			input:  "input.mkv",
			output: "input_part02.mkv",
			opts:   CutOptions(90*time.Second, 45*time.Second),
			wantArgs: []string{
				"-hide_banner", "-y",
				"-ss", "90.000",
				"-i", "input.mkv",
				"-t", "45.000",
				"-c", "copy",
				"-map", "0",
				"-avoid_negative_ts", "make_zero",
				"input_part02.mkv",
			},
		},
		{
			name:   "part suffix still gets faststart",
			input:  "in.mp4",
			output: "out.m4a.part",
			opts:   []Option{NoVideo},
			wantArgs: []string{
				"-hide_banner", "-y",
				"-i", "in.mp4",
				"-vn",
				"-movflags", "+faststart",
				"out.m4a.part",
			},
		},
		{
			name:   "fragmented overrides faststart",
			input:  "in.mp4",
			output: "out.mp4",
			opts:   []Option{CopyAll, Fragmented},
			wantArgs: []string{
				"-hide_banner", "-y",
				"-i", "in.mp4",
				"-c", "copy",
				"-movflags", "+frag_keyframe+empty_moov+default_base_moof",
				"out.mp4",
			},
		},
		{
			name:   "no movflags for mkv",
			input:  "in.webm",
			output: "out.mkv",
			opts:   []Option{CopyAll, MapAll},
			wantArgs: []string{
				"-hide_banner", "-y",
				"-i", "in.webm",
				"-c", "copy",
				"-map", "0",
				"out.mkv",
			},
		},
		{
			name:   "loglevel goes first",
			input:  "in.mp4",
			output: "out.mkv",
			opts:   []Option{Seek(time.Second), LogLevel("error")},
			wantArgs: []string{
				"-hide_banner", "-y",
				"-loglevel", "error",
				"-ss", "1.000",
				"-i", "in.mp4",
				"out.mkv",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NewCommand(tt.input, tt.output, tt.opts...)
			assert.Equal(t, tt.wantArgs, cmd.Build())
		})
	}
}

func TestEncodeCommand(t *testing.T) {
	args := EncodeCommand("list.txt", "v.mp4.part", EncodeOptions{MaxHeight: 720, Concat: true}).Build()
	assert.Equal(t, []string{
		"-hide_banner", "-y",
		"-f", "concat", "-safe", "0",
		"-i", "list.txt",
		"-c:v", "libx264", "-preset", "veryfast", "-crf", "23", "-pix_fmt", "yuv420p", "-profile:v", "high",
		"-c:a", "aac", "-b:a", "128k", "-ac", "2",
		"-f", "mp4",
		"-vf", "scale=-2:'min(720,ih)'",
		"-movflags", "+frag_keyframe+empty_moov+default_base_moof",
		"v.mp4.part",
	}, args)

	audio := strings.Join(EncodeCommand("in.webm", "a.mp4", EncodeOptions{AudioOnly: true, MaxHeight: 480}).Build(), " ")
	assert.Contains(t, audio, "-vn")
	assert.NotContains(t, audio, "libx264")
	assert.NotContains(t, audio, "scale=")
	assert.NotContains(t, audio, "concat")
}

func TestWithProgress(t *testing.T) {
	got := withProgress(NewCommand("a.mkv", "b.mkv", CopyAll).Build())
	assert.Equal(t, []string{"-hide_banner", "-y", "-progress", "pipe:1", "-nostats", "-i", "a.mkv", "-c", "copy", "b.mkv"}, got)
}

func TestWriteConcatList(t *testing.T) {
	dir := t.TempDir()
	list, err := WriteConcatList(dir, []string{"/data/a_part01.mkv", "/data/it's_part02.mkv"})
	require.NoError(t, err)

	b, err := os.ReadFile(list)
	require.NoError(t, err)
	assert.Equal(t, "ffconcat version 1.0\nfile '/data/a_part01.mkv'\nfile '/data/it'\\''s_part02.mkv'\n", string(b))

	_, err = WriteConcatList(dir, nil)
	assert.Error(t, err)
}

func TestProgressParsing(t *testing.T) {
	out := strings.Join([]string{
		"frame=100",
		"fps=30.5",
		"total_size=12345678",
		"out_time_us=5000000",
		"speed=2.5x",
		"progress=continue",
		"out_time_ms=7500000",
		"total_size=20000000",
		"speed= 3x",
		"progress=end",
		"out_time_us=9000000",
		"progress=continue",
	}, "\n")

	var got []Progress
	scanProgress(strings.NewReader(out), func(p Progress) { got = append(got, p) })

	require.Len(t, got, 2)
	assert.Equal(t, 5*time.Second, got[0].OutTime)
	assert.Equal(t, int64(12345678), got[0].TotalSize)
	assert.Equal(t, "2.5x", got[0].Speed)
	assert.False(t, got[0].Done)

	assert.Equal(t, 7.5, got[1].Seconds())
	assert.Equal(t, "3x", got[1].Speed)
	assert.True(t, got[1].Done)
}

func TestProgressParsing_IgnoresNoise(t *testing.T) {
	var p progressParser
	_, ok := p.line("garbage")
	assert.False(t, ok)
	_, ok = p.line("out_time_us=N/A")
	assert.False(t, ok)
	block, ok := p.line("progress=continue")
	require.True(t, ok)
	assert.Zero(t, block.OutTime)
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0.000"},
		{1 * time.Second, "1.000"},
		{1500 * time.Millisecond, "1.500"},
		{90 * time.Second, "90.000"},
		{time.Hour + 30*time.Minute + 45*time.Second + 500*time.Millisecond, "5445.500"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDuration(tt.d))
	}
	assert.Equal(t, 1500*time.Millisecond, Seconds(1.5))
}

func TestParseProbeOutput(t *testing.T) {
	raw := `{
		"format": {"format_name": "mov,mp4,m4a,3gp,3g2,mj2", "duration": "12.5"},
		"streams": [
			{"codec_type": "video", "codec_name": "mjpeg", "height": 600, "disposition": {"attached_pic": 1}},
			{"codec_type": "video", "codec_name": "h264", "height": 720},
			{"codec_type": "audio", "codec_name": "aac"}
		]
	}`
	m, err := parseProbeOutput([]byte(raw))
	require.NoError(t, err)
	assert.True(t, m.HasVideo())
	assert.Equal(t, "h264", m.VideoCodec)
	assert.Equal(t, 720, m.Height)
	assert.Equal(t, "aac", m.AudioCodec)
	assert.Equal(t, 12.5, m.Duration)

	audio, err := parseProbeOutput([]byte(`{"format": {"duration": "3"}, "streams": [{"codec_type": "video", "codec_name": "png", "disposition": {"attached_pic": 1}}]}`))
	require.NoError(t, err)
	assert.False(t, audio.HasVideo())

	_, err = parseProbeOutput([]byte("nope"))
	assert.Error(t, err)
}

func TestErrorMessage(t *testing.T) {
	e := &Error{Args: []string{"-i", "x"}, Stderr: "a\nb\n\nc\nd\n", Err: os.ErrNotExist}
	assert.Equal(t, "ffmpeg: file does not exist: b\nc\nd", e.Error())
	assert.Equal(t, "ffmpeg -i x", e.Command())
	assert.ErrorIs(t, e, os.ErrNotExist)
}

// =============================================================================
// Integration tests - require ffmpeg to be installed
// =============================================================================

// generateTestVideo creates a test video using ffmpeg's testsrc.
func generateTestVideo(t *testing.T, duration time.Duration) string {
	t.Helper()

	var tmpDir string
	if *keepFiles {
		tmpDir = filepath.Join(".", "testdata", "artifacts", t.Name())
		require.NoError(t, os.MkdirAll(tmpDir, 0o755))
		t.Logf("Keeping test files in: %s", tmpDir)
	} else {
		tmpDir = t.TempDir()
	}
	output := filepath.Join(tmpDir, "test_input.mkv")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	durStr := formatDuration(duration)
	args := []string{
		"-hide_banner", "-y",
		"-f", "lavfi", "-i", "testsrc2=duration=" + durStr + ":size=320x240:rate=30",
		"-f", "lavfi", "-i", "sine=frequency=440:duration=" + durStr,
		"-c:v", "libx264", "-preset", "ultrafast", "-crf", "28", "-g", "30",
		"-c:a", "aac", "-b:a", "64k",
		"-pix_fmt", "yuv420p",
		"-shortest",
		output,
	}

	require.NoError(t, run(ctx, args, nil), "failed to generate test video")
	return output
}

func TestIntegration_CutAndConcatEncode(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	input := generateTestVideo(t, 4*time.Second)
	dir := filepath.Dir(input)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	a := filepath.Join(dir, "test_input_part01.mkv")
	b := filepath.Join(dir, "test_input_part02.mkv")
	require.NoError(t, CutSegment(ctx, input, a, 0, 2*time.Second))
	require.NoError(t, CutSegment(ctx, input, b, 2*time.Second, 2*time.Second))

	list, err := WriteConcatList(dir, []string{a, b})
	require.NoError(t, err)

	out := filepath.Join(dir, "rendition.mp4.part")
	var last Progress
	require.NoError(t, EncodeCommand(list, out, EncodeOptions{MaxHeight: 144, Concat: true}).RunWithProgress(ctx, func(p Progress) {
		assert.GreaterOrEqual(t, p.OutTime, last.OutTime)
		last = p
	}))
	assert.True(t, last.Done)

	result, err := Probe(ctx, out)
	require.NoError(t, err)
	assert.Equal(t, 144, result.Height)
	assert.Equal(t, "h264", result.VideoCodec)
	assert.Equal(t, "aac", result.AudioCodec)
	assert.InDelta(t, 4.0, result.Duration, 1.0)
}

func TestIntegration_CancelStopsEncode(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	output := filepath.Join(t.TempDir(), "never_finish.mp4")
	args := []string{
		"-hide_banner", "-y",
		"-f", "lavfi", "-i", "testsrc2=duration=60:size=640x480:rate=30",
		"-c:v", "libx264", "-preset", "veryslow",
		"-pix_fmt", "yuv420p",
		output,
	}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)
	start := time.Now()
	err := run(ctx, args, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 30*time.Second)
}
