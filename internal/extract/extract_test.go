package extract

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kkdai/youtube/v2"
	"github.com/stretchr/testify/require"
	"thirdcoast.systems/relay/internal/faults"
	"thirdcoast.systems/relay/pkg/ytdlp"
)

type fakeInfo struct {
	info  *ytdlp.Info
	err   error
	calls int
	wait  bool
}

func (f *fakeInfo) GetInfo(ctx context.Context, url string, _ ...string) (*ytdlp.Info, error) {
	f.calls++
	if f.wait {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.info, f.err
}

type fakeVideo struct {
	video *youtube.Video
	err   error
	calls int
}

func (f *fakeVideo) GetVideoContext(_ context.Context, _ string) (*youtube.Video, error) {
	f.calls++
	return f.video, f.err
}

func sampleInfo() *ytdlp.Info {
	return &ytdlp.Info{
		ID:           "abc",
		Title:        "  <b>Launch</b> &amp; landing\n",
		Duration:     100,
		ExtractorKey: "Generic",
		Formats: []ytdlp.Format{
			{FormatID: "sb0", Ext: "mhtml", VCodec: "none", ACodec: "none"},
			{FormatID: "140", Ext: "m4a", VCodec: "none", ACodec: "mp4a.40.2", Filesize: 1_600_000},
			{FormatID: "251", Ext: "webm", VCodec: "none", ACodec: "opus", Filesize: 1_700_000},
			{FormatID: "136", Ext: "mp4", Height: 720, VCodec: "avc1.4d401f", ACodec: "none", Filesize: 20_000_000},
			{FormatID: "247", Ext: "webm", Height: 720, VCodec: "vp9", ACodec: "none", Filesize: 18_000_000},
			{FormatID: "137", Ext: "mp4", Height: 1080, VCodec: "avc1.640028", ACodec: "none", TBR: 4000},
			{FormatID: "18", Ext: "mp4", Height: 360, VCodec: "avc1.42001E", ACodec: "mp4a.40.2", FilesizeApprox: 5_000_000},
		},
	}
}

func TestYtdlpProber_MapsFormats(t *testing.T) {
	p := &YtdlpProber{Client: &fakeInfo{info: sampleInfo()}}
	res, err := p.Probe(context.Background(), "https://example.com/v")
	require.NoError(t, err)
	require.Len(t, res.Renditions, 6)

	byID := map[string]Rendition{}
	for _, r := range res.Renditions {
		byID[r.FormatID] = r
	}
	require.True(t, byID["140"].AudioOnly)
	require.Equal(t, "mp4a.40.2", byID["140"].AudioCodec)
	require.Empty(t, byID["140"].VideoCodec)
	require.False(t, byID["136"].HasAudio)
	require.True(t, byID["18"].HasAudio)
	require.EqualValues(t, 5_000_000, byID["18"].ApproxSize)
	// 4000 kbit/s for 100 s
	require.EqualValues(t, 50_000_000, byID["137"].ApproxSize)
}

func TestYtdlpProber_RejectsLiveAndPlaylists(t *testing.T) {
	p := &YtdlpProber{Client: &fakeInfo{info: &ytdlp.Info{IsLive: true}}}
	_, err := p.Probe(context.Background(), "u")
	require.Equal(t, faults.UnsupportedSource, faults.CodeOf(err))

	p = &YtdlpProber{Client: &fakeInfo{info: &ytdlp.Info{Entries: []json.RawMessage{json.RawMessage(`{}`)}}}}
	_, err = p.Probe(context.Background(), "u")
	require.Equal(t, faults.UnsupportedSource, faults.CodeOf(err))
}

func TestClassifyYtdlpError(t *testing.T) {
	cases := map[string]faults.Code{
		"ERROR: Unsupported URL: https://example.com":                        faults.UnsupportedSource,
		"ERROR: [youtube] x: Private video":                                   faults.UnsupportedSource,
		"ERROR: Unable to download webpage: <urlopen error timed out>":       faults.NetworkError,
		"ERROR: unable to download video data: HTTP Error 503: Unavailable": faults.NetworkError,
		"something odd happened":                                              faults.NetworkError,
	}
	for stderr, want := range cases {
		err := classifyYtdlpError(&ytdlp.ExecError{Cmd: "yt-dlp", ExitCode: 1, Stderr: stderr})
		require.Equal(t, want, faults.CodeOf(err), stderr)
	}

	var fe *faults.Error
	require.ErrorAs(t, classifyYtdlpError(&ytdlp.ExecError{ExitCode: 1, Stderr: "ERROR: Unsupported URL: x"}), &fe)
	require.Equal(t, "Unsupported URL: x", fe.Msg)

	require.ErrorIs(t, classifyYtdlpError(context.Canceled), context.Canceled)
}

func TestYouTubeProber(t *testing.T) {
	fv := &fakeVideo{video: &youtube.Video{
		ID:       "ggLajT7aMMk",
		Title:    "Clip",
		Duration: 10 * time.Second,
		Formats: youtube.FormatList{
			{ItagNo: 18, MimeType: `video/mp4; codecs="avc1.42001E, mp4a.40.2"`, Width: 640, Height: 360, AudioChannels: 2, ContentLength: 900},
			{ItagNo: 140, MimeType: `audio/mp4; codecs="mp4a.40.2"`, AudioChannels: 2, Bitrate: 128000},
		},
	}}
	p := &YouTubeProber{Client: fv}

	res, err := p.Probe(context.Background(), "https://youtu.be/ggLajT7aMMk")
	require.NoError(t, err)
	require.Len(t, res.Renditions, 2)
	require.Equal(t, Rendition{FormatID: "18", Height: 360, Container: "mp4", ApproxSize: 900, HasAudio: true, VideoCodec: "avc1.42001E", AudioCodec: "mp4a.40.2"}, res.Renditions[0])
	require.Equal(t, "m4a", res.Renditions[1].Container)
	require.True(t, res.Renditions[1].AudioOnly)
	require.Equal(t, "mp4a.40.2", res.Renditions[1].AudioCodec)
	require.EqualValues(t, 160_000, res.Renditions[1].ApproxSize)

	_, err = p.Probe(context.Background(), "https://vimeo.com/1234")
	require.Equal(t, faults.UnsupportedSource, faults.CodeOf(err))
	require.Equal(t, 1, fv.calls)

	fv.err = youtube.ErrVideoPrivate
	_, err = p.Probe(context.Background(), "https://youtu.be/ggLajT7aMMk")
	require.Equal(t, faults.UnsupportedSource, faults.CodeOf(err))

	fv.err = errors.New("dial tcp: connection refused")
	_, err = p.Probe(context.Background(), "https://youtu.be/ggLajT7aMMk")
	require.Equal(t, faults.NetworkError, faults.CodeOf(err))
}

func TestChain_FallsThroughAndCleansTitle(t *testing.T) {
	yt := &YouTubeProber{Client: &fakeVideo{}}
	fi := &fakeInfo{info: sampleInfo()}
	c := &Chain{Probers: []Prober{yt, &YtdlpProber{Client: fi}}, Timeout: time.Second}

	res, err := c.Probe(context.Background(), "https://example.com/v")
	require.NoError(t, err)
	require.Equal(t, 1, fi.calls)
	require.Equal(t, "Launch & landing", res.Title)
}

func TestChain_TimeoutBecomesExtractionTimeout(t *testing.T) {
	c := &Chain{Probers: []Prober{&YtdlpProber{Client: &fakeInfo{wait: true}}}, Timeout: 20 * time.Millisecond}
	_, err := c.Probe(context.Background(), "https://example.com/v")
	require.Equal(t, faults.ExtractionTimeout, faults.CodeOf(err))
	require.True(t, faults.Retryable(err))
}

func TestChain_CallerCancellationWins(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fi := &fakeInfo{wait: true}
	c := &Chain{Probers: []Prober{&YtdlpProber{Client: fi}, &YtdlpProber{Client: fi}}, Timeout: time.Second}
	_, err := c.Probe(ctx, "https://example.com/v")
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, fi.calls)
}

func TestNormalizeProfile(t *testing.T) {
	for in, want := range map[string]string{"": "best", "BEST": "best", " audio ": "audio", "720P": "720p", "0480p": "480p"} {
		got, err := NormalizeProfile(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	for _, in := range []string{"hd", "0p", "-1p", "99999p", "720"} {
		_, err := NormalizeProfile(in)
		require.ErrorIs(t, err, ErrInvalidProfile, in)
	}
}

func TestSelect(t *testing.T) {
	rs := mustProbe(t, sampleInfo()).Renditions

	sel := Select(rs, "720p")
	require.Equal(t, "136", sel.Video.FormatID)
	require.Equal(t, "140", sel.Audio.FormatID)
	require.EqualValues(t, 21_600_000, sel.EstimatedSize)
	require.Equal(t, ytdlp.FormatSelector("720p"), sel.Format)

	sel = Select(rs, "best")
	require.Equal(t, "137", sel.Video.FormatID)

	sel = Select(rs, "360p")
	require.Equal(t, "18", sel.Video.FormatID)
	require.Nil(t, sel.Audio)
	require.EqualValues(t, 5_000_000, sel.EstimatedSize)

	sel = Select(rs, "audio")
	require.Nil(t, sel.Video)
	require.Equal(t, "140", sel.Audio.FormatID)

	sel = Select(rs, "144p")
	require.Nil(t, sel.Video)
	require.Zero(t, sel.EstimatedSize)
}

func TestCleanTitle(t *testing.T) {
	require.Equal(t, "a b", CleanTitle("a\t\n b"))
	require.Equal(t, "Tom & Jerry", CleanTitle("<script>x</script>Tom &amp; Jerry"))
	require.Len(t, []rune(CleanTitle(strings.Repeat("é", 300))), 200)
}

func mustProbe(t *testing.T, info *ytdlp.Info) *Probe {
	t.Helper()
	res, err := (&YtdlpProber{Client: &fakeInfo{info: info}}).Probe(context.Background(), "u")
	require.NoError(t, err)
	return res
}
