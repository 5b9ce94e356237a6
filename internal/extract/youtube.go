package extract

import (
	"context"
	"errors"
	"mime"
	"strconv"
	"strings"

	"github.com/kkdai/youtube/v2"
	"thirdcoast.systems/relay/internal/faults"
	"thirdcoast.systems/relay/internal/sourceid"
)

// VideoFetcher is the part of *youtube.Client the prober needs.
type VideoFetcher interface {
	GetVideoContext(ctx context.Context, url string) (*youtube.Video, error)
}

// YouTubeProber reads the YouTube player response directly, which is much
// faster than spawning yt-dlp. Non-YouTube URLs fail with UnsupportedSource.
type YouTubeProber struct {
	Client VideoFetcher
}

func NewYouTubeProber() *YouTubeProber {
	return &YouTubeProber{Client: &youtube.Client{}}
}

func (p *YouTubeProber) Name() string { return "youtube" }

func (p *YouTubeProber) Probe(ctx context.Context, url string) (*Probe, error) {
	id, err := sourceid.ExtractYouTubeVideoID(url)
	if err != nil {
		return nil, faults.Wrap(faults.UnsupportedSource, "not a YouTube video url", err)
	}

	video, err := p.Client.GetVideoContext(ctx, id)
	if err != nil {
		return nil, classifyYouTubeError(err)
	}
	if len(video.Formats) == 0 {
		if video.HLSManifestURL != "" {
			return nil, faults.New(faults.UnsupportedSource, "live streams cannot be acquired")
		}
		return nil, faults.New(faults.UnsupportedSource, "video offers no downloadable formats")
	}

	res := &Probe{
		Title:     video.Title,
		Duration:  video.Duration.Seconds(),
		Extractor: "Youtube",
	}
	for _, f := range video.Formats {
		container, vcodec, acodec := parseMimeType(f.MimeType)
		audioOnly := f.Width == 0 && f.Height == 0
		if audioOnly {
			acodec, vcodec = firstNonEmpty(acodec, vcodec), ""
			if container == "mp4" {
				container = "m4a"
			}
		}
		size := f.ContentLength
		if size == 0 && f.Bitrate > 0 {
			size = int64(float64(f.Bitrate) / 8 * video.Duration.Seconds())
		}
		res.Renditions = append(res.Renditions, Rendition{
			FormatID:   strconv.Itoa(f.ItagNo),
			Height:     f.Height,
			Container:  container,
			ApproxSize: size,
			AudioOnly:  audioOnly,
			HasAudio:   f.AudioChannels > 0,
			VideoCodec: vcodec,
			AudioCodec: acodec,
		})
	}
	return res, nil
}

// parseMimeType splits `video/mp4; codecs="avc1.640028, mp4a.40.2"`.
func parseMimeType(mt string) (container, vcodec, acodec string) {
	mediaType, params, err := mime.ParseMediaType(mt)
	if err != nil {
		return "", "", ""
	}
	_, container, _ = strings.Cut(mediaType, "/")
	codecs := strings.Split(params["codecs"], ",")
	for i := range codecs {
		codecs[i] = strings.TrimSpace(codecs[i])
	}
	switch len(codecs) {
	case 0:
	case 1:
		vcodec = codecs[0]
	default:
		vcodec, acodec = codecs[0], codecs[1]
	}
	return container, vcodec, acodec
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func classifyYouTubeError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	switch {
	case errors.Is(err, youtube.ErrLoginRequired),
		errors.Is(err, youtube.ErrVideoPrivate),
		errors.Is(err, youtube.ErrNotPlayableInEmbed),
		errors.Is(err, youtube.ErrInvalidCharactersInVideoID),
		errors.Is(err, youtube.ErrVideoIDMinLength):
		return faults.Wrap(faults.UnsupportedSource, "video is not available", err)
	}
	var statusErr *youtube.ErrPlayabiltyStatus
	if errors.As(err, &statusErr) {
		return faults.Wrap(faults.UnsupportedSource, "video is not playable", err)
	}
	return faults.Wrap(faults.NetworkError, "youtube player request", err)
}
