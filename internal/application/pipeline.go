package application

import (
	"context"
	"log/slog"
	"os/exec"

	"thirdcoast.systems/relay/internal/blobstore"
	"thirdcoast.systems/relay/internal/config"
	"thirdcoast.systems/relay/internal/extract"
	"thirdcoast.systems/relay/internal/queue"
	"thirdcoast.systems/relay/internal/splitter"
	"thirdcoast.systems/relay/internal/store"
	"thirdcoast.systems/relay/internal/transcode"
	"thirdcoast.systems/relay/pkg/ffmpeg"
	"thirdcoast.systems/relay/pkg/ytdlp"
)

// NewManager wires the acquisition pipeline: the native YouTube prober with
// yt-dlp as fallback, yt-dlp downloads, and the ffmpeg splitter.
func NewManager(conf config.Config, st store.Store, ch blobstore.Channel) *queue.Manager {
	ytdlpClient := ytdlp.New()
	ytdlpClient.Path = conf.YtdlpPath
	ytdlpClient.LogCallback = func(stream, line string) {
		slog.Debug("yt-dlp", "stream", stream, "line", line)
	}

	prober := &extract.Chain{
		Probers: []extract.Prober{
			extract.NewYouTubeProber(),
			&extract.YtdlpProber{Client: ytdlpClient},
		},
		Timeout: conf.ExtractTimeout,
	}

	return queue.New(queue.Deps{
		Store:    st,
		Prober:   prober,
		Fetcher:  &queue.YtdlpFetcher{Client: ytdlpClient},
		Splitter: splitter.New(),
		Channel:  ch,
	}, queue.Options{
		Workers:         conf.DownloadWorkers,
		MaxAttempts:     conf.MaxAttempts,
		DailyQuota:      conf.OwnerDailyQuota,
		PremiumQuota:    conf.PremiumDailyQuota,
		MaxChunkSize:    conf.MaxChunkBytes,
		DiskCeiling:     conf.DiskCeilingBytes,
		ScratchDir:      conf.ScratchDir,
		DownloadTimeout: conf.DownloadTimeout,
	})
}

// NewTranscoder builds the ffmpeg-backed variant cache.
func NewTranscoder(conf config.Config, st store.Store, ch blobstore.Channel) *transcode.Transcoder {
	return transcode.New(st, ch, transcode.FFmpegEncoder{}, transcode.Options{
		Dir:     conf.VariantDir,
		TTL:     conf.VariantTTL,
		Timeout: conf.TranscodeTimeout,
	})
}

// CheckTools logs the external tool versions and warns about missing binaries.
// Jobs fail with a clear error later, so a missing tool does not stop startup.
func CheckTools(ctx context.Context, conf config.Config) {
	c := ytdlp.New()
	c.Path = conf.YtdlpPath
	if v, err := c.Version(ctx); err != nil {
		slog.Warn("yt-dlp is not usable", "path", c.PathOrDefault(), "error", err)
	} else {
		slog.Info("Found yt-dlp", "version", v)
	}
	for _, bin := range []string{ffmpeg.Binary, ffmpeg.ProbeBinary} {
		if _, err := exec.LookPath(bin); err != nil {
			slog.Warn("ffmpeg tool not found", "binary", bin, "error", err)
		}
	}
}
