package queue

import (
	"context"

	"thirdcoast.systems/relay/internal/extract"
	"thirdcoast.systems/relay/pkg/ytdlp"
)

// YtdlpFetcher downloads with yt-dlp. The process runs under
// exec.CommandContext, so cancelling ctx stops the transfer.
type YtdlpFetcher struct {
	Client *ytdlp.Client
}

func (f *YtdlpFetcher) Fetch(ctx context.Context, url, destDir string, sel extract.Selection, progress func(float64)) (string, error) {
	opts := ytdlp.DownloadOptions{
		Format: sel.Format,
		OnProgress: func(p ytdlp.Progress) {
			if progress != nil {
				progress(p.Percent)
			}
		},
	}
	if sel.Video != nil {
		opts.MergeFormat = "mp4"
	}
	path, err := f.Client.Download(ctx, url, destDir, opts)
	if err != nil {
		return "", extract.ClassifyDownloadError(err)
	}
	return path, nil
}
