package transcode

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"thirdcoast.systems/relay/internal/metrics"
	"thirdcoast.systems/relay/internal/store"
)

const reapBatch = 100

// ReapOnce deletes variants past their expiry, row first and then file. A
// variant re-encoded after it was listed keeps both; one with an encode in
// flight is left for the next pass.
func (t *Transcoder) ReapOnce(ctx context.Context) (int, error) {
	reaped := 0
	for {
		now := t.now()
		expired, err := t.store.ExpiredVariants(ctx, now, reapBatch)
		if err != nil {
			return reaped, err
		}
		n := 0
		for _, v := range expired {
			if _, busy := t.Watch(v.ArtifactID, v.Profile); busy {
				continue
			}
			path, err := t.store.DeleteExpiredVariant(ctx, v.ID, now)
			if errors.Is(err, store.ErrNotFound) {
				slog.Debug("Variant renewed before reaping", "variant_id", v.ID)
				continue
			}
			if err != nil {
				return reaped, err
			}
			n++
			if _, busy := t.Watch(v.ArtifactID, v.Profile); busy {
				// the new encode renames over path when it finishes
				continue
			}
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				slog.Warn("Failed to remove expired variant file", "variant_id", v.ID, "path", path, "error", err)
				continue
			}
			// drop the per-artifact dir once it is empty
			_ = os.Remove(filepath.Dir(path))
		}
		reaped += n
		metrics.VariantsReaped.Add(float64(n))
		if len(expired) < reapBatch || n == 0 {
			return reaped, nil
		}
	}
}

// RunReaper calls ReapOnce every interval until ctx ends.
func (t *Transcoder) RunReaper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		n, err := t.ReapOnce(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			slog.Error("Variant reaper pass failed", "error", err)
		case n > 0:
			slog.Info("Reaped expired variants", "count", n)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
