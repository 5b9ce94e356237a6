// Package transcode produces and caches playback-compatible variants of
// stored artifacts.
package transcode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"thirdcoast.systems/relay/internal/blobstore"
	"thirdcoast.systems/relay/internal/faults"
	"thirdcoast.systems/relay/internal/metrics"
	"thirdcoast.systems/relay/internal/store"
)

// Store is the persistence the transcoder needs.
type Store interface {
	store.ArtifactStore
	store.VariantStore
}

// Event reports encode progress for one (artifact, profile).
type Event struct {
	ArtifactID uuid.UUID `json:"artifact_id"`
	Profile    string    `json:"profile"`
	Percent    int       `json:"percent"`
	Done       bool      `json:"done"`
	Err        string    `json:"error,omitempty"`
}

// Partial is an encode in flight. Path grows until Done is closed.
type Partial struct {
	Path        string
	ContentType string
	done        chan struct{}
	err         error
}

// Done is closed when the encode finishes either way.
func (p *Partial) Done() <-chan struct{} { return p.done }

// Err is the encode outcome; valid after Done is closed.
func (p *Partial) Err() error {
	<-p.done
	return p.err
}

type Options struct {
	// Dir is the variant cache root.
	Dir string
	// TTL is how long a variant lives after it is written.
	TTL time.Duration
	// Timeout bounds a single encode.
	Timeout time.Duration
}

type Transcoder struct {
	store   Store
	channel blobstore.Channel
	encoder Encoder
	opts    Options
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	group  singleflight.Group

	mu       sync.Mutex
	inflight map[string]*Partial
	subs     map[string]map[chan Event]struct{}
}

func New(st Store, ch blobstore.Channel, enc Encoder, opts Options) *Transcoder {
	if opts.TTL <= 0 {
		opts.TTL = 7 * 24 * time.Hour
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Hour
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Transcoder{
		store:    st,
		channel:  ch,
		encoder:  enc,
		opts:     opts,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
		inflight: map[string]*Partial{},
		subs:     map[string]map[chan Event]struct{}{},
	}
}

// Close aborts running encodes.
func (t *Transcoder) Close() { t.cancel() }

func key(artifactID uuid.UUID, profile string) string {
	return artifactID.String() + "/" + profile
}

// EnsureVariant returns a live variant for (artifactID, profile), encoding it
// first when needed. Concurrent callers for the same pair share one encode.
// A caller whose ctx ends stops waiting; the encode itself keeps running for
// the others.
func (t *Transcoder) EnsureVariant(ctx context.Context, artifactID uuid.UUID, profile string) (*store.Variant, error) {
	p, err := LookupProfile(profile)
	if err != nil {
		return nil, err
	}
	if v, ok := t.cached(ctx, artifactID, profile); ok {
		return v, nil
	}

	ch := t.group.DoChan(key(artifactID, profile), func() (any, error) {
		if v, ok := t.cached(t.ctx, artifactID, profile); ok {
			return v, nil
		}
		return t.encode(artifactID, p)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*store.Variant), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Acquire returns the live variant when there is one. Otherwise it starts
// the encode in the background and returns the Partial to tail; the Partial
// is registered before Acquire returns.
func (t *Transcoder) Acquire(ctx context.Context, artifactID uuid.UUID, profile string) (*store.Variant, *Partial, error) {
	p, err := LookupProfile(profile)
	if err != nil {
		return nil, nil, err
	}
	if v, ok := t.cached(ctx, artifactID, profile); ok {
		return v, nil, nil
	}
	if _, err := t.store.GetArtifact(ctx, artifactID); err != nil {
		return nil, nil, err
	}

	_, part := t.paths(artifactID, p)
	partial := t.begin(key(artifactID, p.Name), part, p.ContentType())
	go func() {
		_, err := t.EnsureVariant(t.ctx, artifactID, profile)
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("Background transcode failed", "artifact_id", artifactID, "profile", profile, "error", err)
		}
		// no-op unless EnsureVariant was served from cache
		t.finish(key(artifactID, p.Name), err)
	}()
	return nil, partial, nil
}

// Cached returns the stored variant when it is live and its file exists.
func (t *Transcoder) Cached(ctx context.Context, artifactID uuid.UUID, profile string) (*store.Variant, bool) {
	return t.cached(ctx, artifactID, profile)
}

func (t *Transcoder) cached(ctx context.Context, artifactID uuid.UUID, profile string) (*store.Variant, bool) {
	v, err := t.store.GetVariant(ctx, artifactID, profile)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Warn("Variant lookup failed", "artifact_id", artifactID, "profile", profile, "error", err)
		}
		return nil, false
	}
	if v.Expired(t.now()) {
		return nil, false
	}
	if _, err := os.Stat(v.StoragePath); err != nil {
		slog.Warn("Variant row has no file, re-encoding", "variant_id", v.ID, "path", v.StoragePath)
		return nil, false
	}
	return v, true
}

// Watch returns the in-flight encode for (artifactID, profile), if any.
func (t *Transcoder) Watch(artifactID uuid.UUID, profile string) (*Partial, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.inflight[key(artifactID, profile)]
	return p, ok
}

// Subscribe delivers progress events for (artifactID, profile) until cancel
// is called. Slow subscribers miss intermediate events, never the final one.
func (t *Transcoder) Subscribe(artifactID uuid.UUID, profile string) (<-chan Event, func()) {
	k := key(artifactID, profile)
	ch := make(chan Event, 8)
	t.mu.Lock()
	if t.subs[k] == nil {
		t.subs[k] = map[chan Event]struct{}{}
	}
	t.subs[k][ch] = struct{}{}
	t.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subs[k], ch)
			if len(t.subs[k]) == 0 {
				delete(t.subs, k)
			}
			t.mu.Unlock()
		})
	}
}

func (t *Transcoder) publish(ev Event) {
	k := key(ev.ArtifactID, ev.Profile)
	t.mu.Lock()
	defer t.mu.Unlock()
	for ch := range t.subs[k] {
		select {
		case ch <- ev:
			continue
		default:
		}
		if !ev.Done {
			continue
		}
		// full: drop the oldest so the final event lands
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
		}
	}
}

func (t *Transcoder) paths(artifactID uuid.UUID, p Profile) (out, part string) {
	out = filepath.Join(t.opts.Dir, artifactID.String(), p.Name+p.Ext())
	return out, out + ".part"
}

// begin registers the in-flight encode for k, or returns the one already
// registered.
func (t *Transcoder) begin(k, path, contentType string) *Partial {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.inflight[k]; ok {
		return p
	}
	p := &Partial{Path: path, ContentType: contentType, done: make(chan struct{})}
	t.inflight[k] = p
	return p
}

func (t *Transcoder) finish(k string, err error) {
	t.mu.Lock()
	p, ok := t.inflight[k]
	delete(t.inflight, k)
	t.mu.Unlock()
	if ok {
		p.err = err
		close(p.done)
	}
}

func (t *Transcoder) encode(artifactID uuid.UUID, p Profile) (*store.Variant, error) {
	ctx, cancel := context.WithTimeout(t.ctx, t.opts.Timeout)
	defer cancel()

	a, err := t.store.GetArtifact(ctx, artifactID)
	if err != nil {
		return nil, err
	}
	chunks, err := t.store.Resolve(ctx, artifactID)
	if err != nil {
		return nil, err
	}

	out, part := t.paths(artifactID, p)
	dir := filepath.Dir(out)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, faults.Wrap(faults.TranscodeFailed, "create variant dir", err)
	}

	k := key(artifactID, p.Name)
	t.begin(k, part, p.ContentType())
	v, err := t.run(ctx, a, chunks, p, dir, out, part)
	t.finish(k, err)

	ev := Event{ArtifactID: artifactID, Profile: p.Name, Done: true}
	if err != nil {
		ev.Err = faults.Message(err)
		metrics.Transcodes.WithLabelValues(p.Name, "failed").Inc()
	} else {
		ev.Percent = 100
		metrics.Transcodes.WithLabelValues(p.Name, "ok").Inc()
	}
	t.publish(ev)
	return v, err
}

func (t *Transcoder) run(ctx context.Context, a *store.Artifact, chunks []store.Chunk, p Profile, dir, out, part string) (*store.Variant, error) {
	started := t.now()
	inputs, cleanup, err := t.materialize(ctx, chunks, dir)
	defer cleanup()
	if err != nil {
		return nil, faults.Wrap(faults.TranscodeFailed, "read source chunks", err)
	}

	slog.Info("Transcoding variant", "artifact_id", a.ID, "profile", p.Name, "chunks", len(inputs))

	last := -1
	progress := func(seconds float64) {
		if a.Duration <= 0 {
			return
		}
		pct := min(99, int(seconds*100/a.Duration))
		if pct <= last {
			return
		}
		last = pct
		t.publish(Event{ArtifactID: a.ID, Profile: p.Name, Percent: pct})
	}

	if err := t.encoder.Encode(ctx, EncodeJob{Inputs: inputs, Output: part, Profile: p}, progress); err != nil {
		_ = os.Remove(part)
		return nil, faults.Wrap(faults.TranscodeFailed, fmt.Sprintf("encode %s", p.Name), err)
	}
	if err := os.Rename(part, out); err != nil {
		_ = os.Remove(part)
		return nil, faults.Wrap(faults.TranscodeFailed, "commit variant", err)
	}
	fi, err := os.Stat(out)
	if err != nil {
		return nil, faults.Wrap(faults.TranscodeFailed, "stat variant", err)
	}

	now := t.now()
	v, err := t.store.PutVariant(ctx, &store.Variant{
		ArtifactID:  a.ID,
		Profile:     p.Name,
		StoragePath: out,
		Size:        fi.Size(),
		CreatedAt:   now,
		ExpiresAt:   now.Add(t.opts.TTL),
	})
	if err != nil {
		_ = os.Remove(out)
		return nil, faults.Wrap(faults.TranscodeFailed, "record variant", err)
	}

	slog.Info("Transcoded variant", "artifact_id", a.ID, "profile", p.Name,
		"size", humanize.Bytes(uint64(fi.Size())), "took", time.Since(started).Round(time.Millisecond))
	return v, nil
}

// materialize returns local paths for chunks, downloading those the channel
// cannot expose as files into dir.
func (t *Transcoder) materialize(ctx context.Context, chunks []store.Chunk, dir string) ([]string, func(), error) {
	var temps []string
	cleanup := func() {
		for _, p := range temps {
			_ = os.Remove(p)
		}
	}
	if len(chunks) == 0 {
		return nil, cleanup, errors.New("artifact has no chunks")
	}

	paths := make([]string, 0, len(chunks))
	for _, c := range chunks {
		h := blobstore.Handle(c.StorageRef)
		if p, ok := t.channel.LocalPath(h); ok {
			paths = append(paths, p)
			continue
		}
		tmp, err := os.CreateTemp(dir, fmt.Sprintf(".src-%02d-*", c.Index))
		if err != nil {
			return nil, cleanup, err
		}
		temps = append(temps, tmp.Name())
		rc, err := t.channel.Open(ctx, h, 0, -1)
		if err != nil {
			tmp.Close()
			return nil, cleanup, err
		}
		_, err = io.Copy(tmp, rc)
		rc.Close()
		if cerr := tmp.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return nil, cleanup, err
		}
		paths = append(paths, tmp.Name())
	}
	return paths, cleanup, nil
}
