package transcode

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"thirdcoast.systems/relay/internal/blobstore"
	"thirdcoast.systems/relay/internal/faults"
	"thirdcoast.systems/relay/internal/store"
	"thirdcoast.systems/relay/internal/store/storetest"
)

// fakeEncoder concatenates its inputs into the output and reports progress
// at 5s, 2s and 10s of output.
type fakeEncoder struct {
	calls atomic.Int32
	gate  chan struct{}
	fail  error

	mu     sync.Mutex
	inputs [][]string
}

func (f *fakeEncoder) Encode(ctx context.Context, job EncodeJob, progress func(float64)) error {
	f.calls.Add(1)
	f.mu.Lock()
	f.inputs = append(f.inputs, job.Inputs)
	f.mu.Unlock()

	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	var out []byte
	for _, in := range job.Inputs {
		b, err := os.ReadFile(in)
		if err != nil {
			return err
		}
		out = append(out, b...)
	}
	if err := os.WriteFile(job.Output, out, 0o644); err != nil {
		return err
	}
	for _, s := range []float64{5, 2, 10} {
		progress(s)
	}
	return f.fail
}

type fixture struct {
	st  *storetest.Memory
	fs  *blobstore.FS
	enc *fakeEncoder
	tr  *Transcoder
	id  uuid.UUID
}

func newFixture(t *testing.T, chunks ...string) *fixture {
	t.Helper()
	if len(chunks) == 0 {
		chunks = []string{"one chunk of media"}
	}
	ctx := context.Background()
	st := storetest.NewMemory()
	fs, err := blobstore.NewFS(filepath.Join(t.TempDir(), "blobs"))
	require.NoError(t, err)

	src := t.TempDir()
	a := &store.Artifact{ID: uuid.New(), SourceIdentity: "youtube.com/watch?v=" + t.Name(), Duration: 10, Title: "clip", Container: "mp4"}
	for i, body := range chunks {
		p := filepath.Join(src, filepath.Base(t.Name())+string(rune('a'+i))+".mp4")
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
		h, err := fs.Upload(ctx, filepath.Base(p), p)
		require.NoError(t, err)
		a.Chunks = append(a.Chunks, store.Chunk{Index: i, StorageRef: string(h), Size: int64(len(body)), Start: float64(i) * 5, Duration: 5})
		a.TotalSize += int64(len(body))
	}
	_, err = st.PutArtifact(ctx, a)
	require.NoError(t, err)

	enc := &fakeEncoder{}
	tr := New(st, fs, enc, Options{Dir: filepath.Join(t.TempDir(), "variants"), TTL: time.Hour})
	t.Cleanup(tr.Close)
	return &fixture{st: st, fs: fs, enc: enc, tr: tr, id: a.ID}
}

func TestEnsureVariant_ConcurrentCallersShareOneEncode(t *testing.T) {
	f := newFixture(t)
	f.enc.gate = make(chan struct{})

	var wg sync.WaitGroup
	results := make([]*store.Variant, 2)
	errs := make([]error, 2)
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = f.tr.EnsureVariant(context.Background(), f.id, "720p")
		}()
	}
	close(f.enc.gate)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	require.Equal(t, results[0].ID, results[1].ID)
	require.EqualValues(t, 1, f.enc.calls.Load())
	require.FileExists(t, results[0].StoragePath)
	require.Equal(t, ".mp4", filepath.Ext(results[0].StoragePath))
}

func TestEnsureVariant_SecondCallIsCached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v1, err := f.tr.EnsureVariant(ctx, f.id, "audio")
	require.NoError(t, err)
	require.Equal(t, ".m4a", filepath.Ext(v1.StoragePath))
	require.True(t, v1.ExpiresAt.After(time.Now()))

	v2, err := f.tr.EnsureVariant(ctx, f.id, "audio")
	require.NoError(t, err)
	require.Equal(t, v1.ID, v2.ID)
	require.EqualValues(t, 1, f.enc.calls.Load())
}

func TestEnsureVariant_MissingFileIsReencoded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v, err := f.tr.EnsureVariant(ctx, f.id, "480p")
	require.NoError(t, err)
	require.NoError(t, os.Remove(v.StoragePath))

	_, err = f.tr.EnsureVariant(ctx, f.id, "480p")
	require.NoError(t, err)
	require.EqualValues(t, 2, f.enc.calls.Load())
	require.FileExists(t, v.StoragePath)
}

func TestEnsureVariant_UnknownProfile(t *testing.T) {
	f := newFixture(t)
	_, err := f.tr.EnsureVariant(context.Background(), f.id, "8k")
	require.Equal(t, faults.TranscodeFailed, faults.CodeOf(err))
	require.Zero(t, f.enc.calls.Load())
}

func TestEnsureVariant_UnknownArtifact(t *testing.T) {
	f := newFixture(t)
	_, err := f.tr.EnsureVariant(context.Background(), uuid.New(), "720p")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestEnsureVariant_EncoderFailureLeavesNothing(t *testing.T) {
	f := newFixture(t)
	f.enc.fail = errors.New("ffmpeg: exit status 1")

	_, err := f.tr.EnsureVariant(context.Background(), f.id, "360p")
	require.Equal(t, faults.TranscodeFailed, faults.CodeOf(err))

	out, part := f.tr.paths(f.id, profiles["360p"])
	require.NoFileExists(t, out)
	require.NoFileExists(t, part)
	_, err = f.st.GetVariant(context.Background(), f.id, "360p")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestEnsureVariant_ConcatenatesChunks(t *testing.T) {
	f := newFixture(t, "first half|", "second half")

	v, err := f.tr.EnsureVariant(context.Background(), f.id, "1080p")
	require.NoError(t, err)
	require.Len(t, f.enc.inputs, 1)
	require.Len(t, f.enc.inputs[0], 2)

	b, err := os.ReadFile(v.StoragePath)
	require.NoError(t, err)
	require.Equal(t, "first half|second half", string(b))
	require.EqualValues(t, len(b), v.Size)
}

func TestEnsureVariant_CallerCancelDoesNotStopEncode(t *testing.T) {
	f := newFixture(t)
	f.enc.gate = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := f.tr.EnsureVariant(ctx, f.id, "720p")
		errc <- err
	}()
	require.Eventually(t, func() bool { return f.enc.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.ErrorIs(t, <-errc, context.Canceled)

	close(f.enc.gate)
	require.Eventually(t, func() bool {
		_, ok := f.tr.Cached(context.Background(), f.id, "720p")
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestAcquire_ReturnsPartialUntilDone(t *testing.T) {
	f := newFixture(t)
	f.enc.gate = make(chan struct{})
	ctx := context.Background()

	v, partial, err := f.tr.Acquire(ctx, f.id, "720p")
	require.NoError(t, err)
	require.Nil(t, v)
	require.NotNil(t, partial)
	require.Equal(t, "video/mp4", partial.ContentType)
	require.Equal(t, ".part", filepath.Ext(partial.Path))

	watched, ok := f.tr.Watch(f.id, "720p")
	require.True(t, ok)
	require.Same(t, partial, watched)

	close(f.enc.gate)
	<-partial.Done()
	require.NoError(t, partial.Err())

	_, ok = f.tr.Watch(f.id, "720p")
	require.False(t, ok)

	v, partial, err = f.tr.Acquire(ctx, f.id, "720p")
	require.NoError(t, err)
	require.Nil(t, partial)
	require.NotNil(t, v)
}

func TestSubscribe_ProgressIsMonotonicAndEndsDone(t *testing.T) {
	f := newFixture(t)
	events, cancel := f.tr.Subscribe(f.id, "720p")
	defer cancel()

	_, err := f.tr.EnsureVariant(context.Background(), f.id, "720p")
	require.NoError(t, err)

	var got []Event
	for ev := range events {
		got = append(got, ev)
		if ev.Done {
			break
		}
	}
	require.Equal(t, []Event{
		{ArtifactID: f.id, Profile: "720p", Percent: 50},
		{ArtifactID: f.id, Profile: "720p", Percent: 99},
		{ArtifactID: f.id, Profile: "720p", Percent: 100, Done: true},
	}, got)
}

func TestReapOnce_DeletesExpiredVariants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v, err := f.tr.EnsureVariant(ctx, f.id, "480p")
	require.NoError(t, err)

	n, err := f.tr.ReapOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	f.tr.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	n, err = f.tr.ReapOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.NoFileExists(t, v.StoragePath)
	_, err = f.st.GetVariant(ctx, f.id, "480p")
	require.ErrorIs(t, err, store.ErrNotFound)
}

// renewingStore re-encodes a variant between the reaper's listing and its
// delete.
type renewingStore struct {
	*storetest.Memory
	renew func()
}

func (s *renewingStore) ExpiredVariants(ctx context.Context, now time.Time, limit int) ([]*store.Variant, error) {
	out, err := s.Memory.ExpiredVariants(ctx, now, limit)
	if s.renew != nil {
		s.renew()
		s.renew = nil
	}
	return out, err
}

func TestReapOnce_KeepsVariantRenewedAfterListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rs := &renewingStore{Memory: f.st}
	tr := New(rs, f.fs, f.enc, Options{Dir: filepath.Join(t.TempDir(), "variants"), TTL: time.Hour})
	t.Cleanup(tr.Close)

	old, err := tr.EnsureVariant(ctx, f.id, "480p")
	require.NoError(t, err)

	later := time.Now().Add(2 * time.Hour)
	tr.now = func() time.Time { return later }
	var fresh *store.Variant
	rs.renew = func() {
		v, err := tr.EnsureVariant(ctx, f.id, "480p")
		require.NoError(t, err)
		fresh = v
	}

	n, err := tr.ReapOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
	require.EqualValues(t, 2, f.enc.calls.Load())

	require.Equal(t, old.ID, fresh.ID)
	require.True(t, fresh.ExpiresAt.After(later))
	require.FileExists(t, fresh.StoragePath)
	got, err := f.st.GetVariant(ctx, f.id, "480p")
	require.NoError(t, err)
	require.Equal(t, fresh.ExpiresAt, got.ExpiresAt)
}

func TestProfileNames(t *testing.T) {
	require.Equal(t, []string{"360p", "480p", "720p", "1080p", "audio"}, ProfileNames())
}
