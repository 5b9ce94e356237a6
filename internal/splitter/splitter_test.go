package splitter

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"thirdcoast.systems/relay/internal/faults"
)

// fakeMedia treats a file's bytes as evenly spread over its duration, so a
// cut of [start, start+dur) copies the proportional byte range.
type fakeMedia struct {
	durations map[string]float64
	cuts      int
	// pad adds bytes to the first part cut from a given input.
	pad    map[string]int
	failAt int
	onCut  func()
}

func newFakeMedia() *fakeMedia {
	return &fakeMedia{durations: map[string]float64{}, pad: map[string]int{}}
}

func (f *fakeMedia) Duration(_ context.Context, path string) (float64, error) {
	d, ok := f.durations[path]
	if !ok {
		return 0, errors.New("no duration")
	}
	return d, nil
}

func (f *fakeMedia) Cut(_ context.Context, in, out string, start, dur float64) error {
	f.cuts++
	if f.onCut != nil {
		f.onCut()
	}
	if f.failAt > 0 && f.cuts == f.failAt {
		return errors.New("ffmpeg: exit status 1")
	}
	data, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	total := f.durations[in]
	lo := int(math.Round(start / total * float64(len(data))))
	hi := int(math.Round((start + dur) / total * float64(len(data))))
	part := append([]byte(nil), data[lo:hi]...)
	if n := f.pad[in]; n > 0 && start == 0 {
		part = append(part, bytes.Repeat([]byte{'p'}, n)...)
	}
	f.durations[out] = dur
	return os.WriteFile(out, part, 0o644)
}

func media(t *testing.T, f *fakeMedia, name string, size int, duration float64) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	require.NoError(t, os.WriteFile(p, data, 0o644))
	f.durations[p] = duration
	return p
}

func TestPlan_TwoPointFourGBIntoTwoChunks(t *testing.T) {
	segs, err := Plan(2_400_000_000, 600, 2_000_000_000)
	require.NoError(t, err)
	require.Equal(t, []Segment{{0, 0, 300}, {1, 300, 300}}, segs)

	// proportional size of the first chunk stays under the limit
	require.LessOrEqual(t, int64(2_400_000_000*segs[0].Duration/600), int64(2_000_000_000))
}

func TestPlan_Deterministic(t *testing.T) {
	a, err := Plan(10_000, 97.3, 3_000)
	require.NoError(t, err)
	b, err := Plan(10_000, 97.3, 3_000)
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Len(t, a, 4)
	require.InDelta(t, 97.3, a[3].Start+a[3].Duration, 1e-9)
}

func TestPlan_Edges(t *testing.T) {
	segs, err := Plan(100, 10, 100)
	require.NoError(t, err)
	require.Len(t, segs, 1)

	_, err = Plan(101, 0, 100)
	require.Equal(t, faults.UnsplittableFormat, faults.CodeOf(err))

	_, err = Plan(1, 1, 0)
	require.Error(t, err)
}

func TestSplit_FitsReturnsInput(t *testing.T) {
	f := newFakeMedia()
	s := &Splitter{Cutter: f, Prober: f}
	in := media(t, f, "clip.mp4", 1000, 10)

	chunks, err := s.Split(context.Background(), in, 1000)
	require.NoError(t, err)
	require.Equal(t, []Chunk{{Path: in, Size: 1000, Duration: 10}}, chunks)
	require.Zero(t, f.cuts)
}

func TestSplit_TwoParts(t *testing.T) {
	f := newFakeMedia()
	s := &Splitter{Cutter: f, Prober: f}
	in := media(t, f, "clip.mkv", 2400, 600)

	chunks, err := s.Split(context.Background(), in, 2000)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	require.Equal(t, filepath.Join(filepath.Dir(in), "clip_part01.mkv"), chunks[0].Path)
	require.Equal(t, filepath.Join(filepath.Dir(in), "clip_part02.mkv"), chunks[1].Path)
	require.LessOrEqual(t, chunks[0].Size, int64(2000))
	require.EqualValues(t, 1200, chunks[0].Size)
	require.Equal(t, 300.0, chunks[1].Start)
	require.FileExists(t, in)
}

func TestSplit_ReassembledSplitsIdentically(t *testing.T) {
	f := newFakeMedia()
	s := &Splitter{Cutter: f, Prober: f}
	in := media(t, f, "movie.mp4", 10_000, 97.3)

	first, err := s.Split(context.Background(), in, 3_000)
	require.NoError(t, err)

	var joined []byte
	for _, c := range first {
		b, err := os.ReadFile(c.Path)
		require.NoError(t, err)
		joined = append(joined, b...)
	}
	re := filepath.Join(t.TempDir(), "movie.mp4")
	require.NoError(t, os.WriteFile(re, joined, 0o644))
	f.durations[re] = 97.3

	second, err := s.Split(context.Background(), re, 3_000)
	require.NoError(t, err)
	require.Len(t, second, len(first))
	for i := range first {
		require.Equal(t, first[i].Start, second[i].Start)
		require.Equal(t, first[i].Duration, second[i].Duration)
		require.Equal(t, first[i].Size, second[i].Size)
	}
}

func TestSplit_OversizedPartIsSplitAgain(t *testing.T) {
	f := newFakeMedia()
	s := &Splitter{Cutter: f, Prober: f}
	in := media(t, f, "long.webm", 2_000, 100)
	// the first cut overshoots the limit, as a late keyframe would
	f.pad[in] = 300

	chunks, err := s.Split(context.Background(), in, 1_000)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	require.Equal(t, "long_part01_part01.webm", filepath.Base(chunks[0].Path))
	require.Equal(t, "long_part01_part02.webm", filepath.Base(chunks[1].Path))
	require.Equal(t, "long_part02.webm", filepath.Base(chunks[2].Path))
	require.Equal(t, 0.0, chunks[0].Start)
	require.Equal(t, 25.0, chunks[1].Start)
	require.Equal(t, 50.0, chunks[2].Start)
	for _, c := range chunks {
		require.LessOrEqual(t, c.Size, int64(1_000))
	}
	require.NoFileExists(t, filepath.Join(filepath.Dir(in), "long_part01.webm"))
}

func TestSplit_Unsplittable(t *testing.T) {
	f := newFakeMedia()
	s := &Splitter{Cutter: f, Prober: f}

	_, err := s.Split(context.Background(), media(t, f, "clip.flv", 2000, 10), 1000)
	require.Equal(t, faults.UnsplittableFormat, faults.CodeOf(err))

	noDur := media(t, f, "clip.mp4", 2000, 0)
	_, err = s.Split(context.Background(), noDur, 1000)
	require.Equal(t, faults.UnsplittableFormat, faults.CodeOf(err))
	require.Zero(t, f.cuts)
}

func TestSplit_CutFailureRemovesParts(t *testing.T) {
	f := newFakeMedia()
	f.failAt = 2
	s := &Splitter{Cutter: f, Prober: f}
	in := media(t, f, "clip.mp4", 3000, 30)

	_, err := s.Split(context.Background(), in, 1000)
	require.Equal(t, faults.UnsplittableFormat, faults.CodeOf(err))
	require.NoFileExists(t, filepath.Join(filepath.Dir(in), "clip_part01.mp4"))
	require.FileExists(t, in)
}

func TestSplit_StopsOnCancel(t *testing.T) {
	f := newFakeMedia()
	s := &Splitter{Cutter: f, Prober: f}
	in := media(t, f, "clip.mp4", 3000, 30)

	ctx, cancel := context.WithCancel(context.Background())
	f.onCut = cancel

	_, err := s.Split(ctx, in, 1000)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, f.cuts)
	require.NoFileExists(t, filepath.Join(filepath.Dir(in), "clip_part01.mp4"))
}

func TestSplit_DepthLimit(t *testing.T) {
	f := newFakeMedia()
	s := &Splitter{Cutter: f, Prober: f, MaxDepth: 1}
	in := media(t, f, "long.mp4", 2_000, 100)
	f.pad[in] = 300

	_, err := s.Split(context.Background(), in, 1_000)
	require.Equal(t, faults.UnsplittableFormat, faults.CodeOf(err))
}
