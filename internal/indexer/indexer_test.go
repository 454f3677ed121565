package indexer

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pattern-sync/internal/bitmap"
	"pattern-sync/internal/filesystem"
	"pattern-sync/internal/pattern"
	"pattern-sync/internal/store"
)

func newTarget(t *testing.T) (*store.Store, string) {
	t.Helper()
	root := t.TempDir()
	policy := store.Policy{
		Name:      "patterns",
		Root:      root,
		Extension: ".bmp",
		Bounds:    pattern.Exact(3, 2),
	}
	return store.New(policy, pattern.NewHasher(pattern.DefaultPolynomial)), root
}

func loader() *bitmap.Loader {
	l := bitmap.NewLoader(pattern.NewBMPCodec())
	l.Retry = filesystem.RetryConfig{MaxAttempts: 2, Delay: time.Millisecond}
	return l
}

func writeGlyph(t *testing.T, path string, w, h int, seed byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	cells := make([]byte, w*h)
	for i := range cells {
		cells[i] = (byte(i) + seed) % 2
	}
	require.NoError(t, bitmap.NewWriter(pattern.NewBMPCodec()).Save(path, pattern.MustNew(w, h, cells)))
}

func TestScanLoadsTrackedFiles(t *testing.T) {
	s, root := newTarget(t)
	writeGlyph(t, filepath.Join(root, "cat!0.bmp"), 3, 2, 0)
	writeGlyph(t, filepath.Join(root, "cat!1.bmp"), 3, 2, 1)
	writeGlyph(t, filepath.Join(root, "sub", "dog!0.bmp"), 3, 2, 0)
	writeGlyph(t, filepath.Join(root, "wide.bmp"), 5, 2, 0)
	writeGlyph(t, filepath.Join(root, ".hidden", "ghost.bmp"), 3, 2, 0)
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644))

	res, err := Scan(context.Background(), s, loader(), 4)
	require.NoError(t, err)

	assert.Equal(t, "patterns", res.Store)
	assert.Equal(t, 3, res.Loaded)
	assert.Equal(t, 1, res.Failed)
	assert.Zero(t, res.Removed)

	n, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	rec, err := s.Get(filepath.Join(root, "sub", "dog!0.bmp"))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "dog", rec.Tag)
}

func TestRescanDropsMissingFiles(t *testing.T) {
	s, root := newTarget(t)
	keep := filepath.Join(root, "keep.bmp")
	gone := filepath.Join(root, "gone.bmp")
	writeGlyph(t, keep, 3, 2, 0)
	writeGlyph(t, gone, 3, 2, 1)

	_, err := Scan(context.Background(), s, loader(), 2)
	require.NoError(t, err)
	require.NoError(t, os.Remove(gone))

	res, err := Scan(context.Background(), s, loader(), 2)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Loaded)
	assert.Equal(t, 1, res.Removed)

	rec, err := s.Get(gone)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestScanMissingRoot(t *testing.T) {
	s, root := newTarget(t)
	require.NoError(t, os.RemoveAll(root))

	_, err := Scan(context.Background(), s, loader(), 1)
	assert.Error(t, err)
}

func TestScanCanceled(t *testing.T) {
	s, root := newTarget(t)
	writeGlyph(t, filepath.Join(root, "a.bmp"), 3, 2, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Scan(ctx, s, loader(), 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIndexerReadiness(t *testing.T) {
	s, root := newTarget(t)
	writeGlyph(t, filepath.Join(root, "a.bmp"), 3, 2, 0)

	idx := New(loader(), 2, s)
	assert.False(t, idx.IsReady())
	assert.False(t, idx.GetHealthStatus().Ready)

	results, err := idx.ScanAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].Loaded)

	status := idx.GetHealthStatus()
	assert.True(t, idx.IsReady())
	assert.True(t, status.Ready)
	assert.False(t, status.Scanning)
	assert.Empty(t, status.ScanError)
	assert.False(t, status.LastScanned.IsZero())
	assert.Len(t, status.Results, 1)
}

func TestIndexerReportsScanError(t *testing.T) {
	s, root := newTarget(t)
	require.NoError(t, os.RemoveAll(root))

	idx := New(loader(), 1, s)
	_, err := idx.ScanAll(context.Background())
	require.Error(t, err)

	status := idx.GetHealthStatus()
	assert.True(t, status.Ready)
	assert.NotEmpty(t, status.ScanError)
}

type countingGate struct {
	waits atomic.Int32
	err   error
}

func (g *countingGate) Wait(context.Context) error {
	g.waits.Add(1)
	return g.err
}

func TestIndexerWaitsOnGate(t *testing.T) {
	s, root := newTarget(t)
	writeGlyph(t, filepath.Join(root, "a.bmp"), 3, 2, 0)
	writeGlyph(t, filepath.Join(root, "b.bmp"), 3, 2, 1)

	gate := &countingGate{}
	idx := New(loader(), 2, s)
	idx.SetGate(gate)

	results, err := idx.ScanAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, results[0].Loaded)
	assert.Equal(t, int32(2), gate.waits.Load())
}

func TestIndexerGateAbortsScan(t *testing.T) {
	s, root := newTarget(t)
	writeGlyph(t, filepath.Join(root, "a.bmp"), 3, 2, 0)

	idx := New(loader(), 1, s)
	idx.SetGate(&countingGate{err: context.DeadlineExceeded})

	_, err := idx.ScanAll(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	n, err := s.Count()
	require.NoError(t, err)
	assert.Zero(t, n)
}
