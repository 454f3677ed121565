package syncer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pattern-sync/internal/bitmap"
	"pattern-sync/internal/filesystem"
	"pattern-sync/internal/pattern"
	"pattern-sync/internal/store"
)

const (
	testWidth  = 3
	testHeight = 2
)

func newStore(t *testing.T, name string) (*store.Store, string) {
	t.Helper()
	root := t.TempDir()
	policy := store.Policy{
		Name:      name,
		Root:      root,
		Extension: ".bmp",
		Bounds:    pattern.Exact(testWidth, testHeight),
	}
	return store.New(policy, pattern.NewHasher(pattern.DefaultPolynomial)), root
}

func testLoader() *bitmap.Loader {
	l := bitmap.NewLoader(pattern.NewBMPCodec())
	l.Retry = filesystem.RetryConfig{MaxAttempts: 2, Delay: time.Millisecond}
	return l
}

func glyph(seed byte) *pattern.Pattern {
	cells := make([]byte, testWidth*testHeight)
	for i := range cells {
		cells[i] = (byte(i) + seed) % 2
	}
	return pattern.MustNew(testWidth, testHeight, cells)
}

func writeGlyph(t *testing.T, path string, seed byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, bitmap.NewWriter(pattern.NewBMPCodec()).Save(path, glyph(seed)))
}

func startEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine(testLoader())
	e.Start(context.Background())
	t.Cleanup(e.Stop)
	return e
}

func syncNow(t *testing.T, e *Engine) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.Sync(ctx))
}

func count(t *testing.T, s *store.Store) int {
	t.Helper()
	n, err := s.Count()
	require.NoError(t, err)
	return n
}

func TestEngineAppliesInOrder(t *testing.T) {
	s, root := newStore(t, "patterns")
	e := startEngine(t)
	path := filepath.Join(root, "cat!0.bmp")
	writeGlyph(t, path, 0)

	e.Enqueue(CreatedTask(s, path), ChangedTask(s, path))
	syncNow(t, e)
	assert.Equal(t, 1, count(t, s))

	require.NoError(t, os.Remove(path))
	e.Enqueue(RemovedTask(s, path))
	syncNow(t, e)
	assert.Zero(t, count(t, s))
	assert.Equal(t, Idle, e.State())
	assert.Zero(t, e.Pending())
}

func TestEngineCreateChangeRemoveInterleaved(t *testing.T) {
	s, root := newStore(t, "patterns")
	e := NewEngine(testLoader())
	a := filepath.Join(root, "a!0.bmp")
	b := filepath.Join(root, "b!0.bmp")
	writeGlyph(t, a, 0)
	writeGlyph(t, b, 1)

	// Queue everything before the consumer runs. A is reported gone when
	// its Removed task is applied; B stays.
	e.Enqueue(CreatedTask(s, a), CreatedTask(s, b), ChangedTask(s, a), ChangedTask(s, b))
	e.Enqueue(RemovedTask(s, a), ChangedTask(s, b))
	e.exists = func(path string) bool { return path != a }
	assert.Equal(t, 6, e.Pending())

	e.Start(context.Background())
	t.Cleanup(e.Stop)
	syncNow(t, e)

	assert.Equal(t, 1, count(t, s))
	has, err := s.Has(a)
	require.NoError(t, err)
	assert.False(t, has)
	has, err = s.Has(b)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestRemovedSkippedWhenFileStillExists(t *testing.T) {
	s, root := newStore(t, "patterns")
	e := startEngine(t)
	path := filepath.Join(root, "cat!0.bmp")
	writeGlyph(t, path, 0)

	e.Enqueue(CreatedTask(s, path), RemovedTask(s, path))
	syncNow(t, e)

	rec, err := s.Get(path)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "cat", rec.Tag)
}

func TestChangedEvictsUnloadableFile(t *testing.T) {
	s, root := newStore(t, "patterns")
	e := startEngine(t)
	path := filepath.Join(root, "cat!0.bmp")
	writeGlyph(t, path, 0)

	e.Enqueue(CreatedTask(s, path))
	syncNow(t, e)
	require.Equal(t, 1, count(t, s))

	require.NoError(t, os.WriteFile(path, []byte("not a bitmap"), 0o644))
	e.Enqueue(ChangedTask(s, path))
	syncNow(t, e)
	assert.Zero(t, count(t, s))
}

func TestRenamedTask(t *testing.T) {
	s, root := newStore(t, "patterns")
	e := startEngine(t)
	oldPath := filepath.Join(root, "cat!0.bmp")
	newPath := filepath.Join(root, "dog!0.bmp")
	writeGlyph(t, oldPath, 0)

	e.Enqueue(CreatedTask(s, oldPath))
	syncNow(t, e)

	require.NoError(t, os.Rename(oldPath, newPath))
	task := RenamedTask(s, oldPath, newPath)
	assert.True(t, task.IntoScope)
	assert.True(t, task.OutOfScope)
	e.Enqueue(task)
	syncNow(t, e)

	has, err := s.Has(oldPath)
	require.NoError(t, err)
	assert.False(t, has)
	rec, err := s.Get(newPath)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "dog", rec.Tag)
}

func TestRenamedTaskScopeFlags(t *testing.T) {
	s, root := newStore(t, "patterns")
	tracked := filepath.Join(root, "cat!0.bmp")

	out := RenamedTask(s, tracked, filepath.Join(root, "cat!0.txt"))
	assert.True(t, out.OutOfScope)
	assert.False(t, out.IntoScope)

	in := RenamedTask(s, filepath.Join(t.TempDir(), "cat.bmp"), tracked)
	assert.False(t, in.OutOfScope)
	assert.True(t, in.IntoScope)
}

func TestClearedTask(t *testing.T) {
	s, root := newStore(t, "patterns")
	e := startEngine(t)
	for i, name := range []string{"a!0.bmp", "b!0.bmp"} {
		path := filepath.Join(root, name)
		writeGlyph(t, path, byte(i))
		e.Enqueue(CreatedTask(s, path))
	}
	syncNow(t, e)
	require.Equal(t, 2, count(t, s))

	e.Enqueue(ClearedTask(s))
	syncNow(t, e)
	assert.Zero(t, count(t, s))
}

func TestPauseHoldsConsumer(t *testing.T) {
	s, root := newStore(t, "patterns")
	e := startEngine(t)
	path := filepath.Join(root, "cat!0.bmp")
	writeGlyph(t, path, 0)

	resume := e.Pause()
	e.Enqueue(CreatedTask(s, path))
	assert.Never(t, func() bool {
		n, _ := s.Count()
		return n > 0
	}, 100*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, 1, e.Pending())

	resume()
	resume()
	syncNow(t, e)
	assert.Equal(t, 1, count(t, s))
}

func TestSyncBeforeStart(t *testing.T) {
	e := NewEngine(testLoader())
	assert.ErrorIs(t, e.Sync(context.Background()), ErrStopped)
}

func TestSyncHonorsContext(t *testing.T) {
	e := NewEngine(testLoader())
	e.runMu.Lock()
	e.stopped = make(chan struct{})
	e.runMu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, e.Sync(ctx), context.Canceled)
}

func TestPoisonedStateIsSticky(t *testing.T) {
	s, _ := newStore(t, "patterns")
	e := NewEngine(testLoader())

	e.markPoisoned(s, store.ErrStorageDisabled)
	assert.Equal(t, Poisoned, e.State())

	e.setState(Idle)
	assert.Equal(t, Poisoned, e.State())
	assert.Equal(t, "poisoned", e.State().String())
}

func TestTaskString(t *testing.T) {
	s, _ := newStore(t, "patterns")
	assert.Equal(t, "created a.bmp", CreatedTask(s, "a.bmp").String())
	assert.Equal(t, "renamed a.bmp -> b.bmp", RenamedTask(s, "a.bmp", "b.bmp").String())
	assert.Equal(t, "cleared patterns", ClearedTask(s).String())
	assert.Equal(t, "kind(42)", Kind(42).String())
}
