package syncer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pattern-sync/internal/store"
)

func startWatcher(t *testing.T, e *Engine, stores ...*store.Store) *Watcher {
	t.Helper()
	w, err := NewWatcher(e, stores...)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func eventuallyCount(t *testing.T, s *store.Store, want int) {
	t.Helper()
	assert.Eventually(t, func() bool {
		n, err := s.Count()
		return err == nil && n == want
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWatcherTracksFiles(t *testing.T) {
	s, root := newStore(t, "patterns")
	e := startEngine(t)
	startWatcher(t, e, s)

	path := filepath.Join(root, "cat!0.bmp")
	writeGlyph(t, path, 0)
	eventuallyCount(t, s, 1)

	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Remove(path))
	eventuallyCount(t, s, 0)
}

func TestWatcherFollowsDirectories(t *testing.T) {
	s, root := newStore(t, "patterns")
	e := startEngine(t)
	startWatcher(t, e, s)

	// Files written before the directory is moved in are found by expansion.
	staging := t.TempDir()
	writeGlyph(t, filepath.Join(staging, "sub", "a!0.bmp"), 0)
	writeGlyph(t, filepath.Join(staging, "sub", "b!0.bmp"), 1)
	sub := filepath.Join(root, "sub")
	require.NoError(t, os.Rename(filepath.Join(staging, "sub"), sub))
	eventuallyCount(t, s, 2)

	require.NoError(t, os.RemoveAll(sub))
	eventuallyCount(t, s, 0)
}

func TestWatcherReattachesRecreatedRoot(t *testing.T) {
	s, root := newStore(t, "patterns")
	e := startEngine(t)
	startWatcher(t, e, s)

	writeGlyph(t, filepath.Join(root, "cat!0.bmp"), 0)
	eventuallyCount(t, s, 1)

	require.NoError(t, os.RemoveAll(root))
	eventuallyCount(t, s, 0)

	require.NoError(t, os.Mkdir(root, 0o755))
	writeGlyph(t, filepath.Join(root, "dog!0.bmp"), 1)
	eventuallyCount(t, s, 1)
	has, err := s.Has(filepath.Join(root, "dog!0.bmp"))
	require.NoError(t, err)
	assert.True(t, has)
}

func TestWatcherIgnoresOtherStores(t *testing.T) {
	patterns, pRoot := newStore(t, "patterns")
	inputs, iRoot := newStore(t, "inputs")
	e := startEngine(t)
	startWatcher(t, e, patterns, inputs)

	writeGlyph(t, filepath.Join(iRoot, "x!0.bmp"), 0)
	eventuallyCount(t, inputs, 1)
	assert.Zero(t, count(t, patterns))

	writeGlyph(t, filepath.Join(pRoot, "y!0.bmp"), 0)
	eventuallyCount(t, patterns, 1)
	assert.Equal(t, 1, count(t, inputs))
}

func TestHandleTranslatesEvents(t *testing.T) {
	s, root := newStore(t, "patterns")
	e := NewEngine(testLoader())
	w := &Watcher{engine: e, stores: []*store.Store{s}}
	path := filepath.Join(root, "cat!0.bmp")
	ctx := context.Background()

	w.handle(ctx, fsnotify.Event{Name: path, Op: fsnotify.Chmod})
	assert.Zero(t, e.Pending())

	w.handle(ctx, fsnotify.Event{Name: path, Op: fsnotify.Write})
	w.handle(ctx, fsnotify.Event{Name: path, Op: fsnotify.Rename})
	w.handle(ctx, fsnotify.Event{Name: root, Op: fsnotify.Remove})

	require.Equal(t, 3, e.Pending())
	tasks := e.queue
	assert.Equal(t, Changed, tasks[0].Kind)
	assert.Equal(t, Renamed, tasks[1].Kind)
	assert.Equal(t, path, tasks[1].OldPath)
	assert.True(t, tasks[1].OutOfScope)
	assert.False(t, tasks[1].IntoScope)
	assert.Equal(t, Cleared, tasks[2].Kind)
}

func TestEventType(t *testing.T) {
	assert.Equal(t, "create", eventType(fsnotify.Create|fsnotify.Write))
	assert.Equal(t, "rename", eventType(fsnotify.Rename))
	assert.Equal(t, "chmod", eventType(fsnotify.Chmod))
}
