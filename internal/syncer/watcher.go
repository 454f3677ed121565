package syncer

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"pattern-sync/internal/logging"
	"pattern-sync/internal/metrics"
	"pattern-sync/internal/store"
)

// Watcher turns fsnotify events under the store roots into engine tasks.
//
// Events for tracked files are translated in place. Anything else may be a
// directory, so it is handed to a short-lived goroutine that re-enumerates
// the subtree; the event loop itself never touches a store.
type Watcher struct {
	engine *Engine
	stores []*store.Store
	fsw    *fsnotify.Watcher

	cancel context.CancelFunc
	loop   sync.WaitGroup
	expand sync.WaitGroup
}

// NewWatcher creates a watcher feeding engine for the given stores. Store
// roots must be disjoint.
func NewWatcher(engine *Engine, stores ...*store.Store) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		metrics.WatcherErrors.Inc()
		return nil, err
	}
	return &Watcher{engine: engine, stores: stores, fsw: fsw}, nil
}

// Start watches every directory below the store roots and begins
// translating events. The parent of each root is watched as well, so a root
// that is deleted and created again is picked up.
func (w *Watcher) Start(ctx context.Context) error {
	for _, s := range w.stores {
		root := s.Policy().Root
		if _, err := os.Stat(root); err != nil {
			return err
		}
		count := w.addTree(ctx, root)
		logging.Debug("Watching %d directories under %s", count, root)

		if parent := filepath.Dir(root); parent != root {
			if err := w.fsw.Add(parent); err != nil {
				logging.Warn("Store %s will not be reattached if %s is recreated: %v", s.Name(), root, err)
				metrics.WatcherErrors.Inc()
			}
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.loop.Add(1)
	go w.run(ctx)
	return nil
}

// Close stops the event loop, waits for pending expansions and releases the
// OS watches.
func (w *Watcher) Close() error {
	if w.cancel != nil {
		w.cancel()
	}
	w.loop.Wait()
	w.expand.Wait()
	metrics.WatchedDirectories.Set(0)
	return w.fsw.Close()
}

// addTree watches dir and every non-hidden directory below it and returns
// how many watches were added.
func (w *Watcher) addTree(ctx context.Context, dir string) int {
	count := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if addErr := w.fsw.Add(path); addErr != nil {
			logging.Warn("failed to add path to watcher %s: %v", path, addErr)
			metrics.WatcherErrors.Inc()
			return nil
		}
		count++
		metrics.WatchedDirectories.Inc()
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logging.Warn("failed to walk %s for watcher: %v", dir, err)
		metrics.WatcherErrors.Inc()
	}
	return count
}

func (w *Watcher) run(ctx context.Context) {
	defer w.loop.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ctx, event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logging.Error("Watcher error: %v", err)
			metrics.WatcherErrors.Inc()
		}
	}
}

func eventType(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Create):
		return "create"
	case op.Has(fsnotify.Write):
		return "write"
	case op.Has(fsnotify.Remove):
		return "remove"
	case op.Has(fsnotify.Rename):
		return "rename"
	case op.Has(fsnotify.Chmod):
		return "chmod"
	default:
		return "unknown"
	}
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	metrics.WatcherEventsTotal.WithLabelValues(eventType(event.Op)).Inc()

	if event.Op == fsnotify.Chmod {
		return
	}

	if s := w.rootOf(event.Name); s != nil {
		switch {
		case event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename):
			logging.Warn("Root %s of store %s disappeared", event.Name, s.Name())
			w.engine.Enqueue(ClearedTask(s))
		case event.Op.Has(fsnotify.Create):
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				logging.Info("Root %s of store %s reappeared", event.Name, s.Name())
				w.dispatch(ctx, func() { w.expandCreated(ctx, s, event.Name) })
			}
		}
		return
	}

	s := w.storeFor(event.Name)
	if s == nil {
		return
	}

	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.dispatch(ctx, func() { w.expandCreated(ctx, s, event.Name) })
			return
		}
	}

	if !s.Policy().Tracks(event.Name) {
		if event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename) {
			w.dispatch(ctx, func() { w.expandRemoved(s, event.Name) })
		}
		return
	}

	switch {
	case event.Op.Has(fsnotify.Create):
		w.engine.Enqueue(CreatedTask(s, event.Name))
	case event.Op.Has(fsnotify.Write):
		w.engine.Enqueue(ChangedTask(s, event.Name))
	case event.Op.Has(fsnotify.Remove):
		w.engine.Enqueue(RemovedTask(s, event.Name))
	case event.Op.Has(fsnotify.Rename):
		// fsnotify reports the old name only; the new name arrives as Create.
		w.engine.Enqueue(Task{Kind: Renamed, Store: s, OldPath: event.Name, OutOfScope: true})
	}
}

func (w *Watcher) dispatch(ctx context.Context, fn func()) {
	if ctx.Err() != nil {
		return
	}
	w.expand.Add(1)
	go func() {
		defer w.expand.Done()
		fn()
	}()
}

// expandCreated watches a new directory and queues every tracked file in it.
func (w *Watcher) expandCreated(ctx context.Context, s *store.Store, dir string) {
	w.addTree(ctx, dir)

	var tasks []Task
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if !d.IsDir() && s.Policy().Tracks(path) {
			tasks = append(tasks, CreatedTask(s, path))
		}
		return nil
	})
	if err != nil {
		logging.Warn("failed to enumerate new directory %s: %v", dir, err)
	}
	logging.Debug("Directory %s appeared with %d tracked files", dir, len(tasks))
	w.engine.Enqueue(tasks...)
}

// expandRemoved queues a Removed task for every stored path below a
// directory that went away.
func (w *Watcher) expandRemoved(s *store.Store, dir string) {
	paths, err := s.PathsUnder(dir)
	if err != nil {
		logging.Warn("failed to expand removal of %s: %v", dir, err)
		return
	}
	if len(paths) == 0 {
		return
	}
	tasks := make([]Task, 0, len(paths))
	for _, p := range paths {
		tasks = append(tasks, RemovedTask(s, p))
	}
	logging.Debug("Directory %s removed with %d stored files", dir, len(paths))
	w.engine.Enqueue(tasks...)
}

func (w *Watcher) rootOf(path string) *store.Store {
	for _, s := range w.stores {
		if sameDir(s.Policy().Root, path) {
			return s
		}
	}
	return nil
}

func (w *Watcher) storeFor(path string) *store.Store {
	for _, s := range w.stores {
		if s.Policy().InScope(path) {
			return s
		}
	}
	return nil
}

func sameDir(a, b string) bool {
	aa, err := filepath.Abs(a)
	if err != nil {
		return false
	}
	bb, err := filepath.Abs(b)
	if err != nil {
		return false
	}
	return strings.EqualFold(aa, bb)
}
