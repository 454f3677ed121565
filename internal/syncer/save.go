package syncer

import (
	"fmt"
	"os"

	"pattern-sync/internal/faults"
	"pattern-sync/internal/filesystem"
	"pattern-sync/internal/logging"
	"pattern-sync/internal/naming"
	"pattern-sync/internal/pattern"
	"pattern-sync/internal/store"
)

// PatternWriter persists one pattern to a path that must still be free.
// *bitmap.Writer is the production implementation.
type PatternWriter interface {
	Create(path string, p *pattern.Pattern) error
}

// SaveItem is one pattern to save under a requested tag. The tag may carry
// a numeric suffix ("cat!4"), which becomes the first suffix probed.
type SaveItem struct {
	Tag     string
	Pattern *pattern.Pattern
}

// Saver writes batches of patterns into a store's directory under
// collision-free tags.
type Saver struct {
	Writer PatternWriter
	// Engine receives a Created task per written file. May be nil, in which
	// case the files are picked up by the watcher or the next scan.
	Engine *Engine
}

// SaveBatch allocates a tag for every item, writes it and queues the new
// files for loading. It stops at the first failure and returns the paths
// written so far together with the error.
func (sv *Saver) SaveBatch(target *store.Store, items []SaveItem) ([]string, error) {
	policy := target.Policy()
	if _, err := target.Count(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(policy.Root, 0o755); err != nil {
		return nil, faults.New(faults.Persistence, "create directory", policy.Root, err)
	}

	alloc := naming.NewAllocator(policy.Root, policy.Sep(), func(tag string) bool {
		path := policy.PathFor(tag)
		if filesystem.Exists(path) {
			return true
		}
		held, err := target.Has(path)
		return held || err != nil
	})

	var written []string
	defer func() {
		if sv.Engine == nil || len(written) == 0 {
			return
		}
		tasks := make([]Task, 0, len(written))
		for _, path := range written {
			tasks = append(tasks, CreatedTask(target, path))
		}
		sv.Engine.Enqueue(tasks...)
	}()

	for _, item := range items {
		if item.Pattern == nil {
			return written, faults.Newf(faults.MalformedInput, "save", item.Tag, "no pattern")
		}

		name := naming.ParseName(item.Tag, policy.Sep())
		var start *uint16
		if name.HasNumber {
			start = &name.Number
		}
		tag, err := alloc.Allocate(name.Tag, start)
		if err != nil {
			return written, err
		}

		path := policy.PathFor(tag)
		if err := policy.Bounds.Check(path, item.Pattern.Width(), item.Pattern.Height()); err != nil {
			return written, err
		}
		if err := sv.Writer.Create(path, item.Pattern); err != nil {
			return written, fmt.Errorf("save %q: %w", tag, err)
		}
		written = append(written, path)
		logging.Debug("Saved %s as %s", item.Tag, path)
	}

	logging.Info("Saved %d patterns into %s", len(written), policy.Root)
	return written, nil
}
