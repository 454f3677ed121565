package syncer

import (
	"fmt"

	"pattern-sync/internal/store"
)

// Kind identifies what a task does to its store.
type Kind int

const (
	// Created loads a new file and adds it.
	Created Kind = iota
	// Changed reloads an existing file.
	Changed
	// Removed drops a file that is gone from disk.
	Removed
	// Renamed moves a record between paths.
	Renamed
	// Cleared drops every record of the store.
	Cleared

	barrier
)

func (k Kind) String() string {
	switch k {
	case Created:
		return "created"
	case Changed:
		return "changed"
	case Removed:
		return "removed"
	case Renamed:
		return "renamed"
	case Cleared:
		return "cleared"
	case barrier:
		return "barrier"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Task is one queued change to apply to a store.
//
// For Renamed, OldPath is the previous name and Path the new one.
// OutOfScope means the old path was tracked and its record must go;
// IntoScope means the new path is tracked and must be loaded. Both set
// renames inside the store: remove old, then add new.
type Task struct {
	Kind       Kind
	Store      *store.Store
	Path       string
	OldPath    string
	IntoScope  bool
	OutOfScope bool

	done chan struct{}
}

func (t Task) String() string {
	if t.Kind == Renamed {
		return fmt.Sprintf("%s %s -> %s", t.Kind, t.OldPath, t.Path)
	}
	if t.Kind == Cleared && t.Store != nil {
		return fmt.Sprintf("%s %s", t.Kind, t.Store.Name())
	}
	return fmt.Sprintf("%s %s", t.Kind, t.Path)
}

// CreatedTask returns a Created task for path.
func CreatedTask(s *store.Store, path string) Task {
	return Task{Kind: Created, Store: s, Path: path}
}

// ChangedTask returns a Changed task for path.
func ChangedTask(s *store.Store, path string) Task {
	return Task{Kind: Changed, Store: s, Path: path}
}

// RemovedTask returns a Removed task for path.
func RemovedTask(s *store.Store, path string) Task {
	return Task{Kind: Removed, Store: s, Path: path}
}

// RenamedTask returns a Renamed task, deriving the scope flags from the
// store policy.
func RenamedTask(s *store.Store, oldPath, newPath string) Task {
	p := s.Policy()
	return Task{
		Kind:       Renamed,
		Store:      s,
		Path:       newPath,
		OldPath:    oldPath,
		IntoScope:  p.Tracks(newPath),
		OutOfScope: p.Tracks(oldPath),
	}
}

// ClearedTask returns a task dropping every record of s.
func ClearedTask(s *store.Store) Task {
	return Task{Kind: Cleared, Store: s}
}
