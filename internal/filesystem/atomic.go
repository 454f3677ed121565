package filesystem

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"pattern-sync/internal/faults"
	"pattern-sync/internal/logging"
)

// TempSuffix marks files being written by WriteFileAtomic. Watchers ignore
// them because the suffix changes the extension.
const TempSuffix = ".tmp~"

// TempPath returns the temp file name used while writing path.
func TempPath(path string) string {
	return path + TempSuffix
}

// WriteFileAtomic writes through a temp file, removes any existing file at
// path and renames the temp file into place. Failures are not retried:
//
//   - temp file gone before the rename: faults.Persistence
//   - existing target cannot be removed or replaced: faults.PersistenceConflict
func WriteFileAtomic(path string, write func(w io.Writer) error) error {
	return writeAtomic(path, write, false)
}

// CreateFileAtomic is WriteFileAtomic for a path expected to be free. The
// temp file is hard-linked into place, so a file that appeared at path in
// the meantime is left alone and reported as faults.PersistenceConflict.
func CreateFileAtomic(path string, write func(w io.Writer) error) error {
	return writeAtomic(path, write, true)
}

func writeAtomic(path string, write func(w io.Writer) error, exclusive bool) (err error) {
	volume := defaultResolver.Resolve(path)
	defer func() {
		if obs := observe(); obs != nil {
			outcome := "success"
			switch faults.KindOf(err) {
			case faults.Persistence:
				outcome = "save_failed"
			case faults.PersistenceConflict:
				outcome = "conflict"
			}
			obs.ObserveWrite(volume, outcome)
		}
	}()

	tmp := TempPath(path)
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return faults.New(faults.Persistence, "create temp file", tmp, err)
	}

	if werr := write(f); werr != nil {
		_ = f.Close()
		removeTemp(tmp)
		return faults.New(faults.Persistence, "write temp file", tmp, werr)
	}
	if serr := f.Sync(); serr != nil {
		logging.Debug("fsync of %s failed: %v", tmp, serr)
	}
	if cerr := f.Close(); cerr != nil {
		removeTemp(tmp)
		return faults.New(faults.Persistence, "close temp file", tmp, cerr)
	}

	if _, serr := os.Stat(tmp); errors.Is(serr, fs.ErrNotExist) {
		return faults.New(faults.Persistence, "save", path,
			fmt.Errorf("temp file %s vanished before rename", tmp))
	}

	if exclusive {
		lerr := os.Link(tmp, path)
		removeTemp(tmp)
		switch {
		case lerr == nil:
			return nil
		case errors.Is(lerr, fs.ErrExist):
			return faults.New(faults.PersistenceConflict, "create", path, lerr)
		default:
			return faults.New(faults.Persistence, "create", path, lerr)
		}
	}

	if rerr := os.Remove(path); rerr != nil && !errors.Is(rerr, fs.ErrNotExist) {
		removeTemp(tmp)
		return faults.New(faults.PersistenceConflict, "overwrite", path, rerr)
	}

	if rerr := os.Rename(tmp, path); rerr != nil {
		if _, serr := os.Stat(tmp); errors.Is(serr, fs.ErrNotExist) {
			return faults.New(faults.Persistence, "save", path,
				fmt.Errorf("temp file %s vanished before rename: %w", tmp, rerr))
		}
		removeTemp(tmp)
		return faults.New(faults.PersistenceConflict, "overwrite", path, rerr)
	}

	return nil
}

func removeTemp(tmp string) {
	if err := os.Remove(tmp); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logging.Warn("failed to remove temp file %s: %v", tmp, err)
	}
}
