package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tidwall/btree"

	"pattern-sync/internal/faults"
	"pattern-sync/internal/logging"
	"pattern-sync/internal/metrics"
	"pattern-sync/internal/pattern"
)

// ErrStorageDisabled is returned by every call on a poisoned store.
var ErrStorageDisabled = faults.Newf(faults.InvariantViolation, "store", "", "storage disabled")

// Fingerprinter computes the bucket key of a pattern. *pattern.Hasher is the
// production implementation.
type Fingerprinter interface {
	Sum(p *pattern.Pattern) int
}

// Element is one record together with the path it was loaded from.
type Element struct {
	Path   string
	Record *pattern.Record
}

// Selection is the remembered cursor of a store.
type Selection struct {
	Path  string
	Index int
}

type entry struct {
	path   string
	record *pattern.Record
}

// Store is a mutex-guarded collection of pattern records indexed both by
// normalized path and by content fingerprint. Both indices always hold the
// same set of entries; when that stops being true the store poisons itself
// and refuses any further call.
type Store struct {
	policy Policy
	hasher Fingerprinter

	mu       sync.Mutex
	paths    *btree.Map[string, *entry]
	buckets  map[int][]*entry
	selected string
	poisoned error
}

// New creates an empty store.
func New(policy Policy, hasher Fingerprinter) *Store {
	return &Store{
		policy:  policy,
		hasher:  hasher,
		paths:   btree.NewMap[string, *entry](0),
		buckets: make(map[int][]*entry),
	}
}

// Name returns the policy name.
func (s *Store) Name() string { return s.policy.Name }

// Policy returns the storage policy.
func (s *Store) Policy() Policy { return s.policy }

// normalize turns a path into the case-insensitive absolute key of the path index.
func normalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	return strings.ToLower(abs), nil
}

func withSeparator(dir string) string {
	if strings.HasSuffix(dir, string(os.PathSeparator)) {
		return dir
	}
	return dir + string(os.PathSeparator)
}

func (s *Store) disabled() error {
	return fmt.Errorf("store %s: %w", s.policy.Name, ErrStorageDisabled)
}

// poison must be called with mu held.
func (s *Store) poison(cause error) error {
	if s.poisoned == nil {
		s.poisoned = cause
		metrics.StorePoisoned.WithLabelValues(s.policy.Name).Set(1)
		logging.Error("store %s: %v; this store will no longer update", s.policy.Name, cause)
	}
	return s.disabled()
}

// Add inserts the record for path. An existing record for the same path is
// replaced and reloaded is true.
func (s *Store) Add(path string, rec *pattern.Record) (reloaded bool, err error) {
	if rec == nil || rec.Pattern == nil {
		return false, fmt.Errorf("store %s: add %s: nil record", s.policy.Name, path)
	}
	key, err := normalize(path)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.poisoned != nil {
		return false, s.disabled()
	}

	if old, ok := s.paths.Get(key); ok {
		if err := s.removeLocked(key, old); err != nil {
			return false, err
		}
		reloaded = true
	}

	e := &entry{path: path, record: rec}
	s.paths.Set(key, e)
	h := s.hasher.Sum(rec.Pattern)
	s.buckets[h] = append(s.buckets[h], e)

	op := "add"
	if reloaded {
		op = "reload"
	}
	metrics.StoreOperationsTotal.WithLabelValues(s.policy.Name, op).Inc()
	logging.Debug("store %s: %s %s (tag %q, hash %d)", s.policy.Name, op, path, rec.Tag, h)
	return reloaded, nil
}

// Remove drops the record for path. Removing an absent path is a no-op.
func (s *Store) Remove(path string) (bool, error) {
	key, err := normalize(path)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.poisoned != nil {
		return false, s.disabled()
	}

	e, ok := s.paths.Get(key)
	if !ok {
		return false, nil
	}
	if err := s.removeLocked(key, e); err != nil {
		return false, err
	}
	if s.selected == key {
		s.selected = ""
	}

	metrics.StoreOperationsTotal.WithLabelValues(s.policy.Name, "remove").Inc()
	logging.Debug("store %s: remove %s", s.policy.Name, e.path)
	return true, nil
}

// removeLocked takes e out of its bucket and the path index. The entry is
// matched by identity since different patterns may share a fingerprint.
func (s *Store) removeLocked(key string, e *entry) error {
	h := s.hasher.Sum(e.record.Pattern)
	bucket := s.buckets[h]
	idx := -1
	for i, candidate := range bucket {
		if candidate == e {
			idx = i
			break
		}
	}
	if idx < 0 {
		return s.poison(faults.Newf(faults.InvariantViolation, "remove", e.path,
			"record missing from hash bucket %d", h))
	}

	if len(bucket) == 1 {
		delete(s.buckets, h)
	} else {
		s.buckets[h] = append(bucket[:idx:idx], bucket[idx+1:]...)
	}
	s.paths.Delete(key)
	return nil
}

// Get returns the record stored for path, or nil.
func (s *Store) Get(path string) (*pattern.Record, error) {
	key, err := normalize(path)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.poisoned != nil {
		return nil, s.disabled()
	}
	if e, ok := s.paths.Get(key); ok {
		return e.record, nil
	}
	return nil, nil
}

// Has reports whether a record is stored for path.
func (s *Store) Has(path string) (bool, error) {
	rec, err := s.Get(path)
	return rec != nil, err
}

// At returns the element at position index in path order.
func (s *Store) At(index int) (Element, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.poisoned != nil {
		return Element{}, false, s.disabled()
	}
	_, e, ok := s.paths.GetAt(index)
	if !ok {
		return Element{}, false, nil
	}
	return Element{Path: e.path, Record: e.record}, true, nil
}

// Count returns the number of records.
func (s *Store) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.poisoned != nil {
		return 0, s.disabled()
	}
	return s.paths.Len(), nil
}

// Elements returns a point-in-time copy of the store ordered by normalized
// path. Records are immutable and may be kept; the slice is never updated.
func (s *Store) Elements() ([]Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.poisoned != nil {
		return nil, s.disabled()
	}
	out := make([]Element, 0, s.paths.Len())
	s.paths.Scan(func(_ string, e *entry) bool {
		out = append(out, Element{Path: e.path, Record: e.record})
		return true
	})
	return out, nil
}

// GetFirst clamps *index into [0, Count). When keepIfValid is false or the
// cursor is out of range it is reset to the first element. An empty store
// returns (nil, "", 0) and resets the cursor to 0.
func (s *Store) GetFirst(index *int, keepIfValid bool) (*pattern.Record, string, int, error) {
	return s.cursor(index, keepIfValid, false)
}

// GetLast is GetFirst defaulting to the last element.
func (s *Store) GetLast(index *int, keepIfValid bool) (*pattern.Record, string, int, error) {
	return s.cursor(index, keepIfValid, true)
}

func (s *Store) cursor(index *int, keepIfValid, last bool) (*pattern.Record, string, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.poisoned != nil {
		return nil, "", 0, s.disabled()
	}

	n := s.paths.Len()
	if n == 0 {
		*index = 0
		return nil, "", 0, nil
	}
	if !keepIfValid || *index < 0 || *index >= n {
		if last {
			*index = n - 1
		} else {
			*index = 0
		}
	}
	_, e, _ := s.paths.GetAt(*index)
	return e.record, e.path, n, nil
}

// Clear drops every record and returns how many there were.
func (s *Store) Clear() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.poisoned != nil {
		return 0, s.disabled()
	}
	n := s.paths.Len()
	s.paths.Clear()
	s.buckets = make(map[int][]*entry)
	s.selected = ""

	metrics.StoreOperationsTotal.WithLabelValues(s.policy.Name, "clear").Inc()
	logging.Debug("store %s: cleared %d records", s.policy.Name, n)
	return n, nil
}

// PathsUnder returns the stored paths below dir, in path order.
func (s *Store) PathsUnder(dir string) ([]string, error) {
	key, err := normalize(dir)
	if err != nil {
		return nil, err
	}
	prefix := withSeparator(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.poisoned != nil {
		return nil, s.disabled()
	}
	var out []string
	s.paths.Ascend(prefix, func(k string, e *entry) bool {
		if !strings.HasPrefix(k, prefix) {
			return false
		}
		out = append(out, e.path)
		return true
	})
	return out, nil
}

// Select remembers path as the current cursor. It reports false when no
// record is stored for path.
func (s *Store) Select(path string) (bool, error) {
	key, err := normalize(path)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.poisoned != nil {
		return false, s.disabled()
	}
	if _, ok := s.paths.Get(key); !ok {
		return false, nil
	}
	s.selected = key
	return true, nil
}

// Selection returns the selected path and its current index. The index is
// recomputed on every call, so reloads of the selected path and changes
// elsewhere in the store are reflected.
func (s *Store) Selection() (Selection, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.poisoned != nil {
		return Selection{}, false, s.disabled()
	}
	if s.selected == "" {
		return Selection{}, false, nil
	}
	e, ok := s.paths.Get(s.selected)
	if !ok {
		return Selection{}, false, nil
	}
	idx := 0
	s.paths.Scan(func(k string, _ *entry) bool {
		if k == s.selected {
			return false
		}
		idx++
		return true
	})
	return Selection{Path: e.path, Index: idx}, true, nil
}

// Verify checks that both indices hold exactly the same entries and poisons
// the store when they do not.
func (s *Store) Verify() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.poisoned != nil {
		return s.disabled()
	}

	inBuckets := 0
	for h, bucket := range s.buckets {
		if len(bucket) == 0 {
			return s.poison(faults.Newf(faults.InvariantViolation, "verify", "", "empty bucket %d", h))
		}
		for _, e := range bucket {
			key, err := normalize(e.path)
			if err != nil {
				return err
			}
			if indexed, ok := s.paths.Get(key); !ok || indexed != e {
				return s.poison(faults.Newf(faults.InvariantViolation, "verify", e.path,
					"bucket %d entry not in path index", h))
			}
			if got := s.hasher.Sum(e.record.Pattern); got != h {
				return s.poison(faults.Newf(faults.InvariantViolation, "verify", e.path,
					"entry in bucket %d hashes to %d", h, got))
			}
			inBuckets++
		}
	}
	if n := s.paths.Len(); n != inBuckets {
		return s.poison(faults.Newf(faults.InvariantViolation, "verify", "",
			"path index holds %d records, buckets hold %d", n, inBuckets))
	}
	return nil
}

// Stats reports the current sizes for the metrics collector.
func (s *Store) Stats() (metrics.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.poisoned != nil {
		return metrics.Stats{Poisoned: true}, s.disabled()
	}
	return metrics.Stats{Records: s.paths.Len(), Buckets: len(s.buckets)}, nil
}

// Poisoned returns the violation that disabled the store, or nil.
func (s *Store) Poisoned() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.poisoned
}

// IsDisabled reports whether err came from a poisoned store.
func IsDisabled(err error) bool {
	return errors.Is(err, ErrStorageDisabled)
}
