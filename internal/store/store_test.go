package store

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pattern-sync/internal/faults"
	"pattern-sync/internal/pattern"
)

type constHasher int

func (c constHasher) Sum(*pattern.Pattern) int { return int(c) }

func testPolicy(root string) Policy {
	return Policy{
		Name:      "patterns",
		Root:      root,
		Extension: ".bmp",
		Separator: "!",
		Bounds:    pattern.Exact(2, 2),
	}
}

func rec(tag string, cells ...byte) *pattern.Record {
	return pattern.NewRecord(pattern.MustNew(2, 2, cells), tag)
}

func newStore(t *testing.T) (*Store, string) {
	t.Helper()
	root := t.TempDir()
	return New(testPolicy(root), pattern.NewHasher(pattern.DefaultPolynomial)), root
}

func count(t *testing.T, s *Store) int {
	t.Helper()
	n, err := s.Count()
	require.NoError(t, err)
	return n
}

func TestAddRemoveRoundTrip(t *testing.T) {
	s, root := newStore(t)
	path := filepath.Join(root, "cat!0.bmp")

	before := count(t, s)
	reloaded, err := s.Add(path, rec("cat", 1, 0, 0, 1))
	require.NoError(t, err)
	assert.False(t, reloaded)
	assert.Equal(t, before+1, count(t, s))

	removed, err := s.Remove(path)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, before, count(t, s))

	got, err := s.Get(path)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 0, s.bucketCount())
	require.NoError(t, s.Verify())
}

func TestRemoveAbsentIsNoop(t *testing.T) {
	s, root := newStore(t)

	removed, err := s.Remove(filepath.Join(root, "missing.bmp"))
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestPathsAreCaseInsensitive(t *testing.T) {
	s, root := newStore(t)
	_, err := s.Add(filepath.Join(root, "Cat!0.BMP"), rec("Cat", 1, 1, 0, 0))
	require.NoError(t, err)

	got, err := s.Get(filepath.Join(root, "cat!0.bmp"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Cat", got.Tag)

	elems, err := s.Elements()
	require.NoError(t, err)
	require.Len(t, elems, 1)
	assert.Equal(t, filepath.Join(root, "Cat!0.BMP"), elems[0].Path)

	removed, err := s.Remove(filepath.Join(root, "CAT!0.bmp"))
	require.NoError(t, err)
	assert.True(t, removed)
}

func TestHashCollisionIndependence(t *testing.T) {
	root := t.TempDir()
	s := New(testPolicy(root), constHasher(42))

	a := filepath.Join(root, "a.bmp")
	b := filepath.Join(root, "b.bmp")
	recA := rec("a", 1, 0, 0, 0)
	recB := rec("b", 0, 1, 1, 1)

	_, err := s.Add(a, recA)
	require.NoError(t, err)
	_, err = s.Add(b, recB)
	require.NoError(t, err)
	assert.Equal(t, 1, s.bucketCount())
	assert.Equal(t, 2, s.bucketLen(42))

	gotA, err := s.Get(a)
	require.NoError(t, err)
	assert.Same(t, recA, gotA)
	gotB, err := s.Get(b)
	require.NoError(t, err)
	assert.Same(t, recB, gotB)

	_, err = s.Remove(a)
	require.NoError(t, err)

	gotB, err = s.Get(b)
	require.NoError(t, err)
	assert.Same(t, recB, gotB)
	assert.Equal(t, 1, s.bucketLen(42))
	require.NoError(t, s.Verify())
}

func TestSameRecordUnderTwoPaths(t *testing.T) {
	root := t.TempDir()
	s := New(testPolicy(root), constHasher(7))
	shared := rec("x", 1, 1, 1, 1)

	_, err := s.Add(filepath.Join(root, "x!0.bmp"), shared)
	require.NoError(t, err)
	_, err = s.Add(filepath.Join(root, "x!1.bmp"), shared)
	require.NoError(t, err)

	_, err = s.Remove(filepath.Join(root, "x!0.bmp"))
	require.NoError(t, err)

	paths, err := s.PathsUnder(root)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "x!1.bmp")}, paths)
	require.NoError(t, s.Verify())
}

func TestReloadReplacesRecord(t *testing.T) {
	hasher := pattern.NewHasher(pattern.DefaultPolynomial)
	root := t.TempDir()
	s := New(testPolicy(root), hasher)
	path := filepath.Join(root, "cat!0.bmp")

	oldRec := rec("cat", 1, 0, 0, 0)
	newRec := rec("cat", 0, 0, 0, 1)
	require.NotEqual(t, hasher.Sum(oldRec.Pattern), hasher.Sum(newRec.Pattern))

	_, err := s.Add(path, oldRec)
	require.NoError(t, err)
	reloaded, err := s.Add(path, newRec)
	require.NoError(t, err)
	assert.True(t, reloaded)
	assert.Equal(t, 1, count(t, s))

	got, err := s.Get(path)
	require.NoError(t, err)
	assert.Same(t, newRec, got)
	assert.Equal(t, 0, s.bucketLen(hasher.Sum(oldRec.Pattern)))
	assert.Equal(t, 1, s.bucketLen(hasher.Sum(newRec.Pattern)))
}

func TestElementsIsSnapshot(t *testing.T) {
	s, root := newStore(t)
	for _, name := range []string{"dog!0.bmp", "cat!1.bmp", "cat!0.bmp"} {
		_, err := s.Add(filepath.Join(root, name), rec(strings.Split(name, "!")[0], 1, 0, 1, 0))
		require.NoError(t, err)
	}

	elems, err := s.Elements()
	require.NoError(t, err)
	require.Len(t, elems, 3)
	assert.Equal(t, "cat!0.bmp", filepath.Base(elems[0].Path))
	assert.Equal(t, "cat!1.bmp", filepath.Base(elems[1].Path))
	assert.Equal(t, "dog!0.bmp", filepath.Base(elems[2].Path))

	_, err = s.Clear()
	require.NoError(t, err)
	assert.Len(t, elems, 3)
	assert.Equal(t, "dog", elems[2].Record.Tag)
}

func TestAt(t *testing.T) {
	s, root := newStore(t)
	_, err := s.Add(filepath.Join(root, "b.bmp"), rec("b", 1, 1, 1, 0))
	require.NoError(t, err)
	_, err = s.Add(filepath.Join(root, "a.bmp"), rec("a", 1, 1, 0, 0))
	require.NoError(t, err)

	el, ok, err := s.At(0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", el.Record.Tag)

	_, ok, err = s.At(2)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = s.At(-1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCursor(t *testing.T) {
	s, root := newStore(t)

	idx := 5
	r, path, n, err := s.GetFirst(&idx, true)
	require.NoError(t, err)
	assert.Nil(t, r)
	assert.Empty(t, path)
	assert.Zero(t, n)
	assert.Zero(t, idx)

	for _, tag := range []string{"a", "b", "c"} {
		_, err := s.Add(filepath.Join(root, tag+".bmp"), rec(tag, 1, 0, 0, 0))
		require.NoError(t, err)
	}

	tests := []struct {
		name    string
		last    bool
		start   int
		keep    bool
		wantIdx int
		wantTag string
	}{
		{name: "first keeps valid cursor", start: 1, keep: true, wantIdx: 1, wantTag: "b"},
		{name: "first resets when not keeping", start: 1, keep: false, wantIdx: 0, wantTag: "a"},
		{name: "first resets out of range", start: 3, keep: true, wantIdx: 0, wantTag: "a"},
		{name: "first resets negative", start: -1, keep: true, wantIdx: 0, wantTag: "a"},
		{name: "last keeps valid cursor", last: true, start: 0, keep: true, wantIdx: 0, wantTag: "a"},
		{name: "last resets when not keeping", last: true, start: 0, keep: false, wantIdx: 2, wantTag: "c"},
		{name: "last resets out of range", last: true, start: 9, keep: true, wantIdx: 2, wantTag: "c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := tt.start
			get := s.GetFirst
			if tt.last {
				get = s.GetLast
			}
			r, path, n, err := get(&idx, tt.keep)
			require.NoError(t, err)
			assert.Equal(t, tt.wantIdx, idx)
			assert.Equal(t, tt.wantTag, r.Tag)
			assert.Equal(t, filepath.Join(root, tt.wantTag+".bmp"), path)
			assert.Equal(t, 3, n)
		})
	}
}

func TestSelection(t *testing.T) {
	s, root := newStore(t)
	b := filepath.Join(root, "b.bmp")

	ok, err := s.Select(b)
	require.NoError(t, err)
	assert.False(t, ok, "absent path cannot be selected")

	_, err = s.Add(b, rec("b", 1, 0, 0, 0))
	require.NoError(t, err)
	ok, err = s.Select(b)
	require.NoError(t, err)
	require.True(t, ok)

	sel, ok, err := s.Selection()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Selection{Path: b, Index: 0}, sel)

	// Inserting before the selection shifts its index.
	_, err = s.Add(filepath.Join(root, "a.bmp"), rec("a", 0, 1, 0, 0))
	require.NoError(t, err)
	_, err = s.Add(b, rec("b", 0, 0, 1, 0))
	require.NoError(t, err)

	sel, ok, err = s.Selection()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, sel.Index)

	_, err = s.Remove(b)
	require.NoError(t, err)
	_, ok, err = s.Selection()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPathsUnder(t *testing.T) {
	s, root := newStore(t)
	for _, p := range []string{
		filepath.Join(root, "top.bmp"),
		filepath.Join(root, "sub", "one.bmp"),
		filepath.Join(root, "sub", "deeper", "two.bmp"),
		filepath.Join(root, "subway", "three.bmp"),
	} {
		_, err := s.Add(p, rec("x", 1, 0, 1, 1))
		require.NoError(t, err)
	}

	got, err := s.PathsUnder(filepath.Join(root, "SUB"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(root, "sub", "one.bmp"),
		filepath.Join(root, "sub", "deeper", "two.bmp"),
	}, got)

	all, err := s.PathsUnder(root)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestPoisonedStoreFailsFast(t *testing.T) {
	s, root := newStore(t)
	a := filepath.Join(root, "a.bmp")
	b := filepath.Join(root, "b.bmp")
	_, err := s.Add(a, rec("a", 1, 0, 0, 0))
	require.NoError(t, err)
	_, err = s.Add(b, rec("b", 0, 1, 0, 0))
	require.NoError(t, err)

	s.dropFromBuckets(a)

	_, err = s.Remove(a)
	require.Error(t, err)
	assert.True(t, IsDisabled(err))
	assert.True(t, faults.Is(err, faults.InvariantViolation))
	require.Error(t, s.Poisoned())

	idx := 0
	calls := map[string]func() error{
		"add":       func() error { _, err := s.Add(filepath.Join(root, "c.bmp"), rec("c", 1, 1, 1, 1)); return err },
		"remove":    func() error { _, err := s.Remove(b); return err },
		"get":       func() error { _, err := s.Get(b); return err },
		"at":        func() error { _, _, err := s.At(0); return err },
		"count":     func() error { _, err := s.Count(); return err },
		"elements":  func() error { _, err := s.Elements(); return err },
		"first":     func() error { _, _, _, err := s.GetFirst(&idx, true); return err },
		"last":      func() error { _, _, _, err := s.GetLast(&idx, true); return err },
		"clear":     func() error { _, err := s.Clear(); return err },
		"under":     func() error { _, err := s.PathsUnder(root); return err },
		"select":    func() error { _, err := s.Select(b); return err },
		"selection": func() error { _, _, err := s.Selection(); return err },
		"verify":    s.Verify,
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			assert.True(t, IsDisabled(call()))
		})
	}

	stats, err := s.Stats()
	assert.True(t, IsDisabled(err))
	assert.True(t, stats.Poisoned)
}

func TestVerifyDetectsDivergence(t *testing.T) {
	s, root := newStore(t)
	a := filepath.Join(root, "a.bmp")
	_, err := s.Add(a, rec("a", 1, 0, 0, 0))
	require.NoError(t, err)
	require.NoError(t, s.Verify())

	s.dropFromBuckets(a)

	err = s.Verify()
	assert.True(t, IsDisabled(err))
	assert.Contains(t, s.Poisoned().Error(), "path index holds 1 records, buckets hold 0")
}

func TestStats(t *testing.T) {
	root := t.TempDir()
	s := New(testPolicy(root), constHasher(1))
	_, err := s.Add(filepath.Join(root, "a.bmp"), rec("a", 1, 0, 0, 0))
	require.NoError(t, err)
	_, err = s.Add(filepath.Join(root, "b.bmp"), rec("b", 0, 1, 0, 0))
	require.NoError(t, err)

	stats, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Records)
	assert.Equal(t, 1, stats.Buckets)
	assert.False(t, stats.Poisoned)
	assert.Equal(t, "patterns", s.Name())
}

func TestAddNilRecord(t *testing.T) {
	s, root := newStore(t)
	_, err := s.Add(filepath.Join(root, "a.bmp"), nil)
	require.Error(t, err)
	assert.False(t, IsDisabled(err))
}
