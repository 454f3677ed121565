// Package naming parses tags out of pattern file names and allocates
// collision-free tags for new files.
package naming

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"pattern-sync/internal/faults"
)

// DefaultSeparator joins a tag and its numeric suffix: "name!12".
const DefaultSeparator = "!"

// LegacyDigits is the minimum length of a trailing digit run recognized as a
// suffix in the legacy numbering scheme ("name0000").
const LegacyDigits = 4

// Name is a parsed file base name.
type Name struct {
	Tag       string
	Number    uint16
	HasNumber bool
}

// ParseName splits a file base name (without extension) into tag and
// optional numeric suffix. "cat!3" and "cat0003" both give tag "cat", number 3.
func ParseName(base, sep string) Name {
	if sep != "" {
		if idx := strings.LastIndex(base, sep); idx > 0 {
			if n, err := strconv.ParseUint(base[idx+len(sep):], 10, 16); err == nil {
				return Name{Tag: base[:idx], Number: uint16(n), HasNumber: true}
			}
		}
	}

	i := len(base)
	for i > 0 && base[i-1] >= '0' && base[i-1] <= '9' {
		i--
	}
	if i > 0 && len(base)-i >= LegacyDigits {
		if n, err := strconv.ParseUint(base[i:], 10, 16); err == nil {
			return Name{Tag: base[:i], Number: uint16(n), HasNumber: true}
		}
	}

	return Name{Tag: base}
}

// ParsePath parses the tag of a pattern file path.
func ParsePath(path, sep string) Name {
	base := filepath.Base(path)
	return ParseName(strings.TrimSuffix(base, filepath.Ext(base)), sep)
}

// Compose joins a base name and a number with the separator.
func Compose(base, sep string, n uint16) string {
	return base + sep + strconv.FormatUint(uint64(n), 10)
}

// Allocator hands out unused tags for one save batch. A tag is free when it
// is neither reserved earlier in the batch nor reported by Taken.
type Allocator struct {
	Separator string
	Dir       string
	Taken     func(tag string) bool

	reserved map[string]struct{}
}

// NewAllocator creates an allocator for a batch saved into dir.
func NewAllocator(dir, sep string, taken func(tag string) bool) *Allocator {
	if sep == "" {
		sep = DefaultSeparator
	}
	return &Allocator{
		Separator: sep,
		Dir:       dir,
		Taken:     taken,
		reserved:  make(map[string]struct{}),
	}
}

// Allocate returns the first free tag base+sep+n, probing from start (or 0)
// and wrapping through the whole uint16 range. Coming back to the first value
// tried without a free slot is an AllocationExhausted error.
func (a *Allocator) Allocate(base string, start *uint16) (string, error) {
	var n uint16
	if start != nil {
		n = *start
	}
	first := n

	for {
		candidate := Compose(base, a.Separator, n)
		if !a.isTaken(candidate) {
			a.reserved[strings.ToLower(candidate)] = struct{}{}
			return candidate, nil
		}

		if n == math.MaxUint16 {
			n = 0
		} else {
			n++
		}
		if n == first {
			return "", faults.Newf(faults.AllocationExhausted, "allocate tag", a.Dir,
				"no free suffix for %q (last tried %q)", base, candidate)
		}
	}
}

// Reserved reports how many tags this batch has handed out.
func (a *Allocator) Reserved() int {
	return len(a.reserved)
}

func (a *Allocator) isTaken(tag string) bool {
	if _, ok := a.reserved[strings.ToLower(tag)]; ok {
		return true
	}
	return a.Taken != nil && a.Taken(tag)
}

// FileName returns the file name for a tag with the given extension.
func FileName(tag, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return fmt.Sprintf("%s%s", tag, ext)
}
