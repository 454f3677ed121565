package pattern

import (
	"fmt"

	"pattern-sync/internal/faults"
)

// Pattern is an immutable matrix of cell values stored row-major.
type Pattern struct {
	width  int
	height int
	cells  []byte
}

// New creates a Pattern from a row-major cell slice. The slice is copied.
func New(width, height int, cells []byte) (*Pattern, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid pattern size %dx%d", width, height)
	}
	if len(cells) != width*height {
		return nil, fmt.Errorf("pattern %dx%d needs %d cells, got %d", width, height, width*height, len(cells))
	}
	c := make([]byte, len(cells))
	copy(c, cells)
	return &Pattern{width: width, height: height, cells: c}, nil
}

// MustNew is New for literals in tests and tools; it panics on a size mismatch.
func MustNew(width, height int, cells []byte) *Pattern {
	p, err := New(width, height, cells)
	if err != nil {
		panic(err)
	}
	return p
}

// Width returns the number of columns.
func (p *Pattern) Width() int { return p.width }

// Height returns the number of rows.
func (p *Pattern) Height() int { return p.height }

// At returns the cell at column x, row y.
func (p *Pattern) At(x, y int) byte {
	return p.cells[y*p.width+x]
}

// Cells returns a copy of the row-major cells.
func (p *Pattern) Cells() []byte {
	c := make([]byte, len(p.cells))
	copy(c, p.cells)
	return c
}

// Equal reports whether two patterns have the same size and cells.
func (p *Pattern) Equal(o *Pattern) bool {
	if p == nil || o == nil {
		return p == o
	}
	if p.width != o.width || p.height != o.height {
		return false
	}
	for i := range p.cells {
		if p.cells[i] != o.cells[i] {
			return false
		}
	}
	return true
}

// Record pairs a decoded pattern with its tag. Records are never mutated
// after construction; changing one means replacing it.
type Record struct {
	Pattern *Pattern
	Tag     string
}

// NewRecord creates a Record.
func NewRecord(p *Pattern, tag string) *Record {
	return &Record{Pattern: p, Tag: tag}
}

// Bounds constrains the size of patterns accepted by a storage. Height is
// exact; width must lie in [MinWidth, MaxWidth].
type Bounds struct {
	MinWidth int
	MaxWidth int
	Height   int
}

// Exact returns Bounds matching exactly one size.
func Exact(width, height int) Bounds {
	return Bounds{MinWidth: width, MaxWidth: width, Height: height}
}

// Check returns a MalformedInput error when width or height fall outside the bounds.
func (b Bounds) Check(path string, width, height int) error {
	if width < b.MinWidth || width > b.MaxWidth {
		if b.MinWidth == b.MaxWidth {
			return faults.Newf(faults.MalformedInput, "validate size", path,
				"width %d does not match required %d", width, b.MinWidth)
		}
		return faults.Newf(faults.MalformedInput, "validate size", path,
			"width %d outside [%d, %d]", width, b.MinWidth, b.MaxWidth)
	}
	if height != b.Height {
		return faults.Newf(faults.MalformedInput, "validate size", path,
			"height %d does not match required %d", height, b.Height)
	}
	return nil
}
