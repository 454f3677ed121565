// Package bitmap loads pattern files from disk and writes them back.
//
// Loading opens the file with the retry-on-lock policy from the filesystem
// package, decodes it through a pattern.Codec and checks the result against
// the storage's size bounds. Saving encodes and replaces the file atomically.
package bitmap

import (
	"bufio"
	"io"

	"pattern-sync/internal/faults"
	"pattern-sync/internal/filesystem"
	"pattern-sync/internal/logging"
	"pattern-sync/internal/metrics"
	"pattern-sync/internal/pattern"
)

// Loader reads and validates pattern files.
type Loader struct {
	Codec pattern.Codec
	Retry filesystem.RetryConfig
}

// NewLoader creates a loader with the default retry policy.
func NewLoader(codec pattern.Codec) *Loader {
	return &Loader{
		Codec: codec,
		Retry: filesystem.DefaultRetryConfig(),
	}
}

// Load opens, decodes and validates one file.
func (l *Loader) Load(path string, bounds pattern.Bounds) (*pattern.Pattern, error) {
	f, err := filesystem.OpenWithRetry(path, l.Retry)
	if err != nil {
		metrics.LoaderLoadsTotal.WithLabelValues(faults.TransientIO.String()).Inc()
		return nil, err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			logging.Debug("failed to close %s: %v", path, cerr)
		}
	}()

	p, err := l.Codec.Decode(bufio.NewReader(f))
	if err != nil {
		metrics.LoaderLoadsTotal.WithLabelValues(faults.MalformedInput.String()).Inc()
		return nil, faults.New(faults.MalformedInput, "decode", path, err)
	}

	if err := bounds.Check(path, p.Width(), p.Height()); err != nil {
		metrics.LoaderLoadsTotal.WithLabelValues(faults.MalformedInput.String()).Inc()
		return nil, err
	}

	metrics.LoaderLoadsTotal.WithLabelValues("success").Inc()
	return p, nil
}

// Writer persists patterns through temp-file-then-rename.
type Writer struct {
	Codec pattern.Codec
}

// NewWriter creates a writer.
func NewWriter(codec pattern.Codec) *Writer {
	return &Writer{Codec: codec}
}

// Save encodes p and atomically replaces the file at path. Failures carry
// faults.Persistence or faults.PersistenceConflict and are never retried.
func (w *Writer) Save(path string, p *pattern.Pattern) error {
	return filesystem.WriteFileAtomic(path, w.encoder(p))
}

// Create writes p to a path that must not exist yet. A file found at path
// is kept and reported as faults.PersistenceConflict.
func (w *Writer) Create(path string, p *pattern.Pattern) error {
	return filesystem.CreateFileAtomic(path, w.encoder(p))
}

func (w *Writer) encoder(p *pattern.Pattern) func(io.Writer) error {
	return func(out io.Writer) error {
		bw := bufio.NewWriter(out)
		if err := w.Codec.Encode(bw, p); err != nil {
			return err
		}
		return bw.Flush()
	}
}
