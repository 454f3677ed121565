package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"pattern-sync/internal/naming"
	"pattern-sync/internal/pattern"
)

// Policy describes one storage role: where its files live, which files it
// tracks, how they are named and which sizes it accepts.
type Policy struct {
	Name      string
	Root      string
	Extension string
	Separator string
	Bounds    pattern.Bounds
}

// Validate checks that the policy can drive a store.
func (p Policy) Validate() error {
	var errs []error
	if p.Name == "" {
		errs = append(errs, errors.New("name is empty"))
	}
	if p.Root == "" {
		errs = append(errs, errors.New("root is empty"))
	}
	if p.Extension == "" {
		errs = append(errs, errors.New("extension is empty"))
	}
	if p.Bounds.MinWidth <= 0 || p.Bounds.MaxWidth < p.Bounds.MinWidth || p.Bounds.Height <= 0 {
		errs = append(errs, fmt.Errorf("invalid bounds %+v", p.Bounds))
	}
	if len(errs) > 0 {
		return fmt.Errorf("policy %q: %w", p.Name, errors.Join(errs...))
	}
	return nil
}

// Ext returns the tracked extension with its leading dot.
func (p Policy) Ext() string {
	if strings.HasPrefix(p.Extension, ".") {
		return p.Extension
	}
	return "." + p.Extension
}

// InScope reports whether path lies under the root (case-insensitively).
func (p Policy) InScope(path string) bool {
	root, err := normalize(p.Root)
	if err != nil {
		return false
	}
	key, err := normalize(path)
	if err != nil {
		return false
	}
	return key != root && strings.HasPrefix(key, withSeparator(root))
}

// Tracks reports whether path is a pattern file of this storage.
func (p Policy) Tracks(path string) bool {
	return strings.EqualFold(filepath.Ext(path), p.Ext()) && p.InScope(path)
}

// TagOf returns the tag encoded in a file name, without its numeric suffix.
func (p Policy) TagOf(path string) string {
	return naming.ParsePath(path, p.Sep()).Tag
}

// PathFor returns the file path a tag is saved under.
func (p Policy) PathFor(tag string) string {
	return filepath.Join(p.Root, naming.FileName(tag, p.Ext()))
}

// Sep returns the tag separator, defaulting to naming.DefaultSeparator.
func (p Policy) Sep() string {
	if p.Separator == "" {
		return naming.DefaultSeparator
	}
	return p.Separator
}

// Record builds the record for a pattern loaded from path.
func (p Policy) Record(path string, pat *pattern.Pattern) *pattern.Record {
	return pattern.NewRecord(pat, p.TagOf(path))
}
