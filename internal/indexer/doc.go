// Package indexer performs the full scan of a store root that seeds the
// in-memory index before the sync engine takes over.
//
// Files are discovered with a directory walk and loaded on a bounded pool of
// goroutines; every worker still serializes through the store's own lock
// when it adds a record. Hidden directories (prefixed with '.') are skipped.
// A rescan also drops records whose files are no longer on disk.
package indexer
