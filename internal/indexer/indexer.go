package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"

	"pattern-sync/internal/logging"
	"pattern-sync/internal/metrics"
	"pattern-sync/internal/pattern"
	"pattern-sync/internal/store"
)

// PatternLoader reads and validates one pattern file.
type PatternLoader interface {
	Load(path string, bounds pattern.Bounds) (*pattern.Pattern, error)
}

// ScanResult summarizes one full scan of a store root.
type ScanResult struct {
	Store    string        `json:"store"`
	Loaded   int           `json:"loaded"`
	Failed   int           `json:"failed"`
	Removed  int           `json:"removed"`
	Duration time.Duration `json:"duration"`
}

// Gate holds back loads while the process is short of resources.
// *memory.Monitor is the production implementation.
type Gate interface {
	Wait(ctx context.Context) error
}

// Sequencer holds back the other writer of a store while a scan runs.
// *syncer.Engine is the production implementation: tasks queued during the
// scan are applied after it, on top of what the scan found.
type Sequencer interface {
	Pause() (resume func())
}

// Scan walks the root of target, loads every tracked file on a pool of at
// most workers goroutines and adds it to the store. Stored paths that were
// not found on disk are dropped afterwards. Per-file failures are logged and
// counted; only a failed walk or a poisoned store aborts the scan.
//
// Scan assumes nothing else writes to target. Use an Indexer with a
// Sequencer when a sync engine is running.
func Scan(ctx context.Context, target *store.Store, loader PatternLoader, workers int) (ScanResult, error) {
	return scan(ctx, target, loader, workers, nil, nil)
}

func scan(ctx context.Context, target *store.Store, loader PatternLoader, workers int, gate Gate, seq Sequencer) (ScanResult, error) {
	if seq != nil {
		resume := seq.Pause()
		defer resume()
	}

	policy := target.Policy()
	result := ScanResult{Store: policy.Name}
	start := time.Now()
	defer func() {
		result.Duration = time.Since(start)
		metrics.ScanDuration.WithLabelValues(policy.Name).Observe(result.Duration.Seconds())
	}()

	if workers < 1 {
		workers = 1
	}

	var (
		loaded, failed atomic.Int64
		seenMu         sync.Mutex
		seen           = make(map[string]struct{})
	)

	p := pool.New().WithMaxGoroutines(workers).WithContext(ctx).WithCancelOnError()

	walkErr := filepath.WalkDir(policy.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if path != policy.Root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !policy.Tracks(path) {
			return nil
		}

		p.Go(func(ctx context.Context) error {
			if gate != nil {
				if err := gate.Wait(ctx); err != nil {
					return err
				}
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			pat, err := loader.Load(path, policy.Bounds)
			if err != nil {
				failed.Add(1)
				metrics.ScanFilesTotal.WithLabelValues(policy.Name, "failed").Inc()
				logging.Warn("scan %s: %v", policy.Name, err)
				return nil
			}
			if _, err := target.Add(path, policy.Record(path, pat)); err != nil {
				return err
			}
			seenMu.Lock()
			seen[strings.ToLower(path)] = struct{}{}
			seenMu.Unlock()
			loaded.Add(1)
			metrics.ScanFilesTotal.WithLabelValues(policy.Name, "loaded").Inc()
			return nil
		})
		return nil
	})

	poolErr := p.Wait()
	result.Loaded = int(loaded.Load())
	result.Failed = int(failed.Load())

	if walkErr != nil {
		return result, fmt.Errorf("scan %s: %w", policy.Root, walkErr)
	}
	if poolErr != nil {
		return result, fmt.Errorf("scan %s: %w", policy.Root, poolErr)
	}

	removed, err := dropMissing(target, seen)
	result.Removed = removed
	if err != nil {
		return result, fmt.Errorf("scan %s: %w", policy.Root, err)
	}

	logging.Info("Scan of %s complete: %d loaded, %d failed, %d removed in %v",
		policy.Name, result.Loaded, result.Failed, result.Removed, time.Since(start))
	return result, nil
}

// dropMissing removes stored records whose path was not loaded by the scan.
func dropMissing(target *store.Store, seen map[string]struct{}) (int, error) {
	elems, err := target.Elements()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, el := range elems {
		if _, ok := seen[strings.ToLower(el.Path)]; ok {
			continue
		}
		ok, err := target.Remove(el.Path)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

// Indexer runs the initial scan of every store and reports readiness.
type Indexer struct {
	loader  PatternLoader
	workers int
	stores  []*store.Store
	gate    Gate
	seq     Sequencer

	mu        sync.Mutex
	ready     bool
	scanning  bool
	lastScan  time.Time
	results   []ScanResult
	scanError error
	startTime time.Time
}

// HealthStatus is the indexer state reported by the health endpoints.
type HealthStatus struct {
	Ready       bool         `json:"ready"`
	Scanning    bool         `json:"scanning"`
	StartTime   time.Time    `json:"startTime"`
	Uptime      string       `json:"uptime"`
	LastScanned time.Time    `json:"lastScanned,omitempty"`
	ScanError   string       `json:"scanError,omitempty"`
	Results     []ScanResult `json:"results,omitempty"`
}

// New creates an Indexer for the given stores.
func New(loader PatternLoader, workers int, stores ...*store.Store) *Indexer {
	return &Indexer{
		loader:    loader,
		workers:   workers,
		stores:    stores,
		startTime: time.Now(),
	}
}

// SetGate makes every later scan wait on g before each load.
func (idx *Indexer) SetGate(g Gate) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.gate = g
}

// SetSequencer pauses seq for the duration of every later store scan.
func (idx *Indexer) SetSequencer(seq Sequencer) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.seq = seq
}

// ErrScanInProgress is returned when a scan is requested while one runs.
var ErrScanInProgress = errors.New("scan already in progress")

// ScanAll scans every store in turn. The indexer becomes ready after the
// first complete pass, even if individual files failed to load.
func (idx *Indexer) ScanAll(ctx context.Context) ([]ScanResult, error) {
	idx.mu.Lock()
	if idx.scanning {
		idx.mu.Unlock()
		return nil, ErrScanInProgress
	}
	idx.scanning = true
	gate, seq := idx.gate, idx.seq
	idx.mu.Unlock()

	var (
		results []ScanResult
		errs    []error
	)
	for _, s := range idx.stores {
		res, err := scan(ctx, s, idx.loader, idx.workers, gate, seq)
		results = append(results, res)
		if err != nil {
			logging.Error("Initial scan of %s failed: %v", s.Name(), err)
			errs = append(errs, err)
		}
	}
	err := errors.Join(errs...)

	idx.mu.Lock()
	idx.scanning = false
	idx.ready = true
	idx.lastScan = time.Now()
	idx.results = results
	idx.scanError = err
	idx.mu.Unlock()

	return results, err
}

// IsReady returns true once the first scan of every store has finished.
func (idx *Indexer) IsReady() bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.ready
}

// GetHealthStatus returns the current state for health endpoints.
func (idx *Indexer) GetHealthStatus() HealthStatus {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	status := HealthStatus{
		Ready:       idx.ready,
		Scanning:    idx.scanning,
		StartTime:   idx.startTime,
		Uptime:      time.Since(idx.startTime).Round(time.Second).String(),
		LastScanned: idx.lastScan,
		Results:     append([]ScanResult(nil), idx.results...),
	}
	if idx.scanError != nil {
		status.ScanError = idx.scanError.Error()
	}
	return status
}
