package filesystem

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"pattern-sync/internal/faults"
	"pattern-sync/internal/logging"
)

// ErrUnavailable is wrapped by OpenWithRetry once every attempt failed.
var ErrUnavailable = errors.New("file not found or still locked")

// VolumeResolver maps file paths to storage names for metric labeling.
// It uses longest-prefix matching on absolute paths.
type VolumeResolver struct {
	// mounts is sorted by path length descending for longest-prefix matching
	mounts []volumeMount
}

type volumeMount struct {
	path string // absolute path with trailing separator
	name string
}

// NewVolumeResolver creates a resolver from a map of storage name → root directory.
//
//	NewVolumeResolver(map[string]string{
//	    "patterns": "/data/patterns",
//	    "inputs":   "/data/inputs",
//	})
func NewVolumeResolver(volumes map[string]string) *VolumeResolver {
	mounts := make([]volumeMount, 0, len(volumes))
	for name, path := range volumes {
		absPath, err := filepath.Abs(path)
		if err != nil {
			absPath = path
		}
		if !strings.HasSuffix(absPath, string(filepath.Separator)) {
			absPath += string(filepath.Separator)
		}
		mounts = append(mounts, volumeMount{path: absPath, name: name})
	}

	sort.Slice(mounts, func(i, j int) bool {
		return len(mounts[i].path) > len(mounts[j].path)
	})

	return &VolumeResolver{mounts: mounts}
}

// Resolve returns the storage name for a path, or "unknown".
func (vr *VolumeResolver) Resolve(path string) string {
	if vr == nil {
		return "unknown"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "unknown"
	}

	for _, mount := range vr.mounts {
		if strings.HasPrefix(absPath+string(filepath.Separator), mount.path) {
			return mount.name
		}
	}

	return "unknown"
}

// defaultResolver is the package-level resolver set at startup
var defaultResolver *VolumeResolver

// SetDefaultVolumeResolver sets the package-level volume resolver.
// Call this once at startup after loading configuration.
func SetDefaultVolumeResolver(vr *VolumeResolver) {
	defaultResolver = vr
}

// RetryConfig configures the open retry loop. Attempts are spaced by a fixed
// delay; the defaults wait about four seconds in total.
type RetryConfig struct {
	MaxAttempts int
	Delay       time.Duration
	// NotExistAttempts bounds the attempts spent on a missing file, which
	// may be an editor's delete-then-rename still in flight. Zero fails at once.
	NotExistAttempts int
	// VolumeResolver overrides the package-level resolver for this operation.
	VolumeResolver *VolumeResolver
}

// DefaultRetryConfig returns the loader's retry policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:      40,
		Delay:            100 * time.Millisecond,
		NotExistAttempts: 3,
	}
}

func (c *RetryConfig) resolveVolume(path string) string {
	if c.VolumeResolver != nil {
		return c.VolumeResolver.Resolve(path)
	}
	return defaultResolver.Resolve(path)
}

// isTransientError reports whether an open failure may clear up by itself:
// another process holding the file, a stale handle, or a sharing violation
// surfaced as permission denied.
func isTransientError(err error) bool {
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return false
	}
	if errors.Is(err, fs.ErrPermission) {
		return true
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.EBUSY, syscall.EAGAIN, syscall.ETXTBSY, syscall.ESTALE, syscall.EINTR:
			return true
		}
	}
	return false
}

// OpenWithRetry opens path for reading, sleeping and retrying while the
// failure looks transient. A missing file is retried for at most
// NotExistAttempts attempts. When the attempts run
// out the returned error is TransientIO and wraps both ErrUnavailable and the
// last underlying error.
func OpenWithRetry(path string, config RetryConfig) (*os.File, error) {
	start := time.Now()
	volume := config.resolveVolume(path)
	obs := observe()

	attempts := config.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		file, err := os.Open(path)
		if err == nil {
			if attempt > 0 {
				logging.Debug("Open succeeded on attempt %d for %s", attempt+1, path)
				if obs != nil {
					obs.ObserveRetrySuccess("open", volume)
				}
			}
			if obs != nil {
				obs.ObserveRetryDuration("open", volume, time.Since(start).Seconds())
			}
			return file, nil
		}

		lastErr = err

		missing := errors.Is(err, fs.ErrNotExist) && attempt+1 < config.NotExistAttempts
		if !isTransientError(err) && !missing {
			if obs != nil {
				obs.ObserveRetryDuration("open", volume, time.Since(start).Seconds())
			}
			return nil, faults.New(faults.TransientIO, "open", path, fmt.Errorf("%w: %w", ErrUnavailable, err))
		}

		if attempt < attempts-1 {
			if obs != nil {
				obs.ObserveRetryAttempt("open", volume)
			}
			logging.Debug("Open of %s failed (%v), retrying in %v (attempt %d/%d)",
				path, err, config.Delay, attempt+1, attempts)
			time.Sleep(config.Delay)
		}
	}

	logging.Warn("Open failed after %d attempts for %s: %v", attempts, path, lastErr)
	if obs != nil {
		obs.ObserveRetryFailure("open", volume)
		obs.ObserveRetryDuration("open", volume, time.Since(start).Seconds())
	}
	return nil, faults.New(faults.TransientIO, "open", path,
		fmt.Errorf("%w after %d attempts: %w", ErrUnavailable, attempts, lastErr))
}

// Exists reports whether path currently exists. Errors other than
// not-exist count as existing, so a stale removal is never applied on doubt.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !errors.Is(err, fs.ErrNotExist)
}
