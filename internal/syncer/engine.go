package syncer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"pattern-sync/internal/filesystem"
	"pattern-sync/internal/logging"
	"pattern-sync/internal/metrics"
	"pattern-sync/internal/pattern"
	"pattern-sync/internal/store"
)

// ErrStopped is returned by Sync when the engine stops before the barrier
// is reached.
var ErrStopped = errors.New("sync engine stopped")

// State is the observable state of the consumer.
type State int32

const (
	// Idle means the consumer is waiting for work.
	Idle State = iota
	// Draining means the consumer is applying queued tasks.
	Draining
	// Poisoned means at least one store has disabled itself. The consumer
	// keeps draining; calls on that store fail fast.
	Poisoned
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Draining:
		return "draining"
	case Poisoned:
		return "poisoned"
	default:
		return "unknown"
	}
}

// PatternLoader reads and validates one pattern file. *bitmap.Loader is the
// production implementation.
type PatternLoader interface {
	Load(path string, bounds pattern.Bounds) (*pattern.Pattern, error)
}

// Engine applies queued tasks to stores on a single consumer goroutine, so
// tasks for one store take effect in enqueue order.
type Engine struct {
	loader PatternLoader
	exists func(path string) bool

	mu    sync.Mutex
	queue []Task
	wake  chan struct{}

	// applyMu is held by the consumer while it applies a task and by
	// Pause for as long as the engine is paused.
	applyMu sync.Mutex

	state    atomic.Int32
	poisoned map[*store.Store]bool

	runMu   sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewEngine creates an engine that loads files with loader.
func NewEngine(loader PatternLoader) *Engine {
	e := &Engine{
		loader:   loader,
		exists:   filesystem.Exists,
		wake:     make(chan struct{}, 1),
		poisoned: make(map[*store.Store]bool),
		stopped:  make(chan struct{}),
	}
	close(e.stopped)
	return e
}

// Enqueue appends tasks to the queue. It never blocks.
func (e *Engine) Enqueue(tasks ...Task) {
	if len(tasks) == 0 {
		return
	}
	e.mu.Lock()
	e.queue = append(e.queue, tasks...)
	depth := len(e.queue)
	e.mu.Unlock()

	metrics.SyncQueueDepth.Set(float64(depth))
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued tasks.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

// State returns the consumer state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) setState(s State) {
	if e.State() == Poisoned {
		return
	}
	e.state.Store(int32(s))
	metrics.SyncEngineState.Set(float64(s))
}

// Start launches the consumer. It stops when ctx is canceled or Stop is called.
func (e *Engine) Start(ctx context.Context) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	select {
	case <-e.stopped:
	default:
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.stopped = make(chan struct{})
	go e.run(ctx, e.stopped)
	logging.Info("Sync engine started")
}

// Stop cancels the consumer and waits for it to finish the task in hand.
func (e *Engine) Stop() {
	e.runMu.Lock()
	cancel, stopped := e.cancel, e.stopped
	e.runMu.Unlock()

	if cancel != nil {
		cancel()
	}
	<-stopped
}

func (e *Engine) run(ctx context.Context, stopped chan struct{}) {
	defer close(stopped)
	defer logging.Info("Sync engine stopped")

	for {
		if ctx.Err() != nil {
			return
		}

		task, ok := e.next()
		if !ok {
			e.setState(Idle)
			select {
			case <-ctx.Done():
				return
			case <-e.wake:
				continue
			}
		}

		e.applyMu.Lock()
		e.setState(Draining)
		e.apply(task)
		e.applyMu.Unlock()
	}
}

// Pause waits for the task in hand to finish and holds the consumer until
// resume is called. Enqueue keeps accepting tasks meanwhile; they are applied
// in order after resume. Sync blocks while the engine is paused.
func (e *Engine) Pause() (resume func()) {
	e.applyMu.Lock()
	var once sync.Once
	return func() { once.Do(e.applyMu.Unlock) }
}

func (e *Engine) next() (Task, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.queue) == 0 {
		return Task{}, false
	}
	task := e.queue[0]
	e.queue[0] = Task{}
	e.queue = e.queue[1:]
	metrics.SyncQueueDepth.Set(float64(len(e.queue)))
	return task, true
}

// Sync blocks until every task enqueued before the call has been applied.
func (e *Engine) Sync(ctx context.Context) error {
	done := make(chan struct{})
	e.runMu.Lock()
	stopped := e.stopped
	e.runMu.Unlock()

	e.Enqueue(Task{Kind: barrier, done: done})

	select {
	case <-done:
		return nil
	case <-stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) apply(task Task) {
	if task.Kind == barrier {
		close(task.done)
		return
	}

	start := time.Now()
	status, err := e.applyTask(task)
	metrics.SyncTaskDuration.WithLabelValues(task.Kind.String()).Observe(time.Since(start).Seconds())

	if err != nil {
		status = "error"
		if store.IsDisabled(err) {
			e.markPoisoned(task.Store, err)
		} else {
			logging.Warn("sync %s: %v", task, err)
		}
	}
	metrics.SyncTasksTotal.WithLabelValues(task.Kind.String(), status).Inc()
}

func (e *Engine) applyTask(task Task) (string, error) {
	s := task.Store
	if s == nil {
		return "skipped", nil
	}

	switch task.Kind {
	case Created, Changed:
		return "success", e.load(s, task.Path)

	case Removed:
		// A Removed notification may be stale when the file was recreated
		// right away; the later Created task owns the path then.
		if e.exists(task.Path) {
			return "skipped", nil
		}
		_, err := s.Remove(task.Path)
		return "success", err

	case Renamed:
		if task.OutOfScope {
			if _, err := s.Remove(task.OldPath); err != nil {
				return "", err
			}
		}
		if task.IntoScope {
			return "success", e.load(s, task.Path)
		}
		if !task.OutOfScope {
			return "skipped", nil
		}
		return "success", nil

	case Cleared:
		n, err := s.Clear()
		if err == nil {
			logging.Info("Store %s cleared (%d records dropped)", s.Name(), n)
		}
		return "success", err

	default:
		return "skipped", nil
	}
}

// load reads path and adds it to s. A file that no longer loads is evicted.
func (e *Engine) load(s *store.Store, path string) error {
	policy := s.Policy()
	p, err := e.loader.Load(path, policy.Bounds)
	if err != nil {
		if removed, rerr := s.Remove(path); rerr != nil {
			return rerr
		} else if removed {
			logging.Info("Evicted %s from store %s", path, s.Name())
		}
		return err
	}
	_, err = s.Add(path, policy.Record(path, p))
	return err
}

func (e *Engine) markPoisoned(s *store.Store, err error) {
	if s == nil || e.poisoned[s] {
		return
	}
	e.poisoned[s] = true
	e.state.Store(int32(Poisoned))
	metrics.SyncEngineState.Set(float64(Poisoned))
	logging.Error("Store %s will no longer update: %v", s.Name(), err)
}
