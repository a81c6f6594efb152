// Package dispatcher implements the Worker Pool: a bounded set of
// goroutines draining an in-memory FIFO queue fed by the Submission
// Gateway, each invoking the Sandbox Driver for one job at a time and
// translating its outcome into a terminal status written back to the Job
// Store. The pool owns its lifetime explicitly — no package-level state —
// and exposes the active-job set for health/introspection.
package dispatcher

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"judge-engine/internal/metrics"
	"judge-engine/internal/sandbox"
	"judge-engine/internal/store"
)

// Executor is the subset of sandbox.Driver the dispatcher depends on,
// narrowed so tests can substitute a fake without touching Docker.
type Executor interface {
	Execute(ctx context.Context, req sandbox.Request) (sandbox.Outcome, error)
}

// Config tunes pool size and queue capacity.
type Config struct {
	Workers    int
	QueueDepth int
}

// DefaultConfig mirrors spec.md's default worker count of 4 and a queue
// generously sized relative to it, since the design calls for an
// effectively unbounded (operator-capped) backlog.
func DefaultConfig() Config {
	return Config{Workers: 4, QueueDepth: 4 * 64}
}

// Dispatcher is the constructed, explicit-lifetime worker pool. Zero
// package-level mutable state: every instance owns its own queue, active
// set, and shutdown signal.
type Dispatcher struct {
	cfg      Config
	repo     store.Repository
	executor Executor
	log      *zap.Logger

	queue chan string // job ids

	mu     sync.Mutex
	active map[string]int // job id -> worker index

	wg       sync.WaitGroup
	stopOnce sync.Once
	done     chan struct{}
}

// New constructs a Dispatcher. Call Start to launch workers.
func New(cfg Config, repo store.Repository, executor Executor, log *zap.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = cfg.Workers * 64
	}
	return &Dispatcher{
		cfg:      cfg,
		repo:     repo,
		executor: executor,
		log:      log,
		queue:    make(chan string, cfg.QueueDepth),
		active:   make(map[string]int),
		done:     make(chan struct{}),
	}
}

// Start launches the configured number of worker goroutines. Safe to call
// once per Dispatcher instance.
func (d *Dispatcher) Start() {
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.runWorker(i)
	}
}

// Enqueue submits a job id for execution. Never blocks on execution
// itself; it may briefly block on the queue if the backlog is saturated.
// Returns false if the dispatcher is shutting down and the id was not
// queued.
func (d *Dispatcher) Enqueue(jobID string) bool {
	select {
	case <-d.done:
		return false
	default:
	}
	select {
	case d.queue <- jobID:
		metrics.Get().JobsQueued.Inc()
		metrics.Get().QueueDepth.Set(float64(len(d.queue)))
		return true
	case <-d.done:
		return false
	}
}

// ActiveCount reports the number of jobs currently claimed by a worker,
// for health/introspection (spec §4.G).
func (d *Dispatcher) ActiveCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.active)
}

// Capacity reports the configured worker count.
func (d *Dispatcher) Capacity() int {
	return d.cfg.Workers
}

// Shutdown stops accepting new jobs and waits (up to ctx's deadline) for
// in-flight workers to finish their current job best-effort, then
// returns. It never retries or recovers PROCESSING jobs left behind.
func (d *Dispatcher) Shutdown(ctx context.Context) {
	d.stopOnce.Do(func() {
		close(d.done)
	})

	waitCh := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
	case <-ctx.Done():
		if d.log != nil {
			d.log.Warn("dispatcher shutdown deadline exceeded, workers may still be running")
		}
	}
}

func (d *Dispatcher) runWorker(index int) {
	defer d.wg.Done()
	for {
		select {
		case jobID, ok := <-d.queue:
			if !ok {
				return
			}
			d.process(index, jobID)
		case <-d.done:
			// Drain whatever is already queued without blocking, then exit.
			select {
			case jobID := <-d.queue:
				d.process(index, jobID)
			default:
				return
			}
		}
	}
}

func (d *Dispatcher) process(workerIndex int, jobID string) {
	ctx := context.Background()

	job, err := d.repo.GetByID(ctx, jobID)
	if err != nil {
		if d.log != nil {
			d.log.Error("dispatcher: failed to load job", zap.String("job_id", jobID), zap.Error(err))
		}
		return
	}

	d.mu.Lock()
	d.active[jobID] = workerIndex
	activeCount := len(d.active)
	d.mu.Unlock()
	metrics.Get().ActiveJobs.Set(float64(activeCount))
	metrics.Get().QueueDepth.Set(float64(len(d.queue)))
	defer func() {
		d.mu.Lock()
		delete(d.active, jobID)
		activeCount := len(d.active)
		d.mu.Unlock()
		metrics.Get().ActiveJobs.Set(float64(activeCount))
	}()

	now := time.Now().UTC()
	job.Status = store.StatusProcessing
	workerID := workerIndex
	job.WorkerID = &workerID
	job.StartedAt = &now
	if err := d.repo.UpdateResult(ctx, job); err != nil {
		if d.log != nil {
			d.log.Error("dispatcher: failed to mark job processing", zap.String("job_id", jobID), zap.Error(err))
		}
		return
	}
	metrics.Get().JobsStarted.Inc()

	outcome, execErr := d.executor.Execute(ctx, sandbox.Request{
		Language: job.Language,
		Source:   job.SourceCode,
		Stdin:    job.Stdin,
	})

	completedAt := time.Now().UTC()
	job.CompletedAt = &completedAt

	if execErr != nil {
		job.Status = store.StatusFailed
		job.ErrorMessage = execErr.Error()
	} else {
		job.Status = mapStatus(outcome.Status)
		job.Stdout = outcome.Stdout
		job.Stderr = outcome.Stderr
		job.CompileOutput = outcome.CompileOutput
		exitCode := outcome.ExitCode
		job.ExitCode = &exitCode
		elapsed := outcome.ExecutionTimeMs
		job.ExecutionTimeMs = &elapsed
		memKB := outcome.MemoryUsageKB
		job.MemoryUsageKB = &memKB
		job.ErrorMessage = outcome.ErrorMessage
	}

	if err := d.repo.UpdateResult(ctx, job); err != nil && d.log != nil {
		d.log.Error("dispatcher: failed to persist job result", zap.String("job_id", jobID), zap.Error(err))
	}

	metrics.Get().JobsCompleted.WithLabelValues(string(job.Status)).Inc()
	if job.ExecutionTimeMs != nil {
		metrics.Get().ExecutionDuration.Observe(float64(*job.ExecutionTimeMs) / 1000)
	}
}

// mapStatus translates a Sandbox Driver outcome status into the Job
// Store's terminal status vocabulary. The two enums are deliberately kept
// distinct types (sandbox.Status vs store.Status) even though their wire
// values coincide, so the driver never depends on the persistence layer.
func mapStatus(s sandbox.Status) store.Status {
	switch s {
	case sandbox.StatusCompleted:
		return store.StatusCompleted
	case sandbox.StatusTimeout:
		return store.StatusTimeout
	case sandbox.StatusCompilationError:
		return store.StatusCompilationError
	case sandbox.StatusRuntimeError:
		return store.StatusRuntimeError
	default:
		return store.StatusFailed
	}
}
