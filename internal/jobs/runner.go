package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Handler executes a specific type of job. The progress callback reports
// completion in percent.
type Handler func(ctx context.Context, job *Job, progress func(int)) (interface{}, error)

// Runner manages background job execution.
type Runner struct {
	store    *Store
	logger   *slog.Logger
	handlers map[Type]Handler

	queue       chan *Job
	queueSize   int
	workerCount int

	done   chan struct{}
	cancel map[string]context.CancelFunc

	mu sync.RWMutex
	wg sync.WaitGroup
}

// RunnerConfig contains configuration for the job runner.
type RunnerConfig struct {
	QueueSize   int
	WorkerCount int
}

// DefaultRunnerConfig returns the default runner configuration.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		QueueSize:   100,
		WorkerCount: 1,
	}
}

// NewRunner creates a new job runner backed by the given store.
func NewRunner(store *Store, logger *slog.Logger, config RunnerConfig) *Runner {
	if config.QueueSize <= 0 {
		config.QueueSize = 100
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = 1
	}

	return &Runner{
		store:       store,
		logger:      logger,
		handlers:    make(map[Type]Handler),
		queue:       make(chan *Job, config.QueueSize),
		queueSize:   config.QueueSize,
		workerCount: config.WorkerCount,
		done:        make(chan struct{}),
		cancel:      make(map[string]context.CancelFunc),
	}
}

// RegisterHandler registers a handler for a job type.
func (r *Runner) RegisterHandler(jobType Type, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[jobType] = handler
}

// Start begins processing jobs.
func (r *Runner) Start() {
	r.logger.Info("starting job runner",
		"workers", r.workerCount,
		"queueSize", r.queueSize)

	for i := 0; i < r.workerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
}

// Stop shuts down the runner, cancelling any running jobs.
func (r *Runner) Stop(timeout time.Duration) error {
	close(r.done)

	r.mu.Lock()
	for _, cancel := range r.cancel {
		cancel()
	}
	r.mu.Unlock()

	stopped := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(stopped)
	}()

	select {
	case <-stopped:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("job runner shutdown timed out after %v", timeout)
	}
}

// Submit records a job and enqueues it for execution.
func (r *Runner) Submit(job *Job) error {
	r.store.Put(job)

	select {
	case r.queue <- job:
		r.logger.Debug("job queued", "jobId", job.ID, "type", job.Type)
		return nil
	case <-r.done:
		return fmt.Errorf("runner is shutting down")
	default:
		job.MarkFailed(fmt.Errorf("job queue full"))
		r.store.Put(job)
		return fmt.Errorf("job queue full")
	}
}

// Cancel attempts to cancel a job.
func (r *Runner) Cancel(jobID string) error {
	job := r.store.Get(jobID)
	if job == nil {
		return fmt.Errorf("job not found: %s", jobID)
	}
	if !job.CanCancel() {
		return fmt.Errorf("job cannot be cancelled in state: %s", job.Status)
	}

	r.mu.Lock()
	if cancel, ok := r.cancel[jobID]; ok {
		cancel()
	}
	r.mu.Unlock()

	job.MarkCancelled()
	r.store.Put(job)
	return nil
}

// GetJob retrieves a job by ID.
func (r *Runner) GetJob(jobID string) *Job {
	return r.store.Get(jobID)
}

// ListJobs lists jobs with filters.
func (r *Runner) ListJobs(opts ListOptions) []*Job {
	return r.store.List(opts)
}

func (r *Runner) worker(id int) {
	defer r.wg.Done()

	for {
		select {
		case job, ok := <-r.queue:
			if !ok {
				return
			}
			r.processJob(job)
		case <-r.done:
			r.logger.Debug("job worker stopping", "workerId", id)
			return
		}
	}
}

func (r *Runner) processJob(job *Job) {
	// A cancel racing the queue can mark the job terminal before a
	// worker picks it up.
	if current := r.store.Get(job.ID); current == nil || current.IsTerminal() {
		return
	}

	r.mu.RLock()
	handler, ok := r.handlers[job.Type]
	r.mu.RUnlock()

	if !ok {
		job.MarkFailed(fmt.Errorf("no handler for job type: %s", job.Type))
		r.store.Put(job)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.cancel[job.ID] = cancel
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.cancel, job.ID)
		r.mu.Unlock()
		cancel()
	}()

	job.MarkStarted()
	r.store.Put(job)

	r.logger.Info("processing job", "jobId", job.ID, "type", job.Type)

	progress := func(pct int) {
		job.SetProgress(pct)
		r.store.Put(job)
	}

	started := time.Now()
	result, err := handler(ctx, job, progress)
	elapsed := time.Since(started)

	switch {
	case err != nil && ctx.Err() == context.Canceled:
		job.MarkCancelled()
		r.logger.Info("job cancelled", "jobId", job.ID, "duration", elapsed.String())
	case err != nil:
		job.MarkFailed(err)
		r.logger.Error("job failed", "jobId", job.ID, "error", err, "duration", elapsed.String())
	default:
		if err := job.MarkCompleted(result); err != nil {
			job.MarkFailed(err)
			r.logger.Error("failed to serialize job result", "jobId", job.ID, "error", err)
		} else {
			r.logger.Info("job completed", "jobId", job.ID, "duration", elapsed.String())
		}
	}

	r.store.Put(job)
}

// QueueLength returns the current queue length.
func (r *Runner) QueueLength() int {
	return len(r.queue)
}
