package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/drallgood/bookfeed/internal/logger"
)

var (
	// ErrJobRunning is returned when a job is triggered while a previous run is in progress
	ErrJobRunning = errors.New("job is already running")
	// ErrUnknownJob is returned for a job the runner was not given
	ErrUnknownJob = errors.New("unknown job")
)

// JobFunc runs one job to completion
type JobFunc func(ctx context.Context, job string) error

// Runner executes named jobs and refuses to overlap runs of the same job
type Runner struct {
	run    JobFunc
	known  map[string]bool
	base   *logger.Logger
	logger *logger.Logger

	mu      sync.Mutex
	running map[string]bool
	wg      sync.WaitGroup
}

// NewRunner creates a Runner for the given job names
func NewRunner(run JobFunc, jobs []string, log *logger.Logger) *Runner {
	if log == nil {
		log = logger.Get()
	}
	known := make(map[string]bool, len(jobs))
	for _, j := range jobs {
		known[j] = true
	}
	return &Runner{
		run:     run,
		known:   known,
		base:    log,
		logger:  log.Component("runner"),
		running: map[string]bool{},
	}
}

func (r *Runner) acquire(job string) error {
	if !r.known[job] {
		return fmt.Errorf("%w: %q", ErrUnknownJob, job)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running[job] {
		return ErrJobRunning
	}
	r.running[job] = true
	return nil
}

func (r *Runner) release(job string) {
	r.mu.Lock()
	delete(r.running, job)
	r.mu.Unlock()
}

// Run executes job synchronously
func (r *Runner) Run(ctx context.Context, job string) error {
	if err := r.acquire(job); err != nil {
		return err
	}
	defer r.release(job)
	return r.exec(ctx, job)
}

// Start executes job in the background. It fails fast when the job is
// unknown or already running.
func (r *Runner) Start(ctx context.Context, job string) error {
	if err := r.acquire(job); err != nil {
		return err
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.release(job)
		_ = r.exec(ctx, job)
	}()
	return nil
}

// Running reports whether job is in progress
func (r *Runner) Running(job string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running[job]
}

// Wait blocks until every background run has returned
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) exec(ctx context.Context, job string) error {
	r.logger.Info("Starting job", map[string]interface{}{"job": job})
	ctx = logger.NewContext(ctx, r.base.With(map[string]interface{}{"job": job}))
	err := r.run(ctx, job)
	if err != nil {
		r.logger.Error("Job returned an error", map[string]interface{}{
			"job":   job,
			"error": err.Error(),
		})
	}
	return err
}
