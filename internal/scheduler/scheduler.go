// Package scheduler runs bot jobs on cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/drallgood/bookfeed/internal/logger"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Entry is a scheduled job and its next activation
type Entry struct {
	Job      string
	Schedule string
	Next     time.Time
}

// Scheduler triggers jobs through a Runner on cron schedules
type Scheduler struct {
	cron      *cron.Cron
	runner    *Runner
	schedules map[string]string
	entries   map[string]cron.EntryID
	logger    *logger.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// ValidateSchedule checks a 5-field cron expression
func ValidateSchedule(spec string) error {
	_, err := parser.Parse(spec)
	return err
}

// New registers one cron entry per job. Jobs with an empty schedule are left out.
func New(runner *Runner, schedules map[string]string, loc *time.Location, log *logger.Logger) (*Scheduler, error) {
	if runner == nil {
		return nil, errors.New("runner is required")
	}
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = logger.Get()
	}

	s := &Scheduler{
		cron:      cron.New(cron.WithParser(parser), cron.WithLocation(loc)),
		runner:    runner,
		schedules: map[string]string{},
		entries:   map[string]cron.EntryID{},
		logger:    log.Component("scheduler"),
		ctx:       context.Background(),
	}

	jobs := make([]string, 0, len(schedules))
	for job := range schedules {
		jobs = append(jobs, job)
	}
	sort.Strings(jobs)

	for _, job := range jobs {
		spec := schedules[job]
		if spec == "" {
			s.logger.Info("Job disabled, no schedule", map[string]interface{}{"job": job})
			continue
		}
		job := job
		id, err := s.cron.AddFunc(spec, func() { s.tick(job) })
		if err != nil {
			return nil, fmt.Errorf("invalid schedule %q for job %s: %w", spec, job, err)
		}
		s.entries[job] = id
		s.schedules[job] = spec
	}
	return s, nil
}

// Start begins firing entries. Runs receive a context derived from ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.cron.Start()
	for _, e := range s.Entries() {
		s.logger.Info("Scheduled job", map[string]interface{}{
			"job":      e.Job,
			"schedule": e.Schedule,
			"next_run": e.Next.Format(time.RFC3339),
		})
	}
}

// Stop halts the cron loop, cancels in-flight runs and waits for them
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	s.runner.Wait()
	s.logger.Info("Scheduler stopped")
}

// Entries lists scheduled jobs ordered by name
func (s *Scheduler) Entries() []Entry {
	out := make([]Entry, 0, len(s.entries))
	for job, id := range s.entries {
		out = append(out, Entry{Job: job, Schedule: s.schedules[job], Next: s.cron.Entry(id).Next})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Job < out[j].Job })
	return out
}

func (s *Scheduler) tick(job string) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	err := s.runner.Start(ctx, job)
	if errors.Is(err, ErrJobRunning) {
		s.logger.Warn("Skipping scheduled run, previous run still in progress", map[string]interface{}{"job": job})
		return
	}
	if err != nil {
		s.logger.Error("Failed to start scheduled job", map[string]interface{}{
			"job":   job,
			"error": err.Error(),
		})
	}
}
