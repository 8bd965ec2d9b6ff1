package cron

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Job represents a scheduled job
type Job struct {
	Name        string
	Interval    time.Duration
	Fn          func(ctx context.Context) error
	SkipInitial bool
}

// JobOption tweaks a job at registration
type JobOption func(*Job)

// WithoutInitialRun waits one full interval before the first run
func WithoutInitialRun() JobOption {
	return func(j *Job) { j.SkipInitial = true }
}

// Scheduler manages scheduled jobs
type Scheduler struct {
	jobs    []Job
	logger  *slog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// NewScheduler creates a new cron scheduler
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		jobs:   make([]Job, 0),
		logger: logger.With("component", "cron"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// AddJob adds a job to the scheduler. Jobs with a non-positive interval are
// ignored.
func (s *Scheduler) AddJob(name string, interval time.Duration, fn func(ctx context.Context) error, opts ...JobOption) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if interval <= 0 {
		s.logger.Info("Cron job disabled", "name", name)
		return
	}

	job := Job{
		Name:     name,
		Interval: interval,
		Fn:       fn,
	}
	for _, opt := range opts {
		opt(&job)
	}
	s.jobs = append(s.jobs, job)
	s.logger.Info("Cron job registered", "name", name, "interval", interval)

	if s.started {
		s.wg.Add(1)
		go s.runJob(job)
	}
}

// Start begins running all scheduled jobs. Jobs added later start right away.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}
	s.started = true
	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.runJob(job)
	}

	s.logger.Info("Cron scheduler started", "job_count", len(s.jobs))
}

// Stop gracefully stops all scheduled jobs and waits for running ones
func (s *Scheduler) Stop() {
	s.logger.Debug("Stopping cron scheduler...")
	s.cancel()
	s.wg.Wait()
	s.logger.Debug("Cron scheduler stopped")
}

// runJob runs a single job on its schedule
func (s *Scheduler) runJob(job Job) {
	defer s.wg.Done()

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	if !job.SkipInitial {
		s.executeJob(job)
	}

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Debug("Cron job stopping", "name", job.Name)
			return
		case <-ticker.C:
			s.executeJob(job)
		}
	}
}

// executeJob executes a job and logs results
func (s *Scheduler) executeJob(job Job) {
	if s.ctx.Err() != nil {
		return
	}
	start := time.Now()
	s.logger.Debug("Cron job starting", "name", job.Name)

	if err := job.Fn(s.ctx); err != nil {
		s.logger.Error("Cron job failed", "name", job.Name, "error", err, "duration", time.Since(start))
	} else {
		s.logger.Debug("Cron job completed", "name", job.Name, "duration", time.Since(start))
	}
}

// RunOnce runs all jobs once (useful for testing)
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.mu.Lock()
	jobs := append([]Job(nil), s.jobs...)
	s.mu.Unlock()

	for _, job := range jobs {
		if err := job.Fn(ctx); err != nil {
			s.logger.Error("Cron job failed", "name", job.Name, "error", err)
		}
	}
}
