package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/marketcore-backend/pkg/logger"
	"github.com/angelmondragon/marketcore-backend/pkg/metrics"
)

// Job is one unit of scheduled work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

const defaultInterval = 24 * time.Hour

type ScheduleParams struct {
	// Name labels logs, metrics and the Redis lock key.
	Name     string
	Interval time.Duration
	// JobTimeout bounds a single job; zero leaves jobs bounded only by the
	// process context.
	JobTimeout time.Duration
	Lock       Lock
	Logger     *logger.Logger
	Metrics    *metrics.CronJobMetrics
}

// Schedule runs its jobs in order on a fixed interval. Only the instance
// holding the lock runs a cycle; a failing job does not stop the ones after
// it.
type Schedule struct {
	name       string
	interval   time.Duration
	jobTimeout time.Duration
	lock       Lock
	logg       *logger.Logger
	metrics    *metrics.CronJobMetrics
	jobs       []Job
}

func NewSchedule(params ScheduleParams, jobs ...Job) (*Schedule, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	s := &Schedule{
		name:       params.Name,
		interval:   params.Interval,
		jobTimeout: params.JobTimeout,
		lock:       params.Lock,
		logg:       params.Logger,
		metrics:    params.Metrics,
	}
	if s.name == "" {
		s.name = "default"
	}
	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	for _, job := range jobs {
		if job != nil {
			s.jobs = append(s.jobs, job)
		}
	}
	return s, nil
}

func (s *Schedule) Name() string { return s.name }

// Jobs returns a copy of the registered jobs in run order.
func (s *Schedule) Jobs() []Job {
	return append([]Job(nil), s.jobs...)
}

// Run executes a cycle immediately and then once per interval until ctx is
// cancelled.
func (s *Schedule) Run(ctx context.Context) error {
	ctx = s.logg.WithField(ctx, "schedule", s.name)
	s.tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "schedule stopped")
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Schedule) tick(ctx context.Context) {
	ran, err := s.RunOnce(ctx)
	switch {
	case !ran && err == nil:
		s.metrics.LockSkipped(s.name)
		s.logg.Info(ctx, "schedule lock held elsewhere; cycle skipped")
	case err != nil:
		s.logg.Error(ctx, "schedule cycle finished with errors", err)
	}
}

// RunOnce runs a single cycle. ran is false when another instance holds the
// lock. The returned error combines every job failure of the cycle.
func (s *Schedule) RunOnce(ctx context.Context) (ran bool, err error) {
	acquired, err := s.lock.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire %s lock: %w", s.name, err)
	}
	if !acquired {
		return false, nil
	}
	defer func() {
		if relErr := s.lock.Release(context.WithoutCancel(ctx)); relErr != nil {
			s.logg.Error(ctx, "release schedule lock", relErr)
		}
	}()

	for _, job := range s.jobs {
		err = multierr.Append(err, s.runJob(ctx, job))
	}
	return true, err
}

func (s *Schedule) runJob(ctx context.Context, job Job) error {
	jobCtx := s.logg.WithFields(ctx, map[string]any{"job": job.Name(), "event": "cron.job"})
	if s.jobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(jobCtx, s.jobTimeout)
		defer cancel()
	}

	start := time.Now()
	err := job.Run(jobCtx)
	took := time.Since(start)
	s.metrics.ObserveRun(s.name, job.Name(), err, took)

	jobCtx = s.logg.WithField(jobCtx, "duration_ms", took.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "job failed", err)
		return fmt.Errorf("%s: %w", job.Name(), err)
	}
	s.logg.Info(jobCtx, "job completed")
	return nil
}
