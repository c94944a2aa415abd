// Package scheduler implements the Scheduler (C8): interval and cron
// triggers dispatching through one retry/backoff path, database
// preflight, and idempotent Start/Stop lifecycle modeled on the
// teacher's system.Manager service lifecycle.
package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/entsoe-ingest/collector/internal/apperrors"
	"github.com/entsoe-ingest/collector/internal/clock"
	"github.com/entsoe-ingest/collector/pkg/config"
	"github.com/entsoe-ingest/collector/pkg/logger"
)

// ErrAlreadyRunning is returned by Start when the scheduler is already
// running; Start is otherwise idempotent.
var ErrAlreadyRunning = errors.New("scheduler: already running")

// JobFunc is one job's unit of work, dispatched on its trigger.
type JobFunc func(ctx context.Context) error

// Job names a unit of scheduled work and its trigger. Exactly one of
// Interval or CronSpec should be set; CronSpec is a standard 5-field
// cron expression evaluated once a minute.
type Job struct {
	Name     string
	Interval time.Duration
	CronSpec string
	Run      JobFunc
}

// JobState reports one job's current lifecycle bookkeeping.
type JobState struct {
	Name              string
	NextRunTime       time.Time
	FailureCount      int
	LastSuccessfulRun *time.Time
	Quarantined       bool
}

type jobRuntime struct {
	spec Job

	mu                sync.Mutex
	failureCount      int
	lastSuccessfulRun *time.Time
	nextRunTime       time.Time
	quarantined       bool
}

// Scheduler drives registered Jobs on their configured triggers with a
// shared retry/backoff dispatch path.
type Scheduler struct {
	db    *sql.DB
	clock clock.Clock
	cfg   config.SchedulerConfig
	log   *logger.Logger

	jobs map[string]*jobRuntime
	cron *cron.Cron

	mu        sync.Mutex
	started   bool
	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// New constructs a Scheduler over the given jobs. A nil clock defaults
// to clock.RealClock; a nil logger defaults to NewDefault.
func New(db *sql.DB, cfg config.SchedulerConfig, clk clock.Clock, log *logger.Logger, jobs []Job) *Scheduler {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if log == nil {
		log = logger.NewDefault("scheduler")
	}
	s := &Scheduler{
		db:    db,
		clock: clk,
		cfg:   cfg,
		log:   log,
		jobs:  make(map[string]*jobRuntime, len(jobs)),
		cron:  cron.New(),
	}
	for _, j := range jobs {
		s.jobs[j.Name] = &jobRuntime{spec: j}
	}
	return s
}

// Start preflights the database connection, then launches every
// registered job on its trigger. Calling Start again while running
// returns ErrAlreadyRunning without restarting anything.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.started = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	if s.db != nil {
		preflightCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if _, err := s.db.ExecContext(preflightCtx, "SELECT 1"); err != nil {
			s.mu.Lock()
			s.started = false
			s.mu.Unlock()
			return &apperrors.SchedulerConfigurationError{Field: "database_connection", Err: err}
		}
	}

	for _, rt := range s.jobs {
		s.launch(ctx, rt)
	}
	s.cron.Start()
	return nil
}

// Stop halts all triggers, then blocks until every in-flight job run
// finishes. It is safe to call more than once.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		if !s.started {
			s.mu.Unlock()
			return
		}
		close(s.stopCh)
		s.mu.Unlock()

		cronCtx := s.cron.Stop()
		select {
		case <-cronCtx.Done():
		case <-ctx.Done():
		}
		s.wg.Wait()

		s.mu.Lock()
		s.started = false
		s.mu.Unlock()
	})
	return nil
}

func (s *Scheduler) launch(ctx context.Context, rt *jobRuntime) {
	if rt.spec.CronSpec != "" {
		_, _ = s.cron.AddFunc(rt.spec.CronSpec, func() {
			s.runWithRetry(ctx, rt)
		})
		return
	}

	interval := rt.spec.Interval
	if interval <= 0 {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.runWithRetry(ctx, rt)
			}
		}
	}()
}

// runWithRetry executes the job once; on failure it schedules one-shot
// retries with exponential backoff and jitter until success or
// max_retry_attempts is exhausted, at which point the job is
// quarantined until an operator intervenes or it next succeeds on its
// regular trigger.
func (s *Scheduler) runWithRetry(ctx context.Context, rt *jobRuntime) {
	s.wg.Add(1)
	defer s.wg.Done()

	err := s.invoke(ctx, rt)
	if err == nil {
		return
	}

	rt.mu.Lock()
	attempts := rt.failureCount
	rt.mu.Unlock()

	for attempts < s.cfg.MaxRetryAttempts {
		delay := retryDelay(attempts, s.cfg.RetryBackoffBaseSeconds, s.cfg.RetryBackoffMaxSeconds)
		timer := time.NewTimer(delay)
		select {
		case <-s.stopCh:
			timer.Stop()
			return
		case <-timer.C:
		}

		if err := s.invoke(ctx, rt); err == nil {
			return
		}
		rt.mu.Lock()
		attempts = rt.failureCount
		rt.mu.Unlock()
	}

	rt.mu.Lock()
	rt.quarantined = true
	rt.mu.Unlock()
	s.log.WithField("job", rt.spec.Name).Warn("scheduler: job quarantined after exhausting retry attempts")
}

// invoke runs the job once and updates its bookkeeping; it never
// panics out to the caller's goroutine loop.
func (s *Scheduler) invoke(ctx context.Context, rt *jobRuntime) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	err = rt.spec.Run(ctx)

	rt.mu.Lock()
	defer rt.mu.Unlock()
	if err != nil {
		rt.failureCount++
		s.log.WithField("job", rt.spec.Name).WithField("error", err).WithField("failure_count", rt.failureCount).Warn("scheduler: job run failed")
		return err
	}
	now := s.clock.Now()
	rt.lastSuccessfulRun = &now
	rt.failureCount = 0
	rt.quarantined = false
	return nil
}

// retryDelay computes delay = min(base*2^(n-1), max) + uniform(0.1,0.3)*base*2^(n-1),
// where n is the 1-indexed failure count (attempts+1).
func retryDelay(attempts, baseSeconds, maxSeconds int) time.Duration {
	n := attempts + 1
	backoff := float64(baseSeconds) * pow2(n-1)
	capped := backoff
	if float64(maxSeconds) < capped {
		capped = float64(maxSeconds)
	}
	jitter := (0.1 + rand.Float64()*0.2) * backoff
	return time.Duration((capped + jitter) * float64(time.Second))
}

func pow2(n int) float64 {
	if n <= 0 {
		return 1
	}
	result := 1.0
	for i := 0; i < n; i++ {
		result *= 2
	}
	return result
}

// JobFailureCounts returns each job's current consecutive-failure
// count, for the Alert Rule Engine's job_failure_count rules.
func (s *Scheduler) JobFailureCounts() map[string]int {
	counts := make(map[string]int, len(s.jobs))
	for name, rt := range s.jobs {
		rt.mu.Lock()
		counts[name] = rt.failureCount
		rt.mu.Unlock()
	}
	return counts
}

// JobStates reports every job's lifecycle bookkeeping for operator
// diagnostics; the HTTP admin surface does not expose it.
func (s *Scheduler) JobStates() []JobState {
	states := make([]JobState, 0, len(s.jobs))
	for name, rt := range s.jobs {
		rt.mu.Lock()
		states = append(states, JobState{
			Name:              name,
			NextRunTime:       rt.nextRunTime,
			FailureCount:      rt.failureCount,
			LastSuccessfulRun: rt.lastSuccessfulRun,
			Quarantined:       rt.quarantined,
		})
		rt.mu.Unlock()
	}
	return states
}
