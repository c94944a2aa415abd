package main

import (
	"context"
	"time"

	"github.com/entsoe-ingest/collector/internal/alerting"
	"github.com/entsoe-ingest/collector/internal/backfillengine"
	"github.com/entsoe-ingest/collector/internal/realtime"
	"github.com/entsoe-ingest/collector/internal/scheduler"
	"github.com/entsoe-ingest/collector/pkg/config"
)

// buildJobs assembles the four scheduled jobs named in the scheduler's
// spec: real-time gap collection, periodic coverage analysis, a daily
// reporting-only coverage sweep, and a health check that feeds the alert
// engine.
// alerts is a pointer to the alert engine variable in main, since the
// Engine itself is constructed after the scheduler (it needs the
// scheduler for job_failure_count readings) but the health_check job
// must be registered before the scheduler starts; the closure below
// dereferences it lazily, after main has assigned the real value.
func buildJobs(cfg *config.Config, rt *realtime.Engine, bf *backfillengine.Engine, alerts **alerting.Engine) []scheduler.Job {
	var jobs []scheduler.Job

	if cfg.Scheduler.RealTimeCollectionIntervalMinutes > 0 {
		jobs = append(jobs, scheduler.Job{
			Name:     "real_time_collection",
			Interval: time.Duration(cfg.Scheduler.RealTimeCollectionIntervalMinutes) * time.Minute,
			Run: func(ctx context.Context) error {
				_, err := rt.CollectAllGaps(ctx, monitoredAreas)
				return err
			},
		})
	}

	if cfg.Scheduler.GapAnalysisIntervalHours > 0 {
		jobs = append(jobs, scheduler.Job{
			Name:     "gap_analysis",
			Interval: time.Duration(cfg.Scheduler.GapAnalysisIntervalHours) * time.Hour,
			Run: func(ctx context.Context) error {
				_, err := bf.AnalyzeCoverage(ctx, monitoredAreas, nil, 0)
				return err
			},
		})
	}

	jobs = append(jobs, scheduler.Job{
		Name:     "daily_backfill_analysis",
		CronSpec: dailyCronSpec(cfg.Scheduler.DailyBackfillAnalysisMinute, cfg.Scheduler.DailyBackfillAnalysisHour),
		Run: func(ctx context.Context) error {
			// Reports only: it never starts a backfill on its own.
			_, err := bf.AnalyzeCoverage(ctx, monitoredAreas, nil, cfg.Backfill.HistoricalYears)
			return err
		},
	})

	if cfg.Scheduler.JobHealthCheckIntervalMinutes > 0 {
		jobs = append(jobs, scheduler.Job{
			Name:     "health_check",
			Interval: time.Duration(cfg.Scheduler.JobHealthCheckIntervalMinutes) * time.Minute,
			Run: func(ctx context.Context) error {
				_, err := (*alerts).EvaluateRules(ctx)
				return err
			},
		})
	}

	return jobs
}

// dailyCronSpec builds a standard 5-field cron expression firing once a
// day at the configured UTC hour:minute.
func dailyCronSpec(minute, hour int) string {
	return itoa(minute) + " " + itoa(hour) + " * * *"
}
