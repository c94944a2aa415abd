// Package alerting implements the Alert Rule Engine (C10): it evaluates
// a configured set of alerts.Rule thresholds against the Monitoring
// Engine's outputs and the scheduler's per-job failure counts, dedupes
// firings by a correlation key within each rule's cooldown, and hands
// new firings to an injected AlertSink.
package alerting

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/entsoe-ingest/collector/internal/apperrors"
	"github.com/entsoe-ingest/collector/internal/clock"
	"github.com/entsoe-ingest/collector/internal/domain/alerts"
	"github.com/entsoe-ingest/collector/internal/monitoring"
	"github.com/entsoe-ingest/collector/internal/storage"
	"github.com/entsoe-ingest/collector/pkg/logger"
)

// AlertSink delivers a fired alert to an external channel. The engine
// treats delivery failure as non-fatal to rule evaluation: it is logged
// and recorded on the alert's DeliveryStatus.
type AlertSink interface {
	Deliver(ctx context.Context, alert alerts.Alert) error
}

// LogSink is the default AlertSink: it logs the alert and always
// succeeds, suitable for environments with no external channel wired in.
type LogSink struct {
	log *logger.Logger
}

// NewLogSink constructs a LogSink. A nil logger defaults to NewDefault.
func NewLogSink(log *logger.Logger) LogSink {
	if log == nil {
		log = logger.NewDefault("alerting")
	}
	return LogSink{log: log}
}

// Deliver logs the alert at warn level and never fails.
func (s LogSink) Deliver(ctx context.Context, alert alerts.Alert) error {
	s.log.WithField("rule_id", alert.RuleID).WithField("severity", alert.Severity).WithField("correlation_key", alert.CorrelationKey).Warn(alert.Message)
	return nil
}

// SchedulerStatus is the subset of the Scheduler the alert engine reads
// to evaluate job_failure_count rules. Implemented by *scheduler.Scheduler.
type SchedulerStatus interface {
	JobFailureCounts() map[string]int
}

// MonitoredPair names one (area, data_type) combination to evaluate
// per-pair success-rate and response-time rules against.
type MonitoredPair struct {
	AreaCode string
	DataType string
}

// Engine evaluates alerts.Rule thresholds on the scheduler's
// health_check cadence.
type Engine struct {
	store      storage.AlertStore
	monitoring *monitoring.Engine
	scheduler  SchedulerStatus
	sink       AlertSink
	clock      clock.Clock
	log        *logger.Logger

	rules []alerts.Rule
	pairs []MonitoredPair
}

// New constructs an Engine. A nil clock defaults to clock.RealClock; a
// nil sink defaults to LogSink.
func New(store storage.AlertStore, mon *monitoring.Engine, scheduler SchedulerStatus, sink AlertSink, clk clock.Clock, rules []alerts.Rule, pairs []MonitoredPair) *Engine {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if sink == nil {
		sink = NewLogSink(nil)
	}
	return &Engine{store: store, monitoring: mon, scheduler: scheduler, sink: sink, clock: clk, log: logger.NewDefault("alerting"), rules: rules, pairs: pairs}
}

// reading is one metric observation an enabled rule can be evaluated
// against.
type reading struct {
	metric   string
	area     string
	dataType string
	value    float64
}

// EvaluateRules gathers current readings, checks each enabled rule
// against every reading for its metric, and fires (persists + delivers)
// a new Alert for every breach not already live within its cooldown.
func (e *Engine) EvaluateRules(ctx context.Context) ([]alerts.Alert, error) {
	readings, err := e.gatherReadings(ctx)
	if err != nil {
		return nil, &apperrors.AlertError{Stage: "evaluate", Err: err}
	}

	var fired []alerts.Alert
	for _, rule := range e.rules {
		if !rule.Enabled {
			continue
		}
		for _, r := range readings {
			if r.metric != rule.Metric {
				continue
			}
			if !rule.Breaches(r.value) {
				continue
			}

			alert, err := e.fire(ctx, rule, r)
			if err != nil {
				return fired, &apperrors.AlertError{RuleID: rule.ID, Stage: "evaluate", Err: err}
			}
			if alert != nil {
				fired = append(fired, *alert)
			}
		}
	}
	return fired, nil
}

func (e *Engine) gatherReadings(ctx context.Context) ([]reading, error) {
	now := e.clock.Now()
	start := now.Add(-1 * time.Hour)

	var readings []reading

	perf, err := e.monitoring.GetPerformanceMetrics(ctx, start, now)
	if err != nil {
		return nil, err
	}
	if perf.TotalOperations > 0 {
		readings = append(readings, reading{metric: "overall_success_rate", value: perf.OverallSuccessRate})
	}

	rates, err := e.monitoring.CalculateSuccessRates(ctx, start, now)
	if err != nil {
		return nil, err
	}
	for _, p := range e.pairs {
		if rate, ok := rates[p.AreaCode+"/"+p.DataType]; ok {
			readings = append(readings, reading{metric: "success_rate", area: p.AreaCode, dataType: p.DataType, value: rate})
		}

		report, err := e.monitoring.DetectAnomalies(ctx, p.AreaCode, p.DataType, start, now)
		if err != nil {
			return nil, err
		}
		for _, a := range report.Anomalies {
			switch a.Type {
			case monitoring.AnomalyHighResponseTime:
				readings = append(readings, reading{metric: "response_time_ms", area: p.AreaCode, dataType: p.DataType, value: a.Value})
			case monitoring.AnomalyNoDataCollection:
				readings = append(readings, reading{metric: "no_data_collection", area: p.AreaCode, dataType: p.DataType, value: 0})
			}
		}
	}

	if e.scheduler != nil {
		for job, count := range e.scheduler.JobFailureCounts() {
			readings = append(readings, reading{metric: "job_failure_count", dataType: job, value: float64(count)})
		}
	}

	return readings, nil
}

func (e *Engine) fire(ctx context.Context, rule alerts.Rule, r reading) (*alerts.Alert, error) {
	key := correlationKey(rule.ID, r.area, r.dataType)

	live, err := e.store.GetLiveByCorrelationKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if live != nil {
		now := e.clock.Now()
		if rule.Cooldown <= 0 || now.Sub(live.FiredAt) < rule.Cooldown {
			return nil, nil
		}
	}

	alert := alerts.Alert{
		RuleID:         rule.ID,
		CorrelationKey: key,
		Severity:       rule.Severity,
		Message:        fmt.Sprintf("rule %q breached: %s=%.4f (area=%s, data_type=%s)", rule.Name, r.metric, r.value, r.area, r.dataType),
		FiredAt:        e.clock.Now(),
		DeliveryStatus: alerts.DeliveryPending,
	}

	created, err := e.store.CreateAlert(ctx, alert)
	if err != nil {
		return nil, err
	}

	deliverErr := e.sink.Deliver(ctx, *created)
	if deliverErr != nil {
		created.DeliveryStatus = alerts.DeliveryFailed
	} else {
		created.DeliveryStatus = alerts.DeliveryDelivered
	}
	if err := e.store.UpdateDeliveryStatus(ctx, created.ID, created.DeliveryStatus); err != nil {
		e.log.WithField("alert_id", created.ID).WithField("error", err).Warn("alerting: failed to persist delivery status")
	}
	if deliverErr != nil {
		e.log.WithField("alert_id", created.ID).WithField("error", deliverErr).Warn("alerting: sink delivery failed")
	}
	return created, nil
}

// ResolveRule marks every currently-live alert fired by ruleID resolved.
func (e *Engine) ResolveRule(ctx context.Context, ruleID string) error {
	active, err := e.store.ListActive(ctx)
	if err != nil {
		return &apperrors.AlertError{RuleID: ruleID, Stage: "evaluate", Err: err}
	}
	now := e.clock.Now()
	for _, a := range active {
		if a.RuleID != ruleID {
			continue
		}
		if err := e.store.ResolveMostRecent(ctx, a.CorrelationKey, now); err != nil {
			return &apperrors.AlertError{RuleID: ruleID, Stage: "evaluate", Err: err}
		}
	}
	return nil
}

// ListActiveAlerts returns every unresolved alert.
func (e *Engine) ListActiveAlerts(ctx context.Context) ([]alerts.Alert, error) {
	active, err := e.store.ListActive(ctx)
	if err != nil {
		return nil, &apperrors.AlertError{Stage: "evaluate", Err: err}
	}
	return active, nil
}

func correlationKey(ruleID, area, dataType string) string {
	sum := sha256.Sum256([]byte(ruleID + "|" + area + "|" + dataType))
	return hex.EncodeToString(sum[:])[:16]
}
