// Package monitoring implements the Monitoring Engine (C9): a read-mostly
// consumer of the Metrics Store that aggregates collection outcomes into
// success rates, performance summaries, anomaly reports, trend reports,
// and a system health summary.
package monitoring

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/entsoe-ingest/collector/internal/apperrors"
	"github.com/entsoe-ingest/collector/internal/clock"
	"github.com/entsoe-ingest/collector/internal/domain/metrics"
	"github.com/entsoe-ingest/collector/internal/storage"
	"github.com/entsoe-ingest/collector/pkg/config"
)

// AnomalyType names the kind of deviation DetectAnomalies can report.
type AnomalyType string

const (
	AnomalyLowSuccessRate   AnomalyType = "low_success_rate"
	AnomalyHighResponseTime AnomalyType = "high_response_time"
	AnomalyNoDataCollection AnomalyType = "no_data_collection"
)

// Severity mirrors the alerts package's severity scale without importing
// it, since anomalies are a monitoring-local concept the alert engine
// later maps onto its own rules.
type Severity string

const (
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Anomaly is one detected deviation for an (area, data_type) pair.
type Anomaly struct {
	Type     AnomalyType
	Severity Severity
	Message  string
	Value    float64
	Threshold float64
}

// AnomalyReport is DetectAnomalies's result for one (area, data_type, period).
type AnomalyReport struct {
	AreaCode    string
	DataType    string
	PeriodStart time.Time
	PeriodEnd   time.Time
	Anomalies   []Anomaly
}

// DayStats is one day's aggregate within a TrendReport.
type DayStats struct {
	Day                time.Time
	TotalOperations    int
	SuccessfulOperations int
	SuccessRate        float64
}

// TrendDirection classifies how collection volume moved across a
// TrendReport's window.
type TrendDirection string

const (
	TrendIncreasing      TrendDirection = "increasing"
	TrendDecreasing      TrendDirection = "decreasing"
	TrendStable          TrendDirection = "stable"
	TrendInsufficientData TrendDirection = "insufficient_data"
)

// TrendReport is GetCollectionTrends's result.
type TrendReport struct {
	Days           []DayStats
	TrendDirection TrendDirection
}

// Status is a coarse health classification shared by HealthSummary's
// sub-statuses and its overall status.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
)

// HealthSummary is GetSystemHealthSummary's result.
type HealthSummary struct {
	OverallStatus      Status
	PerformanceStatus  Status
	AvailabilityStatus Status
	DataQualityStatus  Status
	StatusReasons      []string
}

// FailureReport is AnalyzeFailurePatterns's result.
type FailureReport struct {
	ByArea          map[string]int
	ByDataType      map[string]int
	ByErrorPattern  map[string]int
	Top5            []PatternCount
	Recommendations []string
}

// PatternCount is one entry of FailureReport's Top5 ranking.
type PatternCount struct {
	Pattern string
	Count   int
}

// Engine aggregates CollectionMetrics into operator-facing reports.
type Engine struct {
	store storage.MetricsStore
	clock clock.Clock
	cfg   config.MonitoringConfig
}

// New constructs an Engine. A nil clock defaults to clock.RealClock.
func New(store storage.MetricsStore, clk clock.Clock, cfg config.MonitoringConfig) *Engine {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Engine{store: store, clock: clk, cfg: cfg}
}

// TrackCollectionResult persists one CollectionMetrics row.
func (e *Engine) TrackCollectionResult(ctx context.Context, result metrics.CollectionMetrics) error {
	if result.AreaCode == "" || result.DataType == "" {
		return &apperrors.MonitoringError{Operation: "track_collection_result", Err: errors.New("area_code and data_type are required")}
	}
	if err := e.store.Insert(ctx, result); err != nil {
		return &apperrors.MonitoringError{Operation: "track_collection_result", Err: err}
	}
	return nil
}

// CalculateSuccessRates returns the success rate, keyed "area/data_type",
// for every (area, data_type) pair observed in [start, end).
func (e *Engine) CalculateSuccessRates(ctx context.Context, start, end time.Time) (map[string]float64, error) {
	rows, err := e.store.GetMetricsByTimeRange(ctx, start, end, nil, nil)
	if err != nil {
		return nil, &apperrors.MonitoringError{Operation: "calculate_success_rates", Err: err}
	}

	type counters struct{ total, successful int }
	grouped := make(map[string]*counters)
	for _, m := range rows {
		key := m.AreaCode + "/" + m.DataType
		c, ok := grouped[key]
		if !ok {
			c = &counters{}
			grouped[key] = c
		}
		c.total++
		if m.Success {
			c.successful++
		}
	}

	rates := make(map[string]float64, len(grouped))
	for key, c := range grouped {
		if c.total == 0 {
			rates[key] = 0
			continue
		}
		rates[key] = float64(c.successful) / float64(c.total)
	}
	return rates, nil
}

// GetPerformanceMetrics delegates to the store's aggregate query.
func (e *Engine) GetPerformanceMetrics(ctx context.Context, start, end time.Time) (metrics.PerformanceMetrics, error) {
	perf, err := e.store.GetPerformanceMetrics(ctx, start, end)
	if err != nil {
		return metrics.PerformanceMetrics{}, &apperrors.MonitoringError{Operation: "get_performance_metrics", Err: err}
	}
	return perf, nil
}

// GetRecentMetrics delegates to the store's recency query.
func (e *Engine) GetRecentMetrics(ctx context.Context, minutes int) ([]metrics.CollectionMetrics, error) {
	rows, err := e.store.GetRecentMetrics(ctx, minutes)
	if err != nil {
		return nil, &apperrors.MonitoringError{Operation: "get_recent_metrics", Err: err}
	}
	return rows, nil
}

// DetectAnomalies flags low success rate, high response time, and
// zero-activity conditions for one (area, data_type) pair over a period.
func (e *Engine) DetectAnomalies(ctx context.Context, area, dataType string, start, end time.Time) (AnomalyReport, error) {
	report := AnomalyReport{AreaCode: area, DataType: dataType, PeriodStart: start, PeriodEnd: end}

	rows, err := e.store.GetMetricsByTimeRange(ctx, start, end, []string{area}, []string{dataType})
	if err != nil {
		return AnomalyReport{}, &apperrors.MonitoringError{Operation: "detect_anomalies", Err: err}
	}

	if len(rows) == 0 {
		report.Anomalies = append(report.Anomalies, Anomaly{
			Type:     AnomalyNoDataCollection,
			Severity: SeverityHigh,
			Message:  "no collection operations recorded in period",
		})
		return report, nil
	}

	var successful int
	var totalResponseMs float64
	for _, m := range rows {
		if m.Success {
			successful++
		}
		totalResponseMs += float64(m.APIResponseTime) / float64(time.Millisecond)
	}
	successRate := float64(successful) / float64(len(rows))
	avgResponseMs := totalResponseMs / float64(len(rows))

	if successRate < e.cfg.SuccessRateThreshold {
		severity := SeverityMedium
		if successRate < 0.8 {
			severity = SeverityHigh
		}
		report.Anomalies = append(report.Anomalies, Anomaly{
			Type:      AnomalyLowSuccessRate,
			Severity:  severity,
			Message:   "success rate below configured threshold",
			Value:     successRate,
			Threshold: e.cfg.SuccessRateThreshold,
		})
	}

	if avgResponseMs > e.cfg.PerformanceThresholdMS {
		report.Anomalies = append(report.Anomalies, Anomaly{
			Type:      AnomalyHighResponseTime,
			Severity:  SeverityMedium,
			Message:   "average API response time above configured threshold",
			Value:     avgResponseMs,
			Threshold: e.cfg.PerformanceThresholdMS,
		})
	}

	return report, nil
}

// GetCollectionTrends buckets the last `days` days of metrics and
// classifies the trend by comparing the first 3 days' mean operation
// count to the last 3 days'.
func (e *Engine) GetCollectionTrends(ctx context.Context, days int) (TrendReport, error) {
	now := e.clock.Now()
	start := now.AddDate(0, 0, -days)

	rows, err := e.store.GetMetricsByTimeRange(ctx, start, now, nil, nil)
	if err != nil {
		return TrendReport{}, &apperrors.MonitoringError{Operation: "get_collection_trends", Err: err}
	}

	byDay := make(map[string]*DayStats)
	var order []string
	for _, m := range rows {
		day := m.CollectionStart.UTC().Truncate(24 * time.Hour)
		key := day.Format("2006-01-02")
		stats, ok := byDay[key]
		if !ok {
			stats = &DayStats{Day: day}
			byDay[key] = stats
			order = append(order, key)
		}
		stats.TotalOperations++
		if m.Success {
			stats.SuccessfulOperations++
		}
	}
	sort.Strings(order)

	report := TrendReport{}
	for _, key := range order {
		s := byDay[key]
		if s.TotalOperations > 0 {
			s.SuccessRate = float64(s.SuccessfulOperations) / float64(s.TotalOperations)
		}
		report.Days = append(report.Days, *s)
	}

	if len(report.Days) < 6 {
		report.TrendDirection = TrendInsufficientData
		return report, nil
	}

	firstMean := meanOperations(report.Days[:3])
	lastMean := meanOperations(report.Days[len(report.Days)-3:])

	switch {
	case lastMean > firstMean*1.05:
		report.TrendDirection = TrendIncreasing
	case lastMean < firstMean*0.95:
		report.TrendDirection = TrendDecreasing
	default:
		report.TrendDirection = TrendStable
	}
	return report, nil
}

func meanOperations(days []DayStats) float64 {
	if len(days) == 0 {
		return 0
	}
	var total int
	for _, d := range days {
		total += d.TotalOperations
	}
	return float64(total) / float64(len(days))
}

// GetSystemHealthSummary derives a composite status from recent
// performance, availability, and data-quality signals.
func (e *Engine) GetSystemHealthSummary(ctx context.Context) (HealthSummary, error) {
	now := e.clock.Now()
	start := now.Add(-1 * time.Hour)

	perf, err := e.store.GetPerformanceMetrics(ctx, start, now)
	if err != nil {
		return HealthSummary{}, &apperrors.MonitoringError{Operation: "get_system_health_summary", Err: err}
	}

	summary := HealthSummary{
		OverallStatus:      StatusHealthy,
		PerformanceStatus:  StatusHealthy,
		AvailabilityStatus: StatusHealthy,
		DataQualityStatus:  StatusHealthy,
	}

	avgMs := float64(perf.AvgAPIResponseTime) / float64(time.Millisecond)
	if avgMs > e.cfg.PerformanceThresholdMS {
		summary.PerformanceStatus = StatusDegraded
		summary.StatusReasons = append(summary.StatusReasons, "average API response time above threshold")
	}

	if perf.TotalOperations > 0 && perf.OverallSuccessRate < e.cfg.SuccessRateThreshold {
		summary.AvailabilityStatus = StatusDegraded
		summary.StatusReasons = append(summary.StatusReasons, "overall success rate below threshold")
	}

	if perf.TotalOperations == 0 {
		summary.DataQualityStatus = StatusDegraded
		summary.StatusReasons = append(summary.StatusReasons, "no collection operations in the last hour")
	}

	if summary.PerformanceStatus == StatusDegraded || summary.AvailabilityStatus == StatusDegraded || summary.DataQualityStatus == StatusDegraded {
		summary.OverallStatus = StatusDegraded
	}
	return summary, nil
}

// AnalyzeFailurePatterns groups failed operations by area, data type,
// and the first token of their error message, and recommends action on
// any dimension where one value dominates at least half of failures.
func (e *Engine) AnalyzeFailurePatterns(ctx context.Context, start, end time.Time) (FailureReport, error) {
	rows, err := e.store.GetMetricsByTimeRange(ctx, start, end, nil, nil)
	if err != nil {
		return FailureReport{}, &apperrors.MonitoringError{Operation: "analyze_failure_patterns", Err: err}
	}

	report := FailureReport{
		ByArea:         make(map[string]int),
		ByDataType:     make(map[string]int),
		ByErrorPattern: make(map[string]int),
	}

	var failures int
	for _, m := range rows {
		if m.Success {
			continue
		}
		failures++
		report.ByArea[m.AreaCode]++
		report.ByDataType[m.DataType]++
		report.ByErrorPattern[firstToken(m.ErrorMessage)]++
	}

	for pattern, count := range report.ByErrorPattern {
		report.Top5 = append(report.Top5, PatternCount{Pattern: pattern, Count: count})
	}
	sort.Slice(report.Top5, func(i, j int) bool {
		if report.Top5[i].Count != report.Top5[j].Count {
			return report.Top5[i].Count > report.Top5[j].Count
		}
		return report.Top5[i].Pattern < report.Top5[j].Pattern
	})
	if len(report.Top5) > 5 {
		report.Top5 = report.Top5[:5]
	}

	if failures > 0 {
		report.Recommendations = append(report.Recommendations, dominanceRecommendations("area", report.ByArea, failures)...)
		report.Recommendations = append(report.Recommendations, dominanceRecommendations("data type", report.ByDataType, failures)...)
		report.Recommendations = append(report.Recommendations, dominanceRecommendations("error pattern", report.ByErrorPattern, failures)...)
	}

	return report, nil
}

func dominanceRecommendations(dimension string, counts map[string]int, total int) []string {
	var recs []string
	for value, count := range counts {
		if float64(count)/float64(total) >= 0.5 {
			recs = append(recs, "investigate "+dimension+" \""+value+"\", responsible for the majority of recent failures")
		}
	}
	sort.Strings(recs)
	return recs
}

func firstToken(msg *string) string {
	if msg == nil || *msg == "" {
		return "unknown"
	}
	fields := strings.Fields(*msg)
	if len(fields) == 0 {
		return "unknown"
	}
	return fields[0]
}

// CleanupOldMetrics delegates to the store's retention sweep using the
// configured retention window.
func (e *Engine) CleanupOldMetrics(ctx context.Context) (int, error) {
	removed, err := e.store.CleanupOldMetrics(ctx, e.cfg.MetricsRetentionDays)
	if err != nil {
		return 0, &apperrors.MonitoringError{Operation: "cleanup_old_metrics", Err: err}
	}
	return removed, nil
}
