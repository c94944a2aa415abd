package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entsoe-ingest/collector/internal/alerting"
	"github.com/entsoe-ingest/collector/internal/backfillengine"
	"github.com/entsoe-ingest/collector/internal/clock"
	"github.com/entsoe-ingest/collector/internal/collector"
	"github.com/entsoe-ingest/collector/internal/domain/alerts"
	"github.com/entsoe-ingest/collector/internal/domain/metrics"
	"github.com/entsoe-ingest/collector/internal/monitoring"
	"github.com/entsoe-ingest/collector/internal/storage/memory"
	"github.com/entsoe-ingest/collector/internal/transform"
	"github.com/entsoe-ingest/collector/pkg/config"
)

type noopCollector struct{}

func (noopCollector) ActualLoad(ctx context.Context, area string, start, end time.Time) (transform.Document, error) {
	return transform.Document{}, collector.ErrNoData
}
func (noopCollector) DayAheadForecast(ctx context.Context, area string, start, end time.Time) (transform.Document, error) {
	return transform.Document{}, collector.ErrNoData
}
func (noopCollector) WeekAheadForecast(ctx context.Context, area string, start, end time.Time) (transform.Document, error) {
	return transform.Document{}, collector.ErrNoData
}
func (noopCollector) MonthAheadForecast(ctx context.Context, area string, start, end time.Time) (transform.Document, error) {
	return transform.Document{}, collector.ErrNoData
}
func (noopCollector) YearAheadForecast(ctx context.Context, area string, start, end time.Time) (transform.Document, error) {
	return transform.Document{}, collector.ErrNoData
}
func (noopCollector) ForecastMargin(ctx context.Context, area string, start, end time.Time) (transform.Document, error) {
	return transform.Document{}, collector.ErrNoData
}
func (noopCollector) DayAheadPrices(ctx context.Context, area string, start, end time.Time) (transform.Document, error) {
	return transform.Document{}, collector.ErrNoData
}

type noSleep struct{}

func (noSleep) Sleep(ctx context.Context, d time.Duration) {}

type fixedReadiness struct{ ready bool }

func (f fixedReadiness) Ready() bool { return f.ready }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store := memory.New()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	backfills := backfillengine.New(noopCollector{}, store, store, store, clock.FixedClock{At: now}, noSleep{}, backfillengine.Config{}, nil)

	mon := monitoring.New(store, clock.FixedClock{At: now}, config.MonitoringConfig{SuccessRateThreshold: 0.95, PerformanceThresholdMS: 5000})
	rules := []alerts.Rule{{ID: "r1", Name: "test rule", Metric: "success_rate", Compare: alerts.ComparisonLessThan, Threshold: 0.9, Severity: alerts.SeverityHigh, Enabled: true}}
	alertEngine := alerting.New(store, mon, nil, nil, clock.FixedClock{At: now}, rules, nil)

	require.NoError(t, store.InsertMany(context.Background(), []metrics.CollectionMetrics{}))

	return New(backfills, alertEngine, fixedReadiness{ready: true}, nil, nil)
}

func TestHealthzReportsReadiness(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body healthzResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Ready)
}

func TestListBackfillsReturnsEmptyList(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/backfills", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body []backfillengine.StatusSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Empty(t, body)
}

func TestGetBackfillUnknownIDReturnsNotFound(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/backfills/does-not-exist", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListAlertsReturnsEmptyList(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/alerts", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body []alerts.Alert
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Empty(t, body)
}

func TestMetricsEndpointServesPrometheusExposition(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
