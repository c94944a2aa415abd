// Package memory implements the storage interfaces in-process, backed by
// maps guarded by a mutex, for use in engine-level unit tests that would
// otherwise need a live Postgres instance or a brittle sqlmock script.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/entsoe-ingest/collector/internal/apperrors"
	"github.com/entsoe-ingest/collector/internal/domain/alerts"
	"github.com/entsoe-ingest/collector/internal/domain/backfill"
	"github.com/entsoe-ingest/collector/internal/domain/energydata"
	"github.com/entsoe-ingest/collector/internal/domain/metrics"
	"github.com/entsoe-ingest/collector/internal/storage"
)

// Store implements LoadStore, PriceStore, ProgressStore, MetricsStore,
// and AlertStore entirely in memory.
type Store struct {
	mu sync.Mutex

	load     map[energydata.Key]energydata.LoadPoint
	price    map[energydata.Key]energydata.PricePoint
	progress map[string]backfill.Progress
	metrics  map[string]metrics.CollectionMetrics
	alerts   map[string]alerts.Alert

	nextID int
}

var _ storage.LoadStore = (*Store)(nil)
var _ storage.PriceStore = (*Store)(nil)
var _ storage.ProgressStore = (*Store)(nil)
var _ storage.MetricsStore = (*Store)(nil)
var _ storage.AlertStore = (*Store)(nil)

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		load:     make(map[energydata.Key]energydata.LoadPoint),
		price:    make(map[energydata.Key]energydata.PricePoint),
		progress: make(map[string]backfill.Progress),
		metrics:  make(map[string]metrics.CollectionMetrics),
		alerts:   make(map[string]alerts.Alert),
	}
}

func (s *Store) newID(prefix string) string {
	s.nextID++
	return prefix + "-" + time.Now().UTC().Format("20060102150405") + "-" + itoa(s.nextID)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// --- LoadStore ---

func (s *Store) UpsertBatch(ctx context.Context, points []energydata.LoadPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for _, p := range points {
		p.UpdatedAt = now
		if existing, ok := s.load[p.Key]; ok {
			p.CreatedAt = existing.CreatedAt
		} else {
			p.CreatedAt = now
		}
		s.load[p.Key] = p
	}
	return nil
}

func (s *Store) GetByTimeRange(ctx context.Context, start, end time.Time, filter storage.TimeRangeFilter) ([]energydata.LoadPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []energydata.LoadPoint
	for _, p := range s.load {
		if !inRange(p.Timestamp, start, end) {
			continue
		}
		if !matchesFilter(p.AreaCode, string(p.DataType), p.BusinessType, filter) {
			continue
		}
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Timestamp.Before(result[j].Timestamp) })
	return result, nil
}

func (s *Store) GetLatestForAreaAndType(ctx context.Context, area string, dataType energydata.DataType) (*energydata.LoadPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *energydata.LoadPoint
	for _, p := range s.load {
		if p.AreaCode != area || p.DataType != dataType {
			continue
		}
		if latest == nil || p.Timestamp.After(latest.Timestamp) {
			v := p
			latest = &v
		}
	}
	return latest, nil
}

func (s *Store) GetByArea(ctx context.Context, area string, dataType energydata.DataType, limit int) ([]energydata.LoadPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []energydata.LoadPoint
	for _, p := range s.load {
		if p.AreaCode != area {
			continue
		}
		if dataType != "" && p.DataType != dataType {
			continue
		}
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Timestamp.After(result[j].Timestamp) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) GetByID(ctx context.Context, key energydata.Key) (*energydata.LoadPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.load[key]; ok {
		return &p, nil
	}
	return nil, nil
}

func (s *Store) Delete(ctx context.Context, key energydata.Key) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.load[key]; !ok {
		return false, nil
	}
	delete(s.load, key)
	return true, nil
}

// --- PriceStore ---

func (s *Store) UpsertPriceBatch(ctx context.Context, points []energydata.PricePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for _, p := range points {
		p.UpdatedAt = now
		if existing, ok := s.price[p.Key]; ok {
			p.CreatedAt = existing.CreatedAt
		} else {
			p.CreatedAt = now
		}
		s.price[p.Key] = p
	}
	return nil
}

func (s *Store) GetPriceByTimeRange(ctx context.Context, start, end time.Time, filter storage.TimeRangeFilter) ([]energydata.PricePoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []energydata.PricePoint
	for _, p := range s.price {
		if !inRange(p.Timestamp, start, end) {
			continue
		}
		if !matchesFilter(p.AreaCode, string(p.DataType), p.BusinessType, filter) {
			continue
		}
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Timestamp.Before(result[j].Timestamp) })
	return result, nil
}

func (s *Store) GetLatestPriceForAreaAndType(ctx context.Context, area string, dataType energydata.DataType) (*energydata.PricePoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *energydata.PricePoint
	for _, p := range s.price {
		if p.AreaCode != area || p.DataType != dataType {
			continue
		}
		if latest == nil || p.Timestamp.After(latest.Timestamp) {
			v := p
			latest = &v
		}
	}
	return latest, nil
}

func (s *Store) GetPriceByArea(ctx context.Context, area string, dataType energydata.DataType, limit int) ([]energydata.PricePoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []energydata.PricePoint
	for _, p := range s.price {
		if p.AreaCode != area {
			continue
		}
		if dataType != "" && p.DataType != dataType {
			continue
		}
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Timestamp.After(result[j].Timestamp) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) GetPriceByID(ctx context.Context, key energydata.Key) (*energydata.PricePoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.price[key]; ok {
		return &p, nil
	}
	return nil, nil
}

func (s *Store) DeletePrice(ctx context.Context, key energydata.Key) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.price[key]; !ok {
		return false, nil
	}
	delete(s.price, key)
	return true, nil
}

func inRange(t, start, end time.Time) bool {
	return !t.Before(start) && t.Before(end)
}

func matchesFilter(area, dataType, businessType string, filter storage.TimeRangeFilter) bool {
	if len(filter.Areas) > 0 && !containsString(filter.Areas, area) {
		return false
	}
	if len(filter.DataTypes) > 0 {
		found := false
		for _, dt := range filter.DataTypes {
			if string(dt) == dataType {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(filter.BusinessTypes) > 0 && !containsString(filter.BusinessTypes, businessType) {
		return false
	}
	return true
}

func containsString(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

// --- ProgressStore ---

func (s *Store) Create(ctx context.Context, progress backfill.Progress) (*backfill.Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if progress.ID == "" {
		progress.ID = s.newID("bf")
	}
	now := time.Now().UTC()
	progress.CreatedAt = now
	progress.UpdatedAt = now
	s.progress[progress.ID] = progress
	out := progress
	return &out, nil
}

func (s *Store) GetProgressByID(ctx context.Context, id string) (*backfill.Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.progress[id]; ok {
		out := p
		return &out, nil
	}
	return nil, nil
}

func (s *Store) Update(ctx context.Context, progress backfill.Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.progress[progress.ID]; !ok {
		return &apperrors.StoreError{ModelType: "backfill_progress", Operation: "update", Err: errNotFound}
	}
	progress.UpdatedAt = time.Now().UTC()
	s.progress[progress.ID] = progress
	return nil
}

func (s *Store) GetActive(ctx context.Context) ([]backfill.Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []backfill.Progress
	for _, p := range s.progress {
		if p.Status == backfill.StatusPending || p.Status == backfill.StatusInProgress {
			result = append(result, p)
		}
	}
	sortProgressByCreatedDesc(result)
	return result, nil
}

func (s *Store) GetResumable(ctx context.Context) ([]backfill.Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []backfill.Progress
	for _, p := range s.progress {
		if p.Resumable() {
			result = append(result, p)
		}
	}
	sortProgressByCreatedDesc(result)
	return result, nil
}

func (s *Store) GetByAreaEndpoint(ctx context.Context, area, endpoint string) ([]backfill.Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []backfill.Progress
	for _, p := range s.progress {
		if p.AreaCode == area && p.Endpoint == endpoint {
			result = append(result, p)
		}
	}
	sortProgressByCreatedDesc(result)
	return result, nil
}

func sortProgressByCreatedDesc(items []backfill.Progress) {
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
}

var errNotFound = &notFoundError{}

type notFoundError struct{}

func (e *notFoundError) Error() string { return "record not found" }

// --- MetricsStore ---

func (s *Store) Insert(ctx context.Context, metric metrics.CollectionMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertLocked(metric)
	return nil
}

func (s *Store) insertLocked(metric metrics.CollectionMetrics) {
	if metric.ID == "" {
		metric.ID = s.newID("metric")
	}
	if metric.CreatedAt.IsZero() {
		metric.CreatedAt = time.Now().UTC()
	}
	s.metrics[metric.ID] = metric
}

func (s *Store) InsertMany(ctx context.Context, rows []metrics.CollectionMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range rows {
		s.insertLocked(m)
	}
	return nil
}

func (s *Store) GetMetricsByTimeRange(ctx context.Context, start, end time.Time, areas []string, dataTypes []string) ([]metrics.CollectionMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []metrics.CollectionMetrics
	for _, m := range s.metrics {
		if !inRange(m.CollectionStart, start, end) {
			continue
		}
		if len(areas) > 0 && !containsString(areas, m.AreaCode) {
			continue
		}
		if len(dataTypes) > 0 && !containsString(dataTypes, m.DataType) {
			continue
		}
		result = append(result, m)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CollectionStart.Before(result[j].CollectionStart) })
	return result, nil
}

func (s *Store) GetRecentMetrics(ctx context.Context, minutes int) ([]metrics.CollectionMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().UTC().Add(-time.Duration(minutes) * time.Minute)
	var result []metrics.CollectionMetrics
	for _, m := range s.metrics {
		if !m.CreatedAt.Before(cutoff) {
			result = append(result, m)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) GetMetricsByJobID(ctx context.Context, jobID string) ([]metrics.CollectionMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []metrics.CollectionMetrics
	for _, m := range s.metrics {
		if m.JobID == jobID {
			result = append(result, m)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CollectionStart.Before(result[j].CollectionStart) })
	return result, nil
}

func (s *Store) GetPerformanceMetrics(ctx context.Context, start, end time.Time) (metrics.PerformanceMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	perf := metrics.PerformanceMetrics{PeriodStart: start, PeriodEnd: end}

	var apiTimes, procTimes []time.Duration
	var total, successful int
	for _, m := range s.metrics {
		if !inRange(m.CollectionStart, start, end) {
			continue
		}
		total++
		if m.Success {
			successful++
		}
		apiTimes = append(apiTimes, m.APIResponseTime)
		procTimes = append(procTimes, m.ProcessingTime)
	}

	perf.AvgAPIResponseTime, perf.MinAPIResponseTime, perf.MaxAPIResponseTime = aggregateDurations(apiTimes)
	perf.AvgProcessingTime, perf.MinProcessingTime, perf.MaxProcessingTime = aggregateDurations(procTimes)
	perf.TotalOperations = total
	perf.SuccessfulOperations = successful
	perf.FailedOperations = total - successful
	if total > 0 {
		perf.OverallSuccessRate = float64(successful) / float64(total)
	}
	return perf, nil
}

func aggregateDurations(values []time.Duration) (avg, min, max time.Duration) {
	if len(values) == 0 {
		return 0, 0, 0
	}
	var sum time.Duration
	min, max = values[0], values[0]
	for _, v := range values {
		sum += v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	avg = sum / time.Duration(len(values))
	return avg, min, max
}

func (s *Store) CleanupOldMetrics(ctx context.Context, retentionDays int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	removed := 0
	for id, m := range s.metrics {
		if m.CreatedAt.Before(cutoff) {
			delete(s.metrics, id)
			removed++
		}
	}
	return removed, nil
}

// --- AlertStore ---

func (s *Store) CreateAlert(ctx context.Context, alert alerts.Alert) (*alerts.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if alert.ID == "" {
		alert.ID = s.newID("alert")
	}
	if alert.FiredAt.IsZero() {
		alert.FiredAt = time.Now().UTC()
	}
	if alert.DeliveryStatus == "" {
		alert.DeliveryStatus = alerts.DeliveryPending
	}
	s.alerts[alert.ID] = alert
	out := alert
	return &out, nil
}

func (s *Store) GetLiveByCorrelationKey(ctx context.Context, correlationKey string) (*alerts.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *alerts.Alert
	for _, a := range s.alerts {
		if a.CorrelationKey != correlationKey || !a.Live() {
			continue
		}
		if latest == nil || a.FiredAt.After(latest.FiredAt) {
			v := a
			latest = &v
		}
	}
	return latest, nil
}

func (s *Store) ResolveMostRecent(ctx context.Context, correlationKey string, resolvedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latestID string
	var latestFired time.Time
	for id, a := range s.alerts {
		if a.CorrelationKey != correlationKey || !a.Live() {
			continue
		}
		if latestID == "" || a.FiredAt.After(latestFired) {
			latestID = id
			latestFired = a.FiredAt
		}
	}
	if latestID == "" {
		return &apperrors.StoreError{ModelType: "alert", Operation: "resolve_most_recent", Err: errNotFound}
	}
	a := s.alerts[latestID]
	resolved := resolvedAt
	a.ResolvedAt = &resolved
	s.alerts[latestID] = a
	return nil
}

func (s *Store) UpdateDeliveryStatus(ctx context.Context, id string, status alerts.DeliveryStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return &apperrors.StoreError{ModelType: "alert", Operation: "update_delivery_status", Err: errNotFound}
	}
	a.DeliveryStatus = status
	s.alerts[id] = a
	return nil
}

func (s *Store) ListActive(ctx context.Context) ([]alerts.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []alerts.Alert
	for _, a := range s.alerts {
		if a.Live() {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].FiredAt.After(result[j].FiredAt) })
	return result, nil
}
