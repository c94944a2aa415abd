// Package backfillengine implements the historical backfill engine (C7):
// coverage analysis, chunked resumable backfill operations, and an
// in-process concurrency cap across (area, endpoint) pairs.
package backfillengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/entsoe-ingest/collector/internal/apperrors"
	"github.com/entsoe-ingest/collector/internal/clock"
	"github.com/entsoe-ingest/collector/internal/collector"
	"github.com/entsoe-ingest/collector/internal/domain/backfill"
	"github.com/entsoe-ingest/collector/internal/domain/energydata"
	"github.com/entsoe-ingest/collector/internal/realtime"
	"github.com/entsoe-ingest/collector/internal/storage"
	"github.com/entsoe-ingest/collector/internal/transform"
	"github.com/entsoe-ingest/collector/pkg/logger"
)

// defaultAreas is used by AnalyzeCoverage when the caller does not name
// a specific set of areas.
var defaultAreas = []string{"DE", "FR", "NL"}

// CoverageAnalysis reports expected vs. actual point counts for one
// (area, endpoint) pair over a lookback period.
type CoverageAnalysis struct {
	AreaCode           string
	Endpoint           string
	PeriodStart        time.Time
	PeriodEnd          time.Time
	ExpectedDataPoints int
	ActualDataPoints   int
	CoveragePercentage float64
	NeedsBackfill      bool
}

// BackfillResult reports the terminal outcome of a StartBackfill or
// ResumeBackfill call.
type BackfillResult struct {
	Progress backfill.Progress
}

// StatusSummary is the condensed shape ListActiveBackfills returns.
type StatusSummary struct {
	ID                 string
	AreaCode           string
	Endpoint           string
	Status             backfill.Status
	ProgressPercentage float64
}

// Engine drives coverage analysis and chunked backfill operations.
type Engine struct {
	collector  collector.Collector
	loadStore  storage.LoadStore
	priceStore storage.PriceStore
	progress   storage.ProgressStore
	clock      clock.Clock
	sleeper    realtime.Sleeper
	log        *logger.Logger

	defaultYearsBack      int
	defaultChunkDays      int
	defaultRateLimitDelay float64
	maxConcurrentAreas    int

	mu     sync.Mutex
	active map[string]struct{}
}

// Config carries the backfill-relevant subset of the application config
// (§6.3 backfill section).
type Config struct {
	HistoricalYears    int
	ChunkMonths        int
	RateLimitDelay     float64
	MaxConcurrentAreas int
}

// New constructs an Engine.
func New(c collector.Collector, loadStore storage.LoadStore, priceStore storage.PriceStore, progress storage.ProgressStore, clk clock.Clock, sleeper realtime.Sleeper, cfg Config, log *logger.Logger) *Engine {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if sleeper == nil {
		sleeper = realtime.RealSleeper{}
	}
	if log == nil {
		log = logger.NewDefault("backfill")
	}
	chunkDays := cfg.ChunkMonths * 30
	if chunkDays <= 0 {
		chunkDays = 30
	}
	rateLimitDelay := cfg.RateLimitDelay
	if rateLimitDelay <= 0 {
		rateLimitDelay = 1.0
	}
	maxConcurrent := cfg.MaxConcurrentAreas
	if maxConcurrent <= 0 {
		maxConcurrent = 3
	}
	yearsBack := cfg.HistoricalYears
	if yearsBack <= 0 {
		yearsBack = 2
	}

	return &Engine{
		collector:             c,
		loadStore:             loadStore,
		priceStore:            priceStore,
		progress:              progress,
		clock:                 clk,
		sleeper:               sleeper,
		log:                   log,
		defaultYearsBack:      yearsBack,
		defaultChunkDays:      chunkDays,
		defaultRateLimitDelay: rateLimitDelay,
		maxConcurrentAreas:    maxConcurrent,
		active:                make(map[string]struct{}),
	}
}

// AnalyzeCoverage reports coverage for each (area, endpoint) combination.
// Nil areas/endpoints default to defaultAreas / every configured
// endpoint; yearsBack <= 0 uses the engine's configured default.
func (e *Engine) AnalyzeCoverage(ctx context.Context, areas []string, endpoints []collector.Endpoint, yearsBack int) ([]CoverageAnalysis, error) {
	if len(areas) == 0 {
		areas = defaultAreas
	}
	if len(endpoints) == 0 {
		endpoints = collector.AllEndpoints()
	}
	if yearsBack <= 0 {
		yearsBack = e.defaultYearsBack
	}

	now := e.clock.Now()
	periodStart := now.AddDate(-yearsBack, 0, 0)

	var results []CoverageAnalysis
	for _, area := range areas {
		for _, endpoint := range endpoints {
			cfg, ok := collector.Endpoints[endpoint]
			if !ok {
				return nil, &apperrors.CoverageError{EndpointName: string(endpoint)}
			}

			actual, err := e.countActualPoints(ctx, area, endpoint, periodStart, now)
			if err != nil {
				return nil, err
			}

			expectedMinutes := now.Sub(periodStart).Minutes()
			expected := int(expectedMinutes / cfg.ExpectedInterval.Minutes())

			var coveragePct float64
			if expected > 0 {
				coveragePct = 100 * float64(actual) / float64(expected)
			}

			results = append(results, CoverageAnalysis{
				AreaCode:           area,
				Endpoint:           string(endpoint),
				PeriodStart:        periodStart,
				PeriodEnd:          now,
				ExpectedDataPoints: expected,
				ActualDataPoints:   actual,
				CoveragePercentage: coveragePct,
				NeedsBackfill:      coveragePct < 95.0,
			})
		}
	}
	return results, nil
}

func (e *Engine) countActualPoints(ctx context.Context, area string, endpoint collector.Endpoint, start, end time.Time) (int, error) {
	cfg := collector.Endpoints[endpoint]
	filter := storage.TimeRangeFilter{Areas: []string{area}, DataTypes: []energydata.DataType{cfg.DataType}}

	if endpoint == collector.EndpointDayAheadPrices {
		points, err := e.priceStore.GetPriceByTimeRange(ctx, start, end, filter)
		if err != nil {
			return 0, err
		}
		return len(points), nil
	}
	points, err := e.loadStore.GetByTimeRange(ctx, start, end, filter)
	if err != nil {
		return 0, err
	}
	return len(points), nil
}

// StartBackfill begins a new chunked backfill for one (area, endpoint)
// window, rejecting the request if the concurrency cap is already met.
func (e *Engine) StartBackfill(ctx context.Context, area string, endpoint collector.Endpoint, periodStart, periodEnd time.Time, chunkSizeDays int) (BackfillResult, error) {
	if chunkSizeDays <= 0 {
		chunkSizeDays = e.defaultChunkDays
	}

	key, err := e.registerActive(area, string(endpoint))
	if err != nil {
		return BackfillResult{}, err
	}
	defer e.unregisterActive(key)

	totalChunks := totalChunksFor(periodStart, periodEnd, chunkSizeDays)

	progress := backfill.Progress{
		AreaCode:       area,
		Endpoint:       string(endpoint),
		Status:         backfill.StatusPending,
		PeriodStart:    periodStart,
		PeriodEnd:      periodEnd,
		TotalChunks:    totalChunks,
		ChunkSizeDays:  chunkSizeDays,
		RateLimitDelay: e.defaultRateLimitDelay,
	}

	created, err := e.progress.Create(ctx, progress)
	if err != nil {
		return BackfillResult{}, err
	}

	// Re-register under the id-qualified key now that one exists, so
	// concurrent StartBackfill calls for the same (area, endpoint) but
	// a different id are visible in the active set by their true key.
	e.mu.Lock()
	delete(e.active, key)
	e.active[activeKey(area, string(endpoint), created.ID)] = struct{}{}
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.active, activeKey(area, string(endpoint), created.ID))
		e.mu.Unlock()
	}()

	return e.run(ctx, *created, endpoint, 0)
}

// ResumeBackfill continues a failed or pending backfill: it recomputes the
// chunk list, skips the first CompletedChunks chunks, and runs the rest.
// Chunk counters carry no positions, so a chunk that failed before that
// index is not retried, a chunk at or after it runs again even if it
// succeeded before, and FailedChunks keeps its earlier value.
func (e *Engine) ResumeBackfill(ctx context.Context, backfillID string) (BackfillResult, error) {
	p, err := e.progress.GetProgressByID(ctx, backfillID)
	if err != nil {
		return BackfillResult{}, err
	}
	if p == nil || !p.Resumable() {
		return BackfillResult{}, &apperrors.ProgressError{BackfillID: backfillID, Reason: "cannot be resumed"}
	}

	key := activeKey(p.AreaCode, p.Endpoint, p.ID)
	e.mu.Lock()
	if _, exists := e.active[key]; exists {
		e.mu.Unlock()
		return BackfillResult{}, &apperrors.ResourceError{Type: "concurrent_operations", Limit: e.maxConcurrentAreas, Current: len(e.active)}
	}
	if len(e.active) >= e.maxConcurrentAreas {
		e.mu.Unlock()
		return BackfillResult{}, &apperrors.ResourceError{Type: "concurrent_operations", Limit: e.maxConcurrentAreas, Current: len(e.active)}
	}
	e.active[key] = struct{}{}
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.active, key)
		e.mu.Unlock()
	}()

	return e.run(ctx, *p, collector.Endpoint(p.Endpoint), p.CompletedChunks)
}

// GetBackfillStatus returns the current progress record as a status
// dictionary (flattened for JSON transport by the HTTP admin surface).
func (e *Engine) GetBackfillStatus(ctx context.Context, backfillID string) (*backfill.Progress, error) {
	return e.progress.GetProgressByID(ctx, backfillID)
}

// ListActiveBackfills summarizes every pending/in_progress record.
func (e *Engine) ListActiveBackfills(ctx context.Context) ([]StatusSummary, error) {
	active, err := e.progress.GetActive(ctx)
	if err != nil {
		return nil, err
	}
	summaries := make([]StatusSummary, 0, len(active))
	for _, p := range active {
		summaries = append(summaries, StatusSummary{
			ID:                 p.ID,
			AreaCode:           p.AreaCode,
			Endpoint:           p.Endpoint,
			Status:             p.Status,
			ProgressPercentage: p.ProgressPercentage,
		})
	}
	return summaries, nil
}

// run executes chunks [skipChunks, totalChunks) of p's period, updating
// and persisting progress at every chunk boundary, and returns the
// terminal progress state.
func (e *Engine) run(ctx context.Context, p backfill.Progress, endpoint collector.Endpoint, skipChunks int) (BackfillResult, error) {
	p.Status = backfill.StatusInProgress
	started := e.clock.Now()
	p.StartedAt = &started
	if err := e.progress.Update(ctx, p); err != nil {
		return e.fail(ctx, p, err)
	}

	// Chunks are consumed strictly in order, but a chunk failure never
	// aborts the run: it is recorded against FailedChunks and the loop
	// continues with the next chunk, same as realtime.Engine continues
	// past a single area's failure. ResumeBackfill restarts at index
	// CompletedChunks, which counts successful chunks only.
	chunks := chunksFor(p.PeriodStart, p.PeriodEnd, p.ChunkSizeDays)

	for i := skipChunks; i < len(chunks); i++ {
		chunk := chunks[i]
		start, end := chunk.start, chunk.end
		p.CurrentChunkStart = &start
		p.CurrentChunkEnd = &end

		stored, err := e.collectChunk(ctx, p.AreaCode, endpoint, start, end)
		if err != nil {
			p.FailedChunks++
			p.LastError = err.Error()
			e.log.WithField("area", p.AreaCode).WithField("endpoint", p.Endpoint).WithField("error", err).Warn("backfillengine: chunk failed, continuing with next chunk")
		} else {
			p.CompletedChunks++
			p.TotalDataPoints += stored
		}
		p.RecomputeProgressPercentage()

		if err := e.progress.Update(ctx, p); err != nil {
			return e.fail(ctx, p, err)
		}

		if i < len(chunks)-1 {
			e.sleeper.Sleep(ctx, time.Duration(p.RateLimitDelay*float64(time.Second)))
		}
	}

	if p.FailedChunks == 0 {
		p.Status = backfill.StatusCompleted
		p.LastError = ""
	} else {
		p.Status = backfill.StatusFailed
	}
	completed := e.clock.Now()
	p.CompletedAt = &completed
	p.RecomputeProgressPercentage()

	if err := e.progress.Update(ctx, p); err != nil {
		return BackfillResult{}, err
	}
	return BackfillResult{Progress: p}, nil
}

func (e *Engine) fail(ctx context.Context, p backfill.Progress, cause error) (BackfillResult, error) {
	p.Status = backfill.StatusFailed
	p.LastError = cause.Error()
	_ = e.progress.Update(ctx, p)
	return BackfillResult{Progress: p}, nil
}

func (e *Engine) collectChunk(ctx context.Context, area string, endpoint collector.Endpoint, start, end time.Time) (int, error) {
	doc, err := collector.Fetch(ctx, e.collector, endpoint, area, start, end)
	if err == collector.ErrNoData {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	loadPoints, pricePoints, err := transform.Transform(doc)
	if err != nil {
		return 0, err
	}
	if len(loadPoints) > 0 {
		if err := e.loadStore.UpsertBatch(ctx, loadPoints); err != nil {
			return 0, err
		}
		return len(loadPoints), nil
	}
	if len(pricePoints) > 0 {
		if err := e.priceStore.UpsertPriceBatch(ctx, pricePoints); err != nil {
			return 0, err
		}
		return len(pricePoints), nil
	}
	return 0, nil
}

func (e *Engine) registerActive(area, endpoint string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.active) >= e.maxConcurrentAreas {
		return "", &apperrors.ResourceError{Type: "concurrent_operations", Limit: e.maxConcurrentAreas, Current: len(e.active)}
	}
	key := activeKey(area, endpoint, "")
	e.active[key] = struct{}{}
	return key, nil
}

func (e *Engine) unregisterActive(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.active, key)
}

func activeKey(area, endpoint, id string) string {
	return fmt.Sprintf("%s_%s_%s", area, endpoint, id)
}

type chunkWindow struct {
	start, end time.Time
}

// chunksFor splits [start, end) into consecutive windows of chunkDays
// each; the final chunk may be shorter. At least one chunk is returned.
func chunksFor(start, end time.Time, chunkDays int) []chunkWindow {
	if chunkDays <= 0 {
		chunkDays = 1
	}
	step := time.Duration(chunkDays) * 24 * time.Hour

	var chunks []chunkWindow
	cursor := start
	for cursor.Before(end) {
		next := cursor.Add(step)
		if next.After(end) {
			next = end
		}
		chunks = append(chunks, chunkWindow{cursor, next})
		cursor = next
	}
	if len(chunks) == 0 {
		chunks = append(chunks, chunkWindow{start, end})
	}
	return chunks
}

func totalChunksFor(start, end time.Time, chunkDays int) int {
	return len(chunksFor(start, end, chunkDays))
}

