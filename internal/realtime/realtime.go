// Package realtime implements the real-time collection engine (C6): gap
// detection against the store's latest point per (area, endpoint),
// chunked fan-out through the Collector Adapter, and transform+upsert of
// each chunk's result.
package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/entsoe-ingest/collector/internal/clock"
	"github.com/entsoe-ingest/collector/internal/collector"
	"github.com/entsoe-ingest/collector/internal/storage"
	"github.com/entsoe-ingest/collector/internal/transform"
	"github.com/entsoe-ingest/collector/pkg/logger"
)

// CollectionResult reports the outcome of one endpoint's gap collection.
type CollectionResult struct {
	Area            string
	DataType        string
	StoredCount     int
	Success         bool
	NoDataAvailable bool
	NoDataReason    string
	ErrorMessage    string
	StartTime       time.Time
	EndTime         time.Time
}

// Sleeper abstracts the inter-chunk rate-limit pause so tests can run
// without waiting in real time.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration)
}

// RealSleeper sleeps for the real duration, selectable against ctx.Done().
type RealSleeper struct{}

// Sleep blocks for d or until ctx is cancelled, whichever comes first.
func (RealSleeper) Sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// rateLimitDelay is the fixed inter-chunk pause for real-time collection
// (§4.6: "rate_limit_delay is >= 0.5s between successive chunk requests
// per endpoint").
const rateLimitDelay = 500 * time.Millisecond

// Engine drives gap detection and chunked collection across areas and
// endpoints.
type Engine struct {
	collector collector.Collector
	loadStore storage.LoadStore
	priceStore storage.PriceStore
	clock     clock.Clock
	sleeper   Sleeper
	log       *logger.Logger
}

// New constructs an Engine. A nil clock defaults to RealClock; a nil
// sleeper defaults to RealSleeper; a nil logger defaults to NewDefault.
func New(c collector.Collector, loadStore storage.LoadStore, priceStore storage.PriceStore, clk clock.Clock, sleeper Sleeper, log *logger.Logger) *Engine {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if sleeper == nil {
		sleeper = RealSleeper{}
	}
	if log == nil {
		log = logger.NewDefault("realtime")
	}
	return &Engine{collector: c, loadStore: loadStore, priceStore: priceStore, clock: clk, sleeper: sleeper, log: log}
}

// ShouldCollectNow reports whether gap collection is due for (area,
// endpoint): true when no prior point exists, or when now has reached
// the next expected interval boundary.
func (e *Engine) ShouldCollectNow(ctx context.Context, area string, endpoint collector.Endpoint) (bool, error) {
	cfg, ok := collector.Endpoints[endpoint]
	if !ok {
		return false, fmt.Errorf("realtime: unknown endpoint %q", endpoint)
	}
	latest, err := e.latestTimestamp(ctx, area, endpoint, cfg)
	if err != nil {
		return false, err
	}
	if latest == nil {
		return true, nil
	}
	now := e.clock.Now()
	return !now.Before(latest.Add(cfg.ExpectedInterval)), nil
}

// CollectGapsForEndpoint detects and fills the gap for one (area,
// endpoint) pair.
func (e *Engine) CollectGapsForEndpoint(ctx context.Context, area string, endpoint collector.Endpoint) (CollectionResult, error) {
	cfg, ok := collector.Endpoints[endpoint]
	if !ok {
		return CollectionResult{}, fmt.Errorf("realtime: unknown endpoint %q", endpoint)
	}

	result := CollectionResult{
		Area:      area,
		DataType:  string(cfg.DataType),
		StartTime: e.clock.Now(),
		Success:   true,
	}

	gapStart, gapEnd, err := e.computeGap(ctx, area, endpoint, cfg)
	if err != nil {
		return CollectionResult{}, err
	}
	result.EndTime = e.clock.Now()

	if !gapStart.Before(gapEnd) {
		return result, nil
	}

	chunks := splitIntoChunks(gapStart, gapEnd, cfg.MaxChunkDays)

	var noDataChunks int
	for i, chunk := range chunks {
		doc, err := collector.Fetch(ctx, e.collector, endpoint, area, chunk.start, chunk.end)
		switch {
		case err == collector.ErrNoData:
			noDataChunks++
		case err != nil:
			result.Success = false
			result.ErrorMessage = err.Error()
			e.log.WithFields(loggerFields(area, endpoint, chunk)).WithField("error", err).Warn("realtime: chunk collection failed")
		default:
			stored, err := e.storeDocument(ctx, doc)
			if err != nil {
				result.Success = false
				result.ErrorMessage = err.Error()
				e.log.WithFields(loggerFields(area, endpoint, chunk)).WithField("error", err).Warn("realtime: chunk store failed")
			} else {
				result.StoredCount += stored
			}
		}

		if i < len(chunks)-1 {
			e.sleeper.Sleep(ctx, rateLimitDelay)
		}
	}

	if noDataChunks > 0 {
		result.NoDataAvailable = true
		result.NoDataReason = fmt.Sprintf("%d/%d chunks returned no data", noDataChunks, len(chunks))
	}
	result.EndTime = e.clock.Now()
	return result, nil
}

// CollectGapsForArea runs every endpoint for one area; one endpoint's
// failure never aborts the others.
func (e *Engine) CollectGapsForArea(ctx context.Context, area string) (map[string]CollectionResult, error) {
	results := make(map[string]CollectionResult, len(collector.AllEndpoints()))
	for _, endpoint := range collector.AllEndpoints() {
		result, err := e.CollectGapsForEndpoint(ctx, area, endpoint)
		if err != nil {
			result = CollectionResult{
				Area:         area,
				Success:      false,
				ErrorMessage: err.Error(),
				StartTime:    e.clock.Now(),
				EndTime:      e.clock.Now(),
			}
		}
		results[string(endpoint)] = result
	}
	return results, nil
}

// CollectAllGaps runs CollectGapsForArea across every area given.
func (e *Engine) CollectAllGaps(ctx context.Context, areas []string) (map[string]map[string]CollectionResult, error) {
	results := make(map[string]map[string]CollectionResult, len(areas))
	for _, area := range areas {
		areaResults, err := e.CollectGapsForArea(ctx, area)
		if err != nil {
			return nil, err
		}
		results[area] = areaResults
	}
	return results, nil
}

func (e *Engine) computeGap(ctx context.Context, area string, endpoint collector.Endpoint, cfg collector.EndpointConfig) (time.Time, time.Time, error) {
	latest, err := e.latestTimestamp(ctx, area, endpoint, cfg)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	now := e.clock.Now()

	if !cfg.IsForwardLooking {
		if latest == nil {
			return now.AddDate(0, 0, -7), now, nil
		}
		return latest.Add(cfg.ExpectedInterval), now, nil
	}

	end := now.Add(cfg.ForecastHorizon)
	if latest == nil {
		return now, end, nil
	}
	return latest.Add(cfg.ExpectedInterval), end, nil
}

func (e *Engine) latestTimestamp(ctx context.Context, area string, endpoint collector.Endpoint, cfg collector.EndpointConfig) (*time.Time, error) {
	if endpoint == collector.EndpointDayAheadPrices {
		p, err := e.priceStore.GetLatestPriceForAreaAndType(ctx, area, cfg.DataType)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, nil
		}
		ts := p.Timestamp
		return &ts, nil
	}

	p, err := e.loadStore.GetLatestForAreaAndType(ctx, area, cfg.DataType)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, nil
	}
	ts := p.Timestamp
	return &ts, nil
}

func (e *Engine) storeDocument(ctx context.Context, doc transform.Document) (int, error) {
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

type chunkWindow struct {
	start time.Time
	end   time.Time
}

// splitIntoChunks divides [start, end) into adjacent half-open windows of
// at most maxDays each; the final chunk may be shorter.
func splitIntoChunks(start, end time.Time, maxDays int) []chunkWindow {
	if maxDays <= 0 {
		maxDays = 1
	}
	step := time.Duration(maxDays) * 24 * time.Hour

	var chunks []chunkWindow
	cursor := start
	for cursor.Before(end) {
		next := cursor.Add(step)
		if next.After(end) {
			next = end
		}
		chunks = append(chunks, chunkWindow{start: cursor, end: next})
		cursor = next
	}
	return chunks
}

func loggerFields(area string, endpoint collector.Endpoint, chunk chunkWindow) map[string]any {
	return map[string]any{
		"area":       area,
		"endpoint":   string(endpoint),
		"chunk_start": chunk.start,
		"chunk_end":   chunk.end,
	}
}
