package backfillengine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entsoe-ingest/collector/internal/clock"
	"github.com/entsoe-ingest/collector/internal/collector"
	"github.com/entsoe-ingest/collector/internal/domain/backfill"
	"github.com/entsoe-ingest/collector/internal/storage/memory"
	"github.com/entsoe-ingest/collector/internal/transform"
)

type window struct{ start, end time.Time }

type scriptedCollector struct {
	calls    []window
	response func(call int) (transform.Document, error)
}

func (s *scriptedCollector) record(start, end time.Time) (transform.Document, error) {
	call := len(s.calls)
	s.calls = append(s.calls, window{start, end})
	if s.response != nil {
		return s.response(call)
	}
	return transform.Document{}, collector.ErrNoData
}

func (s *scriptedCollector) ActualLoad(ctx context.Context, area string, start, end time.Time) (transform.Document, error) {
	return s.record(start, end)
}
func (s *scriptedCollector) DayAheadForecast(ctx context.Context, area string, start, end time.Time) (transform.Document, error) {
	return s.record(start, end)
}
func (s *scriptedCollector) WeekAheadForecast(ctx context.Context, area string, start, end time.Time) (transform.Document, error) {
	return s.record(start, end)
}
func (s *scriptedCollector) MonthAheadForecast(ctx context.Context, area string, start, end time.Time) (transform.Document, error) {
	return s.record(start, end)
}
func (s *scriptedCollector) YearAheadForecast(ctx context.Context, area string, start, end time.Time) (transform.Document, error) {
	return s.record(start, end)
}
func (s *scriptedCollector) ForecastMargin(ctx context.Context, area string, start, end time.Time) (transform.Document, error) {
	return s.record(start, end)
}
func (s *scriptedCollector) DayAheadPrices(ctx context.Context, area string, start, end time.Time) (transform.Document, error) {
	return s.record(start, end)
}

type noSleep struct{}

func (noSleep) Sleep(ctx context.Context, d time.Duration) {}

func loadDoc(points int) transform.Document {
	period := transform.Period{
		Start:      time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		End:        time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC),
		Resolution: "PT5M",
	}
	for i := 1; i <= points; i++ {
		pos, qty := i, float64(i)
		period.Points = append(period.Points, transform.Point{Position: &pos, Quantity: &qty})
	}
	return transform.Document{Load: &transform.LoadDocument{
		MRID:         "doc",
		ProcessType:  "realised",
		DocumentType: "system_total_load",
		TimeSeries: []transform.LoadTimeSeries{{
			MRID:                     "doc-ts",
			BusinessType:             "A04",
			OutBiddingZoneDomainMRID: transform.AreaMRID{AreaCode: "DE"},
			QuantityMeasureUnitName:  "MAW",
			Period:                   period,
		}},
	}}
}

func newEngine(c collector.Collector, store *memory.Store, now time.Time, cfg Config) *Engine {
	return New(c, store, store, store, clock.FixedClock{At: now}, noSleep{}, cfg, nil)
}

func TestStartBackfillCompletesAllChunks(t *testing.T) {
	now := time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)
	store := memory.New()
	fake := &scriptedCollector{response: func(call int) (transform.Document, error) {
		return loadDoc(2), nil
	}}
	engine := newEngine(fake, store, now, Config{})

	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2020, 1, 10, 0, 0, 0, 0, time.UTC)
	result, err := engine.StartBackfill(context.Background(), "DE", collector.EndpointActualLoad, start, end, 3)
	require.NoError(t, err)

	assert.Equal(t, backfill.StatusCompleted, result.Progress.Status)
	assert.Equal(t, 3, result.Progress.TotalChunks, "9 days at chunk_size=3 yields 3 chunks")
	assert.Equal(t, 3, result.Progress.CompletedChunks)
	assert.Equal(t, 0, result.Progress.FailedChunks)
	assert.Equal(t, 6, result.Progress.TotalDataPoints)
	assert.Equal(t, float64(100), result.Progress.ProgressPercentage)
	assert.NotEmpty(t, result.Progress.ID)
}

func TestStartBackfillRecordsFailedChunksAndContinues(t *testing.T) {
	now := time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)
	store := memory.New()
	fake := &scriptedCollector{response: func(call int) (transform.Document, error) {
		if call == 1 {
			return transform.Document{}, assertError{}
		}
		return loadDoc(1), nil
	}}
	engine := newEngine(fake, store, now, Config{})

	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2020, 1, 7, 0, 0, 0, 0, time.UTC)
	result, err := engine.StartBackfill(context.Background(), "DE", collector.EndpointActualLoad, start, end, 2)
	require.NoError(t, err)

	require.Equal(t, backfill.StatusFailed, result.Progress.Status, "any failed chunk marks the operation failed overall")
	require.Equal(t, 1, result.Progress.FailedChunks)
	require.Equal(t, 2, result.Progress.CompletedChunks, "chunks 0 and 2 still ran despite chunk 1 failing")
	require.Len(t, fake.calls, 3, "a chunk failure never aborts the remaining chunks")
}

func TestResumeBackfillSkipsFirstCompletedChunks(t *testing.T) {
	now := time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)
	store := memory.New()
	attempt := 0
	fake := &scriptedCollector{response: func(call int) (transform.Document, error) {
		if attempt == 0 && call == 1 {
			return transform.Document{}, assertError{}
		}
		return loadDoc(1), nil
	}}
	engine := newEngine(fake, store, now, Config{})

	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2020, 1, 7, 0, 0, 0, 0, time.UTC)
	result, err := engine.StartBackfill(context.Background(), "DE", collector.EndpointActualLoad, start, end, 2)
	require.NoError(t, err)
	require.Equal(t, backfill.StatusFailed, result.Progress.Status)
	require.Equal(t, 1, result.Progress.FailedChunks)
	require.Equal(t, 2, result.Progress.CompletedChunks)
	require.True(t, result.Progress.Resumable())

	attempt = 1
	fake.calls = nil
	resumed, err := engine.ResumeBackfill(context.Background(), result.Progress.ID)
	require.NoError(t, err)

	assert.Equal(t, backfill.StatusFailed, resumed.Progress.Status, "a chunk that previously failed is never retried, so FailedChunks stays nonzero")
	assert.Equal(t, 1, resumed.Progress.FailedChunks, "the earlier failed chunk is still counted")
	assert.Equal(t, 3, resumed.Progress.CompletedChunks)
	assert.Len(t, fake.calls, 1, "resume skips the first CompletedChunks=2 chunks and runs only chunk 2")
}

type assertError struct{}

func (assertError) Error() string { return "simulated upstream failure" }

func TestStartBackfillRejectsWhenConcurrencyCapReached(t *testing.T) {
	now := time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)
	store := memory.New()
	blocking := make(chan struct{})
	fake := &scriptedCollector{response: func(call int) (transform.Document, error) {
		<-blocking
		return transform.Document{}, collector.ErrNoData
	}}
	engine := newEngine(fake, store, now, Config{MaxConcurrentAreas: 1})

	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2020, 1, 3, 0, 0, 0, 0, time.UTC)

	done := make(chan struct{})
	go func() {
		_, _ = engine.StartBackfill(context.Background(), "DE", collector.EndpointActualLoad, start, end, 1)
		close(done)
	}()

	// Give the goroutine a chance to register itself as active before
	// the second call checks the cap; this test only verifies rejection
	// behavior under contention, not a precise race-free handoff.
	time.Sleep(10 * time.Millisecond)

	_, err := engine.StartBackfill(context.Background(), "FR", collector.EndpointActualLoad, start, end, 1)
	assert.Error(t, err)

	close(blocking)
	<-done
}

func TestResumeBackfillRejectsNonResumableRecord(t *testing.T) {
	now := time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)
	store := memory.New()
	engine := newEngine(&scriptedCollector{}, store, now, Config{})

	created, err := store.Create(context.Background(), backfill.Progress{
		AreaCode: "DE",
		Endpoint: string(collector.EndpointActualLoad),
		Status:   backfill.StatusCompleted,
	})
	require.NoError(t, err)

	_, err = engine.ResumeBackfill(context.Background(), created.ID)
	assert.Error(t, err)
}

func TestAnalyzeCoverageFlagsLowCoverage(t *testing.T) {
	now := time.Date(2020, 1, 3, 0, 0, 0, 0, time.UTC)
	store := memory.New()
	engine := newEngine(&scriptedCollector{}, store, now, Config{})

	results, err := engine.AnalyzeCoverage(context.Background(), []string{"DE"}, []collector.Endpoint{collector.EndpointActualLoad}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, "DE", results[0].AreaCode)
	assert.Equal(t, 0, results[0].ActualDataPoints)
	assert.True(t, results[0].NeedsBackfill)
}

func TestListActiveBackfillsReturnsOnlyPendingAndInProgress(t *testing.T) {
	now := time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)
	store := memory.New()
	_, err := store.Create(context.Background(), backfill.Progress{AreaCode: "DE", Endpoint: "actual_load", Status: backfill.StatusInProgress})
	require.NoError(t, err)
	_, err = store.Create(context.Background(), backfill.Progress{AreaCode: "FR", Endpoint: "actual_load", Status: backfill.StatusCompleted})
	require.NoError(t, err)

	engine := newEngine(&scriptedCollector{}, store, now, Config{})
	summaries, err := engine.ListActiveBackfills(context.Background())
	require.NoError(t, err)

	require.Len(t, summaries, 1)
	assert.Equal(t, "DE", summaries[0].AreaCode)
}
