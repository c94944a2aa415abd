// Package storage defines the persistence interfaces the engines depend
// on (C1-C3, plus the alert store): points, backfill progress, and
// collection metrics. Concrete backends live in postgres/ and memory/.
package storage

import (
	"context"
	"time"

	"github.com/entsoe-ingest/collector/internal/domain/alerts"
	"github.com/entsoe-ingest/collector/internal/domain/backfill"
	"github.com/entsoe-ingest/collector/internal/domain/energydata"
	"github.com/entsoe-ingest/collector/internal/domain/metrics"
)

// TimeRangeFilter narrows a GetByTimeRange query. Nil/empty slices mean
// "no filter on this dimension".
type TimeRangeFilter struct {
	Areas         []string
	DataTypes     []energydata.DataType
	BusinessTypes []string
}

// LoadStore persists load points (C1, load table).
type LoadStore interface {
	UpsertBatch(ctx context.Context, points []energydata.LoadPoint) error
	GetByTimeRange(ctx context.Context, start, end time.Time, filter TimeRangeFilter) ([]energydata.LoadPoint, error)
	GetLatestForAreaAndType(ctx context.Context, area string, dataType energydata.DataType) (*energydata.LoadPoint, error)
	GetByArea(ctx context.Context, area string, dataType energydata.DataType, limit int) ([]energydata.LoadPoint, error)
	GetByID(ctx context.Context, key energydata.Key) (*energydata.LoadPoint, error)
	Delete(ctx context.Context, key energydata.Key) (bool, error)
}

// PriceStore persists day-ahead price points (C1, price table). Method
// names carry a Price prefix so one concrete Store can implement both
// LoadStore and PriceStore without colliding method signatures.
type PriceStore interface {
	UpsertPriceBatch(ctx context.Context, points []energydata.PricePoint) error
	GetPriceByTimeRange(ctx context.Context, start, end time.Time, filter TimeRangeFilter) ([]energydata.PricePoint, error)
	GetLatestPriceForAreaAndType(ctx context.Context, area string, dataType energydata.DataType) (*energydata.PricePoint, error)
	GetPriceByArea(ctx context.Context, area string, dataType energydata.DataType, limit int) ([]energydata.PricePoint, error)
	GetPriceByID(ctx context.Context, key energydata.Key) (*energydata.PricePoint, error)
	DeletePrice(ctx context.Context, key energydata.Key) (bool, error)
}

// ProgressStore persists backfill progress records (C2). GetProgressByID
// (rather than GetByID) avoids colliding with LoadStore's GetByID on a
// concrete type implementing both interfaces.
type ProgressStore interface {
	Create(ctx context.Context, progress backfill.Progress) (*backfill.Progress, error)
	GetProgressByID(ctx context.Context, id string) (*backfill.Progress, error)
	Update(ctx context.Context, progress backfill.Progress) error
	GetActive(ctx context.Context) ([]backfill.Progress, error)
	GetResumable(ctx context.Context) ([]backfill.Progress, error)
	GetByAreaEndpoint(ctx context.Context, area, endpoint string) ([]backfill.Progress, error)
}

// MetricsStore persists collection metrics (C3). GetMetricsByTimeRange
// (rather than GetByTimeRange) avoids colliding with LoadStore's
// GetByTimeRange on a concrete type implementing both interfaces.
type MetricsStore interface {
	Insert(ctx context.Context, metric metrics.CollectionMetrics) error
	InsertMany(ctx context.Context, rows []metrics.CollectionMetrics) error
	GetMetricsByTimeRange(ctx context.Context, start, end time.Time, areas []string, dataTypes []string) ([]metrics.CollectionMetrics, error)
	GetRecentMetrics(ctx context.Context, minutes int) ([]metrics.CollectionMetrics, error)
	GetMetricsByJobID(ctx context.Context, jobID string) ([]metrics.CollectionMetrics, error)
	GetPerformanceMetrics(ctx context.Context, start, end time.Time) (metrics.PerformanceMetrics, error)
	CleanupOldMetrics(ctx context.Context, retentionDays int) (int, error)
}

// AlertStore persists fired alerts for the Alert Rule Engine (C10).
// CreateAlert (rather than Create) avoids colliding with ProgressStore's
// Create on a concrete type implementing both interfaces.
type AlertStore interface {
	CreateAlert(ctx context.Context, alert alerts.Alert) (*alerts.Alert, error)
	GetLiveByCorrelationKey(ctx context.Context, correlationKey string) (*alerts.Alert, error)
	ResolveMostRecent(ctx context.Context, correlationKey string, resolvedAt time.Time) error
	ListActive(ctx context.Context) ([]alerts.Alert, error)
	UpdateDeliveryStatus(ctx context.Context, id string, status alerts.DeliveryStatus) error
}
