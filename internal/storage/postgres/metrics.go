package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/entsoe-ingest/collector/internal/apperrors"
	"github.com/entsoe-ingest/collector/internal/domain/metrics"
)

const selectMetricsColumns = `
	id, job_id, area_code, data_type, collection_start, collection_end,
	points_collected, success, error_message, api_response_time_ms, processing_time_ms, created_at
`

func scanMetric(row rowScanner) (metrics.CollectionMetrics, error) {
	var (
		m             metrics.CollectionMetrics
		errorMessage  sql.NullString
		apiResponseMs float64
		processingMs  float64
	)
	if err := row.Scan(
		&m.ID, &m.JobID, &m.AreaCode, &m.DataType, &m.CollectionStart, &m.CollectionEnd,
		&m.PointsCollected, &m.Success, &errorMessage, &apiResponseMs, &processingMs, &m.CreatedAt,
	); err != nil {
		return metrics.CollectionMetrics{}, err
	}
	m.ErrorMessage = fromNullStringPtr(errorMessage)
	m.APIResponseTime = time.Duration(apiResponseMs * float64(time.Millisecond))
	m.ProcessingTime = time.Duration(processingMs * float64(time.Millisecond))
	return m, nil
}

// Insert records one collection attempt, assigning an id if one is not
// already set.
func (s *Store) Insert(ctx context.Context, metric metrics.CollectionMetrics) error {
	return s.insertMetric(ctx, s.db, metric)
}

func (s *Store) insertMetric(ctx context.Context, execer interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}, metric metrics.CollectionMetrics) error {
	if metric.ID == "" {
		metric.ID = uuid.NewString()
	}
	if metric.CreatedAt.IsZero() {
		metric.CreatedAt = time.Now().UTC()
	}
	_, err := execer.ExecContext(ctx, `
		INSERT INTO collection_metrics (
			id, job_id, area_code, data_type, collection_start, collection_end,
			points_collected, success, error_message, api_response_time_ms, processing_time_ms, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, metric.ID, metric.JobID, metric.AreaCode, metric.DataType, metric.CollectionStart, metric.CollectionEnd,
		metric.PointsCollected, metric.Success, toNullStringPtr(metric.ErrorMessage),
		float64(metric.APIResponseTime)/float64(time.Millisecond), float64(metric.ProcessingTime)/float64(time.Millisecond),
		metric.CreatedAt)
	if err != nil {
		return &apperrors.StoreError{ModelType: "collection_metrics", Operation: "insert", Err: err}
	}
	return nil
}

// InsertMany records a batch of collection attempts atomically.
func (s *Store) InsertMany(ctx context.Context, rows []metrics.CollectionMetrics) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &apperrors.StoreError{ModelType: "collection_metrics", Operation: "insert_many", Err: err}
	}
	defer tx.Rollback()

	for _, m := range rows {
		if err := s.insertMetric(ctx, tx, m); err != nil {
			return &apperrors.StoreError{
				ModelType: "collection_metrics",
				Operation: "insert_many",
				Context:   map[string]any{"batch_size": len(rows)},
				Err:       err,
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return &apperrors.StoreError{ModelType: "collection_metrics", Operation: "insert_many", Err: err}
	}
	return nil
}

// GetMetricsByTimeRange returns metrics whose collection_start falls in
// [start, end), optionally narrowed by area/data_type, oldest-first.
func (s *Store) GetMetricsByTimeRange(ctx context.Context, start, end time.Time, areas []string, dataTypes []string) ([]metrics.CollectionMetrics, error) {
	query := `SELECT ` + selectMetricsColumns + ` FROM collection_metrics WHERE collection_start >= $1 AND collection_start < $2`
	args := []any{start, end}
	if len(areas) > 0 {
		args = append(args, pqStringArray(areas))
		query += fmt.Sprintf(" AND area_code = ANY($%d)", len(args))
	}
	if len(dataTypes) > 0 {
		args = append(args, pqStringArray(dataTypes))
		query += fmt.Sprintf(" AND data_type = ANY($%d)", len(args))
	}
	query += ` ORDER BY collection_start ASC`

	return s.queryMetrics(ctx, query, args...)
}

// GetRecentMetrics returns metrics created in the last `minutes` minutes,
// newest-first.
func (s *Store) GetRecentMetrics(ctx context.Context, minutes int) ([]metrics.CollectionMetrics, error) {
	cutoff := time.Now().UTC().Add(-time.Duration(minutes) * time.Minute)
	return s.queryMetrics(ctx, `
		SELECT `+selectMetricsColumns+` FROM collection_metrics
		WHERE created_at >= $1
		ORDER BY created_at DESC
	`, cutoff)
}

// GetMetricsByJobID returns every metric recorded for one scheduler job
// run, oldest-first.
func (s *Store) GetMetricsByJobID(ctx context.Context, jobID string) ([]metrics.CollectionMetrics, error) {
	return s.queryMetrics(ctx, `
		SELECT `+selectMetricsColumns+` FROM collection_metrics
		WHERE job_id = $1
		ORDER BY collection_start ASC
	`, jobID)
}

// GetPerformanceMetrics aggregates response/processing times and outcome
// counts over [start, end).
func (s *Store) GetPerformanceMetrics(ctx context.Context, start, end time.Time) (metrics.PerformanceMetrics, error) {
	perf := metrics.PerformanceMetrics{PeriodStart: start, PeriodEnd: end}

	var (
		avgAPI, minAPI, maxAPI                sql.NullFloat64
		avgProcessing, minProcessing, maxProc sql.NullFloat64
		total, successful                     int
	)
	row := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(AVG(api_response_time_ms), 0), COALESCE(MIN(api_response_time_ms), 0), COALESCE(MAX(api_response_time_ms), 0),
			COALESCE(AVG(processing_time_ms), 0), COALESCE(MIN(processing_time_ms), 0), COALESCE(MAX(processing_time_ms), 0),
			COUNT(*), COUNT(*) FILTER (WHERE success)
		FROM collection_metrics
		WHERE collection_start >= $1 AND collection_start < $2
	`, start, end)
	if err := row.Scan(&avgAPI, &minAPI, &maxAPI, &avgProcessing, &minProcessing, &maxProc, &total, &successful); err != nil {
		return metrics.PerformanceMetrics{}, &apperrors.StoreError{ModelType: "collection_metrics", Operation: "get_performance_metrics", Err: err}
	}

	perf.AvgAPIResponseTime = time.Duration(avgAPI.Float64 * float64(time.Millisecond))
	perf.MinAPIResponseTime = time.Duration(minAPI.Float64 * float64(time.Millisecond))
	perf.MaxAPIResponseTime = time.Duration(maxAPI.Float64 * float64(time.Millisecond))
	perf.AvgProcessingTime = time.Duration(avgProcessing.Float64 * float64(time.Millisecond))
	perf.MinProcessingTime = time.Duration(minProcessing.Float64 * float64(time.Millisecond))
	perf.MaxProcessingTime = time.Duration(maxProc.Float64 * float64(time.Millisecond))
	perf.TotalOperations = total
	perf.SuccessfulOperations = successful
	perf.FailedOperations = total - successful
	if total > 0 {
		perf.OverallSuccessRate = float64(successful) / float64(total)
	}
	return perf, nil
}

// CleanupOldMetrics deletes metrics older than retentionDays, returning
// the count removed.
func (s *Store) CleanupOldMetrics(ctx context.Context, retentionDays int) (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	result, err := s.db.ExecContext(ctx, `DELETE FROM collection_metrics WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, &apperrors.StoreError{ModelType: "collection_metrics", Operation: "cleanup_old_metrics", Err: err}
	}
	rows, _ := result.RowsAffected()
	return int(rows), nil
}

func (s *Store) queryMetrics(ctx context.Context, query string, args ...any) ([]metrics.CollectionMetrics, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &apperrors.StoreError{ModelType: "collection_metrics", Operation: "query", Err: err}
	}
	defer rows.Close()

	var result []metrics.CollectionMetrics
	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return nil, &apperrors.StoreError{ModelType: "collection_metrics", Operation: "query", Err: err}
		}
		result = append(result, m)
	}
	return result, rows.Err()
}
