package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/entsoe-ingest/collector/internal/apperrors"
	"github.com/entsoe-ingest/collector/internal/domain/backfill"
)

const selectProgressColumns = `
	id, area_code, endpoint_name, status, period_start, period_end,
	chunk_size_days, rate_limit_delay, total_chunks, completed_chunks, failed_chunks,
	total_data_points, progress_percentage, current_chunk_start, current_chunk_end,
	started_at, completed_at, estimated_completion, last_error, created_at, updated_at
`

func scanProgress(row rowScanner) (backfill.Progress, error) {
	var (
		p                 backfill.Progress
		status            string
		currentChunkStart sql.NullTime
		currentChunkEnd   sql.NullTime
		startedAt         sql.NullTime
		completedAt       sql.NullTime
		estimatedComplete sql.NullTime
		lastError         sql.NullString
	)
	if err := row.Scan(
		&p.ID, &p.AreaCode, &p.Endpoint, &status, &p.PeriodStart, &p.PeriodEnd,
		&p.ChunkSizeDays, &p.RateLimitDelay, &p.TotalChunks, &p.CompletedChunks, &p.FailedChunks,
		&p.TotalDataPoints, &p.ProgressPercentage, &currentChunkStart, &currentChunkEnd,
		&startedAt, &completedAt, &estimatedComplete, &lastError, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return backfill.Progress{}, err
	}
	p.Status = backfill.Status(status)
	p.CurrentChunkStart = fromNullTimePtr(currentChunkStart)
	p.CurrentChunkEnd = fromNullTimePtr(currentChunkEnd)
	p.StartedAt = fromNullTimePtr(startedAt)
	p.CompletedAt = fromNullTimePtr(completedAt)
	p.EstimatedCompletion = fromNullTimePtr(estimatedComplete)
	if lastError.Valid {
		p.LastError = lastError.String
	}
	return p, nil
}

// Create inserts a new backfill progress record, assigning an id if one
// is not already set.
func (s *Store) Create(ctx context.Context, progress backfill.Progress) (*backfill.Progress, error) {
	if progress.ID == "" {
		progress.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	progress.CreatedAt = now
	progress.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO backfill_progress (
			id, area_code, endpoint_name, status, period_start, period_end,
			chunk_size_days, rate_limit_delay, total_chunks, completed_chunks, failed_chunks,
			total_data_points, progress_percentage, current_chunk_start, current_chunk_end,
			started_at, completed_at, estimated_completion, last_error, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
	`, progress.ID, progress.AreaCode, progress.Endpoint, string(progress.Status), progress.PeriodStart, progress.PeriodEnd,
		progress.ChunkSizeDays, progress.RateLimitDelay, progress.TotalChunks, progress.CompletedChunks, progress.FailedChunks,
		progress.TotalDataPoints, progress.ProgressPercentage, toNullTimePtr(progress.CurrentChunkStart), toNullTimePtr(progress.CurrentChunkEnd),
		toNullTimePtr(progress.StartedAt), toNullTimePtr(progress.CompletedAt), toNullTimePtr(progress.EstimatedCompletion),
		toNullString(progress.LastError), progress.CreatedAt, progress.UpdatedAt)
	if err != nil {
		return nil, &apperrors.StoreError{ModelType: "backfill_progress", Operation: "create", Err: err}
	}
	return &progress, nil
}

// GetProgressByID returns the progress record for id, or nil if absent.
func (s *Store) GetProgressByID(ctx context.Context, id string) (*backfill.Progress, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectProgressColumns+` FROM backfill_progress WHERE id = $1`, id)
	p, err := scanProgress(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, &apperrors.StoreError{ModelType: "backfill_progress", Operation: "get_progress_by_id", Err: err}
	}
	return &p, nil
}

// Update writes a fresh row keyed by id; callers never re-attach stale
// instances (the whole record is written every call).
func (s *Store) Update(ctx context.Context, progress backfill.Progress) error {
	progress.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE backfill_progress SET
			area_code = $2, endpoint_name = $3, status = $4, period_start = $5, period_end = $6,
			chunk_size_days = $7, rate_limit_delay = $8, total_chunks = $9, completed_chunks = $10, failed_chunks = $11,
			total_data_points = $12, progress_percentage = $13, current_chunk_start = $14, current_chunk_end = $15,
			started_at = $16, completed_at = $17, estimated_completion = $18, last_error = $19, updated_at = $20
		WHERE id = $1
	`, progress.ID, progress.AreaCode, progress.Endpoint, string(progress.Status), progress.PeriodStart, progress.PeriodEnd,
		progress.ChunkSizeDays, progress.RateLimitDelay, progress.TotalChunks, progress.CompletedChunks, progress.FailedChunks,
		progress.TotalDataPoints, progress.ProgressPercentage, toNullTimePtr(progress.CurrentChunkStart), toNullTimePtr(progress.CurrentChunkEnd),
		toNullTimePtr(progress.StartedAt), toNullTimePtr(progress.CompletedAt), toNullTimePtr(progress.EstimatedCompletion),
		toNullString(progress.LastError), progress.UpdatedAt)
	if err != nil {
		return &apperrors.StoreError{ModelType: "backfill_progress", Operation: "update", Err: err}
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return &apperrors.StoreError{ModelType: "backfill_progress", Operation: "update", Err: sql.ErrNoRows}
	}
	return nil
}

// GetActive returns pending ∪ in_progress records, newest-first.
func (s *Store) GetActive(ctx context.Context) ([]backfill.Progress, error) {
	return s.queryProgress(ctx, `
		SELECT `+selectProgressColumns+` FROM backfill_progress
		WHERE status IN ('pending', 'in_progress')
		ORDER BY created_at DESC
	`)
}

// GetResumable returns failed ∪ pending records with completed_chunks > 0.
func (s *Store) GetResumable(ctx context.Context) ([]backfill.Progress, error) {
	return s.queryProgress(ctx, `
		SELECT `+selectProgressColumns+` FROM backfill_progress
		WHERE status IN ('failed', 'pending') AND completed_chunks > 0
		ORDER BY created_at DESC
	`)
}

// GetByAreaEndpoint returns every progress record for one (area, endpoint).
func (s *Store) GetByAreaEndpoint(ctx context.Context, area, endpoint string) ([]backfill.Progress, error) {
	return s.queryProgress(ctx, `
		SELECT `+selectProgressColumns+` FROM backfill_progress
		WHERE area_code = $1 AND endpoint_name = $2
		ORDER BY created_at DESC
	`, area, endpoint)
}

func (s *Store) queryProgress(ctx context.Context, query string, args ...any) ([]backfill.Progress, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &apperrors.StoreError{ModelType: "backfill_progress", Operation: "query", Err: err}
	}
	defer rows.Close()

	var result []backfill.Progress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, &apperrors.StoreError{ModelType: "backfill_progress", Operation: "query", Err: err}
		}
		result = append(result, p)
	}
	return result, rows.Err()
}
