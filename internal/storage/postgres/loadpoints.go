package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/entsoe-ingest/collector/internal/apperrors"
	"github.com/entsoe-ingest/collector/internal/domain/energydata"
	"github.com/entsoe-ingest/collector/internal/storage"
)

const upsertLoadPointSQL = `
INSERT INTO load_points (
	"timestamp", area_code, data_type, business_type,
	quantity, unit, data_source, document_mrid, revision_number, document_created_at,
	time_series_mrid, resolution, curve_type, object_aggregation, "position",
	period_start, period_end, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$18)
ON CONFLICT ("timestamp", area_code, data_type, business_type) DO UPDATE SET
	quantity = EXCLUDED.quantity,
	unit = EXCLUDED.unit,
	data_source = EXCLUDED.data_source,
	document_mrid = EXCLUDED.document_mrid,
	revision_number = EXCLUDED.revision_number,
	document_created_at = EXCLUDED.document_created_at,
	time_series_mrid = EXCLUDED.time_series_mrid,
	resolution = EXCLUDED.resolution,
	curve_type = EXCLUDED.curve_type,
	object_aggregation = EXCLUDED.object_aggregation,
	"position" = EXCLUDED."position",
	period_start = EXCLUDED.period_start,
	period_end = EXCLUDED.period_end,
	updated_at = EXCLUDED.updated_at
`

// UpsertBatch atomically inserts or replaces a list of load points keyed
// by their composite key. An empty input returns immediately. Any
// storage error rolls the entire batch back.
func (s *Store) UpsertBatch(ctx context.Context, points []energydata.LoadPoint) error {
	if len(points) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &apperrors.StoreError{ModelType: "load_point", Operation: "upsert_batch", Err: err}
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, p := range points {
		_, err := tx.ExecContext(ctx, upsertLoadPointSQL,
			p.Timestamp, p.AreaCode, string(p.DataType), p.BusinessType,
			p.Quantity, p.Unit, p.DataSource, p.DocumentMRID, toNullInt(p.RevisionNumber), p.DocumentCreatedAt,
			p.TimeSeriesMRID, p.Resolution, p.CurveType, p.ObjectAggregation, p.Position,
			p.PeriodStart, p.PeriodEnd, now,
		)
		if err != nil {
			return &apperrors.StoreError{
				ModelType: "load_point",
				Operation: "upsert_batch",
				Context:   map[string]any{"batch_size": len(points)},
				Err:       err,
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return &apperrors.StoreError{ModelType: "load_point", Operation: "upsert_batch", Err: err}
	}
	return nil
}

const selectLoadPointColumns = `
	"timestamp", area_code, data_type, business_type,
	quantity, unit, data_source, document_mrid, revision_number, document_created_at,
	time_series_mrid, resolution, curve_type, object_aggregation, "position",
	period_start, period_end, created_at, updated_at
`

func scanLoadPoint(row rowScanner) (energydata.LoadPoint, error) {
	var (
		p              energydata.LoadPoint
		dataType       string
		revisionNumber sql.NullInt64
	)
	if err := row.Scan(
		&p.Timestamp, &p.AreaCode, &dataType, &p.BusinessType,
		&p.Quantity, &p.Unit, &p.DataSource, &p.DocumentMRID, &revisionNumber, &p.DocumentCreatedAt,
		&p.TimeSeriesMRID, &p.Resolution, &p.CurveType, &p.ObjectAggregation, &p.Position,
		&p.PeriodStart, &p.PeriodEnd, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return energydata.LoadPoint{}, err
	}
	p.DataType = energydata.DataType(dataType)
	p.RevisionNumber = fromNullInt(revisionNumber)
	return p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// GetByTimeRange returns load points in [start, end) ordered ascending
// by timestamp, optionally narrowed by area/data_type/business_type.
func (s *Store) GetByTimeRange(ctx context.Context, start, end time.Time, filter storage.TimeRangeFilter) ([]energydata.LoadPoint, error) {
	query := `SELECT ` + selectLoadPointColumns + ` FROM load_points WHERE "timestamp" >= $1 AND "timestamp" < $2`
	args := []any{start, end}
	query, args = appendTimeRangeFilter(query, args, filter)
	query += ` ORDER BY "timestamp" ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &apperrors.StoreError{ModelType: "load_point", Operation: "get_by_time_range", Err: err}
	}
	defer rows.Close()

	var result []energydata.LoadPoint
	for rows.Next() {
		p, err := scanLoadPoint(rows)
		if err != nil {
			return nil, &apperrors.StoreError{ModelType: "load_point", Operation: "get_by_time_range", Err: err}
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// GetLatestForAreaAndType returns the most recent point for (area,
// data_type), deliberately ignoring business_type (§4.1).
func (s *Store) GetLatestForAreaAndType(ctx context.Context, area string, dataType energydata.DataType) (*energydata.LoadPoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+selectLoadPointColumns+`
		FROM load_points
		WHERE area_code = $1 AND data_type = $2
		ORDER BY "timestamp" DESC
		LIMIT 1
	`, area, string(dataType))

	p, err := scanLoadPoint(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, &apperrors.StoreError{ModelType: "load_point", Operation: "get_latest_for_area_and_type", Err: err}
	}
	return &p, nil
}

// GetByArea returns points for one area (and, if set, data_type),
// newest-first, limited to limit rows when positive.
func (s *Store) GetByArea(ctx context.Context, area string, dataType energydata.DataType, limit int) ([]energydata.LoadPoint, error) {
	query := `SELECT ` + selectLoadPointColumns + ` FROM load_points WHERE area_code = $1`
	args := []any{area}
	if dataType != "" {
		args = append(args, string(dataType))
		query += fmt.Sprintf(" AND data_type = $%d", len(args))
	}
	query += ` ORDER BY "timestamp" DESC`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &apperrors.StoreError{ModelType: "load_point", Operation: "get_by_area", Err: err}
	}
	defer rows.Close()

	var result []energydata.LoadPoint
	for rows.Next() {
		p, err := scanLoadPoint(rows)
		if err != nil {
			return nil, &apperrors.StoreError{ModelType: "load_point", Operation: "get_by_area", Err: err}
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// GetByID returns the point for an exact composite key, or nil if absent.
func (s *Store) GetByID(ctx context.Context, key energydata.Key) (*energydata.LoadPoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+selectLoadPointColumns+`
		FROM load_points
		WHERE "timestamp" = $1 AND area_code = $2 AND data_type = $3 AND business_type = $4
	`, key.Timestamp, key.AreaCode, string(key.DataType), key.BusinessType)

	p, err := scanLoadPoint(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, &apperrors.StoreError{ModelType: "load_point", Operation: "get_by_id", Err: err}
	}
	return &p, nil
}

// Delete removes the point with the given composite key, reporting
// whether a row was actually removed.
func (s *Store) Delete(ctx context.Context, key energydata.Key) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM load_points
		WHERE "timestamp" = $1 AND area_code = $2 AND data_type = $3 AND business_type = $4
	`, key.Timestamp, key.AreaCode, string(key.DataType), key.BusinessType)
	if err != nil {
		return false, &apperrors.StoreError{ModelType: "load_point", Operation: "delete", Err: err}
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

func appendTimeRangeFilter(query string, args []any, filter storage.TimeRangeFilter) (string, []any) {
	if len(filter.Areas) > 0 {
		args = append(args, pqStringArray(filter.Areas))
		query += fmt.Sprintf(" AND area_code = ANY($%d)", len(args))
	}
	if len(filter.DataTypes) > 0 {
		dataTypes := make([]string, len(filter.DataTypes))
		for i, dt := range filter.DataTypes {
			dataTypes[i] = string(dt)
		}
		args = append(args, pqStringArray(dataTypes))
		query += fmt.Sprintf(" AND data_type = ANY($%d)", len(args))
	}
	if len(filter.BusinessTypes) > 0 {
		args = append(args, pqStringArray(filter.BusinessTypes))
		query += fmt.Sprintf(" AND business_type = ANY($%d)", len(args))
	}
	return query, args
}
