package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/entsoe-ingest/collector/internal/apperrors"
	"github.com/entsoe-ingest/collector/internal/domain/alerts"
)

const selectAlertColumns = `
	id, rule_id, correlation_key, severity, message, fired_at, resolved_at, delivery_status
`

func scanAlert(row rowScanner) (alerts.Alert, error) {
	var (
		a              alerts.Alert
		severity       string
		resolvedAt     sql.NullTime
		deliveryStatus string
	)
	if err := row.Scan(
		&a.ID, &a.RuleID, &a.CorrelationKey, &severity, &a.Message, &a.FiredAt, &resolvedAt, &deliveryStatus,
	); err != nil {
		return alerts.Alert{}, err
	}
	a.Severity = alerts.Severity(severity)
	a.ResolvedAt = fromNullTimePtr(resolvedAt)
	a.DeliveryStatus = alerts.DeliveryStatus(deliveryStatus)
	return a, nil
}

// CreateAlert inserts a newly fired alert, assigning an id if one is not
// already set.
func (s *Store) CreateAlert(ctx context.Context, alert alerts.Alert) (*alerts.Alert, error) {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	if alert.FiredAt.IsZero() {
		alert.FiredAt = time.Now().UTC()
	}
	if alert.DeliveryStatus == "" {
		alert.DeliveryStatus = alerts.DeliveryPending
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (id, rule_id, correlation_key, severity, message, fired_at, resolved_at, delivery_status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, alert.ID, alert.RuleID, alert.CorrelationKey, string(alert.Severity), alert.Message, alert.FiredAt,
		toNullTimePtr(alert.ResolvedAt), string(alert.DeliveryStatus))
	if err != nil {
		return nil, &apperrors.StoreError{ModelType: "alert", Operation: "create", Err: err}
	}
	return &alert, nil
}

// GetLiveByCorrelationKey returns the most recent unresolved alert for a
// correlation key, used by the alert rule engine to enforce cooldowns,
// or nil if none is live.
func (s *Store) GetLiveByCorrelationKey(ctx context.Context, correlationKey string) (*alerts.Alert, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+selectAlertColumns+`
		FROM alerts
		WHERE correlation_key = $1 AND resolved_at IS NULL
		ORDER BY fired_at DESC
		LIMIT 1
	`, correlationKey)

	a, err := scanAlert(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, &apperrors.StoreError{ModelType: "alert", Operation: "get_live_by_correlation_key", Err: err}
	}
	return &a, nil
}

// ResolveMostRecent marks the most recent unresolved alert for a
// correlation key as resolved at resolvedAt.
func (s *Store) ResolveMostRecent(ctx context.Context, correlationKey string, resolvedAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE alerts SET resolved_at = $2
		WHERE id = (
			SELECT id FROM alerts
			WHERE correlation_key = $1 AND resolved_at IS NULL
			ORDER BY fired_at DESC
			LIMIT 1
		)
	`, correlationKey, resolvedAt)
	if err != nil {
		return &apperrors.StoreError{ModelType: "alert", Operation: "resolve_most_recent", Err: err}
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return &apperrors.StoreError{ModelType: "alert", Operation: "resolve_most_recent", Err: sql.ErrNoRows}
	}
	return nil
}

// UpdateDeliveryStatus records the outcome of handing an alert to its
// sink, called once per fired alert after Engine.fire's Deliver call.
func (s *Store) UpdateDeliveryStatus(ctx context.Context, id string, status alerts.DeliveryStatus) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE alerts SET delivery_status = $2 WHERE id = $1
	`, id, string(status))
	if err != nil {
		return &apperrors.StoreError{ModelType: "alert", Operation: "update_delivery_status", Err: err}
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return &apperrors.StoreError{ModelType: "alert", Operation: "update_delivery_status", Err: sql.ErrNoRows}
	}
	return nil
}

// ListActive returns all unresolved alerts, newest-first.
func (s *Store) ListActive(ctx context.Context) ([]alerts.Alert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectAlertColumns+`
		FROM alerts
		WHERE resolved_at IS NULL
		ORDER BY fired_at DESC
	`)
	if err != nil {
		return nil, &apperrors.StoreError{ModelType: "alert", Operation: "list_active", Err: err}
	}
	defer rows.Close()

	var result []alerts.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, &apperrors.StoreError{ModelType: "alert", Operation: "list_active", Err: err}
		}
		result = append(result, a)
	}
	return result, rows.Err()
}
