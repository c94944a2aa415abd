// Package postgres implements the storage interfaces backed by
// PostgreSQL/TimescaleDB, following the teacher's single-Store-struct,
// raw database/sql pattern.
package postgres

import (
	"database/sql"
	"database/sql/driver"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/entsoe-ingest/collector/internal/storage"
)

// pqStringArray adapts a []string into a Postgres text[] literal for use
// with the "= ANY($n)" filter pattern.
func pqStringArray(values []string) driver.Valuer {
	return pq.Array(values)
}

// Store implements LoadStore, PriceStore, ProgressStore, MetricsStore,
// and AlertStore backed by a single *sql.DB handle.
type Store struct {
	db *sql.DB
}

var _ storage.LoadStore = (*Store)(nil)
var _ storage.PriceStore = (*Store)(nil)
var _ storage.ProgressStore = (*Store)(nil)
var _ storage.MetricsStore = (*Store)(nil)
var _ storage.AlertStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func toNullString(value string) sql.NullString {
	if strings.TrimSpace(value) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func toNullStringPtr(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return toNullString(*value)
}

func fromNullStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	s := value.String
	return &s
}

func toNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func toNullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return toNullTime(*t)
}

func fromNullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func toNullInt(value *int) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*value), Valid: true}
}

func fromNullInt(value sql.NullInt64) *int {
	if !value.Valid {
		return nil
	}
	v := int(value.Int64)
	return &v
}
