// Package energydata holds the composite-keyed time-series entities the
// store persists: load points and day-ahead price points.
package energydata

import "time"

// DataType classifies a point by how it relates to delivery time.
type DataType string

const (
	DataTypeActual         DataType = "actual"
	DataTypeDayAhead       DataType = "day_ahead"
	DataTypeWeekAhead      DataType = "week_ahead"
	DataTypeMonthAhead     DataType = "month_ahead"
	DataTypeYearAhead      DataType = "year_ahead"
	DataTypeForecastMargin DataType = "forecast_margin"
)

// Key is the composite primary key shared by load and price points.
type Key struct {
	Timestamp    time.Time
	AreaCode     string
	DataType     DataType
	BusinessType string
}

// LoadPoint is one (area, data_type, business_type, timestamp) load
// observation or forecast.
type LoadPoint struct {
	Key

	Quantity          float64
	Unit              string
	DataSource        string
	DocumentMRID      string
	RevisionNumber    *int
	DocumentCreatedAt time.Time
	TimeSeriesMRID    string
	Resolution        string
	CurveType         string
	ObjectAggregation string
	Position          int
	PeriodStart       time.Time
	PeriodEnd         time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// PricePoint is one day-ahead price observation.
type PricePoint struct {
	Key

	PriceAmount                 float64
	CurrencyUnitName            string
	PriceMeasureUnitName        string
	AuctionType                 *string
	ContractMarketAgreementType *string
	CurveType                   *string
	DataSource                  string
	DocumentMRID                string
	RevisionNumber              *int
	DocumentCreatedAt           time.Time
	TimeSeriesMRID              string
	Resolution                  string
	Position                    int
	PeriodStart                 time.Time
	PeriodEnd                   time.Time
	CreatedAt                   time.Time
	UpdatedAt                   time.Time
}
