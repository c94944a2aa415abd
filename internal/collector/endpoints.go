package collector

import (
	"time"

	"github.com/entsoe-ingest/collector/internal/domain/energydata"
)

// EndpointConfig is the closed per-endpoint configuration table (§4.6):
// expected reporting interval, maximum chunk size for fan-out, and
// whether the endpoint looks forward (forecasts) or backward (actuals).
type EndpointConfig struct {
	DataType         energydata.DataType
	ExpectedInterval time.Duration
	MaxChunkDays     int
	IsForwardLooking bool
	ForecastHorizon  time.Duration
}

// Endpoints is the closed table of recognized endpoints. It is never
// mutated at runtime; callers range over AllEndpoints for a stable order.
var Endpoints = map[Endpoint]EndpointConfig{
	EndpointActualLoad: {
		DataType:         energydata.DataTypeActual,
		ExpectedInterval: 5 * time.Minute,
		MaxChunkDays:     3,
		IsForwardLooking: false,
	},
	EndpointDayAheadForecast: {
		DataType:         energydata.DataTypeDayAhead,
		ExpectedInterval: 15 * time.Minute,
		MaxChunkDays:     7,
		IsForwardLooking: true,
		ForecastHorizon:  2 * 24 * time.Hour,
	},
	EndpointWeekAheadForecast: {
		DataType:         energydata.DataTypeWeekAhead,
		ExpectedInterval: 30 * time.Minute,
		MaxChunkDays:     14,
		IsForwardLooking: true,
		ForecastHorizon:  14 * 24 * time.Hour,
	},
	EndpointMonthAheadForecast: {
		DataType:         energydata.DataTypeMonthAhead,
		ExpectedInterval: 2 * time.Hour,
		MaxChunkDays:     30,
		IsForwardLooking: true,
		ForecastHorizon:  62 * 24 * time.Hour,
	},
	EndpointYearAheadForecast: {
		DataType:         energydata.DataTypeYearAhead,
		ExpectedInterval: 6 * time.Hour,
		MaxChunkDays:     90,
		IsForwardLooking: true,
		ForecastHorizon:  730 * 24 * time.Hour,
	},
	EndpointForecastMargin: {
		DataType:         energydata.DataTypeForecastMargin,
		ExpectedInterval: 12 * time.Hour,
		MaxChunkDays:     30,
		IsForwardLooking: true,
		ForecastHorizon:  365 * 24 * time.Hour,
	},
	EndpointDayAheadPrices: {
		DataType:         energydata.DataTypeDayAhead,
		ExpectedInterval: 15 * time.Minute,
		MaxChunkDays:     7,
		IsForwardLooking: true,
		ForecastHorizon:  2 * 24 * time.Hour,
	},
}

// AllEndpoints returns the closed endpoint set in a stable, deterministic
// order (declaration order of the closed set named in the component
// design), so fan-out and reporting are reproducible.
func AllEndpoints() []Endpoint {
	return []Endpoint{
		EndpointActualLoad,
		EndpointDayAheadForecast,
		EndpointWeekAheadForecast,
		EndpointMonthAheadForecast,
		EndpointYearAheadForecast,
		EndpointForecastMargin,
		EndpointDayAheadPrices,
	}
}
