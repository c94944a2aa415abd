// Package collector defines the uniform call surface over the upstream
// API's per-endpoint methods (C5). The concrete HTTP implementation
// (wire grammar, authentication, XML decoding) is an external
// collaborator; core components depend only on the Collector interface.
package collector

import (
	"context"
	"errors"
	"time"

	"github.com/entsoe-ingest/collector/internal/transform"
)

// Endpoint names the closed set of upstream data feeds.
type Endpoint string

const (
	EndpointActualLoad         Endpoint = "actual_load"
	EndpointDayAheadForecast   Endpoint = "day_ahead_forecast"
	EndpointWeekAheadForecast  Endpoint = "week_ahead_forecast"
	EndpointMonthAheadForecast Endpoint = "month_ahead_forecast"
	EndpointYearAheadForecast  Endpoint = "year_ahead_forecast"
	EndpointForecastMargin     Endpoint = "forecast_margin"
	EndpointDayAheadPrices     Endpoint = "day_ahead_prices"
)

// ErrNoData is the sentinel a Collector method returns when the upstream
// API has no data for the requested window; it is not an error condition.
var ErrNoData = errors.New("collector: no data available for requested period")

// Collector is the uniform interface over the upstream API's per-endpoint
// methods. Each method takes a half-open [periodStart, periodEnd) UTC
// window and returns either a decoded document or ErrNoData.
type Collector interface {
	ActualLoad(ctx context.Context, area string, periodStart, periodEnd time.Time) (transform.Document, error)
	DayAheadForecast(ctx context.Context, area string, periodStart, periodEnd time.Time) (transform.Document, error)
	WeekAheadForecast(ctx context.Context, area string, periodStart, periodEnd time.Time) (transform.Document, error)
	MonthAheadForecast(ctx context.Context, area string, periodStart, periodEnd time.Time) (transform.Document, error)
	YearAheadForecast(ctx context.Context, area string, periodStart, periodEnd time.Time) (transform.Document, error)
	ForecastMargin(ctx context.Context, area string, periodStart, periodEnd time.Time) (transform.Document, error)
	DayAheadPrices(ctx context.Context, area string, periodStart, periodEnd time.Time) (transform.Document, error)
}

// Fetch dispatches to the Collector method matching endpoint, so calling
// code can drive the endpoint configuration table (see EndpointConfig)
// without a manual per-endpoint switch at every call site.
func Fetch(ctx context.Context, c Collector, endpoint Endpoint, area string, periodStart, periodEnd time.Time) (transform.Document, error) {
	switch endpoint {
	case EndpointActualLoad:
		return c.ActualLoad(ctx, area, periodStart, periodEnd)
	case EndpointDayAheadForecast:
		return c.DayAheadForecast(ctx, area, periodStart, periodEnd)
	case EndpointWeekAheadForecast:
		return c.WeekAheadForecast(ctx, area, periodStart, periodEnd)
	case EndpointMonthAheadForecast:
		return c.MonthAheadForecast(ctx, area, periodStart, periodEnd)
	case EndpointYearAheadForecast:
		return c.YearAheadForecast(ctx, area, periodStart, periodEnd)
	case EndpointForecastMargin:
		return c.ForecastMargin(ctx, area, periodStart, periodEnd)
	case EndpointDayAheadPrices:
		return c.DayAheadPrices(ctx, area, periodStart, periodEnd)
	default:
		return transform.Document{}, errUnknownEndpoint(endpoint)
	}
}

type unknownEndpointError struct{ endpoint Endpoint }

func (e *unknownEndpointError) Error() string {
	return "collector: unknown endpoint " + string(e.endpoint)
}

func errUnknownEndpoint(e Endpoint) error { return &unknownEndpointError{endpoint: e} }
