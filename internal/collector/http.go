package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/entsoe-ingest/collector/infrastructure/ratelimit"
	"github.com/entsoe-ingest/collector/infrastructure/resilience"
	"github.com/entsoe-ingest/collector/internal/apperrors"
	"github.com/entsoe-ingest/collector/internal/transform"
	"github.com/entsoe-ingest/collector/pkg/logger"
)

// DocumentParams is the upstream "document type" query value the real
// HTTP wire grammar would use to pick the right response shape; the
// decoding of that response into transform.Document is an external
// collaborator's concern (XML grammar out of scope), so DocumentDecoder
// is the seam HTTPCollector calls into.
type DocumentParams struct {
	ProcessType  string
	DocumentType string
}

var endpointDocumentParams = map[Endpoint]DocumentParams{
	EndpointActualLoad:         {ProcessType: "realised", DocumentType: "system_total_load"},
	EndpointDayAheadForecast:   {ProcessType: "day_ahead", DocumentType: "system_total_load"},
	EndpointWeekAheadForecast:  {ProcessType: "week_ahead", DocumentType: "system_total_load"},
	EndpointMonthAheadForecast: {ProcessType: "month_ahead", DocumentType: "system_total_load"},
	EndpointYearAheadForecast:  {ProcessType: "year_ahead", DocumentType: "system_total_load"},
	EndpointForecastMargin:     {ProcessType: "year_ahead", DocumentType: "load_forecast_margin"},
	EndpointDayAheadPrices:     {ProcessType: "day_ahead", DocumentType: "price_document"},
}

// DocumentDecoder decodes a raw upstream response body into the internal
// document shape. The concrete ENTSO-E XML grammar is out of scope per
// the Non-goals; callers inject a decoder (or use a test double).
type DocumentDecoder interface {
	Decode(body []byte, params DocumentParams) (transform.Document, error)
}

// HTTPCollector retrieves documents from the upstream HTTP API, following
// the same construction shape as the teacher's HTTPFetcher: a configured
// *http.Client, a base endpoint URL, an optional bearer token, and a
// structured logger.
type HTTPCollector struct {
	client  *http.Client
	baseURL *url.URL
	apiKey  string
	decoder DocumentDecoder
	log     *logger.Logger
	breaker *resilience.CircuitBreaker
	limiter *ratelimit.RateLimiter
}

// NewHTTPCollector constructs a Collector that calls the given base URL.
// Upstream calls go through one circuit breaker shared by every endpoint
// (so a struggling upstream fails fast instead of piling up retries) and a
// token-bucket rate limiter sized to stay well clear of the upstream API's
// published request quota.
func NewHTTPCollector(client *http.Client, baseURL string, apiKey string, decoder DocumentDecoder, log *logger.Logger) (*HTTPCollector, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("collector base URL is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse collector base URL: %w", err)
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if decoder == nil {
		return nil, fmt.Errorf("collector document decoder is required")
	}
	if log == nil {
		log = logger.NewDefault("entsoe-http-collector")
	}
	return &HTTPCollector{
		client:  client,
		baseURL: u,
		apiKey:  strings.TrimSpace(apiKey),
		decoder: decoder,
		log:     log,
		breaker: resilience.New(resilience.DefaultServiceCBConfig(log)),
		limiter: ratelimit.New(ratelimit.DefaultConfig()),
	}, nil
}

func (c *HTTPCollector) fetch(ctx context.Context, endpoint Endpoint, area string, periodStart, periodEnd time.Time) (transform.Document, error) {
	params := endpointDocumentParams[endpoint]

	reqURL := *c.baseURL
	q := reqURL.Query()
	q.Set("documentType", params.DocumentType)
	q.Set("processType", params.ProcessType)
	q.Set("area", area)
	q.Set("periodStart", periodStart.UTC().Format("200601021504"))
	q.Set("periodEnd", periodEnd.UTC().Format("200601021504"))
	reqURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return transform.Document{}, &apperrors.CollectorError{Endpoint: string(endpoint), Err: fmt.Errorf("build request: %w", err)}
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return transform.Document{}, &apperrors.CollectorError{Endpoint: string(endpoint), Err: fmt.Errorf("rate limiter: %w", err)}
	}

	var resp *http.Response
	breakerErr := c.breaker.Execute(ctx, func() error {
		var doErr error
		resp, doErr = c.client.Do(req)
		if doErr != nil {
			return doErr
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("upstream status %d", resp.StatusCode)
		}
		return nil
	})
	if breakerErr != nil && resp == nil {
		return transform.Document{}, &apperrors.CollectorError{Endpoint: string(endpoint), Err: breakerErr}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return transform.Document{}, ErrNoData
	}

	if resp.StatusCode != http.StatusOK {
		var retryAfter *int
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil {
				retryAfter = &secs
			}
		}
		return transform.Document{}, &apperrors.CollectorError{
			Endpoint:   string(endpoint),
			StatusCode: resp.StatusCode,
			RetryAfter: retryAfter,
			Err:        fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	body := make([]byte, 0, 4096)
	buf := make([]byte, 4096)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			body = append(body, buf[:n]...)
		}
		if readErr != nil {
			break
		}
	}
	if len(body) == 0 {
		return transform.Document{}, ErrNoData
	}

	doc, err := c.decoder.Decode(body, params)
	if err != nil {
		return transform.Document{}, &apperrors.CollectorError{Endpoint: string(endpoint), Err: fmt.Errorf("decode response: %w", err)}
	}
	return doc, nil
}

func (c *HTTPCollector) ActualLoad(ctx context.Context, area string, periodStart, periodEnd time.Time) (transform.Document, error) {
	return c.fetch(ctx, EndpointActualLoad, area, periodStart, periodEnd)
}

func (c *HTTPCollector) DayAheadForecast(ctx context.Context, area string, periodStart, periodEnd time.Time) (transform.Document, error) {
	return c.fetch(ctx, EndpointDayAheadForecast, area, periodStart, periodEnd)
}

func (c *HTTPCollector) WeekAheadForecast(ctx context.Context, area string, periodStart, periodEnd time.Time) (transform.Document, error) {
	return c.fetch(ctx, EndpointWeekAheadForecast, area, periodStart, periodEnd)
}

func (c *HTTPCollector) MonthAheadForecast(ctx context.Context, area string, periodStart, periodEnd time.Time) (transform.Document, error) {
	return c.fetch(ctx, EndpointMonthAheadForecast, area, periodStart, periodEnd)
}

func (c *HTTPCollector) YearAheadForecast(ctx context.Context, area string, periodStart, periodEnd time.Time) (transform.Document, error) {
	return c.fetch(ctx, EndpointYearAheadForecast, area, periodStart, periodEnd)
}

func (c *HTTPCollector) ForecastMargin(ctx context.Context, area string, periodStart, periodEnd time.Time) (transform.Document, error) {
	return c.fetch(ctx, EndpointForecastMargin, area, periodStart, periodEnd)
}

func (c *HTTPCollector) DayAheadPrices(ctx context.Context, area string, periodStart, periodEnd time.Time) (transform.Document, error) {
	return c.fetch(ctx, EndpointDayAheadPrices, area, periodStart, periodEnd)
}
