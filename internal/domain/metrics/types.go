// Package metrics holds the durable per-collection-operation metric
// record the monitoring engine reads.
package metrics

import "time"

// CollectionMetrics is one record per (job_id, area_code, data_type)
// collection attempt, successful or not.
type CollectionMetrics struct {
	ID    string
	JobID string

	AreaCode string
	DataType string

	CollectionStart time.Time
	CollectionEnd   time.Time

	PointsCollected int
	Success         bool
	ErrorMessage    *string

	APIResponseTime time.Duration
	ProcessingTime  time.Duration

	CreatedAt time.Time
}

// PerformanceMetrics summarizes response/processing times and outcome
// counts over a period.
type PerformanceMetrics struct {
	PeriodStart time.Time
	PeriodEnd   time.Time

	AvgAPIResponseTime time.Duration
	MinAPIResponseTime time.Duration
	MaxAPIResponseTime time.Duration

	AvgProcessingTime time.Duration
	MinProcessingTime time.Duration
	MaxProcessingTime time.Duration

	TotalOperations      int
	SuccessfulOperations int
	FailedOperations     int
	OverallSuccessRate   float64
}
