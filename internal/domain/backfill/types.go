// Package backfill holds the durable progress record for resumable
// historical backfill operations.
package backfill

import "time"

// Status is the lifecycle state of a backfill operation.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Progress is the durable record tracking one backfill operation from
// start through completion or failure.
type Progress struct {
	ID         string
	AreaCode   string
	Endpoint   string
	Status     Status

	PeriodStart time.Time
	PeriodEnd   time.Time

	TotalChunks        int
	CompletedChunks    int
	FailedChunks       int
	TotalDataPoints    int
	ProgressPercentage float64

	CurrentChunkStart *time.Time
	CurrentChunkEnd   *time.Time

	StartedAt           *time.Time
	CompletedAt         *time.Time
	EstimatedCompletion *time.Time

	ChunkSizeDays  int
	RateLimitDelay float64

	LastError string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// RemainingChunks returns max(0, TotalChunks - CompletedChunks).
func (p Progress) RemainingChunks() int {
	remaining := p.TotalChunks - p.CompletedChunks
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Resumable reports whether the record is eligible for ResumeBackfill:
// a terminal failed/pending record that made at least one chunk of progress.
func (p Progress) Resumable() bool {
	if p.CompletedChunks <= 0 {
		return false
	}
	return p.Status == StatusFailed || p.Status == StatusPending
}

// RecomputeProgressPercentage derives ProgressPercentage from the chunk
// counters, rounded to two decimal places as the spec requires.
func (p *Progress) RecomputeProgressPercentage() {
	if p.TotalChunks <= 0 {
		p.ProgressPercentage = 0
		return
	}
	pct := 100 * float64(p.CompletedChunks) / float64(p.TotalChunks)
	p.ProgressPercentage = roundTo2(pct)
}

func roundTo2(v float64) float64 {
	scaled := v*100 + 0.5
	if v < 0 {
		scaled = v*100 - 0.5
	}
	return float64(int64(scaled)) / 100
}
