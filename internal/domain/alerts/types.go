// Package alerts holds the alert rule engine's entities: thresholds over
// monitoring signals, and the alerts those thresholds have fired.
package alerts

import "time"

// Comparison is the direction a rule's threshold compares against.
type Comparison string

const (
	ComparisonLessThan    Comparison = "lt"
	ComparisonGreaterThan Comparison = "gt"
)

// Severity classifies how urgent a fired alert is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// DeliveryStatus tracks the outcome of handing a fired Alert to its sink.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// Rule is a named threshold condition over a monitoring signal, evaluated
// on the scheduler's health_check cadence.
type Rule struct {
	ID       string
	Name     string
	Metric   string
	Compare  Comparison
	Threshold float64
	Severity  Severity
	Cooldown  time.Duration
	Enabled   bool
}

// Breaches reports whether value crosses the rule's threshold in the
// configured direction.
func (r Rule) Breaches(value float64) bool {
	switch r.Compare {
	case ComparisonLessThan:
		return value < r.Threshold
	case ComparisonGreaterThan:
		return value > r.Threshold
	default:
		return false
	}
}

// Alert is one firing of a Rule, deduplicated by CorrelationKey within
// the rule's cooldown window.
type Alert struct {
	ID             string
	RuleID         string
	CorrelationKey string
	Severity       Severity
	Message        string
	FiredAt        time.Time
	ResolvedAt     *time.Time
	DeliveryStatus DeliveryStatus
}

// Live reports whether the alert has not yet been resolved.
func (a Alert) Live() bool {
	return a.ResolvedAt == nil
}
