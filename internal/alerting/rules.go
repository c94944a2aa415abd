package alerting

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/entsoe-ingest/collector/internal/domain/alerts"
)

// ruleFile is the on-disk shape of a static alert rule definition; it
// mirrors alerts.Rule but expresses Cooldown as whole minutes so the YAML
// stays human-editable.
type ruleFile struct {
	ID              string  `yaml:"id"`
	Name            string  `yaml:"name"`
	Metric          string  `yaml:"metric"`
	Compare         string  `yaml:"compare"`
	Threshold       float64 `yaml:"threshold"`
	Severity        string  `yaml:"severity"`
	CooldownMinutes int     `yaml:"cooldown_minutes"`
	Enabled         bool    `yaml:"enabled"`
}

type rulesDocument struct {
	Rules []ruleFile `yaml:"rules"`
}

// LoadRulesFromFile parses a static list of alerts.Rule from a YAML file.
// A rule that omits cooldown_minutes falls back to defaultCooldown.
func LoadRulesFromFile(path string, defaultCooldown time.Duration) ([]alerts.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}

	var doc rulesDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}

	rules := make([]alerts.Rule, 0, len(doc.Rules))
	for _, rf := range doc.Rules {
		cooldown := defaultCooldown
		if rf.CooldownMinutes > 0 {
			cooldown = time.Duration(rf.CooldownMinutes) * time.Minute
		}
		rules = append(rules, alerts.Rule{
			ID:        rf.ID,
			Name:      rf.Name,
			Metric:    rf.Metric,
			Compare:   alerts.Comparison(rf.Compare),
			Threshold: rf.Threshold,
			Severity:  alerts.Severity(rf.Severity),
			Cooldown:  cooldown,
			Enabled:   rf.Enabled,
		})
	}
	return rules, nil
}

// DefaultRules returns a sensible built-in rule set used when no rules
// file is configured, covering the signals the Monitoring Engine always
// produces plus the scheduler's per-job failure counts.
func DefaultRules(defaultCooldown time.Duration) []alerts.Rule {
	return []alerts.Rule{
		{
			ID: "overall-success-rate", Name: "overall collection success rate low",
			Metric: "overall_success_rate", Compare: alerts.ComparisonLessThan, Threshold: 0.9,
			Severity: alerts.SeverityHigh, Cooldown: defaultCooldown, Enabled: true,
		},
		{
			ID: "pair-success-rate", Name: "per-area/data-type success rate low",
			Metric: "success_rate", Compare: alerts.ComparisonLessThan, Threshold: 0.8,
			Severity: alerts.SeverityMedium, Cooldown: defaultCooldown, Enabled: true,
		},
		{
			ID: "no-data-collection", Name: "no data collected in window",
			Metric: "no_data_collection", Compare: alerts.ComparisonGreaterThan, Threshold: -1,
			Severity: alerts.SeverityHigh, Cooldown: defaultCooldown, Enabled: true,
		},
		{
			ID: "job-repeated-failure", Name: "scheduled job repeatedly failing",
			Metric: "job_failure_count", Compare: alerts.ComparisonGreaterThan, Threshold: 2,
			Severity: alerts.SeverityCritical, Cooldown: defaultCooldown, Enabled: true,
		},
	}
}
