package alerting

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entsoe-ingest/collector/internal/domain/alerts"
)

const validRulesYAML = `
rules:
  - id: custom-high-latency
    name: collection latency too high
    metric: performance_ms
    compare: gt
    threshold: 8000
    severity: high
    cooldown_minutes: 15
    enabled: true
  - id: custom-no-cooldown
    name: uses the default cooldown
    metric: success_rate
    compare: lt
    threshold: 0.5
    severity: medium
    enabled: false
`

func TestLoadRulesFromFileParsesEveryField(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validRulesYAML), 0o644))

	rules, err := LoadRulesFromFile(path, 5*time.Minute)
	require.NoError(t, err)
	require.Len(t, rules, 2)

	first := rules[0]
	assert.Equal(t, "custom-high-latency", first.ID)
	assert.Equal(t, "collection latency too high", first.Name)
	assert.Equal(t, "performance_ms", first.Metric)
	assert.Equal(t, alerts.ComparisonGreaterThan, first.Compare)
	assert.Equal(t, 8000.0, first.Threshold)
	assert.Equal(t, alerts.SeverityHigh, first.Severity)
	assert.Equal(t, 15*time.Minute, first.Cooldown)
	assert.True(t, first.Enabled)
}

func TestLoadRulesFromFileFallsBackToDefaultCooldown(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validRulesYAML), 0o644))

	rules, err := LoadRulesFromFile(path, 5*time.Minute)
	require.NoError(t, err)
	require.Len(t, rules, 2)

	second := rules[1]
	assert.Equal(t, 5*time.Minute, second.Cooldown)
	assert.False(t, second.Enabled)
}

func TestLoadRulesFromFileMissingFile(t *testing.T) {
	_, err := LoadRulesFromFile("/nonexistent/rules.yaml", time.Minute)
	assert.Error(t, err)
}

func TestLoadRulesFromFileMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rules: [this is not a rule list"), 0o644))

	_, err := LoadRulesFromFile(path, time.Minute)
	assert.Error(t, err)
}

func TestDefaultRulesAreAllEnabledAndNamed(t *testing.T) {
	rules := DefaultRules(10 * time.Minute)
	require.Len(t, rules, 4)

	seen := make(map[string]bool)
	for _, r := range rules {
		assert.NotEmpty(t, r.ID)
		assert.NotEmpty(t, r.Name)
		assert.NotEmpty(t, r.Metric)
		assert.True(t, r.Enabled)
		assert.Equal(t, 10*time.Minute, r.Cooldown)
		seen[r.ID] = true
	}
	assert.True(t, seen["overall-success-rate"])
	assert.True(t, seen["pair-success-rate"])
	assert.True(t, seen["no-data-collection"])
	assert.True(t, seen["job-repeated-failure"])
}
