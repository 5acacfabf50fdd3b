package triage_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/arlberg/triage"
	"github.com/arlberg/triage/internal/rank"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "triage.yaml")

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	return path
}

func TestLoadConfigAppliesOnTopOfDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
port: 9000
max_concurrent: 8
case_timeout: 90s
weights:
  complexity: 0.3
  priority: 0.3
  execution_time: 0.1
  coverage: 0.1
  dependencies: 0.1
  history: 0.05
  confidence: 0.05
`)

	cfg, err := triage.LoadConfig(path)
	assert.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, int64(8), cfg.MaxConcurrent)
	assert.Equal(t, 90*time.Second, cfg.CaseTimeout)
	assert.InDelta(t, 0.3, cfg.Weights.Complexity, 0.0001)
	assert.NoError(t, cfg.Weights.Validate())

	// untouched keys keep their defaults
	assert.Equal(t, rank.StrategyDependency, cfg.DefaultStrategy)
	assert.Equal(t, 1, cfg.Repeats)
	assert.Equal(t, "triage-reports", cfg.Elastic.Index)
}

func TestLoadConfigHookSections(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
elastic:
  addresses:
    - http://localhost:9200
  index: nightly-reports
slack:
  token: xoxb-test
  channel_id: C1234567
`)

	cfg, err := triage.LoadConfig(path)
	assert.NoError(t, err)

	assert.Equal(t, []string{"http://localhost:9200"}, cfg.Elastic.Addresses)
	assert.Equal(t, "nightly-reports", cfg.Elastic.Index)
	assert.Equal(t, "xoxb-test", cfg.Slack.Token)
	assert.Equal(t, "C1234567", cfg.Slack.ChannelID)
}

func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
weights:
  complexity: 0.5
  prioritee: 0.5
`)

	_, err := triage.LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Parallel()

	_, err := triage.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestServerRejectsInvalidWeights(t *testing.T) {
	t.Parallel()

	cfg := triage.DefaultConfig()
	cfg.Weights = rank.Weights{Complexity: 0.5, Priority: 0.2}

	_, err := triage.New(newScriptedExecutor(), triage.WithConfig(cfg))
	assert.Error(t, err)
}
