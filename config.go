package triage

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arlberg/triage/internal/rank"
	"github.com/arlberg/triage/internal/validate"
)

// Config is the exhaustive server configuration. Loading rejects unknown
// keys: a misspelled weight name is a load-time error, never silently
// accepted.
type Config struct {
	// Port used by the HTTP API. 0 picks a random free port.
	Port int `yaml:"port"`
	// DatabaseFile is the sqlite file persisting execution records, outcomes
	// and reports. Empty uses a private in-memory database.
	DatabaseFile string `yaml:"database_file"`
	// ExecutorURL is the address of the external executor service (used by
	// the server binary; library users pass an Executor directly).
	ExecutorURL string `yaml:"executor_url"`

	// MaxConcurrent is the admission control ceiling: the maximum number of
	// case executions in flight at any instant, across all batches.
	MaxConcurrent int64 `yaml:"max_concurrent"`
	// CaseTimeout bounds a single case execution. A timed out case is
	// recorded as errored; the batch continues.
	CaseTimeout time.Duration `yaml:"case_timeout"`
	// Repeats is the default number of executions per case.
	Repeats int `yaml:"repeats"`
	// DefaultStrategy is used when a batch does not name one.
	DefaultStrategy string `yaml:"default_strategy"`

	// AnomalyThreshold is the consistency value below which a case is
	// flagged anomalous.
	AnomalyThreshold float64 `yaml:"anomaly_threshold"`

	Weights  rank.Weights        `yaml:"weights"`
	Limits   rank.Limits         `yaml:"limits"`
	Adaptive rank.AdaptiveConfig `yaml:"adaptive"`

	// Elastic enables the report index hook in the server binary when
	// addresses are configured.
	Elastic ElasticConfig `yaml:"elastic"`
	// Slack enables the anomaly notification hook in the server binary when
	// a token is configured.
	Slack SlackConfig `yaml:"slack"`
}

type ElasticConfig struct {
	Addresses []string `yaml:"addresses"`
	Index     string   `yaml:"index"`
}

type SlackConfig struct {
	Token     string `yaml:"token"`
	ChannelID string `yaml:"channel_id"`
}

func DefaultConfig() Config {
	return Config{
		Port:             1337,
		MaxConcurrent:    5,
		CaseTimeout:      60 * time.Second,
		Repeats:          1,
		DefaultStrategy:  rank.StrategyDependency,
		AnomalyThreshold: validate.DefaultThreshold,
		Weights:          rank.DefaultWeights(),
		Limits:           rank.DefaultLimits(),
		Adaptive:         rank.DefaultAdaptiveConfig(),
		Elastic:          ElasticConfig{Index: "triage-reports"},
	}
}

// LoadConfig reads a yaml config file on top of the defaults. Unknown keys
// are rejected.
func LoadConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("opening config file: %w", err)
	}
	defer f.Close()

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	return cfg, nil
}
