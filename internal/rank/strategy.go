package rank

import (
	"math"
	"sort"

	"github.com/arlberg/triage/internal/history"
	"github.com/arlberg/triage/internal/model"
)

// Strategy orders a batch of test cases for scheduling, highest value first.
// Implementations must not mutate the input slice. An empty batch yields an
// empty ranked sequence without error.
type Strategy interface {
	Name() string
	Rank(cases []model.TestCase) ([]model.RankedCase, error)
}

const (
	StrategyWeighted   = "weighted"
	StrategyDependency = "dependency"
	StrategyAdaptive   = "adaptive"
)

// WeightedStrategy sorts candidates by ranking score descending. The sort is
// stable: equal scores preserve the original relative order, keeping the
// result deterministic across runs.
type WeightedStrategy struct {
	scorer *Scorer
}

func NewWeighted(scorer *Scorer) *WeightedStrategy {
	return &WeightedStrategy{scorer: scorer}
}

func (s *WeightedStrategy) Name() string {
	return StrategyWeighted
}

func (s *WeightedStrategy) Rank(cases []model.TestCase) ([]model.RankedCase, error) {
	ranked := make([]model.RankedCase, len(cases))

	for i, tc := range cases {
		ranked[i] = model.RankedCase{TestCase: tc, Score: s.scorer.Score(tc)}
	}

	sortByScore(ranked)

	return ranked, nil
}

// DependencyStrategy orders cases topologically so every case runs after its
// prerequisites. Scores are still annotated for observability, but the
// dependency order takes precedence over score order.
type DependencyStrategy struct {
	scorer *Scorer
}

func NewDependency(scorer *Scorer) *DependencyStrategy {
	return &DependencyStrategy{scorer: scorer}
}

func (s *DependencyStrategy) Name() string {
	return StrategyDependency
}

func (s *DependencyStrategy) Rank(cases []model.TestCase) ([]model.RankedCase, error) {
	ordered, err := topoSort(cases)
	if err != nil {
		return nil, err
	}

	ranked := make([]model.RankedCase, len(ordered))

	for i, tc := range ordered {
		ranked[i] = model.RankedCase{TestCase: tc, Score: s.scorer.Score(tc), Position: i}
	}

	return ranked, nil
}

// AdaptiveConfig tunes the history-adaptive strategy.
type AdaptiveConfig struct {
	// FailureThreshold is the past failure rate above which a case's weights
	// are nudged.
	FailureThreshold float64 `yaml:"failure_threshold" json:"failureThreshold"`
	// PriorityBoost is the weight mass shifted from complexity to priority
	// for cases above the threshold.
	PriorityBoost float64 `yaml:"priority_boost" json:"priorityBoost"`
	// BlendFactor is the share of the historical performance score in the
	// final blended score.
	BlendFactor float64 `yaml:"blend_factor" json:"blendFactor"`
}

func DefaultAdaptiveConfig() AdaptiveConfig {
	return AdaptiveConfig{
		FailureThreshold: 0.3,
		PriorityBoost:    0.1,
		BlendFactor:      0.3,
	}
}

// AdaptiveStrategy is weighted ranking with per-case weight adjustments
// driven by historical failure rates. It never mutates the shared default
// weights; every case scores against its own local copy.
type AdaptiveStrategy struct {
	scorer  *Scorer
	history history.Reader
	config  AdaptiveConfig
}

func NewAdaptive(scorer *Scorer, h history.Reader, cfg AdaptiveConfig) *AdaptiveStrategy {
	return &AdaptiveStrategy{scorer: scorer, history: h, config: cfg}
}

func (s *AdaptiveStrategy) Name() string {
	return StrategyAdaptive
}

func (s *AdaptiveStrategy) Rank(cases []model.TestCase) ([]model.RankedCase, error) {
	ranked := make([]model.RankedCase, len(cases))

	for i, tc := range cases {
		ranked[i] = model.RankedCase{TestCase: tc, Score: s.score(tc)}
	}

	sortByScore(ranked)

	return ranked, nil
}

func (s *AdaptiveStrategy) score(tc model.TestCase) float64 {
	// Weights is a value type, so this is a case-local copy.
	w := s.scorer.Weights()

	if s.history != nil {
		if rate, ok := s.history.FailureRate(tc.ID); ok && rate > s.config.FailureThreshold {
			// shift weight mass from complexity to priority, keeping the sum at 1
			shift := math.Min(s.config.PriorityBoost, w.Complexity)
			w.Priority += shift
			w.Complexity -= shift
		}
	}

	score := s.scorer.scoreWith(w, tc)

	if s.history != nil {
		if perf, ok := s.history.PerformanceScore(tc.ID); ok {
			score = (1-s.config.BlendFactor)*score + s.config.BlendFactor*clamp01(perf)
		}
	}

	return score
}

func sortByScore(ranked []model.RankedCase) {
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	for i := range ranked {
		ranked[i].Position = i
	}
}
