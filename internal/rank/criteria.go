// Package rank scores and orders batches of test cases before they are
// scheduled. All scoring is pure and CPU bound; nothing in this package
// blocks on I/O.
package rank

import (
	"strconv"
	"strings"

	"github.com/arlberg/triage/internal/history"
	"github.com/arlberg/triage/internal/model"
)

// Limits holds the scoring normalization constants. They are configuration,
// not per-call parameters.
type Limits struct {
	// DurationCeiling is the normalization ceiling for the execution time
	// criterion, in seconds. Durations at or above it score 0, a duration of
	// 0 scores 1.
	DurationCeiling float64 `yaml:"duration_ceiling" json:"durationCeiling"`
	// MaxPrerequisites saturates the dependency count penalty.
	MaxPrerequisites int `yaml:"max_prerequisites" json:"maxPrerequisites"`
	// CoverageTarget is the tag count at which the coverage score saturates.
	CoverageTarget int `yaml:"coverage_target" json:"coverageTarget"`
}

func DefaultLimits() Limits {
	return Limits{
		DurationCeiling:  300,
		MaxPrerequisites: 10,
		CoverageTarget:   5,
	}
}

// neutralScore is the documented default contribution for missing or
// unknown optional attributes.
const neutralScore = 0.5

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func complexityScore(tc model.TestCase) float64 {
	switch strings.ToLower(tc.Complexity) {
	case "low":
		return 0.3
	case "medium":
		return 0.6
	case "high":
		return 1.0
	default:
		return neutralScore
	}
}

func priorityScore(tc model.TestCase) float64 {
	return clamp01(float64(tc.Priority) / 10)
}

// executionTimeScore is inversely proportional to the estimated duration.
// Negative durations are treated as 0, not rejected.
func (l Limits) executionTimeScore(tc model.TestCase) float64 {
	if l.DurationCeiling <= 0 {
		return 1
	}

	d := tc.EstimatedDuration
	if d < 0 {
		d = 0
	}

	return clamp01(1 - d/l.DurationCeiling)
}

func (l Limits) coverageScore(tc model.TestCase) float64 {
	target := l.CoverageTarget
	if target <= 0 {
		target = DefaultLimits().CoverageTarget
	}

	distinct := map[string]struct{}{}
	for _, tag := range tc.Tags {
		distinct[tag] = struct{}{}
	}

	return clamp01(float64(len(distinct)) / float64(target))
}

// dependencyScore penalizes cases with more prerequisites, saturating at
// the configured maximum count.
func (l Limits) dependencyScore(tc model.TestCase) float64 {
	max := l.MaxPrerequisites
	if max <= 0 {
		return 1
	}

	n := len(tc.Prerequisites)
	if n > max {
		n = max
	}

	return clamp01(1 - float64(n)/float64(max))
}

func historyScore(h history.Reader, tc model.TestCase) float64 {
	if h == nil {
		return neutralScore
	}

	score, ok := h.PerformanceScore(tc.ID)
	if !ok {
		return neutralScore
	}

	return clamp01(score)
}

// confidenceScore reads the external confidence signal the planner attaches
// as a "confidence:<value>" tag. A missing or malformed signal falls back to
// the neutral default.
func confidenceScore(tc model.TestCase) float64 {
	for _, tag := range tc.Tags {
		v, ok := strings.CutPrefix(tag, "confidence:")
		if !ok {
			continue
		}

		c, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return neutralScore
		}

		return clamp01(c)
	}

	return neutralScore
}

// Scorer combines the seven criterion scores into a single ranking score.
type Scorer struct {
	weights Weights
	limits  Limits
	history history.Reader
}

// NewScorer validates the weights before any scoring happens.
func NewScorer(w Weights, l Limits, h history.Reader) (*Scorer, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}

	return &Scorer{weights: w, limits: l, history: h}, nil
}

func (s *Scorer) Weights() Weights {
	return s.weights
}

// Score computes the weighted sum of all criterion scores for one case.
func (s *Scorer) Score(tc model.TestCase) float64 {
	return s.scoreWith(s.weights, tc)
}

func (s *Scorer) scoreWith(w Weights, tc model.TestCase) float64 {
	return w.Complexity*complexityScore(tc) +
		w.Priority*priorityScore(tc) +
		w.ExecutionTime*s.limits.executionTimeScore(tc) +
		w.Coverage*s.limits.coverageScore(tc) +
		w.Dependencies*s.limits.dependencyScore(tc) +
		w.History*historyScore(s.history, tc) +
		w.Confidence*confidenceScore(tc)
}
