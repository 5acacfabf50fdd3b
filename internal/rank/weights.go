package rank

import (
	"math"

	"github.com/arlberg/triage/internal/model"
)

// weightTolerance is the allowed deviation of the weight sum from 1.0.
const weightTolerance = 0.001

// Weights is the exhaustive set of recognized scoring criteria. Unknown
// weight names are rejected at config load time; there is no dynamic
// patching of weight fields.
type Weights struct {
	Complexity    float64 `yaml:"complexity" json:"complexity"`
	Priority      float64 `yaml:"priority" json:"priority"`
	ExecutionTime float64 `yaml:"execution_time" json:"executionTime"`
	Coverage      float64 `yaml:"coverage" json:"coverage"`
	Dependencies  float64 `yaml:"dependencies" json:"dependencies"`
	History       float64 `yaml:"history" json:"history"`
	Confidence    float64 `yaml:"confidence" json:"confidence"`
}

func DefaultWeights() Weights {
	return Weights{
		Complexity:    0.15,
		Priority:      0.20,
		ExecutionTime: 0.15,
		Coverage:      0.15,
		Dependencies:  0.10,
		History:       0.15,
		Confidence:    0.10,
	}
}

func (w Weights) Sum() float64 {
	return w.Complexity + w.Priority + w.ExecutionTime + w.Coverage +
		w.Dependencies + w.History + w.Confidence
}

// Validate fails fast when the weights do not sum to 1.0 within tolerance.
// This is a configuration error, not a per-case error: it aborts the whole
// ranking call.
func (w Weights) Validate() error {
	if math.Abs(w.Sum()-1.0) > weightTolerance {
		return model.InvalidWeightsError{Sum: w.Sum()}
	}

	return nil
}
