// Package validate reconciles repeated or parallel outcomes for the same
// test case into a consensus judgment.
package validate

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/arlberg/triage/internal/model"
)

// DefaultThreshold flags a case as anomalous when less than 70% of its
// outcomes agree, i.e. two out of three repeats disagreeing.
const DefaultThreshold = 0.7

type Validator struct {
	threshold float64
	log       *slog.Logger
}

func New(threshold float64, log *slog.Logger) *Validator {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}

	return &Validator{threshold: threshold, log: log}
}

// Consistency returns the fraction of outcomes that match the majority
// status. A single outcome is perfectly consistent by definition: there is
// nothing to disagree with.
func Consistency(outcomes []model.Outcome) float64 {
	if len(outcomes) == 0 {
		return 0
	}
	if len(outcomes) == 1 {
		return 1
	}

	majority := 0

	for _, n := range countByStatus(outcomes) {
		if n > majority {
			majority = n
		}
	}

	return float64(majority) / float64(len(outcomes))
}

// Consensus derives the majority status of a group of outcomes. Ties are
// broken by severity (errored > failed > passed) so disagreement never
// hides an error.
func Consensus(outcomes []model.Outcome) model.OutcomeStatus {
	counts := countByStatus(outcomes)

	consensus := model.OutcomeStatus("")
	best := -1

	for _, status := range []model.OutcomeStatus{model.OutcomeErrored, model.OutcomeFailed, model.OutcomePassed} {
		if counts[status] > best {
			best = counts[status]
			consensus = status
		}
	}

	return consensus
}

// CrossValidate computes per-case consistency for grouped outcomes and flags
// anomalies below the threshold. Anomalies only annotate the report; no data
// is ever removed from it.
func (v *Validator) CrossValidate(grouped map[string][]model.Outcome) model.ValidationReport {
	report := model.ValidationReport{
		Cases:     make(map[string]model.CaseValidation, len(grouped)),
		Threshold: v.threshold,
	}

	ids := make([]string, 0, len(grouped))
	for id := range grouped {
		ids = append(ids, id)
	}
	// deterministic anomaly order
	sort.Strings(ids)

	for _, id := range ids {
		outcomes := grouped[id]
		if len(outcomes) == 0 {
			continue
		}

		consistency := Consistency(outcomes)
		consensus := Consensus(outcomes)

		report.Cases[id] = model.CaseValidation{
			Consistency: consistency,
			Consensus:   consensus,
			Outcomes:    len(outcomes),
		}

		if consistency < v.threshold {
			report.Anomalies = append(report.Anomalies, model.Anomaly{
				TestCaseID: id,
				Description: fmt.Sprintf("outcomes disagree with consensus status %q: consistency %.2f below threshold %.2f",
					consensus, consistency, v.threshold),
			})

			if v.log != nil {
				v.log.Warn("inconsistent outcomes", "test-case-id", id, "consistency", consistency)
			}
		}
	}

	return report
}

func countByStatus(outcomes []model.Outcome) map[model.OutcomeStatus]int {
	counts := map[model.OutcomeStatus]int{}

	for _, o := range outcomes {
		counts[o.Status]++
	}

	return counts
}
