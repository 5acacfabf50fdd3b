package triage

import (
	"time"

	"github.com/arlberg/triage/internal/model"
	"github.com/arlberg/triage/internal/validate"
)

// assembleReport folds the ranked cases, the raw outcomes and the validation
// output into the single report record this core is responsible for
// producing. Rendering it is an external concern.
func assembleReport(
	rec model.ExecutionRecord,
	grouped map[string][]model.Outcome,
	validation model.ValidationReport,
	start, end time.Time,
) model.Report {
	report := model.Report{
		ExecutionID:  rec.ID,
		Cases:        rec.Cases,
		Validation:   validation,
		FallbackUsed: rec.FallbackUsed,
		Start:        start,
		End:          end,
		DurationInMS: end.Sub(start).Milliseconds(),
	}

	// flatten outcomes in ranked case order to keep the report deterministic
	for _, rc := range rec.Cases {
		report.Outcomes = append(report.Outcomes, grouped[rc.ID]...)
	}

	report.Summary = summarize(rec.Cases, grouped)

	return report
}

// summarize derives the aggregate counts from the consensus status per case.
func summarize(cases []model.RankedCase, grouped map[string][]model.Outcome) model.Summary {
	summary := model.Summary{Total: len(cases)}

	for _, rc := range cases {
		outcomes := grouped[rc.ID]
		if len(outcomes) == 0 {
			continue
		}

		switch validate.Consensus(outcomes) {
		case model.OutcomePassed:
			summary.Passed++
		case model.OutcomeFailed:
			summary.Failed++
		case model.OutcomeErrored:
			summary.Errored++
		}
	}

	return summary
}
