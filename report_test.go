package triage

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/arlberg/triage/internal/model"
	"github.com/arlberg/triage/internal/validate"
)

func TestAssembleReportFlattensOutcomesInRankedOrder(t *testing.T) {
	t.Parallel()

	rec := model.ExecutionRecord{
		ID: "exec-1",
		Cases: []model.RankedCase{
			{TestCase: model.TestCase{ID: "b"}, Score: 0.9, Position: 0},
			{TestCase: model.TestCase{ID: "a"}, Score: 0.4, Position: 1},
		},
		FallbackUsed: true,
	}

	grouped := map[string][]model.Outcome{
		"a": {
			{TestCaseID: "a", Attempt: 1, Status: model.OutcomePassed},
			{TestCaseID: "a", Attempt: 2, Status: model.OutcomePassed},
		},
		"b": {
			{TestCaseID: "b", Attempt: 1, Status: model.OutcomeFailed},
			{TestCaseID: "b", Attempt: 2, Status: model.OutcomeFailed},
		},
	}

	start := time.Now()
	end := start.Add(3 * time.Second)

	report := assembleReport(rec, grouped, model.ValidationReport{}, start, end)

	assert.Equal(t, "exec-1", report.ExecutionID)
	assert.True(t, report.FallbackUsed)
	assert.Equal(t, int64(3000), report.DurationInMS)

	// ranked order, attempts kept together
	ids := make([]string, len(report.Outcomes))
	for i, o := range report.Outcomes {
		ids[i] = o.TestCaseID
	}
	assert.Equal(t, []string{"b", "b", "a", "a"}, ids)

	assert.Equal(t, model.Summary{Total: 2, Passed: 1, Failed: 1}, report.Summary)
}

func TestSummaryMatchesDerivedSummary(t *testing.T) {
	t.Parallel()

	rec := model.ExecutionRecord{
		ID: "exec-1",
		Cases: []model.RankedCase{
			{TestCase: model.TestCase{ID: "passed"}},
			{TestCase: model.TestCase{ID: "failed"}},
			{TestCase: model.TestCase{ID: "errored"}},
			{TestCase: model.TestCase{ID: "split"}},
		},
	}

	grouped := map[string][]model.Outcome{
		"passed":  {{TestCaseID: "passed", Status: model.OutcomePassed}},
		"failed":  {{TestCaseID: "failed", Status: model.OutcomeFailed}},
		"errored": {{TestCaseID: "errored", Status: model.OutcomeErrored}},
		"split": {
			{TestCaseID: "split", Status: model.OutcomePassed},
			{TestCaseID: "split", Status: model.OutcomeFailed},
		},
	}

	validation := validate.New(validate.DefaultThreshold, slog.Default()).CrossValidate(grouped)

	report := assembleReport(rec, grouped, validation, time.Now(), time.Now())

	// the summary assembled from outcomes matches the one derived from the
	// validation consensus
	assert.Equal(t, report.Summary, report.DeriveSummary())
	assert.Equal(t, model.Summary{Total: 4, Passed: 1, Failed: 2, Errored: 1}, report.Summary)
}
