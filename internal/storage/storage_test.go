package storage_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/arlberg/triage/internal/model"
	"github.com/arlberg/triage/internal/storage"
)

func newDB(t *testing.T) *storage.Storage {
	t.Helper()

	s, err := storage.New("", slog.Default())
	if err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() { _ = s.Close() })

	return s
}

// saveRecord registers a minimal parent execution record, which the Outcome
// and Report tables reference.
func saveRecord(t *testing.T, s *storage.Storage, executionID string) {
	t.Helper()

	err := s.SaveExecutionRecord(context.Background(), model.ExecutionRecord{
		ID:        executionID,
		Status:    model.StatusPending,
		Scheduled: time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestMigration(t *testing.T) {
	newDB(t)
}

func TestExecutionRecordRoundTrip(t *testing.T) {
	s := newDB(t)

	ctx := context.Background()

	now := time.Now()

	rec := model.ExecutionRecord{
		ID:     "exec-1",
		Status: model.StatusPending,
		Cases: []model.RankedCase{
			{TestCase: model.TestCase{ID: "tc-1"}, Score: 0.8},
		},
		Params: model.RunParams{
			TriggeredBy: "api",
			Repeats:     3,
			Timeout:     30 * time.Second,
			Strategy:    "dependency",
		},
		Scheduled:    now,
		FallbackUsed: true,
	}

	if err := s.SaveExecutionRecord(ctx, rec); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.LoadExecutionRecord(ctx, "exec-1")
	if err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, rec.ID, loaded.ID)
	assert.Equal(t, rec.Status, loaded.Status)
	assert.Equal(t, rec.Params, loaded.Params)
	assert.True(t, loaded.FallbackUsed)

	loaded.Status = model.StatusCompleted
	loaded.Start = now
	loaded.End = now.Add(time.Minute)

	if err = s.UpdateExecutionRecord(ctx, loaded); err != nil {
		t.Fatal(err)
	}

	updated, err := s.LoadExecutionRecord(ctx, "exec-1")
	if err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, model.StatusCompleted, updated.Status)
}

func TestLoadExecutionRecordNotFound(t *testing.T) {
	s := newDB(t)

	_, err := s.LoadExecutionRecord(context.Background(), "missing")

	var notFound model.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestUpdateExecutionRecordNotFound(t *testing.T) {
	s := newDB(t)

	err := s.UpdateExecutionRecord(context.Background(), model.ExecutionRecord{ID: "missing"})

	var notFound model.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestOutcomesAreGroupedByCase(t *testing.T) {
	s := newDB(t)

	ctx := context.Background()

	saveRecord(t, s, "exec-1")

	outcomes := []model.Outcome{
		{TestCaseID: "tc-1", Attempt: 1, Status: model.OutcomePassed, ExecutionTime: 1.5},
		{TestCaseID: "tc-1", Attempt: 2, Status: model.OutcomeFailed, Error: "assertion failed"},
		{TestCaseID: "tc-2", Attempt: 1, Status: model.OutcomeErrored, Error: "timed out", Artifact: "s3://bucket/run"},
	}

	for _, o := range outcomes {
		if err := s.InsertOutcome(ctx, "exec-1", o); err != nil {
			t.Fatal(err)
		}
	}

	grouped, err := s.LoadOutcomes(ctx, "exec-1")
	if err != nil {
		t.Fatal(err)
	}

	assert.Len(t, grouped, 2)
	assert.Len(t, grouped["tc-1"], 2)
	assert.Equal(t, outcomes[0], grouped["tc-1"][0])
	assert.Equal(t, outcomes[1], grouped["tc-1"][1])
	assert.Equal(t, outcomes[2], grouped["tc-2"][0])

	// outcomes of other batches stay invisible
	other, err := s.LoadOutcomes(ctx, "exec-2")
	if err != nil {
		t.Fatal(err)
	}
	assert.Empty(t, other)
}

func TestReportRoundTrip(t *testing.T) {
	s := newDB(t)

	ctx := context.Background()

	saveRecord(t, s, "exec-1")

	report := model.Report{
		ExecutionID: "exec-1",
		Cases: []model.RankedCase{
			{TestCase: model.TestCase{ID: "tc-1", Name: "login"}, Score: 0.9},
		},
		Outcomes: []model.Outcome{
			{TestCaseID: "tc-1", Attempt: 1, Status: model.OutcomePassed},
		},
		Validation: model.ValidationReport{
			Cases: map[string]model.CaseValidation{
				"tc-1": {Consistency: 1, Consensus: model.OutcomePassed, Outcomes: 1},
			},
			Threshold: 0.7,
		},
		Summary: model.Summary{Total: 1, Passed: 1},
	}

	if err := s.SaveReport(ctx, report); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.LoadReport(ctx, "exec-1")
	if err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, report.ExecutionID, loaded.ExecutionID)
	assert.Equal(t, report.Summary, loaded.Summary)
	assert.Equal(t, report.Validation.Cases, loaded.Validation.Cases)

	// saving again overwrites instead of failing
	report.Summary.Passed = 0
	report.Summary.Failed = 1

	if err = s.SaveReport(ctx, report); err != nil {
		t.Fatal(err)
	}

	loaded, err = s.LoadReport(ctx, "exec-1")
	if err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, 1, loaded.Summary.Failed)
}

func TestLoadReportNotFound(t *testing.T) {
	s := newDB(t)

	_, err := s.LoadReport(context.Background(), "missing")

	var notFound model.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestHistoryReaderDerivesRatesFromOutcomes(t *testing.T) {
	s := newDB(t)

	ctx := context.Background()

	saveRecord(t, s, "exec-1")

	outcomes := []model.Outcome{
		{TestCaseID: "tc-1", Attempt: 1, Status: model.OutcomePassed},
		{TestCaseID: "tc-1", Attempt: 2, Status: model.OutcomeFailed},
		{TestCaseID: "tc-1", Attempt: 3, Status: model.OutcomeErrored},
		{TestCaseID: "tc-1", Attempt: 4, Status: model.OutcomePassed},
	}

	for _, o := range outcomes {
		if err := s.InsertOutcome(ctx, "exec-1", o); err != nil {
			t.Fatal(err)
		}
	}

	h := s.History()

	rate, ok := h.FailureRate("tc-1")
	assert.True(t, ok)
	assert.InDelta(t, 0.5, rate, 0.0001)

	perf, ok := h.PerformanceScore("tc-1")
	assert.True(t, ok)
	assert.InDelta(t, 0.5, perf, 0.0001)

	_, ok = h.FailureRate("never-ran")
	assert.False(t, ok)
}
