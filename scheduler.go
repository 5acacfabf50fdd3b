package triage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arlberg/triage/internal/metric"
	"github.com/arlberg/triage/internal/model"
	"github.com/arlberg/triage/internal/rank"
)

// Schedule ranks a batch of test cases and begins executing it
// asynchronously. It returns the execution id immediately; progress is
// observed via GetStatus and the final report via GetReport.
func (s *Server) Schedule(ctx context.Context, cases []model.TestCase, params model.RunParams) (string, error) {
	return s.schedule(ctx, cases, params)
}

// scheduleBatch is the unwrapped scheduling entry point that middleware
// composes around.
func (s *Server) scheduleBatch(ctx context.Context, cases []model.TestCase, params model.RunParams) (string, error) {
	if s.baseCtx.Err() != nil {
		return "", fmt.Errorf("server is shutting down: %w", s.baseCtx.Err())
	}

	seen := make(map[string]struct{}, len(cases))
	for _, tc := range cases {
		if _, ok := seen[tc.ID]; ok {
			return "", model.MalformedRequestError{Param: "id"}
		}
		seen[tc.ID] = struct{}{}
	}

	if params.Repeats < 1 {
		params.Repeats = s.config.Repeats
	}
	if params.Repeats < 1 {
		params.Repeats = 1
	}
	if params.Timeout <= 0 {
		params.Timeout = s.config.CaseTimeout
	}
	if params.Strategy == "" {
		params.Strategy = s.config.DefaultStrategy
	}
	if params.TriggeredBy == "" {
		params.TriggeredBy = "api"
	}

	strategy, ok := s.strategies[params.Strategy]
	if !ok {
		return "", model.MalformedRequestError{Param: "strategy"}
	}

	ranked, fallbackUsed, err := s.rank(strategy, cases)
	if err != nil {
		return "", err
	}

	rec := model.ExecutionRecord{
		ID:           uuid.NewString(),
		Status:       model.StatusPending,
		Cases:        ranked,
		Results:      map[string][]model.Outcome{},
		Params:       params,
		Scheduled:    time.Now(),
		FallbackUsed: fallbackUsed,
	}

	s.store.Save(rec)

	if err := s.db.SaveExecutionRecord(ctx, rec); err != nil {
		s.log.Error("persisting execution record failed", "execution-id", rec.ID, "error", err)
	}

	s.events <- batchSubmittedEvent{executionIdentifier{rec.ID}}

	return rec.ID, nil
}

// rank applies the requested strategy. A circular dependency is a
// configuration error of the batch, not a crash: the whole batch falls back
// to weighted ranking, producing a complete order.
func (s *Server) rank(strategy rank.Strategy, cases []model.TestCase) ([]model.RankedCase, bool, error) {
	ranked, err := strategy.Rank(cases)

	var cycle model.CircularDependencyError

	if errors.As(err, &cycle) {
		s.log.Warn("dependency cycle detected, falling back to weighted ranking",
			"case-id", cycle.CaseID, "strategy", strategy.Name())
		metric.RankingFallbacksTotal.Inc()

		ranked, err = s.fallback.Rank(cases)

		return ranked, true, err
	}

	return ranked, false, err
}

// runBatch executes all cases of one batch. Cases are launched in ranked
// order, each acquiring an admission slot first; completion order is
// unconstrained. A single case's failure never aborts its siblings.
func (s *Server) runBatch(rec model.ExecutionRecord) {
	log := s.log.With("execution-id", rec.ID)

	metric.BatchesRunning.Inc()
	defer metric.BatchesRunning.Dec()

	finished := model.StatusCompleted

	defer func() {
		if r := recover(); r != nil {
			log.Error("batch execution panicked", "error", fmt.Sprintf("%v", r))
			finished = model.StatusFailed
		}

		metric.BatchesRunTotal.WithLabelValues(string(finished)).Inc()

		s.events <- batchFinishedEvent{executionIdentifier{rec.ID}, finished, time.Now()}
	}()

	start := time.Now()

	s.events <- batchStartedEvent{executionIdentifier{rec.ID}, start}

	repeats := rec.Params.Repeats

	outcomes := make(chan model.Outcome, len(rec.Cases)*repeats)

	go s.dispatchCases(rec, outcomes)

	grouped := map[string][]model.Outcome{}

	for o := range outcomes {
		grouped[o.TestCaseID] = append(grouped[o.TestCaseID], o)

		s.events <- caseFinishedEvent{executionIdentifier{rec.ID}, o}

		s.hooks.notifyCaseFinished(rec.ID, o)

		if err := s.db.InsertOutcome(s.baseCtx, rec.ID, o); err != nil {
			log.Error("persisting outcome failed", "test-case-id", o.TestCaseID, "error", err)
		}
	}

	validation := s.validator.CrossValidate(grouped)

	report := assembleReport(rec, grouped, validation, start, time.Now())

	// The report must exist before the batch appears completed.
	s.reports.Store(rec.ID, report)

	if err := s.db.SaveReport(context.Background(), report); err != nil {
		log.Error("persisting report failed", "error", err)
	}

	rec.Status = model.StatusCompleted
	rec.Start = start
	rec.End = report.End

	if err := s.db.UpdateExecutionRecord(context.Background(), rec); err != nil {
		log.Error("updating execution record failed", "error", err)
	}

	s.hooks.notifyBatchFinished(report)
	s.hooks.notifyBatchFinishedAsync(report)
}

// dispatchCases launches every (case, attempt) pair in ranked order. Each
// execution acquires one admission slot before invoking the executor and
// releases it unconditionally. The outcomes channel is closed once every
// launched execution has reported.
func (s *Server) dispatchCases(rec model.ExecutionRecord, outcomes chan<- model.Outcome) {
	var wg sync.WaitGroup

	for _, rc := range rec.Cases {
		for attempt := 1; attempt <= rec.Params.Repeats; attempt++ {
			if err := s.slots.Acquire(s.baseCtx, 1); err != nil {
				// shutting down: in-flight cases are errored, never
				// silently abandoned
				outcomes <- canceledOutcome(rc.TestCase, attempt)
				continue
			}

			wg.Add(1)

			go func(tc model.TestCase, attempt int) {
				defer wg.Done()
				defer s.slots.Release(1)

				outcomes <- s.executeCase(tc, attempt, rec.Params.Timeout)
			}(rc.TestCase, attempt)
		}
	}

	wg.Wait()
	close(outcomes)
}

// executeCase runs a single attempt of one case under the per-case timeout.
// Executor errors, timeouts and panics are contained here and recorded as an
// errored outcome.
func (s *Server) executeCase(tc model.TestCase, attempt int, timeout time.Duration) model.Outcome {
	metric.AdmissionSlotsInUse.Inc()
	defer metric.AdmissionSlotsInUse.Dec()

	ctx, cancel := context.WithTimeout(s.baseCtx, timeout)
	defer cancel()

	start := time.Now()

	outcome, err := s.safeExecute(ctx, tc)

	elapsed := time.Since(start).Seconds()

	if err != nil {
		reason := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			reason = fmt.Sprintf("timed out after %s", timeout)
		}

		outcome = model.Outcome{
			Status:        model.OutcomeErrored,
			Error:         reason,
			ExecutionTime: elapsed,
		}
	}

	outcome.TestCaseID = tc.ID
	outcome.Attempt = attempt

	if outcome.ExecutionTime == 0 {
		outcome.ExecutionTime = elapsed
	}

	metric.CasesRunTotal.WithLabelValues(string(outcome.Status)).Inc()
	metric.CaseDuration.Observe(elapsed)

	return outcome
}

// safeExecute shields the batch from a misbehaving executor: panics become
// errors and a non-cooperative executor cannot outlive the case timeout.
func (s *Server) safeExecute(ctx context.Context, tc model.TestCase) (model.Outcome, error) {
	type result struct {
		outcome model.Outcome
		err     error
	}

	ch := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("executor panic: %v", r)}
			}
		}()

		outcome, err := s.executor.Execute(ctx, tc)
		ch <- result{outcome: outcome, err: err}
	}()

	select {
	case r := <-ch:
		return r.outcome, r.err
	case <-ctx.Done():
		return model.Outcome{}, ctx.Err()
	}
}

func canceledOutcome(tc model.TestCase, attempt int) model.Outcome {
	metric.CasesRunTotal.WithLabelValues(string(model.OutcomeErrored)).Inc()

	return model.Outcome{
		TestCaseID: tc.ID,
		Status:     model.OutcomeErrored,
		Error:      "canceled: server shutting down",
		Attempt:    attempt,
	}
}

// BatchStatus is the caller facing view of an in-flight or completed batch.
type BatchStatus struct {
	ExecutionID string       `json:"executionId"`
	Status      model.Status `json:"status"`
	// CompletedCount counts cases with all outcomes recorded, not individual
	// attempts.
	CompletedCount int       `json:"completedCount"`
	TotalCount     int       `json:"totalCount"`
	StartTime      time.Time `json:"startTime"`
}

// GetStatus reports the progress of a batch. Unknown ids surface a distinct
// not-found condition, never an empty record.
func (s *Server) GetStatus(executionID string) (BatchStatus, error) {
	rec, err := s.store.Load(executionID)
	if err != nil {
		return BatchStatus{}, err
	}

	return BatchStatus{
		ExecutionID:    rec.ID,
		Status:         rec.Status,
		CompletedCount: rec.CompletedCases(),
		TotalCount:     len(rec.Cases),
		StartTime:      rec.Start,
	}, nil
}

// GetReport returns the assembled report of a completed batch. Before
// completion it fails with a distinct report-pending condition.
func (s *Server) GetReport(executionID string) (model.Report, error) {
	rec, err := s.store.Load(executionID)
	if err != nil {
		return model.Report{}, err
	}

	if rec.Status != model.StatusCompleted {
		return model.Report{}, model.ReportPendingError{Status: rec.Status}
	}

	if report, ok := s.reports.Load(executionID); ok {
		return report.(model.Report), nil
	}

	// fall back to the persisted copy, e.g. after a restart
	return s.db.LoadReport(context.Background(), executionID)
}

// EvictExecution drops a batch's record and report from the in-memory store.
// Retention is the caller's policy; nothing is evicted automatically.
func (s *Server) EvictExecution(executionID string) {
	s.store.Evict(executionID)
	s.reports.Delete(executionID)
}
