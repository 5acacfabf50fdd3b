package triage_test

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/arlberg/triage"
	"github.com/arlberg/triage/internal/model"
)

const defaultTimeout = 5 * time.Second

// scriptedExecutor derives the outcome from the test case name, so every
// scenario can declare its executor behavior in the batch itself:
//
//	pass, fail        terminal statuses
//	error             executor error
//	panic             executor panic
//	sleep             blocks until the context expires
//	flaky             alternates passed/failed across attempts
type scriptedExecutor struct {
	mu       sync.Mutex
	attempts map[string]int

	// observed launch order and concurrency, for scheduling assertions
	order         []string
	inFlight      int
	maxInFlight   int
	executionTime time.Duration
}

func newScriptedExecutor() *scriptedExecutor {
	return &scriptedExecutor{attempts: map[string]int{}}
}

func (e *scriptedExecutor) Execute(ctx context.Context, tc triage.TestCase) (triage.Outcome, error) {
	e.mu.Lock()
	e.attempts[tc.ID]++
	attempt := e.attempts[tc.ID]
	e.order = append(e.order, tc.ID)
	e.inFlight++
	if e.inFlight > e.maxInFlight {
		e.maxInFlight = e.inFlight
	}
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.inFlight--
		e.mu.Unlock()
	}()

	if e.executionTime > 0 {
		time.Sleep(e.executionTime)
	}

	switch {
	case tc.Name == "fail":
		return triage.Outcome{Status: model.OutcomeFailed, Error: "assertion failed"}, nil
	case tc.Name == "error":
		return triage.Outcome{}, fmt.Errorf("executor unavailable")
	case tc.Name == "panic":
		panic("executor blew up")
	case tc.Name == "sleep":
		<-ctx.Done()
		return triage.Outcome{}, ctx.Err()
	case tc.Name == "flaky" && attempt%2 == 0:
		return triage.Outcome{Status: model.OutcomeFailed, Error: "flaky"}, nil
	}

	return triage.Outcome{Status: model.OutcomePassed, Artifact: "artifact-" + tc.ID}, nil
}

func (e *scriptedExecutor) launchOrder() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]string(nil), e.order...)
}

func (e *scriptedExecutor) maxConcurrent() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.maxInFlight
}

// newServer starts a server with an in-memory database and no HTTP listener.
func newServer(t *testing.T, executor triage.Executor, configure func(*triage.Config)) *triage.Server {
	t.Helper()

	cfg := triage.DefaultConfig()
	cfg.Port = 0
	cfg.DatabaseFile = ""
	cfg.CaseTimeout = time.Second

	if configure != nil {
		configure(&cfg)
	}

	s, err := triage.New(executor, triage.WithConfig(cfg), triage.WithLogger(slog.Default()))
	if err != nil {
		t.Fatalf("unable to create server: %v", err)
	}

	if err = s.Start(); err != nil {
		t.Fatalf("unable to start server: %v", err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
		defer cancel()

		if err := s.Shutdown(ctx); err != nil {
			t.Errorf("shutdown failed: %v", err)
		}
	})

	return s
}

func cases(names ...string) []triage.TestCase {
	tcs := make([]triage.TestCase, len(names))

	for i, name := range names {
		// "name" or "id:name"
		id, behavior, ok := strings.Cut(name, ":")
		if !ok {
			id, behavior = fmt.Sprintf("tc-%d", i+1), name
		}

		tcs[i] = triage.TestCase{ID: id, Name: behavior, Priority: 5}
	}

	return tcs
}

func waitForReport(t *testing.T, s *triage.Server, executionID string) triage.Report {
	t.Helper()

	deadline := time.Now().Add(defaultTimeout)

	for time.Now().Before(deadline) {
		status, err := s.GetStatus(executionID)
		if err != nil {
			t.Fatalf("unable to fetch status: %v", err)
		}

		switch status.Status {
		case model.StatusCompleted:
			report, err := s.GetReport(executionID)
			if err != nil {
				t.Fatalf("batch is completed but the report failed: %v", err)
			}

			return report
		case model.StatusFailed:
			t.Fatalf("batch failed")
		}

		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("timed out waiting for batch %s", executionID)
	return triage.Report{}
}
