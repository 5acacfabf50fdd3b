package triage

import (
	"time"

	"github.com/arlberg/triage/internal/model"
)

type event interface {
	Apply(model.ExecutionRecord) model.ExecutionRecord
	ExecutionID() string
}

type executionIdentifier struct {
	executionID string
}

func (e executionIdentifier) ExecutionID() string {
	return e.executionID
}

// batchSubmittedEvent causes the event loop to launch the batch. The record
// itself was already registered as pending by the scheduler.
type batchSubmittedEvent struct {
	executionIdentifier
}

func (e batchSubmittedEvent) Apply(rec model.ExecutionRecord) model.ExecutionRecord {
	return rec
}

type batchStartedEvent struct {
	executionIdentifier
	start time.Time
}

func (e batchStartedEvent) Apply(rec model.ExecutionRecord) model.ExecutionRecord {
	rec.Status = model.StatusRunning
	rec.Start = e.start

	return rec
}

type caseFinishedEvent struct {
	executionIdentifier
	outcome model.Outcome
}

func (e caseFinishedEvent) Apply(rec model.ExecutionRecord) model.ExecutionRecord {
	rec.Results[e.outcome.TestCaseID] = append(rec.Results[e.outcome.TestCaseID], e.outcome)

	return rec
}

type batchFinishedEvent struct {
	executionIdentifier
	status model.Status
	end    time.Time
}

func (e batchFinishedEvent) Apply(rec model.ExecutionRecord) model.ExecutionRecord {
	rec.Status = e.status
	rec.End = e.end

	return rec
}
