// The `model` package is very atypical for projects written in go, but unfortunately
// cannot be avoided as it helps to avoid cyclic dependencies. Types required by a library
// user such as `TestCase` are reexported by the triage package.
package model

import "time"

// TestCase is an immutable description of one test scenario, produced by an
// external planner. The core never mutates a TestCase; ranking produces new
// RankedCase values instead of editing the source case.
type TestCase struct {
	// ID uniquely identifies the case within a batch.
	ID   string `json:"id"`
	Name string `json:"name"`
	// Steps is an ordered sequence of opaque action descriptors. They are
	// passed through to the executor without interpretation.
	Steps []Step `json:"steps,omitempty"`
	// Priority on a 0-10 scale, higher is more important.
	Priority int `json:"priority"`
	// Complexity is one of "low", "medium" or "high". Unknown values fall
	// back to a neutral default score.
	Complexity string `json:"complexity,omitempty"`
	// EstimatedDuration is the planner's runtime estimate in seconds.
	EstimatedDuration float64  `json:"estimatedDuration"`
	Tags              []string `json:"tags,omitempty"`
	// Prerequisites contains ids of cases that the dependency-aware ranking
	// strategy must order before this one. Must not contain the case's own id.
	Prerequisites []string `json:"prerequisites,omitempty"`
}

// Step is a single opaque action descriptor.
type Step struct {
	Action string            `json:"action"`
	Params map[string]string `json:"params,omitempty"`
}

// RankedCase is a TestCase annotated with its computed ranking score and its
// position in the final order. Created per ranking invocation and discarded
// once the batch has been scheduled.
type RankedCase struct {
	TestCase
	Score float64 `json:"score"`
	// Position is the index in the ranked order. For the dependency-aware
	// strategy this is the position in the validated topological order.
	Position int `json:"position"`
}

// Status is the batch level state machine.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

type OutcomeStatus string

const (
	OutcomePassed  OutcomeStatus = "passed"
	OutcomeFailed  OutcomeStatus = "failed"
	OutcomeErrored OutcomeStatus = "errored"
)

// Outcome is the result of one execution attempt of one test case.
type Outcome struct {
	TestCaseID string        `json:"testCaseId"`
	Status     OutcomeStatus `json:"status"`
	// Artifact is an opaque evidence handle owned by the executor (e.g. a
	// screenshot bundle reference). The core never inspects it.
	Artifact string `json:"artifact,omitempty"`
	// ExecutionTime is the observed runtime in seconds.
	ExecutionTime float64 `json:"executionTime"`
	// Error holds the reason when Status is errored.
	Error string `json:"error,omitempty"`
	// Attempt numbers repeated executions of the same case, starting at 1.
	Attempt int `json:"attempt"`
}

// RunParams are per-batch execution parameters.
type RunParams struct {
	// TriggeredBy denotes the origin of the batch, e.g. "api" or "scheduled".
	TriggeredBy string `json:"triggeredBy"`
	// Repeats is the number of times each case is executed. Values above 1
	// enable repeat validation.
	Repeats int `json:"repeats"`
	// Timeout bounds a single case execution.
	Timeout time.Duration `json:"timeout"`
	// Strategy names the ranking strategy ("weighted", "dependency",
	// "adaptive").
	Strategy string `json:"strategy"`
}

// ExecutionRecord is the state of one in-flight or completed batch. It is
// owned by the scheduler: created on submission and mutated only by the
// scheduler's event loop. Records are retained until explicitly evicted.
type ExecutionRecord struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
	// Cases in ranked launch order.
	Cases []RankedCase `json:"cases"`
	// Results maps case ids to their outcomes, filled incrementally. With
	// Repeats > 1 a case accumulates multiple outcomes.
	Results map[string][]Outcome `json:"results"`
	Params  RunParams            `json:"params"`
	// Scheduled is the time the batch was submitted.
	Scheduled time.Time `json:"scheduled"`
	// Start is the time the batch began executing.
	Start time.Time `json:"start"`
	End   time.Time `json:"end,omitempty"`
	// FallbackUsed is set when dependency-aware ranking detected a cycle and
	// the whole batch was ranked with the weighted strategy instead.
	FallbackUsed bool `json:"fallbackUsed,omitempty"`
}

func (r ExecutionRecord) Copy() ExecutionRecord {
	rCopy := r
	rCopy.Cases = append([]RankedCase(nil), r.Cases...)
	rCopy.Results = make(map[string][]Outcome, len(r.Results))

	for id, outcomes := range r.Results {
		rCopy.Results[id] = append([]Outcome(nil), outcomes...)
	}

	return rCopy
}

// CompletedCases counts the cases for which every repeat has recorded an
// outcome.
func (r ExecutionRecord) CompletedCases() int {
	repeats := r.Params.Repeats
	if repeats < 1 {
		repeats = 1
	}

	completed := 0

	for _, c := range r.Cases {
		if len(r.Results[c.ID]) >= repeats {
			completed++
		}
	}

	return completed
}

// Done reports whether every submitted case has all of its outcomes.
func (r ExecutionRecord) Done() bool {
	return r.CompletedCases() == len(r.Cases)
}

// CaseValidation is the validator's judgment for one test case.
type CaseValidation struct {
	// Consistency is the fraction of outcomes agreeing with the majority
	// status, in [0,1].
	Consistency float64 `json:"consistency"`
	// Consensus is the derived majority outcome status.
	Consensus OutcomeStatus `json:"consensus"`
	// Outcomes counts the observations the judgment is based on.
	Outcomes int `json:"outcomes"`
}

// Anomaly flags a case whose repeated outcomes disagree beyond the threshold.
type Anomaly struct {
	TestCaseID  string `json:"testCaseId"`
	Description string `json:"description"`
}

// ValidationReport is the per-batch output of cross validation. Anomalies
// annotate the report, they never remove data from it.
type ValidationReport struct {
	Cases     map[string]CaseValidation `json:"cases"`
	Anomalies []Anomaly                 `json:"anomalies,omitempty"`
	// Threshold is the consistency value below which a case is anomalous.
	Threshold float64 `json:"threshold"`
}

// Summary holds the report's aggregate counts. Counts are derived from the
// consensus status per case.
type Summary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Errored int `json:"errored"`
}

// Report is the single artifact the core produces per completed batch.
// Rendering it to HTML/PDF/CSV is an external concern.
type Report struct {
	ExecutionID string `json:"executionId"`
	// Cases in the ranked order they were launched, with scores.
	Cases []RankedCase `json:"cases"`
	// Outcomes is the flat list of all recorded outcomes.
	Outcomes   []Outcome        `json:"outcomes"`
	Validation ValidationReport `json:"validation"`
	Summary    Summary          `json:"summary"`
	// FallbackUsed mirrors the execution record's ranking fallback flag.
	FallbackUsed bool      `json:"fallbackUsed,omitempty"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	DurationInMS int64     `json:"durationInMs"`
}

// DeriveSummary recomputes the summary counts from the validation section.
// Assembling a report and re-deriving its counts must match the counts
// computed directly from the outcomes.
func (r Report) DeriveSummary() Summary {
	s := Summary{Total: len(r.Validation.Cases)}

	for _, v := range r.Validation.Cases {
		switch v.Consensus {
		case OutcomePassed:
			s.Passed++
		case OutcomeFailed:
			s.Failed++
		case OutcomeErrored:
			s.Errored++
		}
	}

	return s
}
