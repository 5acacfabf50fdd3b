package model

import "fmt"

type NotFoundError struct{}

func (e NotFoundError) Error() string {
	return "not found"
}

// CircularDependencyError signals that the prerequisite relation of a batch
// contains a cycle. It names at least one offending case id.
type CircularDependencyError struct {
	CaseID string
}

func (e CircularDependencyError) Error() string {
	return fmt.Sprintf("circular dependency involving test case %q", e.CaseID)
}

// InvalidWeightsError is a configuration error: the seven ranking weights
// must sum to 1.0 within tolerance before any scoring happens.
type InvalidWeightsError struct {
	Sum float64
}

func (e InvalidWeightsError) Error() string {
	return fmt.Sprintf("ranking weights must sum to 1.0, got %.4f", e.Sum)
}

// ReportPendingError is returned when a report is requested for a batch that
// has not reached a terminal state yet.
type ReportPendingError struct {
	Status Status
}

func (e ReportPendingError) Error() string {
	return fmt.Sprintf("report not ready, batch is %s", e.Status)
}

type MalformedRequestError struct {
	Param string
}

func (e MalformedRequestError) Error() string {
	return "malformed request param: " + e.Param
}
