package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is returned for an edge not in the transition table.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrEmptyQuery is returned when submitting a blank query.
	ErrEmptyQuery = errors.New("query cannot be empty")

	// ErrShuttingDown is returned when submitting to a service that is draining.
	ErrShuttingDown = errors.New("service is shutting down")

	// ErrRunNotFound is returned for unknown or expired run IDs.
	ErrRunNotFound = errors.New("run not found")
)

// StageError is an unrecoverable failure of a reasoning stage. It is the
// only error that moves a run to failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// ReferenceFault describes a resolver output that pointed at evidence the
// run never collected. Faults are corrected in place, never propagated.
type ReferenceFault struct {
	ProfileID  string
	EvidenceID string
	Field      string // supporting or conflicting
}

func (f ReferenceFault) String() string {
	if f.EvidenceID == "" {
		return fmt.Sprintf("profile %s dropped: %s", f.ProfileID, f.Field)
	}
	return fmt.Sprintf("profile %s cites unknown evidence %s in %s; reference dropped", f.ProfileID, f.EvidenceID, f.Field)
}
