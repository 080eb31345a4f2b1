package orchestrator

import (
	"errors"
	"fmt"
)

// Error kinds. Every step failure is a *StepError whose Kind is one of these,
// so callers can match with errors.Is on the kind and errors.As on the step.
var (
	ErrMissingConfiguration = errors.New("missing configuration")
	ErrUnresolvedDependency = errors.New("unresolved dependency")
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrDeploymentRejected   = errors.New("deployment rejected")
	ErrDeploymentTimeout    = errors.New("deployment timeout")
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrLedgerMismatch       = errors.New("ledger does not match plan")
)

// StepError reports the step a run stopped at.
type StepError struct {
	Index    int
	Name     string
	Contract string
	Kind     error
	Err      error
}

func (e *StepError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("step %d (%s): %v", e.Index, e.Name, e.Kind)
	}
	return fmt.Sprintf("step %d (%s): %v: %v", e.Index, e.Name, e.Kind, e.Err)
}

func (e *StepError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindName returns a short label for the kind of err, for logs and exit reports.
func KindName(err error) string {
	kinds := []struct {
		kind error
		name string
	}{
		{ErrMissingConfiguration, "MissingConfiguration"},
		{ErrUnresolvedDependency, "UnresolvedDependency"},
		{ErrInvalidArgument, "InvalidArgument"},
		{ErrDeploymentTimeout, "DeploymentTimeout"},
		{ErrDeploymentRejected, "DeploymentRejected"},
		{ErrInsufficientBalance, "InsufficientBalance"},
		{ErrLedgerMismatch, "LedgerMismatch"},
	}

	for _, k := range kinds {
		if errors.Is(err, k.kind) {
			return k.name
		}
	}

	return "Internal"
}
