package hotswap

import (
	"errors"
	"fmt"
)

var (
	ErrSwapRejected   = errors.New("hotswap: swap rejected")
	ErrSwapInProgress = errors.New("hotswap: swap in progress")
	ErrBadSignature   = errors.New("hotswap: signature verification failed")
	ErrRolledBack     = errors.New("hotswap: swap rolled back")
	// ErrFatal means rollback could not restore the prior component. The
	// registry may be inconsistent with its last known-good state.
	ErrFatal = errors.New("hotswap: rollback failed")
)

// RejectedError is returned when a swap is refused before any mutation.
type RejectedError struct {
	Name   string
	From   string
	To     string
	Reason string
	// InProgress is set when another transaction holds the component.
	InProgress bool
}

func (e *RejectedError) Error() string {
	if e.InProgress {
		return fmt.Sprintf("%s: %q: %s", ErrSwapRejected, e.Name, ErrSwapInProgress.Error())
	}
	return fmt.Sprintf("%s: %q %s -> %s: %s", ErrSwapRejected, e.Name, e.From, e.To, e.Reason)
}

func (e *RejectedError) Is(target error) bool {
	return target == ErrSwapRejected || (e.InProgress && target == ErrSwapInProgress)
}

// RolledBackError reports a swap that failed after mutation and was undone.
// Cause is the failure that triggered the rollback.
type RolledBackError struct {
	Name  string
	Phase Phase
	Cause error
}

func (e *RolledBackError) Error() string {
	return fmt.Sprintf("%s: %q failed while %s: %v", ErrRolledBack, e.Name, e.Phase, e.Cause)
}

func (e *RolledBackError) Is(target error) bool { return target == ErrRolledBack }
func (e *RolledBackError) Unwrap() error        { return e.Cause }
