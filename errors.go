package wt

import (
	"errors"
	"fmt"
)

// ErrCopyProgramMissing is returned when the bulk-copy program is not present
// in the environment.
var ErrCopyProgramMissing = errors.New("bulk-copy program not installed")

// ValidationError reports a failed precondition (missing path, bad option)
// detected before any effect has been recorded.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

// Conflict describes a destination path that already exists when the Link
// Helper attempted to create a link there.
type Conflict struct {
	Source string
	Target string
	Reason string // "file", "directory", or "symbolic-link"
}

// LinkConflictError is raised by createLinks when one or more destinations
// already exist and the caller did not ask to skip conflicts.
type LinkConflictError struct {
	Conflicts []Conflict
}

func (e *LinkConflictError) Error() string {
	return fmt.Sprintf("link conflict: %d destination(s) already exist", len(e.Conflicts))
}

// CapabilityError wraps a failure from the version-control capability or an
// external program (rsync) invocation.
type CapabilityError struct {
	Op  string
	Err error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("capability error during %s: %v", e.Op, e.Err)
}

func (e *CapabilityError) Unwrap() error {
	return e.Err
}

// SetupError is the single error type the Setup Orchestrator raises. It
// always carries the partial SetupResult captured at the point of failure,
// so the caller can inspect warnings and compensation status without
// re-deriving them from the error string.
type SetupError struct {
	Message string
	Result  *SetupResult
	Cause   error
}

func (e *SetupError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("setup failed: %s: %v", e.Message, e.Cause)
	}
	return "setup failed: " + e.Message
}

func (e *SetupError) Unwrap() error {
	return e.Cause
}

func newSetupError(message string, result *SetupResult, cause error) *SetupError {
	return &SetupError{Message: message, Result: result, Cause: cause}
}
