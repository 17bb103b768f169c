// internal/services/errors.go
package services

import (
	"errors"
	"fmt"
)

// UnknownTaxonomyCodeError rejects a submission carrying an issue code
// the catalog does not know. The code is surfaced verbatim so the
// submitter can fix the typo and resubmit.
type UnknownTaxonomyCodeError struct {
	Code string
}

func (e *UnknownTaxonomyCodeError) Error() string {
	return fmt.Sprintf("unknown taxonomy code: %q", e.Code)
}

// InvariantViolationError rejects a submission that is well-formed but
// breaks a case-level rule, e.g. two heads of household in one unit.
type InvariantViolationError struct {
	Reason string
}

func (e *InvariantViolationError) Error() string {
	return "invariant violation: " + e.Reason
}

// TransientDependencyError wraps a templating/storage/notification
// failure that is worth retrying (timeouts, 5xx, throttling).
type TransientDependencyError struct {
	Dependency string
	Err        error
}

func (e *TransientDependencyError) Error() string {
	return fmt.Sprintf("transient %s failure: %v", e.Dependency, e.Err)
}

func (e *TransientDependencyError) Unwrap() error { return e.Err }

// TerminalDependencyError wraps a failure retrying cannot fix, e.g. a
// malformed template or a substitution field the template rejects.
type TerminalDependencyError struct {
	Dependency string
	Err        error
}

func (e *TerminalDependencyError) Error() string {
	return fmt.Sprintf("terminal %s failure: %v", e.Dependency, e.Err)
}

func (e *TerminalDependencyError) Unwrap() error { return e.Err }

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var t *TransientDependencyError
	return errors.As(err, &t)
}
