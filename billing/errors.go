/*
errors.go - Centralized error types for the billing engine

PURPOSE:
  All error types in one place. The calculators themselves never return
  errors for data-shape issues - a missing rule or an unusable numeric
  input degrades to "no charge" (nil). These errors belong to the
  boundaries around the core: stores, the rule factory, and the API.

ERROR CATEGORIES:
  1. Lookup errors - referenced entity missing from the store
  2. Validation errors - malformed rule configuration
  3. Invariant errors - attempts to violate history/override rules

USAGE:
  if errors.Is(err, billing.ErrActivityNotFound) { ... }
*/
package billing

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrActivityNotFound is returned when a referenced activity does not
	// exist in the store.
	ErrActivityNotFound = errors.New("activity not found")

	// ErrEnrollmentNotFound is returned when a referenced enrollment does
	// not exist.
	ErrEnrollmentNotFound = errors.New("enrollment not found")

	// ErrStudentNotFound is returned when a referenced student does not
	// exist.
	ErrStudentNotFound = errors.New("student not found")

	// ErrStaffNotFound is returned when a referenced staff member does
	// not exist.
	ErrStaffNotFound = errors.New("staff not found")

	// ErrAttendanceNotFound is returned when deleting or reading an
	// attendance mark that was never recorded.
	ErrAttendanceNotFound = errors.New("attendance not found")

	// ErrRevisionClosed is returned on an attempt to modify a rule
	// revision that already has an end date. Closed intervals are
	// immutable; corrections append a new revision.
	ErrRevisionClosed = errors.New("revision already closed")

	// ErrManualOverride is returned when a recomputation would clobber a
	// manually entered journal amount or attendance value.
	ErrManualOverride = errors.New("manual override in place")

	// ErrSelfReferentialConfig is returned when a controller activity
	// references itself, directly or through a cycle of controllers.
	ErrSelfReferentialConfig = errors.New("controller config references itself")

	// ErrInvalidRule is returned by the factory for malformed rule JSON
	// (unknown type, negative rate on a built-in status, bad percent).
	ErrInvalidRule = errors.New("invalid rule")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// MissingActivityError reports which controller referenced a missing
// activity. The calculators treat the missing leg as absent; stores and
// the factory surface this error instead.
type MissingActivityError struct {
	ControllerID ActivityID
	MissingID    ActivityID
}

func (e *MissingActivityError) Error() string {
	return fmt.Sprintf("controller %s references missing activity %s", e.ControllerID, e.MissingID)
}

func (e *MissingActivityError) Unwrap() error { return ErrActivityNotFound }

// RuleValidationError reports which rule key failed factory validation.
type RuleValidationError struct {
	Key    string
	Reason string
}

func (e *RuleValidationError) Error() string {
	return fmt.Sprintf("rule %q: %s", e.Key, e.Reason)
}

func (e *RuleValidationError) Unwrap() error { return ErrInvalidRule }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrActivityNotFound) ||
		errors.Is(err, ErrEnrollmentNotFound) ||
		errors.Is(err, ErrStudentNotFound) ||
		errors.Is(err, ErrStaffNotFound) ||
		errors.Is(err, ErrAttendanceNotFound)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRule) ||
		errors.Is(err, ErrSelfReferentialConfig) ||
		errors.Is(err, ErrManualOverride) ||
		errors.Is(err, ErrRevisionClosed)
}
