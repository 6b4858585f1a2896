/*
errors.go - Centralized error types for the charge engine

ERROR CATEGORIES:
  1. Configuration errors - missing mandatory fields at construction or
     schedule generation; fatal to the operation, surfaced synchronously.
  2. Business rule violations - cross-charge validation failures,
     aggregated into a single ViolationError instead of failing on the
     first.
  3. Invariant guards - the allocator clamps rather than erroring when
     asked to reverse more than was applied; outstanding, paid, and
     waived amounts never go negative.

USAGE:
  if errors.Is(err, charge.ErrMissingMandatoryField) { ... }

  var violations *charge.ViolationError
  if errors.As(err, &violations) {
      for _, v := range violations.Violations { ... }
  }
*/
package charge

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrMissingMandatoryField is returned when a charge is constructed
	// without a field its timing type requires.
	ErrMissingMandatoryField = errors.New("charge is missing a mandatory field")

	// ErrScheduleAnchorMissing is returned when schedule generation lacks
	// its recurrence anchor (fee-on-month/day, or a due date for weekly).
	ErrScheduleAnchorMissing = errors.New("schedule anchor missing")

	// ErrInvalidFeeInterval is returned for a zero or negative fee
	// interval on a monthly or weekly charge.
	ErrInvalidFeeInterval = errors.New("fee interval must be at least 1")

	// ErrNotRecurring is returned when a schedule operation is invoked on
	// a non-recurring charge.
	ErrNotRecurring = errors.New("charge is not recurring")

	// ErrChargeInactive is returned when a settlement is attempted on an
	// inactivated charge.
	ErrChargeInactive = errors.New("charge is inactive")

	// ErrChargeNotFound is returned by repositories for unknown charges.
	ErrChargeNotFound = errors.New("charge not found")

	// ErrConcurrentUpdate is returned by repositories when a save would
	// overwrite a newer persisted version of the charge than the caller
	// loaded. Reload the aggregate and retry the operation.
	ErrConcurrentUpdate = errors.New("charge was modified concurrently")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// MissingFieldError names which mandatory field was absent for which
// timing type.
type MissingFieldError struct {
	Field  string
	Timing TimingType
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("charge with timing %q is missing mandatory field %q", e.Timing, e.Field)
}

func (e *MissingFieldError) Unwrap() error { return ErrMissingMandatoryField }

// =============================================================================
// VIOLATIONS - Aggregated business rule failures
// =============================================================================

// Violation is one business rule failure found during validation.
type Violation struct {
	Code    string
	Message string
}

// ViolationError aggregates every violation found in a validation pass so
// callers see the complete picture instead of the first failure.
type ViolationError struct {
	Violations []Violation
}

func (e *ViolationError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.Message
	}
	return fmt.Sprintf("%d charge validation failure(s): %s", len(e.Violations), strings.Join(msgs, "; "))
}

func (e *ViolationError) add(code, format string, args ...any) {
	e.Violations = append(e.Violations, Violation{Code: code, Message: fmt.Sprintf(format, args...)})
}

// errOrNil collapses an empty violation list to nil.
func (e *ViolationError) errOrNil() error {
	if len(e.Violations) == 0 {
		return nil
	}
	return e
}
