/*
errors.go - Centralized error types for the reservation engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers match on the sentinels with errors.Is; the structured errors
  carry the numbers a UI needs to explain a shortfall.

ERROR CATEGORIES:
  1. Recoverable - InsufficientResource: categories saturate instead of failing
  2. Client errors - InvalidRequest, WrongPhase: rejected at the boundary
  3. Defects - LedgerInvariant: clamped and logged, never a panic
  4. Lookup errors - unknown nation, category or reservation

USAGE:
  if errors.Is(err, generic.ErrInsufficientResource) {
      // stop reserving, keep what we have
  }

SEE ALSO:
  - pool.go: Raises insufficient/unknown/invariant errors
  - allocation/category.go: Absorbs insufficient resource errors
  - api/handlers.go: Maps errors to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInsufficientResource is returned when a reservation exceeds what the
	// pool has available. Recoverable: callers reduce the amount and retry.
	ErrInsufficientResource = errors.New("insufficient resource")

	// ErrInvalidRequest is returned for negative, non-finite or absurd requests.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrLedgerInvariant signals reserved > on_hand, a double commit, or a
	// reservation that outlived its turn. Always a bug in the caller.
	ErrLedgerInvariant = errors.New("ledger invariant violation")

	// ErrUnknownReservation is returned when releasing or committing an ID the
	// pool never issued.
	ErrUnknownReservation = errors.New("unknown reservation")

	// ErrLiveReservations is returned when an operation requires a pool with
	// nothing reserved (save points, stockpile sync).
	ErrLiveReservations = errors.New("live reservations present")

	// ErrWrongPhase is returned when a mutation arrives outside the phase that
	// allows it.
	ErrWrongPhase = errors.New("operation not allowed in current phase")

	// ErrDuplicateIdempotencyKey is returned when a transaction with the same
	// idempotency key already exists. This is expected behavior for retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrNationNotFound is returned when a referenced nation doesn't exist.
	ErrNationNotFound = errors.New("nation not found")

	// ErrCategoryNotFound is returned when a referenced category doesn't exist.
	ErrCategoryNotFound = errors.New("category not found")

	// ErrResourceNotFound is returned for an unregistered resource ID.
	ErrResourceNotFound = errors.New("resource not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientResourceError provides details about a pool shortage.
type InsufficientResourceError struct {
	NationID  NationID
	Resource  ResourceKind
	Available Amount
	Requested Amount
	Shortfall Amount
}

func (e *InsufficientResourceError) Error() string {
	return fmt.Sprintf("insufficient %s for %s: available %v, requested %v, shortfall %v",
		e.Resource.ResourceID(), e.NationID, e.Available.Value, e.Requested.Value, e.Shortfall.Value)
}

func (e *InsufficientResourceError) Unwrap() error {
	return ErrInsufficientResource
}

// InvalidRequestError describes a rejected input value.
type InvalidRequestError struct {
	Field  string
	Value  string
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

func (e *InvalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

// InvariantViolationError reports a broken ledger invariant and how it was clamped.
type InvariantViolationError struct {
	NationID      NationID
	Resource      ResourceKind
	ReservationID ReservationID
	Code          string // e.g. "double_commit", "reserved_exceeds_on_hand"
	Detail        string
}

func (e *InvariantViolationError) Error() string {
	res := "-"
	if e.Resource != nil {
		res = e.Resource.ResourceID()
	}
	return fmt.Sprintf("%s: nation %s resource %s reservation %s: %s",
		e.Code, e.NationID, res, e.ReservationID, e.Detail)
}

func (e *InvariantViolationError) Unwrap() error {
	return ErrLedgerInvariant
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRecoverable returns true if the caller should saturate rather than fail.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrInsufficientResource)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInsufficientResource) ||
		errors.Is(err, ErrDuplicateIdempotencyKey)
}

// IsNotFound returns true if the error indicates a missing nation, category or resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNationNotFound) ||
		errors.Is(err, ErrCategoryNotFound) ||
		errors.Is(err, ErrResourceNotFound)
}
