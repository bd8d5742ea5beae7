/*
errors.go - Error kinds for the leave workflow

ERROR CATEGORIES:
  invalid_input         malformed fields, bad date order, unknown leave type,
                        zero working days
  insufficient_balance  requested days exceed what is available for the type
  not_found             unknown leave request (or missing balance row)
  invalid_state         transition attempted on a request that is not pending
  internal              anything else (persistence, unexpected failures)

The first four are client errors and carry a message that is safe to return
verbatim. Internal errors must be logged and answered opaquely.

USAGE:
  switch leave.KindOf(err) {
  case leave.KindInvalidInput: ...
  }

  var ib *leave.InsufficientBalanceError
  if errors.As(err, &ib) { ... }
*/
package leave

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNotFound            = errors.New("not found")
	ErrInvalidState        = errors.New("invalid state")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }
func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	UserID    int64
	Type      Type
	Available int
	Requested int
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient %s leaves: available %d, requested %d",
		e.Type, e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// NotFoundError is returned when a referenced record does not exist.
type NotFoundError struct {
	Resource string // "leave request", "leave balance"
	ID       int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// StateError is returned when a request has already left pending.
type StateError struct {
	ID     int64
	Status Status
}

func (e *StateError) Error() string {
	return fmt.Sprintf("leave request %d already processed (%s)", e.ID, e.Status)
}

func (e *StateError) Unwrap() error { return ErrInvalidState }

// =============================================================================
// CLASSIFICATION
// =============================================================================

// Kind classifies an error for the presentation boundary.
type Kind string

const (
	KindInvalidInput        Kind = "invalid_input"
	KindInsufficientBalance Kind = "insufficient_balance"
	KindNotFound            Kind = "not_found"
	KindInvalidState        Kind = "invalid_state"
	KindInternal            Kind = "internal"
)

// KindOf returns the kind of err. Unrecognised errors are internal.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrInsufficientBalance):
		return KindInsufficientBalance
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidState):
		return KindInvalidState
	}
	return KindInternal
}

// IsClientError returns true if the error is due to the caller's request.
func IsClientError(err error) bool {
	return err != nil && KindOf(err) != KindInternal
}
