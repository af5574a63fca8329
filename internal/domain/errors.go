/**
 * @description
 * Error taxonomy for the offer-service. Handlers and callers branch on these
 * with errors.Is / errors.As; none of them should ever cross the API boundary
 * as an unstructured failure.
 *
 * - ValidationError: malformed input, recoverable by the caller, never retried.
 * - InvalidTransitionError: the requested state change is not in the
 *   transition table for the acting role, or lost a compare-and-swap race.
 * - PreconditionFailedError: an invariant guard tripped (duplicate live
 *   payment, payout already exists).
 * - ErrForbidden: authorization failure. The message never reveals whether
 *   the resource exists.
 * - GatewayError: the external processor call failed or timed out; retryable
 *   up to the reconciliation budget.
 */

package domain

import (
	"errors"
	"fmt"
)

// ErrForbidden is returned when the actor lacks the capability for an
// operation or does not own the resource.
var ErrForbidden = errors.New("forbidden")

// ValidationError describes a malformed field in caller input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// Validation builds a ValidationError.
func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// InvalidTransitionError identifies the current state, the requested state
// and the acting role so the UI can explain the rejection verbatim.
type InvalidTransitionError struct {
	From  OfferStatus
	To    OfferStatus
	Actor Role
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s for role %s", e.From, e.To, e.Actor)
}

// PreconditionFailedError reports a tripped invariant guard. From trusted
// internal callers it signals a bug; from concurrent user traffic it is a
// conflict the caller can resolve by re-reading.
type PreconditionFailedError struct {
	Reason string
}

func (e *PreconditionFailedError) Error() string {
	return "precondition failed: " + e.Reason
}

// PreconditionFailed builds a PreconditionFailedError.
func PreconditionFailed(reason string) error {
	return &PreconditionFailedError{Reason: reason}
}

// GatewayError wraps a failed call to the external payment processor.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway %s failed: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// ErrPaymentStatusUnknown is the terminal condition when the reconciliation
// retry budget is exhausted without a definitive processor answer. The
// payment must be verified manually; it is never assumed paid or failed.
var ErrPaymentStatusUnknown = errors.New("payment status unknown; manual verification required")
