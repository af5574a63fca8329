/**
 * @description
 * This file is the single authority for the offer lifecycle. Every status an
 * offer can hold, every role that can act on it, and every transition between
 * statuses is declared here. Call sites never compare or assign status
 * strings ad hoc; they ask CanTransition.
 */

package domain

// OfferStatus is the closed set of lifecycle states an offer can be in.
type OfferStatus string

const (
	OfferDraft        OfferStatus = "draft"
	OfferSent         OfferStatus = "sent"
	OfferAccepted     OfferStatus = "accepted"
	OfferRejected     OfferStatus = "rejected"
	OfferCounterOffer OfferStatus = "counter_offer"
	OfferPaidEscrow   OfferStatus = "paid_escrow"
	OfferInProgress   OfferStatus = "in_progress"
	OfferSubmitted    OfferStatus = "submitted"
	OfferApproved     OfferStatus = "approved"
	OfferCompleted    OfferStatus = "completed"
	OfferCancelled    OfferStatus = "cancelled"
	OfferRefunded     OfferStatus = "refunded"
)

// ValidOfferStatus reports whether s names a known lifecycle state.
func ValidOfferStatus(s OfferStatus) bool {
	switch s {
	case OfferDraft, OfferSent, OfferAccepted, OfferRejected, OfferCounterOffer,
		OfferPaidEscrow, OfferInProgress, OfferSubmitted, OfferApproved,
		OfferCompleted, OfferCancelled, OfferRefunded:
		return true
	}
	return false
}

// IsTerminal reports whether s permits no further transitions. Re-applying
// the same terminal status is treated as an idempotent no-op by the service
// layer, so retries of a finished operation never fail.
func (s OfferStatus) IsTerminal() bool {
	switch s {
	case OfferRejected, OfferCompleted, OfferCancelled, OfferRefunded:
		return true
	}
	return false
}

// Role identifies who is attempting a transition.
type Role string

const (
	RoleBrand   Role = "brand"
	RoleCreator Role = "creator"
	RoleAdmin   Role = "admin"
	// RoleSystem covers the reconciliation loop and scheduled sweeps. It is
	// never minted from a request token.
	RoleSystem Role = "system"
)

// Actor is the authenticated identity performing an operation, as resolved
// by the auth middleware (or synthesized for system jobs).
type Actor struct {
	ID   string
	Role Role
}

type transition struct {
	From OfferStatus
	To   OfferStatus
}

// transitions maps each role to the status changes it may drive. The
// reconciliation loop (RoleSystem) is the only path into paid_escrow and the
// only path from paid_escrow to refunded besides an admin refund, keeping a
// single source of truth for "money has actually moved".
var transitions = map[Role]map[transition]bool{
	RoleBrand: {
		{OfferDraft, OfferSent}:            true,
		{OfferDraft, OfferCancelled}:       true,
		{OfferSent, OfferCancelled}:        true,
		{OfferCounterOffer, OfferAccepted}: true,
		{OfferCounterOffer, OfferRejected}: true,
		{OfferPaidEscrow, OfferInProgress}: true,
		{OfferSubmitted, OfferApproved}:    true,
		{OfferSubmitted, OfferInProgress}:  true, // revision requested
	},
	RoleCreator: {
		{OfferSent, OfferAccepted}:        true,
		{OfferSent, OfferRejected}:        true,
		{OfferSent, OfferCounterOffer}:    true,
		{OfferInProgress, OfferSubmitted}: true,
	},
	RoleSystem: {
		{OfferAccepted, OfferPaidEscrow}: true,
		{OfferPaidEscrow, OfferRefunded}: true,
		{OfferApproved, OfferCompleted}:  true,
		{OfferSent, OfferCancelled}:      true, // expiry sweep
	},
	RoleAdmin: {
		{OfferPaidEscrow, OfferRefunded}: true,
		{OfferSent, OfferRejected}:       true,
		{OfferAccepted, OfferRejected}:   true,
	},
}

// CanTransition reports whether the given role may move an offer from one
// status to another. Admin cancellation is allowed from any non-terminal
// state; everything else must appear in the table.
func CanTransition(role Role, from, to OfferStatus) bool {
	if from.IsTerminal() {
		return false
	}
	if role == RoleAdmin && to == OfferCancelled {
		return true
	}
	allowed, ok := transitions[role]
	if !ok {
		return false
	}
	return allowed[transition{From: from, To: to}]
}
