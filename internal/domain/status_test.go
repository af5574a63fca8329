package domain

import "testing"

func TestCanTransition_CreatorResponses(t *testing.T) {
	cases := []struct {
		from, to OfferStatus
		want     bool
	}{
		{OfferSent, OfferAccepted, true},
		{OfferSent, OfferRejected, true},
		{OfferSent, OfferCounterOffer, true},
		{OfferInProgress, OfferSubmitted, true},
		{OfferDraft, OfferAccepted, false},
		{OfferAccepted, OfferPaidEscrow, false}, // money movement is not a creator action
		{OfferSubmitted, OfferApproved, false},
	}
	for _, tc := range cases {
		if got := CanTransition(RoleCreator, tc.from, tc.to); got != tc.want {
			t.Errorf("creator %s->%s = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestCanTransition_BrandLifecycle(t *testing.T) {
	cases := []struct {
		from, to OfferStatus
		want     bool
	}{
		{OfferDraft, OfferSent, true},
		{OfferDraft, OfferCancelled, true},
		{OfferSent, OfferCancelled, true},
		{OfferCounterOffer, OfferAccepted, true},
		{OfferCounterOffer, OfferRejected, true},
		{OfferPaidEscrow, OfferInProgress, true},
		{OfferSubmitted, OfferApproved, true},
		{OfferSubmitted, OfferInProgress, true},
		{OfferAccepted, OfferPaidEscrow, false},
		{OfferPaidEscrow, OfferRefunded, false},
		{OfferSent, OfferAccepted, false},
	}
	for _, tc := range cases {
		if got := CanTransition(RoleBrand, tc.from, tc.to); got != tc.want {
			t.Errorf("brand %s->%s = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestCanTransition_OnlySystemMovesMoney(t *testing.T) {
	for _, role := range []Role{RoleBrand, RoleCreator} {
		if CanTransition(role, OfferAccepted, OfferPaidEscrow) {
			t.Errorf("role %s must not reach paid_escrow", role)
		}
		if CanTransition(role, OfferPaidEscrow, OfferRefunded) {
			t.Errorf("role %s must not refund", role)
		}
	}
	if !CanTransition(RoleSystem, OfferAccepted, OfferPaidEscrow) {
		t.Error("system must be able to reach paid_escrow")
	}
	if !CanTransition(RoleSystem, OfferPaidEscrow, OfferRefunded) {
		t.Error("system must be able to refund from escrow")
	}
	if !CanTransition(RoleSystem, OfferApproved, OfferCompleted) {
		t.Error("system must complete approved offers")
	}
}

func TestCanTransition_AdminOverrides(t *testing.T) {
	nonTerminal := []OfferStatus{
		OfferDraft, OfferSent, OfferAccepted, OfferCounterOffer,
		OfferPaidEscrow, OfferInProgress, OfferSubmitted, OfferApproved,
	}
	for _, from := range nonTerminal {
		if !CanTransition(RoleAdmin, from, OfferCancelled) {
			t.Errorf("admin must be able to cancel from %s", from)
		}
	}

	if !CanTransition(RoleAdmin, OfferPaidEscrow, OfferRefunded) {
		t.Error("admin must be able to refund from paid_escrow")
	}
	if CanTransition(RoleAdmin, OfferInProgress, OfferRefunded) {
		t.Error("admin refund is only valid from paid_escrow")
	}
	if !CanTransition(RoleAdmin, OfferSent, OfferRejected) || !CanTransition(RoleAdmin, OfferAccepted, OfferRejected) {
		t.Error("admin must be able to override-reject sent and accepted offers")
	}
}

func TestCanTransition_TerminalStatesRejectEverything(t *testing.T) {
	terminal := []OfferStatus{OfferRejected, OfferCompleted, OfferCancelled, OfferRefunded}
	all := []OfferStatus{
		OfferDraft, OfferSent, OfferAccepted, OfferRejected, OfferCounterOffer,
		OfferPaidEscrow, OfferInProgress, OfferSubmitted, OfferApproved,
		OfferCompleted, OfferCancelled, OfferRefunded,
	}
	roles := []Role{RoleBrand, RoleCreator, RoleAdmin, RoleSystem}

	for _, from := range terminal {
		if !from.IsTerminal() {
			t.Fatalf("%s should be terminal", from)
		}
		for _, to := range all {
			for _, role := range roles {
				if CanTransition(role, from, to) {
					t.Errorf("terminal %s allowed %s->%s for %s", from, from, to, role)
				}
			}
		}
	}
}
