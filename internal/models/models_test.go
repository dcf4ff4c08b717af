package models

import (
	"testing"
	"time"
)

func TestInvitationTokenRedeemable(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	token := InvitationToken{
		ExpiresAt: now.Add(time.Hour),
		MaxUses:   1,
		UseCount:  0,
		IsActive:  true,
	}
	if !token.Redeemable(now) {
		t.Fatal("expected active unexpired token to be redeemable")
	}

	expired := token
	expired.ExpiresAt = now.Add(-time.Minute)
	if expired.Redeemable(now) {
		t.Fatal("expected expired token to be unredeemable")
	}

	exhausted := token
	exhausted.UseCount = 1
	if exhausted.Redeemable(now) {
		t.Fatal("expected exhausted token to be unredeemable")
	}

	revoked := token
	revoked.IsActive = false
	if revoked.Redeemable(now) {
		t.Fatal("expected revoked token to be unredeemable")
	}
}

func TestPaymentRequestTerminal(t *testing.T) {
	cases := map[string]bool{
		PaymentStatusPending: false,
		PaymentStatusOverdue: false,
		PaymentStatusPaid:    true,
		PaymentStatusFailed:  true,
	}

	for status, want := range cases {
		p := PaymentRequest{Status: status}
		if p.Terminal() != want {
			t.Fatalf("status %s: expected terminal=%v", status, want)
		}
	}
}
