package crypto

import (
	"strings"
	"testing"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("CorrectHorse9!")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	if !VerifyPassword(hash, "CorrectHorse9!") {
		t.Fatal("expected password to verify")
	}
	if VerifyPassword(hash, "wrong") {
		t.Fatal("expected wrong password to fail")
	}
}

func TestGenerateTokenIsAlphanumeric(t *testing.T) {
	token, err := GenerateToken(24)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	if len(token) != 48 {
		t.Fatalf("expected 48 hex characters, got %d", len(token))
	}
	if strings.ContainsAny(token, "-_+/=") {
		t.Fatalf("expected alphanumeric token, got %s", token)
	}

	other, err := GenerateToken(24)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if token == other {
		t.Fatal("expected distinct tokens")
	}
}

func TestHashTokenIsStable(t *testing.T) {
	if HashToken("abc") != HashToken("abc") {
		t.Fatal("expected deterministic hash")
	}
	if HashToken("abc") == HashToken("abd") {
		t.Fatal("expected distinct hashes for distinct tokens")
	}
}

func TestVerifySignature(t *testing.T) {
	secret := []byte("webhook-secret")
	payload := []byte(`{"type":"TRANSACTION"}`)

	sig := SignPayload(payload, secret)
	if !VerifySignature(payload, sig, secret) {
		t.Fatal("expected signature to verify")
	}

	if VerifySignature([]byte(`{"type":"TAMPERED"}`), sig, secret) {
		t.Fatal("expected altered payload to fail verification")
	}
	if VerifySignature(payload, sig, []byte("other-secret")) {
		t.Fatal("expected wrong secret to fail verification")
	}
	if VerifySignature(payload, "not-hex", secret) {
		t.Fatal("expected malformed signature to fail verification")
	}
}
