package crypto

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("secret")
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}

	if !VerifyPassword(hash, "secret") {
		t.Fatal("expected password verification to succeed")
	}

	if VerifyPassword(hash, "incorrect") {
		t.Fatal("expected password verification to fail")
	}
}

func TestHashPasswordRejectsEmpty(t *testing.T) {
	if _, err := HashPassword(""); err != ErrEmptyPassword {
		t.Fatalf("expected ErrEmptyPassword, got %v", err)
	}
	if VerifyPassword("", "anything") {
		t.Fatal("expected empty hash to never verify")
	}
}

func TestVerifyPasswordWithoutHashDoesBcryptWork(t *testing.T) {
	if VerifyPassword("", "unknown-account") {
		t.Fatal("expected empty hash to never verify, even for the dummy plaintext")
	}
	cost, err := bcrypt.Cost(dummyHash())
	if err != nil {
		t.Fatalf("dummy hash is not a bcrypt hash: %v", err)
	}
	if cost != bcrypt.DefaultCost {
		t.Fatalf("expected dummy hash cost %d, got %d", bcrypt.DefaultCost, cost)
	}
}

func TestGenerateToken(t *testing.T) {
	token, err := GenerateToken(32)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	if len(token) == 0 {
		t.Fatal("expected token to be non-empty")
	}

	other, err := GenerateToken(32)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if other == token {
		t.Fatal("expected tokens to differ")
	}

	if _, err := GenerateToken(0); err == nil {
		t.Fatal("expected error for zero length")
	}
}

func TestFingerprintIsStable(t *testing.T) {
	a := Fingerprint("session-token")
	b := Fingerprint("session-token")
	if a != b {
		t.Fatal("expected identical fingerprints")
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex characters, got %d", len(a))
	}
	if Fingerprint("other") == a {
		t.Fatal("expected different input to produce different fingerprint")
	}
}
