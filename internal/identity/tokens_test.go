package identity

import (
	"slices"
	"testing"
	"time"
)

func TestGenerateAndParse(t *testing.T) {
	m, err := NewManager("test-secret", "menuqr-test", 30*time.Minute)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	token, exp, err := m.Generate("user-42", []string{"Manager", "waiter", "manager"}, "Customer")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Fatalf("expected future expiration, got %v", exp)
	}

	claims, err := m.ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if claims.Subject != "user-42" {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
	if claims.Issuer != "menuqr-test" {
		t.Fatalf("unexpected issuer: %s", claims.Issuer)
	}
	if !slices.Contains(claims.Roles, "manager") || !slices.Contains(claims.Roles, "waiter") {
		t.Fatalf("roles were not preserved: %v", claims.Roles)
	}
	if len(claims.Roles) != 2 {
		t.Fatalf("expected deduplicated roles, got %v", claims.Roles)
	}
	if claims.LegacyRole != "customer" {
		t.Fatalf("legacy role was not normalized: %q", claims.LegacyRole)
	}
	if claims.ID == "" {
		t.Fatalf("expected a jti claim")
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	m1, err := NewManager("secret-one", "menuqr-test", time.Minute)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	m2, err := NewManager("secret-two", "menuqr-test", time.Minute)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	token, _, err := m1.Generate("user-1", nil, "")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := m2.ParseAndValidate(token); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m, err := NewManager("test-secret", "menuqr-test", time.Minute, WithClock(func() time.Time { return current }))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	token, _, err := m.Generate("user-1", []string{"customer"}, "")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	current = current.Add(2 * time.Minute)
	if _, err := m.ParseAndValidate(token); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	m1, err := NewManager("test-secret", "other-service", time.Minute)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	m2, err := NewManager("test-secret", "menuqr-test", time.Minute)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	token, _, err := m1.Generate("user-1", nil, "")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := m2.ParseAndValidate(token); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for foreign issuer, got %v", err)
	}
}

func TestNewManagerValidation(t *testing.T) {
	if _, err := NewManager("  ", "iss", time.Minute); err == nil {
		t.Fatalf("expected error for empty secret")
	}
	if _, err := NewManager("secret", "iss", 0); err == nil {
		t.Fatalf("expected error for zero ttl")
	}
}

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if err := VerifyPassword(hash, "s3cret-pass"); err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if err := VerifyPassword(hash, "wrong"); err == nil {
		t.Fatalf("expected mismatch error")
	}
	if _, err := HashPassword(""); err == nil {
		t.Fatalf("expected error for empty password")
	}
}
