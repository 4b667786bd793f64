package verify

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"
)

type recordingSender struct {
	mu         sync.Mutex
	deliveries []string
	err        error
}

func (s *recordingSender) Deliver(_ context.Context, recipient, code, purpose string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries = append(s.deliveries, purpose+"/"+recipient+"/"+code)
	return s.err
}

func newTestIssuer(t *testing.T, opts ...Option) (*Issuer, *recordingSender) {
	t.Helper()
	sender := &recordingSender{}
	issuer, err := NewIssuer(NewMemoryStore(), sender, opts...)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	return issuer, sender
}

func TestIssueAndValidateOnce(t *testing.T) {
	issuer, sender := newTestIssuer(t)

	code, err := issuer.Issue(context.Background(), PurposeVerification, "a@x.com")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !regexp.MustCompile(`^\d{6}$`).MatchString(code) {
		t.Fatalf("code %q is not six digits", code)
	}
	if len(sender.deliveries) != 1 {
		t.Fatalf("expected one delivery, got %d", len(sender.deliveries))
	}

	if got := issuer.Validate(PurposeVerification, "a@x.com", code); got != Valid {
		t.Fatalf("expected Valid, got %v", got)
	}
	// one-time use: the entry is gone after a successful match
	if got := issuer.Validate(PurposeVerification, "a@x.com", code); got != NotFound {
		t.Fatalf("expected NotFound after consumption, got %v", got)
	}
}

func TestValidateExpiredConsumesEntry(t *testing.T) {
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer, _ := newTestIssuer(t, WithClock(func() time.Time { return current }))

	code, err := issuer.Issue(context.Background(), PurposeReset, "a@x.com")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	current = current.Add(DefaultTTL + time.Second)
	if got := issuer.Validate(PurposeReset, "a@x.com", code); got != Expired {
		t.Fatalf("expected Expired, got %v", got)
	}
	if got := issuer.Validate(PurposeReset, "a@x.com", code); got != NotFound {
		t.Fatalf("expected NotFound after expiry consumed the entry, got %v", got)
	}
}

func TestReissueOverwrites(t *testing.T) {
	issuer, _ := newTestIssuer(t)

	first, err := issuer.Issue(context.Background(), PurposeVerification, "a@x.com")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	var second string
	for {
		second, err = issuer.Issue(context.Background(), PurposeVerification, "a@x.com")
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		if second != first {
			break
		}
	}

	// the overwritten key still holds a live entry, so the stale code is a Mismatch
	if got := issuer.Validate(PurposeVerification, "a@x.com", first); got != Mismatch {
		t.Fatalf("expected Mismatch for the overwritten code, got %v", got)
	}
	if got := issuer.Validate(PurposeVerification, "a@x.com", second); got != Valid {
		t.Fatalf("expected Valid for the fresh code, got %v", got)
	}
}

func TestPurposesNeverShareAKey(t *testing.T) {
	issuer, _ := newTestIssuer(t)

	verification, err := issuer.Issue(context.Background(), PurposeVerification, "a@x.com")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := issuer.Issue(context.Background(), PurposeReset, "a@x.com"); err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if got := issuer.Validate(PurposeVerification, "a@x.com", verification); got != Valid {
		t.Fatalf("reset issuance must not disturb the verification code, got %v", got)
	}
}

func TestMismatchLeavesEntryInPlace(t *testing.T) {
	issuer, _ := newTestIssuer(t)

	code, err := issuer.Issue(context.Background(), PurposeVerification, "a@x.com")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	wrong := "1" + code[1:]
	if wrong[0] == code[0] {
		wrong = "2" + code[1:]
	}
	if got := issuer.Validate(PurposeVerification, "a@x.com", wrong); got != Mismatch {
		t.Fatalf("expected Mismatch, got %v", got)
	}
	if got := issuer.Validate(PurposeVerification, "a@x.com", code); got != Valid {
		t.Fatalf("expected Valid after a mismatch, got %v", got)
	}
}

func TestDeliveryFailureKeepsStoredCode(t *testing.T) {
	sender := &recordingSender{err: errors.New("smtp: connection refused")}
	issuer, err := NewIssuer(NewMemoryStore(), sender)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}

	code, err := issuer.Issue(context.Background(), PurposeVerification, "a@x.com")
	if err == nil {
		t.Fatalf("expected delivery error")
	}
	if code == "" {
		t.Fatalf("expected the code despite delivery failure")
	}
	if got := issuer.Validate(PurposeVerification, "a@x.com", code); got != Valid {
		t.Fatalf("stored code must survive delivery failure, got %v", got)
	}
}

func TestIssueRejectsEmptyRecipient(t *testing.T) {
	issuer, _ := newTestIssuer(t)
	if _, err := issuer.Issue(context.Background(), PurposeVerification, "   "); !errors.Is(err, ErrInvalidRecipient) {
		t.Fatalf("expected ErrInvalidRecipient, got %v", err)
	}
}

func TestPeekDoesNotConsume(t *testing.T) {
	issuer, _ := newTestIssuer(t)
	code, err := issuer.Issue(context.Background(), PurposeVerification, "a@x.com")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	pending, ok := issuer.Peek(PurposeVerification, "a@x.com")
	if !ok || pending.Code != code {
		t.Fatalf("Peek returned %v ok=%v", pending, ok)
	}
	if !pending.ExpiresAt.After(pending.IssuedAt) {
		t.Fatalf("expiry must follow issuance: %v", pending)
	}
	if got := issuer.Validate(PurposeVerification, "a@x.com", code); got != Valid {
		t.Fatalf("Peek must not consume the entry, got %v", got)
	}
}

func TestConcurrentReissueAndValidate(t *testing.T) {
	issuer, _ := newTestIssuer(t)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := 0; n < 50; n++ {
				code, err := issuer.Issue(context.Background(), PurposeVerification, "race@x.com")
				if err != nil {
					t.Errorf("Issue: %v", err)
					return
				}
				issuer.Validate(PurposeVerification, "race@x.com", code)
			}
		}()
	}
	wg.Wait()
}
