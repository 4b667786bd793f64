package verify

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"menuqr.app/internal/notify"
)

// Purpose separates the verification flow from the password-reset flow. The
// two never share a cache key, even for the same recipient.
type Purpose string

const (
	PurposeVerification Purpose = "verification"
	PurposeReset        Purpose = "password-reset"
)

// Result classifies a validation attempt. Each value maps to a distinct
// user-facing message at the boundary.
type Result int

const (
	Valid Result = iota
	Expired
	NotFound
	Mismatch
)

func (r Result) String() string {
	switch r {
	case Valid:
		return "valid"
	case Expired:
		return "expired"
	case NotFound:
		return "not_found"
	default:
		return "mismatch"
	}
}

// DefaultTTL bounds code validity. Expiry is lazy: it is evaluated on read,
// no eviction goroutine runs.
const DefaultTTL = 15 * time.Minute

var ErrInvalidRecipient = errors.New("verify: recipient is required")

// codes are drawn uniformly from [100000, 999999]
const (
	codeMin  = 100000
	codeSpan = 900000
)

// Issuer generates, stores and validates one-time codes. The issuer mutex
// serializes every read-modify-write against the store so a validation never
// races an overwrite into an inconsistent state.
type Issuer struct {
	mu     sync.Mutex
	store  CodeStore
	sender notify.Deliverer
	ttl    time.Duration
	now    func() time.Time
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithTTL overrides the code lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(i *Issuer) {
		if ttl > 0 {
			i.ttl = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(i *Issuer) {
		if fn != nil {
			i.now = fn
		}
	}
}

// NewIssuer constructs an Issuer backed by the given store and deliverer.
func NewIssuer(store CodeStore, sender notify.Deliverer, opts ...Option) (*Issuer, error) {
	if store == nil {
		return nil, errors.New("verify: code store is required")
	}
	if sender == nil {
		return nil, errors.New("verify: deliverer is required")
	}
	issuer := &Issuer{
		store:  store,
		sender: sender,
		ttl:    DefaultTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(issuer)
	}
	return issuer, nil
}

// Issue draws a fresh 6-digit code, stores it under the (purpose, recipient)
// key — overwriting any prior pending code — and hands it to the deliverer.
// Store-then-notify: a delivery failure is returned together with the code,
// the stored entry stays valid.
func (i *Issuer) Issue(ctx context.Context, purpose Purpose, recipient string) (string, error) {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return "", ErrInvalidRecipient
	}
	code, err := randomCode()
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}

	i.mu.Lock()
	now := i.now()
	i.store.Set(cacheKey(purpose, recipient), PendingCode{
		Code:      code,
		IssuedAt:  now,
		ExpiresAt: now.Add(i.ttl),
	})
	i.mu.Unlock()

	if err := i.sender.Deliver(ctx, recipient, code, string(purpose)); err != nil {
		return code, fmt.Errorf("deliver code: %w", err)
	}
	return code, nil
}

// Validate checks a submitted code. Valid and Expired both consume the
// entry; Mismatch leaves it in place so the user may retry until expiry.
func (i *Issuer) Validate(purpose Purpose, recipient, submitted string) Result {
	key := cacheKey(purpose, strings.TrimSpace(recipient))

	i.mu.Lock()
	defer i.mu.Unlock()

	pending, ok := i.store.Get(key)
	if !ok {
		return NotFound
	}
	if i.now().After(pending.ExpiresAt) {
		i.store.Delete(key)
		return Expired
	}
	if subtle.ConstantTimeCompare([]byte(pending.Code), []byte(submitted)) != 1 {
		return Mismatch
	}
	i.store.Delete(key)
	return Valid
}

// Peek returns the pending code without consuming it. Diagnostics and tests
// only — never use it to validate.
func (i *Issuer) Peek(purpose Purpose, recipient string) (PendingCode, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.store.Get(cacheKey(purpose, strings.TrimSpace(recipient)))
}

func cacheKey(purpose Purpose, recipient string) string {
	return string(purpose) + "\x00" + recipient
}

// randomCode draws uniformly from [100000, 999999] using crypto/rand: the
// codes guard account takeover and must be unpredictable.
func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpan))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+codeMin), nil
}
