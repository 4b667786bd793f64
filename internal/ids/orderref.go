package ids

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// ErrExhausted reports that every allocation attempt collided. The sentinel
// reference is still returned so legacy callers keep a value to persist, but
// the caller owns the policy: retry with a larger budget, widen the keyspace,
// or alert. The sentinel itself can collide and must never be trusted blindly.
var ErrExhausted = errors.New("ids: allocation attempts exhausted")

// ExistsFunc answers "is this reference already taken?" against the
// authoritative store for the namespace.
type ExistsFunc func(ctx context.Context, ref string) (bool, error)

// DefaultMaxAttempts bounds the retry loop by count, not wall-clock time.
const DefaultMaxAttempts = 10

// refSpan is the width of the numeric part: references are drawn from
// [1, 999999] and zero-padded to six digits.
const refSpan = 999999

// Allocator mints human-readable order references of the form
// <two upper-case letters><six zero-padded digits>, e.g. SP000123. The
// namespace is a single flat keyspace per reference kind: all payment order
// references share it across tenants.
type Allocator struct {
	Prefix      string
	MaxAttempts int
	Sentinel    string
}

// NewOrderRefAllocator returns the allocator used for payment order
// references. The sentinel is the zero reference under the same prefix.
func NewOrderRefAllocator(prefix string) (Allocator, error) {
	prefix = strings.TrimSpace(prefix)
	if len(prefix) != 2 || prefix[0] < 'A' || prefix[0] > 'Z' || prefix[1] < 'A' || prefix[1] > 'Z' {
		return Allocator{}, fmt.Errorf("ids: prefix must be two upper-case letters, got %q", prefix)
	}
	return Allocator{
		Prefix:      prefix,
		MaxAttempts: DefaultMaxAttempts,
		Sentinel:    fmt.Sprintf("%s%06d", prefix, 0),
	}, nil
}

// Allocate draws random candidates and returns the first one the existence
// check reports free. When every attempt collides it returns the sentinel
// together with ErrExhausted. The check-then-insert race is owned by the
// inserting layer: it must hold a uniqueness constraint and restart the
// allocate-insert cycle on conflict.
func (a Allocator) Allocate(ctx context.Context, exists ExistsFunc) (string, error) {
	if exists == nil {
		return "", errors.New("ids: existence check is required")
	}
	attempts := a.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		candidate, err := a.candidate()
		if err != nil {
			return "", fmt.Errorf("ids: draw candidate: %w", err)
		}
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("ids: existence check: %w", err)
		}
		if !taken {
			return candidate, nil
		}
	}
	return a.Sentinel, ErrExhausted
}

// candidate draws uniformly from [1, 999999] using crypto/rand so references
// are not guessable from previous allocations.
func (a Allocator) candidate() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(refSpan))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%06d", a.Prefix, n.Int64()+1), nil
}
