package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrActorNotFound is returned by resolvers when the actor id is unknown.
	ErrActorNotFound = errors.New("authz: actor not found")
	// ErrResolver wraps infrastructure faults from the role resolver. It is
	// distinct from a Deny: the caller should fail the request, not forbid it.
	ErrResolver = errors.New("authz: resolver failure")
)

// Decision is the outcome of an authorization check.
type Decision int

const (
	// Indeterminate means no verifiable identity was presented. Callers must
	// respond with an authentication challenge, not a forbid.
	Indeterminate Decision = iota
	// Deny means the actor is known but not allowed.
	Deny
	// Allow grants the operation.
	Allow
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Deny:
		return "deny"
	default:
		return "indeterminate"
	}
}

// Actor is an authenticated identity as supplied by the identity collaborator.
// LegacyRole carries the single-role field kept for accounts created before
// role assignments became a collection; it is checked in addition to Roles,
// never instead of them.
type Actor struct {
	ID         string
	Active     bool
	Roles      []string
	LegacyRole string
}

// RoleResolver loads an actor with its resolved roles from the identity store.
type RoleResolver interface {
	ResolveActor(ctx context.Context, actorID string) (Actor, error)
}

// Evaluate decides whether the actor may perform the operation guarded by
// the permission. Role checks short-circuit on the first grant; the legacy
// role is the last candidate. Unknown roles grant nothing.
func Evaluate(actor Actor, permission string) Decision {
	if strings.TrimSpace(actor.ID) == "" {
		return Indeterminate
	}
	if !actor.Active {
		return Deny
	}
	for _, role := range actor.Roles {
		if RoleGrants(role, permission) {
			return Allow
		}
	}
	if actor.LegacyRole != "" && RoleGrants(actor.LegacyRole, permission) {
		return Allow
	}
	return Deny
}

// EvaluateActorID resolves the actor through the collaborator and evaluates
// the permission. An unknown actor degrades to Indeterminate; any other
// resolver error is an infrastructure fault and is surfaced to the caller
// alongside an Indeterminate decision, never conflated with Deny.
func EvaluateActorID(ctx context.Context, resolver RoleResolver, actorID, permission string) (Decision, error) {
	if resolver == nil {
		return Indeterminate, fmt.Errorf("%w: no resolver configured", ErrResolver)
	}
	if strings.TrimSpace(actorID) == "" {
		return Indeterminate, nil
	}
	actor, err := resolver.ResolveActor(ctx, actorID)
	if err != nil {
		if errors.Is(err, ErrActorNotFound) {
			return Indeterminate, nil
		}
		return Indeterminate, fmt.Errorf("%w: %v", ErrResolver, err)
	}
	return Evaluate(actor, permission), nil
}
