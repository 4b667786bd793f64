package authz

import (
	"context"
	"errors"
	"testing"
)

func TestEvaluateUnknownRoleIsDenied(t *testing.T) {
	actor := Actor{ID: "u1", Active: true, Roles: []string{"superuser", "root"}}
	for _, perm := range AllPermissions {
		if got := Evaluate(actor, perm); got != Deny {
			t.Fatalf("Evaluate(%q)=%v, want Deny for unregistered roles", perm, got)
		}
	}
}

func TestEvaluateGrantAndInactive(t *testing.T) {
	actor := Actor{ID: "u1", Active: true, Roles: []string{RoleWaiter}}
	if got := Evaluate(actor, PermOrdersUpdate); got != Allow {
		t.Fatalf("expected Allow for waiter on %s, got %v", PermOrdersUpdate, got)
	}
	if got := Evaluate(actor, PermMenuManage); got != Deny {
		t.Fatalf("expected Deny for waiter on %s, got %v", PermMenuManage, got)
	}

	actor.Active = false
	if got := Evaluate(actor, PermOrdersUpdate); got != Deny {
		t.Fatalf("expected Deny for inactive actor, got %v", got)
	}
}

func TestEvaluateMissingIdentity(t *testing.T) {
	if got := Evaluate(Actor{ID: "  ", Active: true}, PermOrdersView); got != Indeterminate {
		t.Fatalf("expected Indeterminate for empty actor id, got %v", got)
	}
}

func TestEvaluateLegacyRoleIsAdditionalCandidate(t *testing.T) {
	actor := Actor{ID: "u1", Active: true, Roles: []string{RoleCustomer}, LegacyRole: RoleWaiter}

	// Primary set grants this one; the legacy role is never consulted.
	if got := Evaluate(actor, PermPaymentsInitiate); got != Allow {
		t.Fatalf("expected Allow via primary roles, got %v", got)
	}
	// Only the legacy role grants this one.
	if got := Evaluate(actor, PermOrdersUpdate); got != Allow {
		t.Fatalf("expected Allow via legacy role, got %v", got)
	}
	// Neither grants this one.
	if got := Evaluate(actor, PermUsersManage); got != Deny {
		t.Fatalf("expected Deny, got %v", got)
	}
}

func TestEvaluateShortCircuitsOnFirstGrant(t *testing.T) {
	actor := Actor{ID: "u1", Active: true, Roles: []string{RoleAdmin, "bogus"}}
	if got := Evaluate(actor, PermUsersManage); got != Allow {
		t.Fatalf("expected Allow, got %v", got)
	}
}

type stubResolver struct {
	actor Actor
	err   error
}

func (s stubResolver) ResolveActor(ctx context.Context, actorID string) (Actor, error) {
	return s.actor, s.err
}

func TestEvaluateActorID(t *testing.T) {
	ctx := context.Background()

	d, err := EvaluateActorID(ctx, stubResolver{actor: Actor{ID: "u1", Active: true, Roles: []string{RoleManager}}}, "u1", PermMenuManage)
	if err != nil || d != Allow {
		t.Fatalf("expected Allow, got %v err=%v", d, err)
	}

	d, err = EvaluateActorID(ctx, stubResolver{err: ErrActorNotFound}, "missing", PermMenuManage)
	if err != nil || d != Indeterminate {
		t.Fatalf("expected Indeterminate for unknown actor, got %v err=%v", d, err)
	}

	d, err = EvaluateActorID(ctx, stubResolver{err: errors.New("connection refused")}, "u1", PermMenuManage)
	if !errors.Is(err, ErrResolver) {
		t.Fatalf("expected resolver failure, got %v", err)
	}
	if d == Deny {
		t.Fatalf("infrastructure fault must not surface as Deny")
	}

	d, err = EvaluateActorID(ctx, stubResolver{}, "", PermMenuManage)
	if err != nil || d != Indeterminate {
		t.Fatalf("expected Indeterminate for empty actor id, got %v err=%v", d, err)
	}
}

func TestRoleRegistryIsClosed(t *testing.T) {
	if KnownRole("operator") {
		t.Fatalf("unexpected role in registry")
	}
	for _, role := range []string{RoleAdmin, RoleManager, RoleWaiter, RoleCustomer} {
		if !KnownRole(role) {
			t.Fatalf("role %q missing from registry", role)
		}
	}
	// every granted permission must be part of the closed permission set
	known := make(map[string]struct{}, len(AllPermissions))
	for _, p := range AllPermissions {
		known[p] = struct{}{}
	}
	for role, perms := range rolePermissions {
		for p := range perms {
			if _, ok := known[p]; !ok {
				t.Fatalf("role %q grants unknown permission %q", role, p)
			}
		}
	}
}
