package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"menuqr.app/internal/audit"
	"menuqr.app/internal/authz"
	"menuqr.app/internal/identity"
)

type tokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// issueToken authenticates credentials and mints an access token carrying
// the actor's resolved roles.
func (a *API) issueToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if a.opts.Tokens == nil || a.opts.Credentials == nil || a.opts.Resolver == nil {
		writeError(w, http.StatusServiceUnavailable, "token issuance is not configured")
		return
	}

	var req tokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	userID, hash, err := a.opts.Credentials.CredentialsByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, authz.ErrActorNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "authentication error")
		return
	}
	if err := identity.VerifyPassword(hash, req.Password); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	actor, err := a.opts.Resolver.ResolveActor(r.Context(), userID)
	if err != nil {
		if errors.Is(err, authz.ErrActorNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "authentication error")
		return
	}
	if !actor.Active {
		writeError(w, http.StatusForbidden, "account is disabled")
		return
	}

	token, expiresAt, err := a.opts.Tokens.Generate(userID, actor.Roles, actor.LegacyRole)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not issue token")
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.token_issued", map[string]any{"user_id": userID})
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_at":   expiresAt,
	})
}
