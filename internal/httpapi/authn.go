package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"menuqr.app/internal/authz"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/",
	"/healthz",
	"/readyz",
	"/metrics",
	"/v1/info",
	"/v1/auth/token",
	"/v1/verification/request",
	"/v1/verification/confirm",
	"/v1/password-reset/request",
	"/v1/password-reset/confirm",
	// the gateway posts callbacks unauthenticated; the HMAC token is the proof
	"/v1/payments/callback",
}

// withAuth resolves a bearer token into an actor on the request context.
// Public paths pass through untouched; protected paths without a valid token
// proceed without an actor and get the 401 challenge from requirePermission.
func (a *API) withAuth(next http.Handler) http.Handler {
	if a.opts.Tokens == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := a.opts.Tokens.ParseAndValidate(token)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="menuqr", error="invalid_token"`)
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		actor := authz.Actor{
			ID:         claims.Subject,
			Active:     true,
			Roles:      claims.Roles,
			LegacyRole: claims.LegacyRole,
		}
		if a.opts.Resolver != nil {
			resolved, err := a.opts.Resolver.ResolveActor(r.Context(), claims.Subject)
			switch {
			case err == nil:
				actor = resolved
			case errors.Is(err, authz.ErrActorNotFound):
				// token subject no longer exists: no verifiable identity
				next.ServeHTTP(w, r)
				return
			default:
				writeError(w, http.StatusInternalServerError, "authentication error")
				return
			}
		}

		next.ServeHTTP(w, r.WithContext(authz.ContextWithActor(r.Context(), actor)))
	})
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("authorization header missing")
	}
	if !strings.HasPrefix(header, bearer) {
		return "", errors.New("authorization header must use the Bearer scheme")
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, bearer))
	if token == "" {
		return "", errors.New("bearer token missing")
	}
	return token, nil
}
