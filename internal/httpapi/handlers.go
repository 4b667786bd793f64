package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"menuqr.app/internal/authz"
	"menuqr.app/internal/ids"
	"menuqr.app/internal/identity"
	"menuqr.app/internal/obs"
	"menuqr.app/internal/payment"
	"menuqr.app/internal/verify"
)

// ReadyProbe is a simple readiness check (database ping when configured).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// OrderRefStore is the authoritative store for the payment order reference
// namespace. ReserveOrderRef must hold a uniqueness constraint and report
// duplicates with pg.ErrConflict so the allocate-insert cycle can restart.
type OrderRefStore interface {
	OrderRefExists(ctx context.Context, ref string) (bool, error)
	ReserveOrderRef(ctx context.Context, ref string) error
}

// CredentialStore looks up and updates stored credentials.
type CredentialStore interface {
	UserIDByEmail(ctx context.Context, email string) (string, error)
	CredentialsByEmail(ctx context.Context, email string) (userID, passwordHash string, err error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
}

// Options wires the API's collaborators. Tokens and Codes are required; the
// payment pieces are optional and their endpoints answer 503 until the
// gateway is configured.
type Options struct {
	Ready       ReadyProbe
	Version     string
	Tokens      *identity.Manager
	Resolver    authz.RoleResolver
	Codes       *verify.Issuer
	Signer      *payment.Signer
	Allocator   ids.Allocator
	Orders      OrderRefStore
	Credentials CredentialStore
	TestMode    bool

	// CodeRequestBurst/PerMinute throttle the code-request endpoints per IP.
	CodeRequestBurst     int
	CodeRequestPerMinute int
}

// API is the HTTP layer.
type API struct {
	mux  *http.ServeMux
	opts Options
}

func New(opts Options) *API {
	if opts.CodeRequestBurst <= 0 {
		opts.CodeRequestBurst = 3
	}
	if opts.CodeRequestPerMinute <= 0 {
		opts.CodeRequestPerMinute = 5
	}
	a := &API{
		mux:  http.NewServeMux(),
		opts: opts,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// token issuance
	a.mux.HandleFunc("/v1/auth/token", a.issueToken)

	// verification & password reset, code requests throttled per IP
	limit := func(h http.HandlerFunc) http.Handler {
		return RateLimit(h, a.opts.CodeRequestBurst, a.opts.CodeRequestPerMinute)
	}
	a.mux.Handle("/v1/verification/request", limit(a.requestVerification))
	a.mux.HandleFunc("/v1/verification/confirm", a.confirmVerification)
	a.mux.Handle("/v1/password-reset/request", limit(a.requestPasswordReset))
	a.mux.HandleFunc("/v1/password-reset/confirm", a.confirmPasswordReset)

	// payments
	a.mux.HandleFunc("/v1/payments/initiate", a.initiatePayment)
	a.mux.HandleFunc("/v1/payments/callback", a.paymentCallback)
	a.mux.HandleFunc("/v1/payment-links", a.createPaymentLink)
	a.mux.HandleFunc("/v1/payment-links/delete", a.deletePaymentLink)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	h = MaxBodyBytes(h, 1<<20)
	return obs.Instrument(h)
}

// --- health handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "menuqr-api",
		"version": a.opts.Version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.opts.Ready.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "menuqr-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.opts.Version,
	})
}

// requirePermission evaluates the actor from the request context against the
// permission and writes the challenge/forbid response itself. Indeterminate
// maps to 401 with a challenge, Deny to 403.
func (a *API) requirePermission(w http.ResponseWriter, r *http.Request, permission string) bool {
	decision := authz.Indeterminate
	if actor, ok := authz.ActorFromContext(r.Context()); ok {
		decision = authz.Evaluate(actor, permission)
	}
	obs.ObserveAuthzDecision(decision.String())

	switch decision {
	case authz.Allow:
		return true
	case authz.Deny:
		writeError(w, http.StatusForbidden, "permission denied")
	default:
		w.Header().Set("WWW-Authenticate", `Bearer realm="menuqr"`)
		writeError(w, http.StatusUnauthorized, "authentication required")
	}
	return false
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
