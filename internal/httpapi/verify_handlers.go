package httpapi

import (
	"errors"
	"net/http"

	"menuqr.app/internal/audit"
	"menuqr.app/internal/authz"
	"menuqr.app/internal/identity"
	"menuqr.app/internal/obs"
	"menuqr.app/internal/verify"
)

type codeRequest struct {
	Email string `json:"email"`
}

type codeConfirmRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type resetConfirmRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

func (a *API) requestVerification(w http.ResponseWriter, r *http.Request) {
	a.issueCode(w, r, verify.PurposeVerification)
}

func (a *API) requestPasswordReset(w http.ResponseWriter, r *http.Request) {
	a.issueCode(w, r, verify.PurposeReset)
}

func (a *API) issueCode(w http.ResponseWriter, r *http.Request, purpose verify.Purpose) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if a.opts.Codes == nil {
		writeError(w, http.StatusServiceUnavailable, "code issuance is not configured")
		return
	}
	var req codeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	_, err := a.opts.Codes.Issue(r.Context(), purpose, req.Email)
	switch {
	case errors.Is(err, verify.ErrInvalidRecipient):
		writeError(w, http.StatusBadRequest, "a recipient email is required")
		return
	case err != nil:
		// the code is stored; only delivery failed
		_ = audit.LogEvent(r.Context(), "code.delivery_failed", map[string]any{
			"purpose": string(purpose),
			"error":   err.Error(),
		})
		writeError(w, http.StatusBadGateway, "could not deliver the code, request a new one")
		return
	}

	obs.ObserveCodeIssued(string(purpose))
	_ = audit.LogEvent(r.Context(), "code.issued", map[string]any{"purpose": string(purpose)})
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "sent"})
}

func (a *API) confirmVerification(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if a.opts.Codes == nil {
		writeError(w, http.StatusServiceUnavailable, "code issuance is not configured")
		return
	}
	var req codeConfirmRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result := a.opts.Codes.Validate(verify.PurposeVerification, req.Email, req.Code)
	obs.ObserveCodeValidation(string(verify.PurposeVerification), result.String())
	if result != verify.Valid {
		writeCodeFailure(w, result)
		return
	}
	_ = audit.LogEvent(r.Context(), "verification.confirmed", nil)
	writeJSON(w, http.StatusOK, map[string]any{"status": "verified"})
}

func (a *API) confirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if a.opts.Codes == nil || a.opts.Credentials == nil {
		writeError(w, http.StatusServiceUnavailable, "password reset is not configured")
		return
	}
	var req resetConfirmRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "a new password is required")
		return
	}

	result := a.opts.Codes.Validate(verify.PurposeReset, req.Email, req.Code)
	obs.ObserveCodeValidation(string(verify.PurposeReset), result.String())
	if result != verify.Valid {
		writeCodeFailure(w, result)
		return
	}

	userID, err := a.opts.Credentials.UserIDByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, authz.ErrActorNotFound) {
			writeError(w, http.StatusNotFound, "no account for this email")
			return
		}
		writeError(w, http.StatusInternalServerError, "password reset failed")
		return
	}
	hash, err := identity.HashPassword(req.NewPassword)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid password")
		return
	}
	if err := a.opts.Credentials.UpdatePassword(r.Context(), userID, hash); err != nil {
		writeError(w, http.StatusInternalServerError, "password reset failed")
		return
	}

	_ = audit.LogEvent(r.Context(), "password.reset", map[string]any{"user_id": userID})
	writeJSON(w, http.StatusOK, map[string]any{"status": "password_updated"})
}

// writeCodeFailure maps each validation outcome to its own user-facing
// message so the user knows whether to retry or request a new code.
func writeCodeFailure(w http.ResponseWriter, result verify.Result) {
	switch result {
	case verify.NotFound:
		writeError(w, http.StatusNotFound, "no pending code, request a new one")
	case verify.Expired:
		writeError(w, http.StatusGone, "code expired, request a new one")
	default:
		writeError(w, http.StatusBadRequest, "wrong code, try again")
	}
}
