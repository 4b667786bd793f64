package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"menuqr.app/internal/audit"
	"menuqr.app/internal/authz"
	"menuqr.app/internal/ids"
	"menuqr.app/internal/obs"
	"menuqr.app/internal/payment"
	"menuqr.app/internal/store/pg"
)

// reserveAttempts bounds restarts of the allocate-insert cycle when another
// request claims the same reference between the check and the insert.
const reserveAttempts = 3

type initiatePaymentRequest struct {
	Email        string  `json:"email"`
	Amount       float64 `json:"amount"`
	PaymentType  string  `json:"payment_type"`
	Installments int     `json:"installments"`
	Currency     string  `json:"currency"`
}

type createPaymentLinkRequest struct {
	Name            string  `json:"name"`
	Price           float64 `json:"price"`
	Currency        string  `json:"currency"`
	MaxInstallments int     `json:"max_installments"`
	LinkType        string  `json:"link_type"`
	Lang            string  `json:"lang"`
}

type deletePaymentLinkRequest struct {
	LinkID string `json:"link_id"`
}

func (a *API) initiatePayment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if !a.requirePermission(w, r, authz.PermPaymentsInitiate) {
		return
	}
	if a.opts.Signer == nil || a.opts.Orders == nil {
		writeError(w, http.StatusServiceUnavailable, "payment gateway is not configured")
		return
	}

	var req initiatePaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.PaymentType == "" {
		req.PaymentType = "card"
	}
	if req.Currency == "" {
		req.Currency = "TL"
	}

	orderRef, ok := a.reserveOrderRef(w, r)
	if !ok {
		return
	}

	token, err := a.opts.Signer.InitiateToken(payment.PaymentRequest{
		ClientIP:     clientIP(r),
		OrderRef:     orderRef,
		Email:        strings.TrimSpace(req.Email),
		Amount:       req.Amount,
		PaymentType:  req.PaymentType,
		Installments: req.Installments,
		Currency:     req.Currency,
		TestMode:     a.opts.TestMode,
	})
	if err != nil {
		if errors.Is(err, payment.ErrInvalidAmount) || errors.Is(err, payment.ErrMissingField) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "could not sign the payment request")
		return
	}

	obs.ObserveTokenSigned("initiate")
	_ = audit.LogEvent(r.Context(), "payment.initiate", map[string]any{
		"order_ref": orderRef,
		"amount":    req.Amount,
		"currency":  req.Currency,
	})
	writeJSON(w, http.StatusCreated, map[string]any{
		"order_ref": orderRef,
		"token":     token,
	})
}

// reserveOrderRef runs the allocate-insert cycle. Allocation exhaustion is a
// reportable fault, never silently persisted.
func (a *API) reserveOrderRef(w http.ResponseWriter, r *http.Request) (string, bool) {
	for attempt := 0; attempt < reserveAttempts; attempt++ {
		ref, err := a.opts.Allocator.Allocate(r.Context(), a.opts.Orders.OrderRefExists)
		if errors.Is(err, ids.ErrExhausted) {
			obs.ObserveOrderRefAllocation("exhausted")
			_ = audit.LogEvent(r.Context(), "payment.ref_exhausted", nil)
			writeError(w, http.StatusServiceUnavailable, "order reference space exhausted, try again")
			return "", false
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "could not allocate an order reference")
			return "", false
		}
		if err := a.opts.Orders.ReserveOrderRef(r.Context(), ref); err != nil {
			if errors.Is(err, pg.ErrConflict) {
				continue
			}
			writeError(w, http.StatusInternalServerError, "could not reserve the order reference")
			return "", false
		}
		obs.ObserveOrderRefAllocation("ok")
		return ref, true
	}
	writeError(w, http.StatusServiceUnavailable, "order reference contention, try again")
	return "", false
}

// paymentCallback verifies the gateway's HMAC token over the callback fields.
// The gateway expects the literal body "OK" on success and retries otherwise.
func (a *API) paymentCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if a.opts.Signer == nil {
		writeError(w, http.StatusServiceUnavailable, "payment gateway is not configured")
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid callback body")
		return
	}

	orderRef := r.PostFormValue("merchant_oid")
	status := r.PostFormValue("status")
	totalAmount := r.PostFormValue("total_amount")
	token := r.PostFormValue("hash")
	if orderRef == "" || token == "" {
		writeError(w, http.StatusBadRequest, "missing callback fields")
		return
	}

	if !a.opts.Signer.VerifyCallback(orderRef, status, totalAmount, token) {
		_ = audit.LogEvent(r.Context(), "payment.callback_rejected", map[string]any{"order_ref": orderRef})
		writeError(w, http.StatusBadRequest, "invalid callback signature")
		return
	}

	_ = audit.LogEvent(r.Context(), "payment.callback", map[string]any{
		"order_ref": orderRef,
		"status":    status,
	})
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (a *API) createPaymentLink(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if !a.requirePermission(w, r, authz.PermMenuManage) {
		return
	}
	if a.opts.Signer == nil {
		writeError(w, http.StatusServiceUnavailable, "payment gateway is not configured")
		return
	}

	var req createPaymentLinkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Currency == "" {
		req.Currency = "TL"
	}
	if req.LinkType == "" {
		req.LinkType = "product"
	}
	if req.Lang == "" {
		req.Lang = "tr"
	}

	token, err := a.opts.Signer.LinkCreateToken(payment.PaymentLink{
		Name:            req.Name,
		Price:           req.Price,
		Currency:        req.Currency,
		MaxInstallments: req.MaxInstallments,
		LinkType:        req.LinkType,
		Lang:            req.Lang,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	obs.ObserveTokenSigned("link_create")
	writeJSON(w, http.StatusCreated, map[string]any{"token": token})
}

func (a *API) deletePaymentLink(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if !a.requirePermission(w, r, authz.PermMenuManage) {
		return
	}
	if a.opts.Signer == nil {
		writeError(w, http.StatusServiceUnavailable, "payment gateway is not configured")
		return
	}

	var req deletePaymentLinkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	token, err := a.opts.Signer.LinkDeleteToken(req.LinkID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	obs.ObserveTokenSigned("link_delete")
	writeJSON(w, http.StatusOK, map[string]any{"token": token})
}
