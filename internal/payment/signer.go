package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrMissingCredentials is a configuration fault: the service must fail
	// before any call to the gateway, not discover a rejected request later.
	ErrMissingCredentials = errors.New("payment: merchant credentials are required")
	ErrInvalidAmount      = errors.New("payment: amount must be a positive finite number")
	ErrMissingField       = errors.New("payment: required field is empty")
)

// Signer computes the gateway token for each operation: an HMAC-SHA256 over
// a canonical concatenation of the operation's fields, base64-encoded. The
// field order is the protocol; it is reproduced here verbatim, one canonical
// builder per operation.
type Signer struct {
	merchantID   string
	merchantKey  []byte
	merchantSalt string
}

// NewSigner validates the gateway-issued credentials up front.
func NewSigner(merchantID, merchantKey, merchantSalt string) (*Signer, error) {
	merchantID = strings.TrimSpace(merchantID)
	merchantKey = strings.TrimSpace(merchantKey)
	merchantSalt = strings.TrimSpace(merchantSalt)
	if merchantID == "" || merchantKey == "" || merchantSalt == "" {
		return nil, ErrMissingCredentials
	}
	return &Signer{
		merchantID:   merchantID,
		merchantKey:  []byte(merchantKey),
		merchantSalt: merchantSalt,
	}, nil
}

// PaymentRequest carries the fields material to the initiate-payment token.
type PaymentRequest struct {
	ClientIP     string
	OrderRef     string
	Email        string
	Amount       float64
	PaymentType  string
	Installments int
	Currency     string
	TestMode     bool
	Non3D        bool
}

// InitiateToken signs an initiate-payment request.
func (s *Signer) InitiateToken(req PaymentRequest) (string, error) {
	canonical, err := s.initiateCanonical(req)
	if err != nil {
		return "", err
	}
	return s.sign(canonical), nil
}

func (s *Signer) initiateCanonical(req PaymentRequest) (string, error) {
	if strings.TrimSpace(req.OrderRef) == "" || strings.TrimSpace(req.Email) == "" {
		return "", fmt.Errorf("%w: order reference and email", ErrMissingField)
	}
	amount, err := formatAmount(req.Amount)
	if err != nil {
		return "", err
	}
	return s.merchantID +
		req.ClientIP +
		req.OrderRef +
		req.Email +
		amount +
		req.PaymentType +
		strconv.Itoa(req.Installments) +
		req.Currency +
		flag(req.TestMode) +
		flag(req.Non3D) +
		s.merchantSalt, nil
}

// PaymentLink carries the fields material to the create-payment-link token.
type PaymentLink struct {
	Name            string
	Price           float64
	Currency        string
	MaxInstallments int
	LinkType        string
	Lang            string
}

// LinkCreateToken signs a create-payment-link request.
func (s *Signer) LinkCreateToken(link PaymentLink) (string, error) {
	canonical, err := s.linkCreateCanonical(link)
	if err != nil {
		return "", err
	}
	return s.sign(canonical), nil
}

func (s *Signer) linkCreateCanonical(link PaymentLink) (string, error) {
	if strings.TrimSpace(link.Name) == "" {
		return "", fmt.Errorf("%w: link name", ErrMissingField)
	}
	price, err := formatAmount(link.Price)
	if err != nil {
		return "", err
	}
	return s.merchantID +
		link.Name +
		price +
		link.Currency +
		strconv.Itoa(link.MaxInstallments) +
		link.LinkType +
		link.Lang +
		s.merchantSalt, nil
}

// LinkDeleteToken signs a delete-payment-link request. Note the different
// field order: the link id leads, the merchant id follows.
func (s *Signer) LinkDeleteToken(linkID string) (string, error) {
	linkID = strings.TrimSpace(linkID)
	if linkID == "" {
		return "", fmt.Errorf("%w: link id", ErrMissingField)
	}
	return s.sign(linkID + s.merchantID + s.merchantSalt), nil
}

// CallbackToken computes the token the gateway attaches to its callback.
// Exposed so both sides of the exchange share one canonical definition.
// The amount is taken as the gateway formatted it, never re-parsed.
func (s *Signer) CallbackToken(orderRef, status, totalAmount string) string {
	return s.sign(orderRef + s.merchantSalt + status + totalAmount)
}

// VerifyCallback recomputes the callback token from the received fields and
// compares it with the received one in constant time.
func (s *Signer) VerifyCallback(orderRef, status, totalAmount, receivedToken string) bool {
	expected := s.CallbackToken(orderRef, status, totalAmount)
	return hmac.Equal([]byte(expected), []byte(receivedToken))
}

func (s *Signer) sign(canonical string) string {
	mac := hmac.New(sha256.New, s.merchantKey)
	mac.Write([]byte(canonical))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// formatAmount renders a monetary amount with exactly two decimal digits,
// independent of locale. A comma decimal separator leaking in here would
// produce tokens the gateway rejects.
func formatAmount(v float64) (string, error) {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return "", ErrInvalidAmount
	}
	return strconv.FormatFloat(v, 'f', 2, 64), nil
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
