package notify

import (
	"context"
	"time"

	"menuqr.app/internal/obs"
)

// Deliverer hands a verification code to the recipient over an out-of-band
// channel (email, SMS). Delivery is fire-and-forget from the issuer's point
// of view: a failure is reported but never un-issues the stored code.
type Deliverer interface {
	Deliver(ctx context.Context, recipient, code, purpose string) error
}

// LogSender writes the delivery as a structured log line. It stands in for a
// real email/SMS provider in development and tests.
type LogSender struct{}

var _ Deliverer = LogSender{}

func (LogSender) Deliver(_ context.Context, recipient, code, purpose string) error {
	obs.LogEvent(map[string]any{
		"ts":        time.Now().UTC().Format(time.RFC3339Nano),
		"type":      "notify",
		"purpose":   purpose,
		"recipient": recipient,
		"code":      code,
	})
	return nil
}
