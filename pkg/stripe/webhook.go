package stripe

import (
	"errors"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"
)

// SignatureHeader carries the webhook signature.
const SignatureHeader = "Stripe-Signature"

// VerifyEvent checks the signature and decodes the event envelope. API
// version mismatches are tolerated because only a few object fields are read.
func VerifyEvent(payload []byte, header, secret string) (stripe.Event, error) {
	if secret == "" {
		return stripe.Event{}, errors.New("stripe webhook secret is required")
	}
	return webhook.ConstructEventWithOptions(payload, header, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
}
