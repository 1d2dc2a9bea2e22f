package stripe

import (
	"errors"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"
)

// DefaultSignatureTolerance is how old a signed webhook timestamp may be.
const DefaultSignatureTolerance = webhook.DefaultTolerance

// VerifyWebhook checks the Stripe-Signature header against the raw payload
// and only then decodes the event. The API version pinned by the account may
// differ from the library's, so the version check is skipped.
func (c *Client) VerifyWebhook(payload []byte, signature string) (stripe.Event, error) {
	if c == nil || c.signingSecret == "" {
		return stripe.Event{}, errSecretRequired
	}
	if signature == "" {
		return stripe.Event{}, errors.New("stripe signature missing")
	}
	return webhook.ConstructEventWithOptions(payload, signature, c.signingSecret, webhook.ConstructEventOptions{
		Tolerance:                DefaultSignatureTolerance,
		IgnoreAPIVersionMismatch: true,
	})
}

// SignPayload produces a v1 Stripe-Signature header for payload. Used by
// tests and local tooling that replays events.
func SignPayload(payload []byte, secret string, at time.Time) string {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: at,
	})
	return signed.Header
}
