package stripe

import (
	"context"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentintent"
	"github.com/stripe/stripe-go/v84/paymentmethod"
	"github.com/stripe/stripe-go/v84/refund"
)

// DefaultPaymentMethodType is the method type every intent is created with.
const DefaultPaymentMethodType = "card"

// CreateIntentInput describes a card payment intent for an order.
type CreateIntentInput struct {
	AmountCents    int64
	Currency       string
	Metadata       map[string]string
	IdempotencyKey string
	CustomerID     string
}

// Intent is the subset of a Stripe PaymentIntent the orchestrator persists.
type Intent struct {
	ID            string
	ClientSecret  string
	Status        string
	PaymentMethod string
}

// RefundResult is the subset of a Stripe Refund returned to callers.
type RefundResult struct {
	ID     string
	Status string
}

// PaymentMethodDetails carries display-only card details.
type PaymentMethodDetails struct {
	ID       string
	Brand    string
	Last4    string
	ExpMonth int
	ExpYear  int
}

// Gateway adapts Stripe's API to the payment operations the services use.
type Gateway struct {
	client *Client
}

// NewGateway wraps an initialized client.
func NewGateway(client *Client) (*Gateway, error) {
	if client == nil {
		return nil, errors.New("stripe client required")
	}
	return &Gateway{client: client}, nil
}

// CreateIntent creates a PaymentIntent. The idempotency key is forwarded so a
// retried call with the same key returns Stripe's original intent.
func (g *Gateway) CreateIntent(ctx context.Context, input CreateIntentInput) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(input.AmountCents),
		Currency:           stripe.String(strings.ToLower(input.Currency)),
		PaymentMethodTypes: stripe.StringSlice([]string{DefaultPaymentMethodType}),
	}
	if input.CustomerID != "" {
		params.Customer = stripe.String(input.CustomerID)
	}
	for k, v := range input.Metadata {
		params.AddMetadata(k, v)
	}
	if input.IdempotencyKey != "" {
		params.SetIdempotencyKey(input.IdempotencyKey)
	}
	params.Context = ctx

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, err
	}
	intent := &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
	}
	if len(pi.PaymentMethodTypes) > 0 {
		intent.PaymentMethod = pi.PaymentMethodTypes[0]
	}
	return intent, nil
}

// Refund issues a full refund for the given PaymentIntent id.
func (g *Gateway) Refund(ctx context.Context, paymentIntentID, idempotencyKey string) (*RefundResult, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentIntentID),
	}
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}
	params.Context = ctx

	r, err := refund.New(params)
	if err != nil {
		return nil, err
	}
	return &RefundResult{ID: r.ID, Status: string(r.Status)}, nil
}

// GetPaymentMethodDetails fetches brand/last4/expiry for a payment method.
func (g *Gateway) GetPaymentMethodDetails(ctx context.Context, id string) (*PaymentMethodDetails, error) {
	params := &stripe.PaymentMethodParams{}
	params.Context = ctx
	pm, err := paymentmethod.Get(id, params)
	if err != nil {
		return nil, err
	}
	return toDetails(pm), nil
}

// ListPaymentMethods lists the card payment methods attached to a customer.
func (g *Gateway) ListPaymentMethods(ctx context.Context, customerID string) ([]PaymentMethodDetails, error) {
	params := &stripe.PaymentMethodListParams{
		Customer: stripe.String(customerID),
		Type:     stripe.String("card"),
	}
	params.Context = ctx

	out := []PaymentMethodDetails{}
	iter := paymentmethod.List(params)
	for iter.Next() {
		out = append(out, *toDetails(iter.PaymentMethod()))
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// DetachPaymentMethod detaches a payment method from its customer.
func (g *Gateway) DetachPaymentMethod(ctx context.Context, id string) error {
	params := &stripe.PaymentMethodDetachParams{}
	params.Context = ctx
	_, err := paymentmethod.Detach(id, params)
	return err
}

// VerifyWebhook delegates to the client's signing secret.
func (g *Gateway) VerifyWebhook(payload []byte, signature string) (stripe.Event, error) {
	return g.client.VerifyWebhook(payload, signature)
}

func toDetails(pm *stripe.PaymentMethod) *PaymentMethodDetails {
	details := &PaymentMethodDetails{ID: pm.ID}
	if pm.Card != nil {
		details.Brand = string(pm.Card.Brand)
		details.Last4 = pm.Card.Last4
		details.ExpMonth = int(pm.Card.ExpMonth)
		details.ExpYear = int(pm.Card.ExpYear)
	}
	return details
}
