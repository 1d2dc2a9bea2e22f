package payments

import (
	"context"

	"github.com/angelmondragon/orderflow-backend/pkg/stripe"
)

// Gateway is the subset of the payment gateway used to create and refund intents.
type Gateway interface {
	CreateIntent(ctx context.Context, input stripe.CreateIntentInput) (*stripe.Intent, error)
	Refund(ctx context.Context, paymentIntentID, idempotencyKey string) (*stripe.RefundResult, error)
}

var _ Gateway = (*stripe.Gateway)(nil)
