package notifications

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderflow-backend/pkg/config"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox/payloads"
)

type recordingClient struct {
	sent   []*mail.SGMailV3
	status int
	err    error
}

func (c *recordingClient) SendWithContext(_ context.Context, email *mail.SGMailV3) (*rest.Response, error) {
	c.sent = append(c.sent, email)
	if c.err != nil {
		return nil, c.err
	}
	return &rest.Response{StatusCode: c.status, Body: "rejected"}, nil
}

func sampleOrder() payloads.OrderCreatedEvent {
	return payloads.OrderCreatedEvent{
		OrderID:    uuid.MustParse("8d3b7c1e-0000-4000-8000-000000000001"),
		UserID:     uuid.New(),
		TotalCents: 2000,
		Currency:   enums.CurrencyUSD,
		Items: []payloads.OrderLine{
			{ProductID: uuid.New(), Name: "Tea <Green>", Quantity: 2, UnitPriceCents: 1000},
		},
	}
}

func TestSendgridSenderBuildsMessage(t *testing.T) {
	client := &recordingClient{status: 202}
	sender := newSendgridSender(client, config.SendgridConfig{DefaultFrom: "orders@shop.test", FromName: "Shop"})

	err := sender.SendOrderConfirmation(context.Background(), Recipient{Email: "ada@example.com", Name: "Ada"}, sampleOrder())
	require.NoError(t, err)
	require.Len(t, client.sent, 1)

	msg := client.sent[0]
	require.Equal(t, "orders@shop.test", msg.From.Address)
	require.Equal(t, "Order confirmation #8D3B7C1E", msg.Subject)
	require.Equal(t, "ada@example.com", msg.Personalizations[0].To[0].Address)
	require.Len(t, msg.Content, 2)
	require.Contains(t, msg.Content[0].Value, "2 x Tea <Green>  20.00 USD")
	require.Contains(t, msg.Content[1].Value, "Tea &lt;Green&gt;")
}

func TestSendgridSenderErrors(t *testing.T) {
	rejected := newSendgridSender(&recordingClient{status: 400}, config.SendgridConfig{DefaultFrom: "orders@shop.test"})
	err := rejected.SendOrderConfirmation(context.Background(), Recipient{Email: "ada@example.com"}, sampleOrder())
	require.ErrorContains(t, err, "status 400")

	broken := newSendgridSender(&recordingClient{err: errors.New("dial tcp")}, config.SendgridConfig{DefaultFrom: "orders@shop.test"})
	err = broken.SendOrderConfirmation(context.Background(), Recipient{Email: "ada@example.com"}, sampleOrder())
	require.ErrorContains(t, err, "dial tcp")

	err = broken.SendOrderConfirmation(context.Background(), Recipient{}, sampleOrder())
	require.ErrorContains(t, err, "recipient email required")
}

func TestNewSendgridSenderRequiresKey(t *testing.T) {
	_, err := NewSendgridSender(config.SendgridConfig{})
	require.Error(t, err)
}

func TestLogSenderNeverFails(t *testing.T) {
	var buf bytes.Buffer
	sender := NewLogSender(logger.New(logger.Options{ServiceName: "test", Output: &buf}))
	require.NoError(t, sender.SendOrderConfirmation(context.Background(), Recipient{Email: "ada@example.com"}, sampleOrder()))
	require.Contains(t, buf.String(), "email.order_confirmation.logged")
}
