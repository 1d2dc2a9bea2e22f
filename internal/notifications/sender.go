// Package notifications delivers customer emails for outbox events.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/orderflow-backend/pkg/config"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox/payloads"
)

// Recipient is the person an email is addressed to.
type Recipient struct {
	Email string
	Name  string
}

// Sender delivers transactional email.
type Sender interface {
	SendOrderConfirmation(ctx context.Context, to Recipient, order payloads.OrderCreatedEvent) error
}

type mailClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendgridSender sends email through the SendGrid v3 API.
type SendgridSender struct {
	client   mailClient
	from     string
	fromName string
}

func NewSendgridSender(cfg config.SendgridConfig) (*SendgridSender, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("sendgrid api key required")
	}
	return newSendgridSender(sendgrid.NewSendClient(cfg.APIKey), cfg), nil
}

func newSendgridSender(client mailClient, cfg config.SendgridConfig) *SendgridSender {
	return &SendgridSender{client: client, from: cfg.DefaultFrom, fromName: cfg.FromName}
}

func (s *SendgridSender) SendOrderConfirmation(ctx context.Context, to Recipient, order payloads.OrderCreatedEvent) error {
	if strings.TrimSpace(to.Email) == "" {
		return errors.New("recipient email required")
	}
	subject := fmt.Sprintf("Order confirmation #%s", shortID(order.OrderID.String()))
	plain, rich := confirmationBody(to, order)
	message := mail.NewSingleEmail(
		mail.NewEmail(s.fromName, s.from),
		subject,
		mail.NewEmail(to.Name, to.Email),
		plain,
		rich,
	)

	resp, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid send: status %d: %s", resp.StatusCode, strings.TrimSpace(resp.Body))
	}
	return nil
}

func confirmationBody(to Recipient, order payloads.OrderCreatedEvent) (string, string) {
	greeting := "Hello"
	if name := strings.TrimSpace(to.Name); name != "" {
		greeting = "Hello " + name
	}

	var plain, rich strings.Builder
	fmt.Fprintf(&plain, "%s,\n\nThanks for your order %s.\n\n", greeting, order.OrderID)
	fmt.Fprintf(&rich, "<p>%s,</p><p>Thanks for your order <strong>%s</strong>.</p><ul>", html.EscapeString(greeting), order.OrderID)
	for _, line := range order.Items {
		amount := money(line.UnitPriceCents*int64(line.Quantity), string(order.Currency))
		fmt.Fprintf(&plain, "  %d x %s  %s\n", line.Quantity, line.Name, amount)
		fmt.Fprintf(&rich, "<li>%d &times; %s &mdash; %s</li>", line.Quantity, html.EscapeString(line.Name), amount)
	}
	total := money(order.TotalCents, string(order.Currency))
	fmt.Fprintf(&plain, "\nTotal: %s\n", total)
	fmt.Fprintf(&rich, "</ul><p>Total: <strong>%s</strong></p>", total)
	return plain.String(), rich.String()
}

func money(cents int64, currency string) string {
	return decimal.New(cents, -2).StringFixed(2) + " " + currency
}

func shortID(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > 8 {
		id = id[:8]
	}
	return strings.ToUpper(id)
}

// LogSender writes confirmations to the log instead of sending them. It is
// used when no SendGrid key is configured.
type LogSender struct {
	logg *logger.Logger
}

func NewLogSender(logg *logger.Logger) *LogSender {
	return &LogSender{logg: logg}
}

func (s *LogSender) SendOrderConfirmation(ctx context.Context, to Recipient, order payloads.OrderCreatedEvent) error {
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"to":          to.Email,
		"order_id":    order.OrderID.String(),
		"total_cents": order.TotalCents,
	}), "email.order_confirmation.logged")
	return nil
}
