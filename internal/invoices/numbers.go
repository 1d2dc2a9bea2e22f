package invoices

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sequencer hands out monotonically increasing values per scope.
type Sequencer interface {
	NextSequence(ctx context.Context, scope string) (int64, error)
}

// NumberGenerator builds invoice and credit note numbers.
type NumberGenerator struct {
	seq Sequencer
}

func NewNumberGenerator(seq Sequencer) *NumberGenerator {
	return &NumberGenerator{seq: seq}
}

// Next returns PREFIX-YYYY-<first 8 chars of the order id>-<sequence>. The
// sequence is shared by every document with the same prefix and year.
func (g *NumberGenerator) Next(ctx context.Context, prefix string, orderID uuid.UUID, at time.Time) (string, error) {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		return "", fmt.Errorf("number prefix required")
	}
	year := at.UTC().Year()
	n, err := g.seq.NextSequence(ctx, fmt.Sprintf("%s-%d", strings.ToLower(prefix), year))
	if err != nil {
		return "", fmt.Errorf("next %s sequence: %w", prefix, err)
	}
	fragment := strings.ToUpper(strings.ReplaceAll(orderID.String(), "-", "")[:8])
	return fmt.Sprintf("%s-%d-%s-%06d", prefix, year, fragment, n), nil
}
