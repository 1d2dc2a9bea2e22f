package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"maps"
	"time"
)

// Party is a free-form seller or buyer block printed on invoices.
type Party map[string]string

// Merge returns a copy of p with every key from patch written over it.
func (p Party) Merge(patch Party) Party {
	out := make(Party, len(p)+len(patch))
	maps.Copy(out, p)
	maps.Copy(out, patch)
	return out
}

// InvoiceSnapshot is the invoice metadata captured at (re)generation time.
type InvoiceSnapshot struct {
	Seller Party  `json:"seller"`
	Buyer  Party  `json:"buyer"`
	Notes  string `json:"notes,omitempty"`
}

// Value implements driver.Valuer.
func (s InvoiceSnapshot) Value() (driver.Value, error) {
	payload, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(payload), nil
}

// Scan implements sql.Scanner.
func (s *InvoiceSnapshot) Scan(value interface{}) error {
	if value == nil {
		*s = InvoiceSnapshot{}
		return nil
	}
	raw, ok := toBytes(value)
	if !ok {
		return fmt.Errorf("invoice snapshot: unsupported scan type %T", value)
	}
	return json.Unmarshal(raw, s)
}

// HistoryEntry is one append-only record of what changed on an invoice.
type HistoryEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Action    string         `json:"action"`
	Changes   map[string]any `json:"changes,omitempty"`
}

// InvoiceHistory is stored as a jsonb array and only ever grows.
type InvoiceHistory []HistoryEntry

// Append returns a new history with entry added at the end.
func (h InvoiceHistory) Append(entry HistoryEntry) InvoiceHistory {
	out := make(InvoiceHistory, len(h), len(h)+1)
	copy(out, h)
	return append(out, entry)
}

// Value implements driver.Valuer.
func (h InvoiceHistory) Value() (driver.Value, error) {
	if h == nil {
		return "[]", nil
	}
	payload, err := json.Marshal([]HistoryEntry(h))
	if err != nil {
		return nil, err
	}
	return string(payload), nil
}

// Scan implements sql.Scanner.
func (h *InvoiceHistory) Scan(value interface{}) error {
	if value == nil {
		*h = InvoiceHistory{}
		return nil
	}
	raw, ok := toBytes(value)
	if !ok {
		return fmt.Errorf("invoice history: unsupported scan type %T", value)
	}
	var entries []HistoryEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return err
	}
	*h = entries
	return nil
}
