package enums

import "fmt"

// InvoiceStatus tracks whether an invoice is still in force.
type InvoiceStatus string

const (
	InvoiceStatusActive InvoiceStatus = "active"
	// InvoiceStatusVoided is terminal; a voided invoice is offset by a credit note.
	InvoiceStatusVoided InvoiceStatus = "voided"
)

var validInvoiceStatuses = []InvoiceStatus{
	InvoiceStatusActive,
	InvoiceStatusVoided,
}

// String implements fmt.Stringer.
func (s InvoiceStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known InvoiceStatus.
func (s InvoiceStatus) IsValid() bool {
	for _, candidate := range validInvoiceStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseInvoiceStatus converts raw input into a InvoiceStatus.
func ParseInvoiceStatus(value string) (InvoiceStatus, error) {
	for _, candidate := range validInvoiceStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid invoice status %q", value)
}
