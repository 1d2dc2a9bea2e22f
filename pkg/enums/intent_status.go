package enums

import "fmt"

// IntentStatus mirrors the payment gateway lifecycle of a payment intent.
type IntentStatus string

const (
	IntentStatusRequiresPaymentMethod IntentStatus = "requires_payment_method"
	IntentStatusRequiresConfirmation  IntentStatus = "requires_confirmation"
	IntentStatusRequiresAction        IntentStatus = "requires_action"
	IntentStatusProcessing            IntentStatus = "processing"
	IntentStatusSucceeded             IntentStatus = "succeeded"
	IntentStatusPaymentFailed         IntentStatus = "payment_failed"
	IntentStatusRefunded              IntentStatus = "refunded"
	IntentStatusCanceled              IntentStatus = "canceled"
)

var validIntentStatuses = []IntentStatus{
	IntentStatusRequiresPaymentMethod,
	IntentStatusRequiresConfirmation,
	IntentStatusRequiresAction,
	IntentStatusProcessing,
	IntentStatusSucceeded,
	IntentStatusPaymentFailed,
	IntentStatusRefunded,
	IntentStatusCanceled,
}

// String implements fmt.Stringer.
func (s IntentStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known IntentStatus.
func (s IntentStatus) IsValid() bool {
	for _, candidate := range validIntentStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IntentStatusSources lists the states a stored intent may move to target
// from. Webhooks arrive out of order, so a refunded intent never moves again
// and a succeeded one only moves to refunded.
func IntentStatusSources(target IntentStatus) []IntentStatus {
	var sources []IntentStatus
	for _, from := range validIntentStatuses {
		if from != target && from.canMoveTo(target) {
			sources = append(sources, from)
		}
	}
	return sources
}

func (s IntentStatus) canMoveTo(target IntentStatus) bool {
	switch s {
	case IntentStatusRefunded:
		return false
	case IntentStatusSucceeded, IntentStatusCanceled:
		return target == IntentStatusRefunded
	}
	return true
}

// ParseIntentStatus converts raw input into a IntentStatus.
func ParseIntentStatus(value string) (IntentStatus, error) {
	for _, candidate := range validIntentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid intent status %q", value)
}
