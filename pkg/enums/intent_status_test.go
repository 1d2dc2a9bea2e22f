package enums

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIntentStatusSources(t *testing.T) {
	cases := map[IntentStatus]struct {
		allowed []IntentStatus
		blocked []IntentStatus
	}{
		IntentStatusPaymentFailed: {
			allowed: []IntentStatus{IntentStatusRequiresPaymentMethod, IntentStatusProcessing},
			blocked: []IntentStatus{IntentStatusSucceeded, IntentStatusRefunded, IntentStatusCanceled, IntentStatusPaymentFailed},
		},
		IntentStatusSucceeded: {
			allowed: []IntentStatus{IntentStatusProcessing, IntentStatusPaymentFailed, IntentStatusRequiresAction},
			blocked: []IntentStatus{IntentStatusRefunded, IntentStatusCanceled, IntentStatusSucceeded},
		},
		IntentStatusRefunded: {
			allowed: []IntentStatus{IntentStatusSucceeded, IntentStatusPaymentFailed, IntentStatusCanceled, IntentStatusProcessing},
			blocked: []IntentStatus{IntentStatusRefunded},
		},
	}

	for target, tc := range cases {
		t.Run(target.String(), func(t *testing.T) {
			sources := IntentStatusSources(target)
			for _, from := range tc.allowed {
				require.Contains(t, sources, from)
			}
			for _, from := range tc.blocked {
				require.NotContains(t, sources, from)
			}
		})
	}
}
