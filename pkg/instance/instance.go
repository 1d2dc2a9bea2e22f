package instance

import (
	"os"
	"strings"
)

const fallbackID = "orderflow-0"

// ID identifies this process in logs and dispatcher metrics.
// ORDERFLOW_INSTANCE_ID wins, then the hostname.
func ID() string {
	if id := strings.TrimSpace(os.Getenv("ORDERFLOW_INSTANCE_ID")); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return fallbackID
}
