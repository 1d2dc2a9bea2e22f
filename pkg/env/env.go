package env

import (
	"os"
	"strings"
)

// First returns the first non-blank value among keys, or fallback.
// Keys are checked in order so a namespaced ORDERFLOW_ variable can shadow a
// platform-provided one such as PORT.
func First(fallback string, keys ...string) string {
	for _, key := range keys {
		if val := strings.TrimSpace(os.Getenv(key)); val != "" {
			return val
		}
	}
	return fallback
}
