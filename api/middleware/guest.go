package middleware

import (
	"net/http"
	"strings"
)

// GuestTokenHeader carries the opaque token identifying an anonymous cart.
const GuestTokenHeader = "X-Guest-Token"

// GuestToken returns the trimmed guest token sent by the client, if any.
func GuestToken(r *http.Request) string {
	if r == nil {
		return ""
	}
	return strings.TrimSpace(r.Header.Get(GuestTokenHeader))
}
