package token

import (
	"net/http"
	"strings"
)

// FromRequest extracts the credential of r: the token query parameter,
// falling back to the Authorization header with an optional Bearer prefix.
// Browsers cannot set headers on websocket upgrades, hence the query parameter.
func FromRequest(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return h
}
