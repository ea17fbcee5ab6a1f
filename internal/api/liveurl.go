package api

import (
	"net/url"
	"strings"
)

// LiveURL derives the live-notification address from the REST base address:
// http becomes ws, https becomes wss, the path gains /ws and the token is
// passed as a query parameter.
func LiveURL(base, token string) string {
	base = strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws?token=" + url.QueryEscape(token)
}
