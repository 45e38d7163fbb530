package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

// ClientIdentifier picks the key a request is counted under: the
// authenticated user when known, otherwise the best available client address.
func ClientIdentifier(r *http.Request, userID string) string {
	if userID != "" {
		return "user:" + userID
	}

	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return "ip:" + ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return "ip:" + ip
	}
	if r.RemoteAddr != "" {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if host != "" {
			return "ip:" + host
		}
	}
	return "ip:unknown"
}
