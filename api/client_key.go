package api

import (
	"net"
	"net/http"
	"strings"
)

// ClientKey derives the opaque per-client identity used to shard rate-limit
// state. Proxy headers are consulted first so deployments behind a load
// balancer see real client addresses; the fallback is the connection source.
func ClientKey(r *http.Request) string {
	// X-Forwarded-For can be a comma-separated chain; the first entry is the
	// original client.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
