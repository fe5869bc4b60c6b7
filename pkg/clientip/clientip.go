package clientip

import (
	"net"
	"net/http"
	"strings"
)

// RealClientIP returns the client IP from the request.
// Uses r.RemoteAddr only (no proxy headers). Use for rate limiting and logging
// when traffic goes directly to the app.
func RealClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return strings.TrimSpace(host)
}

// Key adapts RealClientIP to the key function shape used by rate limiters.
// IPv6 clients are grouped by their /64 prefix.
func Key(r *http.Request) (string, error) {
	ip := RealClientIP(r)
	parsed := net.ParseIP(ip)
	if parsed == nil || parsed.To4() != nil {
		return ip, nil
	}
	return parsed.Mask(net.CIDRMask(64, 128)).String() + "/64", nil
}
