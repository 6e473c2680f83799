package util

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP resolves the peer address for request logs. The services run
// behind a single ingress that appends the caller to X-Forwarded-For, so the
// last parseable hop of that header wins; X-Real-IP and the socket peer are
// fallbacks. The result is log attribution only, never authorization.
func ClientIP(r *http.Request) string {
	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		if ip := net.ParseIP(strings.TrimSpace(hops[i])); ip != nil {
			return ip.String()
		}
	}
	if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
		return ip.String()
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
