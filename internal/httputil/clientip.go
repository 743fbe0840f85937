package httputil

import (
	"net"
	"net/http"
	"strings"
)

// proxyHeaders are consulted in order when the service runs behind a
// trusted reverse proxy.
var proxyHeaders = []string{"X-Forwarded-For", "X-Real-IP"}

// ClientIP resolves the originating client address for a request, used to
// key per-client rate limiting. Proxy headers are honored only when
// trustProxy is set; otherwise a client could spoof its own bucket.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		for _, h := range proxyHeaders {
			if ip := firstHop(r.Header.Get(h)); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// firstHop returns the leftmost entry of a comma-separated header value,
// which in an X-Forwarded-For chain is the original client.
func firstHop(v string) string {
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}
