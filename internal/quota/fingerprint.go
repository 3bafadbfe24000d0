package quota

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
)

// Fingerprint derives a stable guest identifier from the client IP.
// Only server-observed values are used; client-supplied identifiers
// (cookies, headers other than the proxy chain) never participate, so a
// guest cannot mint fresh quota by editing their request.
func Fingerprint(r *http.Request) string {
	ip := clientIP(r)
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:])
}

// clientIP extracts the client IP: first hop of X-Forwarded-For when
// present, else the RemoteAddr host.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if parts := strings.SplitN(xff, ",", 2); len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
