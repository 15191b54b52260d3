package middleware

import (
	"context"
	"net/http"
	"net/netip"
	"strings"

	"github.com/mssola/useragent"
)

// maxForwardedHeaderLength bounds X-Forwarded-For and X-Real-IP values to
// keep oversized headers from reaching the audit trail.
const maxForwardedHeaderLength = 500

type clientIPKey struct{}
type userAgentKey struct{}

// GetClientIP retrieves the client IP recorded by ClientMetadata.
func GetClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey{}).(string); ok {
		return ip
	}
	return ""
}

// GetUserAgent retrieves the raw User-Agent recorded by ClientMetadata.
func GetUserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(userAgentKey{}).(string); ok {
		return ua
	}
	return ""
}

// ClientMetadata extracts the client IP and User-Agent from each request and
// stores them in the context. Anonymous visitors are identified by IP alone,
// so the extracted address doubles as the consent subject key when no user is
// authenticated.
//
// X-Forwarded-For and X-Real-IP are only honored when the direct peer is in
// trustedProxies; otherwise RemoteAddr wins. With no trusted proxies
// configured, forwarding headers are ignored entirely.
func ClientMetadata(trustedProxies []netip.Prefix) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ctx = context.WithValue(ctx, clientIPKey{}, extractClientIP(r, trustedProxies))
			ctx = context.WithValue(ctx, userAgentKey{}, r.Header.Get("User-Agent"))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractClientIP(r *http.Request, trustedProxies []netip.Prefix) string {
	remoteIP := stripPort(r.RemoteAddr)
	if remoteIP == "" {
		return "unknown"
	}
	if !isTrustedProxy(remoteIP, trustedProxies) {
		return remoteIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" && len(xff) <= maxForwardedHeaderLength {
		// First address in the chain is the original client.
		first, _, _ := strings.Cut(xff, ",")
		candidate := strings.TrimSpace(first)
		if _, err := netip.ParseAddr(candidate); err == nil {
			return candidate
		}
		return remoteIP
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" && len(xri) <= maxForwardedHeaderLength {
		candidate := strings.TrimSpace(xri)
		if _, err := netip.ParseAddr(candidate); err == nil {
			return candidate
		}
	}

	return remoteIP
}

func isTrustedProxy(ip string, trusted []netip.Prefix) bool {
	if len(trusted) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	for _, prefix := range trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// stripPort extracts the IP from a RemoteAddr-style host:port string.
func stripPort(remoteAddr string) string {
	if remoteAddr == "" {
		return ""
	}

	// IPv6 with brackets: [::1]:port
	if strings.HasPrefix(remoteAddr, "[") {
		if idx := strings.LastIndex(remoteAddr, "]"); idx != -1 {
			return remoteAddr[1:idx]
		}
		return strings.Trim(remoteAddr, "[]")
	}

	if idx := strings.LastIndex(remoteAddr, ":"); idx != -1 {
		return remoteAddr[:idx]
	}
	return remoteAddr
}

// SummarizeUserAgent reduces a raw User-Agent string to "Browser on OS" for
// log output and audit metadata. The raw string still travels with the
// consent record.
func SummarizeUserAgent(raw string) string {
	if raw == "" {
		return "Unknown Device"
	}

	ua := useragent.New(raw)
	browser, _ := ua.Browser()
	os := ua.OS()

	if ua.Mobile() {
		if platform := ua.Platform(); platform != "" {
			return strings.TrimSpace(browser + " on " + platform)
		}
	}

	if browser == "" {
		browser = "Unknown Browser"
	}
	if os == "" {
		os = "Unknown OS"
	}
	return strings.TrimSpace(browser + " on " + os)
}
