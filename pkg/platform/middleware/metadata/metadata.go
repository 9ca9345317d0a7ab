// Package metadata records where a request came from so logs can attribute
// operator actions to a client address.
package metadata

import (
	"context"
	"net"
	"net/http"
	"strings"
)

type contextKeyClientIP struct{}

// ClientMetadata stores the connection's client IP in the request context.
// Forwarding headers are ignored. Apply it early in the chain.
func ClientMetadata(next http.Handler) http.Handler {
	return clientMetadata(next, RemoteIP)
}

// ProxiedClientMetadata is ClientMetadata for servers behind a proxy that sets
// X-Forwarded-For or X-Real-IP. Clients reaching the server directly can forge
// those headers.
func ProxiedClientMetadata(next http.Handler) http.Handler {
	return clientMetadata(next, ClientIPFromRequest)
}

func clientMetadata(next http.Handler, resolve func(*http.Request) string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithClientIP(r.Context(), resolve(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, contextKeyClientIP{}, ip)
}

func GetClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(contextKeyClientIP{}).(string); ok {
		return ip
	}
	return ""
}

// ClientIPFromRequest prefers the first X-Forwarded-For hop, then X-Real-IP,
// then the connection's remote address.
func ClientIPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	return RemoteIP(r)
}

// RemoteIP is the host part of the connection's remote address.
func RemoteIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
