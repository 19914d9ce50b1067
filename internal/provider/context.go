package provider

import (
	"context"
	"net/http"
)

type contextKey int

const (
	bearerTokenKey contextKey = iota
	inboundHeadersKey
)

// WithBearerToken attaches the caller's own bearer token to ctx, so a
// provider configured with forward_token: true can relay it upstream
// instead of using a statically configured key (spec.md §4.2 "forward the
// caller's credential").
func WithBearerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, bearerTokenKey, token)
}

// BearerTokenFromContext retrieves the token set by WithBearerToken.
func BearerTokenFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(bearerTokenKey).(string)
	return v, ok && v != ""
}

// WithInboundHeaders attaches the caller's original request headers to ctx,
// so "forward" header rules can read from them when building the outbound
// upstream request.
func WithInboundHeaders(ctx context.Context, h http.Header) context.Context {
	return context.WithValue(ctx, inboundHeadersKey, h)
}

// InboundHeadersFromContext retrieves the headers set by WithInboundHeaders.
func InboundHeadersFromContext(ctx context.Context) (http.Header, bool) {
	v, ok := ctx.Value(inboundHeadersKey).(http.Header)
	return v, ok
}
