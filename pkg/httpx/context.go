package httpx

import (
	"context"

	"github.com/aussiebroadwan/tally/pkg/jwtx"
)

type ctxKey string

const (
	ctxKeyClaims ctxKey = "claims"
	ctxKeyToken  ctxKey = "access_token"
)

// WithClaims stores verified access-token claims and the raw token.
func WithClaims(ctx context.Context, claims *jwtx.Claims, rawToken string) context.Context {
	ctx = context.WithValue(ctx, ctxKeyClaims, claims)
	return context.WithValue(ctx, ctxKeyToken, rawToken)
}

// ClaimsFromContext returns the claims set by AuthnMiddleware.
func ClaimsFromContext(ctx context.Context) (*jwtx.Claims, bool) {
	c, ok := ctx.Value(ctxKeyClaims).(*jwtx.Claims)
	return c, ok && c != nil
}

// TokenFromContext returns the bearer token the request authenticated with.
func TokenFromContext(ctx context.Context) string {
	s, _ := ctx.Value(ctxKeyToken).(string)
	return s
}

// UserIDFromContext returns the authenticated user id, or "".
func UserIDFromContext(ctx context.Context) string {
	if c, ok := ClaimsFromContext(ctx); ok {
		return c.UserID
	}
	return ""
}
