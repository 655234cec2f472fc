package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/tally/pkg/autherr"
	"github.com/aussiebroadwan/tally/pkg/jwtx"
	"github.com/aussiebroadwan/tally/pkg/slogx"
)

// Authenticator resolves a bearer token to its claims, including any
// revocation check.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*jwtx.Claims, error)
}

// AuthnMiddleware rejects requests without a valid bearer access token and
// stores the verified claims in the request context.
func AuthnMiddleware(a Authenticator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			raw, ok := BearerToken(r)
			if !ok {
				writeBearerError(w, "missing bearer token")
				return
			}

			claims, err := a.Authenticate(ctx, raw)
			if err != nil {
				desc := "token verification failed"
				if errors.Is(err, autherr.ErrExpired) {
					desc = "token expired"
				}
				slogx.FromContext(ctx).Debug("bearer token rejected", "err", err)
				writeBearerError(w, desc)
				return
			}

			ctx = WithClaims(ctx, claims, raw)
			ctx = slogx.WithUser(ctx, claims.UserID, claims.SessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(authz, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RFC 6750 error response for bearer auth.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteError(w, http.StatusUnauthorized, "invalid_token", desc)
}
