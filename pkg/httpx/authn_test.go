package httpx_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aussiebroadwan/tally/pkg/autherr"
	"github.com/aussiebroadwan/tally/pkg/httpx"
	"github.com/aussiebroadwan/tally/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

type authenticatorFunc func(ctx context.Context, token string) (*jwtx.Claims, error)

func (f authenticatorFunc) Authenticate(ctx context.Context, token string) (*jwtx.Claims, error) {
	return f(ctx, token)
}

func TestAuthnMiddleware(t *testing.T) {
	auth := authenticatorFunc(func(_ context.Context, token string) (*jwtx.Claims, error) {
		switch token {
		case "good":
			return &jwtx.Claims{UserID: "u-1", SessionID: "s-1", Type: jwtx.TokenTypeAccess}, nil
		case "expired":
			return nil, autherr.New(autherr.KindExpired, "test", "expired")
		default:
			return nil, autherr.New(autherr.KindInvalidToken, "test", "bad")
		}
	})

	var seen *jwtx.Claims
	var seenToken string
	h := httpx.AuthnMiddleware(auth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = httpx.ClaimsFromContext(r.Context())
		seenToken = httpx.TokenFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name     string
		header   string
		wantCode int
		wantDesc string
	}{
		{"valid", "Bearer good", http.StatusNoContent, ""},
		{"case-insensitive scheme", "bearer good", http.StatusNoContent, ""},
		{"missing header", "", http.StatusUnauthorized, "missing bearer token"},
		{"basic scheme", "Basic Zm9vOmJhcg==", http.StatusUnauthorized, "missing bearer token"},
		{"empty token", "Bearer   ", http.StatusUnauthorized, "missing bearer token"},
		{"expired", "Bearer expired", http.StatusUnauthorized, "token expired"},
		{"invalid", "Bearer forged", http.StatusUnauthorized, "token verification failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen, seenToken = nil, ""
			req := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode == http.StatusUnauthorized {
				require.Contains(t, rec.Header().Get("WWW-Authenticate"), `error="invalid_token"`)
				require.Contains(t, rec.Body.String(), tt.wantDesc)
				require.Nil(t, seen)
				return
			}
			require.NotNil(t, seen)
			require.Equal(t, "u-1", seen.UserID)
			require.Equal(t, "good", seenToken)
		})
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) httpx.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := httpx.Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}), mw("outer"), mw("inner"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, []string{"outer", "inner", "handler"}, order)
}
