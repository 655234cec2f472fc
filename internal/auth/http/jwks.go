package http

import (
	"net/http"

	"github.com/aussiebroadwan/tally/pkg/authsdk"
	"github.com/aussiebroadwan/tally/pkg/httpx"
	"github.com/aussiebroadwan/tally/pkg/jwtx"
	"github.com/aussiebroadwan/tally/pkg/slogx"
)

// JWKSHandler exposes the JSON Web Key Set for public key discovery.
func JWKSHandler(tokens *jwtx.TokenService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		set, err := tokens.JWKS()
		if err != nil {
			slogx.FromContext(r.Context()).Error("failed to load signing keys", "err", err)
			authsdk.ErrServerError.WriteError(w)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, authsdk.JWKSResponse(set))
	}
}
