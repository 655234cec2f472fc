package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/tally/internal/auth/store"
	"github.com/aussiebroadwan/tally/pkg/authsdk"
	"github.com/aussiebroadwan/tally/pkg/httpx"
	"github.com/aussiebroadwan/tally/pkg/jwtx"
	"github.com/aussiebroadwan/tally/pkg/slogx"
)

// ReadyzHandler reports 503 until the database, the cache and the signing
// keys are all usable.
func ReadyzHandler(
	startTime time.Time,
	version string,
	st store.Store,
	cache store.Cache,
	tokens *jwtx.TokenService,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		log := slogx.FromContext(ctx)

		checks := &authsdk.HealthChecks{
			Database: "ok",
			Cache:    "ok",
			Signer:   "ok",
		}
		overallStatus := "ok"
		statusCode := http.StatusOK
		degrade := func(check *string, component string, err error) {
			log.Warn("readiness check failed", "component", component, "err", err)
			*check = "error"
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		if err := st.Ping(ctx); err != nil {
			degrade(&checks.Database, "database", err)
		}
		if err := cache.Ping(ctx); err != nil {
			degrade(&checks.Cache, "cache", err)
		}
		if _, err := tokens.JWKS(); err != nil {
			degrade(&checks.Signer, "signer", err)
		}

		response := authsdk.HealthResponse{
			Status:  overallStatus,
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  checks,
		}
		httpx.WriteJSON(w, statusCode, response)
	}
}
