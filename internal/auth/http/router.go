package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/tally/internal/auth/service"
	"github.com/aussiebroadwan/tally/internal/auth/store"
	"github.com/aussiebroadwan/tally/pkg/httpx"
	"github.com/aussiebroadwan/tally/pkg/jwtx"
	"github.com/aussiebroadwan/tally/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	tokens       *jwtx.TokenService
	limits       httpx.RateLimits
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store          store.Store
	cache          store.Cache
	LoginService   *service.LoginService
	AccountService *service.AccountService
	MFAService     *service.MFAService
}

func NewRouter(
	tokens *jwtx.TokenService,
	limits httpx.RateLimits,
	buildVersion string,
	st store.Store,
	cache store.Cache,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		tokens:       tokens,
		limits:       limits.WithDefaults(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		cache:        cache,
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

// ApplyRoutes registers every endpoint. The service fields must be set first.
func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerMFA()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{
		Logins:   r.LoginService,
		Accounts: r.AccountService,
		MFA:      r.MFAService,
	}

	// Credential endpoints - strict rate limit by IP (brute force)
	r.Mux.Handle("POST /v1/auth/register",
		httpx.Chain(http.HandlerFunc(h.HandleRegister),
			httpx.RateLimitByIP(r.limits.Strict),
		),
	)
	r.Mux.Handle("POST /v1/auth/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIP(r.limits.Strict),
		),
	)
	r.Mux.Handle("POST /v1/auth/mfa/verify",
		httpx.Chain(http.HandlerFunc(h.HandleVerifyMFA),
			httpx.RateLimitByIP(r.limits.Strict),
		),
	)

	// Token lifecycle - moderate rate limit by IP
	r.Mux.Handle("POST /v1/auth/refresh",
		httpx.Chain(http.HandlerFunc(h.HandleRefresh),
			httpx.RateLimitByIP(r.limits.Moderate),
		),
	)
	r.Mux.Handle("POST /v1/auth/logout",
		httpx.Chain(http.HandlerFunc(h.HandleLogout),
			httpx.RateLimitByIP(r.limits.Moderate),
		),
	)

	r.Mux.Handle("GET /v1/auth/me",
		httpx.Chain(http.HandlerFunc(h.HandleMe),
			httpx.AuthnMiddleware(r.LoginService),
			httpx.RateLimitByUser(r.limits.Lenient),
		),
	)

	// POST /v1/auth/password - strict, it verifies the current password
	r.Mux.Handle("POST /v1/auth/password",
		httpx.Chain(http.HandlerFunc(h.HandleChangePassword),
			httpx.AuthnMiddleware(r.LoginService),
			httpx.RateLimitByUser(r.limits.Strict),
		),
	)
}

func (r *Router) registerMFA() {
	h := &MFAHandler{MFAService: r.MFAService}

	secured := func(fn http.HandlerFunc, limit httpx.RateLimitConfig) http.Handler {
		return httpx.Chain(fn,
			httpx.AuthnMiddleware(r.LoginService),
			httpx.RateLimitByUser(limit),
		)
	}

	r.Mux.Handle("POST /v1/mfa/totp/enroll", secured(h.HandleEnroll, r.limits.Moderate))

	// Endpoints that check a TOTP code - strict rate limit by user
	r.Mux.Handle("POST /v1/mfa/totp/confirm", secured(h.HandleConfirm, r.limits.Strict))
	r.Mux.Handle("POST /v1/mfa/backup-codes", secured(h.HandleRegenerateBackupCodes, r.limits.Strict))
	r.Mux.Handle("DELETE /v1/mfa/totp", secured(h.HandleRemove, r.limits.Strict))
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /.well-known/jwks.json",
		httpx.Chain(JWKSHandler(r.tokens),
			httpx.RateLimitByIP(r.limits.Lenient),
		),
	)

	// Health check endpoints - lenient rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(r.limits.Lenient),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.cache, r.tokens),
			httpx.RateLimitByIP(r.limits.Lenient),
		),
	)
}
