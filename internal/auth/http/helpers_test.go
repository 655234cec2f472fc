package http_test

import (
	"context"
	"io"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	authhttp "github.com/aussiebroadwan/tally/internal/auth/http"
	"github.com/aussiebroadwan/tally/internal/auth/service"
	rediscache "github.com/aussiebroadwan/tally/internal/auth/store/drivers/redis"
	"github.com/aussiebroadwan/tally/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/tally/pkg/authsdk"
	"github.com/aussiebroadwan/tally/pkg/cryptox"
	"github.com/aussiebroadwan/tally/pkg/httpx"
	"github.com/aussiebroadwan/tally/pkg/jwtx"
	"github.com/aussiebroadwan/tally/pkg/otpx"
	"github.com/aussiebroadwan/tally/pkg/slogx"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const testPassword = "correct horse battery"

var testKeyPEM = sync.OnceValue(func() []byte {
	pemBytes, err := cryptox.GenerateRSAKey(2048)
	if err != nil {
		panic(err)
	}
	return pemBytes
})

type testServer struct {
	*httptest.Server
	client *authsdk.Client
	redis  *miniredis.Miniredis
	totp   *otpx.Engine
}

type serverOption func(*httpx.RateLimits)

func withStrictLimit(requests int) serverOption {
	return func(l *httpx.RateLimits) {
		l.Strict = httpx.RateLimitConfig{RequestsPerWindow: requests, Window: time.Minute, Burst: requests}
	}
}

func withLimits(limits httpx.RateLimits) serverOption {
	return func(l *httpx.RateLimits) { *l = limits }
}

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()

	st, err := sqlite.NewStore(sqlite.DSN(filepath.Join(t.TempDir(), "auth.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	mr := miniredis.RunT(t)
	cache := rediscache.NewCache(goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1}), "test")
	t.Cleanup(func() { _ = cache.Close() })

	hasher, err := cryptox.NewHasher(cryptox.DefaultHasherConfig())
	require.NoError(t, err)
	engine, err := otpx.NewEngine(otpx.DefaultConfig("Tally"), hasher)
	require.NoError(t, err)
	tokens, err := jwtx.NewTokenService(jwtx.Config{
		Issuer:   "https://auth.tally.test",
		Audience: "tally-api",
	}, jwtx.KeyMaterial{PrivateKeyPEM: testKeyPEM()})
	require.NoError(t, err)
	secrets, err := cryptox.NewSecretBox([]byte("test master key"))
	require.NoError(t, err)

	generous := httpx.RateLimitConfig{RequestsPerWindow: 1000, Window: time.Minute, Burst: 1000}
	limits := httpx.RateLimits{Strict: generous, Moderate: generous, Lenient: generous}
	for _, opt := range opts {
		opt(&limits)
	}

	logger := slogx.New(slogx.Config{Service: "auth-test", Level: "error", Output: io.Discard})
	router := authhttp.NewRouter(tokens, limits, "test", st, cache, logger)
	router.AccountService = &service.AccountService{Store: st, Hasher: hasher}
	router.MFAService = &service.MFAService{Store: st, TOTP: engine, Secrets: secrets, QR: otpx.PNGRenderer{}}
	router.LoginService = service.NewLoginService(st, cache, hasher, engine, tokens, secrets, service.LoginConfig{})
	router.ApplyRoutes()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testServer{
		Server: srv,
		client: authsdk.NewClient(srv.URL),
		redis:  mr,
		totp:   engine,
	}
}

// signUp registers email and logs in, returning the first token pair.
func (s *testServer) signUp(t *testing.T, email string) *authsdk.TokenResponse {
	t.Helper()
	ctx := context.Background()

	_, err := s.client.Register(ctx, authsdk.RegisterRequest{Email: email, Password: testPassword})
	require.NoError(t, err)

	login, err := s.client.Login(ctx, email, testPassword)
	require.NoError(t, err)
	require.Equal(t, authsdk.LoginStateAuthenticated, login.State)
	require.NotNil(t, login.Tokens)
	return login.Tokens
}

// enableMFA enrolls and confirms TOTP, returning the secret and backup codes.
func (s *testServer) enableMFA(t *testing.T, accessToken string) (string, []string) {
	t.Helper()
	ctx := context.Background()

	enrollment, err := s.client.EnrollTOTP(ctx, accessToken)
	require.NoError(t, err)

	codes, err := s.client.ConfirmTOTP(ctx, accessToken, s.code(t, enrollment.Secret))
	require.NoError(t, err)
	return enrollment.Secret, codes
}

func (s *testServer) code(t *testing.T, secret string) string {
	t.Helper()
	code, err := s.totp.GenerateToken(secret, time.Now())
	require.NoError(t, err)
	return code
}

// wrongCode returns a well-formed code from far outside the accepted window.
func (s *testServer) wrongCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := s.totp.GenerateToken(secret, time.Now().Add(time.Hour))
	require.NoError(t, err)
	return code
}

// requireAPIError asserts err is an *authsdk.APIError with the given status
// and code.
func requireAPIError(t *testing.T, err error, status int, code string) *authsdk.APIError {
	t.Helper()
	require.Error(t, err)

	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, status, apiErr.StatusCode, "error: %v", apiErr)
	require.Equal(t, code, apiErr.Code)
	return apiErr
}
