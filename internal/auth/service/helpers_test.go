package service_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aussiebroadwan/tally/internal/auth/service"
	rediscache "github.com/aussiebroadwan/tally/internal/auth/store/drivers/redis"
	"github.com/aussiebroadwan/tally/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/tally/pkg/cryptox"
	"github.com/aussiebroadwan/tally/pkg/jwtx"
	"github.com/aussiebroadwan/tally/pkg/otpx"
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

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	store   *sqlite.Store
	redis   *miniredis.Miniredis
	cache   *rediscache.Cache
	hasher  *cryptox.Hasher
	totp    *otpx.Engine
	tokens  *jwtx.TokenService
	secrets *cryptox.SecretBox
	clock   *testClock

	accounts *service.AccountService
	mfa      *service.MFAService
	login    *service.LoginService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	st, err := sqlite.NewStore(sqlite.DSN(filepath.Join(t.TempDir(), "auth.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	mr := miniredis.RunT(t)
	cache := rediscache.NewCache(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}), "test")
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

	clock := &testClock{now: time.Now()}

	h := &harness{
		store:   st,
		redis:   mr,
		cache:   cache,
		hasher:  hasher,
		totp:    engine,
		tokens:  tokens,
		secrets: secrets,
		clock:   clock,
	}
	h.accounts = &service.AccountService{Store: st, Hasher: hasher}
	h.mfa = &service.MFAService{Store: st, TOTP: engine, Secrets: secrets, QR: otpx.PNGRenderer{}}
	h.login = service.NewLoginService(st, cache, hasher, engine, tokens, secrets, service.LoginConfig{
		LockoutThreshold: 3,
		Now:              clock.Now,
	})
	return h
}

func (h *harness) register(t *testing.T, email string) string {
	t.Helper()
	c, err := h.accounts.Register(context.Background(), service.RegisterInput{
		Email:          email,
		Password:       testPassword,
		OrganizationID: "org-1",
		Roles:          []string{"accountant"},
	})
	require.NoError(t, err)
	return c.UserID
}

// enableMFA enrolls and confirms TOTP, returning the secret and backup codes.
func (h *harness) enableMFA(t *testing.T, userID string) (string, []string) {
	t.Helper()
	ctx := context.Background()

	enrollment, err := h.mfa.Enroll(ctx, userID)
	require.NoError(t, err)

	codes, err := h.mfa.Confirm(ctx, userID, h.code(t, enrollment.Secret))
	require.NoError(t, err)
	return enrollment.Secret, codes
}

func (h *harness) code(t *testing.T, secret string) string {
	t.Helper()
	code, err := h.totp.GenerateToken(secret, time.Now())
	require.NoError(t, err)
	return code
}

// wrongCode returns a well-formed code from far outside the accepted window.
func (h *harness) wrongCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := h.totp.GenerateToken(secret, time.Now().Add(time.Hour))
	require.NoError(t, err)
	return code
}
