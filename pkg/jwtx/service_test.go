package jwtx_test

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/tally/pkg/autherr"
	"github.com/aussiebroadwan/tally/pkg/cryptox"
	"github.com/aussiebroadwan/tally/pkg/idx"
	"github.com/aussiebroadwan/tally/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "tally-auth"
	testAudience = "tally-api"
)

var testKeyPEM = sync.OnceValue(func() []byte {
	pemBytes, err := cryptox.GenerateRSAKeyPKCS8(2048)
	if err != nil {
		panic(err)
	}
	return pemBytes
})

func testIdentity() jwtx.Identity {
	return jwtx.Identity{
		UserID:         "01J9Z3K8Q4M2N6P8R0S2T4V6X8",
		Email:          "alice@example.com",
		Roles:          []string{"accountant", "admin"},
		OrganizationID: "org-42",
	}
}

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

func newService(t *testing.T, mutate ...func(*jwtx.Config, *jwtx.KeyMaterial)) *jwtx.TokenService {
	t.Helper()

	cfg := jwtx.Config{
		Issuer:             testIssuer,
		Audience:           testAudience,
		AccessTokenExpiry:  "15m",
		RefreshTokenExpiry: "7d",
	}
	keys := jwtx.KeyMaterial{PrivateKeyPEM: testKeyPEM()}
	for _, m := range mutate {
		m(&cfg, &keys)
	}

	svc, err := jwtx.NewTokenService(cfg, keys)
	require.NoError(t, err)
	return svc
}

func TestNewTokenService_Config(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*jwtx.Config)
	}{
		{"malformed access expiry", func(c *jwtx.Config) { c.AccessTokenExpiry = "15 minutes" }},
		{"malformed refresh expiry", func(c *jwtx.Config) { c.RefreshTokenExpiry = "1w" }},
		{"missing issuer", func(c *jwtx.Config) { c.Issuer = "" }},
		{"missing audience", func(c *jwtx.Config) { c.Audience = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := jwtx.Config{Issuer: testIssuer, Audience: testAudience}
			tt.mutate(&cfg)

			_, err := jwtx.NewTokenService(cfg, jwtx.KeyMaterial{PrivateKeyPEM: testKeyPEM()})
			require.ErrorIs(t, err, autherr.ErrConfiguration)
		})
	}
}

func TestNewTokenService_DefaultExpiries(t *testing.T) {
	svc, err := jwtx.NewTokenService(jwtx.Config{Issuer: testIssuer, Audience: testAudience}, jwtx.KeyMaterial{})
	require.NoError(t, err, "key material is not parsed at construction")
	require.Equal(t, 15*time.Minute, svc.AccessTTL())
	require.Equal(t, 7*24*time.Hour, svc.RefreshTTL())
}

func TestGenerateTokenPair(t *testing.T) {
	clock := &testClock{now: time.Now()}
	svc := newService(t, func(c *jwtx.Config, _ *jwtx.KeyMaterial) { c.Now = clock.Now })
	id := testIdentity()

	pair, err := svc.GenerateTokenPair(id)
	require.NoError(t, err)

	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.NotEqual(t, pair.AccessToken, pair.RefreshToken)

	now := clock.Now()
	require.True(t, pair.AccessExpiresAt.After(now))
	require.True(t, pair.RefreshExpiresAt.After(pair.AccessExpiresAt))
	require.False(t, pair.AccessExpiresAt.After(now.Add(15*time.Minute)))
	require.False(t, pair.RefreshExpiresAt.After(now.Add(7*24*time.Hour)))

	_, err = idx.Parse(pair.SessionID)
	require.NoError(t, err, "new sessions get a ULID")

	access, err := svc.VerifyAccessToken(pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, id.UserID, access.UserID)
	require.Equal(t, id.UserID, access.Subject)
	require.Equal(t, id.Email, access.Email)
	require.Equal(t, id.Roles, access.Roles)
	require.Equal(t, id.OrganizationID, access.OrganizationID)
	require.Equal(t, pair.SessionID, access.SessionID)
	require.Equal(t, jwtx.TokenTypeAccess, access.Type)
	require.Equal(t, testIssuer, access.Issuer)
	require.Equal(t, jwt.ClaimStrings{testAudience}, access.Audience)
	require.NotNil(t, access.IssuedAt)
	require.True(t, pair.AccessExpiresAt.Equal(access.Expiry()))

	refresh, err := svc.VerifyRefreshToken(pair.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, id.UserID, refresh.UserID)
	require.Equal(t, pair.SessionID, refresh.SessionID)
	require.Equal(t, jwtx.TokenTypeRefresh, refresh.Type)
	require.Empty(t, refresh.Email, "refresh tokens carry minimal claims")
	require.Empty(t, refresh.Roles)
	require.Empty(t, refresh.OrganizationID)

	require.NotEmpty(t, access.ID)
	require.NotEqual(t, access.ID, refresh.ID, "tokens in a pair never share jti")
}

func TestGenerateTokenPair_KeepsSession(t *testing.T) {
	svc := newService(t)
	id := testIdentity()
	id.SessionID = "session-123"

	pair, err := svc.GenerateTokenPair(id)
	require.NoError(t, err)
	require.Equal(t, "session-123", pair.SessionID)
}

func TestGenerateTokenPair_RequiresUser(t *testing.T) {
	_, err := newService(t).GenerateTokenPair(jwtx.Identity{Email: "x@example.com"})
	require.ErrorIs(t, err, autherr.ErrValidation)
}

func TestVerify_TypeConfusion(t *testing.T) {
	svc := newService(t)
	pair, err := svc.GenerateTokenPair(testIdentity())
	require.NoError(t, err)

	_, err = svc.VerifyAccessToken(pair.RefreshToken)
	require.ErrorIs(t, err, autherr.ErrInvalidToken)

	_, err = svc.VerifyRefreshToken(pair.AccessToken)
	require.ErrorIs(t, err, autherr.ErrInvalidToken)
}

func TestVerify_TamperedToken(t *testing.T) {
	svc := newService(t)
	pair, err := svc.GenerateTokenPair(testIdentity())
	require.NoError(t, err)

	token := pair.AccessToken
	for i := 0; i < len(token); i++ {
		if token[i] == '.' {
			continue
		}
		replacement := byte('A')
		if token[i] == 'A' {
			replacement = 'B'
		}
		tampered := token[:i] + string(replacement) + token[i+1:]

		claims, err := svc.VerifyAccessToken(tampered)
		require.Error(t, err, "tampering at offset %d must invalidate the token", i)
		require.Nil(t, claims)
	}
}

func TestVerify_Malformed(t *testing.T) {
	svc := newService(t)

	for _, token := range []string{"", "abc", "a.b", "a.b.c", "a.b.c.d"} {
		t.Run(token, func(t *testing.T) {
			_, err := svc.VerifyAccessToken(token)
			require.ErrorIs(t, err, autherr.ErrInvalidToken)
		})
	}
}

func TestVerify_IssuerMismatch(t *testing.T) {
	signer := newService(t, func(c *jwtx.Config, _ *jwtx.KeyMaterial) { c.Issuer = "X" })
	verifier := newService(t, func(c *jwtx.Config, _ *jwtx.KeyMaterial) { c.Issuer = "Y" })

	pair, err := signer.GenerateTokenPair(testIdentity())
	require.NoError(t, err)

	_, err = verifier.VerifyAccessToken(pair.AccessToken)
	require.ErrorIs(t, err, autherr.ErrInvalidToken)
	require.NotErrorIs(t, err, autherr.ErrExpired)
}

func TestVerify_AudienceMismatch(t *testing.T) {
	signer := newService(t, func(c *jwtx.Config, _ *jwtx.KeyMaterial) { c.Audience = "ledger" })
	verifier := newService(t, func(c *jwtx.Config, _ *jwtx.KeyMaterial) { c.Audience = "crm" })

	pair, err := signer.GenerateTokenPair(testIdentity())
	require.NoError(t, err)

	_, err = verifier.VerifyAccessToken(pair.AccessToken)
	require.ErrorIs(t, err, autherr.ErrInvalidToken)
}

func TestVerify_WrongKey(t *testing.T) {
	otherKey, err := cryptox.GenerateRSAKey(2048)
	require.NoError(t, err)

	signer := newService(t, func(_ *jwtx.Config, k *jwtx.KeyMaterial) { k.PrivateKeyPEM = otherKey })
	verifier := newService(t)

	pair, err := signer.GenerateTokenPair(testIdentity())
	require.NoError(t, err)

	_, err = verifier.VerifyAccessToken(pair.AccessToken)
	require.ErrorIs(t, err, autherr.ErrInvalidToken)
}

func TestVerify_Expired(t *testing.T) {
	clock := &testClock{now: time.Now()}
	svc := newService(t, func(c *jwtx.Config, _ *jwtx.KeyMaterial) { c.Now = clock.Now })

	pair, err := svc.GenerateTokenPair(testIdentity())
	require.NoError(t, err)

	clock.Advance(16 * time.Minute)

	_, err = svc.VerifyAccessToken(pair.AccessToken)
	require.ErrorIs(t, err, autherr.ErrExpired)
	require.NotErrorIs(t, err, autherr.ErrInvalidToken)

	// Refresh token outlives the access token.
	_, err = svc.VerifyRefreshToken(pair.RefreshToken)
	require.NoError(t, err)

	clock.Advance(7 * 24 * time.Hour)
	_, err = svc.VerifyRefreshToken(pair.RefreshToken)
	require.ErrorIs(t, err, autherr.ErrExpired)
}

func TestVerify_ExpiredForeignTokenIsInvalid(t *testing.T) {
	clock := &testClock{now: time.Now()}
	tests := []struct {
		name   string
		mutate func(*jwtx.Config, *jwtx.KeyMaterial)
	}{
		{"other issuer", func(c *jwtx.Config, _ *jwtx.KeyMaterial) { c.Issuer = "https://elsewhere.test"; c.Now = clock.Now }},
		{"other audience", func(c *jwtx.Config, _ *jwtx.KeyMaterial) { c.Audience = "payroll"; c.Now = clock.Now }},
	}

	verifier := newService(t, func(c *jwtx.Config, _ *jwtx.KeyMaterial) { c.Now = clock.Now })
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pair, err := newService(t, tt.mutate).GenerateTokenPair(testIdentity())
			require.NoError(t, err)

			clock.Advance(16 * time.Minute)

			_, err = verifier.VerifyAccessToken(pair.AccessToken)
			require.ErrorIs(t, err, autherr.ErrInvalidToken)
			require.NotErrorIs(t, err, autherr.ErrExpired)
		})
	}

	t.Run("wrong type", func(t *testing.T) {
		pair, err := verifier.GenerateTokenPair(testIdentity())
		require.NoError(t, err)

		clock.Advance(8 * 24 * time.Hour)

		_, err = verifier.VerifyAccessToken(pair.RefreshToken)
		require.ErrorIs(t, err, autherr.ErrInvalidToken)
		require.NotErrorIs(t, err, autherr.ErrExpired)
	})
}

func TestVerify_RejectsOtherAlgorithms(t *testing.T) {
	svc := newService(t)

	claims := jwt.MapClaims{
		"iss":       testIssuer,
		"aud":       testAudience,
		"exp":       time.Now().Add(time.Hour).Unix(),
		"userId":    "u1",
		"sessionId": "s1",
		"type":      "access",
	}

	t.Run("HS256 keyed with the public key", func(t *testing.T) {
		pub, err := cryptox.EncodeRSAPublicKey(testKeyPEM())
		require.NoError(t, err)

		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(pub)
		require.NoError(t, err)

		_, err = svc.VerifyAccessToken(token)
		require.ErrorIs(t, err, autherr.ErrInvalidToken)
	})

	t.Run("none", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = svc.VerifyAccessToken(token)
		require.ErrorIs(t, err, autherr.ErrInvalidToken)
	})
}

func TestVerify_MissingExpiry(t *testing.T) {
	svc := newService(t)
	priv, err := cryptox.ParseRSAPrivateKey(testKeyPEM())
	require.NoError(t, err)

	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss":       testIssuer,
		"aud":       testAudience,
		"userId":    "u1",
		"sessionId": "s1",
		"type":      "access",
	}).SignedString(priv)
	require.NoError(t, err)

	_, err = svc.VerifyAccessToken(token)
	require.ErrorIs(t, err, autherr.ErrInvalidToken)
}

func TestKeyMaterial_LazyErrors(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		svc := newService(t, func(_ *jwtx.Config, k *jwtx.KeyMaterial) { k.PrivateKeyPEM = nil })

		_, err := svc.GenerateTokenPair(testIdentity())
		require.ErrorIs(t, err, autherr.ErrConfiguration)
		_, err = svc.VerifyAccessToken("a.b.c")
		require.ErrorIs(t, err, autherr.ErrConfiguration)
	})

	t.Run("invalid PEM", func(t *testing.T) {
		svc := newService(t, func(_ *jwtx.Config, k *jwtx.KeyMaterial) { k.PrivateKeyPEM = []byte("garbage") })

		_, err := svc.GenerateTokenPair(testIdentity())
		require.ErrorIs(t, err, autherr.ErrConfiguration)
	})

	t.Run("mismatched pair", func(t *testing.T) {
		other, err := cryptox.GenerateRSAKey(2048)
		require.NoError(t, err)
		otherPub, err := cryptox.EncodeRSAPublicKey(other)
		require.NoError(t, err)

		svc := newService(t, func(_ *jwtx.Config, k *jwtx.KeyMaterial) { k.PublicKeyPEM = otherPub })

		_, err = svc.GenerateTokenPair(testIdentity())
		require.ErrorIs(t, err, autherr.ErrConfiguration)
	})
}

func TestVerifyOnlyService(t *testing.T) {
	signer := newService(t)
	pub, err := cryptox.EncodeRSAPublicKey(testKeyPEM())
	require.NoError(t, err)

	verifier := newService(t, func(_ *jwtx.Config, k *jwtx.KeyMaterial) {
		k.PrivateKeyPEM = nil
		k.PublicKeyPEM = pub
	})

	pair, err := signer.GenerateTokenPair(testIdentity())
	require.NoError(t, err)

	claims, err := verifier.VerifyAccessToken(pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, testIdentity().UserID, claims.UserID)

	_, err = verifier.GenerateTokenPair(testIdentity())
	require.ErrorIs(t, err, autherr.ErrConfiguration)
}

func TestRefreshTokens(t *testing.T) {
	svc := newService(t)
	id := testIdentity()

	pair, err := svc.GenerateTokenPair(id)
	require.NoError(t, err)
	oldRefresh, err := svc.VerifyRefreshToken(pair.RefreshToken)
	require.NoError(t, err)

	fresh := id
	fresh.Roles = []string{"viewer"}
	fresh.SessionID = "ignored"

	rotated, err := svc.RefreshTokens(pair.RefreshToken, fresh)
	require.NoError(t, err)
	require.Equal(t, pair.SessionID, rotated.SessionID, "rotation keeps the session")
	require.NotEqual(t, pair.AccessToken, rotated.AccessToken)
	require.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

	access, err := svc.VerifyAccessToken(rotated.AccessToken)
	require.NoError(t, err)
	require.Equal(t, []string{"viewer"}, access.Roles, "claims come from the supplied identity")
	require.Equal(t, id.Email, access.Email)

	newRefresh, err := svc.VerifyRefreshToken(rotated.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, oldRefresh.ID, newRefresh.ID)
}

func TestRefreshTokens_Rejects(t *testing.T) {
	svc := newService(t)
	pair, err := svc.GenerateTokenPair(testIdentity())
	require.NoError(t, err)

	t.Run("access token", func(t *testing.T) {
		_, err := svc.RefreshTokens(pair.AccessToken, testIdentity())
		require.ErrorIs(t, err, autherr.ErrInvalidToken)
	})

	t.Run("different user", func(t *testing.T) {
		other := testIdentity()
		other.UserID = "someone-else"
		_, err := svc.RefreshTokens(pair.RefreshToken, other)
		require.ErrorIs(t, err, autherr.ErrInvalidToken)
	})
}

func TestTokenHash(t *testing.T) {
	svc := newService(t)

	a := svc.TokenHash("token-a")
	require.Len(t, a, 64)
	require.Equal(t, strings.ToLower(a), a)
	require.Equal(t, a, svc.TokenHash("token-a"))
	require.NotEqual(t, a, svc.TokenHash("token-b"))
}

func TestJWKS_MatchesSigningKey(t *testing.T) {
	svc := newService(t)

	set, err := svc.JWKS()
	require.NoError(t, err)
	require.Len(t, set.Keys, 1)

	pair, err := svc.GenerateTokenPair(testIdentity())
	require.NoError(t, err)

	parsed, _, err := jwt.NewParser().ParseUnverified(pair.AccessToken, &jwtx.Claims{})
	require.NoError(t, err)
	require.Equal(t, set.Keys[0].Kid, parsed.Header["kid"])
	require.Equal(t, "RS256", parsed.Header["alg"])
}

func TestConcurrentFirstUse(t *testing.T) {
	svc := newService(t)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pair, err := svc.GenerateTokenPair(testIdentity())
			if err == nil {
				_, err = svc.VerifyAccessToken(pair.AccessToken)
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
}
