package jwtx

import (
	"errors"
	"sync"
	"time"

	"github.com/aussiebroadwan/tally/pkg/autherr"
	"github.com/aussiebroadwan/tally/pkg/cryptox"
	"github.com/aussiebroadwan/tally/pkg/idx"
	"github.com/golang-jwt/jwt/v5"
)

// Config holds the token claims policy. Expiries use the ParseDuration
// grammar.
type Config struct {
	Issuer             string
	Audience           string
	AccessTokenExpiry  string
	RefreshTokenExpiry string

	// Now is the clock used for issuance and verification. Defaults to
	// time.Now.
	Now func() time.Time
}

// TokenService issues, verifies and rotates RS256 token pairs. Keys are
// imported once on first use; everything else is immutable, so a single
// instance is safe for concurrent use.
type TokenService struct {
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	keys       func() (*keyring, error)
}

// NewTokenService validates cfg. Key material is not parsed until the
// first token operation.
func NewTokenService(cfg Config, material KeyMaterial) (*TokenService, error) {
	const op = "jwtx.NewTokenService"

	if cfg.Issuer == "" {
		return nil, autherr.New(autherr.KindConfiguration, op, "issuer is required")
	}
	if cfg.Audience == "" {
		return nil, autherr.New(autherr.KindConfiguration, op, "audience is required")
	}
	if cfg.AccessTokenExpiry == "" {
		cfg.AccessTokenExpiry = DefaultAccessTokenExpiry
	}
	if cfg.RefreshTokenExpiry == "" {
		cfg.RefreshTokenExpiry = DefaultRefreshTokenExpiry
	}

	accessTTL, err := ParseDuration(cfg.AccessTokenExpiry)
	if err != nil {
		return nil, err
	}
	refreshTTL, err := ParseDuration(cfg.RefreshTokenExpiry)
	if err != nil {
		return nil, err
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &TokenService{
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        now,
		keys: sync.OnceValues(func() (*keyring, error) {
			return loadKeyring(material)
		}),
	}, nil
}

// AccessTTL returns the configured access token lifetime.
func (s *TokenService) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }

// GenerateTokenPair signs an access token with the full identity and a
// refresh token carrying only the user and session. Each gets its own jti.
func (s *TokenService) GenerateTokenPair(id Identity) (TokenPair, error) {
	const op = "jwtx.GenerateTokenPair"

	if id.UserID == "" {
		return TokenPair{}, autherr.New(autherr.KindValidation, op, "user id is required")
	}

	kr, err := s.keys()
	if err != nil {
		return TokenPair{}, err
	}
	if kr.private == nil {
		return TokenPair{}, autherr.New(autherr.KindConfiguration, op, "no private key configured")
	}

	if id.SessionID == "" {
		id.SessionID = idx.New().String()
	}

	now := s.now()
	access := newAccessClaims(id, s.issuer, s.audience, s.accessTTL, now)
	refresh := newRefreshClaims(id, s.issuer, s.audience, s.refreshTTL, now)

	accessToken, err := s.sign(kr, access)
	if err != nil {
		return TokenPair{}, autherr.Wrap(autherr.KindConfiguration, op, "sign access token", err)
	}
	refreshToken, err := s.sign(kr, refresh)
	if err != nil {
		return TokenPair{}, autherr.Wrap(autherr.KindConfiguration, op, "sign refresh token", err)
	}

	return TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  access.Expiry(),
		RefreshExpiresAt: refresh.Expiry(),
		SessionID:        id.SessionID,
	}, nil
}

func (s *TokenService) sign(kr *keyring, claims *Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	t.Header["kid"] = kr.jwk.Kid
	return t.SignedString(kr.private)
}

// VerifyAccessToken validates signature, issuer, audience, expiry and that
// the token is an access token.
func (s *TokenService) VerifyAccessToken(token string) (*Claims, error) {
	return s.verify("jwtx.VerifyAccessToken", token, TokenTypeAccess)
}

// VerifyRefreshToken is VerifyAccessToken for refresh tokens.
func (s *TokenService) VerifyRefreshToken(token string) (*Claims, error) {
	return s.verify("jwtx.VerifyRefreshToken", token, TokenTypeRefresh)
}

func (s *TokenService) verify(op, token string, want TokenType) (*Claims, error) {
	kr, err := s.keys()
	if err != nil {
		return nil, err
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{AlgorithmRS256}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(s.now),
	)

	claims := &Claims{}
	_, err = parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return kr.public, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, autherr.Wrap(autherr.KindInvalidToken, op, "signature", err)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer), errors.Is(err, jwt.ErrTokenInvalidAudience):
		return nil, autherr.Wrap(autherr.KindInvalidToken, op, "foreign token", err)
	case errors.Is(err, jwt.ErrTokenExpired):
		// Expiry is only reported for a token that is otherwise ours.
		if claims.Type != want {
			return nil, autherr.Newf(autherr.KindInvalidToken, op, "expected %s token, got %q", want, claims.Type)
		}
		return nil, autherr.Wrap(autherr.KindExpired, op, "token expired", err)
	default:
		return nil, autherr.Wrap(autherr.KindInvalidToken, op, "", err)
	}

	if claims.Type != want {
		return nil, autherr.Newf(autherr.KindInvalidToken, op, "expected %s token, got %q", want, claims.Type)
	}
	if claims.UserID == "" || claims.SessionID == "" {
		return nil, autherr.New(autherr.KindInvalidToken, op, "missing user or session")
	}

	return claims, nil
}

// RefreshTokens verifies refreshToken and mints a new pair for the same
// session using the caller's freshly loaded identity. It does not revoke
// the presented token; that is the caller's bookkeeping.
func (s *TokenService) RefreshTokens(refreshToken string, id Identity) (TokenPair, error) {
	const op = "jwtx.RefreshTokens"

	claims, err := s.VerifyRefreshToken(refreshToken)
	if err != nil {
		return TokenPair{}, err
	}
	if id.UserID != claims.UserID {
		return TokenPair{}, autherr.New(autherr.KindInvalidToken, op, "identity does not match token subject")
	}

	id.SessionID = claims.SessionID
	return s.GenerateTokenPair(id)
}

// TokenHash returns the lowercase hex SHA-256 of token, the form stored in
// revocation lists.
func (s *TokenService) TokenHash(token string) string {
	return cryptox.FingerprintToken(token)
}

// JWKS returns the verification key set for publishing to resource
// services.
func (s *TokenService) JWKS() (JWKS, error) {
	kr, err := s.keys()
	if err != nil {
		return JWKS{}, err
	}
	return JWKS{Keys: []JWK{kr.jwk}}, nil
}
