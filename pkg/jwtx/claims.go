package jwtx

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Default expiry strings for access and refresh tokens.
const (
	DefaultAccessTokenExpiry  = "15m"
	DefaultRefreshTokenExpiry = "7d"
)

// AlgorithmRS256 is the only signing algorithm issued or accepted.
const AlgorithmRS256 = "RS256"

// TokenType discriminates access tokens from refresh tokens so one can
// never be presented in place of the other.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims is the payload of both token types. Refresh tokens carry only
// UserID, SessionID and Type.
type Claims struct {
	jwt.RegisteredClaims

	UserID         string    `json:"userId"`
	Email          string    `json:"email,omitempty"`
	Roles          []string  `json:"roles,omitempty"`
	OrganizationID string    `json:"organizationId,omitempty"`
	SessionID      string    `json:"sessionId"`
	Type           TokenType `json:"type"`
}

// Identity is what a token pair is minted for. It must be loaded fresh from
// the credential store for every issuance, including refresh.
type Identity struct {
	UserID         string
	Email          string
	Roles          []string
	OrganizationID string

	// SessionID ties a pair to a login session. Empty starts a new session.
	SessionID string
}

// TokenPair is an access token and a refresh token sharing a session.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	SessionID        string
}

// NewJTI returns a random UUIDv4 for the "jti" claim.
func NewJTI() string {
	return uuid.NewString()
}

func newAccessClaims(id Identity, issuer, audience string, ttl time.Duration, now time.Time) *Claims {
	return &Claims{
		RegisteredClaims: registered(id.UserID, issuer, audience, ttl, now),
		UserID:           id.UserID,
		Email:            id.Email,
		Roles:            id.Roles,
		OrganizationID:   id.OrganizationID,
		SessionID:        id.SessionID,
		Type:             TokenTypeAccess,
	}
}

func newRefreshClaims(id Identity, issuer, audience string, ttl time.Duration, now time.Time) *Claims {
	return &Claims{
		RegisteredClaims: registered(id.UserID, issuer, audience, ttl, now),
		UserID:           id.UserID,
		SessionID:        id.SessionID,
		Type:             TokenTypeRefresh,
	}
}

func registered(subject, issuer, audience string, ttl time.Duration, now time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   subject,
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        NewJTI(),
	}
}

// Expiry returns the expiry claim, or the zero time when absent.
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}
