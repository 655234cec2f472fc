package domain

import "time"

// Credential is the authentication record for a user. Profile data lives
// elsewhere; this is only what login and token issuance need.
type Credential struct {
	UserID         string
	Email          string
	OrganizationID string
	Roles          []string
	PasswordHash   string // argon2id PHC string

	// MFASecret is the TOTP shared secret sealed with the service master key.
	// Nil until enrollment starts.
	MFASecret    []byte
	MFAEnabledAt *time.Time // nil until the first code is confirmed
	LockedAt     *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// MFAEnabled reports whether a confirmed TOTP secret is on file.
func (c Credential) MFAEnabled() bool {
	return c.MFAEnabledAt != nil && len(c.MFASecret) > 0
}

// LockedUntil returns when a lock placed at LockedAt lapses. The zero time
// means the credential is not locked.
func (c Credential) LockedUntil(lockout time.Duration) time.Time {
	if c.LockedAt == nil {
		return time.Time{}
	}
	return c.LockedAt.Add(lockout)
}

// IsLocked reports whether the credential is locked at now.
func (c Credential) IsLocked(now time.Time, lockout time.Duration) bool {
	return c.LockedAt != nil && now.Before(c.LockedUntil(lockout))
}

// BackupCode is a stored single-use MFA recovery code.
type BackupCode struct {
	ID        int64
	UserID    string
	CodeHash  string // argon2id PHC string of the canonical code
	UsedAt    *time.Time
	CreatedAt time.Time
}

// RevokedToken is a token fingerprint that must no longer be accepted.
// Rows are kept until the token would have expired anyway.
type RevokedToken struct {
	TokenHash string // hex SHA-256
	ExpiresAt time.Time
	RevokedAt time.Time
}
