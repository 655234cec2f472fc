package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/tally/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface for durable state. Concrete
// drivers implement it and expose sub-repositories so a transaction-scoped
// Store cannot open another transaction.
type Store interface {
	Credentials() Credentials
	BackupCodes() BackupCodes
	RevokedTokens() RevokedTokens

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Credentials interface {
	// CreateCredential inserts a new credential. Returns ErrAlreadyExists when
	// the user id or email (case-insensitive) is taken.
	CreateCredential(ctx context.Context, c domain.Credential) error

	GetCredentialByID(ctx context.Context, userID string) (domain.Credential, error)

	// GetCredentialByEmail matches case-insensitively.
	GetCredentialByEmail(ctx context.Context, email string) (domain.Credential, error)

	// UpdatePasswordHash replaces the stored PHC string and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, userID, hash string) error

	// SetMFASecret stores a sealed TOTP secret without enabling MFA.
	SetMFASecret(ctx context.Context, userID string, sealed []byte) error

	// EnableMFA stamps mfa_enabled_at. Fails with ErrNotFound when no secret
	// is on file.
	EnableMFA(ctx context.Context, userID string, at time.Time) error

	// DisableMFA clears both the secret and mfa_enabled_at.
	DisableMFA(ctx context.Context, userID string) error

	LockCredential(ctx context.Context, userID string, at time.Time) error
	UnlockCredential(ctx context.Context, userID string) error
}

type BackupCodes interface {
	// ReplaceBackupCodes deletes every code for the user and stores hashes.
	// Run it inside a transaction.
	ReplaceBackupCodes(ctx context.Context, userID string, hashes []string) error

	// ConsumeBackupCode offers each unused code hash to match and marks the
	// first accepted one used. The mark is conditional on the row still being
	// unused, so two concurrent callers can never both consume the same code.
	ConsumeBackupCode(ctx context.Context, userID string, match func(hash string) bool) (bool, error)

	CountUnusedBackupCodes(ctx context.Context, userID string) (int, error)
	DeleteBackupCodes(ctx context.Context, userID string) error
}

type RevokedTokens interface {
	// RevokeToken records a token fingerprint until expiresAt. It reports
	// false when the fingerprint was already revoked.
	RevokeToken(ctx context.Context, hash string, expiresAt time.Time) (bool, error)

	IsTokenRevoked(ctx context.Context, hash string) (bool, error)

	// DeleteExpiredRevocations removes rows whose token has expired by now
	// and returns how many were removed.
	DeleteExpiredRevocations(ctx context.Context, now time.Time) (int64, error)
}

// Cache holds short-lived state: pending MFA challenges and failed login
// counters. Entries expire on their own.
type Cache interface {
	Challenges() Challenges
	LoginAttempts() LoginAttempts

	Ping(ctx context.Context) error
	Close() error
}

type Challenges interface {
	// CreateChallenge stores c until c.ExpiresAt.
	CreateChallenge(ctx context.Context, c domain.MFAChallenge) error

	// GetChallenge returns ErrNotFound for unknown, expired or consumed ids.
	GetChallenge(ctx context.Context, id string) (domain.MFAChallenge, error)

	// RecordFailure atomically bumps the attempt counter. Once attempts
	// reaches maxAttempts the challenge is deleted and exhausted is true.
	RecordFailure(ctx context.Context, id string, maxAttempts int) (attempts int, exhausted bool, err error)

	// ConsumeChallenge atomically reads and deletes the challenge. Only one
	// caller can consume a given id; the rest get ErrNotFound.
	ConsumeChallenge(ctx context.Context, id string) (domain.MFAChallenge, error)
}

type LoginAttempts interface {
	// RecordFailedLogin increments the counter for key and returns the new
	// value. The window starts at the first failure.
	RecordFailedLogin(ctx context.Context, key string, window time.Duration) (int64, error)

	ResetFailedLogins(ctx context.Context, key string) error
}
