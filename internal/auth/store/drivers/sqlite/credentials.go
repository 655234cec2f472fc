package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/aussiebroadwan/tally/internal/auth/domain"
)

const credentialColumns = `user_id, email, organization_id, roles, password_hash,
	mfa_secret, mfa_enabled_at, locked_at, created_at, updated_at`

type credentialsRepo struct {
	q   querier
	now func() time.Time
}

func (r *credentialsRepo) CreateCredential(ctx context.Context, c domain.Credential) error {
	now := toMillis(r.now())
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO credentials (user_id, email, organization_id, roles, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.UserID, c.Email, c.OrganizationID, strings.Join(c.Roles, " "), c.PasswordHash, now, now,
	)
	return mapConstraint(err)
}

func (r *credentialsRepo) GetCredentialByID(ctx context.Context, userID string) (domain.Credential, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+credentialColumns+` FROM credentials WHERE user_id = ?`, userID)
	return scanCredential(row)
}

func (r *credentialsRepo) GetCredentialByEmail(ctx context.Context, email string) (domain.Credential, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+credentialColumns+` FROM credentials WHERE email = ?`, email)
	return scanCredential(row)
}

func (r *credentialsRepo) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	return requireRow(r.q.ExecContext(ctx,
		`UPDATE credentials SET password_hash = ?, updated_at = ? WHERE user_id = ?`,
		hash, toMillis(r.now()), userID,
	))
}

func (r *credentialsRepo) SetMFASecret(ctx context.Context, userID string, sealed []byte) error {
	return requireRow(r.q.ExecContext(ctx,
		`UPDATE credentials SET mfa_secret = ?, mfa_enabled_at = NULL, updated_at = ? WHERE user_id = ?`,
		sealed, toMillis(r.now()), userID,
	))
}

func (r *credentialsRepo) EnableMFA(ctx context.Context, userID string, at time.Time) error {
	return requireRow(r.q.ExecContext(ctx,
		`UPDATE credentials SET mfa_enabled_at = ?, updated_at = ?
		 WHERE user_id = ? AND mfa_secret IS NOT NULL`,
		toMillis(at), toMillis(r.now()), userID,
	))
}

func (r *credentialsRepo) DisableMFA(ctx context.Context, userID string) error {
	return requireRow(r.q.ExecContext(ctx,
		`UPDATE credentials SET mfa_secret = NULL, mfa_enabled_at = NULL, updated_at = ? WHERE user_id = ?`,
		toMillis(r.now()), userID,
	))
}

func (r *credentialsRepo) LockCredential(ctx context.Context, userID string, at time.Time) error {
	return requireRow(r.q.ExecContext(ctx,
		`UPDATE credentials SET locked_at = ?, updated_at = ? WHERE user_id = ?`,
		toMillis(at), toMillis(r.now()), userID,
	))
}

func (r *credentialsRepo) UnlockCredential(ctx context.Context, userID string) error {
	return requireRow(r.q.ExecContext(ctx,
		`UPDATE credentials SET locked_at = NULL, updated_at = ? WHERE user_id = ?`,
		toMillis(r.now()), userID,
	))
}

func scanCredential(row *sql.Row) (domain.Credential, error) {
	var (
		c                    domain.Credential
		roles                string
		mfaEnabled, locked   sql.NullInt64
		createdAt, updatedAt int64
	)
	err := row.Scan(
		&c.UserID, &c.Email, &c.OrganizationID, &roles, &c.PasswordHash,
		&c.MFASecret, &mfaEnabled, &locked, &createdAt, &updatedAt,
	)
	if err != nil {
		return domain.Credential{}, mapNotFound(err)
	}

	c.Roles = splitAndFilter(roles)
	c.MFAEnabledAt = mapNullMillisPtr(mfaEnabled)
	c.LockedAt = mapNullMillisPtr(locked)
	c.CreatedAt = fromMillis(createdAt)
	c.UpdatedAt = fromMillis(updatedAt)
	return c, nil
}
