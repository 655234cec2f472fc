package sqlite

import (
	"context"
	"time"
)

type revokedTokensRepo struct {
	q   querier
	now func() time.Time
}

func (r *revokedTokensRepo) RevokeToken(ctx context.Context, hash string, expiresAt time.Time) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		`INSERT INTO revoked_tokens (token_hash, expires_at, revoked_at) VALUES (?, ?, ?)
		 ON CONFLICT (token_hash) DO NOTHING`,
		hash, toMillis(expiresAt), toMillis(r.now()),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *revokedTokensRepo) IsTokenRevoked(ctx context.Context, hash string) (bool, error) {
	var exists bool
	err := r.q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE token_hash = ?)`,
		hash,
	).Scan(&exists)
	return exists, err
}

func (r *revokedTokensRepo) DeleteExpiredRevocations(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM revoked_tokens WHERE expires_at <= ?`, toMillis(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
