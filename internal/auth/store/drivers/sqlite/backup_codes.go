package sqlite

import (
	"context"
	"time"
)

type backupCodesRepo struct {
	q   querier
	now func() time.Time
}

func (r *backupCodesRepo) ReplaceBackupCodes(ctx context.Context, userID string, hashes []string) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM backup_codes WHERE user_id = ?`, userID); err != nil {
		return err
	}

	now := toMillis(r.now())
	for _, hash := range hashes {
		_, err := r.q.ExecContext(ctx,
			`INSERT INTO backup_codes (user_id, code_hash, created_at) VALUES (?, ?, ?)`,
			userID, hash, now,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

type unusedCode struct {
	id   int64
	hash string
}

func (r *backupCodesRepo) ConsumeBackupCode(
	ctx context.Context,
	userID string,
	match func(hash string) bool,
) (bool, error) {
	codes, err := r.unusedCodes(ctx, userID)
	if err != nil {
		return false, err
	}

	for _, code := range codes {
		if !match(code.hash) {
			continue
		}

		res, err := r.q.ExecContext(ctx,
			`UPDATE backup_codes SET used_at = ? WHERE id = ? AND used_at IS NULL`,
			toMillis(r.now()), code.id,
		)
		if err != nil {
			return false, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return false, err
		}
		// Zero rows means a concurrent caller consumed it first.
		return n == 1, nil
	}
	return false, nil
}

// unusedCodes drains the result set before any matching so the read
// connection is released before the conditional update runs.
func (r *backupCodesRepo) unusedCodes(ctx context.Context, userID string) ([]unusedCode, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, code_hash FROM backup_codes WHERE user_id = ? AND used_at IS NULL ORDER BY id`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []unusedCode
	for rows.Next() {
		var c unusedCode
		if err := rows.Scan(&c.id, &c.hash); err != nil {
			return nil, err
		}
		codes = append(codes, c)
	}
	return codes, rows.Err()
}

func (r *backupCodesRepo) CountUnusedBackupCodes(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM backup_codes WHERE user_id = ? AND used_at IS NULL`,
		userID,
	).Scan(&count)
	return count, err
}

func (r *backupCodesRepo) DeleteBackupCodes(ctx context.Context, userID string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM backup_codes WHERE user_id = ?`, userID)
	return err
}
