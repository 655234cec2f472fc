package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/tally/internal/auth/store"
)

type txStore struct {
	tx  *sql.Tx
	now func() time.Time
}

func newTx(tx *sql.Tx, now func() time.Time) *txStore {
	return &txStore{tx: tx, now: now}
}

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

func (t *txStore) Close() error { return nil } // caller commits or rolls back; the DB stays open

// Ping is a no-op; the connection is held for the life of the transaction.
func (t *txStore) Ping(ctx context.Context) error {
	return nil
}

func (t *txStore) Tx(ctx context.Context) (store.Tx, error) {
	// Nested tx not supported; could emulate with SAVEPOINT if needed
	return nil, sql.ErrTxDone
}

func (t *txStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return sql.ErrTxDone
}

func (t *txStore) Credentials() store.Credentials {
	return &credentialsRepo{q: t.tx, now: t.now}
}
func (t *txStore) BackupCodes() store.BackupCodes {
	return &backupCodesRepo{q: t.tx, now: t.now}
}
func (t *txStore) RevokedTokens() store.RevokedTokens {
	return &revokedTokensRepo{q: t.tx, now: t.now}
}

func (t *txStore) ApplyMigrations() error { return nil } // migrations run before any tx
