package sqlite

import (
	"context"
	"database/sql"

	"github.com/aussiebroadwan/schoolgate/internal/gate/store"
)

type txStore struct {
	tx *sql.Tx
	q  *queries
}

func newTx(tx *sql.Tx) *txStore {
	return &txStore{
		tx: tx,
		q:  newQueries(tx),
	}
}

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

func (t *txStore) Close() error { return nil } // the outer DB stays open

func (t *txStore) Ping(ctx context.Context) error { return nil }

// Nested transactions are not supported.
func (t *txStore) Tx(ctx context.Context) (store.Tx, error) {
	return nil, sql.ErrTxDone
}

func (t *txStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return sql.ErrTxDone
}

func (t *txStore) Identities() store.Identities     { return &identitiesRepo{q: t.q} }
func (t *txStore) AuditEntries() store.AuditEntries { return &auditRepo{q: t.q} }

func (t *txStore) ApplyMigrations() error { return nil } // applied before any tx starts
