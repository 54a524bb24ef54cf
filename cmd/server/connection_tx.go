package main

import (
	"context"
	"database/sql"
	"time"

	"linknet/internal/connection/service"
	"linknet/pkg/domain"
	dErrors "linknet/pkg/domain-errors"
	txcontext "linknet/pkg/platform/tx"
)

const defaultConnectionTxTimeout = 5 * time.Second

// connectionPostgresTx runs a transition inside one serializable database
// transaction. Member rows are locked in ID order before any read the write
// depends on, mirroring the lock ordering of the in-memory implementation.
type connectionPostgresTx struct {
	db      *sql.DB
	stores  service.Stores
	timeout time.Duration
}

func newConnectionPostgresTx(db *sql.DB, stores service.Stores) *connectionPostgresTx {
	return &connectionPostgresTx{db: db, stores: stores}
}

func (t *connectionPostgresTx) Run(ctx context.Context, a, b domain.MemberID, fn func(ctx context.Context, s service.Stores) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transition aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultConnectionTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorage, "failed to begin transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if b.Less(a) {
		a, b = b, a
	}
	ids := []domain.MemberID{a}
	if a != b {
		ids = append(ids, b)
	}
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `SELECT 1 FROM members WHERE id = $1 FOR UPDATE`, id.String()); err != nil {
			return dErrors.Wrap(err, dErrors.CodeStorage, "failed to lock member row")
		}
	}

	if err := fn(txcontext.WithTx(ctx, tx), t.stores); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeConcurrentConflict, "transaction commit failed, retry the request")
	}
	return nil
}
