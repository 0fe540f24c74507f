package database

import (
	"context"

	"github.com/uptrace/bun"
)

// SafeTx wraps a bun.Tx to make Rollback safe to call after Commit.
//
// Usage:
//
//	tx, err := BeginSafeTx(ctx, db)
//	if err != nil {
//	    return err
//	}
//	defer tx.Rollback()
//
//	// ... do work ...
//
//	return tx.Commit()
type SafeTx struct {
	bun.Tx
	committed bool
}

// BeginSafeTx starts a new transaction and returns a SafeTx wrapper.
func BeginSafeTx(ctx context.Context, db bun.IDB) (*SafeTx, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &SafeTx{Tx: tx}, nil
}

// Commit commits the transaction and marks it as committed.
func (tx *SafeTx) Commit() error {
	if tx.committed {
		return nil
	}
	err := tx.Tx.Commit()
	if err == nil {
		tx.committed = true
	}
	return err
}

// Rollback rolls back the transaction only if it hasn't been committed.
func (tx *SafeTx) Rollback() error {
	if tx.committed {
		return nil
	}
	return tx.Tx.Rollback()
}

// TxFunc is one unit of work executed inside a transaction.
type TxFunc func(ctx context.Context, tx bun.IDB) error

// RunInTx runs fn in a new transaction. Any error returned by fn rolls the
// transaction back and is returned unchanged; otherwise the transaction
// is committed.
func RunInTx(ctx context.Context, db bun.IDB, fn TxFunc) error {
	tx, err := BeginSafeTx(ctx, db)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(ctx, tx.Tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Transactor runs units of work. Loops depend on it instead of *bun.DB so
// they can be exercised without a database.
type Transactor interface {
	RunInTx(ctx context.Context, fn TxFunc) error
}

type bunTransactor struct {
	db bun.IDB
}

// NewTransactor returns a Transactor backed by db.
func NewTransactor(db bun.IDB) Transactor {
	return &bunTransactor{db: db}
}

func (t *bunTransactor) RunInTx(ctx context.Context, fn TxFunc) error {
	return RunInTx(ctx, t.db, fn)
}
