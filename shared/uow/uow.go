// Package uow implements the unit of work over database/sql. The open
// transaction travels in the request context, so a single UnitOfWork value
// serves any number of concurrent requests.
package uow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var (
	ErrNoTransaction         = errors.New("uow: no transaction in context")
	ErrTransactionInProgress = errors.New("uow: transaction already in progress")
)

// Executor is the subset of *sql.DB and *sql.Tx used by repositories.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// UnitOfWork opens one *sql.Tx per BeginTransaction call.
type UnitOfWork struct {
	db   *sql.DB
	opts *sql.TxOptions
}

// New returns a unit of work over db. opts may be nil for driver defaults.
func New(db *sql.DB, opts *sql.TxOptions) *UnitOfWork {
	return &UnitOfWork{db: db, opts: opts}
}

func (u *UnitOfWork) BeginTransaction(ctx context.Context) (context.Context, error) {
	if _, ok := TxFromContext(ctx); ok {
		return nil, ErrTransactionInProgress
	}
	tx, err := u.db.BeginTx(ctx, u.opts)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return context.WithValue(ctx, txKey{}, tx), nil
}

func (u *UnitOfWork) CommitTransaction(ctx context.Context) error {
	tx, ok := TxFromContext(ctx)
	if !ok {
		return ErrNoTransaction
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// RollbackTransaction rolls back the transaction in ctx. A transaction that
// is already finished, for instance after a failed commit, is not an error.
func (u *UnitOfWork) RollbackTransaction(ctx context.Context) error {
	tx, ok := TxFromContext(ctx)
	if !ok {
		return ErrNoTransaction
	}
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback transaction: %w", err)
	}
	return nil
}

// Executor returns the transaction in ctx, or the database when there is
// none.
func (u *UnitOfWork) Executor(ctx context.Context) Executor {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return u.db
}

// TxFromContext returns the transaction opened by BeginTransaction.
func TxFromContext(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sql.Tx)
	return tx, ok
}
