package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

var (
	ErrNilUnitOfWork = errors.New("pipeline: unit of work is required")
	ErrNilLogger     = errors.New("pipeline: logger is required")
)

// UnitOfWork begins and ends database transactions. BeginTransaction returns
// a context carrying the open transaction; Commit and Rollback act on the
// transaction found in the context they are given. Implementations must be
// safe for concurrent use.
type UnitOfWork interface {
	BeginTransaction(ctx context.Context) (context.Context, error)
	CommitTransaction(ctx context.Context) error
	RollbackTransaction(ctx context.Context) error
}

// TransactionBehavior runs the rest of the pipeline inside a transaction.
// The transaction is committed when the next stage succeeds and rolled back
// when it or the commit fails. The stage's error is returned as-is.
type TransactionBehavior struct {
	uow    UnitOfWork
	logger *slog.Logger
}

func NewTransactionBehavior(uow UnitOfWork, logger *slog.Logger) (*TransactionBehavior, error) {
	if uow == nil {
		return nil, ErrNilUnitOfWork
	}
	if logger == nil {
		return nil, ErrNilLogger
	}
	return &TransactionBehavior{uow: uow, logger: logger}, nil
}

func (b *TransactionBehavior) Handle(ctx context.Context, req any, next Next) (resp any, err error) {
	name := RequestName(req)

	b.logger.InfoContext(ctx, "begin transaction", "request", name)
	txCtx, err := b.uow.BeginTransaction(ctx)
	if err != nil {
		return nil, err
	}

	// a panic raised by RollbackTransaction itself must not roll back again
	rolledBack := false
	defer func() {
		if r := recover(); r != nil {
			if !rolledBack {
				b.rollback(txCtx, name, fmt.Errorf("panic: %v", r))
			}
			panic(r)
		}
	}()

	resp, err = next(txCtx)
	if err == nil {
		err = b.uow.CommitTransaction(txCtx)
		if err == nil {
			b.logger.InfoContext(ctx, "committed transaction", "request", name)
			return resp, nil
		}
	}

	rolledBack = true
	if rbErr := b.rollback(txCtx, name, err); rbErr != nil {
		return nil, errors.Join(err, rbErr)
	}
	return nil, err
}

func (b *TransactionBehavior) rollback(ctx context.Context, name string, cause error) error {
	b.logger.InfoContext(ctx, "rollback transaction executed", "request", name, "error", cause)
	err := b.uow.RollbackTransaction(ctx)
	if err != nil {
		b.logger.ErrorContext(ctx, "rollback transaction failed", "request", name, "error", err)
	}
	return err
}
