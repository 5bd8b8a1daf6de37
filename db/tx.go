package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// ReadCommitted is the isolation used by every write path. Row locks and
// conditional updates carry the correctness, not the isolation level.
var ReadCommitted = pgx.TxOptions{IsoLevel: pgx.ReadCommitted}

// InTx runs fn inside a transaction. The transaction commits when fn returns
// nil and rolls back on error or panic. Storage failures are classified.
func InTx(ctx context.Context, b TxBeginner, opts pgx.TxOptions, fn func(pgx.Tx) error) (err error) {
	tx, err := b.BeginTx(ctx, opts)
	if err != nil {
		return Classify(fmt.Errorf("db: begin tx: %w", err))
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if err = fn(tx); err != nil {
		return Classify(err)
	}
	if err = tx.Commit(ctx); err != nil {
		return Classify(fmt.Errorf("db: commit tx: %w", err))
	}
	return nil
}
