// Package dbtest provides in-memory stand-ins for pgx transactions so service
// tests can assert commit and rollback behaviour without a database.
package dbtest

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Beginner hands out FakeTx values and records them.
type Beginner struct {
	mu       sync.Mutex
	BeginErr error
	Txs      []*FakeTx
	Opts     []pgx.TxOptions
}

func (b *Beginner) BeginTx(_ context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	if b.BeginErr != nil {
		return nil, b.BeginErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	tx := &FakeTx{}
	b.Txs = append(b.Txs, tx)
	b.Opts = append(b.Opts, opts)
	return tx, nil
}

// Last returns the most recently started transaction, or nil.
func (b *Beginner) Last() *FakeTx {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.Txs) == 0 {
		return nil
	}
	return b.Txs[len(b.Txs)-1]
}

// FakeTx records Commit and Rollback. Query methods are not supported.
type FakeTx struct {
	CommitErr  error
	Committed  bool
	RolledBack bool
}

func (f *FakeTx) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("dbtest: nested transactions are not supported")
}

func (f *FakeTx) Commit(context.Context) error {
	if f.CommitErr != nil {
		return f.CommitErr
	}
	f.Committed = true
	return nil
}

func (f *FakeTx) Rollback(context.Context) error {
	if f.Committed {
		return pgx.ErrTxClosed
	}
	f.RolledBack = true
	return nil
}

func (f *FakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}

func (f *FakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}

func (f *FakeTx) LargeObjects() pgx.LargeObjects {
	panic("not implemented")
}

func (f *FakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}

func (f *FakeTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}

func (f *FakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (f *FakeTx) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not implemented")
}

func (f *FakeTx) Conn() *pgx.Conn {
	return nil
}
