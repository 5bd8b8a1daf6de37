package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"freightmatch/apperr"
	"freightmatch/db/dbtest"
)

func TestInTx_CommitsOnSuccess(t *testing.T) {
	b := &dbtest.Beginner{}
	err := InTx(context.Background(), b, ReadCommitted, func(pgx.Tx) error { return nil })
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	tx := b.Last()
	if !tx.Committed {
		t.Errorf("expected commit to be called")
	}
	if tx.RolledBack {
		t.Errorf("expected rollback to be skipped after commit")
	}
	if b.Opts[0].IsoLevel != pgx.ReadCommitted {
		t.Errorf("expected read committed, got %q", b.Opts[0].IsoLevel)
	}
}

func TestInTx_RollsBackOnError(t *testing.T) {
	b := &dbtest.Beginner{}
	want := apperr.New(apperr.Conflict, "offer: not pending")
	err := InTx(context.Background(), b, ReadCommitted, func(pgx.Tx) error { return want })
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
	tx := b.Last()
	if tx.Committed {
		t.Errorf("expected commit to be skipped")
	}
	if !tx.RolledBack {
		t.Errorf("expected rollback to be called")
	}
}

func TestInTx_RollsBackOnPanic(t *testing.T) {
	b := &dbtest.Beginner{}
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected panic to propagate")
		}
		if !b.Last().RolledBack {
			t.Errorf("expected rollback on panic")
		}
	}()
	_ = InTx(context.Background(), b, ReadCommitted, func(pgx.Tx) error { panic("boom") })
}

func TestInTx_BeginFailureIsClassified(t *testing.T) {
	b := &dbtest.Beginner{BeginErr: context.DeadlineExceeded}
	err := InTx(context.Background(), b, ReadCommitted, func(pgx.Tx) error { return nil })
	if apperr.KindOf(err) != apperr.Retryable {
		t.Fatalf("expected retryable, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want apperr.Kind
	}{
		{"deadlock", &pgconn.PgError{Code: CodeDeadlockDetected}, apperr.Retryable},
		{"serialization", fmt.Errorf("wrap: %w", &pgconn.PgError{Code: CodeSerializationFailure}), apperr.Retryable},
		{"statement timeout", &pgconn.PgError{Code: CodeQueryCanceled}, apperr.Retryable},
		{"lock timeout", &pgconn.PgError{Code: CodeLockNotAvailable}, apperr.Retryable},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), apperr.Retryable},
		{"unique", &pgconn.PgError{Code: CodeUniqueViolation}, apperr.Internal},
		{"domain error", apperr.New(apperr.NotFound, "offer: not found"), apperr.NotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := apperr.KindOf(Classify(tc.err)); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: CodeUniqueViolation, ConstraintName: "offers_outstanding_uniq"})
	if !IsUniqueViolation(err, "") {
		t.Fatalf("expected unique violation")
	}
	if !IsUniqueViolation(err, "offers_outstanding_uniq") {
		t.Fatalf("expected named constraint to match")
	}
	if IsUniqueViolation(err, "users_email_key") {
		t.Fatalf("expected other constraint not to match")
	}
}
