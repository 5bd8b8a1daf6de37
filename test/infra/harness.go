package infra

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoDatabase means neither a DSN, Docker, nor a local Postgres is available.
var ErrNoDatabase = errors.New("infra: no postgres available")

// Harness owns the database used by one test run.
type Harness struct {
	container *PGContainer
	pool      *pgxpool.Pool
	dsn       string
	teardown  func(context.Context) error
}

// NewHarness resolves a database in order: overrideDSN, STRESS_TEST_PG_DSN,
// DATABASE_URL, a Postgres 16 container, a local Postgres. Shared databases
// get an isolated schema.
func NewHarness(ctx context.Context, overrideDSN string) (*Harness, error) {
	h := &Harness{container: &PGContainer{}}
	shared := true

	switch {
	case overrideDSN != "":
		h.dsn = overrideDSN
	case os.Getenv("STRESS_TEST_PG_DSN") != "":
		h.dsn = os.Getenv("STRESS_TEST_PG_DSN")
	case os.Getenv("DATABASE_URL") != "":
		h.dsn = os.Getenv("DATABASE_URL")
	case dockerAvailable(ctx):
		c, err := StartPostgres16(ctx)
		if err != nil {
			return nil, fmt.Errorf("start postgres: %w", err)
		}
		h.container, h.dsn, shared = c, c.DSN, false
	default:
		dsn, err := InitLocalDatabase(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoDatabase, err)
		}
		h.dsn, shared = dsn, false
	}

	pool, teardown, err := ApplyMigrations(ctx, h.dsn, shared)
	if err != nil {
		_ = h.container.Terminate(ctx)
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	h.pool, h.teardown = pool, teardown
	return h, nil
}

func (h *Harness) Pool() *pgxpool.Pool {
	return h.pool
}

// Close tears down resources. The schema teardown runs before the pool closes
// because migrating down needs a live connection.
func (h *Harness) Close(ctx context.Context) error {
	var errs []error
	if h.teardown != nil {
		errs = append(errs, h.teardown(ctx))
	}
	if h.pool != nil {
		h.pool.Close()
	}
	errs = append(errs, h.container.Terminate(ctx))
	return errors.Join(errs...)
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}
