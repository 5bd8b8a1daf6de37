package infra

import (
	"context"
	"fmt"
	"os"

	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

const (
	defaultImage = "postgres:16-alpine"
	credential   = "freightmatch"
)

// PGContainer is a throwaway Postgres started for one harness. The zero value
// stands for "no container" and terminates as a no-op.
type PGContainer struct {
	pg  *postgres.PostgresContainer
	DSN string
}

// StartPostgres16 runs Postgres 16 with the freightmatch role owning the
// freightmatch database. STRESS_TEST_PG_IMAGE swaps the image, e.g. to pin a
// digest in CI.
func StartPostgres16(ctx context.Context) (*PGContainer, error) {
	image := defaultImage
	if v := os.Getenv("STRESS_TEST_PG_IMAGE"); v != "" {
		image = v
	}

	pg, err := postgres.Run(ctx, image,
		postgres.WithDatabase(credential),
		postgres.WithUsername(credential),
		postgres.WithPassword(credential),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", image, err)
	}

	c := &PGContainer{pg: pg}
	if c.DSN, err = pg.ConnectionString(ctx, "sslmode=disable"); err != nil {
		_ = c.Terminate(ctx)
		return nil, fmt.Errorf("container dsn: %w", err)
	}
	return c, nil
}

func (c *PGContainer) Terminate(ctx context.Context) error {
	if c == nil || c.pg == nil {
		return nil
	}
	err := c.pg.Terminate(ctx)
	c.pg = nil
	return err
}
