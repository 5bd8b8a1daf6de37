package chaos

import (
	"context"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TerminateRandomBackend kills a random client backend of the current
// database on roughly one tick in oneIn, failing in-flight transactions.
func TerminateRandomBackend(ctx context.Context, pool *pgxpool.Pool, every time.Duration, oneIn int, stop <-chan struct{}) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if oneIn <= 1 || rand.Intn(oneIn) == 0 {
				_, _ = pool.Exec(ctx, `
					SELECT pg_terminate_backend(pid) FROM pg_stat_activity
					WHERE datname = current_database() AND pid <> pg_backend_pid() AND backend_type = 'client backend'
					ORDER BY random() LIMIT 1`)
			}
		}
	}
}
