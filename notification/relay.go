package notification

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"freightmatch/db"
)

// Publisher delivers one claimed outbox message.
type Publisher interface {
	Publish(ctx context.Context, m Message) error
}

// RelayStore claims and settles outbox rows inside a relay transaction.
type RelayStore interface {
	Claim(ctx context.Context, tx pgx.Tx, limit int) ([]Message, error)
	MarkProcessed(ctx context.Context, tx pgx.Tx, id string) error
	MarkFailed(ctx context.Context, tx pgx.Tx, id, cause string, dead bool) error
}

type RelayConfig struct {
	Interval    time.Duration
	Batch       int
	MaxAttempts int
}

// Relay moves committed outbox rows to a Publisher. Several relays may run
// against the same table; SKIP LOCKED keeps their batches disjoint.
type Relay struct {
	pool      db.TxBeginner
	store     RelayStore
	publisher Publisher
	cfg       RelayConfig
	logger    *slog.Logger
}

func NewRelay(pool db.TxBeginner, store RelayStore, publisher Publisher, cfg RelayConfig, logger *slog.Logger) *Relay {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 50
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{pool: pool, store: store, publisher: publisher, cfg: cfg, logger: logger}
}

// RunOnce publishes one batch and returns how many rows were delivered.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	delivered := 0
	err := db.InTx(ctx, r.pool, db.ReadCommitted, func(tx pgx.Tx) error {
		msgs, err := r.store.Claim(ctx, tx, r.cfg.Batch)
		if err != nil {
			return err
		}
		for _, m := range msgs {
			if pubErr := r.publisher.Publish(ctx, m); pubErr != nil {
				dead := m.Attempts+1 >= r.cfg.MaxAttempts
				r.logger.Warn("outbox publish failed",
					"event", "outbox_publish_failed",
					"module", "notification",
					"layer", "relay",
					"outbox_id", m.ID,
					"topic", m.Topic,
					"attempts", m.Attempts+1,
					"dead", dead,
					"error", pubErr.Error(),
				)
				if err := r.store.MarkFailed(ctx, tx, m.ID, pubErr.Error(), dead); err != nil {
					return err
				}
				continue
			}
			if err := r.store.MarkProcessed(ctx, tx, m.ID); err != nil {
				return err
			}
			delivered++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return delivered, nil
}

// Run polls until ctx is cancelled. A full batch is followed immediately by
// another claim; otherwise the relay sleeps for the configured interval.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info("outbox relay started",
		"event", "outbox_relay_started",
		"module", "notification",
		"layer", "relay",
		"interval", r.cfg.Interval.String(),
		"batch", r.cfg.Batch,
	)
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		n, err := r.RunOnce(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Error("outbox relay batch failed",
				"event", "outbox_relay_failed",
				"module", "notification",
				"layer", "relay",
				"error", err.Error(),
			)
		}
		if n >= r.cfg.Batch {
			timer.Reset(0)
			continue
		}
		timer.Reset(r.cfg.Interval)
	}
}
