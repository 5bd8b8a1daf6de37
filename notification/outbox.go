package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"freightmatch/db"
)

// Execer is satisfied by pgx.Tx and pgxpool.Pool.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Outbox writes notifications into the outbox table.
type Outbox struct {
	db Execer
}

func NewOutbox(db Execer) *Outbox {
	return &Outbox{db: db}
}

// Enqueue inserts ns through q, normally the caller's open transaction, so
// the notifications commit or roll back with the change they describe.
func (o *Outbox) Enqueue(ctx context.Context, q Execer, ns ...Notification) error {
	if len(ns) == 0 {
		return nil
	}
	b := db.SQL.Insert("outbox").Columns("topic", "recipient_id", "payload")
	for _, n := range ns {
		body, err := json.Marshal(n)
		if err != nil {
			return fmt.Errorf("notification: marshal outbox payload: %w", err)
		}
		var recipient any
		if n.RecipientID != "" {
			recipient = n.RecipientID
		}
		b = b.Values(n.Topic, recipient, body)
	}
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("notification: build outbox insert: %w", err)
	}
	if _, err := q.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("notification: enqueue outbox: %w", err)
	}
	return nil
}

// Dispatch enqueues outside any caller transaction.
func (o *Outbox) Dispatch(ctx context.Context, ns ...Notification) error {
	return db.Classify(o.Enqueue(ctx, o.db, ns...))
}

// OutboxStore is the relay's view of the outbox table.
type OutboxStore struct{}

// Claim locks up to limit pending rows, oldest first, skipping rows another
// relay already holds.
func (OutboxStore) Claim(ctx context.Context, tx pgx.Tx, limit int) ([]Message, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, topic, COALESCE(recipient_id::text, ''), payload, attempts, created_at
		FROM outbox
		WHERE status = 'pending'
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("notification: claim outbox: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Topic, &m.RecipientID, &m.Body, &m.Attempts, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("notification: scan outbox: %w", err)
		}
		if err := json.Unmarshal(m.Body, &m.Notification); err != nil {
			return nil, fmt.Errorf("notification: decode outbox %s: %w", m.ID, err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("notification: iterate outbox: %w", err)
	}
	return msgs, nil
}

func (OutboxStore) MarkProcessed(ctx context.Context, tx pgx.Tx, id string) error {
	_, err := tx.Exec(ctx, `UPDATE outbox SET status = 'processed', last_attempt = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("notification: mark processed: %w", err)
	}
	return nil
}

// MarkFailed records a failed attempt. dead moves the row out of the
// pending set for good.
func (OutboxStore) MarkFailed(ctx context.Context, tx pgx.Tx, id, cause string, dead bool) error {
	status := "pending"
	if dead {
		status = "dead"
	}
	_, err := tx.Exec(ctx, `
		UPDATE outbox
		SET attempts = attempts + 1, last_error = $2, last_attempt = now(), status = $3
		WHERE id = $1
	`, id, cause, status)
	if err != nil {
		return fmt.Errorf("notification: mark failed: %w", err)
	}
	return nil
}
