package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"freightmatch/apperr"
	"freightmatch/auth"
	"freightmatch/db"
)

var (
	ErrItemNotFound     = apperr.New(apperr.NotFound, "notification: not found")
	ErrRecipientMissing = apperr.New(apperr.NotFound, "notification: recipient not found")
	ErrAdminOnly        = apperr.New(apperr.Forbidden, "notification: only administrators may broadcast")
	ErrInvalidAudience  = apperr.New(apperr.Validation, "notification: audience must be ALL, SHIPPERS, CARRIERS or USER")
	ErrEmptyBroadcast   = apperr.New(apperr.Validation, "notification: title and message are required")
)

// inboxLimit caps the number of notifications returned by a listing.
const inboxLimit = 50

// Item is a delivered notification as its recipient sees it.
type Item struct {
	ID        string
	Type      string
	Title     string
	Message   string
	Payload   map[string]any
	IsRead    bool
	ReadAt    *time.Time
	CreatedAt time.Time
}

type InboxPage struct {
	Items       []Item
	UnreadCount int
}

// Audience selects the recipients of an administrator broadcast.
type Audience string

const (
	AudienceAll      Audience = "ALL"
	AudienceShippers Audience = "SHIPPERS"
	AudienceCarriers Audience = "CARRIERS"
	AudienceUser     Audience = "USER"
)

type BroadcastParams struct {
	Title    string
	Message  string
	Audience Audience
	UserID   string
}

type InboxRepository interface {
	Deliver(ctx context.Context, outboxID string, n Notification) error
	Recent(ctx context.Context, userID string, limit int) ([]Item, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, userID, id string) (Item, error)
	SoftDelete(ctx context.Context, userID, id string) error
	Recipients(ctx context.Context, audience Audience, userID string) ([]string, error)
}

type PGInbox struct {
	pool *pgxpool.Pool
}

func NewInboxRepository(pool *pgxpool.Pool) *PGInbox {
	return &PGInbox{pool: pool}
}

const itemColumns = `id, type, title, message, payload, is_read, read_at, created_at`

// Deliver stores n for its recipient. Redelivery of the same outbox row is a
// no-op, and a recipient deleted since the event is skipped.
func (r *PGInbox) Deliver(ctx context.Context, outboxID string, n Notification) error {
	payload := n.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notification: marshal inbox payload: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO notifications (outbox_id, user_id, type, title, message, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (outbox_id) DO NOTHING
	`, outboxID, n.RecipientID, n.Topic, n.Title, n.Message, body)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return nil
		}
		return db.Classify(fmt.Errorf("notification: deliver: %w", err))
	}
	return nil
}

func (r *PGInbox) Recent(ctx context.Context, userID string, limit int) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+itemColumns+`
		FROM notifications
		WHERE user_id = $1 AND NOT is_deleted
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, db.Classify(fmt.Errorf("notification: query inbox: %w", err))
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("notification: scan inbox: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Classify(fmt.Errorf("notification: iterate inbox: %w", err))
	}
	return items, nil
}

func (r *PGInbox) CountUnread(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM notifications
		WHERE user_id = $1 AND NOT is_deleted AND NOT is_read
	`, userID).Scan(&n)
	if err != nil {
		return 0, db.Classify(fmt.Errorf("notification: count unread: %w", err))
	}
	return n, nil
}

func (r *PGInbox) MarkRead(ctx context.Context, userID, id string) (Item, error) {
	if !db.ValidUUID(id) {
		return Item{}, ErrItemNotFound
	}
	it, err := scanItem(r.pool.QueryRow(ctx, `
		UPDATE notifications
		SET is_read = true, read_at = COALESCE(read_at, now())
		WHERE id = $1 AND user_id = $2 AND NOT is_deleted
		RETURNING `+itemColumns, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrItemNotFound
		}
		return Item{}, db.Classify(fmt.Errorf("notification: mark read: %w", err))
	}
	return it, nil
}

func (r *PGInbox) SoftDelete(ctx context.Context, userID, id string) error {
	if !db.ValidUUID(id) {
		return ErrItemNotFound
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications SET is_deleted = true
		WHERE id = $1 AND user_id = $2 AND NOT is_deleted
	`, id, userID)
	if err != nil {
		return db.Classify(fmt.Errorf("notification: delete: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *PGInbox) Recipients(ctx context.Context, audience Audience, userID string) ([]string, error) {
	q := db.SQL.Select("id").From("users").Where("role <> 'ADMIN'").OrderBy("created_at")
	switch audience {
	case AudienceShippers:
		q = q.Where("role = ?", string(auth.RoleShipper))
	case AudienceCarriers:
		q = q.Where("role = ?", string(auth.RoleCarrier))
	case AudienceUser:
		if !db.ValidUUID(userID) {
			return nil, ErrRecipientMissing
		}
		q = q.Where("id = ?", userID)
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("notification: build recipients: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, db.Classify(fmt.Errorf("notification: query recipients: %w", err))
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, db.Classify(fmt.Errorf("notification: collect recipients: %w", err))
	}
	return ids, nil
}

func scanItem(row pgx.Row) (Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.Type, &it.Title, &it.Message, &it.Payload, &it.IsRead, &it.ReadAt, &it.CreatedAt)
	return it, err
}

// InboxPublisher delivers relayed messages into the recipient's inbox.
type InboxPublisher struct {
	repo InboxRepository
}

func NewInboxPublisher(repo InboxRepository) *InboxPublisher {
	return &InboxPublisher{repo: repo}
}

func (p *InboxPublisher) Publish(ctx context.Context, m Message) error {
	if m.RecipientID == "" {
		return nil
	}
	n := m.Notification
	n.RecipientID = m.RecipientID
	if n.Topic == "" {
		n.Topic = m.Topic
	}
	return p.repo.Deliver(ctx, m.ID, n)
}

// InboxService serves a user's own notifications and administrator broadcasts.
type InboxService struct {
	repo       InboxRepository
	dispatcher Dispatcher
	logger     *slog.Logger
}

func NewInboxService(repo InboxRepository, dispatcher Dispatcher, logger *slog.Logger) *InboxService {
	if dispatcher == nil {
		dispatcher = Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &InboxService{repo: repo, dispatcher: dispatcher, logger: logger}
}

// List returns the newest notifications and the unread total.
func (s *InboxService) List(ctx context.Context, userID string) (InboxPage, error) {
	items, err := s.repo.Recent(ctx, userID, inboxLimit)
	if err != nil {
		return InboxPage{}, err
	}
	unread, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return InboxPage{}, err
	}
	return InboxPage{Items: items, UnreadCount: unread}, nil
}

func (s *InboxService) MarkRead(ctx context.Context, userID, id string) (Item, error) {
	return s.repo.MarkRead(ctx, userID, id)
}

func (s *InboxService) Delete(ctx context.Context, userID, id string) error {
	return s.repo.SoftDelete(ctx, userID, id)
}

// Broadcast enqueues an announcement for every selected recipient and
// returns how many were addressed.
func (s *InboxService) Broadcast(ctx context.Context, caller auth.Identity, params BroadcastParams) (int, error) {
	if caller.Role != auth.RoleAdmin {
		return 0, ErrAdminOnly
	}
	params.Title = strings.TrimSpace(params.Title)
	params.Message = strings.TrimSpace(params.Message)
	if params.Title == "" || params.Message == "" {
		return 0, ErrEmptyBroadcast
	}
	switch params.Audience {
	case AudienceAll, AudienceShippers, AudienceCarriers, AudienceUser:
	default:
		return 0, ErrInvalidAudience
	}

	recipients, err := s.repo.Recipients(ctx, params.Audience, params.UserID)
	if err != nil {
		return 0, err
	}
	if params.Audience == AudienceUser && len(recipients) == 0 {
		return 0, ErrRecipientMissing
	}

	ns := make([]Notification, 0, len(recipients))
	for _, id := range recipients {
		ns = append(ns, Notification{
			Topic:       TopicAnnouncement,
			RecipientID: id,
			Title:       params.Title,
			Message:     params.Message,
			Payload:     map[string]any{"audience": string(params.Audience)},
		})
	}
	if err := s.dispatcher.Dispatch(ctx, ns...); err != nil {
		return 0, err
	}

	s.logger.Info("announcement broadcast",
		"event", "announcement_broadcast",
		"module", "notification",
		"layer", "service",
		"admin_id", caller.UserID,
		"audience", string(params.Audience),
		"recipients", len(ns),
	)
	return len(ns), nil
}
