package rating

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"freightmatch/apperr"
	"freightmatch/db"
)

var (
	ErrUserNotFound     = apperr.New(apperr.NotFound, "rating: rated user not found")
	ErrShipmentNotFound = apperr.New(apperr.NotFound, "rating: shipment not found")
	ErrDuplicate        = apperr.New(apperr.Conflict, "rating: already rated for this shipment")
)

const tripleConstraint = "ratings_triple_uniq"

type Repository interface {
	LockUser(ctx context.Context, tx pgx.Tx, userID string) error
	Insert(ctx context.Context, tx pgx.Tx, r Rating) (Rating, error)
	Totals(ctx context.Context, tx pgx.Tx, userID string) (sum, count int64, err error)
	SetTrustScore(ctx context.Context, tx pgx.Tx, userID string, score decimal.Decimal) error
	ListForUser(ctx context.Context, userID string) ([]Rating, error)
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// LockUser serializes concurrent submissions for the same rated user so the
// recomputed mean always covers every committed rating.
func (r *PGRepository) LockUser(ctx context.Context, tx pgx.Tx, userID string) error {
	var id string
	err := tx.QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return fmt.Errorf("rating: lock user: %w", err)
	}
	return nil
}

func (r *PGRepository) Insert(ctx context.Context, tx pgx.Tx, in Rating) (Rating, error) {
	out := in
	err := tx.QueryRow(ctx, `
		INSERT INTO ratings (rater_id, rated_user_id, shipment_id, score, comment)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, in.RaterID, in.RatedUserID, in.ShipmentID, in.Score, in.Comment).Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		switch {
		case db.IsUniqueViolation(err, tripleConstraint):
			return Rating{}, ErrDuplicate
		case db.IsForeignKeyViolation(err):
			return Rating{}, ErrShipmentNotFound
		}
		return Rating{}, fmt.Errorf("rating: insert: %w", err)
	}
	return out, nil
}

func (r *PGRepository) Totals(ctx context.Context, tx pgx.Tx, userID string) (int64, int64, error) {
	var sum, count int64
	err := tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(score), 0), COUNT(*)
		FROM ratings
		WHERE rated_user_id = $1
	`, userID).Scan(&sum, &count)
	if err != nil {
		return 0, 0, fmt.Errorf("rating: totals: %w", err)
	}
	return sum, count, nil
}

func (r *PGRepository) SetTrustScore(ctx context.Context, tx pgx.Tx, userID string, score decimal.Decimal) error {
	if _, err := tx.Exec(ctx, `UPDATE users SET trust_score = $2, updated_at = now() WHERE id = $1`, userID, score); err != nil {
		return fmt.Errorf("rating: set trust score: %w", err)
	}
	return nil
}

func (r *PGRepository) ListForUser(ctx context.Context, userID string) ([]Rating, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT r.id, r.rater_id, u.company_name, r.rated_user_id, r.shipment_id, r.score, r.comment, r.created_at
		FROM ratings r
		JOIN users u ON u.id = r.rater_id
		WHERE r.rated_user_id = $1
		ORDER BY r.created_at DESC, r.id DESC
	`, userID)
	if err != nil {
		return nil, db.Classify(fmt.Errorf("rating: query list: %w", err))
	}
	defer rows.Close()

	list := []Rating{}
	for rows.Next() {
		var rt Rating
		if err := rows.Scan(&rt.ID, &rt.RaterID, &rt.RaterCompany, &rt.RatedUserID, &rt.ShipmentID, &rt.Score, &rt.Comment, &rt.CreatedAt); err != nil {
			return nil, fmt.Errorf("rating: scan list: %w", err)
		}
		list = append(list, rt)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Classify(fmt.Errorf("rating: iterate list: %w", err))
	}
	return list, nil
}
