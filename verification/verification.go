// Package verification answers whether a shipper or carrier account has
// passed business document review, and lets administrators record a decision.
package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"freightmatch/apperr"
	"freightmatch/auth"
	"freightmatch/db"
	"freightmatch/notification"
)

var (
	ErrNotFound        = apperr.New(apperr.NotFound, "verification: user not found")
	ErrForbidden       = apperr.New(apperr.Forbidden, "verification: only administrators may review accounts")
	ErrInvalidDecision = apperr.New(apperr.Validation, "verification: decision must be APPROVED or REJECTED")
)

// Repository reads and writes the verification column of users.
type Repository interface {
	Status(ctx context.Context, userID string) (auth.VerificationStatus, error)
	SetStatus(ctx context.Context, userID string, status auth.VerificationStatus) error
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) Status(ctx context.Context, userID string) (auth.VerificationStatus, error) {
	if !db.ValidUUID(userID) {
		return "", ErrNotFound
	}
	var status auth.VerificationStatus
	err := r.pool.QueryRow(ctx, `SELECT verification_status FROM users WHERE id = $1`, userID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", db.Classify(fmt.Errorf("verification: status: %w", err))
	}
	return status, nil
}

func (r *PGRepository) SetStatus(ctx context.Context, userID string, status auth.VerificationStatus) error {
	if !db.ValidUUID(userID) {
		return ErrNotFound
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE users
		SET verification_status = $2, updated_at = now()
		WHERE id = $1 AND role <> 'ADMIN'
	`, userID, status)
	if err != nil {
		return db.Classify(fmt.Errorf("verification: set status: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Service exposes the lookup used by the catalog and ledger, and the admin review.
type Service struct {
	repo       Repository
	dispatcher notification.Dispatcher
	logger     *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, dispatcher: notification.Nop{}, logger: logger}
}

// WithDispatcher sets where review outcomes are announced to the account.
func (s *Service) WithDispatcher(d notification.Dispatcher) *Service {
	s.dispatcher = d
	return s
}

// IsApproved reports whether userID has been approved.
func (s *Service) IsApproved(ctx context.Context, userID string) (bool, error) {
	status, err := s.repo.Status(ctx, userID)
	if err != nil {
		return false, err
	}
	return status == auth.VerificationApproved, nil
}

// Status returns the current verification status of userID.
func (s *Service) Status(ctx context.Context, userID string) (auth.VerificationStatus, error) {
	return s.repo.Status(ctx, userID)
}

// Review records an administrator's decision for userID.
func (s *Service) Review(ctx context.Context, caller auth.Identity, userID string, decision auth.VerificationStatus) error {
	if caller.Role != auth.RoleAdmin {
		return ErrForbidden
	}

	switch decision {
	case auth.VerificationApproved, auth.VerificationRejected:
	default:
		return ErrInvalidDecision
	}

	if err := s.repo.SetStatus(ctx, userID, decision); err != nil {
		return err
	}

	s.logger.Info("account verification reviewed",
		"event", "verification_reviewed",
		"module", "verification",
		"layer", "service",
		"user_id", userID,
		"reviewer_id", caller.UserID,
		"decision", string(decision),
	)

	msg := "Your business documents were approved. You can now post shipments and offers."
	if decision == auth.VerificationRejected {
		msg = "Your business documents were not approved. Please contact support."
	}
	if err := s.dispatcher.Dispatch(ctx, notification.Notification{
		Topic:       notification.TopicVerificationReviewed,
		RecipientID: userID,
		Title:       "Verification " + strings.ToLower(string(decision)),
		Message:     msg,
		Payload:     map[string]any{"status": string(decision)},
	}); err != nil {
		s.logger.Warn("verification notice not dispatched",
			"event", "verification_notice_failed",
			"module", "verification",
			"layer", "service",
			"user_id", userID,
			"error", err.Error(),
		)
	}
	return nil
}
