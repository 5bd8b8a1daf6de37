package rating

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"freightmatch/apperr"
	"freightmatch/auth"
	"freightmatch/db"
	"freightmatch/notification"
	"freightmatch/validate"
)

var (
	ErrSelfRating    = apperr.New(apperr.Validation, "rating: users cannot rate themselves")
	ErrMissingUserID = apperr.New(apperr.Validation, "rating: userId is required")
)

type Enqueuer interface {
	Enqueue(ctx context.Context, q notification.Execer, ns ...notification.Notification) error
}

type Service struct {
	pool   db.TxBeginner
	repo   Repository
	outbox Enqueuer
	logger *slog.Logger
}

func NewService(pool db.TxBeginner, repo Repository, outbox Enqueuer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{pool: pool, repo: repo, outbox: outbox, logger: logger}
}

// Submit stores a rating from caller and recomputes the rated user's trust
// score in the same transaction.
func (s *Service) Submit(ctx context.Context, caller auth.Identity, params SubmitParams) (Rating, error) {
	if err := validate.Struct(params); err != nil {
		return Rating{}, err
	}
	if params.RatedUserID == caller.UserID {
		return Rating{}, ErrSelfRating
	}

	var (
		created Rating
		score   = DefaultTrustScore
	)
	err := db.InTx(ctx, s.pool, db.ReadCommitted, func(tx pgx.Tx) error {
		if err := s.repo.LockUser(ctx, tx, params.RatedUserID); err != nil {
			return err
		}
		var err error
		created, err = s.repo.Insert(ctx, tx, Rating{
			RaterID:     caller.UserID,
			RatedUserID: params.RatedUserID,
			ShipmentID:  params.ShipmentID,
			Score:       params.Score,
			Comment:     params.Comment,
		})
		if err != nil {
			return err
		}

		sum, count, err := s.repo.Totals(ctx, tx, params.RatedUserID)
		if err != nil {
			return err
		}
		score = TrustScore(sum, count)
		if err := s.repo.SetTrustScore(ctx, tx, params.RatedUserID, score); err != nil {
			return err
		}

		return s.outbox.Enqueue(ctx, tx, notification.Notification{
			Topic:       notification.TopicRatingReceived,
			RecipientID: params.RatedUserID,
			Title:       "New rating received",
			Message:     "You received a " + strconv.Itoa(params.Score) + "-star rating.",
			Payload:     map[string]any{"ratingId": created.ID, "trustScore": score.StringFixed(1)},
		})
	})
	if err != nil {
		return Rating{}, err
	}

	s.logger.Info("rating submitted",
		"event", "rating_submitted",
		"module", "rating",
		"layer", "service",
		"rating_id", created.ID,
		"rated_user_id", created.RatedUserID,
		"trust_score", score.StringFixed(1),
	)
	return created, nil
}

// ListForUser returns the ratings userID received with their rounded mean.
func (s *Service) ListForUser(ctx context.Context, userID string) (Summary, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Summary{}, ErrMissingUserID
	}
	if !db.ValidUUID(userID) {
		return Summary{Items: []Rating{}, Average: DefaultTrustScore}, nil
	}

	items, err := s.repo.ListForUser(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	var sum int64
	for _, r := range items {
		sum += int64(r.Score)
	}
	return Summary{
		Items:   items,
		Average: TrustScore(sum, int64(len(items))),
		Total:   len(items),
	}, nil
}
