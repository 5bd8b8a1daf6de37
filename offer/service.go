package offer

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"freightmatch/apperr"
	"freightmatch/auth"
	"freightmatch/db"
	"freightmatch/notification"
	"freightmatch/shipment"
	"freightmatch/validate"
)

var (
	ErrCarrierOnly   = apperr.New(apperr.Forbidden, "offer: only carriers can submit offers")
	ErrNotVerified   = apperr.New(apperr.Forbidden, "offer: carrier is not verified")
	ErrNotVisible    = apperr.New(apperr.Forbidden, "offer: not visible to caller")
	ErrNotAccepting  = apperr.New(apperr.Conflict, "offer: shipment no longer accepting offers")
	ErrInvalidStatus = apperr.New(apperr.Validation, "offer: unknown status")
	ErrInvalidFilter = apperr.New(apperr.Validation, "offer: shipmentId must be a valid id")
)

type VerificationLookup interface {
	IsApproved(ctx context.Context, userID string) (bool, error)
}

// Enqueuer writes notifications inside an open transaction.
type Enqueuer interface {
	Enqueue(ctx context.Context, q notification.Execer, ns ...notification.Notification) error
}

// Service implements the offer ledger.
type Service struct {
	pool     db.TxBeginner
	repo     Repository
	verifier VerificationLookup
	outbox   Enqueuer
	logger   *slog.Logger
}

func NewService(pool db.TxBeginner, repo Repository, verifier VerificationLookup, outbox Enqueuer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		pool:     pool,
		repo:     repo,
		verifier: verifier,
		outbox:   outbox,
		logger:   logger,
	}
}

// Create records a PENDING offer. The shipment row is share-locked for the
// duration of the insert, so an offer can never land on a shipment that a
// concurrent accept or cancel has already closed.
func (s *Service) Create(ctx context.Context, caller auth.Identity, params CreateParams) (Offer, error) {
	if caller.Role != auth.RoleCarrier {
		return Offer{}, ErrCarrierOnly
	}
	approved, err := s.verifier.IsApproved(ctx, caller.UserID)
	if err != nil {
		return Offer{}, err
	}
	if !approved {
		return Offer{}, ErrNotVerified
	}
	if err := validate.Struct(params); err != nil {
		return Offer{}, err
	}

	var created Offer
	err = db.InTx(ctx, s.pool, db.ReadCommitted, func(tx pgx.Tx) error {
		status, shipperID, err := s.repo.LockShipment(ctx, tx, params.ShipmentID)
		if err != nil {
			return err
		}
		if status != shipment.StatusOpen {
			return ErrNotAccepting
		}
		exists, err := s.repo.HasOutstanding(ctx, tx, params.ShipmentID, caller.UserID)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicate
		}

		created, err = s.repo.Insert(ctx, tx, Offer{
			ShipmentID:            params.ShipmentID,
			CarrierID:             caller.UserID,
			ProposedPrice:         params.ProposedPrice,
			Message:               params.Message,
			VehicleInfo:           params.VehicleInfo,
			EstimatedPickupTime:   params.EstimatedPickupTime,
			EstimatedDeliveryTime: params.EstimatedDeliveryTime,
		})
		if err != nil {
			return err
		}

		return s.outbox.Enqueue(ctx, tx, notification.Notification{
			Topic:       notification.TopicOfferCreated,
			RecipientID: shipperID,
			Title:       "New offer received",
			Message:     "A carrier has submitted an offer on your shipment.",
			Payload: map[string]any{
				"offerId":       created.ID,
				"shipmentId":    created.ShipmentID,
				"carrierId":     created.CarrierID,
				"proposedPrice": created.ProposedPrice.String(),
			},
		})
	})
	if err != nil {
		return Offer{}, err
	}

	s.logger.Info("offer created",
		"event", "offer_created",
		"module", "offer",
		"layer", "service",
		"offer_id", created.ID,
		"shipment_id", created.ShipmentID,
		"carrier_id", created.CarrierID,
	)
	return created, nil
}

// List applies role scoping: carriers see their own offers, shippers see
// offers on shipments they own, administrators see everything.
func (s *Service) List(ctx context.Context, caller auth.Identity, filter Filter) (ListResult, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return ListResult{}, ErrInvalidStatus
	}
	if filter.ShipmentID != "" && !db.ValidUUID(filter.ShipmentID) {
		return ListResult{}, ErrInvalidFilter
	}
	q := ListQuery{Filter: filter}
	switch caller.Role {
	case auth.RoleCarrier:
		q.CarrierID = caller.UserID
	case auth.RoleShipper:
		q.ShipperID = caller.UserID
	case auth.RoleAdmin:
	default:
		return ListResult{}, ErrNotVisible
	}

	items, total, err := s.repo.List(ctx, q)
	if err != nil {
		return ListResult{}, err
	}
	return ListResult{Items: items, Total: total}, nil
}

// Get returns an offer to its carrier, the shipment owner, or an administrator.
func (s *Service) Get(ctx context.Context, caller auth.Identity, id string) (Offer, error) {
	o, shipperID, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Offer{}, err
	}
	switch {
	case caller.Role == auth.RoleAdmin:
	case caller.UserID == o.CarrierID:
	case caller.UserID == shipperID:
	default:
		return Offer{}, ErrNotVisible
	}
	return o, nil
}
