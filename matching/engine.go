// Package matching decides which carrier gets a shipment.
//
// Accepting an offer moves three kinds of rows at once: the offer becomes
// ACCEPTED, the shipment becomes MATCHED with the offer's carrier, and every
// other PENDING offer on the shipment becomes REJECTED. All of it happens in
// one READ COMMITTED transaction that holds row locks on the shipment and
// the offer, and every write is conditional on the state it expects. Two
// shippers, or one shipper clicking twice, racing to accept different offers
// on the same shipment therefore produce exactly one winner; the others see
// the shipment is no longer OPEN and fail with a conflict.
//
// Notifications are written to the outbox in the same transaction, so they
// are published only once the decision has committed.
package matching

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"freightmatch/apperr"
	"freightmatch/db"
	"freightmatch/notification"
	"freightmatch/offer"
	"freightmatch/shipment"
)

var (
	ErrOfferNotFound    = apperr.New(apperr.NotFound, "matching: offer not found")
	ErrShipmentNotFound = apperr.New(apperr.NotFound, "matching: shipment not found")
	ErrNotOwner         = apperr.New(apperr.Forbidden, "matching: only the shipment owner may decide")
	ErrShipmentClosed   = apperr.New(apperr.Conflict, "matching: shipment already matched or closed")
	ErrOfferNotPending  = apperr.New(apperr.Conflict, "matching: offer is no longer pending")
)

// Enqueuer writes notifications inside an open transaction.
type Enqueuer interface {
	Enqueue(ctx context.Context, q notification.Execer, ns ...notification.Notification) error
}

// AcceptResult is the committed outcome of an accept.
type AcceptResult struct {
	Offer    offer.Offer
	Shipment shipment.Shipment
	Rejected []offer.Offer
}

// RejectedIDs lists the sibling offers closed by the accept.
func (r AcceptResult) RejectedIDs() []string {
	ids := make([]string, len(r.Rejected))
	for i, o := range r.Rejected {
		ids[i] = o.ID
	}
	return ids
}

// CancelResult is the committed outcome of a cancellation.
type CancelResult struct {
	Shipment shipment.Shipment
	Rejected []offer.Offer
}

type Engine struct {
	pool   db.TxBeginner
	repo   Repository
	outbox Enqueuer
	logger *slog.Logger
}

func NewEngine(pool db.TxBeginner, repo Repository, outbox Enqueuer, logger *slog.Logger) *Engine {
	if repo == nil {
		repo = NewRepository()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{pool: pool, repo: repo, outbox: outbox, logger: logger}
}

// Accept awards the offer's shipment to its carrier. Notices are written to the
// outbox in the same transaction, so a failed outbox insert aborts the match
// like any other storage error; publishing happens later in the relay and its
// failures never affect the match.
func (e *Engine) Accept(ctx context.Context, offerID, callerID string) (AcceptResult, error) {
	var res AcceptResult
	err := db.InTx(ctx, e.pool, db.ReadCommitted, func(tx pgx.Tx) error {
		o, s, err := e.repo.LoadForUpdate(ctx, tx, offerID)
		if err != nil {
			return err
		}
		if s.ShipperID != callerID {
			return ErrNotOwner
		}
		if s.Status != shipment.StatusOpen {
			return ErrShipmentClosed
		}
		if o.Status != offer.StatusPending {
			return ErrOfferNotPending
		}

		if res.Shipment, err = e.repo.MatchShipment(ctx, tx, s.ID, o.CarrierID); err != nil {
			return err
		}
		if res.Offer, err = e.repo.AcceptOffer(ctx, tx, o.ID); err != nil {
			return err
		}
		if res.Rejected, err = e.repo.RejectPending(ctx, tx, s.ID, o.ID); err != nil {
			return err
		}

		ns := make([]notification.Notification, 0, len(res.Rejected)+1)
		ns = append(ns, notification.Notification{
			Topic:       notification.TopicOfferAccepted,
			RecipientID: res.Offer.CarrierID,
			Title:       "Offer accepted",
			Message:     "Your offer was accepted. The shipment is now matched to you.",
			Payload:     map[string]any{"offerId": res.Offer.ID, "shipmentId": s.ID},
		})
		for _, r := range res.Rejected {
			ns = append(ns, rejectedNotice(r, "Another carrier's offer was accepted for this shipment."))
		}
		return e.outbox.Enqueue(ctx, tx, ns...)
	})
	if err != nil {
		e.logFailure("accept", offerID, callerID, err)
		return AcceptResult{}, err
	}

	e.logger.Info("offer accepted",
		"event", "offer_accepted",
		"module", "matching",
		"layer", "engine",
		"offer_id", res.Offer.ID,
		"shipment_id", res.Shipment.ID,
		"carrier_id", res.Offer.CarrierID,
		"rejected", len(res.Rejected),
	)
	return res, nil
}

// Reject declines one PENDING offer. The shipment is left untouched.
func (e *Engine) Reject(ctx context.Context, offerID, callerID string) (offer.Offer, error) {
	var rejected offer.Offer
	err := db.InTx(ctx, e.pool, db.ReadCommitted, func(tx pgx.Tx) error {
		o, s, err := e.repo.LoadForUpdate(ctx, tx, offerID)
		if err != nil {
			return err
		}
		if s.ShipperID != callerID {
			return ErrNotOwner
		}
		if o.Status != offer.StatusPending {
			return ErrOfferNotPending
		}
		if rejected, err = e.repo.RejectOffer(ctx, tx, o.ID); err != nil {
			return err
		}
		return e.outbox.Enqueue(ctx, tx, rejectedNotice(rejected, "The shipper declined your offer."))
	})
	if err != nil {
		e.logFailure("reject", offerID, callerID, err)
		return offer.Offer{}, err
	}

	e.logger.Info("offer rejected",
		"event", "offer_rejected",
		"module", "matching",
		"layer", "engine",
		"offer_id", rejected.ID,
		"shipment_id", rejected.ShipmentID,
	)
	return rejected, nil
}

// Cancel closes an OPEN shipment and rejects its pending offers.
func (e *Engine) Cancel(ctx context.Context, shipmentID, callerID string) (CancelResult, error) {
	var res CancelResult
	err := db.InTx(ctx, e.pool, db.ReadCommitted, func(tx pgx.Tx) error {
		s, err := e.repo.LockShipment(ctx, tx, shipmentID)
		if err != nil {
			return err
		}
		if s.ShipperID != callerID {
			return ErrNotOwner
		}
		if s.Status != shipment.StatusOpen {
			return ErrShipmentClosed
		}
		if res.Shipment, err = e.repo.CancelShipment(ctx, tx, s.ID); err != nil {
			return err
		}
		if res.Rejected, err = e.repo.RejectPending(ctx, tx, s.ID, ""); err != nil {
			return err
		}

		ns := make([]notification.Notification, 0, len(res.Rejected))
		for _, r := range res.Rejected {
			ns = append(ns, notification.Notification{
				Topic:       notification.TopicShipmentCancelled,
				RecipientID: r.CarrierID,
				Title:       "Shipment cancelled",
				Message:     "The shipper cancelled a shipment you made an offer on.",
				Payload:     map[string]any{"offerId": r.ID, "shipmentId": s.ID},
			})
		}
		return e.outbox.Enqueue(ctx, tx, ns...)
	})
	if err != nil {
		e.logFailure("cancel", shipmentID, callerID, err)
		return CancelResult{}, err
	}

	e.logger.Info("shipment cancelled",
		"event", "shipment_cancelled",
		"module", "matching",
		"layer", "engine",
		"shipment_id", res.Shipment.ID,
		"rejected", len(res.Rejected),
	)
	return res, nil
}

// CancelShipment adapts Cancel to the catalog's status edit.
func (e *Engine) CancelShipment(ctx context.Context, shipmentID, callerID string) (shipment.Shipment, error) {
	res, err := e.Cancel(ctx, shipmentID, callerID)
	if err != nil {
		return shipment.Shipment{}, err
	}
	return res.Shipment, nil
}

func rejectedNotice(o offer.Offer, msg string) notification.Notification {
	return notification.Notification{
		Topic:       notification.TopicOfferRejected,
		RecipientID: o.CarrierID,
		Title:       "Offer rejected",
		Message:     msg,
		Payload:     map[string]any{"offerId": o.ID, "shipmentId": o.ShipmentID},
	}
}

// logFailure records unexpected failures. Expected outcomes of a race, such
// as conflicts, are logged at debug level.
func (e *Engine) logFailure(op, id, callerID string, err error) {
	level := slog.LevelError
	switch apperr.KindOf(err) {
	case apperr.NotFound, apperr.Forbidden, apperr.Conflict:
		level = slog.LevelDebug
	case apperr.Retryable:
		level = slog.LevelWarn
	}
	e.logger.Log(context.Background(), level, "matching operation failed",
		"event", "matching_"+op+"_failed",
		"module", "matching",
		"layer", "engine",
		"target_id", id,
		"caller_id", callerID,
		"kind", string(apperr.KindOf(err)),
		"error", err.Error(),
	)
}
