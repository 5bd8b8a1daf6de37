package matching

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"freightmatch/db"
	"freightmatch/offer"
	"freightmatch/shipment"
)

const singleAcceptedConstraint = "offers_single_accepted_uniq"

// Repository holds the row-level operations of the engine. Every method runs
// inside the caller's transaction; conditional updates return the
// package conflict errors when their predicate no longer holds.
type Repository interface {
	LoadForUpdate(ctx context.Context, tx pgx.Tx, offerID string) (offer.Offer, shipment.Shipment, error)
	LockShipment(ctx context.Context, tx pgx.Tx, shipmentID string) (shipment.Shipment, error)
	MatchShipment(ctx context.Context, tx pgx.Tx, shipmentID, carrierID string) (shipment.Shipment, error)
	CancelShipment(ctx context.Context, tx pgx.Tx, shipmentID string) (shipment.Shipment, error)
	AcceptOffer(ctx context.Context, tx pgx.Tx, offerID string) (offer.Offer, error)
	RejectOffer(ctx context.Context, tx pgx.Tx, offerID string) (offer.Offer, error)
	RejectPending(ctx context.Context, tx pgx.Tx, shipmentID, exceptOfferID string) ([]offer.Offer, error)
}

type PGRepository struct{}

func NewRepository() *PGRepository {
	return &PGRepository{}
}

var (
	shipmentColumns = strings.Join(shipment.Columns, ", ")
	offerColumns    = strings.Join(offer.Columns, ", ")
)

// LoadForUpdate locks the shipment row and then the offer row. Taking the
// shipment first everywhere keeps accept, reject, cancel and offer creation
// from deadlocking each other. An offer's shipment_id never changes, so the
// unlocked lookup is safe.
func (PGRepository) LoadForUpdate(ctx context.Context, tx pgx.Tx, offerID string) (offer.Offer, shipment.Shipment, error) {
	if !db.ValidUUID(offerID) {
		return offer.Offer{}, shipment.Shipment{}, ErrOfferNotFound
	}
	var shipmentID string
	err := tx.QueryRow(ctx, `SELECT shipment_id FROM offers WHERE id = $1`, offerID).Scan(&shipmentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return offer.Offer{}, shipment.Shipment{}, ErrOfferNotFound
		}
		return offer.Offer{}, shipment.Shipment{}, fmt.Errorf("matching: resolve offer: %w", err)
	}

	s, err := lockShipment(ctx, tx, shipmentID)
	if err != nil {
		if errors.Is(err, ErrShipmentNotFound) {
			// The shipment was deleted after the lookup; its offers cascaded.
			return offer.Offer{}, shipment.Shipment{}, ErrOfferNotFound
		}
		return offer.Offer{}, shipment.Shipment{}, err
	}

	o, err := offer.ScanRow(tx.QueryRow(ctx, `SELECT `+offerColumns+` FROM offers WHERE id = $1 FOR UPDATE`, offerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return offer.Offer{}, shipment.Shipment{}, ErrOfferNotFound
		}
		return offer.Offer{}, shipment.Shipment{}, fmt.Errorf("matching: lock offer: %w", err)
	}
	return o, s, nil
}

func (PGRepository) LockShipment(ctx context.Context, tx pgx.Tx, shipmentID string) (shipment.Shipment, error) {
	if !db.ValidUUID(shipmentID) {
		return shipment.Shipment{}, ErrShipmentNotFound
	}
	return lockShipment(ctx, tx, shipmentID)
}

func lockShipment(ctx context.Context, tx pgx.Tx, shipmentID string) (shipment.Shipment, error) {
	s, err := shipment.ScanRow(tx.QueryRow(ctx, `SELECT `+shipmentColumns+` FROM shipments WHERE id = $1 FOR UPDATE`, shipmentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return shipment.Shipment{}, ErrShipmentNotFound
		}
		return shipment.Shipment{}, fmt.Errorf("matching: lock shipment: %w", err)
	}
	return s, nil
}

// MatchShipment is the compare-and-swap OPEN -> MATCHED.
func (PGRepository) MatchShipment(ctx context.Context, tx pgx.Tx, shipmentID, carrierID string) (shipment.Shipment, error) {
	s, err := shipment.ScanRow(tx.QueryRow(ctx, `
		UPDATE shipments
		SET status = 'MATCHED', carrier_id = $2, updated_at = now()
		WHERE id = $1 AND status = 'OPEN'
		RETURNING `+shipmentColumns, shipmentID, carrierID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return shipment.Shipment{}, ErrShipmentClosed
		}
		return shipment.Shipment{}, fmt.Errorf("matching: match shipment: %w", err)
	}
	return s, nil
}

// CancelShipment is the compare-and-swap OPEN -> CANCELLED.
func (PGRepository) CancelShipment(ctx context.Context, tx pgx.Tx, shipmentID string) (shipment.Shipment, error) {
	s, err := shipment.ScanRow(tx.QueryRow(ctx, `
		UPDATE shipments
		SET status = 'CANCELLED', updated_at = now()
		WHERE id = $1 AND status = 'OPEN'
		RETURNING `+shipmentColumns, shipmentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return shipment.Shipment{}, ErrShipmentClosed
		}
		return shipment.Shipment{}, fmt.Errorf("matching: cancel shipment: %w", err)
	}
	return s, nil
}

func (PGRepository) AcceptOffer(ctx context.Context, tx pgx.Tx, offerID string) (offer.Offer, error) {
	o, err := offer.ScanRow(tx.QueryRow(ctx, `
		UPDATE offers
		SET status = 'ACCEPTED', updated_at = now()
		WHERE id = $1 AND status = 'PENDING'
		RETURNING `+offerColumns, offerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return offer.Offer{}, ErrOfferNotPending
		}
		if db.IsUniqueViolation(err, singleAcceptedConstraint) {
			return offer.Offer{}, ErrShipmentClosed
		}
		return offer.Offer{}, fmt.Errorf("matching: accept offer: %w", err)
	}
	return o, nil
}

func (PGRepository) RejectOffer(ctx context.Context, tx pgx.Tx, offerID string) (offer.Offer, error) {
	o, err := offer.ScanRow(tx.QueryRow(ctx, `
		UPDATE offers
		SET status = 'REJECTED', updated_at = now()
		WHERE id = $1 AND status = 'PENDING'
		RETURNING `+offerColumns, offerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return offer.Offer{}, ErrOfferNotPending
		}
		return offer.Offer{}, fmt.Errorf("matching: reject offer: %w", err)
	}
	return o, nil
}

// RejectPending rejects every PENDING offer on the shipment except
// exceptOfferID, when set, and returns the rejected rows.
func (PGRepository) RejectPending(ctx context.Context, tx pgx.Tx, shipmentID, exceptOfferID string) ([]offer.Offer, error) {
	where := sq.And{sq.Eq{"shipment_id": shipmentID, "status": string(offer.StatusPending)}}
	if exceptOfferID != "" {
		where = append(where, sq.NotEq{"id": exceptOfferID})
	}
	query, args, err := db.SQL.Update("offers").
		Set("status", string(offer.StatusRejected)).
		Set("updated_at", sq.Expr("now()")).
		Where(where).
		Suffix("RETURNING " + offerColumns).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("matching: build reject pending: %w", err)
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("matching: reject pending: %w", err)
	}
	defer rows.Close()

	var rejected []offer.Offer
	for rows.Next() {
		o, err := offer.ScanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("matching: scan rejected: %w", err)
		}
		rejected = append(rejected, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("matching: iterate rejected: %w", err)
	}
	return rejected, nil
}
