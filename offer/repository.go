package offer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"freightmatch/apperr"
	"freightmatch/db"
	"freightmatch/shipment"
)

var (
	ErrNotFound         = apperr.New(apperr.NotFound, "offer: not found")
	ErrShipmentNotFound = apperr.New(apperr.NotFound, "offer: shipment not found")
	ErrDuplicate        = apperr.New(apperr.Conflict, "offer: duplicate offer")
)

const outstandingConstraint = "offers_outstanding_uniq"

// Repository is the storage contract of the offer ledger. Methods taking a
// pgx.Tx run inside the caller's unit of work.
type Repository interface {
	LockShipment(ctx context.Context, tx pgx.Tx, shipmentID string) (shipment.Status, string, error)
	HasOutstanding(ctx context.Context, tx pgx.Tx, shipmentID, carrierID string) (bool, error)
	Insert(ctx context.Context, tx pgx.Tx, o Offer) (Offer, error)
	GetByID(ctx context.Context, id string) (Offer, string, error)
	List(ctx context.Context, q ListQuery) ([]Offer, int, error)
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Columns lists the offer columns in ScanRow order.
var Columns = []string{
	"id", "shipment_id", "carrier_id", "proposed_price", "message", "vehicle_info",
	"estimated_pickup_time", "estimated_delivery_time", "status", "created_at", "updated_at",
}

// ColumnsWithAlias returns Columns prefixed with alias and joined for a select list.
func ColumnsWithAlias(alias string) string {
	out := make([]string, len(Columns))
	for i, c := range Columns {
		out[i] = alias + "." + c
	}
	return strings.Join(out, ", ")
}

// LockShipment takes a share lock on the shipment row so that a concurrent
// accept or cancel cannot close it between the status check and the insert.
// It returns the shipment status and its owner.
func (r *PGRepository) LockShipment(ctx context.Context, tx pgx.Tx, shipmentID string) (shipment.Status, string, error) {
	if !db.ValidUUID(shipmentID) {
		return "", "", ErrShipmentNotFound
	}
	var (
		status    shipment.Status
		shipperID string
	)
	err := tx.QueryRow(ctx, `SELECT status, shipper_id FROM shipments WHERE id = $1 FOR SHARE`, shipmentID).
		Scan(&status, &shipperID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", ErrShipmentNotFound
		}
		return "", "", fmt.Errorf("offer: lock shipment: %w", err)
	}
	return status, shipperID, nil
}

func (r *PGRepository) HasOutstanding(ctx context.Context, tx pgx.Tx, shipmentID, carrierID string) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM offers
			WHERE shipment_id = $1 AND carrier_id = $2 AND status IN ('PENDING', 'ACCEPTED')
		)
	`, shipmentID, carrierID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("offer: check outstanding: %w", err)
	}
	return exists, nil
}

func (r *PGRepository) Insert(ctx context.Context, tx pgx.Tx, o Offer) (Offer, error) {
	query, args, err := db.SQL.Insert("offers").
		Columns("shipment_id", "carrier_id", "proposed_price", "message", "vehicle_info",
			"estimated_pickup_time", "estimated_delivery_time", "status").
		Values(o.ShipmentID, o.CarrierID, o.ProposedPrice, o.Message, o.VehicleInfo,
			o.EstimatedPickupTime, o.EstimatedDeliveryTime, StatusPending).
		Suffix("RETURNING " + strings.Join(Columns, ", ")).
		ToSql()
	if err != nil {
		return Offer{}, fmt.Errorf("offer: build insert: %w", err)
	}

	created, err := ScanRow(tx.QueryRow(ctx, query, args...))
	if err != nil {
		if db.IsUniqueViolation(err, outstandingConstraint) {
			return Offer{}, ErrDuplicate
		}
		return Offer{}, fmt.Errorf("offer: insert: %w", err)
	}
	return created, nil
}

// GetByID returns the offer and the id of the shipper owning its shipment.
func (r *PGRepository) GetByID(ctx context.Context, id string) (Offer, string, error) {
	if !db.ValidUUID(id) {
		return Offer{}, "", ErrNotFound
	}
	query := `SELECT ` + ColumnsWithAlias("o") + `, s.shipper_id
		FROM offers o
		JOIN shipments s ON s.id = o.shipment_id
		WHERE o.id = $1`

	var (
		o         Offer
		shipperID string
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(append(ScanTargets(&o), &shipperID)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Offer{}, "", ErrNotFound
		}
		return Offer{}, "", db.Classify(fmt.Errorf("offer: get: %w", err))
	}
	return o, shipperID, nil
}

func (r *PGRepository) List(ctx context.Context, q ListQuery) ([]Offer, int, error) {
	q.Filter = normalizeFilter(q.Filter)

	where := sq.And{}
	if q.CarrierID != "" {
		where = append(where, sq.Eq{"o.carrier_id": q.CarrierID})
	}
	if q.ShipperID != "" {
		where = append(where, sq.Eq{"s.shipper_id": q.ShipperID})
	}
	if q.ShipmentID != "" {
		where = append(where, sq.Eq{"o.shipment_id": q.ShipmentID})
	}
	if q.Status != "" {
		where = append(where, sq.Eq{"o.status": string(q.Status)})
	}

	listQuery, args, err := db.SQL.Select(ColumnsWithAlias("o")).
		From("offers o").
		Join("shipments s ON s.id = o.shipment_id").
		Where(where).
		OrderBy("o.created_at DESC", "o.id DESC").
		Limit(uint64(q.PageSize)).
		Offset(uint64((q.Page - 1) * q.PageSize)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("offer: build list: %w", err)
	}

	rows, err := r.pool.Query(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, db.Classify(fmt.Errorf("offer: query list: %w", err))
	}
	defer rows.Close()

	list := []Offer{}
	for rows.Next() {
		o, err := ScanRow(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("offer: scan list: %w", err)
		}
		list = append(list, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, db.Classify(fmt.Errorf("offer: iterate list: %w", err))
	}

	countQuery, countArgs, err := db.SQL.Select("COUNT(*)").
		From("offers o").
		Join("shipments s ON s.id = o.shipment_id").
		Where(where).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("offer: build count: %w", err)
	}
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, db.Classify(fmt.Errorf("offer: count list: %w", err))
	}
	return list, total, nil
}

// ScanRow scans a row selected with Columns.
func ScanRow(row pgx.Row) (Offer, error) {
	var o Offer
	err := row.Scan(ScanTargets(&o)...)
	return o, err
}

// ScanTargets returns destinations for Columns, for callers scanning an offer
// as part of a wider row.
func ScanTargets(o *Offer) []any {
	return []any{
		&o.ID, &o.ShipmentID, &o.CarrierID, &o.ProposedPrice, &o.Message, &o.VehicleInfo,
		&o.EstimatedPickupTime, &o.EstimatedDeliveryTime, &o.Status, &o.CreatedAt, &o.UpdatedAt,
	}
}

func normalizeFilter(f Filter) Filter {
	if f.Page <= 0 {
		f.Page = 1
	}
	switch {
	case f.PageSize <= 0:
		f.PageSize = 20
	case f.PageSize > 100:
		f.PageSize = 100
	}
	return f
}
