package shipment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"freightmatch/apperr"
	"freightmatch/db"
)

var (
	ErrNotFound = apperr.New(apperr.NotFound, "shipment: not found")
	// ErrStateChanged signals a conditional write lost to a concurrent transition.
	ErrStateChanged = apperr.New(apperr.Conflict, "shipment: status changed concurrently")
)

// Repository is the storage contract of the catalog.
type Repository interface {
	Create(ctx context.Context, s Shipment) (Shipment, error)
	GetByID(ctx context.Context, id string) (Shipment, error)
	List(ctx context.Context, filters Filters) ([]Shipment, int, error)
	UpdateDetails(ctx context.Context, id, shipperID string, params UpdateParams) (Shipment, error)
	AdvanceStatus(ctx context.Context, id, shipperID string, from, to Status) (Shipment, error)
	DeleteOpen(ctx context.Context, id, shipperID string) error
	Stats(ctx context.Context) (Stats, error)
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Columns lists the shipment columns in ScanRow order. Other packages that
// join shipments select them with a table alias through ColumnsWithAlias.
var Columns = []string{
	"id", "shipper_id", "carrier_id", "status",
	"cargo_name", "cargo_description", "cargo_weight", "cargo_volume", "cargo_value",
	"pickup_address", "pickup_city", "pickup_prefecture", "pickup_postal_code",
	"pickup_date", "pickup_time_from", "pickup_time_to",
	"delivery_address", "delivery_city", "delivery_prefecture", "delivery_postal_code",
	"delivery_date", "delivery_time_from", "delivery_time_to",
	"required_vehicle_type", "needs_helper", "needs_lift_gate", "temperature", "special_instructions",
	"budget", "created_at", "updated_at",
}

// ColumnsWithAlias returns Columns prefixed with alias and joined for a select list.
func ColumnsWithAlias(alias string) string {
	out := make([]string, len(Columns))
	for i, c := range Columns {
		out[i] = alias + "." + c
	}
	return strings.Join(out, ", ")
}

var returning = "RETURNING " + strings.Join(Columns, ", ")

func (r *PGRepository) Create(ctx context.Context, s Shipment) (Shipment, error) {
	query, args, err := db.SQL.Insert("shipments").
		Columns(
			"shipper_id", "status",
			"cargo_name", "cargo_description", "cargo_weight", "cargo_volume", "cargo_value",
			"pickup_address", "pickup_city", "pickup_prefecture", "pickup_postal_code",
			"pickup_date", "pickup_time_from", "pickup_time_to",
			"delivery_address", "delivery_city", "delivery_prefecture", "delivery_postal_code",
			"delivery_date", "delivery_time_from", "delivery_time_to",
			"required_vehicle_type", "needs_helper", "needs_lift_gate", "temperature", "special_instructions",
			"budget",
		).
		Values(
			s.ShipperID, StatusOpen,
			s.CargoName, s.CargoDescription, s.CargoWeight, s.CargoVolume, s.CargoValue,
			s.Pickup.Address, s.Pickup.City, s.Pickup.Prefecture, s.Pickup.PostalCode,
			s.Pickup.Date, s.Pickup.TimeFrom, s.Pickup.TimeTo,
			s.Delivery.Address, s.Delivery.City, s.Delivery.Prefecture, s.Delivery.PostalCode,
			s.Delivery.Date, s.Delivery.TimeFrom, s.Delivery.TimeTo,
			s.RequiredVehicleType, s.NeedsHelper, s.NeedsLiftGate, s.Temperature, s.SpecialInstructions,
			s.Budget,
		).
		Suffix(returning).
		ToSql()
	if err != nil {
		return Shipment{}, fmt.Errorf("shipment: build insert: %w", err)
	}

	created, err := ScanRow(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return Shipment{}, db.Classify(fmt.Errorf("shipment: create: %w", err))
	}
	return created, nil
}

func (r *PGRepository) GetByID(ctx context.Context, id string) (Shipment, error) {
	if !db.ValidUUID(id) {
		return Shipment{}, ErrNotFound
	}
	query := `SELECT ` + strings.Join(Columns, ", ") + ` FROM shipments WHERE id = $1`

	s, err := ScanRow(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Shipment{}, ErrNotFound
		}
		return Shipment{}, db.Classify(fmt.Errorf("shipment: get: %w", err))
	}
	return s, nil
}

func (r *PGRepository) List(ctx context.Context, filters Filters) ([]Shipment, int, error) {
	filters = normalizeFilters(filters)

	where := sq.And{}
	if filters.ShipperID != "" {
		where = append(where, sq.Eq{"shipper_id": filters.ShipperID})
	}
	if filters.Status != "" {
		where = append(where, sq.Eq{"status": string(filters.Status)})
	}
	if filters.PickupPrefecture != "" {
		where = append(where, sq.Eq{"pickup_prefecture": filters.PickupPrefecture})
	}
	if filters.DeliveryPrefecture != "" {
		where = append(where, sq.Eq{"delivery_prefecture": filters.DeliveryPrefecture})
	}
	if filters.VehicleType != "" {
		where = append(where, sq.Eq{"required_vehicle_type": string(filters.VehicleType)})
	}
	if kw := strings.TrimSpace(filters.Keyword); kw != "" {
		pattern := "%" + db.EscapeLike(kw) + "%"
		where = append(where, sq.Or{
			sq.ILike{"cargo_name": pattern},
			sq.ILike{"cargo_description": pattern},
			sq.ILike{"pickup_address": pattern},
			sq.ILike{"pickup_city": pattern},
			sq.ILike{"delivery_address": pattern},
			sq.ILike{"delivery_city": pattern},
		})
	}

	listQuery, args, err := db.SQL.Select(Columns...).
		From("shipments").
		Where(where).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(filters.PageSize)).
		Offset(uint64((filters.Page - 1) * filters.PageSize)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("shipment: build list: %w", err)
	}

	rows, err := r.pool.Query(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, db.Classify(fmt.Errorf("shipment: query list: %w", err))
	}
	defer rows.Close()

	list := []Shipment{}
	for rows.Next() {
		s, err := ScanRow(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("shipment: scan list: %w", err)
		}
		list = append(list, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, db.Classify(fmt.Errorf("shipment: iterate list: %w", err))
	}

	countQuery, countArgs, err := db.SQL.Select("COUNT(*)").From("shipments").Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("shipment: build count: %w", err)
	}
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, db.Classify(fmt.Errorf("shipment: count list: %w", err))
	}

	return list, total, nil
}

// UpdateDetails edits descriptive fields while the shipment is still OPEN.
func (r *PGRepository) UpdateDetails(ctx context.Context, id, shipperID string, params UpdateParams) (Shipment, error) {
	b := db.SQL.Update("shipments").
		Set("updated_at", sq.Expr("now()")).
		Where(sq.Eq{"id": id, "shipper_id": shipperID, "status": string(StatusOpen)}).
		Suffix(returning)
	if params.CargoDescription != nil {
		b = b.Set("cargo_description", *params.CargoDescription)
	}
	if params.Temperature != nil {
		b = b.Set("temperature", *params.Temperature)
	}
	if params.SpecialInstructions != nil {
		b = b.Set("special_instructions", *params.SpecialInstructions)
	}
	query, args, err := b.ToSql()
	if err != nil {
		return Shipment{}, fmt.Errorf("shipment: build update: %w", err)
	}

	s, err := ScanRow(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Shipment{}, ErrStateChanged
		}
		return Shipment{}, db.Classify(fmt.Errorf("shipment: update details: %w", err))
	}
	return s, nil
}

// AdvanceStatus moves the shipment from one post-match status to the next.
// The predicate on the current status makes the write a compare-and-swap.
func (r *PGRepository) AdvanceStatus(ctx context.Context, id, shipperID string, from, to Status) (Shipment, error) {
	query := `
		UPDATE shipments
		SET status = $4, updated_at = now()
		WHERE id = $1 AND shipper_id = $2 AND status = $3
		` + returning

	s, err := ScanRow(r.pool.QueryRow(ctx, query, id, shipperID, from, to))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Shipment{}, ErrStateChanged
		}
		return Shipment{}, db.Classify(fmt.Errorf("shipment: advance status: %w", err))
	}
	return s, nil
}

// DeleteOpen removes an OPEN shipment owned by shipperID. Offers cascade.
func (r *PGRepository) DeleteOpen(ctx context.Context, id, shipperID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM shipments WHERE id = $1 AND shipper_id = $2 AND status = 'OPEN'`, id, shipperID)
	if err != nil {
		return db.Classify(fmt.Errorf("shipment: delete: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return ErrStateChanged
	}
	return nil
}

func (r *PGRepository) Stats(ctx context.Context) (Stats, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT status, COUNT(*), COALESCE(SUM(budget), 0)
		FROM shipments
		GROUP BY status
	`)
	if err != nil {
		return Stats{}, db.Classify(fmt.Errorf("shipment: stats: %w", err))
	}
	defer rows.Close()

	stats := Stats{ByStatus: make(map[Status]int, 5), OpenValue: decimal.Zero}
	for rows.Next() {
		var (
			status Status
			count  int
			sum    decimal.Decimal
		)
		if err := rows.Scan(&status, &count, &sum); err != nil {
			return Stats{}, fmt.Errorf("shipment: scan stats: %w", err)
		}
		stats.ByStatus[status] = count
		stats.Total += count
		if status == StatusOpen {
			stats.OpenValue = sum
		}
	}
	if err := rows.Err(); err != nil {
		return Stats{}, db.Classify(fmt.Errorf("shipment: iterate stats: %w", err))
	}
	return stats, nil
}

// ScanRow scans a row selected with Columns.
func ScanRow(row pgx.Row) (Shipment, error) {
	var s Shipment
	err := row.Scan(ScanTargets(&s)...)
	return s, err
}

// ScanTargets returns destinations for Columns, for callers scanning a
// shipment as part of a wider row.
func ScanTargets(s *Shipment) []any {
	return []any{
		&s.ID, &s.ShipperID, &s.CarrierID, &s.Status,
		&s.CargoName, &s.CargoDescription, &s.CargoWeight, &s.CargoVolume, &s.CargoValue,
		&s.Pickup.Address, &s.Pickup.City, &s.Pickup.Prefecture, &s.Pickup.PostalCode,
		&s.Pickup.Date, &s.Pickup.TimeFrom, &s.Pickup.TimeTo,
		&s.Delivery.Address, &s.Delivery.City, &s.Delivery.Prefecture, &s.Delivery.PostalCode,
		&s.Delivery.Date, &s.Delivery.TimeFrom, &s.Delivery.TimeTo,
		&s.RequiredVehicleType, &s.NeedsHelper, &s.NeedsLiftGate, &s.Temperature, &s.SpecialInstructions,
		&s.Budget, &s.CreatedAt, &s.UpdatedAt,
	}
}

func normalizeFilters(f Filters) Filters {
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
