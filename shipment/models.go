package shipment

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a shipment.
type Status string

const (
	StatusOpen      Status = "OPEN"
	StatusMatched   Status = "MATCHED"
	StatusInTransit Status = "IN_TRANSIT"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
)

// Valid reports whether s belongs to the closed status set.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusMatched, StatusInTransit, StatusDelivered, StatusCancelled:
		return true
	default:
		return false
	}
}

// HasCarrier reports whether a shipment in status s must carry a carrier.
func (s Status) HasCarrier() bool {
	switch s {
	case StatusMatched, StatusInTransit, StatusDelivered:
		return true
	default:
		return false
	}
}

// OwnerCanAdvance reports whether the owning shipper may move a shipment
// from s to next through a plain status edit. OPEN->MATCHED belongs to the
// matching engine and OPEN->CANCELLED goes through cancellation.
func (s Status) OwnerCanAdvance(next Status) bool {
	switch s {
	case StatusMatched:
		return next == StatusInTransit
	case StatusInTransit:
		return next == StatusDelivered
	default:
		return false
	}
}

// VehicleType is the class of vehicle a shipment requires.
type VehicleType string

const (
	VehicleLightTruck   VehicleType = "LIGHT_TRUCK"
	VehicleSmallTruck   VehicleType = "SMALL_TRUCK"
	VehicleMediumTruck  VehicleType = "MEDIUM_TRUCK"
	VehicleLargeTruck   VehicleType = "LARGE_TRUCK"
	VehicleTrailer      VehicleType = "TRAILER"
	VehicleRefrigerated VehicleType = "REFRIGERATED"
	VehicleFlatbed      VehicleType = "FLATBED"
	VehicleWing         VehicleType = "WING"
)

// Stop is a pickup or delivery location with its scheduling window.
type Stop struct {
	Address    string    `json:"address" validate:"required,max=255"`
	City       string    `json:"city" validate:"required,max=100"`
	Prefecture string    `json:"prefecture" validate:"required,max=50"`
	PostalCode string    `json:"postalCode" validate:"required,max=16"`
	Date       time.Time `json:"date" validate:"required"`
	TimeFrom   *string   `json:"timeFrom,omitempty" validate:"omitempty,datetime=15:04"`
	TimeTo     *string   `json:"timeTo,omitempty" validate:"omitempty,datetime=15:04"`
}

// Shipment mirrors the shipments table.
type Shipment struct {
	ID        string
	ShipperID string
	CarrierID *string
	Status    Status

	CargoName        string
	CargoDescription *string
	CargoWeight      decimal.Decimal
	CargoVolume      *decimal.Decimal
	CargoValue       *decimal.Decimal

	Pickup   Stop
	Delivery Stop

	RequiredVehicleType VehicleType
	NeedsHelper         bool
	NeedsLiftGate       bool
	Temperature         *string
	SpecialInstructions *string
	Budget              decimal.Decimal

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateParams enumerates the caller-supplied fields of a new shipment.
type CreateParams struct {
	CargoName           string           `json:"cargoName" validate:"required,max=200"`
	CargoDescription    *string          `json:"cargoDescription,omitempty" validate:"omitempty,max=2000"`
	CargoWeight         decimal.Decimal  `json:"cargoWeight" validate:"gt=0,money=12"`
	CargoVolume         *decimal.Decimal `json:"cargoVolume,omitempty" validate:"omitempty,gt=0,money=12"`
	CargoValue          *decimal.Decimal `json:"cargoValue,omitempty" validate:"omitempty,gt=0,money=14"`
	Pickup              Stop             `json:"pickup"`
	Delivery            Stop             `json:"delivery"`
	RequiredVehicleType VehicleType      `json:"requiredVehicleType" validate:"oneof=LIGHT_TRUCK SMALL_TRUCK MEDIUM_TRUCK LARGE_TRUCK TRAILER REFRIGERATED FLATBED WING"`
	NeedsHelper         bool             `json:"needsHelper"`
	NeedsLiftGate       bool             `json:"needsLiftGate"`
	Temperature         *string          `json:"temperature,omitempty" validate:"omitempty,max=50"`
	SpecialInstructions *string          `json:"specialInstructions,omitempty" validate:"omitempty,max=2000"`
	Budget              decimal.Decimal  `json:"budget" validate:"gt=0,money=12"`
}

// UpdateParams carries an owner's edit. Nil fields are left unchanged.
type UpdateParams struct {
	Status              *Status
	CargoDescription    *string
	Temperature         *string
	SpecialInstructions *string
}

func (p UpdateParams) hasDetails() bool {
	return p.CargoDescription != nil || p.Temperature != nil || p.SpecialInstructions != nil
}

// Filters narrows a catalog listing.
type Filters struct {
	ShipperID          string
	Status             Status
	PickupPrefecture   string
	DeliveryPrefecture string
	VehicleType        VehicleType
	Keyword            string
	Page               int
	PageSize           int
}

// ListResult is one page of a listing plus the total match count.
type ListResult struct {
	Items []Shipment
	Total int
}

// Stats counts shipments per status.
type Stats struct {
	Total     int
	ByStatus  map[Status]int
	OpenValue decimal.Decimal
}
