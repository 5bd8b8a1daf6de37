package offer

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an offer.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusAccepted Status = "ACCEPTED"
	StatusRejected Status = "REJECTED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRejected:
		return true
	default:
		return false
	}
}

// Offer is a carrier's priced bid on a shipment.
type Offer struct {
	ID                    string
	ShipmentID            string
	CarrierID             string
	ProposedPrice         decimal.Decimal
	Message               *string
	VehicleInfo           *string
	EstimatedPickupTime   *time.Time
	EstimatedDeliveryTime *time.Time
	Status                Status
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// CreateParams enumerates the caller-supplied fields of a new offer.
type CreateParams struct {
	ShipmentID            string          `json:"shipmentId" validate:"required,uuid"`
	ProposedPrice         decimal.Decimal `json:"proposedPrice" validate:"gt=0,money=12"`
	Message               *string         `json:"message,omitempty" validate:"omitempty,max=2000"`
	VehicleInfo           *string         `json:"vehicleInfo,omitempty" validate:"omitempty,max=200"`
	EstimatedPickupTime   *time.Time      `json:"estimatedPickupTime,omitempty"`
	EstimatedDeliveryTime *time.Time      `json:"estimatedDeliveryTime,omitempty"`
}

// Filter narrows a listing. Role scoping is applied by the service.
type Filter struct {
	ShipmentID string
	Status     Status
	Page       int
	PageSize   int
}

// ListQuery is Filter after role scoping.
type ListQuery struct {
	Filter
	CarrierID string
	ShipperID string
}

type ListResult struct {
	Items []Offer
	Total int
}
