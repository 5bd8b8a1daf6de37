package shipment

import (
	"context"
	"fmt"
	"log/slog"

	"freightmatch/apperr"
	"freightmatch/auth"
	"freightmatch/validate"
)

var (
	ErrShipperOnly       = apperr.New(apperr.Forbidden, "shipment: only shippers can create shipments")
	ErrNotVerified       = apperr.New(apperr.Forbidden, "shipment: shipper is not verified")
	ErrNotOwner          = apperr.New(apperr.Forbidden, "shipment: not owned by caller")
	ErrInvalidStatus     = apperr.New(apperr.Validation, "shipment: unknown status")
	ErrInvalidDates      = apperr.New(apperr.Validation, "shipment: delivery date must not precede pickup date")
	ErrMixedUpdate       = apperr.New(apperr.Validation, "shipment: status and details cannot be changed together")
	ErrInvalidTransition = apperr.New(apperr.Conflict, "shipment: status transition not allowed")
	ErrNotEditable       = apperr.New(apperr.Conflict, "shipment: only open shipments can be edited")
	ErrNotDeletable      = apperr.New(apperr.Conflict, "shipment: only open shipments can be deleted")
)

// VerificationLookup reports whether an account has passed review.
type VerificationLookup interface {
	IsApproved(ctx context.Context, userID string) (bool, error)
}

// Canceller closes an OPEN shipment together with its pending offers.
type Canceller interface {
	CancelShipment(ctx context.Context, shipmentID, callerID string) (Shipment, error)
}

// Service implements the shipment catalog.
type Service struct {
	repo      Repository
	verifier  VerificationLookup
	canceller Canceller
	logger    *slog.Logger
}

func NewService(repo Repository, verifier VerificationLookup, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		verifier: verifier,
		logger:   logger,
	}
}

// WithCanceller wires the component that performs OPEN->CANCELLED.
func (s *Service) WithCanceller(c Canceller) *Service {
	s.canceller = c
	return s
}

func (s *Service) Create(ctx context.Context, caller auth.Identity, params CreateParams) (Shipment, error) {
	if caller.Role != auth.RoleShipper {
		return Shipment{}, ErrShipperOnly
	}
	approved, err := s.verifier.IsApproved(ctx, caller.UserID)
	if err != nil {
		return Shipment{}, err
	}
	if !approved {
		return Shipment{}, ErrNotVerified
	}

	if err := validate.Struct(params); err != nil {
		return Shipment{}, err
	}
	if params.Delivery.Date.Before(params.Pickup.Date) {
		return Shipment{}, ErrInvalidDates
	}

	created, err := s.repo.Create(ctx, Shipment{
		ShipperID:           caller.UserID,
		Status:              StatusOpen,
		CargoName:           params.CargoName,
		CargoDescription:    params.CargoDescription,
		CargoWeight:         params.CargoWeight,
		CargoVolume:         params.CargoVolume,
		CargoValue:          params.CargoValue,
		Pickup:              params.Pickup,
		Delivery:            params.Delivery,
		RequiredVehicleType: params.RequiredVehicleType,
		NeedsHelper:         params.NeedsHelper,
		NeedsLiftGate:       params.NeedsLiftGate,
		Temperature:         params.Temperature,
		SpecialInstructions: params.SpecialInstructions,
		Budget:              params.Budget,
	})
	if err != nil {
		return Shipment{}, err
	}

	s.logger.Info("shipment created",
		"event", "shipment_created",
		"module", "shipment",
		"layer", "service",
		"shipment_id", created.ID,
		"shipper_id", created.ShipperID,
	)
	return created, nil
}

// List returns a page of shipments. Shippers only ever see their own.
func (s *Service) List(ctx context.Context, caller auth.Identity, filters Filters) (ListResult, error) {
	switch caller.Role {
	case auth.RoleShipper:
		filters.ShipperID = caller.UserID
	case auth.RoleCarrier, auth.RoleAdmin:
	default:
		return ListResult{}, ErrNotOwner
	}
	if filters.Status != "" && !filters.Status.Valid() {
		return ListResult{}, ErrInvalidStatus
	}

	items, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return ListResult{}, err
	}
	return ListResult{Items: items, Total: total}, nil
}

func (s *Service) Get(ctx context.Context, id string) (Shipment, error) {
	return s.repo.GetByID(ctx, id)
}

// Update applies an owner's edit. Descriptive fields change only while OPEN;
// status edits are limited to the post-match progression and cancellation.
func (s *Service) Update(ctx context.Context, id string, caller auth.Identity, params UpdateParams) (Shipment, error) {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Shipment{}, err
	}
	if current.ShipperID != caller.UserID {
		return Shipment{}, ErrNotOwner
	}
	if params.Status != nil && params.hasDetails() {
		return Shipment{}, ErrMixedUpdate
	}

	if params.Status != nil {
		return s.changeStatus(ctx, current, caller, *params.Status)
	}
	if !params.hasDetails() {
		return current, nil
	}
	if current.Status != StatusOpen {
		return Shipment{}, ErrNotEditable
	}
	return s.repo.UpdateDetails(ctx, current.ID, caller.UserID, params)
}

func (s *Service) changeStatus(ctx context.Context, current Shipment, caller auth.Identity, target Status) (Shipment, error) {
	if !target.Valid() {
		return Shipment{}, ErrInvalidStatus
	}
	if target == current.Status {
		return current, nil
	}

	if target == StatusCancelled {
		if current.Status != StatusOpen {
			return Shipment{}, ErrInvalidTransition
		}
		if s.canceller == nil {
			return Shipment{}, fmt.Errorf("shipment: cancellation is not configured")
		}
		return s.canceller.CancelShipment(ctx, current.ID, caller.UserID)
	}

	if !current.Status.OwnerCanAdvance(target) {
		return Shipment{}, ErrInvalidTransition
	}
	updated, err := s.repo.AdvanceStatus(ctx, current.ID, caller.UserID, current.Status, target)
	if err != nil {
		return Shipment{}, err
	}

	s.logger.Info("shipment status advanced",
		"event", "shipment_status_advanced",
		"module", "shipment",
		"layer", "service",
		"shipment_id", updated.ID,
		"from", string(current.Status),
		"to", string(updated.Status),
	)
	return updated, nil
}

// Delete removes an OPEN shipment owned by the caller.
func (s *Service) Delete(ctx context.Context, id string, caller auth.Identity) error {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if current.ShipperID != caller.UserID {
		return ErrNotOwner
	}
	if current.Status != StatusOpen {
		return ErrNotDeletable
	}
	if err := s.repo.DeleteOpen(ctx, id, caller.UserID); err != nil {
		return err
	}

	s.logger.Info("shipment deleted",
		"event", "shipment_deleted",
		"module", "shipment",
		"layer", "service",
		"shipment_id", id,
	)
	return nil
}

// Stats reports counts per status computed from the store.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	return s.repo.Stats(ctx)
}
