package shipment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"freightmatch/apperr"
	"freightmatch/auth"
)

type fakeRepository struct {
	items  map[string]Shipment
	nextID int

	lastFilters Filters
	deleted     []string
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{items: map[string]Shipment{}}
}

func (f *fakeRepository) Create(_ context.Context, s Shipment) (Shipment, error) {
	f.nextID++
	s.ID = fmt.Sprintf("shipment-%d", f.nextID)
	s.CreatedAt = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.UpdatedAt = s.CreatedAt
	f.items[s.ID] = s
	return s, nil
}

func (f *fakeRepository) GetByID(_ context.Context, id string) (Shipment, error) {
	s, ok := f.items[id]
	if !ok {
		return Shipment{}, ErrNotFound
	}
	return s, nil
}

func (f *fakeRepository) List(_ context.Context, filters Filters) ([]Shipment, int, error) {
	f.lastFilters = filters
	var out []Shipment
	for _, s := range f.items {
		if filters.ShipperID != "" && s.ShipperID != filters.ShipperID {
			continue
		}
		out = append(out, s)
	}
	return out, len(out), nil
}

func (f *fakeRepository) UpdateDetails(_ context.Context, id, shipperID string, params UpdateParams) (Shipment, error) {
	s, ok := f.items[id]
	if !ok || s.ShipperID != shipperID || s.Status != StatusOpen {
		return Shipment{}, ErrStateChanged
	}
	if params.CargoDescription != nil {
		s.CargoDescription = params.CargoDescription
	}
	if params.Temperature != nil {
		s.Temperature = params.Temperature
	}
	if params.SpecialInstructions != nil {
		s.SpecialInstructions = params.SpecialInstructions
	}
	f.items[id] = s
	return s, nil
}

func (f *fakeRepository) AdvanceStatus(_ context.Context, id, shipperID string, from, to Status) (Shipment, error) {
	s, ok := f.items[id]
	if !ok || s.ShipperID != shipperID || s.Status != from {
		return Shipment{}, ErrStateChanged
	}
	s.Status = to
	f.items[id] = s
	return s, nil
}

func (f *fakeRepository) DeleteOpen(_ context.Context, id, shipperID string) error {
	s, ok := f.items[id]
	if !ok || s.ShipperID != shipperID || s.Status != StatusOpen {
		return ErrStateChanged
	}
	delete(f.items, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeRepository) Stats(context.Context) (Stats, error) {
	stats := Stats{ByStatus: map[Status]int{}, OpenValue: decimal.Zero}
	for _, s := range f.items {
		stats.Total++
		stats.ByStatus[s.Status]++
		if s.Status == StatusOpen {
			stats.OpenValue = stats.OpenValue.Add(s.Budget)
		}
	}
	return stats, nil
}

type stubVerifier map[string]bool

func (v stubVerifier) IsApproved(_ context.Context, userID string) (bool, error) {
	return v[userID], nil
}

type stubCanceller struct {
	repo  *fakeRepository
	calls int
}

func (c *stubCanceller) CancelShipment(_ context.Context, shipmentID, callerID string) (Shipment, error) {
	c.calls++
	s := c.repo.items[shipmentID]
	s.Status = StatusCancelled
	c.repo.items[shipmentID] = s
	return s, nil
}

var (
	shipper      = auth.Identity{UserID: "shipper-1", Role: auth.RoleShipper}
	otherShipper = auth.Identity{UserID: "shipper-2", Role: auth.RoleShipper}
	carrier      = auth.Identity{UserID: "carrier-1", Role: auth.RoleCarrier}
)

func validParams() CreateParams {
	pickup := time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)
	return CreateParams{
		CargoName:   "Machine parts",
		CargoWeight: decimal.RequireFromString("1200.5"),
		Pickup: Stop{
			Address:    "1-2-3 Shiba",
			City:       "Minato",
			Prefecture: "Tokyo",
			PostalCode: "105-0014",
			Date:       pickup,
		},
		Delivery: Stop{
			Address:    "4-5-6 Umeda",
			City:       "Kita",
			Prefecture: "Osaka",
			PostalCode: "530-0001",
			Date:       pickup.AddDate(0, 0, 1),
		},
		RequiredVehicleType: VehicleMediumTruck,
		Budget:              decimal.RequireFromString("85000"),
	}
}

func newTestService() (*Service, *fakeRepository, *stubCanceller) {
	repo := newFakeRepository()
	canceller := &stubCanceller{repo: repo}
	svc := NewService(repo, stubVerifier{shipper.UserID: true, otherShipper.UserID: true}, nil).
		WithCanceller(canceller)
	return svc, repo, canceller
}

func TestService_CreateOpensShipment(t *testing.T) {
	svc, _, _ := newTestService()

	created, err := svc.Create(context.Background(), shipper, validParams())
	if err != nil {
		t.Fatalf("create: unexpected error: %v", err)
	}
	if created.Status != StatusOpen {
		t.Fatalf("expected status %s, got %s", StatusOpen, created.Status)
	}
	if created.ShipperID != shipper.UserID {
		t.Fatalf("expected shipper %q, got %q", shipper.UserID, created.ShipperID)
	}
	if created.CarrierID != nil {
		t.Fatalf("expected no carrier, got %q", *created.CarrierID)
	}
}

func TestService_CreateGates(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Create(ctx, carrier, validParams()); !errors.Is(err, ErrShipperOnly) {
		t.Fatalf("carrier create: expected ErrShipperOnly, got %v", err)
	}

	unverified := auth.Identity{UserID: "shipper-9", Role: auth.RoleShipper}
	if _, err := svc.Create(ctx, unverified, validParams()); !errors.Is(err, ErrNotVerified) {
		t.Fatalf("unverified create: expected ErrNotVerified, got %v", err)
	}
	if !apperr.IsKind(ErrNotVerified, apperr.Forbidden) {
		t.Fatal("expected unverified shipper to be forbidden")
	}
}

func TestService_CreateValidation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	noWeight := validParams()
	noWeight.CargoWeight = decimal.Zero
	_, err := svc.Create(ctx, shipper, noWeight)
	if !apperr.IsKind(err, apperr.Validation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(apperr.MessageOf(err), "cargoWeight") {
		t.Fatalf("expected message to name cargoWeight, got %q", apperr.MessageOf(err))
	}

	subCent := validParams()
	subCent.Budget = decimal.RequireFromString("0.001")
	if _, err := svc.Create(ctx, shipper, subCent); !apperr.IsKind(err, apperr.Validation) || !strings.Contains(apperr.MessageOf(err), "budget") {
		t.Fatalf("expected validation error naming budget, got %v", err)
	}

	badVehicle := validParams()
	badVehicle.RequiredVehicleType = "SPACESHIP"
	if _, err := svc.Create(ctx, shipper, badVehicle); !apperr.IsKind(err, apperr.Validation) {
		t.Fatalf("expected validation error for vehicle, got %v", err)
	}

	reversed := validParams()
	reversed.Delivery.Date = reversed.Pickup.Date.AddDate(0, 0, -1)
	if _, err := svc.Create(ctx, shipper, reversed); !errors.Is(err, ErrInvalidDates) {
		t.Fatalf("expected ErrInvalidDates, got %v", err)
	}

	badTime := validParams()
	tf := "25:99"
	badTime.Pickup.TimeFrom = &tf
	if _, err := svc.Create(ctx, shipper, badTime); !apperr.IsKind(err, apperr.Validation) {
		t.Fatalf("expected validation error for time window, got %v", err)
	}
}

func TestService_ListScopesShippers(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Create(ctx, shipper, validParams()); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Create(ctx, otherShipper, validParams()); err != nil {
		t.Fatalf("create: %v", err)
	}

	own, err := svc.List(ctx, shipper, Filters{ShipperID: otherShipper.UserID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if repo.lastFilters.ShipperID != shipper.UserID {
		t.Fatalf("expected shipper filter %q, got %q", shipper.UserID, repo.lastFilters.ShipperID)
	}
	if own.Total != 1 {
		t.Fatalf("expected 1 own shipment, got %d", own.Total)
	}

	all, err := svc.List(ctx, carrier, Filters{})
	if err != nil {
		t.Fatalf("list as carrier: %v", err)
	}
	if all.Total != 2 {
		t.Fatalf("expected carrier to see 2 shipments, got %d", all.Total)
	}

	if _, err := svc.List(ctx, carrier, Filters{Status: "LOST"}); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestService_UpdateDetails(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	created, err := svc.Create(ctx, shipper, validParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	note := "handle with care"
	updated, err := svc.Update(ctx, created.ID, shipper, UpdateParams{SpecialInstructions: &note})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.SpecialInstructions == nil || *updated.SpecialInstructions != note {
		t.Fatalf("expected instructions %q, got %v", note, updated.SpecialInstructions)
	}

	if _, err := svc.Update(ctx, created.ID, otherShipper, UpdateParams{SpecialInstructions: &note}); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}

	status := StatusInTransit
	if _, err := svc.Update(ctx, created.ID, shipper, UpdateParams{Status: &status, SpecialInstructions: &note}); !errors.Is(err, ErrMixedUpdate) {
		t.Fatalf("expected ErrMixedUpdate, got %v", err)
	}

	matched := repo.items[created.ID]
	carrierID := carrier.UserID
	matched.Status = StatusMatched
	matched.CarrierID = &carrierID
	repo.items[created.ID] = matched

	if _, err := svc.Update(ctx, created.ID, shipper, UpdateParams{SpecialInstructions: &note}); !errors.Is(err, ErrNotEditable) {
		t.Fatalf("expected ErrNotEditable, got %v", err)
	}
}

func TestService_UpdateStatusTransitions(t *testing.T) {
	svc, repo, canceller := newTestService()
	ctx := context.Background()

	created, err := svc.Create(ctx, shipper, validParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	matchedTarget := StatusMatched
	if _, err := svc.Update(ctx, created.ID, shipper, UpdateParams{Status: &matchedTarget}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("OPEN->MATCHED: expected ErrInvalidTransition, got %v", err)
	}

	unknown := Status("LOST")
	if _, err := svc.Update(ctx, created.ID, shipper, UpdateParams{Status: &unknown}); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}

	s := repo.items[created.ID]
	carrierID := carrier.UserID
	s.Status = StatusMatched
	s.CarrierID = &carrierID
	repo.items[created.ID] = s

	inTransit := StatusInTransit
	got, err := svc.Update(ctx, created.ID, shipper, UpdateParams{Status: &inTransit})
	if err != nil {
		t.Fatalf("MATCHED->IN_TRANSIT: %v", err)
	}
	if got.Status != StatusInTransit {
		t.Fatalf("expected %s, got %s", StatusInTransit, got.Status)
	}

	cancelled := StatusCancelled
	if _, err := svc.Update(ctx, created.ID, shipper, UpdateParams{Status: &cancelled}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("IN_TRANSIT->CANCELLED: expected ErrInvalidTransition, got %v", err)
	}
	if canceller.calls != 0 {
		t.Fatalf("expected canceller unused, got %d calls", canceller.calls)
	}

	delivered := StatusDelivered
	got, err = svc.Update(ctx, created.ID, shipper, UpdateParams{Status: &delivered})
	if err != nil {
		t.Fatalf("IN_TRANSIT->DELIVERED: %v", err)
	}
	if got.Status != StatusDelivered {
		t.Fatalf("expected %s, got %s", StatusDelivered, got.Status)
	}
}

func TestService_UpdateCancelRoutesThroughCanceller(t *testing.T) {
	svc, _, canceller := newTestService()
	ctx := context.Background()

	created, err := svc.Create(ctx, shipper, validParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	cancelled := StatusCancelled
	got, err := svc.Update(ctx, created.ID, shipper, UpdateParams{Status: &cancelled})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got.Status != StatusCancelled {
		t.Fatalf("expected %s, got %s", StatusCancelled, got.Status)
	}
	if canceller.calls != 1 {
		t.Fatalf("expected 1 canceller call, got %d", canceller.calls)
	}
}

func TestService_Delete(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	created, err := svc.Create(ctx, shipper, validParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.Delete(ctx, created.ID, otherShipper); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}

	s := repo.items[created.ID]
	s.Status = StatusCancelled
	repo.items[created.ID] = s
	if err := svc.Delete(ctx, created.ID, shipper); !errors.Is(err, ErrNotDeletable) {
		t.Fatalf("expected ErrNotDeletable, got %v", err)
	}

	s.Status = StatusOpen
	repo.items[created.ID] = s
	if err := svc.Delete(ctx, created.ID, shipper); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Get(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := svc.Delete(ctx, created.ID, shipper); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: expected ErrNotFound, got %v", err)
	}
}

func TestService_Stats(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Create(ctx, shipper, validParams()); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	s := repo.items["shipment-1"]
	s.Status = StatusCancelled
	repo.items["shipment-1"] = s

	stats, err := svc.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 {
		t.Fatalf("expected total 3, got %d", stats.Total)
	}
	if stats.ByStatus[StatusOpen] != 2 || stats.ByStatus[StatusCancelled] != 1 {
		t.Fatalf("unexpected status counts: %v", stats.ByStatus)
	}
	if !stats.OpenValue.Equal(decimal.RequireFromString("170000")) {
		t.Fatalf("expected open value 170000, got %s", stats.OpenValue)
	}
}

func TestStatus_OwnerCanAdvance(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusOpen, StatusMatched, false},
		{StatusOpen, StatusCancelled, false},
		{StatusMatched, StatusInTransit, true},
		{StatusMatched, StatusDelivered, false},
		{StatusInTransit, StatusDelivered, true},
		{StatusDelivered, StatusOpen, false},
		{StatusCancelled, StatusOpen, false},
	}
	for _, tc := range cases {
		if got := tc.from.OwnerCanAdvance(tc.to); got != tc.want {
			t.Fatalf("%s->%s: expected %v, got %v", tc.from, tc.to, tc.want, got)
		}
	}
}
