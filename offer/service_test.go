package offer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"freightmatch/apperr"
	"freightmatch/auth"
	"freightmatch/db/dbtest"
	"freightmatch/notification"
	"freightmatch/shipment"
)

const (
	openShipment   = "5f0c8a52-8b0e-4d4f-9d0c-1a2b3c4d5e01"
	closedShipment = "5f0c8a52-8b0e-4d4f-9d0c-1a2b3c4d5e02"
	missing        = "5f0c8a52-8b0e-4d4f-9d0c-1a2b3c4d5e03"
)

type fakeShipment struct {
	status    shipment.Status
	shipperID string
}

type fakeRepository struct {
	shipments map[string]fakeShipment
	offers    map[string]Offer
	nextID    int
	lastQuery ListQuery
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		shipments: map[string]fakeShipment{
			openShipment:   {status: shipment.StatusOpen, shipperID: "shipper-1"},
			closedShipment: {status: shipment.StatusMatched, shipperID: "shipper-1"},
		},
		offers: map[string]Offer{},
	}
}

func (f *fakeRepository) LockShipment(_ context.Context, _ pgx.Tx, id string) (shipment.Status, string, error) {
	s, ok := f.shipments[id]
	if !ok {
		return "", "", ErrShipmentNotFound
	}
	return s.status, s.shipperID, nil
}

func (f *fakeRepository) HasOutstanding(_ context.Context, _ pgx.Tx, shipmentID, carrierID string) (bool, error) {
	for _, o := range f.offers {
		if o.ShipmentID == shipmentID && o.CarrierID == carrierID && o.Status != StatusRejected {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepository) Insert(_ context.Context, _ pgx.Tx, o Offer) (Offer, error) {
	f.nextID++
	o.ID = fmt.Sprintf("offer-%d", f.nextID)
	o.Status = StatusPending
	f.offers[o.ID] = o
	return o, nil
}

func (f *fakeRepository) GetByID(_ context.Context, id string) (Offer, string, error) {
	o, ok := f.offers[id]
	if !ok {
		return Offer{}, "", ErrNotFound
	}
	return o, f.shipments[o.ShipmentID].shipperID, nil
}

func (f *fakeRepository) List(_ context.Context, q ListQuery) ([]Offer, int, error) {
	f.lastQuery = q
	var out []Offer
	for _, o := range f.offers {
		if q.CarrierID != "" && o.CarrierID != q.CarrierID {
			continue
		}
		if q.ShipperID != "" && f.shipments[o.ShipmentID].shipperID != q.ShipperID {
			continue
		}
		out = append(out, o)
	}
	return out, len(out), nil
}

type stubVerifier map[string]bool

func (v stubVerifier) IsApproved(_ context.Context, userID string) (bool, error) {
	return v[userID], nil
}

type fakeOutbox struct {
	got []notification.Notification
}

func (f *fakeOutbox) Enqueue(_ context.Context, _ notification.Execer, ns ...notification.Notification) error {
	f.got = append(f.got, ns...)
	return nil
}

var (
	carrier      = auth.Identity{UserID: "carrier-1", Role: auth.RoleCarrier}
	otherCarrier = auth.Identity{UserID: "carrier-2", Role: auth.RoleCarrier}
	shipper      = auth.Identity{UserID: "shipper-1", Role: auth.RoleShipper}
	admin        = auth.Identity{UserID: "admin-1", Role: auth.RoleAdmin}
)

func newTestService() (*Service, *fakeRepository, *dbtest.Beginner, *fakeOutbox) {
	repo := newFakeRepository()
	beginner := &dbtest.Beginner{}
	outbox := &fakeOutbox{}
	verifier := stubVerifier{carrier.UserID: true, otherCarrier.UserID: true}
	return NewService(beginner, repo, verifier, outbox, nil), repo, beginner, outbox
}

func params(shipmentID string) CreateParams {
	return CreateParams{ShipmentID: shipmentID, ProposedPrice: decimal.RequireFromString("78000")}
}

func TestService_CreateRecordsPendingOffer(t *testing.T) {
	svc, _, beginner, outbox := newTestService()

	created, err := svc.Create(context.Background(), carrier, params(openShipment))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Status != StatusPending {
		t.Fatalf("expected status %s, got %s", StatusPending, created.Status)
	}
	if created.CarrierID != carrier.UserID {
		t.Fatalf("expected carrier %q, got %q", carrier.UserID, created.CarrierID)
	}
	if !beginner.Last().Committed {
		t.Fatal("expected transaction to commit")
	}
	if len(outbox.got) != 1 || outbox.got[0].RecipientID != "shipper-1" || outbox.got[0].Topic != notification.TopicOfferCreated {
		t.Fatalf("expected offer.created for the shipper, got %+v", outbox.got)
	}
}

func TestService_CreateGates(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Create(ctx, shipper, params(openShipment)); !errors.Is(err, ErrCarrierOnly) {
		t.Fatalf("expected ErrCarrierOnly, got %v", err)
	}
	unverified := auth.Identity{UserID: "carrier-9", Role: auth.RoleCarrier}
	if _, err := svc.Create(ctx, unverified, params(openShipment)); !errors.Is(err, ErrNotVerified) {
		t.Fatalf("expected ErrNotVerified, got %v", err)
	}

	zero := params(openShipment)
	zero.ProposedPrice = decimal.Zero
	if _, err := svc.Create(ctx, carrier, zero); !apperr.IsKind(err, apperr.Validation) {
		t.Fatalf("expected validation error for zero price, got %v", err)
	}
	subCent := params(openShipment)
	subCent.ProposedPrice = decimal.RequireFromString("0.001")
	if _, err := svc.Create(ctx, carrier, subCent); !apperr.IsKind(err, apperr.Validation) {
		t.Fatalf("expected validation error for sub-cent price, got %v", err)
	}
	overflow := params(openShipment)
	overflow.ProposedPrice = decimal.RequireFromString("10000000000")
	if _, err := svc.Create(ctx, carrier, overflow); !apperr.IsKind(err, apperr.Validation) {
		t.Fatalf("expected validation error for oversized price, got %v", err)
	}
	if _, err := svc.Create(ctx, carrier, CreateParams{ProposedPrice: decimal.NewFromInt(1)}); !apperr.IsKind(err, apperr.Validation) {
		t.Fatalf("expected validation error for missing shipment, got %v", err)
	}
}

func TestService_CreateShipmentState(t *testing.T) {
	svc, _, beginner, outbox := newTestService()
	ctx := context.Background()

	if _, err := svc.Create(ctx, carrier, params(missing)); !errors.Is(err, ErrShipmentNotFound) {
		t.Fatalf("expected ErrShipmentNotFound, got %v", err)
	}
	if _, err := svc.Create(ctx, carrier, params(closedShipment)); !errors.Is(err, ErrNotAccepting) {
		t.Fatalf("expected ErrNotAccepting, got %v", err)
	}
	if !beginner.Last().RolledBack {
		t.Fatal("expected rollback after conflict")
	}
	if len(outbox.got) != 0 {
		t.Fatalf("expected no notifications, got %d", len(outbox.got))
	}
}

func TestService_CreateRejectsDuplicate(t *testing.T) {
	svc, repo, _, _ := newTestService()
	ctx := context.Background()

	first, err := svc.Create(ctx, carrier, params(openShipment))
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := svc.Create(ctx, carrier, params(openShipment)); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if _, err := svc.Create(ctx, otherCarrier, params(openShipment)); err != nil {
		t.Fatalf("other carrier: %v", err)
	}

	rejected := repo.offers[first.ID]
	rejected.Status = StatusRejected
	repo.offers[first.ID] = rejected
	if _, err := svc.Create(ctx, carrier, params(openShipment)); err != nil {
		t.Fatalf("expected a new offer after rejection, got %v", err)
	}
}

func TestService_ListScoping(t *testing.T) {
	svc, repo, _, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Create(ctx, carrier, params(openShipment)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Create(ctx, otherCarrier, params(openShipment)); err != nil {
		t.Fatalf("create: %v", err)
	}

	own, err := svc.List(ctx, carrier, Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if own.Total != 1 || repo.lastQuery.CarrierID != carrier.UserID {
		t.Fatalf("expected carrier scoped listing, got total=%d query=%+v", own.Total, repo.lastQuery)
	}

	received, err := svc.List(ctx, shipper, Filter{ShipmentID: openShipment})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if received.Total != 2 || repo.lastQuery.ShipperID != shipper.UserID {
		t.Fatalf("expected shipper scoped listing, got total=%d query=%+v", received.Total, repo.lastQuery)
	}

	if _, err := svc.List(ctx, admin, Filter{Status: "WITHDRAWN"}); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestService_ListRejectsMalformedShipmentID(t *testing.T) {
	svc, repo, _, _ := newTestService()
	repo.lastQuery = ListQuery{}

	_, err := svc.List(context.Background(), carrier, Filter{ShipmentID: "not-a-uuid"})
	if !errors.Is(err, ErrInvalidFilter) || !apperr.IsKind(err, apperr.Validation) {
		t.Fatalf("expected ErrInvalidFilter, got %v", err)
	}
	if repo.lastQuery.CarrierID != "" || repo.lastQuery.ShipmentID != "" {
		t.Fatalf("expected repository not to be queried, got %+v", repo.lastQuery)
	}
}

func TestService_GetVisibility(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	created, err := svc.Create(ctx, carrier, params(openShipment))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	for _, who := range []auth.Identity{carrier, shipper, admin} {
		if _, err := svc.Get(ctx, who, created.ID); err != nil {
			t.Fatalf("get as %s: %v", who.UserID, err)
		}
	}
	if _, err := svc.Get(ctx, otherCarrier, created.ID); !errors.Is(err, ErrNotVisible) {
		t.Fatalf("expected ErrNotVisible, got %v", err)
	}
	if _, err := svc.Get(ctx, admin, "offer-404"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
