package rating

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
)

const (
	carrierID = "7d6f0c2e-3a41-4f0e-9a57-2b6c1d8e9f01"
	shipperA  = "7d6f0c2e-3a41-4f0e-9a57-2b6c1d8e9f02"
	shipperB  = "7d6f0c2e-3a41-4f0e-9a57-2b6c1d8e9f03"
	shipperC  = "7d6f0c2e-3a41-4f0e-9a57-2b6c1d8e9f04"
	ghostID   = "7d6f0c2e-3a41-4f0e-9a57-2b6c1d8e9f05"
)

type fakeRepository struct {
	users   map[string]decimal.Decimal
	ratings []Rating
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{users: map[string]decimal.Decimal{
		carrierID: DefaultTrustScore,
		shipperA:  DefaultTrustScore,
		shipperB:  DefaultTrustScore,
		shipperC:  DefaultTrustScore,
	}}
}

func (f *fakeRepository) LockUser(_ context.Context, _ pgx.Tx, userID string) error {
	if _, ok := f.users[userID]; !ok {
		return ErrUserNotFound
	}
	return nil
}

func (f *fakeRepository) Insert(_ context.Context, _ pgx.Tx, r Rating) (Rating, error) {
	for _, existing := range f.ratings {
		if existing.RaterID == r.RaterID && existing.RatedUserID == r.RatedUserID && sameShipment(existing.ShipmentID, r.ShipmentID) {
			return Rating{}, ErrDuplicate
		}
	}
	r.ID = fmt.Sprintf("rating-%d", len(f.ratings)+1)
	f.ratings = append(f.ratings, r)
	return r, nil
}

func sameShipment(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (f *fakeRepository) Totals(_ context.Context, _ pgx.Tx, userID string) (int64, int64, error) {
	var sum, count int64
	for _, r := range f.ratings {
		if r.RatedUserID == userID {
			sum += int64(r.Score)
			count++
		}
	}
	return sum, count, nil
}

func (f *fakeRepository) SetTrustScore(_ context.Context, _ pgx.Tx, userID string, score decimal.Decimal) error {
	f.users[userID] = score
	return nil
}

func (f *fakeRepository) ListForUser(_ context.Context, userID string) ([]Rating, error) {
	var out []Rating
	for i := len(f.ratings) - 1; i >= 0; i-- {
		if f.ratings[i].RatedUserID == userID {
			out = append(out, f.ratings[i])
		}
	}
	return out, nil
}

type fakeOutbox struct {
	got []notification.Notification
}

func (f *fakeOutbox) Enqueue(_ context.Context, _ notification.Execer, ns ...notification.Notification) error {
	f.got = append(f.got, ns...)
	return nil
}

func identity(id string) auth.Identity {
	return auth.Identity{UserID: id, Role: auth.RoleShipper}
}

func TestTrustScore(t *testing.T) {
	cases := []struct {
		sum, count int64
		want       string
	}{
		{0, 0, "5"},
		{13, 3, "4.3"},
		{9, 2, "4.5"},
		{89, 20, "4.5"},
		{7, 2, "3.5"},
		{11, 3, "3.7"},
		{5, 5, "1"},
	}
	for _, tc := range cases {
		got := TrustScore(tc.sum, tc.count)
		if !got.Equal(decimal.RequireFromString(tc.want)) {
			t.Fatalf("TrustScore(%d, %d): expected %s, got %s", tc.sum, tc.count, tc.want, got)
		}
	}
}

func TestService_SubmitRecomputesTrustScore(t *testing.T) {
	repo := newFakeRepository()
	outbox := &fakeOutbox{}
	beginner := &dbtest.Beginner{}
	svc := NewService(beginner, repo, outbox, nil)
	ctx := context.Background()

	for _, tc := range []struct {
		rater string
		score int
		want  string
	}{
		{shipperA, 5, "5"},
		{shipperB, 4, "4.5"},
		{shipperC, 4, "4.3"},
	} {
		if _, err := svc.Submit(ctx, identity(tc.rater), SubmitParams{RatedUserID: carrierID, Score: tc.score}); err != nil {
			t.Fatalf("submit from %s: %v", tc.rater, err)
		}
		if got := repo.users[carrierID]; !got.Equal(decimal.RequireFromString(tc.want)) {
			t.Fatalf("after score %d: expected trust %s, got %s", tc.score, tc.want, got)
		}
	}
	if !beginner.Last().Committed {
		t.Fatal("expected commit")
	}
	if len(outbox.got) != 3 || outbox.got[0].RecipientID != carrierID {
		t.Fatalf("expected 3 notices for the rated user, got %+v", outbox.got)
	}
}

func TestService_SubmitValidation(t *testing.T) {
	svc := NewService(&dbtest.Beginner{}, newFakeRepository(), &fakeOutbox{}, nil)
	ctx := context.Background()

	for _, score := range []int{0, 6, -1} {
		_, err := svc.Submit(ctx, identity(shipperA), SubmitParams{RatedUserID: carrierID, Score: score})
		if !apperr.IsKind(err, apperr.Validation) {
			t.Fatalf("score %d: expected validation error, got %v", score, err)
		}
	}
	if _, err := svc.Submit(ctx, identity(carrierID), SubmitParams{RatedUserID: carrierID, Score: 5}); !errors.Is(err, ErrSelfRating) {
		t.Fatalf("expected ErrSelfRating, got %v", err)
	}
	if _, err := svc.Submit(ctx, identity(shipperA), SubmitParams{RatedUserID: ghostID, Score: 5}); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestService_SubmitDuplicatePerShipment(t *testing.T) {
	repo := newFakeRepository()
	beginner := &dbtest.Beginner{}
	svc := NewService(beginner, repo, &fakeOutbox{}, nil)
	ctx := context.Background()
	shipment := "0a1b2c3d-4e5f-4a6b-8c7d-9e0f1a2b3c4d"

	if _, err := svc.Submit(ctx, identity(shipperA), SubmitParams{RatedUserID: carrierID, Score: 5, ShipmentID: &shipment}); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, err := svc.Submit(ctx, identity(shipperA), SubmitParams{RatedUserID: carrierID, Score: 1, ShipmentID: &shipment}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if !beginner.Last().RolledBack {
		t.Fatal("expected rollback after duplicate")
	}
	if got := repo.users[carrierID]; !got.Equal(decimal.RequireFromString("5")) {
		t.Fatalf("expected trust score untouched, got %s", got)
	}

	if _, err := svc.Submit(ctx, identity(shipperA), SubmitParams{RatedUserID: carrierID, Score: 3}); err != nil {
		t.Fatalf("rating without shipment: %v", err)
	}
	if _, err := svc.Submit(ctx, identity(shipperA), SubmitParams{RatedUserID: carrierID, Score: 3}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for second rating without shipment, got %v", err)
	}
}

func TestService_ListForUser(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(&dbtest.Beginner{}, repo, &fakeOutbox{}, nil)
	ctx := context.Background()

	empty, err := svc.ListForUser(ctx, carrierID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if empty.Total != 0 || !empty.Average.Equal(DefaultTrustScore) {
		t.Fatalf("expected empty summary with default average, got %+v", empty)
	}

	for _, rater := range []string{shipperA, shipperB} {
		score := 5
		if rater == shipperB {
			score = 2
		}
		if _, err := svc.Submit(ctx, identity(rater), SubmitParams{RatedUserID: carrierID, Score: score}); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	summary, err := svc.ListForUser(ctx, carrierID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if summary.Total != 2 || !summary.Average.Equal(decimal.RequireFromString("3.5")) {
		t.Fatalf("expected 2 ratings averaging 3.5, got %d and %s", summary.Total, summary.Average)
	}
	if summary.Items[0].RaterID != shipperB {
		t.Fatalf("expected newest first, got %s", summary.Items[0].RaterID)
	}

	if _, err := svc.ListForUser(ctx, " "); !errors.Is(err, ErrMissingUserID) {
		t.Fatalf("expected ErrMissingUserID, got %v", err)
	}
}
