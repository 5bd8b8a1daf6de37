package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"freightmatch/apperr"
	"freightmatch/auth"
	"freightmatch/matching"
	"freightmatch/notification"
	"freightmatch/offer"
	"freightmatch/rating"
	"freightmatch/shipment"
)

// tolerated reports whether err is an outcome racing actors must expect:
// lost races, vanished rows and storage failures injected by chaos.
// Validation and authorization failures mean the actor or the code is wrong.
func tolerated(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	switch apperr.KindOf(err) {
	case apperr.Conflict, apperr.NotFound, apperr.Retryable, apperr.Internal:
		return true
	default:
		return false
	}
}

func stopped(ctx context.Context, stop <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return true
	case <-stop:
		return true
	default:
		return false
	}
}

func pause(minMs, spreadMs int) {
	time.Sleep(time.Duration(minMs+rand.Intn(spreadMs)) * time.Millisecond)
}

// Poster keeps a supply of OPEN shipments for the owning shipper.
func Poster(ctx context.Context, svc *shipment.Service, shipper auth.Identity, stop <-chan struct{}) error {
	for !stopped(ctx, stop) {
		pickup := time.Now().UTC().AddDate(0, 0, 1+rand.Intn(10)).Truncate(24 * time.Hour)
		_, err := svc.Create(ctx, shipper, shipment.CreateParams{
			CargoName:           fmt.Sprintf("Pallets #%d", rand.Intn(100000)),
			CargoWeight:         decimal.NewFromInt(int64(100 + rand.Intn(5000))),
			Pickup:              shipment.Stop{Address: "1-1 Marunouchi", City: "Chiyoda", Prefecture: "Tokyo", PostalCode: "100-0005", Date: pickup},
			Delivery:            shipment.Stop{Address: "3-1 Sakae", City: "Naka", Prefecture: "Aichi", PostalCode: "460-0008", Date: pickup.AddDate(0, 0, 1)},
			RequiredVehicleType: shipment.VehicleMediumTruck,
			Budget:              decimal.NewFromInt(int64(30000 + rand.Intn(70000))),
		})
		if !tolerated(err) {
			return fmt.Errorf("poster: %w", err)
		}
		pause(150, 150)
	}
	return nil
}

// Bidder places offers on random OPEN shipments as one carrier.
func Bidder(ctx context.Context, pool *pgxpool.Pool, svc *offer.Service, carrier auth.Identity, stop <-chan struct{}) error {
	for !stopped(ctx, stop) {
		shipmentID := randomID(ctx, pool, `SELECT id FROM shipments WHERE status = 'OPEN' ORDER BY random() LIMIT 1`)
		if shipmentID != "" {
			_, err := svc.Create(ctx, carrier, offer.CreateParams{
				ShipmentID:    shipmentID,
				ProposedPrice: decimal.NewFromInt(int64(20000 + rand.Intn(60000))),
			})
			if !tolerated(err) {
				return fmt.Errorf("bidder create: %w", err)
			}
		}
		pause(10, 20)
	}
	return nil
}

// Acceptor races other acceptors to accept pending offers on the shipper's
// shipments.
func Acceptor(ctx context.Context, pool *pgxpool.Pool, engine *matching.Engine, shipperID string, stop <-chan struct{}) error {
	return decide(ctx, pool, shipperID, stop, func(offerID string) error {
		_, err := engine.Accept(ctx, offerID, shipperID)
		return err
	})
}

// Rejecter declines pending offers on the shipper's shipments.
func Rejecter(ctx context.Context, pool *pgxpool.Pool, engine *matching.Engine, shipperID string, stop <-chan struct{}) error {
	return decide(ctx, pool, shipperID, stop, func(offerID string) error {
		_, err := engine.Reject(ctx, offerID, shipperID)
		return err
	})
}

func decide(ctx context.Context, pool *pgxpool.Pool, shipperID string, stop <-chan struct{}, act func(offerID string) error) error {
	for !stopped(ctx, stop) {
		offerID := randomID(ctx, pool, `
			SELECT o.id FROM offers o
			JOIN shipments s ON s.id = o.shipment_id
			WHERE s.shipper_id = $1 AND o.status = 'PENDING'
			ORDER BY random() LIMIT 1
		`, shipperID)
		if offerID != "" {
			if err := act(offerID); !tolerated(err) {
				return fmt.Errorf("decide %s: %w", offerID, err)
			}
		}
		pause(20, 40)
	}
	return nil
}

// Canceller occasionally cancels an OPEN shipment while offers are in flight.
func Canceller(ctx context.Context, pool *pgxpool.Pool, svc *shipment.Service, shipper auth.Identity, stop <-chan struct{}) error {
	cancelled := shipment.StatusCancelled
	for !stopped(ctx, stop) {
		id := randomID(ctx, pool, `SELECT id FROM shipments WHERE shipper_id = $1 AND status = 'OPEN' ORDER BY random() LIMIT 1`, shipper.UserID)
		if id != "" && rand.Intn(4) == 0 {
			_, err := svc.Update(ctx, id, shipper, shipment.UpdateParams{Status: &cancelled})
			if !tolerated(err) {
				return fmt.Errorf("canceller %s: %w", id, err)
			}
		}
		pause(200, 200)
	}
	return nil
}

// Rater submits ratings for carriers; duplicates are expected.
func Rater(ctx context.Context, svc *rating.Service, rater auth.Identity, carrierIDs []string, stop <-chan struct{}) error {
	for !stopped(ctx, stop) {
		_, err := svc.Submit(ctx, rater, rating.SubmitParams{
			RatedUserID: carrierIDs[rand.Intn(len(carrierIDs))],
			Score:       1 + rand.Intn(5),
		})
		if !tolerated(err) {
			return fmt.Errorf("rater: %w", err)
		}
		pause(50, 100)
	}
	return nil
}

// FlakyPublisher fails a share of deliveries so the relay retries and
// eventually dead-letters.
type FlakyPublisher struct {
	Next     notification.Publisher
	FailRate int
}

func (p FlakyPublisher) Publish(ctx context.Context, m notification.Message) error {
	if p.FailRate > 0 && rand.Intn(p.FailRate) == 0 {
		return errors.New("flaky publisher: injected failure")
	}
	return p.Next.Publish(ctx, m)
}

// Relay drains the outbox until stopped.
func Relay(ctx context.Context, relay *notification.Relay, stop <-chan struct{}) error {
	for !stopped(ctx, stop) {
		if _, err := relay.RunOnce(ctx); !tolerated(err) {
			return fmt.Errorf("relay: %w", err)
		}
		pause(50, 50)
	}
	return nil
}

// randomID returns one id selected by sql, or "" when nothing matches or the
// query was cut off by chaos.
func randomID(ctx context.Context, pool *pgxpool.Pool, sql string, args ...any) string {
	var id string
	if err := pool.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		return ""
	}
	return id
}
