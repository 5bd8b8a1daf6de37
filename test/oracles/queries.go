package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// MaxAttempts must match the relay configuration of the run being checked.
const MaxAttempts = 5

type Oracle struct {
	Name string
	SQL  string
}

// All returns queries that select violating rows; an empty result is a pass.
func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_single_accepted_offer",
			SQL: `SELECT shipment_id, COUNT(*) FROM offers
                  WHERE status = 'ACCEPTED'
                  GROUP BY shipment_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O2_carrier_iff_matched",
			SQL: `SELECT id, status, carrier_id FROM shipments
                  WHERE (carrier_id IS NOT NULL) <> (status IN ('MATCHED','IN_TRANSIT','DELIVERED'))`,
		},
		{
			Name: "O3_accepted_offer_is_carrier",
			SQL: `SELECT s.id, s.status, s.carrier_id, o.id AS offer_id, o.carrier_id AS offer_carrier
                  FROM shipments s
                  LEFT JOIN offers o ON o.shipment_id = s.id AND o.status = 'ACCEPTED'
                  WHERE (s.status IN ('MATCHED','IN_TRANSIT','DELIVERED') AND (o.id IS NULL OR o.carrier_id <> s.carrier_id))
                     OR (s.status IN ('OPEN','CANCELLED') AND o.id IS NOT NULL)`,
		},
		{
			Name: "O4_no_pending_on_closed_shipment",
			SQL: `SELECT o.id, o.shipment_id, s.status FROM offers o
                  JOIN shipments s ON s.id = o.shipment_id
                  WHERE o.status = 'PENDING' AND s.status <> 'OPEN'`,
		},
		{
			Name: "O5_unique_outstanding_offer",
			SQL: `SELECT shipment_id, carrier_id, COUNT(*) FROM offers
                  WHERE status IN ('PENDING','ACCEPTED')
                  GROUP BY shipment_id, carrier_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O6_trust_score_is_rounded_mean",
			SQL: `SELECT u.id, u.trust_score, ROUND(AVG(r.score)::numeric, 1) AS mean
                  FROM users u
                  LEFT JOIN ratings r ON r.rated_user_id = u.id
                  GROUP BY u.id, u.trust_score
                  HAVING u.trust_score <> COALESCE(ROUND(AVG(r.score)::numeric, 1), 5.0)`,
		},
		{
			Name: "O7_outbox_dead_letters",
			SQL: fmt.Sprintf(`SELECT id, attempts, status FROM outbox
                  WHERE (status = 'pending' AND attempts >= %d)
                     OR (status = 'dead' AND attempts < %d)`, MaxAttempts, MaxAttempts),
		},
		{
			Name: "O8_processed_reaches_inbox",
			SQL: `SELECT o.id, o.topic, o.recipient_id FROM outbox o
                  WHERE o.status = 'processed' AND o.recipient_id IS NOT NULL
                    AND NOT EXISTS (SELECT 1 FROM notifications n WHERE n.outbox_id = o.id)`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
	}
	return "", "", nil
}
