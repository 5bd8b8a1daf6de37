package infra

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"freightmatch/auth"
)

// SeedUser inserts an account directly, bypassing registration.
func SeedUser(ctx context.Context, pool *pgxpool.Pool, role auth.Role, status auth.VerificationStatus) (string, error) {
	var id string
	suffix := uuid.NewString()[:8]
	err := pool.QueryRow(ctx, `
		INSERT INTO users (email, password_hash, role, company_name, contact_person, phone, verification_status)
		VALUES ($1, 'x', $2, $3, 'Stress Actor', '03-0000-0000', $4)
		RETURNING id
	`, fmt.Sprintf("%s-%s@example.jp", role, suffix), role, fmt.Sprintf("%s %s Logistics", role, suffix), status).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("seed user: %w", err)
	}
	return id, nil
}
