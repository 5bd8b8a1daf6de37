package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"freightmatch/apperr"
	"freightmatch/db"
)

// ErrNotFound signals the requested company does not exist.
var ErrNotFound = apperr.New(apperr.NotFound, "directory: company not found")

const maxLimit = 100

// Repository provides read access to company profiles.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func profileQuery() sq.SelectBuilder {
	return db.SQL.
		Select(
			"u.id",
			"u.company_name",
			"u.role",
			"u.verification_status = 'APPROVED'",
			"u.trust_score",
			"(SELECT COUNT(*) FROM ratings r WHERE r.rated_user_id = u.id)",
			"u.created_at",
		).
		From("users u").
		Where(sq.NotEq{"u.role": "ADMIN"})
}

// GetByID fetches a company profile by its primary key.
func (r *Repository) GetByID(ctx context.Context, id string) (Profile, error) {
	if !db.ValidUUID(id) {
		return Profile{}, ErrNotFound
	}
	query, args, err := profileQuery().Where(sq.Eq{"u.id": id}).ToSql()
	if err != nil {
		return Profile{}, fmt.Errorf("directory: build query: %w", err)
	}

	profile, err := scanProfile(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, db.Classify(fmt.Errorf("directory: query by id: %w", err))
	}
	return profile, nil
}

// List fetches company profiles ordered by trust score, then name.
func (r *Repository) List(ctx context.Context, filter Filter) ([]Profile, error) {
	limit := filter.Limit
	if limit <= 0 || limit > maxLimit {
		limit = maxLimit
	}

	b := profileQuery()
	if filter.Role != "" {
		b = b.Where(sq.Eq{"u.role": string(filter.Role)})
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		b = b.Where(sq.ILike{"u.company_name": "%" + db.EscapeLike(q) + "%"})
	}
	query, args, err := b.OrderBy("u.trust_score DESC", "u.company_name ASC").Limit(uint64(limit)).ToSql()
	if err != nil {
		return nil, fmt.Errorf("directory: build list: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, db.Classify(fmt.Errorf("directory: list: %w", err))
	}
	defer rows.Close()

	profiles := make([]Profile, 0, limit)
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("directory: scan profile: %w", err)
		}
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Classify(fmt.Errorf("directory: iterate profiles: %w", err))
	}

	return profiles, nil
}

func scanProfile(row pgx.Row) (Profile, error) {
	var p Profile
	err := row.Scan(&p.ID, &p.CompanyName, &p.Role, &p.Verified, &p.TrustScore, &p.RatingCount, &p.CreatedAt)
	return p, err
}
