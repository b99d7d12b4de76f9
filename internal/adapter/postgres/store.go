package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/taskcrew/internal/domain"
	"github.com/Strob0t/taskcrew/internal/domain/business"
	"github.com/Strob0t/taskcrew/internal/port/database"
)

// Store implements database.Store on PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new PostgreSQL store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var _ database.Store = (*Store)(nil)

// --- Businesses ---

const businessColumns = `id, name, autonomy_level, created_at, updated_at`

func scanBusiness(row scannable) (business.Business, error) {
	var b business.Business
	err := row.Scan(&b.ID, &b.Name, &b.Autonomy, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

func (s *Store) CreateBusiness(ctx context.Context, req business.CreateRequest) (*business.Business, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO businesses (name, autonomy_level) VALUES ($1, $2) RETURNING `+businessColumns,
		req.Name, string(req.Autonomy))
	b, err := scanBusiness(row)
	if err != nil {
		return nil, validationWrap(err, "create business")
	}
	return &b, nil
}

func (s *Store) GetBusiness(ctx context.Context, id string) (*business.Business, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+businessColumns+` FROM businesses WHERE id = $1`, id)
	b, err := scanBusiness(row)
	if err != nil {
		return nil, notFoundWrap(err, "get business %s", id)
	}
	return &b, nil
}

func (s *Store) ListBusinesses(ctx context.Context) ([]business.Business, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+businessColumns+` FROM businesses ORDER BY created_at, id`)
	if err != nil {
		return nil, persistenceWrap(err, "list businesses")
	}
	defer rows.Close()

	var out []business.Business
	for rows.Next() {
		b, err := scanBusiness(rows)
		if err != nil {
			return nil, persistenceWrap(err, "scan business")
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceWrap(err, "list businesses")
	}
	return orEmpty(out), nil
}

func (s *Store) UpdateAutonomy(ctx context.Context, id string, level business.Autonomy) (*business.Business, error) {
	if !level.Valid() {
		return nil, fmt.Errorf("%w: unknown autonomy level %q", domain.ErrValidation, level)
	}
	row := s.pool.QueryRow(ctx,
		`UPDATE businesses SET autonomy_level = $2, updated_at = now() WHERE id = $1 RETURNING `+businessColumns,
		id, string(level))
	b, err := scanBusiness(row)
	if err != nil {
		return nil, notFoundWrap(err, "update autonomy of %s", id)
	}
	return &b, nil
}
