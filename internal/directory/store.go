package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bizlinkhq/bizlink-server/internal/apperrors"
)

// PgxPool is the subset of pgxpool.Pool the store needs.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists managers and customers in Postgres.
type Store struct {
	pool PgxPool
}

func NewStore(pool PgxPool) *Store {
	if pool == nil {
		return nil
	}
	return &Store{pool: pool}
}

const managerColumns = `id, name, business_name, slug, phone, logo_url, created_at`

func scanManager(row pgx.Row) (*Manager, error) {
	var m Manager
	err := row.Scan(&m.ID, &m.Name, &m.BusinessName, &m.Slug, &m.Phone, &m.LogoURL, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

const customerColumns = `id, manager_id, name, phone, status, created_at, updated_at`

func scanCustomer(row pgx.Row) (*Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.ManagerID, &c.Name, &c.Phone, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// InsertManager creates a manager account.
func (s *Store) InsertManager(ctx context.Context, m *Manager) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO managers (id, name, business_name, slug, phone, logo_url)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, m.ID, m.Name, m.BusinessName, m.Slug, m.Phone, m.LogoURL)
	if err != nil {
		return fmt.Errorf("directory: insert manager: %w", err)
	}
	return nil
}

// GetManagerByID fetches a manager.
func (s *Store) GetManagerByID(ctx context.Context, id uuid.UUID) (*Manager, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+managerColumns+` FROM managers WHERE id = $1`, id)
	m, err := scanManager(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("directory: manager %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("directory: get manager: %w", err)
	}
	return m, nil
}

// GetManagerBySlug resolves a public invite slug to its manager.
func (s *Store) GetManagerBySlug(ctx context.Context, slug string) (*Manager, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+managerColumns+` FROM managers WHERE slug = $1`, slug)
	m, err := scanManager(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("directory: slug %q: %w", slug, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("directory: get manager by slug: %w", err)
	}
	return m, nil
}

// GetCustomerByID fetches a customer.
func (s *Store) GetCustomerByID(ctx context.Context, id uuid.UUID) (*Customer, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id)
	c, err := scanCustomer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("directory: customer %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("directory: get customer: %w", err)
	}
	return c, nil
}

// UpsertCustomer inserts a customer or, when the (manager, phone) pair
// already exists, refreshes the name and reactivates the row. Either way
// the live row comes back from RETURNING.
func (s *Store) UpsertCustomer(ctx context.Context, c *Customer) (*Customer, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO customers (id, manager_id, name, phone, status)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (manager_id, phone) DO UPDATE SET
			name = COALESCE(NULLIF(EXCLUDED.name, ''), customers.name),
			status = $5,
			updated_at = now()
		RETURNING `+customerColumns,
		c.ID, c.ManagerID, c.Name, c.Phone, CustomerActive)
	out, err := scanCustomer(row)
	if err != nil {
		return nil, fmt.Errorf("directory: upsert customer: %w", err)
	}
	return out, nil
}

// SetCustomerStatus flips a customer's active flag.
func (s *Store) SetCustomerStatus(ctx context.Context, id uuid.UUID, status CustomerStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE customers SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("directory: set customer status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("directory: customer %s: %w", id, apperrors.ErrNotFound)
	}
	return nil
}
