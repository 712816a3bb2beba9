package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spbu-ds-practicum-2025/ledger-service/internal/domain"
)

// CustomerRepository implements domain.CustomerRepository using PostgreSQL.
type CustomerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository creates a new CustomerRepository.
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

func (r *CustomerRepository) Create(ctx context.Context, customer *domain.Customer) error {
	query := `INSERT INTO customers (id, name) VALUES ($1, $2)`

	if _, err := conn(ctx, r.pool).Exec(ctx, query, customer.ID, customer.Name); err != nil {
		return classify(fmt.Errorf("failed to create customer: %w", err))
	}
	return nil
}

func (r *CustomerRepository) Exists(ctx context.Context, id int64) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM customers WHERE id = $1)`

	var exists bool
	if err := conn(ctx, r.pool).QueryRow(ctx, query, id).Scan(&exists); err != nil {
		return false, classify(fmt.Errorf("failed to check customer: %w", err))
	}
	return exists, nil
}
