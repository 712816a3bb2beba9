package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/spbu-ds-practicum-2025/ledger-service/internal/domain"
)

// Balances cross the driver boundary as text so NUMERIC values keep their exact digits.
const accountColumns = `id, customer_id, balance::text, created_at, updated_at`

// AccountRepository implements domain.AccountRepository using PostgreSQL.
type AccountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{
		pool: pool,
	}
}

// Create inserts the account and fills in its generated id and timestamps.
func (r *AccountRepository) Create(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (customer_id, balance)
		VALUES ($1, $2::numeric)
		RETURNING ` + accountColumns

	row := conn(ctx, r.pool).QueryRow(ctx, query, account.CustomerID, account.Balance.String())
	created, err := scanAccount(row)
	if err != nil {
		return classify(fmt.Errorf("failed to create account: %w", err))
	}
	*account = *created
	return nil
}

// GetByID retrieves an account by its unique identifier.
func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	account, err := scanAccount(conn(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, classify(fmt.Errorf("failed to get account: %w", err))
	}
	return account, nil
}

// Lock acquires a pessimistic lock on the account for the duration of the transaction.
// This method MUST be called within a transaction context.
// Uses SELECT ... FOR UPDATE to lock the row.
func (r *AccountRepository) Lock(ctx context.Context, id int64) (*domain.Account, error) {
	tx := getTx(ctx)
	if tx == nil {
		return nil, errors.New("lock account: no transaction in context")
	}

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`

	account, err := scanAccount(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, classify(fmt.Errorf("failed to lock account: %w", err))
	}
	return account, nil
}

// UpdateBalance stores a new balance for a locked account.
func (r *AccountRepository) UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal) error {
	query := `
		UPDATE accounts
		SET balance = $2::numeric,
		    updated_at = now()
		WHERE id = $1
	`

	tag, err := conn(ctx, r.pool).Exec(ctx, query, id, balance.String())
	if err != nil {
		return classify(fmt.Errorf("failed to update account: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		account domain.Account
		balance string
	)
	if err := row.Scan(&account.ID, &account.CustomerID, &balance, &account.CreatedAt, &account.UpdatedAt); err != nil {
		return nil, err
	}
	parsed, err := decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("parse balance %q: %w", balance, err)
	}
	account.Balance = parsed
	return &account, nil
}
