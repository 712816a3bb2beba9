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

const transactionColumns = `id, from_account, to_account, amount::text, COALESCE(idempotency_key, ''), created_at`

// TransactionRepository implements domain.TransactionRepository using PostgreSQL.
type TransactionRepository struct {
	pool *pgxpool.Pool
}

// NewTransactionRepository creates a new TransactionRepository.
func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

// Create appends txn to the log and fills in its id and timestamp.
func (r *TransactionRepository) Create(ctx context.Context, txn *domain.Transaction) error {
	query := `
		INSERT INTO transactions (from_account, to_account, amount, idempotency_key)
		VALUES ($1, $2, $3::numeric, NULLIF($4, ''))
		RETURNING id, created_at
	`

	err := conn(ctx, r.pool).QueryRow(ctx, query,
		txn.FromAccount,
		txn.ToAccount,
		txn.Amount.String(),
		txn.IdempotencyKey,
	).Scan(&txn.ID, &txn.Timestamp)
	if err != nil {
		return classify(fmt.Errorf("failed to create transaction: %w", err))
	}
	return nil
}

// GetByIdempotencyKey retrieves a transaction by its idempotency key.
// Returns nil, nil when no transaction carries the key.
func (r *TransactionRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE idempotency_key = $1`

	txn, err := scanTransaction(conn(ctx, r.pool).QueryRow(ctx, query, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, classify(fmt.Errorf("failed to get transaction by idempotency key: %w", err))
	}
	return txn, nil
}

// ListByAccount returns transactions where the account is sender or recipient, ordered by id.
func (r *TransactionRepository) ListByAccount(ctx context.Context, q domain.HistoryQuery) ([]domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE (from_account = $1 OR to_account = $1)
		  AND id > $2
		ORDER BY id
		LIMIT $3
	`

	var limit *int
	if q.Limit > 0 {
		limit = &q.Limit
	}

	rows, err := conn(ctx, r.pool).Query(ctx, query, q.AccountID, q.AfterID, limit)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to list transactions: %w", err))
	}
	defer rows.Close()

	txns := make([]domain.Transaction, 0)
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, *txn)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("failed to iterate transactions: %w", err))
	}
	return txns, nil
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var (
		txn    domain.Transaction
		amount string
	)
	if err := row.Scan(&txn.ID, &txn.FromAccount, &txn.ToAccount, &amount, &txn.IdempotencyKey, &txn.Timestamp); err != nil {
		return nil, err
	}
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	txn.Amount = parsed
	return &txn, nil
}
