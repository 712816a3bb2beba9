package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ListAccountOperations returns the audit rows of one account, oldest transaction first.
func (r *OperationRepository) ListAccountOperations(ctx context.Context, accountID int64, limit int) ([]Operation, error) {
	query := `
		SELECT transaction_id, account_id, toString(direction), counterparty_id,
		       toString(amount), timestamp, event_id
		FROM ledger_operations FINAL
		WHERE account_id = ?
		ORDER BY transaction_id
	`
	args := []any{accountID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Conn().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query operations for account %d: %w", accountID, err)
	}
	defer rows.Close()

	var ops []Operation
	for rows.Next() {
		var (
			op        Operation
			direction string
			amount    string
			timestamp time.Time
		)
		if err := rows.Scan(&op.TransactionID, &op.AccountID, &direction, &op.Counterparty, &amount, &timestamp, &op.EventID); err != nil {
			return nil, fmt.Errorf("failed to scan operation row: %w", err)
		}
		op.Direction = Direction(direction)
		op.Timestamp = timestamp
		if op.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("failed to parse amount %q: %w", amount, err)
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating operation rows: %w", err)
	}
	return ops, nil
}
