package audit

import (
	"context"
	"fmt"
)

// OperationRepository persists audit operations in ClickHouse.
type OperationRepository struct {
	db *ClickHouseClient
}

// NewOperationRepository creates a new operation repository
func NewOperationRepository(db *ClickHouseClient) *OperationRepository {
	return &OperationRepository{db: db}
}

// InsertOperations writes ops as one batch.
func (r *OperationRepository) InsertOperations(ctx context.Context, ops []Operation) error {
	batch, err := r.db.Conn().PrepareBatch(ctx, `
		INSERT INTO ledger_operations (
			transaction_id, account_id, direction, counterparty_id, amount, timestamp, event_id
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	defer batch.Abort()

	for _, op := range ops {
		err := batch.Append(
			op.TransactionID,
			op.AccountID,
			string(op.Direction),
			op.Counterparty,
			op.Amount,
			op.Timestamp,
			op.EventID,
		)
		if err != nil {
			return fmt.Errorf("failed to append operation %d/%d: %w", op.TransactionID, op.AccountID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}
