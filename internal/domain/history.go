package domain

import (
	"context"
	"fmt"
)

// MaxHistoryLimit caps a single history page.
const MaxHistoryLimit = 1000

// HistoryService reads the transaction log of an account.
type HistoryService struct {
	transactionRepo TransactionRepository
}

// NewHistoryService creates a new instance of HistoryService.
func NewHistoryService(transactionRepo TransactionRepository) *HistoryService {
	return &HistoryService{transactionRepo: transactionRepo}
}

// History returns every transaction where the account is sender or recipient,
// oldest first. Unknown accounts simply have no history.
func (s *HistoryService) History(ctx context.Context, query HistoryQuery) ([]Transaction, error) {
	if query.Limit < 0 {
		return nil, NewError(KindInvalidArgument, "limit must not be negative", nil)
	}
	if query.Limit > MaxHistoryLimit {
		query.Limit = MaxHistoryLimit
	}
	if query.AfterID < 0 {
		return nil, NewError(KindInvalidArgument, "after_id must not be negative", nil)
	}

	txns, err := s.transactionRepo.ListByAccount(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	if txns == nil {
		txns = []Transaction{}
	}
	return txns, nil
}
