// Package audit projects committed ledger transactions into ClickHouse,
// one row per account side, for reporting outside the transactional store.
package audit

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/spbu-ds-practicum-2025/ledger-service/internal/events"
)

// Direction tells which side of a transaction an operation row records.
type Direction string

const (
	DirectionDebit  Direction = "DEBIT"
	DirectionCredit Direction = "CREDIT"
)

// Operation is one account's view of a committed transaction.
type Operation struct {
	TransactionID int64
	AccountID     int64
	Direction     Direction
	Counterparty  int64
	Amount        decimal.Decimal
	Timestamp     time.Time
	EventID       string
}

// OperationsFromEvent splits a transaction event into the sender's debit and the recipient's credit.
func OperationsFromEvent(event *events.TransactionCommittedEvent) ([]Operation, error) {
	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("invalid event: %w", err)
	}

	amount, err := decimal.NewFromString(event.Amount)
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount %q: %w", event.Amount, err)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("amount must be positive, got %s", event.Amount)
	}

	timestamp, err := time.Parse(time.RFC3339Nano, event.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("failed to parse timestamp: %w", err)
	}

	return []Operation{
		{
			TransactionID: event.TransactionID,
			AccountID:     event.FromAccount,
			Direction:     DirectionDebit,
			Counterparty:  event.ToAccount,
			Amount:        amount,
			Timestamp:     timestamp,
			EventID:       event.EventID,
		},
		{
			TransactionID: event.TransactionID,
			AccountID:     event.ToAccount,
			Direction:     DirectionCredit,
			Counterparty:  event.FromAccount,
			Amount:        amount,
			Timestamp:     timestamp,
			EventID:       event.EventID,
		},
	}, nil
}
