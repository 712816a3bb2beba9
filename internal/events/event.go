// Package events publishes ledger domain events to RabbitMQ.
package events

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/spbu-ds-practicum-2025/ledger-service/internal/domain"
)

// EventTypeTransactionCommitted is the eventType of TransactionCommittedEvent.
const EventTypeTransactionCommitted = "transaction.committed"

// TransactionCommittedEvent is the payload emitted once a transfer has committed.
// Amounts travel as decimal strings to preserve precision.
type TransactionCommittedEvent struct {
	EventID        string `json:"eventId"`
	EventType      string `json:"eventType"`
	EventTimestamp string `json:"eventTimestamp"`
	TransactionID  int64  `json:"transactionId"`
	FromAccount    int64  `json:"fromAccount"`
	ToAccount      int64  `json:"toAccount"`
	Amount         string `json:"amount"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
	Timestamp      string `json:"timestamp"`
}

// NewTransactionCommittedEvent builds the event for txn, stamped at now.
func NewTransactionCommittedEvent(txn *domain.Transaction, now time.Time) TransactionCommittedEvent {
	return TransactionCommittedEvent{
		EventID:        uuid.New().String(),
		EventType:      EventTypeTransactionCommitted,
		EventTimestamp: now.UTC().Format(time.RFC3339Nano),
		TransactionID:  txn.ID,
		FromAccount:    txn.FromAccount,
		ToAccount:      txn.ToAccount,
		Amount:         txn.Amount.StringFixed(domain.MoneyScale),
		IdempotencyKey: txn.IdempotencyKey,
		Timestamp:      txn.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

// Validate checks the fields every consumer relies on.
func (e *TransactionCommittedEvent) Validate() error {
	if e.EventType != EventTypeTransactionCommitted {
		return fmt.Errorf("unexpected event type: %s", e.EventType)
	}
	if e.TransactionID <= 0 {
		return errors.New("transaction ID is required")
	}
	if e.FromAccount <= 0 || e.ToAccount <= 0 {
		return errors.New("both account IDs are required")
	}
	if e.FromAccount == e.ToAccount {
		return errors.New("sender and recipient must differ")
	}
	if e.Amount == "" {
		return errors.New("amount is required")
	}
	if e.Timestamp == "" {
		return errors.New("timestamp is required")
	}
	return nil
}
