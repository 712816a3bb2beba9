package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/spbu-ds-practicum-2025/ledger-service/internal/domain"
)

func TestNewTransactionCommittedEvent(t *testing.T) {
	committed := time.Date(2025, 5, 4, 10, 30, 0, 0, time.FixedZone("MSK", 3*60*60))
	txn := &domain.Transaction{
		ID:          17,
		FromAccount: 1,
		ToAccount:   2,
		Amount:      decimal.RequireFromString("100.5"),
		Timestamp:   committed,
	}

	event := NewTransactionCommittedEvent(txn, committed)

	if _, err := uuid.Parse(event.EventID); err != nil {
		t.Errorf("expected uuid event id, got %q", event.EventID)
	}
	if event.Amount != "100.50" {
		t.Errorf("expected amount 100.50, got %s", event.Amount)
	}
	if event.Timestamp != "2025-05-04T07:30:00Z" {
		t.Errorf("expected UTC timestamp, got %s", event.Timestamp)
	}
	if err := event.Validate(); err != nil {
		t.Errorf("expected valid event, got %v", err)
	}

	raw, err := json.Marshal(event)
	if err != nil {
		t.Fatal(err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"eventId", "eventType", "eventTimestamp", "transactionId", "fromAccount", "toAccount", "amount", "timestamp"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("missing field %q in %s", key, raw)
		}
	}
	if _, ok := fields["idempotencyKey"]; ok {
		t.Errorf("empty idempotency key should be omitted: %s", raw)
	}
}

func TestTransactionCommittedEvent_Validate(t *testing.T) {
	valid := func() TransactionCommittedEvent {
		return TransactionCommittedEvent{
			EventType:     EventTypeTransactionCommitted,
			TransactionID: 1,
			FromAccount:   1,
			ToAccount:     2,
			Amount:        "1.00",
			Timestamp:     "2025-01-01T00:00:00Z",
		}
	}

	tests := []struct {
		name   string
		mutate func(*TransactionCommittedEvent)
	}{
		{name: "wrong type", mutate: func(e *TransactionCommittedEvent) { e.EventType = "transfer.completed" }},
		{name: "missing transaction", mutate: func(e *TransactionCommittedEvent) { e.TransactionID = 0 }},
		{name: "missing sender", mutate: func(e *TransactionCommittedEvent) { e.FromAccount = 0 }},
		{name: "same accounts", mutate: func(e *TransactionCommittedEvent) { e.ToAccount = e.FromAccount }},
		{name: "missing amount", mutate: func(e *TransactionCommittedEvent) { e.Amount = "" }},
		{name: "missing timestamp", mutate: func(e *TransactionCommittedEvent) { e.Timestamp = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := valid()
			tt.mutate(&e)
			if err := e.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
