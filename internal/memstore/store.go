// Package memstore is an in-process ledger store with row locks and
// all-or-nothing commits. It backs unit tests and local runs without PostgreSQL.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/spbu-ds-practicum-2025/ledger-service/internal/domain"
)

// ErrNoTransaction is returned by operations that must run inside WithTransaction.
var ErrNoTransaction = errors.New("memstore: operation requires a transaction")

type accountRow struct {
	account domain.Account
	lock    chan struct{}
}

// Store holds customers, accounts, transactions and users in memory.
type Store struct {
	mu           sync.Mutex
	customers    map[int64]domain.Customer
	accounts     map[int64]*accountRow
	transactions []domain.Transaction
	byKey        map[string]int
	users        map[string]domain.User

	nextAccountID     int64
	nextTransactionID int64
	now               func() time.Time
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		customers: make(map[int64]domain.Customer),
		accounts:  make(map[int64]*accountRow),
		byKey:     make(map[string]int),
		users:     make(map[string]domain.User),
		now:       time.Now,
	}
}

// txKey is the key type for storing transaction in context.
type txKey struct{}

type tx struct {
	store    *Store
	locked   map[int64]*accountRow
	order    []*accountRow
	balances map[int64]decimal.Decimal
	pending  []*domain.Transaction
}

// WithTransaction executes fn within a store transaction.
// Row locks taken by fn are held until fn returns; staged writes are applied
// only if fn succeeds and every commit-time check passes.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if getTx(ctx) != nil {
		return fn(ctx)
	}

	t := &tx{
		store:    s,
		locked:   make(map[int64]*accountRow),
		balances: make(map[int64]decimal.Decimal),
	}
	defer t.release()

	if err := fn(context.WithValue(ctx, txKey{}, t)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.commit()
}

func getTx(ctx context.Context) *tx {
	if t, ok := ctx.Value(txKey{}).(*tx); ok {
		return t
	}
	return nil
}

// lock acquires the row lock of id for this transaction, waiting at most as long as ctx allows.
func (t *tx) lock(ctx context.Context, id int64) (*accountRow, error) {
	if row, ok := t.locked[id]; ok {
		return row, nil
	}

	t.store.mu.Lock()
	row, ok := t.store.accounts[id]
	t.store.mu.Unlock()
	if !ok {
		return nil, domain.ErrAccountNotFound
	}

	select {
	case row.lock <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for account %d lock: %w", id, ctx.Err())
	}

	t.locked[id] = row
	t.order = append(t.order, row)
	return row, nil
}

func (t *tx) commit() error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, balance := range t.balances {
		if balance.IsNegative() {
			return domain.NewStoreError(domain.KindInsufficientFunds,
				fmt.Sprintf("balance of account %d would become negative", id), nil, false)
		}
	}

	seen := make(map[string]struct{}, len(t.pending))
	for _, txn := range t.pending {
		if txn.IdempotencyKey == "" {
			continue
		}
		if _, dup := s.byKey[txn.IdempotencyKey]; dup {
			return domain.ErrDuplicateIdempotencyKey
		}
		if _, dup := seen[txn.IdempotencyKey]; dup {
			return domain.ErrDuplicateIdempotencyKey
		}
		seen[txn.IdempotencyKey] = struct{}{}
	}

	now := s.now().UTC()
	for id, balance := range t.balances {
		row := s.accounts[id]
		row.account.Balance = balance
		row.account.UpdatedAt = now
	}
	for _, txn := range t.pending {
		s.nextTransactionID++
		txn.ID = s.nextTransactionID
		txn.Timestamp = now
		s.transactions = append(s.transactions, *txn)
		if txn.IdempotencyKey != "" {
			s.byKey[txn.IdempotencyKey] = len(s.transactions) - 1
		}
	}
	return nil
}

func (t *tx) release() {
	for i := len(t.order) - 1; i >= 0; i-- {
		<-t.order[i].lock
	}
	t.order = nil
	t.locked = nil
}

// TotalBalance sums every account balance. Used to check conservation.
func (s *Store) TotalBalance() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := decimal.Zero
	for _, row := range s.accounts {
		total = total.Add(row.account.Balance)
	}
	return total
}

// TransactionCount returns the number of committed transactions.
func (s *Store) TransactionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transactions)
}

// Ping always succeeds; the store lives in process memory.
func (s *Store) Ping(context.Context) error {
	return nil
}
