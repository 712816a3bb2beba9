package memstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/spbu-ds-practicum-2025/ledger-service/internal/domain"
)

// Customers, Accounts, Transactions and Users expose the store through the domain repository ports.
func (s *Store) Customers() domain.CustomerRepository       { return customerRepo{s} }
func (s *Store) Accounts() domain.AccountRepository         { return accountRepo{s} }
func (s *Store) Transactions() domain.TransactionRepository { return transactionRepo{s} }
func (s *Store) Users() domain.UserRepository               { return userRepo{s} }

type customerRepo struct{ s *Store }

func (r customerRepo) Create(_ context.Context, customer *domain.Customer) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.customers[customer.ID]; ok {
		return domain.ErrCustomerExists
	}
	r.s.customers[customer.ID] = *customer
	return nil
}

func (r customerRepo) Exists(_ context.Context, id int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	_, ok := r.s.customers[id]
	return ok, nil
}

type accountRepo struct{ s *Store }

func (r accountRepo) Create(_ context.Context, account *domain.Account) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.customers[account.CustomerID]; !ok {
		return domain.ErrCustomerNotFound
	}
	if account.Balance.IsNegative() {
		return domain.ErrNegativeDeposit
	}

	r.s.nextAccountID++
	now := r.s.now().UTC()
	account.ID = r.s.nextAccountID
	account.CreatedAt = now
	account.UpdatedAt = now
	r.s.accounts[account.ID] = &accountRow{
		account: *account,
		lock:    make(chan struct{}, 1),
	}
	return nil
}

func (r accountRepo) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	r.s.mu.Lock()
	row, ok := r.s.accounts[id]
	var account domain.Account
	if ok {
		account = row.account
	}
	r.s.mu.Unlock()

	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	if t := getTx(ctx); t != nil {
		if balance, staged := t.balances[id]; staged {
			account.Balance = balance
		}
	}
	return &account, nil
}

func (r accountRepo) Lock(ctx context.Context, id int64) (*domain.Account, error) {
	t := getTx(ctx)
	if t == nil {
		return nil, ErrNoTransaction
	}
	if _, err := t.lock(ctx, id); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r accountRepo) UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal) error {
	t := getTx(ctx)
	if t == nil {
		return ErrNoTransaction
	}
	if _, ok := t.locked[id]; !ok {
		return fmt.Errorf("memstore: account %d updated without holding its lock", id)
	}
	t.balances[id] = balance
	return nil
}

type transactionRepo struct{ s *Store }

func (r transactionRepo) Create(ctx context.Context, txn *domain.Transaction) error {
	t := getTx(ctx)
	if t == nil {
		return ErrNoTransaction
	}

	if txn.IdempotencyKey != "" {
		r.s.mu.Lock()
		_, dup := r.s.byKey[txn.IdempotencyKey]
		r.s.mu.Unlock()
		if dup {
			return domain.ErrDuplicateIdempotencyKey
		}
	}
	t.pending = append(t.pending, txn)
	return nil
}

func (r transactionRepo) GetByIdempotencyKey(_ context.Context, key string) (*domain.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	idx, ok := r.s.byKey[key]
	if !ok {
		return nil, nil
	}
	txn := r.s.transactions[idx]
	return &txn, nil
}

func (r transactionRepo) ListByAccount(_ context.Context, query domain.HistoryQuery) ([]domain.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := make([]domain.Transaction, 0)
	for _, txn := range r.s.transactions {
		if txn.FromAccount != query.AccountID && txn.ToAccount != query.AccountID {
			continue
		}
		if txn.ID <= query.AfterID {
			continue
		}
		out = append(out, txn)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if query.Limit > 0 && len(out) > query.Limit {
		out = out[:query.Limit]
	}
	return out, nil
}

type userRepo struct{ s *Store }

func (r userRepo) Create(_ context.Context, user *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[user.Username]; ok {
		return domain.ErrUserExists
	}
	user.CreatedAt = r.s.now().UTC()
	r.s.users[user.Username] = *user
	return nil
}

func (r userRepo) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	user, ok := r.s.users[username]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &user, nil
}
