package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/spbu-ds-practicum-2025/ledger-service/internal/domain"
)

func seed(t *testing.T, s *Store, balances ...int64) []int64 {
	t.Helper()
	ctx := context.Background()
	if err := s.Customers().Create(ctx, &domain.Customer{ID: 1, Name: "Alice"}); err != nil {
		t.Fatal(err)
	}
	ids := make([]int64, 0, len(balances))
	for _, b := range balances {
		acc := &domain.Account{CustomerID: 1, Balance: decimal.NewFromInt(b)}
		if err := s.Accounts().Create(ctx, acc); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, acc.ID)
	}
	return ids
}

func TestWithTransaction_RollbackDiscardsStagedWrites(t *testing.T) {
	s := New()
	ids := seed(t, s, 100)
	boom := errors.New("boom")

	err := s.WithTransaction(context.Background(), func(ctx context.Context) error {
		if _, err := s.Accounts().Lock(ctx, ids[0]); err != nil {
			return err
		}
		if err := s.Accounts().UpdateBalance(ctx, ids[0], decimal.NewFromInt(5)); err != nil {
			return err
		}
		acc, err := s.Accounts().GetByID(ctx, ids[0])
		if err != nil {
			return err
		}
		if !acc.Balance.Equal(decimal.NewFromInt(5)) {
			t.Errorf("expected staged balance 5 inside the transaction, got %s", acc.Balance)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	acc, err := s.Accounts().GetByID(context.Background(), ids[0])
	if err != nil {
		t.Fatal(err)
	}
	if !acc.Balance.Equal(decimal.NewFromInt(100)) {
		t.Errorf("rollback leaked balance %s", acc.Balance)
	}

	// the lock must have been released
	err = s.WithTransaction(context.Background(), func(ctx context.Context) error {
		lockCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		_, err := s.Accounts().Lock(lockCtx, ids[0])
		return err
	})
	if err != nil {
		t.Errorf("lock not released after rollback: %v", err)
	}
}

func TestWithTransaction_CommitRejectsNegativeBalance(t *testing.T) {
	s := New()
	ids := seed(t, s, 10)

	err := s.WithTransaction(context.Background(), func(ctx context.Context) error {
		if _, err := s.Accounts().Lock(ctx, ids[0]); err != nil {
			return err
		}
		return s.Accounts().UpdateBalance(ctx, ids[0], decimal.NewFromInt(-1))
	})
	if domain.KindOf(err) != domain.KindInsufficientFunds {
		t.Fatalf("expected INSUFFICIENT_FUNDS, got %v", err)
	}
	if domain.IsRetryable(err) {
		t.Error("negative balance must not be retryable")
	}
	if total := s.TotalBalance(); !total.Equal(decimal.NewFromInt(10)) {
		t.Errorf("expected total 10, got %s", total)
	}
}

func TestWithTransaction_CommitAssignsIDsAndTimestamps(t *testing.T) {
	s := New()
	ids := seed(t, s, 10, 10)
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	txn := &domain.Transaction{FromAccount: ids[0], ToAccount: ids[1], Amount: decimal.NewFromInt(1), IdempotencyKey: "k"}
	err := s.WithTransaction(context.Background(), func(ctx context.Context) error {
		return s.Transactions().Create(ctx, txn)
	})
	if err != nil {
		t.Fatal(err)
	}
	if txn.ID != 1 || !txn.Timestamp.Equal(fixed) {
		t.Errorf("expected id 1 at %s, got %+v", fixed, txn)
	}

	got, err := s.Transactions().GetByIdempotencyKey(context.Background(), "k")
	if err != nil || got == nil || got.ID != txn.ID {
		t.Fatalf("lookup by key: %+v, %v", got, err)
	}
	missing, err := s.Transactions().GetByIdempotencyKey(context.Background(), "other")
	if err != nil || missing != nil {
		t.Errorf("expected nil for unknown key, got %+v, %v", missing, err)
	}

	dup := &domain.Transaction{FromAccount: ids[0], ToAccount: ids[1], Amount: decimal.NewFromInt(1), IdempotencyKey: "k"}
	err = s.WithTransaction(context.Background(), func(ctx context.Context) error {
		return s.Transactions().Create(ctx, dup)
	})
	if !errors.Is(err, domain.ErrDuplicateIdempotencyKey) {
		t.Errorf("expected duplicate key, got %v", err)
	}
}

func TestLock_WaitsForHolderAndHonoursContext(t *testing.T) {
	s := New()
	ids := seed(t, s, 10)

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = s.WithTransaction(context.Background(), func(ctx context.Context) error {
			if _, err := s.Accounts().Lock(ctx, ids[0]); err != nil {
				return err
			}
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	err := s.WithTransaction(context.Background(), func(ctx context.Context) error {
		lockCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		_, err := s.Accounts().Lock(lockCtx, ids[0])
		return err
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded while lock is held, got %v", err)
	}

	close(release)
	err = s.WithTransaction(context.Background(), func(ctx context.Context) error {
		lockCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		_, err := s.Accounts().Lock(lockCtx, ids[0])
		return err
	})
	if err != nil {
		t.Errorf("expected lock after release, got %v", err)
	}
}

func TestRepositories_RequireTransaction(t *testing.T) {
	s := New()
	ids := seed(t, s, 10)
	ctx := context.Background()

	if _, err := s.Accounts().Lock(ctx, ids[0]); !errors.Is(err, ErrNoTransaction) {
		t.Errorf("Lock: expected ErrNoTransaction, got %v", err)
	}
	if err := s.Accounts().UpdateBalance(ctx, ids[0], decimal.Zero); !errors.Is(err, ErrNoTransaction) {
		t.Errorf("UpdateBalance: expected ErrNoTransaction, got %v", err)
	}
	if err := s.Transactions().Create(ctx, &domain.Transaction{}); !errors.Is(err, ErrNoTransaction) {
		t.Errorf("Create: expected ErrNoTransaction, got %v", err)
	}

	err := s.WithTransaction(ctx, func(txCtx context.Context) error {
		return s.Accounts().UpdateBalance(txCtx, ids[0], decimal.Zero)
	})
	if err == nil {
		t.Error("expected error when updating an unlocked account")
	}
}

func TestUsers(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.Users().Create(ctx, &domain.User{Username: "admin", PasswordHash: "h"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Users().Create(ctx, &domain.User{Username: "admin", PasswordHash: "x"}); !errors.Is(err, domain.ErrUserExists) {
		t.Errorf("expected ErrUserExists, got %v", err)
	}
	u, err := s.Users().GetByUsername(ctx, "admin")
	if err != nil || u.PasswordHash != "h" {
		t.Errorf("unexpected user %+v, %v", u, err)
	}
	if _, err := s.Users().GetByUsername(ctx, "nobody"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}
