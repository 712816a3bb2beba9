package db_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/sync/errgroup"

	"github.com/spbu-ds-practicum-2025/ledger-service/internal/db"
	"github.com/spbu-ds-practicum-2025/ledger-service/internal/domain"
)

type pgLedger struct {
	pool     *db.Pool
	registry *domain.RegistryService
	transfer *domain.TransferService
	history  *domain.HistoryService
	users    *db.UserRepository
}

// TestPostgresLedgerIntegration spins up PostgreSQL, applies the embedded
// migrations and runs the ledger services against the real store.
func TestPostgresLedgerIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, dbURL := startPostgresContainer(t, ctx)
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	}()

	pool, err := db.NewPool(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to create database pool: %v", err)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool.Pool); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	// a second run must be a no-op
	if err := db.Migrate(ctx, pool.Pool); err != nil {
		t.Fatalf("failed to re-run migrations: %v", err)
	}

	l := &pgLedger{
		pool:     pool,
		registry: domain.NewRegistryService(db.NewCustomerRepository(pool.Pool), db.NewAccountRepository(pool.Pool)),
		history:  domain.NewHistoryService(db.NewTransactionRepository(pool.Pool)),
		users:    db.NewUserRepository(pool.Pool),
		transfer: domain.NewTransferService(
			db.NewAccountRepository(pool.Pool),
			db.NewTransactionRepository(pool.Pool),
			db.NewTransactionManager(pool.Pool, 2*time.Second),
			nil,
			domain.DefaultTransferOptions(),
		),
	}

	t.Run("registry", func(t *testing.T) { testRegistry(t, l) })
	t.Run("transfer", func(t *testing.T) { testTransfer(t, l) })
	t.Run("concurrent debits", func(t *testing.T) { testConcurrentDebits(t, l) })
	t.Run("conservation under load", func(t *testing.T) { testConservation(t, l) })
	t.Run("idempotency", func(t *testing.T) { testIdempotency(t, l) })
	t.Run("users", func(t *testing.T) { testUsers(t, l) })
}

func testRegistry(t *testing.T, l *pgLedger) {
	ctx := context.Background()

	if _, err := l.registry.CreateCustomer(ctx, 1, "Alice"); err != nil {
		t.Fatalf("create customer: %v", err)
	}
	_, err := l.registry.CreateCustomer(ctx, 1, "Alice again")
	if !errors.Is(err, domain.ErrCustomerExists) {
		t.Errorf("expected ErrCustomerExists, got %v", err)
	}

	acc, err := l.registry.CreateAccount(ctx, 1, decimal.RequireFromString("1000.00"))
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	if acc.ID == 0 || acc.CreatedAt.IsZero() {
		t.Errorf("expected generated id and timestamps, got %+v", acc)
	}

	_, err = l.registry.CreateAccount(ctx, 404, decimal.NewFromInt(1))
	if !errors.Is(err, domain.ErrCustomerNotFound) {
		t.Errorf("expected ErrCustomerNotFound, got %v", err)
	}

	got, err := l.registry.GetBalance(ctx, acc.ID)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if got.Balance.String() != "1000" {
		t.Errorf("expected balance 1000, got %s", got.Balance)
	}

	if _, err := l.registry.GetBalance(ctx, 999999); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
}

func openPair(t *testing.T, l *pgLedger, customerID int64, a, b string) (int64, int64) {
	t.Helper()
	ctx := context.Background()
	if _, err := l.registry.CreateCustomer(ctx, customerID, fmt.Sprintf("Customer %d", customerID)); err != nil {
		t.Fatalf("create customer: %v", err)
	}
	first, err := l.registry.CreateAccount(ctx, customerID, decimal.RequireFromString(a))
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	second, err := l.registry.CreateAccount(ctx, customerID, decimal.RequireFromString(b))
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	return first.ID, second.ID
}

func balanceOf(t *testing.T, l *pgLedger, id int64) decimal.Decimal {
	t.Helper()
	acc, err := l.registry.GetBalance(context.Background(), id)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	return acc.Balance
}

func testTransfer(t *testing.T, l *pgLedger) {
	ctx := context.Background()
	from, to := openPair(t, l, 10, "1000.00", "500.00")

	txn, err := l.transfer.Transfer(ctx, domain.TransferRequest{FromAccount: from, ToAccount: to, Amount: decimal.RequireFromString("100.50")})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if txn.ID == 0 || txn.Timestamp.IsZero() {
		t.Errorf("expected stored id and timestamp, got %+v", txn)
	}
	if got := balanceOf(t, l, from); got.String() != "899.5" {
		t.Errorf("expected sender balance 899.50, got %s", got)
	}
	if got := balanceOf(t, l, to); got.String() != "600.5" {
		t.Errorf("expected recipient balance 600.50, got %s", got)
	}

	_, err = l.transfer.Transfer(ctx, domain.TransferRequest{FromAccount: from, ToAccount: to, Amount: decimal.NewFromInt(5000)})
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got %v", err)
	}
	_, err = l.transfer.Transfer(ctx, domain.TransferRequest{FromAccount: 999999, ToAccount: to, Amount: decimal.NewFromInt(1)})
	if !errors.Is(err, domain.ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}

	history, err := l.history.History(ctx, domain.HistoryQuery{AccountID: from})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].ID != txn.ID || history[0].Amount.String() != "100.5" {
		t.Errorf("unexpected history %+v", history)
	}

	empty, err := l.history.History(ctx, domain.HistoryQuery{AccountID: 999999})
	if err != nil || len(empty) != 0 {
		t.Errorf("expected empty history, got %+v, %v", empty, err)
	}
}

func testConcurrentDebits(t *testing.T, l *pgLedger) {
	ctx := context.Background()
	from, other := openPair(t, l, 20, "900.00", "0")
	_, third := openPair(t, l, 21, "0", "0")

	var (
		g         errgroup.Group
		successes atomic.Int32
		start     = make(chan struct{})
	)
	for _, leg := range []struct {
		to     int64
		amount int64
	}{{other, 600}, {third, 500}} {
		leg := leg
		g.Go(func() error {
			<-start
			_, err := l.transfer.Transfer(ctx, domain.TransferRequest{FromAccount: from, ToAccount: leg.to, Amount: decimal.NewFromInt(leg.amount)})
			if err == nil {
				successes.Add(1)
				return nil
			}
			if errors.Is(err, domain.ErrInsufficientFunds) {
				return nil
			}
			return err
		})
	}
	close(start)
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if successes.Load() != 1 {
		t.Fatalf("expected exactly one successful transfer, got %d", successes.Load())
	}
	final := balanceOf(t, l, from)
	if !final.Equal(decimal.NewFromInt(300)) && !final.Equal(decimal.NewFromInt(400)) {
		t.Errorf("unexpected final balance %s", final)
	}
}

func testConservation(t *testing.T, l *pgLedger) {
	ctx := context.Background()
	a, b := openPair(t, l, 30, "1000.00", "1000.00")

	var g errgroup.Group
	g.SetLimit(8)
	for i := 0; i < 100; i++ {
		from, to := a, b
		if i%2 == 1 {
			from, to = b, a
		}
		amount := decimal.New(int64(i%7+1)*100, -2)
		g.Go(func() error {
			_, err := l.transfer.Transfer(ctx, domain.TransferRequest{FromAccount: from, ToAccount: to, Amount: amount})
			if err != nil && !errors.Is(err, domain.ErrInsufficientFunds) {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	total := balanceOf(t, l, a).Add(balanceOf(t, l, b))
	if !total.Equal(decimal.NewFromInt(2000)) {
		t.Errorf("conservation violated: total %s", total)
	}

	var negatives int
	if err := l.pool.QueryRow(ctx, `SELECT count(*) FROM accounts WHERE balance < 0`).Scan(&negatives); err != nil {
		t.Fatal(err)
	}
	if negatives != 0 {
		t.Errorf("found %d negative balances", negatives)
	}
}

func testIdempotency(t *testing.T, l *pgLedger) {
	ctx := context.Background()
	from, to := openPair(t, l, 40, "100.00", "0")

	req := domain.TransferRequest{FromAccount: from, ToAccount: to, Amount: decimal.NewFromInt(10), IdempotencyKey: "integration-key"}
	var (
		g   errgroup.Group
		ids [5]int64
	)
	for i := range ids {
		i := i
		g.Go(func() error {
			txn, err := l.transfer.Transfer(ctx, req)
			if err != nil {
				return err
			}
			ids[i] = txn.ID
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	for _, id := range ids[1:] {
		if id != ids[0] {
			t.Errorf("expected every call to return transaction %d, got %v", ids[0], ids)
			break
		}
	}
	if got := balanceOf(t, l, from); !got.Equal(decimal.NewFromInt(90)) {
		t.Errorf("expected balance 90, got %s", got)
	}

	req.Amount = decimal.NewFromInt(11)
	if _, err := l.transfer.Transfer(ctx, req); !errors.Is(err, domain.ErrIdempotencyMismatch) {
		t.Errorf("expected ErrIdempotencyMismatch, got %v", err)
	}
}

func testUsers(t *testing.T, l *pgLedger) {
	ctx := context.Background()

	if err := l.users.Create(ctx, &domain.User{Username: "admin", PasswordHash: "hash"}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := l.users.Create(ctx, &domain.User{Username: "admin", PasswordHash: "hash"}); !errors.Is(err, domain.ErrUserExists) {
		t.Errorf("expected ErrUserExists, got %v", err)
	}
	u, err := l.users.GetByUsername(ctx, "admin")
	if err != nil || u.PasswordHash != "hash" {
		t.Errorf("unexpected user %+v, %v", u, err)
	}
	if _, err := l.users.GetByUsername(ctx, "ghost"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

// startPostgresContainer starts a PostgreSQL testcontainer and returns the connection URL.
func startPostgresContainer(t *testing.T, ctx context.Context) (testcontainers.Container, string) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:15",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpass",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get postgres host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("failed to get postgres port: %v", err)
	}

	return container, fmt.Sprintf("postgres://testuser:testpass@%s:%s/testdb?sslmode=disable", host, port.Port())
}
