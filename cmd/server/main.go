package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/spbu-ds-practicum-2025/ledger-service/internal/auth"
	"github.com/spbu-ds-practicum-2025/ledger-service/internal/config"
	"github.com/spbu-ds-practicum-2025/ledger-service/internal/db"
	"github.com/spbu-ds-practicum-2025/ledger-service/internal/domain"
	"github.com/spbu-ds-practicum-2025/ledger-service/internal/events"
	grpcserver "github.com/spbu-ds-practicum-2025/ledger-service/internal/grpc"
	"github.com/spbu-ds-practicum-2025/ledger-service/internal/httpapi"
	"github.com/spbu-ds-practicum-2025/ledger-service/internal/logger"
	"github.com/spbu-ds-practicum-2025/ledger-service/internal/memstore"
)

const shutdownTimeout = 10 * time.Second

// ledgerStore bundles the repositories of whichever store driver is configured.
type ledgerStore struct {
	customers    domain.CustomerRepository
	accounts     domain.AccountRepository
	transactions domain.TransactionRepository
	users        domain.UserRepository
	txManager    domain.TransactionManager
	pinger       grpcserver.Pinger
	close        func()
}

func main() {
	cfg := config.Load()
	logger.Configure(os.Stdout, cfg.LogLevel)

	if err := run(cfg); err != nil {
		logger.Error("ledger service stopped with error", err, nil)
		os.Exit(1)
	}
	logger.Info("ledger service stopped gracefully", nil)
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.close()

	var publisher domain.EventPublisher
	if cfg.RabbitMQ.URL != "" {
		p, err := events.NewRabbitMQPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, cfg.RabbitMQ.RoutingKey)
		if err != nil {
			return fmt.Errorf("failed to create rabbitmq publisher: %w", err)
		}
		defer p.Close()
		publisher = p
	} else {
		logger.Info("RABBITMQ_URL not set, transaction events are not published", nil)
	}

	registry := domain.NewRegistryService(store.customers, store.accounts)
	transfers := domain.NewTransferService(store.accounts, store.transactions, store.txManager, publisher, domain.TransferOptions{
		Timeout:      cfg.Transfer.Timeout,
		MaxRetries:   cfg.Transfer.MaxRetries,
		RetryBackoff: cfg.Transfer.RetryBackoff,
	})
	history := domain.NewHistoryService(store.transactions)
	users := auth.NewUserService(store.users, auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL), cfg.Auth.AdminUsername)

	if err := users.EnsureAdmin(ctx, cfg.Auth.AdminPassword); err != nil {
		return fmt.Errorf("failed to bootstrap admin user: %w", err)
	}
	if cfg.SeedDemo {
		if err := registry.SeedDemo(ctx); err != nil {
			return fmt.Errorf("failed to seed demo data: %w", err)
		}
	}
	logger.Info("domain services initialized", nil)

	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           httpapi.NewRouter(httpapi.NewHandler(registry, transfers, history, users)),
		ReadHeaderTimeout: 5 * time.Second,
	}
	checker := grpcserver.NewHealthChecker(store.pinger, 10*time.Second)
	grpcServer := grpcserver.NewServer(checker)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server starting", logger.Fields{"port": cfg.HTTPPort})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			return fmt.Errorf("failed to listen on port %s: %w", cfg.GRPCPort, err)
		}
		logger.Info("grpc server starting", logger.Fields{"port": cfg.GRPCPort})
		if err := grpcServer.Serve(lis); err != nil {
			return fmt.Errorf("grpc server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		checker.Run(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down servers", nil)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		grpcServer.GracefulStop()
		return httpServer.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	// publishes still in flight must finish before the publisher is closed
	transfers.Wait()
	return err
}

func openStore(ctx context.Context, cfg *config.Config) (*ledgerStore, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		s := memstore.New()
		logger.Warn("using in-memory store, data is lost on restart", nil)
		return &ledgerStore{
			customers:    s.Customers(),
			accounts:     s.Accounts(),
			transactions: s.Transactions(),
			users:        s.Users(),
			txManager:    s,
			pinger:       s,
			close:        func() {},
		}, nil

	case config.StoreDriverPostgres:
		pool, err := db.NewPool(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to create database pool: %w", err)
		}
		if err := db.Migrate(ctx, pool.Pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		logger.Info("database connection pool initialized", nil)
		return &ledgerStore{
			customers:    db.NewCustomerRepository(pool.Pool),
			accounts:     db.NewAccountRepository(pool.Pool),
			transactions: db.NewTransactionRepository(pool.Pool),
			users:        db.NewUserRepository(pool.Pool),
			txManager:    db.NewTransactionManager(pool.Pool, cfg.Postgres.LockTimeout),
			pinger:       pool,
			close:        pool.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
}
