package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// CustomerRepository defines the interface for customer data access operations.
type CustomerRepository interface {
	// Create persists a customer with its caller-supplied id.
	// Returns ErrCustomerExists if the id is taken.
	Create(ctx context.Context, customer *Customer) error

	// Exists reports whether a customer with the given id is stored.
	Exists(ctx context.Context, id int64) (bool, error)
}

// AccountRepository defines the interface for account data access operations.
type AccountRepository interface {
	// Create persists a new account and fills in its store-assigned id and timestamps.
	// Returns ErrCustomerNotFound if the owning customer does not exist.
	Create(ctx context.Context, account *Account) error

	// GetByID retrieves an account by its identifier without locking it.
	// Returns ErrAccountNotFound if the account doesn't exist.
	GetByID(ctx context.Context, id int64) (*Account, error)

	// Lock reads the account and holds a row lock on it until the surrounding
	// transaction ends. Must be called within a transaction context.
	Lock(ctx context.Context, id int64) (*Account, error)

	// UpdateBalance overwrites the balance of a locked account.
	UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal) error
}

// TransactionRepository defines the interface for the append-only transaction log.
type TransactionRepository interface {
	// Create appends a transaction and fills in its id and timestamp.
	// Returns ErrDuplicateIdempotencyKey if the key was already recorded.
	Create(ctx context.Context, txn *Transaction) error

	// GetByIdempotencyKey returns nil, nil when no transaction carries the key.
	GetByIdempotencyKey(ctx context.Context, key string) (*Transaction, error)

	// ListByAccount returns transactions touching the account ordered by id ascending.
	ListByAccount(ctx context.Context, query HistoryQuery) ([]Transaction, error)
}

// UserRepository stores API principals.
type UserRepository interface {
	// Create returns ErrUserExists if the username is taken.
	Create(ctx context.Context, user *User) error

	// GetByUsername returns ErrUserNotFound if the username is unknown.
	GetByUsername(ctx context.Context, username string) (*User, error)
}

// TransactionManager defines the interface for managing database transactions.
// This abstraction allows the service layer to work with transactions
// without being coupled to a specific database implementation.
type TransactionManager interface {
	// WithTransaction executes the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	// Otherwise, the transaction is committed.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// EventPublisher publishes domain events to external systems (e.g. RabbitMQ).
type EventPublisher interface {
	PublishTransactionCommitted(ctx context.Context, txn *Transaction) error
}
