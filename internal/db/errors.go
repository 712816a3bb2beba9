package db

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spbu-ds-practicum-2025/ledger-service/internal/domain"
)

// PostgreSQL SQLSTATE codes the store reacts to.
const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeCheckViolation       = "23514"
	codeNumericOutOfRange    = "22003"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeQueryCanceled        = "57014"
	codeAdminShutdown        = "57P01"
	codeCannotConnectNow     = "57P03"
)

// Constraint names from the migrations.
const (
	constraintCustomersPK        = "customers_pkey"
	constraintUsersPK            = "users_pkey"
	constraintIdempotencyKey     = "transactions_idempotency_key_idx"
	constraintAccountsCustomerFK = "accounts_customer_id_fkey"
	constraintBalanceNonNegative = "accounts_balance_non_negative"
	constraintDistinctAccounts   = "transactions_distinct_accounts"
)

// classify maps driver failures onto domain errors. Errors that are not
// PostgreSQL or connection failures are returned unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			switch pgErr.ConstraintName {
			case constraintCustomersPK:
				return fmt.Errorf("%w: %w", domain.ErrCustomerExists, err)
			case constraintUsersPK:
				return fmt.Errorf("%w: %w", domain.ErrUserExists, err)
			case constraintIdempotencyKey:
				return fmt.Errorf("%w: %w", domain.ErrDuplicateIdempotencyKey, err)
			}
			return domain.NewStoreError(domain.KindConflict, "Duplicate record", err, false)
		case codeForeignKeyViolation:
			if pgErr.ConstraintName == constraintAccountsCustomerFK {
				return fmt.Errorf("%w: %w", domain.ErrCustomerNotFound, err)
			}
			return fmt.Errorf("%w: %w", domain.ErrAccountNotFound, err)
		case codeCheckViolation:
			switch pgErr.ConstraintName {
			case constraintBalanceNonNegative:
				return domain.NewStoreError(domain.KindInsufficientFunds, "Insufficient funds", err, false)
			case constraintDistinctAccounts:
				return fmt.Errorf("%w: %w", domain.ErrSameAccount, err)
			}
			return domain.NewStoreError(domain.KindInvalidArgument, "Value out of range", err, false)
		case codeNumericOutOfRange:
			return fmt.Errorf("%w: %w", domain.ErrBalanceOverflow, err)
		case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
			return domain.NewStoreError(domain.KindConflict, "Concurrent update conflict", err, true)
		case codeQueryCanceled, codeAdminShutdown, codeCannotConnectNow:
			return domain.NewStoreError(domain.KindUnavailable, "Store unavailable", err, false)
		}
		return err
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) || pgconn.Timeout(err) {
		return domain.NewStoreError(domain.KindUnavailable, "Store unavailable", err, false)
	}
	return err
}
