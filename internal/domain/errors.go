package domain

import (
	"errors"
	"fmt"
)

// Kind classifies every failure an engine operation can report.
// Boundary layers map kinds to transport status codes.
type Kind string

const (
	KindInvalidArgument   Kind = "INVALID_ARGUMENT"
	KindNotFound          Kind = "NOT_FOUND"
	KindInsufficientFunds Kind = "INSUFFICIENT_FUNDS"
	KindConflict          Kind = "CONFLICT"
	KindUnauthorized      Kind = "UNAUTHORIZED"
	KindUnavailable       Kind = "UNAVAILABLE"
	KindInternal          Kind = "INTERNAL"
)

// Error is the single error result type of the domain layer.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds an Error of the given kind wrapping cause (which may be nil).
func NewError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// KindOf reports the kind of the first *Error in err's chain.
// Errors that carry no kind are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// MessageOf returns the client-facing message of the first *Error in err's chain.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}

var (
	// ErrAccountNotFound is returned when an account doesn't exist
	ErrAccountNotFound = NewError(KindNotFound, "Account not found", nil)

	// ErrCustomerNotFound is returned when an account is opened for an unknown customer
	ErrCustomerNotFound = NewError(KindNotFound, "Customer not found", nil)

	// ErrCustomerExists is returned when a customer id is already taken
	ErrCustomerExists = NewError(KindConflict, "Customer already exists", nil)

	// ErrUserExists is returned when a username is already taken
	ErrUserExists = NewError(KindConflict, "User already exists", nil)

	// ErrUserNotFound is returned when a username is unknown
	ErrUserNotFound = NewError(KindNotFound, "User not found", nil)

	// ErrInsufficientFunds is returned when the sender doesn't have enough balance
	ErrInsufficientFunds = NewError(KindInsufficientFunds, "Insufficient funds", nil)

	// ErrInvalidAmount is returned when the transfer amount is not positive
	ErrInvalidAmount = NewError(KindInvalidArgument, "Amount must be greater than zero", nil)

	// ErrAmountPrecision is returned for amounts with more than two fractional digits or beyond the stored range
	ErrAmountPrecision = NewError(KindInvalidArgument, "Amount must have at most 2 decimal places and fewer than 14 integer digits", nil)

	// ErrBalanceOverflow is returned when a credit would push a balance beyond the stored range
	ErrBalanceOverflow = NewError(KindInvalidArgument, "Resulting balance exceeds the supported range", nil)

	// ErrNegativeDeposit is returned when an account is opened with a negative balance
	ErrNegativeDeposit = NewError(KindInvalidArgument, "Initial deposit must not be negative", nil)

	// ErrSameAccount is returned when sender and recipient are the same
	ErrSameAccount = NewError(KindInvalidArgument, "Sender and recipient must be different accounts", nil)

	// ErrIdempotencyMismatch is returned when an idempotency key is reused for a different transfer
	ErrIdempotencyMismatch = NewError(KindConflict, "Idempotency key was used for a different transfer", nil)

	// ErrDuplicateIdempotencyKey is returned by stores when a concurrent transfer committed the same key first
	ErrDuplicateIdempotencyKey = NewError(KindConflict, "Duplicate idempotency key", nil)

	// ErrBusy is returned when a transfer keeps conflicting after all retries
	ErrBusy = NewError(KindConflict, "Transfer could not be completed due to concurrent activity, retry later", nil)

	// ErrUnauthorized is returned for missing or invalid credentials
	ErrUnauthorized = NewError(KindUnauthorized, "Invalid credentials", nil)

	// ErrAdminOnly is returned when a non-admin caller tries an admin operation
	ErrAdminOnly = NewError(KindUnauthorized, "Only admin can create a new user", nil)
)

// Retryable marks store failures that a fresh attempt of the same atomic unit may clear
// (deadlock, serialization failure, lock wait timeout).
type Retryable interface {
	Retryable() bool
}

// IsRetryable reports whether any error in err's chain is marked retryable.
func IsRetryable(err error) bool {
	var r Retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}

// StoreError is a classified store failure.
type StoreError struct {
	err       *Error
	retryable bool
}

// NewStoreError wraps a driver error with a kind and retry classification.
func NewStoreError(kind Kind, message string, cause error, retryable bool) *StoreError {
	return &StoreError{err: NewError(kind, message, cause), retryable: retryable}
}

func (e *StoreError) Error() string {
	return e.err.Error()
}

func (e *StoreError) Unwrap() error {
	return e.err
}

func (e *StoreError) Retryable() bool {
	return e.retryable
}
