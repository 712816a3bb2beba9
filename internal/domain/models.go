package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Customer owns accounts. Its id is chosen by the caller.
type Customer struct {
	ID   int64
	Name string
}

// Account represents a bank account in the system.
// Balance is never negative; it is only mutated by the transfer engine
// or set once when the account is opened.
type Account struct {
	ID         int64           // Store-assigned identifier
	CustomerID int64           // Owning customer
	Balance    decimal.Decimal // Current balance
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Transaction is an immutable record of a committed transfer.
// A Transaction exists if and only if its balance mutation was committed.
type Transaction struct {
	ID             int64
	FromAccount    int64
	ToAccount      int64
	Amount         decimal.Decimal
	IdempotencyKey string    // Empty when the caller supplied none
	Timestamp      time.Time // Assigned by the store when the row is written
}

// User is an API principal able to obtain bearer credentials.
type User struct {
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// TransferRequest describes a requested movement of funds.
type TransferRequest struct {
	FromAccount    int64
	ToAccount      int64
	Amount         decimal.Decimal
	IdempotencyKey string
}

// HistoryQuery selects a page of an account's transactions.
// Limit <= 0 means no limit; AfterID > 0 returns only transactions with a larger id.
type HistoryQuery struct {
	AccountID int64
	Limit     int
	AfterID   int64
}

// MoneyScale is the number of fractional digits a stored amount may carry.
const MoneyScale = 2

// MaxMoney is the exclusive upper bound of any stored amount or balance.
var MaxMoney = decimal.New(1, 13)

// Exponent window accepted before any rescaling; rescaling costs grow with |exponent|.
const (
	minMoneyExponent = -(MoneyScale + 16)
	maxMoneyExponent = 13
)

// validMoney reports whether v fits the stored NUMERIC(15,2) representation exactly.
func validMoney(v decimal.Decimal) bool {
	if exp := v.Exponent(); exp < minMoneyExponent || exp > maxMoneyExponent {
		return false
	}
	return v.Equal(v.Truncate(MoneyScale)) && v.Abs().LessThan(MaxMoney)
}

// Debit subtracts amount from the balance.
// Returns ErrInsufficientFunds if the balance would become negative.
func (a *Account) Debit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !a.HasSufficientFunds(amount) {
		return ErrInsufficientFunds
	}
	a.Balance = a.Balance.Sub(amount)
	return nil
}

// Credit adds amount to the balance.
func (a *Account) Credit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	balance := a.Balance.Add(amount)
	if !validMoney(balance) {
		return ErrBalanceOverflow
	}
	a.Balance = balance
	return nil
}

// HasSufficientFunds checks if the account has enough balance for the given amount.
func (a *Account) HasSufficientFunds(amount decimal.Decimal) bool {
	return a.Balance.GreaterThanOrEqual(amount)
}

// Matches reports whether t was produced by the same transfer request.
func (t *Transaction) Matches(req TransferRequest) bool {
	return t.FromAccount == req.FromAccount &&
		t.ToAccount == req.ToAccount &&
		t.Amount.Equal(req.Amount)
}
