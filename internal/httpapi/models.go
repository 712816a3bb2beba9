package httpapi

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/spbu-ds-practicum-2025/ledger-service/internal/domain"
)

// BaseError is the body of every non-2xx response.
type BaseError struct {
	Code        string    `json:"code"`
	Description *string   `json:"description,omitempty"`
	Id          uuid.UUID `json:"id"`
}

type CreateCustomerRequest struct {
	ID   *int64 `json:"id"`
	Name string `json:"name"`
}

type CustomerResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type CreateAccountRequest struct {
	CustomerID     *int64           `json:"customer_id"`
	InitialDeposit *decimal.Decimal `json:"initial_deposit"`
}

type AccountResponse struct {
	AccountID int64  `json:"account_id"`
	Balance   string `json:"balance"`
}

type TransferRequest struct {
	FromAccount *int64           `json:"from_account"`
	ToAccount   *int64           `json:"to_account"`
	Amount      *decimal.Decimal `json:"amount"`
}

type TransactionResponse struct {
	ID          int64     `json:"id"`
	FromAccount int64     `json:"from_account"`
	ToAccount   int64     `json:"to_account"`
	Amount      string    `json:"amount"`
	Timestamp   time.Time `json:"timestamp"`
}

type HistoryResponse struct {
	History []TransactionResponse `json:"history"`
}

type CreateUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type UserResponse struct {
	Username string `json:"username"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type HealthResponse struct {
	Message string `json:"message"`
}

// HistoryParams are the optional query parameters of the history endpoint.
type HistoryParams struct {
	Limit   *int   `form:"limit" json:"limit,omitempty"`
	AfterId *int64 `form:"after_id" json:"after_id,omitempty"`
}

func formatMoney(v decimal.Decimal) string {
	return v.StringFixed(domain.MoneyScale)
}

func toAccountResponse(a *domain.Account) AccountResponse {
	return AccountResponse{AccountID: a.ID, Balance: formatMoney(a.Balance)}
}

func toTransactionResponse(t *domain.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:          t.ID,
		FromAccount: t.FromAccount,
		ToAccount:   t.ToAccount,
		Amount:      formatMoney(t.Amount),
		Timestamp:   t.Timestamp.UTC(),
	}
}
