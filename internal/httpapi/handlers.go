package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	"github.com/spbu-ds-practicum-2025/ledger-service/internal/auth"
	"github.com/spbu-ds-practicum-2025/ledger-service/internal/domain"
)

// IdempotencyKeyHeader carries an optional client-chosen key that makes a transfer safe to resend.
const IdempotencyKeyHeader = "Idempotency-Key"

func invalidArgument(message string, cause error) error {
	return domain.NewError(domain.KindInvalidArgument, message, cause)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return invalidArgument("Invalid request body", err)
	}
	return nil
}

func bindAccountID(r *http.Request) (int64, error) {
	var accountID int64
	err := runtime.BindStyledParameterWithLocation("simple", false, "account_id", runtime.ParamLocationPath, chi.URLParam(r, "account_id"), &accountID)
	if err != nil {
		return 0, invalidArgument("Invalid format for parameter account_id", err)
	}
	return accountID, nil
}

// Health handles GET /
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Message: "Ledger API is running"})
}

// CreateCustomer handles POST /customers/create/
func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req CreateCustomerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleDomainError(w, r, err)
		return
	}
	if req.ID == nil {
		handleDomainError(w, r, invalidArgument("Field id is required", nil))
		return
	}

	customer, err := h.registry.CreateCustomer(r.Context(), *req.ID, req.Name)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CustomerResponse{ID: customer.ID, Name: customer.Name})
}

// CreateAccount handles POST /accounts/create/
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleDomainError(w, r, err)
		return
	}
	if req.CustomerID == nil || req.InitialDeposit == nil {
		handleDomainError(w, r, invalidArgument("Fields customer_id and initial_deposit are required", nil))
		return
	}

	account, err := h.registry.CreateAccount(r.Context(), *req.CustomerID, *req.InitialDeposit)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(account))
}

// GetBalance handles GET /accounts/{account_id}/balance/
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	accountID, err := bindAccountID(r)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	account, err := h.registry.GetBalance(r.Context(), accountID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(account))
}

// Transfer handles POST /transactions/transfer/
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleDomainError(w, r, err)
		return
	}
	if req.FromAccount == nil || req.ToAccount == nil || req.Amount == nil {
		handleDomainError(w, r, invalidArgument("Fields from_account, to_account and amount are required", nil))
		return
	}

	txn, err := h.transfer.Transfer(r.Context(), domain.TransferRequest{
		FromAccount:    *req.FromAccount,
		ToAccount:      *req.ToAccount,
		Amount:         *req.Amount,
		IdempotencyKey: strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader)),
	})
	if err != nil {
		// a transfer naming an unknown account is a bad request, not a missing resource
		if domain.KindOf(err) == domain.KindNotFound {
			writeDomainError(w, r, err, http.StatusBadRequest)
			return
		}
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(txn))
}

// GetHistory handles GET /transactions/history/{account_id}
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	accountID, err := bindAccountID(r)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	var params HistoryParams
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &params.Limit); err != nil {
		handleDomainError(w, r, invalidArgument("Invalid format for parameter limit", err))
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "after_id", r.URL.Query(), &params.AfterId); err != nil {
		handleDomainError(w, r, invalidArgument("Invalid format for parameter after_id", err))
		return
	}

	query := domain.HistoryQuery{AccountID: accountID}
	if params.Limit != nil {
		if *params.Limit <= 0 {
			handleDomainError(w, r, invalidArgument("Parameter limit must be positive", nil))
			return
		}
		query.Limit = *params.Limit
	}
	if params.AfterId != nil {
		query.AfterID = *params.AfterId
	}

	txns, err := h.history.History(r.Context(), query)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	resp := HistoryResponse{History: make([]TransactionResponse, 0, len(txns))}
	for i := range txns {
		resp.History = append(resp.History, toTransactionResponse(&txns[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateUser handles POST /users/create/
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleDomainError(w, r, err)
		return
	}

	user, err := h.users.CreateUser(r.Context(), callerFrom(r.Context()), req.Username, req.Password)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, UserResponse{Username: user.Username})
}

// IssueToken handles POST /auth/token with a form-encoded username and password.
func (h *Handler) IssueToken(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		handleDomainError(w, r, invalidArgument("Invalid form body", err))
		return
	}
	username, password := r.PostForm.Get("username"), r.PostForm.Get("password")
	if username == "" || password == "" {
		handleDomainError(w, r, invalidArgument("Fields username and password are required", nil))
		return
	}

	token, err := h.users.Login(r.Context(), username, password)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			handleDomainError(w, r, domain.NewError(domain.KindUnauthorized, "Incorrect username or password", err))
			return
		}
		handleDomainError(w, r, fmt.Errorf("login: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{AccessToken: token, TokenType: auth.TokenType})
}
