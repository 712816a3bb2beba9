package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/spbu-ds-practicum-2025/ledger-service/internal/auth"
	"github.com/spbu-ds-practicum-2025/ledger-service/internal/domain"
)

const maxBodyBytes = 1 << 20

// Handler serves the ledger HTTP API.
type Handler struct {
	registry *domain.RegistryService
	transfer *domain.TransferService
	history  *domain.HistoryService
	users    *auth.UserService
}

func NewHandler(
	registry *domain.RegistryService,
	transfer *domain.TransferService,
	history *domain.HistoryService,
	users *auth.UserService,
) *Handler {
	return &Handler{
		registry: registry,
		transfer: transfer,
		history:  history,
		users:    users,
	}
}

// NewRouter wires the API routes. Every route except the health check and
// the token endpoint requires a bearer token.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	r.Get("/", h.Health)
	r.Post("/auth/token", h.IssueToken)

	r.Group(func(r chi.Router) {
		r.Use(h.requireToken)

		r.Post("/customers/create", h.CreateCustomer)
		r.Post("/accounts/create", h.CreateAccount)
		r.Get("/accounts/{account_id}/balance", h.GetBalance)
		r.Post("/transactions/transfer", h.Transfer)
		r.Get("/transactions/history/{account_id}", h.GetHistory)
		r.Post("/users/create", h.CreateUser)
	})

	return r
}
