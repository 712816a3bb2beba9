package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/spbu-ds-practicum-2025/ledger-service/internal/domain"
	"github.com/spbu-ds-practicum-2025/ledger-service/internal/logger"
)

// statusFor maps an error kind to its HTTP status.
func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindInvalidArgument, domain.KindInsufficientFunds:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	case domain.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// handleDomainError writes err with the status of its kind.
func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	writeDomainError(w, r, err, statusFor(domain.KindOf(err)))
}

func writeDomainError(w http.ResponseWriter, r *http.Request, err error, status int) {
	kind := domain.KindOf(err)
	if kind == domain.KindInternal {
		logger.Error("request failed", err, logger.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		})
		sendErrorResponse(w, status, string(kind), "An internal error occurred")
		return
	}
	if kind == domain.KindUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	sendErrorResponse(w, status, string(kind), domain.MessageOf(err))
}

// sendErrorResponse sends an error response in the expected format
func sendErrorResponse(w http.ResponseWriter, statusCode int, code, description string) {
	errorResp := BaseError{
		Code:        code,
		Description: &description,
		Id:          uuid.New(),
	}
	writeJSON(w, statusCode, errorResp)
}

func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("failed to encode response", err, nil)
	}
}
