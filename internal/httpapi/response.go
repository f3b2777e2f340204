package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/almecha/GlucoseIoT/internal/core"
	"github.com/almecha/GlucoseIoT/pkg/domain"
)

const internalErrorMessage = "Internal Server Error"

type envelope struct {
	Message string `json:"message"`
	Body    any    `json:"body,omitempty"`
	User    any    `json:"user,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

// errorStatus maps a service error onto its HTTP status and client message.
// Persistence and unexpected failures never expose their cause.
func errorStatus(err error) (int, string) {
	var (
		notFound  domain.NotFoundError
		conflict  domain.ConflictError
		invalid   domain.ValidationError
		integrity domain.IntegrityError
		violation domain.RuleViolationError
	)
	switch {
	case errors.Is(err, domain.ErrMalformedInput):
		return http.StatusBadRequest, "Invalid JSON in request body"
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "Invalid credentials"
	case errors.Is(err, core.ErrUnsupportedEntity):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &notFound):
		return http.StatusNotFound, notFound.Error()
	case errors.As(err, &conflict):
		return http.StatusConflict, conflict.Error()
	case errors.As(err, &invalid):
		return http.StatusBadRequest, invalid.Error()
	case errors.As(err, &integrity):
		return http.StatusBadRequest, integrity.Error()
	case errors.As(err, &violation):
		return http.StatusBadRequest, violation.Error()
	default:
		return http.StatusInternalServerError, internalErrorMessage
	}
}
