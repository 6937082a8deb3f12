package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"household/internal/core"
	"household/internal/services"

	"github.com/go-playground/validator/v10"
)

type errorBody struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string, details map[string]string) {
	writeJSON(w, status, errorBody{Error: msg, Details: details})
}

var badRequestErrors = []error{
	core.ErrInvalidAmount,
	core.ErrEmptyDescription,
	core.ErrDescriptionTooLong,
	core.ErrInvalidFrequency,
	core.ErrInvalidType,
	core.ErrInvalidMaxOccurrences,
	core.ErrEndBeforeStart,
	core.ErrEmptyUser,
	core.ErrEmptyAccount,
	core.ErrEmptyCategory,
	core.ErrInvalidDate,
	services.ErrEmptyPatch,
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	var (
		verrs validator.ValidationErrors
		br    badRequest
	)
	switch {
	case errors.As(err, &verrs), errors.As(err, &br):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrRuleNotFound), errors.Is(err, core.ErrTransactionNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrAccountNotFound), errors.Is(err, core.ErrCategoryNotFound):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrRunInProgress), errors.Is(err, core.ErrOccurrenceConflict):
		return http.StatusConflict
	}
	for _, target := range badRequestErrors {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

// respondError writes err with its mapped status. Internal errors are logged
// and replaced with a generic message.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "Request failed", "path", r.URL.Path, "error", err)
		writeError(w, status, "internal error", nil)
		return
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			details[fe.Field()] = validationMessage(fe)
		}
		writeError(w, status, "validation failed", details)
		return
	}
	writeError(w, status, err.Error(), nil)
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "len":
		return "must have length " + fe.Param()
	default:
		return "failed " + fe.Tag()
	}
}
