package induction

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kilianp07/induction/core/engine/history"
	"github.com/kilianp07/induction/core/model"
)

type apiErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type apiError struct {
	Error apiErrorBody `json:"error"`
}

// statusFor maps engine errors to HTTP status codes and error codes.
func statusFor(err error) (int, string, map[string]any) {
	var ve *model.ValidationError
	switch {
	case errors.As(err, &ve):
		var details map[string]any
		if ve.Field != "" {
			details = map[string]any{"field": ve.Field}
		}
		return http.StatusBadRequest, "validation_failed", details
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest, "validation_failed", nil
	case errors.Is(err, model.ErrUnknownTrainset):
		return http.StatusNotFound, "unknown_trainset", nil
	case errors.Is(err, model.ErrUnknownOverride):
		return http.StatusNotFound, "unknown_override", nil
	case errors.Is(err, history.ErrEmpty):
		return http.StatusNotFound, "no_history", nil
	default:
		return http.StatusInternalServerError, "internal_error", nil
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, code, details := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
		details = map[string]any{"error": err.Error()}
	}
	writeJSON(w, status, apiError{Error: apiErrorBody{Code: code, Message: msg, Details: details}})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, apiError{Error: apiErrorBody{Code: "bad_request", Message: msg}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
