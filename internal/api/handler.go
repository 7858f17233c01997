// Package api provides HTTP handlers for the MedEndorse API.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/medendorse/internal/consult"
	"github.com/ashureev/medendorse/internal/store"
)

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// StatusFor maps a coordinator or store error to an HTTP status and the
// message shown to the client.
func StatusFor(err error) (int, string) {
	var modelErr *consult.ModelError
	switch {
	case errors.As(err, &modelErr):
		return http.StatusBadGateway, modelErr.Message
	case errors.Is(err, store.ErrCaseNotFound):
		return http.StatusNotFound, "case not found"
	case errors.Is(err, consult.ErrDiagnosisInFlight),
		errors.Is(err, consult.ErrPlanInFlight),
		errors.Is(err, consult.ErrPlanExists),
		errors.Is(err, consult.ErrTurnInFlight),
		errors.Is(err, consult.ErrImageInFlight),
		errors.Is(err, consult.ErrAlreadyListening),
		errors.Is(err, consult.ErrStaleDiagnosis):
		return http.StatusConflict, err.Error()
	case errors.Is(err, consult.ErrImageTooLarge):
		return http.StatusRequestEntityTooLarge, err.Error()
	case errors.Is(err, consult.ErrNoCaseInput),
		errors.Is(err, consult.ErrEmptyMessage),
		errors.Is(err, consult.ErrNoImage),
		errors.Is(err, consult.ErrIndexOutOfRange),
		errors.Is(err, consult.ErrUnknownView),
		errors.Is(err, consult.ErrUnsupportedImage),
		errors.Is(err, consult.ErrChatNotActive),
		errors.Is(err, consult.ErrSpeechUnsupported):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, msg := StatusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("Request failed", "error", err)
	}
	Error(w, status, msg)
}
