// Package handlers provides HTTP handlers for the dispensing API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/drfirst/go-dispense/internal/api/middleware"
	"github.com/drfirst/go-dispense/internal/domain/patient"
)

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"message": message})
}

func decode(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// serviceError maps errors shared by every handler to a response
func serviceError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, patient.ErrNotFound):
		jsonError(w, "Patient not found", http.StatusNotFound)
	case errors.Is(err, patient.ErrInvalidTimeOfDay):
		jsonError(w, err.Error(), http.StatusBadRequest)
	default:
		logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.Error(err))
		jsonError(w, "internal server error", http.StatusInternalServerError)
	}
}
