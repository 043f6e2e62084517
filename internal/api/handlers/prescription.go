package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/drfirst/go-dispense/internal/dispensing"
	"github.com/drfirst/go-dispense/internal/domain/patient"
)

// PrescriptionHandler handles prescription storage, per-round worklists and
// distribution completion
type PrescriptionHandler struct {
	svc    *dispensing.Service
	logger *zap.Logger
}

// NewPrescriptionHandler creates a new handler
func NewPrescriptionHandler(svc *dispensing.Service, logger *zap.Logger) *PrescriptionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PrescriptionHandler{svc: svc, logger: logger}
}

// Routes returns the handler routes
func (h *PrescriptionHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Save)
	r.Get("/{time}", h.Worklist)
	r.Post("/{time}/{id}", h.MarkCompleted)
	return r
}

// SaveRequest is the request body for saving prescriptions
type SaveRequest struct {
	PatientID     string                 `json:"patientId"`
	Prescriptions []patient.Prescription `json:"prescriptions"`
}

// SaveResponse is the response for saving prescriptions
type SaveResponse struct {
	Message       string                 `json:"message"`
	Prescriptions []patient.Prescription `json:"prescriptions"`
}

// Save handles POST /prescriptions
func (h *PrescriptionHandler) Save(w http.ResponseWriter, r *http.Request) {
	var req SaveRequest
	if err := decode(r, &req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	saved, err := h.svc.SavePrescriptions(r.Context(), req.PatientID, req.Prescriptions)
	if err != nil {
		serviceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, SaveResponse{Message: "Prescriptions saved successfully", Prescriptions: saved})
}

// Worklist handles GET /prescriptions/{time}
func (h *PrescriptionHandler) Worklist(w http.ResponseWriter, r *http.Request) {
	t, err := patient.ParseTimeOfDay(chi.URLParam(r, "time"))
	if err != nil {
		serviceError(w, r, h.logger, err)
		return
	}

	entries, err := h.svc.Worklist(r.Context(), t)
	if err != nil {
		serviceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// CompletionResponse is the response for marking a round completed
type CompletionResponse struct {
	Message string `json:"message"`
	*patient.CompletionRecord
}

// MarkCompleted handles POST /prescriptions/{time}/{id}
func (h *PrescriptionHandler) MarkCompleted(w http.ResponseWriter, r *http.Request) {
	t, err := patient.ParseTimeOfDay(chi.URLParam(r, "time"))
	if err != nil {
		serviceError(w, r, h.logger, err)
		return
	}

	rec, err := h.svc.MarkCompleted(r.Context(), chi.URLParam(r, "id"), t)
	if err != nil {
		serviceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, CompletionResponse{
		Message:          fmt.Sprintf("Medicine distribution status updated to 'Yes' for %s", t),
		CompletionRecord: rec,
	})
}
