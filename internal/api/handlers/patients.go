package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/drfirst/go-dispense/internal/dispensing"
	"github.com/drfirst/go-dispense/internal/domain/patient"
)

// PatientHandler handles patient registration and lookup
type PatientHandler struct {
	svc    *dispensing.Service
	logger *zap.Logger
}

// NewPatientHandler creates a new handler
func NewPatientHandler(svc *dispensing.Service, logger *zap.Logger) *PatientHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PatientHandler{svc: svc, logger: logger}
}

// Routes returns the handler routes
func (h *PatientHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Register)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Get("/{id}/prescriptions", h.Prescriptions)
	return r
}

// RegisterResponse is the response for registering a patient
type RegisterResponse struct {
	Message string           `json:"message"`
	Patient *patient.Patient `json:"patient"`
}

// Register handles POST /patients. Any id or distribution status in the
// body is ignored.
func (h *PatientHandler) Register(w http.ResponseWriter, r *http.Request) {
	var reg patient.Registration
	if err := decode(r, &reg); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	p, err := h.svc.RegisterPatient(r.Context(), reg)
	if err != nil {
		serviceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, RegisterResponse{Message: "Patient registered successfully", Patient: p})
}

// List handles GET /patients
func (h *PatientHandler) List(w http.ResponseWriter, r *http.Request) {
	patients, err := h.svc.ListPatients(r.Context())
	if err != nil {
		serviceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, patients)
}

// Get handles GET /patients/{id}
func (h *PatientHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.GetPatient(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		serviceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Prescriptions handles GET /patients/{id}/prescriptions
func (h *PatientHandler) Prescriptions(w http.ResponseWriter, r *http.Request) {
	rxs, err := h.svc.Prescriptions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		serviceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rxs)
}
