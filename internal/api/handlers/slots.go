package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/drfirst/go-dispense/internal/dispensing"
	"github.com/drfirst/go-dispense/internal/domain/slot"
)

// SlotHandler handles the slot bank and the medicine catalog
type SlotHandler struct {
	svc    *dispensing.Service
	logger *zap.Logger
}

// NewSlotHandler creates a new handler
func NewSlotHandler(svc *dispensing.Service, logger *zap.Logger) *SlotHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlotHandler{svc: svc, logger: logger}
}

// Routes returns the handler routes
func (h *SlotHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Update)
	return r
}

// UpdateRequest is the request body for replacing the slot bank
type UpdateRequest struct {
	Slots []slot.Slot `json:"slots"`
}

// UpdateResponse is the response for a committed slot bank
type UpdateResponse struct {
	Message string      `json:"message"`
	Slots   []slot.Slot `json:"slots"`
}

// RejectionResponse describes why a slot update was refused
type RejectionResponse struct {
	Message    string `json:"message"`
	Error      string `json:"error"`
	SlotNumber int    `json:"slotNumber,omitempty"`
	Medicine   string `json:"medicine,omitempty"`
	Stock      *int   `json:"stock,omitempty"`
}

// List handles GET /slots
func (h *SlotHandler) List(w http.ResponseWriter, r *http.Request) {
	slots, err := h.svc.Slots(r.Context())
	if err != nil {
		serviceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, slots)
}

// Update handles POST /slots
func (h *SlotHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if err := decode(r, &req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	slots, err := h.svc.UpdateSlots(r.Context(), req.Slots)
	if err != nil {
		if errors.Is(err, slot.ErrInvalidSlotUpdate) {
			writeJSON(w, http.StatusBadRequest, rejection(err))
			return
		}
		serviceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, UpdateResponse{Message: "Slots updated successfully", Slots: slots})
}

// Medicines handles GET /medicines
func (h *SlotHandler) Medicines(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Medicines())
}

func rejection(err error) RejectionResponse {
	resp := RejectionResponse{Message: err.Error(), Error: slot.Reason(err)}

	var dup *slot.DuplicateMedicineError
	var stock *slot.StockOutOfRangeError
	var set *slot.SlotSetMismatchError
	var unknown *slot.UnknownMedicineError
	switch {
	case errors.As(err, &dup):
		resp.SlotNumber, resp.Medicine = dup.SlotNumber, dup.Medicine
	case errors.As(err, &stock):
		resp.SlotNumber, resp.Stock = stock.SlotNumber, stock.Stock
	case errors.As(err, &set):
		resp.SlotNumber = set.SlotNumber
	case errors.As(err, &unknown):
		resp.SlotNumber, resp.Medicine = unknown.SlotNumber, unknown.Medicine
	}
	return resp
}
