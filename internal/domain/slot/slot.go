// Package slot models the dispensing slot bank and validates whole-bank
// updates.
package slot

import "context"

// BankSize is the number of physical compartments in the dispenser
const BankSize = 20

// Stock bounds for an assigned slot, inclusive
const (
	MinStock = 2
	MaxStock = 10
)

// Status is derived from a slot's medicine and stock; callers never set it
type Status string

const (
	StatusUnassigned Status = "No Medicine Assigned"
	StatusLowStock   Status = "Low Stock"
	StatusOK         Status = "OK"
)

// Slot is one dispensing compartment. Stock is nil when no medicine is
// assigned.
type Slot struct {
	SlotNumber int    `json:"slotNumber"`
	Medicine   string `json:"medicine"`
	Stock      *int   `json:"stock"`
	Status     Status `json:"status"`
}

// Assigned reports whether a medicine is loaded in the slot
func (s Slot) Assigned() bool { return s.Medicine != "" }

// DeriveStatus computes the status of a slot from its medicine and stock
func DeriveStatus(s Slot) Status {
	if !s.Assigned() {
		return StatusUnassigned
	}
	if s.Stock == nil || *s.Stock <= MinStock {
		return StatusLowStock
	}
	return StatusOK
}

// InitialBank returns BankSize empty slots numbered 1..BankSize
func InitialBank() []Slot {
	bank := make([]Slot, BankSize)
	for i := range bank {
		bank[i] = Slot{SlotNumber: i + 1, Status: StatusUnassigned}
	}
	return bank
}

// Copy deep-copies a slot list so stock pointers are never shared
func Copy(in []Slot) []Slot {
	out := make([]Slot, len(in))
	for i, s := range in {
		if s.Stock != nil {
			v := *s.Stock
			s.Stock = &v
		}
		out[i] = s
	}
	return out
}

// Int returns a pointer to v, for building stock values
func Int(v int) *int { return &v }

// Repository is the slot bank store. Replace must swap the whole bank in one
// step so readers never observe a partial update.
type Repository interface {
	Load(ctx context.Context) ([]Slot, error)
	Replace(ctx context.Context, slots []Slot) error
}
