package memory

import (
	"context"
	"sync"

	"github.com/drfirst/go-dispense/internal/domain/slot"
)

// SlotStore holds the slot bank, initialised to BankSize empty slots
type SlotStore struct {
	mu    sync.RWMutex
	slots []slot.Slot
}

var _ slot.Repository = (*SlotStore)(nil)

// NewSlotStore creates a store holding the initial empty bank
func NewSlotStore() *SlotStore {
	return &SlotStore{slots: slot.InitialBank()}
}

// Load returns a copy of the bank in canonical order
func (s *SlotStore) Load(_ context.Context) ([]slot.Slot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slot.Copy(s.slots), nil
}

// Replace swaps the whole bank
func (s *SlotStore) Replace(_ context.Context, slots []slot.Slot) error {
	next := slot.Copy(slots)

	s.mu.Lock()
	s.slots = next
	s.mu.Unlock()
	return nil
}
