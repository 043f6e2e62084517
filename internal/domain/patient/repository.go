package patient

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound indicates no patient exists with the requested id
var ErrNotFound = errors.New("patient not found")

// NotFoundError carries the id that could not be resolved
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("patient not found: %s", e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// Repository is the patient store contract. Implementations must apply each
// mutation of a single patient atomically and return copies, never shared
// state.
type Repository interface {
	// Create stores a newly registered patient
	Create(ctx context.Context, p *Patient) error
	// Get returns a patient by id
	Get(ctx context.Context, id string) (*Patient, error)
	// List returns every patient in registration order
	List(ctx context.Context) ([]*Patient, error)
	// ReplacePrescriptions swaps the patient's prescription list wholesale
	ReplacePrescriptions(ctx context.Context, id string, prescriptions []Prescription) (*Patient, error)
	// MarkCompleted sets the round's distribution flag to Yes
	MarkCompleted(ctx context.Context, id string, t TimeOfDay) (*Patient, error)
}
