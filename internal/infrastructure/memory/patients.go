// Package memory provides process-local stores for patients and the slot
// bank. State lives only as long as the process.
package memory

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/drfirst/go-dispense/internal/domain/patient"
)

// PatientStore keeps patients in registration order
type PatientStore struct {
	mu     sync.RWMutex
	order  []string
	byID   map[string]*patient.Patient
	logger *zap.Logger
}

var _ patient.Repository = (*PatientStore)(nil)

// NewPatientStore creates an empty store
func NewPatientStore(logger *zap.Logger) *PatientStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PatientStore{
		byID:   make(map[string]*patient.Patient),
		logger: logger,
	}
}

// Create stores a copy of p
func (s *PatientStore) Create(_ context.Context, p *patient.Patient) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID[p.ID] = p.Clone()
	s.order = append(s.order, p.ID)
	s.logger.Debug("patient stored", zap.String("patient_id", p.ID), zap.Int("patients", len(s.order)))
	return nil
}

// Get returns a copy of the patient
func (s *PatientStore) Get(_ context.Context, id string) (*patient.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.byID[id]
	if !ok {
		return nil, &patient.NotFoundError{ID: id}
	}
	return p.Clone(), nil
}

// List returns copies of all patients in registration order
func (s *PatientStore) List(_ context.Context) ([]*patient.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*patient.Patient, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id].Clone())
	}
	return out, nil
}

// ReplacePrescriptions swaps the prescription list under the write lock
func (s *PatientStore) ReplacePrescriptions(_ context.Context, id string, prescriptions []patient.Prescription) (*patient.Patient, error) {
	return s.mutate(id, func(p *patient.Patient) {
		p.ReplacePrescriptions(prescriptions)
	})
}

// MarkCompleted sets the round's flag under the write lock
func (s *PatientStore) MarkCompleted(_ context.Context, id string, t patient.TimeOfDay) (*patient.Patient, error) {
	return s.mutate(id, func(p *patient.Patient) {
		p.MarkCompleted(t)
	})
}

func (s *PatientStore) mutate(id string, fn func(*patient.Patient)) (*patient.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	if !ok {
		return nil, &patient.NotFoundError{ID: id}
	}
	fn(p)
	return p.Clone(), nil
}
