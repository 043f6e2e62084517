// Package dispensing is the application service for ward medicine
// dispensing: patient records, prescriptions, per-round worklists and the
// slot bank.
package dispensing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/drfirst/go-dispense/internal/domain/event"
	"github.com/drfirst/go-dispense/internal/domain/medicine"
	"github.com/drfirst/go-dispense/internal/domain/patient"
	"github.com/drfirst/go-dispense/internal/domain/slot"
	"github.com/drfirst/go-dispense/internal/observability/metrics"
)

// Options tunes service behaviour
type Options struct {
	// StrictCatalog rejects slot assignments naming medicines outside the
	// static catalog
	StrictCatalog bool
}

// Service coordinates the stores with the slot validator and the worklist
// aggregator
type Service struct {
	patients  patient.Repository
	slots     slot.Repository
	publisher event.Publisher
	metrics   *metrics.Metrics
	logger    *zap.Logger
	tracer    trace.Tracer

	validateOpts []slot.Option

	// slotMu serialises load, validate and commit of the slot bank
	slotMu sync.Mutex
}

// NewService creates a service. Nil publisher, metrics or logger fall back
// to no-op implementations.
func NewService(patients patient.Repository, slots slot.Repository, publisher event.Publisher, m *metrics.Metrics, logger *zap.Logger, opts Options) *Service {
	if publisher == nil {
		publisher = event.NopPublisher{}
	}
	if m == nil {
		m = metrics.New(prometheus.NewRegistry())
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		patients:  patients,
		slots:     slots,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		tracer:    otel.Tracer("dispensing-service"),
	}
	if opts.StrictCatalog {
		s.validateOpts = append(s.validateOpts, slot.WithCatalog(medicine.Contains))
	}
	return s
}

// RegisterPatient creates a patient with every round pending
func (s *Service) RegisterPatient(ctx context.Context, reg patient.Registration) (*patient.Patient, error) {
	ctx, span := s.tracer.Start(ctx, "register_patient")
	defer span.End()
	defer s.observe("register_patient", time.Now())

	p := patient.New(reg)
	if err := s.patients.Create(ctx, p); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("store patient: %w", err)
	}
	span.SetAttributes(attribute.String("patient_id", p.ID))

	s.metrics.PatientsRegistered.Inc()
	s.logger.Info("patient registered",
		zap.String("patient_id", p.ID),
		zap.String("ward", p.WardNumber),
		zap.String("bed", p.BedNumber))

	s.publish(ctx, event.AggregatePatient, p.ID, event.PatientRegistered, event.PatientRegisteredData{
		PatientID:  p.ID,
		WardNumber: p.WardNumber,
		BedNumber:  p.BedNumber,
	})
	return p, nil
}

// ListPatients returns every patient in registration order
func (s *Service) ListPatients(ctx context.Context) ([]*patient.Patient, error) {
	ctx, span := s.tracer.Start(ctx, "list_patients")
	defer span.End()

	patients, err := s.patients.List(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list patients: %w", err)
	}
	return patients, nil
}

// GetPatient returns a single patient
func (s *Service) GetPatient(ctx context.Context, id string) (*patient.Patient, error) {
	ctx, span := s.tracer.Start(ctx, "get_patient", trace.WithAttributes(attribute.String("patient_id", id)))
	defer span.End()

	return s.patients.Get(ctx, id)
}

// SavePrescriptions replaces the patient's prescription list wholesale
func (s *Service) SavePrescriptions(ctx context.Context, id string, prescriptions []patient.Prescription) ([]patient.Prescription, error) {
	ctx, span := s.tracer.Start(ctx, "save_prescriptions",
		trace.WithAttributes(
			attribute.String("patient_id", id),
			attribute.Int("prescriptions", len(prescriptions)),
		))
	defer span.End()
	defer s.observe("save_prescriptions", time.Now())

	p, err := s.patients.ReplacePrescriptions(ctx, id, prescriptions)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.metrics.PrescriptionsSaved.Inc()
	s.logger.Info("prescriptions saved",
		zap.String("patient_id", id),
		zap.Int("count", len(p.Prescriptions)))

	medicines := make([]string, 0, len(p.Prescriptions))
	for _, rx := range p.Prescriptions {
		medicines = append(medicines, rx.Medicine)
	}
	s.publish(ctx, event.AggregatePatient, id, event.PrescriptionsSaved, event.PrescriptionsSavedData{
		PatientID: id,
		Medicines: medicines,
	})
	return p.Prescriptions, nil
}

// Prescriptions returns the patient's prescriptions, empty when none
func (s *Service) Prescriptions(ctx context.Context, id string) ([]patient.Prescription, error) {
	p, err := s.GetPatient(ctx, id)
	if err != nil {
		return nil, err
	}
	return patient.CopyPrescriptions(p.Prescriptions), nil
}

// Worklist returns the dispensing queue for a round
func (s *Service) Worklist(ctx context.Context, t patient.TimeOfDay) ([]patient.WorklistEntry, error) {
	ctx, span := s.tracer.Start(ctx, "worklist", trace.WithAttributes(attribute.String("time", string(t))))
	defer span.End()
	defer s.observe("worklist", time.Now())

	if _, err := patient.ParseTimeOfDay(string(t)); err != nil {
		return nil, err
	}

	patients, err := s.patients.List(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list patients: %w", err)
	}

	entries := patient.BuildWorklist(patients, t)
	s.metrics.WorklistSize.WithLabelValues(string(t)).Set(float64(len(entries)))
	span.SetAttributes(attribute.Int("entries", len(entries)))
	return entries, nil
}

// MarkCompleted records that the round has been dispensed for the patient.
// Marking an already completed round succeeds with the same result.
func (s *Service) MarkCompleted(ctx context.Context, id string, t patient.TimeOfDay) (*patient.CompletionRecord, error) {
	ctx, span := s.tracer.Start(ctx, "mark_completed",
		trace.WithAttributes(
			attribute.String("patient_id", id),
			attribute.String("time", string(t)),
		))
	defer span.End()
	defer s.observe("mark_completed", time.Now())

	if _, err := patient.ParseTimeOfDay(string(t)); err != nil {
		return nil, err
	}

	p, err := s.patients.MarkCompleted(ctx, id, t)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.metrics.DistributionsCompleted.WithLabelValues(string(t)).Inc()
	s.logger.Info("distribution completed",
		zap.String("patient_id", id),
		zap.String("time", string(t)))

	s.publish(ctx, event.AggregatePatient, id, event.DistributionCompleted, event.DistributionCompletedData{
		PatientID:   id,
		Time:        string(t),
		CompletedAt: time.Now().UTC(),
	})
	return patient.NewCompletionRecord(p, t), nil
}

// Medicines returns the static medicine catalog
func (s *Service) Medicines() []string {
	return medicine.Names()
}

// Slots returns the slot bank in canonical order
func (s *Service) Slots(ctx context.Context) ([]slot.Slot, error) {
	ctx, span := s.tracer.Start(ctx, "load_slots")
	defer span.End()

	slots, err := s.slots.Load(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("load slot bank: %w", err)
	}
	return slots, nil
}

// UpdateSlots validates a full replacement of the slot bank and commits it.
// A rejected update leaves the bank unchanged.
func (s *Service) UpdateSlots(ctx context.Context, candidates []slot.Slot) ([]slot.Slot, error) {
	ctx, span := s.tracer.Start(ctx, "update_slots", trace.WithAttributes(attribute.Int("slots", len(candidates))))
	defer span.End()
	defer s.observe("update_slots", time.Now())

	s.slotMu.Lock()
	defer s.slotMu.Unlock()

	current, err := s.slots.Load(ctx)
	if err != nil {
		span.RecordError(err)
		s.metrics.SlotUpdates.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("load slot bank: %w", err)
	}

	next, err := slot.Validate(current, candidates, s.validateOpts...)
	if err != nil {
		reason := slot.Reason(err)
		s.metrics.SlotUpdates.WithLabelValues("rejected").Inc()
		s.metrics.SlotRejections.WithLabelValues(reason).Inc()
		span.SetAttributes(attribute.String("rejection_reason", reason))
		s.logger.Info("slot update rejected", zap.String("reason", reason), zap.Error(err))
		return nil, err
	}

	if err := s.slots.Replace(ctx, next); err != nil {
		span.RecordError(err)
		s.metrics.SlotUpdates.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("replace slot bank: %w", err)
	}

	assigned, low := 0, 0
	states := make([]event.SlotState, 0, len(next))
	for _, sl := range next {
		if sl.Assigned() {
			assigned++
		}
		if sl.Status == slot.StatusLowStock {
			low++
		}
		states = append(states, event.SlotState{
			SlotNumber: sl.SlotNumber,
			Medicine:   sl.Medicine,
			Stock:      sl.Stock,
			Status:     string(sl.Status),
		})
	}
	s.metrics.SlotUpdates.WithLabelValues("accepted").Inc()
	s.metrics.SlotsAssigned.Set(float64(assigned))
	s.metrics.SlotsLowStock.Set(float64(low))
	s.logger.Info("slot bank updated", zap.Int("assigned", assigned), zap.Int("low_stock", low))

	s.publish(ctx, event.AggregateSlotBank, event.SlotBankID, event.SlotBankUpdated, event.SlotBankUpdatedData{Slots: states})
	return slot.Copy(next), nil
}

// publish hands a committed change to the publisher. Failures are logged
// and counted; the change itself stands.
func (s *Service) publish(ctx context.Context, aggregateType, aggregateID string, eventType event.Type, data interface{}) {
	evt, err := event.New(aggregateType, aggregateID, eventType, data)
	if err != nil {
		s.logger.Error("build event failed", zap.String("event_type", string(eventType)), zap.Error(err))
		s.metrics.EventsPublished.WithLabelValues(string(eventType), "error").Inc()
		return
	}
	evt.WithCorrelation(event.CorrelationIDFromContext(ctx))

	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Error("publish event failed",
			zap.String("event_id", evt.ID),
			zap.String("event_type", string(eventType)),
			zap.String("aggregate_id", aggregateID),
			zap.Error(err))
		s.metrics.EventsPublished.WithLabelValues(string(eventType), "error").Inc()
		return
	}
	s.metrics.EventsPublished.WithLabelValues(string(eventType), "ok").Inc()
}

func (s *Service) observe(op string, start time.Time) {
	s.metrics.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
