// Package event defines the domain events emitted by the dispensing service.
package event

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Type represents the type of domain event
type Type string

const (
	PatientRegistered     Type = "PatientRegistered"
	PrescriptionsSaved    Type = "PrescriptionsSaved"
	DistributionCompleted Type = "DistributionCompleted"
	SlotBankUpdated       Type = "SlotBankUpdated"
)

// Aggregate types
const (
	AggregatePatient  = "Patient"
	AggregateSlotBank = "SlotBank"
)

// SlotBankID is the aggregate id of the single slot bank
const SlotBankID = "slot-bank"

// Event represents a domain event
type Event struct {
	ID            string          `json:"id"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     Type            `json:"event_type"`
	EventData     json.RawMessage `json:"event_data"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}

// New creates an event with its data marshalled to JSON
func New(aggregateType, aggregateID string, eventType Type, data interface{}) (*Event, error) {
	eventData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		EventData:     eventData,
		Timestamp:     time.Now().UTC(),
	}, nil
}

// WithCorrelation sets the correlation id, usually the HTTP request id
func (e *Event) WithCorrelation(id string) *Event {
	e.CorrelationID = id
	return e
}

// Decode unmarshals the event data into v
func (e *Event) Decode(v interface{}) error {
	return json.Unmarshal(e.EventData, v)
}

// PatientRegisteredData contains registration details
type PatientRegisteredData struct {
	PatientID  string `json:"patient_id"`
	WardNumber string `json:"ward_number"`
	BedNumber  string `json:"bed_number"`
}

// PrescriptionsSavedData contains the replaced prescription list summary
type PrescriptionsSavedData struct {
	PatientID string   `json:"patient_id"`
	Medicines []string `json:"medicines"`
}

// DistributionCompletedData records a completed dispensing round
type DistributionCompletedData struct {
	PatientID   string    `json:"patient_id"`
	Time        string    `json:"time"`
	CompletedAt time.Time `json:"completed_at"`
}

// SlotState is the event view of a slot
type SlotState struct {
	SlotNumber int    `json:"slot_number"`
	Medicine   string `json:"medicine"`
	Stock      *int   `json:"stock"`
	Status     string `json:"status"`
}

// SlotBankUpdatedData carries the full committed bank
type SlotBankUpdatedData struct {
	Slots []SlotState `json:"slots"`
}

// Publisher delivers committed events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(ctx context.Context, evt *Event) error
}

// NopPublisher discards events
type NopPublisher struct{}

// Publish implements Publisher
func (NopPublisher) Publish(context.Context, *Event) error { return nil }

type correlationKey struct{}

// ContextWithCorrelationID attaches a correlation id for events emitted
// while handling the request
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationIDFromContext returns the correlation id, or ""
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationKey{}).(string); ok {
		return id
	}
	return ""
}
