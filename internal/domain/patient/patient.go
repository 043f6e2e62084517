// Package patient implements the ward patient record, its per-time-of-day
// prescriptions and the distribution state machine.
package patient

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Flag is the Yes/No marker used by prescriptions and distribution status
type Flag string

const (
	FlagYes Flag = "Yes"
	FlagNo  Flag = "No"
)

// IsYes reports whether the flag is exactly "Yes"
func (f Flag) IsYes() bool { return f == FlagYes }

// TimeOfDay is one of the three daily dispensing rounds
type TimeOfDay string

const (
	Morning TimeOfDay = "morning"
	Day     TimeOfDay = "day"
	Night   TimeOfDay = "night"
)

// TimesOfDay lists the dispensing rounds in daily order
var TimesOfDay = []TimeOfDay{Morning, Day, Night}

// ErrInvalidTimeOfDay is returned for anything other than morning, day or night
var ErrInvalidTimeOfDay = errors.New("invalid time of day")

// ParseTimeOfDay converts a path or query value into a TimeOfDay
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	switch t := TimeOfDay(s); t {
	case Morning, Day, Night:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
}

// Prescription is a single medicine and the rounds it is due in.
// Flags other than "Yes" are treated as not due.
type Prescription struct {
	Medicine string `json:"medicine"`
	Morning  Flag   `json:"morning"`
	Day      Flag   `json:"day"`
	Night    Flag   `json:"night"`
}

// DueAt reports whether the medicine is due in the given round
func (p Prescription) DueAt(t TimeOfDay) bool {
	switch t {
	case Morning:
		return p.Morning.IsYes()
	case Day:
		return p.Day.IsYes()
	case Night:
		return p.Night.IsYes()
	}
	return false
}

// DistributionStatus records per round whether dispensing has been completed
type DistributionStatus struct {
	Morning Flag `json:"morning"`
	Day     Flag `json:"day"`
	Night   Flag `json:"night"`
}

// PendingStatus is the status every patient starts with
func PendingStatus() DistributionStatus {
	return DistributionStatus{Morning: FlagNo, Day: FlagNo, Night: FlagNo}
}

// Get returns the completion flag for a round; unset flags read as "No"
func (s DistributionStatus) Get(t TimeOfDay) Flag {
	var f Flag
	switch t {
	case Morning:
		f = s.Morning
	case Day:
		f = s.Day
	case Night:
		f = s.Night
	}
	if f == "" {
		return FlagNo
	}
	return f
}

// Complete moves a round to Completed. Completed is terminal, so calling it
// again leaves the status unchanged.
func (s *DistributionStatus) Complete(t TimeOfDay) {
	switch t {
	case Morning:
		s.Morning = FlagYes
	case Day:
		s.Day = FlagYes
	case Night:
		s.Night = FlagYes
	}
}

// Registration carries the caller-supplied fields of a new patient
type Registration struct {
	Name           string `json:"name"`
	WardNumber     string `json:"wardNumber"`
	BedNumber      string `json:"bedNumber"`
	RFIDCardNumber string `json:"rfidCardNumber"`
}

// Patient is a registered ward patient
type Patient struct {
	ID                 string             `json:"id"`
	Name               string             `json:"name"`
	WardNumber         string             `json:"wardNumber"`
	BedNumber          string             `json:"bedNumber"`
	RFIDCardNumber     string             `json:"rfidCardNumber"`
	Prescriptions      []Prescription     `json:"prescriptions"`
	DistributionStatus DistributionStatus `json:"distributionStatus"`
	CreatedAt          time.Time          `json:"createdAt"`
}

// New creates a patient with a fresh id and every round pending
func New(reg Registration) *Patient {
	return &Patient{
		ID:                 uuid.New().String(),
		Name:               reg.Name,
		WardNumber:         reg.WardNumber,
		BedNumber:          reg.BedNumber,
		RFIDCardNumber:     reg.RFIDCardNumber,
		Prescriptions:      []Prescription{},
		DistributionStatus: PendingStatus(),
		CreatedAt:          time.Now().UTC(),
	}
}

// ReplacePrescriptions swaps the whole prescription list
func (p *Patient) ReplacePrescriptions(prescriptions []Prescription) {
	p.Prescriptions = CopyPrescriptions(prescriptions)
}

// MarkCompleted records that dispensing for a round is done
func (p *Patient) MarkCompleted(t TimeOfDay) {
	p.DistributionStatus.Complete(t)
}

// Clone returns a deep copy safe to hand out of a store
func (p *Patient) Clone() *Patient {
	c := *p
	c.Prescriptions = CopyPrescriptions(p.Prescriptions)
	return &c
}

// CopyPrescriptions copies a prescription list, turning nil into an empty list
func CopyPrescriptions(in []Prescription) []Prescription {
	out := make([]Prescription, len(in))
	copy(out, in)
	return out
}
