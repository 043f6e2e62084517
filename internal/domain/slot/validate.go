package slot

import "fmt"

type validateOptions struct {
	knownMedicine func(string) bool
}

// Option adjusts validation
type Option func(*validateOptions)

// WithCatalog rejects medicines for which known returns false
func WithCatalog(known func(string) bool) Option {
	return func(o *validateOptions) { o.knownMedicine = known }
}

// Validate checks a proposed replacement of the whole bank against the
// current one. On success it returns the normalized slots in submission
// order with status derived; on failure it returns the first violation and
// the caller must leave the bank untouched.
func Validate(current, candidates []Slot, opts ...Option) ([]Slot, error) {
	var o validateOptions
	for _, opt := range opts {
		opt(&o)
	}

	if err := checkSlotSet(current, candidates); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(candidates))
	out := Copy(candidates)

	for i := range out {
		s := &out[i]

		if !s.Assigned() {
			s.Stock = nil
			continue
		}

		if _, dup := seen[s.Medicine]; dup {
			return nil, &DuplicateMedicineError{Medicine: s.Medicine, SlotNumber: s.SlotNumber}
		}
		seen[s.Medicine] = struct{}{}

		if s.Stock == nil || *s.Stock < MinStock || *s.Stock > MaxStock {
			return nil, &StockOutOfRangeError{SlotNumber: s.SlotNumber, Stock: s.Stock}
		}

		if o.knownMedicine != nil && !o.knownMedicine(s.Medicine) {
			return nil, &UnknownMedicineError{Medicine: s.Medicine, SlotNumber: s.SlotNumber}
		}
	}

	for i := range out {
		out[i].Status = DeriveStatus(out[i])
	}
	return out, nil
}

// checkSlotSet requires the candidates to name exactly the current slot
// numbers, each once, in any order
func checkSlotSet(current, candidates []Slot) error {
	if len(candidates) != len(current) {
		return &SlotSetMismatchError{
			Detail: fmt.Sprintf("expected %d slots, got %d", len(current), len(candidates)),
		}
	}

	known := make(map[int]bool, len(current))
	for _, s := range current {
		known[s.SlotNumber] = false
	}

	for _, s := range candidates {
		used, ok := known[s.SlotNumber]
		if !ok {
			return &SlotSetMismatchError{SlotNumber: s.SlotNumber, Detail: "unknown slot number"}
		}
		if used {
			return &SlotSetMismatchError{SlotNumber: s.SlotNumber, Detail: "slot number submitted more than once"}
		}
		known[s.SlotNumber] = true
	}
	return nil
}
