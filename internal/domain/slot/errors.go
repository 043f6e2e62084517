package slot

import (
	"errors"
	"fmt"
)

// ErrInvalidSlotUpdate is matched by every rejection of a slot bank update
var ErrInvalidSlotUpdate = errors.New("invalid slot update")

// Rejection reasons, used as error codes and metric labels
const (
	ReasonDuplicateMedicine = "duplicate_medicine"
	ReasonStockOutOfRange   = "stock_out_of_range"
	ReasonSlotSetMismatch   = "slot_set_mismatch"
	ReasonUnknownMedicine   = "unknown_medicine"
)

// DuplicateMedicineError reports a medicine assigned to a second slot
type DuplicateMedicineError struct {
	Medicine   string
	SlotNumber int
}

func (e *DuplicateMedicineError) Error() string {
	return fmt.Sprintf("Medicine %s is already assigned to another slot.", e.Medicine)
}

func (e *DuplicateMedicineError) Unwrap() error { return ErrInvalidSlotUpdate }

// StockOutOfRangeError reports an assigned slot with stock outside [2,10]
type StockOutOfRangeError struct {
	SlotNumber int
	Stock      *int
}

func (e *StockOutOfRangeError) Error() string {
	return fmt.Sprintf("Stock for slot %d must be between %d and %d.", e.SlotNumber, MinStock, MaxStock)
}

func (e *StockOutOfRangeError) Unwrap() error { return ErrInvalidSlotUpdate }

// SlotSetMismatchError reports a submission whose slot numbers differ from
// the bank's
type SlotSetMismatchError struct {
	SlotNumber int
	Detail     string
}

func (e *SlotSetMismatchError) Error() string {
	if e.SlotNumber != 0 {
		return fmt.Sprintf("slot %d: %s", e.SlotNumber, e.Detail)
	}
	return e.Detail
}

func (e *SlotSetMismatchError) Unwrap() error { return ErrInvalidSlotUpdate }

// UnknownMedicineError reports a medicine outside the catalog when strict
// catalog checking is enabled
type UnknownMedicineError struct {
	Medicine   string
	SlotNumber int
}

func (e *UnknownMedicineError) Error() string {
	return fmt.Sprintf("Medicine %s in slot %d is not in the medicine catalog.", e.Medicine, e.SlotNumber)
}

func (e *UnknownMedicineError) Unwrap() error { return ErrInvalidSlotUpdate }

// Reason maps a validation error to its rejection reason, or "" for errors
// that are not slot validation failures
func Reason(err error) string {
	var dup *DuplicateMedicineError
	var stock *StockOutOfRangeError
	var set *SlotSetMismatchError
	var unknown *UnknownMedicineError
	switch {
	case errors.As(err, &dup):
		return ReasonDuplicateMedicine
	case errors.As(err, &stock):
		return ReasonStockOutOfRange
	case errors.As(err, &set):
		return ReasonSlotSetMismatch
	case errors.As(err, &unknown):
		return ReasonUnknownMedicine
	}
	return ""
}
