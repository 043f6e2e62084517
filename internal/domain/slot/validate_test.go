package slot

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// submission returns an empty full-bank submission in slot order
func submission() []Slot {
	return InitialBank()
}

func TestValidate_EmptyBankIsValid(t *testing.T) {
	out, err := Validate(InitialBank(), submission())
	require.NoError(t, err)
	require.Len(t, out, BankSize)
	for i, s := range out {
		assert.Equal(t, i+1, s.SlotNumber)
		assert.Nil(t, s.Stock)
		assert.Equal(t, StatusUnassigned, s.Status)
	}
}

func TestValidate_DerivesStatus(t *testing.T) {
	sub := submission()
	sub[0].Medicine, sub[0].Stock = "Paracetamol", Int(2)
	sub[1].Medicine, sub[1].Stock = "Ibuprofen", Int(3)
	sub[2].Medicine, sub[2].Stock = "Metformin", Int(10)
	sub[3].Status = StatusOK // ignored, always recomputed

	out, err := Validate(InitialBank(), sub)
	require.NoError(t, err)

	assert.Equal(t, StatusLowStock, out[0].Status)
	assert.Equal(t, StatusOK, out[1].Status)
	assert.Equal(t, StatusOK, out[2].Status)
	assert.Equal(t, StatusUnassigned, out[3].Status)
	assert.Equal(t, 10, *out[2].Stock)
}

func TestValidate_RejectsDuplicateMedicine(t *testing.T) {
	sub := submission()
	sub[1].Medicine, sub[1].Stock = "Paracetamol", Int(5)
	sub[6].Medicine, sub[6].Stock = "Paracetamol", Int(5)

	_, err := Validate(InitialBank(), sub)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidSlotUpdate))

	var dup *DuplicateMedicineError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "Paracetamol", dup.Medicine)
	assert.Equal(t, 7, dup.SlotNumber, "the later occurrence is the one rejected")
	assert.Equal(t, ReasonDuplicateMedicine, Reason(err))
}

func TestValidate_RejectsStockOutOfRange(t *testing.T) {
	cases := []struct {
		name  string
		stock *int
	}{
		{"below minimum", Int(1)},
		{"zero", Int(0)},
		{"negative", Int(-4)},
		{"above maximum", Int(11)},
		{"missing", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sub := submission()
			sub[2].Medicine, sub[2].Stock = "Ibuprofen", tc.stock

			_, err := Validate(InitialBank(), sub)
			var rangeErr *StockOutOfRangeError
			require.True(t, errors.As(err, &rangeErr))
			assert.Equal(t, 3, rangeErr.SlotNumber)
			assert.Equal(t, tc.stock, rangeErr.Stock)
			assert.Equal(t, "Stock for slot 3 must be between 2 and 10.", err.Error())
		})
	}
}

func TestValidate_DuplicateCheckedBeforeStock(t *testing.T) {
	sub := submission()
	sub[0].Medicine, sub[0].Stock = "Cefixime", Int(4)
	sub[1].Medicine, sub[1].Stock = "Cefixime", Int(99)

	_, err := Validate(InitialBank(), sub)
	assert.Equal(t, ReasonDuplicateMedicine, Reason(err))
}

func TestValidate_FirstViolationWins(t *testing.T) {
	sub := submission()
	sub[0].Medicine, sub[0].Stock = "Losartan", Int(1)
	sub[1].Medicine, sub[1].Stock = "Losartan", Int(4)

	_, err := Validate(InitialBank(), sub)
	var rangeErr *StockOutOfRangeError
	require.True(t, errors.As(err, &rangeErr))
	assert.Equal(t, 1, rangeErr.SlotNumber)
}

func TestValidate_NormalizesEmptySlotStock(t *testing.T) {
	sub := submission()
	sub[4].Stock = Int(7)
	sub[5].Stock = Int(-1)

	out, err := Validate(InitialBank(), sub)
	require.NoError(t, err)
	assert.Nil(t, out[4].Stock)
	assert.Nil(t, out[5].Stock)
	assert.Equal(t, StatusUnassigned, out[4].Status)

	assert.NotNil(t, sub[4].Stock, "input must not be mutated")
}

func TestValidate_PreservesSubmissionOrder(t *testing.T) {
	sub := submission()
	for i, j := 0, len(sub)-1; i < j; i, j = i+1, j-1 {
		sub[i], sub[j] = sub[j], sub[i]
	}
	sub[0].Medicine, sub[0].Stock = "Amoxicillin", Int(6)

	out, err := Validate(InitialBank(), sub)
	require.NoError(t, err)
	assert.Equal(t, 20, out[0].SlotNumber)
	assert.Equal(t, "Amoxicillin", out[0].Medicine)
	assert.Equal(t, 1, out[19].SlotNumber)
}

func TestValidate_RejectsSlotSetMismatch(t *testing.T) {
	t.Run("too few", func(t *testing.T) {
		_, err := Validate(InitialBank(), submission()[:19])
		assert.Equal(t, ReasonSlotSetMismatch, Reason(err))
	})
	t.Run("unknown number", func(t *testing.T) {
		sub := submission()
		sub[0].SlotNumber = 21
		_, err := Validate(InitialBank(), sub)
		var set *SlotSetMismatchError
		require.True(t, errors.As(err, &set))
		assert.Equal(t, 21, set.SlotNumber)
	})
	t.Run("repeated number", func(t *testing.T) {
		sub := submission()
		sub[1].SlotNumber = 1
		_, err := Validate(InitialBank(), sub)
		assert.Equal(t, ReasonSlotSetMismatch, Reason(err))
	})
}

func TestValidate_CatalogCheckIsOptIn(t *testing.T) {
	sub := submission()
	sub[0].Medicine, sub[0].Stock = "Unobtainium", Int(5)

	_, err := Validate(InitialBank(), sub)
	require.NoError(t, err)

	known := func(name string) bool { return name == "Paracetamol" }
	_, err = Validate(InitialBank(), sub, WithCatalog(known))
	var unknown *UnknownMedicineError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, 1, unknown.SlotNumber)
	assert.Equal(t, ReasonUnknownMedicine, Reason(err))
}

func TestValidate_InvariantsHoldOnSuccess(t *testing.T) {
	sub := submission()
	names := []string{"Paracetamol", "Azithromycin", "Metformin", "Omeprazole", "Atorvastatin"}
	for i, name := range names {
		sub[i*3].Medicine = name
		sub[i*3].Stock = Int(2 + i*2)
	}

	out, err := Validate(InitialBank(), sub)
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, s := range out {
		if !s.Assigned() {
			assert.Nil(t, s.Stock)
			continue
		}
		assert.False(t, seen[s.Medicine])
		seen[s.Medicine] = true
		require.NotNil(t, s.Stock)
		assert.GreaterOrEqual(t, *s.Stock, MinStock)
		assert.LessOrEqual(t, *s.Stock, MaxStock)
		assert.Equal(t, DeriveStatus(s), s.Status)
	}
}

func TestReason_NonValidationError(t *testing.T) {
	assert.Equal(t, "", Reason(errors.New("boom")))
	assert.Equal(t, "", Reason(nil))
}
