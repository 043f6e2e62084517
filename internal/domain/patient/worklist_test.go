package patient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withPrescriptions(name string, rxs ...Prescription) *Patient {
	p := New(Registration{Name: name, WardNumber: "W1", BedNumber: "B" + name, RFIDCardNumber: "RF-" + name})
	p.ReplacePrescriptions(rxs)
	return p
}

func TestBuildWorklist_IncludesOnlyDueMedicines(t *testing.T) {
	p := withPrescriptions("a", Prescription{Medicine: "Paracetamol", Morning: FlagYes, Day: FlagNo, Night: FlagYes})

	morning := BuildWorklist([]*Patient{p}, Morning)
	require.Len(t, morning, 1)
	assert.Equal(t, p.ID, morning[0].PatientID)
	assert.Equal(t, []string{"Paracetamol"}, morning[0].Medicines)
	assert.Equal(t, FlagNo, morning[0].Completed)
	assert.Equal(t, "W1", morning[0].WardNumber)
	assert.Equal(t, "RF-a", morning[0].RFIDCardNumber)

	assert.Empty(t, BuildWorklist([]*Patient{p}, Day))
}

func TestBuildWorklist_OmitsPatientsWithoutPrescriptions(t *testing.T) {
	none := New(Registration{Name: "none"})
	some := withPrescriptions("some", Prescription{Medicine: "Cetirizine", Night: FlagYes})

	list := BuildWorklist([]*Patient{none, some, nil}, Night)
	require.Len(t, list, 1)
	assert.Equal(t, some.ID, list[0].PatientID)
}

func TestBuildWorklist_PreservesOrder(t *testing.T) {
	a := withPrescriptions("a", Prescription{Medicine: "Losartan", Day: FlagYes})
	b := withPrescriptions("b",
		Prescription{Medicine: "Amlodipine", Day: FlagYes},
		Prescription{Medicine: "Omeprazole", Morning: FlagYes},
		Prescription{Medicine: "Atorvastatin", Day: FlagYes},
	)
	c := withPrescriptions("c", Prescription{Medicine: "Gliclazide", Day: FlagYes})

	list := BuildWorklist([]*Patient{a, b, c}, Day)
	require.Len(t, list, 3)
	assert.Equal(t, []string{a.ID, b.ID, c.ID}, []string{list[0].PatientID, list[1].PatientID, list[2].PatientID})
	assert.Equal(t, []string{"Amlodipine", "Atorvastatin"}, list[1].Medicines)
}

func TestBuildWorklist_ReflectsCompletion(t *testing.T) {
	p := withPrescriptions("a", Prescription{Medicine: "Paracetamol", Morning: FlagYes, Night: FlagYes})
	p.MarkCompleted(Morning)

	morning := BuildWorklist([]*Patient{p}, Morning)
	require.Len(t, morning, 1)
	assert.Equal(t, FlagYes, morning[0].Completed)

	night := BuildWorklist([]*Patient{p}, Night)
	require.Len(t, night, 1)
	assert.Equal(t, FlagNo, night[0].Completed)
}

func TestBuildWorklist_EmptyInputIsEmptyNotNil(t *testing.T) {
	list := BuildWorklist(nil, Morning)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestNewCompletionRecord(t *testing.T) {
	p := New(Registration{Name: "a"})
	p.MarkCompleted(Night)

	rec := NewCompletionRecord(p, Night)
	assert.Equal(t, &CompletionRecord{PatientID: p.ID, Time: Night, Completed: FlagYes}, rec)
}
