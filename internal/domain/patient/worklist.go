package patient

// WorklistEntry is one patient's row in the dispensing queue for a round
type WorklistEntry struct {
	PatientID      string   `json:"id"`
	Name           string   `json:"name"`
	WardNumber     string   `json:"wardNumber"`
	BedNumber      string   `json:"bedNumber"`
	RFIDCardNumber string   `json:"rfidCardNumber"`
	Medicines      []string `json:"medicines"`
	Completed      Flag     `json:"medicineDistributionCompleted"`
}

// BuildWorklist returns the patients with at least one medicine due in the
// round, in the order given. Patients with nothing due are left out.
func BuildWorklist(patients []*Patient, t TimeOfDay) []WorklistEntry {
	entries := make([]WorklistEntry, 0, len(patients))
	for _, p := range patients {
		if p == nil || len(p.Prescriptions) == 0 {
			continue
		}

		var due []string
		for _, rx := range p.Prescriptions {
			if rx.DueAt(t) {
				due = append(due, rx.Medicine)
			}
		}
		if len(due) == 0 {
			continue
		}

		entries = append(entries, WorklistEntry{
			PatientID:      p.ID,
			Name:           p.Name,
			WardNumber:     p.WardNumber,
			BedNumber:      p.BedNumber,
			RFIDCardNumber: p.RFIDCardNumber,
			Medicines:      due,
			Completed:      p.DistributionStatus.Get(t),
		})
	}
	return entries
}

// CompletionRecord is the result of marking a round completed
type CompletionRecord struct {
	PatientID string    `json:"patientId"`
	Time      TimeOfDay `json:"time"`
	Completed Flag      `json:"medicineDistributionCompleted"`
}

// NewCompletionRecord summarises a patient's state for a round
func NewCompletionRecord(p *Patient, t TimeOfDay) *CompletionRecord {
	return &CompletionRecord{
		PatientID: p.ID,
		Time:      t,
		Completed: p.DistributionStatus.Get(t),
	}
}
