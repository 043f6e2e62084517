package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drfirst/go-dispense/internal/dispensing"
	"github.com/drfirst/go-dispense/internal/domain/medicine"
	"github.com/drfirst/go-dispense/internal/domain/patient"
	"github.com/drfirst/go-dispense/internal/domain/slot"
	"github.com/drfirst/go-dispense/internal/infrastructure/memory"
	"github.com/drfirst/go-dispense/internal/observability/metrics"
)

func newTestRouter(t *testing.T, cfg RouterConfig) http.Handler {
	t.Helper()
	svc := dispensing.NewService(memory.NewPatientStore(nil), memory.NewSlotStore(), nil,
		metrics.New(prometheus.NewRegistry()), nil, dispensing.Options{})
	return NewRouter(svc, nil, cfg)
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func register(t *testing.T, h http.Handler, name string) string {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/patients", map[string]string{
		"name": name, "wardNumber": "W1", "bedNumber": "B2", "rfidCardNumber": "RF-" + name,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Message string          `json:"message"`
		Patient patient.Patient `json:"patient"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Patient.ID)
	return resp.Patient.ID
}

func TestHealthAndReady(t *testing.T) {
	h := newTestRouter(t, RouterConfig{})

	rec := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"healthy"`)

	rec = do(t, h, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	down := newTestRouter(t, RouterConfig{Ready: func(context.Context) error { return errors.New("db down") }})
	rec = do(t, down, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsMountedWhenConfigured(t *testing.T) {
	h := newTestRouter(t, RouterConfig{Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})})
	rec := do(t, h, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, newTestRouter(t, RouterConfig{}), http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPatients(t *testing.T) {
	h := newTestRouter(t, RouterConfig{})

	rec := do(t, h, http.MethodGet, "/api/patients", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	id := register(t, h, "Asha")
	register(t, h, "Ben")

	rec = do(t, h, http.MethodGet, "/api/patients", nil)
	var list []patient.Patient
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, "Asha", list[0].Name)
	assert.Equal(t, patient.PendingStatus(), list[0].DistributionStatus)

	rec = do(t, h, http.MethodGet, "/api/patients/"+id, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/patients/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"message":"Patient not found"}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/api/patients", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPrescriptionRoundTrip(t *testing.T) {
	h := newTestRouter(t, RouterConfig{})
	id := register(t, h, "Asha")

	rxs := []patient.Prescription{
		{Medicine: "Paracetamol", Morning: patient.FlagYes, Day: patient.FlagNo, Night: patient.FlagYes},
		{Medicine: "Ibuprofen", Morning: patient.FlagNo, Day: patient.FlagYes, Night: patient.FlagNo},
	}
	rec := do(t, h, http.MethodPost, "/api/prescriptions", map[string]interface{}{"patientId": id, "prescriptions": rxs})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/patients/"+id+"/prescriptions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got []patient.Prescription
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, rxs, got)

	rec = do(t, h, http.MethodPost, "/api/prescriptions", map[string]interface{}{"patientId": "missing", "prescriptions": rxs})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWorklistAndCompletion(t *testing.T) {
	h := newTestRouter(t, RouterConfig{})
	id := register(t, h, "Asha")
	register(t, h, "Ben")

	do(t, h, http.MethodPost, "/api/prescriptions", map[string]interface{}{
		"patientId": id,
		"prescriptions": []patient.Prescription{
			{Medicine: "Paracetamol", Morning: patient.FlagYes, Day: patient.FlagNo, Night: patient.FlagNo},
		},
	})

	rec := do(t, h, http.MethodGet, "/api/prescriptions/morning", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, id, entries[0]["id"])
	assert.Equal(t, []interface{}{"Paracetamol"}, entries[0]["medicines"])
	assert.Equal(t, "No", entries[0]["medicineDistributionCompleted"])

	rec = do(t, h, http.MethodGet, "/api/prescriptions/night", nil)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/api/prescriptions/morning/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var done map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &done))
	assert.Equal(t, id, done["patientId"])
	assert.Equal(t, "morning", done["time"])
	assert.Equal(t, "Yes", done["medicineDistributionCompleted"])
	assert.NotEmpty(t, done["message"])

	rec = do(t, h, http.MethodGet, "/api/prescriptions/morning", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	assert.Equal(t, "Yes", entries[0]["medicineDistributionCompleted"])

	rec = do(t, h, http.MethodGet, "/api/prescriptions/evening", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/prescriptions/evening/"+id, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/prescriptions/day/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMedicines(t *testing.T) {
	h := newTestRouter(t, RouterConfig{})
	rec := do(t, h, http.MethodGet, "/api/medicines", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var names []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &names))
	assert.Equal(t, medicine.Names(), names)
}

func TestSlots(t *testing.T) {
	h := newTestRouter(t, RouterConfig{})

	rec := do(t, h, http.MethodGet, "/api/slots", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var bank []slot.Slot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bank))
	require.Len(t, bank, slot.BankSize)
	assert.Equal(t, slot.StatusUnassigned, bank[0].Status)

	bank[0].Medicine, bank[0].Stock = "Paracetamol", slot.Int(2)
	bank[1].Medicine, bank[1].Stock = "Ibuprofen", slot.Int(8)
	rec = do(t, h, http.MethodPost, "/api/slots", map[string]interface{}{"slots": bank})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Slots []slot.Slot `json:"slots"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, slot.StatusLowStock, resp.Slots[0].Status)
	assert.Equal(t, slot.StatusOK, resp.Slots[1].Status)

	t.Run("duplicate medicine", func(t *testing.T) {
		dup := slot.Copy(bank)
		dup[4].Medicine, dup[4].Stock = "Paracetamol", slot.Int(5)
		rec := do(t, h, http.MethodPost, "/api/slots", map[string]interface{}{"slots": dup})
		require.Equal(t, http.StatusBadRequest, rec.Code)

		var rej map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rej))
		assert.Equal(t, "Medicine Paracetamol is already assigned to another slot.", rej["message"])
		assert.Equal(t, slot.ReasonDuplicateMedicine, rej["error"])
		assert.EqualValues(t, 5, rej["slotNumber"])
	})

	t.Run("stock out of range", func(t *testing.T) {
		bad := slot.Copy(bank)
		bad[2].Medicine, bad[2].Stock = "Aspirin", slot.Int(11)
		rec := do(t, h, http.MethodPost, "/api/slots", map[string]interface{}{"slots": bad})
		require.Equal(t, http.StatusBadRequest, rec.Code)

		var rej map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rej))
		assert.Equal(t, "Stock for slot 3 must be between 2 and 10.", rej["message"])
		assert.EqualValues(t, 11, rej["stock"])
	})

	t.Run("rejected update leaves bank untouched", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/slots", nil)
		var after []slot.Slot
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &after))
		assert.Equal(t, "Paracetamol", after[0].Medicine)
		assert.Empty(t, after[4].Medicine)
		assert.Empty(t, after[2].Medicine)
	})

	rec = do(t, h, http.MethodPost, "/api/slots", "[]")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
