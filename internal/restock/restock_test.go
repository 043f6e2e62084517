package restock

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drfirst/go-dispense/internal/domain/event"
	"github.com/drfirst/go-dispense/internal/infrastructure/redpanda"
	"github.com/drfirst/go-dispense/internal/observability/metrics"
	"github.com/drfirst/go-dispense/pkg/circuitbreaker"
	"github.com/drfirst/go-dispense/pkg/idempotency"
	"github.com/drfirst/go-dispense/pkg/workerpool"
)

func intp(v int) *int { return &v }

func bankEvent(t *testing.T) *event.Event {
	t.Helper()
	evt, err := event.New(event.AggregateSlotBank, event.SlotBankID, event.SlotBankUpdated, event.SlotBankUpdatedData{
		Slots: []event.SlotState{
			{SlotNumber: 1, Medicine: "Paracetamol", Stock: intp(2), Status: "Low Stock"},
			{SlotNumber: 2, Medicine: "Ibuprofen", Stock: intp(8), Status: "OK"},
			{SlotNumber: 3, Medicine: "", Stock: nil, Status: "No Medicine Assigned"},
			{SlotNumber: 4, Medicine: "Amoxicillin", Stock: intp(3), Status: "Low Stock"},
		},
	})
	require.NoError(t, err)
	return evt
}

func message(t *testing.T, evt *event.Event) *redpanda.ConsumedMessage {
	t.Helper()
	value, err := json.Marshal(evt)
	require.NoError(t, err)
	return &redpanda.ConsumedMessage{Topic: redpanda.TopicSlotEvents, Value: value}
}

func TestRequests_OnlyLowStock(t *testing.T) {
	evt := bankEvent(t)

	reqs, err := Requests(evt)
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.Equal(t, 1, reqs[0].SlotNumber)
	assert.Equal(t, "Paracetamol", reqs[0].Medicine)
	assert.Equal(t, 2, *reqs[0].Stock)
	assert.Equal(t, evt.ID, reqs[0].EventID)
	assert.Equal(t, 4, reqs[1].SlotNumber)
}

func TestRequests_IgnoresOtherEvents(t *testing.T) {
	evt, err := event.New(event.AggregatePatient, "p-1", event.PatientRegistered, event.PatientRegisteredData{PatientID: "p-1"})
	require.NoError(t, err)

	reqs, err := Requests(evt)
	require.NoError(t, err)
	assert.Empty(t, reqs)
}

func TestRequests_BadData(t *testing.T) {
	evt := &event.Event{ID: "e-1", EventType: event.SlotBankUpdated, EventData: json.RawMessage(`"nope"`)}
	_, err := Requests(evt)
	assert.Error(t, err)
}

type pharmacy struct {
	srv *httptest.Server

	mu       sync.Mutex
	requests []Request
	keys     []string
	status   int
}

func newPharmacy(t *testing.T) *pharmacy {
	p := &pharmacy{status: http.StatusAccepted}
	p.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		p.mu.Lock()
		p.requests = append(p.requests, req)
		p.keys = append(p.keys, r.Header.Get("Idempotency-Key"))
		status := p.status
		p.mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(p.srv.Close)
	return p
}

func (p *pharmacy) received() []Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Request(nil), p.requests...)
}

func newBreaker(t *testing.T, threshold uint32) *circuitbreaker.CircuitBreaker {
	cfg := circuitbreaker.DefaultConfig("pharmacy")
	cfg.FailureThreshold = threshold
	cfg.Timeout = time.Hour
	cb, err := circuitbreaker.New(cfg, nil)
	require.NoError(t, err)
	return cb
}

func TestNotifier_Send(t *testing.T) {
	p := newPharmacy(t)
	n := NewNotifier(p.srv.URL, nil, newBreaker(t, 5), nil)

	err := n.Send(context.Background(), Request{EventID: "e-1", SlotNumber: 7, Medicine: "Cetirizine", Stock: intp(2), Status: "Low Stock"})
	require.NoError(t, err)

	got := p.received()
	require.Len(t, got, 1)
	assert.Equal(t, "Cetirizine", got[0].Medicine)
	assert.Equal(t, "e-1-7", p.keys[0])
}

func TestNotifier_ServerErrorOpensBreaker(t *testing.T) {
	p := newPharmacy(t)
	p.status = http.StatusServiceUnavailable
	n := NewNotifier(p.srv.URL, nil, newBreaker(t, 2), nil)
	ctx := context.Background()
	req := Request{EventID: "e-1", SlotNumber: 1}

	assert.Error(t, n.Send(ctx, req))
	assert.Error(t, n.Send(ctx, req))

	err := n.Send(ctx, req)
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Len(t, p.received(), 2)
}

func startPool(t *testing.T, n *Notifier, m *metrics.Metrics) *workerpool.Pool {
	t.Helper()
	cfg := workerpool.DefaultConfig()
	cfg.Workers = 2
	cfg.MaxRetries = 0
	cfg.OnResult = OnResult(m)
	pool, err := workerpool.New(cfg, WorkerFunc(n), nil)
	require.NoError(t, err)
	pool.Start()
	return pool
}

func TestHandler_DispatchesLowStockSlots(t *testing.T) {
	p := newPharmacy(t)
	m := metrics.New(prometheus.NewRegistry())
	pool := startPool(t, NewNotifier(p.srv.URL, nil, newBreaker(t, 5), nil), m)
	h := NewHandler(pool, nil, m, nil)

	require.NoError(t, h.HandleMessage(context.Background(), message(t, bankEvent(t))))
	require.NoError(t, pool.Stop())

	got := p.received()
	require.Len(t, got, 2)
	slots := []int{got[0].SlotNumber, got[1].SlotNumber}
	assert.ElementsMatch(t, []int{1, 4}, slots)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RestockRequests.WithLabelValues("queued")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RestockRequests.WithLabelValues("sent")))
}

func TestHandler_SkipsPoisonRecords(t *testing.T) {
	p := newPharmacy(t)
	pool := startPool(t, NewNotifier(p.srv.URL, nil, newBreaker(t, 5), nil), nil)
	h := NewHandler(pool, nil, nil, nil)

	err := h.HandleMessage(context.Background(), &redpanda.ConsumedMessage{Value: []byte("{")})
	assert.NoError(t, err)

	bad := &event.Event{ID: "e-bad", EventType: event.SlotBankUpdated, EventData: json.RawMessage(`"nope"`)}
	assert.NoError(t, h.HandleMessage(context.Background(), message(t, bad)))

	require.NoError(t, pool.Stop())
	assert.Empty(t, p.received())
}

// memoryDedupe mimics the inbox: a finished key is never run again
type memoryDedupe struct {
	mu   sync.Mutex
	done map[string]bool
}

func (d *memoryDedupe) Process(ctx context.Context, key, _ string, payload json.RawMessage, fn idempotency.ProcessFunc) (*idempotency.ProcessResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done[key] {
		return nil, idempotency.ErrDuplicateMessage
	}
	res, err := fn(ctx, payload)
	if err != nil {
		return nil, err
	}
	d.done[key] = true
	return &idempotency.ProcessResult{IsNew: true, Result: res}, nil
}

func TestHandler_RedeliveryIsDeduplicated(t *testing.T) {
	p := newPharmacy(t)
	pool := startPool(t, NewNotifier(p.srv.URL, nil, newBreaker(t, 5), nil), nil)
	h := NewHandler(pool, &memoryDedupe{done: map[string]bool{}}, nil, nil)

	msg := message(t, bankEvent(t))
	require.NoError(t, h.HandleMessage(context.Background(), msg))
	require.NoError(t, h.HandleMessage(context.Background(), msg))
	require.NoError(t, pool.Stop())

	assert.Len(t, p.received(), 2)
}

func TestHandler_QueueErrorIsReturned(t *testing.T) {
	p := newPharmacy(t)
	pool := startPool(t, NewNotifier(p.srv.URL, nil, newBreaker(t, 5), nil), nil)
	require.NoError(t, pool.Stop())

	h := NewHandler(pool, nil, nil, nil)
	err := h.HandleMessage(context.Background(), message(t, bankEvent(t)))
	assert.True(t, errors.Is(err, workerpool.ErrStopped))
}
