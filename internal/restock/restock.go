// Package restock turns Low Stock slots in committed slot bank updates into
// restock requests sent to the pharmacy webhook.
package restock

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/drfirst/go-dispense/internal/domain/event"
	"github.com/drfirst/go-dispense/internal/domain/slot"
	"github.com/drfirst/go-dispense/internal/infrastructure/redpanda"
	"github.com/drfirst/go-dispense/internal/observability/metrics"
	"github.com/drfirst/go-dispense/pkg/circuitbreaker"
	"github.com/drfirst/go-dispense/pkg/idempotency"
	"github.com/drfirst/go-dispense/pkg/workerpool"
)

// HandlerName identifies this consumer in the idempotency inbox
const HandlerName = "restock"

// Request is the webhook body for one slot
type Request struct {
	EventID    string `json:"eventId"`
	SlotNumber int    `json:"slotNumber"`
	Medicine   string `json:"medicine"`
	Stock      *int   `json:"stock"`
	Status     string `json:"status"`
}

// Requests extracts one request per Low Stock slot from a SlotBankUpdated
// event. Other event types yield nothing.
func Requests(evt *event.Event) ([]Request, error) {
	if evt.EventType != event.SlotBankUpdated {
		return nil, nil
	}

	var data event.SlotBankUpdatedData
	if err := evt.Decode(&data); err != nil {
		return nil, fmt.Errorf("decode %s: %w", evt.ID, err)
	}

	var out []Request
	for _, s := range data.Slots {
		if s.Status != string(slot.StatusLowStock) {
			continue
		}
		out = append(out, Request{
			EventID:    evt.ID,
			SlotNumber: s.SlotNumber,
			Medicine:   s.Medicine,
			Stock:      s.Stock,
			Status:     s.Status,
		})
	}
	return out, nil
}

// Notifier posts restock requests to the pharmacy through a circuit breaker
type Notifier struct {
	url     string
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewNotifier creates a notifier. A nil client uses a 10s timeout client.
func NewNotifier(url string, client *http.Client, breaker *circuitbreaker.CircuitBreaker, logger *zap.Logger) *Notifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{url: url, client: client, breaker: breaker, logger: logger}
}

// Send delivers one request. Non-2xx responses are errors.
func (n *Notifier) Send(ctx context.Context, req Request) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	return n.breaker.Execute(ctx, func(ctx context.Context) error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Idempotency-Key", fmt.Sprintf("%s-%d", req.EventID, req.SlotNumber))

		resp, err := n.client.Do(httpReq)
		if err != nil {
			return fmt.Errorf("post restock request: %w", err)
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("pharmacy webhook returned %d", resp.StatusCode)
		}
		return nil
	})
}

// Deduper runs fn at most once per key. *idempotency.Inbox satisfies it.
type Deduper interface {
	Process(ctx context.Context, key, handlerName string, payload json.RawMessage, fn idempotency.ProcessFunc) (*idempotency.ProcessResult, error)
}

// Handler consumes slot events and fans restock requests out to a worker pool
type Handler struct {
	pool    *workerpool.Pool
	dedupe  Deduper
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewHandler creates a handler. dedupe may be nil when no database is
// configured; m may be nil.
func NewHandler(pool *workerpool.Pool, dedupe Deduper, m *metrics.Metrics, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{pool: pool, dedupe: dedupe, metrics: m, logger: logger}
}

// WorkerFunc returns the pool worker that sends one request
func WorkerFunc(n *Notifier) workerpool.WorkerFunc {
	return func(ctx context.Context, task *workerpool.Task) *workerpool.Result {
		req, ok := task.Payload.(Request)
		if !ok {
			return &workerpool.Result{Error: fmt.Errorf("unexpected payload %T", task.Payload)}
		}
		if err := n.Send(ctx, req); err != nil {
			return &workerpool.Result{Error: err}
		}
		return &workerpool.Result{Success: true}
	}
}

// OnResult counts final task outcomes; pass it as workerpool.Config.OnResult
func OnResult(m *metrics.Metrics) func(*workerpool.Result) {
	return func(r *workerpool.Result) {
		if m == nil {
			return
		}
		if r.Success {
			m.RestockRequests.WithLabelValues("sent").Inc()
		} else {
			m.RestockRequests.WithLabelValues("failed").Inc()
		}
	}
}

// HandleMessage is a redpanda.MessageHandler
func (h *Handler) HandleMessage(ctx context.Context, msg *redpanda.ConsumedMessage) error {
	evt, err := msg.Event()
	if err != nil {
		// poison record, skip rather than block the partition
		h.logger.Error("skipping undecodable slot event", zap.Error(err))
		return nil
	}

	if h.dedupe == nil {
		err := h.dispatch(ctx, evt)
		if idempotency.IsPermanent(err) {
			h.logger.Error("skipping slot event", zap.String("event_id", evt.ID), zap.Error(err))
			return nil
		}
		return err
	}

	key := idempotency.EventKey(HandlerName, evt.ID)
	_, err = h.dedupe.Process(ctx, key, HandlerName, msg.Value, func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
		if err := h.dispatch(ctx, evt); err != nil {
			return nil, err
		}
		return json.RawMessage(`{"dispatched":true}`), nil
	})
	switch {
	case err == nil, isAlreadyHandled(err):
		return nil
	case idempotency.IsPermanent(err):
		h.logger.Error("skipping slot event", zap.String("event_id", evt.ID), zap.Error(err))
		return nil
	}
	return err
}

func (h *Handler) dispatch(ctx context.Context, evt *event.Event) error {
	reqs, err := Requests(evt)
	if err != nil {
		return idempotency.Permanent(err)
	}

	for _, req := range reqs {
		task := &workerpool.Task{
			ID:      fmt.Sprintf("%s-%d", evt.ID, req.SlotNumber),
			Payload: req,
		}
		if err := h.pool.SubmitWait(ctx, task); err != nil {
			return fmt.Errorf("queue restock for slot %d: %w", req.SlotNumber, err)
		}
		if h.metrics != nil {
			h.metrics.RestockRequests.WithLabelValues("queued").Inc()
		}
	}

	if len(reqs) > 0 {
		h.logger.Info("restock requests queued",
			zap.String("event_id", evt.ID),
			zap.String("correlation_id", evt.CorrelationID),
			zap.Int("slots", len(reqs)))
	}
	return nil
}

func isAlreadyHandled(err error) bool {
	return errors.Is(err, idempotency.ErrDuplicateMessage) ||
		errors.Is(err, idempotency.ErrMessageInProgress) ||
		errors.Is(err, idempotency.ErrPreviouslyFailed)
}
