package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drfirst/go-dispense/internal/domain/event"
	"github.com/drfirst/go-dispense/internal/domain/patient"
	"github.com/drfirst/go-dispense/internal/domain/slot"
	"github.com/drfirst/go-dispense/internal/infrastructure/redpanda"
	"github.com/drfirst/go-dispense/internal/observability/metrics"
)

func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, Migrate(ctx, pool, nil))
	_, err = pool.Exec(ctx, "TRUNCATE patients, outbox, inbox")
	require.NoError(t, err)
	require.NoError(t, NewSlotRepository(pool, nil).Replace(ctx, slot.InitialBank()))
	return pool
}

func TestMigrate_Idempotent(t *testing.T) {
	pool := testPool(t)
	require.NoError(t, Migrate(context.Background(), pool, nil))

	var n int
	require.NoError(t, pool.QueryRow(context.Background(), "SELECT COUNT(*) FROM _migrations").Scan(&n))
	assert.Equal(t, len(Migrations), n)
}

func TestPatientRepository(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	repo := NewPatientRepository(pool, nil)

	a := patient.New(patient.Registration{Name: "Asha", WardNumber: "W1", BedNumber: "1", RFIDCardNumber: "RF1"})
	b := patient.New(patient.Registration{Name: "Ben", WardNumber: "W1", BedNumber: "2", RFIDCardNumber: "RF2"})
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.Create(ctx, b))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Asha", list[0].Name)
	assert.Equal(t, "Ben", list[1].Name)
	assert.Empty(t, list[0].Prescriptions)
	assert.NotNil(t, list[0].Prescriptions)

	rxs := []patient.Prescription{{Medicine: "Paracetamol", Morning: patient.FlagYes, Day: patient.FlagNo, Night: patient.FlagYes}}
	updated, err := repo.ReplacePrescriptions(ctx, a.ID, rxs)
	require.NoError(t, err)
	assert.Equal(t, rxs, updated.Prescriptions)

	done, err := repo.MarkCompleted(ctx, a.ID, patient.Night)
	require.NoError(t, err)
	assert.Equal(t, patient.FlagYes, done.DistributionStatus.Night)
	assert.Equal(t, patient.FlagNo, done.DistributionStatus.Morning)

	got, err := repo.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, done.DistributionStatus, got.DistributionStatus)

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, patient.ErrNotFound)
	_, err = repo.MarkCompleted(ctx, "missing", patient.Day)
	assert.ErrorIs(t, err, patient.ErrNotFound)
}

func TestPatientRepository_ConcurrentCompletionsKeepAllRounds(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	repo := NewPatientRepository(pool, nil)

	p := patient.New(patient.Registration{Name: "Asha"})
	require.NoError(t, repo.Create(ctx, p))

	var wg sync.WaitGroup
	for _, tod := range patient.TimesOfDay {
		wg.Add(1)
		go func(tod patient.TimeOfDay) {
			defer wg.Done()
			_, err := repo.MarkCompleted(ctx, p.ID, tod)
			assert.NoError(t, err)
		}(tod)
	}
	wg.Wait()

	got, err := repo.Get(ctx, p.ID)
	require.NoError(t, err)
	for _, tod := range patient.TimesOfDay {
		assert.Equal(t, patient.FlagYes, got.DistributionStatus.Get(tod))
	}
}

func TestSlotRepository(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	repo := NewSlotRepository(pool, nil)

	bank, err := repo.Load(ctx)
	require.NoError(t, err)
	require.Len(t, bank, slot.BankSize)
	assert.Nil(t, bank[0].Stock)

	bank[0].Medicine, bank[0].Stock, bank[0].Status = "Paracetamol", slot.Int(5), slot.StatusOK
	reordered := append([]slot.Slot{bank[19]}, bank[:19]...)
	require.NoError(t, repo.Replace(ctx, reordered))

	got, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, got[0].SlotNumber)
	assert.Equal(t, "Paracetamol", got[1].Medicine)
	require.NotNil(t, got[1].Stock)
	assert.Equal(t, 5, *got[1].Stock)
	assert.Equal(t, slot.StatusOK, got[1].Status)
}

type recordingPublisher struct {
	mu      sync.Mutex
	topics  []string
	payload [][]byte
	err     error
}

func (p *recordingPublisher) Publish(_ context.Context, topic, _ string, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil && topic != redpanda.TopicDeadLetter {
		return p.err
	}
	p.topics = append(p.topics, topic)
	p.payload = append(p.payload, value)
	return nil
}

func TestOutbox_EnqueueAndRelay(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	pub := &recordingPublisher{}
	m := metrics.New(prometheus.NewRegistry())
	outbox := NewOutbox(pool, pub, DefaultOutboxConfig(), m, nil)

	evt, err := event.New(event.AggregateSlotBank, event.SlotBankID, event.SlotBankUpdated, event.SlotBankUpdatedData{})
	require.NoError(t, err)
	require.NoError(t, outbox.Publish(ctx, evt))
	require.NoError(t, outbox.Enqueue(ctx, evt), "same event id is a no-op")

	stats, err := outbox.GetStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Pending)

	n, err := outbox.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Equal(t, []string{redpanda.TopicSlotEvents}, pub.topics)

	var relayed event.Event
	require.NoError(t, json.Unmarshal(pub.payload[0], &relayed))
	assert.Equal(t, evt.ID, relayed.ID)

	n, err = outbox.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOutbox_DeadLettersAfterMaxRetries(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	pub := &recordingPublisher{err: errors.New("broker down")}
	cfg := DefaultOutboxConfig()
	cfg.MaxRetries = 2
	outbox := NewOutbox(pool, pub, cfg, nil, nil)

	evt, err := event.New(event.AggregatePatient, "p-1", event.PatientRegistered, event.PatientRegisteredData{PatientID: "p-1"})
	require.NoError(t, err)
	require.NoError(t, outbox.Enqueue(ctx, evt))

	for i := 0; i < cfg.MaxRetries; i++ {
		n, err := outbox.ProcessBatch(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	}

	moved, err := outbox.MoveToDeadLetter(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, moved)
	require.Equal(t, []string{redpanda.TopicDeadLetter}, pub.topics)

	var dl DeadLetter
	require.NoError(t, json.Unmarshal(pub.payload[0], &dl))
	assert.Equal(t, evt.ID, dl.EventID)
	assert.Equal(t, redpanda.TopicDispensingEvents, dl.OriginalTopic)
	assert.Equal(t, cfg.MaxRetries, dl.RetryCount)
}

func TestNewEntry(t *testing.T) {
	evt, err := event.New(event.AggregatePatient, "p-1", event.PrescriptionsSaved, event.PrescriptionsSavedData{PatientID: "p-1"})
	require.NoError(t, err)

	entry, err := NewEntry(evt)
	require.NoError(t, err)
	assert.Equal(t, evt.ID, entry.EventID)
	assert.Equal(t, redpanda.TopicDispensingEvents, entry.KafkaTopic)
	assert.Equal(t, "p-1", entry.KafkaKey)
	assert.Equal(t, string(event.PrescriptionsSaved), entry.EventType)
}
