package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/drfirst/go-dispense/internal/domain/slot"
)

// SlotRepository stores the slot bank, one row per position in submission
// order
type SlotRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

var _ slot.Repository = (*SlotRepository)(nil)

// NewSlotRepository creates a new repository
func NewSlotRepository(pool *pgxpool.Pool, logger *zap.Logger) *SlotRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlotRepository{pool: pool, logger: logger}
}

// Load returns the bank in stored order
func (r *SlotRepository) Load(ctx context.Context) ([]slot.Slot, error) {
	query := `
		SELECT slot_number, medicine, stock, status
		FROM slots
		ORDER BY position ASC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query slots: %w", err)
	}
	defer rows.Close()

	slots := make([]slot.Slot, 0, slot.BankSize)
	for rows.Next() {
		var s slot.Slot
		if err := rows.Scan(&s.SlotNumber, &s.Medicine, &s.Stock, &s.Status); err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

// Replace rewrites the whole bank in one transaction. Readers see either the
// old bank or the new one.
func (r *SlotRepository) Replace(ctx context.Context, slots []slot.Slot) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", slotBankLockID); err != nil {
		return fmt.Errorf("lock slot bank: %w", err)
	}

	if _, err := tx.Exec(ctx, "DELETE FROM slots"); err != nil {
		return fmt.Errorf("clear slots: %w", err)
	}

	batch := &pgx.Batch{}
	for i, s := range slots {
		batch.Queue(`
			INSERT INTO slots (position, slot_number, medicine, stock, status)
			VALUES ($1, $2, $3, $4, $5)
		`, i+1, s.SlotNumber, s.Medicine, s.Stock, string(s.Status))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert slots: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	r.logger.Debug("slot bank replaced", zap.Int("slots", len(slots)))
	return nil
}
