package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/drfirst/go-dispense/internal/domain/slot"
)

// Migration is one versioned schema change
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Migrations lists the schema in apply order
var Migrations = []Migration{
	{Version: 1, Name: "patients", SQL: `
CREATE TABLE IF NOT EXISTS patients (
    seq                 BIGSERIAL UNIQUE,
    id                  TEXT PRIMARY KEY,
    name                TEXT NOT NULL,
    ward_number         TEXT NOT NULL,
    bed_number          TEXT NOT NULL,
    rfid_card_number    TEXT NOT NULL,
    prescriptions       JSONB NOT NULL DEFAULT '[]',
    distribution_status JSONB NOT NULL,
    created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`},
	{Version: 2, Name: "slots", SQL: fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS slots (
    position    INTEGER PRIMARY KEY,
    slot_number INTEGER NOT NULL,
    medicine    TEXT NOT NULL DEFAULT '',
    stock       INTEGER,
    status      TEXT NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

INSERT INTO slots (position, slot_number, status)
SELECT n, n, '%s' FROM generate_series(1, %d) AS n
ON CONFLICT (position) DO NOTHING;`, slot.StatusUnassigned, slot.BankSize)},
	{Version: 3, Name: "outbox", SQL: `
CREATE TABLE IF NOT EXISTS outbox (
    id             BIGSERIAL PRIMARY KEY,
    event_id       TEXT NOT NULL UNIQUE,
    aggregate_id   TEXT NOT NULL,
    aggregate_type TEXT NOT NULL,
    event_type     TEXT NOT NULL,
    payload        JSONB NOT NULL,
    kafka_topic    TEXT NOT NULL,
    kafka_key      TEXT NOT NULL,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    processed_at   TIMESTAMPTZ,
    retry_count    INTEGER NOT NULL DEFAULT 0,
    last_error     TEXT
);

CREATE INDEX IF NOT EXISTS idx_outbox_pending
    ON outbox (created_at) WHERE processed_at IS NULL;`},
	{Version: 4, Name: "inbox", SQL: `
CREATE TABLE IF NOT EXISTS inbox (
    idempotency_key TEXT PRIMARY KEY,
    handler_name    TEXT NOT NULL,
    status          TEXT NOT NULL,
    payload         JSONB,
    result          JSONB,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    expires_at      TIMESTAMPTZ
);`},
}

// Migrate applies pending migrations, recording each in _migrations
func Migrate(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS _migrations (
    version    INTEGER PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TIMESTAMPTZ DEFAULT NOW()
)`)
	if err != nil {
		return fmt.Errorf("create _migrations table: %w", err)
	}

	for _, m := range Migrations {
		if err := apply(ctx, pool, m); err != nil {
			return err
		}
		logger.Debug("migration checked", zap.Int("version", m.Version), zap.String("name", m.Name))
	}

	logger.Info("schema up to date", zap.Int("migrations", len(Migrations)))
	return nil
}

func apply(ctx context.Context, pool *pgxpool.Pool, m Migration) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// serialise concurrent migrators
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("lock migrations: %w", err)
	}

	var applied bool
	err = tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM _migrations WHERE version = $1)", m.Version).Scan(&applied)
	if err != nil {
		return fmt.Errorf("check migration %d: %w", m.Version, err)
	}
	if applied {
		return nil
	}

	if _, err := tx.Exec(ctx, m.SQL); err != nil {
		return fmt.Errorf("apply migration %d_%s: %w", m.Version, m.Name, err)
	}
	if _, err := tx.Exec(ctx, "INSERT INTO _migrations (version, name) VALUES ($1, $2)", m.Version, m.Name); err != nil {
		return fmt.Errorf("record migration %d: %w", m.Version, err)
	}

	return tx.Commit(ctx)
}

// Advisory lock ids
const (
	migrateLockID  int64 = 7301
	slotBankLockID int64 = 7302
	outboxLockID   int64 = 7303
)
