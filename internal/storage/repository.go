package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"vault-monitor/internal/alertlog"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	schemaSQL = `
CREATE TABLE IF NOT EXISTS alert_events (
    id          TEXT PRIMARY KEY,
    alert_type  TEXT NOT NULL,
    severity    TEXT NOT NULL,
    data        JSONB,
    occurred_at TIMESTAMPTZ NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS alert_events_occurred_at_idx ON alert_events (occurred_at DESC);
CREATE TABLE IF NOT EXISTS dashboard_snapshots (
    network      TEXT NOT NULL,
    bucket_ts    TIMESTAMPTZ NOT NULL,
    block_number BIGINT,
    vault_count  INTEGER NOT NULL,
    error_count  INTEGER NOT NULL,
    alert_count  INTEGER NOT NULL,
    payload      JSONB NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (network, bucket_ts)
);`

	insertAlertSQL = `INSERT INTO alert_events (
        id,
        alert_type,
        severity,
        data,
        occurred_at
    ) VALUES (
        $1,$2,$3,$4,$5
    )
    ON CONFLICT (id) DO NOTHING;`

	listRecentAlertsSQL = `SELECT
        id,
        alert_type,
        severity,
        data,
        occurred_at,
        created_at
    FROM alert_events
    ORDER BY occurred_at DESC
    LIMIT $1;`

	deleteAlertsBeforeSQL = `DELETE FROM alert_events WHERE occurred_at < $1;`

	upsertSnapshotSQL = `INSERT INTO dashboard_snapshots (
        network,
        bucket_ts,
        block_number,
        vault_count,
        error_count,
        alert_count,
        payload
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    ON CONFLICT (network, bucket_ts) DO UPDATE
    SET
        block_number = EXCLUDED.block_number,
        vault_count  = EXCLUDED.vault_count,
        error_count  = EXCLUDED.error_count,
        alert_count  = EXCLUDED.alert_count,
        payload      = EXCLUDED.payload;`

	deleteSnapshotsBeforeSQL = `DELETE FROM dashboard_snapshots WHERE bucket_ts < $1;`

	countSnapshotsSQL = `SELECT COUNT(*) FROM dashboard_snapshots WHERE network = $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// AlertStore defines the relational alert mirror.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert AlertRecord) error
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) (int64, error)
}

// SnapshotStore persists scheduled dashboard summaries.
type SnapshotStore interface {
	UpsertSnapshot(ctx context.Context, snap DashboardSnapshot) error
	CountSnapshots(ctx context.Context, network string) (int64, error)
	DeleteSnapshotsBefore(ctx context.Context, olderThan time.Time) (int64, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to the mirrored alerts and snapshots.
type Store struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool, logger zerolog.Logger) *Store {
	return &Store{pool: pool, logger: logger.With().Str("component", "pg_store").Logger()}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the mirror tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			s.logger.Warn().Err(err).Int64("key", key).Msg("advisory unlock failed")
		}
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// Publish mirrors an alert log entry. Entries are idempotent on their id.
func (s *Store) Publish(ctx context.Context, entry alertlog.Entry) error {
	rec, err := RecordFromEntry(entry)
	if err != nil {
		return err
	}
	return s.InsertAlert(ctx, rec)
}

// RecordFromEntry converts a log entry into its relational shape.
func RecordFromEntry(entry alertlog.Entry) (AlertRecord, error) {
	if entry.ID == "" {
		return AlertRecord{}, fmt.Errorf("alert entry without id")
	}
	var data json.RawMessage
	if entry.Data != nil {
		raw, err := json.Marshal(entry.Data)
		if err != nil {
			return AlertRecord{}, fmt.Errorf("marshal alert data: %w", err)
		}
		data = raw
	}
	return AlertRecord{
		ID:         entry.ID,
		Type:       entry.Type,
		Severity:   string(entry.Severity),
		Data:       data,
		OccurredAt: entry.Timestamp.UTC(),
	}, nil
}

// InsertAlert persists an alert emission.
func (s *Store) InsertAlert(ctx context.Context, alert AlertRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var data interface{}
	if len(alert.Data) > 0 {
		data = []byte(alert.Data)
	}

	if _, execErr := pool.Exec(ctx, insertAlertSQL,
		alert.ID,
		alert.Type,
		alert.Severity,
		data,
		alert.OccurredAt,
	); execErr != nil {
		return fmt.Errorf("insert alert: %w", execErr)
	}
	return nil
}

// ListRecentAlerts lists most recent alerts.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		var rec AlertRecord
		var data []byte
		if err := rows.Scan(
			&rec.ID,
			&rec.Type,
			&rec.Severity,
			&data,
			&rec.OccurredAt,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		rec.Data = json.RawMessage(data)
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// DeleteAlertsBefore deletes mirrored alerts older than the cutoff.
func (s *Store) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	tag, execErr := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan)
	if execErr != nil {
		return 0, fmt.Errorf("delete alerts before: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

// UpsertSnapshot persists or replaces the snapshot of one bucket.
func (s *Store) UpsertSnapshot(ctx context.Context, snap DashboardSnapshot) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	block := sql.NullInt64{}
	if snap.BlockNumber != nil {
		block = sql.NullInt64{Int64: *snap.BlockNumber, Valid: true}
	}

	if _, execErr := pool.Exec(ctx, upsertSnapshotSQL,
		snap.Network,
		snap.Bucket,
		block,
		snap.VaultCount,
		snap.ErrorCount,
		snap.AlertCount,
		[]byte(snap.Payload),
	); execErr != nil {
		return fmt.Errorf("upsert snapshot: %w", execErr)
	}
	return nil
}

// CountSnapshots returns the number of stored snapshots for network.
func (s *Store) CountSnapshots(ctx context.Context, network string) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countSnapshotsSQL, network).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count snapshots: %w", scanErr)
	}
	return count, nil
}

// DeleteSnapshotsBefore removes snapshots older than the cutoff.
func (s *Store) DeleteSnapshotsBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	tag, execErr := pool.Exec(ctx, deleteSnapshotsBeforeSQL, olderThan)
	if execErr != nil {
		return 0, fmt.Errorf("delete snapshots before: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

var (
	_ AlertStore     = (*Store)(nil)
	_ SnapshotStore  = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)
