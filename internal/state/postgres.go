package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresStore implements Store against a PostgreSQL database. Used when
// multiple replicas need a shared view of sync state; the file store covers
// single-host deployments.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection and ensures the schema exists
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to state database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStoreWithDB wraps an existing handle (used by tests with sqlmock)
func NewPostgresStoreWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS sync_records (
			cluster      TEXT NOT NULL,
			namespace    TEXT NOT NULL,
			name         TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			status       TEXT NOT NULL,
			item_ids     TEXT[] NOT NULL DEFAULT '{}',
			last_synced  TIMESTAMPTZ NOT NULL,
			last_error   TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (cluster, namespace, name)
		);
		CREATE TABLE IF NOT EXISTS run_states (
			id            TEXT PRIMARY KEY,
			started_at    TIMESTAMPTZ NOT NULL,
			completed_at  TIMESTAMPTZ,
			status        TEXT NOT NULL,
			created       INT NOT NULL DEFAULT 0,
			updated       INT NOT NULL DEFAULT 0,
			skipped       INT NOT NULL DEFAULT 0,
			failed        INT NOT NULL DEFAULT 0,
			deleted       INT NOT NULL DEFAULT 0,
			orphaned_kept INT NOT NULL DEFAULT 0,
			interval_sec  INT NOT NULL DEFAULT 0,
			error         TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS run_states_started_at ON run_states (started_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("failed to migrate state schema: %w", err)
	}
	return nil
}

// UpsertSyncRecord inserts or replaces the record for the target
func (s *PostgresStore) UpsertSyncRecord(ctx context.Context, rec SyncRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_records (cluster, namespace, name, content_hash, status, item_ids, last_synced, last_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (cluster, namespace, name) DO UPDATE SET
			content_hash = EXCLUDED.content_hash,
			status = EXCLUDED.status,
			item_ids = EXCLUDED.item_ids,
			last_synced = EXCLUDED.last_synced,
			last_error = EXCLUDED.last_error
	`, rec.Cluster, rec.Namespace, rec.Name, rec.ContentHash, string(rec.Status),
		pq.Array(rec.ItemIDs), rec.LastSynced, rec.LastError)
	if err != nil {
		return fmt.Errorf("UpsertSyncRecord: %w", err)
	}
	return nil
}

// GetSyncRecord returns the record for a target, or nil if none exists
func (s *PostgresStore) GetSyncRecord(ctx context.Context, cluster, namespace, name string) (*SyncRecord, error) {
	var rec SyncRecord
	var status string
	err := s.db.QueryRowContext(ctx, `
		SELECT cluster, namespace, name, content_hash, status, item_ids, last_synced, last_error
		FROM sync_records WHERE cluster = $1 AND namespace = $2 AND name = $3
	`, cluster, namespace, name).Scan(&rec.Cluster, &rec.Namespace, &rec.Name,
		&rec.ContentHash, &status, pq.Array(&rec.ItemIDs), &rec.LastSynced, &rec.LastError)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetSyncRecord: %w", err)
	}
	rec.Status = SyncStatus(status)
	return &rec, nil
}

// ListSyncRecords returns all records for a cluster in (namespace, name) order
func (s *PostgresStore) ListSyncRecords(ctx context.Context, cluster string) ([]SyncRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cluster, namespace, name, content_hash, status, item_ids, last_synced, last_error
		FROM sync_records WHERE cluster = $1 ORDER BY namespace, name
	`, cluster)
	if err != nil {
		return nil, fmt.Errorf("ListSyncRecords: %w", err)
	}
	defer rows.Close()

	var records []SyncRecord
	for rows.Next() {
		var rec SyncRecord
		var status string
		if err := rows.Scan(&rec.Cluster, &rec.Namespace, &rec.Name, &rec.ContentHash,
			&status, pq.Array(&rec.ItemIDs), &rec.LastSynced, &rec.LastError); err != nil {
			return nil, fmt.Errorf("scan sync record: %w", err)
		}
		rec.Status = SyncStatus(status)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// BeginRun persists a new InProgress run and assigns run.ID
func (s *PostgresStore) BeginRun(ctx context.Context, run *RunState) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	run.Status = RunInProgress
	if run.ID == "" {
		run.ID = fmt.Sprintf("%s-%09d", run.StartedAt.Format("20060102-150405"), run.StartedAt.Nanosecond())
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_states (id, started_at, status, interval_sec)
		VALUES ($1, $2, $3, $4)
	`, run.ID, run.StartedAt, string(RunInProgress), int(run.Interval.Seconds()))
	if err != nil {
		return fmt.Errorf("BeginRun: %w", err)
	}
	return nil
}

// CompleteRun transitions a run to Success or Failed with final counts
func (s *PostgresStore) CompleteRun(ctx context.Context, id string, status RunStatus, counts Counts, errText string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE run_states SET
			completed_at = $2, status = $3,
			created = $4, updated = $5, skipped = $6, failed = $7, deleted = $8, orphaned_kept = $9,
			error = $10
		WHERE id = $1
	`, id, time.Now().UTC(), string(status),
		counts.Created, counts.Updated, counts.Skipped, counts.Failed, counts.Deleted, counts.OrphanedKept,
		errText)
	if err != nil {
		return fmt.Errorf("CompleteRun: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first
func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]RunState, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, completed_at, status, created, updated, skipped, failed, deleted, orphaned_kept, interval_sec, error
		FROM run_states ORDER BY started_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("ListRuns: %w", err)
	}
	defer rows.Close()

	var runs []RunState
	for rows.Next() {
		var run RunState
		var status string
		var completed sql.NullTime
		var intervalSec int
		if err := rows.Scan(&run.ID, &run.StartedAt, &completed, &status,
			&run.Created, &run.Updated, &run.Skipped, &run.Failed, &run.Deleted,
			&run.OrphanedKept, &intervalSec, &run.Error); err != nil {
			return nil, fmt.Errorf("scan run state: %w", err)
		}
		if completed.Valid {
			run.CompletedAt = completed.Time
		}
		run.Status = RunStatus(status)
		run.Interval = time.Duration(intervalSec) * time.Second
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// FailInterruptedRuns force-completes every InProgress run as Failed
func (s *PostgresStore) FailInterruptedRuns(ctx context.Context, reason string) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE run_states SET status = $1, completed_at = $2, error = $3
		WHERE status = $4
	`, string(RunFailed), time.Now().UTC(), reason, string(RunInProgress))
	if err != nil {
		return 0, fmt.Errorf("FailInterruptedRuns: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("FailInterruptedRuns: %w", err)
	}
	return int(n), nil
}

// Close releases the database handle
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
