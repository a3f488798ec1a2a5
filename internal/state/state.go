// Package state persists what has been synced: one SyncRecord per output
// Secret ever seen, and one RunState row per reconciliation pass. The store is
// the only resource mutated across passes; all writes are upserts keyed by
// (cluster, namespace, name) so a retried write is idempotent.
package state

import (
	"context"
	"time"
)

// SyncStatus is the lifecycle state of a synced Secret.
type SyncStatus string

const (
	StatusActive  SyncStatus = "active"
	StatusFailed  SyncStatus = "failed"
	StatusDeleted SyncStatus = "deleted"
)

// RunStatus is the lifecycle state of a reconciliation pass.
type RunStatus string

const (
	RunInProgress RunStatus = "in_progress"
	RunSuccess    RunStatus = "success"
	RunFailed     RunStatus = "failed"
)

// SyncRecord tracks the last known state of one output Secret.
type SyncRecord struct {
	Cluster     string    `json:"cluster"`
	Namespace   string    `json:"namespace"`
	Name        string    `json:"name"`
	ContentHash string    `json:"content_hash"`
	Status      SyncStatus `json:"status"`
	ItemIDs     []string  `json:"item_ids,omitempty"`
	LastSynced  time.Time `json:"last_synced"`
	LastError   string    `json:"last_error,omitempty"`
}

// RunState records one reconciliation pass.
type RunState struct {
	ID           string        `json:"id"`
	StartedAt    time.Time     `json:"started_at"`
	CompletedAt  time.Time     `json:"completed_at,omitempty"`
	Status       RunStatus     `json:"status"`
	Created      int           `json:"created"`
	Updated      int           `json:"updated"`
	Skipped      int           `json:"skipped"`
	Failed       int           `json:"failed"`
	Deleted      int           `json:"deleted"`
	OrphanedKept int           `json:"orphaned_kept"`
	Interval     time.Duration `json:"interval,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// Counts is the aggregate outcome of a pass, copied onto the RunState row
// when the pass completes.
type Counts struct {
	Created      int
	Updated      int
	Skipped      int
	Failed       int
	Deleted      int
	OrphanedKept int
}

// Store is the durable sync-state contract.
type Store interface {
	// UpsertSyncRecord inserts or replaces the record for the target.
	UpsertSyncRecord(ctx context.Context, rec SyncRecord) error

	// GetSyncRecord returns the record for a target, or nil if none exists.
	GetSyncRecord(ctx context.Context, cluster, namespace, name string) (*SyncRecord, error)

	// ListSyncRecords returns all records for a cluster.
	ListSyncRecords(ctx context.Context, cluster string) ([]SyncRecord, error)

	// BeginRun persists a new InProgress run and assigns run.ID.
	BeginRun(ctx context.Context, run *RunState) error

	// CompleteRun transitions a run to Success or Failed with final counts.
	CompleteRun(ctx context.Context, id string, status RunStatus, counts Counts, errText string) error

	// ListRuns returns the most recent runs, newest first.
	ListRuns(ctx context.Context, limit int) ([]RunState, error)

	// FailInterruptedRuns force-completes every InProgress run as Failed.
	// Called once at process start; an InProgress row found there is a crash
	// artifact, and leaving it would wedge the exclusivity check forever.
	FailInterruptedRuns(ctx context.Context, reason string) (int, error)

	// Close releases store resources.
	Close() error
}
