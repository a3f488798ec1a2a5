// Package coordinator drives the sync pipeline end to end: list vault items,
// parse, merge, snapshot each cluster, reconcile, and record the run. At most
// one pass runs at a time, both within the process and across processes
// sharing a state directory.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/systmms/vaultmirror/internal/cluster"
	vmerrors "github.com/systmms/vaultmirror/internal/errors"
	"github.com/systmms/vaultmirror/internal/logging"
	"github.com/systmms/vaultmirror/internal/metrics"
	"github.com/systmms/vaultmirror/internal/mirror"
	"github.com/systmms/vaultmirror/internal/parser"
	"github.com/systmms/vaultmirror/internal/reconcile"
	"github.com/systmms/vaultmirror/internal/retry"
	"github.com/systmms/vaultmirror/internal/state"
	"github.com/systmms/vaultmirror/internal/vault"
)

// ErrAlreadyRunning is returned when a pass is requested while another pass
// holds the run gate.
var ErrAlreadyRunning = errors.New("a sync pass is already running")

// Options configure a Coordinator.
type Options struct {
	// NotePrefix overrides the directive prefix in item notes.
	NotePrefix string

	// Reconcile is passed through to each cluster's engine.
	Reconcile reconcile.Options

	// Retry bounds vault and snapshot calls.
	Retry retry.Config

	// Interval is recorded on each run row so the history shows the cadence
	// a run belonged to. RunContinuous overrides it with its argument; zero
	// marks a one-shot run.
	Interval time.Duration

	// LockPath enables a cross-process lock file when set.
	LockPath string
}

// Summary is the aggregate outcome of one pass across all clusters.
type Summary struct {
	RunID    string
	Status   state.RunStatus
	Counts   state.Counts
	Warnings []string
	Errors   []error
	Duration time.Duration
	Clusters []*reconcile.Result
}

// Coordinator owns the pipeline for one configured source and set of
// clusters.
type Coordinator struct {
	source   vault.ItemSource
	gateways []cluster.Gateway
	store    state.Store
	log      *logging.Logger
	metrics  *metrics.SyncMetrics
	breaker  *retry.Breaker
	opts     Options

	running atomic.Bool
}

// New creates a Coordinator.
func New(source vault.ItemSource, gateways []cluster.Gateway, store state.Store, log *logging.Logger, opts Options) *Coordinator {
	if opts.Reconcile.Retry == (retry.Config{}) {
		opts.Reconcile.Retry = opts.Retry
	}
	// Vault listings and snapshots get a generous per-attempt deadline so a
	// hung CLI or API server cannot stall the pass forever.
	if opts.Retry.Timeout <= 0 {
		opts.Retry.Timeout = 2 * time.Minute
	}
	return &Coordinator{
		source:   source,
		gateways: gateways,
		store:    store,
		log:      log,
		metrics:  metrics.NewSyncMetrics(),
		breaker:  retry.NewBreaker(5, time.Minute),
		opts:     opts,
	}
}

// RecoverInterruptedRuns force-fails runs left InProgress by a crashed
// process. Called once at startup, before any pass.
func (c *Coordinator) RecoverInterruptedRuns(ctx context.Context) error {
	n, err := c.store.FailInterruptedRuns(ctx, "interrupted by process restart")
	if err != nil {
		return fmt.Errorf("failed to recover interrupted runs: %w", err)
	}
	if n > 0 {
		c.log.Warn("Marked %d interrupted run(s) as failed", n)
	}
	return nil
}

// RunOnce executes exactly one pass. It returns ErrAlreadyRunning when a pass
// is in flight, without touching the run history.
func (c *Coordinator) RunOnce(ctx context.Context) (*Summary, error) {
	if !c.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer c.running.Store(false)

	if c.opts.LockPath != "" {
		lock, err := AcquireFileLock(c.opts.LockPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAlreadyRunning, err)
		}
		defer lock.Release()
	}

	return c.runPass(ctx)
}

// RunContinuous recovers interrupted runs, then executes passes every
// interval until the context is cancelled. A failed pass is logged and the
// loop continues.
func (c *Coordinator) RunContinuous(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return vmerrors.UserError{
			Message:    fmt.Sprintf("invalid sync interval %s", interval),
			Suggestion: "Use a positive interval such as 5m or 1h",
		}
	}

	if err := c.RecoverInterruptedRuns(ctx); err != nil {
		return err
	}
	c.opts.Interval = interval

	c.log.Info("Starting continuous sync every %s", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		summary, err := c.RunOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Error("Sync pass failed: %v", vmerrors.SimplifyError(err))
		} else if summary.Status == state.RunFailed {
			c.log.Error("Sync pass %s completed with %d error(s)", summary.RunID, len(summary.Errors))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Coordinator) runPass(ctx context.Context) (*Summary, error) {
	started := time.Now()
	run := &state.RunState{
		StartedAt: started.UTC(),
		Status:    state.RunInProgress,
		Interval:  c.opts.Interval,
	}
	if err := c.store.BeginRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to record run start: %w", err)
	}

	summary, passErr := c.executePipeline(ctx, run.ID)
	summary.Duration = time.Since(started)

	status := state.RunSuccess
	errText := ""
	if passErr != nil {
		status = state.RunFailed
		errText = passErr.Error()
	} else if len(summary.Errors) > 0 {
		// The pass itself finished; the error text distinguishes this from a
		// run that died before reconciling.
		status = state.RunFailed
		errText = fmt.Sprintf("completed with %d failed target(s)", len(summary.Errors))
	}
	summary.Status = status

	if err := c.store.CompleteRun(ctx, run.ID, status, summary.Counts, errText); err != nil {
		c.log.Warn("Failed to record run completion: %v", err)
	}
	c.metrics.RecordRun(string(status), summary.Duration)
	c.metrics.RecordWarnings(len(summary.Warnings))

	if passErr != nil {
		return summary, passErr
	}
	return summary, nil
}

func (c *Coordinator) executePipeline(ctx context.Context, runID string) (*Summary, error) {
	summary := &Summary{RunID: runID}

	var items []vault.Item
	err := c.breaker.Do(ctx, c.opts.Retry, func(ctx context.Context) error {
		var listErr error
		items, listErr = c.source.ListItems(ctx)
		return listErr
	})
	if err != nil {
		return summary, vmerrors.SourceError(c.source.Name(), "list items", err)
	}
	vault.SortItems(items)
	c.log.Debug("Fetched %d items from %s", len(items), c.source.Name())

	fragments, warnings := parser.ParseAll(items, parser.Options{NotePrefix: c.opts.NotePrefix})
	summary.Warnings = append(summary.Warnings, warnings...)
	for _, w := range warnings {
		c.log.Warn("%s", w)
	}

	desired := mirror.Merge(fragments)
	c.log.Info("Reconciling %d secret(s) across %d cluster(s)", len(desired), len(c.gateways))

	for _, gw := range c.gateways {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}

		var snap *cluster.Snapshot
		err := retry.Do(ctx, c.opts.Retry, func(ctx context.Context) error {
			var snapErr error
			snap, snapErr = cluster.TakeSnapshot(ctx, gw)
			return snapErr
		})
		if err != nil {
			// No snapshot means no diff baseline, the whole pass fails rather
			// than guessing at orphans.
			return summary, vmerrors.ClusterError(gw.Name(), "snapshot", err)
		}

		engine := reconcile.NewEngine(gw, c.store, c.log, c.opts.Reconcile)
		result, err := engine.Reconcile(ctx, desired, snap)
		if result != nil {
			summary.Clusters = append(summary.Clusters, result)
			summary.Counts.Created += result.Counts.Created
			summary.Counts.Updated += result.Counts.Updated
			summary.Counts.Skipped += result.Counts.Skipped
			summary.Counts.Failed += result.Counts.Failed
			summary.Counts.Deleted += result.Counts.Deleted
			summary.Counts.OrphanedKept += result.Counts.OrphanedKept
			summary.Warnings = append(summary.Warnings, result.Warnings...)
			summary.Errors = append(summary.Errors, result.Errors...)
		}
		if err != nil {
			return summary, err
		}
	}

	return summary, nil
}
