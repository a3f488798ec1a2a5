// Package reconcile diffs the merged desired state against a cluster snapshot
// and applies the minimal set of Secret writes. Each target resolves
// independently; one failing Secret never blocks the rest of the pass.
package reconcile

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/systmms/vaultmirror/internal/cluster"
	vmerrors "github.com/systmms/vaultmirror/internal/errors"
	"github.com/systmms/vaultmirror/internal/logging"
	"github.com/systmms/vaultmirror/internal/metrics"
	"github.com/systmms/vaultmirror/internal/mirror"
	"github.com/systmms/vaultmirror/internal/retry"
	"github.com/systmms/vaultmirror/internal/state"
)

// Action is the decision taken for one target.
type Action string

const (
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionSkip    Action = "skip"
	ActionDelete  Action = "delete"
	ActionOrphan  Action = "orphan_kept"
	ActionMissing Action = "namespace_missing"
	ActionFail    Action = "fail"
)

// Options control one reconciliation pass.
type Options struct {
	// Workers bounds concurrent Secret writes (default: 4).
	Workers int

	// Namespace restricts the pass to a single namespace when set.
	Namespace string

	// OrphanCleanup enables deletion of managed Secrets no longer desired.
	// When false, orphans are reported but left in place.
	OrphanCleanup bool

	// CleanupOnly skips creates and updates and only removes orphans.
	CleanupOnly bool

	// DryRun reports every decision without writing to the cluster or the
	// state store.
	DryRun bool

	// Retry bounds each gateway write. A zero value uses the retry package
	// defaults with a 30s per-attempt timeout.
	Retry retry.Config
}

func (o Options) workers() int {
	if o.Workers <= 0 {
		return 4
	}
	return o.Workers
}

func (o Options) retryConfig() retry.Config {
	cfg := o.Retry
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return cfg
}

// Result is the outcome of one pass against one cluster.
type Result struct {
	Cluster  string
	Counts   state.Counts
	Warnings []string
	Errors   []error
}

// Failed reports whether any target failed during the pass.
func (r *Result) Failed() bool {
	return len(r.Errors) > 0
}

// Engine applies desired state to one cluster.
type Engine struct {
	gateway cluster.Gateway
	store   state.Store
	log     *logging.Logger
	metrics *metrics.SyncMetrics
	breaker *retry.Breaker
	opts    Options
}

// NewEngine creates a reconciliation engine for one cluster.
func NewEngine(gw cluster.Gateway, store state.Store, log *logging.Logger, opts Options) *Engine {
	return &Engine{
		gateway: gw,
		store:   store,
		log:     log,
		metrics: metrics.NewSyncMetrics(),
		breaker: retry.NewBreaker(5, time.Minute),
		opts:    opts,
	}
}

// write sends one gateway mutation through the retry policy and the cluster's
// circuit breaker, so a wedged API server fails the pass fast instead of
// burning the full retry budget on every target.
func (e *Engine) write(ctx context.Context, op func(ctx context.Context) error) error {
	return e.breaker.Do(ctx, e.opts.retryConfig(), op)
}

// Reconcile diffs desired against the snapshot and applies the changes.
// Targets are processed in (namespace, name) order through a bounded worker
// pool. Context cancellation stops dispatching new targets; writes already in
// flight finish.
func (e *Engine) Reconcile(ctx context.Context, desired map[mirror.Target]mirror.DesiredSecret, snap *cluster.Snapshot) (*Result, error) {
	result := &Result{Cluster: e.gateway.Name()}
	var mu sync.Mutex

	targets := mirror.SortedTargets(desired)
	if e.opts.Namespace != "" {
		filtered := targets[:0]
		for _, t := range targets {
			if t.Namespace == e.opts.Namespace {
				filtered = append(filtered, t)
			}
		}
		targets = filtered
	}

	record := func(action Action, counts func(*state.Counts), warning string, err error) {
		mu.Lock()
		defer mu.Unlock()
		counts(&result.Counts)
		if warning != "" {
			result.Warnings = append(result.Warnings, warning)
		}
		if err != nil {
			result.Errors = append(result.Errors, err)
		}
		e.metrics.RecordAction(result.Cluster, string(action))
	}

	if !e.opts.CleanupOnly {
		semaphore := make(chan struct{}, e.opts.workers())
		var wg sync.WaitGroup
		for _, target := range targets {
			if ctx.Err() != nil {
				break
			}
			wg.Add(1)
			semaphore <- struct{}{}
			go func(target mirror.Target) {
				defer wg.Done()
				defer func() { <-semaphore }()
				e.applyTarget(ctx, desired[target], snap, record)
			}(target)
		}
		wg.Wait()
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}

	e.cleanupOrphans(ctx, desired, snap, record)
	return result, nil
}

// applyTarget resolves one desired Secret to a create, update or skip.
func (e *Engine) applyTarget(ctx context.Context, d mirror.DesiredSecret, snap *cluster.Snapshot, record recordFunc) {
	ns, name := d.Target.Namespace, d.Target.Name

	if !snap.HasNamespace(ns) {
		e.log.Warn("Namespace %s not found in cluster %s, skipping secret %s", ns, snap.Cluster, name)
		e.upsert(ctx, d, state.StatusFailed, "namespace not found")
		record(ActionMissing, func(c *state.Counts) { c.Failed++ },
			"namespace "+ns+" not found in cluster "+snap.Cluster+", skipped secret "+name, nil)
		return
	}

	live := snap.Lookup(ns, name)
	if live != nil && live.ContentHash() == d.ContentHash {
		e.log.Debug("Secret %s/%s unchanged, skipping", ns, name)
		e.upsert(ctx, d, state.StatusActive, "")
		record(ActionSkip, func(c *state.Counts) { c.Skipped++ }, "", nil)
		return
	}

	secret := e.buildSecret(d, live)
	if e.opts.DryRun {
		if live == nil {
			e.log.Info("[dry-run] Would create secret %s/%s in cluster %s", ns, name, snap.Cluster)
			record(ActionCreate, func(c *state.Counts) { c.Created++ }, "", nil)
		} else {
			e.log.Info("[dry-run] Would update secret %s/%s in cluster %s", ns, name, snap.Cluster)
			record(ActionUpdate, func(c *state.Counts) { c.Updated++ }, "", nil)
		}
		return
	}

	var err error
	var action Action
	if live == nil {
		action = ActionCreate
		err = e.write(ctx, func(ctx context.Context) error {
			return e.gateway.CreateSecret(ctx, secret)
		})
	} else {
		action = ActionUpdate
		err = e.write(ctx, func(ctx context.Context) error {
			return e.gateway.UpdateSecret(ctx, secret)
		})
	}

	if err != nil {
		targetErr := vmerrors.TargetError{
			Cluster:   snap.Cluster,
			Namespace: ns,
			Name:      name,
			Op:        string(action),
			Err:       err,
		}
		e.log.Error("Failed to %s secret %s/%s: %v", action, ns, name, err)
		e.upsert(ctx, d, state.StatusFailed, err.Error())
		record(ActionFail, func(c *state.Counts) { c.Failed++ }, "", targetErr)
		return
	}

	e.upsert(ctx, d, state.StatusActive, "")
	if action == ActionCreate {
		e.log.Info("Created secret %s/%s in cluster %s", ns, name, snap.Cluster)
		record(action, func(c *state.Counts) { c.Created++ }, "", nil)
	} else {
		e.log.Info("Updated secret %s/%s in cluster %s", ns, name, snap.Cluster)
		record(action, func(c *state.Counts) { c.Updated++ }, "", nil)
	}
}

// cleanupOrphans removes managed Secrets that no desired target claims.
// Unmanaged Secrets never appear in the snapshot, so nothing here can touch a
// Secret this system did not create.
func (e *Engine) cleanupOrphans(ctx context.Context, desired map[mirror.Target]mirror.DesiredSecret, snap *cluster.Snapshot, record recordFunc) {
	var orphans []mirror.Target
	for ns, byName := range snap.Secrets {
		if e.opts.Namespace != "" && ns != e.opts.Namespace {
			continue
		}
		for name := range byName {
			target := mirror.Target{Namespace: ns, Name: name}
			if _, ok := desired[target]; !ok {
				orphans = append(orphans, target)
			}
		}
	}
	sort.Slice(orphans, func(i, j int) bool { return orphans[i].Less(orphans[j]) })

	for _, target := range orphans {
		if ctx.Err() != nil {
			return
		}
		ns, name := target.Namespace, target.Name

		if !e.opts.OrphanCleanup {
			e.log.Warn("Secret %s/%s is orphaned in cluster %s (run cleanup to remove)", ns, name, snap.Cluster)
			record(ActionOrphan, func(c *state.Counts) { c.OrphanedKept++ },
				"orphaned secret "+ns+"/"+name+" kept in cluster "+snap.Cluster, nil)
			continue
		}

		if e.opts.DryRun {
			e.log.Info("[dry-run] Would delete orphaned secret %s/%s from cluster %s", ns, name, snap.Cluster)
			record(ActionDelete, func(c *state.Counts) { c.Deleted++ }, "", nil)
			continue
		}

		err := e.write(ctx, func(ctx context.Context) error {
			return e.gateway.DeleteSecret(ctx, ns, name)
		})
		if err != nil && !cluster.IsNotFound(err) {
			targetErr := vmerrors.TargetError{
				Cluster:   snap.Cluster,
				Namespace: ns,
				Name:      name,
				Op:        "delete",
				Err:       err,
			}
			e.log.Error("Failed to delete orphaned secret %s/%s: %v", ns, name, err)
			record(ActionFail, func(c *state.Counts) { c.Failed++ }, "", targetErr)
			continue
		}

		e.log.Info("Deleted orphaned secret %s/%s from cluster %s", ns, name, snap.Cluster)
		e.markDeleted(ctx, ns, name)
		record(ActionDelete, func(c *state.Counts) { c.Deleted++ }, "", nil)
	}
}

type recordFunc func(action Action, counts func(*state.Counts), warning string, err error)

// buildSecret renders a desired Secret into the gateway representation with
// the ownership label and content-hash annotation stamped on. Labels and
// annotations that other controllers put on the live Secret are carried over;
// desired values and the system keys win on collision.
func (e *Engine) buildSecret(d mirror.DesiredSecret, live *cluster.Secret) cluster.Secret {
	data := make(map[string][]byte, len(d.Keys))
	for k, v := range d.Keys {
		data[k] = []byte(v)
	}

	labels := make(map[string]string, len(d.Labels)+1)
	annotations := make(map[string]string, len(d.Annotations)+1)
	if live != nil {
		for k, v := range live.Labels {
			labels[k] = v
		}
		for k, v := range live.Annotations {
			annotations[k] = v
		}
	}

	for k, v := range d.Labels {
		labels[k] = v
	}
	labels[cluster.OwnershipLabel] = cluster.OwnershipValue

	for k, v := range d.Annotations {
		annotations[k] = v
	}
	annotations[cluster.HashAnnotation] = d.ContentHash

	return cluster.Secret{
		Namespace:   d.Target.Namespace,
		Name:        d.Target.Name,
		Data:        data,
		Labels:      labels,
		Annotations: annotations,
	}
}

func (e *Engine) upsert(ctx context.Context, d mirror.DesiredSecret, status state.SyncStatus, errText string) {
	if e.opts.DryRun {
		return
	}
	rec := state.SyncRecord{
		Cluster:     e.gateway.Name(),
		Namespace:   d.Target.Namespace,
		Name:        d.Target.Name,
		ContentHash: d.ContentHash,
		Status:      status,
		ItemIDs:     d.ItemIDs,
		LastSynced:  time.Now().UTC(),
		LastError:   errText,
	}
	if err := e.store.UpsertSyncRecord(ctx, rec); err != nil {
		e.log.Warn("Failed to record sync state for %s/%s: %v", d.Target.Namespace, d.Target.Name, err)
	}
}

func (e *Engine) markDeleted(ctx context.Context, namespace, name string) {
	rec, err := e.store.GetSyncRecord(ctx, e.gateway.Name(), namespace, name)
	if err != nil || rec == nil {
		rec = &state.SyncRecord{
			Cluster:   e.gateway.Name(),
			Namespace: namespace,
			Name:      name,
		}
	}
	rec.Status = state.StatusDeleted
	rec.LastSynced = time.Now().UTC()
	rec.LastError = ""
	if err := e.store.UpsertSyncRecord(ctx, *rec); err != nil {
		e.log.Warn("Failed to record deletion of %s/%s: %v", namespace, name, err)
	}
}
