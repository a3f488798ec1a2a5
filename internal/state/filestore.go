package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// FileStore implements Store using JSON files. It is the default store: one
// file per sync record under records/, one file per run under runs/.
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileStore creates a file-based store rooted at baseDir
func NewFileStore(baseDir string) *FileStore {
	return &FileStore{baseDir: baseDir}
}

// DefaultStateDir returns the default state directory
func DefaultStateDir() string {
	// Check for test environment variable first
	if testDir := os.Getenv("VAULTMIRROR_STATE_DIR"); testDir != "" {
		return testDir
	}

	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "vaultmirror", "state")
	}

	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "vaultmirror", "state")
	}

	return filepath.Join(os.TempDir(), "vaultmirror", "state")
}

// UpsertSyncRecord inserts or replaces the record for the target
func (fs *FileStore) UpsertSyncRecord(ctx context.Context, rec SyncRecord) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	dir := filepath.Join(fs.baseDir, "records")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create records directory: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal sync record: %w", err)
	}

	if err := os.WriteFile(fs.recordPath(rec.Cluster, rec.Namespace, rec.Name), data, 0600); err != nil {
		return fmt.Errorf("failed to write sync record: %w", err)
	}
	return nil
}

// GetSyncRecord returns the record for a target, or nil if none exists
func (fs *FileStore) GetSyncRecord(ctx context.Context, cluster, namespace, name string) (*SyncRecord, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	data, err := os.ReadFile(fs.recordPath(cluster, namespace, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read sync record: %w", err)
	}

	var rec SyncRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sync record: %w", err)
	}
	return &rec, nil
}

// ListSyncRecords returns all records for a cluster
func (fs *FileStore) ListSyncRecords(ctx context.Context, cluster string) ([]SyncRecord, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	dir := filepath.Join(fs.baseDir, "records")
	files, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []SyncRecord{}, nil
		}
		return nil, fmt.Errorf("failed to read records directory: %w", err)
	}

	var records []SyncRecord
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, file.Name()))
		if err != nil {
			continue // Skip files that can't be read
		}
		var rec SyncRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			continue // Skip invalid JSON files
		}
		if cluster == "" || rec.Cluster == cluster {
			records = append(records, rec)
		}
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].Namespace != records[j].Namespace {
			return records[i].Namespace < records[j].Namespace
		}
		return records[i].Name < records[j].Name
	})
	return records, nil
}

// BeginRun persists a new InProgress run and assigns run.ID
func (fs *FileStore) BeginRun(ctx context.Context, run *RunState) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	dir := filepath.Join(fs.baseDir, "runs")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create runs directory: %w", err)
	}

	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	run.Status = RunInProgress
	if run.ID == "" {
		run.ID = fmt.Sprintf("%s-%09d", run.StartedAt.Format("20060102-150405"), run.StartedAt.Nanosecond())
	}

	return fs.writeRun(*run)
}

// CompleteRun transitions a run to Success or Failed with final counts
func (fs *FileStore) CompleteRun(ctx context.Context, id string, status RunStatus, counts Counts, errText string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	run, err := fs.readRun(id)
	if err != nil {
		return err
	}

	run.Status = status
	run.CompletedAt = time.Now().UTC()
	run.Created = counts.Created
	run.Updated = counts.Updated
	run.Skipped = counts.Skipped
	run.Failed = counts.Failed
	run.Deleted = counts.Deleted
	run.OrphanedKept = counts.OrphanedKept
	run.Error = errText

	return fs.writeRun(*run)
}

// ListRuns returns the most recent runs, newest first
func (fs *FileStore) ListRuns(ctx context.Context, limit int) ([]RunState, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	runs, err := fs.readAllRuns()
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// FailInterruptedRuns force-completes every InProgress run as Failed
func (fs *FileStore) FailInterruptedRuns(ctx context.Context, reason string) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	runs, err := fs.readAllRuns()
	if err != nil {
		return 0, err
	}

	failed := 0
	for _, run := range runs {
		if run.Status != RunInProgress {
			continue
		}
		run.Status = RunFailed
		run.CompletedAt = time.Now().UTC()
		run.Error = reason
		if err := fs.writeRun(run); err != nil {
			return failed, err
		}
		failed++
	}
	return failed, nil
}

// Close is a no-op for the file store
func (fs *FileStore) Close() error {
	return nil
}

func (fs *FileStore) recordPath(cluster, namespace, name string) string {
	filename := fmt.Sprintf("%s--%s--%s.json",
		sanitizeFilename(cluster), sanitizeFilename(namespace), sanitizeFilename(name))
	return filepath.Join(fs.baseDir, "records", filename)
}

func (fs *FileStore) runPath(id string) string {
	return filepath.Join(fs.baseDir, "runs", sanitizeFilename(id)+".json")
}

func (fs *FileStore) writeRun(run RunState) error {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run state: %w", err)
	}
	if err := os.WriteFile(fs.runPath(run.ID), data, 0600); err != nil {
		return fmt.Errorf("failed to write run state: %w", err)
	}
	return nil
}

func (fs *FileStore) readRun(id string) (*RunState, error) {
	data, err := os.ReadFile(fs.runPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no run state found for id %s", id)
		}
		return nil, fmt.Errorf("failed to read run state: %w", err)
	}
	var run RunState
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run state: %w", err)
	}
	return &run, nil
}

// readAllRuns returns all runs sorted newest first
func (fs *FileStore) readAllRuns() ([]RunState, error) {
	dir := filepath.Join(fs.baseDir, "runs")
	files, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunState{}, nil
		}
		return nil, fmt.Errorf("failed to read runs directory: %w", err)
	}

	var runs []RunState
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, file.Name()))
		if err != nil {
			continue
		}
		var run RunState
		if err := json.Unmarshal(data, &run); err != nil {
			continue
		}
		runs = append(runs, run)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	return runs, nil
}

// sanitizeFilename replaces characters that might be problematic in filenames
func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "-",
		"\\", "-",
		":", "-",
		"*", "-",
		"?", "-",
		"\"", "-",
		"<", "-",
		">", "-",
		"|", "-",
		" ", "_",
	)
	return replacer.Replace(name)
}
