package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// StaticSource serves a fixed item list. Used for tests and for dry runs
// against a JSON fixture instead of a live vault.
type StaticSource struct {
	items []Item
	err   error
}

// NewStaticSource creates a source returning the given items
func NewStaticSource(items []Item) *StaticSource {
	return &StaticSource{items: items}
}

// NewFailingSource creates a source whose calls fail with err (tests only)
func NewFailingSource(err error) *StaticSource {
	return &StaticSource{err: err}
}

// LoadStaticSource reads items from a JSON file containing an array of items
func LoadStaticSource(path string) (*StaticSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read items file: %w", err)
	}
	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to parse items file %s: %w", path, err)
	}
	return NewStaticSource(items), nil
}

// Name returns the source name
func (s *StaticSource) Name() string {
	return "static"
}

// ListItems returns a copy of the configured items
func (s *StaticSource) ListItems(ctx context.Context) ([]Item, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]Item, len(s.items))
	copy(out, s.items)
	return out, nil
}

// Validate always succeeds unless the source was built to fail
func (s *StaticSource) Validate(ctx context.Context) error {
	return s.err
}

// SetItems replaces the item list (tests simulate source-side edits with this)
func (s *StaticSource) SetItems(items []Item) {
	s.items = items
}
