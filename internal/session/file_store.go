// internal/session/file_store.go
package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var jsonit = jsoniter.ConfigCompatibleWithStandardLibrary

// Session ids become file names, so they are restricted to a safe alphabet.
var safeIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// FileStore keeps one JSON file per session under a root directory. Writes go
// through a temp file and rename so a crash never leaves a half-written
// record.
type FileStore struct {
	root string
	log  *zap.Logger
	mu   sync.Mutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates the root directory if needed and returns the store.
func NewFileStore(root string, logger *zap.Logger) (*FileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("session root directory is empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session directory %s: %w", root, err)
	}
	return &FileStore{root: root, log: logger.Named("session-store")}, nil
}

func (fs *FileStore) path(id string) (string, error) {
	if !safeIDRegex.MatchString(id) {
		return "", fmt.Errorf("invalid session id %q", id)
	}
	return filepath.Join(fs.root, id+".json"), nil
}

// Save writes the record atomically.
func (fs *FileStore) Save(ctx context.Context, state State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := fs.path(state.ID)
	if err != nil {
		return err
	}
	data, err := jsonit.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session %s: %w", state.ID, err)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session %s: %w", state.ID, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to commit session %s: %w", state.ID, err)
	}
	return nil
}

// Get reads one record.
func (fs *FileStore) Get(ctx context.Context, id string) (State, error) {
	if err := ctx.Err(); err != nil {
		return State{}, err
	}
	path, err := fs.path(id)
	if err != nil {
		return State{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, ErrSessionNotFound
		}
		return State{}, fmt.Errorf("failed to read session %s: %w", id, err)
	}
	var state State
	if err := jsonit.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	return state, nil
}

// List scans the directory, skipping unreadable or foreign files, and sorts
// newest first.
func (fs *FileStore) List(ctx context.Context, filter ListFilter) ([]State, error) {
	entries, err := os.ReadDir(fs.root)
	if err != nil {
		return nil, fmt.Errorf("failed to list session directory: %w", err)
	}

	var out []State
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		state, err := fs.Get(ctx, strings.TrimSuffix(name, ".json"))
		if err != nil {
			fs.log.Warn("Skipping unreadable session file",
				zap.String("file", name), zap.Error(err))
			continue
		}
		if filter.Matches(state) {
			out = append(out, state)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// Delete removes a record; absent ids are fine.
func (fs *FileStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := fs.path(id)
	if err != nil {
		return err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

// DeleteOlderThan removes stale terminal sessions.
func (fs *FileStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	all, err := fs.List(ctx, ListFilter{})
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, state := range all {
		if !state.Status.Terminal() || !state.UpdatedAt.Before(cutoff) {
			continue
		}
		if err := fs.Delete(ctx, state.ID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// Close is a no-op for the file backend.
func (fs *FileStore) Close() error { return nil }
