// internal/session/manager.go
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Manager layers lifecycle rules on a Store: status transitions, pending
// question handling, and per-session write serialization. Reads go straight
// through; every mutation of one session id is serialized so concurrent
// touches cannot interleave a read-modify-write.
type Manager struct {
	store Store
	log   *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager wraps a store.
func NewManager(store Store, logger *zap.Logger) *Manager {
	return &Manager{
		store: store,
		log:   logger.Named("sessions"),
		locks: map[string]*sync.Mutex{},
	}
}

func (m *Manager) lockFor(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

// NewSessionID returns a short unique id. Eight hex characters keep ids
// typeable on the command line; collisions are vanishingly unlikely at the
// session counts involved.
func NewSessionID() string {
	return uuid.NewString()[:8]
}

// Create starts a new running session and persists it.
func (m *Manager) Create(ctx context.Context, task, deviceID string) (State, error) {
	now := time.Now().UTC()
	state := State{
		ID:        NewSessionID(),
		Task:      task,
		Status:    StatusRunning,
		DeviceID:  deviceID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.Save(ctx, state); err != nil {
		return State{}, err
	}
	m.log.Info("Session created",
		zap.String("session_id", state.ID), zap.String("task", task))
	return state, nil
}

// Get fetches one session.
func (m *Manager) Get(ctx context.Context, id string) (State, error) {
	return m.store.Get(ctx, id)
}

// List returns sessions matching the filter, newest first.
func (m *Manager) List(ctx context.Context, filter ListFilter) ([]State, error) {
	return m.store.List(ctx, filter)
}

// mutate applies fn under the per-session lock and persists the result.
func (m *Manager) mutate(ctx context.Context, id string, fn func(*State) error) (State, error) {
	l := m.lockFor(id)
	l.Lock()
	defer l.Unlock()

	state, err := m.store.Get(ctx, id)
	if err != nil {
		return State{}, err
	}
	if err := fn(&state); err != nil {
		return State{}, err
	}
	state.UpdatedAt = time.Now().UTC()
	if err := m.store.Save(ctx, state); err != nil {
		return State{}, err
	}
	return state, nil
}

// Touch records run progress without changing the lifecycle state.
func (m *Manager) Touch(ctx context.Context, id string, stepCount int, summary string) (State, error) {
	return m.mutate(ctx, id, func(s *State) error {
		s.StepCount = stepCount
		if summary != "" {
			s.Summary = summary
		}
		return nil
	})
}

// Pause suspends a running session, storing the question the run is blocked
// on.
func (m *Manager) Pause(ctx context.Context, id, pendingQuestion string) (State, error) {
	state, err := m.mutate(ctx, id, func(s *State) error {
		if s.Status != StatusRunning {
			return fmt.Errorf("cannot pause session %s in status %s", id, s.Status)
		}
		s.Status = StatusPaused
		s.PendingQuestion = pendingQuestion
		return nil
	})
	if err == nil {
		m.log.Info("Session paused", zap.String("session_id", id))
	}
	return state, err
}

// Resume reactivates a paused session and clears its pending question.
func (m *Manager) Resume(ctx context.Context, id string) (State, error) {
	state, err := m.mutate(ctx, id, func(s *State) error {
		if s.Status != StatusPaused {
			return fmt.Errorf("cannot resume session %s in status %s", id, s.Status)
		}
		s.Status = StatusRunning
		s.PendingQuestion = ""
		return nil
	})
	if err == nil {
		m.log.Info("Session resumed", zap.String("session_id", id))
	}
	return state, err
}

// Complete marks a session finished successfully.
func (m *Manager) Complete(ctx context.Context, id, summary string) (State, error) {
	return m.finish(ctx, id, StatusCompleted, summary)
}

// Abort marks a session finished unsuccessfully.
func (m *Manager) Abort(ctx context.Context, id, summary string) (State, error) {
	return m.finish(ctx, id, StatusAborted, summary)
}

func (m *Manager) finish(ctx context.Context, id string, status Status, summary string) (State, error) {
	state, err := m.mutate(ctx, id, func(s *State) error {
		if s.Status.Terminal() {
			return fmt.Errorf("session %s already finished as %s", id, s.Status)
		}
		s.Status = status
		s.PendingQuestion = ""
		if summary != "" {
			s.Summary = summary
		}
		return nil
	})
	if err == nil {
		m.log.Info("Session finished",
			zap.String("session_id", id), zap.String("status", string(status)))
	}
	return state, err
}

// Delete removes a session record.
func (m *Manager) Delete(ctx context.Context, id string) error {
	l := m.lockFor(id)
	l.Lock()
	defer l.Unlock()
	return m.store.Delete(ctx, id)
}

// CleanupOlderThan removes terminal sessions last touched before now-age.
func (m *Manager) CleanupOlderThan(ctx context.Context, age time.Duration) (int, error) {
	removed, err := m.store.DeleteOlderThan(ctx, time.Now().UTC().Add(-age))
	if err == nil && removed > 0 {
		m.log.Info("Cleaned up old sessions", zap.Int("removed", removed))
	}
	return removed, err
}

// Close releases the underlying store.
func (m *Manager) Close() error {
	return m.store.Close()
}
