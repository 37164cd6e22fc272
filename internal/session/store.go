// internal/session/store.go

// Package session persists task sessions so a run can survive interruption
// (a question to the user, a process restart) and be resumed later. Two store
// backends exist: a JSON-file directory for single-machine use and a
// PostgreSQL store for shared deployments.
package session

import (
	"context"
	"errors"
	"time"
)

// ErrSessionNotFound is returned when no session exists for the given id.
var ErrSessionNotFound = errors.New("session not found")

// Status is the lifecycle state of a session. Running and Paused are live;
// Completed and Aborted are terminal.
type Status string

const (
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusAborted   Status = "aborted"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusAborted
}

// State is the persisted record of one task session. It round-trips through
// the store unchanged except for UpdatedAt, which every write refreshes.
type State struct {
	ID       string `json:"id"`
	Task     string `json:"task"`
	Status   Status `json:"status"`
	DeviceID string `json:"device_id,omitempty"`

	// StepCount mirrors the control loop's step counter at the last save.
	StepCount int `json:"step_count"`

	// Summary is the latest rolling progress note from the model.
	Summary string `json:"summary,omitempty"`

	// PendingQuestion is set while the session is paused waiting on a user
	// answer, and cleared on resume.
	PendingQuestion string `json:"pending_question,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	Status   Status
	DeviceID string
}

// Matches reports whether the state satisfies every set filter field.
func (f ListFilter) Matches(s State) bool {
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	if f.DeviceID != "" && s.DeviceID != f.DeviceID {
		return false
	}
	return true
}

// Store is the persistence boundary. Implementations must be safe for
// concurrent use.
type Store interface {
	// Save creates or replaces the record for state.ID.
	Save(ctx context.Context, state State) error
	// Get fetches one session, ErrSessionNotFound when absent.
	Get(ctx context.Context, id string) (State, error)
	// List returns sessions matching the filter, newest first.
	List(ctx context.Context, filter ListFilter) ([]State, error)
	// Delete removes a session. Deleting an absent id is not an error.
	Delete(ctx context.Context, id string) error
	// DeleteOlderThan removes terminal sessions whose last update is older
	// than the cutoff, returning how many were removed. Live sessions are
	// never cleaned up.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
	// Close releases backend resources.
	Close() error
}
