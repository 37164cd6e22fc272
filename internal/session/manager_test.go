package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(newTestFileStore(t), zaptest.NewLogger(t))
}

func TestManagerCreateAssignsShortID(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)

	state, err := m.Create(context.Background(), "buy milk", "emulator-5554")
	require.NoError(t, err)
	assert.Len(t, state.ID, 8)
	assert.Equal(t, StatusRunning, state.Status)
	assert.Equal(t, "buy milk", state.Task)
	assert.False(t, state.CreatedAt.IsZero())
}

func TestManagerPauseResumeRoundTrip(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)
	ctx := context.Background()

	created, err := m.Create(ctx, "log into the bank app", "")
	require.NoError(t, err)

	paused, err := m.Pause(ctx, created.ID, "enter the 2FA code")
	require.NoError(t, err)
	assert.Equal(t, StatusPaused, paused.Status)
	assert.Equal(t, "enter the 2FA code", paused.PendingQuestion)

	resumed, err := m.Resume(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, resumed.Status)
	assert.Empty(t, resumed.PendingQuestion, "resume must clear the pending question")

	// And the cleared question is what persists.
	got, err := m.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Empty(t, got.PendingQuestion)
	assert.Equal(t, StatusRunning, got.Status)
}

func TestManagerInvalidTransitions(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)
	ctx := context.Background()

	created, err := m.Create(ctx, "task", "")
	require.NoError(t, err)

	// Resume requires Paused.
	_, err = m.Resume(ctx, created.ID)
	assert.Error(t, err)

	_, err = m.Complete(ctx, created.ID, "done")
	require.NoError(t, err)

	// Terminal states accept no further transitions.
	_, err = m.Pause(ctx, created.ID, "q")
	assert.Error(t, err)
	_, err = m.Abort(ctx, created.ID, "late")
	assert.Error(t, err)
}

func TestManagerTouchRecordsProgress(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)
	ctx := context.Background()

	created, err := m.Create(ctx, "task", "")
	require.NoError(t, err)

	updated, err := m.Touch(ctx, created.ID, 7, "halfway there")
	require.NoError(t, err)
	assert.Equal(t, 7, updated.StepCount)
	assert.Equal(t, "halfway there", updated.Summary)

	// An empty summary does not erase the previous one.
	updated, err = m.Touch(ctx, created.ID, 8, "")
	require.NoError(t, err)
	assert.Equal(t, 8, updated.StepCount)
	assert.Equal(t, "halfway there", updated.Summary)
}

func TestManagerCleanupOlderThan(t *testing.T) {
	t.Parallel()
	store := newTestFileStore(t)
	m := NewManager(store, zaptest.NewLogger(t))
	ctx := context.Background()

	stale := sampleState("stale222", StatusAborted)
	stale.UpdatedAt = time.Now().UTC().Add(-72 * time.Hour)
	require.NoError(t, store.Save(ctx, stale))

	removed, err := m.CleanupOlderThan(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestNewSessionIDShape(t *testing.T) {
	t.Parallel()

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := NewSessionID()
		assert.Len(t, id, 8)
		assert.Regexp(t, `^[0-9a-f-]{8}$`, id)
		seen[id] = true
	}
	assert.Greater(t, len(seen), 90, "ids must be effectively unique")
}
