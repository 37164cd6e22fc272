package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeController records dispatched primitives and can be armed to fail.
type fakeController struct {
	calls   []string
	width   int
	height  int
	sizeErr error
	failAll error
}

func newFakeController() *fakeController {
	return &fakeController{width: 1000, height: 2000}
}

func (f *fakeController) record(format string, args ...any) error {
	if f.failAll != nil {
		return f.failAll
	}
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
	return nil
}

func (f *fakeController) Tap(_ context.Context, x, y int) error {
	return f.record("tap %d %d", x, y)
}
func (f *fakeController) DoubleTap(_ context.Context, x, y int) error {
	return f.record("doubletap %d %d", x, y)
}
func (f *fakeController) LongPress(_ context.Context, x, y int, d time.Duration) error {
	return f.record("longpress %d %d %s", x, y, d)
}
func (f *fakeController) Swipe(_ context.Context, x1, y1, x2, y2 int, d time.Duration) error {
	return f.record("swipe %d %d %d %d", x1, y1, x2, y2)
}
func (f *fakeController) TypeText(_ context.Context, text string) error {
	return f.record("type %s", text)
}
func (f *fakeController) PressBack(_ context.Context) error  { return f.record("back") }
func (f *fakeController) PressHome(_ context.Context) error  { return f.record("home") }
func (f *fakeController) LaunchApp(_ context.Context, pkg string) error {
	return f.record("launch %s", pkg)
}
func (f *fakeController) ScreenSize(_ context.Context) (int, int, error) {
	return f.width, f.height, f.sizeErr
}

func TestHandlerCoordinateConversion(t *testing.T) {
	t.Parallel()
	ctrl := newFakeController()
	h := NewHandler(ctrl, Callbacks{}, zaptest.NewLogger(t))

	res := h.Execute(context.Background(), tapAt(500, 250))
	require.True(t, res.Success)
	// 500/1000 of 1000 wide, 250/1000 of 2000 tall.
	assert.Equal(t, []string{"tap 500 500"}, ctrl.calls)
}

func TestHandlerSwipeDirectionForm(t *testing.T) {
	t.Parallel()
	ctrl := newFakeController()
	h := NewHandler(ctrl, Callbacks{}, zaptest.NewLogger(t))

	swipe := NewAction(ActionSwipe).
		WithParam("point", Point{X: 500, Y: 800}).
		WithParam("direction", "up")
	res := h.Execute(context.Background(), swipe)
	require.True(t, res.Success, res.Message)
	// Up moves the endpoint 300 normalized units toward y=0.
	assert.Equal(t, []string{"swipe 500 1600 500 1000"}, ctrl.calls)
}

func TestHandlerSwipeDirectionCaseInsensitive(t *testing.T) {
	t.Parallel()
	ctrl := newFakeController()
	h := NewHandler(ctrl, Callbacks{}, zaptest.NewLogger(t))

	// Validation accepts mixed-case directions, so dispatch must too.
	for _, dir := range []string{"Up", "UP", "uP"} {
		swipe := NewAction(ActionSwipe).
			WithParam("point", Point{X: 500, Y: 800}).
			WithParam("direction", dir)
		ok, reason := Validate(swipe)
		require.True(t, ok, reason)
		res := h.Execute(context.Background(), swipe)
		require.True(t, res.Success, res.Message)
	}
	assert.Equal(t, []string{
		"swipe 500 1600 500 1000",
		"swipe 500 1600 500 1000",
		"swipe 500 1600 500 1000",
	}, ctrl.calls)
}

func TestHandlerSwipeDirectionClampsAtEdge(t *testing.T) {
	t.Parallel()
	ctrl := newFakeController()
	h := NewHandler(ctrl, Callbacks{}, zaptest.NewLogger(t))

	swipe := NewAction(ActionSwipe).
		WithParam("point", Point{X: 500, Y: 100}).
		WithParam("direction", "up")
	res := h.Execute(context.Background(), swipe)
	require.True(t, res.Success)
	assert.Equal(t, []string{"swipe 500 200 500 0"}, ctrl.calls)
}

func TestHandlerControlFlowBypassesBackend(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		action Action
		check  func(t *testing.T, res ActionResult)
	}{
		{
			"complete finishes",
			NewAction(ActionComplete).WithParam("message", "done"),
			func(t *testing.T, res ActionResult) {
				assert.True(t, res.Success)
				assert.True(t, res.ShouldFinish)
				assert.Equal(t, "done", res.Message)
			},
		},
		{
			"abort finishes unsuccessfully",
			NewAction(ActionAbort).WithParam("message", "stuck"),
			func(t *testing.T, res ActionResult) {
				assert.False(t, res.Success)
				assert.True(t, res.ShouldFinish)
				assert.Equal(t, "stuck", res.Message)
			},
		},
		{
			"info requires user input",
			NewAction(ActionInfo).WithParam("message", "which account?"),
			func(t *testing.T, res ActionResult) {
				assert.True(t, res.Success)
				assert.False(t, res.ShouldFinish)
				assert.True(t, res.RequiresUserInput)
				assert.Equal(t, "which account?", res.UserPrompt)
			},
		},
		{
			"note is a no-op",
			NewAction(ActionNote).WithParam("message", "price is 1299"),
			func(t *testing.T, res ActionResult) {
				assert.True(t, res.Success)
				assert.False(t, res.ShouldFinish)
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := newFakeController()
			h := NewHandler(ctrl, Callbacks{}, zaptest.NewLogger(t))
			res := h.Execute(context.Background(), tt.action)
			tt.check(t, res)
			assert.Empty(t, ctrl.calls, "control-flow actions must not touch the device")
		})
	}
}

func TestHandlerTakeOverInvokesCallbackAndContinues(t *testing.T) {
	t.Parallel()
	ctrl := newFakeController()
	invoked := ""
	h := NewHandler(ctrl, Callbacks{TakeOver: func(msg string) { invoked = msg }}, zaptest.NewLogger(t))

	res := h.Execute(context.Background(), NewAction(ActionTakeOver).WithParam("message", "solve the captcha"))
	assert.True(t, res.Success)
	assert.False(t, res.ShouldFinish)
	assert.Equal(t, "solve the captcha", invoked)
	assert.Empty(t, ctrl.calls)
}

func TestHandlerSensitiveTapConfirmation(t *testing.T) {
	t.Parallel()

	sensitive := tapAt(500, 500).WithParam("message", "this will pay 99 yuan")

	t.Run("declined", func(t *testing.T) {
		t.Parallel()
		ctrl := newFakeController()
		h := NewHandler(ctrl, Callbacks{Confirm: func(string) bool { return false }}, zaptest.NewLogger(t))

		res := h.Execute(context.Background(), sensitive)
		assert.False(t, res.Success)
		assert.True(t, res.ShouldFinish)
		assert.Contains(t, res.Message, "cancelled")
		assert.Empty(t, ctrl.calls, "declined tap must not be dispatched")
	})

	t.Run("approved", func(t *testing.T) {
		t.Parallel()
		ctrl := newFakeController()
		h := NewHandler(ctrl, Callbacks{Confirm: func(string) bool { return true }}, zaptest.NewLogger(t))

		res := h.Execute(context.Background(), sensitive)
		assert.True(t, res.Success)
		assert.Len(t, ctrl.calls, 1)
	})
}

func TestHandlerBackendErrorIsNonFatal(t *testing.T) {
	t.Parallel()
	ctrl := newFakeController()
	ctrl.failAll = errors.New("device went away")
	h := NewHandler(ctrl, Callbacks{}, zaptest.NewLogger(t))

	res := h.Execute(context.Background(), tapAt(10, 10))
	assert.False(t, res.Success)
	assert.False(t, res.ShouldFinish, "backend failures must not end the run")
	assert.Contains(t, res.Message, "device went away")
}

func TestHandlerLaunchResolvesAppName(t *testing.T) {
	t.Parallel()
	ctrl := newFakeController()
	h := NewHandler(ctrl, Callbacks{}, zaptest.NewLogger(t))

	res := h.Execute(context.Background(), NewAction(ActionLaunch).WithParam("app", "settings"))
	require.True(t, res.Success)
	assert.Equal(t, []string{"launch com.android.settings"}, ctrl.calls)

	res = h.Execute(context.Background(), NewAction(ActionLaunch).WithParam("app", "no such app"))
	assert.False(t, res.Success)
	assert.False(t, res.ShouldFinish)
}

func TestHandlerScreenSizeCachedOnce(t *testing.T) {
	t.Parallel()
	ctrl := newFakeController()
	h := NewHandler(ctrl, Callbacks{}, zaptest.NewLogger(t))

	require.True(t, h.Execute(context.Background(), tapAt(1, 1)).Success)

	// A later resolution failure cannot happen: the first answer is reused.
	ctrl.sizeErr = errors.New("wm size unavailable")
	res := h.Execute(context.Background(), tapAt(2, 2))
	assert.True(t, res.Success)
}
