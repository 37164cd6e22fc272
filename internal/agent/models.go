// internal/agent/models.go
package agent

import (
	"fmt"
	"time"
)

// ActionType is an enumeration of every action the model can ask the agent to
// perform. This provides a structured vocabulary for the agent's capabilities.
type ActionType string

const (
	// -- Device interaction --
	ActionClick     ActionType = "CLICK"      // Taps a point on the screen.
	ActionDoubleTap ActionType = "DOUBLE_TAP" // Taps the same point twice.
	ActionLongPress ActionType = "LONG_PRESS" // Holds a touch at a point.
	ActionSwipe     ActionType = "SWIPE"      // Drags between two points or in a direction.
	ActionTypeText  ActionType = "TYPE"       // Types text into the focused field.
	ActionBack      ActionType = "BACK"       // Presses the system back key.
	ActionHome      ActionType = "HOME"       // Returns to the home screen.
	ActionLaunch    ActionType = "LAUNCH"     // Launches an app by name or package.
	ActionWait      ActionType = "WAIT"       // Sleeps for a beat and re-observes.

	// -- Control flow --
	ActionInfo     ActionType = "INFO"      // Asks the user a question.
	ActionComplete ActionType = "COMPLETE"  // Declares the task finished.
	ActionAbort    ActionType = "ABORT"     // Gives up on the task.
	ActionTakeOver ActionType = "TAKE_OVER" // Hands control to the human.
	ActionNote     ActionType = "NOTE"      // Records an observation, no device effect.
)

// SwipeDirection is the single-point form of a swipe.
type SwipeDirection string

const (
	SwipeUp    SwipeDirection = "up"
	SwipeDown  SwipeDirection = "down"
	SwipeLeft  SwipeDirection = "left"
	SwipeRight SwipeDirection = "right"
)

// coordSpan is the inclusive upper bound of the normalized coordinate space.
const coordSpan = 1000

// Point is a screen position normalized to [0,1000] on both axes, independent
// of device resolution. Conversion to device pixels happens only at execution
// time.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// NewPoint constructs a normalized point, failing when either component falls
// outside [0,1000].
func NewPoint(x, y int) (Point, error) {
	if x < 0 || x > coordSpan || y < 0 || y > coordSpan {
		return Point{}, fmt.Errorf("point (%d,%d) outside normalized range [0,%d]", x, y, coordSpan)
	}
	return Point{X: x, Y: y}, nil
}

// ToPixels resolves the normalized point against a device resolution.
func (p Point) ToPixels(width, height int) (int, int) {
	return p.X * width / coordSpan, p.Y * height / coordSpan
}

// Clamp snaps each component into the normalized range.
func (p Point) Clamp() Point {
	if p.X < 0 {
		p.X = 0
	} else if p.X > coordSpan {
		p.X = coordSpan
	}
	if p.Y < 0 {
		p.Y = 0
	} else if p.Y > coordSpan {
		p.Y = coordSpan
	}
	return p
}

// InRange reports whether both components lie in the normalized range.
func (p Point) InRange() bool {
	return p.X >= 0 && p.X <= coordSpan && p.Y >= 0 && p.Y <= coordSpan
}

// Action is one concrete step decided by the model. Construction never fails;
// validating an Action against the parameter schema can (see Validate).
type Action struct {
	// Kind selects the parameter contract in the action space table.
	Kind ActionType `json:"action"`

	// Reasoning is the model's chain of thought, possibly empty. It is kept
	// out of the serialized parameter set.
	Reasoning string `json:"-"`

	// Explanation is the short human-readable purpose of the step.
	Explanation string `json:"explain,omitempty"`

	// Summary is the rolling note recorded into history.
	Summary string `json:"summary,omitempty"`

	// Params holds the kind-specific parameters. Point-valued keys ("point",
	// "point1", "point2") hold Point; everything else holds strings.
	Params map[string]any `json:"params,omitempty"`
}

// NewAction builds an action of the given kind with an empty parameter set.
func NewAction(kind ActionType) Action {
	return Action{Kind: kind, Params: map[string]any{}}
}

// WithParam returns a copy of the action with one parameter set.
func (a Action) WithParam(key string, value any) Action {
	params := make(map[string]any, len(a.Params)+1)
	for k, v := range a.Params {
		params[k] = v
	}
	params[key] = value
	a.Params = params
	return a
}

// Point extracts a Point parameter by key.
func (a Action) Point(key string) (Point, bool) {
	v, ok := a.Params[key]
	if !ok {
		return Point{}, false
	}
	p, ok := v.(Point)
	return p, ok
}

// StringParam extracts a string parameter by key, stringifying non-string
// values the parser preserved verbatim.
func (a Action) StringParam(key string) (string, bool) {
	v, ok := a.Params[key]
	if !ok {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return fmt.Sprintf("%v", v), true
}

// ActionResult reports the outcome of executing one action.
type ActionResult struct {
	Success           bool   `json:"success"`
	ShouldFinish      bool   `json:"should_finish"`
	Message           string `json:"message,omitempty"`
	RequiresUserInput bool   `json:"requires_user_input,omitempty"`
	UserPrompt        string `json:"user_prompt,omitempty"`
}

// HistoryEntry is one step record in the task's audit trail. Entries are
// immutable once appended.
type HistoryEntry struct {
	Step        int       `json:"step"` // 1-based, monotonically increasing.
	Action      Action    `json:"action"`
	Observation string    `json:"observation,omitempty"`
	Screenshot  string    `json:"-"` // data URL, never persisted with the entry
	UserReply   string    `json:"user_reply,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	SubTaskID   int       `json:"sub_task_id,omitempty"` // 0 when no plan item is active.
}

// StopReason classifies how a run ended.
type StopReason string

const (
	StopCompleted StopReason = "completed"
	StopAborted   StopReason = "aborted"
	StopMaxSteps  StopReason = "max_steps"
	StopError     StopReason = "error"
	StopPaused    StopReason = "paused"
	StopScreenOff StopReason = "screen_off"
)

// RunResult is the terminal outcome of one control loop run. It carries
// enough to debug the run without replaying it.
type RunResult struct {
	Success    bool       `json:"success"`
	StopReason StopReason `json:"stop_reason"`
	Message    string     `json:"message,omitempty"`
	Steps      int        `json:"steps"`
	LastAction *Action    `json:"last_action,omitempty"`
	SessionID  string     `json:"session_id,omitempty"`
}
