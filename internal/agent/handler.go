// internal/agent/handler.go
package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Safphere/OMG-Agent/internal/device"
)

const (
	longPressDuration = 1 * time.Second
	swipeDuration     = 300 * time.Millisecond
	// swipeDistance is the default directional swipe length in normalized
	// units.
	swipeDistance = 300
)

// Callbacks are the human-interaction hooks the executor invokes for
// confirmation, takeover, and question actions. Console and GUI frontends
// substitute their own implementations. Nil hooks degrade safely: Confirm
// approves, TakeOver is skipped, AskInfo returns "".
type Callbacks struct {
	Confirm  func(message string) bool
	TakeOver func(message string)
	AskInfo  func(prompt string) string
}

func (c Callbacks) confirm(message string) bool {
	if c.Confirm == nil {
		return true
	}
	return c.Confirm(message)
}

func (c Callbacks) takeOver(message string) {
	if c.TakeOver != nil {
		c.TakeOver(message)
	}
}

// Handler executes parsed actions against a device controller. Point
// parameters arrive normalized to [0,1000] and are resolved against the
// cached physical screen size at dispatch time.
type Handler struct {
	controller device.Controller
	callbacks  Callbacks
	logger     *zap.Logger

	sizeOnce sync.Once
	width    int
	height   int
	sizeErr  error
}

// NewHandler builds an action handler around a device controller.
func NewHandler(controller device.Controller, callbacks Callbacks, logger *zap.Logger) *Handler {
	return &Handler{
		controller: controller,
		callbacks:  callbacks,
		logger:     logger.Named("handler"),
	}
}

// screenSize queries the device resolution once and reuses it for every
// subsequent coordinate conversion.
func (h *Handler) screenSize(ctx context.Context) (int, int, error) {
	h.sizeOnce.Do(func() {
		h.width, h.height, h.sizeErr = h.controller.ScreenSize(ctx)
		if h.sizeErr == nil {
			h.logger.Debug("Screen size cached",
				zap.Int("width", h.width), zap.Int("height", h.height))
		}
	})
	return h.width, h.height, h.sizeErr
}

// Execute dispatches one action. Control-flow kinds never touch the device;
// backend errors on concrete kinds come back as failed, non-fatal results so
// the run can continue.
func (h *Handler) Execute(ctx context.Context, action Action) ActionResult {
	switch action.Kind {
	case ActionComplete:
		msg, _ := action.StringParam("message")
		return ActionResult{Success: true, ShouldFinish: true, Message: msg}

	case ActionAbort:
		msg, _ := action.StringParam("message")
		if msg == "" {
			msg = "task aborted"
		}
		return ActionResult{Success: false, ShouldFinish: true, Message: msg}

	case ActionInfo:
		prompt, _ := action.StringParam("message")
		return ActionResult{
			Success:           true,
			RequiresUserInput: true,
			UserPrompt:        prompt,
			Message:           "waiting for user input",
		}

	case ActionTakeOver:
		msg, _ := action.StringParam("message")
		h.callbacks.takeOver(msg)
		return ActionResult{Success: true, Message: "control handed to user"}

	case ActionNote:
		msg, _ := action.StringParam("message")
		return ActionResult{Success: true, Message: msg}

	case ActionWait:
		return ActionResult{Success: true, Message: "waiting"}
	}

	// A tap carrying an explicit message is treated as sensitive and routed
	// through the confirmation hook before dispatch.
	if action.Kind == ActionClick {
		if msg, ok := action.StringParam("message"); ok && msg != "" {
			if !h.callbacks.confirm(msg) {
				h.logger.Info("Sensitive tap declined by user", zap.String("message", msg))
				return ActionResult{
					Success:      false,
					ShouldFinish: true,
					Message:      fmt.Sprintf("cancelled by user: %s", msg),
				}
			}
		}
	}

	if err := h.dispatch(ctx, action); err != nil {
		h.logger.Warn("Action dispatch failed",
			zap.String("action", string(action.Kind)), zap.Error(err))
		return ActionResult{Success: false, Message: err.Error()}
	}
	return ActionResult{Success: true, Message: fmt.Sprintf("%s executed", action.Kind)}
}

func (h *Handler) dispatch(ctx context.Context, action Action) error {
	switch action.Kind {
	case ActionClick:
		x, y, err := h.resolvePoint(ctx, action, "point")
		if err != nil {
			return err
		}
		return h.controller.Tap(ctx, x, y)

	case ActionDoubleTap:
		x, y, err := h.resolvePoint(ctx, action, "point")
		if err != nil {
			return err
		}
		return h.controller.DoubleTap(ctx, x, y)

	case ActionLongPress:
		x, y, err := h.resolvePoint(ctx, action, "point")
		if err != nil {
			return err
		}
		return h.controller.LongPress(ctx, x, y, longPressDuration)

	case ActionSwipe:
		return h.dispatchSwipe(ctx, action)

	case ActionTypeText:
		text, ok := action.StringParam("text")
		if !ok {
			return fmt.Errorf("type action missing text parameter")
		}
		return h.controller.TypeText(ctx, text)

	case ActionBack:
		return h.controller.PressBack(ctx)

	case ActionHome:
		return h.controller.PressHome(ctx)

	case ActionLaunch:
		name, ok := action.StringParam("app")
		if !ok {
			return fmt.Errorf("launch action missing app parameter")
		}
		pkg, ok := device.ResolvePackage(name)
		if !ok {
			return fmt.Errorf("unknown app %q", name)
		}
		return h.controller.LaunchApp(ctx, pkg)

	default:
		return fmt.Errorf("unsupported action kind %q", action.Kind)
	}
}

// dispatchSwipe handles both swipe forms: explicit endpoints, or an origin
// plus a direction that is extended by a fixed normalized distance.
func (h *Handler) dispatchSwipe(ctx context.Context, action Action) error {
	if p1, ok := action.Point("point1"); ok {
		p2, ok := action.Point("point2")
		if !ok {
			return fmt.Errorf("swipe action has point1 but no point2")
		}
		x1, y1, x2, y2, err := h.resolvePair(ctx, p1, p2)
		if err != nil {
			return err
		}
		return h.controller.Swipe(ctx, x1, y1, x2, y2, swipeDuration)
	}

	origin, ok := action.Point("point")
	if !ok {
		return fmt.Errorf("swipe action missing point parameters")
	}
	dir, _ := action.StringParam("direction")
	target := origin
	switch SwipeDirection(strings.ToLower(dir)) {
	case SwipeUp:
		target.Y -= swipeDistance
	case SwipeDown:
		target.Y += swipeDistance
	case SwipeLeft:
		target.X -= swipeDistance
	case SwipeRight:
		target.X += swipeDistance
	default:
		return fmt.Errorf("swipe action has invalid direction %q", dir)
	}
	target = target.Clamp()

	x1, y1, x2, y2, err := h.resolvePair(ctx, origin, target)
	if err != nil {
		return err
	}
	return h.controller.Swipe(ctx, x1, y1, x2, y2, swipeDuration)
}

func (h *Handler) resolvePoint(ctx context.Context, action Action, key string) (int, int, error) {
	p, ok := action.Point(key)
	if !ok {
		return 0, 0, fmt.Errorf("%s action missing %s parameter", action.Kind, key)
	}
	w, hgt, err := h.screenSize(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("resolving %s: %w", key, err)
	}
	x, y := p.ToPixels(w, hgt)
	return x, y, nil
}

func (h *Handler) resolvePair(ctx context.Context, p1, p2 Point) (int, int, int, int, error) {
	w, hgt, err := h.screenSize(ctx)
	if err != nil {
		return 0, 0, 0, 0, fmt.Errorf("resolving swipe points: %w", err)
	}
	x1, y1 := p1.ToPixels(w, hgt)
	x2, y2 := p2.ToPixels(w, hgt)
	return x1, y1, x2, y2, nil
}
