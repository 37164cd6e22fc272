// internal/device/device.go

// Package device provides the Android automation boundary: an explicit
// controller interface over the raw input primitives, an ADB-shell backed
// implementation, screenshot capture, and app-name resolution.
package device

import (
	"context"
	"errors"
	"time"
)

// ErrScreenSizeUnavailable is returned when the device does not report a
// physical screen size.
var ErrScreenSizeUnavailable = errors.New("device screen size unavailable")

// Controller is the capability set the agent needs from a device. All
// coordinates are device pixels; normalized-point resolution happens in the
// action handler, never here.
type Controller interface {
	Tap(ctx context.Context, x, y int) error
	DoubleTap(ctx context.Context, x, y int) error
	LongPress(ctx context.Context, x, y int, duration time.Duration) error
	Swipe(ctx context.Context, x1, y1, x2, y2 int, duration time.Duration) error
	TypeText(ctx context.Context, text string) error
	PressBack(ctx context.Context) error
	PressHome(ctx context.Context) error
	LaunchApp(ctx context.Context, pkg string) error
	// ScreenSize reports the physical resolution in pixels.
	ScreenSize(ctx context.Context) (width, height int, err error)
}

// Inspector exposes the read-only device state the control loop observes
// between steps.
type Inspector interface {
	// ForegroundApp returns the package name of the resumed activity, or ""
	// when it cannot be determined.
	ForegroundApp(ctx context.Context) (string, error)
	// ScreenOn reports whether the display is powered.
	ScreenOn(ctx context.Context) (bool, error)
	// Wake turns the screen on and dismisses the lockscreen with a swipe.
	Wake(ctx context.Context) error
}

// Screenshot is one captured frame, already resized and encoded for an LLM
// payload. Width and Height are the dimensions after resizing.
type Screenshot struct {
	DataURL string
	Width   int
	Height  int
}

// ScreenshotProvider captures the current screen contents.
type ScreenshotProvider interface {
	CaptureScreenshot(ctx context.Context) (Screenshot, error)
}
