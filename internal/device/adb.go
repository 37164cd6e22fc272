// internal/device/adb.go
package device

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Safphere/OMG-Agent/internal/config"
)

// Android keyevent codes used by the controller.
const (
	keycodeHome  = 3
	keycodeBack  = 4
	keycodePower = 26
)

var (
	physicalSizeRegex    = regexp.MustCompile(`Physical size:\s*(\d+)x(\d+)`)
	resumedActivityRegex = regexp.MustCompile(`mResumedActivity.*?\s([\w.]+)/[\w.$]+`)
	displayStateRegex    = regexp.MustCompile(`state=(ON|OFF)`)
)

// ADB drives a single Android device through the adb binary. One instance is
// bound to one device serial; the cached screen size must not be shared across
// devices.
type ADB struct {
	path    string
	serial  string
	timeout time.Duration
	logger  *zap.Logger

	maxSide int
	quality int
}

var (
	_ Controller         = (*ADB)(nil)
	_ Inspector          = (*ADB)(nil)
	_ ScreenshotProvider = (*ADB)(nil)
)

// NewADB builds an ADB controller for the configured device. An empty serial
// targets the only connected device.
func NewADB(cfg config.DeviceConfig, logger *zap.Logger) *ADB {
	path := cfg.ADBPath
	if path == "" {
		path = "adb"
	}
	timeout := cfg.CommandTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxSide := cfg.ScreenshotMaxSide
	if maxSide <= 0 {
		maxSide = 1280
	}
	quality := cfg.ScreenshotQuality
	if quality <= 0 || quality > 100 {
		quality = 80
	}
	return &ADB{
		path:    path,
		serial:  cfg.Serial,
		timeout: timeout,
		maxSide: maxSide,
		quality: quality,
		logger:  logger.Named("device.adb"),
	}
}

// Serial returns the device serial this controller is bound to.
func (a *ADB) Serial() string { return a.serial }

// run executes one adb command with the per-command timeout and returns its
// combined stdout.
func (a *ADB) run(ctx context.Context, args ...string) ([]byte, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	full := make([]string, 0, len(args)+2)
	if a.serial != "" {
		full = append(full, "-s", a.serial)
	}
	full = append(full, args...)

	cmd := exec.CommandContext(cmdCtx, a.path, full...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	a.logger.Debug("Executing adb command", zap.Strings("args", full))
	if err := cmd.Run(); err != nil {
		if cmdCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("adb %s timed out after %s", args[0], a.timeout)
		}
		return nil, fmt.Errorf("adb %s failed: %w (stderr: %s)", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

func (a *ADB) shell(ctx context.Context, args ...string) ([]byte, error) {
	return a.run(ctx, append([]string{"shell"}, args...)...)
}

// Tap issues a single tap at device pixel coordinates.
func (a *ADB) Tap(ctx context.Context, x, y int) error {
	_, err := a.shell(ctx, "input", "tap", strconv.Itoa(x), strconv.Itoa(y))
	return err
}

// DoubleTap issues two taps in quick succession.
func (a *ADB) DoubleTap(ctx context.Context, x, y int) error {
	if err := a.Tap(ctx, x, y); err != nil {
		return err
	}
	time.Sleep(100 * time.Millisecond)
	return a.Tap(ctx, x, y)
}

// LongPress holds a touch by swiping in place for the given duration.
func (a *ADB) LongPress(ctx context.Context, x, y int, duration time.Duration) error {
	if duration <= 0 {
		duration = time.Second
	}
	xs, ys := strconv.Itoa(x), strconv.Itoa(y)
	_, err := a.shell(ctx, "input", "swipe", xs, ys, xs, ys, strconv.Itoa(int(duration.Milliseconds())))
	return err
}

// Swipe drags from one point to another over the given duration.
func (a *ADB) Swipe(ctx context.Context, x1, y1, x2, y2 int, duration time.Duration) error {
	if duration <= 0 {
		duration = 300 * time.Millisecond
	}
	_, err := a.shell(ctx, "input", "swipe",
		strconv.Itoa(x1), strconv.Itoa(y1),
		strconv.Itoa(x2), strconv.Itoa(y2),
		strconv.Itoa(int(duration.Milliseconds())))
	return err
}

// TypeText types a string through the shell input pipeline. Spaces need the
// %s escape; everything else is passed through quoted.
func (a *ADB) TypeText(ctx context.Context, text string) error {
	escaped := strings.ReplaceAll(text, " ", "%s")
	_, err := a.shell(ctx, "input", "text", escaped)
	return err
}

// PressBack sends the BACK key.
func (a *ADB) PressBack(ctx context.Context) error {
	_, err := a.shell(ctx, "input", "keyevent", strconv.Itoa(keycodeBack))
	return err
}

// PressHome sends the HOME key.
func (a *ADB) PressHome(ctx context.Context) error {
	_, err := a.shell(ctx, "input", "keyevent", strconv.Itoa(keycodeHome))
	return err
}

// LaunchApp starts the package's launcher activity via monkey, which does not
// require knowing the activity name.
func (a *ADB) LaunchApp(ctx context.Context, pkg string) error {
	out, err := a.shell(ctx, "monkey", "-p", pkg, "-c", "android.intent.category.LAUNCHER", "1")
	if err != nil {
		return err
	}
	if strings.Contains(string(out), "No activities found") {
		return fmt.Errorf("no launchable activity for package %q", pkg)
	}
	return nil
}

// ScreenSize queries the physical resolution from wm.
func (a *ADB) ScreenSize(ctx context.Context) (int, int, error) {
	out, err := a.shell(ctx, "wm", "size")
	if err != nil {
		return 0, 0, err
	}
	m := physicalSizeRegex.FindStringSubmatch(string(out))
	if m == nil {
		return 0, 0, ErrScreenSizeUnavailable
	}
	w, _ := strconv.Atoi(m[1])
	h, _ := strconv.Atoi(m[2])
	return w, h, nil
}

// ForegroundApp parses the resumed activity's package from dumpsys.
func (a *ADB) ForegroundApp(ctx context.Context) (string, error) {
	out, err := a.shell(ctx, "dumpsys", "activity", "activities")
	if err != nil {
		return "", err
	}
	m := resumedActivityRegex.FindStringSubmatch(string(out))
	if m == nil {
		return "", nil
	}
	return m[1], nil
}

// ScreenOn reports the display power state from dumpsys.
func (a *ADB) ScreenOn(ctx context.Context) (bool, error) {
	out, err := a.shell(ctx, "dumpsys", "power")
	if err != nil {
		return false, err
	}
	m := displayStateRegex.FindStringSubmatch(string(out))
	if m == nil {
		// Fall back to assuming on; a wrong guess only costs a wake attempt.
		return true, nil
	}
	return m[1] == "ON", nil
}

// Wake powers the screen on and swipes up to dismiss a non-secure lockscreen.
func (a *ADB) Wake(ctx context.Context) error {
	on, err := a.ScreenOn(ctx)
	if err != nil {
		return err
	}
	if !on {
		if _, err := a.shell(ctx, "input", "keyevent", strconv.Itoa(keycodePower)); err != nil {
			return err
		}
		time.Sleep(500 * time.Millisecond)
	}
	w, h, err := a.ScreenSize(ctx)
	if err != nil {
		return err
	}
	// Swipe up from the bottom third to the top third.
	return a.Swipe(ctx, w/2, h*2/3, w/2, h/3, 300*time.Millisecond)
}

// ListDevices returns the serials of all connected devices in "device" state.
func ListDevices(ctx context.Context, adbPath string, timeout time.Duration) ([]string, error) {
	if adbPath == "" {
		adbPath = "adb"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := exec.CommandContext(cmdCtx, adbPath, "devices").Output()
	if err != nil {
		return nil, fmt.Errorf("adb devices failed: %w", err)
	}

	var serials []string
	for _, line := range strings.Split(string(out), "\n")[1:] {
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[1] == "device" {
			serials = append(serials, fields[0])
		}
	}
	return serials, nil
}
