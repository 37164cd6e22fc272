// internal/device/screenshot.go
package device

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // screencap emits PNG

	"go.uber.org/zap"
)

// CaptureScreenshot grabs the current frame with screencap, downscales it so
// the longest side fits the configured cap, and re-encodes it as a JPEG data
// URL sized for an LLM payload.
func (a *ADB) CaptureScreenshot(ctx context.Context) (Screenshot, error) {
	// exec-out avoids the CR/LF mangling "shell screencap" is prone to.
	raw, err := a.run(ctx, "exec-out", "screencap", "-p")
	if err != nil {
		return Screenshot{}, fmt.Errorf("screencap failed: %w", err)
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return Screenshot{}, fmt.Errorf("failed to decode screenshot: %w", err)
	}

	img = downscale(img, a.maxSide)
	bounds := img.Bounds()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: a.quality}); err != nil {
		return Screenshot{}, fmt.Errorf("failed to encode screenshot: %w", err)
	}

	a.logger.Debug("Captured screenshot",
		zap.Int("width", bounds.Dx()),
		zap.Int("height", bounds.Dy()),
		zap.Int("bytes", buf.Len()),
	)

	return Screenshot{
		DataURL: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
		Width:   bounds.Dx(),
		Height:  bounds.Dy(),
	}, nil
}

// downscale shrinks img so its longest side is at most maxSide, using
// nearest-neighbor sampling. Images already within the cap pass through.
func downscale(img image.Image, maxSide int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	longest := w
	if h > longest {
		longest = h
	}
	if maxSide <= 0 || longest <= maxSide {
		return img
	}

	scale := float64(maxSide) / float64(longest)
	nw := int(float64(w) * scale)
	nh := int(float64(h) * scale)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	for y := 0; y < nh; y++ {
		sy := bounds.Min.Y + y*h/nh
		for x := 0; x < nw; x++ {
			sx := bounds.Min.X + x*w/nw
			dst.Set(x, y, img.At(sx, sy))
		}
	}
	return dst
}
