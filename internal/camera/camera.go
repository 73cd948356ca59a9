// Package camera reads a local capture device through OpenCV and exposes the
// most recent frame as a capture source.
package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/rommelskii/foundation/internal/logger"
	"github.com/rommelskii/foundation/pkg/types"
)

// ErrClosed is returned by Run after Close.
var ErrClosed = errors.New("camera closed")

// Camera wraps an OpenCV capture device.
type Camera struct {
	deviceID string
	want     types.Size

	mu      sync.RWMutex
	latest  image.Image
	size    types.Size
	frames  uint64
	capture *gocv.VideoCapture
	running bool
	closed  bool
}

// Open opens the device named by deviceID (an index such as "0" or a
// path/URL understood by OpenCV) and requests the given resolution.
func Open(deviceID string, want types.Size) (*Camera, error) {
	vc, err := gocv.OpenVideoCapture(deviceID)
	if err != nil {
		return nil, fmt.Errorf("open device %q: %w", deviceID, err)
	}
	if !want.Empty() {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(want.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(want.Height))
	}

	logger.Info("Camera", "Opened device %q (requested %dx%d, got %.0fx%.0f)",
		deviceID, want.Width, want.Height,
		vc.Get(gocv.VideoCaptureFrameWidth), vc.Get(gocv.VideoCaptureFrameHeight))

	return &Camera{
		deviceID: deviceID,
		want:     want,
		capture:  vc,
	}, nil
}

// Run reads frames until ctx is cancelled or the camera is closed.
func (c *Camera) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.running = true
	c.mu.Unlock()
	defer c.release()

	mat := gocv.NewMat()
	defer mat.Close()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		c.mu.RLock()
		closed := c.closed
		c.mu.RUnlock()
		if closed {
			return ErrClosed
		}

		if ok := c.capture.Read(&mat); !ok || mat.Empty() {
			failures++
			if failures == 1 || failures%100 == 0 {
				logger.Warn("Camera", "Read from %q failed (%d consecutive)", c.deviceID, failures)
			}
			time.Sleep(50 * time.Millisecond)
			continue
		}
		failures = 0

		img, err := mat.ToImage()
		if err != nil {
			logger.Debug("Camera", "Frame conversion failed: %v", err)
			continue
		}

		b := img.Bounds()
		c.mu.Lock()
		c.latest = img
		c.size = types.Size{Width: b.Dx(), Height: b.Dy()}
		c.frames++
		c.mu.Unlock()
	}
}

// Snapshot returns the newest frame, or false before the first one.
func (c *Camera) Snapshot() (image.Image, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latest, c.latest != nil
}

// Size returns the native frame size, falling back to the requested size
// until the first frame arrives.
func (c *Camera) Size() types.Size {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.size.Empty() {
		return c.want
	}
	return c.size
}

// Frames returns the number of frames read so far.
func (c *Camera) Frames() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.frames
}

// Close releases the device. A running reader releases it on its way out.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.running {
		return nil
	}
	return c.capture.Close()
}

func (c *Camera) release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	c.closed = true
	if err := c.capture.Close(); err != nil {
		logger.Warn("Camera", "Close %q: %v", c.deviceID, err)
	}
}
