// Package capture samples the live source at a fixed cadence and hands each
// encoded snapshot to the detector dispatcher.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/rommelskii/foundation/internal/logger"
	"github.com/rommelskii/foundation/internal/metrics"
	"github.com/rommelskii/foundation/pkg/types"
)

var (
	// ErrNotReady means the source has not produced a frame yet.
	ErrNotReady = errors.New("source not ready")
	// ErrDropped means the dispatcher had no free slot for the frame.
	ErrDropped = errors.New("frame dropped")
)

// Source is the live video the loop samples. Snapshot returns false until
// the source has produced its first frame.
type Source interface {
	Snapshot() (image.Image, bool)
}

// Dispatcher accepts an encoded frame without blocking.
type Dispatcher interface {
	Dispatch(ctx context.Context, frame types.Frame) (uint64, bool)
}

// Config holds the loop cadence and encoding.
type Config struct {
	Interval    time.Duration
	Format      string // "jpeg" or "png"
	JPEGQuality int
}

// DefaultConfig samples every 100ms as JPEG.
func DefaultConfig() Config {
	return Config{
		Interval:    100 * time.Millisecond,
		Format:      FormatJPEG,
		JPEGQuality: 80,
	}
}

// Loop is the periodic capture driver.
type Loop struct {
	src     Source
	disp    Dispatcher
	cfg     Config
	metrics *metrics.Metrics
}

// NewLoop creates a loop. m may be nil.
func NewLoop(src Source, disp Dispatcher, cfg Config, m *metrics.Metrics) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if m == nil {
		m = metrics.New()
	}
	return &Loop{src: src, disp: disp, cfg: cfg, metrics: m}
}

// Run ticks until ctx is cancelled. Ticks never wait on in-flight requests.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	logger.Info("Capture", "Sampling every %v as %s", l.cfg.Interval, l.cfg.Format)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Capture", "Stopped")
			return nil
		case <-ticker.C:
			_, _ = l.Tick(ctx)
		}
	}
}

// Tick runs a single capture cycle and returns the sequence number the
// frame was dispatched under.
func (l *Loop) Tick(ctx context.Context) (uint64, error) {
	l.metrics.Ticks.Add(1)

	img, ok := l.src.Snapshot()
	if !ok || img == nil {
		l.metrics.FramesNotReady.Add(1)
		logger.Debug("Capture", "Source not ready, skipping tick")
		return 0, ErrNotReady
	}

	data, mime, err := Encode(img, l.cfg.Format, l.cfg.JPEGQuality)
	if err != nil {
		l.metrics.EncodeErrors.Add(1)
		logger.Debug("Capture", "Encode failed: %v", err)
		return 0, fmt.Errorf("encode snapshot: %w", err)
	}
	l.metrics.FramesCaptured.Add(1)

	b := img.Bounds()
	seq, ok := l.disp.Dispatch(ctx, types.Frame{
		Data:      data,
		MimeType:  mime,
		Timestamp: time.Now(),
		Width:     b.Dx(),
		Height:    b.Dy(),
	})
	if !ok {
		return 0, ErrDropped
	}
	return seq, nil
}
