package detector

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/rommelskii/foundation/internal/logger"
	"github.com/rommelskii/foundation/internal/metrics"
	"github.com/rommelskii/foundation/pkg/types"
)

// Detector resolves one frame into a Result.
type Detector interface {
	Detect(ctx context.Context, frame types.Frame) (Result, error)
}

// Publisher receives resolved results tagged with their sequence number.
// Apply reports whether the result was accepted.
type Publisher interface {
	Apply(seq uint64, res Result) bool
}

// DispatcherConfig holds dispatcher tuning.
type DispatcherConfig struct {
	RequestTimeout time.Duration
	MaxInFlight    int64
	ErrorLogEvery  time.Duration // Minimum spacing of transport error logs
}

// DefaultDispatcherConfig returns the stock dispatcher settings.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		RequestTimeout: 2 * time.Second,
		MaxInFlight:    4,
		ErrorLogEvery:  5 * time.Second,
	}
}

// Dispatcher sends frames to a Detector without blocking the caller and
// forwards results to a Publisher in sequence-tagged form.
type Dispatcher struct {
	detector Detector
	pub      Publisher
	cfg      DispatcherConfig
	metrics  *metrics.Metrics

	sem     *semaphore.Weighted
	seq     atomic.Uint64
	wg      sync.WaitGroup
	limiter *rate.Limiter
	// Errors swallowed by the limiter since the last logged one
	suppressed atomic.Uint64
}

// NewDispatcher creates a dispatcher. m may be nil.
func NewDispatcher(d Detector, pub Publisher, cfg DispatcherConfig, m *metrics.Metrics) *Dispatcher {
	def := DefaultDispatcherConfig()
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = def.MaxInFlight
	}
	if cfg.ErrorLogEvery <= 0 {
		cfg.ErrorLogEvery = def.ErrorLogEvery
	}
	if m == nil {
		m = metrics.New()
	}

	return &Dispatcher{
		detector: d,
		pub:      pub,
		cfg:      cfg,
		metrics:  m,
		sem:      semaphore.NewWeighted(cfg.MaxInFlight),
		limiter:  rate.NewLimiter(rate.Every(cfg.ErrorLogEvery), 1),
	}
}

// Dispatch starts a request for frame and returns immediately. It returns
// the assigned sequence number, or false when every in-flight slot is busy
// and the frame was dropped.
func (d *Dispatcher) Dispatch(ctx context.Context, frame types.Frame) (uint64, bool) {
	if !d.sem.TryAcquire(1) {
		d.metrics.FramesDropped.Add(1)
		logger.Debug("Dispatcher", "All %d slots busy, dropping frame", d.cfg.MaxInFlight)
		return 0, false
	}

	seq := d.seq.Add(1)
	d.metrics.FramesDispatched.Add(1)
	d.metrics.InFlight.Add(1)
	d.wg.Add(1)

	go d.send(ctx, seq, frame)
	return seq, true
}

// LastSeq returns the most recently assigned sequence number.
func (d *Dispatcher) LastSeq() uint64 {
	return d.seq.Load()
}

// Wait blocks until every in-flight request has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) send(ctx context.Context, seq uint64, frame types.Frame) {
	defer d.wg.Done()
	defer d.sem.Release(1)
	defer d.metrics.InFlight.Add(-1)

	reqCtx, cancel := context.WithTimeout(ctx, d.cfg.RequestTimeout)
	defer cancel()

	start := time.Now()
	res, err := d.detector.Detect(reqCtx, frame)
	d.metrics.UpdateRequestLatency(time.Since(start))

	if err != nil {
		if errors.Is(err, ErrMalformedResponse) {
			d.metrics.MalformedResponses.Add(1)
		} else {
			d.metrics.TransportErrors.Add(1)
		}
		d.logFailure(seq, err)
		return
	}

	if d.pub.Apply(seq, res) {
		logger.Debug("Dispatcher", "Applied #%d (%s, %d detections)", seq, res.Kind, len(res.Detections))
	}
}

// logFailure logs request errors at most once per ErrorLogEvery.
func (d *Dispatcher) logFailure(seq uint64, err error) {
	if !d.limiter.Allow() {
		d.suppressed.Add(1)
		return
	}
	if n := d.suppressed.Swap(0); n > 0 {
		logger.Warn("Dispatcher", "Request #%d failed: %v (%d similar errors suppressed)", seq, err, n)
		return
	}
	logger.Warn("Dispatcher", "Request #%d failed: %v", seq, err)
}
