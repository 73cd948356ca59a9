package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // Enable pprof
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rommelskii/foundation/internal/camera"
	"github.com/rommelskii/foundation/internal/capture"
	"github.com/rommelskii/foundation/internal/config"
	"github.com/rommelskii/foundation/internal/detector"
	"github.com/rommelskii/foundation/internal/history"
	"github.com/rommelskii/foundation/internal/logger"
	"github.com/rommelskii/foundation/internal/metrics"
	"github.com/rommelskii/foundation/internal/overlay"
	"github.com/rommelskii/foundation/internal/recorder"
	"github.com/rommelskii/foundation/internal/webmonitor"
	"github.com/rommelskii/foundation/internal/webrtc"
	"github.com/rommelskii/foundation/pkg/types"
)

var (
	// Command-line flags; only flags given explicitly override the config.
	configPath  = flag.String("config", "", "YAML config file")
	httpAddr    = flag.String("http", "", "HTTP server address")
	metricsAddr = flag.String("metrics", "", "Separate metrics server address (default: serve on -http)")
	pprofAddr   = flag.String("pprof", "", "pprof server address (disabled when empty)")
	assetsDir   = flag.String("assets", "", "Directory overriding the built-in web assets")
	detectorURL = flag.String("detector", "", "Detector endpoint URL")
	deviceID    = flag.String("device", "", "Camera device id")
	sourceKind  = flag.String("source", "", "Frame source (camera, pattern)")
	interval    = flag.Duration("interval", 0, "Capture interval")
	mirrored    = flag.Bool("mirrored", false, "Mirror the display surface")
	recordPath  = flag.String("record-path", "", "Recording output path")
	historyPath = flag.String("history", "", "SQLite result history path")
	maxClients  = flag.Int("max-clients", 0, "Maximum WebRTC clients")
	stunServers = flag.String("stun", "", "STUN server URLs (comma-separated)")
	logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error, silent)")
	logColor    = flag.Bool("log-color", true, "Enable colored log output")
	logFile     = flag.String("log-file", "", "Also write logs to this rotated file")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	applyFlags(&cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	// Initialize logger
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger.Init(level, os.Stderr, cfg.Log.Color)
	if cfg.Log.File != "" {
		logger.SetFile(cfg.Log.File)
	}

	logger.Info("Main", "Overlay server starting...")
	logger.Info("Main", "Log level: %s", level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error("Main", "Server error: %v", err)
		os.Exit(1)
	}
	logger.Info("Main", "Server stopped")
}

// applyFlags copies explicitly set flags over the loaded config.
func applyFlags(cfg *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "http":
			cfg.Server.Addr = *httpAddr
		case "metrics":
			cfg.Server.MetricsAddr = *metricsAddr
		case "detector":
			cfg.Detector.URL = *detectorURL
		case "device":
			cfg.Capture.DeviceID = *deviceID
		case "source":
			cfg.Capture.Source = *sourceKind
		case "interval":
			cfg.Capture.Interval = *interval
		case "mirrored":
			cfg.Display.Mirrored = *mirrored
		case "record-path":
			cfg.Recording.OutputPath = *recordPath
		case "history":
			cfg.History.Path = *historyPath
		case "max-clients":
			cfg.WebRTC.MaxClients = *maxClients
		case "stun":
			cfg.WebRTC.STUN = strings.Split(*stunServers, ",")
		case "log-level":
			cfg.Log.Level = *logLevel
		case "log-color":
			cfg.Log.Color = *logColor
		case "log-file":
			cfg.Log.File = *logFile
		}
	})
}

func overlayStyle(oc config.OverlayConfig) (overlay.Style, error) {
	style := overlay.DefaultStyle()
	if oc.Radius > 0 {
		style.Radius = oc.Radius
	}
	if oc.StrokeWidth > 0 {
		style.StrokeWidth = oc.StrokeWidth
	}
	style.Labels = oc.Labels

	var err error
	if oc.StrokeColor != "" {
		if style.Stroke, err = config.ParseColor(oc.StrokeColor); err != nil {
			return style, fmt.Errorf("stroke color: %w", err)
		}
	}
	if oc.FillColor != "" {
		if style.Fill, err = config.ParseColor(oc.FillColor); err != nil {
			return style, fmt.Errorf("fill color: %w", err)
		}
	}
	return style, nil
}

func run(ctx context.Context, cfg config.Config) error {
	m := metrics.New()
	sourceSize := types.Size{Width: cfg.Capture.Width, Height: cfg.Capture.Height}
	g, ctx := errgroup.WithContext(ctx)

	// Frame source
	var source capture.Source
	switch cfg.Capture.Source {
	case "pattern":
		source = capture.NewTestPattern(sourceSize)
		logger.Info("Main", "Using %dx%d test pattern", sourceSize.Width, sourceSize.Height)
	default:
		cam, err := camera.Open(cfg.Capture.DeviceID, sourceSize)
		if err != nil {
			return fmt.Errorf("failed to open camera: %w", err)
		}
		defer cam.Close()
		source = cam
		g.Go(func() error { return cam.Run(ctx) })
	}

	style, err := overlayStyle(cfg.Overlay)
	if err != nil {
		return err
	}
	view := overlay.NewView(style, sourceSize, m)

	// Detector
	client := detector.NewClient(cfg.Detector.URL, cfg.Detector.DataURL)
	dcfg := detector.DefaultDispatcherConfig()
	dcfg.RequestTimeout = cfg.Detector.RequestTimeout
	dcfg.MaxInFlight = int64(cfg.Detector.MaxInFlight)
	dispatcher := detector.NewDispatcher(client, view, dcfg, m)
	defer dispatcher.Wait()
	// Results still in flight at shutdown are discarded.
	defer view.Close()

	loop := capture.NewLoop(source, dispatcher, capture.Config{
		Interval:    cfg.Capture.Interval,
		Format:      cfg.Capture.Format,
		JPEGQuality: cfg.Capture.JPEGQuality,
	}, m)

	// Display side
	rec := recorder.NewRecorder(cfg.Recording.OutputPath, m)
	defer rec.Close()

	var store *history.Store
	if cfg.History.Path != "" {
		store, err = history.Open(cfg.History.Path, cfg.History.Limit)
		if err != nil {
			return fmt.Errorf("failed to open history: %w", err)
		}
		defer store.Close()
	}

	rtc := webrtc.NewServer(cfg.WebRTC.STUN, cfg.WebRTC.MaxClients, m)
	defer rtc.Close()

	wcfg := webmonitor.DefaultConfig()
	wcfg.Addr = cfg.Server.Addr
	wcfg.AssetsDir = *assetsDir
	wcfg.Display = types.Size{Width: cfg.Display.Width, Height: cfg.Display.Height}
	wcfg.Mirrored = cfg.Display.Mirrored
	wcfg.TargetFPS = cfg.Display.FPS
	wcfg.ServeMetrics = cfg.Server.MetricsAddr == ""

	monitor := webmonitor.NewServer(wcfg, webmonitor.Deps{
		Source:        source,
		View:          view,
		Metrics:       m,
		Recorder:      rec,
		WebRTC:        rtc,
		History:       store,
		OverlayRadius: style.Radius,
	})
	monitor.Start()
	defer monitor.Stop()

	servers := []*http.Server{{Addr: cfg.Server.Addr, Handler: monitor.Handler()}}
	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		servers = append(servers, &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux})
	}

	logger.Info("Main", "Configuration:")
	logger.Info("Main", "  Source: %s %q (%dx%d)", cfg.Capture.Source, cfg.Capture.DeviceID, sourceSize.Width, sourceSize.Height)
	logger.Info("Main", "  Detector: %s (timeout %v, max in flight %d)", cfg.Detector.URL, dcfg.RequestTimeout, dcfg.MaxInFlight)
	logger.Info("Main", "  Capture interval: %v", cfg.Capture.Interval)
	logger.Info("Main", "  Display: %dx%d mirrored=%v", wcfg.Display.Width, wcfg.Display.Height, wcfg.Mirrored)
	logger.Info("Main", "  HTTP server: %s", cfg.Server.Addr)
	if cfg.Server.MetricsAddr != "" {
		logger.Info("Main", "  Metrics server: %s", cfg.Server.MetricsAddr)
	}

	if *pprofAddr != "" {
		go func() {
			logger.Info("Main", "Starting pprof server on %s", *pprofAddr)
			if err := http.ListenAndServe(*pprofAddr, nil); err != nil {
				logger.Warn("Main", "pprof server error: %v", err)
			}
		}()
	}

	g.Go(func() error { return loop.Run(ctx) })

	for _, srv := range servers {
		g.Go(func() error {
			logger.Info("Main", "Listening on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("listen %s: %w", srv.Addr, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Main", "Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Main", "HTTP shutdown error: %v", err)
			}
		}
		return nil
	})

	return g.Wait()
}
