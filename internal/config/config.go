// Package config loads service settings from defaults, an optional YAML
// file, the environment (with .env support) and finally command-line flags.
package config

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the complete service configuration.
type Config struct {
	Capture   CaptureConfig   `yaml:"capture"`
	Detector  DetectorConfig  `yaml:"detector"`
	Display   DisplayConfig   `yaml:"display"`
	Overlay   OverlayConfig   `yaml:"overlay"`
	Server    ServerConfig    `yaml:"server"`
	Recording RecordingConfig `yaml:"recording"`
	History   HistoryConfig   `yaml:"history"`
	WebRTC    WebRTCConfig    `yaml:"webrtc"`
	Log       LogConfig       `yaml:"log"`
}

// CaptureConfig selects the source and sampling cadence.
type CaptureConfig struct {
	DeviceID    string        `yaml:"device_id"` // Opaque, passed to the camera as-is
	Source      string        `yaml:"source"`    // camera, pattern
	Width       int           `yaml:"width"`
	Height      int           `yaml:"height"`
	Interval    time.Duration `yaml:"interval"`
	JPEGQuality int           `yaml:"jpeg_quality"`
	Format      string        `yaml:"format"` // jpeg, png
}

// DetectorConfig points at the remote detector.
type DetectorConfig struct {
	URL            string        `yaml:"url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxInFlight    int           `yaml:"max_in_flight"`
	DataURL        bool          `yaml:"data_url"` // Send b64_input as a data: URL
}

// DisplayConfig is the initial display surface.
type DisplayConfig struct {
	Width    int  `yaml:"width"`
	Height   int  `yaml:"height"`
	Mirrored bool `yaml:"mirrored"`
	FPS      int  `yaml:"fps"`
}

// OverlayConfig styles the drawn detections.
type OverlayConfig struct {
	Radius      float64 `yaml:"radius"`
	StrokeWidth float64 `yaml:"stroke_width"`
	StrokeColor string  `yaml:"stroke_color"` // #rrggbb or #rrggbbaa
	FillColor   string  `yaml:"fill_color"`
	Labels      bool    `yaml:"labels"`
}

// ServerConfig holds listen addresses. An empty MetricsAddr serves /metrics
// on the main listener.
type ServerConfig struct {
	Addr        string `yaml:"addr"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// RecordingConfig sets where recordings land.
type RecordingConfig struct {
	OutputPath string `yaml:"output_path"`
}

// HistoryConfig controls result persistence. An empty Path disables it.
type HistoryConfig struct {
	Path  string `yaml:"path"`
	Limit int    `yaml:"limit"`
}

// WebRTCConfig configures the overlay data channel.
type WebRTCConfig struct {
	STUN       []string `yaml:"stun"`
	MaxClients int      `yaml:"max_clients"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level string `yaml:"level"`
	Color bool   `yaml:"color"`
	File  string `yaml:"file"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Capture: CaptureConfig{
			DeviceID:    "0",
			Source:      "camera",
			Width:       1280,
			Height:      720,
			Interval:    100 * time.Millisecond,
			JPEGQuality: 80,
			Format:      "jpeg",
		},
		Detector: DetectorConfig{
			URL:            "http://localhost:5000/yolo",
			RequestTimeout: 2 * time.Second,
			MaxInFlight:    4,
		},
		Display: DisplayConfig{
			Width:  1280,
			Height: 720,
			FPS:    15,
		},
		Overlay: OverlayConfig{
			Radius:      25,
			StrokeWidth: 3,
			StrokeColor: "#ff0000",
			FillColor:   "#ff000040",
			Labels:      true,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Recording: RecordingConfig{
			OutputPath: "./recordings",
		},
		History: HistoryConfig{
			Path:  "",
			Limit: 100,
		},
		WebRTC: WebRTCConfig{
			STUN:       []string{"stun:stun.l.google.com:19302"},
			MaxClients: 10,
		},
		Log: LogConfig{
			Level: "info",
			Color: true,
		},
	}
}

// Load builds a configuration from defaults, the YAML file at path (if not
// empty), a .env file in the working directory (if present) and OVERLAY_*
// environment variables. Flags are applied by the caller afterwards.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return cfg, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("failed to load .env: %w", err)
	}
	cfg.ApplyEnv()

	return cfg, nil
}

// LoadFile overlays the YAML file at path onto c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from OVERLAY_* environment variables.
func (c *Config) ApplyEnv() {
	c.Capture.DeviceID = getEnv("OVERLAY_DEVICE_ID", c.Capture.DeviceID)
	c.Capture.Source = getEnv("OVERLAY_SOURCE", c.Capture.Source)
	c.Capture.Width = getEnvAsInt("OVERLAY_CAPTURE_WIDTH", c.Capture.Width)
	c.Capture.Height = getEnvAsInt("OVERLAY_CAPTURE_HEIGHT", c.Capture.Height)
	c.Capture.Interval = getEnvAsDuration("OVERLAY_INTERVAL", c.Capture.Interval)
	c.Capture.JPEGQuality = getEnvAsInt("OVERLAY_JPEG_QUALITY", c.Capture.JPEGQuality)
	c.Capture.Format = getEnv("OVERLAY_FORMAT", c.Capture.Format)

	c.Detector.URL = getEnv("OVERLAY_DETECTOR_URL", c.Detector.URL)
	c.Detector.RequestTimeout = getEnvAsDuration("OVERLAY_REQUEST_TIMEOUT", c.Detector.RequestTimeout)
	c.Detector.MaxInFlight = getEnvAsInt("OVERLAY_MAX_IN_FLIGHT", c.Detector.MaxInFlight)
	c.Detector.DataURL = getEnvAsBool("OVERLAY_DATA_URL", c.Detector.DataURL)

	c.Display.Width = getEnvAsInt("OVERLAY_DISPLAY_WIDTH", c.Display.Width)
	c.Display.Height = getEnvAsInt("OVERLAY_DISPLAY_HEIGHT", c.Display.Height)
	c.Display.Mirrored = getEnvAsBool("OVERLAY_MIRRORED", c.Display.Mirrored)
	c.Display.FPS = getEnvAsInt("OVERLAY_DISPLAY_FPS", c.Display.FPS)

	c.Server.Addr = getEnv("OVERLAY_ADDR", c.Server.Addr)
	c.Server.MetricsAddr = getEnv("OVERLAY_METRICS_ADDR", c.Server.MetricsAddr)
	c.Recording.OutputPath = getEnv("OVERLAY_RECORDING_PATH", c.Recording.OutputPath)
	c.History.Path = getEnv("OVERLAY_HISTORY_PATH", c.History.Path)
	c.History.Limit = getEnvAsInt("OVERLAY_HISTORY_LIMIT", c.History.Limit)
	c.WebRTC.MaxClients = getEnvAsInt("OVERLAY_WEBRTC_MAX_CLIENTS", c.WebRTC.MaxClients)
	if stun := os.Getenv("OVERLAY_STUN"); stun != "" {
		c.WebRTC.STUN = strings.Split(stun, ",")
	}

	c.Log.Level = getEnv("OVERLAY_LOG_LEVEL", c.Log.Level)
	c.Log.Color = getEnvAsBool("OVERLAY_LOG_COLOR", c.Log.Color)
	c.Log.File = getEnv("OVERLAY_LOG_FILE", c.Log.File)
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Capture.Width <= 0 || c.Capture.Height <= 0 {
		return fmt.Errorf("capture size must be positive, got %dx%d", c.Capture.Width, c.Capture.Height)
	}
	if c.Capture.Interval <= 0 {
		return fmt.Errorf("capture.interval must be positive, got %v", c.Capture.Interval)
	}
	if c.Capture.JPEGQuality < 1 || c.Capture.JPEGQuality > 100 {
		return fmt.Errorf("capture.jpeg_quality must be 1-100, got %d", c.Capture.JPEGQuality)
	}
	switch c.Capture.Format {
	case "jpeg", "png":
	default:
		return fmt.Errorf("capture.format must be jpeg or png, got %q", c.Capture.Format)
	}
	switch c.Capture.Source {
	case "camera", "pattern":
	default:
		return fmt.Errorf("capture.source must be camera or pattern, got %q", c.Capture.Source)
	}
	if c.Detector.URL == "" {
		return errors.New("detector.url is required")
	}
	if c.Detector.RequestTimeout <= 0 {
		return fmt.Errorf("detector.request_timeout must be positive, got %v", c.Detector.RequestTimeout)
	}
	if c.Detector.MaxInFlight < 1 {
		return fmt.Errorf("detector.max_in_flight must be at least 1, got %d", c.Detector.MaxInFlight)
	}
	if c.Display.FPS <= 0 {
		return fmt.Errorf("display.fps must be positive, got %d", c.Display.FPS)
	}
	if _, err := ParseColor(c.Overlay.StrokeColor); err != nil {
		return fmt.Errorf("overlay.stroke_color: %w", err)
	}
	if _, err := ParseColor(c.Overlay.FillColor); err != nil {
		return fmt.Errorf("overlay.fill_color: %w", err)
	}
	return nil
}

// ParseColor parses #rrggbb or #rrggbbaa into a premultiplied colour.
// An empty string is fully transparent.
func ParseColor(s string) (color.RGBA, error) {
	if s == "" {
		return color.RGBA{}, nil
	}
	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 6 && len(hex) != 8 {
		return color.RGBA{}, fmt.Errorf("invalid colour %q", s)
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid colour %q: %w", s, err)
	}

	r, g, b, a := uint32(v>>24), uint32(v>>16&0xff), uint32(v>>8&0xff), uint32(v&0xff)
	return color.RGBA{
		R: uint8(r * a / 255),
		G: uint8(g * a / 255),
		B: uint8(b * a / 255),
		A: uint8(a),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
