package config

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Capture.Interval != 100*time.Millisecond {
		t.Fatalf("interval = %v, want 100ms", cfg.Capture.Interval)
	}
	if cfg.Detector.MaxInFlight != 4 || cfg.Detector.RequestTimeout != 2*time.Second {
		t.Fatalf("detector defaults = %+v", cfg.Detector)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overlay.yaml")
	data := []byte(`
capture:
  device_id: /dev/video2
  interval: 250ms
detector:
  url: http://detector:9000/detect
  max_in_flight: 2
  data_url: true
display:
  mirrored: true
webrtc:
  stun: []
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg := Default()
	if err := cfg.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Capture.DeviceID != "/dev/video2" || cfg.Capture.Interval != 250*time.Millisecond {
		t.Fatalf("capture = %+v", cfg.Capture)
	}
	if cfg.Detector.URL != "http://detector:9000/detect" || cfg.Detector.MaxInFlight != 2 || !cfg.Detector.DataURL {
		t.Fatalf("detector = %+v", cfg.Detector)
	}
	if !cfg.Display.Mirrored {
		t.Fatal("display.mirrored not loaded")
	}
	// Keys absent from the file keep their defaults.
	if cfg.Capture.Width != 1280 || cfg.Server.Addr != ":8080" {
		t.Fatalf("defaults lost: width=%d addr=%q", cfg.Capture.Width, cfg.Server.Addr)
	}
	if len(cfg.WebRTC.STUN) != 0 {
		t.Fatalf("stun = %v, want empty", cfg.WebRTC.STUN)
	}
}

func TestLoadFileMissing(t *testing.T) {
	cfg := Default()
	if err := cfg.LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("missing file accepted")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("OVERLAY_DETECTOR_URL", "http://env/detect")
	t.Setenv("OVERLAY_INTERVAL", "50ms")
	t.Setenv("OVERLAY_MIRRORED", "true")
	t.Setenv("OVERLAY_MAX_IN_FLIGHT", "not-a-number")
	t.Setenv("OVERLAY_STUN", "stun:a:1,stun:b:2")

	cfg := Default()
	cfg.ApplyEnv()

	if cfg.Detector.URL != "http://env/detect" {
		t.Fatalf("url = %q", cfg.Detector.URL)
	}
	if cfg.Capture.Interval != 50*time.Millisecond {
		t.Fatalf("interval = %v", cfg.Capture.Interval)
	}
	if !cfg.Display.Mirrored {
		t.Fatal("mirrored not applied")
	}
	if cfg.Detector.MaxInFlight != 4 {
		t.Fatalf("invalid int overrode default: %d", cfg.Detector.MaxInFlight)
	}
	if len(cfg.WebRTC.STUN) != 2 || cfg.WebRTC.STUN[1] != "stun:b:2" {
		t.Fatalf("stun = %v", cfg.WebRTC.STUN)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"zero width":       func(c *Config) { c.Capture.Width = 0 },
		"zero interval":    func(c *Config) { c.Capture.Interval = 0 },
		"quality":          func(c *Config) { c.Capture.JPEGQuality = 101 },
		"format":           func(c *Config) { c.Capture.Format = "gif" },
		"source":           func(c *Config) { c.Capture.Source = "screen" },
		"empty url":        func(c *Config) { c.Detector.URL = "" },
		"zero in-flight":   func(c *Config) { c.Detector.MaxInFlight = 0 },
		"negative timeout": func(c *Config) { c.Detector.RequestTimeout = -time.Second },
		"fps":              func(c *Config) { c.Display.FPS = 0 },
		"stroke colour":    func(c *Config) { c.Overlay.StrokeColor = "red" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("Validate accepted invalid config")
			}
		})
	}
}

func TestParseColor(t *testing.T) {
	cases := map[string]color.RGBA{
		"#ff0000":   {R: 255, A: 255},
		"00ff00":    {G: 255, A: 255},
		"#ff000080": {R: 128, A: 128},
		"":          {},
	}
	for in, want := range cases {
		got, err := ParseColor(in)
		if err != nil {
			t.Fatalf("ParseColor(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseColor(%q) = %+v, want %+v", in, got, want)
		}
	}
	if _, err := ParseColor("#12345"); err == nil {
		t.Fatal("short colour accepted")
	}
}
