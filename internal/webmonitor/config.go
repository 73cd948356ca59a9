package webmonitor

import (
	"time"

	"github.com/rommelskii/foundation/pkg/types"
)

// Config defines the runtime configuration for the web monitor server.
type Config struct {
	Addr           string
	AssetsDir      string // Optional directory overriding the built-in /assets
	Display        types.Size
	Mirrored       bool
	TargetFPS      int
	JPEGQuality    int
	StatusInterval time.Duration
	HistoryLimit   int  // Results kept in memory for /api/status
	ServeMetrics   bool // Mount /metrics on this server
}

// DefaultConfig returns the stock monitor settings.
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		Display:        types.Size{Width: 1280, Height: 720},
		TargetFPS:      15,
		JPEGQuality:    75,
		StatusInterval: 2 * time.Second,
		HistoryLimit:   8,
		ServeMetrics:   true,
	}
}
