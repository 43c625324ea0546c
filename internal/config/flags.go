package config

import (
	"time"

	"github.com/spf13/pflag"
)

var (
	flagConfig   string
	flagDebug    bool
	flagAddress  string
	flagProtocol int
	flagTick     time.Duration
	flagWatch    bool
	flagCapture  string
	flagWidth    int
	flagHeight   int
	flagOrtho    bool
	flagMetrics  string
	flagLogFile  string
)

// BindFlags registers the configuration flags on fs.
func BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&flagConfig, "config", "", "Path to config file")
	fs.BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	fs.StringVarP(&flagAddress, "renderer", "r", "", "Renderer address (host[:port])")
	fs.IntVar(&flagProtocol, "protocol", 0, "Protocol version (1 or 2)")
	fs.DurationVar(&flagTick, "tick", 0, "Sync interval in watch mode")
	fs.BoolVarP(&flagWatch, "watch", "w", false, "Re-sync when the scene file changes")
	fs.StringVar(&flagCapture, "capture", "", "Record outbound frames to a file")
	fs.IntVar(&flagWidth, "width", 0, "Render width")
	fs.IntVar(&flagHeight, "height", 0, "Render height")
	fs.BoolVar(&flagOrtho, "ortho", false, "Use an orthographic camera")
	fs.StringVar(&flagMetrics, "metrics", "", "Metrics listen address")
	fs.StringVar(&flagLogFile, "log-file", "", "Log file path")
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config, fs *pflag.FlagSet) {
	changed := func(name string) bool {
		return fs != nil && fs.Changed(name)
	}

	if changed("debug") && flagDebug {
		cfg.Logging.Level = "debug"
	}
	if changed("renderer") {
		cfg.Renderer.Address = flagAddress
	}
	if changed("protocol") {
		cfg.Sync.ProtocolVersion = flagProtocol
	}
	if changed("tick") {
		cfg.Sync.TickInterval = flagTick
	}
	if changed("watch") {
		cfg.Sync.Watch = flagWatch
	}
	if changed("capture") {
		cfg.Sync.Capture = flagCapture
	}
	if changed("width") && flagWidth > 0 {
		cfg.Camera.Width = flagWidth
	}
	if changed("height") && flagHeight > 0 {
		cfg.Camera.Height = flagHeight
	}
	if changed("ortho") {
		cfg.Camera.Orthographic = flagOrtho
	}
	if changed("metrics") {
		cfg.Metrics.Listen = flagMetrics
	}
	if changed("log-file") {
		cfg.Logging.LogFile = flagLogFile
	}
}
