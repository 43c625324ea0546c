// Package config handles client configuration loading and management.
package config

import (
	"fmt"
	"time"
)

// Config holds all client settings.
type Config struct {
	Renderer RendererConfig `yaml:"renderer"`
	Sync     SyncConfig     `yaml:"sync"`
	Camera   CameraConfig   `yaml:"camera"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// RendererConfig holds renderer connection settings.
type RendererConfig struct {
	Address        string        `yaml:"address"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	ReceiveBuffer  int           `yaml:"receive_buffer"` // Bytes per socket read
}

// SyncConfig holds scene synchronization settings.
type SyncConfig struct {
	ProtocolVersion int           `yaml:"protocol_version"`
	TickInterval    time.Duration `yaml:"tick_interval"`
	Watch           bool          `yaml:"watch"`   // Re-sync when the scene file changes
	Capture         string        `yaml:"capture"` // Record outbound frames to this file
}

// CameraConfig holds the viewpoint used for render requests.
type CameraConfig struct {
	Width        int     `yaml:"width"`
	Height       int     `yaml:"height"`
	FOV          float32 `yaml:"fov"` // Vertical, degrees
	Near         float32 `yaml:"near"`
	Far          float32 `yaml:"far"`
	Orthographic bool    `yaml:"orthographic"`
	Distance     float32 `yaml:"distance"`
	Yaw          float32 `yaml:"yaw"`   // Degrees
	Pitch        float32 `yaml:"pitch"` // Degrees
}

// MetricsConfig holds the metrics endpoint settings.
type MetricsConfig struct {
	Listen string `yaml:"listen"` // Empty disables the endpoint
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Renderer: RendererConfig{
			Address:        "localhost:9995",
			ConnectTimeout: 5 * time.Second,
			ReceiveBuffer:  8 << 20,
		},
		Sync: SyncConfig{
			ProtocolVersion: 2,
			TickInterval:    100 * time.Millisecond,
		},
		Camera: CameraConfig{
			Width:    1280,
			Height:   720,
			FOV:      50,
			Near:     0.1,
			Far:      1000,
			Distance: 10,
			Yaw:      45,
			Pitch:    30,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Validate checks values that would produce malformed messages.
func (c *Config) Validate() error {
	if c.Sync.ProtocolVersion != 1 && c.Sync.ProtocolVersion != 2 {
		return fmt.Errorf("unsupported protocol version %d", c.Sync.ProtocolVersion)
	}
	if c.Camera.Width <= 0 || c.Camera.Width > 0xffff || c.Camera.Height <= 0 || c.Camera.Height > 0xffff {
		return fmt.Errorf("camera size %dx%d out of range", c.Camera.Width, c.Camera.Height)
	}
	if c.Camera.Near <= 0 || c.Camera.Far <= c.Camera.Near {
		return fmt.Errorf("invalid clip range %g..%g", c.Camera.Near, c.Camera.Far)
	}
	if c.Sync.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %s", c.Sync.TickInterval)
	}
	return nil
}
