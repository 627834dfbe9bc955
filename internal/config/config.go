// SPDX-License-Identifier: MIT
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"audiobridge/internal/analysis"
	"audiobridge/internal/bridge"
	"audiobridge/internal/media"
)

// Core configuration constants that define the defaults for the bridge.
const (
	DefaultBackend         = "malgo"
	DefaultLogLevel        = "info"
	DefaultFramesPerBuffer = 512 // Balanced latency/performance
	DefaultRecordingDir    = "./recordings"
	DefaultWebSocketAddr   = "127.0.0.1:8765"
	DefaultWebSocketPath   = "/ws"
	DefaultUDPTarget       = "127.0.0.1:9090"
	DefaultUDPInterval     = 33 * time.Millisecond // ~30Hz
	DefaultMediaSource     = "auto"
)

// Config represents the application configuration, loaded from YAML.
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	Backend   string          `yaml:"backend" validate:"required"` // audio API: malgo, portaudio, file, synthetic
	Bridge    BridgeConfig    `yaml:"bridge"`
	Recording RecordingConfig `yaml:"recording"`
	Transport TransportConfig `yaml:"transport"`
	Media     MediaConfig     `yaml:"media"`
	Files     FilesConfig     `yaml:"files"`
}

// BridgeConfig holds the capture device and spectrum settings.
type BridgeConfig struct {
	Enabled  bool   `yaml:"enabled"`  // start capturing immediately
	Device   string `yaml:"device"`   // device ID from `audiobridge list`; empty follows the OS default
	Loopback bool   `yaml:"loopback"` // capture the output mix instead of an input

	SampleRate      int  `yaml:"sample_rate" validate:"omitempty,gte=8000,lte=192000"`
	Channels        int  `yaml:"channels" validate:"gte=0,lte=8"`
	FramesPerBuffer int  `yaml:"frames_per_buffer" validate:"gte=0,lte=8192"`
	LowLatency      bool `yaml:"low_latency"`

	BufferSize int     `yaml:"buffer_size" validate:"gte=256,lte=8192"`
	HopSize    int     `yaml:"hop_size" validate:"gte=1"`
	Columns    int     `yaml:"columns" validate:"gte=1,lte=256"`
	DbFloor    float64 `yaml:"db_floor" validate:"gte=-200,lt=0"`
	MasterGain float64 `yaml:"master_gain" validate:"gte=0,lte=100"`
	Tilt       float64 `yaml:"tilt" validate:"gte=-4,lte=4"`
	Window     string  `yaml:"window"`
	MeterRate  float64 `yaml:"meter_rate" validate:"gte=0,lte=240"` // 0 disables wave/VU frames

	Recovery RecoveryConfig `yaml:"recovery"`
}

// RecoveryConfig bounds device reacquisition after a loss.
type RecoveryConfig struct {
	MaxRetries     int           `yaml:"max_retries" validate:"gte=0"`
	InitialBackoff time.Duration `yaml:"initial_backoff" validate:"gt=0"`
	MaxBackoff     time.Duration `yaml:"max_backoff" validate:"gtefield=InitialBackoff"`
	StallTimeout   time.Duration `yaml:"stall_timeout" validate:"gte=0"`
}

// RecordingConfig holds settings related to audio recording functionality.
type RecordingConfig struct {
	Enabled   bool   `yaml:"enabled"`    // Record the capture device to WAV while streaming.
	OutputDir string `yaml:"output_dir"` // Directory to save recorded audio files.
	BitDepth  int    `yaml:"bit_depth" validate:"oneof=16 24 32"`
}

// TransportConfig holds settings related to sending processed data over the network.
type TransportConfig struct {
	WebSocket WebSocketConfig `yaml:"websocket"`
	UDP       UDPConfig       `yaml:"udp"`
}

type WebSocketConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr" validate:"omitempty,listen_addr"`
	Path    string `yaml:"path" validate:"omitempty,startswith=/"`
}

type UDPConfig struct {
	Enabled       bool          `yaml:"enabled"`
	TargetAddress string        `yaml:"target_address" validate:"omitempty,hostname_port"` // e.g. "127.0.0.1:9090"
	SendInterval  time.Duration `yaml:"send_interval" validate:"gte=0"`
}

// MediaConfig selects the now-playing source.
type MediaConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Source   string        `yaml:"source" validate:"oneof=auto mpris feed"`
	Players  []string      `yaml:"players"` // MPRIS preference order
	Throttle time.Duration `yaml:"throttle" validate:"gte=0"`
}

// FilesConfig is used by the file backend.
type FilesConfig struct {
	Dir string `yaml:"dir"`
}

// Default returns the built-in configuration.
func Default() Config {
	opts := bridge.DefaultOptions()
	s := opts.Settings
	return Config{
		LogLevel: DefaultLogLevel,
		Backend:  DefaultBackend,
		Bridge: BridgeConfig{
			Enabled:         true,
			Loopback:        s.Loopback,
			FramesPerBuffer: DefaultFramesPerBuffer,
			BufferSize:      s.BufferSize,
			HopSize:         s.HopSize,
			Columns:         s.Columns,
			DbFloor:         s.DbFloor,
			MasterGain:      s.MasterGain,
			Tilt:            s.Tilt,
			Window:          s.Window.String(),
			MeterRate:       opts.MeterRate,
			Recovery: RecoveryConfig{
				MaxRetries:     opts.Recovery.MaxRetries,
				InitialBackoff: opts.Recovery.InitialBackoff,
				MaxBackoff:     opts.Recovery.MaxBackoff,
				StallTimeout:   opts.Recovery.StallTimeout,
			},
		},
		Recording: RecordingConfig{
			OutputDir: DefaultRecordingDir,
			BitDepth:  opts.RecordBitDepth,
		},
		Transport: TransportConfig{
			WebSocket: WebSocketConfig{
				Addr: DefaultWebSocketAddr,
				Path: DefaultWebSocketPath,
			},
			UDP: UDPConfig{
				TargetAddress: DefaultUDPTarget,
				SendInterval:  DefaultUDPInterval,
			},
		},
		Media: MediaConfig{
			Source:   DefaultMediaSource,
			Players:  append([]string(nil), media.DefaultPlayers...),
			Throttle: media.DefaultThrottle,
		},
		Files: FilesConfig{Dir: "."},
	}
}

// BridgeOptions converts the bridge section into bridge.Options.
func (c *Config) BridgeOptions() (bridge.Options, error) {
	win, err := analysis.ParseWindowFunc(c.Bridge.Window)
	if err != nil {
		return bridge.Options{}, err
	}
	b := c.Bridge
	return bridge.Options{
		Settings: bridge.Settings{
			BufferSize: b.BufferSize,
			HopSize:    b.HopSize,
			Columns:    b.Columns,
			DbFloor:    b.DbFloor,
			MasterGain: b.MasterGain,
			Tilt:       b.Tilt,
			Window:     win,
			Loopback:   b.Loopback,
			Enabled:    b.Enabled,
		},
		DeviceID:        b.Device,
		SampleRate:      b.SampleRate,
		Channels:        b.Channels,
		FramesPerBuffer: b.FramesPerBuffer,
		MeterRate:       b.MeterRate,
		RecordBitDepth:  c.Recording.BitDepth,
		Recovery: bridge.Recovery{
			MaxRetries:     b.Recovery.MaxRetries,
			InitialBackoff: b.Recovery.InitialBackoff,
			MaxBackoff:     b.Recovery.MaxBackoff,
			StallTimeout:   b.Recovery.StallTimeout,
		},
	}, nil
}

// RecordingPath returns a fresh file name in the recording directory.
func (c *Config) RecordingPath(now time.Time) string {
	name := fmt.Sprintf("capture-%s.wav", now.Format("20060102-150405"))
	return filepath.Join(c.Recording.OutputDir, name)
}
