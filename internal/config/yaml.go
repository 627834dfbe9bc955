// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	applog "audiobridge/internal/log"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DotEnvFile is loaded, when present, before environment overrides are read.
// Variables already set in the environment win.
const DotEnvFile = ".env"

// LoadConfig loads configuration from a YAML file specified by path. If path is
// empty, it searches default locations ("config.yaml"). If no file is found, it
// uses built-in defaults. After loading defaults or from file, it applies
// environment variable overrides and validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		candidates := []string{
			"config.yaml",
		}
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := loadDotEnv(DotEnvFile); err != nil {
		return nil, err
	}
	// Apply environment variable overrides AFTER loading from file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	applog.Debugf("configuration: loaded environment from %s", path)
	return nil
}

// applyEnvOverrides reads ENV_* variables. Values that fail to parse are
// ignored with a warning.
func (cfg *Config) applyEnvOverrides() {
	// ENV_{...}
	// These are general overrides.
	envString("ENV_LOG_LEVEL", &cfg.LogLevel)
	envString("ENV_BACKEND", &cfg.Backend)

	// ENV_BRIDGE_{...}
	envString("ENV_BRIDGE_DEVICE", &cfg.Bridge.Device)
	envBool("ENV_BRIDGE_LOOPBACK", &cfg.Bridge.Loopback)
	envInt("ENV_BRIDGE_BUFFER_SIZE", &cfg.Bridge.BufferSize)
	envInt("ENV_BRIDGE_HOP_SIZE", &cfg.Bridge.HopSize)
	envInt("ENV_BRIDGE_COLUMNS", &cfg.Bridge.Columns)

	// ENV_RECORDING_{...}
	envBool("ENV_RECORDING_ENABLED", &cfg.Recording.Enabled)
	envString("ENV_RECORDING_OUTPUT_DIR", &cfg.Recording.OutputDir)

	// ENV_WS_{...} and ENV_UDP_{...}
	// These are specific to the transport layer.
	envBool("ENV_WS_ENABLED", &cfg.Transport.WebSocket.Enabled)
	envString("ENV_WS_ADDR", &cfg.Transport.WebSocket.Addr)
	envBool("ENV_UDP_ENABLED", &cfg.Transport.UDP.Enabled)
	envString("ENV_UDP_TARGET_ADDRESS", &cfg.Transport.UDP.TargetAddress)
	envDuration("ENV_UDP_SEND_INTERVAL", &cfg.Transport.UDP.SendInterval)

	// ENV_MEDIA_{...}
	envBool("ENV_MEDIA_ENABLED", &cfg.Media.Enabled)
	envString("ENV_MEDIA_SOURCE", &cfg.Media.Source)
	if val, ok := os.LookupEnv("ENV_MEDIA_PLAYERS"); ok {
		cfg.Media.Players = splitList(val)
		applog.Infof("configuration: Overriding ENV_MEDIA_PLAYERS from env: %v", cfg.Media.Players)
	}

	envString("ENV_FILES_DIR", &cfg.Files.Dir)
}

func envString(key string, dst *string) {
	if val, ok := os.LookupEnv(key); ok {
		*dst = val
		applog.Infof("configuration: Overriding %s from env: %s", key, val)
	}
}

func envBool(key string, dst *bool) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		applog.Warnf("configuration: ignoring %s=%q: %v", key, val, err)
		return
	}
	*dst = b
	applog.Infof("configuration: Overriding %s from env: %v", key, b)
}

func envInt(key string, dst *int) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		applog.Warnf("configuration: ignoring %s=%q: %v", key, val, err)
		return
	}
	*dst = n
	applog.Infof("configuration: Overriding %s from env: %d", key, n)
}

func envDuration(key string, dst *time.Duration) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		applog.Warnf("configuration: ignoring %s=%q: %v", key, val, err)
		return
	}
	*dst = d
	applog.Infof("configuration: Overriding %s from env: %s", key, d)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
