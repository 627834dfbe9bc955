// SPDX-License-Identifier: MIT

// Package cmd implements the audiobridge command line.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"audiobridge/internal/config"
	applog "audiobridge/internal/log"
	"audiobridge/pkg/build"

	"github.com/spf13/cobra"
)

// flags holds command line overrides for the loaded configuration.
type flags struct {
	configPath string
	logLevel   string
	backend    string
	device     string
	loopback   bool
	columns    int
	bufferSize int
	hopSize    int
	window     string
	record     bool
	filesDir   string
	ws         bool
	wsAddr     string
	udp        bool
	udpTarget  string
	media      bool
	mediaSrc   string
	jsonOut    bool
}

// Execute parses args and runs the selected command.
func Execute(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCmd()
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	buildInfo := build.GetBuildInfo()
	var f flags

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if f.logLevel == "" {
				return nil
			}
			level, ok := applog.ParseLevel(f.logLevel)
			if !ok {
				return fmt.Errorf("unknown log level %q", f.logLevel)
			}
			applog.SetLevel(level)
			return nil
		},
	}
	rootCmd.SetVersionTemplate(buildInfo.String() + "\n")
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Capture, analyse and publish spectrum frames until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load(cmd)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	// The root command behaves like run.
	rootCmd.RunE = runCmd.RunE

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load(cmd)
			if err != nil {
				return err
			}
			return listDevices(cmd.OutOrStdout(), cfg, f.jsonOut)
		},
	}
	listCmd.Flags().BoolVar(&f.jsonOut, "json", false, "Print devices as JSON")

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Pick a device and watch its spectrum in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load(cmd)
			if err != nil {
				return err
			}
			return watch(cfg)
		},
	}

	mediaCmd := &cobra.Command{
		Use:   "media",
		Short: "Print now-playing changes as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load(cmd)
			if err != nil {
				return err
			}
			return printMedia(cmd.Context(), cmd.OutOrStdout(), cfg)
		},
	}

	rootCmd.AddCommand(runCmd, listCmd, watchCmd, mediaCmd)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&f.configPath, "config", "f", "", "Configuration file (default: ./config.yaml when present)")
	pf.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVarP(&f.backend, "backend", "B", config.DefaultBackend, "Audio backend: malgo, portaudio, file, synthetic")
	pf.StringVar(&f.filesDir, "files-dir", "", "Directory of audio files for the file backend")

	// Audio Device Configuration
	pf.StringVarP(&f.device, "device", "d", "", "Device ID. Use the 'list' command to see available devices.")
	pf.BoolVarP(&f.loopback, "loopback", "l", true, "Capture the output mix of a render device (--loopback=false for inputs)")
	pf.IntVarP(&f.columns, "columns", "c", 0, "Spectrum columns per frame")
	pf.IntVarP(&f.bufferSize, "buffer-size", "b", 0, "FFT size in samples (power of two)")
	pf.IntVar(&f.hopSize, "hop-size", 0, "Samples between consecutive frames")
	pf.StringVar(&f.window, "window", "", "FFT window function")

	// Recording Configuration
	pf.BoolVarP(&f.record, "record", "r", false, "Record the capture device to WAV")

	// Outputs
	pf.BoolVar(&f.ws, "ws", false, "Serve frames over WebSocket")
	pf.StringVar(&f.wsAddr, "ws-addr", "", "WebSocket listen address")
	pf.BoolVar(&f.udp, "udp", false, "Send spectrum frames over UDP")
	pf.StringVar(&f.udpTarget, "udp-target", "", "UDP target host:port")
	pf.BoolVar(&f.media, "media", false, "Follow the desktop media session")
	pf.StringVar(&f.mediaSrc, "media-source", "", "Media source: auto, mpris, feed")

	return rootCmd
}

// load reads the configuration and applies flags the user actually set.
func (f *flags) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.logLevel == "" {
		if level, ok := applog.ParseLevel(cfg.LogLevel); ok {
			applog.SetLevel(level)
		}
	}

	set := cmd.Flags().Changed
	if set("backend") {
		cfg.Backend = f.backend
	}
	if set("files-dir") {
		cfg.Files.Dir = f.filesDir
	}
	if set("device") {
		cfg.Bridge.Device = f.device
	}
	if set("loopback") {
		cfg.Bridge.Loopback = f.loopback
	}
	if set("columns") {
		cfg.Bridge.Columns = f.columns
	}
	if set("buffer-size") {
		cfg.Bridge.BufferSize = f.bufferSize
	}
	if set("hop-size") {
		cfg.Bridge.HopSize = f.hopSize
	}
	if set("window") {
		cfg.Bridge.Window = f.window
	}
	if set("record") {
		cfg.Recording.Enabled = f.record
	}
	if set("ws") {
		cfg.Transport.WebSocket.Enabled = f.ws
	}
	if set("ws-addr") {
		cfg.Transport.WebSocket.Addr = f.wsAddr
	}
	if set("udp") {
		cfg.Transport.UDP.Enabled = f.udp
	}
	if set("udp-target") {
		cfg.Transport.UDP.TargetAddress = f.udpTarget
	}
	if set("media") {
		cfg.Media.Enabled = f.media
	}
	if set("media-source") {
		cfg.Media.Source = f.mediaSrc
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Main runs the command line with the process arguments.
func Main() int {
	if err := Execute(os.Args[1:]); err != nil {
		applog.Errorf("%v", err)
		return 1
	}
	return 0
}
