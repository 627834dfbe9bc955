// SPDX-License-Identifier: MIT
package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"audiobridge/internal/audio"
	"audiobridge/internal/bridge"
	"audiobridge/internal/config"
	applog "audiobridge/internal/log"
	"audiobridge/internal/media"
	"audiobridge/internal/transport"
	"audiobridge/internal/transport/udp"
)

// app owns the long-lived components built from a configuration.
type app struct {
	cfg     *config.Config
	backend audio.Backend
	bridge  *bridge.Bridge
	media   *media.Bridge // nil when media is disabled or unsupported
	out     transport.Multi
}

// openBackend builds and initializes the configured audio backend.
func openBackend(cfg *config.Config) (audio.Backend, error) {
	backend, err := audio.NewBackend(cfg.Backend, audio.Options{
		FilesDir:   cfg.Files.Dir,
		LowLatency: cfg.Bridge.LowLatency,
	})
	if err != nil {
		return nil, err
	}
	if err := backend.Init(); err != nil {
		return nil, fmt.Errorf("initialize %s backend: %w", cfg.Backend, err)
	}
	return backend, nil
}

// newApp builds the bridge, the media reader and the transports. Capture
// does not start until start is called.
func newApp(cfg *config.Config) (*app, error) {
	opts, err := cfg.BridgeOptions()
	if err != nil {
		return nil, err
	}
	backend, err := openBackend(cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, backend: backend}

	// Enable is deferred to start so callbacks are in place first.
	opts.Settings.Enabled = false
	a.bridge = bridge.New(backend, opts)

	if cfg.Media.Enabled {
		src, err := media.NewSource(cfg.Media.Source, cfg.Media.Players)
		switch {
		case errors.Is(err, media.ErrUnsupported):
			applog.Warnf("Media: %v; now-playing disabled", err)
		case err != nil:
			a.close()
			return nil, err
		default:
			a.media = media.NewBridge(src, cfg.Media.Throttle)
		}
	}

	if err := a.openTransports(); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) openTransports() error {
	t := a.cfg.Transport
	if t.WebSocket.Enabled {
		ws := transport.NewWebSocketServer(t.WebSocket.Addr, t.WebSocket.Path)
		if err := ws.Start(); err != nil {
			return err
		}
		a.out = append(a.out, ws)
	}
	if t.UDP.Enabled {
		sender, err := udp.NewUDPSender(t.UDP.TargetAddress)
		if err != nil {
			return err
		}
		pub, err := udp.NewUDPPublisher(t.UDP.SendInterval, sender)
		if err != nil {
			sender.Close()
			return err
		}
		pub.Start()
		a.out = append(a.out, pub)
	}
	if len(a.out) == 0 {
		a.out = append(a.out, transport.NewLoggingTransport())
	}
	return nil
}

// start wires callbacks to the transports and begins capture.
func (a *app) start() error {
	send := func(v any) {
		if err := a.out.Send(v); err != nil {
			applog.Debugf("Transport: %v", err)
		}
	}
	a.bridge.OnFft(func(f []float32) { send(transport.Spectrum(f)) })
	a.bridge.OnWave(func(w []int16) { send(transport.Wave(w)) })
	a.bridge.OnVu(func(v []uint8) { send(transport.VU(v)) })
	a.bridge.OnState(func(s bridge.State) {
		applog.Infof("Bridge: %s", s)
		if s == bridge.StateStreaming && a.cfg.Recording.Enabled {
			a.startRecording()
		}
	})

	if a.media != nil {
		if err := a.media.Start(func(s media.State) { send(s) }); err != nil {
			applog.Warnf("Media: %v", err)
		}
	}

	if a.cfg.Bridge.Enabled {
		a.bridge.Enable(true)
	}
	return nil
}

// startRecording opens a new WAV file unless one is already being written.
func (a *app) startRecording() {
	if path, ok := a.bridge.Recording(); ok {
		applog.Debugf("Recorder: continuing %s", path)
		return
	}
	if err := os.MkdirAll(a.cfg.Recording.OutputDir, 0o755); err != nil {
		applog.Errorf("Recorder: %v", err)
		return
	}
	path := a.cfg.RecordingPath(time.Now())
	if err := a.bridge.StartRecording(path); err != nil {
		applog.Errorf("Recorder: %v", err)
		return
	}
	applog.Infof("Recorder: writing %s", path)
}

func (a *app) close() {
	if a.media != nil {
		a.media.Close()
	}
	if a.bridge != nil {
		if path, ok := a.bridge.Recording(); ok {
			applog.Infof("Recorder: saved %s", path)
		}
		if err := a.bridge.Close(); err != nil {
			applog.Errorf("Bridge: close: %v", err)
		}
	}
	if err := a.out.Close(); err != nil {
		applog.Errorf("Transport: close: %v", err)
	}
	if err := a.backend.Close(); err != nil {
		applog.Errorf("Backend: close: %v", err)
	}
}
