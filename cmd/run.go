// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"audiobridge/internal/bridge"
	"audiobridge/internal/config"
	applog "audiobridge/internal/log"
	"audiobridge/internal/media"
	"audiobridge/internal/tui"
)

// run captures until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.start(); err != nil {
		return err
	}
	if d, err := a.bridge.CurrentDevice(); err == nil {
		applog.Infof("Bridge: capturing %s [%s], loopback %v", d.Name, d.ID, cfg.Bridge.Loopback)
	} else {
		applog.Warnf("Bridge: %v", err)
	}

	<-ctx.Done()

	st := a.bridge.Stats()
	applog.Infof("Bridge: shutting down after %d frames (%d delivered, %d dropped, %d overruns, %d recoveries)",
		st.Frames, st.Fft.Delivered, st.Fft.Dropped, st.Overruns, st.Recoveries)
	return nil
}

// listDevices prints every endpoint of the configured backend.
func listDevices(w io.Writer, cfg *config.Config, asJSON bool) error {
	backend, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	b := bridge.New(backend, bridge.DefaultOptions())
	defer b.Close()
	devices := b.ListDevices()

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(devices)
	}
	if len(devices) == 0 {
		_, err := fmt.Fprintf(w, "No audio devices found on the %s backend.\n", cfg.Backend)
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FLOW\tDEFAULT\tNAME\tID")
	for _, d := range devices {
		def := ""
		if d.IsDefault {
			def = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.Flow, def, d.Name, d.ID)
	}
	return tw.Flush()
}

// watch runs the terminal UI. Log output would corrupt the screen, so it is
// discarded while the UI runs.
func watch(cfg *config.Config) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	applog.SetOutput(io.Discard)
	defer applog.SetOutput(os.Stderr)
	return tui.Run(a.bridge, a.media)
}

// printMedia writes one JSON line per media session change.
func printMedia(ctx context.Context, w io.Writer, cfg *config.Config) error {
	src, err := media.NewSource(cfg.Media.Source, cfg.Media.Players)
	if err != nil {
		return err
	}
	mb := media.NewBridge(src, cfg.Media.Throttle)
	defer mb.Close()

	lines := make(chan media.State, 1)
	if err := mb.Start(func(s media.State) {
		select {
		case lines <- s:
		case <-ctx.Done():
		}
	}); err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	for {
		select {
		case <-ctx.Done():
			return nil
		case s := <-lines:
			if err := enc.Encode(s); err != nil {
				return err
			}
		}
	}
}
