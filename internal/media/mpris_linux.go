// SPDX-License-Identifier: MIT

//go:build linux

package media

import (
	"context"
	"errors"
	"fmt"
	"time"

	applog "audiobridge/internal/log"

	"github.com/godbus/dbus/v5"
)

func newPlatformSource(players []string) (Source, error) {
	return NewMPRISSource(players), nil
}

// MPRISSource follows MPRIS players on the D-Bus session bus.
type MPRISSource struct {
	priority []string
	poll     time.Duration
}

// NewMPRISSource prefers players in priority order (DefaultPlayers when
// empty). Snapshots refresh on PropertiesChanged and once per second.
func NewMPRISSource(priority []string) *MPRISSource {
	if len(priority) == 0 {
		priority = DefaultPlayers
	}
	return &MPRISSource{priority: priority, poll: time.Second}
}

func (m *MPRISSource) Run(ctx context.Context, emit func(State)) error {
	conn, err := dbus.ConnectSessionBus(dbus.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("connect session bus: %w", err)
	}
	defer conn.Close()

	matches := [][]dbus.MatchOption{
		{
			dbus.WithMatchObjectPath(mprisPath),
			dbus.WithMatchInterface("org.freedesktop.DBus.Properties"),
			dbus.WithMatchMember("PropertiesChanged"),
		},
		{
			dbus.WithMatchInterface("org.freedesktop.DBus"),
			dbus.WithMatchMember("NameOwnerChanged"),
			dbus.WithMatchArg0Namespace("org.mpris.MediaPlayer2"),
		},
	}
	for _, m := range matches {
		if err := conn.AddMatchSignal(m...); err != nil {
			return fmt.Errorf("subscribe to MPRIS signals: %w", err)
		}
	}

	signals := make(chan *dbus.Signal, 16)
	conn.Signal(signals)
	defer conn.RemoveSignal(signals)

	ticker := time.NewTicker(m.poll)
	defer ticker.Stop()

	refresh := func() {
		s, err := m.snapshot(ctx, conn)
		if err != nil {
			if !errors.Is(err, ErrNoPlayer) {
				applog.Debugf("MPRIS: %v", err)
			}
			emit(State{})
			return
		}
		emit(s)
	}

	applog.Infof("MPRIS: watching session bus (preferred players: %v)", m.priority)
	refresh()
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-signals:
			if !ok {
				return fmt.Errorf("session bus connection closed")
			}
			refresh()
		case <-ticker.C:
			refresh()
		}
	}
}

func (m *MPRISSource) snapshot(ctx context.Context, conn *dbus.Conn) (State, error) {
	var names []string
	if err := conn.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		return State{}, fmt.Errorf("list names: %w", err)
	}
	name := pickPlayer(names, m.priority)
	if name == "" {
		return State{}, ErrNoPlayer
	}

	var props map[string]dbus.Variant
	obj := conn.Object(name, mprisPath)
	if err := obj.CallWithContext(ctx, "org.freedesktop.DBus.Properties.GetAll", 0, mprisPlayerIface).Store(&props); err != nil {
		return State{}, fmt.Errorf("read %s: %w", name, err)
	}

	s, artURL := stateFromProperties(props)
	s.AppID = name[len(mprisPrefix):]
	if artURL != "" {
		s.Thumbnail = readThumbnail(artURL)
	}
	return s, nil
}
