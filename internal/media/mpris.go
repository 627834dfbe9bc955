// SPDX-License-Identifier: MIT
package media

import (
	"net/url"
	"os"
	"strings"

	"github.com/godbus/dbus/v5"
)

const (
	mprisPrefix      = "org.mpris.MediaPlayer2."
	mprisPath        = dbus.ObjectPath("/org/mpris/MediaPlayer2")
	mprisPlayerIface = "org.mpris.MediaPlayer2.Player"

	maxThumbnailBytes = 4 << 20
)

// DefaultPlayers is the MPRIS player preference order.
var DefaultPlayers = []string{"spotify", "vlc", "mpv", "plasma-browser-integration"}

// pickPlayer chooses the bus name of the preferred player among names:
// the first priority entry that matches a name's suffix, else the first MPRIS
// name. It returns "" when there is no player.
func pickPlayer(names []string, priority []string) string {
	var players []string
	for _, n := range names {
		if strings.HasPrefix(n, mprisPrefix) {
			players = append(players, n)
		}
	}
	for _, want := range priority {
		for _, p := range players {
			id := strings.TrimPrefix(p, mprisPrefix)
			// Browsers and Flatpaks append ".instance1234".
			if id == want || strings.HasPrefix(id, want+".") {
				return p
			}
		}
	}
	if len(players) > 0 {
		return players[0]
	}
	return ""
}

// stateFromProperties converts org.mpris.MediaPlayer2.Player properties.
// Times arrive in microseconds.
func stateFromProperties(props map[string]dbus.Variant) (State, string) {
	var s State
	var artURL string

	if v, ok := props["Metadata"]; ok {
		if md, ok := v.Value().(map[string]dbus.Variant); ok {
			s.Title = variantString(md["xesam:title"])
			s.Album = variantString(md["xesam:album"])
			s.Artist = strings.Join(variantStrings(md["xesam:artist"]), ", ")
			if us, ok := variantInt(md["mpris:length"]); ok {
				s.DurationMs = us / 1000
			}
			artURL = variantString(md["mpris:artUrl"])
		}
	}
	if v, ok := props["PlaybackStatus"]; ok {
		s.PlaybackStatus = parseStatus(variantString(v))
	}
	if us, ok := variantInt(props["Position"]); ok {
		s.PositionMs = us / 1000
	}
	return s, artURL
}

func parseStatus(status string) PlaybackStatus {
	switch status {
	case "Playing":
		return StatusPlaying
	case "Paused":
		return StatusPaused
	case "Stopped":
		return StatusStopped
	}
	return StatusOpened
}

// readThumbnail loads a file:// album art URL. Remote URLs are not fetched.
func readThumbnail(artURL string) []byte {
	u, err := url.Parse(artURL)
	if err != nil || u.Scheme != "file" {
		return nil
	}
	st, err := os.Stat(u.Path)
	if err != nil || st.Size() > maxThumbnailBytes {
		return nil
	}
	data, err := os.ReadFile(u.Path)
	if err != nil {
		return nil
	}
	return data
}

func variantString(v dbus.Variant) string {
	switch x := v.Value().(type) {
	case string:
		return x
	case dbus.ObjectPath:
		return string(x)
	}
	return ""
}

func variantStrings(v dbus.Variant) []string {
	switch x := v.Value().(type) {
	case []string:
		return x
	case string:
		return []string{x}
	}
	return nil
}

func variantInt(v dbus.Variant) (int64, bool) {
	switch x := v.Value().(type) {
	case int64:
		return x, true
	case uint64:
		return int64(x), true
	case int32:
		return int64(x), true
	case uint32:
		return int64(x), true
	case float64:
		return int64(x), true
	}
	return 0, false
}
