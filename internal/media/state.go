// SPDX-License-Identifier: MIT

// Package media reads the operating system's "now playing" session and
// delivers snapshots of it to a single consumer.
//
// Linux is read over MPRIS on the D-Bus session bus. The Windows
// GlobalSystemMediaTransportControls session has no Go binding here, so on
// Windows and every other platform the "auto" and "mpris" sources return
// ErrUnsupported. The "feed" source works everywhere.
package media

import (
	"bytes"
	"fmt"
)

// PlaybackStatus follows the Windows GlobalSystemMediaTransportControls
// numbering so consumers can treat every platform alike.
type PlaybackStatus int32

const (
	StatusClosed PlaybackStatus = iota
	StatusOpened
	StatusChanging
	StatusStopped
	StatusPlaying
	StatusPaused
)

func (p PlaybackStatus) String() string {
	switch p {
	case StatusClosed:
		return "Closed"
	case StatusOpened:
		return "Opened"
	case StatusChanging:
		return "Changing"
	case StatusStopped:
		return "Stopped"
	case StatusPlaying:
		return "Playing"
	case StatusPaused:
		return "Paused"
	}
	return fmt.Sprintf("PlaybackStatus(%d)", int32(p))
}

// State is one snapshot of the active media session.
type State struct {
	Title          string         `json:"title"`
	Artist         string         `json:"artist"`
	Album          string         `json:"album"`
	AppID          string         `json:"appId"`
	DurationMs     int64          `json:"durationMs"`
	PositionMs     int64          `json:"positionMs"`
	PlaybackStatus PlaybackStatus `json:"playbackStatus"`
	Thumbnail      []byte         `json:"thumbnail,omitempty"`
}

// Equal reports whether two snapshots are identical.
func (s State) Equal(o State) bool {
	return s.sameTrack(o) && s.PositionMs == o.PositionMs
}

// sameTrack compares everything except the playback position.
func (s State) sameTrack(o State) bool {
	return s.Title == o.Title &&
		s.Artist == o.Artist &&
		s.Album == o.Album &&
		s.AppID == o.AppID &&
		s.DurationMs == o.DurationMs &&
		s.PlaybackStatus == o.PlaybackStatus &&
		bytes.Equal(s.Thumbnail, o.Thumbnail)
}

// Empty reports whether no session is active.
func (s State) Empty() bool {
	return s.Title == "" && s.Artist == "" && s.AppID == "" && s.PlaybackStatus == StatusClosed
}
