// SPDX-License-Identifier: MIT
package transport

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"math"

	"audiobridge/internal/media"
)

// Binary frame types. Every binary WebSocket message starts with the type as
// a little-endian uint16, followed by the little-endian payload.
const (
	FrameWave     uint16 = 0 // int16 samples
	FrameSpectrum uint16 = 1 // float32 values
	FrameVU       uint16 = 2 // uint8 levels
)

// EncodeWave frames wave points.
func EncodeWave(w Wave) []byte {
	b := make([]byte, 2, 2+2*len(w))
	binary.LittleEndian.PutUint16(b, FrameWave)
	for _, v := range w {
		b = binary.LittleEndian.AppendUint16(b, uint16(v))
	}
	return b
}

// EncodeSpectrum frames a spectrum.
func EncodeSpectrum(s Spectrum) []byte {
	b := make([]byte, 2, 2+4*len(s))
	binary.LittleEndian.PutUint16(b, FrameSpectrum)
	for _, v := range s {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(v))
	}
	return b
}

// EncodeVU frames VU levels.
func EncodeVU(v VU) []byte {
	b := make([]byte, 2, 2+len(v))
	binary.LittleEndian.PutUint16(b, FrameVU)
	return append(b, v...)
}

// MediaMetadata is the JSON form of a media session snapshot.
type MediaMetadata struct {
	Title          string  `json:"title"`
	Artist         string  `json:"artist"`
	AlbumTitle     string  `json:"albumTitle"`
	AppID          string  `json:"appId"`
	Duration       float64 `json:"duration"` // seconds
	Position       float64 `json:"position"` // seconds
	Status         any     `json:"status"`   // "Playing" or the numeric status
	AlbumArtBase64 string  `json:"albumArtBase64,omitempty"`
}

// NewMediaMetadata converts a snapshot for JSON consumers.
func NewMediaMetadata(s media.State) MediaMetadata {
	m := MediaMetadata{
		Title:      s.Title,
		Artist:     s.Artist,
		AlbumTitle: s.Album,
		AppID:      s.AppID,
		Duration:   float64(s.DurationMs) / 1000,
		Position:   float64(s.PositionMs) / 1000,
		Status:     int32(s.PlaybackStatus),
	}
	if s.PlaybackStatus == media.StatusPlaying {
		m.Status = "Playing"
	}
	if len(s.Thumbnail) > 0 {
		m.AlbumArtBase64 = "data:" + detectMime(s.Thumbnail) + ";base64," +
			base64.StdEncoding.EncodeToString(s.Thumbnail)
	}
	return m
}

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func encodeJSON(kind string, data any) ([]byte, error) {
	return json.Marshal(envelope{Type: kind, Data: data})
}

// detectMime sniffs the image formats album art arrives in.
func detectMime(b []byte) string {
	switch {
	case len(b) >= 8 && bytes.HasPrefix(b, []byte{0x89, 'P', 'N', 'G'}):
		return "image/png"
	case len(b) >= 3 && bytes.HasPrefix(b, []byte{0xFF, 0xD8, 0xFF}):
		return "image/jpeg"
	case len(b) >= 12 && string(b[:4]) == "RIFF" && string(b[8:12]) == "WEBP":
		return "image/webp"
	case len(b) >= 2 && b[0] == 'B' && b[1] == 'M':
		return "image/bmp"
	}
	return "application/octet-stream"
}
