// SPDX-License-Identifier: MIT
package bridge

import "time"

// Recovery bounds automatic device reacquisition.
type Recovery struct {
	MaxRetries     int           // attempts before the session parks in Error; 0 retries forever
	InitialBackoff time.Duration // delay before the first retry
	MaxBackoff     time.Duration
	StallTimeout   time.Duration // no audio for this long counts as device loss; 0 disables
}

// Options configures a Bridge at construction.
type Options struct {
	Settings Settings
	DeviceID string // initial selection; empty follows the OS default

	// Stream format hints passed to the backend; 0 lets the device decide.
	SampleRate      int
	Channels        int
	FramesPerBuffer int

	MeterRate float64 // wave/VU frames per second; 0 disables meters

	RecordBitDepth int // WAV recording sample size: 16, 24 or 32

	Recovery Recovery
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Settings:       DefaultSettings(),
		MeterRate:      60,
		RecordBitDepth: 16,
		Recovery: Recovery{
			MaxRetries:     8,
			InitialBackoff: 250 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
			StallTimeout:   2 * time.Second,
		},
	}
}
