// SPDX-License-Identifier: MIT
package transport

import (
	"sync/atomic"

	applog "audiobridge/internal/log"
)

// LoggingTransport implements the Transport interface by logging data at
// DEBUG level. Useful when no network consumer is configured.
type LoggingTransport struct {
	sent atomic.Uint64
}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	applog.Infof("Transport: Using LoggingTransport")
	return &LoggingTransport{}
}

// Send logs a summary of the received data.
func (lt *LoggingTransport) Send(data any) error {
	n := lt.sent.Add(1)
	if !applog.Enabled(applog.LevelDebug) {
		return nil
	}
	switch v := data.(type) {
	case Spectrum:
		applog.Debugf("LoggingTransport: #%d spectrum, %d columns, peak %.3f", n, len(v), peak(v))
	case Wave:
		applog.Debugf("LoggingTransport: #%d wave, %d points", n, len(v))
	case VU:
		applog.Debugf("LoggingTransport: #%d vu %v", n, []uint8(v))
	case Metadata:
		applog.Debugf("LoggingTransport: #%d metadata %q by %q (%s)", n, v.Title, v.Artist, v.PlaybackStatus)
	case Clear:
		applog.Debugf("LoggingTransport: #%d clear", n)
	default:
		applog.Debugf("LoggingTransport: #%d %T", n, data)
	}
	return nil // Logging transport never fails to "send"
}

// Sent returns the number of payloads received.
func (lt *LoggingTransport) Sent() uint64 {
	return lt.sent.Load()
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	applog.Debugf("LoggingTransport: Close called after %d payloads.", lt.sent.Load())
	return nil
}

func peak(s Spectrum) float32 {
	var p float32
	for _, v := range s {
		p = max(p, v)
	}
	return p
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
