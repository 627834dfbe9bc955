// SPDX-License-Identifier: MIT

// Package transport pushes bridge output to consumers outside the process.
package transport

import (
	"errors"

	"audiobridge/internal/media"
)

// Transport defines a generic interface for sending processed data or events.
// Implementations should be thread-safe and must not block the caller on
// slow peers.
type Transport interface {
	Send(data any) error
	Close() error
}

// Payload types understood by the transports. Frames handed to Send are
// owned by the transport afterwards.
type (
	Spectrum []float32 // one value per column in [0,1]
	Wave     []int16   // oscilloscope points
	VU       []uint8   // per-channel level
	Metadata = media.State
	Clear    struct{} // forget the current media session
)

// Multi fans every Send out to all transports.
type Multi []Transport

func (m Multi) Send(data any) error {
	var errs []error
	for _, t := range m {
		if err := t.Send(data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, t := range m {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ Transport = Multi(nil)
