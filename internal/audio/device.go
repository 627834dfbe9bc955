// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"strings"
)

// Flow tells whether an endpoint plays audio (render) or records it (capture).
type Flow string

const (
	FlowRender  Flow = "render"
	FlowCapture Flow = "capture"
)

// ParseFlow converts "render"/"capture" (case-insensitive) to a Flow.
func ParseFlow(s string) (Flow, error) {
	switch Flow(strings.ToLower(strings.TrimSpace(s))) {
	case FlowRender:
		return FlowRender, nil
	case FlowCapture:
		return FlowCapture, nil
	}
	return "", fmt.Errorf("unknown device flow %q", s)
}

// Device describes an audio endpoint. IDs are opaque and stable for the
// lifetime of the physical endpoint; a fresh enumeration may add or remove
// devices but never changes the ID of one that is still present.
type Device struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Flow      Flow   `json:"flow"`
	IsDefault bool   `json:"isDefault,omitempty"`
}

func (d Device) String() string {
	return fmt.Sprintf("%s (%s)", d.Name, d.Flow)
}

var (
	ErrDeviceNotFound      = errors.New("audio: device not found")
	ErrDeviceLost          = errors.New("audio: device lost")
	ErrNoDevice            = errors.New("audio: no device selected and no default device available")
	ErrLoopbackUnsupported = errors.New("audio: loopback capture is not supported by this backend")
	ErrUnknownBackend      = errors.New("audio: unknown backend")
	ErrNotInitialized      = errors.New("audio: backend not initialized")
	ErrStreamClosed        = errors.New("audio: stream closed")
)

// FindDevice returns the device with the given id.
func FindDevice(devices []Device, id string) (Device, bool) {
	for _, d := range devices {
		if d.ID == id {
			return d, true
		}
	}
	return Device{}, false
}

// DefaultOf picks the default device of the given flow from a listing,
// falling back to the first device of that flow.
func DefaultOf(devices []Device, flow Flow) (Device, error) {
	var first *Device
	for i := range devices {
		d := &devices[i]
		if d.Flow != flow {
			continue
		}
		if d.IsDefault {
			return *d, nil
		}
		if first == nil {
			first = d
		}
	}
	if first == nil {
		return Device{}, fmt.Errorf("no %s device: %w", flow, ErrNoDevice)
	}
	return *first, nil
}
