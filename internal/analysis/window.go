// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"strings"

	applog "audiobridge/internal/log"

	"gonum.org/v1/gonum/dsp/window"
)

// WindowFunc selects the taper applied to each frame before the FFT.
type WindowFunc int

const (
	BartlettHann WindowFunc = iota
	Blackman
	BlackmanNuttall
	Hann
	Hamming
	Lanczos
	Nuttall
)

var windowNames = map[WindowFunc]string{
	BartlettHann:    "bartletthann",
	Blackman:        "blackman",
	BlackmanNuttall: "blackmannuttall",
	Hann:            "hann",
	Hamming:         "hamming",
	Lanczos:         "lanczos",
	Nuttall:         "nuttall",
}

func (w WindowFunc) String() string {
	if name, ok := windowNames[w]; ok {
		return name
	}
	return fmt.Sprintf("WindowFunc(%d)", int(w))
}

// ParseWindowFunc converts a string name (case-insensitive) to a WindowFunc
// enum, returns a known default (Hann) and an error if the name is unknown.
func ParseWindowFunc(name string) (WindowFunc, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "bartletthann":
		return BartlettHann, nil
	case "blackman":
		return Blackman, nil
	case "blackmannuttall":
		return BlackmanNuttall, nil
	case "hann", "hanning", "":
		return Hann, nil
	case "hamming":
		return Hamming, nil
	case "lanczos":
		return Lanczos, nil
	case "nuttall":
		return Nuttall, nil
	}
	return Hann, fmt.Errorf("unknown FFT window function name: '%s'", name)
}

// MarshalText lets configuration files and JSON carry the window by name.
func (w WindowFunc) MarshalText() ([]byte, error) {
	return []byte(w.String()), nil
}

func (w *WindowFunc) UnmarshalText(b []byte) error {
	v, err := ParseWindowFunc(string(b))
	if err != nil {
		return err
	}
	*w = v
	return nil
}

// fillWindow writes the coefficients of windowType into coeffs and returns
// their sum.
func fillWindow(coeffs []float64, windowType WindowFunc) float64 {
	for i := range coeffs {
		coeffs[i] = 1.0
	}
	switch windowType {
	case BartlettHann:
		window.BartlettHann(coeffs)
	case Blackman:
		window.Blackman(coeffs)
	case BlackmanNuttall:
		window.BlackmanNuttall(coeffs)
	case Hann:
		window.Hann(coeffs)
	case Hamming:
		window.Hamming(coeffs)
	case Lanczos:
		window.Lanczos(coeffs)
	case Nuttall:
		window.Nuttall(coeffs)
	default:
		applog.Warnf("Analysis: Unknown window function type %d, defaulting to Hann", windowType)
		window.Hann(coeffs)
	}
	var sum float64
	for _, c := range coeffs {
		sum += c
	}
	return sum
}
