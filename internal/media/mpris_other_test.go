// SPDX-License-Identifier: MIT

//go:build !linux

package media

import (
	"errors"
	"testing"
)

func TestPlatformSourceUnsupported(t *testing.T) {
	for _, name := range []string{"", "auto", "mpris"} {
		if _, err := NewSource(name, DefaultPlayers); !errors.Is(err, ErrUnsupported) {
			t.Errorf("NewSource(%q) error = %v, want ErrUnsupported", name, err)
		}
	}
}
