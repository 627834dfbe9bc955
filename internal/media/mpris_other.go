// SPDX-License-Identifier: MIT

//go:build !linux

package media

func newPlatformSource([]string) (Source, error) {
	return nil, ErrUnsupported
}
