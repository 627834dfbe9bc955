// SPDX-License-Identifier: MIT
package media

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnsupported = errors.New("media: no media session API on this platform")
	ErrNoPlayer    = errors.New("media: no active player")
)

// Source produces media session snapshots until ctx is cancelled. emit is
// called from the source's goroutine; an empty State means no session.
type Source interface {
	Run(ctx context.Context, emit func(State)) error
}

// NewSource returns the source named in the configuration: "auto" or
// "mpris" for the desktop session bus, "feed" for a programmatic source.
func NewSource(name string, players []string) (Source, error) {
	switch strings.ToLower(name) {
	case "", "auto", "mpris":
		return newPlatformSource(players)
	case "feed":
		return NewFeedSource(16), nil
	}
	return nil, fmt.Errorf("unknown media source %q", name)
}

// FeedSource emits whatever is pushed into it. Used by tests and by
// integrations that learn about playback from elsewhere.
type FeedSource struct {
	ch chan State
}

// NewFeedSource returns a source buffering up to buffer pending states.
func NewFeedSource(buffer int) *FeedSource {
	return &FeedSource{ch: make(chan State, buffer)}
}

// Push queues s. It reports false when the buffer is full.
func (f *FeedSource) Push(s State) bool {
	select {
	case f.ch <- s:
		return true
	default:
		return false
	}
}

func (f *FeedSource) Run(ctx context.Context, emit func(State)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case s := <-f.ch:
			emit(s)
		}
	}
}
