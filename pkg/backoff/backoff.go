// SPDX-License-Identifier: MIT

// Package backoff computes bounded exponential retry delays for device
// reacquisition.
package backoff

import (
	"sync"
	"time"
)

// Backoff is an exponential backoff calculator with an optional attempt
// budget. It is safe for concurrent use.
type Backoff struct {
	mu          sync.Mutex
	current     time.Duration
	initial     time.Duration
	maxDelay    time.Duration
	factor      float64
	attempts    int
	maxAttempts int // 0 means unlimited
}

// New returns a Backoff starting at initial, doubling up to maxDelay, that
// allows maxAttempts calls to Next before Exhausted reports true.
func New(initial, maxDelay time.Duration, maxAttempts int) *Backoff {
	if initial <= 0 {
		initial = time.Millisecond
	}
	if maxDelay < initial {
		maxDelay = initial
	}
	if maxAttempts < 0 {
		maxAttempts = 0
	}
	return &Backoff{
		current:     initial,
		initial:     initial,
		maxDelay:    maxDelay,
		factor:      2.0,
		maxAttempts: maxAttempts,
	}
}

// Next returns the current delay, advances to the next value and counts one
// attempt.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	current := b.current
	b.current = min(time.Duration(float64(b.current)*b.factor), b.maxDelay)
	b.attempts++
	return current
}

// Current returns the current delay without advancing.
func (b *Backoff) Current() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Attempts returns how many delays have been handed out since the last Reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

// Exhausted reports whether the attempt budget is used up.
func (b *Backoff) Exhausted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.maxAttempts > 0 && b.attempts >= b.maxAttempts
}

// Reset sets the backoff back to the initial delay and clears the attempt count.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = b.initial
	b.attempts = 0
}
