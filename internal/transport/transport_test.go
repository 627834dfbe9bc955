// SPDX-License-Identifier: MIT
package transport

import (
	"errors"
	"testing"
)

type recordingTransport struct {
	got    []any
	err    error
	closed bool
}

func (r *recordingTransport) Send(data any) error {
	r.got = append(r.got, data)
	return r.err
}

func (r *recordingTransport) Close() error {
	r.closed = true
	return r.err
}

func TestMulti(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	a, b := &recordingTransport{}, &recordingTransport{err: boom}
	m := Multi{a, b}

	err := m.Send(Spectrum{1})
	if !errors.Is(err, boom) {
		t.Errorf("Send error = %v, want boom", err)
	}
	if len(a.got) != 1 || len(b.got) != 1 {
		t.Errorf("fan-out reached %d and %d transports", len(a.got), len(b.got))
	}
	if err := m.Close(); !errors.Is(err, boom) || !a.closed || !b.closed {
		t.Errorf("Close = %v, closed %v/%v", err, a.closed, b.closed)
	}
}

func TestLoggingTransport(t *testing.T) {
	t.Parallel()
	lt := NewLoggingTransport()
	for _, v := range []any{Spectrum{0.2, 0.9}, Wave{1}, VU{3}, Metadata{Title: "x"}, Clear{}, 42} {
		if err := lt.Send(v); err != nil {
			t.Fatalf("Send(%T): %v", v, err)
		}
	}
	if lt.Sent() != 6 {
		t.Errorf("Sent = %d, want 6", lt.Sent())
	}
	if p := peak(Spectrum{0.2, 0.9, 0.1}); p != 0.9 {
		t.Errorf("peak = %v", p)
	}
}
