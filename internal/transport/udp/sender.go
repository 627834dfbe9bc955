// SPDX-License-Identifier: MIT
package udp

import (
	"errors"
	"fmt"
	"net"
	"sync"

	applog "audiobridge/internal/log"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("UDP sender is closed")

// UDPSender handles sending datagrams to one target.
type UDPSender struct {
	mu     sync.Mutex // Protects conn during Close
	conn   *net.UDPConn
	target string
	failed uint64 // consecutive write failures, for log throttling
}

// NewUDPSender creates a new UDPSender targeting the specified address.
// The address should be in the format "host:port", e.g., "127.0.0.1:9090".
func NewUDPSender(targetAddress string) (*UDPSender, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", targetAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP target address '%s': %w", targetAddress, err)
	}

	// No local address: the kernel picks an ephemeral port.
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial UDP for target '%s': %w", targetAddress, err)
	}

	applog.Infof("UDPSender: Sending to %s", conn.RemoteAddr())
	return &UDPSender{conn: conn, target: conn.RemoteAddr().String()}, nil
}

// Send transmits data as one datagram. Safe for concurrent use.
func (s *UDPSender) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ErrClosed
	}
	if _, err := s.conn.Write(data); err != nil {
		// Nobody listening yields ECONNREFUSED on every packet; log the
		// first failure of a run only.
		if s.failed == 0 {
			applog.Warnf("UDPSender: Error sending to %s: %v", s.target, err)
		}
		s.failed++
		return fmt.Errorf("failed to send UDP packet: %w", err)
	}
	if s.failed > 0 {
		applog.Infof("UDPSender: Sending to %s again after %d failures", s.target, s.failed)
		s.failed = 0
	}
	return nil
}

// Close closes the underlying UDP connection.
func (s *UDPSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil // Already closed
	}
	applog.Debugf("UDPSender: Closing connection to %s", s.target)
	err := s.conn.Close()
	s.conn = nil
	if err != nil {
		return fmt.Errorf("failed to close UDP connection: %w", err)
	}
	return nil
}

var _ interface{ Close() error } = (*UDPSender)(nil)
