// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	applog "audiobridge/internal/log"
	"audiobridge/internal/transport"
)

// DefaultInterval is used when no positive interval is configured (~60Hz).
const DefaultInterval = 16 * time.Millisecond

// UDPPublisher keeps the latest spectrum frame handed to Send and transmits
// it over UDP at a fixed interval. It runs in a separate goroutine managed by
// Start and Stop.
type UDPPublisher struct {
	sender   *UDPSender    // The underlying UDP sender instance.
	interval time.Duration // The interval at which packets are sent.

	latest atomic.Pointer[transport.Spectrum]

	ticker   *time.Ticker   // Ticker that triggers packet sending.
	doneChan chan struct{}  // Channel used to signal the publisher goroutine to stop.
	wg       sync.WaitGroup // Waits for the publisher goroutine to finish during Stop.
	mu       sync.Mutex     // Protects access to ticker and doneChan during Start/Stop.

	sequenceNum  uint32        // Monotonically increasing sequence number for packets.
	packetBuffer *bytes.Buffer // Reusable buffer for constructing the binary packet.
	sent         atomic.Uint64
}

// NewUDPPublisher creates a publisher over sender. If the provided interval is
// invalid (<= 0), it defaults to DefaultInterval.
func NewUDPPublisher(interval time.Duration, sender *UDPSender) (*UDPPublisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("UDPPublisher: UDP sender cannot be nil")
	}
	if interval <= 0 {
		interval = DefaultInterval
		applog.Warnf("UDPPublisher: Invalid interval provided, defaulting to %s", interval)
	}
	applog.Infof("UDPPublisher: Initializing (Interval: %s)", interval)
	return &UDPPublisher{
		sender:       sender,
		interval:     interval,
		packetBuffer: new(bytes.Buffer),
	}, nil
}

// Send records the latest spectrum frame. Clear stops transmission until
// the next frame; other payloads are ignored.
func (p *UDPPublisher) Send(data any) error {
	switch v := data.(type) {
	case transport.Spectrum:
		p.latest.Store(&v)
	case transport.Clear:
		p.latest.Store(nil)
	}
	return nil
}

// Start begins the periodic publishing process. Subsequent calls are no-ops
// while running.
func (p *UDPPublisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		applog.Warnf("UDPPublisher: Start called but already running.")
		return
	}
	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})

	// Capture local variables for the goroutine to avoid data races on p.ticker/p.doneChan
	ticker := p.ticker
	doneChan := p.doneChan
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		applog.Debugf("UDPPublisher: Publisher goroutine started (Interval: %s)", p.interval)
		for {
			select {
			case <-ticker.C:
				p.buildAndSendPacket(time.Now())
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop signals the publisher goroutine to terminate and waits for it to exit.
// It is safe to call Stop multiple times.
func (p *UDPPublisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}
	close(p.doneChan)
	p.ticker.Stop()
	p.ticker = nil
	p.mu.Unlock()

	p.wg.Wait()
	applog.Debugf("UDPPublisher: Publisher goroutine finished after %d packets.", p.sent.Load())
	return nil
}

// Sent returns the number of packets transmitted.
func (p *UDPPublisher) Sent() uint64 {
	return p.sent.Load()
}

/*
UDP Packet Structure (BigEndian)

|<---- 4 Bytes ---->|<------ 8 Bytes ------>|<-- 2 Bytes -->|<----- N * 4 Bytes ----->|
+-------------------+-----------------------+---------------+-------------------------+
|  Sequence Number  |       Timestamp       |    Column     |     Spectrum values     |
|      (uint32)     |  (int64, unix nanos)  |     Count     |      (N * float32)      |
|                   |                       |    (uint16)   |                         |
+-------------------+-----------------------+---------------+-------------------------+
*/

// HeaderSize is the number of bytes before the spectrum values.
const HeaderSize = 4 + 8 + 2

// encodePacket writes one packet into buf.
func encodePacket(buf *bytes.Buffer, seq uint32, timestamp int64, values []float32) error {
	if len(values) > 0xFFFF {
		return fmt.Errorf("spectrum too long for one packet: %d values", len(values))
	}
	buf.Reset()
	return errors.Join(
		binary.Write(buf, binary.BigEndian, seq),
		binary.Write(buf, binary.BigEndian, timestamp),
		binary.Write(buf, binary.BigEndian, uint16(len(values))),
		binary.Write(buf, binary.BigEndian, values),
	)
}

// DecodePacket parses a packet produced by the publisher.
func DecodePacket(b []byte) (seq uint32, timestamp time.Time, values []float32, err error) {
	if len(b) < HeaderSize {
		return 0, time.Time{}, nil, fmt.Errorf("short packet: %d bytes", len(b))
	}
	seq = binary.BigEndian.Uint32(b[0:4])
	ns := int64(binary.BigEndian.Uint64(b[4:12]))
	n := int(binary.BigEndian.Uint16(b[12:14]))
	if len(b) != HeaderSize+4*n {
		return 0, time.Time{}, nil, fmt.Errorf("packet length %d does not match %d values", len(b), n)
	}
	values = make([]float32, n)
	if err := binary.Read(bytes.NewReader(b[HeaderSize:]), binary.BigEndian, values); err != nil {
		return 0, time.Time{}, nil, err
	}
	return seq, time.Unix(0, ns), values, nil
}

// buildAndSendPacket sends the latest frame, if any, stamped with now.
func (p *UDPPublisher) buildAndSendPacket(now time.Time) {
	frame := p.latest.Load()
	if frame == nil {
		return
	}

	p.sequenceNum++
	if err := encodePacket(p.packetBuffer, p.sequenceNum, now.UnixNano(), *frame); err != nil {
		applog.Errorf("UDPPublisher: Error packing data into binary buffer: %v", err)
		return
	}

	// Errors are logged by the sender.
	if err := p.sender.Send(p.packetBuffer.Bytes()); err == nil {
		p.sent.Add(1)
		applog.Debugf("UDPPublisher: Sent packet %d (%d bytes)", p.sequenceNum, p.packetBuffer.Len())
	}
}

// Close stops the publisher goroutine and closes the sender.
func (p *UDPPublisher) Close() error {
	return errors.Join(p.Stop(), p.sender.Close())
}

var _ transport.Transport = (*UDPPublisher)(nil)
