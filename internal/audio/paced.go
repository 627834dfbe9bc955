// SPDX-License-Identifier: MIT
package audio

import (
	"sync"
	"time"
)

// pacedStream delivers fixed-size buffers from a fill function on a ticker,
// standing in for a driver thread.
type pacedStream struct {
	sampleRate int
	channels   int
	frames     int
	period     time.Duration

	fill    func(dst []float32) // interleaved, len = frames*channels
	onData  func([]float32, int)
	onStop  func(error)
	release func()

	startOnce sync.Once
	closeOnce sync.Once
	loseOnce  sync.Once
	done      chan struct{}
	lost      chan struct{}
	wg        sync.WaitGroup
}

func newPacedStream(sampleRate, channels, frames int, period time.Duration, cfg StreamConfig) *pacedStream {
	if period <= 0 {
		period = time.Duration(float64(frames) / float64(sampleRate) * float64(time.Second))
	}
	return &pacedStream{
		sampleRate: sampleRate,
		channels:   channels,
		frames:     frames,
		period:     period,
		onData:     cfg.OnData,
		onStop:     cfg.OnStop,
		done:       make(chan struct{}),
		lost:       make(chan struct{}),
	}
}

func (s *pacedStream) SampleRate() int { return s.sampleRate }
func (s *pacedStream) Channels() int   { return s.channels }

func (s *pacedStream) Start() error {
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go s.run()
	})
	return nil
}

func (s *pacedStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
		if s.release != nil {
			s.release()
		}
	})
	return nil
}

// lose ends delivery and reports ErrDeviceLost through OnStop.
func (s *pacedStream) lose() {
	s.loseOnce.Do(func() { close(s.lost) })
}

func (s *pacedStream) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	buf := make([]float32, s.frames*s.channels)
	for {
		select {
		case <-s.done:
			return
		case <-s.lost:
			if s.onStop != nil {
				s.onStop(ErrDeviceLost)
			}
			<-s.done
			return
		case <-ticker.C:
			s.fill(buf)
			if s.onData != nil {
				s.onData(buf, s.channels)
			}
		}
	}
}
