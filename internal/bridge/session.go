// SPDX-License-Identifier: MIT
package bridge

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"audiobridge/internal/analysis"
	"audiobridge/internal/audio"
	applog "audiobridge/internal/log"
	"audiobridge/pkg/backoff"
)

var errStalled = errors.New("no audio received")

// session is one Enable(true)..Enable(false) lifetime. Its goroutine owns
// the stream, the PCM ring and the analysis pipeline.
type session struct {
	b *Bridge

	quit   chan struct{}
	reopen chan State // Opening or Reconfiguring
	done   chan struct{}

	pipeline *analysis.Pipeline
	waveform analysis.Waveform
	levels   analysis.Levels
	retry    *backoff.Backoff
}

// endReason tells the run loop why streaming stopped.
type endReason struct {
	quit   bool
	reopen State
	err    error
}

// openStream is one opened device stream.
type openStream struct {
	stream audio.Stream
	live   *live
	size   int // BufferSize the ring and frame were sized for
	lost   chan error
}

func newSession(b *Bridge) *session {
	rc := b.opts.Recovery
	return &session{
		b:        b,
		quit:     make(chan struct{}),
		reopen:   make(chan State, 1),
		done:     make(chan struct{}),
		pipeline: analysis.NewPipeline(),
		retry:    backoff.New(rc.InitialBackoff, rc.MaxBackoff, rc.MaxRetries),
	}
}

func (s *session) start() {
	s.b.setState(StateOpening)
	go s.run()
}

// stop ends the session and waits for the goroutine and stream to be gone.
func (s *session) stop() {
	close(s.quit)
	<-s.done
}

// requestReopen asks the capture goroutine to close and reopen the stream.
// Requests coalesce; Reconfiguring wins over Opening.
func (s *session) requestReopen(next State) {
	for {
		select {
		case s.reopen <- next:
			return
		default:
		}
		select {
		case prev := <-s.reopen:
			if prev == StateReconfiguring {
				next = prev
			}
		default:
		}
	}
}

func (s *session) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(s.done)

	next := StateOpening
	recovering := false
	for {
		if next != StateError {
			s.b.setState(next)
		}
		cs, err := s.open()
		if err != nil {
			s.b.setState(StateError)
			applog.Errorf("Bridge: open failed: %v", err)
			r := s.backoff()
			if r.quit {
				return
			}
			next = r.reopen
			recovering = next == StateError
			continue
		}

		if recovering {
			s.b.recoveries.Add(1)
			applog.Infof("Bridge: recovered on %s", cs.live.device)
		}
		recovering = false
		s.retry.Reset()
		s.b.setState(StateStreaming)

		r := s.stream(cs)
		s.close(cs)

		switch {
		case r.quit:
			return
		case r.err != nil:
			s.b.setState(StateError)
			applog.Warnf("Bridge: lost %s: %v", cs.live.device, r.err)
			r = s.backoff()
			if r.quit {
				return
			}
			next = r.reopen
			recovering = next == StateError
		default:
			next = r.reopen
		}
	}
}

// backoff waits before the next recovery attempt. Once the retry budget is
// spent it parks until a reopen request or quit. A reopen request resets the
// budget and returns the requested state; a timer expiry returns StateError
// so the retry happens without leaving Error.
func (s *session) backoff() endReason {
	if s.retry.Exhausted() {
		applog.Errorf("Bridge: giving up after %d attempts; waiting for a device change", s.retry.Attempts())
		select {
		case <-s.quit:
			return endReason{quit: true}
		case st := <-s.reopen:
			s.retry.Reset()
			return endReason{reopen: st}
		}
	}

	delay := s.retry.Next()
	timer := time.NewTimer(delay)
	defer timer.Stop()
	applog.Debugf("Bridge: retrying in %s (attempt %d)", delay, s.retry.Attempts())
	select {
	case <-s.quit:
		return endReason{quit: true}
	case st := <-s.reopen:
		s.retry.Reset()
		return endReason{reopen: st}
	case <-timer.C:
		return endReason{reopen: StateError}
	}
}

func (s *session) open() (*openStream, error) {
	b := s.b
	cfg := b.settings.Load()
	dev, err := b.resolveTarget(cfg.Loopback)
	if err != nil {
		return nil, err
	}

	ring := audio.NewRing(4 * cfg.BufferSize)
	cs := &openStream{
		size: cfg.BufferSize,
		lost: make(chan error, 1),
	}
	s.levels.Reset()
	s.waveform.Reset()

	stream, err := b.backend.Open(audio.StreamConfig{
		Device:          dev,
		Loopback:        cfg.Loopback,
		SampleRate:      b.opts.SampleRate,
		Channels:        b.opts.Channels,
		FramesPerBuffer: b.opts.FramesPerBuffer,
		OnData: func(samples []float32, channels int) {
			ring.WriteMixed(samples, channels)
			s.levels.Update(samples, channels)
			b.recorder.Write(samples, channels)
		},
		OnStop: func(err error) {
			select {
			case cs.lost <- err:
			default:
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dev, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("start %s: %w", dev, err)
	}

	cs.stream = stream
	cs.live = &live{
		device:     dev,
		loopback:   cfg.Loopback,
		sampleRate: stream.SampleRate(),
		channels:   stream.Channels(),
		ring:       ring,
	}
	b.current.Store(cs.live)
	applog.Infof("Bridge: streaming from %s (%d Hz, %d ch, buffer %d, loopback %v)",
		dev, cs.live.sampleRate, cs.live.channels, cfg.BufferSize, cfg.Loopback)
	return cs, nil
}

func (s *session) close(cs *openStream) {
	s.b.current.Store(nil)
	s.b.dropPending()
	if err := cs.stream.Close(); err != nil {
		applog.Warnf("Bridge: closing %s: %v", cs.live.device, err)
	}
	s.b.overruns.Add(cs.live.ring.Overruns())
}

// interrupted reports whether a quit or reopen is waiting, so a backlog of
// audio cannot delay either.
func (s *session) interrupted() bool {
	if len(s.reopen) > 0 {
		return true
	}
	select {
	case <-s.quit:
		return true
	default:
		return false
	}
}

// stream runs the analysis loop until quit, a reopen request or device loss.
func (s *session) stream(cs *openStream) endReason {
	b := s.b
	ring := cs.live.ring
	rate := float64(cs.live.sampleRate)
	frame := make([]float32, cs.size)

	var stallC <-chan time.Time
	var stall *time.Timer
	if timeout := b.opts.Recovery.StallTimeout; timeout > 0 {
		stall = time.NewTimer(timeout)
		defer stall.Stop()
		stallC = stall.C
	}

	var meterEvery time.Duration
	if b.opts.MeterRate > 0 {
		meterEvery = time.Duration(float64(time.Second) / b.opts.MeterRate)
	}
	lastMeter := time.Now()

	for {
		for ring.Available() >= cs.size && !s.interrupted() {
			cfg := b.settings.Load()
			ring.Peek(frame)

			out, err := s.pipeline.Analyze(make([]float32, cfg.Columns), frame, cfg.params(rate, cs.size))
			if err != nil {
				return endReason{err: err}
			}
			b.fft.Publish(out)
			b.frames.Add(1)

			hop := min(cfg.HopSize, cs.size)
			if meterEvery > 0 {
				s.waveform.Push(frame[cs.size-hop:])
			}
			ring.Discard(hop)
		}

		if meterEvery > 0 && time.Since(lastMeter) >= meterEvery {
			lastMeter = time.Now()
			gain := b.settings.Load().MasterGain
			if s.waveform.Ready() {
				b.wave.Publish(s.waveform.Render(nil, gain))
			}
			if levels := s.levels.Read(nil, gain); len(levels) > 0 {
				b.vu.Publish(levels)
			}
		}

		select {
		case <-s.quit:
			return endReason{quit: true}
		case st := <-s.reopen:
			if st == StateReconfiguring {
				applog.Infof("Bridge: reconfiguring for buffer size %d", b.settings.Load().BufferSize)
			}
			return endReason{reopen: st}
		case err := <-cs.lost:
			if err == nil {
				err = audio.ErrDeviceLost
			}
			return endReason{err: err}
		case <-ring.Notify():
			if stall != nil {
				stall.Reset(b.opts.Recovery.StallTimeout)
			}
		case <-stallC:
			return endReason{err: fmt.Errorf("%w: %w for %s", audio.ErrDeviceLost, errStalled, b.opts.Recovery.StallTimeout)}
		}
	}
}
