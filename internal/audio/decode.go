// SPDX-License-Identifier: MIT
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	"github.com/mewkiz/flac"
)

// maxReplaySeconds bounds how much of a file is decoded into memory.
const maxReplaySeconds = 600

// Clip is a decoded mono recording.
type Clip struct {
	Samples    []float32
	SampleRate int
}

var errUnsupportedFormat = errors.New("unsupported audio format")

// replayable reports whether the file extension has a decoder.
func replayable(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".mp3", ".flac", ".ogg":
		return true
	}
	return false
}

// DecodeFile decodes a WAV, MP3, FLAC or Ogg Vorbis file and downmixes it to
// mono float32 in [-1, 1].
func DecodeFile(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var clip *Clip
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav":
		clip, err = decodeWAV(f)
	case ".mp3":
		clip, err = decodeMP3(f)
	case ".flac":
		clip, err = decodeFLAC(f)
	case ".ogg":
		clip, err = decodeOGG(f)
	default:
		return nil, fmt.Errorf("%w: %s", errUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	if len(clip.Samples) == 0 || clip.SampleRate <= 0 {
		return nil, fmt.Errorf("decode %s: no audio", filepath.Base(path))
	}
	return clip, nil
}

// mixer accumulates interleaved frames as mono samples.
type mixer struct {
	channels int
	limit    int
	out      []float32
}

func newMixer(channels, sampleRate int) *mixer {
	return &mixer{channels: max(channels, 1), limit: maxReplaySeconds * sampleRate}
}

func (m *mixer) full() bool { return len(m.out) >= m.limit }

// frame appends one frame given a per-channel sample accessor.
func (m *mixer) frame(sample func(ch int) float32) {
	if m.full() {
		return
	}
	var sum float32
	for ch := 0; ch < m.channels; ch++ {
		sum += sample(ch)
	}
	m.out = append(m.out, sum/float32(m.channels))
}

func decodeWAV(r io.ReadSeeker) (*Clip, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("invalid WAV file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("reading WAV PCM data: %w", err)
	}

	channels := int(dec.NumChans)
	bitDepth := int(dec.BitDepth)
	rate := int(dec.SampleRate)
	scale := 1 / float32(int64(1)<<(bitDepth-1))
	bias := 0
	if bitDepth == 8 {
		bias = 128 // 8-bit WAV is unsigned
	}

	m := newMixer(channels, rate)
	for i := 0; i+channels <= len(buf.Data) && !m.full(); i += channels {
		m.frame(func(ch int) float32 { return float32(buf.Data[i+ch]-bias) * scale })
	}
	return &Clip{Samples: m.out, SampleRate: rate}, nil
}

func decodeMP3(r io.Reader) (*Clip, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, err
	}
	// go-mp3 always produces 16-bit little-endian stereo.
	const channels = 2
	m := newMixer(channels, dec.SampleRate())
	chunk := make([]byte, 4096*channels*2)
	for !m.full() {
		n, err := io.ReadFull(dec, chunk)
		for i := 0; i+channels*2 <= n; i += channels * 2 {
			frame := chunk[i:]
			m.frame(func(ch int) float32 {
				return float32(int16(binary.LittleEndian.Uint16(frame[ch*2:]))) / 32768
			})
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return &Clip{Samples: m.out, SampleRate: dec.SampleRate()}, nil
}

func decodeFLAC(r io.Reader) (*Clip, error) {
	stream, err := flac.New(r)
	if err != nil {
		return nil, err
	}
	info := stream.Info
	channels := int(info.NChannels)
	scale := 1 / float32(int64(1)<<(int(info.BitsPerSample)-1))

	m := newMixer(channels, int(info.SampleRate))
	for !m.full() {
		frame, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		n := int(frame.Subframes[0].NSamples)
		for i := 0; i < n; i++ {
			m.frame(func(ch int) float32 { return float32(frame.Subframes[ch].Samples[i]) * scale })
		}
	}
	return &Clip{Samples: m.out, SampleRate: int(info.SampleRate)}, nil
}

func decodeOGG(r io.Reader) (*Clip, error) {
	reader, err := oggvorbis.NewReader(r)
	if err != nil {
		return nil, err
	}
	channels := reader.Channels()
	m := newMixer(channels, reader.SampleRate())
	samples := make([]float32, 4096*channels)
	for !m.full() {
		n, err := reader.Read(samples)
		for i := 0; i+channels <= n; i += channels {
			m.frame(func(ch int) float32 { return samples[i+ch] })
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if n == 0 {
			break
		}
	}
	return &Clip{Samples: m.out, SampleRate: reader.SampleRate()}, nil
}
