// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// writeWAV encodes a 16-bit mono sine wave.
func writeWAV(t *testing.T, path string, sampleRate int, freq float64, seconds float64) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	n := int(float64(sampleRate) * seconds)
	data := make([]int, n)
	for i := range data {
		data[i] = int(16000 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestDecodeWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	writeWAV(t, path, 22050, 441, 0.5)

	clip, err := DecodeFile(path)
	if err != nil {
		t.Fatalf("DecodeFile() error: %v", err)
	}
	if clip.SampleRate != 22050 || len(clip.Samples) != 11025 {
		t.Fatalf("got %d samples at %d Hz", len(clip.Samples), clip.SampleRate)
	}
	// 441 Hz at 22050 Hz has a 50 sample period; sample 12 is near the crest.
	if v := clip.Samples[12]; v < 0.45 || v > 0.5 {
		t.Errorf("crest sample = %v, want ~0.49", v)
	}
}

func TestDecodeUnsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	os.WriteFile(path, []byte("hello"), 0o644)
	if _, err := DecodeFile(path); !errors.Is(err, errUnsupportedFormat) {
		t.Errorf("err = %v, want errUnsupportedFormat", err)
	}

	bad := filepath.Join(t.TempDir(), "broken.wav")
	os.WriteFile(bad, []byte("RIFF0000WAVE"), 0o644)
	if _, err := DecodeFile(bad); err == nil {
		t.Error("decoding a truncated WAV should fail")
	}
}

func TestFileBackend(t *testing.T) {
	dir := t.TempDir()
	writeWAV(t, filepath.Join(dir, "b.wav"), 8000, 1000, 0.25)
	writeWAV(t, filepath.Join(dir, "a.wav"), 8000, 500, 0.25)
	os.WriteFile(filepath.Join(dir, "readme.md"), nil, 0o644)

	b := NewFileBackend(dir)
	if _, err := b.Devices(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Devices before Init: err = %v", err)
	}
	if err := b.Init(); err != nil {
		t.Fatalf("Init() error: %v", err)
	}
	defer b.Close()

	devices, err := b.Devices()
	if err != nil {
		t.Fatal(err)
	}
	if len(devices) != 2 || devices[0].ID != "file:a.wav" || !devices[0].IsDefault {
		t.Fatalf("Devices() = %v", devices)
	}

	got := make(chan int, 1)
	s, err := b.Open(StreamConfig{
		Device:          devices[1],
		FramesPerBuffer: 80,
		OnData: func(samples []float32, channels int) {
			select {
			case got <- len(samples) * channels:
			default:
			}
		},
	})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer s.Close()
	if s.SampleRate() != 8000 || s.Channels() != 1 {
		t.Errorf("stream format %d Hz %d ch", s.SampleRate(), s.Channels())
	}
	s.Start()
	select {
	case n := <-got:
		if n != 80 {
			t.Errorf("buffer size = %d, want 80", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no data from file stream")
	}

	if _, err := b.Open(StreamConfig{Device: Device{ID: "file:../etc/passwd"}}); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("path traversal err = %v, want ErrDeviceNotFound", err)
	}
	if _, err := b.Open(StreamConfig{Device: devices[0], Loopback: true}); !errors.Is(err, ErrLoopbackUnsupported) {
		t.Errorf("loopback err = %v, want ErrLoopbackUnsupported", err)
	}
}

func TestFileBackendInitRequiresDirectory(t *testing.T) {
	if err := NewFileBackend("").Init(); err == nil {
		t.Error("Init with empty dir should fail")
	}
	if err := NewFileBackend(filepath.Join(t.TempDir(), "missing")).Init(); err == nil {
		t.Error("Init with a missing dir should fail")
	}
}
