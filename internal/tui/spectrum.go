// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"strings"
	"time"

	"audiobridge/internal/analysis"
	"audiobridge/internal/bridge"
	"audiobridge/internal/media"

	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"
)

const barHeight = 12

var (
	barStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#25A065"))
	stateStyle = map[bridge.State]lipgloss.Style{
		bridge.StateStreaming:     lipgloss.NewStyle().Foreground(lipgloss.Color("#25A065")),
		bridge.StateOpening:       lipgloss.NewStyle().Foreground(lipgloss.Color("#E0C341")),
		bridge.StateReconfiguring: lipgloss.NewStyle().Foreground(lipgloss.Color("#E0C341")),
		bridge.StateError:         lipgloss.NewStyle().Foreground(lipgloss.Color("#E05A41")),
	}
	stateLabel = map[bridge.State]string{
		bridge.StateStopped:       "Stopped",
		bridge.StateOpening:       "Opening",
		bridge.StateStreaming:     "Streaming",
		bridge.StateReconfiguring: "Reconfiguring",
		bridge.StateError:         "Error",
	}
)

// Bars eases displayed bar heights toward the latest spectrum with one
// critically damped spring per column.
type Bars struct {
	spring harmonica.Spring
	pos    []float64
	vel    []float64
	target []float64
}

// NewBars creates bars stepped fps times per second.
func NewBars(fps int) *Bars {
	return &Bars{spring: harmonica.NewSpring(harmonica.FPS(fps), 8.0, 1.0)}
}

// SetTarget sets the heights the bars move toward. A frame with a different
// column count resets the bars.
func (b *Bars) SetTarget(frame []float32) {
	if len(frame) != len(b.target) {
		b.pos = make([]float64, len(frame))
		b.vel = make([]float64, len(frame))
		b.target = make([]float64, len(frame))
	}
	for i, v := range frame {
		b.target[i] = float64(v)
	}
}

// Step advances every spring by one frame.
func (b *Bars) Step() {
	for i := range b.pos {
		b.pos[i], b.vel[i] = b.spring.Update(b.pos[i], b.vel[i], b.target[i])
	}
}

// Levels returns the current heights clamped to [0,1].
func (b *Bars) Levels() []float64 {
	out := make([]float64, len(b.pos))
	for i, p := range b.pos {
		out[i] = min(max(p, 0), 1)
	}
	return out
}

var blocks = []rune(" ▁▂▃▄▅▆▇█")

// renderBars draws levels in [0,1] as vertical bars height rows tall.
func renderBars(levels []float64, height int) []string {
	rows := make([]string, height)
	steps := len(blocks) - 1
	var sb strings.Builder
	for r := range height {
		sb.Reset()
		floor := height - 1 - r // full rows below this one
		for _, v := range levels {
			fill := int(v*float64(height*steps) + 0.5)
			n := min(max(fill-floor*steps, 0), steps)
			sb.WriteRune(blocks[n])
		}
		rows[r] = sb.String()
	}
	return rows
}

// fitColumns averages levels down to at most width columns.
func fitColumns(levels []float64, width int) []float64 {
	if width <= 0 || len(levels) <= width {
		return levels
	}
	out := make([]float64, width)
	for i := range out {
		lo, hi := i*len(levels)/width, (i+1)*len(levels)/width
		var sum float64
		for _, v := range levels[lo:hi] {
			sum += v
		}
		out[i] = sum / float64(hi-lo)
	}
	return out
}

func (m Model) renderSpectrum() string {
	var sb strings.Builder

	device := "no device"
	if d, ok := m.bridge.ActiveDevice(); ok {
		device = d.String()
	}
	s := m.bridge.Settings()
	st := stateStyle[m.state].Render(stateLabel[m.state])
	fmt.Fprintf(&sb, "%s  %s  %d cols  fft %d/%d  %s  loopback %v\n\n",
		st, device, s.Columns, s.BufferSize, s.HopSize, s.Window, s.Loopback)

	for _, row := range renderBars(fitColumns(m.bars.Levels(), m.width), barHeight) {
		sb.WriteString(barStyle.Render(row))
		sb.WriteByte('\n')
	}
	sb.WriteString("\n" + nowPlayingLine(m.nowPlaying))
	return sb.String()
}

func nowPlayingLine(s media.State) string {
	if s.Empty() {
		return dimStyle.Render("Nothing playing")
	}
	line := s.Title
	if s.Artist != "" {
		line = s.Artist + " - " + line
	}
	if s.DurationMs > 0 {
		line += fmt.Sprintf("  %s / %s", clock(s.PositionMs), clock(s.DurationMs))
	}
	return fmt.Sprintf("♪ %s  [%s]", line, s.PlaybackStatus)
}

func clock(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

var windowCycle = []analysis.WindowFunc{
	analysis.Hann,
	analysis.Hamming,
	analysis.Blackman,
	analysis.BlackmanNuttall,
	analysis.Nuttall,
	analysis.BartlettHann,
	analysis.Lanczos,
}

func nextWindow(w analysis.WindowFunc) analysis.WindowFunc {
	for i, v := range windowCycle {
		if v == w {
			return windowCycle[(i+1)%len(windowCycle)]
		}
	}
	return analysis.Hann
}
