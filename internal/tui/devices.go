// SPDX-License-Identifier: MIT

// Package tui is the terminal front end: a device picker followed by live
// spectrum bars for the selected device.
package tui

import (
	"fmt"
	"strings"
	"time"

	"audiobridge/internal/audio"
	"audiobridge/internal/bridge"
	"audiobridge/internal/media"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7A7A7A"))
)

var keys = struct {
	quit, up, down, enter, back, loopback, window key.Binding
}{
	quit:     key.NewBinding(key.WithKeys("q", "ctrl+c")),
	up:       key.NewBinding(key.WithKeys("up", "k")),
	down:     key.NewBinding(key.WithKeys("down", "j")),
	enter:    key.NewBinding(key.WithKeys("enter")),
	back:     key.NewBinding(key.WithKeys("esc")),
	loopback: key.NewBinding(key.WithKeys("l")),
	window:   key.NewBinding(key.WithKeys("w")),
}

// ScreenType defines which screen is currently active
type ScreenType int

const (
	ListScreen ScreenType = iota
	SpectrumScreen
)

const frameRate = 60

// Model is the Bubble Tea model driving a bridge.
type Model struct {
	bridge *bridge.Bridge

	devices       []audio.Device
	selectedIndex int
	viewport      viewport.Model
	ready         bool
	err           error
	activeScreen  ScreenType

	bars       *Bars
	width      int
	state      bridge.State
	nowPlaying media.State
}

type (
	devicesMsg  []audio.Device
	spectrumMsg []float32
	stateMsg    bridge.State
	mediaMsg    media.State
	tickMsg     time.Time
)

// NewModel creates the model for b.
func NewModel(b *bridge.Bridge) Model {
	return Model{
		bridge:       b,
		activeScreen: ListScreen,
		bars:         NewBars(frameRate),
		state:        b.State(),
	}
}

// Init initializes the Bubble Tea model
func (m Model) Init() tea.Cmd {
	return m.fetchDevices
}

// fetchDevices queries the bridge for endpoints.
func (m Model) fetchDevices() tea.Msg {
	return devicesMsg(m.bridge.ListDevices())
}

func tick() tea.Cmd {
	return tea.Tick(time.Second/frameRate, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}
		m.refresh()

	case devicesMsg:
		m.devices = msg
		m.selectedIndex = min(m.selectedIndex, max(len(m.devices)-1, 0))
		m.refresh()

	case spectrumMsg:
		m.bars.SetTarget(msg)

	case stateMsg:
		m.state = bridge.State(msg)

	case mediaMsg:
		m.nowPlaying = media.State(msg)

	case tickMsg:
		if m.activeScreen != SpectrumScreen {
			return m, nil
		}
		m.bars.Step()
		m.refresh()
		return m, tick()

	case tea.KeyMsg:
		if key.Matches(msg, keys.quit) {
			return m, tea.Quit
		}
		if m.activeScreen == ListScreen {
			switch {
			case key.Matches(msg, keys.up):
				if m.selectedIndex > 0 {
					m.selectedIndex--
				}
			case key.Matches(msg, keys.down):
				if m.selectedIndex < len(m.devices)-1 {
					m.selectedIndex++
				}
			case key.Matches(msg, keys.enter):
				if cmd := m.selectDevice(); cmd != nil {
					cmds = append(cmds, cmd)
				}
			}
		} else {
			switch {
			case key.Matches(msg, keys.back):
				m.activeScreen = ListScreen
				cmds = append(cmds, m.fetchDevices)
			case key.Matches(msg, keys.loopback):
				m.bridge.SetLoopback(!m.bridge.Settings().Loopback)
			case key.Matches(msg, keys.window):
				m.bridge.SetWindow(nextWindow(m.bridge.Settings().Window))
			}
		}
		m.refresh()
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// selectDevice applies the highlighted device the way a user picking an
// output expects: render endpoints are captured in loopback.
func (m *Model) selectDevice() tea.Cmd {
	if len(m.devices) == 0 {
		return nil
	}
	d := m.devices[m.selectedIndex]
	if !m.bridge.SetDevice(d.ID) {
		m.err = fmt.Errorf("device %s is no longer available", d.Name)
		return m.fetchDevices
	}
	m.err = nil
	m.bridge.SetLoopback(d.Flow == audio.FlowRender)
	m.bridge.Enable(true)
	m.activeScreen = SpectrumScreen
	return tick()
}

func (m *Model) refresh() {
	if !m.ready {
		return
	}
	if m.activeScreen == ListScreen {
		m.viewport.SetContent(m.renderDevices())
	} else {
		m.viewport.SetContent(m.renderSpectrum())
	}
}

// View renders the UI
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	var title, help string
	if m.activeScreen == ListScreen {
		title = titleStyle.Render("Audio Device List")
		help = infoStyle.Render("↑/↓: Navigate • Enter: Capture • q: Quit")
	} else {
		title = titleStyle.Render("Spectrum")
		help = infoStyle.Render("l: Toggle loopback • w: Window • Esc: Devices • q: Quit")
	}
	if m.err != nil {
		help = fmt.Sprintf("Error: %v\n%s", m.err, help)
	}
	return fmt.Sprintf("%s\n\n%s\n\n%s", title, m.viewport.View(), help)
}

// renderDevices formats the device list
func (m Model) renderDevices() string {
	if len(m.devices) == 0 {
		return "No audio devices found."
	}

	current, _ := m.bridge.CurrentDevice()
	var sb strings.Builder
	for i, device := range m.devices {
		marker := " "
		if device.ID == current.ID {
			marker = "●"
		}
		deviceInfo := fmt.Sprintf("%s %s (%s)", marker, device.Name, device.Flow)
		if device.IsDefault {
			deviceInfo += " [default]"
		}
		deviceInfo += "\n" + dimStyle.Render("    "+device.ID) + "\n"

		if i == m.selectedIndex {
			deviceInfo = highlightStyle.Render(deviceInfo)
		}
		sb.WriteString(deviceInfo)
		sb.WriteString("\n")
	}
	return sb.String()
}

// Run launches the TUI. mb may be nil when no media source is configured.
func Run(b *bridge.Bridge, mb *media.Bridge) error {
	p := tea.NewProgram(NewModel(b), tea.WithAltScreen())

	b.OnFft(func(f []float32) { p.Send(spectrumMsg(f)) })
	b.OnState(func(s bridge.State) { p.Send(stateMsg(s)) })
	defer b.OnFft(nil)
	defer b.OnState(nil)

	if mb != nil {
		if err := mb.Start(func(s media.State) { p.Send(mediaMsg(s)) }); err == nil {
			defer mb.Stop()
		}
	}

	_, err := p.Run()
	return err
}
