// Package tui provides the terminal control panel for the interrupter
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/james-see/coilmidi/pkg/player"
	"github.com/james-see/coilmidi/pkg/sequencer"
	"github.com/james-see/coilmidi/pkg/storage"
	"github.com/james-see/coilmidi/pkg/tone"
)

// Arc-inspired color scheme (plasma violet on dark)
var (
	plasma    = lipgloss.Color("#B388FF")
	arcYellow = lipgloss.Color("#FFFF00")
	silver    = lipgloss.Color("#C0C0C0")
	darkGray  = lipgloss.Color("#333333")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(plasma).
			Background(darkGray).
			Padding(0, 2).
			MarginBottom(1)

	menuStyle = lipgloss.NewStyle().
			Foreground(silver).
			PaddingLeft(2)

	selectedStyle = lipgloss.NewStyle().
			Foreground(plasma).
			Bold(true).
			PaddingLeft(2)

	statusStyle = lipgloss.NewStyle().
			Foreground(arcYellow).
			PaddingTop(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	noteStyle = lipgloss.NewStyle().
			Foreground(plasma).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			MarginTop(1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(plasma).
			Padding(1, 2)
)

const refreshInterval = 100 * time.Millisecond

// Manual control steps: one frequency table entry, two percent of the duty knob
var (
	frequencyStep = uint16((tone.ADCMax + len(tone.FrequencyTable) - 2) / (len(tone.FrequencyTable) - 1))
	dutyStep      = uint16(tone.ADCMax / 50)
)

// Controller is what the panel drives; *player.Player implements it
type Controller interface {
	Files() ([]string, error)
	SelectFile(name string) error
	StartPlayback() (uint64, error)
	TogglePause() bool
	StopPlayback()
	EnterManualMode()
	LeaveManualMode()
	SetManualOutput(rawFrequency, rawDuty uint16) error
	Status() player.Status
	Failures() <-chan player.Failure
}

// State is the screen being shown
type State int

const (
	StateManual State = iota
	StateFileMenu
	StateStartMenu
	StatePlayback
)

var startItems = []string{"Start", storage.BackEntry}

// Model is the control panel
type Model struct {
	ctl   Controller
	state State

	files      []string
	selected   string
	menuIndex  int
	startIndex int
	session    uint64

	rawFrequency uint16
	rawDuty      uint16
	limits       tone.Limits
	manual       tone.ManualTable

	status  player.Status
	err     error
	spinner spinner.Model
	bar     progress.Model
	width   int
}

type tickMsg time.Time

type failureMsg player.Failure

type filesMsg struct {
	files []string
	err   error
}

// New creates the panel in manual mode
func New(ctl Controller, limits tone.Limits, manual tone.ManualTable) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(plasma)

	return Model{
		ctl:     ctl,
		state:   StateManual,
		limits:  limits,
		manual:  manual,
		spinner: s,
		bar:     progress.New(progress.WithGradient("#6A1B9A", "#B388FF"), progress.WithWidth(40)),
	}
}

// Init starts polling the controller
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick(), m.waitForFailure())
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) waitForFailure() tea.Cmd {
	ch := m.ctl.Failures()
	return func() tea.Msg {
		f, ok := <-ch
		if !ok {
			return nil
		}
		return failureMsg(f)
	}
}

func (m Model) loadFiles() tea.Cmd {
	return func() tea.Msg {
		files, err := m.ctl.Files()
		return filesMsg{files: files, err: err}
	}
}

// Update handles TUI updates
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tickMsg:
		m.status = m.ctl.Status()
		if m.state == StatePlayback && m.status.Session == m.session && !m.status.Playing {
			m.state = StateFileMenu
		}
		return m, tick()

	case failureMsg:
		m.err = player.Failure(msg)
		return m, m.waitForFailure()

	case filesMsg:
		m.files, m.err = msg.files, msg.err
		if m.menuIndex >= len(m.files) {
			m.menuIndex = 0
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			m.ctl.StopPlayback()
			return m, tea.Quit
		}
		switch m.state {
		case StateManual:
			return m.updateManual(msg)
		case StateFileMenu:
			return m.updateFileMenu(msg)
		case StateStartMenu:
			return m.updateStartMenu(msg)
		case StatePlayback:
			return m.updatePlayback(msg)
		}
	}

	return m, nil
}

func (m Model) updateManual(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "left", "h":
		m.rawFrequency -= min(m.rawFrequency, frequencyStep)
	case "right", "l":
		m.rawFrequency = min(m.rawFrequency+frequencyStep, tone.ADCMax)
	case "down", "j":
		m.rawDuty -= min(m.rawDuty, dutyStep)
	case "up", "k":
		m.rawDuty = min(m.rawDuty+dutyStep, tone.ADCMax)
	case "enter", "m":
		m.ctl.LeaveManualMode()
		m.state = StateFileMenu
		m.menuIndex = 0
		m.err = nil
		return m, m.loadFiles()
	default:
		return m, nil
	}
	m.err = m.ctl.SetManualOutput(m.rawFrequency, m.rawDuty)
	return m, nil
}

func (m Model) updateFileMenu(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.menuIndex > 0 {
			m.menuIndex--
		}
	case "down", "j":
		if m.menuIndex < len(m.files)-1 {
			m.menuIndex++
		}
	case "esc":
		return m.toManual(), nil
	case "enter":
		if len(m.files) == 0 {
			return m, m.loadFiles()
		}
		name := m.files[m.menuIndex]
		if name == storage.BackEntry {
			return m.toManual(), nil
		}
		if err := m.ctl.SelectFile(name); err != nil {
			m.err = err
			return m, nil
		}
		m.selected = name
		m.state = StateStartMenu
		m.startIndex = 0
	}
	return m, nil
}

func (m Model) toManual() Model {
	m.ctl.EnterManualMode()
	m.err = m.ctl.SetManualOutput(m.rawFrequency, m.rawDuty)
	m.state = StateManual
	return m
}

func (m Model) updateStartMenu(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.startIndex > 0 {
			m.startIndex--
		}
	case "down", "j":
		if m.startIndex < len(startItems)-1 {
			m.startIndex++
		}
	case "esc":
		m.state = StateFileMenu
	case "enter":
		if startItems[m.startIndex] == storage.BackEntry {
			m.state = StateFileMenu
			return m, nil
		}
		id, err := m.ctl.StartPlayback()
		if err != nil {
			m.err = err
			return m, nil
		}
		m.session = id
		m.err = nil
		m.state = StatePlayback
		m.status = m.ctl.Status()
		return m, m.spinner.Tick
	}
	return m, nil
}

func (m Model) updatePlayback(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case " ", "p":
		m.ctl.TogglePause()
	case "s", "esc":
		m.ctl.StopPlayback()
	}
	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	var s strings.Builder

	s.WriteString(asciiLogo())
	s.WriteString("\n")

	switch m.state {
	case StateManual:
		s.WriteString(m.viewManual())
	case StateFileMenu:
		s.WriteString(m.viewFileMenu())
	case StateStartMenu:
		s.WriteString(m.viewStartMenu())
	case StatePlayback:
		s.WriteString(m.viewPlayback())
	}

	if m.err != nil {
		s.WriteString("\n")
		s.WriteString(errorStyle.Render("✗ " + m.err.Error()))
	}

	s.WriteString("\n")
	s.WriteString(helpStyle.Render(m.help()))
	return s.String()
}

func (m Model) help() string {
	switch m.state {
	case StateManual:
		return "←/→: frequency • ↑/↓: duty • enter: file menu • q: quit"
	case StatePlayback:
		return "space: pause • s: stop • q: quit"
	default:
		return "↑/↓: navigate • enter: select • esc: back • q: quit"
	}
}

func (m Model) viewManual() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" MANUAL "))
	s.WriteString("\n\n")

	out := m.limits.FromManual(m.manual, m.rawFrequency, m.rawDuty)
	s.WriteString(noteStyle.Render(out.String()))
	s.WriteString("\n\n")
	s.WriteString(fmt.Sprintf("Frequency %4d  ", m.rawFrequency))
	s.WriteString(m.bar.ViewAs(float64(m.rawFrequency) / tone.ADCMax))
	s.WriteString("\n")
	s.WriteString(fmt.Sprintf("Duty      %4d  ", m.rawDuty))
	s.WriteString(m.bar.ViewAs(float64(m.rawDuty) / tone.ADCMax))

	return boxStyle.Render(s.String())
}

func (m Model) viewFileMenu() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" SELECT FILE "))
	s.WriteString("\n\n")

	if len(m.files) == 0 {
		s.WriteString(menuStyle.Render("no files"))
		s.WriteString("\n")
	}
	for i, name := range m.files {
		if i == m.menuIndex {
			s.WriteString(selectedStyle.Render("▸ " + name))
		} else {
			s.WriteString(menuStyle.Render("  " + name))
		}
		s.WriteString("\n")
	}

	return boxStyle.Render(s.String())
}

func (m Model) viewStartMenu() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" " + strings.ToUpper(m.selected) + " "))
	s.WriteString("\n\n")

	for i, item := range startItems {
		if i == m.startIndex {
			s.WriteString(selectedStyle.Render("▸ " + item))
		} else {
			s.WriteString(menuStyle.Render("  " + item))
		}
		s.WriteString("\n")
	}

	return boxStyle.Render(s.String())
}

func (m Model) viewPlayback() string {
	var s strings.Builder

	st := m.status
	title := " PLAYING "
	if st.Paused {
		title = " PAUSED "
	}
	s.WriteString(titleStyle.Render(title))
	s.WriteString("\n\n")

	if st.State == sequencer.StateRunning && !st.Paused {
		s.WriteString(m.spinner.View() + " ")
	}
	s.WriteString(st.File)
	s.WriteString("\n\n")

	name := st.NoteName
	if name == "" {
		name = "--"
	}
	s.WriteString(noteStyle.Render(fmt.Sprintf("Note %-4s", name)))
	s.WriteString(fmt.Sprintf("  vel %3d  ", st.Velocity))
	s.WriteString(m.bar.ViewAs(float64(st.Velocity) / 127))

	if st.Output.Active {
		s.WriteString(statusStyle.Render(fmt.Sprintf("  %s", st.Output.Params)))
	} else {
		s.WriteString(statusStyle.Render("  output off"))
	}

	return boxStyle.Render(s.String())
}

func asciiLogo() string {
	logo := `
   ___ ___ ___ _     __  __ ___ ___ ___ 
  / __/ _ \_ _| |   |  \/  |_ _|   \_ _|
 | (_| (_) | || |__ | |\/| || || |) | | 
  \___\___/___|____||_|  |_|___|___/___|
`
	return lipgloss.NewStyle().Foreground(plasma).Render(logo)
}

// Run enters manual mode and starts the panel
func Run(ctl Controller, limits tone.Limits, manual tone.ManualTable) error {
	ctl.EnterManualMode()
	p := tea.NewProgram(New(ctl, limits, manual), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
