package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/james-see/coilmidi/pkg/player"
	"github.com/james-see/coilmidi/pkg/storage"
	"github.com/james-see/coilmidi/pkg/tone"
)

type fakeController struct {
	files    []string
	selected string
	manual   [][2]uint16
	calls    []string
	status   player.Status
	failures chan player.Failure
}

func newFake() *fakeController {
	return &fakeController{
		files:    []string{storage.BackEntry, "a.mid", "b.mid"},
		failures: make(chan player.Failure, 1),
	}
}

func (f *fakeController) Files() ([]string, error) { return f.files, nil }
func (f *fakeController) SelectFile(name string) error {
	f.selected = name
	return nil
}
func (f *fakeController) StartPlayback() (uint64, error) {
	f.calls = append(f.calls, "start")
	f.status = player.Status{Session: 1, Playing: true, File: f.selected}
	return 1, nil
}
func (f *fakeController) TogglePause() bool {
	f.calls = append(f.calls, "pause")
	return true
}
func (f *fakeController) StopPlayback()    { f.calls = append(f.calls, "stop") }
func (f *fakeController) EnterManualMode() { f.calls = append(f.calls, "manual") }
func (f *fakeController) LeaveManualMode() { f.calls = append(f.calls, "leave") }
func (f *fakeController) SetManualOutput(rawFrequency, rawDuty uint16) error {
	f.manual = append(f.manual, [2]uint16{rawFrequency, rawDuty})
	return nil
}
func (f *fakeController) Status() player.Status           { return f.status }
func (f *fakeController) Failures() <-chan player.Failure { return f.failures }

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(m Model, keys ...string) Model {
	for _, k := range keys {
		next, cmd := m.Update(key(k))
		m = next.(Model)
		if cmd != nil {
			if msg, ok := cmd().(filesMsg); ok {
				next, _ = m.Update(msg)
				m = next.(Model)
			}
		}
	}
	return m
}

func TestManualKeys(t *testing.T) {
	ctl := newFake()
	m := New(ctl, tone.DefaultLimits(), tone.DefaultManualTable())

	m = press(m, "right", "right", "up")
	if m.rawFrequency != 2*frequencyStep || m.rawDuty != dutyStep {
		t.Errorf("readings = %d/%d", m.rawFrequency, m.rawDuty)
	}
	if tone.FrequencyIndex(m.rawFrequency) != 2 {
		t.Errorf("two steps should select index 2, got %d", tone.FrequencyIndex(m.rawFrequency))
	}
	if len(ctl.manual) != 3 {
		t.Errorf("manual submissions = %v", ctl.manual)
	}

	m = press(m, "left", "left", "left", "down", "down")
	if m.rawFrequency != 0 || m.rawDuty != 0 {
		t.Errorf("readings should stop at zero: %d/%d", m.rawFrequency, m.rawDuty)
	}

	for range 30 {
		m = press(m, "right")
	}
	if m.rawFrequency != tone.ADCMax {
		t.Errorf("frequency reading = %d, want %d", m.rawFrequency, tone.ADCMax)
	}
	if !strings.Contains(m.View(), "MANUAL") {
		t.Error("manual screen not rendered")
	}
}

func TestMenuFlow(t *testing.T) {
	ctl := newFake()
	m := New(ctl, tone.DefaultLimits(), tone.DefaultManualTable())

	m = press(m, "enter")
	if m.state != StateFileMenu || len(m.files) != 3 {
		t.Fatalf("state=%v files=%v", m.state, m.files)
	}
	if !strings.Contains(m.View(), "a.mid") {
		t.Error("file list not rendered")
	}

	m = press(m, "down", "enter")
	if m.state != StateStartMenu || ctl.selected != "a.mid" {
		t.Fatalf("state=%v selected=%q", m.state, ctl.selected)
	}

	m = press(m, "down", "enter")
	if m.state != StateFileMenu {
		t.Fatalf("Back in the start menu should return to files, state=%v", m.state)
	}

	m = press(m, "enter", "enter")
	if m.state != StatePlayback || m.session != 1 {
		t.Fatalf("state=%v session=%d", m.state, m.session)
	}

	m = press(m, " ", "s")
	if strings.Join(ctl.calls, ",") != "leave,start,pause,stop" {
		t.Errorf("calls = %v", ctl.calls)
	}

	ctl.status.Playing = false
	next, _ := m.Update(tickMsg{})
	m = next.(Model)
	if m.state != StateFileMenu {
		t.Errorf("finished session should return to the file menu, state=%v", m.state)
	}
}

func TestBackEntryReturnsToManual(t *testing.T) {
	ctl := newFake()
	m := New(ctl, tone.DefaultLimits(), tone.DefaultManualTable())

	m = press(m, "enter", "enter")
	if m.state != StateManual {
		t.Errorf("state = %v, want manual", m.state)
	}
	if ctl.calls[len(ctl.calls)-1] != "manual" {
		t.Errorf("calls = %v", ctl.calls)
	}
}

func TestFailureShown(t *testing.T) {
	ctl := newFake()
	m := New(ctl, tone.DefaultLimits(), tone.DefaultManualTable())

	next, _ := m.Update(failureMsg(player.Failure{Session: 3, File: "x.mid", Err: storage.ErrNoStorage}))
	m = next.(Model)
	if !strings.Contains(m.View(), "x.mid") {
		t.Error("failure not rendered")
	}
}
