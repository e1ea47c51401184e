package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Spinner frames for the activity indicator
var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// SpinnerTickMsg triggers spinner animation frame advance
type SpinnerTickMsg time.Time

// ProgressModel shows a spinner while a remote call is in flight.
type ProgressModel struct {
	stage        string
	active       int
	ticking      bool
	spinnerFrame int
}

func NewProgressModel() ProgressModel {
	return ProgressModel{}
}

// SpinnerTick returns a command that sends SpinnerTickMsg after a delay
func SpinnerTick() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(t time.Time) tea.Msg {
		return SpinnerTickMsg(t)
	})
}

// Start marks one more call in flight under stage. The returned command
// starts the spinner unless it is already running.
func (m *ProgressModel) Start(stage string) tea.Cmd {
	m.stage = stage
	m.active++
	if m.ticking {
		return nil
	}
	m.ticking = true
	return SpinnerTick()
}

// Finish marks one call done.
func (m *ProgressModel) Finish() {
	if m.active > 0 {
		m.active--
	}
}

// Active reports whether any call is in flight.
func (m ProgressModel) Active() bool {
	return m.active > 0
}

func (m ProgressModel) Update(msg tea.Msg) (ProgressModel, tea.Cmd) {
	if _, ok := msg.(SpinnerTickMsg); ok {
		if !m.Active() {
			m.ticking = false
			return m, nil
		}
		m.spinnerFrame = (m.spinnerFrame + 1) % len(spinnerFrames)
		return m, SpinnerTick()
	}
	return m, nil
}

func (m ProgressModel) View() string {
	if !m.Active() {
		return ""
	}
	spinnerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD700")) // Gold
	stage := m.stage
	if stage == "" {
		stage = "Loading"
	}
	return fmt.Sprintf("%s %s...", spinnerStyle.Render(spinnerFrames[m.spinnerFrame]), stage)
}
