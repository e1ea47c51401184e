package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// renderListPanel renders the left panel with the file list
func (m MainModel) renderListPanel(width, height int) string {
	// Note: list size is set in resizeComponents(), not here during render
	body := m.listView.Render()
	if m.listView.Len() == 0 {
		body = lipgloss.NewStyle().Foreground(m.styles.TextSecondary).Faint(true).Render(Truncate("No matching files", width-4, true))
	}

	listPanel := m.styles.PanelStyle(!m.detailFocused).
		Width(width - 2).
		Height(height).
		Render(body)

	delegate := m.listView.GetDelegate()
	headerText := fmt.Sprintf("%*s │ %s │ File (%d)",
		delegate.SizeWidth, "Size",
		TruncateAndPad("Component", delegate.ComponentWidth, false),
		m.listView.Len())
	headerRow := lipgloss.NewStyle().
		Foreground(m.styles.PrimaryBlue).
		Bold(true).
		Width(width-2).
		Padding(0, 1).
		Render(Truncate(headerText, width-4, true))

	return lipgloss.JoinVertical(lipgloss.Left, headerRow, listPanel)
}
