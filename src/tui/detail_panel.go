package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// renderDetail renders the metadata and preview of a build file
func (m MainModel) renderDetail(item Item, maxWidth int) string {
	content := strings.Builder{}
	labelStyle := lipgloss.NewStyle().Foreground(m.styles.TextSecondary).Bold(true)
	valueStyle := lipgloss.NewStyle().Foreground(m.styles.TextPrimary)

	field := func(name, value string) {
		if value == "" {
			return
		}
		wrapped := Wrap(fmt.Sprintf("%s: %s", name, value), maxWidth)
		label, rest, _ := strings.Cut(wrapped, ":")
		fmt.Fprintln(&content, labelStyle.Render(label+":")+valueStyle.Render(rest))
	}

	f := item.File
	field("File", f.FileName)
	field("Component", item.Component())
	field("Type", string(f.Type))
	field("Size", fmt.Sprintf("%s (%d bytes)", HumanSize(f.SizeBytes), f.SizeBytes))
	field("Label", f.Label)
	field("Content ID", f.ContentID)
	field("Internal ID", f.InternalID)
	fmt.Fprintln(&content)

	hint := lipgloss.NewStyle().Foreground(m.styles.TextSecondary).Faint(true)
	p, ok := m.previews[item.Key()]
	switch {
	case !item.previewable():
		fmt.Fprintln(&content, hint.Render(Wrap("Press d to save this artifact locally.", maxWidth)))
	case !ok:
		fmt.Fprintln(&content, hint.Render(Wrap(fmt.Sprintf("Press Enter to preview the last %d lines.", m.opts.PreviewLines), maxWidth)))
	case p.loading:
		fmt.Fprintln(&content, hint.Render("Loading preview..."))
	case p.err != nil:
		fmt.Fprintln(&content, m.styles.ErrorStyle().Render("Preview failed:"))
		fmt.Fprintln(&content, m.styles.ErrorStyle().Render(Wrap(p.err.Error(), maxWidth)))
	case len(p.lines) == 0:
		fmt.Fprintln(&content, hint.Render("(empty file)"))
	default:
		fmt.Fprintln(&content, labelStyle.Render(fmt.Sprintf("Last %d line(s):", len(p.lines))))
		lineStyle := lipgloss.NewStyle().Foreground(m.styles.TextPrimary)
		for _, line := range p.lines {
			fmt.Fprintln(&content, lineStyle.Render(Wrap(line, maxWidth)))
		}
	}

	return content.String()
}

// refreshDetail updates the viewport with the selected file
func (m *MainModel) refreshDetail() {
	item, ok := m.listView.GetSelectedItem()
	if !ok {
		m.detailViewport.SetContent("")
		return
	}
	// Subtract a small amount for internal padding.
	maxWidth := m.detailViewport.Width - 2
	m.detailViewport.SetContent(m.renderDetail(item, maxWidth))
}

// renderDetailPanel renders the right panel with detail viewport
func (m MainModel) renderDetailPanel(width, height int) string {
	if item, ok := m.listView.GetSelectedItem(); ok {
		headerRow := lipgloss.NewStyle().
			Foreground(m.styles.PrimaryBlue).
			Bold(true).
			Padding(0, 1).
			Render(Truncate(item.File.FileName, width-2, true))

		return lipgloss.JoinVertical(lipgloss.Left, headerRow,
			m.styles.PanelStyle(m.detailFocused).
				Width(width-2).
				Height(height).
				Render(m.detailViewport.View()))
	}

	// No selection - show empty state
	placeholderRow := lipgloss.NewStyle().
		Foreground(m.styles.TextSecondary).
		Padding(0, 1).
		Render(" ")

	emptyStyle := m.styles.PanelStyle(false).
		Width(width-2).
		Height(height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(m.styles.TextSecondary).
		Faint(true)

	return lipgloss.JoinVertical(lipgloss.Left, placeholderRow, emptyStyle.Render(Truncate("Select a file to view details", width-4, true)))
}
