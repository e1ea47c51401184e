package tui

import (
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	// listRenderingOverhead accounts for padding added by bubbles/list and panel borders.
	// Breakdown: panel border (2) + list internal padding/margins (8) = 10 chars total.
	listRenderingOverhead = 10

	// maxComponentWidth caps the component column so file names stay visible.
	maxComponentWidth = 16
)

// Delegate renders build files as table rows.
type Delegate struct {
	SizeWidth      int
	ComponentWidth int
	styles         *StyleConfig
}

// NewDelegate creates a new file table delegate with default styles
func NewDelegate() Delegate {
	return NewDelegateWithStyles(DefaultStyles())
}

// NewDelegateWithStyles creates a new delegate with custom styles
func NewDelegateWithStyles(styles *StyleConfig) Delegate {
	return Delegate{
		SizeWidth:      len("Size"),
		ComponentWidth: len("Component"),
		styles:         styles,
	}
}

// SetColumnWidths sizes the size and component columns to fit items.
func (d *Delegate) SetColumnWidths(items []Item) {
	d.SizeWidth = len("Size")
	d.ComponentWidth = len("Component")
	for _, item := range items {
		if w := len(HumanSize(item.File.SizeBytes)); w > d.SizeWidth {
			d.SizeWidth = w
		}
		if w := VisualWidth(item.Component()); w > d.ComponentWidth {
			d.ComponentWidth = w
		}
	}
	if d.ComponentWidth > maxComponentWidth {
		d.ComponentWidth = maxComponentWidth
	}
}

// fixedWidth is the width of every column but the file name, separators included.
func (d Delegate) fixedWidth() int {
	return d.SizeWidth + d.ComponentWidth + 6
}

// Height returns the height of a list item
func (d Delegate) Height() int {
	return 1
}

// Spacing returns spacing between items
func (d Delegate) Spacing() int {
	return 0
}

// Update handles item updates
func (d Delegate) Update(msg tea.Msg, m *list.Model) tea.Cmd {
	return nil
}

// Render renders a list item
func (d Delegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	entry, ok := item.(Item)
	if !ok {
		return
	}

	sizeCol := fmt.Sprintf("%*s", d.SizeWidth, HumanSize(entry.File.SizeBytes))
	componentCol := TruncateAndPad(entry.Component(), d.ComponentWidth, true)

	var name string
	if availableWidth := m.Width() - d.fixedWidth() - listRenderingOverhead; availableWidth > 0 {
		name = TruncateAndPad(entry.File.FileName, availableWidth, true)
	}

	line := fmt.Sprintf("%s │ %s │ %s", sizeCol, componentCol, name)
	if m.Width() > 0 && VisualWidth(line) > m.Width() {
		// Narrow terminals drop the file name column first, then clip
		line = Truncate(line, m.Width(), false)
	}

	style := lipgloss.NewStyle().Foreground(d.styles.TextSecondary)
	if index == m.Index() {
		style = style.Bold(true).Foreground(d.styles.PrimaryBlue).Background(d.styles.SelectedColor)
	}

	fmt.Fprint(w, style.Render(line))
}
