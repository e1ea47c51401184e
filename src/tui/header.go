package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// allComponents is the filter value that shows every file.
const allComponents = "ALL"

// Header represents the top status bar component.
type Header struct {
	buildRef       string
	fileType       string
	selectedFilter string
	components     []string
	searchQuery    string
	searchMode     bool
	styles         *StyleConfig
}

// NewHeader creates a header for the files of one build result.
func NewHeader(buildRef, fileType string, styles *StyleConfig) Header {
	return Header{
		buildRef:       buildRef,
		fileType:       fileType,
		selectedFilter: allComponents,
		styles:         styles,
	}
}

// SetComponents replaces the components the filter cycles through. A filter
// on a component that no longer exists falls back to ALL.
func (h *Header) SetComponents(components []string) {
	h.components = components
	for _, c := range components {
		if c == h.selectedFilter {
			return
		}
	}
	h.selectedFilter = allComponents
}

// GetFilter returns the current filter
func (h Header) GetFilter() string {
	return h.selectedFilter
}

// CycleFilter cycles to the next filter
func (h *Header) CycleFilter() {
	filters := append([]string{allComponents}, h.components...)
	currentIndex := 0
	for i, f := range filters {
		if f == h.selectedFilter {
			currentIndex = i
			break
		}
	}
	h.selectedFilter = filters[(currentIndex+1)%len(filters)]
}

// SetSearch updates the search state
func (h *Header) SetSearch(query string, mode bool) {
	h.searchQuery = query
	h.searchMode = mode
}

// Render renders the header
func (h Header) Render(width int) string {
	sectionStyle := lipgloss.NewStyle().
		Foreground(h.styles.PrimaryBlue).
		Bold(true).
		Padding(0, 1)

	ref := h.buildRef
	if len(ref) > 8 {
		ref = ref[:8]
	}
	build := sectionStyle.Render(fmt.Sprintf("Build %s (%s)", ref, h.fileType))
	filter := sectionStyle.Render(fmt.Sprintf("Component: %s", Truncate(h.selectedFilter, maxComponentWidth, true)))

	var searchText string
	switch {
	case h.searchMode:
		searchText = fmt.Sprintf("Search: %s█", h.searchQuery)
	case h.searchQuery != "":
		searchText = fmt.Sprintf("Search: %s", h.searchQuery)
	default:
		searchText = "[/] to search"
	}

	searchStyle := lipgloss.NewStyle().
		Foreground(h.styles.TextSecondary).
		Padding(0, 1)
	if h.searchMode {
		searchStyle = searchStyle.Foreground(h.styles.PrimaryBlue)
	}
	search := searchStyle.Render(searchText)

	content := lipgloss.JoinHorizontal(lipgloss.Left, build, filter, search)

	headerStyle := lipgloss.NewStyle().
		Background(h.styles.DarkBackground).
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		BorderForeground(h.styles.BorderColor).
		Width(width).
		MaxWidth(width)

	return headerStyle.Render(content)
}
