package tui

import (
	"strings"
)

// applyFilter filters items by component and search query, then refreshes
// the detail panel for the new selection.
func (m *MainModel) applyFilter() {
	filter := m.header.GetFilter()

	var filtered []Item
	for _, item := range m.items {
		if filter != allComponents && item.Component() != filter {
			continue
		}
		if m.searchQuery != "" && !matchesQuery(item, strings.ToLower(m.searchQuery)) {
			continue
		}
		filtered = append(filtered, item)
	}

	m.listView.SetItems(filtered)
	m.refreshDetail()
}

// matchesQuery reports whether any searchable field contains the lowercased query.
func matchesQuery(item Item, query string) bool {
	for _, field := range []string{item.File.FileName, item.File.ComponentName, item.File.Label, item.File.ContentID} {
		if strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}
	return false
}

// componentsOf returns the distinct components of items in first-seen order.
func componentsOf(items []Item) []string {
	seen := make(map[string]bool)
	var components []string
	for _, item := range items {
		c := item.Component()
		if !seen[c] {
			seen[c] = true
			components = append(components, c)
		}
	}
	return components
}
