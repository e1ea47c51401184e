package tui

import (
	"buildctl-agent/src/provider"
	"buildctl-agent/src/resolve"
)

// unscoped is shown in place of a component for files that have none.
const unscoped = "-"

// Item represents a build file in the browser list.
// It wraps resolve.File and implements bubbles/list.Item.
type Item struct {
	File resolve.File
}

// FilterValue is the value used for fuzzy filtering.
func (i Item) FilterValue() string { return i.File.FileName }

// Title returns the primary text for the item (required by list.Item).
func (i Item) Title() string { return i.File.FileName }

// Description returns the secondary text for the item (required by list.Item).
func (i Item) Description() string { return i.Component() }

// Component returns the component name, or "-" for unscoped files.
func (i Item) Component() string {
	if i.File.ComponentName == "" {
		return unscoped
	}
	return i.File.ComponentName
}

// Key identifies the file across reloads.
func (i Item) Key() string {
	if i.File.ContentID != "" {
		return "content:" + i.File.ContentID
	}
	return "internal:" + i.File.InternalID
}

func (i Item) previewable() bool {
	return i.File.Type == "" || i.File.Type == provider.ContributionLog
}
