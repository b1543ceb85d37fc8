package diff

import (
	"slices"

	"dashagent/internal/layout"
)

// TabChange describes how one tab differs between two layouts.
type TabChange struct {
	Name      string `json:"name"`
	Added     bool   `json:"added,omitempty"`
	Removed   bool   `json:"removed,omitempty"`
	PanelsOld int    `json:"panels_old"`
	PanelsNew int    `json:"panels_new"`
}

// TabChanges summarizes tab-level differences from old to new: tabs added,
// tabs removed, and tabs whose panel count changed. Order follows new, then
// removed tabs in old order.
func TabChanges(old, new *layout.Document) []TabChange {
	var out []TabChange
	for _, t := range new.Tabs {
		i := old.Index(t.Name)
		if i < 0 {
			out = append(out, TabChange{Name: t.Name, Added: true, PanelsNew: len(t.Panels)})
			continue
		}
		if n := len(old.Tabs[i].Panels); n != len(t.Panels) {
			out = append(out, TabChange{Name: t.Name, PanelsOld: n, PanelsNew: len(t.Panels)})
		}
	}
	for _, t := range old.Tabs {
		if !new.Has(t.Name) {
			out = append(out, TabChange{Name: t.Name, Removed: true, PanelsOld: len(t.Panels)})
		}
	}
	return out
}

// Reordered reports whether the tabs common to both layouts changed order.
func Reordered(old, new *layout.Document) bool {
	var a, b []string
	for _, n := range old.Names() {
		if new.Has(n) {
			a = append(a, n)
		}
	}
	for _, n := range new.Names() {
		if old.Has(n) {
			b = append(b, n)
		}
	}
	return !slices.Equal(a, b)
}
