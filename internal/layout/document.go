// Package layout models the dashboard layout document: an ordered list of
// named tabs plus sidebar settings. The dashboard UI renders this file; we only
// read, mutate and persist it.
//
// Keys the agent does not understand are carried through a read/write cycle
// unchanged, so a newer UI can add fields without the agent dropping them.
package layout

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// DefaultTabName is the tab a missing layout file starts with.
const DefaultTabName = "Overview"

// ErrTabNotFound is returned when a named tab does not exist.
var ErrTabNotFound = errors.New("tab not found")

// Tab is one dashboard tab. Filters and panels are opaque to the agent apart
// from the panel "type" field, so they are held as compact raw JSON.
type Tab struct {
	Name    string
	Filters []json.RawMessage
	Panels  []json.RawMessage
	Extra   map[string]json.RawMessage
}

// Document is the layout file.
type Document struct {
	Tabs    []Tab
	Sidebar json.RawMessage
	Extra   map[string]json.RawMessage
}

// Default returns the document used when no layout file exists yet.
func Default() *Document {
	return &Document{
		Tabs:    []Tab{newTab(DefaultTabName)},
		Sidebar: json.RawMessage(`{}`),
	}
}

func newTab(name string) Tab {
	return Tab{
		Name:    name,
		Filters: []json.RawMessage{},
		Panels:  []json.RawMessage{},
	}
}

// MarshalJSON writes the tab with its known keys overriding any extras.
func (t Tab) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(t.Extra)+3)
	for k, v := range t.Extra {
		out[k] = v
	}
	out["name"] = t.Name
	out["filters"] = nonNil(t.Filters)
	out["panels"] = nonNil(t.Panels)
	return json.Marshal(out)
}

// MarshalJSON writes the document with its known keys overriding any extras.
func (d Document) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Extra)+2)
	for k, v := range d.Extra {
		out[k] = v
	}
	tabs := d.Tabs
	if tabs == nil {
		tabs = []Tab{}
	}
	out["tabs"] = tabs
	sidebar := d.Sidebar
	if len(sidebar) == 0 {
		sidebar = json.RawMessage(`{}`)
	}
	out["sidebar"] = sidebar
	return json.Marshal(out)
}

func nonNil(items []json.RawMessage) []json.RawMessage {
	if items == nil {
		return []json.RawMessage{}
	}
	return items
}

// Marshal renders the document the way it is stored on disk.
func (d *Document) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode layout: %w", err)
	}
	return append(data, '\n'), nil
}

// Names returns tab names in display order.
func (d *Document) Names() []string {
	names := make([]string, len(d.Tabs))
	for i, t := range d.Tabs {
		names[i] = t.Name
	}
	return names
}

// Index returns the position of the named tab, or -1.
func (d *Document) Index(name string) int {
	for i, t := range d.Tabs {
		if t.Name == name {
			return i
		}
	}
	return -1
}

// Has reports whether a tab with the given name exists.
func (d *Document) Has(name string) bool {
	return d.Index(name) >= 0
}

// AddTab appends an empty tab. It returns false when the name already exists.
func (d *Document) AddTab(name string) bool {
	if d.Has(name) {
		return false
	}
	d.Tabs = append(d.Tabs, newTab(name))
	return true
}

// DeleteTab removes the named tab.
func (d *Document) DeleteTab(name string) error {
	i := d.Index(name)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrTabNotFound, name)
	}
	d.Tabs = append(d.Tabs[:i:i], d.Tabs[i+1:]...)
	return nil
}

// KeepOnly removes every tab except the named one.
func (d *Document) KeepOnly(name string) error {
	i := d.Index(name)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrTabNotFound, name)
	}
	d.Tabs = []Tab{d.Tabs[i]}
	return nil
}

// ClearPanels empties the panel list of the named tab.
func (d *Document) ClearPanels(name string) error {
	i := d.Index(name)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrTabNotFound, name)
	}
	d.Tabs[i].Panels = []json.RawMessage{}
	return nil
}

// AddPanel appends a panel to the named tab, creating the tab when missing.
// It reports whether the tab was created.
func (d *Document) AddPanel(tabName string, panel json.RawMessage) (bool, error) {
	compacted, err := compact(panel)
	if err != nil {
		return false, fmt.Errorf("panel: %w", err)
	}
	created := d.AddTab(tabName)
	i := d.Index(tabName)
	d.Tabs[i].Panels = append(d.Tabs[i].Panels, compacted)
	return created, nil
}

type panelHeader struct {
	Type  string `json:"type"`
	Title string `json:"title"`
}

// PanelType returns the "type" field of a stored panel, or "".
func PanelType(panel json.RawMessage) string {
	var p panelHeader
	if err := json.Unmarshal(panel, &p); err != nil {
		return ""
	}
	return p.Type
}

// PanelLabel returns the panel title, falling back to its type.
func PanelLabel(panel json.RawMessage) string {
	var p panelHeader
	if err := json.Unmarshal(panel, &p); err != nil {
		return ""
	}
	if p.Title != "" {
		return p.Title
	}
	return p.Type
}

// ExtraKeys lists the preserved unknown top-level keys, sorted.
func (d *Document) ExtraKeys() []string {
	keys := make([]string, 0, len(d.Extra))
	for k := range d.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func compact(raw json.RawMessage) (json.RawMessage, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, bytes.TrimSpace(raw)); err != nil {
		return nil, err
	}
	return json.RawMessage(buf.Bytes()), nil
}

// String renders the tab names for log lines.
func (d *Document) String() string {
	return "[" + strings.Join(d.Names(), ", ") + "]"
}
