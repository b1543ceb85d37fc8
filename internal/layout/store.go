package layout

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"dashagent/internal/fsutil"
	"dashagent/internal/logging"

	"github.com/tidwall/jsonc"
)

// Load reads the layout file. A missing or empty file yields Default().
// Comments and trailing commas are tolerated since people edit this file by hand.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		logging.LayoutDebug("layout %s missing, using default", path)
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read layout %s: %w", path, err)
	}

	doc, warnings, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse layout %s: %w", path, err)
	}
	for _, w := range warnings {
		logging.LayoutWarn("%s: %s", path, w)
	}
	return doc, nil
}

// Save persists the document atomically.
func Save(path string, doc *Document) error {
	data, err := doc.Marshal()
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("save layout: %w", err)
	}
	logging.LayoutDebug("saved %s tabs=%s", path, doc)
	return nil
}

// Parse decodes layout bytes. Tabs without a usable name are dropped and
// duplicate names keep their first occurrence; each repair is reported as a warning.
func Parse(data []byte) (*Document, []string, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Default(), nil, nil
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(jsonc.ToJSON(data), &top); err != nil {
		return nil, nil, err
	}
	if top == nil {
		return nil, nil, fmt.Errorf("layout must be a JSON object")
	}

	doc := &Document{Tabs: []Tab{}, Sidebar: json.RawMessage(`{}`)}
	var warnings []string

	if raw, ok := top["tabs"]; ok {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, nil, fmt.Errorf("tabs must be an array: %w", err)
		}
		seen := make(map[string]bool, len(items))
		for i, item := range items {
			tab, tabWarnings, ok := parseTab(item)
			for _, w := range tabWarnings {
				warnings = append(warnings, fmt.Sprintf("tab %d: %s", i, w))
			}
			if !ok {
				warnings = append(warnings, fmt.Sprintf("tab %d: no usable name, dropped", i))
				continue
			}
			if seen[tab.Name] {
				warnings = append(warnings, fmt.Sprintf("tab %d: duplicate name %q, dropped", i, tab.Name))
				continue
			}
			seen[tab.Name] = true
			doc.Tabs = append(doc.Tabs, tab)
		}
		delete(top, "tabs")
	}

	if raw, ok := top["sidebar"]; ok {
		c, err := compact(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("sidebar: %w", err)
		}
		doc.Sidebar = c
		delete(top, "sidebar")
	}

	extra, err := compactAll(top)
	if err != nil {
		return nil, nil, err
	}
	doc.Extra = extra
	return doc, warnings, nil
}

func parseTab(raw json.RawMessage) (Tab, []string, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return Tab{}, nil, false
	}

	var name string
	if err := json.Unmarshal(fields["name"], &name); err != nil {
		return Tab{}, nil, false
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Tab{}, nil, false
	}

	var warnings []string
	tab := newTab(name)
	for _, key := range []string{"filters", "panels"} {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			warnings = append(warnings, fmt.Sprintf("%s of %q is not an array, reset", key, name))
			continue
		}
		list := make([]json.RawMessage, 0, len(items))
		for _, item := range items {
			c, err := compact(item)
			if err != nil {
				continue
			}
			list = append(list, c)
		}
		if key == "filters" {
			tab.Filters = list
		} else {
			tab.Panels = list
		}
	}
	delete(fields, "name")
	delete(fields, "filters")
	delete(fields, "panels")

	extra, err := compactAll(fields)
	if err != nil {
		return Tab{}, nil, false
	}
	tab.Extra = extra
	return tab, warnings, true
}

func compactAll(fields map[string]json.RawMessage) (map[string]json.RawMessage, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	out := make(map[string]json.RawMessage, len(fields))
	for k, v := range fields {
		c, err := compact(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = c
	}
	return out, nil
}
