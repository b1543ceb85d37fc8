package command

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"dashagent/internal/logging"
)

// decoder builds a typed command from an object's fields.
type decoder func(m Meta, r *fieldReader) (Command, error)

type actionSpec struct {
	decode decoder
	fields []string // every field the action reads, for typo hints
}

var registry = map[Action]actionSpec{
	ActionListTabs: {
		decode: func(m Meta, _ *fieldReader) (Command, error) { return ListTabs{m}, nil },
	},
	ActionAddTab: {
		fields: []string{"name"},
		decode: func(m Meta, r *fieldReader) (Command, error) {
			name, err := r.requiredString("name")
			return AddTab{Meta: m, Name: name}, err
		},
	},
	ActionDeleteTab: {
		fields: []string{"name"},
		decode: func(m Meta, r *fieldReader) (Command, error) {
			name, err := r.requiredString("name")
			return DeleteTab{Meta: m, Name: name}, err
		},
	},
	ActionKeepOnlyTab: {
		fields: []string{"name"},
		decode: func(m Meta, r *fieldReader) (Command, error) {
			name, err := r.requiredString("name")
			return KeepOnlyTab{Meta: m, Name: name}, err
		},
	},
	ActionAddPanel: {
		fields: []string{"tab_name", "panel"},
		decode: decodeAddPanel,
	},
	ActionClearPanels: {
		fields: []string{"tab_name"},
		decode: func(m Meta, r *fieldReader) (Command, error) {
			name, err := r.requiredString("tab_name")
			return ClearPanels{Meta: m, TabName: name}, err
		},
	},
	ActionCreateFile: {
		fields: []string{"relative_path", "content", "mode"},
		decode: decodeCreateFile,
	},
	ActionAppendFile: {
		fields: []string{"relative_path", "content"},
		decode: func(m Meta, r *fieldReader) (Command, error) {
			path, err := r.requiredString("relative_path")
			if err != nil {
				return nil, err
			}
			content, err := r.requiredText("content")
			return AppendFile{Meta: m, Path: path, Content: content}, err
		},
	},
	ActionPatchFile: {
		fields: []string{"relative_path", "pattern", "replacement", "regex"},
		decode: decodePatchFile,
	},
	ActionInspectColumn: {
		fields: []string{"name", "column", "row_limit", "sample_mode", "top"},
		decode: decodeInspectColumn,
	},
	ActionRollbackLayout: {
		decode: func(m Meta, _ *fieldReader) (Command, error) { return RollbackLayout{m}, nil },
	},
}

// Actions returns every supported action name, sorted.
func Actions() []string {
	names := make([]string, 0, len(registry))
	for a := range registry {
		names = append(names, string(a))
	}
	sort.Strings(names)
	return names
}

// Decode checks one object's shape and builds its typed command. index is the
// command's position in the batch. Decode performs no I/O.
func Decode(index int, raw json.RawMessage) (Command, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, &ValidationError{Index: index, Reason: "command must be a JSON object"}
	}

	r := &fieldReader{index: index, fields: fields}
	action, err := r.requiredString("action")
	if err != nil {
		return nil, err
	}

	spec, ok := registry[Action(action)]
	if !ok {
		return nil, &UnknownActionError{Index: index, Action: action, Suggestions: Suggest(action, Actions())}
	}
	r.action = Action(action)
	r.known = spec.fields

	cmd, err := spec.decode(Meta{Index: index}, r)
	if err != nil {
		return nil, err
	}

	for key := range fields {
		if key != "action" && !contains(spec.fields, key) {
			logging.ParserDebug("command %d (%s): ignoring unknown field %q", index, action, key)
		}
	}
	return cmd, nil
}

// DecodeAll decodes a whole batch. It stops at the first invalid command so
// no command runs when any part of the batch is structurally wrong.
func DecodeAll(raws []Raw) ([]Command, error) {
	cmds := make([]Command, 0, len(raws))
	for i, raw := range raws {
		cmd, err := Decode(i, raw.Object)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", raw.Line, err)
		}
		cmds = append(cmds, cmd)
	}
	return cmds, nil
}

var panelColumnKeys = []string{"x", "y", "col", "date", "group", "facet_row", "facet_col", "color"}

func decodeAddPanel(m Meta, r *fieldReader) (Command, error) {
	tab, err := r.requiredString("tab_name")
	if err != nil {
		return nil, err
	}
	raw, err := r.requiredObject("panel")
	if err != nil {
		return nil, err
	}

	var panel map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&panel); err != nil {
		return nil, r.invalid("panel", "must be an object")
	}
	ptype, _ := panel["type"].(string)
	ptype = strings.TrimSpace(ptype)
	if ptype == "" {
		return nil, r.invalid("panel.type", "is required")
	}
	panel["type"] = ptype

	var refs []ColumnRef
	for _, key := range panelColumnKeys {
		if col, ok := panel[key].(string); ok && col != "" {
			refs = append(refs, ColumnRef{Key: key, Column: col})
		}
	}
	if metrics, ok := panel["metrics"].([]any); ok {
		for _, item := range metrics {
			if col, ok := item.(string); ok && col != "" {
				refs = append(refs, ColumnRef{Key: "metrics", Column: col})
			}
		}
	}

	normalized, err := json.Marshal(panel)
	if err != nil {
		return nil, r.invalid("panel", err.Error())
	}
	return AddPanel{Meta: m, TabName: tab, Panel: normalized, Type: ptype, Columns: refs}, nil
}

func decodeCreateFile(m Meta, r *fieldReader) (Command, error) {
	path, err := r.requiredString("relative_path")
	if err != nil {
		return nil, err
	}
	content, err := r.optionalText("content")
	if err != nil {
		return nil, err
	}
	mode, err := r.optionalString("mode", string(ModeWrite))
	if err != nil {
		return nil, err
	}
	switch WriteMode(mode) {
	case ModeWrite, ModeAppend:
	default:
		return nil, r.invalid("mode", fmt.Sprintf("must be %q or %q, got %q", ModeWrite, ModeAppend, mode))
	}
	return CreateFile{Meta: m, Path: path, Content: content, Mode: WriteMode(mode)}, nil
}

func decodePatchFile(m Meta, r *fieldReader) (Command, error) {
	path, err := r.requiredString("relative_path")
	if err != nil {
		return nil, err
	}
	pattern, err := r.requiredText("pattern")
	if err != nil {
		return nil, err
	}
	if pattern == "" {
		return nil, r.invalid("pattern", "must not be empty")
	}
	replacement, err := r.requiredText("replacement")
	if err != nil {
		return nil, err
	}
	useRegex, err := r.optionalBool("regex")
	if err != nil {
		return nil, err
	}
	if useRegex {
		if _, err := regexp.Compile(pattern); err != nil {
			return nil, r.invalid("pattern", "invalid regular expression: "+err.Error())
		}
	}
	return PatchFile{Meta: m, Path: path, Pattern: pattern, Replacement: replacement, Regex: useRegex}, nil
}

var sampleModes = []string{"head", "random"}

func decodeInspectColumn(m Meta, r *fieldReader) (Command, error) {
	key := "name"
	if _, ok := r.fields["name"]; !ok {
		if _, ok := r.fields["column"]; ok {
			key = "column"
		}
	}
	column, err := r.requiredString(key)
	if err != nil {
		return nil, err
	}
	rowLimit, err := r.optionalInt("row_limit")
	if err != nil {
		return nil, err
	}
	if rowLimit < 0 {
		return nil, r.invalid("row_limit", "must be >= 0")
	}
	mode, err := r.optionalString("sample_mode", "")
	if err != nil {
		return nil, err
	}
	if mode != "" && !contains(sampleModes, mode) {
		return nil, r.invalid("sample_mode", fmt.Sprintf("must be one of %v, got %q", sampleModes, mode))
	}
	top, err := r.optionalInt("top")
	if err != nil {
		return nil, err
	}
	if top < 0 {
		return nil, r.invalid("top", "must be > 0")
	}
	return InspectColumn{Meta: m, Column: column, RowLimit: rowLimit, SampleMode: mode, Top: top}, nil
}

// fieldReader reads typed fields and builds ValidationErrors that name them.
type fieldReader struct {
	index  int
	action Action
	fields map[string]json.RawMessage
	known  []string
}

func (r *fieldReader) invalid(field, reason string) *ValidationError {
	return &ValidationError{Index: r.index, Action: r.action, Field: field, Reason: reason}
}

// missing reports a required field, hinting at a present key that looks like a typo.
func (r *fieldReader) missing(field string) *ValidationError {
	err := r.invalid(field, "is required")
	var unknown []string
	for key := range r.fields {
		if key != "action" && !contains(r.known, key) {
			unknown = append(unknown, key)
		}
	}
	if typos := Suggest(field, unknown); len(typos) > 0 {
		err.Reason = fmt.Sprintf("is required (found unknown field %q)", typos[0])
	}
	return err
}

func (r *fieldReader) text(field string) (string, bool, error) {
	raw, ok := r.fields[field]
	if !ok || string(raw) == "null" {
		return "", false, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", true, r.invalid(field, "must be a string")
	}
	return s, true, nil
}

// requiredString returns a trimmed, non-empty string field.
func (r *fieldReader) requiredString(field string) (string, error) {
	s, ok, err := r.text(field)
	if err != nil {
		return "", err
	}
	s = strings.TrimSpace(s)
	if !ok || s == "" {
		return "", r.missing(field)
	}
	return s, nil
}

// requiredText returns a string field verbatim; empty is allowed.
func (r *fieldReader) requiredText(field string) (string, error) {
	s, ok, err := r.text(field)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", r.missing(field)
	}
	return s, nil
}

func (r *fieldReader) optionalText(field string) (string, error) {
	s, _, err := r.text(field)
	return s, err
}

func (r *fieldReader) optionalString(field, def string) (string, error) {
	s, ok, err := r.text(field)
	if err != nil {
		return "", err
	}
	s = strings.TrimSpace(s)
	if !ok || s == "" {
		return def, nil
	}
	return s, nil
}

func (r *fieldReader) optionalInt(field string) (int, error) {
	raw, ok := r.fields[field]
	if !ok || string(raw) == "null" {
		return 0, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, r.invalid(field, "must be an integer")
	}
	v, err := n.Int64()
	if err != nil {
		return 0, r.invalid(field, "must be an integer")
	}
	return int(v), nil
}

func (r *fieldReader) optionalBool(field string) (bool, error) {
	raw, ok := r.fields[field]
	if !ok || string(raw) == "null" {
		return false, nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return false, r.invalid(field, "must be a boolean")
	}
	return b, nil
}

func (r *fieldReader) requiredObject(field string) (json.RawMessage, error) {
	raw, ok := r.fields[field]
	if !ok || string(raw) == "null" {
		return nil, r.missing(field)
	}
	if !isObject(raw) {
		return nil, r.invalid(field, "must be an object")
	}
	return raw, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
