// Package command defines the JSON command protocol: the set of actions the
// agent accepts, how raw input text becomes an ordered batch, and the checks a
// command passes before it may touch any state.
package command

import "encoding/json"

// Action names a command kind.
type Action string

const (
	ActionListTabs       Action = "list_tabs"
	ActionAddTab         Action = "add_tab"
	ActionDeleteTab      Action = "delete_tab"
	ActionKeepOnlyTab    Action = "keep_only_tab"
	ActionAddPanel       Action = "add_panel"
	ActionClearPanels    Action = "clear_panels"
	ActionCreateFile     Action = "create_file"
	ActionAppendFile     Action = "append_file"
	ActionPatchFile      Action = "patch_file"
	ActionInspectColumn  Action = "inspect_column"
	ActionRollbackLayout Action = "rollback_layout"
)

// TargetKind says what a command writes.
type TargetKind int

const (
	TargetNone   TargetKind = iota // read-only
	TargetLayout                   // the layout document
	TargetFile                     // a project file
)

// Target identifies the state a command mutates.
type Target struct {
	Kind TargetKind
	Path string // project-relative, TargetFile only
}

// Command is one decoded request. The concrete types below are the only
// implementations.
type Command interface {
	Action() Action
	Position() int // 0-based index in the batch
	Target() Target
	isCommand()
}

// Meta carries fields shared by every command.
type Meta struct {
	Index int
}

func (m Meta) Position() int { return m.Index }
func (Meta) isCommand()      {}

// ListTabs reports the tab names.
type ListTabs struct{ Meta }

// AddTab appends an empty tab. Adding an existing name is a no-op.
type AddTab struct {
	Meta
	Name string
}

// DeleteTab removes a tab. The tab must exist.
type DeleteTab struct {
	Meta
	Name string
}

// KeepOnlyTab removes every tab except Name.
type KeepOnlyTab struct {
	Meta
	Name string
}

// ColumnRef is a panel field that names a dataset column.
type ColumnRef struct {
	Key    string
	Column string
}

// AddPanel appends Panel to TabName, creating the tab when missing.
type AddPanel struct {
	Meta
	TabName string
	Panel   json.RawMessage
	Type    string
	Columns []ColumnRef
}

// ClearPanels empties a tab's panels.
type ClearPanels struct {
	Meta
	TabName string
}

// WriteMode selects how CreateFile treats existing content.
type WriteMode string

const (
	ModeWrite  WriteMode = "write"
	ModeAppend WriteMode = "append"
)

// CreateFile writes Content to Path.
type CreateFile struct {
	Meta
	Path    string
	Content string
	Mode    WriteMode
}

// AppendFile appends Content to Path, creating it when missing.
type AppendFile struct {
	Meta
	Path    string
	Content string
}

// PatchFile replaces every match of Pattern in Path.
type PatchFile struct {
	Meta
	Path        string
	Pattern     string
	Replacement string
	Regex       bool
}

// InspectColumn computes statistics for one dataset column.
// Zero values mean "use the configured default".
type InspectColumn struct {
	Meta
	Column     string
	RowLimit   int
	SampleMode string
	Top        int
}

// RollbackLayout restores the most recent layout backup.
type RollbackLayout struct{ Meta }

func (ListTabs) Action() Action       { return ActionListTabs }
func (AddTab) Action() Action         { return ActionAddTab }
func (DeleteTab) Action() Action      { return ActionDeleteTab }
func (KeepOnlyTab) Action() Action    { return ActionKeepOnlyTab }
func (AddPanel) Action() Action       { return ActionAddPanel }
func (ClearPanels) Action() Action    { return ActionClearPanels }
func (CreateFile) Action() Action     { return ActionCreateFile }
func (AppendFile) Action() Action     { return ActionAppendFile }
func (PatchFile) Action() Action      { return ActionPatchFile }
func (InspectColumn) Action() Action  { return ActionInspectColumn }
func (RollbackLayout) Action() Action { return ActionRollbackLayout }

var layoutTarget = Target{Kind: TargetLayout}

func (ListTabs) Target() Target       { return Target{} }
func (AddTab) Target() Target         { return layoutTarget }
func (DeleteTab) Target() Target      { return layoutTarget }
func (KeepOnlyTab) Target() Target    { return layoutTarget }
func (AddPanel) Target() Target       { return layoutTarget }
func (ClearPanels) Target() Target    { return layoutTarget }
func (c CreateFile) Target() Target   { return Target{Kind: TargetFile, Path: c.Path} }
func (c AppendFile) Target() Target   { return Target{Kind: TargetFile, Path: c.Path} }
func (c PatchFile) Target() Target    { return Target{Kind: TargetFile, Path: c.Path} }
func (InspectColumn) Target() Target  { return Target{} }
func (RollbackLayout) Target() Target { return layoutTarget }
