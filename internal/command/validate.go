package command

import (
	"errors"
	"fmt"

	"dashagent/internal/dataset"
	"dashagent/internal/layout"
)

// ErrNoDataset is returned when a command needs a dataset and none is configured.
var ErrNoDataset = errors.New("no dataset configured")

// PathChecker vets a project-relative file target.
type PathChecker interface {
	Check(relative string) error
}

// View is the read-only state a command is validated against.
type View struct {
	Tabs []string

	// Columns of the configured dataset. Nil means no dataset: panel column
	// checks are skipped and inspect_column is rejected.
	Columns []string

	Paths PathChecker
}

// Validate checks cmd against the current state without changing anything.
// Run it immediately before the command executes; earlier commands in the
// batch may have changed what exists.
func Validate(cmd Command, view View) error {
	switch c := cmd.(type) {
	case DeleteTab:
		return view.requireTab(c, "name", c.Name)
	case KeepOnlyTab:
		return view.requireTab(c, "name", c.Name)
	case ClearPanels:
		return view.requireTab(c, "tab_name", c.TabName)
	case AddPanel:
		if view.Columns == nil {
			return nil
		}
		for _, ref := range c.Columns {
			if !contains(view.Columns, ref.Column) {
				return &ValidationError{
					Index:       c.Index,
					Action:      c.Action(),
					Field:       "panel." + ref.Key,
					Reason:      fmt.Sprintf("unknown column %q", ref.Column),
					Suggestions: Suggest(ref.Column, view.Columns),
					Err:         dataset.ErrColumnNotFound,
				}
			}
		}
	case InspectColumn:
		if view.Columns == nil {
			return &ValidationError{Index: c.Index, Action: c.Action(), Reason: ErrNoDataset.Error(), Err: ErrNoDataset}
		}
		if !contains(view.Columns, c.Column) {
			return &ValidationError{
				Index:       c.Index,
				Action:      c.Action(),
				Field:       "name",
				Reason:      fmt.Sprintf("unknown column %q", c.Column),
				Suggestions: Suggest(c.Column, view.Columns),
				Err:         dataset.ErrColumnNotFound,
			}
		}
	case CreateFile, AppendFile, PatchFile:
		return view.checkPath(cmd)
	}
	return nil
}

func (v View) requireTab(cmd Command, field, name string) error {
	if contains(v.Tabs, name) {
		return nil
	}
	return &ValidationError{
		Index:       cmd.Position(),
		Action:      cmd.Action(),
		Field:       field,
		Reason:      fmt.Sprintf("tab %q does not exist", name),
		Suggestions: Suggest(name, v.Tabs),
		Err:         layout.ErrTabNotFound,
	}
}

func (v View) checkPath(cmd Command) error {
	if v.Paths == nil {
		return nil
	}
	if err := v.Paths.Check(cmd.Target().Path); err != nil {
		return &ValidationError{
			Index:  cmd.Position(),
			Action: cmd.Action(),
			Field:  "relative_path",
			Reason: err.Error(),
			Err:    err,
		}
	}
	return nil
}
