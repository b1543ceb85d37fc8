// Package planner turns an operator's prose request into JSON commands by
// asking a language model. The model's reply is untrusted text; commands are
// pulled out of it with command.Extract and go through the normal
// decode/validate/backup path like any other input.
package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"dashagent/internal/command"
	"dashagent/internal/logging"
)

// ErrNoCommands is returned when a reply holds no JSON objects.
var ErrNoCommands = errors.New("model output contained no JSON commands")

// Context is the dashboard state the model is told about.
type Context struct {
	Tabs    []string
	Columns []string
}

// Planner produces raw model text for a request.
type Planner interface {
	Plan(ctx context.Context, request string, pc Context) (string, error)
}

// Func adapts a function to Planner.
type Func func(ctx context.Context, request string, pc Context) (string, error)

func (f Func) Plan(ctx context.Context, request string, pc Context) (string, error) {
	return f(ctx, request, pc)
}

// maxListed caps how many columns are put in the prompt.
const maxListed = 200

// SystemPrompt describes the command protocol and the current state.
func SystemPrompt(pc Context) string {
	var b strings.Builder
	b.WriteString(`You are a dashboard agent for tabular data analysis.

You control the dashboard by outputting JSON commands ONLY.
You may output:
- a single JSON object, OR
- multiple JSON objects separated by newlines, OR
- a JSON array of objects.

Each command must include:
- action: string

Supported actions:
- list_tabs
- add_tab (name)
- delete_tab (name)   # name is required
- keep_only_tab (name)
- add_panel (tab_name, panel)   # panel.type is required; x, y, color, metrics name columns
- clear_panels (tab_name)
- create_file (relative_path, content, mode: write|append)
- append_file (relative_path, content)
- patch_file (relative_path, pattern, replacement, regex: bool)
- inspect_column (name, row_limit, sample_mode: head|random, top)
- rollback_layout

Rules:
- When deleting a tab you MUST provide the exact tab name in ` + "`name`" + `.
- Do not include commentary outside JSON.
- Prefer adding panels that use existing columns.
- File paths are relative to the project and must not contain "..".
`)

	b.WriteString("\nCurrent tabs: ")
	if len(pc.Tabs) == 0 {
		b.WriteString("(none)")
	} else {
		b.WriteString(strings.Join(pc.Tabs, ", "))
	}
	b.WriteString("\n")

	if len(pc.Columns) > 0 {
		cols := pc.Columns
		suffix := ""
		if len(cols) > maxListed {
			suffix = fmt.Sprintf(", ... (%d more)", len(cols)-maxListed)
			cols = cols[:maxListed]
		}
		b.WriteString("Available columns: " + strings.Join(cols, ", ") + suffix + "\n")
	}
	return b.String()
}

// Commands asks p for a plan and extracts the commands from its reply. The
// raw reply is returned too so callers can show it when extraction fails.
func Commands(ctx context.Context, p Planner, request string, pc Context) ([]command.Raw, string, error) {
	timer := logging.StartTimer(logging.CategoryPlanner, "plan")
	defer timer.Stop()

	reply, err := p.Plan(ctx, request, pc)
	if err != nil {
		return nil, "", err
	}
	raws := command.Extract(reply)
	logging.Planner("request %q: %d command(s) extracted from %d bytes", truncate(request, 80), len(raws), len(reply))
	if len(raws) == 0 {
		return nil, reply, ErrNoCommands
	}
	return raws, reply, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
