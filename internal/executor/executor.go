// Package executor runs command batches against the layout document and the
// project's file targets.
//
// Every mutating command is preceded by a durable backup of the state it
// changes. If the backup fails the command is not applied. Commands run
// strictly in input order in the calling goroutine; the layout is re-read
// before each one since another process may have written it.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dashagent/internal/backup"
	"dashagent/internal/command"
	"dashagent/internal/dataset"
	"dashagent/internal/files"
	"dashagent/internal/journal"
	"dashagent/internal/layout"
	"dashagent/internal/logging"

	"github.com/google/uuid"
)

// Recorder stores executed commands. *journal.Store implements it.
type Recorder interface {
	Record(ctx context.Context, e journal.Entry) (int64, error)
}

// Options wires an Executor.
type Options struct {
	LayoutPath string
	Backups    *backup.Manager
	Editor     *files.Editor

	// Dataset is optional. Without it panel columns are not checked and
	// inspect_column fails.
	Dataset dataset.Source

	// Journal is optional. Journal failures are logged and never change a
	// command's result.
	Journal Recorder

	Policy  Policy
	Inspect dataset.Options
}

// Executor runs batches.
type Executor struct {
	opts Options
}

// New returns an executor.
func New(opts Options) *Executor {
	if opts.Policy == "" {
		opts.Policy = PolicyStop
	}
	return &Executor{opts: opts}
}

// Policy returns the failure policy in effect.
func (e *Executor) Policy() Policy { return e.opts.Policy }

// SetPolicy changes the failure policy for later batches.
func (e *Executor) SetPolicy(p Policy) { e.opts.Policy = p }

// batch is the per-run state.
type batch struct {
	id      string
	columns []string
	loaded  bool

	// first backup taken per subject, in the order subjects were touched
	first   map[backup.Subject]backup.Record
	touched []backup.Subject
}

// RunInput parses and decodes raw input, then runs it. Unless the policy is
// continue, any unreadable or structurally invalid command rejects the whole
// batch before anything runs and is returned as the error.
func (e *Executor) RunInput(ctx context.Context, input []byte) (*BatchResult, error) {
	raws, parseErr := command.Parse(input)
	if parseErr != nil && (e.opts.Policy != PolicyContinue || len(raws) == 0) {
		return nil, parseErr
	}
	return e.RunRaw(ctx, raws, parseErr)
}

// RunRaw decodes raws and runs them. parseErr, when set, is carried into the
// result as warnings.
func (e *Executor) RunRaw(ctx context.Context, raws []command.Raw, parseErr error) (*BatchResult, error) {
	cmds := make([]command.Command, len(raws))
	decodeErrs := make(map[int]error)
	for i, raw := range raws {
		cmd, err := command.Decode(i, raw.Object)
		if err != nil {
			err = fmt.Errorf("line %d: %w", raw.Line, err)
			if e.opts.Policy != PolicyContinue {
				return nil, err
			}
			decodeErrs[i] = err
			continue
		}
		cmds[i] = cmd
	}

	res := e.run(ctx, cmds, decodeErrs)
	if parseErr != nil {
		var pe *command.ParseError
		if errors.As(parseErr, &pe) && len(pe.Lines) > 0 {
			for _, le := range pe.Lines {
				res.Warnings = append(res.Warnings, le.String())
			}
		} else {
			res.Warnings = append(res.Warnings, parseErr.Error())
		}
	}
	return res, nil
}

// Run executes already decoded commands.
func (e *Executor) Run(ctx context.Context, cmds []command.Command) *BatchResult {
	return e.run(ctx, cmds, nil)
}

func (e *Executor) run(ctx context.Context, cmds []command.Command, decodeErrs map[int]error) *BatchResult {
	b := &batch{
		id:    uuid.NewString(),
		first: make(map[backup.Subject]backup.Record),
	}
	out := &BatchResult{BatchID: b.id, Policy: e.opts.Policy, Results: make([]Result, 0, len(cmds))}

	timer := logging.StartTimer(logging.CategoryExecutor, "batch "+b.id)
	defer timer.Stop()
	logging.Executor("batch %s: %d command(s), policy=%s", b.id, len(cmds), e.opts.Policy)

	for i, cmd := range cmds {
		var r Result
		switch {
		case decodeErrs[i] != nil:
			r = Result{Index: i, Action: failedAction(decodeErrs[i]), Err: decodeErrs[i]}
		case ctx.Err() != nil:
			r = Result{Index: i, Action: cmd.Action(), Err: ctx.Err()}
		default:
			r = e.execute(ctx, b, cmd)
		}
		finalize(&r)
		e.journal(ctx, b, r, cmd)
		out.Results = append(out.Results, r)

		if r.OK || nonFatal(r.Err) {
			continue
		}
		logging.ExecutorWarn("batch %s: command %d (%s) failed: %v", b.id, r.Index, r.Action, r.Err)
		if e.opts.Policy == PolicyContinue && ctx.Err() == nil {
			continue
		}

		out.Halted = true
		out.Skipped = len(cmds) - i - 1
		if e.opts.Policy == PolicyAtomic {
			out.Restored = e.restore(b, out.Results)
		}
		break
	}

	logging.Executor("batch %s: done, %d ok, %d failed, halted=%v", b.id, len(out.Results)-out.Failed(), out.Failed(), out.Halted)
	return out
}

func failedAction(err error) command.Action {
	var ve *command.ValidationError
	if errors.As(err, &ve) {
		return ve.Action
	}
	var ue *command.UnknownActionError
	if errors.As(err, &ue) {
		return command.Action(ue.Action)
	}
	return ""
}

// nonFatal errors are reported but do not trigger the failure policy.
func nonFatal(err error) bool {
	return errors.Is(err, backup.ErrNoBackupAvailable)
}

func finalize(r *Result) {
	r.OK = r.Err == nil
	if r.Err != nil {
		r.Error = r.Err.Error()
		if r.Message == "" {
			r.Message = r.Error
		}
	}
}

// restore puts every subject the batch touched back to its first record,
// newest subject first.
func (e *Executor) restore(b *batch, results []Result) []backup.Subject {
	var restored []backup.Subject
	for i := len(b.touched) - 1; i >= 0; i-- {
		s := b.touched[i]
		rec := b.first[s]
		if err := e.opts.Backups.Restore(rec); err != nil {
			logging.ExecutorError("batch %s: atomic restore of %s from seq %d failed: %v", b.id, s, rec.Seq, err)
			continue
		}
		logging.Executor("batch %s: restored %s from seq %d", b.id, s, rec.Seq)
		restored = append(restored, s)
	}
	for i := range results {
		if results[i].OK && results[i].Changed {
			results[i].RolledBack = true
		}
	}
	return restored
}

func (e *Executor) journal(ctx context.Context, b *batch, r Result, cmd command.Command) {
	if e.opts.Journal == nil {
		return
	}
	entry := journal.Entry{
		BatchID:   b.id,
		Index:     r.Index,
		Action:    string(r.Action),
		OK:        r.OK,
		Error:     r.Error,
		Duration:  r.Duration,
		Timestamp: time.Now(),
	}
	if cmd != nil {
		entry.Target = describeTarget(cmd.Target())
	}
	if r.Backup != nil {
		entry.BackupSeq = r.Backup.Seq
	}
	// A cancelled batch is still recorded.
	if _, err := e.opts.Journal.Record(context.WithoutCancel(ctx), entry); err != nil {
		logging.JournalWarn("batch %s: journal write for command %d failed: %v", b.id, r.Index, err)
	}
}

func describeTarget(t command.Target) string {
	switch t.Kind {
	case command.TargetLayout:
		return "layout"
	case command.TargetFile:
		return "file:" + t.Path
	default:
		return ""
	}
}

// subjectOf names what a mutation backs up. File paths go through the
// guard so the snapshot covers the file the editor will actually write.
func (e *Executor) subjectOf(t command.Target) (backup.Subject, error) {
	if t.Kind != command.TargetFile {
		return backup.Layout(), nil
	}
	if e.opts.Editor == nil {
		return backup.Subject{}, fmt.Errorf("%w: no file editor configured", files.ErrPathNotAllowed)
	}
	rel, err := e.opts.Editor.Guard().Normalize(t.Path)
	if err != nil {
		return backup.Subject{}, err
	}
	return backup.File(rel), nil
}

// execute runs one command: validate against the current state, back up,
// apply, persist.
func (e *Executor) execute(ctx context.Context, b *batch, cmd command.Command) (r Result) {
	start := time.Now()
	r = Result{Index: cmd.Position(), Action: cmd.Action()}
	defer func() { r.Duration = time.Since(start) }()

	// rollback_layout must work even when the live layout is unreadable.
	doc := layout.Default()
	if needsLayout(cmd) {
		var err error
		if doc, err = layout.Load(e.opts.LayoutPath); err != nil {
			r.Err = err
			return r
		}
	}

	view := command.View{Tabs: doc.Names(), Paths: e.guard()}
	switch cmd.(type) {
	case command.AddPanel, command.InspectColumn:
		cols, err := e.columns(ctx, b)
		if err != nil {
			r.Err = err
			return r
		}
		view.Columns = cols
	}
	if err := command.Validate(cmd, view); err != nil {
		r.Err = err
		return r
	}

	switch c := cmd.(type) {
	case command.ListTabs:
		r.Data = doc.Names()
		r.Message = fmt.Sprintf("%d tab(s)", len(doc.Tabs))
		return r

	case command.InspectColumn:
		report, err := dataset.Inspect(ctx, e.opts.Dataset, c.Column, e.inspectOptions(c))
		if err != nil {
			r.Err = err
			return r
		}
		r.Data = report
		r.Message = fmt.Sprintf("%s: %s, %d rows, %d missing", report.Column, report.DType, report.RowsSampled, report.Missing)
		return r

	case command.AddTab:
		if doc.Has(c.Name) {
			r.Message = fmt.Sprintf("tab %q already exists", c.Name)
			r.Data = doc.Names()
			return r
		}

	case command.RollbackLayout:
		rec, err := e.opts.Backups.Rollback(backup.Layout())
		if err != nil {
			r.Err = err
			return r
		}
		r.Changed = true
		r.Backup = &rec
		r.Message = fmt.Sprintf("layout restored from backup %d (%s)", rec.Seq, rec.Created.Format(time.RFC3339))
		if restored, err := layout.Load(e.opts.LayoutPath); err == nil {
			r.Data = restored.Names()
		}
		return r
	}

	// Everything below mutates. Nothing is applied without a durable backup.
	subject, err := e.subjectOf(cmd.Target())
	if err != nil {
		r.Err = err
		return r
	}
	rec, err := e.opts.Backups.Backup(subject)
	if err != nil {
		r.Err = err
		return r
	}
	r.Backup = &rec
	if _, seen := b.first[subject]; !seen {
		b.first[subject] = rec
		b.touched = append(b.touched, subject)
	}

	if cmd.Target().Kind == command.TargetFile {
		e.applyFile(cmd, &r)
		return r
	}
	e.applyLayout(cmd, doc, &r)
	return r
}

func needsLayout(cmd command.Command) bool {
	switch cmd.(type) {
	case command.ListTabs:
		return true
	case command.RollbackLayout:
		return false
	}
	return cmd.Target().Kind == command.TargetLayout
}

func (e *Executor) applyLayout(cmd command.Command, doc *layout.Document, r *Result) {
	switch c := cmd.(type) {
	case command.AddTab:
		doc.AddTab(c.Name)
		r.Message = fmt.Sprintf("added tab %q", c.Name)
	case command.DeleteTab:
		r.Err = doc.DeleteTab(c.Name)
		r.Message = fmt.Sprintf("deleted tab %q", c.Name)
	case command.KeepOnlyTab:
		r.Err = doc.KeepOnly(c.Name)
		r.Message = fmt.Sprintf("kept only tab %q", c.Name)
	case command.ClearPanels:
		r.Err = doc.ClearPanels(c.TabName)
		r.Message = fmt.Sprintf("cleared panels of %q", c.TabName)
	case command.AddPanel:
		created, err := doc.AddPanel(c.TabName, c.Panel)
		r.Err = err
		r.Message = fmt.Sprintf("added %s panel to %q", c.Type, c.TabName)
		if created {
			r.Message += " (tab created)"
		}
	default:
		r.Err = fmt.Errorf("%w: %s is not a layout command", command.ErrUnknownAction, cmd.Action())
	}
	if r.Err != nil {
		return
	}
	if err := layout.Save(e.opts.LayoutPath, doc); err != nil {
		r.Err = err
		return
	}
	r.Changed = true
	r.Data = doc.Names()
}

func (e *Executor) applyFile(cmd command.Command, r *Result) {
	var (
		res *files.Result
		err error
	)
	switch c := cmd.(type) {
	case command.CreateFile:
		if c.Mode == command.ModeAppend {
			res, err = e.opts.Editor.Append(c.Path, c.Content)
		} else {
			res, err = e.opts.Editor.Write(c.Path, c.Content)
		}
	case command.AppendFile:
		res, err = e.opts.Editor.Append(c.Path, c.Content)
	case command.PatchFile:
		res, err = e.opts.Editor.Patch(c.Path, c.Pattern, c.Replacement, c.Regex)
	default:
		err = fmt.Errorf("%w: %s is not a file command", command.ErrUnknownAction, cmd.Action())
	}
	if err != nil {
		r.Err = err
		return
	}
	r.Changed = true
	r.Data = res
	switch res.Op {
	case files.OpPatch:
		r.Message = fmt.Sprintf("patched %s (%d replacement(s))", res.Path, res.Replacements)
	case files.OpAppend:
		r.Message = fmt.Sprintf("appended %d byte(s) to %s", res.BytesWritten, res.Path)
	default:
		verb := "wrote"
		if res.Created {
			verb = "created"
		}
		r.Message = fmt.Sprintf("%s %s (%d bytes)", verb, res.Path, res.BytesWritten)
	}
}

func (e *Executor) guard() command.PathChecker {
	if e.opts.Editor == nil {
		return nil
	}
	return e.opts.Editor.Guard()
}

// columns lists dataset columns once per batch. The dataset is read-only.
func (e *Executor) columns(ctx context.Context, b *batch) ([]string, error) {
	if e.opts.Dataset == nil {
		return nil, nil
	}
	if !b.loaded {
		cols, err := e.opts.Dataset.Columns(ctx)
		if err != nil {
			return nil, fmt.Errorf("read dataset columns: %w", err)
		}
		if cols == nil {
			cols = []string{}
		}
		b.columns, b.loaded = cols, true
	}
	return b.columns, nil
}

func (e *Executor) inspectOptions(c command.InspectColumn) dataset.Options {
	opts := e.opts.Inspect
	if c.RowLimit > 0 {
		opts.RowLimit = c.RowLimit
	}
	if c.SampleMode != "" {
		opts.SampleMode = dataset.SampleMode(c.SampleMode)
	}
	if c.Top > 0 {
		opts.Top = c.Top
	}
	return opts
}
