package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"dashagent/internal/backup"
	"dashagent/internal/command"
	"dashagent/internal/dataset"
	"dashagent/internal/diff"
	"dashagent/internal/executor"
	"dashagent/internal/journal"
	"dashagent/internal/layout"
	"dashagent/internal/planner"
	"dashagent/internal/ui"
	"dashagent/internal/watch"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const renderWidth = 100

var (
	jsonOutput bool

	inspectRowLimit   int
	inspectSampleMode string
	inspectTop        int

	tabsPanels bool

	rollbackFile string

	backupSubject string
	backupAll     bool

	historyLimit   int
	historyBatch   string
	historyAction  string
	historyFailed  bool
	historyBatches bool
)

// applyCmd runs a batch of JSON commands
var applyCmd = &cobra.Command{
	Use:   "apply [file|-]",
	Short: "Apply JSON commands from a file or stdin",
	Long: `Reads commands as a single JSON object, a stream of objects (one per
line or pretty-printed) or a JSON array, and applies them in order.

Every mutating command backs up its target first. The exit code is 0 only
when every command succeeded.

Example:
  echo '{"action":"delete_tab","name":"Sandbox"}' | dashagent apply`,
	Args: cobra.MaximumNArgs(1),
	RunE: runApply,
}

var tabsCmd = &cobra.Command{
	Use:   "tabs",
	Short: "List the layout's tabs",
	Args:  cobra.NoArgs,
	RunE:  runTabs,
}

// inspectCmd summarizes dataset columns
var inspectCmd = &cobra.Command{
	Use:   "inspect <column>...",
	Short: "Summarize dataset columns (read only)",
	Long: `Reports type, missing values, value counts and, for numeric columns,
distribution statistics. Several columns are inspected concurrently.

Example:
  dashagent inspect has_color price --row-limit 5000 --sample-mode random`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInspect,
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Restore the most recent backup of the layout or a file",
	Args:  cobra.NoArgs,
	RunE:  runRollback,
}

// backupsCmd browses the backup store
var backupsCmd = &cobra.Command{
	Use:   "backups",
	Short: "Browse and restore backups",
}

var backupsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups of a subject (default: layout)",
	Args:  cobra.NoArgs,
	RunE:  runBackupsList,
}

var backupsShowCmd = &cobra.Command{
	Use:   "show <seq>",
	Short: "Print the content of a backup",
	Args:  cobra.ExactArgs(1),
	RunE:  runBackupsShow,
}

var backupsDiffCmd = &cobra.Command{
	Use:   "diff <seq>",
	Short: "Compare a backup with the live file",
	Args:  cobra.ExactArgs(1),
	RunE:  runBackupsDiff,
}

var backupsRestoreCmd = &cobra.Command{
	Use:   "restore <seq>",
	Short: "Restore a specific backup (the live state is backed up first)",
	Args:  cobra.ExactArgs(1),
	RunE:  runBackupsRestore,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recently executed commands",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print tab changes whenever the layout file is replaced",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

// askCmd plans commands from prose
var askCmd = &cobra.Command{
	Use:   "ask [request]",
	Short: "Describe a change in plain words; the planner turns it into commands",
	Long: `Sends the request to the configured language model together with the
current tabs and dataset columns, then applies the commands it returns.

Requires GEMINI_API_KEY (or llm.api_key).

Example:
  dashagent ask "add a histogram of price to the Overview tab"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start the interactive shell",
	Args:  cobra.NoArgs,
	RunE:  runShell,
}

func registerCommands(root *cobra.Command) {
	applyCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the batch result as JSON")

	tabsCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print tab names as JSON")
	tabsCmd.Flags().BoolVar(&tabsPanels, "panels", false, "Also list each tab's panels")

	inspectCmd.Flags().IntVar(&inspectRowLimit, "row-limit", 0, "Rows to read (default from config)")
	inspectCmd.Flags().StringVar(&inspectSampleMode, "sample-mode", "", "head or random (default from config)")
	inspectCmd.Flags().IntVar(&inspectTop, "top", 0, "Value counts to report (default from config)")
	inspectCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print reports as JSON")

	rollbackCmd.Flags().StringVar(&rollbackFile, "file", "", "Roll back this project file instead of the layout")

	for _, c := range []*cobra.Command{backupsListCmd, backupsShowCmd, backupsDiffCmd, backupsRestoreCmd} {
		c.Flags().StringVarP(&backupSubject, "subject", "s", "layout", `Backup subject: "layout" or a project-relative file path`)
	}
	backupsListCmd.Flags().BoolVar(&backupAll, "all", false, "List every subject with backups")
	backupsCmd.AddCommand(backupsListCmd, backupsShowCmd, backupsDiffCmd, backupsRestoreCmd)

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Entries to show")
	historyCmd.Flags().StringVar(&historyBatch, "batch", "", "Only this batch id")
	historyCmd.Flags().StringVar(&historyAction, "action", "", "Only this action")
	historyCmd.Flags().BoolVar(&historyFailed, "failed", false, "Only failed commands")
	historyCmd.Flags().BoolVar(&historyBatches, "batches", false, "List recent batch ids instead of commands")

	askCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the batch result as JSON")

	root.AddCommand(applyCmd, tabsCmd, inspectCmd, rollbackCmd, backupsCmd, historyCmd, watchCmd, askCmd, shellCmd)
}

func styles() ui.Styles {
	return ui.NewStyles(ui.DetectTheme())
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("read commands: %w", err)
	}
	return data, nil
}

func runApply(cmd *cobra.Command, args []string) error {
	input, err := readInput(cmd, args)
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		res, err := a.Execute(ctx, string(input))
		if err != nil {
			return fmt.Errorf("batch rejected, nothing was applied: %w", err)
		}
		return printBatch(cmd.OutOrStdout(), res)
	})
}

func printBatch(w io.Writer, res *executor.BatchResult) error {
	if jsonOutput {
		if err := writeJSON(w, res); err != nil {
			return err
		}
		return exitCode(res.ExitCode())
	}
	s := styles()
	fmt.Fprintln(w, ui.RenderBatch(s, res))
	for _, r := range res.Results {
		if report, ok := r.Data.(*dataset.Report); ok && r.OK {
			fmt.Fprint(w, ui.Markdown(ui.ReportMarkdown(report), renderWidth, s.Theme.IsDark))
		}
	}
	return exitCode(res.ExitCode())
}

func runTabs(cmd *cobra.Command, args []string) error {
	if tabsPanels {
		return runTabPanels(cmd)
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		tabs, err := a.Tabs()
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if jsonOutput {
			return writeJSON(w, tabs)
		}
		for i, name := range tabs {
			fmt.Fprintf(w, "%2d  %s\n", i+1, name)
		}
		return nil
	})
}

type tabPanels struct {
	Name   string   `json:"name"`
	Panels []string `json:"panels"`
}

// runTabPanels lists every tab with its panel labels, plus the top-level
// keys the layout carries that dashagent does not edit.
func runTabPanels(cmd *cobra.Command) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		doc, err := layout.Load(a.layoutPath)
		if err != nil {
			return err
		}
		tabs := make([]tabPanels, 0, len(doc.Tabs))
		for _, t := range doc.Tabs {
			tp := tabPanels{Name: t.Name, Panels: []string{}}
			for _, p := range t.Panels {
				tp.Panels = append(tp.Panels, layout.PanelLabel(p))
			}
			tabs = append(tabs, tp)
		}

		w := cmd.OutOrStdout()
		if jsonOutput {
			return writeJSON(w, tabs)
		}
		for i, t := range tabs {
			fmt.Fprintf(w, "%2d  %s\n", i+1, t.Name)
			for _, label := range t.Panels {
				if label == "" {
					label = "(untitled)"
				}
				fmt.Fprintf(w, "      - %s\n", label)
			}
		}
		if keys := doc.ExtraKeys(); len(keys) > 0 {
			fmt.Fprintf(w, "preserved keys: %s\n", strings.Join(keys, ", "))
		}
		return nil
	})
}

func runInspect(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		src, err := a.requireDataset()
		if err != nil {
			return err
		}
		opts := dataset.Options{
			RowLimit:   a.cfg.Dataset.RowLimit,
			SampleMode: dataset.SampleMode(a.cfg.Dataset.SampleMode),
			Top:        a.cfg.Dataset.Top,
		}
		if inspectRowLimit > 0 {
			opts.RowLimit = inspectRowLimit
		}
		if inspectSampleMode != "" {
			mode := dataset.SampleMode(inspectSampleMode)
			if mode != dataset.SampleHead && mode != dataset.SampleRandom {
				return fmt.Errorf("invalid --sample-mode %q (valid: head, random)", inspectSampleMode)
			}
			opts.SampleMode = mode
		}
		if inspectTop > 0 {
			opts.Top = inspectTop
		}

		reports, err := dataset.InspectMany(ctx, src, args, opts)
		if err != nil {
			if errors.Is(err, dataset.ErrColumnNotFound) {
				return withColumnHint(ctx, src, args, err)
			}
			return err
		}

		w := cmd.OutOrStdout()
		if jsonOutput {
			return writeJSON(w, reports)
		}
		s := styles()
		for _, r := range reports {
			fmt.Fprint(w, ui.Markdown(ui.ReportMarkdown(r), renderWidth, s.Theme.IsDark))
		}
		return nil
	})
}

// withColumnHint appends close matches for the first unknown column.
func withColumnHint(ctx context.Context, src dataset.Source, names []string, err error) error {
	cols, cerr := src.Columns(ctx)
	if cerr != nil {
		return err
	}
	for _, name := range names {
		if !contains(cols, name) {
			if hints := command.Suggest(name, cols); len(hints) > 0 {
				return fmt.Errorf("%w (did you mean %s?)", err, strings.Join(hints, ", "))
			}
			break
		}
	}
	return err
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// subjectFor turns a user-supplied subject into a backup subject, vetting
// file paths with the workspace guard.
func subjectFor(a *app, raw string) (backup.Subject, error) {
	subj, err := backup.ParseSubject(raw)
	if err != nil {
		return backup.Subject{}, err
	}
	if subj.Kind == backup.KindFile {
		rel, err := a.editor.Guard().Normalize(subj.Path)
		if err != nil {
			return backup.Subject{}, err
		}
		subj = backup.File(rel)
	}
	return subj, nil
}

func runRollback(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		raw := "layout"
		if rollbackFile != "" {
			raw = "file:" + rollbackFile
		}
		subj, err := subjectFor(a, raw)
		if err != nil {
			return err
		}
		rec, err := a.backups.Rollback(subj)
		if err != nil {
			if errors.Is(err, backup.ErrNoBackupAvailable) {
				fmt.Fprintf(cmd.OutOrStdout(), "no backup available for %s\n", subj)
				return exitCode(1)
			}
			return err
		}
		a.log.Info("rolled back", zap.String("subject", subj.String()), zap.Int("seq", rec.Seq))
		fmt.Fprintf(cmd.OutOrStdout(), "restored %s from backup #%d (%s)\n", subj, rec.Seq, rec.Created.Local().Format(time.DateTime))
		return nil
	})
}

func runBackupsList(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		var subjects []backup.Subject
		if backupAll {
			all, err := a.backups.Subjects()
			if err != nil {
				return err
			}
			subjects = all
		} else {
			subj, err := subjectFor(a, backupSubject)
			if err != nil {
				return err
			}
			subjects = []backup.Subject{subj}
		}

		s := styles()
		w := cmd.OutOrStdout()
		for _, subj := range subjects {
			records, err := a.backups.List(subj)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, ui.RenderBackups(s, subj, records))
		}
		return nil
	})
}

// findBackup resolves the <seq> argument against the --subject flag.
func findBackup(a *app, arg string) (backup.Record, error) {
	seq, err := strconv.Atoi(arg)
	if err != nil || seq <= 0 {
		return backup.Record{}, fmt.Errorf("invalid backup sequence %q", arg)
	}
	subj, err := subjectFor(a, backupSubject)
	if err != nil {
		return backup.Record{}, err
	}
	return a.backups.Find(subj, seq)
}

func runBackupsShow(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		rec, err := findBackup(a, args[0])
		if err != nil {
			return err
		}
		if rec.Absent {
			fmt.Fprintf(cmd.OutOrStdout(), "%s did not exist when backup #%d was taken\n", rec.Subject, rec.Seq)
			return nil
		}
		data, err := a.backups.Read(rec)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	})
}

func runBackupsDiff(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		rec, err := findBackup(a, args[0])
		if err != nil {
			return err
		}
		var old []byte
		if !rec.Absent {
			if old, err = a.backups.Read(rec); err != nil {
				return err
			}
		}
		live, err := liveContent(a, rec.Subject)
		if err != nil {
			return err
		}

		s := styles()
		w := cmd.OutOrStdout()
		name := rec.Subject.String()
		d := diff.Compare(fmt.Sprintf("%s@%d", name, rec.Seq), name, string(old), string(live))
		fmt.Fprintln(w, ui.RenderDiff(s, d))

		if rec.Subject.Kind == backup.KindLayout {
			oldDoc, newDoc := parseOrDefault(old), parseOrDefault(live)
			fmt.Fprintln(w, ui.RenderTabChanges(s, diff.TabChanges(oldDoc, newDoc)))
			if diff.Reordered(oldDoc, newDoc) {
				fmt.Fprintln(w, s.Warning.Render("tab order changed"))
			}
		}
		return nil
	})
}

// liveContent returns the subject's current bytes, or nil when it does not
// exist. File subjects are read through the path guard.
func liveContent(a *app, subj backup.Subject) ([]byte, error) {
	var data []byte
	var err error
	if subj.Kind == backup.KindFile {
		data, err = a.editor.Read(subj.Path)
	} else {
		data, err = os.ReadFile(a.backups.LivePath(subj))
	}
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

// parseOrDefault reads a layout for tab comparison. Unreadable or missing
// content compares as the default document.
func parseOrDefault(data []byte) *layout.Document {
	if len(strings.TrimSpace(string(data))) == 0 {
		return layout.Default()
	}
	doc, _, err := layout.Parse(data)
	if err != nil {
		return layout.Default()
	}
	return doc
}

func runBackupsRestore(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		rec, err := findBackup(a, args[0])
		if err != nil {
			return err
		}
		current, err := a.backups.Backup(rec.Subject)
		if err != nil {
			return fmt.Errorf("restore aborted: %w", err)
		}
		if err := a.backups.Restore(rec); err != nil {
			return err
		}
		a.log.Info("backup restored",
			zap.String("subject", rec.Subject.String()),
			zap.Int("seq", rec.Seq),
			zap.Int("saved_as", current.Seq))
		fmt.Fprintf(cmd.OutOrStdout(), "restored %s from backup #%d (previous state saved as #%d)\n", rec.Subject, rec.Seq, current.Seq)
		return nil
	})
}

func runHistory(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		if a.journal == nil {
			return errors.New("journal disabled (journal.enabled: false)")
		}
		if historyBatches {
			ids, err := a.journal.Batches(ctx, historyLimit)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, id := range ids {
				fmt.Fprintln(w, id)
			}
			return nil
		}
		entries, err := a.journal.History(ctx, journal.Filter{
			BatchID:    historyBatch,
			Action:     historyAction,
			FailedOnly: historyFailed,
			Limit:      historyLimit,
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.RenderHistory(styles(), entries))
		return nil
	})
}

func runWatch(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		w := cmd.OutOrStdout()
		s := styles()
		lw, err := watch.New(a.layoutPath, a.cfg.GetWatchDebounce(), func(c watch.Change) {
			fmt.Fprintln(w, describeChange(s, c))
		})
		if err != nil {
			return err
		}
		if err := lw.Start(ctx); err != nil {
			return err
		}
		fmt.Fprintf(w, "watching %s (Ctrl+C to stop)\n", a.layoutPath)

		<-ctx.Done()
		lw.Stop()

		st := lw.Stats()
		fmt.Fprintf(w, "%d event(s), %d reload(s), %d unreadable read(s)\n", st.Events, st.Reloads, st.ParseErrors)
		return nil
	})
}

func describeChange(s ui.Styles, c watch.Change) string {
	stamp := s.Muted.Render(c.At.Local().Format(time.TimeOnly))
	switch {
	case c.Deleted:
		return stamp + " " + s.Warning.Render("layout file removed")
	case c.Err != nil:
		return stamp + " " + s.Error.Render("unreadable layout: "+c.Err.Error())
	}
	var parts []string
	for _, name := range c.Added {
		parts = append(parts, s.Added.Render("+"+name))
	}
	for _, name := range c.Removed {
		parts = append(parts, s.Removed.Render("-"+name))
	}
	if len(parts) == 0 {
		parts = append(parts, "tabs unchanged")
	}
	return fmt.Sprintf("%s %s  [%s]", stamp, strings.Join(parts, " "), strings.Join(c.Tabs, ", "))
}

func runAsk(cmd *cobra.Command, args []string) error {
	request := strings.Join(args, " ")
	return withApp(cmd, func(ctx context.Context, a *app) error {
		res, reply, err := a.Ask(ctx, request)
		if err != nil {
			if errors.Is(err, planner.ErrNoCommands) && reply != "" {
				fmt.Fprintln(cmd.OutOrStdout(), reply)
			}
			return err
		}
		return printBatch(cmd.OutOrStdout(), res)
	})
}

func runShell(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		return ui.RunShell(ctx, a, styles())
	})
}
