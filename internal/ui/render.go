package ui

import (
	"fmt"
	"strconv"
	"strings"

	"dashagent/internal/backup"
	"dashagent/internal/dataset"
	"dashagent/internal/diff"
	"dashagent/internal/executor"
	"dashagent/internal/journal"

	"github.com/charmbracelet/glamour"
)

// RenderBatch renders one line per command plus a summary.
func RenderBatch(s Styles, res *executor.BatchResult) string {
	var b strings.Builder
	for _, r := range res.Results {
		status := s.Success.Render("OK  ")
		if !r.OK {
			status = s.Error.Render("FAIL")
		}
		action := string(r.Action)
		if action == "" {
			action = "?"
		}
		line := fmt.Sprintf("%s %s %s", status, s.Muted.Render(fmt.Sprintf("#%d", r.Index)), s.Bold.Render(action))
		if r.Message != "" {
			line += "  " + r.Message
		}
		if r.Backup != nil && r.Action != "rollback_layout" {
			line += s.Muted.Render(fmt.Sprintf("  [backup %s #%d]", r.Backup.Subject, r.Backup.Seq))
		}
		if r.RolledBack {
			line += "  " + s.Warning.Render("(rolled back)")
		}
		b.WriteString(line + "\n")
	}
	for _, w := range res.Warnings {
		b.WriteString(s.Warning.Render("WARN") + " " + w + "\n")
	}
	if res.Skipped > 0 {
		b.WriteString(s.Warning.Render(fmt.Sprintf("%d command(s) skipped after failure (policy %s)", res.Skipped, res.Policy)) + "\n")
	}
	for _, subj := range res.Restored {
		b.WriteString(s.Warning.Render("restored "+subj.String()) + "\n")
	}

	summary := fmt.Sprintf("batch %s: %d ok, %d failed", shortID(res.BatchID), len(res.Results)-res.Failed(), res.Failed())
	if res.OK() {
		b.WriteString(s.Success.Render(summary))
	} else {
		b.WriteString(s.Error.Render(summary))
	}
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// ReportMarkdown formats a column report as markdown.
func ReportMarkdown(r *dataset.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n", r.Column)
	fmt.Fprintf(&b, "| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| dtype | `%s` |\n", r.DType)
	fmt.Fprintf(&b, "| rows | %d of %d (%s) |\n", r.RowsSampled, r.RowsTotal, r.SampleMode)
	fmt.Fprintf(&b, "| missing | %d (%.2f%%) |\n", r.Missing, r.MissingPct)
	fmt.Fprintf(&b, "| unique | %d |\n", r.Unique)

	if n := r.Numeric; n != nil {
		b.WriteString("\n### Numeric\n\n| stat | value |\n|---|---|\n")
		fmt.Fprintf(&b, "| min | %s |\n| max | %s |\n| mean | %s |\n", num(n.Min), num(n.Max), num(n.Mean))
		if n.Std != nil {
			fmt.Fprintf(&b, "| std | %s |\n", num(*n.Std))
		}
		for _, q := range n.Quantiles {
			fmt.Fprintf(&b, "| q%s | %s |\n", num(q.Q), num(q.Value))
		}
	}

	if len(r.ValueCounts) > 0 {
		b.WriteString("\n### Value counts\n\n| value | count |\n|---|---|\n")
		for _, vc := range r.ValueCounts {
			fmt.Fprintf(&b, "| %s | %d |\n", escapeCell(vc.Value), vc.Count)
		}
	}
	if len(r.Samples) > 0 {
		quoted := make([]string, len(r.Samples))
		for i, v := range r.Samples {
			quoted[i] = "`" + v + "`"
		}
		b.WriteString("\nSamples: " + strings.Join(quoted, ", ") + "\n")
	}
	return b.String()
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'g', 6, 64)
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// Markdown renders markdown for the terminal. On renderer failure the
// source text is returned unchanged.
func Markdown(md string, width int, dark bool) string {
	style := "light"
	if dark {
		style = "dark"
	}
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(glamour.WithStylePath(style), glamour.WithWordWrap(width))
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}

// RenderBackups lists backup records.
func RenderBackups(s Styles, subject backup.Subject, records []backup.Record) string {
	if len(records) == 0 {
		return s.Muted.Render("no backups for " + subject.String())
	}
	t := NewTable("Backups: "+subject.String(), "seq", "created", "size", "checksum", "note")
	for _, r := range records {
		note := ""
		if r.Absent {
			note = "did not exist"
		}
		if r.Compressed {
			note = strings.TrimSpace(note + " zstd")
		}
		t.AddRow(strconv.Itoa(r.Seq), r.Created.Local().Format("2006-01-02 15:04:05"), strconv.Itoa(r.Size), shortID(r.Checksum), note)
	}
	return t.View(s)
}

// RenderHistory lists journal entries.
func RenderHistory(s Styles, entries []journal.Entry) string {
	if len(entries) == 0 {
		return s.Muted.Render("no history")
	}
	t := NewTable("History", "time", "batch", "#", "action", "target", "result")
	for _, e := range entries {
		result := "ok"
		if !e.OK {
			result = "failed: " + e.Error
		}
		if e.BackupSeq > 0 {
			result += fmt.Sprintf(" (backup #%d)", e.BackupSeq)
		}
		t.AddRow(e.Timestamp.Local().Format("01-02 15:04:05"), shortID(e.BatchID), strconv.Itoa(e.Index), e.Action, e.Target, result)
	}
	return t.View(s)
}

// RenderDiff colors a unified diff.
func RenderDiff(s Styles, d *diff.Diff) string {
	if d.Empty() {
		return s.Muted.Render("no differences")
	}
	var b strings.Builder
	for _, line := range strings.Split(strings.TrimSuffix(d.Unified(), "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			b.WriteString(s.Bold.Render(line))
		case strings.HasPrefix(line, "@@"):
			b.WriteString(s.Hunk.Render(line))
		case strings.HasPrefix(line, "+"):
			b.WriteString(s.Added.Render(line))
		case strings.HasPrefix(line, "-"):
			b.WriteString(s.Removed.Render(line))
		default:
			b.WriteString(line)
		}
		b.WriteByte('\n')
	}
	b.WriteString(s.Muted.Render(d.Stat()))
	return b.String()
}

// RenderTabChanges summarizes tab-level differences.
func RenderTabChanges(s Styles, changes []diff.TabChange) string {
	if len(changes) == 0 {
		return s.Muted.Render("tabs unchanged")
	}
	var lines []string
	for _, c := range changes {
		switch {
		case c.Added:
			lines = append(lines, s.Added.Render(fmt.Sprintf("+ %s (%d panels)", c.Name, c.PanelsNew)))
		case c.Removed:
			lines = append(lines, s.Removed.Render(fmt.Sprintf("- %s (%d panels)", c.Name, c.PanelsOld)))
		default:
			lines = append(lines, fmt.Sprintf("~ %s panels %d -> %d", c.Name, c.PanelsOld, c.PanelsNew))
		}
	}
	return strings.Join(lines, "\n")
}
