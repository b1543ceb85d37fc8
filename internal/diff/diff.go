// Package diff compares two states of a document (a backup against the live
// layout, or two backups) line by line using sergi/go-diff and renders the
// result as a unified diff.
package diff

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// LineType is the kind of a diff line.
type LineType int

const (
	LineContext LineType = iota
	LineAdded
	LineRemoved
)

func (t LineType) prefix() string {
	switch t {
	case LineAdded:
		return "+"
	case LineRemoved:
		return "-"
	default:
		return " "
	}
}

// Line is one line of a hunk.
type Line struct {
	Type    LineType
	Content string
	OldNum  int // 1-based, 0 for added lines
	NewNum  int // 1-based, 0 for removed lines
}

// Hunk is a run of changes with surrounding context.
type Hunk struct {
	OldStart, OldCount int
	NewStart, NewCount int
	Lines              []Line
}

// Diff is the comparison of two versions of one document.
type Diff struct {
	OldName string
	NewName string
	Hunks   []Hunk
	Added   int
	Removed int
}

// Empty reports whether the two versions are identical.
func (d *Diff) Empty() bool { return len(d.Hunks) == 0 }

// DefaultContext is the number of unchanged lines kept around each change.
const DefaultContext = 3

// Compare diffs old against new with DefaultContext lines of context.
func Compare(oldName, newName, oldText, newText string) *Diff {
	return CompareContext(oldName, newName, oldText, newText, DefaultContext)
}

// CompareContext diffs old against new keeping context unchanged lines
// around each change.
func CompareContext(oldName, newName, oldText, newText string, context int) *Diff {
	d := &Diff{OldName: oldName, NewName: newName}
	if oldText == newText {
		return d
	}

	lines := lineOps(oldText, newText)
	for _, l := range lines {
		switch l.Type {
		case LineAdded:
			d.Added++
		case LineRemoved:
			d.Removed++
		}
	}
	d.Hunks = group(lines, context)
	return d
}

// lineOps runs a line-mode diff: every distinct line becomes one rune, the
// rune slices are diffed, and the runes are mapped back to lines.
func lineOps(oldText, newText string) []Line {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0

	enc := newLineEncoder()
	a, b := enc.encode(oldText), enc.encode(newText)

	var out []Line
	oldNum, newNum := 1, 1
	for _, d := range dmp.DiffMainRunes(a, b, false) {
		for _, r := range d.Text {
			text := strings.TrimSuffix(enc.lines[r], "\n")
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				out = append(out, Line{Type: LineContext, Content: text, OldNum: oldNum, NewNum: newNum})
				oldNum++
				newNum++
			case diffmatchpatch.DiffDelete:
				out = append(out, Line{Type: LineRemoved, Content: text, OldNum: oldNum})
				oldNum++
			case diffmatchpatch.DiffInsert:
				out = append(out, Line{Type: LineAdded, Content: text, NewNum: newNum})
				newNum++
			}
		}
	}
	return out
}

// lineEncoder assigns one rune per distinct line. Diff.Text is a string, so
// surrogate code points, which do not survive UTF-8, are never assigned.
type lineEncoder struct {
	ids   map[string]rune
	lines map[rune]string
}

func newLineEncoder() *lineEncoder {
	return &lineEncoder{ids: make(map[string]rune), lines: make(map[rune]string)}
}

func (e *lineEncoder) encode(text string) []rune {
	var out []rune
	for _, line := range strings.SplitAfter(text, "\n") {
		if line == "" {
			continue
		}
		id, ok := e.ids[line]
		if !ok {
			id = runeFor(len(e.ids))
			e.ids[line] = id
			e.lines[id] = line
		}
		out = append(out, id)
	}
	return out
}

func runeFor(n int) rune {
	r := rune(n + 1)
	if r >= 0xD800 {
		r += 0x800
	}
	return r
}

// group collects changed lines into hunks. Changes closer than 2*context
// lines apart share a hunk.
func group(lines []Line, context int) []Hunk {
	var hunks []Hunk
	i := 0
	for i < len(lines) {
		if lines[i].Type == LineContext {
			i++
			continue
		}

		start := max(i-context, 0)
		end := i
		// extend while another change follows within the context window
		for j := i; j < len(lines); j++ {
			if lines[j].Type != LineContext {
				end = j
				continue
			}
			if j-end > 2*context {
				break
			}
		}
		stop := min(end+context+1, len(lines))

		h := Hunk{Lines: append([]Line(nil), lines[start:stop]...)}
		for _, l := range h.Lines {
			if l.Type != LineAdded {
				h.OldCount++
				if h.OldStart == 0 {
					h.OldStart = l.OldNum
				}
			}
			if l.Type != LineRemoved {
				h.NewCount++
				if h.NewStart == 0 {
					h.NewStart = l.NewNum
				}
			}
		}
		hunks = append(hunks, h)
		i = stop
	}
	return hunks
}

// Unified renders the diff in unified format.
func (d *Diff) Unified() string {
	if d.Empty() {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "--- %s\n+++ %s\n", d.OldName, d.NewName)
	for _, h := range d.Hunks {
		fmt.Fprintf(&b, "@@ -%s +%s @@\n", span(h.OldStart, h.OldCount), span(h.NewStart, h.NewCount))
		for _, l := range h.Lines {
			b.WriteString(l.Type.prefix())
			b.WriteString(l.Content)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func span(start, count int) string {
	if count == 1 {
		return fmt.Sprintf("%d", start)
	}
	return fmt.Sprintf("%d,%d", start, count)
}

// Stat is a one-line summary such as "3 insertions(+), 1 deletion(-)".
func (d *Diff) Stat() string {
	return fmt.Sprintf("%d %s(+), %d %s(-)", d.Added, plural(d.Added, "insertion"), d.Removed, plural(d.Removed, "deletion"))
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
