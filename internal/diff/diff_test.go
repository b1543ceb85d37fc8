package diff

import (
	"fmt"
	"strings"
	"testing"

	"dashagent/internal/layout"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func changed(d *Diff, typ LineType) []string {
	var out []string
	for _, h := range d.Hunks {
		for _, l := range h.Lines {
			if l.Type == typ {
				out = append(out, l.Content)
			}
		}
	}
	return out
}

func TestCompare_Addition(t *testing.T) {
	d := Compare("a", "b", "line1\nline2\nline3\n", "line1\nline2\nline2.5\nline3\n")

	require.Len(t, d.Hunks, 1)
	assert.Equal(t, []string{"line2.5"}, changed(d, LineAdded))
	assert.Empty(t, changed(d, LineRemoved))
	assert.Equal(t, 1, d.Added)
	assert.Equal(t, 0, d.Removed)
}

func TestCompare_Deletion(t *testing.T) {
	d := Compare("a", "b", "line1\nline2\nline3\nline4\n", "line1\nline2\nline4\n")

	require.Len(t, d.Hunks, 1)
	assert.Equal(t, []string{"line3"}, changed(d, LineRemoved))
	h := d.Hunks[0]
	assert.Equal(t, 1, h.OldStart)
	assert.Equal(t, 4, h.OldCount)
	assert.Equal(t, 1, h.NewStart)
	assert.Equal(t, 3, h.NewCount)
}

func TestCompare_Identical(t *testing.T) {
	d := Compare("a", "b", "same\n", "same\n")
	assert.True(t, d.Empty())
	assert.Equal(t, "", d.Unified())
}

func TestCompare_FromNothing(t *testing.T) {
	d := Compare("/dev/null", "b", "", "x\ny\n")
	assert.Equal(t, 2, d.Added)
	assert.Contains(t, d.Unified(), "@@ -0,0 +1,2 @@")
}

func TestCompare_SeparateHunks(t *testing.T) {
	var old, updated []string
	for i := 1; i <= 30; i++ {
		old = append(old, fmt.Sprintf("line%d", i))
		updated = append(updated, fmt.Sprintf("line%d", i))
	}
	updated[1] = "changed2"
	updated[27] = "changed28"

	d := Compare("a", "b", strings.Join(old, "\n")+"\n", strings.Join(updated, "\n")+"\n")
	require.Len(t, d.Hunks, 2)
	assert.Equal(t, []string{"line2", "line28"}, changed(d, LineRemoved))
	assert.Equal(t, []string{"changed2", "changed28"}, changed(d, LineAdded))
}

func TestCompare_LongDocumentLineNumbers(t *testing.T) {
	var old, updated []string
	for i := 1; i <= 150; i++ {
		old = append(old, fmt.Sprintf("row %d", i))
		updated = append(updated, fmt.Sprintf("row %d", i))
	}
	updated[122] = "row 123 edited"

	d := Compare("a", "b", strings.Join(old, "\n")+"\n", strings.Join(updated, "\n")+"\n")
	require.Len(t, d.Hunks, 1)
	assert.Equal(t, []string{"row 123"}, changed(d, LineRemoved))
	assert.Equal(t, []string{"row 123 edited"}, changed(d, LineAdded))
	assert.Equal(t, 1, d.Added)
	assert.Equal(t, 1, d.Removed)
	assert.Equal(t, 120, d.Hunks[0].OldStart)
	assert.Equal(t, 7, d.Hunks[0].OldCount)
}

func TestCompare_ManyDistinctLines(t *testing.T) {
	const n = 0xD800 + 500
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "%d\n", i)
	}
	old := b.String()
	updated := strings.Replace(old, "\n55500\n", "\nreplaced\n", 1)

	d := Compare("a", "b", old, updated)
	require.Len(t, d.Hunks, 1)
	assert.Equal(t, []string{"55500"}, changed(d, LineRemoved))
	assert.Equal(t, []string{"replaced"}, changed(d, LineAdded))
}

func TestRuneForSkipsSurrogates(t *testing.T) {
	assert.Equal(t, rune(1), runeFor(0))
	assert.Equal(t, rune(0xD7FF), runeFor(0xD7FE))
	assert.Equal(t, rune(0xE000), runeFor(0xD7FF))
}

func TestCompare_NearbyChangesShareHunk(t *testing.T) {
	old := "a\nb\nc\nd\ne\nf\ng\n"
	updated := "A\nb\nc\nd\ne\nf\nG\n"
	d := Compare("a", "b", old, updated)
	assert.Len(t, d.Hunks, 1)
}

func TestCompare_ContextTrimmed(t *testing.T) {
	old := "1\n2\n3\n4\n5\n6\n7\n8\n9\n"
	updated := "1\n2\n3\n4\nfive\n6\n7\n8\n9\n"

	d := CompareContext("a", "b", old, updated, 1)
	require.Len(t, d.Hunks, 1)
	lines := d.Hunks[0].Lines
	require.Len(t, lines, 4)
	assert.Equal(t, "4", lines[0].Content)
	assert.Equal(t, "6", lines[3].Content)
	assert.Equal(t, 4, d.Hunks[0].OldStart)
}

func TestUnified(t *testing.T) {
	d := Compare("layout.json@1", "layout.json", "a\nb\nc\n", "a\nB\nc\n")
	want := "--- layout.json@1\n+++ layout.json\n@@ -1,3 +1,3 @@\n a\n-b\n+B\n c\n"
	assert.Equal(t, want, d.Unified())
	assert.Equal(t, "1 insertion(+), 1 deletion(-)", d.Stat())
}

func mustParse(t *testing.T, s string) *layout.Document {
	t.Helper()
	doc, _, err := layout.Parse([]byte(s))
	require.NoError(t, err)
	return doc
}

func TestTabChanges(t *testing.T) {
	old := mustParse(t, `{"tabs":[{"name":"Overview","panels":[{"type":"bar"}]},{"name":"Details"}]}`)
	updated := mustParse(t, `{"tabs":[{"name":"Overview","panels":[]},{"name":"Prices","panels":[{"type":"line"}]}]}`)

	got := TabChanges(old, updated)
	assert.Equal(t, []TabChange{
		{Name: "Overview", PanelsOld: 1, PanelsNew: 0},
		{Name: "Prices", Added: true, PanelsNew: 1},
		{Name: "Details", Removed: true},
	}, got)
	assert.False(t, Reordered(old, updated))
}

func TestReordered(t *testing.T) {
	old := mustParse(t, `{"tabs":[{"name":"A"},{"name":"B"},{"name":"C"}]}`)
	updated := mustParse(t, `{"tabs":[{"name":"B"},{"name":"A"}]}`)
	assert.True(t, Reordered(old, updated))
}
