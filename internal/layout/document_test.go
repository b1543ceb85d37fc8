package layout

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleLayout = `{
  // edited by hand
  "version": 3,
  "tabs": [
    {"name": "Overview", "filters": [{"col": "line", "values": ["A"]}], "panels": [{"type": "kpi", "col": "thickness"}], "icon": "chart"},
    {"name": "Details", "filters": [], "panels": [
      {"type": "histogram", "x": "has_color", "title": "Color"},
    ]},
  ],
  "sidebar": {"show_filters": true}
}`

func writeLayout(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "layout.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_MissingFileIsDefault(t *testing.T) {
	doc, err := Load(filepath.Join(t.TempDir(), "layout.json"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Overview"}, doc.Names())
}

func TestLoad_EmptyFileIsDefault(t *testing.T) {
	doc, err := Load(writeLayout(t, "  \n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Overview"}, doc.Names())
}

func TestLoad_ToleratesCommentsAndTrailingCommas(t *testing.T) {
	doc, err := Load(writeLayout(t, sampleLayout))
	require.NoError(t, err)

	assert.Equal(t, []string{"Overview", "Details"}, doc.Names())
	assert.Len(t, doc.Tabs[1].Panels, 1)
	assert.Equal(t, "histogram", PanelType(doc.Tabs[1].Panels[0]))
	assert.Equal(t, "Color", PanelLabel(doc.Tabs[1].Panels[0]))
	assert.JSONEq(t, `"chart"`, string(doc.Tabs[0].Extra["icon"]))
	assert.Equal(t, []string{"version"}, doc.ExtraKeys())
}

func TestLoad_Malformed(t *testing.T) {
	_, err := Load(writeLayout(t, `{"tabs": [`))
	assert.Error(t, err)

	_, err = Load(writeLayout(t, `{"tabs": {"name": "x"}}`))
	assert.Error(t, err)

	_, err = Load(writeLayout(t, `[1, 2]`))
	assert.Error(t, err)
}

func TestParse_RepairsNamesAndDuplicates(t *testing.T) {
	doc, warnings, err := Parse([]byte(`{"tabs": [
		{"name": "A"},
		{"name": ""},
		{"title": "no name"},
		"not an object",
		{"name": "A", "panels": [{"type": "bar"}]},
		{"name": " B "}
	]}`))
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B"}, doc.Names())
	assert.Empty(t, doc.Tabs[0].Panels, "first occurrence wins")
	assert.Len(t, warnings, 4)
}

func TestRoundTrip(t *testing.T) {
	original, err := Load(writeLayout(t, sampleLayout))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out", "layout.json")
	require.NoError(t, Save(path, original))

	reloaded, err := Load(path)
	require.NoError(t, err)

	if diff := cmp.Diff(original, reloaded); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestRoundTrip_Default(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layout.json")
	require.NoError(t, Save(path, Default()))

	reloaded, err := Load(path)
	require.NoError(t, err)
	if diff := cmp.Diff(Default(), reloaded); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestSave_EmptyTabListStaysEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layout.json")
	doc := Default()
	require.NoError(t, doc.DeleteTab("Overview"))
	require.NoError(t, Save(path, doc))

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, reloaded.Names())
}

func TestDeleteTab(t *testing.T) {
	doc := &Document{Tabs: []Tab{newTab("Overview"), newTab("Details")}}

	require.NoError(t, doc.DeleteTab("Overview"))
	assert.Equal(t, []string{"Details"}, doc.Names())

	err := doc.DeleteTab("Overview")
	assert.True(t, errors.Is(err, ErrTabNotFound))
	assert.Equal(t, []string{"Details"}, doc.Names())
}

func TestDeleteTab_LastTabLeavesEmptyList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layout.json")
	doc := &Document{Tabs: []Tab{newTab("Overview")}}

	require.NoError(t, doc.DeleteTab("Overview"))
	require.NoError(t, Save(path, doc))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"tabs": []`)

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, loaded.Names())
}

func TestAddTab(t *testing.T) {
	doc := Default()
	assert.True(t, doc.AddTab("Quality"))
	assert.False(t, doc.AddTab("Quality"))
	assert.Equal(t, []string{"Overview", "Quality"}, doc.Names())
}

func TestKeepOnlyAndClearPanels(t *testing.T) {
	doc, _, err := Parse([]byte(sampleLayout))
	require.NoError(t, err)

	require.NoError(t, doc.ClearPanels("Details"))
	assert.Empty(t, doc.Tabs[1].Panels)

	require.NoError(t, doc.KeepOnly("Details"))
	assert.Equal(t, []string{"Details"}, doc.Names())

	assert.ErrorIs(t, doc.KeepOnly("Overview"), ErrTabNotFound)
	assert.ErrorIs(t, doc.ClearPanels("Overview"), ErrTabNotFound)
}

func TestAddPanel(t *testing.T) {
	doc := Default()

	created, err := doc.AddPanel("Overview", json.RawMessage(`{ "type": "line", "x": "date" }`))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, `{"type":"line","x":"date"}`, string(doc.Tabs[0].Panels[0]))

	created, err = doc.AddPanel("Trends", json.RawMessage(`{"type":"bar"}`))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, []string{"Overview", "Trends"}, doc.Names())

	_, err = doc.AddPanel("Trends", json.RawMessage(`{broken`))
	assert.Error(t, err)
}

func TestMarshal_KnownKeysWinOverExtras(t *testing.T) {
	tab := newTab("Real")
	tab.Extra = map[string]json.RawMessage{"name": json.RawMessage(`"Shadow"`), "icon": json.RawMessage(`"x"`)}
	doc := &Document{Tabs: []Tab{tab}}

	data, err := doc.Marshal()
	require.NoError(t, err)
	assert.JSONEq(t, `{"tabs":[{"name":"Real","filters":[],"panels":[],"icon":"x"}],"sidebar":{}}`, string(data))
}
