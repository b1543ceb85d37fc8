package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dashagent/internal/backup"
	"dashagent/internal/layout"
	"dashagent/internal/planner"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const twoTabs = `{"tabs":[{"name":"Overview","filters":[],"panels":[]},{"name":"Details","filters":[],"panels":[]}],"sidebar":{}}`

// setupWorkspace creates a project with a two-tab layout, a small dataset
// and a config pointing at it, and resets the global flags.
func setupWorkspace(t *testing.T) string {
	t.Helper()
	for _, key := range []string{"DASHAGENT_LAYOUT", "DASHAGENT_BACKUP_DIR", "DASHAGENT_DATASET", "DASHAGENT_DATASET_TABLE", "DASHAGENT_POLICY", "DASHAGENT_DEBUG"} {
		t.Setenv(key, "")
	}

	ws := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(ws, "layout.json"), []byte(twoTabs), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(ws, "data.csv"),
		[]byte("region,has_color,price\nnorth,0,1.5\nsouth,1,2.5\neast,0,3.5\nwest,1,4.5\nnorth,1,5.5\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(ws, ".dashagent"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(ws, ".dashagent", "config.yaml"), []byte("dataset:\n  path: data.csv\n"), 0o644))

	logger = zap.NewNop()
	workspace = ws
	configPath = ""
	policyFlag = ""
	jsonOutput = false
	inspectRowLimit, inspectSampleMode, inspectTop = 0, "", 0
	tabsPanels = false
	rollbackFile = ""
	backupSubject, backupAll = "layout", false
	historyLimit, historyBatch, historyAction, historyFailed, historyBatches = 20, "", "", false, false
	return ws
}

func newCmd(stdin string) (*cobra.Command, *bytes.Buffer) {
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	return cmd, &out
}

func liveTabs(t *testing.T, ws string) []string {
	t.Helper()
	doc, err := layout.Load(filepath.Join(ws, "layout.json"))
	require.NoError(t, err)
	return doc.Names()
}

func exitStatus(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return -1
}

func TestApplyDeleteTab(t *testing.T) {
	ws := setupWorkspace(t)
	cmd, out := newCmd(`{"action":"delete_tab","name":"Details"}`)

	require.NoError(t, runApply(cmd, nil))
	assert.Contains(t, out.String(), "delete_tab")
	assert.Equal(t, []string{"Overview"}, liveTabs(t, ws))

	entries, err := os.ReadDir(filepath.Join(ws, ".backups", "layout"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestApplyFromFile(t *testing.T) {
	ws := setupWorkspace(t)
	path := filepath.Join(ws, "cmds.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"action":"add_tab","name":"Extra"}
{"action":"keep_only_tab","name":"Extra"}
`), 0o644))
	cmd, _ := newCmd("")

	require.NoError(t, runApply(cmd, []string{path}))
	assert.Equal(t, []string{"Extra"}, liveTabs(t, ws))
}

func TestApplyFailureExitCode(t *testing.T) {
	ws := setupWorkspace(t)
	cmd, out := newCmd(`{"action":"delete_tab","name":"Missing"}`)

	err := runApply(cmd, nil)
	assert.Equal(t, 1, exitStatus(err))
	assert.Contains(t, out.String(), "FAIL")
	assert.Equal(t, []string{"Overview", "Details"}, liveTabs(t, ws))
}

func TestApplyRejectsMalformedBatch(t *testing.T) {
	ws := setupWorkspace(t)
	cmd, _ := newCmd("{\"action\":\"delete_tab\",\"name\":\"Details\"}\n{not json}\n")

	err := runApply(cmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing was applied")
	assert.Equal(t, []string{"Overview", "Details"}, liveTabs(t, ws))
}

func TestApplyContinuePolicyFlag(t *testing.T) {
	ws := setupWorkspace(t)
	policyFlag = "continue"
	cmd, _ := newCmd(`[{"action":"delete_tab","name":"Missing"},{"action":"add_tab","name":"Later"}]`)

	err := runApply(cmd, nil)
	assert.Equal(t, 1, exitStatus(err))
	assert.Equal(t, []string{"Overview", "Details", "Later"}, liveTabs(t, ws))
}

func TestApplyJSONOutput(t *testing.T) {
	setupWorkspace(t)
	jsonOutput = true
	cmd, out := newCmd(`{"action":"list_tabs"}`)

	require.NoError(t, runApply(cmd, nil))

	var res struct {
		Policy  string `json:"policy"`
		Results []struct {
			Action string   `json:"action"`
			OK     bool     `json:"ok"`
			Data   []string `json:"data"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, "stop", res.Policy)
	require.Len(t, res.Results, 1)
	assert.True(t, res.Results[0].OK)
	assert.Equal(t, []string{"Overview", "Details"}, res.Results[0].Data)
}

func TestTabs(t *testing.T) {
	setupWorkspace(t)
	cmd, out := newCmd("")

	require.NoError(t, runTabs(cmd, nil))
	assert.Contains(t, out.String(), "1  Overview")
	assert.Contains(t, out.String(), "2  Details")
}

func TestTabsWithPanels(t *testing.T) {
	ws := setupWorkspace(t)
	layoutJSON := `{"version":2,"tabs":[{"name":"Overview","filters":[],"panels":[{"type":"histogram","title":"Price"},{"type":"bar"}]}],"sidebar":{}}`
	require.NoError(t, os.WriteFile(filepath.Join(ws, "layout.json"), []byte(layoutJSON), 0o644))
	tabsPanels = true

	cmd, out := newCmd("")
	require.NoError(t, runTabs(cmd, nil))
	assert.Contains(t, out.String(), "1  Overview")
	assert.Contains(t, out.String(), "- Price")
	assert.Contains(t, out.String(), "- bar")
	assert.Contains(t, out.String(), "preserved keys: version")

	jsonOutput = true
	cmd, out = newCmd("")
	require.NoError(t, runTabs(cmd, nil))
	var tabs []tabPanels
	require.NoError(t, json.Unmarshal(out.Bytes(), &tabs))
	assert.Equal(t, []tabPanels{{Name: "Overview", Panels: []string{"Price", "bar"}}}, tabs)
}

func TestRollbackRestoresLayout(t *testing.T) {
	ws := setupWorkspace(t)
	cmd, _ := newCmd(`{"action":"delete_tab","name":"Details"}`)
	require.NoError(t, runApply(cmd, nil))

	cmd, out := newCmd("")
	require.NoError(t, runRollback(cmd, nil))
	assert.Contains(t, out.String(), "backup #1")
	assert.Equal(t, []string{"Overview", "Details"}, liveTabs(t, ws))
}

func TestRollbackWithoutBackups(t *testing.T) {
	setupWorkspace(t)
	cmd, out := newCmd("")

	err := runRollback(cmd, nil)
	assert.Equal(t, 1, exitStatus(err))
	assert.Contains(t, out.String(), "no backup available")
}

func TestRollbackFile(t *testing.T) {
	ws := setupWorkspace(t)
	require.NoError(t, os.WriteFile(filepath.Join(ws, "notes.md"), []byte("v1\n"), 0o644))
	cmd, _ := newCmd(`{"action":"create_file","relative_path":"notes.md","content":"v2\n"}`)
	require.NoError(t, runApply(cmd, nil))

	rollbackFile = "notes.md"
	cmd, _ = newCmd("")
	require.NoError(t, runRollback(cmd, nil))

	data, err := os.ReadFile(filepath.Join(ws, "notes.md"))
	require.NoError(t, err)
	assert.Equal(t, "v1\n", string(data))
}

func TestRollbackRejectsOutsidePath(t *testing.T) {
	setupWorkspace(t)
	rollbackFile = "../outside.md"
	cmd, _ := newCmd("")

	err := runRollback(cmd, nil)
	require.Error(t, err)
	assert.Equal(t, -1, exitStatus(err))
}

func TestInspectReportsValueCounts(t *testing.T) {
	setupWorkspace(t)
	jsonOutput = true
	cmd, out := newCmd("")

	require.NoError(t, runInspect(cmd, []string{"has_color", "price"}))

	var reports []struct {
		Column      string `json:"column"`
		DType       string `json:"dtype"`
		ValueCounts []struct {
			Value string `json:"value"`
			Count int    `json:"count"`
		} `json:"value_counts"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &reports))
	require.Len(t, reports, 2)
	assert.Equal(t, "has_color", reports[0].Column)
	assert.Equal(t, "int64", reports[0].DType)

	counts := map[string]int{}
	for _, vc := range reports[0].ValueCounts {
		counts[vc.Value] = vc.Count
	}
	assert.Equal(t, map[string]int{"0": 2, "1": 3}, counts)
	assert.Equal(t, "price", reports[1].Column)
}

func TestInspectUnknownColumnSuggests(t *testing.T) {
	setupWorkspace(t)
	cmd, _ := newCmd("")

	err := runInspect(cmd, []string{"has_colour"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has_color")
}

func TestInspectRejectsBadSampleMode(t *testing.T) {
	setupWorkspace(t)
	inspectSampleMode = "tail"
	cmd, _ := newCmd("")

	err := runInspect(cmd, []string{"price"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sample-mode")
}

func TestInspectWithoutDataset(t *testing.T) {
	ws := setupWorkspace(t)
	require.NoError(t, os.Remove(filepath.Join(ws, ".dashagent", "config.yaml")))
	cmd, _ := newCmd("")

	err := runInspect(cmd, []string{"price"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no dataset configured")
}

func TestBackupsListShowDiffRestore(t *testing.T) {
	ws := setupWorkspace(t)
	cmd, _ := newCmd(`{"action":"delete_tab","name":"Details"}`)
	require.NoError(t, runApply(cmd, nil))

	cmd, out := newCmd("")
	require.NoError(t, runBackupsList(cmd, nil))
	assert.Contains(t, out.String(), "Backups: layout")

	cmd, out = newCmd("")
	require.NoError(t, runBackupsShow(cmd, []string{"1"}))
	assert.Equal(t, twoTabs, out.String())

	cmd, out = newCmd("")
	require.NoError(t, runBackupsDiff(cmd, []string{"1"}))
	assert.Contains(t, out.String(), "- Details")

	cmd, out = newCmd("")
	require.NoError(t, runBackupsRestore(cmd, []string{"1"}))
	assert.Contains(t, out.String(), "previous state saved as #2")
	assert.Equal(t, []string{"Overview", "Details"}, liveTabs(t, ws))

	cmd, _ = newCmd("")
	assert.Error(t, runBackupsShow(cmd, []string{"99"}))
	assert.Error(t, runBackupsShow(cmd, []string{"zero"}))
}

func TestBackupsListAll(t *testing.T) {
	setupWorkspace(t)
	cmd, _ := newCmd(`[{"action":"add_tab","name":"New"},{"action":"create_file","relative_path":"docs/a.md","content":"x"}]`)
	require.NoError(t, runApply(cmd, nil))

	backupAll = true
	cmd, out := newCmd("")
	require.NoError(t, runBackupsList(cmd, nil))
	assert.Contains(t, out.String(), "Backups: layout")
	assert.Contains(t, out.String(), "docs/a.md")
	assert.Contains(t, out.String(), "did not exist")
}

func TestHistory(t *testing.T) {
	setupWorkspace(t)
	cmd, _ := newCmd(`[{"action":"add_tab","name":"New"},{"action":"delete_tab","name":"Missing"}]`)
	assert.Equal(t, 1, exitStatus(runApply(cmd, nil)))

	cmd, out := newCmd("")
	require.NoError(t, runHistory(cmd, nil))
	assert.Contains(t, out.String(), "add_tab")
	assert.Contains(t, out.String(), "delete_tab")

	historyFailed = true
	cmd, out = newCmd("")
	require.NoError(t, runHistory(cmd, nil))
	assert.NotContains(t, out.String(), "add_tab")
	assert.Contains(t, out.String(), "failed")
}

func TestHistoryBatches(t *testing.T) {
	setupWorkspace(t)
	for _, input := range []string{`{"action":"add_tab","name":"A"}`, `{"action":"add_tab","name":"B"}`} {
		cmd, _ := newCmd(input)
		require.NoError(t, runApply(cmd, nil))
	}

	historyBatches = true
	cmd, out := newCmd("")
	require.NoError(t, runHistory(cmd, nil))
	ids := strings.Fields(out.String())
	require.Len(t, ids, 2)
	assert.NotEqual(t, ids[0], ids[1])

	historyLimit = 1
	cmd, out = newCmd("")
	require.NoError(t, runHistory(cmd, nil))
	assert.Equal(t, []string{ids[0]}, strings.Fields(out.String()))
}

func TestBackupsDiffFile(t *testing.T) {
	ws := setupWorkspace(t)
	require.NoError(t, os.WriteFile(filepath.Join(ws, "notes.md"), []byte("v1\n"), 0o644))
	cmd, _ := newCmd(`{"action":"create_file","relative_path":"notes.md","content":"v2\n"}`)
	require.NoError(t, runApply(cmd, nil))

	backupSubject = "notes.md"
	cmd, out := newCmd("")
	require.NoError(t, runBackupsDiff(cmd, []string{"1"}))
	assert.Contains(t, out.String(), "-v1")
	assert.Contains(t, out.String(), "+v2")

	require.NoError(t, os.Remove(filepath.Join(ws, "notes.md")))
	cmd, out = newCmd("")
	require.NoError(t, runBackupsDiff(cmd, []string{"1"}))
	assert.Contains(t, out.String(), "-v1")
}

func TestHistoryDisabled(t *testing.T) {
	ws := setupWorkspace(t)
	require.NoError(t, os.WriteFile(filepath.Join(ws, ".dashagent", "config.yaml"), []byte("journal:\n  enabled: false\n"), 0o644))
	cmd, _ := newCmd("")

	err := runHistory(cmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "journal disabled")
}

func TestInvalidPolicy(t *testing.T) {
	setupWorkspace(t)
	policyFlag = "sometimes"
	cmd, _ := newCmd(`{"action":"list_tabs"}`)

	err := runApply(cmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "policy")
}

func openTestApp(t *testing.T) *app {
	t.Helper()
	a, err := openApp(appOptions{Workspace: workspace, Logger: zap.NewNop()})
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestAppAskRunsPlannedCommands(t *testing.T) {
	ws := setupWorkspace(t)
	a := openTestApp(t)

	var seen planner.Context
	a.planner = planner.Func(func(_ context.Context, request string, pc planner.Context) (string, error) {
		seen = pc
		return "Sure:\n```json\n{\"action\":\"add_tab\",\"name\":\"Prices\"}\n```", nil
	})

	res, _, err := a.Ask(context.Background(), "add a prices tab")
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, []string{"Overview", "Details", "Prices"}, liveTabs(t, ws))
	assert.Equal(t, []string{"Overview", "Details"}, seen.Tabs)
	assert.Equal(t, []string{"region", "has_color", "price"}, seen.Columns)
}

func TestAppAskWithoutCommands(t *testing.T) {
	setupWorkspace(t)
	a := openTestApp(t)
	a.planner = planner.Func(func(context.Context, string, planner.Context) (string, error) {
		return "I can't help with that.", nil
	})

	res, reply, err := a.Ask(context.Background(), "make coffee")
	assert.ErrorIs(t, err, planner.ErrNoCommands)
	assert.Nil(t, res)
	assert.Equal(t, "I can't help with that.", reply)
}

func TestAppAskWithoutAPIKey(t *testing.T) {
	setupWorkspace(t)
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	a := openTestApp(t)

	_, _, err := a.Ask(context.Background(), "anything")
	assert.ErrorIs(t, err, planner.ErrNoAPIKey)
}

func TestAppSetPolicy(t *testing.T) {
	setupWorkspace(t)
	a := openTestApp(t)

	require.NoError(t, a.SetPolicy("atomic"))
	assert.Equal(t, "atomic", string(a.exec.Policy()))
	assert.Error(t, a.SetPolicy("never"))
	assert.Equal(t, "atomic", string(a.exec.Policy()))
}

func TestAppTabsOnCorruptLayout(t *testing.T) {
	ws := setupWorkspace(t)
	require.NoError(t, os.WriteFile(filepath.Join(ws, "layout.json"), []byte(`{"tabs": [`), 0o644))
	a := openTestApp(t)

	_, err := a.Tabs()
	assert.Error(t, err)
}

func TestParseOrDefault(t *testing.T) {
	assert.Equal(t, layout.Default().Names(), parseOrDefault(nil).Names())
	assert.Equal(t, layout.Default().Names(), parseOrDefault([]byte("{oops")).Names())
	assert.Equal(t, []string{"Overview", "Details"}, parseOrDefault([]byte(twoTabs)).Names())
}

func TestIsShell(t *testing.T) {
	assert.True(t, isShell(rootCmd))
	assert.True(t, isShell(shellCmd))
	assert.False(t, isShell(applyCmd))
	assert.False(t, isShell(backupsListCmd))
}

func TestSubjectFor(t *testing.T) {
	setupWorkspace(t)
	a := openTestApp(t)

	subj, err := subjectFor(a, "layout")
	require.NoError(t, err)
	assert.Equal(t, backup.Layout(), subj)

	subj, err = subjectFor(a, "file:docs/readme.md")
	require.NoError(t, err)
	assert.Equal(t, backup.File("docs/readme.md"), subj)

	subj, err = subjectFor(a, `file:docs\readme.md`)
	require.NoError(t, err)
	assert.Equal(t, backup.File("docs/readme.md"), subj)

	_, err = subjectFor(a, "file:../../etc/passwd.txt")
	assert.Error(t, err)
}
