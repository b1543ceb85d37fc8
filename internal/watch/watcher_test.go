package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"dashagent/internal/layout"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func waitChange(t *testing.T, ch <-chan Change) Change {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for layout change")
		return Change{}
	}
}

func TestWatcherReportsTabChanges(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "layout.json")
	require.NoError(t, layout.Save(path, layout.Default()))

	changes := make(chan Change, 8)
	w, err := New(path, 30*time.Millisecond, func(c Change) { changes <- c })
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	doc := layout.Default()
	doc.AddTab("Details")
	require.NoError(t, layout.Save(path, doc))

	c := waitChange(t, changes)
	require.NoError(t, c.Err)
	assert.Equal(t, []string{"Overview", "Details"}, c.Tabs)
	assert.Equal(t, []string{"Details"}, c.Added)
	assert.Empty(t, c.Removed)

	require.NoError(t, doc.DeleteTab("Overview"))
	require.NoError(t, layout.Save(path, doc))

	c = waitChange(t, changes)
	assert.Equal(t, []string{"Details"}, c.Tabs)
	assert.Equal(t, []string{"Overview"}, c.Removed)

	stats := w.Stats()
	assert.GreaterOrEqual(t, stats.Events, 2)
	assert.Equal(t, 0, stats.ParseErrors)
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "layout.json")
	require.NoError(t, layout.Save(path, layout.Default()))

	changes := make(chan Change, 8)
	w, err := New(path, 20*time.Millisecond, func(c Change) { changes <- c })
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o644))

	select {
	case c := <-changes:
		t.Fatalf("unexpected change: %+v", c)
	case <-time.After(200 * time.Millisecond):
	}
	assert.Equal(t, 0, w.Stats().Events)
}

func TestWatcherReportsDeletionAndBadContent(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "layout.json")
	require.NoError(t, layout.Save(path, layout.Default()))

	changes := make(chan Change, 8)
	w, err := New(path, 20*time.Millisecond, func(c Change) { changes <- c })
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("{oops"), 0o644))
	c := waitChange(t, changes)
	assert.Error(t, c.Err)

	require.NoError(t, os.Remove(path))
	c = waitChange(t, changes)
	assert.True(t, c.Deleted)
	assert.Equal(t, []string{"Overview"}, c.Removed)
}

func TestStopIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "layout.json")
	w, err := New(path, 0, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	w.Stop()
	w.Stop()
}

func TestDiffNames(t *testing.T) {
	added, removed := diffNames([]string{"A", "B"}, []string{"B", "C"})
	assert.Equal(t, []string{"C"}, added)
	assert.Equal(t, []string{"A"}, removed)
}
