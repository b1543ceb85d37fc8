package files

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGuard(t *testing.T) *Guard {
	t.Helper()
	g, err := NewGuard(t.TempDir(), nil)
	require.NoError(t, err)
	return g
}

func TestGuard_Accepts(t *testing.T) {
	g := newTestGuard(t)

	for _, rel := range []string{"app.py", "notes/todo.md", "cfg/settings.YAML", `docs\readme.txt`, " data.json "} {
		full, err := g.Resolve(rel)
		require.NoError(t, err, rel)
		assert.True(t, within(g.Root(), full), rel)
	}
}

func TestGuard_Rejects(t *testing.T) {
	g := newTestGuard(t)

	tests := map[string]string{
		"empty":            "  ",
		"absolute":         "/etc/passwd.txt",
		"home":             "~/notes.md",
		"traversal":        "../outside.md",
		"nested traversal": "a/../../outside.md",
		"backslash escape": `..\outside.md`,
		"extension":        "run.sh",
		"no extension":     "Makefile",
		"binary":           "data.parquet",
	}
	for name, rel := range tests {
		t.Run(name, func(t *testing.T) {
			err := g.Check(rel)
			assert.True(t, errors.Is(err, ErrPathNotAllowed), "got %v", err)
		})
	}
}

func TestGuard_CustomExtensions(t *testing.T) {
	g, err := NewGuard(t.TempDir(), []string{".SQL"})
	require.NoError(t, err)

	assert.NoError(t, g.Check("query.sql"))
	assert.ErrorIs(t, g.Check("app.py"), ErrPathNotAllowed)
	assert.Equal(t, []string{".sql"}, g.Extensions())
}

func TestGuard_SymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	g := newTestGuard(t)
	outside := t.TempDir()
	require.NoError(t, os.Symlink(outside, filepath.Join(g.Root(), "link")))

	assert.ErrorIs(t, g.Check("link/evil.md"), ErrPathNotAllowed)
}

func TestGuard_Relative(t *testing.T) {
	g := newTestGuard(t)
	full, err := g.Resolve("notes/a.md")
	require.NoError(t, err)
	assert.Equal(t, "notes/a.md", g.Relative(full))
}

func TestGuard_Normalize(t *testing.T) {
	g := newTestGuard(t)

	for _, rel := range []string{"sub/notes.md", `sub\notes.md`, " sub/./notes.md ", "sub//notes.md"} {
		got, err := g.Normalize(rel)
		require.NoError(t, err, rel)
		assert.Equal(t, "sub/notes.md", got, rel)
	}

	_, err := g.Normalize(`..\escape.md`)
	assert.ErrorIs(t, err, ErrPathNotAllowed)
}
