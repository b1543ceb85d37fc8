// Package files enforces which project files commands may touch and performs
// the writes: create, append and patch.
package files

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrPathNotAllowed is returned for a file target outside the rules.
var ErrPathNotAllowed = errors.New("path not allowed")

// DefaultExtensions are the file types commands may write.
var DefaultExtensions = []string{".py", ".json", ".md", ".txt", ".yml", ".yaml"}

// Guard resolves project-relative paths and rejects anything that could
// escape the project root or touch an unexpected file type.
type Guard struct {
	root    string
	allowed map[string]bool
}

// NewGuard returns a guard rooted at root. An empty extension list selects
// DefaultExtensions.
func NewGuard(root string, extensions []string) (*Guard, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	allowed := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		allowed[strings.ToLower(ext)] = true
	}
	return &Guard{root: abs, allowed: allowed}, nil
}

// Root returns the absolute project root.
func (g *Guard) Root() string { return g.root }

// Extensions lists the allowed extensions, sorted.
func (g *Guard) Extensions() []string {
	out := make([]string, 0, len(g.allowed))
	for ext := range g.allowed {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Check reports whether relative is an acceptable file target.
func (g *Guard) Check(relative string) error {
	_, err := g.Resolve(relative)
	return err
}

// Normalize validates relative and returns it in canonical form: relative
// to the project root with forward slashes. Two spellings of the same file
// normalize to the same string.
func (g *Guard) Normalize(relative string) (string, error) {
	full, err := g.Resolve(relative)
	if err != nil {
		return "", err
	}
	return g.Relative(full), nil
}

// Resolve validates relative and returns its absolute path.
func (g *Guard) Resolve(relative string) (string, error) {
	rel := strings.ReplaceAll(strings.TrimSpace(relative), `\`, "/")
	if rel == "" {
		return "", fmt.Errorf("%w: empty path", ErrPathNotAllowed)
	}
	if strings.HasPrefix(rel, "/") || strings.HasPrefix(rel, "~") || filepath.VolumeName(rel) != "" || filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: absolute paths are not allowed: %q", ErrPathNotAllowed, relative)
	}
	for _, seg := range strings.Split(rel, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: path traversal '..' is not allowed: %q", ErrPathNotAllowed, relative)
		}
	}

	ext := strings.ToLower(filepath.Ext(rel))
	if !g.allowed[ext] {
		return "", fmt.Errorf("%w: extension %q not allowed (allowed: %s)", ErrPathNotAllowed, ext, strings.Join(g.Extensions(), " "))
	}

	full := filepath.Join(g.root, filepath.FromSlash(rel))
	if !within(g.root, full) {
		return "", fmt.Errorf("%w: %q is outside the project directory", ErrPathNotAllowed, relative)
	}

	// A symlinked directory inside the project can still point elsewhere.
	if real, ok := realAncestor(full); ok {
		rootReal, err := filepath.EvalSymlinks(g.root)
		if err == nil && !within(rootReal, real) {
			return "", fmt.Errorf("%w: %q resolves outside the project directory", ErrPathNotAllowed, relative)
		}
	}
	return full, nil
}

// Relative returns p relative to the project root with forward slashes.
func (g *Guard) Relative(p string) string {
	rel, err := filepath.Rel(g.root, p)
	if err != nil {
		return p
	}
	return filepath.ToSlash(rel)
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// realAncestor resolves symlinks on the deepest existing ancestor of p,
// including p itself.
func realAncestor(p string) (string, bool) {
	for cur := p; ; {
		if _, err := os.Lstat(cur); err == nil {
			real, err := filepath.EvalSymlinks(cur)
			if err != nil {
				return "", false
			}
			return real, true
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", false
		}
		cur = parent
	}
}
