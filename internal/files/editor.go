package files

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"dashagent/internal/fsutil"
	"dashagent/internal/logging"

	"github.com/zeebo/blake3"
)

// ErrPatchTargetNotFound is returned when a patch pattern matches nothing.
var ErrPatchTargetNotFound = errors.New("patch target not found")

// PatchTargetNotFoundError names the file and pattern of a failed patch.
type PatchTargetNotFoundError struct {
	Path    string
	Pattern string
	Regex   bool
	Missing bool // the file itself does not exist
}

func (e *PatchTargetNotFoundError) Error() string {
	if e.Missing {
		return fmt.Sprintf("patch target not found: %s does not exist", e.Path)
	}
	kind := "text"
	if e.Regex {
		kind = "pattern"
	}
	return fmt.Sprintf("patch target not found: %s %q does not occur in %s", kind, truncate(e.Pattern, 60), e.Path)
}

func (e *PatchTargetNotFoundError) Unwrap() error { return ErrPatchTargetNotFound }

// Op is a file operation kind.
type Op string

const (
	OpWrite  Op = "write"
	OpAppend Op = "append"
	OpPatch  Op = "patch"
)

// AuditEvent records one file operation.
type AuditEvent struct {
	Op        Op        `json:"op"`
	Path      string    `json:"path"`
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	OldHash   string    `json:"old_hash,omitempty"`
	NewHash   string    `json:"new_hash,omitempty"`
}

// Result describes a completed operation.
type Result struct {
	Path         string `json:"path"`
	Op           Op     `json:"op"`
	Created      bool   `json:"created"`
	BytesWritten int    `json:"bytes_written"`
	Replacements int    `json:"replacements,omitempty"`
	OldHash      string `json:"old_hash,omitempty"`
	NewHash      string `json:"new_hash"`
}

// Editor writes file targets. Every path goes through the guard first.
type Editor struct {
	guard *Guard

	mu            sync.RWMutex
	auditCallback func(AuditEvent)
}

// NewEditor returns an editor bound to guard.
func NewEditor(guard *Guard) *Editor {
	return &Editor{guard: guard}
}

// Guard returns the editor's path guard.
func (e *Editor) Guard() *Guard { return e.guard }

// SetAuditCallback sets the callback for file audit events.
func (e *Editor) SetAuditCallback(callback func(AuditEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.auditCallback = callback
}

func (e *Editor) emitAudit(event AuditEvent) {
	e.mu.RLock()
	cb := e.auditCallback
	e.mu.RUnlock()
	if cb != nil {
		cb(event)
	}
}

func (e *Editor) finish(op Op, rel string, res *Result, err error) (*Result, error) {
	event := AuditEvent{Op: op, Path: rel, Timestamp: time.Now(), Success: err == nil}
	if err != nil {
		event.Error = err.Error()
		logging.FilesError("%s %s failed: %v", op, rel, err)
	} else {
		event.OldHash, event.NewHash = res.OldHash, res.NewHash
		logging.Files("%s %s: %d bytes", op, rel, res.BytesWritten)
	}
	e.emitAudit(event)
	return res, err
}

// Read returns the current content of a file target.
func (e *Editor) Read(relative string) ([]byte, error) {
	full, err := e.guard.Resolve(relative)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(full)
}

// Write replaces the file's content atomically, creating parent directories.
func (e *Editor) Write(relative, content string) (*Result, error) {
	timer := logging.StartTimer(logging.CategoryFiles, "File write")
	defer timer.Stop()

	full, err := e.guard.Resolve(relative)
	if err != nil {
		return e.finish(OpWrite, relative, nil, err)
	}

	old, existed, mode, err := readExisting(full)
	if err != nil {
		return e.finish(OpWrite, relative, nil, err)
	}

	if err := fsutil.WriteFileAtomic(full, []byte(content), mode); err != nil {
		return e.finish(OpWrite, relative, nil, err)
	}

	res := &Result{
		Path:         e.guard.Relative(full),
		Op:           OpWrite,
		Created:      !existed,
		BytesWritten: len(content),
		NewHash:      Hash([]byte(content)),
	}
	if existed {
		res.OldHash = Hash(old)
	}
	return e.finish(OpWrite, relative, res, nil)
}

// Append adds content to the end of the file, creating it when missing.
func (e *Editor) Append(relative, content string) (*Result, error) {
	timer := logging.StartTimer(logging.CategoryFiles, "File append")
	defer timer.Stop()

	full, err := e.guard.Resolve(relative)
	if err != nil {
		return e.finish(OpAppend, relative, nil, err)
	}

	old, existed, _, err := readExisting(full)
	if err != nil {
		return e.finish(OpAppend, relative, nil, err)
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return e.finish(OpAppend, relative, nil, fmt.Errorf("failed to create directory: %w", err))
	}
	f, err := os.OpenFile(full, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return e.finish(OpAppend, relative, nil, err)
	}
	n, werr := f.WriteString(content)
	if werr == nil {
		werr = f.Sync()
	}
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return e.finish(OpAppend, relative, nil, fmt.Errorf("append %s: %w", relative, werr))
	}

	res := &Result{
		Path:         e.guard.Relative(full),
		Op:           OpAppend,
		Created:      !existed,
		BytesWritten: n,
		NewHash:      Hash(append(old, content...)),
	}
	if existed {
		res.OldHash = Hash(old)
	}
	return e.finish(OpAppend, relative, res, nil)
}

// Patch replaces every occurrence of pattern with replacement. pattern is a
// literal string unless regex is set, in which case it is an RE2 expression
// and replacement may use $1-style group references. When nothing matches the
// file is left untouched and a *PatchTargetNotFoundError is returned.
func (e *Editor) Patch(relative, pattern, replacement string, regex bool) (*Result, error) {
	timer := logging.StartTimer(logging.CategoryFiles, "File patch")
	defer timer.Stop()

	if pattern == "" {
		return e.finish(OpPatch, relative, nil, errors.New("patch pattern must not be empty"))
	}
	full, err := e.guard.Resolve(relative)
	if err != nil {
		return e.finish(OpPatch, relative, nil, err)
	}

	old, existed, mode, err := readExisting(full)
	if err != nil {
		return e.finish(OpPatch, relative, nil, err)
	}
	if !existed {
		return e.finish(OpPatch, relative, nil, &PatchTargetNotFoundError{Path: relative, Pattern: pattern, Regex: regex, Missing: true})
	}

	updated, count, err := replace(string(old), pattern, replacement, regex)
	if err != nil {
		return e.finish(OpPatch, relative, nil, err)
	}
	if count == 0 {
		return e.finish(OpPatch, relative, nil, &PatchTargetNotFoundError{Path: relative, Pattern: pattern, Regex: regex})
	}

	if err := fsutil.WriteFileAtomic(full, []byte(updated), mode); err != nil {
		return e.finish(OpPatch, relative, nil, err)
	}

	res := &Result{
		Path:         e.guard.Relative(full),
		Op:           OpPatch,
		BytesWritten: len(updated),
		Replacements: count,
		OldHash:      Hash(old),
		NewHash:      Hash([]byte(updated)),
	}
	return e.finish(OpPatch, relative, res, nil)
}

func replace(content, pattern, replacement string, regex bool) (string, int, error) {
	if !regex {
		count := strings.Count(content, pattern)
		if count == 0 {
			return content, 0, nil
		}
		return strings.ReplaceAll(content, pattern, replacement), count, nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", 0, fmt.Errorf("invalid pattern: %w", err)
	}
	count := len(re.FindAllStringIndex(content, -1))
	if count == 0 {
		return content, 0, nil
	}
	return re.ReplaceAllString(content, replacement), count, nil
}

// readExisting returns the file's content and mode, or existed=false.
func readExisting(full string) ([]byte, bool, os.FileMode, error) {
	info, err := os.Stat(full)
	if os.IsNotExist(err) {
		return nil, false, 0o644, nil
	}
	if err != nil {
		return nil, false, 0, err
	}
	if info.IsDir() {
		return nil, false, 0, fmt.Errorf("%s is a directory", full)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, false, 0, err
	}
	return data, true, info.Mode().Perm(), nil
}

// Hash returns the hex BLAKE3 digest of data.
func Hash(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
