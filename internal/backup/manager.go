// Package backup keeps write-ahead snapshots of everything the agent
// mutates. A snapshot is taken and made durable before each mutation; if that
// fails the mutation must not run. Records are append-only and never pruned.
package backup

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"dashagent/internal/fsutil"
	"dashagent/internal/logging"

	"github.com/zeebo/blake3"
)

const timestampLayout = "20060102T150405.000000Z"

var recordName = regexp.MustCompile(`^(layout|file)_(\d{6,})_(\d{8}T\d{6}\.\d{6}Z)\.json(\.zst)?$`)

// Record describes one snapshot. Records are immutable once written.
type Record struct {
	Subject  Subject   `json:"subject"`
	Seq      int       `json:"seq"`
	Created  time.Time `json:"created"`
	Size     int       `json:"size"`
	Checksum string    `json:"checksum"` // hex BLAKE3 of the uncompressed content
	Absent   bool      `json:"absent"`   // the subject did not exist; restoring deletes it

	Path       string `json:"-"`
	Compressed bool   `json:"-"`
}

// envelope is the on-disk form of a record.
type envelope struct {
	Record
	Content []byte `json:"content"`
}

// Options configures a Manager.
type Options struct {
	// Dir is the backup store root.
	Dir string

	// LayoutPath is the live layout file.
	LayoutPath string

	// ProjectRoot resolves file subjects. Callers vet paths before backing
	// them up.
	ProjectRoot string

	// Compress writes zstd-compressed records.
	Compress bool

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Manager owns the backup store.
type Manager struct {
	opts Options
	mu   sync.Mutex
}

// NewManager returns a manager. The store directory is created lazily on the
// first backup.
func NewManager(opts Options) *Manager {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{opts: opts}
}

// Dir returns the backup store root.
func (m *Manager) Dir() string { return m.opts.Dir }

// LivePath returns the file a subject snapshots.
func (m *Manager) LivePath(s Subject) string {
	if s.Kind == KindFile {
		return filepath.Join(m.opts.ProjectRoot, filepath.FromSlash(s.Path))
	}
	return m.opts.LayoutPath
}

func (m *Manager) subjectDir(s Subject) string {
	return filepath.Join(m.opts.Dir, filepath.FromSlash(s.dir()))
}

// Backup snapshots the subject's current bytes. A missing live file yields a
// record with Absent set. Any failure is a *BackupError.
func (m *Manager) Backup(s Subject) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	timer := logging.StartTimer(logging.CategoryBackup, "backup "+s.String())
	defer timer.Stop()

	content, err := os.ReadFile(m.LivePath(s))
	absent := false
	if os.IsNotExist(err) {
		absent, content, err = true, nil, nil
	}
	if err != nil {
		return Record{}, m.fail(s, "read live file", err)
	}

	records, err := m.scan(s)
	if err != nil {
		return Record{}, m.fail(s, "list records", err)
	}
	seq := 1
	if len(records) > 0 {
		seq = records[len(records)-1].Seq + 1
	}

	rec := Record{
		Subject:    s,
		Seq:        seq,
		Created:    m.opts.Now().UTC(),
		Size:       len(content),
		Checksum:   checksum(content),
		Absent:     absent,
		Compressed: m.opts.Compress,
	}

	data, err := json.Marshal(envelope{Record: rec, Content: content})
	if err != nil {
		return Record{}, m.fail(s, "encode record", err)
	}
	if rec.Compressed {
		if data, err = compress(data); err != nil {
			return Record{}, m.fail(s, "compress record", err)
		}
	}

	name := fmt.Sprintf("%s_%06d_%s.json", s.prefix(), seq, rec.Created.Format(timestampLayout))
	if rec.Compressed {
		name += ".zst"
	}
	rec.Path = filepath.Join(m.subjectDir(s), name)

	if err := fsutil.WriteFileAtomic(rec.Path, data, 0o644); err != nil {
		return Record{}, m.fail(s, "write record", err)
	}

	logging.Backup("backed up %s seq=%d size=%d absent=%v -> %s", s, seq, rec.Size, absent, rec.Path)
	return rec, nil
}

func (m *Manager) fail(s Subject, op string, err error) error {
	logging.BackupError("backup %s failed during %s: %v", s, op, err)
	return &BackupError{Subject: s, Op: op, Err: err}
}

// List returns the subject's records, oldest first, with the details each
// envelope holds. An unreadable record is listed without them.
func (m *Manager) List(s Subject) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	records, err := m.scan(s)
	if err != nil {
		return nil, err
	}
	for i := range records {
		if err := describe(&records[i]); err != nil {
			logging.BackupError("unreadable record %s: %v", records[i].Path, err)
		}
	}
	return records, nil
}

// scan lists the subject's records from file names alone, oldest first. Only
// Subject, Seq, Created, Path and Compressed are set.
func (m *Manager) scan(s Subject) ([]Record, error) {
	dir := m.subjectDir(s)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var records []Record
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		match := recordName.FindStringSubmatch(e.Name())
		if match == nil || match[1] != s.prefix() {
			continue
		}
		seq, err := strconv.Atoi(match[2])
		if err != nil {
			continue
		}
		created, err := time.Parse(timestampLayout, match[3])
		if err != nil {
			continue
		}
		records = append(records, Record{
			Subject:    s,
			Seq:        seq,
			Created:    created,
			Path:       filepath.Join(dir, e.Name()),
			Compressed: match[4] != "",
		})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Seq < records[j].Seq })
	return records, nil
}

// describe fills size, checksum and absent from the record's envelope.
func describe(r *Record) error {
	env, err := readEnvelope(r.Path, r.Compressed)
	if err != nil {
		return err
	}
	r.fill(env)
	return nil
}

func (r *Record) fill(env *envelope) {
	r.Size = env.Size
	r.Checksum = env.Checksum
	r.Absent = env.Absent
	r.Created = env.Created
}

// Latest returns the newest record, or ErrNoBackupAvailable. Only that
// record's envelope is read.
func (m *Manager) Latest(s Subject) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.latest(s)
	if err != nil {
		return Record{}, err
	}
	if err := describe(&rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (m *Manager) latest(s Subject) (Record, error) {
	records, err := m.scan(s)
	if err != nil {
		return Record{}, err
	}
	if len(records) == 0 {
		return Record{}, fmt.Errorf("%w for %s", ErrNoBackupAvailable, s)
	}
	return records[len(records)-1], nil
}

// Find returns the record with the given sequence number.
func (m *Manager) Find(s Subject, seq int) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	records, err := m.scan(s)
	if err != nil {
		return Record{}, err
	}
	for _, r := range records {
		if r.Seq == seq {
			if err := describe(&r); err != nil {
				return Record{}, err
			}
			return r, nil
		}
	}
	return Record{}, fmt.Errorf("%w: %s seq %d", ErrRecordNotFound, s, seq)
}

// Read returns a record's content after verifying its checksum.
func (m *Manager) Read(r Record) ([]byte, error) {
	env, err := readEnvelope(r.Path, r.Compressed)
	if err != nil {
		return nil, err
	}
	if got := checksum(env.Content); got != env.Checksum {
		return nil, fmt.Errorf("%w: %s checksum %s, want %s", ErrCorrupt, r.Path, got, env.Checksum)
	}
	return env.Content, nil
}

// Restore puts a record's content back in place atomically. Restoring an
// absent record deletes the live file. Restore never creates a record.
func (m *Manager) Restore(r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.restore(r)
	return err
}

func (m *Manager) restore(r Record) (*envelope, error) {
	live := m.LivePath(r.Subject)
	env, err := readEnvelope(r.Path, r.Compressed)
	if err != nil {
		return nil, err
	}

	if env.Absent {
		if err := os.Remove(live); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("restore %s: remove: %w", r.Subject, err)
		}
		logging.Backup("restored %s seq=%d (removed, did not exist)", r.Subject, r.Seq)
		return env, nil
	}

	if got := checksum(env.Content); got != env.Checksum {
		return nil, fmt.Errorf("%w: %s", ErrCorrupt, r.Path)
	}
	mode := os.FileMode(0o644)
	if info, err := os.Stat(live); err == nil {
		mode = info.Mode().Perm()
	}
	if err := fsutil.WriteFileAtomic(live, env.Content, mode); err != nil {
		return nil, fmt.Errorf("restore %s: %w", r.Subject, err)
	}
	logging.Backup("restored %s seq=%d (%d bytes)", r.Subject, r.Seq, len(env.Content))
	return env, nil
}

// Rollback restores the subject's most recent record. With no records it
// returns ErrNoBackupAvailable and leaves everything as it is.
func (m *Manager) Rollback(s Subject) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.latest(s)
	if err != nil {
		return Record{}, err
	}
	env, err := m.restore(rec)
	if err != nil {
		return Record{}, err
	}
	rec.fill(env)
	return rec, nil
}

// Subjects lists every subject with at least one record: the layout first,
// then files by path.
func (m *Manager) Subjects() ([]Subject, error) {
	var out []Subject
	if entries, err := os.ReadDir(m.subjectDir(Layout())); err == nil && len(entries) > 0 {
		out = append(out, Layout())
	}

	entries, err := os.ReadDir(filepath.Join(m.opts.Dir, "files"))
	if os.IsNotExist(err) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	var files []Subject
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		rel, err := url.PathUnescape(e.Name())
		if err != nil {
			continue
		}
		files = append(files, File(rel))
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return append(out, files...), nil
}

func readEnvelope(path string, compressed bool) (*envelope, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read record: %w", err)
	}
	if compressed {
		if data, err = decompress(data); err != nil {
			return nil, err
		}
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, filepath.Base(path), err)
	}
	return &env, nil
}

func checksum(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ParseSubject accepts "layout" or "file:<path>" as printed by Subject.String.
func ParseSubject(s string) (Subject, error) {
	switch {
	case s == "" || s == string(KindLayout):
		return Layout(), nil
	case strings.HasPrefix(s, "file:"):
		rel := strings.TrimPrefix(s, "file:")
		if rel == "" {
			return Subject{}, errors.New("file subject needs a path")
		}
		return File(rel), nil
	default:
		return File(s), nil
	}
}
