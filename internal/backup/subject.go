package backup

import (
	"net/url"
	"path"
)

// Kind distinguishes what a subject snapshots.
type Kind string

const (
	KindLayout Kind = "layout"
	KindFile   Kind = "file"
)

// Subject is the thing a backup snapshots: the layout document or one
// project file.
type Subject struct {
	Kind Kind   `json:"kind"`
	Path string `json:"path,omitempty"` // project-relative, KindFile only
}

// Layout returns the layout document subject.
func Layout() Subject { return Subject{Kind: KindLayout} }

// File returns the subject for a project-relative file.
func File(relative string) Subject {
	return Subject{Kind: KindFile, Path: path.Clean(relative)}
}

func (s Subject) String() string {
	if s.Kind == KindFile {
		return "file:" + s.Path
	}
	return string(s.Kind)
}

// dir is the subject's directory under the backup root, slash separated.
// File paths are escaped into a single segment.
func (s Subject) dir() string {
	if s.Kind == KindFile {
		return "files/" + url.PathEscape(s.Path)
	}
	return "layout"
}

func (s Subject) prefix() string {
	if s.Kind == KindFile {
		return "file"
	}
	return "layout"
}
