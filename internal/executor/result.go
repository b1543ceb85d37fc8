package executor

import (
	"time"

	"dashagent/internal/backup"
	"dashagent/internal/command"
)

// Result is the outcome of one command.
type Result struct {
	Index   int            `json:"index"`
	Action  command.Action `json:"action"`
	OK      bool           `json:"ok"`
	Changed bool           `json:"changed"` // persisted state was modified
	Message string         `json:"message"`
	Data    any            `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
	Err     error          `json:"-"`

	// Backup is the record taken before the command ran, if any.
	Backup *backup.Record `json:"backup,omitempty"`

	// RolledBack is set when the atomic policy undid this command.
	RolledBack bool          `json:"rolled_back,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// BatchResult is the outcome of one batch.
type BatchResult struct {
	BatchID string   `json:"batch_id"`
	Policy  Policy   `json:"policy"`
	Results []Result `json:"results"`

	// Halted is set when a failure stopped the batch before its end.
	Halted bool `json:"halted"`

	// Skipped counts commands that never ran because the batch halted.
	Skipped int `json:"skipped"`

	// Restored lists the subjects the atomic policy put back.
	Restored []backup.Subject `json:"restored,omitempty"`

	// Warnings carries input problems a continue batch ran past.
	Warnings []string `json:"warnings,omitempty"`
}

// OK reports whether every command ran and succeeded.
func (b *BatchResult) OK() bool {
	if b.Halted || b.Skipped > 0 || len(b.Warnings) > 0 {
		return false
	}
	for _, r := range b.Results {
		if !r.OK {
			return false
		}
	}
	return true
}

// Failed counts failed commands.
func (b *BatchResult) Failed() int {
	n := 0
	for _, r := range b.Results {
		if !r.OK {
			n++
		}
	}
	return n
}

// ExitCode is 0 on full success and 1 otherwise.
func (b *BatchResult) ExitCode() int {
	if b.OK() {
		return 0
	}
	return 1
}
