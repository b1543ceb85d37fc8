package backup

import (
	"errors"
	"fmt"
)

var (
	// ErrBackup is the sentinel every *BackupError unwraps to.
	ErrBackup = errors.New("backup failed")

	// ErrNoBackupAvailable is returned by Rollback and Latest when a subject
	// has no records.
	ErrNoBackupAvailable = errors.New("no backup available")

	// ErrCorrupt is returned when a record's content does not match its checksum.
	ErrCorrupt = errors.New("backup record is corrupt")

	// ErrRecordNotFound is returned by Find for an unknown sequence number.
	ErrRecordNotFound = errors.New("backup record not found")
)

// BackupError reports that a snapshot could not be made durable. The
// mutation it was protecting must not run.
type BackupError struct {
	Subject Subject
	Op      string
	Err     error
}

func (e *BackupError) Error() string {
	return fmt.Sprintf("backup %s: %s: %v", e.Subject, e.Op, e.Err)
}

func (e *BackupError) Unwrap() []error { return []error{ErrBackup, e.Err} }
