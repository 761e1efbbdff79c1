package entities

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

const (
	// BackupTimestampLayout sorts lexicographically in chronological order.
	BackupTimestampLayout = "20060102_150405"
	BackupExtension       = ".json"
	DefaultBackupPrefix   = "trip_data_backup_"
)

// Backend identifies where a document was written to or read from.
type Backend string

const (
	BackendLocal  Backend = "local"
	BackendGitHub Backend = "github"
)

// LoadSource records which step of the load chain produced the document.
type LoadSource string

const (
	LoadSourceRemote LoadSource = "github"
	LoadSourceLocal  LoadSource = "local"
	LoadSourceBackup LoadSource = "backup"
	LoadSourceEmpty  LoadSource = "empty"
)

// Backup describes one timestamped copy of the document file.
type Backup struct {
	Filename  string    `json:"filename"`
	Timestamp time.Time `json:"timestamp"`
	Size      int64     `json:"size"`
}

// SaveResult is returned by a successful save.
type SaveResult struct {
	Backend     Backend `json:"backend"`
	LastUpdated string  `json:"last_updated"`
	Backup      *Backup `json:"backup,omitempty"`
	Revision    string  `json:"revision,omitempty"`
	Attempts    int     `json:"attempts,omitempty"`
}

// StoreStatus summarises the store configuration and backup state.
type StoreStatus struct {
	Backend      Backend    `json:"backend"`
	DocumentPath string     `json:"document_path"`
	BackupDir    string     `json:"backup_dir"`
	MaxBackups   int        `json:"max_backups"`
	BackupCount  int        `json:"backup_count"`
	LatestBackup *Backup    `json:"latest_backup,omitempty"`
	Remote       string     `json:"remote,omitempty"`
	LastLoad     LoadSource `json:"last_load,omitempty"`
}

// BackupFilename builds the backup name for a timestamp (UTC, second precision).
func BackupFilename(prefix string, t time.Time) string {
	return prefix + t.UTC().Format(BackupTimestampLayout) + BackupExtension
}

// ParseBackupFilename validates a backup name and extracts its timestamp.
func ParseBackupFilename(prefix, name string) (time.Time, error) {
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidBackupName, name)
	}
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, BackupExtension) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidBackupName, name)
	}

	stamp := strings.TrimSuffix(strings.TrimPrefix(name, prefix), BackupExtension)
	t, err := time.ParseInLocation(BackupTimestampLayout, stamp, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidBackupName, name)
	}
	return t, nil
}
