package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"github.com/tripboard/core/internal/domain/entities"
	"github.com/tripboard/core/internal/infrastructure/logger"
	"github.com/tripboard/core/internal/infrastructure/metrics"
)

const defaultMaxBackups = 20

// LocalOptions configures a LocalDocumentRepository
type LocalOptions struct {
	DocumentPath string
	BackupDir    string
	BackupPrefix string
	MaxBackups   int

	// Fs defaults to the OS filesystem
	Fs afero.Fs
	// Clock defaults to time.Now
	Clock func() time.Time
}

// LocalDocumentRepository keeps the document in a single JSON file and takes a
// timestamped backup of the previous file before every write.
type LocalDocumentRepository struct {
	fs           afero.Fs
	documentPath string
	backupDir    string
	backupPrefix string
	maxBackups   int
	now          func() time.Time
	logger       *logger.Logger
	metrics      *metrics.StoreMetrics
}

// NewLocalDocumentRepository creates a new local repository
func NewLocalDocumentRepository(opts LocalOptions, appLogger *logger.Logger, storeMetrics *metrics.StoreMetrics) (*LocalDocumentRepository, error) {
	if opts.DocumentPath == "" {
		return nil, fmt.Errorf("document path is required")
	}
	if opts.BackupDir == "" {
		opts.BackupDir = filepath.Join(filepath.Dir(opts.DocumentPath), "backups")
	}
	if opts.BackupPrefix == "" {
		opts.BackupPrefix = entities.DefaultBackupPrefix
	}
	if opts.MaxBackups == 0 {
		opts.MaxBackups = defaultMaxBackups
	}
	if opts.MaxBackups < 0 {
		return nil, fmt.Errorf("max backups must be positive, got %d", opts.MaxBackups)
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if appLogger == nil {
		appLogger = logger.NewNop()
	}

	return &LocalDocumentRepository{
		fs:           opts.Fs,
		documentPath: opts.DocumentPath,
		backupDir:    opts.BackupDir,
		backupPrefix: opts.BackupPrefix,
		maxBackups:   opts.MaxBackups,
		now:          opts.Clock,
		logger:       appLogger.WithComponent("local_store"),
		metrics:      storeMetrics,
	}, nil
}

// Backend implements ports.DocumentRepository
func (r *LocalDocumentRepository) Backend() entities.Backend {
	return entities.BackendLocal
}

// Describe implements ports.DocumentRepository
func (r *LocalDocumentRepository) Describe() string {
	return "local:" + r.documentPath
}

// DocumentPath returns the document file path
func (r *LocalDocumentRepository) DocumentPath() string {
	return r.documentPath
}

// BackupDir returns the backup directory
func (r *LocalDocumentRepository) BackupDir() string {
	return r.backupDir
}

// MaxBackups returns the rotation bound
func (r *LocalDocumentRepository) MaxBackups() int {
	return r.maxBackups
}

// Load reads and parses the document file
func (r *LocalDocumentRepository) Load(ctx context.Context) (*entities.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(r.fs, r.documentPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", entities.ErrDocumentNotFound, r.documentPath)
		}
		return nil, fmt.Errorf("read document: %w", err)
	}

	doc, err := entities.DecodeDocument(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", r.documentPath, err)
	}

	return doc, nil
}

// Save backs up the current file, rotates backups and atomically replaces the
// document. The document file is untouched when an error is returned.
func (r *LocalDocumentRepository) Save(ctx context.Context, doc *entities.Document, reason string) (*entities.SaveResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := doc.Encode()
	if err != nil {
		return nil, err
	}

	backup, err := r.CreateBackup(ctx)
	if err != nil {
		return nil, fmt.Errorf("backup before write: %w", err)
	}

	if _, err := r.PruneBackups(ctx); err != nil {
		r.logger.Warnw("Backup rotation failed", "error", err, "backup_dir", r.backupDir)
	}

	if err := r.writeFileAtomic(r.documentPath, data); err != nil {
		return nil, fmt.Errorf("write document: %w", err)
	}

	fields := []interface{}{"path", r.documentPath, "bytes", len(data), "reason", reason}
	if backup != nil {
		fields = append(fields, "backup", backup.Filename)
	}
	r.logger.Debugw("Document written", fields...)

	return &entities.SaveResult{
		Backend:     entities.BackendLocal,
		LastUpdated: doc.LastUpdated,
		Backup:      backup,
	}, nil
}

// Replace atomically overwrites the document without taking a backup.
// Used when healing a corrupted file and when restoring a backup.
func (r *LocalDocumentRepository) Replace(ctx context.Context, doc *entities.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := doc.Encode()
	if err != nil {
		return err
	}

	if err := r.writeFileAtomic(r.documentPath, data); err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	return nil
}

// Writable checks that the document directory accepts new files
func (r *LocalDocumentRepository) Writable() error {
	dir := filepath.Dir(r.documentPath)
	if err := r.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	f, err := afero.TempFile(r.fs, dir, ".probe-*")
	if err != nil {
		return fmt.Errorf("data dir not writable: %w", err)
	}
	name := f.Name()

	return multierr.Append(f.Close(), r.fs.Remove(name))
}

// writeFileAtomic writes data to a temp file in the target's directory,
// syncs it and renames it over the target.
func (r *LocalDocumentRepository) writeFileAtomic(target string, data []byte) error {
	dir := filepath.Dir(target)
	if err := r.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(r.fs, dir, "."+filepath.Base(target)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	cleanupTmp := true
	defer func() {
		if cleanupTmp {
			tmp.Close()
			r.fs.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := r.fs.Rename(tmpPath, target); err != nil {
		return fmt.Errorf("atomic rename: %w", err)
	}

	cleanupTmp = false

	if err := r.syncDir(dir); err != nil {
		// The rename already happened; the new content is visible
		r.logger.Warnw("Directory sync failed", "dir", dir, "error", err)
	}

	return nil
}

func (r *LocalDocumentRepository) syncDir(dir string) error {
	d, err := r.fs.Open(dir)
	if err != nil {
		return fmt.Errorf("open dir for sync: %w", err)
	}
	defer d.Close()

	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync dir: %w", err)
	}
	return nil
}
