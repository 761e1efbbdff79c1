package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/afero"

	"github.com/tripboard/core/internal/domain/entities"
)

// CreateBackup copies the current document file byte-for-byte into the backup
// directory. Returns nil when there is no document yet. A backup taken in the
// same second as an earlier one replaces it.
func (r *LocalDocumentRepository) CreateBackup(ctx context.Context) (*entities.Backup, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(r.fs, r.documentPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read document: %w", err)
	}

	if err := r.fs.MkdirAll(r.backupDir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}

	timestamp := r.now().UTC()
	name := entities.BackupFilename(r.backupPrefix, timestamp)
	if err := r.writeFileAtomic(filepath.Join(r.backupDir, name), data); err != nil {
		return nil, fmt.Errorf("write backup %s: %w", name, err)
	}

	return &entities.Backup{
		Filename:  name,
		Timestamp: timestamp.Truncate(time.Second),
		Size:      int64(len(data)),
	}, nil
}

// ListBackups returns the backups newest first
func (r *LocalDocumentRepository) ListBackups(ctx context.Context) ([]entities.Backup, error) {
	backups, err := r.listBackups(ctx)
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(backups)-1; i < j; i, j = i+1, j-1 {
		backups[i], backups[j] = backups[j], backups[i]
	}
	return backups, nil
}

// LatestBackup returns the lexicographically last backup
func (r *LocalDocumentRepository) LatestBackup(ctx context.Context) (*entities.Backup, error) {
	backups, err := r.listBackups(ctx)
	if err != nil {
		return nil, err
	}
	if len(backups) == 0 {
		return nil, entities.ErrBackupNotFound
	}

	latest := backups[len(backups)-1]
	return &latest, nil
}

// ReadBackup parses a backup file
func (r *LocalDocumentRepository) ReadBackup(ctx context.Context, filename string) (*entities.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if _, err := entities.ParseBackupFilename(r.backupPrefix, filename); err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(r.fs, filepath.Join(r.backupDir, filename))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", entities.ErrBackupNotFound, filename)
		}
		return nil, fmt.Errorf("read backup %s: %w", filename, err)
	}

	doc, err := entities.DecodeDocument(data)
	if err != nil {
		return nil, fmt.Errorf("parse backup %s: %w", filename, err)
	}
	return doc, nil
}

// PruneBackups deletes the oldest backups until at most MaxBackups remain
func (r *LocalDocumentRepository) PruneBackups(ctx context.Context) (int, error) {
	backups, err := r.listBackups(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	excess := len(backups) - r.maxBackups
	for i := 0; i < excess; i++ {
		path := filepath.Join(r.backupDir, backups[i].Filename)
		if err := r.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			r.metrics.SetBackupCount(len(backups) - removed)
			r.metrics.ObservePruned(removed)
			return removed, fmt.Errorf("remove backup %s: %w", backups[i].Filename, err)
		}
		removed++
	}

	r.metrics.SetBackupCount(len(backups) - removed)
	r.metrics.ObservePruned(removed)

	if removed > 0 {
		r.logger.Debugw("Backups rotated", "removed", removed, "kept", len(backups)-removed)
	}
	return removed, nil
}

// listBackups returns valid backup files sorted by filename (oldest first).
// Files that do not follow the backup naming scheme are ignored.
func (r *LocalDocumentRepository) listBackups(ctx context.Context) ([]entities.Backup, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	infos, err := afero.ReadDir(r.fs, r.backupDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []entities.Backup{}, nil
		}
		return nil, fmt.Errorf("read backup dir: %w", err)
	}

	backups := make([]entities.Backup, 0, len(infos))
	for _, info := range infos {
		if info.IsDir() {
			continue
		}

		timestamp, err := entities.ParseBackupFilename(r.backupPrefix, info.Name())
		if err != nil {
			continue
		}

		backups = append(backups, entities.Backup{
			Filename:  info.Name(),
			Timestamp: timestamp,
			Size:      info.Size(),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Filename < backups[j].Filename
	})

	return backups, nil
}
