package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tripboard/core/internal/domain/entities"
	"github.com/tripboard/core/internal/infrastructure/logger"
	"github.com/tripboard/core/internal/infrastructure/metrics"
	"github.com/tripboard/core/internal/ports"
)

// DefaultChangeReason is used when a save carries no reason
const DefaultChangeReason = "Update trip data"

// DocumentServiceOptions tunes a DocumentService
type DocumentServiceOptions struct {
	// MirrorLocal also writes remote saves through the local backend
	MirrorLocal bool
	// Clock defaults to time.Now
	Clock func() time.Time
}

// DocumentService handles trip document operations over a local store and an
// optional remote repository. It keeps no copy of the document between calls.
type DocumentService struct {
	local       ports.LocalStore
	remote      ports.DocumentRepository
	mirrorLocal bool
	now         func() time.Time
	logger      *logger.Logger
	metrics     *metrics.StoreMetrics

	// mu serialises every write to the document
	mu sync.Mutex

	stateMu  sync.Mutex
	lastLoad entities.LoadSource
}

// NewDocumentService creates a new document service. remote may be nil, in
// which case the local store is the primary backend.
func NewDocumentService(local ports.LocalStore, remote ports.DocumentRepository, opts DocumentServiceOptions, appLogger *logger.Logger, storeMetrics *metrics.StoreMetrics) *DocumentService {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if appLogger == nil {
		appLogger = logger.NewNop()
	}

	return &DocumentService{
		local:       local,
		remote:      remote,
		mirrorLocal: opts.MirrorLocal,
		now:         opts.Clock,
		logger:      appLogger.WithComponent("document_service"),
		metrics:     storeMetrics,
	}
}

// Backend returns the primary backend
func (s *DocumentService) Backend() entities.Backend {
	return s.primary().Backend()
}

// LoadDocument returns the current document. It never fails: when nothing
// usable can be read it returns the empty template.
func (s *DocumentService) LoadDocument(ctx context.Context) *entities.Document {
	doc, source := s.load(ctx)

	if missing := doc.Backfill(); len(missing) > 0 && source != entities.LoadSourceEmpty {
		s.logger.Debugw("Backfilled missing keys", "keys", missing, "source", source)
	}

	s.setLastLoad(source)
	s.metrics.ObserveLoad(string(source))

	return doc
}

func (s *DocumentService) load(ctx context.Context) (*entities.Document, entities.LoadSource) {
	if s.remote != nil {
		doc, err := s.remote.Load(ctx)
		switch {
		case err == nil:
			return doc, entities.LoadSourceRemote
		case errors.Is(err, entities.ErrDocumentNotFound):
			s.logger.Infow("No remote document yet, starting empty", "remote", s.remote.Describe())
			return entities.NewDocument(), entities.LoadSourceEmpty
		default:
			s.logger.Warnw("Remote load failed, falling back to local file",
				"remote", s.remote.Describe(),
				"error", err,
			)
		}
	}

	doc, err := s.local.Load(ctx)
	switch {
	case err == nil:
		return doc, entities.LoadSourceLocal
	case errors.Is(err, entities.ErrDocumentNotFound):
		return entities.NewDocument(), entities.LoadSourceEmpty
	case errors.Is(err, entities.ErrDocumentCorrupted):
		s.logger.Errorw("Document file is corrupted, attempting recovery from backup",
			"path", s.local.DocumentPath(),
			"error", err,
		)
		return s.recover(ctx)
	default:
		s.logger.Errorw("Document file unreadable, starting empty",
			"path", s.local.DocumentPath(),
			"error", err,
		)
		return entities.NewDocument(), entities.LoadSourceEmpty
	}
}

// recover restores the latest backup over a corrupted document file
func (s *DocumentService) recover(ctx context.Context) (*entities.Document, entities.LoadSource) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// a save may have rewritten the file while we waited for the lock
	doc, err := s.local.Load(ctx)
	switch {
	case err == nil:
		s.logger.Infow("Document file was rewritten before recovery, using it", "path", s.local.DocumentPath())
		return doc, entities.LoadSourceLocal
	case errors.Is(err, entities.ErrDocumentNotFound):
		return entities.NewDocument(), entities.LoadSourceEmpty
	}

	latest, err := s.local.LatestBackup(ctx)
	if err != nil {
		s.metrics.ObserveRecovery("no_backup")
		s.logger.Errorw("No backup available for recovery, starting empty", "error", err)
		return entities.NewDocument(), entities.LoadSourceEmpty
	}

	doc, err = s.local.ReadBackup(ctx, latest.Filename)
	if err != nil {
		s.metrics.ObserveRecovery("backup_unreadable")
		s.logger.Errorw("Latest backup is unusable, starting empty",
			"backup", latest.Filename,
			"error", err,
		)
		return entities.NewDocument(), entities.LoadSourceEmpty
	}

	if err := s.local.Replace(ctx, doc); err != nil {
		s.metrics.ObserveRecovery("repair_failed")
		s.logger.Errorw("Could not write recovered document back",
			"backup", latest.Filename,
			"error", err,
		)
		return doc, entities.LoadSourceBackup
	}

	s.metrics.ObserveRecovery("restored")
	s.logger.Warnw("Document recovered from backup", "backup", latest.Filename)

	return doc, entities.LoadSourceBackup
}

// SaveDocument stamps last_updated and writes the document to the primary backend
func (s *DocumentService) SaveDocument(ctx context.Context, doc *entities.Document, reason string) (*entities.SaveResult, error) {
	if doc == nil {
		return nil, fmt.Errorf("document is required")
	}
	if reason == "" {
		reason = DefaultChangeReason
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc.Touch(s.now())

	primary := s.primary()
	start := time.Now()
	result, err := primary.Save(ctx, doc, reason)
	s.metrics.ObserveSave(string(primary.Backend()), err, time.Since(start))

	details := map[string]interface{}{
		"backend": primary.Backend(),
		"reason":  reason,
	}
	if err != nil {
		s.logger.LogDocumentEvent("save", err, details)
		return nil, fmt.Errorf("failed to save document to %s: %w", primary.Backend(), err)
	}

	if s.remote != nil && s.mirrorLocal {
		mirror, err := s.local.Save(ctx, doc, reason)
		if err != nil {
			s.logger.Warnw("Local mirror write failed", "error", err)
		} else {
			result.Backup = mirror.Backup
		}
	}

	details["last_updated"] = result.LastUpdated
	if result.Backup != nil {
		details["backup"] = result.Backup.Filename
	}
	if result.Revision != "" {
		details["revision"] = result.Revision
	}
	s.logger.LogDocumentEvent("save", nil, details)

	return result, nil
}

// ListBackups returns the local backups newest first
func (s *DocumentService) ListBackups(ctx context.Context) ([]entities.Backup, error) {
	backups, err := s.local.ListBackups(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}
	return backups, nil
}

// RestoreBackup replaces the document with a backup's content. The current
// document is backed up first. With a remote backend the restored content is
// pushed there before the local file changes, so a failed push leaves the
// local document as it was.
func (s *DocumentService) RestoreBackup(ctx context.Context, filename string) (*entities.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	details := map[string]interface{}{"backup": filename}

	doc, err := s.local.ReadBackup(ctx, filename)
	if err != nil {
		s.logger.LogDocumentEvent("restore", err, details)
		return nil, err
	}
	doc.Backfill()

	safety, err := s.local.CreateBackup(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to back up current document: %w", err)
	}
	if safety != nil {
		details["safety_backup"] = safety.Filename
	}
	if _, err := s.local.PruneBackups(ctx); err != nil {
		s.logger.Warnw("Backup rotation failed", "error", err)
	}

	if s.remote != nil {
		start := time.Now()
		_, err := s.remote.Save(ctx, doc, "Restore from backup "+filename)
		s.metrics.ObserveSave(string(s.remote.Backend()), err, time.Since(start))
		if err != nil {
			s.logger.LogDocumentEvent("restore", err, details)
			return nil, fmt.Errorf("failed to push restored document to %s, local document unchanged: %w", s.remote.Backend(), err)
		}
		details["remote"] = s.remote.Describe()
	}

	if err := s.local.Replace(ctx, doc); err != nil {
		s.logger.LogDocumentEvent("restore", err, details)
		if s.remote != nil {
			return nil, fmt.Errorf("restored %s on %s but failed to write it locally: %w", filename, s.remote.Backend(), err)
		}
		return nil, fmt.Errorf("failed to restore %s: %w", filename, err)
	}

	s.logger.LogDocumentEvent("restore", nil, details)

	return doc, nil
}

// Status reports the configured backends and the backup directory state
func (s *DocumentService) Status(ctx context.Context) entities.StoreStatus {
	status := entities.StoreStatus{
		Backend:      s.Backend(),
		DocumentPath: s.local.DocumentPath(),
		BackupDir:    s.local.BackupDir(),
		MaxBackups:   s.local.MaxBackups(),
		LastLoad:     s.getLastLoad(),
	}
	if s.remote != nil {
		status.Remote = s.remote.Describe()
	}

	backups, err := s.local.ListBackups(ctx)
	if err != nil {
		s.logger.Warnw("Could not list backups for status", "error", err)
		return status
	}
	status.BackupCount = len(backups)
	if len(backups) > 0 {
		latest := backups[0]
		status.LatestBackup = &latest
	}

	return status
}

func (s *DocumentService) primary() ports.DocumentRepository {
	if s.remote != nil {
		return s.remote
	}
	return s.local
}

func (s *DocumentService) setLastLoad(source entities.LoadSource) {
	s.stateMu.Lock()
	s.lastLoad = source
	s.stateMu.Unlock()
}

func (s *DocumentService) getLastLoad() entities.LoadSource {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.lastLoad
}
