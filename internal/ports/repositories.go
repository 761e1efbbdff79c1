package ports

import (
	"context"

	"github.com/tripboard/core/internal/domain/entities"
)

// DocumentRepository defines the interface for a backing store of the trip document.
// Load returns entities.ErrDocumentNotFound when nothing was stored yet and an
// error wrapping entities.ErrDocumentCorrupted when stored content does not parse.
type DocumentRepository interface {
	Load(ctx context.Context) (*entities.Document, error)
	Save(ctx context.Context, doc *entities.Document, reason string) (*entities.SaveResult, error)
	Backend() entities.Backend
	Describe() string
}

// BackupRepository defines the interface for timestamped document backups
type BackupRepository interface {
	CreateBackup(ctx context.Context) (*entities.Backup, error)
	ListBackups(ctx context.Context) ([]entities.Backup, error)
	LatestBackup(ctx context.Context) (*entities.Backup, error)
	ReadBackup(ctx context.Context, filename string) (*entities.Document, error)
	PruneBackups(ctx context.Context) (int, error)
}

// LocalStore is the local filesystem backend: a document repository that also
// owns the backup directory and can overwrite the document without taking a backup.
type LocalStore interface {
	DocumentRepository
	BackupRepository
	Replace(ctx context.Context, doc *entities.Document) error
	Writable() error
	DocumentPath() string
	BackupDir() string
	MaxBackups() int
}
