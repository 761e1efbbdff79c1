package commands

import (
	"fmt"

	"github.com/tripboard/core/internal/adapters/github"
	"github.com/tripboard/core/internal/adapters/repository"
	"github.com/tripboard/core/internal/application/services"
	"github.com/tripboard/core/internal/infrastructure/config"
	"github.com/tripboard/core/internal/infrastructure/logger"
	"github.com/tripboard/core/internal/infrastructure/metrics"
	"github.com/tripboard/core/internal/ports"
)

type documentStore struct {
	service *services.DocumentService
	local   *repository.LocalDocumentRepository
}

// newStore wires the local backend, the optional GitHub backend and the service
func newStore(cfg *config.Config, appLogger *logger.Logger, storeMetrics *metrics.StoreMetrics) (*documentStore, error) {
	local, err := repository.NewLocalDocumentRepository(repository.LocalOptions{
		DocumentPath: cfg.Storage.DocumentPath(),
		BackupDir:    cfg.Storage.BackupDir,
		BackupPrefix: cfg.Storage.BackupPrefix,
		MaxBackups:   cfg.Storage.MaxBackups,
	}, appLogger, storeMetrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create local store: %w", err)
	}

	var remote ports.DocumentRepository
	if cfg.Remote.Enabled() {
		contents, err := github.NewContentsRepository(github.Options{
			Token:      cfg.Remote.Token,
			Owner:      cfg.Remote.Owner,
			Repo:       cfg.Remote.Repo,
			Path:       cfg.Remote.Path,
			Branch:     cfg.Remote.Branch,
			APIURL:     cfg.Remote.APIURL,
			Timeout:    cfg.Remote.Timeout,
			MaxRetries: cfg.Remote.MaxRetries,
		}, appLogger, storeMetrics)
		if err != nil {
			return nil, fmt.Errorf("failed to create GitHub store: %w", err)
		}
		remote = contents
		appLogger.Debugw("GitHub backend enabled", "target", cfg.Remote.Target())
	}

	service := services.NewDocumentService(local, remote, services.DocumentServiceOptions{
		MirrorLocal: cfg.Remote.MirrorLocal,
	}, appLogger, storeMetrics)

	return &documentStore{
		service: service,
		local:   local,
	}, nil
}
