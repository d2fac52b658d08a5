package factory

import (
	"context"
	"fmt"

	"go-image-forensics/internal/classifier"
	"go-image-forensics/internal/config"
	"go-image-forensics/internal/logger"
	"go-image-forensics/internal/repository"
	"go-image-forensics/internal/storage"
)

// ClassifierFactory creates the process-wide classifier
type ClassifierFactory interface {
	CreateClassifier(cfg config.ClassifierConfig) *classifier.Adapter
}

// RepositoryFactory creates verdict stores
type RepositoryFactory interface {
	CreateRepository(ctx context.Context, cfg *config.Config) (repository.VerdictRepository, error)
}

// StorageFactory creates image and report stores
type StorageFactory interface {
	CreateImageStore(cfg *config.Config) (storage.ImageStore, error)
	CreateReportStore(ctx context.Context, cfg *config.Config) (storage.ReportStore, error)
}

// classifierFactory implements ClassifierFactory
type classifierFactory struct{}

// NewClassifierFactory creates a new classifier factory
func NewClassifierFactory() ClassifierFactory {
	return &classifierFactory{}
}

// CreateClassifier loads the configured backend once. A load failure is not
// fatal: the returned adapter is unavailable and yields null scores.
func (f *classifierFactory) CreateClassifier(cfg config.ClassifierConfig) *classifier.Adapter {
	backend, err := f.loadBackend(cfg)
	if err != nil {
		logger.WithError(err).WithField("backend", cfg.Backend).
			Warn("Classifier failed to load; analyses will carry no ML score")
		return classifier.Unavailable(err)
	}

	logger.WithField("backend", cfg.Backend).WithField("input_size", backend.InputSize()).
		Info("Classifier loaded")
	return classifier.NewAdapter(backend)
}

func (f *classifierFactory) loadBackend(cfg config.ClassifierConfig) (classifier.Backend, error) {
	switch cfg.Backend {
	case config.ClassifierNative:
		if cfg.ModelPath != "" {
			return classifier.LoadNetwork(cfg.ModelPath, cfg.InputSize)
		}
		return classifier.NewSeededNetwork(cfg.InputSize, cfg.Seed)
	case config.ClassifierONNX:
		return classifier.NewONNXBackend(cfg.ModelPath, cfg.InputSize)
	default:
		return nil, fmt.Errorf("unsupported classifier backend: %s", cfg.Backend)
	}
}

// repositoryFactory implements RepositoryFactory
type repositoryFactory struct{}

// NewRepositoryFactory creates a new repository factory
func NewRepositoryFactory() RepositoryFactory {
	return &repositoryFactory{}
}

// CreateRepository creates a verdict store based on cfg.ResultStore
func (f *repositoryFactory) CreateRepository(ctx context.Context, cfg *config.Config) (repository.VerdictRepository, error) {
	switch cfg.ResultStore {
	case config.ResultStoreMemory:
		return repository.NewMemoryRepository(cfg.ResultTTL), nil
	case config.ResultStoreRedis:
		return repository.NewRedisRepository(ctx, repository.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.ResultTTL,
		})
	default:
		return nil, fmt.Errorf("unsupported result store: %s", cfg.ResultStore)
	}
}

// storageFactory implements StorageFactory
type storageFactory struct{}

// NewStorageFactory creates a new storage factory
func NewStorageFactory() StorageFactory {
	return &storageFactory{}
}

// CreateImageStore keeps uploads on local disk
func (f *storageFactory) CreateImageStore(cfg *config.Config) (storage.ImageStore, error) {
	return storage.NewLocalStore(cfg.UploadDir)
}

// CreateReportStore creates the report sink based on cfg.ReportStore
func (f *storageFactory) CreateReportStore(ctx context.Context, cfg *config.Config) (storage.ReportStore, error) {
	switch cfg.ReportStore {
	case config.ReportStoreLocal:
		return storage.NewLocalStore(cfg.ReportsDir)
	case config.ReportStoreAzure:
		store, err := storage.NewAzureReportStore(storage.AzureConfig{
			AccountName: cfg.AzureStorageAccount,
			AccountKey:  cfg.AzureStorageKey,
			Container:   cfg.AzureReportsContainer,
		})
		if err != nil {
			return nil, err
		}
		if err := storage.EnsureContainer(ctx, store); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported report store: %s", cfg.ReportStore)
	}
}

// ComponentFactory combines all factories
type ComponentFactory struct {
	ClassifierFactory ClassifierFactory
	RepositoryFactory RepositoryFactory
	StorageFactory    StorageFactory
}

// NewComponentFactory creates a new component factory
func NewComponentFactory() *ComponentFactory {
	return &ComponentFactory{
		ClassifierFactory: NewClassifierFactory(),
		RepositoryFactory: NewRepositoryFactory(),
		StorageFactory:    NewStorageFactory(),
	}
}
