package container

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"go-image-forensics/internal/analyzer"
	"go-image-forensics/internal/classifier"
	"go-image-forensics/internal/config"
	"go-image-forensics/internal/factory"
	"go-image-forensics/internal/logger"
	"go-image-forensics/internal/observer"
	"go-image-forensics/internal/report"
	"go-image-forensics/internal/repository"
	"go-image-forensics/internal/service"
	"go-image-forensics/internal/transport"
)

// Container holds all application dependencies
type Container struct {
	config           *config.Config
	classifier       *classifier.Adapter
	forensicAnalyzer analyzer.ForensicAnalyzer
	results          repository.VerdictRepository
	events           *observer.EventPublisher
	registry         *prometheus.Registry
	forensicService  service.ForensicService
	handler          http.Handler
}

// NewContainer builds the dependency graph for cfg
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	return NewContainerWithFactory(ctx, cfg, factory.NewComponentFactory())
}

// NewContainerWithFactory builds the dependency graph using the given factories
func NewContainerWithFactory(ctx context.Context, cfg *config.Config, f *factory.ComponentFactory) (*Container, error) {
	images, err := f.StorageFactory.CreateImageStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create image store: %w", err)
	}
	reports, err := f.StorageFactory.CreateReportStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create report store: %w", err)
	}
	results, err := f.RepositoryFactory.CreateRepository(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create result store: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	events := observer.NewEventPublisher()
	events.Subscribe(observer.NewLoggingObserver(logger.Component("events")))
	events.Subscribe(observer.NewMetricsObserver(registry))

	// loaded once; a failure leaves an adapter that yields null scores
	clf := f.ClassifierFactory.CreateClassifier(cfg.Classifier)

	opts := analyzer.DefaultOptions()
	if cfg.MaxWorkers > 0 {
		opts = opts.WithMaxWorkers(cfg.MaxWorkers)
	}
	forensicAnalyzer := analyzer.NewForensicAnalyzer(clf, opts)

	forensicService := service.NewForensicService(service.Dependencies{
		Analyzer:        forensicAnalyzer,
		Results:         results,
		Images:          images,
		Renderer:        report.NewRenderer(reports),
		Events:          events,
		AnalysisTimeout: cfg.AnalysisTimeout,
		ReportTimeout:   cfg.RequestTimeout,
	})
	handler := transport.NewHandler(forensicService, registry, cfg)

	return &Container{
		config:           cfg,
		classifier:       clf,
		forensicAnalyzer: forensicAnalyzer,
		results:          results,
		events:           events,
		registry:         registry,
		forensicService:  forensicService,
		handler:          handler,
	}, nil
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// Registry returns the Prometheus registry backing /metrics
func (c *Container) Registry() *prometheus.Registry {
	return c.registry
}

// Service returns the forensic service
func (c *Container) Service() service.ForensicService {
	return c.forensicService
}

// Close releases the analyzer pool, the classifier and the result store
func (c *Container) Close() error {
	c.events.Wait()
	return errors.Join(
		c.forensicAnalyzer.Close(),
		c.classifier.Close(),
		c.results.Close(),
	)
}
