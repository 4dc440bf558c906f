package container

import (
	"fmt"
	"net/http"

	"go-pricetag-viewer/internal/analyzer"
	"go-pricetag-viewer/internal/config"
	"go-pricetag-viewer/internal/factory"
	"go-pricetag-viewer/internal/logger"
	"go-pricetag-viewer/internal/observer"
	"go-pricetag-viewer/internal/repository"
	"go-pricetag-viewer/internal/service"
	"go-pricetag-viewer/internal/storage"
	"go-pricetag-viewer/internal/transport"
	"go-pricetag-viewer/internal/viewer"
	"go-pricetag-viewer/internal/viewport"
)

// Container holds all application dependencies
type Container struct {
	config       *config.Config
	backend      *storage.BackendClient
	images       storage.ImageStore
	boxes        repository.BoxRepository
	boxAnalyzer  analyzer.BoxAnalyzer
	publisher    *observer.EventPublisher
	metrics      *observer.MetricsObserver
	hub          *transport.LiveHub
	orchestrator *service.AnalysisOrchestrator
	session      *viewer.Session
	handler      http.Handler
}

// NewContainer builds the dependency graph from cfg. The session is created
// but not started; call Session().Start to fetch the image list.
func NewContainer(cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	backend := storage.NewBackendClient(cfg.BackendURL,
		storage.WithAttempts(cfg.FetchAttempts),
		storage.WithTimeout(cfg.ImageFetchTimeout),
	)
	// analysis calls are bounded per box by the orchestrator, not by the client
	analysisBackend := storage.NewBackendClient(cfg.BackendURL, storage.WithoutTimeout())
	components := factory.NewComponentFactory(cfg, backend, analysisBackend)

	images, err := components.StorageFactory.CreateStorage(factory.StorageType(cfg.ImageSource))
	if err != nil {
		return nil, fmt.Errorf("failed to create image store: %w", err)
	}

	boxAnalyzer, err := components.AnalyzerFactory.CreateAnalyzer(factory.AnalyzerType(cfg.Analyzer), images)
	if err != nil {
		return nil, fmt.Errorf("failed to create analyzer: %w", err)
	}

	publisher := observer.NewEventPublisher()
	metrics := observer.NewMetricsObserver()
	hub := transport.NewLiveHub()
	publisher.Subscribe(observer.NewLoggingObserver(logger.Logger))
	publisher.Subscribe(metrics)
	publisher.Subscribe(hub)

	sizer, err := viewport.NewSizer(viewport.DefaultTiers, cfg.ViewportWidth)
	if err != nil {
		boxAnalyzer.Close()
		return nil, fmt.Errorf("failed to create viewport sizer: %w", err)
	}

	boxes := repository.NewHTTPBoxRepository(backend)
	orchestrator := service.NewAnalysisOrchestrator(boxAnalyzer, publisher, service.OrchestratorConfig{
		Concurrency: cfg.AnalysisConcurrency,
		BoxTimeout:  cfg.AnalysisTimeout,
	})

	session, err := viewer.NewSession(viewer.Dependencies{
		Images:      images,
		Boxes:       boxes,
		Runner:      orchestrator,
		Sizer:       sizer,
		Publisher:   publisher,
		LoadTimeout: cfg.ImageFetchTimeout,
	})
	if err != nil {
		boxAnalyzer.Close()
		return nil, fmt.Errorf("failed to create viewer session: %w", err)
	}

	logger.WithField("analyzer", cfg.Analyzer).
		WithField("image_source", cfg.ImageSource).
		WithField("backend", backend.BaseURL()).
		Info("Components initialized")

	return &Container{
		config:       cfg,
		backend:      backend,
		images:       images,
		boxes:        boxes,
		boxAnalyzer:  boxAnalyzer,
		publisher:    publisher,
		metrics:      metrics,
		hub:          hub,
		orchestrator: orchestrator,
		session:      session,
		handler:      transport.NewHandler(session, metrics, hub, cfg),
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

// Session returns the viewer session
func (c *Container) Session() *viewer.Session {
	return c.session
}

// Close stops the session, disconnects live clients and releases the analyzer
func (c *Container) Close() error {
	c.session.Close()
	c.hub.Close()
	return c.boxAnalyzer.Close()
}
