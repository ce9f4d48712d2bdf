// Package server wires the store, queues, providers, and pipeline together
// behind the HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/scriptorium/folio/internal/api"
	"github.com/scriptorium/folio/internal/config"
	"github.com/scriptorium/folio/internal/jobs"
	"github.com/scriptorium/folio/internal/pdf"
	"github.com/scriptorium/folio/internal/pipeline"
	"github.com/scriptorium/folio/internal/providers"
	"github.com/scriptorium/folio/internal/queue"
	"github.com/scriptorium/folio/internal/server/endpoints"
	"github.com/scriptorium/folio/internal/store"
	"github.com/scriptorium/folio/internal/svcctx"
)

// Server is the main Folio HTTP server. It owns the SQLite store, the
// durable queues, and the job consumers.
type Server struct {
	httpServer *http.Server
	store      *store.Store
	queue      *queue.Queue
	jobManager *jobs.Manager
	registry   *providers.Registry
	configMgr  *config.Manager
	logger     *slog.Logger

	// services holds all core services for context enrichment
	services *svcctx.Services

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	mu      sync.RWMutex
	running bool
}

// Config holds server configuration.
type Config struct {
	// ConfigManager provides configuration with hot-reload support
	ConfigManager *config.Manager
	// Logger is the structured logger to use
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.ConfigManager == nil {
		return nil, errors.New("config manager is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	appCfg := cfg.ConfigManager.Get()

	st, err := store.Open(appCfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	registry := providers.NewRegistry()
	registry.SetLogger(cfg.Logger)
	registry.Reload(appCfg.ToProviderRegistryConfig())
	cfg.ConfigManager.OnChange(func(c *config.Config) {
		registry.Reload(c.ToProviderRegistryConfig())
		cfg.Logger.Info("provider registry reloaded from config")
	})

	extractor := pdf.NewExtractor(pdf.ExtractorConfig{
		CacheSize:    appCfg.PDF.CacheSize,
		CacheTTL:     time.Duration(appCfg.PDF.CacheTTLMinutes) * time.Minute,
		RenderDPI:    appCfg.PDF.RenderDPI,
		FetchTimeout: appCfg.RequestTimeout(),
		Logger:       cfg.Logger,
	})

	q := queue.New(st.DB(), cfg.Logger)
	caller := providers.NewCaller(registry,
		appCfg.Pipeline.DefaultProvider, appCfg.Pipeline.FallbackProvider, cfg.Logger)
	runner := pipeline.NewRunner(extractor, registry, caller,
		appCfg.Pipeline.OCRProvider, cfg.Logger)
	manager := jobs.NewManager(st, q, extractor, runner, jobs.ManagerConfig{
		BatchSize:       appCfg.Pipeline.BatchSize,
		PageConcurrency: appCfg.Pipeline.PageConcurrency,
	}, cfg.Logger)

	s := &Server{
		store:     st,
		queue:     q,
		registry:  registry,
		configMgr: cfg.ConfigManager,
		logger:    cfg.Logger,
	}

	s.services = &svcctx.Services{
		Store:      st,
		Queue:      q,
		JobManager: manager,
		Registry:   registry,
		Extractor:  extractor,
		BookMeta:   pdf.NewMetaCache(appCfg.PDF.BookMetaCacheSize),
		Config:     cfg.ConfigManager,
		Logger:     cfg.Logger,
	}
	s.jobManager = manager

	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All() {
		s.endpointRegistry.Register(ep)
	}

	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	s.httpServer = &http.Server{
		Addr:        net.JoinHostPort(appCfg.Server.Host, strconv.Itoa(appCfg.Server.Port)),
		Handler:     s.withServices(mux),
		ReadTimeout: 30 * time.Second,
		// Page rendering can take a while on large scans.
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Start starts the job consumers and the HTTP server. It blocks until the
// context is cancelled or the HTTP server fails.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	// Consumers stop when consumerCtx is cancelled during shutdown.
	consumerCtx, stopConsumers := context.WithCancel(context.Background())
	defer stopConsumers()

	if err := s.jobManager.Start(consumerCtx); err != nil {
		s.setNotRunning()
		return fmt.Errorf("start job manager: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			_ = s.shutdown(stopConsumers)
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown(stopConsumers)
}

// shutdown performs graceful shutdown: stop accepting requests, stop the
// consumers, then close the store.
func (s *Server) shutdown(stopConsumers context.CancelFunc) error {
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	stopConsumers()
	s.jobManager.Wait()

	if err := s.store.Close(); err != nil {
		s.logger.Error("store close error", "error", err)
	}

	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Registry returns the provider registry.
func (s *Server) Registry() *providers.Registry {
	return s.registry
}

// Handler returns the full HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if s.services != nil {
			ctx = svcctx.WithServices(ctx, s.services)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit is middleware that ensures the server is fully initialized.
// Returns 503 Service Unavailable if the store or job manager aren't ready.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.store == nil || s.jobManager == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}
