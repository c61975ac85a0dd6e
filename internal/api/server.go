package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/sbergate/internal/device"
	"github.com/nerrad567/sbergate/internal/infrastructure/config"
	"github.com/nerrad567/sbergate/internal/infrastructure/logging"
	"github.com/nerrad567/sbergate/internal/schema"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// ConfigPublisher republishes gateway payloads to the vendor cloud.
// Satisfied by the cloud bridge; kept as an interface so the server has no
// dependency on the bridge package and tests can observe republishes.
type ConfigPublisher interface {
	PublishConfig()
	PublishStates(ids []string)
}

// ConnectionReporter reports broker connectivity for the status endpoint.
type ConnectionReporter interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the admin server.
type Deps struct {
	Config    config.APIConfig
	Cloud     config.CloudConfig
	Storage   config.StorageConfig
	Logger    *logging.Logger
	Registry  *device.Registry
	Publisher ConfigPublisher    // optional: nil disables cloud republish
	MQTT      ConnectionReporter // optional: nil reports offline
	Version   string
}

// Server is the admin HTTP server.
//
// It manages the HTTP listener, routes, and middleware. The server is
// created with New() and started with Start().
//
// Thread Safety: All methods are safe for concurrent use from multiple
// goroutines.
type Server struct {
	cfg       config.APIConfig
	cloudCfg  config.CloudConfig
	storage   config.StorageConfig
	logger    *logging.Logger
	registry  *device.Registry
	publisher ConfigPublisher
	mqtt      ConnectionReporter
	version   string
	server    *http.Server

	// Schema and cloud client arrive after the cloud endpoint has been
	// discovered at runtime, so they are set late and guarded.
	mu           sync.RWMutex
	schema       *schema.Schema
	cloudClient  *schema.Client
	startupError string
}

// New creates a new admin server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, registry)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}

	return &Server{
		cfg:       deps.Config,
		cloudCfg:  deps.Cloud,
		storage:   deps.Storage,
		logger:    deps.Logger,
		registry:  deps.Registry,
		publisher: deps.Publisher,
		mqtt:      deps.MQTT,
		version:   deps.Version,
	}, nil
}

// SetSchema installs the category schema and cloud API client.
//
// Called after the schema bootstrap completes, which happens only once the
// cloud endpoint has been learned from the global config topic. Until then
// the schema endpoints return 503.
func (s *Server) SetSchema(sch *schema.Schema, client *schema.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schema = sch
	s.cloudClient = client
}

// SetStartupError records a startup failure for the status endpoint.
func (s *Server) SetStartupError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startupError = msg
}

// Start begins listening for HTTP connections.
//
// The listener runs in a background goroutine; the server is stopped with
// Close().
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(_ context.Context) error {
	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("admin server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("admin server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the admin server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("admin server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down admin server: %w", err)
	}
	return nil
}

// HealthCheck verifies the admin server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("admin server not started")
	}

	return nil
}

// publishCloudConfig pushes the current device list to the cloud after a
// registry mutation. No-op when the bridge is not wired (tests, startup).
func (s *Server) publishCloudConfig() {
	if s.publisher != nil {
		s.publisher.PublishConfig()
	}
}
