package ops

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/mqttscope/internal/engine"
	"github.com/nerrad567/mqttscope/internal/infrastructure/config"
	"github.com/nerrad567/mqttscope/internal/infrastructure/logging"
	"github.com/nerrad567/mqttscope/internal/infrastructure/mqtt"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Pipeline reports ingestion statistics for the stats endpoint.
// *engine.Engine satisfies it.
type Pipeline interface {
	Stats() engine.Stats
}

// Broker reports connection statistics for the stats endpoint.
// *mqtt.Manager satisfies it.
type Broker interface {
	Stats() mqtt.Stats
}

// Deps holds the dependencies required by the ops server.
type Deps struct {
	Config   config.OpsConfig
	Logger   *logging.Logger
	Pipeline Pipeline
	Broker   Broker               // optional: stats omit the connection section when nil
	Registry *prometheus.Registry // optional: /metrics is not served when nil
	Version  string
}

// Server is the operational HTTP server.
//
// It manages the HTTP listener, routes, and middleware. The server is
// created with New() and started with Start().
type Server struct {
	cfg       config.OpsConfig
	logger    *logging.Logger
	pipeline  Pipeline
	broker    Broker
	registry  *prometheus.Registry
	version   string
	startTime time.Time
	server    *http.Server
}

// New creates a new ops server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, pipeline)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Pipeline == nil {
		return nil, fmt.Errorf("pipeline is required")
	}
	// Broker and Registry are optional; the stats and scrape endpoints
	// degrade gracefully without them.

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		pipeline:  deps.Pipeline,
		broker:    deps.Broker,
		registry:  deps.Registry,
		version:   deps.Version,
		startTime: time.Now(),
	}, nil
}

// Start begins listening for HTTP connections.
//
// It builds the router and launches the HTTP listener in a background
// goroutine. The server can be stopped with Close().
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start() error {
	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       s.cfg.GetReadTimeout(),
		ReadHeaderTimeout: s.cfg.GetReadTimeout(),
		WriteTimeout:      s.cfg.GetWriteTimeout(),
		IdleTimeout:       s.cfg.GetIdleTimeout(),
	}

	go func() {
		s.logger.Info("ops server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("ops server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the ops server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("ops server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down ops server: %w", err)
	}
	return nil
}
