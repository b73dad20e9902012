// Package api provides the HTTP REST API and WebSocket server for APS Core.
//
// It exposes order tracking, template registry management, sequence counters,
// intake statistics, and the message trace to dashboards and operator tooling.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/apsfactory/aps-core/internal/analyzer"
	"github.com/apsfactory/aps-core/internal/dispatch"
	"github.com/apsfactory/aps-core/internal/infrastructure/config"
	"github.com/apsfactory/aps-core/internal/infrastructure/logging"
	"github.com/apsfactory/aps-core/internal/intake"
	"github.com/apsfactory/aps-core/internal/order"
	"github.com/apsfactory/aps-core/internal/sequencer"
	"github.com/apsfactory/aps-core/internal/template"
	"github.com/apsfactory/aps-core/internal/trace"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config        config.APIConfig
	Logger        *logging.Logger
	Registry      *template.Registry
	Validator     *template.Validator
	Tracker       *order.Tracker
	Dispatcher    *dispatch.Dispatcher
	Sequencer     *sequencer.Sequencer
	Intake        *intake.Router
	Trace         *trace.Store
	Analyzer      *analyzer.Analyzer
	TemplatesPath string // source document for POST /templates/reload
	ExternalHub   *Hub   // If set, the server uses this hub instead of creating its own
	Version       string
}

// Server is the HTTP API server for APS Core.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg           config.APIConfig
	logger        *logging.Logger
	registry      *template.Registry
	validator     *template.Validator
	tracker       *order.Tracker
	dispatcher    *dispatch.Dispatcher
	sequencer     *sequencer.Sequencer
	intake        *intake.Router
	trace         *trace.Store
	analyzer      *analyzer.Analyzer
	templatesPath string
	version       string
	server        *http.Server
	hub           *Hub
	externalHub   bool               // true if hub was injected externally
	cancel        context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, registry, tracker)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("template registry is required")
	}
	if deps.Tracker == nil {
		return nil, fmt.Errorf("order tracker is required")
	}
	// Dispatcher is optional; order-start and command endpoints return 500
	// without it but reads and the WebSocket stream still function.

	s := &Server{
		cfg:           deps.Config,
		logger:        deps.Logger,
		registry:      deps.Registry,
		validator:     deps.Validator,
		tracker:       deps.Tracker,
		dispatcher:    deps.Dispatcher,
		sequencer:     deps.Sequencer,
		intake:        deps.Intake,
		trace:         deps.Trace,
		analyzer:      deps.Analyzer,
		templatesPath: deps.TemplatesPath,
		version:       deps.Version,
	}

	// Use an externally-provided hub if available (needed when other
	// components broadcast order and intake events to the same clients).
	if deps.ExternalHub != nil {
		s.hub = deps.ExternalHub
		s.externalHub = true
	}

	return s, nil
}

// Hub returns the server's WebSocket hub, or nil before Start() when
// no external hub was injected.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, and launches the HTTP
// listener in a background goroutine. The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	// Create internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	// Create WebSocket hub (unless one was injected externally)
	if s.hub == nil {
		s.hub = NewHub(s.cfg.WebSocket, s.logger)
		go s.hub.Run(srvCtx)
	}

	// Build router
	router := s.buildRouter()

	// Create HTTP server
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.logger.Info("API server starting", "address", s.server.Addr)

	// Start listening in background
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Cancel background goroutines (hub)
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
