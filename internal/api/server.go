// Package api provides the HTTP REST API and WebSocket server for Unify Core.
//
// It exposes device resolution, unified command execution, platform
// management, and real-time state updates to user interfaces (mobile apps,
// web dashboards, voice assistant backends).
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
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

	"github.com/unify-home/unify-core/internal/command"
	"github.com/unify-home/unify-core/internal/device"
	"github.com/unify-home/unify-core/internal/infrastructure/config"
	"github.com/unify-home/unify-core/internal/infrastructure/logging"
	"github.com/unify-home/unify-core/internal/platform"
	"github.com/unify-home/unify-core/internal/statecache"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	WS        config.WebSocketConfig
	Security  config.SecurityConfig
	Logger    *logging.Logger
	Devices   *device.Registry
	Platforms *platform.Registry
	Executor  *command.Executor
	Cache     *statecache.Cache
	Version   string
}

// Server is the HTTP API server for Unify Core.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	secCfg    config.SecurityConfig
	logger    *logging.Logger
	devices   *device.Registry
	platforms *platform.Registry
	executor  *command.Executor
	cache     *statecache.Cache
	version   string

	server   *http.Server
	hub      *Hub
	tickets  *ticketStore
	eventSub platform.Subscription
	cancel   context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Devices == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if deps.Platforms == nil {
		return nil, fmt.Errorf("platform registry is required")
	}
	if deps.Executor == nil {
		return nil, fmt.Errorf("command executor is required")
	}
	// Cache is optional; reads fall back to the platform registry.

	return &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		secCfg:    deps.Security,
		logger:    deps.Logger,
		devices:   deps.Devices,
		platforms: deps.Platforms,
		executor:  deps.Executor,
		cache:     deps.Cache,
		version:   deps.Version,
		tickets:   newTicketStore(),
	}, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, subscribes to the
// platform registry's event stream for real-time WebSocket broadcast, and
// launches the HTTP listener in a background goroutine. The server is
// stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	// Internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.hub = NewHub(s.wsCfg, s.logger)
	go s.hub.Run(srvCtx)

	// Expire stale WebSocket tickets in the background.
	go s.tickets.cleanLoop(srvCtx)

	// Relay adapter events to subscribed WebSocket clients.
	s.eventSub = s.platforms.Subscribe(s.broadcastEvent)

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
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
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

	if s.eventSub != nil {
		s.eventSub.Cancel()
	}
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

// broadcastEvent relays one adapter event to WebSocket subscribers.
// The hub owns the event-to-channel mapping.
func (s *Server) broadcastEvent(e platform.Event) {
	if s.hub == nil {
		return
	}
	s.hub.Broadcast(e)
}
