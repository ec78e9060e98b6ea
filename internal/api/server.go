package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-knxtest/internal/bus"
	"github.com/nerrad567/gray-logic-knxtest/internal/device"
	"github.com/nerrad567/gray-logic-knxtest/internal/harness"
	"github.com/nerrad567/gray-logic-knxtest/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-knxtest/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-knxtest/internal/knx"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// RunFunc executes the test suite, restricted to cases matching the given
// patterns (all cases when empty).
type RunFunc func(ctx context.Context, cases []string) (*harness.Report, error)

// Connectivity reports the broker link for /metrics. *mqtt.Client
// satisfies it.
type Connectivity interface {
	IsConnected() bool
	Subscriptions() []string
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Logger   *logging.Logger
	Registry *device.Registry
	Bus      bus.Bus
	TypeMap  knx.TypeMap
	Runner   RunFunc      // optional: POST /runs answers 503 without it
	MQTT     Connectivity // optional: nil on the memory bus
	Version  string
}

// Server is the HTTP monitor server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg      config.APIConfig
	wsCfg    config.WebSocketConfig
	logger   *logging.Logger
	registry *device.Registry
	bus      bus.Bus
	typeMap  knx.TypeMap
	runner   RunFunc
	mqtt     Connectivity
	version  string

	server   *http.Server
	listener net.Listener
	hub      *Hub
	cancel   context.CancelFunc // cancels background goroutines on Close()
	unsubBus func()

	runMu     sync.Mutex // held while a suite run is in progress
	startTime time.Time
	telegrams atomic.Uint64
	lastRun   atomic.Pointer[harness.Report]
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if deps.Bus == nil {
		return nil, fmt.Errorf("bus is required")
	}
	typeMap := deps.TypeMap
	if len(typeMap.Rules) == 0 && typeMap.Fallback == "" {
		typeMap = knx.DefaultTypeMap()
	}

	return &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		registry:  deps.Registry,
		bus:       deps.Bus,
		typeMap:   typeMap,
		runner:    deps.Runner,
		mqtt:      deps.MQTT,
		version:   deps.Version,
		hub:       NewHub(deps.WS, deps.Logger),
		startTime: time.Now(),
	}, nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, relays bus telegrams to it, and launches
// the HTTP listener in a background goroutine. The server can be stopped
// with Close().
//
// Returns:
//   - error: If the listener cannot be opened (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port))
	if err != nil {
		return fmt.Errorf("listening on %s:%d: %w", s.cfg.Host, s.cfg.Port, err)
	}
	s.listener = ln

	// Internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.unsubBus = s.relayTelegrams()

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.logger.Info("API server starting", "address", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the listening address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Handler returns the routed HTTP handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.unsubBus != nil {
		s.unsubBus()
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
