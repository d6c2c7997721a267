package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"grimm.is/holdover/internal/audit"
	"grimm.is/holdover/internal/clock"
	"grimm.is/holdover/internal/events"
	"grimm.is/holdover/internal/health"
	"grimm.is/holdover/internal/logging"
	"grimm.is/holdover/internal/metrics"
	"grimm.is/holdover/internal/override"
	"grimm.is/holdover/internal/ratelimit"
)

// ServerConfig holds HTTP server timeouts and limits.
type ServerConfig struct {
	ReadHeaderTimeout time.Duration // Slowloris prevention
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	MaxBodyBytes      int64
}

// DefaultServerConfig returns conservative limits for a loopback listener.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16,
		MaxBodyBytes:      64 << 10,
	}
}

// Commander runs commands against the override and reports its state.
type Commander interface {
	Dispatch(ctx context.Context, command string) (override.Outcome, error)
	Status(ctx context.Context) override.Status
}

// Activator applies the override for allowed URLs.
type Activator interface {
	Activate(ctx context.Context, url string) (override.Activation, error)
}

// AuditLog reads the durable transition trail.
type AuditLog interface {
	Query(ctx context.Context, q audit.Query) ([]audit.Event, error)
}

// Options holds the server's dependencies. Only Commands is required.
type Options struct {
	Commands  Commander
	Activator Activator
	Journal   *events.Journal
	Audit     AuditLog
	Metrics   *metrics.Registry
	Health    *health.Checker
	Limiter   *ratelimit.Limiter
	WS        *WSManager
	Logger    *logging.Logger
	Clock     clock.Clock
	Config    *ServerConfig
}

// Server handles API requests.
type Server struct {
	commands  Commander
	activator Activator
	journal   *events.Journal
	audit     AuditLog
	metrics   *metrics.Registry
	health    *health.Checker
	limiter   *ratelimit.Limiter
	ws        *WSManager
	logger    *logging.Logger
	clock     clock.Clock
	cfg       *ServerConfig
	startTime time.Time

	mux *http.ServeMux

	mu     sync.Mutex
	http   *http.Server
	closed bool
}

// NewServer creates a new API server with the provided options
func NewServer(opts Options) (*Server, error) {
	if opts.Commands == nil {
		return nil, errors.New("api: commands are required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.WithComponent("api")
	}
	if opts.Config == nil {
		opts.Config = DefaultServerConfig()
	}
	clk := clock.OrReal(opts.Clock)

	s := &Server{
		commands:  opts.Commands,
		activator: opts.Activator,
		journal:   opts.Journal,
		audit:     opts.Audit,
		metrics:   opts.Metrics,
		health:    opts.Health,
		limiter:   opts.Limiter,
		ws:        opts.WS,
		logger:    opts.Logger,
		clock:     clk,
		cfg:       opts.Config,
		startTime: clk.Now(),
	}
	s.initRoutes()
	return s, nil
}

func (s *Server) initRoutes() {
	mux := http.NewServeMux()
	s.mux = mux

	mux.Handle("POST /api/message", s.limited(s.handleMessage))
	mux.Handle("POST /api/activate", s.limited(s.handleActivate))
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /api/audit", s.handleAudit)
	mux.HandleFunc("GET /api/logs", s.handleLogs)

	if s.ws != nil {
		mux.Handle("GET /api/ws", s.ws)
	}
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	if s.health != nil {
		mux.Handle("GET /healthz", s.health)
		mux.HandleFunc("GET /readyz", s.health.Ready)
	}
	mux.HandleFunc("GET /livez", health.Live)
}

// limited wraps h in the per-client rate limiter when one is configured.
func (s *Server) limited(h http.HandlerFunc) http.Handler {
	if s.limiter == nil {
		return h
	}
	return s.limiter.Middleware(h)
}

// Handler returns the full middleware chain.
func (s *Server) Handler() http.Handler {
	return s.instrument(s.maxBody(s.mux))
}

// Start listens on addr and serves until Shutdown.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on an existing listener until Shutdown. It returns nil after
// a clean shutdown.
func (s *Server) Serve(ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
		MaxHeaderBytes:    s.cfg.MaxHeaderBytes,
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return nil
	}
	s.http = srv
	s.mu.Unlock()

	s.logger.Info("API server listening", "addr", ln.Addr().String())
	logging.APILog("info", "API server starting on %s", ln.Addr())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, closes WebSocket clients and waits for
// in-flight requests until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.ws != nil {
		s.ws.Close()
	}
	s.mu.Lock()
	s.closed = true
	srv := s.http
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Uptime returns the time since the server was created.
func (s *Server) Uptime() time.Duration {
	return s.clock.Since(s.startTime)
}
