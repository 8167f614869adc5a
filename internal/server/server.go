// Package server wires the medicine store, handlers and middleware into an
// HTTP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/medtrack/internal/auth"
	"github.com/vyrodovalexey/medtrack/internal/config"
	"github.com/vyrodovalexey/medtrack/internal/handler"
	"github.com/vyrodovalexey/medtrack/internal/middleware"
	"github.com/vyrodovalexey/medtrack/internal/store"
)

// Server represents the HTTP server.
type Server struct {
	httpServer    *http.Server
	router        *mux.Router
	config        *config.Config
	logger        *zap.Logger
	registry      *prometheus.Registry
	store         store.Store
	authenticator auth.Authenticator
	wsHandler     *handler.WebSocketHandler
	initErr       error
}

// New creates a Server around medicineStore. A nil authenticator leaves the
// API open. Setup errors are reported by Start.
func New(
	cfg *config.Config,
	logger *zap.Logger,
	medicineStore store.Store,
	authenticator auth.Authenticator,
) *Server {
	s := &Server{
		router:        mux.NewRouter(),
		config:        cfg,
		logger:        logger,
		store:         medicineStore,
		authenticator: authenticator,
	}

	if cfg.MetricsEnabled {
		s.registry = prometheus.NewRegistry()
		s.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		s.store = store.NewInstrumentedStore(medicineStore, store.NewMetrics(s.registry))
	}

	s.setupMiddleware()
	s.setupRoutes()
	s.setupHTTPServer()

	return s
}

func (s *Server) setupMiddleware() {
	allowedMethods := []string{
		http.MethodGet,
		http.MethodPost,
		http.MethodDelete,
		http.MethodOptions,
	}
	allowedHeaders := []string{
		"Content-Type",
		"Authorization",
		auth.APIKeyHeader,
		middleware.RequestIDHeader,
	}

	// First registered is outermost.
	s.router.Use(mux.MiddlewareFunc(middleware.Recovery(s.logger)))
	s.router.Use(mux.MiddlewareFunc(middleware.RequestID()))

	if s.registry != nil {
		s.router.Use(mux.MiddlewareFunc(middleware.Metrics(middleware.NewHTTPMetrics(s.registry))))
	}

	s.router.Use(mux.MiddlewareFunc(middleware.Logging(s.logger)))
	s.router.Use(mux.MiddlewareFunc(middleware.CORS(s.config.CORSOrigins, allowedMethods, allowedHeaders)))

	if s.authenticator != nil {
		s.logger.Info("authentication enabled", zap.String("method", string(s.authenticator.Method())))
		s.router.Use(mux.MiddlewareFunc(middleware.Auth(s.authenticator, s.logger)))
	}
}

func (s *Server) setupRoutes() {
	s.wsHandler = handler.NewWebSocketHandler(s.store, s.logger,
		handler.WithSnapshotInterval(s.config.WSSnapshotInterval),
		handler.WithSnapshotDays(s.config.ExpiryWarningDays),
	)

	restHandler := handler.NewRESTHandler(s.store, s.logger,
		handler.WithNotifier(s.wsHandler),
		handler.WithDefaultExpiringDays(s.config.ExpiryWarningDays),
	)

	restHandler.RegisterRoutes(s.router)
	s.wsHandler.RegisterRoutes(s.router)

	// Preflight needs a matching route for the middleware chain to run.
	s.router.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	if s.registry != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).
			Methods(http.MethodGet)
	}
}

func (s *Server) setupHTTPServer() {
	s.httpServer = &http.Server{
		Addr:              s.config.Address(),
		Handler:           s.router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	if !s.config.TLSEnabled {
		return
	}

	tlsConfig, err := s.buildTLSConfig()
	if err != nil {
		s.initErr = err
		return
	}
	s.httpServer.TLSConfig = tlsConfig
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	if s.initErr != nil {
		return fmt.Errorf("server initialization: %w", s.initErr)
	}

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("server listen: %w", err)
	}

	return s.Serve(ln)
}

// Serve serves on ln, which is closed when Serve returns.
func (s *Server) Serve(ln net.Listener) error {
	if s.initErr != nil {
		_ = ln.Close()
		return fmt.Errorf("server initialization: %w", s.initErr)
	}

	s.logger.Info("starting server",
		zap.String("address", ln.Addr().String()),
		zap.Bool("tls_enabled", s.config.TLSEnabled),
		zap.Bool("metrics_enabled", s.registry != nil),
		zap.Int("expiry_warning_days", s.config.ExpiryWarningDays),
	)

	var err error
	if s.httpServer.TLSConfig != nil {
		// Certificates come from TLSConfig.
		err = s.httpServer.ServeTLS(ln, "", "")
	} else {
		err = s.httpServer.Serve(ln)
	}

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server serve: %w", err)
	}

	return nil
}

// Shutdown closes feed connections, then drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	if s.wsHandler != nil {
		s.wsHandler.CloseAllConnections()
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.logger.Info("server shutdown complete")
	return nil
}

// Router returns the server's router.
func (s *Server) Router() *mux.Router {
	return s.router
}
