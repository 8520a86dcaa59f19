package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonesrussell/north-cloud/sru-harvester/internal/logger"
	"github.com/jonesrussell/north-cloud/sru-harvester/internal/pipeline"
)

// StatusProvider reports the state of the running harvest.
type StatusProvider interface {
	Snapshot() pipeline.Snapshot
}

// HealthResponse is the health endpoint payload.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
	State   string `json:"state"`
}

// Server is the status HTTP server.
type Server struct {
	router  *gin.Engine
	server  *http.Server
	logger  logger.Interface
	config  *Config
	started time.Time
}

// NewServer builds the router: GET /health, GET /status and GET /metrics.
func NewServer(
	cfg *Config,
	log logger.Interface,
	status StatusProvider,
	gatherer prometheus.Gatherer,
	version string,
) *Server {
	cfg.SetDefaults()

	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	log = log.WithComponent("server")
	s := &Server{
		logger:  log,
		config:  cfg,
		started: time.Now(),
	}

	router := gin.New()
	router.Use(RecoveryMiddleware(log))
	router.Use(LoggerMiddleware(log))

	router.GET("/health", s.healthHandler(status, version))
	router.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, status.Snapshot())
	})
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	s.router = router
	s.server = &http.Server{
		Addr:         cfg.Address,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func (s *Server) healthHandler(status StatusProvider, version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		state := status.Snapshot().State
		resp := HealthResponse{
			Status:  "healthy",
			Service: "sru-harvester",
			Version: version,
			Uptime:  time.Since(s.started).Round(time.Second).String(),
			State:   string(state),
		}

		code := http.StatusOK
		if state == pipeline.StateFailed {
			resp.Status = "unhealthy"
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, resp)
	}
}

// Router returns the underlying Gin engine.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// StartAsync listens and serves in a goroutine. Listen errors are returned
// directly; later serve errors arrive on the channel.
func (s *Server) StartAsync() (<-chan error, error) {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", s.server.Addr, err)
	}

	s.logger.Info("Starting status server", "address", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := s.server.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", serveErr)
		}
	}()
	return errCh, nil
}

// Shutdown gracefully shuts down the server with the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.logger.Info("Status server stopped")
	return nil
}
