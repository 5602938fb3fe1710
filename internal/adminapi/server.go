// Package adminapi provides a read-only management HTTP surface for a
// running router: liveness, runtime statistics, and rule-file
// validation, served over gin.
package adminapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"dnsrouter/internal/adminapi/handlers"
	"dnsrouter/internal/adminapi/middleware"
	"dnsrouter/internal/config"
	"dnsrouter/internal/frontend"
)

// Server is the admin management HTTP server.
type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	handler    *handlers.Handler
	engine     *gin.Engine
	httpServer *http.Server
}

// New builds an admin API server bound to cfg.AdminAPI.Host:Port.
func New(cfg *config.Config, logger *slog.Logger) *Server {
	if cfg == nil {
		panic("adminapi.New: cfg is nil")
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.SlogRequestLogger(logger))

	h := handlers.New(cfg, logger)
	RegisterRoutes(engine, h)

	addr := net.JoinHostPort(cfg.AdminAPI.Host, strconv.Itoa(cfg.AdminAPI.Port))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{cfg: cfg, logger: logger, handler: h, engine: engine, httpServer: httpServer}
}

// SetComponents wires the router's live stats/cache/registry handles
// into the server's handlers, once the router has finished starting.
func (s *Server) SetComponents(c *frontend.Components) {
	s.handler.SetComponents(c)
}

func (s *Server) Addr() string {
	if s.httpServer == nil {
		return ""
	}
	return s.httpServer.Addr
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
