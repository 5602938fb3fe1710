// Package handlers implements the admin HTTP surface's endpoint
// handlers: health, runtime stats, and rule-file validation.
//
// @title DNS Router Admin API
// @version 1.0
// @description Read-only status and rule-graph validation surface for a running router.
//
// @license.name MIT
// @license.url https://opensource.org/licenses/MIT
//
// @host localhost:8080
// @BasePath /api/v1
package handlers

import (
	"log/slog"
	"sync"
	"time"

	"dnsrouter/internal/config"
	"dnsrouter/internal/frontend"
)

// Handler contains dependencies for admin API handlers.
type Handler struct {
	cfg       *config.Config
	logger    *slog.Logger
	startTime time.Time

	mu         sync.RWMutex
	components *frontend.Components
}

// New creates a new Handler with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) *Handler {
	return &Handler{
		cfg:       cfg,
		logger:    logger,
		startTime: time.Now(),
	}
}

// SetComponents wires the running router's stats collector, response
// cache, and upstream registry into the handler. Called once the
// router has finished building them (frontend.Runner.Run's onReady
// callback), after the Handler itself has already been registered
// with the gin engine.
func (h *Handler) SetComponents(c *frontend.Components) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.components = c
}

// getComponents returns the current components, or nil if the router
// hasn't finished starting yet.
func (h *Handler) getComponents() *frontend.Components {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.components
}
