package handler

import (
	"context"
	"log/slog"
	"net/http"

	"shellbox/internal/service"
)

// EnvironmentService is the lifecycle surface the environment endpoints need.
type EnvironmentService interface {
	Restart(ctx context.Context) error
	EnvironmentStatus() service.EnvironmentStatus
}

// EnvironmentHandler exposes the state of the execution environment and
// lets an operator reboot it without restarting the daemon.
type EnvironmentHandler struct {
	env    EnvironmentService
	logger *slog.Logger
}

// NewEnvironmentHandler creates a new EnvironmentHandler.
func NewEnvironmentHandler(env EnvironmentService, logger *slog.Logger) *EnvironmentHandler {
	return &EnvironmentHandler{
		env:    env,
		logger: logger,
	}
}

// HandleStatus reports the environment state and SSH coordinates.
//
// HTTP: GET /api/environment
func (h *EnvironmentHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.env.EnvironmentStatus())
}

// HandleRestart reboots the environment. Blocks until the machine is
// reachable again, so the caller can immediately submit a batch on 200.
//
// HTTP: POST /api/environment/restart
func (h *EnvironmentHandler) HandleRestart(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("environment restart requested")

	if err := h.env.Restart(r.Context()); err != nil {
		h.logger.Error("environment restart failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, h.env.EnvironmentStatus())
}
