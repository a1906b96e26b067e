package httpapi

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
)

func addRoutes(r chi.Router, logger *slog.Logger, backend Backend, tokenHash string) {
	r.Get("/healthz", handleHealth(backend))

	r.Get("/api/competition", handleStatus(logger, backend))
	r.Get("/api/standings", handleStandings(logger, backend))
	r.Get("/api/settings", handleSettings(logger, backend))

	if tokenHash == "" {
		logger.Info("admin token not configured, admin routes disabled")
		return
	}

	r.Group(func(r chi.Router) {
		r.Use(adminAuthMiddleware(tokenHash))
		r.Post("/api/competition/start", handleStart(logger, backend))
		r.Post("/api/competition/stop", handleStop(logger, backend))
		r.Post("/api/qualified", handleAddQualified(logger, backend))
		r.Delete("/api/qualified/{login}", handleRemoveQualified(logger, backend))
		r.Put("/api/settings/{name}", handleUpdateSetting(logger, backend))
	})
}
