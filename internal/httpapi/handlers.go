package httpapi

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

type settingResponse struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	Value       any    `json:"value"`
	Default     any    `json:"default"`
	Description string `json:"description"`
}

func handleHealth(backend Backend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "ok",
			"relay":  backend.Connected(),
		})
	}
}

func handleStatus(logger *slog.Logger, backend Backend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := backend.Status(r.Context())
		if err != nil {
			fail(w, logger, "status", err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func handleStandings(logger *slog.Logger, backend Backend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := backend.Standings(r.Context(), r.URL.Query().Get("viewer"))
		if err != nil {
			fail(w, logger, "standings", err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func handleSettings(logger *slog.Logger, backend Backend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		settings, err := backend.Settings(r.Context())
		if err != nil {
			fail(w, logger, "settings", err)
			return
		}

		resp := make([]settingResponse, len(settings))
		for i, s := range settings {
			resp[i] = settingResponse{
				Name:        s.Name,
				Kind:        s.Value.Kind.String(),
				Value:       s.Value.Any(),
				Default:     s.Default.Any(),
				Description: s.Description,
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleStart(logger *slog.Logger, backend Backend) http.HandlerFunc {
	type request struct {
		Admin string `json:"admin"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		req.Admin = strings.TrimSpace(req.Admin)
		if req.Admin == "" {
			writeError(w, http.StatusBadRequest, "admin is required")
			return
		}

		if err := backend.Start(r.Context(), req.Admin); err != nil {
			fail(w, logger, "start", err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "starting"})
	}
}

func handleStop(logger *slog.Logger, backend Backend) http.HandlerFunc {
	type request struct {
		Admin string `json:"admin"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		by := strings.TrimSpace(req.Admin)
		if by == "" {
			by = "api"
		}

		if err := backend.Stop(r.Context(), by); err != nil {
			fail(w, logger, "stop", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
	}
}

func handleAddQualified(logger *slog.Logger, backend Backend) http.HandlerFunc {
	type request struct {
		Login string `json:"login"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Login == "" {
			writeError(w, http.StatusBadRequest, "login is required")
			return
		}

		if err := backend.AddQualified(r.Context(), req.Login); err != nil {
			fail(w, logger, "add qualified", err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"login": req.Login})
	}
}

func handleRemoveQualified(logger *slog.Logger, backend Backend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		login := chi.URLParam(r, "login")
		if err := backend.RemoveQualified(r.Context(), login); err != nil {
			fail(w, logger, "remove qualified", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleUpdateSetting(logger *slog.Logger, backend Backend) http.HandlerFunc {
	type request struct {
		Value string `json:"value"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")

		var req request
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		if err := backend.UpdateSetting(r.Context(), name, req.Value); err != nil {
			fail(w, logger, "update setting", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"name": name, "value": req.Value})
	}
}

// fail writes err with the status it maps to. Unexpected errors are logged
// and hidden from the client.
func fail(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error(op+" failed", "error", err)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}
