package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/siohaza/nightcup/internal/competition"
	"github.com/siohaza/nightcup/internal/session"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps competition errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, competition.ErrAlreadyActive),
		errors.Is(err, competition.ErrNotActive),
		errors.Is(err, competition.ErrAlreadyQualified),
		errors.Is(err, competition.ErrAlreadyWhitelisted):
		return http.StatusConflict
	case errors.Is(err, competition.ErrUnknownPlayer),
		errors.Is(err, competition.ErrNotQualified),
		errors.Is(err, competition.ErrNotWhitelisted):
		return http.StatusNotFound
	case errors.Is(err, competition.ErrInvalidSettingValue):
		return http.StatusUnprocessableEntity
	case errors.Is(err, competition.ErrSessionCommand),
		errors.Is(err, session.ErrUnavailable):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
