package trackings_api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/BearBump/CargoTrack/internal/services/trackings"
	"github.com/pkg/errors"
)

var errBodyTooLarge = errors.New("request body too large")

func httpStatus(err error) int {
	switch {
	case errors.Is(err, errBodyTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, trackings.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, trackings.ErrInvalidStep),
		errors.Is(err, trackings.ErrInvalidInput),
		errors.Is(err, trackings.ErrInvalidComment),
		errors.Is(err, trackings.ErrMissingConfirmer):
		return http.StatusBadRequest
	case errors.Is(err, trackings.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, trackings.ErrMissingEvidence):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := httpStatus(err)
	if status == http.StatusInternalServerError {
		slog.Error("tracking request failed", "error", err.Error())
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
