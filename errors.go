package main

import (
	"encoding/json"
	"errors"
	"net/http"
)

// APIError represents a structured error response.
type APIError struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, APIError{Error: msg, Code: status})
}

// errorStatus maps domain errors to HTTP status codes. Anything not listed
// is a store or transport failure.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, ErrUnknownPreference), errors.Is(err, ErrPreferenceNotSet):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidPreference),
		errors.Is(err, ErrInvalidImage),
		errors.Is(err, ErrInvalidLocationData):
		return http.StatusBadRequest
	case errors.Is(err, ErrLastSearchEngine):
		return http.StatusConflict
	case errors.Is(err, ErrWeatherUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError writes err with its mapped status. Internal failures are
// logged and reported with msg instead of the error text.
func (h *Handlers) writeDomainError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(msg, "error", err, "path", r.URL.Path, "id", RequestIDFromContext(r.Context()))
		writeError(w, status, msg)
		return
	}
	writeError(w, status, err.Error())
}
