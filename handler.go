package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-resty/resty/v2"
)

// Handlers holds the dependencies shared by every HTTP handler.
type Handlers struct {
	prefs          *Preferences
	wallpaper      *WallpaperProvider
	weather        *WeatherProvider
	cache          *OfflineCache
	client         *resty.Client
	deviceID       string
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewHandlers creates the handler set for app.
func NewHandlers(app *App) *Handlers {
	return &Handlers{
		prefs:          app.Prefs,
		wallpaper:      app.Wallpaper,
		weather:        app.Weather,
		cache:          app.Cache,
		client:         app.Client,
		deviceID:       app.Config.Auth.DeviceID,
		maxUploadBytes: app.Config.Wallpaper.MaxUploadBytes,
		logger:         app.Logger,
	}
}

// authorize checks that the JWT subject, when auth is on, names this device.
func (h *Handlers) authorize(w http.ResponseWriter, r *http.Request) bool {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		return true
	}
	if claims.Subject != h.deviceID {
		writeError(w, http.StatusForbidden, "access denied")
		return false
	}
	return true
}

// GetAll returns every preference with defaults applied.
func (h *Handlers) GetAll(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	settings, err := h.prefs.Settings(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err, "failed to retrieve preferences")
		return
	}

	writeJSON(w, http.StatusOK, PreferencesResponse{
		DeviceID:    h.deviceID,
		Preferences: settings,
	})
}

// GetOne returns a single preference by key.
func (h *Handlers) GetOne(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	key := r.PathValue("key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "missing key")
		return
	}

	value, err := h.prefs.Value(r.Context(), key)
	if err != nil {
		h.writeDomainError(w, r, err, "failed to retrieve preference")
		return
	}

	writeJSON(w, http.StatusOK, SinglePrefResponse{Key: key, Value: value})
}

// PatchPrefs validates and writes the given preferences (merge).
func (h *Handlers) PatchPrefs(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	var values map[string]string
	if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if len(values) == 0 {
		writeError(w, http.StatusBadRequest, "empty preferences")
		return
	}

	if err := h.prefs.ApplyAll(r.Context(), values); err != nil {
		if errors.Is(err, ErrUnknownPreference) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.writeDomainError(w, r, err, "failed to update preferences")
		return
	}

	h.GetAll(w, r)
}

// DeleteAll resets every preference to its default.
func (h *Handlers) DeleteAll(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	if err := h.prefs.ResetAll(r.Context()); err != nil {
		h.writeDomainError(w, r, err, "failed to delete preferences")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteOne resets a single preference to its default.
func (h *Handlers) DeleteOne(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	key := r.PathValue("key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "missing key")
		return
	}

	if err := h.prefs.Reset(r.Context(), key); err != nil {
		h.writeDomainError(w, r, err, "failed to delete preference")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListEngines returns the search engines and the active index.
func (h *Handlers) ListEngines(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	engines, index, err := h.prefs.SearchEngines(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err, "failed to retrieve search engines")
		return
	}

	writeJSON(w, http.StatusOK, SearchEnginesResponse{Engines: engines, Active: index})
}

// AddEngine appends a search engine.
func (h *Handlers) AddEngine(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	var e SearchEngine
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if _, err := h.prefs.AddSearchEngine(r.Context(), e); err != nil {
		h.writeDomainError(w, r, err, "failed to add search engine")
		return
	}

	engines, index, err := h.prefs.SearchEngines(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err, "failed to retrieve search engines")
		return
	}

	writeJSON(w, http.StatusCreated, SearchEnginesResponse{Engines: engines, Active: index})
}

// RemoveEngine deletes the engine at the {index} path value.
func (h *Handlers) RemoveEngine(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "index must be an integer")
		return
	}

	engines, active, err := h.prefs.RemoveSearchEngine(r.Context(), index)
	if err != nil {
		h.writeDomainError(w, r, err, "failed to remove search engine")
		return
	}

	writeJSON(w, http.StatusOK, SearchEnginesResponse{Engines: engines, Active: active})
}

// SetActiveEngine selects the active engine by index or by name.
func (h *Handlers) SetActiveEngine(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	var req ActiveEngineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	index, err := h.resolveEngineIndex(r, req)
	if err != nil {
		h.writeDomainError(w, r, err, "failed to retrieve search engines")
		return
	}

	if err := h.prefs.SetActiveSearchEngine(r.Context(), index); err != nil {
		h.writeDomainError(w, r, err, "failed to set active search engine")
		return
	}

	h.ListEngines(w, r)
}

func (h *Handlers) resolveEngineIndex(r *http.Request, req ActiveEngineRequest) (int, error) {
	if req.Index != nil {
		return *req.Index, nil
	}
	if req.Name == "" {
		return 0, fmt.Errorf("%w: index or name is required", ErrInvalidPreference)
	}

	engines, _, err := h.prefs.SearchEngines(r.Context())
	if err != nil {
		return 0, err
	}
	index, ok := MatchSearchEngine(engines, req.Name)
	if !ok {
		return 0, fmt.Errorf("%w: no search engine matches %q", ErrInvalidPreference, req.Name)
	}
	return index, nil
}

// CycleEngine advances to the next search engine.
func (h *Handlers) CycleEngine(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	if _, _, err := h.prefs.CycleSearchEngine(r.Context()); err != nil {
		h.writeDomainError(w, r, err, "failed to cycle search engine")
		return
	}

	h.ListEngines(w, r)
}

