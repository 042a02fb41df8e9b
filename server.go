package main

import (
	"log/slog"
	"net/http"
)

// NewRouter registers all routes and wraps them with the middleware chain.
func NewRouter(h *Handlers, cfg Config, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	// Health check (no auth required: JWT middleware skips /healthz)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Preferences
	mux.HandleFunc("GET /api/v1/preferences", h.GetAll)
	mux.HandleFunc("GET /api/v1/preferences/{key}", h.GetOne)
	mux.HandleFunc("PATCH /api/v1/preferences", h.PatchPrefs)
	mux.HandleFunc("DELETE /api/v1/preferences", h.DeleteAll)
	mux.HandleFunc("DELETE /api/v1/preferences/{key}", h.DeleteOne)

	// Search engines
	mux.HandleFunc("GET /api/v1/search-engines", h.ListEngines)
	mux.HandleFunc("POST /api/v1/search-engines", h.AddEngine)
	mux.HandleFunc("DELETE /api/v1/search-engines/{index}", h.RemoveEngine)
	mux.HandleFunc("PUT /api/v1/search-engines/active", h.SetActiveEngine)
	mux.HandleFunc("POST /api/v1/search-engines/cycle", h.CycleEngine)

	// Wallpaper
	mux.HandleFunc("GET /api/v1/wallpaper", h.GetWallpaper)
	mux.HandleFunc("POST /api/v1/wallpaper/daily", h.FetchDailyWallpaper)
	mux.HandleFunc("POST /api/v1/wallpaper/local", h.UploadWallpaper)

	// Weather
	mux.HandleFunc("GET /api/v1/weather", h.GetWeather)
	mux.HandleFunc("PUT /api/v1/weather/location", h.SetWeatherLocation)
	mux.HandleFunc("POST /api/v1/weather/location/current", h.UseCurrentLocation)

	// Search bar
	mux.HandleFunc("GET /search", h.Search)
	mux.HandleFunc("GET /api/v1/search/resolve", h.ResolveSearch)

	// Offline cache
	mux.HandleFunc("GET /offline/fetch", h.OfflineFetch)
	mux.HandleFunc("GET /api/v1/offline/stats", h.OfflineStats)

	// Middleware chain: Recovery → CORS → RequestLogging → JWTAuth → mux
	var handler http.Handler = mux
	if cfg.AuthEnabled() {
		handler = JWTAuth(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)(handler)
	}
	handler = RequestLogging(logger)(handler)
	handler = CORS(cfg.Server.CORSAllowOrigin)(handler)
	handler = Recovery(logger)(handler)

	return handler
}
