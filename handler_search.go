package main

import (
	"net/http"
	"net/url"
)

// Search redirects the browser to wherever the search-bar input points.
// Blank input is a no-op and answers 204.
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	engine, _, err := h.prefs.ActiveSearchEngine(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err, "failed to retrieve search engine")
		return
	}

	target, ok := Dispatch(r.URL.Query().Get("q"), engine)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	http.Redirect(w, r, target.URL, http.StatusFound)
}

// ResolveSearch returns the navigation target without redirecting.
func (h *Handlers) ResolveSearch(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	engine, _, err := h.prefs.ActiveSearchEngine(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err, "failed to retrieve search engine")
		return
	}

	target, ok := Dispatch(r.URL.Query().Get("q"), engine)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, target)
}

// OfflineFetch fetches url through the offline cache and relays the
// response, including the cache status header.
func (h *Handlers) OfflineFetch(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	raw := r.URL.Query().Get("url")
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		writeError(w, http.StatusBadRequest, "url must be an absolute http or https URL")
		return
	}

	resp, err := h.client.R().SetContext(r.Context()).Get(u.String())
	if err != nil {
		h.logger.Warn("offline fetch failed", "url", u.String(), "error", err)
		writeError(w, http.StatusBadGateway, "fetch failed and no cached copy is available")
		return
	}

	if ct := resp.Header().Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	if cs := resp.Header().Get(cacheStatusHeader); cs != "" {
		w.Header().Set(cacheStatusHeader, cs)
	}
	w.WriteHeader(resp.StatusCode())
	w.Write(resp.Body())
}

// OfflineStats reports entries and bytes per cache generation.
func (h *Handlers) OfflineStats(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	if h.cache == nil {
		writeError(w, http.StatusNotFound, "offline cache is disabled")
		return
	}

	stats, err := h.cache.Stats()
	if err != nil {
		h.writeDomainError(w, r, err, "failed to read offline cache")
		return
	}

	writeJSON(w, http.StatusOK, OfflineStatsResponse{
		Generation:  h.cache.Generation(),
		Generations: stats,
	})
}
