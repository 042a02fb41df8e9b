package main

import (
	"errors"
	"io"
	"net/http"
)

// multipartOverhead leaves room for the form boundary and headers around
// the uploaded file.
const multipartOverhead = 1 << 20

// GetWallpaper returns the wallpaper for page load, fetching today's image
// when nothing is stored.
func (h *Handlers) GetWallpaper(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	st, err := h.wallpaper.Current(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err, "failed to resolve wallpaper")
		return
	}

	writeJSON(w, http.StatusOK, st)
}

// FetchDailyWallpaper switches to today's daily image. It always succeeds;
// failures show up as the fallback image and attribution.
func (h *Handlers) FetchDailyWallpaper(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	writeJSON(w, http.StatusOK, h.wallpaper.FetchDaily(r.Context()))
}

// UploadWallpaper stores the multipart "file" field as the wallpaper.
func (h *Handlers) UploadWallpaper(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "missing file upload")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	st, err := h.wallpaper.AcceptLocal(r.Context(), header.Filename, data)
	if err != nil {
		h.writeDomainError(w, r, err, "failed to store wallpaper")
		return
	}

	writeJSON(w, http.StatusOK, st)
}
