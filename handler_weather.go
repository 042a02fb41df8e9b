package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
)

// serverGeolocator stands in for the device when the page has not sent a
// position: the server itself cannot locate the user.
var serverGeolocator Geolocator = StaticGeolocator{Err: ErrGeolocationUnavailable}

// GetWeather resolves the location and returns current conditions. Pass
// refresh=true to retry after a failure or to force a new reading.
func (h *Handlers) GetWeather(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))

	loc, err := h.weather.ResolveLocation(r.Context(), serverGeolocator)
	if err != nil {
		h.writeDomainError(w, r, err, "failed to resolve weather location")
		return
	}

	st := h.weather.Conditions(r.Context(), loc, refresh)
	h.writeWeather(w, r, http.StatusOK, loc, st)
}

// SetWeatherLocation stores a typed location and starts loading it.
func (h *Handlers) SetWeatherLocation(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	var req LocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	loc, err := h.weather.SetLocation(r.Context(), req.Location)
	if err != nil {
		h.writeDomainError(w, r, err, "failed to set weather location")
		return
	}

	st := h.weather.Load(r.Context(), loc)
	h.writeWeather(w, r, http.StatusAccepted, loc, st)
}

// UseCurrentLocation applies the page's geolocation answer.
func (h *Handlers) UseCurrentLocation(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	var req CurrentLocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	geo, ok := req.geolocator()
	if !ok {
		writeError(w, http.StatusBadRequest, "status must be granted with latitude and longitude, denied or unsupported")
		return
	}

	loc, err := h.weather.UseCurrentLocation(r.Context(), geo)
	if err != nil {
		h.writeDomainError(w, r, err, "failed to set weather location")
		return
	}

	st := h.weather.Load(r.Context(), loc)
	h.writeWeather(w, r, http.StatusAccepted, loc, st)
}

func (req CurrentLocationRequest) geolocator() (Geolocator, bool) {
	switch req.Status {
	case "denied":
		return StaticGeolocator{Err: ErrGeolocationDenied}, true
	case "unsupported":
		return StaticGeolocator{Err: ErrGeolocationUnavailable}, true
	case "granted", "":
		if req.Latitude == nil || req.Longitude == nil {
			return nil, false
		}
		return StaticGeolocator{Coords: Coordinates{Latitude: *req.Latitude, Longitude: *req.Longitude}}, true
	}
	return nil, false
}

func (h *Handlers) writeWeather(w http.ResponseWriter, r *http.Request, status int, loc LocationResult, st WeatherState) {
	resp, err := h.weatherResponse(r.Context(), loc, st)
	if err != nil {
		h.writeDomainError(w, r, err, "failed to read temperature unit")
		return
	}
	writeJSON(w, status, resp)
}

func (h *Handlers) weatherResponse(ctx context.Context, loc LocationResult, st WeatherState) (WeatherResponse, error) {
	unit, err := h.prefs.TemperatureUnit(ctx)
	if err != nil {
		return WeatherResponse{}, err
	}

	resp := WeatherResponse{Location: loc, Weather: st, Unit: unit}
	if st.Snapshot != nil {
		temp, feels := st.Snapshot.Temperature(unit)
		resp.Temperature, resp.FeelsLike = &temp, &feels
	}
	return resp, nil
}
