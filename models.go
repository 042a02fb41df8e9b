package main

// PreferencesResponse is returned for full preference lookups.
type PreferencesResponse struct {
	DeviceID    string   `json:"deviceId"`
	Preferences Settings `json:"preferences"`
}

// SinglePrefResponse is returned for single-key lookups.
type SinglePrefResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// SearchEnginesResponse lists the engines and the active index.
type SearchEnginesResponse struct {
	Engines []SearchEngine `json:"engines"`
	Active  int            `json:"active"`
}

// ActiveEngineRequest selects an engine by index or by name.
type ActiveEngineRequest struct {
	Index *int   `json:"index,omitempty"`
	Name  string `json:"name,omitempty"`
}

// WeatherResponse combines the resolved location with the weather slot.
type WeatherResponse struct {
	Location    LocationResult  `json:"location"`
	Weather     WeatherState    `json:"weather"`
	Unit        TemperatureUnit `json:"unit"`
	Temperature *int            `json:"temperature,omitempty"`
	FeelsLike   *int            `json:"feelsLike,omitempty"`
}

// LocationRequest is the body of PUT /api/v1/weather/location.
type LocationRequest struct {
	Location string `json:"location"`
}

// CurrentLocationRequest carries the page's geolocation answer. Status is
// "granted" (coordinates set), "denied" or "unsupported".
type CurrentLocationRequest struct {
	Status    string   `json:"status"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// OfflineStatsResponse reports the offline cache generations.
type OfflineStatsResponse struct {
	Generation  string            `json:"generation"`
	Generations []GenerationStats `json:"generations"`
}
