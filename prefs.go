package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/sahilm/fuzzy"
)

// Store keys. These match the keys the page has always used so an exported
// localStorage dump can be PATCHed in as-is.
const (
	KeyTheme                = "theme"
	KeyTemperatureUnit      = "temperatureUnit"
	KeyWallpaperURL         = "wallpaperUrl"
	KeyWallpaperBlur        = "wallpaperBlur"
	KeySearchEngines        = "searchEngines"
	KeySearchEngineIndex    = "currentSearchEngineIndex"
	KeyWeatherLocation      = "weatherLocation"
	KeyWeatherLocationLabel = "weatherLocationLabel"
)

var (
	ErrInvalidPreference = errors.New("invalid preference")
	ErrUnknownPreference = errors.New("unknown preference")
	ErrLastSearchEngine  = errors.New("cannot remove the last search engine")
	ErrPreferenceNotSet  = errors.New("preference not set")
)

type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

func ParseTheme(s string) (Theme, error) {
	switch Theme(s) {
	case ThemeLight, ThemeDark:
		return Theme(s), nil
	}
	return "", fmt.Errorf("%w: theme must be light or dark, got %q", ErrInvalidPreference, s)
}

type TemperatureUnit string

const (
	UnitFahrenheit TemperatureUnit = "F"
	UnitCelsius    TemperatureUnit = "C"
)

func ParseTemperatureUnit(s string) (TemperatureUnit, error) {
	switch TemperatureUnit(s) {
	case UnitFahrenheit, UnitCelsius:
		return TemperatureUnit(s), nil
	}
	return "", fmt.Errorf("%w: temperature unit must be F or C, got %q", ErrInvalidPreference, s)
}

const (
	DefaultWallpaperBlur = 8
	MaxWallpaperBlur     = 50

	searchPlaceholder = "%s"
)

// SearchEngine is a named URL template with a single %s query marker.
type SearchEngine struct {
	Name        string `json:"name"`
	URLTemplate string `json:"urlTemplate"`
}

func (e SearchEngine) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("%w: search engine name is empty", ErrInvalidPreference)
	}
	if strings.Count(strings.TrimSpace(e.URLTemplate), searchPlaceholder) != 1 {
		return fmt.Errorf("%w: search engine %q url template must contain %q exactly once", ErrInvalidPreference, e.Name, searchPlaceholder)
	}
	return nil
}

// DefaultSearchEngines returns a fresh copy of the built-in engines.
func DefaultSearchEngines() []SearchEngine {
	return []SearchEngine{
		{Name: "Bing", URLTemplate: "https://www.bing.com/search?q=%s"},
		{Name: "Google", URLTemplate: "https://www.google.com/search?q=%s"},
	}
}

// Settings is a fully defaulted view of every preference.
type Settings struct {
	Theme                Theme           `json:"theme"`
	TemperatureUnit      TemperatureUnit `json:"temperatureUnit"`
	WallpaperURL         string          `json:"wallpaperUrl,omitempty"`
	WallpaperBlur        int             `json:"wallpaperBlur"`
	SearchEngines        []SearchEngine  `json:"searchEngines"`
	SearchEngineIndex    int             `json:"currentSearchEngineIndex"`
	WeatherLocation      string          `json:"weatherLocation,omitempty"`
	WeatherLocationLabel string          `json:"weatherLocationLabel,omitempty"`
}

// Preferences is the typed view over a Store. Every read applies the
// preference's default when the stored value is absent or invalid, so
// callers only see store failures as errors.
type Preferences struct {
	store        Store
	logger       *slog.Logger
	defaultTheme Theme
	defaultUnit  TemperatureUnit

	// engineMu serialises read-modify-write of the engine list and index.
	engineMu sync.Mutex
}

func NewPreferences(store Store, defaults DefaultsConfig, logger *slog.Logger) *Preferences {
	theme, err := ParseTheme(defaults.Theme)
	if err != nil {
		theme = ThemeLight
	}
	unit, err := ParseTemperatureUnit(defaults.TemperatureUnit)
	if err != nil {
		unit = UnitFahrenheit
	}
	return &Preferences{
		store:        store,
		logger:       logger,
		defaultTheme: theme,
		defaultUnit:  unit,
	}
}

// Settings reads every preference in one store round trip.
func (p *Preferences) Settings(ctx context.Context) (Settings, error) {
	p.engineMu.Lock()
	defer p.engineMu.Unlock()

	raw, err := p.store.GetAll(ctx)
	if err != nil {
		return Settings{}, fmt.Errorf("reading preferences: %w", err)
	}

	engines, index, err := p.reconcileEngines(ctx, raw)
	if err != nil {
		return Settings{}, err
	}

	loc, label := locationFrom(raw)
	return Settings{
		Theme:                p.themeFrom(raw),
		TemperatureUnit:      p.unitFrom(raw),
		WallpaperURL:         raw[KeyWallpaperURL],
		WallpaperBlur:        p.blurFrom(raw),
		SearchEngines:        engines,
		SearchEngineIndex:    index,
		WeatherLocation:      loc,
		WeatherLocationLabel: label,
	}, nil
}

// Value returns the effective value of key in its stored string form.
// Optional preferences that are absent return ErrPreferenceNotSet.
func (p *Preferences) Value(ctx context.Context, key string) (string, error) {
	s, err := p.Settings(ctx)
	if err != nil {
		return "", err
	}

	switch key {
	case KeyTheme:
		return string(s.Theme), nil
	case KeyTemperatureUnit:
		return string(s.TemperatureUnit), nil
	case KeyWallpaperURL:
		if s.WallpaperURL == "" {
			return "", ErrPreferenceNotSet
		}
		return s.WallpaperURL, nil
	case KeyWallpaperBlur:
		return strconv.Itoa(s.WallpaperBlur), nil
	case KeySearchEngines:
		b, err := json.Marshal(s.SearchEngines)
		if err != nil {
			return "", fmt.Errorf("encoding search engines: %w", err)
		}
		return string(b), nil
	case KeySearchEngineIndex:
		return strconv.Itoa(s.SearchEngineIndex), nil
	case KeyWeatherLocation:
		if s.WeatherLocation == "" {
			return "", ErrPreferenceNotSet
		}
		return s.WeatherLocation, nil
	case KeyWeatherLocationLabel:
		if s.WeatherLocationLabel == "" {
			return "", ErrPreferenceNotSet
		}
		return s.WeatherLocationLabel, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPreference, key)
}

// Apply validates raw as the stored form of key and writes it. Invalid
// values are rejected and the previous value is kept.
func (p *Preferences) Apply(ctx context.Context, key, raw string) error {
	switch key {
	case KeyTheme:
		t, err := ParseTheme(raw)
		if err != nil {
			return err
		}
		return p.SetTheme(ctx, t)
	case KeyTemperatureUnit:
		u, err := ParseTemperatureUnit(raw)
		if err != nil {
			return err
		}
		return p.SetTemperatureUnit(ctx, u)
	case KeyWallpaperURL:
		return p.SetWallpaperReference(ctx, raw)
	case KeyWallpaperBlur:
		n, err := parseBlur(raw)
		if err != nil {
			return err
		}
		return p.SetWallpaperBlur(ctx, n)
	case KeySearchEngines:
		engines, err := parseEngineList(raw)
		if err != nil {
			return err
		}
		return p.SetSearchEngines(ctx, engines)
	case KeySearchEngineIndex:
		n, err := parseEngineIndex(raw)
		if err != nil {
			return err
		}
		return p.SetActiveSearchEngine(ctx, n)
	case KeyWeatherLocation:
		return p.setTrimmed(ctx, KeyWeatherLocation, raw)
	case KeyWeatherLocationLabel:
		return p.setTrimmed(ctx, KeyWeatherLocationLabel, raw)
	}
	return fmt.Errorf("%w: %q", ErrUnknownPreference, key)
}

// applyOrder puts the engine list ahead of its index so a batch that
// changes both validates the index against the new list.
var applyOrder = []string{
	KeyTheme,
	KeyTemperatureUnit,
	KeyWallpaperURL,
	KeyWallpaperBlur,
	KeySearchEngines,
	KeySearchEngineIndex,
	KeyWeatherLocation,
	KeyWeatherLocationLabel,
}

// ApplyAll applies a batch of raw values. The whole batch is checked first,
// so an unknown key or an invalid value writes nothing.
func (p *Preferences) ApplyAll(ctx context.Context, values map[string]string) error {
	if err := p.checkBatch(ctx, values); err != nil {
		return err
	}
	for _, key := range applyOrder {
		v, ok := values[key]
		if !ok {
			continue
		}
		if err := p.Apply(ctx, key, v); err != nil {
			return err
		}
	}
	return nil
}

// checkBatch validates values against the state the batch would leave
// behind, without writing. The index is checked against the batch's own
// engine list when it carries one.
func (p *Preferences) checkBatch(ctx context.Context, values map[string]string) error {
	for key := range values {
		if !isKnownKey(key) {
			return fmt.Errorf("%w: %q", ErrUnknownPreference, key)
		}
	}

	engineCount := -1
	if raw, ok := values[KeySearchEngines]; ok {
		engines, err := parseEngineList(raw)
		if err != nil {
			return err
		}
		engineCount = len(engines)
	}

	for _, key := range applyOrder {
		raw, ok := values[key]
		if !ok {
			continue
		}
		var err error
		switch key {
		case KeyTheme:
			_, err = ParseTheme(raw)
		case KeyTemperatureUnit:
			_, err = ParseTemperatureUnit(raw)
		case KeyWallpaperURL:
			err = checkWallpaperReference(raw)
		case KeyWallpaperBlur:
			_, err = parseBlur(raw)
		case KeySearchEngineIndex:
			var n int
			if n, err = parseEngineIndex(raw); err != nil {
				break
			}
			if engineCount < 0 {
				engines, _, lerr := p.SearchEngines(ctx)
				if lerr != nil {
					return lerr
				}
				engineCount = len(engines)
			}
			err = checkEngineIndex(n, engineCount)
		case KeyWeatherLocation, KeyWeatherLocationLabel:
			_, err = trimmedValue(key, raw)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Reset removes key so its default applies again.
func (p *Preferences) Reset(ctx context.Context, key string) error {
	if !isKnownKey(key) {
		return fmt.Errorf("%w: %q", ErrUnknownPreference, key)
	}
	if err := p.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("resetting %s: %w", key, err)
	}
	return nil
}

func (p *Preferences) ResetAll(ctx context.Context) error {
	if err := p.store.DeleteAll(ctx); err != nil {
		return fmt.Errorf("resetting preferences: %w", err)
	}
	return nil
}

func (p *Preferences) Theme(ctx context.Context) (Theme, error) {
	raw, err := p.read(ctx, KeyTheme)
	if err != nil {
		return "", err
	}
	return p.themeFrom(raw), nil
}

func (p *Preferences) SetTheme(ctx context.Context, t Theme) error {
	if _, err := ParseTheme(string(t)); err != nil {
		return err
	}
	return p.write(ctx, KeyTheme, string(t))
}

func (p *Preferences) TemperatureUnit(ctx context.Context) (TemperatureUnit, error) {
	raw, err := p.read(ctx, KeyTemperatureUnit)
	if err != nil {
		return "", err
	}
	return p.unitFrom(raw), nil
}

func (p *Preferences) SetTemperatureUnit(ctx context.Context, u TemperatureUnit) error {
	if _, err := ParseTemperatureUnit(string(u)); err != nil {
		return err
	}
	return p.write(ctx, KeyTemperatureUnit, string(u))
}

// WallpaperReference returns the stored remote URL or embedded payload.
func (p *Preferences) WallpaperReference(ctx context.Context) (string, bool, error) {
	v, found, err := p.store.Get(ctx, KeyWallpaperURL)
	if err != nil {
		return "", false, fmt.Errorf("reading %s: %w", KeyWallpaperURL, err)
	}
	if !found || v == "" {
		return "", false, nil
	}
	return v, true, nil
}

// SetWallpaperReference accepts http(s) URLs and data:image payloads.
func (p *Preferences) SetWallpaperReference(ctx context.Context, ref string) error {
	if err := checkWallpaperReference(ref); err != nil {
		return err
	}
	return p.write(ctx, KeyWallpaperURL, ref)
}

func (p *Preferences) ClearWallpaperReference(ctx context.Context) error {
	if err := p.store.Delete(ctx, KeyWallpaperURL); err != nil {
		return fmt.Errorf("clearing %s: %w", KeyWallpaperURL, err)
	}
	return nil
}

func (p *Preferences) WallpaperBlur(ctx context.Context) (int, error) {
	raw, err := p.read(ctx, KeyWallpaperBlur)
	if err != nil {
		return 0, err
	}
	return p.blurFrom(raw), nil
}

func (p *Preferences) SetWallpaperBlur(ctx context.Context, blur int) error {
	if err := checkBlur(blur); err != nil {
		return err
	}
	return p.write(ctx, KeyWallpaperBlur, strconv.Itoa(blur))
}

// SearchEngines returns the engine list and the reconciled active index.
func (p *Preferences) SearchEngines(ctx context.Context) ([]SearchEngine, int, error) {
	p.engineMu.Lock()
	defer p.engineMu.Unlock()
	return p.loadEngines(ctx)
}

// ActiveSearchEngine returns the engine the search bar currently uses.
func (p *Preferences) ActiveSearchEngine(ctx context.Context) (SearchEngine, int, error) {
	engines, index, err := p.SearchEngines(ctx)
	if err != nil {
		return SearchEngine{}, 0, err
	}
	return engines[index], index, nil
}

// SetSearchEngines replaces the whole list. Every entry must validate and
// the list must not be empty.
func (p *Preferences) SetSearchEngines(ctx context.Context, engines []SearchEngine) error {
	if err := validateEngineList(engines); err != nil {
		return err
	}

	p.engineMu.Lock()
	defer p.engineMu.Unlock()

	if err := p.writeEngines(ctx, engines); err != nil {
		return err
	}
	_, _, err := p.loadEngines(ctx)
	return err
}

// AddSearchEngine appends e. An invalid engine leaves the list untouched.
func (p *Preferences) AddSearchEngine(ctx context.Context, e SearchEngine) ([]SearchEngine, error) {
	e.Name = strings.TrimSpace(e.Name)
	e.URLTemplate = strings.TrimSpace(e.URLTemplate)
	if err := e.Validate(); err != nil {
		return nil, err
	}

	p.engineMu.Lock()
	defer p.engineMu.Unlock()

	engines, _, err := p.loadEngines(ctx)
	if err != nil {
		return nil, err
	}

	engines = append(engines, e)
	if err := p.writeEngines(ctx, engines); err != nil {
		return nil, err
	}
	return engines, nil
}

// RemoveSearchEngine deletes the engine at index. The active index is
// reset to 0 when it would point past the shortened list.
func (p *Preferences) RemoveSearchEngine(ctx context.Context, index int) ([]SearchEngine, int, error) {
	p.engineMu.Lock()
	defer p.engineMu.Unlock()

	engines, _, err := p.loadEngines(ctx)
	if err != nil {
		return nil, 0, err
	}

	if index < 0 || index >= len(engines) {
		return nil, 0, fmt.Errorf("%w: no search engine at index %d", ErrInvalidPreference, index)
	}
	if len(engines) == 1 {
		return nil, 0, ErrLastSearchEngine
	}

	remaining := make([]SearchEngine, 0, len(engines)-1)
	remaining = append(remaining, engines[:index]...)
	remaining = append(remaining, engines[index+1:]...)

	if err := p.writeEngines(ctx, remaining); err != nil {
		return nil, 0, err
	}
	return p.loadEngines(ctx)
}

func (p *Preferences) SetActiveSearchEngine(ctx context.Context, index int) error {
	p.engineMu.Lock()
	defer p.engineMu.Unlock()

	engines, _, err := p.loadEngines(ctx)
	if err != nil {
		return err
	}
	if err := checkEngineIndex(index, len(engines)); err != nil {
		return err
	}
	return p.write(ctx, KeySearchEngineIndex, strconv.Itoa(index))
}

// CycleSearchEngine advances the active engine, wrapping at the end.
func (p *Preferences) CycleSearchEngine(ctx context.Context) (SearchEngine, int, error) {
	p.engineMu.Lock()
	defer p.engineMu.Unlock()

	engines, index, err := p.loadEngines(ctx)
	if err != nil {
		return SearchEngine{}, 0, err
	}

	next := (index + 1) % len(engines)
	if err := p.write(ctx, KeySearchEngineIndex, strconv.Itoa(next)); err != nil {
		return SearchEngine{}, 0, err
	}
	return engines[next], next, nil
}

// WeatherLocation returns the stored location id and its label; the label
// falls back to the id when absent.
func (p *Preferences) WeatherLocation(ctx context.Context) (location, label string, found bool, err error) {
	raw, err := p.store.GetAll(ctx)
	if err != nil {
		return "", "", false, fmt.Errorf("reading weather location: %w", err)
	}
	location, label = locationFrom(raw)
	return location, label, location != "", nil
}

// SetWeatherLocation stores the location id and its display label.
func (p *Preferences) SetWeatherLocation(ctx context.Context, location, label string) error {
	location = strings.TrimSpace(location)
	label = strings.TrimSpace(label)
	if location == "" {
		return fmt.Errorf("%w: weather location is empty", ErrInvalidPreference)
	}
	if label == "" {
		label = location
	}
	if err := p.write(ctx, KeyWeatherLocation, location); err != nil {
		return err
	}
	return p.write(ctx, KeyWeatherLocationLabel, label)
}

// MatchSearchEngine finds an engine by name: case-insensitive exact match
// first, then the best fuzzy match.
func MatchSearchEngine(engines []SearchEngine, name string) (int, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, false
	}

	names := make([]string, len(engines))
	for i, e := range engines {
		if strings.EqualFold(e.Name, name) {
			return i, true
		}
		names[i] = e.Name
	}

	matches := fuzzy.Find(name, names)
	if len(matches) == 0 {
		return 0, false
	}
	return matches[0].Index, true
}

// loadEngines reads the list and index and writes back a corrected index
// when the stored one is out of range. Caller holds engineMu.
func (p *Preferences) loadEngines(ctx context.Context) ([]SearchEngine, int, error) {
	raw, err := p.store.GetAll(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("reading search engines: %w", err)
	}
	return p.reconcileEngines(ctx, raw)
}

func (p *Preferences) reconcileEngines(ctx context.Context, raw map[string]string) ([]SearchEngine, int, error) {
	engines := p.enginesFrom(raw[KeySearchEngines])

	stored, hasIndex := raw[KeySearchEngineIndex]
	index, err := strconv.Atoi(strings.TrimSpace(stored))
	if err != nil {
		index = 0
	}
	clamped := clampEngineIndex(index, len(engines))

	if hasIndex && (err != nil || clamped != index) {
		p.logger.Debug("resetting search engine index", "stored", stored, "engines", len(engines))
		if err := p.write(ctx, KeySearchEngineIndex, strconv.Itoa(clamped)); err != nil {
			return nil, 0, err
		}
	}

	return engines, clamped, nil
}

func (p *Preferences) enginesFrom(raw string) []SearchEngine {
	if raw == "" {
		return DefaultSearchEngines()
	}

	var engines []SearchEngine
	if err := json.Unmarshal([]byte(raw), &engines); err != nil {
		p.logger.Warn("stored search engines are malformed, using defaults", "error", err)
		return DefaultSearchEngines()
	}
	if len(engines) == 0 {
		return DefaultSearchEngines()
	}
	for _, e := range engines {
		if err := e.Validate(); err != nil {
			p.logger.Warn("stored search engine is invalid, using defaults", "error", err)
			return DefaultSearchEngines()
		}
	}
	return engines
}

func (p *Preferences) writeEngines(ctx context.Context, engines []SearchEngine) error {
	b, err := json.Marshal(engines)
	if err != nil {
		return fmt.Errorf("encoding search engines: %w", err)
	}
	return p.write(ctx, KeySearchEngines, string(b))
}

func (p *Preferences) themeFrom(raw map[string]string) Theme {
	if t, err := ParseTheme(raw[KeyTheme]); err == nil {
		return t
	}
	return p.defaultTheme
}

func (p *Preferences) unitFrom(raw map[string]string) TemperatureUnit {
	if u, err := ParseTemperatureUnit(raw[KeyTemperatureUnit]); err == nil {
		return u
	}
	return p.defaultUnit
}

func (p *Preferences) blurFrom(raw map[string]string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw[KeyWallpaperBlur]))
	if err != nil || n < 0 || n > MaxWallpaperBlur {
		return DefaultWallpaperBlur
	}
	return n
}

func (p *Preferences) read(ctx context.Context, key string) (map[string]string, error) {
	v, found, err := p.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	if !found {
		return map[string]string{}, nil
	}
	return map[string]string{key: v}, nil
}

func (p *Preferences) write(ctx context.Context, key, value string) error {
	if err := p.store.Set(ctx, key, value); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

func (p *Preferences) setTrimmed(ctx context.Context, key, raw string) error {
	v, err := trimmedValue(key, raw)
	if err != nil {
		return err
	}
	return p.write(ctx, key, v)
}

func trimmedValue(key, raw string) (string, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return "", fmt.Errorf("%w: %s must not be empty", ErrInvalidPreference, key)
	}
	return v, nil
}

func parseBlur(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: wallpaper blur must be an integer, got %q", ErrInvalidPreference, raw)
	}
	return n, checkBlur(n)
}

func checkBlur(blur int) error {
	if blur < 0 || blur > MaxWallpaperBlur {
		return fmt.Errorf("%w: wallpaper blur must be between 0 and %d, got %d", ErrInvalidPreference, MaxWallpaperBlur, blur)
	}
	return nil
}

func parseEngineList(raw string) ([]SearchEngine, error) {
	var engines []SearchEngine
	if err := json.Unmarshal([]byte(raw), &engines); err != nil {
		return nil, fmt.Errorf("%w: search engines must be a JSON list: %v", ErrInvalidPreference, err)
	}
	return engines, validateEngineList(engines)
}

func validateEngineList(engines []SearchEngine) error {
	if len(engines) == 0 {
		return fmt.Errorf("%w: search engine list must not be empty", ErrInvalidPreference)
	}
	for _, e := range engines {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func parseEngineIndex(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: search engine index must be an integer, got %q", ErrInvalidPreference, raw)
	}
	return n, nil
}

func checkEngineIndex(index, n int) error {
	if index < 0 || index >= n {
		return fmt.Errorf("%w: search engine index %d out of range [0, %d)", ErrInvalidPreference, index, n)
	}
	return nil
}

func checkWallpaperReference(ref string) error {
	if !validWallpaperReference(ref) {
		return fmt.Errorf("%w: wallpaper must be an http(s) URL or a data:image payload", ErrInvalidPreference)
	}
	return nil
}

func locationFrom(raw map[string]string) (string, string) {
	loc := raw[KeyWeatherLocation]
	if loc == "" {
		return "", ""
	}
	label := raw[KeyWeatherLocationLabel]
	if label == "" {
		label = loc
	}
	return loc, label
}

func clampEngineIndex(index, n int) int {
	if index < 0 || index >= n {
		return 0
	}
	return index
}

func validWallpaperReference(ref string) bool {
	if strings.HasPrefix(ref, "data:image/") {
		return true
	}
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func isKnownKey(key string) bool {
	return slices.Contains(applyOrder, key)
}
