package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Auth      AuthConfig      `mapstructure:"auth" yaml:"auth"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	HTTP      HTTPConfig      `mapstructure:"http" yaml:"http"`
	Wallpaper WallpaperConfig `mapstructure:"wallpaper" yaml:"wallpaper"`
	Weather   WeatherConfig   `mapstructure:"weather" yaml:"weather"`
	Offline   OfflineConfig   `mapstructure:"offline" yaml:"offline"`
	Defaults  DefaultsConfig  `mapstructure:"defaults" yaml:"defaults"`
}

type ServerConfig struct {
	Port            string `mapstructure:"port" yaml:"port"`
	CORSAllowOrigin string `mapstructure:"cors_allow_origin" yaml:"cors_allow_origin"`
}

// AuthConfig enables bearer-token auth when JWTSecret is set.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer string `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	DeviceID  string `mapstructure:"device_id" yaml:"device_id"`
}

type StoreConfig struct {
	Backend         string `mapstructure:"backend" yaml:"backend"`
	SQLitePath      string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	WALMode         bool   `mapstructure:"wal_mode" yaml:"wal_mode"`
	DynamoEndpoint  string `mapstructure:"dynamodb_endpoint" yaml:"dynamodb_endpoint"`
	DynamoTableName string `mapstructure:"dynamodb_table_name" yaml:"dynamodb_table_name"`
	AWSRegion       string `mapstructure:"aws_region" yaml:"aws_region"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

type HTTPConfig struct {
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries int           `mapstructure:"max_retries" yaml:"max_retries"`
	UserAgent  string        `mapstructure:"user_agent" yaml:"user_agent"`
	Debug      bool          `mapstructure:"debug" yaml:"debug"`
}

type WallpaperConfig struct {
	RelayURL       string `mapstructure:"relay_url" yaml:"relay_url"`
	ArchiveURL     string `mapstructure:"archive_url" yaml:"archive_url"`
	ImageBaseURL   string `mapstructure:"image_base_url" yaml:"image_base_url"`
	FallbackURL    string `mapstructure:"fallback_url" yaml:"fallback_url"`
	MaxDimension   int    `mapstructure:"max_dimension" yaml:"max_dimension"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes" yaml:"max_upload_bytes"`
}

type WeatherConfig struct {
	BaseURL          string `mapstructure:"base_url" yaml:"base_url"`
	FallbackLocation string `mapstructure:"fallback_location" yaml:"fallback_location"`
}

type OfflineConfig struct {
	Enabled    bool     `mapstructure:"enabled" yaml:"enabled"`
	Path       string   `mapstructure:"path" yaml:"path"`
	Generation string   `mapstructure:"generation" yaml:"generation"`
	Precache   []string `mapstructure:"precache" yaml:"precache"`
}

type DefaultsConfig struct {
	Theme           string `mapstructure:"theme" yaml:"theme"`
	TemperatureUnit string `mapstructure:"temperature_unit" yaml:"temperature_unit"`
}

const envPrefix = "STARTPAGE"

// LoadConfig reads defaults, the optional config file and STARTPAGE_*
// environment overrides. An explicit path that does not exist is an error;
// a missing default config file is not.
func LoadConfig(path string) (Config, *viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(configDir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, nil, err
	}

	return cfg, v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.cors_allow_origin", "*")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_issuer", "")
	v.SetDefault("auth.device_id", "local")

	v.SetDefault("store.backend", "sqlite")
	v.SetDefault("store.sqlite_path", filepath.Join(dataDir(), "startpage.db"))
	v.SetDefault("store.wal_mode", true)
	v.SetDefault("store.dynamodb_endpoint", "")
	v.SetDefault("store.dynamodb_table_name", "start-page-preferences")
	v.SetDefault("store.aws_region", "us-east-1")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", false)

	v.SetDefault("http.timeout", 15*time.Second)
	v.SetDefault("http.max_retries", 0)
	v.SetDefault("http.user_agent", "startpage/1.0")
	v.SetDefault("http.debug", false)

	v.SetDefault("wallpaper.relay_url", "https://corsproxy.io/?")
	v.SetDefault("wallpaper.archive_url", "https://www.bing.com/HPImageArchive.aspx?format=js&idx=0&n=1&mkt=en-US")
	v.SetDefault("wallpaper.image_base_url", "https://www.bing.com")
	v.SetDefault("wallpaper.fallback_url", "https://picsum.photos/1920/1080")
	v.SetDefault("wallpaper.max_dimension", 3840)
	v.SetDefault("wallpaper.max_upload_bytes", 20<<20)

	v.SetDefault("weather.base_url", "https://wttr.in")
	v.SetDefault("weather.fallback_location", "New York")

	v.SetDefault("offline.enabled", true)
	v.SetDefault("offline.path", filepath.Join(cacheDir(), "offline.db"))
	v.SetDefault("offline.generation", "startpage-v1")
	v.SetDefault("offline.precache", []string{})

	v.SetDefault("defaults.theme", string(ThemeLight))
	v.SetDefault("defaults.temperature_unit", string(UnitFahrenheit))
}

func (c Config) validate() error {
	switch c.Store.Backend {
	case "sqlite", "dynamodb":
	default:
		return fmt.Errorf("unsupported store backend %q (want sqlite or dynamodb)", c.Store.Backend)
	}

	if _, err := ParseTheme(c.Defaults.Theme); err != nil {
		return fmt.Errorf("defaults.theme: %w", err)
	}
	if _, err := ParseTemperatureUnit(c.Defaults.TemperatureUnit); err != nil {
		return fmt.Errorf("defaults.temperature_unit: %w", err)
	}

	if c.Offline.Enabled && strings.TrimSpace(c.Offline.Generation) == "" {
		return fmt.Errorf("offline.generation must not be empty")
	}

	return nil
}

// AuthEnabled reports whether bearer tokens are required.
func (c Config) AuthEnabled() bool {
	return c.Auth.JWTSecret != ""
}

// DefaultConfig returns the built-in defaults without reading any file or
// environment variable.
func DefaultConfig() (Config, error) {
	v := viper.New()
	setDefaults(v)

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decoding defaults: %w", err)
	}
	return c, nil
}

// SaveDefaultConfig writes the defaults to path as YAML. It refuses to
// overwrite an existing file.
func SaveDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("configuration file already exists: %s", path)
	}

	c, err := DefaultConfig()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.Auth.JWTSecret != "" {
		c.Auth.JWTSecret = "********"
	}
	return c
}

func configDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "startpage")
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "startpage")
	}
	return "."
}

func dataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "startpage")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "startpage")
	}
	return "."
}

func cacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "startpage")
	}
	return "."
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
