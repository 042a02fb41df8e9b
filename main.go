package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile  string
	logLevel string

	// Loaded in PersistentPreRunE
	cfg      Config
	v        *viper.Viper
	logger   *slog.Logger
	levelVar *slog.LevelVar
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "startpage",
	Short: "Browser start page backend: preferences, wallpaper, weather and search",
	Long: `startpage keeps the settings of a personal browser start page, fetches its
daily wallpaper and current weather, decides where search-bar input goes and
keeps an offline copy of what it fetched.

Run "startpage serve" for the HTTP API, or use the subcommands directly.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// config init writes the file LoadConfig would read
		if cmd.Name() == "init" && cmd.Parent().Name() == "config" {
			return nil
		}

		var err error
		cfg, v, err = LoadConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}

		logger, levelVar, err = NewLogger(cfg.Logging)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/startpage/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
}

// withApp opens the App for the duration of a command.
func withApp(run func(ctx context.Context, app *App, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		app, err := NewApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := app.Close(); err != nil {
				logger.Error("failed to close app", "error", err)
			}
		}()

		return run(ctx, app, cmd, args)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("startpage version %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: withApp(func(ctx context.Context, app *App, cmd *cobra.Command, args []string) error {
		if err := app.InstallCache(ctx); err != nil {
			return err
		}

		watchConfig()

		router := NewRouter(NewHandlers(app), cfg, logger)

		srv := &http.Server{
			Addr:         ":" + cfg.Server.Port,
			Handler:      router,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: cfg.HTTP.Timeout + 10*time.Second,
			IdleTimeout:  60 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("server starting", "port", cfg.Server.Port, "store", cfg.Store.Backend, "auth", cfg.AuthEnabled())
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()

		// Graceful shutdown on SIGINT/SIGTERM
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case err := <-errCh:
			return fmt.Errorf("server failed: %w", err)
		case sig := <-quit:
			logger.Info("shutting down", "signal", sig.String())
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}

		logger.Info("server stopped")
		return nil
	}),
}

// watchConfig reloads the log level when the config file changes. Other
// settings need a restart.
func watchConfig() {
	if v == nil || v.ConfigFileUsed() == "" {
		return
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		logger.Info("config file changed", "name", e.Name, "op", e.Op.String())

		var reloaded Config
		if err := v.Unmarshal(&reloaded); err != nil {
			logger.Error("failed to reload config", "error", err)
			return
		}

		level := reloaded.Logging.Level
		if logLevel != "" {
			level = logLevel
		}
		levelVar.Set(parseLogLevel(level))
		logger.Info("log level reloaded", "level", levelVar.Level().String())
	})
	v.WatchConfig()
}
