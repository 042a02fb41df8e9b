package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/pkg/browser"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func init() {
	prefsCmd.AddCommand(prefsGetCmd, prefsSetCmd, prefsResetCmd)
	prefsResetCmd.Flags().Bool("all", false, "reset every preference")

	enginesCmd.AddCommand(enginesListCmd, enginesAddCmd, enginesRemoveCmd, enginesUseCmd, enginesCycleCmd)

	searchCmd.Flags().Bool("open", false, "open the target in the default browser")

	wallpaperCmd.AddCommand(wallpaperShowCmd, wallpaperDailyCmd, wallpaperSetCmd)

	weatherCmd.Flags().Float64("lat", 0, "latitude of the current position")
	weatherCmd.Flags().Float64("lon", 0, "longitude of the current position")
	weatherCmd.Flags().Bool("deny", false, "behave as if location access was denied")
	weatherCmd.MarkFlagsRequiredTogether("lat", "lon")

	cacheCmd.AddCommand(cacheActivateCmd, cacheInstallCmd, cacheStatsCmd)

	configCmd.AddCommand(configInitCmd, configShowCmd, configPathCmd)

	rootCmd.AddCommand(prefsCmd, enginesCmd, searchCmd, wallpaperCmd, weatherCmd, cacheCmd)
}

// printJSON writes v indented to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Read and write preferences",
}

var prefsGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Show one preference, or all of them",
	Args:  cobra.MaximumNArgs(1),
	RunE: withApp(func(ctx context.Context, app *App, cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			settings, err := app.Prefs.Settings(ctx)
			if err != nil {
				return err
			}
			return printJSON(settings)
		}

		value, err := app.Prefs.Value(ctx, args[0])
		if errors.Is(err, ErrPreferenceNotSet) {
			fmt.Printf("%s is not set\n", args[0])
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Println(value)
		return nil
	}),
}

var prefsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Validate and store a preference",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(ctx context.Context, app *App, cmd *cobra.Command, args []string) error {
		if err := app.Prefs.Apply(ctx, args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("%s updated\n", args[0])
		return nil
	}),
}

var prefsResetCmd = &cobra.Command{
	Use:   "reset [key]",
	Short: "Reset a preference to its default",
	Args:  cobra.MaximumNArgs(1),
	RunE: withApp(func(ctx context.Context, app *App, cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		switch {
		case all:
			if err := app.Prefs.ResetAll(ctx); err != nil {
				return err
			}
			fmt.Println("all preferences reset")
			return nil
		case len(args) == 1:
			if err := app.Prefs.Reset(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("%s reset\n", args[0])
			return nil
		}
		return errors.New("give a key or --all")
	}),
}

var enginesCmd = &cobra.Command{
	Use:   "engines",
	Short: "Manage search engines",
}

var enginesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List search engines",
	RunE: withApp(func(ctx context.Context, app *App, cmd *cobra.Command, args []string) error {
		engines, active, err := app.Prefs.SearchEngines(ctx)
		if err != nil {
			return err
		}
		printEngines(engines, active)
		return nil
	}),
}

func printEngines(engines []SearchEngine, active int) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for i, e := range engines {
		marker := " "
		if i == active {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %d\t%s\t%s\n", marker, i, e.Name, e.URLTemplate)
	}
	w.Flush()
}

var enginesAddCmd = &cobra.Command{
	Use:   "add <name> <url-template>",
	Short: "Add a search engine; the template must contain %s",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(ctx context.Context, app *App, cmd *cobra.Command, args []string) error {
		engines, err := app.Prefs.AddSearchEngine(ctx, SearchEngine{Name: args[0], URLTemplate: args[1]})
		if err != nil {
			return err
		}
		_, active, err := app.Prefs.SearchEngines(ctx)
		if err != nil {
			return err
		}
		printEngines(engines, active)
		return nil
	}),
}

var enginesRemoveCmd = &cobra.Command{
	Use:   "remove <index|name>",
	Short: "Remove a search engine",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, app *App, cmd *cobra.Command, args []string) error {
		index, err := engineIndexArg(ctx, app, args[0])
		if err != nil {
			return err
		}
		engines, active, err := app.Prefs.RemoveSearchEngine(ctx, index)
		if err != nil {
			return err
		}
		printEngines(engines, active)
		return nil
	}),
}

var enginesUseCmd = &cobra.Command{
	Use:   "use <index|name>",
	Short: "Select the active search engine",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, app *App, cmd *cobra.Command, args []string) error {
		index, err := engineIndexArg(ctx, app, args[0])
		if err != nil {
			return err
		}
		if err := app.Prefs.SetActiveSearchEngine(ctx, index); err != nil {
			return err
		}
		engines, active, err := app.Prefs.SearchEngines(ctx)
		if err != nil {
			return err
		}
		printEngines(engines, active)
		return nil
	}),
}

var enginesCycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Switch to the next search engine",
	RunE: withApp(func(ctx context.Context, app *App, cmd *cobra.Command, args []string) error {
		engine, index, err := app.Prefs.CycleSearchEngine(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("now using %s (%d)\n", engine.Name, index)
		return nil
	}),
}

// engineIndexArg accepts an index or an engine name (fuzzy matched).
func engineIndexArg(ctx context.Context, app *App, arg string) (int, error) {
	if n, err := strconv.Atoi(arg); err == nil {
		return n, nil
	}
	engines, _, err := app.Prefs.SearchEngines(ctx)
	if err != nil {
		return 0, err
	}
	index, ok := MatchSearchEngine(engines, arg)
	if !ok {
		return 0, fmt.Errorf("no search engine matches %q", arg)
	}
	return index, nil
}

var searchCmd = &cobra.Command{
	Use:   "search <input...>",
	Short: "Show (or open) where search-bar input navigates",
	Args:  cobra.MinimumNArgs(1),
	RunE: withApp(func(ctx context.Context, app *App, cmd *cobra.Command, args []string) error {
		open, _ := cmd.Flags().GetBool("open")

		engine, _, err := app.Prefs.ActiveSearchEngine(ctx)
		if err != nil {
			return err
		}

		target, ok := Dispatch(strings.Join(args, " "), engine)
		if !ok {
			return nil
		}

		fmt.Printf("%s\t%s\n", target.Kind, target.URL)
		if open {
			if err := browser.OpenURL(target.URL); err != nil {
				return fmt.Errorf("opening browser: %w", err)
			}
		}
		return nil
	}),
}

var wallpaperCmd = &cobra.Command{
	Use:   "wallpaper",
	Short: "Manage the background image",
}

var wallpaperShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the wallpaper a page load would use",
	RunE: withApp(func(ctx context.Context, app *App, cmd *cobra.Command, args []string) error {
		st, err := app.Wallpaper.Current(ctx)
		if err != nil {
			return err
		}
		return printWallpaper(st)
	}),
}

var wallpaperDailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "Switch to today's daily image",
	RunE: withApp(func(ctx context.Context, app *App, cmd *cobra.Command, args []string) error {
		return printWallpaper(app.Wallpaper.FetchDaily(ctx))
	}),
}

var wallpaperSetCmd = &cobra.Command{
	Use:   "set <image-file>",
	Short: "Use a local image as the wallpaper",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, app *App, cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading image: %w", err)
		}
		st, err := app.Wallpaper.AcceptLocal(ctx, filepath.Base(args[0]), data)
		if err != nil {
			return err
		}
		return printWallpaper(st)
	}),
}

func printWallpaper(st WallpaperState) error {
	u := st.URL
	if header, _, ok := strings.Cut(u, ","); ok && strings.HasPrefix(u, "data:") {
		u = fmt.Sprintf("%s,... (%s embedded)", header, humanize.Bytes(uint64(len(st.URL))))
	}
	fmt.Printf("source: %s\nurl: %s\n", st.Source, u)
	if st.Attribution != "" {
		fmt.Printf("attribution: %s\n", st.Attribution)
	}
	return nil
}

var weatherCmd = &cobra.Command{
	Use:   "weather [location]",
	Short: "Show current weather, optionally changing the location",
	Long: `Show current weather for the stored location.

With a location argument the location is replaced first. With --lat and
--lon the given position is used as the current location; --deny simulates a
refused location request.`,
	RunE: withApp(func(ctx context.Context, app *App, cmd *cobra.Command, args []string) error {
		var (
			loc LocationResult
			err error
		)

		deny, _ := cmd.Flags().GetBool("deny")
		switch {
		case len(args) > 0:
			loc, err = app.Weather.SetLocation(ctx, strings.Join(args, " "))
		case cmd.Flags().Changed("lat"):
			lat, _ := cmd.Flags().GetFloat64("lat")
			lon, _ := cmd.Flags().GetFloat64("lon")
			loc, err = app.Weather.UseCurrentLocation(ctx, StaticGeolocator{Coords: Coordinates{Latitude: lat, Longitude: lon}})
		case deny:
			loc, err = app.Weather.UseCurrentLocation(ctx, StaticGeolocator{Err: ErrGeolocationDenied})
		default:
			loc, err = app.Weather.ResolveLocation(ctx, serverGeolocator)
		}
		if err != nil {
			return err
		}

		if loc.Notice != "" {
			fmt.Println(loc.Notice)
		}

		st := app.Weather.Conditions(ctx, loc, true)
		if st.Status != WeatherReady {
			return errors.New(st.Error)
		}

		unit, err := app.Prefs.TemperatureUnit(ctx)
		if err != nil {
			return err
		}
		temp, feels := st.Snapshot.Temperature(unit)
		fmt.Printf("%s: %d°%s (feels like %d°%s), %s [%s]\n",
			loc.Label, temp, unit, feels, unit, st.Snapshot.Description, st.Snapshot.Condition)
		return nil
	}),
}

var errOfflineCacheUnavailable = errors.New("offline cache is disabled or locked by another process")

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the offline cache",
}

var cacheActivateCmd = &cobra.Command{
	Use:   "activate",
	Short: "Delete every cache generation except the configured one",
	RunE: withApp(func(ctx context.Context, app *App, cmd *cobra.Command, args []string) error {
		if app.Cache == nil {
			return errOfflineCacheUnavailable
		}
		purged, err := app.Cache.Activate()
		if err != nil {
			return err
		}
		fmt.Printf("active generation %s, purged %d\n", app.Cache.Generation(), len(purged))
		return nil
	}),
}

var cacheInstallCmd = &cobra.Command{
	Use:   "install [url...]",
	Short: "Precache the configured assets (or the given URLs)",
	RunE: withApp(func(ctx context.Context, app *App, cmd *cobra.Command, args []string) error {
		if app.Transport == nil {
			return errOfflineCacheUnavailable
		}
		urls := args
		if len(urls) == 0 {
			urls = app.Config.Offline.Precache
		}
		if err := app.Transport.Precache(ctx, urls); err != nil {
			return err
		}
		fmt.Printf("precached %d URLs\n", len(urls))
		return nil
	}),
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show entries and size per cache generation",
	RunE: withApp(func(ctx context.Context, app *App, cmd *cobra.Command, args []string) error {
		if app.Cache == nil {
			return errOfflineCacheUnavailable
		}
		stats, err := app.Cache.Stats()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "GENERATION\tENTRIES\tSIZE\tCURRENT")
		for _, s := range stats {
			fmt.Fprintf(w, "%s\t%d\t%s\t%t\n", s.Generation, s.Entries, humanize.Bytes(uint64(s.Bytes)), s.Current)
		}
		return w.Flush()
	}),
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := cfgFile
		if configPath == "" {
			configPath = filepath.Join(configDir(), "config.yaml")
		}

		if err := SaveDefaultConfig(configPath); err != nil {
			return err
		}

		fmt.Printf("Default configuration generated at: %s\n", configPath)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := yaml.Marshal(cfg.Redacted())
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(out)
		return err
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Display configuration file path",
	Run: func(cmd *cobra.Command, args []string) {
		if used := v.ConfigFileUsed(); used != "" {
			fmt.Println(used)
		} else {
			fmt.Println(filepath.Join(configDir(), "config.yaml"))
		}
	},
}
