// Package main provides the entry point for the animcache CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/animcache/internal/cache"
	"github.com/dgnsrekt/animcache/internal/telemetry"
	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile   string
	debug        bool
	storeBackend string
	storePath    string

	// envCfg holds settings that are only read from the environment.
	envCfg Env

	shutdownTracing telemetry.ShutdownFunc

	rootCmd = &cobra.Command{
		Use:   "animcache",
		Short: "Persistent cache for avatar animation clips",
		Long: paragraph(
			fmt.Sprintf("\nDownload animation clips once and %s across sessions.", keyword("reuse them")),
		),
		SilenceErrors: false,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
	}
)

// Env contains settings read from environment variables only.
type Env struct {
	OTelEndpoint string `env:"ANIMCACHE_OTEL_ENDPOINT"`
	NoColor      bool   `env:"NO_COLOR"`
}

func validateOptions(cmd *cobra.Command) error {
	if f := cmd.Flag("config"); f != nil && f.Changed {
		if err := loadConfigFile(configFile); err != nil {
			return err
		}
	}

	debug = viper.GetBool("debug")
	if debug {
		log.SetLevel(log.DebugLevel)
	} else if lvl := viper.GetString("log.level"); lvl != "" {
		level, err := log.ParseLevel(lvl)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", lvl, err)
		}
		log.SetLevel(level)
	}

	if err := validateConfig(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// Plain output when stdout is not a terminal or NO_COLOR is set.
	if envCfg.NoColor || !term.IsTerminal(int(os.Stdout.Fd())) {
		lipgloss.SetColorProfile(termenv.Ascii)
	}

	endpoint := viper.GetString("otel.endpoint")
	if endpoint == "" {
		endpoint = envCfg.OTelEndpoint
	}
	shutdown, err := telemetry.Setup(cmd.Context(), "animcache", endpoint)
	if err != nil {
		log.Warn("Could not set up tracing", "error", err)
	}
	shutdownTracing = shutdown
	return nil
}

// loadConfigFile reads the file given with --config in place of the one
// found in the default places, writing the default config there first if
// it does not exist yet.
func loadConfigFile(path string) error {
	path, err := homedir.Expand(path)
	if err != nil {
		return fmt.Errorf("unable to expand config path: %w", err)
	}
	configFile = path
	if err := ensureConfigFile(); err != nil {
		return err
	}

	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("unable to read config file %s: %w", path, err)
	}
	log.Debug("Using configuration file", "path", path)
	return nil
}

// validateConfig validates cache and loader configuration values
func validateConfig() error {
	switch cache.BackendKind(strings.ToLower(viper.GetString("store.backend"))) {
	case cache.BackendSQLite, cache.BackendDisk, cache.BackendMemory:
	default:
		return fmt.Errorf("store backend must be one of sqlite, disk or memory, got %q", viper.GetString("store.backend"))
	}

	if rpm := viper.GetInt("loader.requests_per_minute"); rpm < 0 || rpm > 6000 {
		return fmt.Errorf("loader requests_per_minute must be between 0 and 6000, got %d", rpm)
	}

	if maxSize := viper.GetInt("loader.max_size_mb"); maxSize < 0 || maxSize > 4096 {
		return fmt.Errorf("loader max_size_mb must be between 0 and 4096 MB, got %d", maxSize)
	}

	if timeout := viper.GetDuration("loader.timeout"); timeout < 0 {
		return fmt.Errorf("loader timeout must not be negative, got %s", timeout)
	}

	if c := viper.GetInt("prefetch.concurrency"); c < 1 || c > 64 {
		return fmt.Errorf("prefetch concurrency must be between 1 and 64, got %d", c)
	}

	if base := viper.GetString("loader.base_url"); base != "" {
		if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
			return fmt.Errorf("loader base_url must be an http(s) URL, got %q", base)
		}
	}

	return nil
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err = rootCmd.ExecuteContext(ctx)
	stop()
	flushTracing()
	_ = closer()
	if err != nil {
		os.Exit(1)
	}
}

func flushTracing() {
	if shutdownTracing == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracing(ctx); err != nil {
		log.Warn("Could not flush traces", "error", err)
	}
}

func init() {
	if err := env.Parse(&envCfg); err != nil {
		log.Warn("Could not parse environment", "error", err)
	}

	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&storeBackend, "store", "", "cache backend (sqlite, disk or memory)")
	rootCmd.PersistentFlags().StringVar(&storePath, "store-path", "", "cache database file or directory")

	// Config bindings
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("store.backend", rootCmd.PersistentFlags().Lookup("store"))
	_ = viper.BindPFlag("store.path", rootCmd.PersistentFlags().Lookup("store-path"))

	setDefaults()

	rootCmd.AddCommand(configCmd, manCmd, fetchCmd, statsCmd, lsCmd, clearCmd, prefetchCmd, exportCmd, importCmd)
}

func setDefaults() {
	viper.SetDefault("store.backend", string(cache.BackendSQLite))
	viper.SetDefault("store.path", "")
	viper.SetDefault("loader.base_url", "")
	viper.SetDefault("loader.requests_per_minute", 0)
	viper.SetDefault("loader.timeout", "0s")
	viper.SetDefault("loader.max_size_mb", 0)
	viper.SetDefault("prefetch.concurrency", 4)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.file", "")
	viper.SetDefault("otel.endpoint", "")
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "animcache")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "animcache")}, dirs...)
	}

	if c := os.Getenv("ANIMCACHE_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("animcache")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("animcache")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], "animcache.yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
