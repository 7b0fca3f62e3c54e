// ABOUTME: Root Cobra command and global flags
// ABOUTME: Loads config, builds the logger and wires store, TT-RSS client, connectivity monitor and coordinator

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/harper/ttcache/internal/config"
	"github.com/harper/ttcache/internal/metrics"
	"github.com/harper/ttcache/internal/netstate"
	"github.com/harper/ttcache/internal/storage"
	ttsync "github.com/harper/ttcache/internal/sync"
	"github.com/harper/ttcache/internal/ttrss"
)

// skipCache marks commands that run without opening the cache.
const skipCache = "skip-cache"

var (
	configPath  string
	dbPath      string
	offlineFlag bool
	logLevel    string

	cfg     *config.Config
	logger  *slog.Logger
	store   *storage.SQLiteStore
	monitor *netstate.Monitor
	mets    *metrics.Metrics
	coord   *ttsync.Coordinator
)

var rootCmd = &cobra.Command{
	Use:   "ttcache",
	Short: "Offline-first Tiny Tiny RSS client",
	Long: `
████████╗████████╗ ██████╗ █████╗  ██████╗██╗  ██╗███████╗
╚══██╔══╝╚══██╔══╝██╔════╝██╔══██╗██╔════╝██║  ██║██╔════╝
   ██║      ██║   ██║     ███████║██║     ███████║█████╗
   ██║      ██║   ██║     ██╔══██║██║     ██╔══██║██╔══╝
   ██║      ██║   ╚██████╗██║  ██║╚██████╗██║  ██║███████╗
   ╚═╝      ╚═╝    ╚═════╝╚═╝  ╚═╝ ╚═════╝╚═╝  ╚═╝╚══════╝

Offline-first client for a Tiny Tiny RSS server.

Reads are served from a local cache and refreshed when stale. Read, star,
publish and note changes are applied locally and delivered to the server
when it is reachable.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !needsCache(cmd) {
			return nil
		}
		if err := openCache(cmd.Context()); err != nil {
			_ = closeCache()
			return err
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeCache()
	},
}

// Execute runs the CLI under ctx.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file, .json or .hcl (default: ~/.config/ttcache/config.json)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database file path (default: <data_dir>/ttcache.db)")
	rootCmd.PersistentFlags().BoolVar(&offlineFlag, "offline", false, "work offline for this run, serving only cached data")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
}

func needsCache(cmd *cobra.Command) bool {
	if cmd.Annotations[skipCache] == "true" || cmd.Name() == "help" {
		return false
	}
	for p := cmd.Parent(); p != nil; p = p.Parent() {
		if p.Name() == "completion" {
			return false
		}
	}
	return true
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFiles(configPath)
	}
	return config.Load()
}

// configSavePath is where setup and offline write. HCL files are never
// rewritten; their edits go to the default JSON file.
func configSavePath() string {
	if configPath != "" && filepath.Ext(configPath) == ".json" {
		return configPath
	}
	return config.GetConfigPath()
}

func openCache(ctx context.Context) error {
	var err error
	cfg, err = loadConfig()
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	logger, err = newLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		return err
	}

	path := dbPath
	if path == "" {
		path = cfg.DBPath()
	}
	store, err = storage.NewSQLiteStore(path)
	if err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}

	client, err := ttrss.New(ttrss.Config{
		ServerURL: cfg.ServerURL,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Timeout:   cfg.HTTPTimeout,
	}, ttrss.WithLogger(logger))
	if err != nil {
		return err
	}

	monitor, err = netstate.New(cfg.ServerURL,
		netstate.WithTimeout(cfg.ConnectTimeout),
		netstate.WithLogger(logger),
		netstate.WorkOffline(cfg.WorkOffline || offlineFlag),
	)
	if err != nil {
		return err
	}

	mets = metrics.New()
	coord, err = ttsync.New(ctx, store, client, monitor,
		ttsync.WithSettings(settingsFromConfig(cfg)),
		ttsync.WithLogger(logger),
		ttsync.WithMetrics(mets),
	)
	if err != nil {
		return fmt.Errorf("failed to start sync: %w", err)
	}
	return nil
}

func closeCache() error {
	if coord != nil {
		coord.Close()
		coord = nil
	}
	if store != nil {
		err := store.Close()
		store = nil
		if err != nil {
			return fmt.Errorf("failed to close database: %w", err)
		}
	}
	return nil
}

func settingsFromConfig(c *config.Config) ttsync.Settings {
	return ttsync.Settings{
		UpdateWindow:    c.UpdateWindow,
		RetainLimit:     c.RetainLimit,
		HeadlineLimit:   c.HeadlineLimit,
		PageSize:        c.PageSize,
		FreshMaxAge:     c.FreshMaxAge,
		PurgeAfter:      c.PurgeAfter,
		CleanupInterval: c.CleanupInterval,
		SyncInterval:    c.SyncInterval,
		Workers:         c.Workers,
		DownloadIcons:   c.DownloadIcons,
	}
}
