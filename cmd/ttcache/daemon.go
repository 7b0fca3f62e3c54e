// ABOUTME: Daemon command running the periodic sync loop until interrupted
// ABOUTME: Watches connectivity, pushes on reconnect and optionally serves Prometheus metrics

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/harper/ttcache/internal/config"
	ttsync "github.com/harper/ttcache/internal/sync"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Keep the cache in sync in the background",
	Long: `Run the sync loop until interrupted: every sync_interval queued changes are
pushed, stale data refreshed and old articles cleaned up. Local changes and
the server coming back online trigger an early push.

With --metrics-addr (or metrics_addr in the config) Prometheus metrics are
served at /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("metrics-addr")
		if addr == "" {
			addr = cfg.MetricsAddr
		}

		coord.OnChange(func(ev ttsync.Event) {
			logger.Debug("cache changed", "kind", ev.Kind, "scope", ev.Scope.String(), "articles", len(ev.ArticleIDs))
		})

		g, ctx := errgroup.WithContext(cmd.Context())
		g.Go(func() error {
			monitor.Watch(ctx, config.DefaultProbeInterval)
			return nil
		})
		if addr != "" {
			srv := newMetricsServer(addr)
			g.Go(func() error {
				logger.Info("serving metrics", "addr", addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("metrics server: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
		}
		g.Go(func() error {
			logger.Info("sync loop started", "interval", cfg.SyncInterval, "server", cfg.ServerURL)
			err := coord.Run(ctx)
			if errors.Is(err, context.Canceled) {
				logger.Info("sync loop stopped")
				return nil
			}
			return err
		})
		return g.Wait()
	},
}

func newMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", mets.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func init() {
	rootCmd.AddCommand(daemonCmd)

	daemonCmd.Flags().String("metrics-addr", "", "address to serve Prometheus metrics on, e.g. :9464")
}
