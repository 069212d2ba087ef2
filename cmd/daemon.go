package cmd

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marcus/till/internal/connectivity"
	tillsync "github.com/marcus/till/internal/sync"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	Short:   "Watch connectivity and keep the outbox drained",
	GroupID: "sync",
	Long: `Runs in the foreground until interrupted. The backend is probed every
sync.probe_interval; the outbox drains whenever it comes back online and every
sync.interval while it stays online.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var w io.Writer = os.Stderr
		if cfg.Log.File != "" {
			lj := rotatingLog(cfg.Log.File)
			defer lj.Close()
			w = lj
		}
		logger := slog.New(newLogHandler(cfg.Log, w))
		slog.SetDefault(logger)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		client, err := newClient(ctx, store)
		if err != nil {
			return err
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())

		var engine *tillsync.Engine
		monitor := connectivity.New(client, connectivity.Options{
			ProbeInterval: cfg.Sync.ProbeInterval,
			SyncInterval:  cfg.Sync.Interval,
			Trigger:       func(ctx context.Context) { engine.Trigger(ctx) },
			Logger:        logger,
		})
		engine = newEngine(store, client, monitor.IsOnline, reg)
		defer engine.OnStatus(func(s tillsync.Status) {
			logger.Info("sync status", "status", s)
		})()

		if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
			srv := &http.Server{
				Addr:              addr,
				Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
				ReadHeaderTimeout: 5 * time.Second,
			}
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("metrics server", "err", err)
				}
			}()
			defer srv.Close()
			logger.Info("serving metrics", "addr", addr)
		}

		logger.Info("daemon started", "backend", cfg.Sync.URL, "db", cfg.DB.Path)
		monitor.Run(ctx)
		logger.Info("daemon stopped")
		return nil
	},
}

func init() {
	daemonCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9464")
	rootCmd.AddCommand(daemonCmd)
}
