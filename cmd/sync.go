package cmd

import (
	"context"
	"fmt"

	"github.com/marcus/till/internal/connectivity"
	"github.com/marcus/till/internal/db"
	"github.com/marcus/till/internal/output"
	tillsync "github.com/marcus/till/internal/sync"
	"github.com/marcus/till/internal/syncclient"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// newClient creates a backend client carrying this device's ID.
func newClient(ctx context.Context, store *db.DB) (*syncclient.Client, error) {
	deviceID, err := store.DeviceID(ctx)
	if err != nil {
		return nil, fmt.Errorf("device id: %w", err)
	}
	return syncclient.New(cfg.Sync.URL, cfg.Sync.APIKey, deviceID), nil
}

// checkBackend checks the backend once. The returned monitor holds the
// result for the engine's online check.
func checkBackend(ctx context.Context, client *syncclient.Client) *connectivity.Monitor {
	monitor := connectivity.New(client, connectivity.Options{})
	monitor.Probe(ctx)
	return monitor
}

// newEngine creates a sync engine tuned from the loaded config. reg may be
// nil.
func newEngine(store *db.DB, sender tillsync.Sender, online func() bool, reg prometheus.Registerer) *tillsync.Engine {
	return tillsync.New(store, sender, tillsync.Config{
		RetryCeiling: cfg.Sync.RetryCeiling,
		EntryTimeout: cfg.Sync.EntryTimeout,
		Online:       online,
	}, tillsync.NewMetrics(reg), nil)
}

func printResult(res tillsync.Result, pending int) {
	fmt.Println(output.SyncBadge(string(res.Status), pending))
	fmt.Printf("  sent %d", res.Sent)
	if res.Conflicts > 0 || res.Forced > 0 {
		fmt.Printf(", conflicts %d remote / %d local", res.Conflicts, res.Forced)
	}
	if res.Dropped > 0 {
		fmt.Printf(", dropped %d", res.Dropped)
	}
	fmt.Println()
	if res.DeadLettered > 0 {
		output.Warning("%d entries dead-lettered; see 'till outbox list --dead'", res.DeadLettered)
	}
}

var syncCmd = &cobra.Command{
	Use:     "sync",
	Short:   "Drain the outbox to the backend once",
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		client, err := newClient(ctx, store)
		if err != nil {
			return err
		}
		monitor := checkBackend(ctx, client)
		if !monitor.IsOnline() {
			output.Warning("backend unreachable at %s; outbox left queued", cfg.Sync.URL)
		}

		res, err := newEngine(store, client, monitor.IsOnline, nil).Sync(ctx)
		if jsonOutput(cmd) {
			if jerr := output.JSON(res); jerr != nil {
				return jerr
			}
		} else {
			printResult(res, res.Remaining)
		}
		if err != nil {
			output.Error("sync stopped at entry %d: %v", res.FailedSequence, err)
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
