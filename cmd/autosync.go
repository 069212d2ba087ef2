package cmd

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// mutatingCommands lists commands that modify local data and should trigger
// auto-sync, keyed by their path below the root command.
var mutatingCommands = map[string]bool{
	"sale":                 true,
	"sale return":          true,
	"sale resume":          true,
	"product add":          true,
	"product update":       true,
	"product delete":       true,
	"product stock":        true,
	"category add":         true,
	"category delete":      true,
	"contact add":          true,
	"contact update":       true,
	"contact delete":       true,
	"contact reset-points": true,
	"ledger add":           true,
	"ledger due":           true,
	"ledger delete":        true,
	"fee add":              true,
	"fee delete":           true,
	"user add":             true,
	"user delete":          true,
	"outbox requeue":       true,
}

// commandKey returns the command's path without the root name,
// e.g. "product add".
func commandKey(cmd *cobra.Command) string {
	path := cmd.CommandPath()
	if _, rest, ok := strings.Cut(path, " "); ok {
		return rest
	}
	return ""
}

// isMutatingCommand checks if the given command triggers auto-sync.
func isMutatingCommand(cmd *cobra.Command) bool {
	return mutatingCommands[commandKey(cmd)]
}

// AutoSyncEnabled returns true if auto-sync is enabled.
// Checks TILL_AUTO_SYNC env var, then sync.auto from config.
func AutoSyncEnabled() bool {
	if v := os.Getenv("TILL_AUTO_SYNC"); v != "" {
		return v == "1" || v == "true"
	}
	if cfg != nil {
		return cfg.Sync.Auto
	}
	return true
}

// autoSyncAfterMutation runs a quick drain after a mutating command completes.
// Runs synchronously but with a short timeout. Errors are logged, not returned.
func autoSyncAfterMutation(ctx context.Context) {
	if !AutoSyncEnabled() || cfg == nil || cfg.Sync.URL == "" {
		return
	}

	store, err := openStore()
	if err != nil {
		slog.Debug("autosync: open store", "err", err)
		return
	}
	defer store.Close()

	n, err := store.CountPending(ctx)
	if err != nil || n == 0 {
		return
	}

	client, err := newClient(ctx, store)
	if err != nil {
		slog.Debug("autosync: client", "err", err)
		return
	}
	client.HTTP.Timeout = 5 * time.Second // short timeout for auto-sync

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	monitor := checkBackend(ctx, client)
	if !monitor.IsOnline() {
		slog.Debug("autosync: backend unreachable, outbox left queued", "pending", n)
		return
	}

	engine := newEngine(store, client, monitor.IsOnline, nil)
	res, err := engine.Sync(ctx)
	if err != nil {
		slog.Debug("autosync: drain", "err", err)
		return
	}
	slog.Debug("autosync: drained", "sent", res.Sent, "remaining", res.Remaining)
}
