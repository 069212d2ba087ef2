package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/marcus/till/internal/db"
	"github.com/marcus/till/internal/pos"
	"github.com/marcus/till/internal/syncconfig"
	"github.com/spf13/cobra"
)

var (
	version string

	// loaded in PersistentPreRunE
	cfg *syncconfig.Config
)

// SetVersion sets the version string
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

var rootCmd = &cobra.Command{
	Use:   "till",
	Short: "Offline-first point-of-sale core",
	Long: `till - a point-of-sale that keeps working without a network.

Every change is written to a local store and queued; the queue drains to the
backend whenever it is reachable.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := syncconfig.Load()
		if err != nil {
			return err
		}
		if p, _ := cmd.Flags().GetString("db"); p != "" {
			c.DB.Path = p
		}
		cfg = c
		if cmd.Name() != "daemon" {
			slog.SetDefault(slog.New(newLogHandler(cfg.Log, os.Stderr)))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if isMutatingCommand(cmd) {
			autoSyncAfterMutation(cmd.Context())
		}
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// nameWithAliases returns "name, alias1, alias2" if aliases exist, else just "name"
func nameWithAliases(cmd *cobra.Command) string {
	if len(cmd.Aliases) > 0 {
		return cmd.Name() + ", " + strings.Join(cmd.Aliases, ", ")
	}
	return cmd.Name()
}

func init() {
	cobra.AddTemplateFunc("nameWithAliases", nameWithAliases)

	rootCmd.PersistentFlags().String("db", "", "path to the local store (default: db.path from config)")
	rootCmd.PersistentFlags().Bool("json", false, "print JSON instead of text")

	rootCmd.AddGroup(
		&cobra.Group{ID: "sales", Title: "Sales Commands:"},
		&cobra.Group{ID: "catalog", Title: "Catalog Commands:"},
		&cobra.Group{ID: "people", Title: "Contact Commands:"},
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "data", Title: "Data Commands:"},
		&cobra.Group{ID: "system", Title: "System Commands:"},
	)

	rootCmd.SetHelpCommandGroupID("system")
	rootCmd.SetCompletionCommandGroupID("system")
}

// openStore opens the local store named by the loaded config.
func openStore() (*db.DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config not loaded")
	}
	store, err := db.Open(cfg.DB.Path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", cfg.DB.Path, err)
	}
	return store, nil
}

// withService opens the store, runs fn with a feature service over it and
// closes the store afterwards.
func withService(fn func(svc *pos.Service) error) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(pos.New(store))
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}
