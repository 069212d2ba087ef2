package cmd

import (
	"fmt"

	"github.com/marcus/till/internal/output"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Show sync status, queued mutations and recent conflicts",
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		state, err := store.GetSyncState(ctx)
		if err != nil {
			return err
		}
		pending, err := store.CountPending(ctx)
		if err != nil {
			return err
		}
		dead, err := store.DeadEntries(ctx)
		if err != nil {
			return err
		}
		deviceID, err := store.DeviceID(ctx)
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("conflicts")
		conflicts, err := store.RecentConflicts(ctx, limit)
		if err != nil {
			return err
		}

		status := state.LastStatus
		if status == "" {
			status = "idle"
		}

		if jsonOutput(cmd) {
			return output.JSON(map[string]any{
				"status":       status,
				"last_sync_at": state.LastSyncAt,
				"pending":      pending,
				"dead":         len(dead),
				"device_id":    deviceID,
				"backend":      cfg.Sync.URL,
				"conflicts":    conflicts,
			})
		}

		fmt.Println(output.SyncBadge(status, pending))
		if state.LastSyncAt != nil {
			fmt.Printf("  last sync   %s\n", output.FormatTimeAgo(*state.LastSyncAt))
		} else {
			fmt.Println("  last sync   never")
		}
		fmt.Printf("  backend     %s\n", cfg.Sync.URL)
		fmt.Printf("  device      %s\n", deviceID)
		if len(dead) > 0 {
			output.Warning("%d dead-lettered entries; retry with 'till outbox requeue'", len(dead))
		}

		if len(conflicts) > 0 {
			fmt.Print(output.SectionHeader("recent conflicts"))
			for _, c := range conflicts {
				fmt.Printf("  %s  %-12s #%-5d %s\n", output.FormatTimeAgo(c.ResolvedAt), c.Collection, c.LocalKey,
					output.Subtle(c.Resolution))
			}
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().Int("conflicts", 5, "number of recent conflicts to show")
	rootCmd.AddCommand(statusCmd)
}
