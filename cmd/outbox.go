package cmd

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/marcus/till/internal/db"
	"github.com/marcus/till/internal/output"
	"github.com/spf13/cobra"
)

var outboxCmd = &cobra.Command{
	Use:     "outbox",
	Short:   "Inspect and manage queued mutations",
	GroupID: "sync",
}

var outboxListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List queued mutations in send order",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		var entries []db.Entry
		if deadOnly, _ := cmd.Flags().GetBool("dead"); deadOnly {
			entries, err = store.DeadEntries(ctx)
		} else {
			entries, err = store.PendingEntries(ctx)
		}
		if err != nil {
			return err
		}

		if jsonOutput(cmd) {
			return output.JSON(entries)
		}
		if len(entries) == 0 {
			fmt.Println("outbox is empty")
			return nil
		}
		width := output.TerminalWidth(100)
		for _, e := range entries {
			fmt.Println(output.OutboxLine(e.Sequence, e.Action.String(), e.LocalKey, e.Attempts, e.LastError, e.Dead(), width))
		}
		return nil
	},
}

var outboxRequeueCmd = &cobra.Command{
	Use:   "requeue",
	Short: "Return dead-lettered mutations to the queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.RequeueDead(cmd.Context())
		if err != nil {
			return err
		}
		output.Success("requeued %d entries", n)
		return nil
	},
}

var outboxPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Discard dead-lettered mutations",
	Long: `Discards dead-lettered mutations. Their changes stay in the local store
but are never sent to the backend.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ok, err := confirm(cmd, "Discard all dead-lettered mutations?")
		if err != nil || !ok {
			return err
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.PurgeDead(cmd.Context())
		if err != nil {
			return err
		}
		output.Success("purged %d entries", n)
		return nil
	},
}

// confirm asks a yes/no question unless --yes was given.
func confirm(cmd *cobra.Command, title string) (bool, error) {
	if yes, _ := cmd.Flags().GetBool("yes"); yes {
		return true, nil
	}
	var ok bool
	err := huh.NewConfirm().
		Title(title).
		Affirmative("Yes").
		Negative("No").
		Value(&ok).
		Run()
	if err != nil {
		return false, fmt.Errorf("confirm: %w", err)
	}
	if !ok {
		fmt.Println("aborted")
	}
	return ok, nil
}

func init() {
	outboxListCmd.Flags().Bool("dead", false, "list only dead-lettered entries")
	outboxPurgeCmd.Flags().BoolP("yes", "y", false, "skip confirmation")

	outboxCmd.AddCommand(outboxListCmd, outboxRequeueCmd, outboxPurgeCmd)
	rootCmd.AddCommand(outboxCmd)
}
