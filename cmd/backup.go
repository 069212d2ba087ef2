package cmd

import (
	"bytes"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"

	"github.com/charmbracelet/huh"
	"github.com/marcus/till/internal/crypto"
	"github.com/marcus/till/internal/output"
	"github.com/marcus/till/internal/pos"
	"github.com/spf13/cobra"
)

// passphrase returns the backup passphrase from --passphrase or
// TILL_BACKUP_PASSPHRASE, prompting when required and neither is set.
func passphrase(cmd *cobra.Command, required bool) (string, error) {
	if p, _ := cmd.Flags().GetString("passphrase"); p != "" {
		return p, nil
	}
	if p := os.Getenv("TILL_BACKUP_PASSPHRASE"); p != "" {
		return p, nil
	}
	if !required {
		return "", nil
	}
	var p string
	err := huh.NewInput().
		Title("Backup passphrase").
		EchoMode(huh.EchoModePassword).
		Value(&p).
		Run()
	return p, err
}

var exportCmd = &cobra.Command{
	Use:     "export [file]",
	Short:   "Write a full backup as JSON (stdout when no file is given)",
	GroupID: "data",
	Args:    cobra.MaximumNArgs(1),
	Long: `Writes every collection as JSON. With --passphrase (or
TILL_BACKUP_PASSPHRASE) the file is encrypted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var w io.Writer = os.Stdout
		if len(args) == 1 {
			f, err := os.Create(args[0])
			if err != nil {
				return fmt.Errorf("create %s: %w", args[0], err)
			}
			defer f.Close()
			w = f
		}
		pass, err := passphrase(cmd, false)
		if err != nil {
			return err
		}
		return withService(func(svc *pos.Service) error {
			var buf bytes.Buffer
			if err := svc.Export(cmd.Context(), &buf); err != nil {
				return err
			}
			data := buf.Bytes()
			if pass != "" {
				if data, err = crypto.Seal(pass, data); err != nil {
					return err
				}
			}
			if _, err := w.Write(data); err != nil {
				return fmt.Errorf("write backup: %w", err)
			}
			if len(args) == 1 {
				output.Success("exported to %s", args[0])
			}
			return nil
		})
	},
}

var importCmd = &cobra.Command{
	Use:     "import <file>",
	Short:   "Replace local data with a backup",
	GroupID: "data",
	Long: `Replaces every collection present in the backup file. Collections the
file does not mention are kept. Queued mutations are discarded.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read %s: %w", args[0], err)
		}
		if crypto.IsSealed(data) {
			pass, err := passphrase(cmd, true)
			if err != nil {
				return err
			}
			if data, err = crypto.Open(pass, data); err != nil {
				return err
			}
		}

		ok, err := confirm(cmd, "Replace local data with "+args[0]+"?")
		if err != nil || !ok {
			return err
		}

		return withService(func(svc *pos.Service) error {
			summary, err := svc.Import(cmd.Context(), bytes.NewReader(data))
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return output.JSON(summary)
			}
			for _, c := range slices.Sorted(maps.Keys(summary)) {
				fmt.Printf("  %-14s %d\n", c, summary[c])
			}
			output.Success("import complete")
			return nil
		})
	},
}

var clearCmd = &cobra.Command{
	Use:     "clear",
	Short:   "Delete all local data, including queued mutations",
	GroupID: "data",
	RunE: func(cmd *cobra.Command, args []string) error {
		ok, err := confirm(cmd, "Delete ALL local data? Unsynced changes are lost.")
		if err != nil || !ok {
			return err
		}
		return withService(func(svc *pos.Service) error {
			if err := svc.ClearAll(cmd.Context()); err != nil {
				return err
			}
			output.Success("all local data deleted")
			return nil
		})
	},
}

func init() {
	exportCmd.Flags().String("passphrase", "", "encrypt the backup with this passphrase")
	importCmd.Flags().String("passphrase", "", "passphrase of an encrypted backup")
	importCmd.Flags().BoolP("yes", "y", false, "skip confirmation")
	clearCmd.Flags().BoolP("yes", "y", false, "skip confirmation")
	rootCmd.AddCommand(exportCmd, importCmd, clearCmd)
}
