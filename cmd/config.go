package cmd

import (
	"fmt"
	"strings"

	"github.com/marcus/till/internal/output"
	"github.com/marcus/till/internal/syncconfig"
	"github.com/spf13/cobra"
)

// maskSecret hides all but the last four characters of an API key.
func maskSecret(key, val string) string {
	if key != "sync.api_key" || val == "" {
		return val
	}
	if len(val) <= 4 {
		return strings.Repeat("*", len(val))
	}
	return strings.Repeat("*", len(val)-4) + val[len(val)-4:]
}

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Manage till configuration",
	GroupID: "system",
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]
		if err := syncconfig.Set(key, val); err != nil {
			output.Error("%v", err)
			if strings.HasPrefix(err.Error(), "unknown config key") {
				fmt.Println("Valid keys:", strings.Join(syncconfig.Keys, ", "))
			}
			return err
		}
		output.Success("set %s = %s", key, maskSecret(key, val))
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a config value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		val, err := syncconfig.Get(args[0])
		if err != nil {
			output.Error("%v", err)
			fmt.Println("Valid keys:", strings.Join(syncconfig.Keys, ", "))
			return err
		}
		fmt.Println(val)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all config values",
	RunE: func(cmd *cobra.Command, args []string) error {
		values := make(map[string]string, len(syncconfig.Keys))
		for _, key := range syncconfig.Keys {
			val, err := syncconfig.Get(key)
			if err != nil {
				return err
			}
			values[key] = maskSecret(key, val)
		}
		if jsonOutput(cmd) {
			return output.JSON(values)
		}
		for _, key := range syncconfig.Keys {
			fmt.Printf("%-20s %s\n", key, values[key])
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configSetCmd, configGetCmd, configListCmd)
	rootCmd.AddCommand(configCmd)
}
