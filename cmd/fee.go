package cmd

import (
	"fmt"

	"github.com/marcus/till/internal/models"
	"github.com/marcus/till/internal/output"
	"github.com/marcus/till/internal/pos"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var feeCmd = &cobra.Command{
	Use:     "fee",
	Aliases: []string{"fees"},
	Short:   "Manage taxes and service charges",
	GroupID: "catalog",
}

var feeValue decimal.Decimal

var feeAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a fee (percentage unless --fixed)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f := &models.Fee{Name: args[0], Value: feeValue, Type: models.FeePercentage}
		if fixed, _ := cmd.Flags().GetBool("fixed"); fixed {
			f.Type = models.FeeFixed
		}
		f.IsDefault, _ = cmd.Flags().GetBool("default")
		return withService(func(svc *pos.Service) error {
			if err := svc.SaveFee(cmd.Context(), f); err != nil {
				return err
			}
			kind := "fee"
			if f.IsTax {
				kind = "tax"
			}
			output.Success("added %s #%d %s", kind, f.LocalKey, f.Name)
			return nil
		})
	},
}

var feeListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List fees",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(svc *pos.Service) error {
			fees, err := svc.Fees(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return output.JSON(fees)
			}
			for _, f := range fees {
				value := f.Value.String() + "%"
				if f.Type == models.FeeFixed {
					value = output.FormatMoney(f.Value)
				}
				var tags string
				if f.IsTax {
					tags += " tax"
				}
				if f.IsDefault {
					tags += " default"
				}
				fmt.Printf("%5d  %-20s %14s %s\n", f.LocalKey, f.Name, value, output.Subtle(tags))
			}
			return nil
		})
	},
}

var feeDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a fee",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := parseKey(args[0])
		if err != nil {
			return err
		}
		return withService(func(svc *pos.Service) error {
			if err := svc.DeleteFee(cmd.Context(), key); err != nil {
				return err
			}
			output.Success("deleted fee #%d", key)
			return nil
		})
	},
}

func init() {
	feeAddCmd.Flags().Var(newMoneyValue(&feeValue), "value", "percentage or fixed amount")
	feeAddCmd.Flags().Bool("fixed", false, "charge a fixed amount instead of a percentage")
	feeAddCmd.Flags().Bool("default", false, "charge on every sale by default")

	feeCmd.AddCommand(feeAddCmd, feeListCmd, feeDeleteCmd)
	rootCmd.AddCommand(feeCmd)
}
