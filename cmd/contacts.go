package cmd

import (
	"fmt"

	"github.com/marcus/till/internal/models"
	"github.com/marcus/till/internal/output"
	"github.com/marcus/till/internal/pos"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var contactCmd = &cobra.Command{
	Use:     "contact",
	Aliases: []string{"contacts"},
	Short:   "Manage customers and suppliers",
	GroupID: "people",
}

func applyContactFlags(cmd *cobra.Command, c *models.Contact) {
	f := cmd.Flags()
	for name, dst := range map[string]*string{
		"name":    &c.Name,
		"phone":   &c.Phone,
		"barcode": &c.Barcode,
		"address": &c.Address,
		"notes":   &c.Notes,
	} {
		if f.Changed(name) {
			*dst, _ = f.GetString(name)
		}
	}
	if f.Changed("supplier") {
		if sup, _ := f.GetBool("supplier"); sup {
			c.Type = models.ContactSupplier
		} else {
			c.Type = models.ContactCustomer
		}
	}
}

func addContactFlags(cmd *cobra.Command) {
	cmd.Flags().String("name", "", "contact name")
	cmd.Flags().String("phone", "", "phone number")
	cmd.Flags().String("barcode", "", "member card barcode")
	cmd.Flags().String("address", "", "address")
	cmd.Flags().String("notes", "", "notes")
	cmd.Flags().Bool("supplier", false, "contact is a supplier")
}

var contactAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a contact",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := &models.Contact{}
		applyContactFlags(cmd, c)
		return withService(func(svc *pos.Service) error {
			if err := svc.SaveContact(cmd.Context(), c); err != nil {
				return err
			}
			output.Success("added %s #%d %s", c.Type, c.LocalKey, c.Name)
			return nil
		})
	},
}

var contactUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a contact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := parseKey(args[0])
		if err != nil {
			return err
		}
		return withService(func(svc *pos.Service) error {
			c, err := svc.Contact(cmd.Context(), key)
			if err != nil {
				return err
			}
			applyContactFlags(cmd, c)
			if err := svc.SaveContact(cmd.Context(), c); err != nil {
				return err
			}
			output.Success("updated #%d %s", c.LocalKey, c.Name)
			return nil
		})
	},
}

var contactListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List contacts with their balances",
	RunE: func(cmd *cobra.Command, args []string) error {
		typ := models.ContactCustomer
		if sup, _ := cmd.Flags().GetBool("suppliers"); sup {
			typ = models.ContactSupplier
		}
		return withService(func(svc *pos.Service) error {
			contacts, err := svc.Contacts(cmd.Context(), typ)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return output.JSON(contacts)
			}
			if len(contacts) == 0 {
				fmt.Printf("no %ss\n", typ)
				return nil
			}
			for _, c := range contacts {
				fmt.Printf("%5d  %-24s %-14s %14s  %d pts\n", c.LocalKey, output.Truncate(c.Name, 24), c.Phone,
					output.FormatMoney(c.Balance), c.Points)
			}
			return nil
		})
	},
}

var contactDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a contact and its ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := parseKey(args[0])
		if err != nil {
			return err
		}
		ok, err := confirm(cmd, "Delete this contact and all of its ledger entries?")
		if err != nil || !ok {
			return err
		}
		return withService(func(svc *pos.Service) error {
			if err := svc.DeleteContact(cmd.Context(), key); err != nil {
				return err
			}
			output.Success("deleted contact #%d", key)
			return nil
		})
	},
}

var contactResetPointsCmd = &cobra.Command{
	Use:   "reset-points <id>",
	Short: "Reset a customer's loyalty points to zero",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := parseKey(args[0])
		if err != nil {
			return err
		}
		return withService(func(svc *pos.Service) error {
			if err := svc.ResetPoints(cmd.Context(), key); err != nil {
				return err
			}
			output.Success("points reset for #%d", key)
			return nil
		})
	},
}

var ledgerCmd = &cobra.Command{
	Use:     "ledger",
	Short:   "Record debts and payments against contacts",
	GroupID: "people",
}

var (
	ledgerAmount decimal.Decimal
	ledgerDue    string
)

var ledgerAddCmd = &cobra.Command{
	Use:   "add <contact-id>",
	Short: "Add a debit (money owed) or credit (payment) entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		contactID, err := parseKey(args[0])
		if err != nil {
			return err
		}
		typ := models.Debit
		if credit, _ := cmd.Flags().GetBool("credit"); credit {
			typ = models.Credit
		}
		desc, _ := cmd.Flags().GetString("description")
		e := &models.LedgerEntry{
			ContactID:   contactID,
			Amount:      ledgerAmount,
			Type:        typ,
			Description: desc,
		}
		if ledgerDue != "" {
			e.DueDate = &ledgerDue
		}
		return withService(func(svc *pos.Service) error {
			if err := svc.SaveLedgerEntry(cmd.Context(), e); err != nil {
				return err
			}
			output.Success("recorded %s #%d of %s", e.Type, e.LocalKey, output.FormatMoney(e.Amount))
			return nil
		})
	},
}

func printLedger(entries []models.LedgerEntry) {
	for _, e := range entries {
		due := ""
		if e.DueDate != nil {
			due = "due " + *e.DueDate
		}
		fmt.Printf("%5d  %-10s %-6s %14s  %-28s %s\n", e.LocalKey, output.Truncate(e.Date, 10), e.Type,
			output.FormatMoney(e.Amount), output.Truncate(e.Description, 28), output.Subtle(due))
	}
}

var ledgerListCmd = &cobra.Command{
	Use:     "list <contact-id>",
	Aliases: []string{"ls"},
	Short:   "List a contact's ledger and balance",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		contactID, err := parseKey(args[0])
		if err != nil {
			return err
		}
		return withService(func(svc *pos.Service) error {
			entries, err := svc.Ledger(cmd.Context(), contactID)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return output.JSON(entries)
			}
			printLedger(entries)
			fmt.Printf("\nbalance %s\n", output.FormatMoney(models.Balance(entries)))
			return nil
		})
	},
}

var ledgerDueSoonCmd = &cobra.Command{
	Use:   "due-soon",
	Short: "List debts due within three days or overdue",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(svc *pos.Service) error {
			entries, err := svc.DueSoon(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return output.JSON(entries)
			}
			if len(entries) == 0 {
				fmt.Println("nothing due")
				return nil
			}
			printLedger(entries)
			return nil
		})
	},
}

var ledgerDueCmd = &cobra.Command{
	Use:   "due <entry-id> [date]",
	Short: "Set or clear (no date) the due date of a debit",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := parseKey(args[0])
		if err != nil {
			return err
		}
		var due string
		if len(args) == 2 {
			if err := newDateValue(&due).Set(args[1]); err != nil {
				return err
			}
		}
		return withService(func(svc *pos.Service) error {
			if err := svc.SetDueDate(cmd.Context(), key, due); err != nil {
				return err
			}
			if due == "" {
				output.Success("cleared due date of #%d", key)
			} else {
				output.Success("#%d due %s", key, due)
			}
			return nil
		})
	},
}

var ledgerDeleteCmd = &cobra.Command{
	Use:   "delete <entry-id>",
	Short: "Delete a ledger entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := parseKey(args[0])
		if err != nil {
			return err
		}
		return withService(func(svc *pos.Service) error {
			if err := svc.DeleteLedgerEntry(cmd.Context(), key); err != nil {
				return err
			}
			output.Success("deleted ledger entry #%d", key)
			return nil
		})
	},
}

func init() {
	addContactFlags(contactAddCmd)
	addContactFlags(contactUpdateCmd)
	contactListCmd.Flags().Bool("suppliers", false, "list suppliers instead of customers")
	contactDeleteCmd.Flags().BoolP("yes", "y", false, "skip confirmation")

	ledgerAddCmd.Flags().Var(newMoneyValue(&ledgerAmount), "amount", "amount")
	ledgerAddCmd.Flags().String("description", "", "what the entry is for")
	ledgerAddCmd.Flags().Bool("credit", false, "record a payment instead of a debt")
	ledgerAddCmd.Flags().Var(newDateValue(&ledgerDue), "due", "due date of a debit")

	contactCmd.AddCommand(contactAddCmd, contactUpdateCmd, contactListCmd, contactDeleteCmd, contactResetPointsCmd)
	ledgerCmd.AddCommand(ledgerAddCmd, ledgerListCmd, ledgerDueSoonCmd, ledgerDueCmd, ledgerDeleteCmd)
	rootCmd.AddCommand(contactCmd, ledgerCmd)
}
