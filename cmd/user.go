package cmd

import (
	"context"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/marcus/till/internal/models"
	"github.com/marcus/till/internal/output"
	"github.com/marcus/till/internal/pos"
	"github.com/spf13/cobra"
)

var userCmd = &cobra.Command{
	Use:     "user",
	Aliases: []string{"users"},
	Short:   "Manage cashier accounts",
	GroupID: "people",
}

// actingUser logs in with --as, if given. Without it the command runs as the
// device owner.
func actingUser(ctx context.Context, cmd *cobra.Command, svc *pos.Service) (*models.User, error) {
	pin, _ := cmd.Flags().GetString("as")
	if pin == "" {
		return nil, nil
	}
	return svc.Login(ctx, pin)
}

var userAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		role, _ := cmd.Flags().GetString("role")
		pin, _ := cmd.Flags().GetString("pin")
		if pin == "" {
			err := huh.NewInput().
				Title("PIN for " + args[0]).
				EchoMode(huh.EchoModePassword).
				CharLimit(4).
				Value(&pin).
				Run()
			if err != nil {
				return err
			}
		}
		u := &models.User{Name: args[0], PIN: pin, Role: models.Role(role)}
		return withService(func(svc *pos.Service) error {
			actor, err := actingUser(cmd.Context(), cmd, svc)
			if err != nil {
				return err
			}
			if err := svc.SaveUser(cmd.Context(), actor, u); err != nil {
				return err
			}
			output.Success("added %s #%d %s", u.Role, u.LocalKey, u.Name)
			return nil
		})
	},
}

var userListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List users",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(svc *pos.Service) error {
			users, err := svc.Users(cmd.Context())
			if err != nil {
				return err
			}
			for i := range users {
				users[i].PIN = ""
			}
			if jsonOutput(cmd) {
				return output.JSON(users)
			}
			for _, u := range users {
				fmt.Printf("%5d  %-24s %s\n", u.LocalKey, output.Truncate(u.Name, 24), output.Subtle(string(u.Role)))
			}
			return nil
		})
	},
}

var userDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := parseKey(args[0])
		if err != nil {
			return err
		}
		return withService(func(svc *pos.Service) error {
			actor, err := actingUser(cmd.Context(), cmd, svc)
			if err != nil {
				return err
			}
			if err := svc.DeleteUser(cmd.Context(), actor, key); err != nil {
				return err
			}
			output.Success("deleted user #%d", key)
			return nil
		})
	},
}

func init() {
	userAddCmd.Flags().String("pin", "", "4-digit PIN (prompted when omitted)")
	userAddCmd.Flags().String("role", string(models.RoleCashier), "owner, manager or cashier")
	for _, c := range []*cobra.Command{userAddCmd, userDeleteCmd} {
		c.Flags().String("as", "", "PIN of the user making the change")
	}

	userCmd.AddCommand(userAddCmd, userListCmd, userDeleteCmd)
	rootCmd.AddCommand(userCmd)
}
