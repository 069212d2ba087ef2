package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/marcus/till/internal/models"
	"github.com/marcus/till/internal/output"
	"github.com/marcus/till/internal/pos"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// itemSpec is one cart line as typed on the command line:
// <id>[/<variation>][:<qty>] or @<barcode>[:<qty>].
type itemSpec struct {
	key       int64
	barcode   string
	variation *int
	qty       int
}

func parseItemSpec(s string) (itemSpec, error) {
	spec := itemSpec{qty: 1}
	ref, qty, hasQty := strings.Cut(s, ":")
	if hasQty {
		n, err := strconv.Atoi(qty)
		if err != nil || n <= 0 {
			return spec, fmt.Errorf("invalid quantity in %q", s)
		}
		spec.qty = n
	}
	if barcode, ok := strings.CutPrefix(ref, "@"); ok {
		if barcode == "" {
			return spec, fmt.Errorf("empty barcode in %q", s)
		}
		spec.barcode = barcode
		return spec, nil
	}
	id, variation, hasVariation := strings.Cut(ref, "/")
	key, err := parseKey(id)
	if err != nil {
		return spec, fmt.Errorf("invalid product in %q", s)
	}
	spec.key = key
	if hasVariation {
		v, err := strconv.Atoi(variation)
		if err != nil || v < 0 {
			return spec, fmt.Errorf("invalid variation in %q", s)
		}
		spec.variation = &v
	}
	return spec, nil
}

// cartLine loads the product an item spec names and prices it.
func cartLine(ctx context.Context, svc *pos.Service, spec itemSpec) (models.LineItem, error) {
	var (
		p   *models.Product
		err error
	)
	if spec.barcode != "" {
		p, err = svc.ProductByBarcode(ctx, spec.barcode)
	} else {
		p, err = svc.Product(ctx, spec.key)
	}
	if err != nil {
		return models.LineItem{}, err
	}
	return pos.Line(p, spec.variation, spec.qty)
}

// saleFees resolves the fees to charge: the ones named by id plus, unless
// disabled, every default fee.
func saleFees(ctx context.Context, svc *pos.Service, ids []int64, defaults bool) ([]models.Fee, error) {
	all, err := svc.Fees(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.Fee
	for _, f := range all {
		named := false
		for _, id := range ids {
			if id == f.LocalKey {
				named = true
			}
		}
		if named || (defaults && f.IsDefault) {
			out = append(out, f)
		}
	}
	if len(out) < len(ids) {
		return nil, fmt.Errorf("unknown fee in %v", ids)
	}
	return out, nil
}

var saleCash decimal.Decimal

var saleCmd = &cobra.Command{
	Use:     "sale <item>...",
	Short:   "Record a sale",
	GroupID: "sales",
	Long: `Records a completed sale and decrements stock.

Items are <id>[/<variation>][:<qty>] or @<barcode>[:<qty>], e.g.
  till sale 3:2 7/1 @8991234567890 --cash 50000`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		specs := make([]itemSpec, 0, len(args))
		for _, a := range args {
			spec, err := parseItemSpec(a)
			if err != nil {
				return err
			}
			specs = append(specs, spec)
		}
		method, _ := cmd.Flags().GetString("method")
		feeIDs, _ := cmd.Flags().GetInt64Slice("fee")
		noDefaults, _ := cmd.Flags().GetBool("no-default-fees")
		customerID, _ := cmd.Flags().GetInt64("customer")
		pin, _ := cmd.Flags().GetString("pin")

		return withService(func(svc *pos.Service) error {
			ctx := cmd.Context()
			sale := pos.Sale{CashPaid: saleCash, PaymentMethod: method}
			for _, spec := range specs {
				it, err := cartLine(ctx, svc, spec)
				if err != nil {
					return err
				}
				sale.Items = append(sale.Items, it)
			}
			fees, err := saleFees(ctx, svc, feeIDs, !noDefaults)
			if err != nil {
				return err
			}
			sale.Fees = fees
			if customerID > 0 {
				if sale.Customer, err = svc.Contact(ctx, customerID); err != nil {
					return err
				}
			}
			if pin != "" {
				if sale.User, err = svc.Login(ctx, pin); err != nil {
					return err
				}
			}

			t, err := svc.RecordSale(ctx, sale)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return output.JSON(t)
			}
			printSale(t)
			return nil
		})
	},
}

func printSale(t *models.Transaction) {
	fmt.Println(output.Title(fmt.Sprintf("Sale #%d", t.LocalKey)) + "  " + output.Subtle(t.Date))
	for i, it := range t.Items {
		fmt.Printf("  [%d] %-28s %3d x %12s\n", i, output.Truncate(it.Name, 28), it.Quantity, output.FormatMoney(it.EffectivePrice))
	}
	fmt.Printf("  %-38s %14s\n", "subtotal", output.FormatMoney(t.Subtotal))
	if t.TotalDiscount.IsPositive() {
		fmt.Printf("  %-38s %14s\n", "discount", "-"+output.FormatMoney(t.TotalDiscount))
	}
	for _, f := range t.Fees {
		fmt.Printf("  %-38s %14s\n", f.Name, output.FormatMoney(f.Amount))
	}
	fmt.Printf("  %-38s %14s\n", output.Title("total"), output.FormatMoney(t.Total))
	if t.PaymentMethod == pos.PaymentCash {
		fmt.Printf("  %-38s %14s\n", "cash", output.FormatMoney(t.CashPaid))
		fmt.Printf("  %-38s %14s\n", "change", output.FormatMoney(t.Change))
	} else {
		fmt.Printf("  %-38s %14s\n", "paid by", t.PaymentMethod)
	}
}

var saleReturnCmd = &cobra.Command{
	Use:   "return <sale-id> <item-index>",
	Short: "Return one item of a sale and restock it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := parseKey(args[0])
		if err != nil {
			return err
		}
		index, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid item index %q", args[1])
		}
		return withService(func(svc *pos.Service) error {
			t, err := svc.ReturnItem(cmd.Context(), key, index)
			if err != nil {
				return err
			}
			if t == nil {
				output.Success("last item returned; sale #%d removed", key)
				return nil
			}
			output.Success("item returned; sale #%d now totals %s", key, output.FormatMoney(t.Total))
			return nil
		})
	},
}

var (
	saleFrom string
	saleTo   string
)

var saleListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List sales in a date range",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(svc *pos.Service) error {
			sales, err := svc.Transactions(cmd.Context(), saleFrom, saleTo)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return output.JSON(sales)
			}
			if len(sales) == 0 {
				fmt.Println("no sales")
				return nil
			}
			for _, t := range sales {
				fmt.Printf("%5d  %-24s %3d items  %14s  %s\n", t.LocalKey, t.Date, len(t.Items),
					output.FormatMoney(t.Total), output.Subtle(t.CustomerName))
			}
			return nil
		})
	},
}

var saleHoldCmd = &cobra.Command{
	Use:   "hold <item>...",
	Short: "Park a cart to finish later",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		customerID, _ := cmd.Flags().GetInt64("customer")
		return withService(func(svc *pos.Service) error {
			ctx := cmd.Context()
			var items []models.LineItem
			for _, a := range args {
				spec, err := parseItemSpec(a)
				if err != nil {
					return err
				}
				it, err := cartLine(ctx, svc, spec)
				if err != nil {
					return err
				}
				items = append(items, it)
			}
			var customer *models.Contact
			if customerID > 0 {
				c, err := svc.Contact(ctx, customerID)
				if err != nil {
					return err
				}
				customer = c
			}
			p, err := svc.Hold(ctx, items, nil, customer)
			if err != nil {
				return err
			}
			output.Success("held cart #%d (%d items)", p.LocalKey, len(p.Items))
			return nil
		})
	},
}

var saleHeldCmd = &cobra.Command{
	Use:   "held",
	Short: "List held carts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(svc *pos.Service) error {
			held, err := svc.Held(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return output.JSON(held)
			}
			if len(held) == 0 {
				fmt.Println("no held carts")
				return nil
			}
			for _, p := range held {
				fmt.Printf("%5d  %-24s %3d items  %s\n", p.LocalKey, p.Timestamp, len(p.Items), output.Subtle(p.CustomerName))
			}
			return nil
		})
	},
}

var saleResumeCmd = &cobra.Command{
	Use:   "resume <held-id>",
	Short: "Check out a held cart",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := parseKey(args[0])
		if err != nil {
			return err
		}
		method, _ := cmd.Flags().GetString("method")
		return withService(func(svc *pos.Service) error {
			ctx := cmd.Context()
			fees, err := saleFees(ctx, svc, nil, true)
			if err != nil {
				return err
			}
			p, err := svc.Resume(ctx, key)
			if err != nil {
				return err
			}
			sale := pos.Sale{Items: p.Items, Fees: fees, CashPaid: saleCash, PaymentMethod: method}
			if p.CustomerID != nil {
				if sale.Customer, err = svc.Contact(ctx, *p.CustomerID); err != nil {
					return err
				}
			}
			t, err := svc.RecordSale(ctx, sale)
			if err != nil {
				if _, holdErr := svc.Hold(ctx, p.Items, p.Fees, sale.Customer); holdErr != nil {
					return errors.Join(err, holdErr)
				}
				return err
			}
			if jsonOutput(cmd) {
				return output.JSON(t)
			}
			printSale(t)
			return nil
		})
	},
}

var saleDiscardCmd = &cobra.Command{
	Use:   "discard <held-id>",
	Short: "Drop a held cart",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := parseKey(args[0])
		if err != nil {
			return err
		}
		return withService(func(svc *pos.Service) error {
			if err := svc.DiscardHeld(cmd.Context(), key); err != nil {
				return err
			}
			output.Success("discarded held cart #%d", key)
			return nil
		})
	},
}

func init() {
	saleCmd.Flags().Var(newMoneyValue(&saleCash), "cash", "cash handed over")
	saleCmd.Flags().String("method", pos.PaymentCash, "payment method")
	saleCmd.Flags().Int64Slice("fee", nil, "fee ids to charge (repeatable)")
	saleCmd.Flags().Bool("no-default-fees", false, "do not charge default fees")
	saleCmd.Flags().Int64("customer", 0, "customer id")
	saleCmd.Flags().String("pin", "", "cashier PIN")

	saleListCmd.Flags().Var(newDateValue(&saleFrom), "from", "first day (YYYY-MM-DD, today, -7d, month-start)")
	saleListCmd.Flags().Var(newDateValue(&saleTo), "to", "last day")

	saleHoldCmd.Flags().Int64("customer", 0, "customer id")
	saleResumeCmd.Flags().Var(newMoneyValue(&saleCash), "cash", "cash handed over")
	saleResumeCmd.Flags().String("method", pos.PaymentCash, "payment method")

	saleCmd.AddCommand(saleReturnCmd, saleListCmd, saleHoldCmd, saleHeldCmd, saleResumeCmd, saleDiscardCmd)
	rootCmd.AddCommand(saleCmd)
}
