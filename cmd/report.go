package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/marcus/till/internal/output"
	"github.com/marcus/till/internal/pos"
	"github.com/spf13/cobra"
)

var (
	reportFrom string
	reportTo   string
)

// reportMarkdown lays a report out as markdown for glamour.
func reportMarkdown(r *pos.Report) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Report %s to %s\n\n", r.From, r.To)

	money := output.FormatMoney
	sb.WriteString("## Sales\n\n")
	sb.WriteString(output.MarkdownTable([]string{"", "amount"}, [][]string{
		{"Revenue", money(r.Revenue)},
		{"Cost of goods", money(r.CostOfGoods)},
		{"Gross profit", money(r.GrossProfit)},
		{"Fees and taxes", money(r.Fees)},
		{"Net profit", money(r.NetProfit)},
		{"Discounts given", money(r.Discounts)},
		{"Wholesale sales", money(r.WholesaleSales)},
		{"Average sale", money(r.AverageSale)},
		{"Sales", strconv.Itoa(len(r.Transactions))},
	}))

	sb.WriteString("\n## Cash flow\n\n")
	sb.WriteString(output.MarkdownTable([]string{"", "amount"}, [][]string{
		{"Received from customers", money(r.ReceivablePayments)},
		{"Paid to suppliers", money(r.DebtPayments)},
		{"Cash flow", money(r.CashFlow)},
	}))

	sb.WriteString("\n## Inventory\n\n")
	sb.WriteString(output.MarkdownTable([]string{"", "amount"}, [][]string{
		{"At cost", money(r.InventoryCost)},
		{"At retail", money(r.InventoryValue)},
	}))

	if len(r.TopProducts) > 0 {
		sb.WriteString("\n## Best sellers\n\n")
		rows := make([][]string, 0, len(r.TopProducts))
		for _, p := range r.TopProducts {
			rows = append(rows, []string{p.Name, strconv.Itoa(p.Quantity), money(p.Revenue)})
		}
		sb.WriteString(output.MarkdownTable([]string{"product", "qty", "revenue"}, rows))
	}

	var owing [][]string
	for _, c := range r.Contacts {
		if !c.Balance.IsZero() {
			owing = append(owing, []string{c.Name, string(c.Type), money(c.Balance)})
		}
	}
	if len(owing) > 0 {
		sb.WriteString("\n## Open balances\n\n")
		sb.WriteString(output.MarkdownTable([]string{"contact", "type", "balance"}, owing))
	}
	return sb.String()
}

var reportCmd = &cobra.Command{
	Use:     "report",
	Short:   "Summarize sales, profit and balances for a date range",
	GroupID: "sales",
	Long: `Summarizes sales, profit, cash flow, inventory value and open balances.
Defaults to the current month.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		from, to := reportFrom, reportTo
		if from == "" {
			now := time.Now()
			from = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.Local).Format(time.DateOnly)
		}
		if to == "" {
			to = time.Now().Format(time.DateOnly)
		}
		return withService(func(svc *pos.Service) error {
			r, err := svc.Report(cmd.Context(), from, to)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return output.JSON(r)
			}
			md := reportMarkdown(r)
			rendered, err := output.RenderMarkdown(md)
			if err != nil {
				fmt.Print(md)
				return nil
			}
			fmt.Print(rendered)
			return nil
		})
	},
}

func init() {
	reportCmd.Flags().Var(newDateValue(&reportFrom), "from", "first day (YYYY-MM-DD, today, -7d, month-start)")
	reportCmd.Flags().Var(newDateValue(&reportTo), "to", "last day")
	rootCmd.AddCommand(reportCmd)
}
