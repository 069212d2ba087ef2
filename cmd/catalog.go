package cmd

import (
	"fmt"
	"strconv"

	"github.com/marcus/till/internal/models"
	"github.com/marcus/till/internal/output"
	"github.com/marcus/till/internal/pos"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// parseKey parses a record key argument.
func parseKey(s string) (int64, error) {
	k, err := strconv.ParseInt(s, 10, 64)
	if err != nil || k <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return k, nil
}

func stockString(stock *int) string {
	if stock == nil {
		return "∞"
	}
	return strconv.Itoa(*stock)
}

var productCmd = &cobra.Command{
	Use:     "product",
	Aliases: []string{"products"},
	Short:   "Manage products",
	GroupID: "catalog",
}

var (
	productPrice    decimal.Decimal
	productPurchase decimal.Decimal
)

// applyProductFlags copies the flags the user set onto p.
func applyProductFlags(cmd *cobra.Command, p *models.Product) {
	f := cmd.Flags()
	if f.Changed("name") {
		p.Name, _ = f.GetString("name")
	}
	if f.Changed("price") {
		p.Price = productPrice
	}
	if f.Changed("purchase-price") {
		p.PurchasePrice = productPurchase
	}
	if f.Changed("barcode") {
		p.Barcode, _ = f.GetString("barcode")
	}
	if f.Changed("category") {
		p.Category, _ = f.GetString("category")
	}
	if f.Changed("stock") {
		n, _ := f.GetInt("stock")
		if n < 0 {
			p.Stock = nil
		} else {
			p.Stock = &n
		}
	}
}

func addProductFlags(cmd *cobra.Command) {
	cmd.Flags().String("name", "", "product name")
	cmd.Flags().Var(newMoneyValue(&productPrice), "price", "selling price")
	cmd.Flags().Var(newMoneyValue(&productPurchase), "purchase-price", "purchase price")
	cmd.Flags().Int("stock", -1, "units in stock (negative for unlimited)")
	cmd.Flags().String("barcode", "", "barcode")
	cmd.Flags().String("category", "", "category name")
}

var productAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a product",
	RunE: func(cmd *cobra.Command, args []string) error {
		p := &models.Product{}
		applyProductFlags(cmd, p)
		return withService(func(svc *pos.Service) error {
			if err := svc.SaveProduct(cmd.Context(), p); err != nil {
				return err
			}
			output.Success("added product #%d %s", p.LocalKey, p.Name)
			return nil
		})
	},
}

var productUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a product",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := parseKey(args[0])
		if err != nil {
			return err
		}
		return withService(func(svc *pos.Service) error {
			p, err := svc.Product(cmd.Context(), key)
			if err != nil {
				return err
			}
			applyProductFlags(cmd, p)
			if err := svc.SaveProduct(cmd.Context(), p); err != nil {
				return err
			}
			output.Success("updated product #%d %s", p.LocalKey, p.Name)
			return nil
		})
	},
}

var productListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List products",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(svc *pos.Service) error {
			products, err := svc.Products(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return output.JSON(products)
			}
			if len(products) == 0 {
				fmt.Println("no products")
				return nil
			}
			for _, p := range products {
				fmt.Printf("%5d  %-28s %14s  stock %-5s %s\n", p.LocalKey, output.Truncate(p.Name, 28),
					output.FormatMoney(p.Price), stockString(p.Stock), output.Subtle(p.Category))
			}
			return nil
		})
	},
}

var productShowCmd = &cobra.Command{
	Use:   "show <id|barcode>",
	Short: "Show one product",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(svc *pos.Service) error {
			var (
				p   *models.Product
				err error
			)
			if byBarcode, _ := cmd.Flags().GetBool("barcode"); byBarcode {
				p, err = svc.ProductByBarcode(cmd.Context(), args[0])
			} else {
				var key int64
				if key, err = parseKey(args[0]); err == nil {
					p, err = svc.Product(cmd.Context(), key)
				}
			}
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return output.JSON(p)
			}
			fmt.Println(output.Title(p.Name))
			fmt.Printf("  id          %d\n", p.LocalKey)
			fmt.Printf("  price       %s\n", output.FormatMoney(p.Price))
			fmt.Printf("  purchase    %s\n", output.FormatMoney(p.PurchasePrice))
			fmt.Printf("  stock       %s\n", stockString(p.Stock))
			if p.Barcode != "" {
				fmt.Printf("  barcode     %s\n", p.Barcode)
			}
			if p.Category != "" {
				fmt.Printf("  category    %s\n", p.Category)
			}
			for i, v := range p.Variations {
				fmt.Printf("  [%d] %-20s %14s  stock %s\n", i, v.Name, output.FormatMoney(v.Price), stockString(v.Stock))
			}
			return nil
		})
	},
}

var productDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a product",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := parseKey(args[0])
		if err != nil {
			return err
		}
		return withService(func(svc *pos.Service) error {
			if err := svc.DeleteProduct(cmd.Context(), key); err != nil {
				return err
			}
			output.Success("deleted product #%d", key)
			return nil
		})
	},
}

var productStockCmd = &cobra.Command{
	Use:   "stock <id> <delta>",
	Short: "Adjust stock by delta, e.g. 12 or -3",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := parseKey(args[0])
		if err != nil {
			return err
		}
		delta, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid delta %q", args[1])
		}
		return withService(func(svc *pos.Service) error {
			p, err := svc.AdjustStock(cmd.Context(), key, delta)
			if err != nil {
				return err
			}
			output.Success("%s: %s in stock", p.Name, stockString(p.Stock))
			return nil
		})
	},
}

var categoryCmd = &cobra.Command{
	Use:     "category",
	Aliases: []string{"categories"},
	Short:   "Manage categories",
	GroupID: "catalog",
}

var categoryAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a category",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(svc *pos.Service) error {
			c := &models.Category{Name: args[0]}
			if err := svc.SaveCategory(cmd.Context(), c); err != nil {
				return err
			}
			output.Success("added category #%d %s", c.LocalKey, c.Name)
			return nil
		})
	},
}

var categoryListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List categories",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(svc *pos.Service) error {
			cats, err := svc.Categories(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return output.JSON(cats)
			}
			for _, c := range cats {
				fmt.Printf("%5d  %s\n", c.LocalKey, c.Name)
			}
			return nil
		})
	},
}

var categoryDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a category no product uses",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := parseKey(args[0])
		if err != nil {
			return err
		}
		return withService(func(svc *pos.Service) error {
			if err := svc.DeleteCategory(cmd.Context(), key); err != nil {
				return err
			}
			output.Success("deleted category #%d", key)
			return nil
		})
	},
}

func init() {
	addProductFlags(productAddCmd)
	addProductFlags(productUpdateCmd)
	productShowCmd.Flags().Bool("barcode", false, "look the product up by barcode")

	productCmd.AddCommand(productAddCmd, productUpdateCmd, productListCmd, productShowCmd, productDeleteCmd, productStockCmd)
	categoryCmd.AddCommand(categoryAddCmd, categoryListCmd, categoryDeleteCmd)
	rootCmd.AddCommand(productCmd, categoryCmd)
}
