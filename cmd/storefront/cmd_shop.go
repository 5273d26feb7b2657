package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mmynk/storefront/internal/calculator"
	"github.com/mmynk/storefront/internal/cart"
	"github.com/mmynk/storefront/internal/catalog"
	"github.com/mmynk/storefront/internal/models"
)

var (
	searchKeyword string
	morePages     int
	addQuantity   int
)

var productsCmd = &cobra.Command{
	Use:   "products",
	Short: "List the catalog",
	Long:  `Lists products nine at a time. --more shows additional pages, --search filters by name.`,
	Args:  cobra.NoArgs,
	RunE:  runProducts,
}

var addCmd = &cobra.Command{
	Use:   "add <product-id>",
	Short: "Add a product to the cart",
	Args:  cobra.ExactArgs(1),
	RunE:  runAdd,
}

var cartCmd = &cobra.Command{
	Use:   "cart",
	Short: "Show the cart",
	Args:  cobra.NoArgs,
	RunE:  runCart,
}

var qtyCmd = &cobra.Command{
	Use:   "qty <product-id> <quantity>",
	Short: "Change the quantity of a cart line",
	Args:  cobra.ExactArgs(2),
	RunE:  runQty,
}

var removeCmd = &cobra.Command{
	Use:   "remove <product-id>",
	Short: "Remove a line from the cart",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemove,
}

var checkoutCmd = &cobra.Command{
	Use:   "checkout",
	Short: "Create an order and print the payment link",
	Args:  cobra.NoArgs,
	RunE:  runCheckout,
}

func init() {
	productsCmd.Flags().StringVar(&searchKeyword, "search", "", "filter products by name")
	productsCmd.Flags().IntVar(&morePages, "more", 0, "number of extra pages to show")
	addCmd.Flags().IntVar(&addQuantity, "qty", 1, "quantity to add")
}

func runProducts(cmd *cobra.Command, args []string) error {
	l, err := openLocal(cmd.Context())
	if err != nil {
		return err
	}
	defer l.close(cmd.ErrOrStderr())

	products, err := l.Catalog.List(cmd.Context())
	if err != nil && len(products) == 0 {
		return err
	}

	view := catalog.NewView()
	view.Keyword = searchKeyword
	result := view.ShowPages(morePages+1, len(products)).Apply(products)

	out := cmd.OutOrStdout()
	if result.NoResults {
		fmt.Fprintln(out, "No products found")
		return nil
	}
	printProducts(out, result.Visible)
	if result.HasMore {
		fmt.Fprintf(out, "%d of %d shown, use --more for the next page\n", len(result.Visible), result.Matching)
	}
	return nil
}

func runAdd(cmd *cobra.Command, args []string) error {
	l, err := openLocal(cmd.Context())
	if err != nil {
		return err
	}
	defer l.close(cmd.ErrOrStderr())

	if _, err := l.Catalog.List(cmd.Context()); err != nil {
		return err
	}
	product, ok := l.Catalog.Lookup(args[0])
	if !ok {
		return fmt.Errorf("product %q not found", args[0])
	}
	if err := l.Catalog.AddToCart(cmd.Context(), product, addQuantity); err != nil {
		return err
	}
	printCart(cmd.OutOrStdout(), l.Cart.Lines(), l.Cart.Totals())
	return nil
}

func runCart(cmd *cobra.Command, args []string) error {
	l, err := openLocal(cmd.Context())
	if err != nil {
		return err
	}
	defer l.close(cmd.ErrOrStderr())

	c, err := l.RequireCart()
	if err != nil {
		return err
	}
	loadOrWarn(cmd, c)
	printCart(cmd.OutOrStdout(), c.Lines(), c.Totals())
	return nil
}

func runQty(cmd *cobra.Command, args []string) error {
	quantity, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid quantity %q", args[1])
	}

	l, err := openLocal(cmd.Context())
	if err != nil {
		return err
	}
	defer l.close(cmd.ErrOrStderr())

	c, err := l.RequireCart()
	if err != nil {
		return err
	}
	loadOrWarn(cmd, c)
	if err := c.SetQuantity(cmd.Context(), args[0], quantity); err != nil {
		return err
	}
	printCart(cmd.OutOrStdout(), c.Lines(), c.Totals())
	return nil
}

func runRemove(cmd *cobra.Command, args []string) error {
	l, err := openLocal(cmd.Context())
	if err != nil {
		return err
	}
	defer l.close(cmd.ErrOrStderr())

	c, err := l.RequireCart()
	if err != nil {
		return err
	}
	loadOrWarn(cmd, c)
	if err := c.Remove(cmd.Context(), args[0]); err != nil {
		return err
	}
	printCart(cmd.OutOrStdout(), c.Lines(), c.Totals())
	return nil
}

func runCheckout(cmd *cobra.Command, args []string) error {
	l, err := openLocal(cmd.Context())
	if err != nil {
		return err
	}
	defer l.close(cmd.ErrOrStderr())

	c, err := l.RequireCart()
	if err != nil {
		return err
	}
	if err := c.Load(cmd.Context()); err != nil {
		return err
	}
	handoff, err := l.StartCheckout(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Order %s, total %s\n", handoff.OrderCode, calculator.FormatPrice(handoff.Order.TotalPrice))
	fmt.Fprintf(out, "Pay at: %s\n", handoff.CheckoutURL)
	return nil
}

// loadOrWarn refreshes the cart from the remote. On failure the cart restored
// from local storage is used, which still knows every line.
func loadOrWarn(cmd *cobra.Command, c *cart.Reconciler) {
	if err := c.Load(cmd.Context()); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Showing the locally saved cart")
	}
}

func printProducts(w io.Writer, products []models.Product) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPRICE")
	for _, p := range products {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p.ID, p.Name, calculator.FormatPrice(p.Price))
	}
	tw.Flush()
}

func printCart(w io.Writer, lines []models.CartLine, totals models.CartTotals) {
	if len(lines) == 0 {
		fmt.Fprintln(w, "Your cart is empty")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tQTY\tPRICE\tSUBTOTAL")
	for _, l := range lines {
		name := l.ProductName
		if l.Provisional {
			name = "(not loaded)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			l.ProductID, name, l.Quantity,
			calculator.FormatPrice(l.Price), calculator.FormatPrice(l.Subtotal()))
	}
	fmt.Fprintf(tw, "\t\t\tTOTAL\t%s\n", calculator.FormatPrice(totals.Total))
	tw.Flush()
}
