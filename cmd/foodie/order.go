package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cuemby/foodie/pkg/client"
	"github.com/cuemby/foodie/pkg/orders"
	"github.com/cuemby/foodie/pkg/types"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var orderCmd = &cobra.Command{
	Use:   "order",
	Short: "Place and manage orders on a running server",
}

var orderPlaceCmd = &cobra.Command{
	Use:   "place -f ORDER.yaml",
	Short: "Place an order from a YAML file",
	Long: `Place an order described in a YAML file. Prices come from the menu.

Example order file:
  customer:
    name: Rajesh Kumar
    phone: "+91 98765 43210"
  items:
    - menu_item_id: "1"
      qty: 2
  payment_method: upi`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}

		var req orders.PlaceRequest
		if err := yaml.Unmarshal(data, &req); err != nil {
			return fmt.Errorf("failed to parse YAML: %w", err)
		}

		order, err := newClient(cmd).PlaceOrder(cmd.Context(), req)
		if err != nil {
			return fmt.Errorf("failed to place order: %w", err)
		}
		fmt.Printf("✓ Order placed: %s (total %s)\n", order.ID, order.TotalAmount.StringFixed(2))
		return nil
	},
}

var orderGetCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Show an order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		order, err := newClient(cmd).GetOrder(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to get order: %w", err)
		}
		printOrder(order)
		return nil
	},
}

var orderListCmd = &cobra.Command{
	Use:   "list",
	Short: "List orders, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		list, err := newClient(cmd).ListOrders(cmd.Context(), normalizeStatus(status), limit)
		if err != nil {
			return fmt.Errorf("failed to list orders: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCUSTOMER\tSTATUS\tTOTAL\tCREATED")
		for _, o := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				o.ID, o.CustomerName, o.Status, o.TotalAmount.StringFixed(2),
				o.CreatedAt.Local().Format(time.DateTime))
		}
		return w.Flush()
	},
}

var orderAcceptCmd = &cobra.Command{
	Use:   "accept ID",
	Short: "Accept a pending order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		order, err := newClient(cmd).AcceptOrder(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to accept order: %w", err)
		}
		fmt.Printf("✓ Order %s is %s\n", order.ID, order.Status)
		return nil
	},
}

var orderAdvanceCmd = &cobra.Command{
	Use:   "advance ID STATUS",
	Short: "Move an order to its next status (PREPARING, READY, COMPLETED)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		order, err := newClient(cmd).AdvanceOrder(cmd.Context(), args[0], normalizeStatus(args[1]))
		if err != nil {
			return fmt.Errorf("failed to update order: %w", err)
		}
		fmt.Printf("✓ Order %s is %s\n", order.ID, order.Status)
		return nil
	},
}

var orderPayCmd = &cobra.Command{
	Use:   "pay ID REF",
	Short: "Record a payment reference for an order",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		order, err := newClient(cmd).ConfirmPayment(cmd.Context(), args[0], args[1])
		if err != nil {
			return fmt.Errorf("failed to confirm payment: %w", err)
		}
		fmt.Printf("✓ Payment %s recorded for order %s\n", order.PaymentRef, order.ID)
		return nil
	},
}

// normalizeStatus lets operators type statuses in any case; the server
// only accepts the exact upper-case names.
func normalizeStatus(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func init() {
	orderCmd.AddCommand(orderPlaceCmd)
	orderCmd.AddCommand(orderGetCmd)
	orderCmd.AddCommand(orderListCmd)
	orderCmd.AddCommand(orderAcceptCmd)
	orderCmd.AddCommand(orderAdvanceCmd)
	orderCmd.AddCommand(orderPayCmd)

	orderPlaceCmd.Flags().StringP("file", "f", "", "YAML order file (required)")
	_ = orderPlaceCmd.MarkFlagRequired("file")

	orderListCmd.Flags().String("status", "", "Only orders with this status")
	orderListCmd.Flags().Int("limit", 0, "Maximum number of orders (server default 50)")
}

func newClient(cmd *cobra.Command) *client.Client {
	server, _ := cmd.Flags().GetString("server")
	return client.New(server, client.Options{})
}

func printOrder(o *types.Order) {
	fmt.Printf("Order:    %s\n", o.ID)
	fmt.Printf("Status:   %s\n", o.Status)
	fmt.Printf("Customer: %s (%s)\n", o.CustomerName, o.CustomerPhone)
	if o.CustomerAddress != "" {
		fmt.Printf("Address:  %s\n", o.CustomerAddress)
	}
	if o.PaymentRef != "" {
		fmt.Printf("Payment:  %s %s\n", o.PaymentMethod, o.PaymentRef)
	}
	fmt.Printf("Created:  %s\n", o.CreatedAt.Local().Format(time.DateTime))
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ITEM\tQTY\tPRICE\tSUBTOTAL")
	for _, item := range o.Items {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", item.Name, item.Quantity,
			item.UnitPrice.StringFixed(2), item.Subtotal().StringFixed(2))
	}
	fmt.Fprintf(w, "\t\tTOTAL\t%s\n", o.TotalAmount.StringFixed(2))
	w.Flush()
}
