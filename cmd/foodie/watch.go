package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/foodie/pkg/client"
	"github.com/cuemby/foodie/pkg/events"
	"github.com/cuemby/foodie/pkg/types"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream live order and analytics events",
	Long: `Follow the server's event stream, the same feed the kitchen and
analytics dashboards use. Reconnects automatically and prints the active
orders again after every reconnect, since missed events are not replayed.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().Bool("analytics", true, "Show analytics updates")
}

func runWatch(cmd *cobra.Command, args []string) error {
	server, _ := cmd.Flags().GetString("server")
	showAnalytics, _ := cmd.Flags().GetBool("analytics")
	c := newClient(cmd)

	w, err := client.NewWatcher(server, client.WatchOptions{
		OnReconnect: func(ctx context.Context) error {
			fmt.Println("--- reconnected, active orders:")
			list, err := c.ListOrders(ctx, "", 0)
			if err != nil {
				return err
			}
			for _, o := range list {
				if o.Status.IsActive() {
					fmt.Printf("  %s  %-10s %s\n", o.ID, o.Status, o.CustomerName)
				}
			}
			return nil
		},
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Watching %s (Ctrl+C to stop)\n", server)
	return w.Watch(ctx, func(msg events.Message) {
		printEvent(msg, showAnalytics)
	})
}

func printEvent(msg events.Message, showAnalytics bool) {
	ts := time.Now().Format(time.TimeOnly)

	switch msg.Type {
	case events.EventOrderCreated, events.EventOrderUpdated:
		var o types.Order
		if err := json.Unmarshal(msg.Payload, &o); err != nil {
			fmt.Printf("%s %s (unreadable payload)\n", ts, msg.Type)
			return
		}
		fmt.Printf("%s %-15s %s  %-10s %s  %s\n", ts, msg.Type, o.ID, o.Status,
			o.TotalAmount.StringFixed(2), o.CustomerName)

	case events.EventAnalyticsUpdate:
		if !showAnalytics {
			return
		}
		var s types.AnalyticsSnapshot
		if err := json.Unmarshal(msg.Payload, &s); err != nil {
			return
		}
		fmt.Printf("%s %-15s orders=%d revenue=%s avg=%s pending=%d\n", ts, msg.Type,
			s.TodayOrders, s.TodayRevenue.StringFixed(2), s.AvgOrderValue.StringFixed(2), s.PendingOrders)

	default:
		fmt.Printf("%s %s %s\n", ts, msg.Type, string(msg.Payload))
	}
}
