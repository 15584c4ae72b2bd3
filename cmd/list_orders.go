package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/apri1one/predict-arb-sub004/pkg/config"
	"github.com/apri1one/predict-arb-sub004/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

//nolint:gochecknoglobals // Cobra boilerplate
var listOrdersCmd = &cobra.Command{
	Use:   "list-orders",
	Short: "List open orders on both venues",
	Long: `List open orders for the configured accounts on Predict and
Polymarket.

A venue is skipped with a warning when its credentials are missing.

Examples:
  # List all open orders
  predict-arb list-orders`,
	Args: cobra.NoArgs,
	RunE: runListOrders,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(listOrdersCmd)
}

func runListOrders(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadCLIConfig()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	orders, err := fetchOpenOrders(ctx, cfg, logger)
	if err != nil {
		return err
	}

	if len(orders) == 0 {
		fmt.Println("No open orders found.")
		return nil
	}

	displayOrdersTable(orders)
	displayOrdersSummary(orders)
	return nil
}

// fetchOpenOrders collects open orders from whichever venues have
// credentials configured.
func fetchOpenOrders(ctx context.Context, cfg *config.Config, logger *zap.Logger) ([]types.OpenOrder, error) {
	var orders []types.OpenOrder

	predictClient, err := newPredictClient(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("create predict client: %w", err)
	}
	predictOrders, err := predictClient.GetOpenOrders(ctx)
	if err != nil {
		logger.Warn("predict-open-orders-failed", zap.Error(err))
	} else {
		orders = append(orders, predictOrders...)
	}

	if cfg.PolymarketAPIKey == "" {
		logger.Warn("polymarket-skipped", zap.String("reason", "no clob credentials"))
		return orders, nil
	}

	polyClient, err := newPolymarketClient(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("create polymarket client: %w", err)
	}
	polyOrders, err := polyClient.GetOpenOrders(ctx)
	if err != nil {
		logger.Warn("polymarket-open-orders-failed", zap.Error(err))
	} else {
		orders = append(orders, polyOrders...)
	}

	return orders, nil
}

func displayOrdersTable(orders []types.OpenOrder) {
	fmt.Println("\n========================================")
	fmt.Println("Open Orders")
	fmt.Println("========================================")
	fmt.Printf("%-12s %-14s %-32s %-6s %-8s %-10s %-10s %-10s\n",
		"Venue", "Order ID", "Market", "Side", "Outcome", "Price", "Size", "Filled")
	fmt.Println("--------------------------------------------------------------------------------------------------")

	for _, order := range orders {
		fmt.Printf("%-12s %-14s %-32s %-6s %-8s $%-9s %-10s %-10s\n",
			order.Venue,
			truncateID(order.OrderID, 10),
			truncateID(order.MarketID, 30),
			order.Side,
			order.Outcome,
			order.Price.StringFixed(3),
			order.Original.String(),
			order.Filled.String())
	}
}

func displayOrdersSummary(orders []types.OpenOrder) {
	byVenue := map[types.Venue]int{}
	locked := decimal.Zero
	for _, order := range orders {
		byVenue[order.Venue]++
		locked = locked.Add(order.Price.Mul(order.Remaining()))
	}

	fmt.Println("\n========================================")
	fmt.Println("Summary")
	fmt.Println("========================================")
	fmt.Printf("Total Orders:   %d\n", len(orders))
	for venue, n := range byVenue {
		fmt.Printf("  %-12s  %d\n", venue, n)
	}
	fmt.Printf("Total Locked:   $%s\n", locked.StringFixed(2))
}

func truncateID(id string, max int) string {
	if len(id) <= max {
		return id
	}
	return id[:max-3] + "..."
}
