package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/apri1one/predict-arb-sub004/pkg/types"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

//nolint:gochecknoglobals // Cobra boilerplate
var cancelOrdersCmd = &cobra.Command{
	Use:   "cancel-orders",
	Short: "Cancel open orders on both venues",
	Long: `Cancel all open orders on Predict and Polymarket, one by one.

Use --dry-run to preview orders without canceling and --venue to limit
cancellation to one venue.

Examples:
  # Preview orders without canceling
  predict-arb cancel-orders --dry-run

  # Cancel only Predict orders
  predict-arb cancel-orders --venue predict

  # Cancel everything
  predict-arb cancel-orders`,
	Args: cobra.NoArgs,
	RunE: runCancelOrders,
}

//nolint:gochecknoglobals // Cobra boilerplate
var (
	cancelDryRun bool
	cancelVenue  string
)

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(cancelOrdersCmd)
	cancelOrdersCmd.Flags().BoolVar(&cancelDryRun, "dry-run", false, "Preview orders without canceling")
	cancelOrdersCmd.Flags().StringVar(&cancelVenue, "venue", "", "Limit to one venue: predict or polymarket")
}

func runCancelOrders(cmd *cobra.Command, args []string) error {
	if cancelVenue != "" && cancelVenue != string(types.VenuePredict) && cancelVenue != string(types.VenuePolymarket) {
		return fmt.Errorf("invalid venue %q (valid: predict, polymarket)", cancelVenue)
	}

	cfg, logger, err := loadCLIConfig()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	orders, err := fetchOpenOrders(ctx, cfg, logger)
	if err != nil {
		return err
	}
	orders = filterOrdersByVenue(orders, types.Venue(cancelVenue))

	if len(orders) == 0 {
		fmt.Println("No open orders found.")
		return nil
	}

	displayOrdersTable(orders)

	if cancelDryRun {
		fmt.Println("\n[DRY RUN] No orders were canceled.")
		return nil
	}

	predictClient, err := newPredictClient(cfg, logger)
	if err != nil {
		return fmt.Errorf("create predict client: %w", err)
	}
	polyClient, err := newPolymarketClient(cfg, logger)
	if err != nil {
		return fmt.Errorf("create polymarket client: %w", err)
	}

	fmt.Println("\nCanceling orders...")
	canceled, failed := 0, 0
	for _, order := range orders {
		var cancelErr error
		switch order.Venue {
		case types.VenuePredict:
			cancelErr = predictClient.CancelOrder(ctx, order.OrderID)
		case types.VenuePolymarket:
			cancelErr = polyClient.CancelOrder(ctx, order.OrderID)
		default:
			continue
		}

		if cancelErr != nil {
			failed++
			logger.Error("cancel-failed",
				zap.String("venue", string(order.Venue)),
				zap.String("order-id", order.OrderID),
				zap.Error(cancelErr))
			continue
		}
		canceled++
	}

	fmt.Printf("\nCanceled: %d orders", canceled)
	if failed > 0 {
		fmt.Printf(", failed: %d", failed)
	}
	fmt.Println()
	return nil
}

func filterOrdersByVenue(orders []types.OpenOrder, venue types.Venue) []types.OpenOrder {
	if venue == "" {
		return orders
	}
	filtered := make([]types.OpenOrder, 0, len(orders))
	for _, order := range orders {
		if order.Venue == venue {
			filtered = append(filtered, order)
		}
	}
	return filtered
}
