package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/apri1one/predict-arb-sub004/internal/discovery"
	"github.com/apri1one/predict-arb-sub004/internal/orderbook"
	"github.com/apri1one/predict-arb-sub004/internal/positions"
	"github.com/apri1one/predict-arb-sub004/pkg/types"
	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var positionsCmd = &cobra.Command{
	Use:   "positions",
	Short: "Reconcile positions across both venues",
	Long: `Reads positions from both venues, pairs them through the market
mappings and displays matched delta-neutral pairs plus whatever could
not be paired.

Examples:
  # Show the reconciled report
  predict-arb positions

  # Export to JSON
  predict-arb positions --json > report.json`,
	Args: cobra.NoArgs,
	RunE: runPositions,
}

//nolint:gochecknoglobals // Cobra boilerplate
var positionsJSON bool

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(positionsCmd)
	positionsCmd.Flags().BoolVar(&positionsJSON, "json", false, "Output the report as JSON")
}

func runPositions(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadCLIConfig()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	if cfg.PredictSmartWallet == "" {
		return fmt.Errorf("PREDICT_SMART_WALLET_ADDRESS not set")
	}
	polyWallet := cfg.PolymarketProxyAddress
	if polyWallet == "" {
		polyWallet = cfg.PolymarketTraderAddress
	}
	if polyWallet == "" {
		return fmt.Errorf("POLYMARKET_PROXY_ADDRESS or POLYMARKET_TRADER_ADDRESS not set")
	}

	predictClient, err := newPredictClient(cfg, logger)
	if err != nil {
		return fmt.Errorf("create predict client: %w", err)
	}
	polyClient, err := newPolymarketClient(cfg, logger)
	if err != nil {
		return fmt.Errorf("create polymarket client: %w", err)
	}

	svc, err := discovery.New(discovery.Config{
		MappingFile: cfg.MappingFile,
		Predict:     predictClient,
		Polymarket:  polyClient,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("create discovery: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := svc.Refresh(ctx); err != nil {
		return fmt.Errorf("build mappings: %w", err)
	}

	reconciler, err := positions.NewReconciler(positions.Config{
		Predict:          predictClient,
		Polymarket:       polyClient,
		PredictWallet:    cfg.PredictSmartWallet,
		PolymarketWallet: polyWallet,
		Mappings:         svc,
		Books:            orderbook.NewCache(logger),
		Logger:           logger,
	})
	if err != nil {
		return fmt.Errorf("create reconciler: %w", err)
	}

	report, err := reconciler.Reconcile(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}

	if positionsJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	}

	displayPositionReport(report)
	return nil
}

func displayPositionReport(report *types.PositionReport) {
	fmt.Printf("Position Report (as of %s)\n", report.AsOf.Format("2006-01-02 15:04:05 MST"))
	if report.Stale {
		fmt.Println("WARNING: one or both venue reads failed; showing last known positions")
	}

	if len(report.Pairs) > 0 {
		fmt.Printf("\nMATCHED PAIRS (%d)\n", len(report.Pairs))
		fmt.Println("--------------------------------------------------------------------------------")
		for _, pair := range report.Pairs {
			fmt.Printf("%s\n", pair.Mapping.EventTitle)
			fmt.Printf("  Predict:    %s %s @ %s\n",
				pair.Predict.Shares.String(), pair.Predict.Outcome, pair.Predict.AvgEntryPrice.StringFixed(3))
			fmt.Printf("  Polymarket: %s %s @ %s\n",
				pair.Polymarket.Shares.String(), pair.Polymarket.Outcome, pair.Polymarket.AvgEntryPrice.StringFixed(3))
			fmt.Printf("  Matched:    %s shares, entry cost %s/share\n",
				pair.MatchedShares.String(), pair.EntryCostPerShare.StringFixed(4))
		}
	}

	if len(report.Unmatched) > 0 {
		fmt.Printf("\nUNMATCHED (%d)\n", len(report.Unmatched))
		fmt.Println("--------------------------------------------------------------------------------")
		for _, u := range report.Unmatched {
			p := u.Position
			fmt.Printf("%-12s %-32s %-4s %s shares (%s)\n",
				p.Venue, truncateID(p.MarketID, 30), p.Outcome, u.Shares.String(), u.Reason)
		}
	}

	if len(report.Pairs) == 0 && len(report.Unmatched) == 0 {
		fmt.Println("\nNo positions found on either venue.")
	}
}
