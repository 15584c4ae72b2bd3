package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/apri1one/predict-arb-sub004/internal/discovery"
	"github.com/apri1one/predict-arb-sub004/pkg/types"
	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var listMarketsCmd = &cobra.Command{
	Use:   "list-markets",
	Short: "Build and display the cross-venue market mappings",
	Long: `Loads the operator pair file, enriches each pair with live metadata
from both venues and prints the resulting mappings.

Pairs that fail to build (unknown market, missing tokens) are skipped
with a warning; the rest are shown.

Examples:
  # Show all mappings (default table format)
  predict-arb list-markets

  # Export to JSON
  predict-arb list-markets --json > mappings.json`,
	Args: cobra.NoArgs,
	RunE: runListMarkets,
}

//nolint:gochecknoglobals // Cobra boilerplate
var listMarketsJSON bool

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(listMarketsCmd)
	listMarketsCmd.Flags().BoolVar(&listMarketsJSON, "json", false, "Output mappings as JSON")
}

func runListMarkets(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadCLIConfig()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

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

	mappings := svc.Mappings()
	if len(mappings) == 0 {
		fmt.Println("No mappings built. Check the pair file and venue credentials.")
		return nil
	}

	if listMarketsJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(mappings)
	}

	displayMappingsTable(mappings)
	return nil
}

func displayMappingsTable(mappings []*types.MarketMapping) {
	fmt.Println("\n========================================")
	fmt.Printf("Market Mappings (%d)\n", len(mappings))
	fmt.Println("========================================")

	for _, m := range mappings {
		fmt.Printf("\n%s\n", m.EventTitle)
		fmt.Printf("  Predict market:    %s\n", m.PredictMarketID)
		fmt.Printf("  Polymarket cond:   %s\n", m.PolymarketConditionID)
		fmt.Printf("  Tick size:         %s\n", m.TickSize)
		fmt.Printf("  Fee rate:          %d bps\n", m.FeeRateBps)
		if m.IsInverted {
			fmt.Println("  Inverted:          yes (Predict YES hedges with Polymarket YES)")
		}
		if m.NegRisk {
			fmt.Println("  NegRisk:           yes")
		}
	}
}
