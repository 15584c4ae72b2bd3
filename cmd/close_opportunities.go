package cmd

import (
	"fmt"
	"os"

	"github.com/apri1one/predict-arb-sub004/internal/positions"
	json "github.com/goccy/go-json"
	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var closeOpportunitiesCmd = &cobra.Command{
	Use:   "close-opportunities",
	Short: "Show unwind quotes for matched pairs from a running engine",
	Long: `Queries a running engine's API for the latest close quotes: each
matched delta-neutral pair with its Taker-Taker and Maker-Taker unwind
economics evaluated against the live books.

Examples:
  # Against the local engine
  predict-arb close-opportunities

  # Against a remote engine
  predict-arb close-opportunities --addr http://engine:8080`,
	Args: cobra.NoArgs,
	RunE: runCloseOpportunities,
}

//nolint:gochecknoglobals // Cobra boilerplate
var (
	closeOppAddr string
	closeOppJSON bool
)

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(closeOpportunitiesCmd)
	closeOpportunitiesCmd.Flags().StringVar(&closeOppAddr, "addr", "http://localhost:8080", "Engine API address")
	closeOpportunitiesCmd.Flags().BoolVar(&closeOppJSON, "json", false, "Output quotes as JSON")
}

func runCloseOpportunities(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadCLIConfig()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	client := newEngineAPIClient(closeOppAddr, cfg.APIToken)

	var quotes []positions.CloseQuote
	resp, err := client.R().
		SetResult(&quotes).
		Get("/api/close-opportunities")
	if err != nil {
		return fmt.Errorf("query engine: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("engine returned %s: %s", resp.Status(), resp.String())
	}

	if closeOppJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(quotes)
	}

	if len(quotes) == 0 {
		fmt.Println("No matched pairs with close quotes.")
		return nil
	}

	displayCloseQuotes(quotes)
	return nil
}

// newEngineAPIClient builds a resty client against the engine control API.
func newEngineAPIClient(addr, token string) *resty.Client {
	client := resty.New().SetBaseURL(addr)
	if token != "" {
		client.SetAuthToken(token)
	}
	return client
}

func displayCloseQuotes(quotes []positions.CloseQuote) {
	fmt.Printf("Close Opportunities (%d)\n", len(quotes))
	fmt.Println("================================================================================")

	for _, q := range quotes {
		fmt.Printf("\n%s\n", q.Pair.Mapping.EventTitle)
		fmt.Printf("  Matched: %s shares, entry cost %s/share\n",
			q.Pair.MatchedShares.String(), q.Pair.EntryCostPerShare.StringFixed(4))

		tt := q.Opportunity.TT
		mt := q.Opportunity.MT
		fmt.Printf("  TT: profit %s/share, min poly bid %s%s\n",
			tt.EstProfitPerShare.StringFixed(4), tt.MinPolyBid.StringFixed(4), validTag(tt.Valid))
		fmt.Printf("  MT: profit %s/share, min poly bid %s%s (predict ask %s)\n",
			mt.EstProfitPerShare.StringFixed(4), mt.MinPolyBid.StringFixed(4), validTag(mt.Valid),
			q.PredictAsk.StringFixed(3))
	}
}

func validTag(valid bool) string {
	if valid {
		return "  [VALID]"
	}
	return ""
}
