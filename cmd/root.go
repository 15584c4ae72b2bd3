package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var rootCmd = &cobra.Command{
	Use:   "predict-arb",
	Short: "Cross-venue prediction market arbitrage engine",
	Long: `Arbitrage engine bridging Predict (BSC) and Polymarket (Polygon).

The engine maintains operator-declared market pairings, mirrors both
venues' order books over WebSocket, reconciles positions into
delta-neutral pairs, and executes hedged two-leg trades as scheduled
tasks exposed over an HTTP API.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
