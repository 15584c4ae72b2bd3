package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/apri1one/predict-arb-sub004/internal/venue/predict"
	"github.com/apri1one/predict-arb-sub004/pkg/wallet"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

//nolint:gochecknoglobals // Cobra boilerplate
var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show venue account and on-chain collateral balances",
	Long: `Shows the Predict account balance plus each configured wallet's
on-chain state: gas token, collateral balance and the allowance granted
to the venue exchange contract.

Examples:
  predict-arb balance`,
	Args: cobra.NoArgs,
	RunE: runBalance,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(balanceCmd)
}

func runBalance(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadCLIConfig()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if cfg.PredictSignerPrivateKey != "" && cfg.PredictSmartWallet != "" {
		predictClient, err := newPredictClient(cfg, logger)
		if err != nil {
			return fmt.Errorf("create predict client: %w", err)
		}
		balance, err := predictClient.GetBalance(ctx)
		if err != nil {
			logger.Warn("predict-balance-failed", zap.Error(err))
		} else {
			fmt.Printf("Predict account balance: $%s\n", balance.StringFixed(2))
		}
	}

	if cfg.PredictSmartWallet != "" {
		client, err := wallet.NewClient(wallet.Config{
			RPCURL:        cfg.BSCRPCURL,
			Token:         wallet.BSCUSDT,
			Spender:       predict.DefaultExchangeContracts.CTF,
			TokenDecimals: 18,
			Logger:        logger,
		})
		if err != nil {
			return fmt.Errorf("create bsc wallet client: %w", err)
		}
		displayCollateral(ctx, logger, "Predict (BSC)", client,
			common.HexToAddress(cfg.PredictSmartWallet), "BNB", "USDT")
	}

	polyWallet := cfg.PolymarketProxyAddress
	if polyWallet == "" {
		polyWallet = cfg.PolymarketTraderAddress
	}
	if polyWallet != "" {
		client, err := wallet.NewClient(wallet.Config{
			RPCURL:        cfg.PolygonRPCURL,
			Token:         wallet.PolygonUSDC,
			Spender:       wallet.PolygonCTFExchange,
			TokenDecimals: 6,
			Logger:        logger,
		})
		if err != nil {
			return fmt.Errorf("create polygon wallet client: %w", err)
		}
		displayCollateral(ctx, logger, "Polymarket (Polygon)", client,
			common.HexToAddress(polyWallet), "POL", "USDC")
	}

	if cfg.PredictSmartWallet == "" && polyWallet == "" {
		fmt.Println("No venue wallets configured.")
	}
	return nil
}

func displayCollateral(
	ctx context.Context,
	logger *zap.Logger,
	label string,
	client *wallet.Client,
	owner common.Address,
	nativeSymbol string,
	tokenSymbol string,
) {
	col, err := client.GetCollateral(ctx, owner)
	if err != nil {
		logger.Warn("collateral-read-failed", zap.String("wallet", label), zap.Error(err))
		return
	}

	fmt.Printf("\n%s  %s\n", label, owner.Hex())
	fmt.Printf("  %-6s balance:   %s\n", nativeSymbol, col.Native.StringFixed(4))
	fmt.Printf("  %-6s balance:   %s\n", tokenSymbol, col.Token.StringFixed(2))
	fmt.Printf("  %-6s allowance: %s\n", tokenSymbol, col.Allowance.StringFixed(2))
}
