package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/apri1one/predict-arb-sub004/internal/discovery"
	"github.com/apri1one/predict-arb-sub004/internal/orderbook"
	"github.com/apri1one/predict-arb-sub004/internal/venue/polymarket"
	"github.com/apri1one/predict-arb-sub004/internal/venue/predict"
	"github.com/apri1one/predict-arb-sub004/pkg/types"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var watchOrderbookCmd = &cobra.Command{
	Use:   "watch-orderbook <predict-market-id>",
	Short: "Watch both venues' order books for one mapped market",
	Long: `Builds the mapping for a Predict market, subscribes to its book on
both venues and prints every update. Useful for checking a pairing
before trading it.

Example:
  predict-arb watch-orderbook 0x12ab34cd`,
	Args: cobra.ExactArgs(1),
	RunE: runWatchOrderbook,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(watchOrderbookCmd)
}

func runWatchOrderbook(cmd *cobra.Command, args []string) error {
	marketID := args[0]

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
	mapping, ok := svc.MappingFor(marketID)
	if !ok {
		return fmt.Errorf("no mapping for predict market %s; is it in %s?", marketID, cfg.MappingFile)
	}

	fmt.Printf("Market: %s\n", mapping.EventTitle)
	fmt.Printf("Predict market:  %s\n", mapping.PredictMarketID)
	fmt.Printf("Polymarket cond: %s\n\n", mapping.PolymarketConditionID)

	books := orderbook.NewCache(logger)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	outcomes := map[string]types.Outcome{
		mapping.PredictYesTokenID:    types.OutcomeYes,
		mapping.PredictNoTokenID:     types.OutcomeNo,
		mapping.PolymarketYesTokenID: types.OutcomeYes,
		mapping.PolymarketNoTokenID:  types.OutcomeNo,
	}
	printUpdate := func(book *types.NormalizedOrderBook) {
		printBookUpdate(w, book, outcomes[book.AssetID])
	}
	books.AddListener(types.VenuePredict, "", printUpdate)
	books.AddListener(types.VenuePolymarket, "", printUpdate)

	predictStream, err := predict.NewMarketStream(predict.MarketStreamConfig{
		URL:                   cfg.PredictWSURL,
		Cache:                 books,
		PingInterval:          cfg.WSPingInterval,
		DialTimeout:           cfg.WSDialTimeout,
		ReconnectInitialDelay: cfg.WSReconnectInitialDelay,
		ReconnectMaxDelay:     cfg.WSReconnectMaxDelay,
		ReconnectBackoffMult:  cfg.WSReconnectBackoffMult,
		ReconnectMaxAttempts:  cfg.WSReconnectMaxAttempts,
		MessageBufferSize:     cfg.WSMessageBufferSize,
		Logger:                logger,
	})
	if err != nil {
		return fmt.Errorf("create predict stream: %w", err)
	}

	polyStream, err := polymarket.NewMarketStream(polymarket.MarketStreamConfig{
		URL:                   cfg.PolymarketWSURL,
		Cache:                 books,
		PingInterval:          cfg.WSPingInterval,
		DialTimeout:           cfg.WSDialTimeout,
		ReconnectInitialDelay: cfg.WSReconnectInitialDelay,
		ReconnectMaxDelay:     cfg.WSReconnectMaxDelay,
		ReconnectBackoffMult:  cfg.WSReconnectBackoffMult,
		ReconnectMaxAttempts:  cfg.WSReconnectMaxAttempts,
		MessageBufferSize:     cfg.WSMessageBufferSize,
		Logger:                logger,
	})
	if err != nil {
		return fmt.Errorf("create polymarket stream: %w", err)
	}

	if err := predictStream.Connect(); err != nil {
		return fmt.Errorf("connect predict stream: %w", err)
	}
	defer predictStream.Disconnect(false)

	if err := polyStream.Connect(); err != nil {
		return fmt.Errorf("connect polymarket stream: %w", err)
	}
	defer polyStream.Disconnect(false)

	if err := predictStream.Subscribe([]string{mapping.PredictMarketID}); err != nil {
		return fmt.Errorf("subscribe predict: %w", err)
	}
	if err := polyStream.Subscribe([]string{mapping.PolymarketYesTokenID, mapping.PolymarketNoTokenID}); err != nil {
		return fmt.Errorf("subscribe polymarket: %w", err)
	}

	fmt.Println("Subscribed. Watching for book updates...")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	fmt.Println("\nShutting down...")
	return nil
}

func printBookUpdate(w *tabwriter.Writer, book *types.NormalizedOrderBook, outcome types.Outcome) {
	timestamp := time.UnixMilli(book.UpdateTimestampMs).Format("15:04:05")

	bestBid := "N/A"
	if bid, ok := book.BestBid(); ok {
		bestBid = fmt.Sprintf("%s@%s", bid.Price.StringFixed(3), bid.Size.String())
	}
	bestAsk := "N/A"
	if ask, ok := book.BestAsk(); ok {
		bestAsk = fmt.Sprintf("%s@%s", ask.Price.StringFixed(3), ask.Size.String())
	}

	fmt.Fprintf(w, "[%s] %s\t%s\tBid: %s\tAsk: %s\n",
		timestamp, book.Venue, outcome, bestBid, bestAsk)
	w.Flush()
}
