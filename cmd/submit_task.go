package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/apri1one/predict-arb-sub004/internal/discovery"
	"github.com/apri1one/predict-arb-sub004/pkg/types"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var submitTaskCmd = &cobra.Command{
	Use:   "submit-task <predict-market-id>",
	Short: "Submit a hedged trade task to a running engine",
	Long: `Builds the market mapping for a Predict market, assembles a trade
task from the flags and submits it to a running engine's API.

The required price flags depend on (kind, strategy):
  BUY  MAKER: --predict-price, --poly-max-ask, --min-profit-buffer
  BUY  TAKER: --predict-ask, --poly-max-ask, --max-total-cost
  SELL MAKER: --predict-ask, --poly-min-bid, --entry-cost
  SELL TAKER: --predict-price, --poly-min-bid, --entry-cost

Examples:
  # Open a YES pair with a resting Predict maker leg
  predict-arb submit-task 0x12ab --kind BUY --strategy MAKER --side YES \
    --qty 100 --predict-price 0.44 --poly-max-ask 0.55 --min-profit-buffer 0.01

  # Submit and poll until the task reaches a terminal state
  predict-arb submit-task 0x12ab --kind BUY --strategy TAKER --side YES \
    --qty 50 --predict-ask 0.45 --poly-max-ask 0.54 --max-total-cost 0.99 --watch`,
	Args: cobra.ExactArgs(1),
	RunE: runSubmitTask,
}

//nolint:gochecknoglobals // Cobra boilerplate
var (
	taskAddr     string
	taskKind     string
	taskStrategy string
	taskSide     string
	taskQty      string
	taskWatch    bool

	taskPredictPrice    string
	taskPredictAsk      string
	taskPolyMaxAsk      string
	taskPolyMinBid      string
	taskMaxTotalCost    string
	taskMinProfitBuffer string
	taskEntryCost       string
)

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(submitTaskCmd)
	submitTaskCmd.Flags().StringVar(&taskAddr, "addr", "http://localhost:8080", "Engine API address")
	submitTaskCmd.Flags().StringVar(&taskKind, "kind", "BUY", "Task kind: BUY or SELL")
	submitTaskCmd.Flags().StringVar(&taskStrategy, "strategy", "MAKER", "Predict leg style: MAKER or TAKER")
	submitTaskCmd.Flags().StringVar(&taskSide, "side", "YES", "Arb side in Predict outcomes: YES or NO")
	submitTaskCmd.Flags().StringVar(&taskQty, "qty", "", "Quantity in shares (required)")
	submitTaskCmd.Flags().BoolVar(&taskWatch, "watch", false, "Poll the task until it reaches a terminal state")

	submitTaskCmd.Flags().StringVar(&taskPredictPrice, "predict-price", "", "Predict limit price")
	submitTaskCmd.Flags().StringVar(&taskPredictAsk, "predict-ask", "", "Predict taker/ask price")
	submitTaskCmd.Flags().StringVar(&taskPolyMaxAsk, "poly-max-ask", "", "Max Polymarket ask for the hedge leg (BUY)")
	submitTaskCmd.Flags().StringVar(&taskPolyMinBid, "poly-min-bid", "", "Min Polymarket bid for the hedge leg (SELL)")
	submitTaskCmd.Flags().StringVar(&taskMaxTotalCost, "max-total-cost", "", "Cap on combined two-leg cost")
	submitTaskCmd.Flags().StringVar(&taskMinProfitBuffer, "min-profit-buffer", "", "Required edge below cost 1")
	submitTaskCmd.Flags().StringVar(&taskEntryCost, "entry-cost", "", "Per-share cost basis being unwound")
}

func runSubmitTask(cmd *cobra.Command, args []string) error {
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

	task, err := buildTask(mapping, taskKind, taskStrategy, taskSide, taskQty, taskParamFlags{
		PredictPrice:    taskPredictPrice,
		PredictAsk:      taskPredictAsk,
		PolyMaxAsk:      taskPolyMaxAsk,
		PolyMinBid:      taskPolyMinBid,
		MaxTotalCost:    taskMaxTotalCost,
		MinProfitBuffer: taskMinProfitBuffer,
		EntryCost:       taskEntryCost,
	})
	if err != nil {
		return err
	}

	client := newEngineAPIClient(taskAddr, cfg.APIToken)

	var created types.Task
	resp, err := client.R().
		SetBody(task).
		SetResult(&created).
		Post("/api/tasks")
	if err != nil {
		return fmt.Errorf("submit task: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("engine rejected task %s: %s", resp.Status(), resp.String())
	}

	fmt.Printf("Task %s submitted (%s %s %s, qty %s)\n",
		created.ID, created.Kind, created.Strategy, created.ArbSide, created.Quantity.String())

	if !taskWatch {
		return nil
	}
	return watchTask(client, created.ID)
}

// taskParamFlags carries the raw price flags before decimal parsing.
type taskParamFlags struct {
	PredictPrice    string
	PredictAsk      string
	PolyMaxAsk      string
	PolyMinBid      string
	MaxTotalCost    string
	MinProfitBuffer string
	EntryCost       string
}

// buildTask assembles a task from flag values. The engine re-validates;
// this only catches obvious mistakes before the round trip.
func buildTask(mapping *types.MarketMapping, kind, strategy, side, qty string, params taskParamFlags) (*types.Task, error) {
	taskKind := types.TaskKind(strings.ToUpper(kind))
	if taskKind != types.TaskBuy && taskKind != types.TaskSell {
		return nil, fmt.Errorf("invalid kind %q (valid: BUY, SELL)", kind)
	}

	taskStrategy := types.TaskStrategy(strings.ToUpper(strategy))
	if taskStrategy != types.StrategyMaker && taskStrategy != types.StrategyTaker {
		return nil, fmt.Errorf("invalid strategy %q (valid: MAKER, TAKER)", strategy)
	}

	arbSide := types.Outcome(strings.ToUpper(side))
	if arbSide != types.OutcomeYes && arbSide != types.OutcomeNo {
		return nil, fmt.Errorf("invalid side %q (valid: YES, NO)", side)
	}

	if qty == "" {
		return nil, fmt.Errorf("--qty is required")
	}
	quantity, err := decimal.NewFromString(qty)
	if err != nil || !quantity.IsPositive() {
		return nil, fmt.Errorf("invalid quantity %q", qty)
	}

	parsed, err := parseTaskParams(params)
	if err != nil {
		return nil, err
	}

	return &types.Task{
		Kind:       taskKind,
		Strategy:   taskStrategy,
		Mapping:    *mapping,
		ArbSide:    arbSide,
		Quantity:   quantity,
		Params:     *parsed,
		FeeRateBps: mapping.FeeRateBps,
	}, nil
}

func parseTaskParams(flags taskParamFlags) (*types.TaskParams, error) {
	params := &types.TaskParams{}

	fields := []struct {
		name  string
		raw   string
		field *decimal.Decimal
	}{
		{"--predict-price", flags.PredictPrice, &params.PredictPrice},
		{"--predict-ask", flags.PredictAsk, &params.PredictAskPrice},
		{"--poly-max-ask", flags.PolyMaxAsk, &params.PolymarketMaxAsk},
		{"--poly-min-bid", flags.PolyMinBid, &params.PolymarketMinBid},
		{"--max-total-cost", flags.MaxTotalCost, &params.MaxTotalCost},
		{"--min-profit-buffer", flags.MinProfitBuffer, &params.MinProfitBuffer},
		{"--entry-cost", flags.EntryCost, &params.EntryCost},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		value, err := decimal.NewFromString(f.raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s value %q", f.name, f.raw)
		}
		*f.field = value
	}

	return params, nil
}

func watchTask(client *resty.Client, taskID string) error {
	fmt.Println("Watching task...")

	for {
		time.Sleep(2 * time.Second)

		var task types.Task
		resp, err := client.R().
			SetResult(&task).
			Get("/api/tasks/" + taskID)
		if err != nil {
			return fmt.Errorf("poll task: %w", err)
		}
		if resp.IsError() {
			return fmt.Errorf("engine returned %s: %s", resp.Status(), resp.String())
		}

		fmt.Printf("  %s  filled %s  hedged %s\n",
			task.Status, task.Counters.FilledQty.String(), task.Counters.HedgedQty.String())

		if task.Status.IsTerminal() {
			fmt.Printf("Task %s finished: %s\n", task.ID, task.Status)
			if task.Counters.LastReason != "" {
				fmt.Printf("  reason: %s\n", task.Counters.LastReason)
			}
			return nil
		}
	}
}
