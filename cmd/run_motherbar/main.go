// Command run_motherbar runs a mother-bar breakout backtest over a local CSV
// of one-second bars and prints the summary.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"motherbar-backtest/services/arrowpipeline"
	"motherbar-backtest/services/engine"
	"motherbar-backtest/services/market"
	"motherbar-backtest/strategies/motherbar"
)

func main() {
	csvPath := flag.String("csv", "data/MESZ3-OHLC1s-20231215.csv", "Path to second-bar CSV")
	timeframe := flag.String("timeframe", "1m", "Aggregation resolution (1m/5m/15m/30m/1h)")
	baseQty := flag.Int("base-qty", 1, "Base order quantity")
	multiplier := flag.Float64("contract-multiplier", 5, "Currency per price point")
	longEntry := flag.Bool("enable-long-entry", true, "Enable long entries")
	longTP := flag.Bool("enable-long-tp", true, "Enable long take-profit")
	shortEntry := flag.Bool("enable-short-entry", true, "Enable short entries")
	shortTP := flag.Bool("enable-short-tp", true, "Enable short take-profit")
	seconds := flag.Int("seconds", 0, "Cap on processed seconds (0 = all)")
	jsonOut := flag.String("out", "", "Write full result JSON to this path")
	arrowOut := flag.String("arrow-out", "", "Write candle series as Arrow IPC to this path")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	logger := zap.NewNop()
	if *verbose {
		var err error
		logger, err = zap.NewDevelopment()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	tf, err := market.ParseTimeframe(*timeframe)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg := motherbar.Config{
		ContractMultiplier:    *multiplier,
		BaseQuantity:          *baseQty,
		EnableLongEntry:       *longEntry,
		EnableLongTakeProfit:  *longTP,
		EnableShortEntry:      *shortEntry,
		EnableShortTakeProfit: *shortTP,
		Timeframe:             tf,
	}

	samples, err := engine.LoadSecondBars(*csvPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	result, err := engine.RunBacktest(samples, cfg, engine.Options{
		SecondLimit: *seconds,
		DataSource:  *csvPath,
	}, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	printSummary(result)

	if *jsonOut != "" {
		payload, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		if err := os.WriteFile(*jsonOut, payload, 0o644); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("result written to %s\n", *jsonOut)
	}

	if *arrowOut != "" {
		payload, err := arrowpipeline.NewPipeline(logger).EncodeCandles(result.Candles)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		if err := os.WriteFile(*arrowOut, payload, 0o644); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("candles written to %s\n", *arrowOut)
	}
}

func printSummary(result *engine.Result) {
	s := result.Summary
	fmt.Printf("== %s | %s | %d candles | %d seconds ==\n",
		result.Metadata.DataSource, result.Metadata.Resolution,
		result.Metadata.Candles, result.Metadata.Seconds)
	fmt.Printf("trades: %d (W %d / L %d)\n", s.TotalTrades, s.WinningTrades, s.LosingTrades)
	fmt.Printf("net pnl: %.2f pts / %s currency\n", s.NetPnlPoints, s.NetPnlCurrency.StringFixed(2))
	fmt.Printf("gross: +%.2f / %.2f pts\n", s.GrossProfitPoints, s.GrossLossPoints)
	for _, t := range s.Trades {
		fmt.Printf("  %-4s %-5s qty=%d entry=%.2f@%s exit=%.2f@%s %-14s pnl=%.2f\n",
			t.ID, t.Side, t.Quantity,
			t.EntryPrice, t.EntryTime.Time,
			t.ExitPrice, t.ExitTime.Time,
			t.ExitReason, t.PnlPoints)
	}
}
