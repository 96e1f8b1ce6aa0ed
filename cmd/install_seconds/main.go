// Command install_seconds is a one-shot installer: it loads a second-bar CSV
// and stores it as a dataset in ClickHouse.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	ch "motherbar-backtest/services/clickhouse"
	"motherbar-backtest/services/config"
	"motherbar-backtest/services/engine"
)

func main() {
	csvPath := flag.String("csv", "", "Path to second-bar CSV (required)")
	name := flag.String("name", "", "Dataset name (defaults to the file name)")
	flag.Parse()

	if *csvPath == "" {
		fmt.Fprintln(os.Stderr, "usage: install_seconds -csv <path> [-name <dataset name>]")
		os.Exit(2)
	}
	datasetName := *name
	if datasetName == "" {
		datasetName = filepath.Base(*csvPath)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg := config.Load()
	ctx := context.Background()

	store, err := ch.NewClient(ctx, ch.Config{
		DSN:      cfg.ClickHouseDSN,
		Database: cfg.Database,
		Table:    cfg.Table,
		User:     cfg.User,
		Password: cfg.Password,
	}, logger)
	if err != nil {
		logger.Fatal("clickhouse init failed", zap.Error(err))
	}
	defer store.Close()

	bars, err := engine.LoadSecondBars(*csvPath)
	if err != nil {
		logger.Fatal("load csv failed", zap.Error(err))
	}

	datasetID := uuid.New().String()
	if err := store.InsertSeconds(ctx, datasetID, datasetName, bars); err != nil {
		logger.Fatal("insert failed", zap.Error(err))
	}

	fmt.Printf("dataset %s installed: %s (%d rows)\n", datasetID, datasetName, len(bars))
}
