// Command server exposes the backtest engine over HTTP: dataset management,
// backtest runs, candle export and an SSE replay stream.
package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"motherbar-backtest/services/arrowpipeline"
	ch "motherbar-backtest/services/clickhouse"
	"motherbar-backtest/services/config"
	"motherbar-backtest/services/engine"
	"motherbar-backtest/services/market"
	"motherbar-backtest/strategies/motherbar"
)

type server struct {
	store  *ch.Client
	arrow  *arrowpipeline.Pipeline
	logger *zap.Logger
	cfg    config.Config
}

type backtestRequest struct {
	DatasetID             string   `json:"datasetId" binding:"required"`
	Timeframe             string   `json:"timeframe"`
	BaseQuantity          *int     `json:"baseQuantity"`
	ContractMultiplier    *float64 `json:"contractMultiplier"`
	EnableLongEntry       *bool    `json:"enableLongEntry"`
	EnableLongTakeProfit  *bool    `json:"enableLongTakeProfit"`
	EnableShortEntry      *bool    `json:"enableShortEntry"`
	EnableShortTakeProfit *bool    `json:"enableShortTakeProfit"`
	Seconds               int      `json:"seconds"`
}

func main() {
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

	s := &server{
		store:  store,
		arrow:  arrowpipeline.NewPipeline(logger),
		logger: logger,
		cfg:    cfg,
	}

	router := gin.New()
	router.Use(gin.Recovery())

	api := router.Group("/api")
	api.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	api.GET("/datasets", s.listDatasets)
	api.POST("/datasets", s.uploadDataset)
	api.POST("/backtest", s.runBacktest)
	api.GET("/candles/:dataset/arrow", s.exportCandles)
	api.GET("/feed/:dataset/stream", s.streamFeed)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
	}
}

func (s *server) listDatasets(c *gin.Context) {
	datasets, err := s.store.ListDatasets(c.Request.Context())
	if err != nil {
		s.logger.Error("list datasets failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"datasets": datasets})
}

func (s *server) uploadDataset(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file field"})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer file.Close()

	bars, err := engine.ParseSecondBars(file)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	datasetID := uuid.New().String()
	if err := s.store.InsertSeconds(c.Request.Context(), datasetID, fileHeader.Filename, bars); err != nil {
		s.logger.Error("dataset insert failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":   datasetID,
		"name": fileHeader.Filename,
		"rows": len(bars),
	})
}

func (s *server) runBacktest(c *gin.Context) {
	var req backtestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tf, err := market.ParseTimeframe(orDefault(req.Timeframe, s.cfg.DefaultTimeframe))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	strategyCfg := motherbar.DefaultConfig()
	strategyCfg.Timeframe = tf
	if req.BaseQuantity != nil {
		strategyCfg.BaseQuantity = *req.BaseQuantity
	}
	if req.ContractMultiplier != nil {
		strategyCfg.ContractMultiplier = *req.ContractMultiplier
	}
	if req.EnableLongEntry != nil {
		strategyCfg.EnableLongEntry = *req.EnableLongEntry
	}
	if req.EnableLongTakeProfit != nil {
		strategyCfg.EnableLongTakeProfit = *req.EnableLongTakeProfit
	}
	if req.EnableShortEntry != nil {
		strategyCfg.EnableShortEntry = *req.EnableShortEntry
	}
	if req.EnableShortTakeProfit != nil {
		strategyCfg.EnableShortTakeProfit = *req.EnableShortTakeProfit
	}

	seconds, err := s.store.LoadSeconds(c.Request.Context(), req.DatasetID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	jobID := uuid.New().String()
	start := time.Now()
	result, err := engine.RunBacktest(seconds, strategyCfg, engine.Options{
		SecondLimit: req.Seconds,
		DataSource:  req.DatasetID,
	}, s.logger)
	if err != nil {
		s.logger.Error("backtest failed", zap.String("job_id", jobID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	s.logger.Info("backtest completed",
		zap.String("job_id", jobID),
		zap.String("dataset", req.DatasetID),
		zap.Int("trades", result.Summary.TotalTrades),
		zap.Duration("elapsed", time.Since(start)),
	)

	c.JSON(http.StatusOK, gin.H{
		"jobId":    jobID,
		"metadata": result.Metadata,
		"summary":  result.Summary,
		"candles":  result.Candles,
		"trades":   result.Summary.Trades,
	})
}

func (s *server) exportCandles(c *gin.Context) {
	tf, err := market.ParseTimeframe(orDefault(c.Query("timeframe"), s.cfg.DefaultTimeframe))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	seconds, err := s.store.LoadSeconds(c.Request.Context(), c.Param("dataset"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	candles, err := engine.BuildCandles(seconds, tf)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	payload, err := s.arrow.EncodeCandles(candles)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/vnd.apache.arrow.stream", payload)
}

func (s *server) streamFeed(c *gin.Context) {
	tf, err := market.ParseTimeframe(orDefault(c.Query("timeframe"), s.cfg.DefaultTimeframe))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	seconds, err := s.store.LoadSeconds(c.Request.Context(), c.Param("dataset"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	feed, err := engine.NewReplayFeed(seconds, tf)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.Stream(func(w io.Writer) bool {
		event, err := feed.Next()
		if err != nil {
			s.logger.Error("feed step failed", zap.Error(err))
			return false
		}
		if event == nil {
			return false
		}
		c.SSEvent("tick", event)
		return true
	})
}

func orDefault(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
