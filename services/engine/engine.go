// Package engine drives the per-second backtest event loop: session gating,
// timeframe aggregation, pattern detection, entry planning, position
// lifecycle and the trade ledger.
package engine

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"motherbar-backtest/services/aggregation"
	"motherbar-backtest/services/market"
	"motherbar-backtest/strategies/motherbar"
)

// Options are per-run settings outside the strategy config.
type Options struct {
	// SecondLimit caps the number of seconds processed; 0 means no cap.
	SecondLimit int
	// DataSource identifies where the samples came from (file path or
	// dataset id), recorded in the run metadata.
	DataSource string
}

// Metadata describes one finished run.
type Metadata struct {
	GeneratedAt        string  `json:"generatedAt"`
	DataSource         string  `json:"dataFile"`
	BaseQuantity       int     `json:"baseQuantity"`
	ContractMultiplier float64 `json:"contractMultiplier"`
	Resolution         string  `json:"resolution"`
	Candles            int     `json:"candles"`
	Trades             int     `json:"trades"`
	Seconds            int     `json:"seconds"`
	SecondLimit        int     `json:"secondLimit,omitempty"`
}

// Result is the full output of a run: ledger and stats, the candle series for
// the configured resolution, and run metadata.
type Result struct {
	Candles  []market.CandleRow `json:"candles"`
	Summary  motherbar.Summary  `json:"summary"`
	Metadata Metadata           `json:"metadata"`
}

// Engine wires the aggregator, detector, planner, position manager and
// reporter together and owns all cross-component sequencing. It is the single
// mutator of every sub-component; processing is strictly in sample order.
type Engine struct {
	cfg    motherbar.Config
	logger *zap.Logger

	aggregator *aggregation.Aggregator
	detector   *motherbar.Detector
	planner    *motherbar.OrderPlanner
	positions  *motherbar.PositionManager
	reporter   *motherbar.TradeReporter

	sessionActive bool
	sessionDate   string
	lastProcessed *market.SecondBar
	lastRTH       *market.SecondBar
}

// NewEngine validates cfg and builds a ready engine. A nil logger disables
// logging.
func NewEngine(cfg motherbar.Config, logger *zap.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid strategy config: %w", err)
	}
	agg, err := aggregation.NewAggregator(cfg.Timeframe)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:        cfg,
		logger:     logger,
		aggregator: agg,
		detector:   motherbar.NewDetector(),
		planner:    motherbar.NewOrderPlanner(cfg),
		positions:  motherbar.NewPositionManager(cfg),
		reporter:   motherbar.NewTradeReporter(),
	}, nil
}

// ProcessSecond advances every state machine by one sample. Order matters:
// session transitions, aggregation, then in-RTH evaluation.
func (e *Engine) ProcessSecond(sample market.SecondBar) {
	inRTH := market.IsRegularTradingHours(sample.Timestamp)

	var prev *market.Timestamp
	if e.lastProcessed != nil {
		prev = &e.lastProcessed.Timestamp
	}
	if inRTH && (!e.sessionActive || market.IsSessionStart(prev, sample.Timestamp)) {
		e.startSession(sample.Timestamp.Date)
	}
	if !inRTH && e.sessionActive {
		e.endSession()
	}

	// A bucket left over from the previous session completes on the first
	// sample after the gap; it belongs to a session the detector no longer
	// remembers, so it is dropped.
	if completed := e.aggregator.Add(sample); completed != nil &&
		market.IsRegularTradingHours(completed.Start) &&
		completed.Start.Date == e.sessionDate {
		e.handleCompletedBar(*completed)
	}

	if inRTH {
		s := sample
		e.lastRTH = &s
		e.evaluateSecond(sample)
	}

	s := sample
	e.lastProcessed = &s
}

// Finalize flushes the trailing partial bar and liquidates any remaining
// position at the last RTH sample seen. Truncating the stream anywhere yields
// the same forced-liquidation behavior as natural end-of-data.
func (e *Engine) Finalize() motherbar.Summary {
	if trailing := e.aggregator.Flush(); trailing != nil &&
		market.IsRegularTradingHours(trailing.Start) {
		e.handleCompletedBar(*trailing)
	}

	if e.positions.HasOpenPosition() && e.lastRTH != nil {
		if trade, err := e.positions.ForceExit(*e.lastRTH, motherbar.ExitSessionForced); err == nil {
			e.onPositionClosed(*trade, e.detector.Active())
		}
	}

	return e.reporter.Summary()
}

// Summary returns the ledger accumulated so far.
func (e *Engine) Summary() motherbar.Summary { return e.reporter.Summary() }

func (e *Engine) handleCompletedBar(bar market.TimeframeBar) {
	activated := e.detector.Process(bar, e.positions.HasOpenPosition())
	if activated != nil && !e.positions.HasOpenPosition() {
		e.logger.Debug("pattern activated",
			zap.String("pattern", activated.ID),
			zap.Float64("long_entry", activated.Levels.N23),
			zap.Float64("short_entry", activated.Levels.P123),
		)
		e.planner.PrepareEntryOrders(activated)
	}
}

func (e *Engine) evaluateSecond(sample market.SecondBar) {
	active := e.detector.Active()

	if !e.positions.HasOpenPosition() && active != nil && !active.Invalidated {
		if entry := e.planner.EvaluateEntry(sample, active); entry != nil {
			if err := e.positions.Open(*entry, sample, active); err != nil {
				e.logger.Warn("entry rejected", zap.Error(err))
			} else {
				e.logger.Debug("position opened",
					zap.String("side", string(entry.Side)),
					zap.Float64("price", entry.Price),
					zap.String("pattern", active.ID),
				)
			}
		}
	}

	if e.positions.HasOpenPosition() {
		if closed := e.positions.EvaluateSecond(sample, active); closed != nil {
			e.onPositionClosed(*closed, active)
		}
	}

	if active != nil {
		e.checkInvalidation(sample, active)
	}
}

// onPositionClosed runs the close side effects shared by normal close and
// forced exit: cancel orders, record the trade, bump the pattern's trade
// count, then either re-arm the same pattern, promote a pending one, or clear.
func (e *Engine) onPositionClosed(trade motherbar.ClosedTrade, pattern *motherbar.PatternState) {
	e.planner.CancelAll()
	record := e.reporter.Record(trade)
	e.logger.Debug("trade closed",
		zap.String("trade", record.ID),
		zap.String("reason", string(record.ExitReason)),
		zap.Float64("pnl_points", record.PnlPoints),
	)

	if pattern == nil {
		return
	}

	pattern.TradeCount++

	if pattern.TradeCount < 2 && !pattern.Invalidated {
		e.planner.PrepareEntryOrders(pattern)
		return
	}

	if e.detector.HasPending() {
		e.detector.ClearActive()
		if promoted := e.detector.PromotePending(); promoted != nil {
			e.planner.PrepareEntryOrders(promoted)
		}
		return
	}

	if pattern.Invalidated {
		e.detector.ClearActive()
	}
}

// checkInvalidation abandons the pattern once price breaches p200 above or
// n100 below. With no position open the pattern is cleared immediately and a
// pending pattern, if any, takes its place.
func (e *Engine) checkInvalidation(sample market.SecondBar, pattern *motherbar.PatternState) {
	if pattern.Invalidated {
		return
	}

	breachedHigh := sample.High >= pattern.Levels.P200
	breachedLow := sample.Low <= pattern.Levels.N100
	if !breachedHigh && !breachedLow {
		return
	}

	e.logger.Debug("pattern invalidated", zap.String("pattern", pattern.ID))
	e.detector.MarkInvalidated()
	e.planner.CancelAll()

	if !e.positions.HasOpenPosition() {
		e.detector.ClearActive()
		if promoted := e.detector.PromotePending(); promoted != nil {
			e.planner.PrepareEntryOrders(promoted)
		}
	}
}

func (e *Engine) startSession(date string) {
	e.sessionActive = true
	e.sessionDate = date
	e.planner.CancelAll()

	activeBeforeReset := e.detector.Active()
	if e.positions.HasOpenPosition() && e.lastProcessed != nil {
		if trade, err := e.positions.ForceExit(*e.lastProcessed, motherbar.ExitSessionForced); err == nil {
			e.onPositionClosed(*trade, activeBeforeReset)
		}
	}

	e.detector.Reset()
}

func (e *Engine) endSession() {
	e.sessionActive = false
	e.planner.CancelAll()

	activeBeforeReset := e.detector.Active()
	if e.positions.HasOpenPosition() && e.lastRTH != nil {
		if trade, err := e.positions.ForceExit(*e.lastRTH, motherbar.ExitSessionForced); err == nil {
			e.onPositionClosed(*trade, activeBeforeReset)
		}
	}

	e.detector.Reset()
}

// RunBacktest replays samples through a fresh engine and returns the full
// result. The same samples and config always produce an identical result.
func RunBacktest(samples []market.SecondBar, cfg motherbar.Config, opts Options, logger *zap.Logger) (*Result, error) {
	eng, err := NewEngine(cfg, logger)
	if err != nil {
		return nil, err
	}

	dataset := samples
	if opts.SecondLimit > 0 && opts.SecondLimit < len(samples) {
		dataset = samples[:opts.SecondLimit]
	}

	candles, err := BuildCandles(dataset, cfg.Timeframe)
	if err != nil {
		return nil, err
	}

	for _, sample := range dataset {
		eng.ProcessSecond(sample)
	}
	summary := eng.Finalize()

	return &Result{
		Candles: candles,
		Summary: summary,
		Metadata: Metadata{
			GeneratedAt:        time.Now().UTC().Format(time.RFC3339),
			DataSource:         opts.DataSource,
			BaseQuantity:       cfg.BaseQuantity,
			ContractMultiplier: cfg.ContractMultiplier,
			Resolution:         string(cfg.Timeframe),
			Candles:            len(candles),
			Trades:             summary.TotalTrades,
			Seconds:            len(dataset),
			SecondLimit:        opts.SecondLimit,
		},
	}, nil
}
