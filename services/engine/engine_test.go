package engine

import (
	"bytes"
	"encoding/json"
	"testing"

	"motherbar-backtest/services/market"
	"motherbar-backtest/strategies/motherbar"
)

func sampleAt(t *testing.T, raw string, o, h, l, c float64) market.SecondBar {
	t.Helper()
	ts, err := market.ParseTimestamp(raw)
	if err != nil {
		t.Fatal(err)
	}
	return market.SecondBar{Timestamp: ts, Open: o, High: h, Low: l, Close: c, Volume: 1}
}

// patternSetup yields a mother bar (100-102) and an inside bar, so that the
// third minute activates the pattern with long entry 99.54, short entry
// 102.46, stop 96/106, take-profit 101.
func patternSetup(t *testing.T, date string) []market.SecondBar {
	t.Helper()
	return []market.SecondBar{
		sampleAt(t, date+" 09:30:00", 100, 102, 100, 101),
		sampleAt(t, date+" 09:31:00", 100.8, 101.5, 100.5, 101),
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := NewEngine(motherbar.DefaultConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}
	return eng
}

func TestEngineFullTradeLifecycle(t *testing.T) {
	eng := newTestEngine(t)
	samples := append(patternSetup(t, "2023-12-15"),
		// Completes the inside bar, activates the pattern, and the same
		// sample touches the long entry.
		sampleAt(t, "2023-12-15 09:32:00", 99.6, 99.6, 99.5, 99.55),
		// Take-profit at p50.
		sampleAt(t, "2023-12-15 09:33:00", 100.9, 101.1, 100.8, 101),
	)
	for _, s := range samples {
		eng.ProcessSecond(s)
	}
	summary := eng.Finalize()

	if summary.TotalTrades != 1 {
		t.Fatalf("expected 1 trade, got %d", summary.TotalTrades)
	}
	trade := summary.Trades[0]
	if trade.Side != motherbar.SideLong || trade.ExitReason != motherbar.ExitTakeProfit {
		t.Fatalf("unexpected trade: %+v", trade)
	}
	if trade.EntryPrice != 99.54 || trade.ExitPrice != 101 {
		t.Fatalf("unexpected prices: %+v", trade)
	}
	if trade.EntryTime.Time != "09:32:00" || trade.ExitTime.Time != "09:33:00" {
		t.Fatalf("unexpected times: %s -> %s", trade.EntryTime.Time, trade.ExitTime.Time)
	}
}

func TestEnginePatternTradeCap(t *testing.T) {
	eng := newTestEngine(t)
	samples := append(patternSetup(t, "2023-12-15"),
		sampleAt(t, "2023-12-15 09:32:00", 99.6, 99.6, 99.5, 99.55), // fill 1
		sampleAt(t, "2023-12-15 09:33:00", 100.9, 101.1, 100.8, 101), // tp 1, re-arm
		sampleAt(t, "2023-12-15 09:34:00", 99.6, 99.6, 99.5, 99.55), // fill 2
		sampleAt(t, "2023-12-15 09:35:00", 100.9, 101.1, 100.8, 101), // tp 2, cap reached
		sampleAt(t, "2023-12-15 09:36:00", 99.6, 99.6, 99.5, 99.55), // must not fill
		sampleAt(t, "2023-12-15 09:37:00", 100.9, 101.1, 100.8, 101),
	)
	for _, s := range samples {
		eng.ProcessSecond(s)
	}
	summary := eng.Finalize()

	if summary.TotalTrades != 2 {
		t.Fatalf("expected exactly 2 trades, got %d", summary.TotalTrades)
	}
	for _, trade := range summary.Trades {
		if trade.ExitReason != motherbar.ExitTakeProfit {
			t.Fatalf("unexpected exit: %+v", trade)
		}
	}
}

func TestEngineInvalidationCancelsOrders(t *testing.T) {
	eng := newTestEngine(t)
	samples := append(patternSetup(t, "2023-12-15"),
		// Activates the pattern and immediately breaches p200 (104).
		sampleAt(t, "2023-12-15 09:32:00", 103, 104.2, 103, 104),
		// The old long target is touched but no order may remain.
		sampleAt(t, "2023-12-15 09:33:00", 99.6, 99.6, 99.5, 99.55),
		sampleAt(t, "2023-12-15 09:34:00", 100.9, 101.1, 100.8, 101),
	)
	for _, s := range samples {
		eng.ProcessSecond(s)
	}
	summary := eng.Finalize()

	if summary.TotalTrades != 0 {
		t.Fatalf("expected no trades after invalidation, got %d", summary.TotalTrades)
	}
	if eng.detector.Active() != nil {
		t.Fatal("invalidated pattern should be cleared while flat")
	}
}

func TestEngineInvalidationWhileHoldingPosition(t *testing.T) {
	eng := newTestEngine(t)
	samples := append(patternSetup(t, "2023-12-15"),
		sampleAt(t, "2023-12-15 09:32:00", 99.6, 99.6, 99.5, 99.55), // long fill
		// Stop (96) and the n100 invalidation breach in one sample: the
		// position closes at the stop, then the pattern is retired.
		sampleAt(t, "2023-12-15 09:33:00", 97, 97.5, 95.5, 96.5),
		sampleAt(t, "2023-12-15 09:34:00", 99.6, 99.6, 99.5, 99.55), // must not fill
	)
	for _, s := range samples {
		eng.ProcessSecond(s)
	}
	summary := eng.Finalize()

	if summary.TotalTrades != 1 {
		t.Fatalf("expected 1 trade, got %d", summary.TotalTrades)
	}
	if summary.Trades[0].ExitReason != motherbar.ExitStopLoss {
		t.Fatalf("unexpected exit: %+v", summary.Trades[0])
	}
	if eng.detector.Active() != nil {
		t.Fatal("pattern should be retired after stop plus breach")
	}
}

func TestEngineSessionEndForcesExit(t *testing.T) {
	eng := newTestEngine(t)
	samples := []market.SecondBar{
		sampleAt(t, "2023-12-15 15:56:00", 100, 102, 100, 101),
		sampleAt(t, "2023-12-15 15:57:00", 100.8, 101.5, 100.5, 101),
		sampleAt(t, "2023-12-15 15:58:00", 99.6, 99.6, 99.5, 99.55), // long fill
		sampleAt(t, "2023-12-15 15:59:00", 99.8, 99.9, 99.7, 99.8),
		sampleAt(t, "2023-12-15 16:00:00", 100, 100, 100, 100), // session over
	}
	for _, s := range samples {
		eng.ProcessSecond(s)
	}
	summary := eng.Finalize()

	if summary.TotalTrades != 1 {
		t.Fatalf("expected 1 trade, got %d", summary.TotalTrades)
	}
	trade := summary.Trades[0]
	if trade.ExitReason != motherbar.ExitSessionForced {
		t.Fatalf("unexpected exit reason: %q", trade.ExitReason)
	}
	// Liquidated at the close of the last in-session sample.
	if trade.ExitPrice != 99.8 || trade.ExitTime.Time != "15:59:00" {
		t.Fatalf("unexpected liquidation: %+v", trade)
	}
	if eng.detector.Active() != nil {
		t.Fatal("session end must reset the detector")
	}
}

func TestEngineEndOfDataForcesExit(t *testing.T) {
	eng := newTestEngine(t)
	samples := append(patternSetup(t, "2023-12-15"),
		sampleAt(t, "2023-12-15 09:32:00", 99.6, 99.6, 99.5, 99.55), // long fill
		sampleAt(t, "2023-12-15 09:33:00", 99.8, 99.9, 99.7, 99.8),
	)
	for _, s := range samples {
		eng.ProcessSecond(s)
	}
	summary := eng.Finalize()

	if summary.TotalTrades != 1 {
		t.Fatalf("expected 1 trade, got %d", summary.TotalTrades)
	}
	trade := summary.Trades[0]
	if trade.ExitReason != motherbar.ExitSessionForced {
		t.Fatalf("unexpected exit reason: %q", trade.ExitReason)
	}
	if trade.ExitPrice != 99.8 {
		t.Fatalf("unexpected exit price: %v", trade.ExitPrice)
	}
}

func TestEngineDayGapResetsSession(t *testing.T) {
	eng := newTestEngine(t)
	samples := []market.SecondBar{
		sampleAt(t, "2023-12-15 15:57:00", 100, 102, 100, 101),
		sampleAt(t, "2023-12-15 15:58:00", 100.8, 101.5, 100.5, 101),
		sampleAt(t, "2023-12-15 15:59:00", 99.6, 99.6, 99.5, 99.55), // long fill
		// Next sample is the following session with no overnight data.
		sampleAt(t, "2023-12-18 09:30:00", 100, 100, 100, 100),
	}
	for _, s := range samples {
		eng.ProcessSecond(s)
	}
	summary := eng.Finalize()

	if summary.TotalTrades != 1 {
		t.Fatalf("expected 1 trade, got %d", summary.TotalTrades)
	}
	trade := summary.Trades[0]
	if trade.ExitReason != motherbar.ExitSessionForced {
		t.Fatalf("unexpected exit reason: %q", trade.ExitReason)
	}
	if trade.ExitTime.Date != "2023-12-15" {
		t.Fatalf("liquidation must use the old session's last sample: %+v", trade)
	}
	if eng.detector.Active() != nil {
		t.Fatal("new session must start with a clean detector")
	}
}

func TestEngineIgnoresPreMarketBars(t *testing.T) {
	eng := newTestEngine(t)
	samples := []market.SecondBar{
		// A textbook pattern entirely before 08:30.
		sampleAt(t, "2023-12-15 08:00:00", 100, 102, 100, 101),
		sampleAt(t, "2023-12-15 08:01:00", 100.8, 101.5, 100.5, 101),
		sampleAt(t, "2023-12-15 08:02:00", 99.6, 99.6, 99.5, 99.55),
		sampleAt(t, "2023-12-15 08:03:00", 100.9, 101.1, 100.8, 101),
	}
	for _, s := range samples {
		eng.ProcessSecond(s)
	}
	summary := eng.Finalize()

	if summary.TotalTrades != 0 {
		t.Fatalf("pre-market data must not trade, got %d", summary.TotalTrades)
	}
	if eng.detector.Active() != nil {
		t.Fatal("pre-market bars must not reach the detector")
	}
}

func TestRunBacktestDeterminism(t *testing.T) {
	samples := append(patternSetup(t, "2023-12-15"),
		sampleAt(t, "2023-12-15 09:32:00", 99.6, 99.6, 99.5, 99.55),
		sampleAt(t, "2023-12-15 09:33:00", 100.9, 101.1, 100.8, 101),
		sampleAt(t, "2023-12-15 09:34:00", 99.6, 99.6, 99.5, 99.55),
		sampleAt(t, "2023-12-15 09:35:00", 97, 97.5, 95.5, 96.5),
	)
	cfg := motherbar.DefaultConfig()

	run := func() []byte {
		result, err := RunBacktest(samples, cfg, Options{DataSource: "test"}, nil)
		if err != nil {
			t.Fatal(err)
		}
		payload, err := json.Marshal(struct {
			Candles []market.CandleRow
			Summary motherbar.Summary
		}{result.Candles, result.Summary})
		if err != nil {
			t.Fatal(err)
		}
		return payload
	}

	first := run()
	second := run()
	if !bytes.Equal(first, second) {
		t.Fatal("identical inputs must produce identical results")
	}
}

func TestRunBacktestSecondLimit(t *testing.T) {
	samples := append(patternSetup(t, "2023-12-15"),
		sampleAt(t, "2023-12-15 09:32:00", 99.6, 99.6, 99.5, 99.55),
		sampleAt(t, "2023-12-15 09:33:00", 100.9, 101.1, 100.8, 101),
	)

	result, err := RunBacktest(samples, motherbar.DefaultConfig(), Options{SecondLimit: 3}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.Metadata.Seconds != 3 {
		t.Fatalf("expected 3 processed seconds, got %d", result.Metadata.Seconds)
	}
	// The take-profit sample was truncated away, so the fill liquidates at
	// end of data instead.
	if result.Summary.TotalTrades != 1 {
		t.Fatalf("expected 1 trade, got %d", result.Summary.TotalTrades)
	}
	if result.Summary.Trades[0].ExitReason != motherbar.ExitSessionForced {
		t.Fatalf("unexpected exit: %+v", result.Summary.Trades[0])
	}
}

func TestBuildCandles(t *testing.T) {
	samples := []market.SecondBar{
		sampleAt(t, "2023-12-15 09:30:00", 100, 101, 99, 100.5),
		sampleAt(t, "2023-12-15 09:30:30", 100.5, 103, 100, 102),
		sampleAt(t, "2023-12-15 09:31:00", 102, 102.5, 101.5, 102),
	}

	rows, err := BuildCandles(samples, market.Timeframe1m)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(rows))
	}
	first := rows[0]
	if first.Open != 100 || first.High != 103 || first.Low != 99 || first.Close != 102 {
		t.Fatalf("bad first candle: %+v", first)
	}
	if first.Raw != "2023-12-15 09:30:00" {
		t.Fatalf("bad candle start: %q", first.Raw)
	}
	if first.Volume != 2 {
		t.Fatalf("bad volume: %v", first.Volume)
	}

	if _, err := BuildCandles(samples, market.Timeframe("9m")); err == nil {
		t.Fatal("expected error for unsupported timeframe")
	}
}
