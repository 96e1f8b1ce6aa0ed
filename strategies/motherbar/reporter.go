package motherbar

import (
	"fmt"

	"github.com/shopspring/decimal"

	"motherbar-backtest/services/market"
)

// TradeRecord is an immutable closed-trade ledger entry.
type TradeRecord struct {
	ID                string           `json:"id"`
	Side              Side             `json:"side"`
	Quantity          int              `json:"quantity"`
	EntryPrice        float64          `json:"entryPrice"`
	EntryTime         market.Timestamp `json:"entryTime"`
	AverageEntryPrice float64          `json:"averageEntryPrice"`
	ExitPrice         float64          `json:"exitPrice"`
	ExitTime          market.Timestamp `json:"exitTime"`
	ExitReason        ExitReason       `json:"exitReason"`
	PnlPoints         float64          `json:"pnlPoints"`
	PnlCurrency       float64          `json:"pnlCurrency"`
	PatternID         string           `json:"motherBarId"`
	AddExecuted       bool             `json:"addExecuted"`
}

// Summary is the ordered trade ledger plus aggregate statistics.
type Summary struct {
	Trades            []TradeRecord   `json:"trades"`
	TotalTrades       int             `json:"totalTrades"`
	WinningTrades     int             `json:"winningTrades"`
	LosingTrades      int             `json:"losingTrades"`
	NetPnlPoints      float64         `json:"netPnlPoints"`
	NetPnlCurrency    decimal.Decimal `json:"netPnlCurrency"`
	GrossProfitPoints float64         `json:"grossProfitPoints"`
	GrossLossPoints   float64         `json:"grossLossPoints"`
}

// TradeReporter accumulates closed trades into the running ledger. Currency
// totals are accumulated in decimal so the summary never drifts from the sum
// of its rows.
type TradeReporter struct {
	trades            []TradeRecord
	sequence          int
	winningTrades     int
	losingTrades      int
	netPnlPoints      float64
	netPnlCurrency    decimal.Decimal
	grossProfitPoints float64
	grossLossPoints   float64
}

func NewTradeReporter() *TradeReporter {
	return &TradeReporter{}
}

// Record appends a closed trade to the ledger and returns it with its
// assigned id.
func (r *TradeReporter) Record(trade ClosedTrade) TradeRecord {
	r.sequence++
	record := TradeRecord{
		ID:                fmt.Sprintf("T-%d", r.sequence),
		Side:              trade.Side,
		Quantity:          trade.Quantity,
		EntryPrice:        trade.EntryPrice,
		EntryTime:         trade.EntryTime,
		AverageEntryPrice: trade.AverageEntryPrice,
		ExitPrice:         trade.ExitPrice,
		ExitTime:          trade.ExitTime,
		ExitReason:        trade.ExitReason,
		PnlPoints:         trade.PnlPoints,
		PnlCurrency:       trade.PnlCurrency,
		PatternID:         trade.PatternID,
		AddExecuted:       trade.AddExecuted,
	}
	r.trades = append(r.trades, record)

	r.netPnlPoints += record.PnlPoints
	r.netPnlCurrency = r.netPnlCurrency.Add(decimal.NewFromFloat(record.PnlCurrency))
	if record.PnlPoints >= 0 {
		r.grossProfitPoints += record.PnlPoints
		r.winningTrades++
	} else {
		r.grossLossPoints += record.PnlPoints
		r.losingTrades++
	}
	return record
}

// Trades returns the ledger in record order.
func (r *TradeReporter) Trades() []TradeRecord { return r.trades }

// Summary snapshots the ledger and aggregate statistics.
func (r *TradeReporter) Summary() Summary {
	trades := make([]TradeRecord, len(r.trades))
	copy(trades, r.trades)
	return Summary{
		Trades:            trades,
		TotalTrades:       len(r.trades),
		WinningTrades:     r.winningTrades,
		LosingTrades:      r.losingTrades,
		NetPnlPoints:      r.netPnlPoints,
		NetPnlCurrency:    r.netPnlCurrency,
		GrossProfitPoints: r.grossProfitPoints,
		GrossLossPoints:   r.grossLossPoints,
	}
}
