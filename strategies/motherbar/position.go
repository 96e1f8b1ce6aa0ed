package motherbar

import (
	"errors"
	"math"

	"motherbar-backtest/services/market"
)

// ExitReason tags why a position was closed.
type ExitReason string

const (
	ExitTakeProfit    ExitReason = "take-profit"
	ExitStopLoss      ExitReason = "stop-loss"
	ExitSessionForced ExitReason = "session-forced"
)

// ErrNoPosition is returned when a close is requested with no open position.
// This is a caller sequencing bug, not a legitimate empty case.
var ErrNoPosition = errors.New("no open position")

// ErrPositionOpen is returned when an open is requested while a position is
// already held.
var ErrPositionOpen = errors.New("position already open")

// PositionState is the single allowed open position.
type PositionState struct {
	Side              Side              `json:"side"`
	Quantity          int               `json:"quantity"`
	EntryPrice        float64           `json:"entryPrice"`
	AveragePrice      float64           `json:"averagePrice"`
	EntryTime         market.Timestamp  `json:"entryTime"`
	AddExecuted       bool              `json:"addExecuted"`
	AddEntryPrice     float64           `json:"addEntryPrice,omitempty"`
	AddEntryTime      *market.Timestamp `json:"addEntryTime,omitempty"`
	TakeProfit        float64           `json:"takeProfit"`
	TakeProfitEnabled bool              `json:"takeProfitEnabled"`
	StopLoss          float64           `json:"stopLoss"`
	PatternID         string            `json:"motherBarId"`
}

// ClosedTrade is an emitted trade before the reporter assigns its ledger id.
type ClosedTrade struct {
	Side              Side
	Quantity          int
	EntryPrice        float64
	EntryTime         market.Timestamp
	AverageEntryPrice float64
	ExitPrice         float64
	ExitTime          market.Timestamp
	ExitReason        ExitReason
	PnlPoints         float64
	PnlCurrency       float64
	PatternID         string
	AddExecuted       bool
}

// PositionManager owns the position lifecycle: entry, one permitted scale-in,
// and closure via stop-loss, take-profit or forced exit.
type PositionManager struct {
	cfg      Config
	position *PositionState
}

func NewPositionManager(cfg Config) *PositionManager {
	return &PositionManager{cfg: cfg}
}

// Reset drops any open position without emitting a trade.
func (m *PositionManager) Reset() { m.position = nil }

// HasOpenPosition reports whether a position is held.
func (m *PositionManager) HasOpenPosition() bool { return m.position != nil }

// Position returns the open position, or nil.
func (m *PositionManager) Position() *PositionState { return m.position }

// Open enters a position from a matched entry plan. Stop-loss sits at n200
// (long) or p300 (short); the initial take-profit target is p50 for either
// side.
func (m *PositionManager) Open(entry EntryPlan, sample market.SecondBar, pattern *PatternState) error {
	if m.position != nil {
		return ErrPositionOpen
	}

	var stopLoss float64
	var tpEnabled bool
	if entry.Side == SideLong {
		stopLoss = pattern.Levels.N200
		tpEnabled = m.cfg.EnableLongTakeProfit
	} else {
		stopLoss = pattern.Levels.P300
		tpEnabled = m.cfg.EnableShortTakeProfit
	}

	takeProfit := pattern.Levels.P50
	if !tpEnabled {
		if entry.Side == SideLong {
			takeProfit = math.Inf(1)
		} else {
			takeProfit = math.Inf(-1)
		}
	}

	m.position = &PositionState{
		Side:              entry.Side,
		Quantity:          m.cfg.BaseQuantity,
		EntryPrice:        entry.Price,
		AveragePrice:      entry.Price,
		EntryTime:         sample.Timestamp,
		TakeProfit:        takeProfit,
		TakeProfitEnabled: tpEnabled,
		StopLoss:          stopLoss,
		PatternID:         pattern.ID,
	}
	return nil
}

// EvaluateSecond runs the add-on check and then the close check against one
// sample. It returns the closed trade if the position exited.
func (m *PositionManager) EvaluateSecond(sample market.SecondBar, pattern *PatternState) *ClosedTrade {
	if m.position == nil || pattern == nil {
		return nil
	}
	m.tryAdd(sample, pattern)
	return m.tryClose(sample)
}

// ForceExit closes unconditionally at the sample's close price, bypassing the
// stop/take-profit tests. Used for session-boundary and end-of-data
// liquidation.
func (m *PositionManager) ForceExit(sample market.SecondBar, reason ExitReason) (*ClosedTrade, error) {
	if m.position == nil {
		return nil, ErrNoPosition
	}
	return m.close(sample.Close, sample.Timestamp, reason), nil
}

// tryAdd executes the single permitted scale-in at n100 (long) or p100
// (short): quantity grows by the base quantity, the average price becomes the
// volume-weighted mean, and an enabled take-profit is rebased to the extended
// level (n61_8 long, p161_8 short). The stop-loss is never moved by an add.
func (m *PositionManager) tryAdd(sample market.SecondBar, pattern *PatternState) {
	if m.position.AddExecuted {
		return
	}

	addPrice := pattern.Levels.N100
	if m.position.Side == SideShort {
		addPrice = pattern.Levels.P100
	}
	if !priceTouches(sample.Low, sample.High, addPrice) {
		return
	}

	addQty := m.cfg.BaseQuantity
	newQty := m.position.Quantity + addQty
	m.position.AveragePrice = (m.position.AveragePrice*float64(m.position.Quantity) +
		addPrice*float64(addQty)) / float64(newQty)
	m.position.Quantity = newQty
	m.position.AddExecuted = true
	m.position.AddEntryPrice = addPrice
	addTime := sample.Timestamp
	m.position.AddEntryTime = &addTime

	if m.position.TakeProfitEnabled {
		if m.position.Side == SideLong {
			m.position.TakeProfit = pattern.Levels.N61t
		} else {
			m.position.TakeProfit = pattern.Levels.P161t
		}
	}
}

// tryClose checks the stop-loss first, then an enabled take-profit.
func (m *PositionManager) tryClose(sample market.SecondBar) *ClosedTrade {
	pos := m.position
	if pos == nil {
		return nil
	}

	if pos.Side == SideLong {
		if sample.Low <= pos.StopLoss {
			return m.close(pos.StopLoss, sample.Timestamp, ExitStopLoss)
		}
		if pos.TakeProfitEnabled && sample.High >= pos.TakeProfit {
			return m.close(pos.TakeProfit, sample.Timestamp, ExitTakeProfit)
		}
		return nil
	}

	if sample.High >= pos.StopLoss {
		return m.close(pos.StopLoss, sample.Timestamp, ExitStopLoss)
	}
	if pos.TakeProfitEnabled && sample.Low <= pos.TakeProfit {
		return m.close(pos.TakeProfit, sample.Timestamp, ExitTakeProfit)
	}
	return nil
}

func (m *PositionManager) close(price float64, ts market.Timestamp, reason ExitReason) *ClosedTrade {
	pos := m.position

	pnlPerUnit := price - pos.AveragePrice
	if pos.Side == SideShort {
		pnlPerUnit = pos.AveragePrice - price
	}
	qty := float64(pos.Quantity)

	trade := &ClosedTrade{
		Side:              pos.Side,
		Quantity:          pos.Quantity,
		EntryPrice:        pos.EntryPrice,
		EntryTime:         pos.EntryTime,
		AverageEntryPrice: pos.AveragePrice,
		ExitPrice:         price,
		ExitTime:          ts,
		ExitReason:        reason,
		PnlPoints:         pnlPerUnit * qty,
		PnlCurrency:       pnlPerUnit * m.cfg.ContractMultiplier * qty,
		PatternID:         pos.PatternID,
		AddExecuted:       pos.AddExecuted,
	}

	m.position = nil
	return trade
}
