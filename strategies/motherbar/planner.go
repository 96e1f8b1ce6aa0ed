package motherbar

import (
	"fmt"

	"motherbar-backtest/services/market"
)

// Side of a trade.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// EntryPlan is a matched entry: side and fill price.
type EntryPlan struct {
	Side  Side    `json:"side"`
	Price float64 `json:"price"`
}

type limitOrder struct {
	id        string
	side      Side
	price     float64
	quantity  int
	createdAt market.Timestamp
	patternID string
	active    bool
}

// OrderPlanner holds at most one pending entry order per side, scoped to the
// currently active pattern.
type OrderPlanner struct {
	cfg        Config
	longOrder  *limitOrder
	shortOrder *limitOrder
}

func NewOrderPlanner(cfg Config) *OrderPlanner {
	return &OrderPlanner{cfg: cfg}
}

// Reset drops both outstanding orders.
func (p *OrderPlanner) Reset() {
	p.longOrder = nil
	p.shortOrder = nil
}

// PrepareEntryOrders sets the speculative entry targets from the active
// pattern: long at n23, short at p123. No-op for an invalidated or traded-out
// pattern; disabled sides are left empty.
func (p *OrderPlanner) PrepareEntryOrders(active *PatternState) {
	if active == nil || active.Invalidated || active.TradeCount >= 2 {
		return
	}
	createdAt := active.Inside.End

	if p.cfg.EnableLongEntry {
		p.longOrder = &limitOrder{
			id:        fmt.Sprintf("L-%s-%d", active.ID, active.TradeCount+1),
			side:      SideLong,
			price:     active.Levels.N23,
			quantity:  p.cfg.BaseQuantity,
			createdAt: createdAt,
			patternID: active.ID,
			active:    true,
		}
	} else {
		p.longOrder = nil
	}

	if p.cfg.EnableShortEntry {
		p.shortOrder = &limitOrder{
			id:        fmt.Sprintf("S-%s-%d", active.ID, active.TradeCount+1),
			side:      SideShort,
			price:     active.Levels.P123,
			quantity:  p.cfg.BaseQuantity,
			createdAt: createdAt,
			patternID: active.ID,
			active:    true,
		}
	} else {
		p.shortOrder = nil
	}
}

// EvaluateEntry tests the sample's range against the outstanding targets.
// Filling one side cancels the other (one-cancels-other).
func (p *OrderPlanner) EvaluateEntry(sample market.SecondBar, active *PatternState) *EntryPlan {
	if active == nil || active.Invalidated {
		return nil
	}

	if p.longOrder != nil && p.longOrder.active &&
		priceTouches(sample.Low, sample.High, p.longOrder.price) {
		price := p.longOrder.price
		p.longOrder.active = false
		p.shortOrder = nil
		return &EntryPlan{Side: SideLong, Price: price}
	}

	if p.shortOrder != nil && p.shortOrder.active &&
		priceTouches(sample.Low, sample.High, p.shortOrder.price) {
		price := p.shortOrder.price
		p.shortOrder.active = false
		p.longOrder = nil
		return &EntryPlan{Side: SideShort, Price: price}
	}

	return nil
}

// CancelAll clears both outstanding targets unconditionally.
func (p *OrderPlanner) CancelAll() {
	p.longOrder = nil
	p.shortOrder = nil
}
