package motherbar

import "motherbar-backtest/services/market"

// PatternState identifies one mother bar and its inside bar, with the frozen
// level set. At most one PatternState is active at any time.
type PatternState struct {
	ID          string              `json:"id"`
	Mother      market.TimeframeBar `json:"mother"`
	Inside      market.TimeframeBar `json:"inside"`
	Levels      Levels              `json:"levels"`
	TradeCount  int                 `json:"tradeCount"`
	Invalidated bool                `json:"invalidated"`
}

// PendingPattern is an inside-bar pattern discovered while another pattern is
// active and a position is open, held until the active pattern retires.
type PendingPattern struct {
	Mother market.TimeframeBar
	Inside market.TimeframeBar
}

// Detector observes consecutive RTH timeframe bars and manages the pattern
// lifecycle: detect, activate, invalidate, promote pending.
type Detector struct {
	active  *PatternState
	pending *PendingPattern
	prevRTH *market.TimeframeBar
}

func NewDetector() *Detector {
	return &Detector{}
}

// Reset clears previous-bar memory, the active pattern and the pending
// pattern. Invoked at every session boundary.
func (d *Detector) Reset() {
	d.active = nil
	d.pending = nil
	d.prevRTH = nil
}

// Active returns the active pattern, or nil.
func (d *Detector) Active() *PatternState { return d.active }

// HasPending reports whether a pattern is waiting for promotion.
func (d *Detector) HasPending() bool { return d.pending != nil }

// Process observes one completed RTH timeframe bar. It returns the newly
// activated pattern, or nil. positionOpen gates whether a candidate found
// while another pattern is active is recorded as pending.
func (d *Detector) Process(bar market.TimeframeBar, positionOpen bool) *PatternState {
	if d.prevRTH == nil {
		prev := bar
		d.prevRTH = &prev
		return nil
	}

	var activated *PatternState
	if IsInsideBar(bar, *d.prevRTH) {
		activated = d.activate(*d.prevRTH, bar, positionOpen)
	}

	prev := bar
	d.prevRTH = &prev
	return activated
}

// PromotePending rebuilds a fresh pattern from the pending slot and makes it
// active. Returns nil if nothing is pending or the pending range is
// degenerate.
func (d *Detector) PromotePending() *PatternState {
	if d.pending == nil {
		return nil
	}
	mother, inside := d.pending.Mother, d.pending.Inside
	d.pending = nil
	d.active = buildPattern(mother, inside)
	return d.active
}

// ClearActive drops the active pattern without side effects.
func (d *Detector) ClearActive() { d.active = nil }

// MarkInvalidated flags the active pattern, if any.
func (d *Detector) MarkInvalidated() {
	if d.active != nil {
		d.active.Invalidated = true
	}
}

func (d *Detector) activate(mother, inside market.TimeframeBar, positionOpen bool) *PatternState {
	if d.active != nil {
		if positionOpen {
			d.pending = &PendingPattern{Mother: mother, Inside: inside}
		}
		return nil
	}
	d.active = buildPattern(mother, inside)
	return d.active
}

// buildPattern computes the level set; a degenerate range cannot define a
// valid one, so it yields nil.
func buildPattern(mother, inside market.TimeframeBar) *PatternState {
	size := mother.High - mother.Low
	if size <= 0 {
		return nil
	}
	return &PatternState{
		ID:     mother.Start.MinuteKey() + "->" + inside.Start.MinuteKey(),
		Mother: mother,
		Inside: inside,
		Levels: CalculateLevels(mother.Low, size),
	}
}
