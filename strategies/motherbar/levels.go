// Package motherbar implements the mother-bar breakout strategy: inside-bar
// pattern detection, Fibonacci-derived entry planning, position lifecycle
// with a single scale-in, and the closed-trade ledger.
package motherbar

import "motherbar-backtest/services/market"

// Levels are the absolute prices derived once from a mother bar's (low, size)
// as low + size*factor. Frozen for the lifetime of the pattern.
type Levels struct {
	P300  float64 `json:"p300"`
	P200  float64 `json:"p200"`
	P161t float64 `json:"p161_8"`
	P127t float64 `json:"p127_2"`
	P123  float64 `json:"p123"`
	P111  float64 `json:"p111"`
	P100  float64 `json:"p100"`
	P89   float64 `json:"p89"`
	P79   float64 `json:"p79"`
	P66   float64 `json:"p66"`
	P50   float64 `json:"p50"`
	P33   float64 `json:"p33"`
	P21   float64 `json:"p21"`
	P11   float64 `json:"p11"`
	P0    float64 `json:"p0"`
	N11   float64 `json:"n11"`
	N23   float64 `json:"n23"`
	N61t  float64 `json:"n61_8"`
	N100  float64 `json:"n100"`
	N200  float64 `json:"n200"`
}

// CalculateLevels builds the fixed level set from the mother bar's low and
// range size.
func CalculateLevels(low, size float64) Levels {
	return Levels{
		P300:  low + size*3,
		P200:  low + size*2,
		P161t: low + size*1.618,
		P127t: low + size*1.272,
		P123:  low + size*1.23,
		P111:  low + size*1.11,
		P100:  low + size,
		P89:   low + size*0.89,
		P79:   low + size*0.79,
		P66:   low + size*0.66,
		P50:   low + size*0.5,
		P33:   low + size*0.33,
		P21:   low + size*0.21,
		P11:   low + size*0.11,
		P0:    low,
		N11:   low - size*0.11,
		N23:   low - size*0.23,
		N61t:  low - size*0.618,
		N100:  low - size,
		N200:  low - size*2,
	}
}

func priceTouches(low, high, price float64) bool {
	return price >= low && price <= high
}

// IsInsideBar reports whether cur's range is fully contained within prev's.
func IsInsideBar(cur, prev market.TimeframeBar) bool {
	return cur.High <= prev.High && cur.Low >= prev.Low
}
