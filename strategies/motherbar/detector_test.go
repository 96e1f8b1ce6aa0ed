package motherbar

import (
	"testing"

	"motherbar-backtest/services/market"
)

func bar(t *testing.T, startRaw string, high, low float64) market.TimeframeBar {
	t.Helper()
	start, err := market.ParseTimestamp(startRaw)
	if err != nil {
		t.Fatal(err)
	}
	return market.TimeframeBar{
		Timeframe: market.Timeframe1m,
		Start:     start,
		End:       start.WithTime(start.Hour, start.Minute, 59),
		Open:      low,
		High:      high,
		Low:       low,
		Close:     high,
	}
}

func tick(t *testing.T, raw string, low, high float64) market.SecondBar {
	t.Helper()
	ts, err := market.ParseTimestamp(raw)
	if err != nil {
		t.Fatal(err)
	}
	return market.SecondBar{Timestamp: ts, Open: low, High: high, Low: low, Close: high, Volume: 1}
}

func TestDetectorActivatesOnInsideBar(t *testing.T) {
	d := NewDetector()

	if p := d.Process(bar(t, "2023-12-15 09:30:00", 102, 100), false); p != nil {
		t.Fatal("first bar has no predecessor")
	}
	activated := d.Process(bar(t, "2023-12-15 09:31:00", 101.5, 100.5), false)
	if activated == nil {
		t.Fatal("inside bar should activate a pattern")
	}
	if activated.ID != "2023-12-15 09:30->2023-12-15 09:31" {
		t.Fatalf("bad id: %q", activated.ID)
	}
	approx(t, activated.Levels.P0, 100)
	approx(t, activated.Levels.P100, 102)
	if activated.TradeCount != 0 || activated.Invalidated {
		t.Fatalf("fresh pattern has dirty state: %+v", activated)
	}
}

func TestDetectorIgnoresNonInsideBar(t *testing.T) {
	d := NewDetector()
	d.Process(bar(t, "2023-12-15 09:30:00", 102, 100), false)
	if p := d.Process(bar(t, "2023-12-15 09:31:00", 103, 100.5), false); p != nil {
		t.Fatal("a higher high must not activate")
	}
	if d.Active() != nil {
		t.Fatal("no pattern expected")
	}
}

func TestDetectorDegenerateRange(t *testing.T) {
	d := NewDetector()
	d.Process(bar(t, "2023-12-15 09:30:00", 100, 100), false)
	if p := d.Process(bar(t, "2023-12-15 09:31:00", 100, 100), false); p != nil {
		t.Fatal("zero-size mother bar cannot define levels")
	}
	if d.Active() != nil {
		t.Fatal("no pattern expected")
	}
}

func TestDetectorPendingRequiresOpenPosition(t *testing.T) {
	d := NewDetector()
	d.Process(bar(t, "2023-12-15 09:30:00", 102, 100), false)
	if d.Process(bar(t, "2023-12-15 09:31:00", 101.5, 100.5), false) == nil {
		t.Fatal("expected activation")
	}

	// Second candidate while active and flat: discarded.
	d.Process(bar(t, "2023-12-15 09:32:00", 104, 101), false)
	d.Process(bar(t, "2023-12-15 09:33:00", 103, 102), false)
	if d.HasPending() {
		t.Fatal("candidate without a position must be discarded")
	}

	// Third candidate while active and positioned: held.
	d.Process(bar(t, "2023-12-15 09:34:00", 106, 103), true)
	d.Process(bar(t, "2023-12-15 09:35:00", 105, 104), true)
	if !d.HasPending() {
		t.Fatal("candidate with a position should be held as pending")
	}

	d.ClearActive()
	promoted := d.PromotePending()
	if promoted == nil {
		t.Fatal("expected promotion")
	}
	if promoted.ID != "2023-12-15 09:34->2023-12-15 09:35" {
		t.Fatalf("bad promoted id: %q", promoted.ID)
	}
	if d.HasPending() {
		t.Fatal("promotion should consume the pending slot")
	}
	if d.PromotePending() != nil {
		t.Fatal("empty pending slot promotes nothing")
	}
}

func TestDetectorReset(t *testing.T) {
	d := NewDetector()
	d.Process(bar(t, "2023-12-15 09:30:00", 102, 100), false)
	d.Process(bar(t, "2023-12-15 09:31:00", 101.5, 100.5), false)
	d.Reset()
	if d.Active() != nil || d.HasPending() {
		t.Fatal("reset must clear everything")
	}
	// First bar after reset is a plain predecessor again.
	if p := d.Process(bar(t, "2023-12-16 09:30:00", 110, 108), false); p != nil {
		t.Fatal("first bar after reset has no predecessor")
	}
}

func TestMarkInvalidated(t *testing.T) {
	d := NewDetector()
	d.MarkInvalidated() // no active pattern, no-op
	d.Process(bar(t, "2023-12-15 09:30:00", 102, 100), false)
	d.Process(bar(t, "2023-12-15 09:31:00", 101.5, 100.5), false)
	d.MarkInvalidated()
	if !d.Active().Invalidated {
		t.Fatal("active pattern should be flagged")
	}
}
