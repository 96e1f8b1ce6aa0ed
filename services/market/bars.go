package market

import "fmt"

// Timeframe is a supported aggregation resolution.
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe30m Timeframe = "30m"
	Timeframe1h  Timeframe = "1h"
)

var timeframeMinutes = map[Timeframe]int{
	Timeframe1m:  1,
	Timeframe5m:  5,
	Timeframe15m: 15,
	Timeframe30m: 30,
	Timeframe1h:  60,
}

// Minutes returns the bucket width, or 0 for an unsupported timeframe.
func (tf Timeframe) Minutes() int {
	return timeframeMinutes[tf]
}

// ParseTimeframe validates a resolution tag.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if _, ok := timeframeMinutes[tf]; !ok {
		return "", fmt.Errorf("unsupported timeframe: %q", s)
	}
	return tf, nil
}

// SecondBar is one second of OHLCV data. Source unit of the replay stream;
// never mutated.
type SecondBar struct {
	Timestamp Timestamp `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// TimeframeBar is an OHLCV aggregate over [Start, End] for one resolution.
type TimeframeBar struct {
	Timeframe Timeframe `json:"timeframe"`
	Start     Timestamp `json:"startTimestamp"`
	End       Timestamp `json:"endTimestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// CandleRow is one exported candle for charting consumers.
type CandleRow struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Raw       string  `json:"raw"`
}
