package engine

import (
	"motherbar-backtest/services/aggregation"
	"motherbar-backtest/services/market"
)

// BuildCandles converts one-second samples into export rows at the given
// resolution, for charting consumers.
func BuildCandles(seconds []market.SecondBar, tf market.Timeframe) ([]market.CandleRow, error) {
	agg, err := aggregation.NewAggregator(tf)
	if err != nil {
		return nil, err
	}

	var bars []market.TimeframeBar
	for _, sample := range seconds {
		if completed := agg.Add(sample); completed != nil {
			bars = append(bars, *completed)
		}
	}
	if trailing := agg.Flush(); trailing != nil {
		bars = append(bars, *trailing)
	}

	rows := make([]market.CandleRow, 0, len(bars))
	for _, bar := range bars {
		rows = append(rows, market.CandleRow{
			Timestamp: bar.Start.UnixMilli(),
			Open:      bar.Open,
			High:      bar.High,
			Low:       bar.Low,
			Close:     bar.Close,
			Volume:    bar.Volume,
			Raw:       bar.Start.Raw,
		})
	}
	return rows, nil
}
