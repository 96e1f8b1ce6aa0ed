// Package aggregation folds an ordered stream of one-second bars into bars of
// a configurable resolution.
package aggregation

import (
	"fmt"

	"motherbar-backtest/services/market"
)

type bucket struct {
	key    string
	start  market.Timestamp
	end    market.Timestamp
	open   float64
	high   float64
	low    float64
	close  float64
	volume float64
}

// Aggregator keeps at most one in-progress bucket and emits a completed
// TimeframeBar whenever a sample rolls into the next bucket.
type Aggregator struct {
	timeframe market.Timeframe
	state     *bucket
}

// NewAggregator returns an aggregator for tf. An unsupported resolution is a
// construction-time error.
func NewAggregator(tf market.Timeframe) (*Aggregator, error) {
	if tf.Minutes() == 0 {
		return nil, fmt.Errorf("unsupported timeframe: %q", tf)
	}
	return &Aggregator{timeframe: tf}, nil
}

// Timeframe returns the configured resolution.
func (a *Aggregator) Timeframe() market.Timeframe { return a.timeframe }

// Add folds one sample into the open bucket. It returns the completed bar
// when the sample opens a new bucket, nil otherwise.
func (a *Aggregator) Add(sample market.SecondBar) *market.TimeframeBar {
	key, start := a.resolveBucket(sample.Timestamp)

	if a.state == nil {
		a.state = newBucket(sample, key, start)
		return nil
	}

	if key != a.state.key {
		completed := a.state.toBar(a.timeframe)
		a.state = newBucket(sample, key, start)
		return &completed
	}

	a.state.end = sample.Timestamp
	if sample.High > a.state.high {
		a.state.high = sample.High
	}
	if sample.Low < a.state.low {
		a.state.low = sample.Low
	}
	a.state.close = sample.Close
	a.state.volume += sample.Volume
	return nil
}

// Flush snapshots and clears the open bucket, if any.
func (a *Aggregator) Flush() *market.TimeframeBar {
	if a.state == nil {
		return nil
	}
	completed := a.state.toBar(a.timeframe)
	a.state = nil
	return &completed
}

// Partial returns a non-destructive snapshot of the forming bar, if any.
func (a *Aggregator) Partial() *market.TimeframeBar {
	if a.state == nil {
		return nil
	}
	forming := a.state.toBar(a.timeframe)
	return &forming
}

func (a *Aggregator) resolveBucket(ts market.Timestamp) (string, market.Timestamp) {
	tfMinutes := a.timeframe.Minutes()
	totalMinutes := ts.Hour*60 + ts.Minute
	bucketStart := totalMinutes / tfMinutes * tfMinutes
	start := ts.WithTime(bucketStart/60, bucketStart%60, 0)
	return start.Raw + "|" + string(a.timeframe), start
}

func newBucket(sample market.SecondBar, key string, start market.Timestamp) *bucket {
	return &bucket{
		key:    key,
		start:  start,
		end:    sample.Timestamp,
		open:   sample.Open,
		high:   sample.High,
		low:    sample.Low,
		close:  sample.Close,
		volume: sample.Volume,
	}
}

func (b *bucket) toBar(tf market.Timeframe) market.TimeframeBar {
	return market.TimeframeBar{
		Timeframe: tf,
		Start:     b.start,
		End:       b.end,
		Open:      b.open,
		High:      b.high,
		Low:       b.low,
		Close:     b.close,
		Volume:    b.volume,
	}
}
