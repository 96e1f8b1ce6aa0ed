package engine

import (
	"fmt"

	"motherbar-backtest/services/aggregation"
	"motherbar-backtest/services/market"
)

// TimeframeState tags whether the event's timeframe bar is still forming or
// just completed.
type TimeframeState string

const (
	StateForming   TimeframeState = "forming"
	StateCompleted TimeframeState = "completed"
)

// FeedEvent is one replay step: the raw second bar plus the current timeframe
// bar and its state.
type FeedEvent struct {
	SecondBar      market.SecondBar    `json:"secondBar"`
	TimeframeBar   market.TimeframeBar `json:"timeframeBar"`
	TimeframeState TimeframeState      `json:"timeframeState"`
}

// FeedHandler receives replay events synchronously, in registration order.
type FeedHandler func(FeedEvent)

// ReplayFeed replays second-level samples while aggregating them into the
// configured timeframe. Subscribers are a notification side channel; they are
// invoked in-line and cannot affect the replay itself.
type ReplayFeed struct {
	seconds    []market.SecondBar
	aggregator *aggregation.Aggregator

	subscribers []FeedHandler
	index       int

	latestCompleted *market.TimeframeBar
	latestForming   *market.TimeframeBar
}

// NewReplayFeed builds a feed over a fixed sample slice.
func NewReplayFeed(seconds []market.SecondBar, tf market.Timeframe) (*ReplayFeed, error) {
	agg, err := aggregation.NewAggregator(tf)
	if err != nil {
		return nil, err
	}
	return &ReplayFeed{seconds: seconds, aggregator: agg}, nil
}

// Subscribe registers a handler and returns its unsubscribe func.
func (f *ReplayFeed) Subscribe(handler FeedHandler) func() {
	f.subscribers = append(f.subscribers, handler)
	idx := len(f.subscribers) - 1
	return func() {
		f.subscribers[idx] = nil
	}
}

// Next advances the replay by one second and dispatches the event. It returns
// nil once the feed is exhausted.
func (f *ReplayFeed) Next() (*FeedEvent, error) {
	if f.index >= len(f.seconds) {
		return nil, nil
	}

	secondBar := f.seconds[f.index]
	f.index++

	completed := f.aggregator.Add(secondBar)

	state := StateForming
	var timeframeBar *market.TimeframeBar
	if completed != nil {
		f.latestCompleted = completed
		state = StateCompleted
		timeframeBar = completed
	}

	if current := f.aggregator.Partial(); current != nil {
		f.latestForming = current
		if timeframeBar == nil {
			timeframeBar = current
		}
	}

	if timeframeBar == nil {
		return nil, fmt.Errorf("aggregator yielded no bar at index %d", f.index-1)
	}

	event := FeedEvent{
		SecondBar:      secondBar,
		TimeframeBar:   *timeframeBar,
		TimeframeState: state,
	}
	f.dispatch(event)
	return &event, nil
}

// LastCompletedBar returns the most recent completed bar, if any.
func (f *ReplayFeed) LastCompletedBar() *market.TimeframeBar { return f.latestCompleted }

// LastFormingBar returns the most recent forming snapshot, if any.
func (f *ReplayFeed) LastFormingBar() *market.TimeframeBar { return f.latestForming }

func (f *ReplayFeed) dispatch(event FeedEvent) {
	for _, handler := range f.subscribers {
		if handler != nil {
			handler(event)
		}
	}
}
