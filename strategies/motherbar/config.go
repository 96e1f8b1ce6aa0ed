package motherbar

import (
	"fmt"

	"motherbar-backtest/services/market"
)

// Config carries the strategy parameters for one backtest run.
type Config struct {
	ContractMultiplier    float64          `json:"contractMultiplier"` // currency per price point
	BaseQuantity          int              `json:"baseQuantity"`
	EnableLongEntry       bool             `json:"enableLongEntry"`
	EnableLongTakeProfit  bool             `json:"enableLongTakeProfit"`
	EnableShortEntry      bool             `json:"enableShortEntry"`
	EnableShortTakeProfit bool             `json:"enableShortTakeProfit"`
	Timeframe             market.Timeframe `json:"timeframe"`
}

// DefaultConfig mirrors the reference run parameters: 1 contract on a $5
// multiplier, both sides enabled, 1m resolution.
func DefaultConfig() Config {
	return Config{
		ContractMultiplier:    5,
		BaseQuantity:          1,
		EnableLongEntry:       true,
		EnableLongTakeProfit:  true,
		EnableShortEntry:      true,
		EnableShortTakeProfit: true,
		Timeframe:             market.Timeframe1m,
	}
}

// Validate rejects configurations the engine cannot run.
func (c Config) Validate() error {
	if c.BaseQuantity <= 0 {
		return fmt.Errorf("base quantity must be positive, got %d", c.BaseQuantity)
	}
	if c.ContractMultiplier <= 0 {
		return fmt.Errorf("contract multiplier must be positive, got %v", c.ContractMultiplier)
	}
	if _, err := market.ParseTimeframe(string(c.Timeframe)); err != nil {
		return err
	}
	return nil
}
