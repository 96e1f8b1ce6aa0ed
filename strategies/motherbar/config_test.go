package motherbar

import (
	"testing"

	"motherbar-backtest/services/market"
)

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	cfg.BaseQuantity = 0
	if cfg.Validate() == nil {
		t.Fatal("zero quantity should be rejected")
	}

	cfg = DefaultConfig()
	cfg.ContractMultiplier = -1
	if cfg.Validate() == nil {
		t.Fatal("negative multiplier should be rejected")
	}

	cfg = DefaultConfig()
	cfg.Timeframe = market.Timeframe("3m")
	if cfg.Validate() == nil {
		t.Fatal("unsupported timeframe should be rejected")
	}
}
