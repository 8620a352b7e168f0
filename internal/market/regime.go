package market

import (
	"github.com/theburgerllc/ARBBot2025-sub002/internal/types"
)

const (
	regimeStabilityStep  = 0.1
	regimeStabilityFloor = 0.1
	regimeStrengthStep   = 0.05
)

// ClassifyRegime derives the coarse market regime from one conditions
// sample and the previous regime. Pure and deterministic: time comes from
// cond.Ts, never from the clock.
func (a *Analyzer) ClassifyRegime(cond types.MarketConditions, prev types.MarketRegime) types.MarketRegime {
	var t types.RegimeType
	switch {
	case cond.Volatility >= a.cfg.HighVol:
		t = types.RegimeHighVol
	case cond.Volatility <= a.cfg.LowVol:
		t = types.RegimeLowVol
	case cond.Trend == types.TrendBull:
		t = types.RegimeBull
	case cond.Trend == types.TrendBear:
		t = types.RegimeBear
	default:
		t = types.RegimeSide
	}

	strength := regimeStrength(t, cond)

	if t == prev.Type && !prev.Since.IsZero() {
		return types.MarketRegime{
			Type:      t,
			Strength:  strength,
			Stability: min1(prev.Stability + regimeStabilityStep),
			Since:     prev.Since,
			Duration:  cond.Ts.Sub(prev.Since),
		}
	}
	return types.MarketRegime{
		Type:      t,
		Strength:  strength,
		Stability: regimeStabilityFloor,
		Since:     cond.Ts,
		Duration:  0,
	}
}

func regimeStrength(t types.RegimeType, cond types.MarketConditions) float64 {
	switch t {
	case types.RegimeHighVol:
		return cond.Volatility
	case types.RegimeLowVol:
		return 1 - cond.Volatility
	default:
		// directional and sideways regimes read strength off how far
		// volatility sits from the chop zone
		return clamp01(1 - 2*abs(cond.Volatility-0.5))
	}
}

func min1(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
