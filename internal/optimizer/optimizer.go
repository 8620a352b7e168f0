package optimizer

import (
	"time"

	"go.uber.org/zap"

	"github.com/theburgerllc/ARBBot2025-sub002/internal/config"
	"github.com/theburgerllc/ARBBot2025-sub002/internal/perf"
	"github.com/theburgerllc/ARBBot2025-sub002/internal/types"
)

// Optimizer derives the currently-effective acceptance thresholds from
// market conditions and recent performance. Compute is pure: same inputs,
// same outputs.
type Optimizer struct {
	cfg config.OptimizerCfg
	log *zap.Logger
}

func New(cfg config.OptimizerCfg, log *zap.Logger) *Optimizer {
	return &Optimizer{cfg: cfg, log: log}
}

// Compute builds OptimizedParameters for one conditions sample. history is
// the performance tracker's trailing buffer, oldest first; the learning
// adjustment only reads outcomes recorded under matching condition buckets.
// Every output is clamped to its safety band before being returned.
func (o *Optimizer) Compute(cond types.MarketConditions, history []perf.Record) types.OptimizedParameters {
	volB := o.volBucket(cond.Volatility)
	compB := o.compBucket(cond.CompetitionLevel)

	adjusted := o.marketAdjustedBps(cond)
	breakevenProfit, gasBps := o.gasBreakeven(cond)

	minSpread := adjusted
	if gasBps > minSpread {
		minSpread = gasBps
	}
	minSpread *= o.learningFactor(cond, volB, history)

	p := types.OptimizedParameters{
		MinSpreadBps:     minSpread,
		MinProfit:        breakevenProfit,
		SlippageBps:      o.slippage(volB),
		MaxTradeSize:     o.tradeSize(volB, compB),
		GasUrgency:       urgency(cond.NetworkCongestion),
		GasFeeMultiplier: urgencyMultiplier(urgency(cond.NetworkCongestion)),
		Cooldown:         o.cooldown(volB),
		RiskLevel:        riskLevel(volB),
	}
	return o.clampAll(p)
}

// marketAdjustedBps multiplies the base spread threshold by the
// independent condition-bucket factors.
func (o *Optimizer) marketAdjustedBps(cond types.MarketConditions) float64 {
	return o.cfg.BaseSpreadBps *
		factor(o.cfg.VolatilityFactors, o.volBucket(cond.Volatility)) *
		factor(o.cfg.LiquidityFactors, o.liqBucket(cond.Liquidity)) *
		factor(o.cfg.CompetitionFactors, o.compBucket(cond.CompetitionLevel)) *
		factor(o.cfg.TimeFactors, string(cond.TimeOfDay))
}

// gasBreakeven converts the current gas cost into a profit floor and its
// spread-bps equivalent at the reference trade size: a trade must clear
// its gas with room to spare, so the floor is gasCost / maxGasRatio.
func (o *Optimizer) gasBreakeven(cond types.MarketConditions) (profit, bps float64) {
	gasCost := float64(cond.RefGasPrice) * float64(o.cfg.GasUnits)
	profit = gasCost / o.cfg.MaxGasRatio
	bps = profit / o.cfg.RefTradeSize * 10_000
	return profit, bps
}

// learningFactor nudges the threshold from recent outcomes under the same
// volatility and time-of-day buckets: very low success rates mean the bar is
// too high for what actually fills, persistently expensive gas or an
// unusually easy run both mean it should rise.
func (o *Optimizer) learningFactor(cond types.MarketConditions, volB string, history []perf.Record) float64 {
	lc := o.cfg.Learning
	var n, wins int
	var gasSpend, grossProfit float64
	for _, r := range history {
		if o.volBucket(r.Conditions.Volatility) != volB || r.Conditions.TimeOfDay != cond.TimeOfDay {
			continue
		}
		n++
		if r.Outcome.Success {
			wins++
		}
		gasSpend += float64(r.Outcome.GasUsed) * float64(r.Outcome.GasPrice)
		if r.Outcome.Profit > 0 {
			grossProfit += r.Outcome.Profit
		}
	}
	if n < lc.MinSamples {
		return 1.0
	}

	successRate := float64(wins) / float64(n)
	gasRatio := 1.0
	if grossProfit > 0 {
		gasRatio = gasSpend / grossProfit
	}

	f := 1.0
	if successRate < lc.LowSuccess {
		f *= 0.7 // nothing clears the bar: loosen
	}
	if successRate > lc.HighSuccess {
		f *= 1.2 // suspiciously easy: tighten
	}
	if gasRatio > lc.HighGas {
		f *= 1.3
	}
	return clampF(f, lc.MinFactor, lc.MaxFactor)
}

func (o *Optimizer) slippage(volB string) uint32 {
	base := float64(o.cfg.BaseSlippageBps)
	switch volB {
	case "low":
		base *= 0.8
	case "high":
		base *= 1.5
	}
	return uint32(base)
}

func (o *Optimizer) tradeSize(volB, compB string) float64 {
	size := o.cfg.BaseTradeSize
	if volB == "high" {
		size *= 0.5
	}
	if compB == "high" {
		size *= 0.75
	}
	return size
}

func (o *Optimizer) cooldown(volB string) time.Duration {
	switch volB {
	case "high":
		return 2 * o.cfg.BaseCooldown
	case "low":
		return o.cfg.BaseCooldown / 2
	default:
		return o.cfg.BaseCooldown
	}
}

func riskLevel(volB string) types.RiskLevel {
	switch volB {
	case "high":
		return types.RiskConservative
	case "low":
		return types.RiskAggressive
	default:
		return types.RiskBalanced
	}
}

func urgency(congestion float64) types.GasUrgency {
	switch {
	case congestion < 0.3:
		return types.GasLow
	case congestion < 0.6:
		return types.GasMedium
	case congestion < 0.85:
		return types.GasHigh
	default:
		return types.GasUrgent
	}
}

func urgencyMultiplier(u types.GasUrgency) float64 {
	switch u {
	case types.GasLow:
		return 0.9
	case types.GasHigh:
		return 1.15
	case types.GasUrgent:
		return 1.3
	default:
		return 1.0
	}
}

// clampAll enforces the safety bands. An out-of-band value is a warning,
// never an error: it is clamped and trading continues.
func (o *Optimizer) clampAll(p types.OptimizedParameters) types.OptimizedParameters {
	p.MinSpreadBps = o.clamp("min_spread_bps", p.MinSpreadBps, o.cfg.MinSpreadBand)
	p.MinProfit = o.clamp("min_profit", p.MinProfit, o.cfg.MinProfitBand)
	p.MaxTradeSize = o.clamp("max_trade_size", p.MaxTradeSize, o.cfg.TradeSizeBand)
	p.SlippageBps = uint32(o.clamp("slippage_bps", float64(p.SlippageBps), o.cfg.SlippageBand))
	if p.Cooldown < o.cfg.CooldownMin {
		p.Cooldown = o.cfg.CooldownMin
	}
	if p.Cooldown > o.cfg.CooldownMax {
		p.Cooldown = o.cfg.CooldownMax
	}
	return p
}

func (o *Optimizer) clamp(name string, v float64, b config.Band) float64 {
	if v < b.Min {
		o.log.Warn("parameter below safety band, clamping",
			zap.String("param", name), zap.Float64("value", v), zap.Float64("min", b.Min))
		return b.Min
	}
	if v > b.Max {
		o.log.Warn("parameter above safety band, clamping",
			zap.String("param", name), zap.Float64("value", v), zap.Float64("max", b.Max))
		return b.Max
	}
	return v
}

func (o *Optimizer) volBucket(v float64) string {
	switch {
	case v < o.cfg.VolLow:
		return "low"
	case v > o.cfg.VolHigh:
		return "high"
	default:
		return "normal"
	}
}

func (o *Optimizer) liqBucket(v float64) string {
	switch {
	case v < o.cfg.LiqLow:
		return "low"
	case v > o.cfg.LiqHigh:
		return "high"
	default:
		return "normal"
	}
}

func (o *Optimizer) compBucket(v float64) string {
	switch {
	case v < o.cfg.CompLow:
		return "low"
	case v > o.cfg.CompHigh:
		return "high"
	default:
		return "normal"
	}
}

func factor(m map[string]float64, key string) float64 {
	if f, ok := m[key]; ok {
		return f
	}
	return 1.0
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
