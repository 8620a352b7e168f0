package optimizer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/theburgerllc/ARBBot2025-sub002/internal/config"
	"github.com/theburgerllc/ARBBot2025-sub002/internal/perf"
	"github.com/theburgerllc/ARBBot2025-sub002/internal/types"
)

func newTestOptimizer() *Optimizer {
	return New(config.Default().Optimizer, zap.NewNop())
}

func calmConditions() types.MarketConditions {
	return types.MarketConditions{
		Volatility:        0.1, // low bucket
		Liquidity:         50_000,
		NetworkCongestion: 0.2,
		CompetitionLevel:  0.1, // low bucket
		TimeOfDay:         types.TimeActive,
		Trend:             types.TrendSideways,
		RefGasPrice:       1,
		SampleBlock:       100,
		Ts:                time.Unix(1_700_000_000, 0),
	}
}

func TestMarketAdjustedThreshold(t *testing.T) {
	o := newTestOptimizer()
	// 30 bps base x 0.8 (low vol) x 1.0 (normal liq) x 0.7 (low comp)
	// x 1.0 (active hours) = 16.8 bps
	assert.InDelta(t, 16.8, o.marketAdjustedBps(calmConditions()), 1e-9)
}

func TestGasBreakevenTakesOver(t *testing.T) {
	o := newTestOptimizer()
	cond := calmConditions()

	profit, bps := o.gasBreakeven(cond)
	// gas = 1 wei x 500k units = 500k; profit floor = 500k / 0.25 = 2M
	assert.InDelta(t, 2_000_000, profit, 1e-6)
	assert.Greater(t, bps, o.marketAdjustedBps(cond), "gas floor must win here")

	// with free gas the market-adjusted threshold survives untouched
	cond.RefGasPrice = 0
	p := o.Compute(cond, nil)
	assert.InDelta(t, 16.8, p.MinSpreadBps, 1e-9)
}

func TestComputeAlwaysWithinSafetyBands(t *testing.T) {
	o := newTestOptimizer()
	cfg := config.Default().Optimizer

	vols := []float64{0, 0.1, 0.3, 0.5, 0.7, 0.9, 1}
	liqs := []float64{1, 5_000, 50_000, 500_000}
	comps := []float64{0, 0.2, 0.5, 0.8, 1}
	tods := []types.TimeOfDay{types.TimeQuiet, types.TimeActive, types.TimePeak}
	gases := []uint64{0, 1, 1_000_000_000, 500_000_000_000}

	for _, v := range vols {
		for _, l := range liqs {
			for _, c := range comps {
				for _, tod := range tods {
					for _, g := range gases {
						cond := types.MarketConditions{
							Volatility:       v,
							Liquidity:        l,
							CompetitionLevel: c,
							TimeOfDay:        tod,
							RefGasPrice:      g,
						}
						p := o.Compute(cond, nil)
						assert.GreaterOrEqual(t, p.MinSpreadBps, cfg.MinSpreadBand.Min)
						assert.LessOrEqual(t, p.MinSpreadBps, cfg.MinSpreadBand.Max)
						assert.GreaterOrEqual(t, p.MinProfit, cfg.MinProfitBand.Min)
						assert.LessOrEqual(t, p.MinProfit, cfg.MinProfitBand.Max)
						assert.GreaterOrEqual(t, p.MaxTradeSize, cfg.TradeSizeBand.Min)
						assert.LessOrEqual(t, p.MaxTradeSize, cfg.TradeSizeBand.Max)
						assert.GreaterOrEqual(t, float64(p.SlippageBps), cfg.SlippageBand.Min)
						assert.LessOrEqual(t, float64(p.SlippageBps), cfg.SlippageBand.Max)
						assert.GreaterOrEqual(t, p.Cooldown, cfg.CooldownMin)
						assert.LessOrEqual(t, p.Cooldown, cfg.CooldownMax)
					}
				}
			}
		}
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	o1 := newTestOptimizer()
	o2 := newTestOptimizer()
	cond := calmConditions()
	history := failingHistory(cond, 8)

	for i := 0; i < 10; i++ {
		p1 := o1.Compute(cond, history)
		p2 := o2.Compute(cond, history)
		assert.Equal(t, p1, p2)
	}
}

func failingHistory(cond types.MarketConditions, n int) []perf.Record {
	recs := make([]perf.Record, 0, n)
	for i := 0; i < n; i++ {
		recs = append(recs, perf.Record{
			Outcome: types.TradeOutcome{
				Success:  false,
				Profit:   -50,
				GasUsed:  400_000,
				GasPrice: 2,
				Ts:       cond.Ts.Add(time.Duration(i) * time.Minute),
			},
			Conditions: cond,
		})
	}
	return recs
}

func TestLearningLoosensOnLowSuccessRate(t *testing.T) {
	o := newTestOptimizer()
	cond := calmConditions()
	cond.RefGasPrice = 0 // isolate the learning factor

	base := o.Compute(cond, nil)
	learned := o.Compute(cond, failingHistory(cond, 8))
	assert.Less(t, learned.MinSpreadBps, base.MinSpreadBps,
		"persistent failures should push the threshold down")
}

func TestLearningIgnoresSmallSamples(t *testing.T) {
	o := newTestOptimizer()
	cond := calmConditions()
	cond.RefGasPrice = 0

	base := o.Compute(cond, nil)
	learned := o.Compute(cond, failingHistory(cond, 3)) // below min_samples
	assert.Equal(t, base.MinSpreadBps, learned.MinSpreadBps)
}

func TestLearningOnlyReadsMatchingBuckets(t *testing.T) {
	o := newTestOptimizer()
	cond := calmConditions()
	cond.RefGasPrice = 0

	other := cond
	other.Volatility = 0.9 // different bucket
	base := o.Compute(cond, nil)
	learned := o.Compute(cond, failingHistory(other, 8))
	assert.Equal(t, base.MinSpreadBps, learned.MinSpreadBps)
}

func TestLearningFactorStaysInClampRange(t *testing.T) {
	o := newTestOptimizer()
	cond := calmConditions()

	f := o.learningFactor(cond, o.volBucket(cond.Volatility), failingHistory(cond, 50))
	require.GreaterOrEqual(t, f, 0.5)
	require.LessOrEqual(t, f, 2.0)
}

func TestUrgencyFromCongestion(t *testing.T) {
	assert.Equal(t, types.GasLow, urgency(0.1))
	assert.Equal(t, types.GasMedium, urgency(0.5))
	assert.Equal(t, types.GasHigh, urgency(0.7))
	assert.Equal(t, types.GasUrgent, urgency(0.95))
}
