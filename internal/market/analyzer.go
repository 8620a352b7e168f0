package market

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/theburgerllc/ARBBot2025-sub002/internal/config"
	"github.com/theburgerllc/ARBBot2025-sub002/internal/types"
)

// ChainSource is the per-chain inbound data boundary. Each method is
// individually fallible; a failure degrades that chain's conditions to
// defaults instead of aborting the cycle.
type ChainSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FeeEstimate(ctx context.Context) (uint64, error)
	BlockUtilization(ctx context.Context) (gasUsed, gasLimit uint64, err error)
}

// Analyzer converts raw chain samples into normalized MarketConditions.
// It keeps a trailing fee window per chain for volatility and trend.
type Analyzer struct {
	cfg     config.AnalyzerCfg
	sources map[types.ChainID]ChainSource
	log     *zap.Logger

	mu    sync.Mutex
	state map[types.ChainID]*chainState
}

type chainState struct {
	fees      []float64 // trailing fee samples, oldest first
	lastBlock uint64
}

func NewAnalyzer(cfg config.AnalyzerCfg, sources map[types.ChainID]ChainSource, log *zap.Logger) *Analyzer {
	return &Analyzer{
		cfg:     cfg,
		sources: sources,
		log:     log,
		state:   make(map[types.ChainID]*chainState, len(sources)),
	}
}

// Analyze samples the chain and returns normalized conditions. On any
// source failure it returns types.ErrDataUnavailable; callers substitute
// DefaultConditions for that chain and continue.
func (a *Analyzer) Analyze(ctx context.Context, chain types.ChainID) (types.MarketConditions, error) {
	src, ok := a.sources[chain]
	if !ok {
		return types.MarketConditions{}, fmt.Errorf("chain %d: no source: %w", chain, types.ErrDataUnavailable)
	}

	block, err := src.BlockNumber(ctx)
	if err != nil {
		return types.MarketConditions{}, fmt.Errorf("chain %d: block number: %w", chain, types.ErrDataUnavailable)
	}
	gasWei, err := src.FeeEstimate(ctx)
	if err != nil {
		return types.MarketConditions{}, fmt.Errorf("chain %d: fee estimate: %w", chain, types.ErrDataUnavailable)
	}
	gasUsed, gasLimit, err := src.BlockUtilization(ctx)
	if err != nil {
		return types.MarketConditions{}, fmt.Errorf("chain %d: block utilization: %w", chain, types.ErrDataUnavailable)
	}

	now := time.Now().UTC()

	a.mu.Lock()
	st := a.state[chain]
	if st == nil {
		st = &chainState{fees: make([]float64, 0, a.cfg.FeeWindow)}
		a.state[chain] = st
	}
	st.fees = append(st.fees, float64(gasWei))
	if len(st.fees) > a.cfg.FeeWindow {
		st.fees = st.fees[len(st.fees)-a.cfg.FeeWindow:]
	}
	if block < st.lastBlock {
		block = st.lastBlock // sample block never goes backwards
	}
	st.lastBlock = block
	fees := append([]float64(nil), st.fees...)
	a.mu.Unlock()

	congestion := 0.0
	if gasLimit > 0 {
		congestion = clamp01(float64(gasUsed) / float64(gasLimit))
	}

	tod := a.timeOfDay(now.Hour())
	cond := types.MarketConditions{
		Volatility:        feeVolatility(fees),
		Liquidity:         a.liquidityProxy(congestion),
		NetworkCongestion: congestion,
		CompetitionLevel:  competition(congestion, tod),
		TimeOfDay:         tod,
		Trend:             feeTrend(fees, a.cfg.TrendWindow),
		RefGasPrice:       gasWei,
		SampleBlock:       block,
		Ts:                now,
	}
	return cond, nil
}

// DefaultConditions is the documented fallback when a chain source fails:
// neutral mid-range values that keep thresholds conservative.
func (a *Analyzer) DefaultConditions(chain types.ChainID) types.MarketConditions {
	now := time.Now().UTC()
	tod := a.timeOfDay(now.Hour())
	a.mu.Lock()
	var lastBlock uint64
	if st := a.state[chain]; st != nil {
		lastBlock = st.lastBlock
	}
	a.mu.Unlock()
	return types.MarketConditions{
		Volatility:        0.5,
		Liquidity:         a.cfg.DefaultLiq,
		NetworkCongestion: 0.5,
		CompetitionLevel:  competition(0.5, tod),
		TimeOfDay:         tod,
		Trend:             types.TrendSideways,
		RefGasPrice:       a.cfg.DefaultGasWei,
		SampleBlock:       lastBlock,
		Ts:                now,
	}
}

func (a *Analyzer) timeOfDay(utcHour int) types.TimeOfDay {
	switch {
	case utcHour < a.cfg.QuietBefore || utcHour >= a.cfg.QuietAfter:
		return types.TimeQuiet
	case utcHour >= a.cfg.PeakStart && utcHour < a.cfg.PeakEnd:
		return types.TimePeak
	default:
		return types.TimeActive
	}
}

// liquidityProxy estimates depth from block utilization: a congested chain
// means quotes move faster and effective depth is thinner.
func (a *Analyzer) liquidityProxy(congestion float64) float64 {
	liq := a.cfg.LiquidityScale * (1.0 - 0.5*congestion)
	if liq <= 0 {
		liq = 1
	}
	return liq
}

// feeVolatility normalizes the coefficient of variation of the trailing fee
// window into [0,1]. Fewer than two samples reads as calm.
func feeVolatility(fees []float64) float64 {
	if len(fees) < 2 {
		return 0
	}
	var sum float64
	for _, f := range fees {
		sum += f
	}
	mean := sum / float64(len(fees))
	if mean == 0 {
		return 0
	}
	var ss float64
	for _, f := range fees {
		d := f - mean
		ss += d * d
	}
	cv := math.Sqrt(ss/float64(len(fees))) / mean
	return clamp01(cv * 2)
}

// feeTrend reads directional drift from the fee window: recent-half mean vs
// prior-half mean. Fee pressure is the closest on-chain proxy for demand.
func feeTrend(fees []float64, window int) types.Trend {
	if window > 0 && len(fees) > window {
		fees = fees[len(fees)-window:]
	}
	if len(fees) < 4 {
		return types.TrendSideways
	}
	half := len(fees) / 2
	var old, recent float64
	for _, f := range fees[:half] {
		old += f
	}
	old /= float64(half)
	for _, f := range fees[half:] {
		recent += f
	}
	recent /= float64(len(fees) - half)
	if old == 0 {
		return types.TrendSideways
	}
	drift := (recent - old) / old
	switch {
	case drift > 0.05:
		return types.TrendBull
	case drift < -0.05:
		return types.TrendBear
	default:
		return types.TrendSideways
	}
}

func competition(congestion float64, tod types.TimeOfDay) float64 {
	bias := 0.0
	switch tod {
	case types.TimeActive:
		bias = 0.15
	case types.TimePeak:
		bias = 0.30
	}
	return clamp01(0.7*congestion + bias)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
