package scanner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/theburgerllc/ARBBot2025-sub002/internal/config"
	"github.com/theburgerllc/ARBBot2025-sub002/internal/perf"
	"github.com/theburgerllc/ARBBot2025-sub002/internal/risk"
	"github.com/theburgerllc/ARBBot2025-sub002/internal/types"
	"github.com/theburgerllc/ARBBot2025-sub002/internal/venues"
)

type fakeAnalyzer struct {
	cond types.MarketConditions
	err  error
}

func (f *fakeAnalyzer) Analyze(_ context.Context, _ types.ChainID) (types.MarketConditions, error) {
	if f.err != nil {
		return types.MarketConditions{}, f.err
	}
	return f.cond, nil
}

func (f *fakeAnalyzer) DefaultConditions(_ types.ChainID) types.MarketConditions {
	c := f.cond
	c.Volatility = 0.5
	return c
}

func (f *fakeAnalyzer) ClassifyRegime(_ types.MarketConditions, prev types.MarketRegime) types.MarketRegime {
	return types.MarketRegime{Type: types.RegimeSide, Stability: prev.Stability + 0.1}
}

type fakeParams struct{ p types.OptimizedParameters }

func (f *fakeParams) Compute(_ types.MarketConditions, _ []perf.Record) types.OptimizedParameters {
	return f.p
}

type fakeGate struct {
	mu       sync.Mutex
	result   types.TradeRiskAssessment
	err      error
	requests []risk.TradeRequest
}

func (f *fakeGate) AssessTrade(req risk.TradeRequest) (types.TradeRiskAssessment, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.err != nil {
		return types.TradeRiskAssessment{}, f.err
	}
	return f.result, nil
}

type captureExec struct {
	mu   sync.Mutex
	opps []types.Opportunity
}

func (c *captureExec) Execute(_ context.Context, opp types.Opportunity, _ types.OptimizedParameters) {
	c.mu.Lock()
	c.opps = append(c.opps, opp)
	c.mu.Unlock()
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Chains = []config.ChainCfg{{ID: 1, Name: "mainnet", GasUnits: 500_000}}
	cfg.Tokens = []config.TokenCfg{
		{Symbol: "WETH", Decimals: 18},
		{Symbol: "USDT", Decimals: 6},
	}
	cfg.Pairs = []config.PairCfg{
		{Symbol: "WETH/USDT", Path: []string{"WETH", "USDT"}, AmountIn: 1, Chains: []uint64{1}},
	}
	return cfg
}

func calmConditions() types.MarketConditions {
	return types.MarketConditions{
		Volatility:        0.1,
		Liquidity:         50_000,
		NetworkCongestion: 0.2,
		CompetitionLevel:  0.1,
		TimeOfDay:         types.TimeActive,
		Trend:             types.TrendSideways,
		RefGasPrice:       0, // free gas keeps the numbers round
		SampleBlock:       100,
		Ts:                time.Unix(1_700_000_000, 0),
	}
}

func testRegistry(priceA, priceB float64, decimals map[string]int) *venues.Registry {
	qa := venues.NewStaticQuoter(decimals)
	qa.SetPrice("WETH", "USDT", priceA)
	qb := venues.NewStaticQuoter(decimals)
	qb.SetPrice("WETH", "USDT", priceB)
	reg := venues.NewRegistry()
	reg.Register(&venues.Venue{ID: "alpha", Quoter: qa})
	reg.Register(&venues.Venue{ID: "beta", Quoter: qb})
	return reg
}

func looseParams() types.OptimizedParameters {
	return types.OptimizedParameters{
		MinSpreadBps: 5,
		MinProfit:    0.5,
		MaxTradeSize: 1_000,
		SlippageBps:  50,
		GasUrgency:   types.GasMedium, GasFeeMultiplier: 1.0,
		Cooldown: 30 * time.Second, RiskLevel: types.RiskBalanced,
	}
}

func newTestScanner(cfg *config.Config, an *fakeAnalyzer, pr ParamSource, g RiskGate,
	reg *venues.Registry, exec Executor) *Scanner {
	return New(cfg, an, pr, g, perf.NewTracker(cfg.Perf), reg, exec, zap.NewNop())
}

func TestScanChainFindsAndApproves(t *testing.T) {
	cfg := testConfig()
	reg := testRegistry(3000, 3003, cfg.TokenDecimals()) // 10 bps spread
	exec := &captureExec{}
	gate := &fakeGate{result: types.TradeRiskAssessment{Approved: true, Tier: types.TierLow, MaxSafeSize: 5_000}}
	sc := newTestScanner(cfg, &fakeAnalyzer{cond: calmConditions()}, &fakeParams{p: looseParams()}, gate, reg, exec)

	rep := sc.ScanChain(context.Background(), 1)

	require.Equal(t, 1, rep.Found)
	require.Len(t, rep.Approved, 1)
	assert.False(t, rep.Degraded)
	assert.False(t, rep.Suspended)

	opp := rep.Approved[0]
	assert.NotEmpty(t, opp.ID)
	assert.Equal(t, types.ChainID(1), opp.Chain)
	assert.Equal(t, types.VenueID("beta"), opp.SellVenue)
	assert.Equal(t, types.VenueID("alpha"), opp.BuyVenue)
	assert.InDelta(t, 10.0, opp.SpreadBps, 0.01)
	assert.InDelta(t, 3003.0, opp.BestOut, 0.001)
	assert.InDelta(t, 3000.0, opp.SecondOut, 0.001)
	assert.Equal(t, 1_000.0, opp.TradeSize)
	assert.InDelta(t, 1.0, opp.NetProfit, 0.01) // 10 bps of 1000, free gas
	assert.GreaterOrEqual(t, opp.Confidence, 0.0)
	assert.LessOrEqual(t, opp.Confidence, 1.0)

	// approved candidates are handed to the executor unmodified
	require.Len(t, exec.opps, 1)
	assert.Equal(t, opp.ID, exec.opps[0].ID)
}

func TestScanChainBelowThresholdYieldsNothing(t *testing.T) {
	cfg := testConfig()
	reg := testRegistry(3000, 3001.5, cfg.TokenDecimals()) // 5 bps spread
	exec := &captureExec{}
	p := looseParams()
	p.MinSpreadBps = 10.8
	gate := &fakeGate{result: types.TradeRiskAssessment{Approved: true}}
	sc := newTestScanner(cfg, &fakeAnalyzer{cond: calmConditions()}, &fakeParams{p: p}, gate, reg, exec)

	rep := sc.ScanChain(context.Background(), 1)

	assert.Equal(t, 1, rep.Found)
	assert.Equal(t, 1, rep.Filtered)
	assert.Empty(t, rep.Approved)
	assert.Empty(t, exec.opps)
	assert.Empty(t, gate.requests, "filtered candidates never reach the gate")
}

func TestScanChainDegradesOnDataFailure(t *testing.T) {
	cfg := testConfig()
	reg := testRegistry(3000, 3003, cfg.TokenDecimals())
	gate := &fakeGate{result: types.TradeRiskAssessment{Approved: true}}
	an := &fakeAnalyzer{cond: calmConditions(), err: types.ErrDataUnavailable}
	sc := newTestScanner(cfg, an, &fakeParams{p: looseParams()}, gate, reg, &captureExec{})

	rep := sc.ScanChain(context.Background(), 1)

	assert.True(t, rep.Degraded, "failed source falls back to defaults, cycle still runs")
	assert.Equal(t, 1, rep.Found)
}

func TestScanChainRetainsRejectionReasons(t *testing.T) {
	cfg := testConfig()
	reg := testRegistry(3000, 3003, cfg.TokenDecimals())
	exec := &captureExec{}
	gate := &fakeGate{result: types.TradeRiskAssessment{
		Approved: false, Limit: risk.LimitCapitalFraction, Reason: "size too large",
	}}
	sc := newTestScanner(cfg, &fakeAnalyzer{cond: calmConditions()}, &fakeParams{p: looseParams()}, gate, reg, exec)

	rep := sc.ScanChain(context.Background(), 1)

	require.Len(t, rep.Rejected, 1)
	assert.Equal(t, risk.LimitCapitalFraction, rep.Rejected[0].Limit)
	assert.Equal(t, "size too large", rep.Rejected[0].Reason)
	assert.Empty(t, rep.Approved)
	assert.Empty(t, exec.opps)
}

func TestScanChainSuspendedNeverExecutes(t *testing.T) {
	cfg := testConfig()
	reg := testRegistry(3000, 3003, cfg.TokenDecimals())
	exec := &captureExec{}
	gate := &fakeGate{err: &types.SuspendedError{
		Reasons:     []string{"5 consecutive failures (max 5)"},
		ActivatedAt: time.Now(),
		RecoveryETA: time.Now().Add(30 * time.Minute),
	}}
	sc := newTestScanner(cfg, &fakeAnalyzer{cond: calmConditions()}, &fakeParams{p: looseParams()}, gate, reg, exec)

	rep := sc.ScanChain(context.Background(), 1)

	assert.True(t, rep.Suspended)
	assert.Empty(t, rep.Approved)
	assert.Empty(t, exec.opps)
}

func TestScanChainNeedsTwoVenues(t *testing.T) {
	cfg := testConfig()
	decimals := cfg.TokenDecimals()
	q := venues.NewStaticQuoter(decimals)
	q.SetPrice("WETH", "USDT", 3000)
	reg := venues.NewRegistry()
	reg.Register(&venues.Venue{ID: "alpha", Quoter: q})
	gate := &fakeGate{result: types.TradeRiskAssessment{Approved: true}}
	sc := newTestScanner(cfg, &fakeAnalyzer{cond: calmConditions()}, &fakeParams{p: looseParams()}, gate, reg, &captureExec{})

	rep := sc.ScanChain(context.Background(), 1)
	assert.Zero(t, rep.Found, "a spread needs a second venue to compare against")
}

func TestFilterCandidatesThresholds(t *testing.T) {
	params := types.OptimizedParameters{MinSpreadBps: 10.8, MinProfit: 0}
	cands := []types.Opportunity{
		{ID: "narrow", SpreadBps: 5, NetProfit: 10},   // 0.05% vs 0.108%
		{ID: "wide", SpreadBps: 15, NetProfit: 10},    // 0.15% vs 0.108%
		{ID: "unprofitable", SpreadBps: 20, NetProfit: -1},
	}
	params.MinProfit = 0.5

	out := FilterCandidates(cands, params)
	require.Len(t, out, 1)
	assert.Equal(t, "wide", out[0].ID)
}

func TestFilterCandidatesIdempotent(t *testing.T) {
	params := types.OptimizedParameters{MinSpreadBps: 10, MinProfit: 1}
	cands := []types.Opportunity{
		{ID: "a", SpreadBps: 5, NetProfit: 10},
		{ID: "b", SpreadBps: 25, NetProfit: 10},
		{ID: "c", SpreadBps: 25, NetProfit: 0.5},
		{ID: "d", SpreadBps: 11, NetProfit: 2},
	}
	once := FilterCandidates(cands, params)
	twice := FilterCandidates(once, params)
	assert.Equal(t, once, twice)
}

func TestScanChainCancelledBetweenPairs(t *testing.T) {
	cfg := testConfig()
	reg := testRegistry(3000, 3003, cfg.TokenDecimals())
	gate := &fakeGate{result: types.TradeRiskAssessment{Approved: true}}
	sc := newTestScanner(cfg, &fakeAnalyzer{cond: calmConditions()}, &fakeParams{p: looseParams()}, gate, reg, &captureExec{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep := sc.ScanChain(ctx, 1)
	assert.Zero(t, rep.Found, "cancelled cycle stops before quoting")
}

func TestMultiHopPathQuoting(t *testing.T) {
	cfg := testConfig()
	cfg.Tokens = append(cfg.Tokens, config.TokenCfg{Symbol: "ARB", Decimals: 18})
	cfg.Pairs = []config.PairCfg{
		{Symbol: "ARB/WETH/USDT", Path: []string{"ARB", "WETH", "USDT"}, AmountIn: 100, Chains: []uint64{1}},
	}
	decimals := cfg.TokenDecimals()

	qa := venues.NewStaticQuoter(decimals)
	qa.SetPrice("ARB", "WETH", 0.001)
	qa.SetPrice("WETH", "USDT", 3000)
	qb := venues.NewStaticQuoter(decimals)
	qb.SetPrice("ARB", "WETH", 0.001)
	qb.SetPrice("WETH", "USDT", 3006) // 20 bps better on the last leg
	reg := venues.NewRegistry()
	reg.Register(&venues.Venue{ID: "alpha", Quoter: qa})
	reg.Register(&venues.Venue{ID: "beta", Quoter: qb})

	gate := &fakeGate{result: types.TradeRiskAssessment{Approved: true}}
	sc := newTestScanner(cfg, &fakeAnalyzer{cond: calmConditions()}, &fakeParams{p: looseParams()}, gate, reg, &captureExec{})

	rep := sc.ScanChain(context.Background(), 1)
	require.Equal(t, 1, rep.Found)
	require.Len(t, rep.Approved, 1)
	opp := rep.Approved[0]
	assert.Equal(t, []string{"ARB", "WETH", "USDT"}, opp.Path)
	// 100 ARB -> 0.1 WETH -> 300.6 vs 300.0 USDT
	assert.InDelta(t, 300.6, opp.BestOut, 0.001)
	assert.InDelta(t, 20.0, opp.SpreadBps, 0.01)
}
