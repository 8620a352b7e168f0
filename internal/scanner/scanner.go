package scanner

import (
	"context"
	"errors"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/theburgerllc/ARBBot2025-sub002/internal/config"
	"github.com/theburgerllc/ARBBot2025-sub002/internal/metrics"
	"github.com/theburgerllc/ARBBot2025-sub002/internal/perf"
	"github.com/theburgerllc/ARBBot2025-sub002/internal/risk"
	"github.com/theburgerllc/ARBBot2025-sub002/internal/types"
	"github.com/theburgerllc/ARBBot2025-sub002/internal/venues"
)

// ConditionSource is the analyzer boundary the scanner consumes.
type ConditionSource interface {
	Analyze(ctx context.Context, chain types.ChainID) (types.MarketConditions, error)
	DefaultConditions(chain types.ChainID) types.MarketConditions
	ClassifyRegime(cond types.MarketConditions, prev types.MarketRegime) types.MarketRegime
}

// ParamSource derives the acceptance thresholds for one cycle.
type ParamSource interface {
	Compute(cond types.MarketConditions, history []perf.Record) types.OptimizedParameters
}

// RiskGate approves or rejects individual candidates.
type RiskGate interface {
	AssessTrade(req risk.TradeRequest) (types.TradeRiskAssessment, error)
}

// Executor receives approved candidates, unmodified, together with the
// parameters in effect. Execution itself is outside this core.
type Executor interface {
	Execute(ctx context.Context, opp types.Opportunity, params types.OptimizedParameters)
}

// Rejection keeps a risk-rejected candidate with the exact limit that
// blocked it, for after-the-fact tuning.
type Rejection struct {
	Opportunity types.Opportunity
	Limit       string
	Reason      string
}

// CycleReport is the structured per-cycle record emitted for observability.
type CycleReport struct {
	Chain      types.ChainID             `json:"chain"`
	Conditions types.MarketConditions    `json:"conditions"`
	Degraded   bool                      `json:"degraded"` // conditions fell back to defaults
	Regime     types.MarketRegime        `json:"regime"`
	Params     types.OptimizedParameters `json:"params"`
	Found      int                       `json:"found"`
	Filtered   int                       `json:"filtered"`
	Approved   []types.Opportunity       `json:"approved"`
	Rejected   []Rejection               `json:"rejected"`
	Suspended  bool                      `json:"suspended"`
	Ts         time.Time                 `json:"ts"`
	Elapsed    time.Duration             `json:"elapsed"`
}

// Scanner produces and scores candidate opportunities for one or more
// chains. One ScanChain call is one evaluation cycle for one chain; cycles
// for different chains run concurrently and never block each other.
type Scanner struct {
	cfg      *config.Config
	analyzer ConditionSource
	params   ParamSource
	gate     RiskGate
	history  *perf.Tracker
	registry *venues.Registry
	exec     Executor
	log      *zap.Logger

	mu      sync.Mutex
	regimes map[types.ChainID]types.MarketRegime
}

func New(cfg *config.Config, analyzer ConditionSource, params ParamSource, gate RiskGate,
	history *perf.Tracker, registry *venues.Registry, exec Executor, log *zap.Logger) *Scanner {
	return &Scanner{
		cfg:      cfg,
		analyzer: analyzer,
		params:   params,
		gate:     gate,
		history:  history,
		registry: registry,
		exec:     exec,
		log:      log,
		regimes:  make(map[types.ChainID]types.MarketRegime),
	}
}

// ScanChain runs one full evaluation cycle for chain: sample conditions,
// compute parameters, enumerate pairs, quote venues, filter, gate, hand
// approved candidates to the executor. A failed data source degrades the
// cycle to default conditions instead of aborting it.
func (s *Scanner) ScanChain(ctx context.Context, chain types.ChainID) CycleReport {
	started := time.Now()
	rep := CycleReport{Chain: chain, Ts: started}

	cond, err := s.analyzer.Analyze(ctx, chain)
	if err != nil {
		if !errors.Is(err, types.ErrDataUnavailable) {
			s.log.Warn("condition sampling failed", zap.Uint64("chain", uint64(chain)), zap.Error(err))
		} else {
			s.log.Warn("chain data unavailable, using default conditions",
				zap.Uint64("chain", uint64(chain)), zap.Error(err))
		}
		cond = s.analyzer.DefaultConditions(chain)
		rep.Degraded = true
	}
	rep.Conditions = cond

	s.mu.Lock()
	prev := s.regimes[chain]
	regime := s.analyzer.ClassifyRegime(cond, prev)
	s.regimes[chain] = regime
	s.mu.Unlock()
	rep.Regime = regime

	params := s.params.Compute(cond, s.history.Records())
	rep.Params = params

	metrics.Volatility.WithLabelValues(chainLabel(chain)).Set(cond.Volatility)
	metrics.Congestion.WithLabelValues(chainLabel(chain)).Set(cond.NetworkCongestion)
	metrics.MinSpreadBps.WithLabelValues(chainLabel(chain)).Set(params.MinSpreadBps)

	var candidates []types.Opportunity
	for _, pair := range s.cfg.Pairs {
		// abortable between per-pair iterations; no gate state is touched
		// until a completed outcome comes back
		if ctx.Err() != nil {
			break
		}
		if !pairOnChain(pair, chain) {
			continue
		}
		if opp, ok := s.evaluatePair(ctx, chain, pair, cond, params); ok {
			candidates = append(candidates, opp)
		}
	}
	rep.Found = len(candidates)
	metrics.CandidatesFound.WithLabelValues(chainLabel(chain)).Add(float64(len(candidates)))

	passed := FilterCandidates(candidates, params)
	rep.Filtered = len(candidates) - len(passed)

	for _, opp := range passed {
		if rep.Suspended {
			break
		}
		assessment, err := s.gate.AssessTrade(risk.TradeRequest{
			Pair:       opp.Pair,
			Token:      opp.Path[0],
			Chain:      opp.Chain,
			Size:       opp.TradeSize,
			EstProfit:  opp.NetProfit,
			EstGasCost: opp.GasCost,
			Confidence: opp.Confidence,
		})
		if err != nil {
			var se *types.SuspendedError
			if errors.As(err, &se) {
				rep.Suspended = true
				s.log.Warn("trading suspended, cycle yields no approvals",
					zap.Uint64("chain", uint64(chain)),
					zap.Strings("reasons", se.Reasons),
					zap.Time("recovery_eta", se.RecoveryETA))
				break
			}
			s.log.Error("risk assessment failed", zap.Error(err))
			continue
		}
		if !assessment.Approved {
			rep.Rejected = append(rep.Rejected, Rejection{
				Opportunity: opp,
				Limit:       assessment.Limit,
				Reason:      assessment.Reason,
			})
			metrics.CandidatesRejected.WithLabelValues(chainLabel(chain), assessment.Limit).Inc()
			continue
		}
		rep.Approved = append(rep.Approved, opp)
		metrics.CandidatesApproved.WithLabelValues(chainLabel(chain)).Inc()
		if s.exec != nil {
			s.exec.Execute(ctx, opp, params)
		}
	}

	rep.Elapsed = time.Since(started)
	return rep
}

// evaluatePair fans out one concurrent quote request per venue, joins the
// results, and scores the best-vs-second-best spread net of gas.
func (s *Scanner) evaluatePair(ctx context.Context, chain types.ChainID, pair config.PairCfg,
	cond types.MarketConditions, params types.OptimizedParameters) (types.Opportunity, bool) {

	decimals := s.cfg.TokenDecimals()
	amountIn := venues.FromFloat(pair.AmountIn, decimals[pair.Path[0]])
	outDec := decimals[pair.Path[len(pair.Path)-1]]

	all := s.registry.All()
	quotes := make([]types.VenueQuote, 0, len(all))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, ven := range all {
		ven := ven
		wg.Add(1)
		go func() {
			defer wg.Done()
			qctx, cancel := context.WithTimeout(ctx, s.cfg.QuoteTimeout())
			defer cancel()
			if err := ven.Wait(qctx); err != nil {
				return
			}
			t0 := time.Now()
			out, err := s.quotePath(qctx, ven, chain, pair.Path, amountIn)
			metrics.QuoteLatency.Observe(time.Since(t0).Seconds())
			if err != nil {
				metrics.QuoteErrors.Inc()
				if !errors.Is(err, types.ErrQuoteUnavailable) {
					s.log.Debug("venue quote failed",
						zap.String("venue", string(ven.ID)),
						zap.String("pair", pair.Symbol),
						zap.Error(err))
				}
				return
			}
			if out == nil || out.Sign() <= 0 {
				return
			}
			mu.Lock()
			quotes = append(quotes, types.VenueQuote{
				Venue:     ven.ID,
				AmountOut: out,
				OutFloat:  venues.ToFloat(out, outDec),
			})
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(quotes) < s.cfg.Scanner.MinVenues {
		return types.Opportunity{}, false
	}

	best, second := bestTwo(quotes)
	if second.OutFloat <= 0 {
		return types.Opportunity{}, false
	}
	spread := best.OutFloat - second.OutFloat
	spreadBps := spread / second.OutFloat * 10_000
	if spreadBps <= 0 {
		return types.Opportunity{}, false
	}

	gasCost := s.gasCost(chain, cond, params)

	tradeSize := params.MaxTradeSize
	if liqCap := 0.1 * cond.Liquidity; liqCap < tradeSize {
		tradeSize = liqCap
	}
	grossProfit := tradeSize * spreadBps / 10_000
	netProfit := grossProfit - gasCost

	priceImpact := 0.0
	if cond.Liquidity > 0 {
		priceImpact = clamp01(tradeSize / cond.Liquidity)
	}

	return types.Opportunity{
		ID:          uuid.NewString(),
		Chain:       chain,
		Pair:        pair.Symbol,
		Path:        pair.Path,
		BuyVenue:    second.Venue,
		SellVenue:   best.Venue,
		AmountIn:    amountIn,
		Quotes:      quotes,
		BestOut:     best.OutFloat,
		SecondOut:   second.OutFloat,
		Spread:      spread,
		SpreadBps:   spreadBps,
		TradeSize:   tradeSize,
		GrossProfit: grossProfit,
		GasCost:     gasCost,
		NetProfit:   netProfit,
		PriceImpact: priceImpact,
		Confidence:  confidence(priceImpact, gasCost, grossProfit),
		Ts:          time.Now(),
	}, true
}

// quotePath walks a multi-hop path leg by leg on a single venue. A two-token
// path is the plain pair case.
func (s *Scanner) quotePath(ctx context.Context, ven *venues.Venue, chain types.ChainID,
	path []string, amountIn *big.Int) (*big.Int, error) {
	amount := amountIn
	for i := 0; i+1 < len(path); i++ {
		out, err := ven.Quoter.Quote(ctx, chain, path[i], path[i+1], amount)
		if err != nil {
			return nil, err
		}
		amount = out
	}
	return amount, nil
}

// gasCost estimates the cycle's swap cost in quote-asset units, with the
// urgency multiplier and a configured headroom bump applied.
func (s *Scanner) gasCost(chain types.ChainID, cond types.MarketConditions, params types.OptimizedParameters) float64 {
	gasUnits := uint64(500_000)
	if cc := s.cfg.Chain(uint64(chain)); cc != nil && cc.GasUnits > 0 {
		gasUnits = cc.GasUnits
	}
	wei := float64(cond.RefGasPrice) * float64(gasUnits) * params.GasFeeMultiplier * s.cfg.Scanner.GasPriceBump
	return wei / 1e18 * s.cfg.Scanner.NativeUSD
}

// FilterCandidates applies the optimizer thresholds. Pure and idempotent:
// filtering an already-filtered set changes nothing.
func FilterCandidates(cands []types.Opportunity, params types.OptimizedParameters) []types.Opportunity {
	out := make([]types.Opportunity, 0, len(cands))
	for _, c := range cands {
		if c.SpreadBps < params.MinSpreadBps {
			continue
		}
		if c.NetProfit < params.MinProfit {
			continue
		}
		out = append(out, c)
	}
	return out
}

// confidence folds liquidity adequacy, price-impact tolerance and gas
// efficiency into one advisory [0,1] score. It never gates on its own.
func confidence(priceImpact, gasCost, grossProfit float64) float64 {
	liquidityScore := 1 - priceImpact
	impactScore := 1.0
	if priceImpact > 0.05 {
		impactScore = clamp01(1 - (priceImpact-0.05)*10)
	}
	gasScore := 0.0
	if grossProfit > 0 {
		gasScore = clamp01(1 - gasCost/grossProfit)
	}
	return clamp01(0.4*liquidityScore + 0.3*impactScore + 0.3*gasScore)
}

func bestTwo(quotes []types.VenueQuote) (best, second types.VenueQuote) {
	for _, q := range quotes {
		switch {
		case q.OutFloat > best.OutFloat:
			second = best
			best = q
		case q.OutFloat > second.OutFloat:
			second = q
		}
	}
	return best, second
}

func pairOnChain(pair config.PairCfg, chain types.ChainID) bool {
	if len(pair.Chains) == 0 {
		return true
	}
	for _, id := range pair.Chains {
		if types.ChainID(id) == chain {
			return true
		}
	}
	return false
}

func chainLabel(chain types.ChainID) string {
	return strconv.FormatUint(uint64(chain), 10)
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
