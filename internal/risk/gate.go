package risk

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/theburgerllc/ARBBot2025-sub002/internal/config"
	"github.com/theburgerllc/ARBBot2025-sub002/internal/types"
)

// Limit names surfaced on rejections, stable for after-the-fact tuning.
const (
	LimitCapitalFraction = "max_capital_fraction"
	LimitGasProfitRatio  = "max_gas_profit_ratio"
	LimitTokenExposure   = "token_exposure_cap"
	LimitChainExposure   = "chain_exposure_cap"
)

// TradeRequest is one candidate submitted for risk approval.
type TradeRequest struct {
	Pair       string
	Token      string
	Chain      types.ChainID
	Size       float64 // quote-asset units
	EstProfit  float64
	EstGasCost float64
	Confidence float64
}

type stampedOutcome struct {
	ts       time.Time
	success  bool
	profit   float64
	size     float64
	gasSpend float64
}

// Gate owns RiskMetrics and the circuit breaker. All reads and mutations go
// through one mutex: two concurrent scan cycles can never both see the
// breaker Closed after a third has opened it.
type Gate struct {
	mu  sync.Mutex
	cfg config.RiskCfg
	log *zap.Logger

	m        types.RiskMetrics
	outcomes []stampedOutcome // trailing week, oldest first

	open       bool
	openedAt   time.Time
	reasons    []string
	overridden bool

	now func() time.Time // test hook
}

func NewGate(cfg config.RiskCfg, log *zap.Logger) *Gate {
	return &Gate{
		cfg: cfg,
		log: log,
		m: types.RiskMetrics{
			CurrentBalance: cfg.InitialBalance,
			PeakBalance:    cfg.InitialBalance,
			TokenExposure:  make(map[string]float64),
			ChainExposure:  make(map[types.ChainID]float64),
		},
		now: time.Now,
	}
}

// AssessTrade approves or rejects one candidate. While the breaker is Open
// it always fails with a SuspendedError carrying the active trigger
// reasons; it never silently approves. A rejection is a normal negative
// result: Approved=false with the exact limit that fired.
//
// Approval commits the trade's size to token/chain exposure; RecordOutcome
// releases it when the executor reports back.
func (g *Gate) AssessTrade(req TradeRequest) (types.TradeRiskAssessment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.refreshWindowsLocked(now)
	g.tryCloseLocked(now)

	if g.open {
		return types.TradeRiskAssessment{}, &types.SuspendedError{
			Reasons:     append([]string(nil), g.reasons...),
			ActivatedAt: g.openedAt,
			RecoveryETA: g.openedAt.Add(g.cfg.Cooldown),
		}
	}

	capital := g.m.CurrentBalance
	capitalCap := g.cfg.MaxCapitalFraction * capital
	if req.Size > capitalCap {
		return reject(LimitCapitalFraction,
			fmt.Sprintf("size %.2f exceeds %.0f%% of capital (%.2f)",
				req.Size, g.cfg.MaxCapitalFraction*100, capitalCap)), nil
	}

	if req.EstProfit <= 0 || req.EstGasCost/req.EstProfit > g.cfg.MaxGasProfitRatio {
		return reject(LimitGasProfitRatio,
			fmt.Sprintf("gas %.2f vs expected profit %.2f exceeds ratio %.2f",
				req.EstGasCost, req.EstProfit, g.cfg.MaxGasProfitRatio)), nil
	}

	tokenRoom := g.cfg.TokenExposureCap*capital - g.m.TokenExposure[req.Token]
	if req.Size > tokenRoom {
		return reject(LimitTokenExposure,
			fmt.Sprintf("token %s exposure room %.2f, size %.2f", req.Token, tokenRoom, req.Size)), nil
	}
	chainRoom := g.cfg.ChainExposureCap*capital - g.m.ChainExposure[req.Chain]
	if req.Size > chainRoom {
		return reject(LimitChainExposure,
			fmt.Sprintf("chain %d exposure room %.2f, size %.2f", req.Chain, chainRoom, req.Size)), nil
	}

	g.m.TokenExposure[req.Token] += req.Size
	g.m.ChainExposure[req.Chain] += req.Size

	maxSafe := capitalCap
	if tokenRoom < maxSafe {
		maxSafe = tokenRoom
	}
	if chainRoom < maxSafe {
		maxSafe = chainRoom
	}

	return types.TradeRiskAssessment{
		Approved:    true,
		Tier:        g.tier(req, capitalCap),
		MaxSafeSize: maxSafe,
	}, nil
}

func reject(limit, reason string) types.TradeRiskAssessment {
	return types.TradeRiskAssessment{Approved: false, Limit: limit, Reason: reason}
}

func (g *Gate) tier(req TradeRequest, capitalCap float64) types.RiskTier {
	gasRatio := req.EstGasCost / req.EstProfit
	switch {
	case req.Size > 0.5*capitalCap || gasRatio > 0.3 || req.Confidence < 0.5:
		return types.TierHigh
	case req.Size > 0.2*capitalCap || gasRatio > 0.15 || req.Confidence < 0.75:
		return types.TierMedium
	default:
		return types.TierLow
	}
}

// RecordOutcome is the only mutation path for RiskMetrics. It applies the
// realized result atomically and re-evaluates the breaker in the same
// critical section.
func (g *Gate) RecordOutcome(o types.TradeOutcome) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := o.Ts
	if now.IsZero() {
		now = g.now()
	}

	g.m.CurrentBalance += o.Profit
	if g.m.CurrentBalance > g.m.PeakBalance {
		g.m.PeakBalance = g.m.CurrentBalance
	}
	if g.m.PeakBalance > 0 {
		dd := (g.m.PeakBalance - g.m.CurrentBalance) / g.m.PeakBalance
		g.m.CurrentDrawdown = clamp01(dd)
	}

	if o.Success {
		g.m.ConsecutiveSuccesses++
		g.m.ConsecutiveFailures = 0
		g.m.ProfitableTrades++
	} else {
		g.m.ConsecutiveFailures++
		g.m.ConsecutiveSuccesses = 0
	}
	g.m.TotalTrades++

	releaseExposure(g.m.TokenExposure, o.Token, o.Size)
	releaseExposure(g.m.ChainExposure, o.Chain, o.Size)

	g.outcomes = append(g.outcomes, stampedOutcome{
		ts:       now,
		success:  o.Success,
		profit:   o.Profit,
		size:     o.Size,
		gasSpend: float64(o.GasUsed) * float64(o.GasPrice),
	})
	g.refreshWindowsLocked(now)

	if !g.open {
		if reasons := g.triggersLocked(); len(reasons) > 0 {
			g.openLocked(now, reasons)
		}
	} else {
		g.tryCloseLocked(now)
	}
}

func releaseExposure[K comparable](m map[K]float64, key K, size float64) {
	if v, ok := m[key]; ok {
		v -= size
		if v <= 0 {
			delete(m, key)
		} else {
			m[key] = v
		}
	}
}

// refreshWindowsLocked recomputes the trailing-window metrics and prunes
// outcomes older than the weekly window.
func (g *Gate) refreshWindowsLocked(now time.Time) {
	weekAgo := now.Add(-g.cfg.WeekWindow)
	i := 0
	for i < len(g.outcomes) && g.outcomes[i].ts.Before(weekAgo) {
		i++
	}
	if i > 0 {
		g.outcomes = g.outcomes[i:]
	}

	dayAgo := now.Add(-g.cfg.DayWindow)
	hourAgo := now.Add(-g.cfg.HourWindow)

	var dayPnL, weekPnL, gasSpend24, marginSum float64
	var wins1h, n1h, wins24, n24, marginN int
	for _, o := range g.outcomes {
		weekPnL += o.profit
		if !o.ts.Before(dayAgo) {
			dayPnL += o.profit
			gasSpend24 += o.gasSpend
			n24++
			if o.success {
				wins24++
			}
			if o.size > 0 {
				marginSum += o.profit / o.size
				marginN++
			}
		}
		if !o.ts.Before(hourAgo) {
			n1h++
			if o.success {
				wins1h++
			}
		}
	}
	g.m.DailyPnL = dayPnL
	g.m.WeeklyPnL = weekPnL
	g.m.SuccessRate1h = rate(wins1h, n1h)
	g.m.SuccessRate24h = rate(wins24, n24)
	if g.m.CurrentBalance > 0 {
		g.m.GasToCapital = gasSpend24 / g.m.CurrentBalance
	}
	if marginN > 0 {
		g.m.AvgProfitMargin = marginSum / float64(marginN)
	}
}

func (g *Gate) samples1h(now time.Time) int {
	hourAgo := now.Add(-g.cfg.HourWindow)
	n := 0
	for _, o := range g.outcomes {
		if !o.ts.Before(hourAgo) {
			n++
		}
	}
	return n
}

func (g *Gate) samples24h(now time.Time) int {
	dayAgo := now.Add(-g.cfg.DayWindow)
	n := 0
	for _, o := range g.outcomes {
		if !o.ts.Before(dayAgo) {
			n++
		}
	}
	return n
}

// triggersLocked reports every Closed->Open condition that currently holds.
func (g *Gate) triggersLocked() []string {
	var reasons []string
	if g.m.CurrentDrawdown > g.cfg.MaxDrawdown {
		reasons = append(reasons, fmt.Sprintf("drawdown %.1f%% exceeds limit %.1f%%",
			g.m.CurrentDrawdown*100, g.cfg.MaxDrawdown*100))
	}
	if g.m.DailyPnL < -g.cfg.MaxDailyLoss {
		reasons = append(reasons, fmt.Sprintf("daily loss %.2f exceeds limit %.2f",
			-g.m.DailyPnL, g.cfg.MaxDailyLoss))
	}
	if g.m.WeeklyPnL < -g.cfg.MaxWeeklyLoss {
		reasons = append(reasons, fmt.Sprintf("weekly loss %.2f exceeds limit %.2f",
			-g.m.WeeklyPnL, g.cfg.MaxWeeklyLoss))
	}
	if g.m.ConsecutiveFailures >= g.cfg.MaxConsecFailures {
		reasons = append(reasons, fmt.Sprintf("%d consecutive failures (max %d)",
			g.m.ConsecutiveFailures, g.cfg.MaxConsecFailures))
	}
	now := g.now()
	if g.samples1h(now) >= g.cfg.MinSamples && g.m.SuccessRate1h < g.cfg.MinSuccessRate1h {
		reasons = append(reasons, fmt.Sprintf("1h success rate %.0f%% below minimum %.0f%%",
			g.m.SuccessRate1h*100, g.cfg.MinSuccessRate1h*100))
	}
	if g.samples24h(now) >= g.cfg.MinSamples && g.m.SuccessRate24h < g.cfg.MinSuccessRate24h {
		reasons = append(reasons, fmt.Sprintf("24h success rate %.0f%% below minimum %.0f%%",
			g.m.SuccessRate24h*100, g.cfg.MinSuccessRate24h*100))
	}
	if g.m.GasToCapital > g.cfg.MaxGasToCapital {
		reasons = append(reasons, fmt.Sprintf("gas-to-capital ratio %.4f exceeds %.4f",
			g.m.GasToCapital, g.cfg.MaxGasToCapital))
	}
	return reasons
}

func (g *Gate) openLocked(now time.Time, reasons []string) {
	g.open = true
	g.openedAt = now
	g.reasons = reasons
	g.log.Error("circuit breaker opened",
		zap.Strings("reasons", reasons),
		zap.Time("opened_at", now),
		zap.Duration("cooldown", g.cfg.Cooldown))
}

// tryCloseLocked performs the Open->Closed transition when every recovery
// condition holds: cooldown elapsed, failure streak cleared, drawdown back
// under 70% of its limit, and (with enough samples) the 1h success rate
// comfortably above its minimum.
func (g *Gate) tryCloseLocked(now time.Time) {
	if !g.open {
		return
	}
	if now.Sub(g.openedAt) < g.cfg.Cooldown {
		return
	}
	if g.m.ConsecutiveFailures != 0 {
		return
	}
	if g.m.CurrentDrawdown > 0.7*g.cfg.MaxDrawdown {
		return
	}
	if g.samples1h(now) >= g.cfg.MinSamples && g.m.SuccessRate1h <= 1.2*g.cfg.MinSuccessRate1h {
		return
	}
	g.open = false
	g.reasons = nil
	g.log.Warn("circuit breaker closed, trading resumed",
		zap.Duration("was_open_for", now.Sub(g.openedAt)))
}

// Override closes the breaker manually. It is refused unless the config
// allows it; every use is logged for audit.
func (g *Gate) Override(operator, reason string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.cfg.AllowOverride {
		return fmt.Errorf("manual override disabled by config")
	}
	if !g.open {
		return nil
	}
	g.open = false
	g.reasons = nil
	g.overridden = true
	g.log.Warn("circuit breaker manually overridden",
		zap.String("operator", operator), zap.String("reason", reason))
	return nil
}

// Metrics returns a copy of the current risk metrics.
func (g *Gate) Metrics() types.RiskMetrics {
	g.mu.Lock()
	defer g.mu.Unlock()
	m := g.m
	m.TokenExposure = make(map[string]float64, len(g.m.TokenExposure))
	for k, v := range g.m.TokenExposure {
		m.TokenExposure[k] = v
	}
	m.ChainExposure = make(map[types.ChainID]float64, len(g.m.ChainExposure))
	for k, v := range g.m.ChainExposure {
		m.ChainExposure[k] = v
	}
	return m
}

// BreakerStatus reports the state machine for observability.
func (g *Gate) BreakerStatus() types.CircuitBreakerStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := types.CircuitBreakerStatus{
		Active:      g.open,
		CanOverride: g.cfg.AllowOverride,
	}
	if g.open {
		st.ActivatedAt = g.openedAt
		st.Reasons = append([]string(nil), g.reasons...)
		st.RecoveryETA = g.openedAt.Add(g.cfg.Cooldown)
	}
	return st
}

func rate(wins, n int) float64 {
	if n == 0 {
		return 0
	}
	return float64(wins) / float64(n)
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
