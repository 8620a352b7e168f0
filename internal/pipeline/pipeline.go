package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/theburgerllc/ARBBot2025-sub002/internal/config"
	"github.com/theburgerllc/ARBBot2025-sub002/internal/dash"
	"github.com/theburgerllc/ARBBot2025-sub002/internal/feed"
	"github.com/theburgerllc/ARBBot2025-sub002/internal/metrics"
	"github.com/theburgerllc/ARBBot2025-sub002/internal/perf"
	"github.com/theburgerllc/ARBBot2025-sub002/internal/risk"
	"github.com/theburgerllc/ARBBot2025-sub002/internal/scanner"
	"github.com/theburgerllc/ARBBot2025-sub002/internal/types"
)

// Engine drives the evaluation loop: one concurrent cycle per configured
// chain, with executor outcomes fed back into the tracker and the risk gate.
type Engine struct {
	cfg     *config.Config
	log     *zap.Logger
	scanner *scanner.Scanner
	gate    *risk.Gate
	tracker *perf.Tracker
	pub     *feed.Publisher
	board   *dash.Store // nil when the dashboard is not configured

	outcomes chan types.TradeOutcome

	mu       sync.Mutex
	lastRep  map[types.ChainID]scanner.CycleReport
	breaker  bool
}

func NewEngine(cfg *config.Config, sc *scanner.Scanner, gate *risk.Gate,
	tracker *perf.Tracker, pub *feed.Publisher, board *dash.Store, log *zap.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		log:      log,
		scanner:  sc,
		gate:     gate,
		tracker:  tracker,
		pub:      pub,
		board:    board,
		outcomes: make(chan types.TradeOutcome, 256),
		lastRep:  make(map[types.ChainID]scanner.CycleReport),
	}
}

// ReportOutcome is the execution collaborator's way back into the core.
// It never blocks the caller; a full queue drops the oldest pressure onto
// the feedback goroutine, not onto execution.
func (e *Engine) ReportOutcome(o types.TradeOutcome) {
	select {
	case e.outcomes <- o:
	default:
		e.log.Warn("outcome queue full, applying synchronously",
			zap.String("opportunity", o.OpportunityID))
		e.applyOutcome(o)
	}
}

// Run blocks until ctx is done. One goroutine per chain runs scan cycles on
// the configured interval; a separate goroutine applies outcome feedback.
// A failing chain degrades or skips its own cycles and never blocks the
// others.
func (e *Engine) Run(ctx context.Context) {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case o := <-e.outcomes:
				e.applyOutcome(o)
			}
		}
	}()

	for _, cc := range e.cfg.Chains {
		chain := types.ChainID(cc.ID)
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.runChain(ctx, chain)
		}()
	}

	wg.Wait()
	e.log.Info("pipeline stopped")
}

func (e *Engine) runChain(ctx context.Context, chain types.ChainID) {
	t := time.NewTicker(e.cfg.ScanInterval())
	defer t.Stop()
	e.log.Info("chain loop started", zap.Uint64("chain", uint64(chain)))

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			rep := e.scanner.ScanChain(ctx, chain)
			e.afterCycle(ctx, rep)
		}
	}
}

func (e *Engine) afterCycle(ctx context.Context, rep scanner.CycleReport) {
	e.mu.Lock()
	e.lastRep[rep.Chain] = rep
	e.mu.Unlock()

	e.board.Update(rep)

	st := e.gate.BreakerStatus()
	e.board.SetBreaker(st)
	e.mu.Lock()
	transition := st.Active != e.breaker
	e.breaker = st.Active
	e.mu.Unlock()
	if transition {
		if st.Active {
			e.log.Error("circuit breaker transition: trading suspended",
				zap.Strings("reasons", st.Reasons),
				zap.Time("recovery_eta", st.RecoveryETA),
				zap.Bool("can_override", st.CanOverride))
			metrics.BreakerOpen.Set(1)
		} else {
			e.log.Warn("circuit breaker transition: trading resumed")
			metrics.BreakerOpen.Set(0)
		}
	}

	e.log.Info("cycle complete",
		zap.Uint64("chain", uint64(rep.Chain)),
		zap.Bool("degraded", rep.Degraded),
		zap.String("regime", string(rep.Regime.Type)),
		zap.Float64("min_spread_bps", rep.Params.MinSpreadBps),
		zap.Int("found", rep.Found),
		zap.Int("filtered", rep.Filtered),
		zap.Int("approved", len(rep.Approved)),
		zap.Int("rejected", len(rep.Rejected)),
		zap.Bool("suspended", rep.Suspended),
		zap.Duration("elapsed", rep.Elapsed))

	if err := e.pub.PublishCycle(ctx, rep); err != nil {
		e.log.Warn("cycle publish failed", zap.Error(err))
	}
}

// applyOutcome closes the feedback loop: the gate first (it owns the
// shared risk state), then the tracker record with the parameters and
// conditions that were in effect on that chain.
func (e *Engine) applyOutcome(o types.TradeOutcome) {
	e.gate.RecordOutcome(o)

	e.mu.Lock()
	rep := e.lastRep[o.Chain]
	e.mu.Unlock()
	e.tracker.Add(perf.Record{
		Outcome:    o,
		Params:     rep.Params,
		Conditions: rep.Conditions,
	})

	m := e.gate.Metrics()
	metrics.Balance.Set(m.CurrentBalance)
	metrics.Drawdown.Set(m.CurrentDrawdown)

	e.log.Info("trade outcome recorded",
		zap.String("opportunity", o.OpportunityID),
		zap.Bool("success", o.Success),
		zap.Float64("profit", o.Profit),
		zap.Float64("balance", m.CurrentBalance),
		zap.Float64("drawdown", m.CurrentDrawdown),
		zap.Int("consecutive_failures", m.ConsecutiveFailures))
}

// NewLogger builds the production JSON logger used by the host binary.
func NewLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.MessageKey = "msg"
	cfg.EncoderConfig.CallerKey = "caller"
	cfg.EncoderConfig.StacktraceKey = "stacktrace"
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
	return cfg.Build()
}
