package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/theburgerllc/ARBBot2025-sub002/internal/config"
	"github.com/theburgerllc/ARBBot2025-sub002/internal/dash"
	"github.com/theburgerllc/ARBBot2025-sub002/internal/feed"
	"github.com/theburgerllc/ARBBot2025-sub002/internal/market"
	"github.com/theburgerllc/ARBBot2025-sub002/internal/metrics"
	"github.com/theburgerllc/ARBBot2025-sub002/internal/multicall"
	"github.com/theburgerllc/ARBBot2025-sub002/internal/optimizer"
	"github.com/theburgerllc/ARBBot2025-sub002/internal/perf"
	"github.com/theburgerllc/ARBBot2025-sub002/internal/pipeline"
	"github.com/theburgerllc/ARBBot2025-sub002/internal/risk"
	"github.com/theburgerllc/ARBBot2025-sub002/internal/scanner"
	"github.com/theburgerllc/ARBBot2025-sub002/internal/types"
	"github.com/theburgerllc/ARBBot2025-sub002/internal/venues"
)

// dryRunExecutor is the stand-in execution collaborator: it logs approved
// candidates instead of trading them. A real host wires its own Executor
// and calls Engine.ReportOutcome with realized results.
//
// Each approval commits exposure that only an outcome releases, so the dry
// run settles every candidate immediately at zero profit; otherwise a long
// run saturates the exposure caps and starts rejecting everything.
type dryRunExecutor struct {
	log    *zap.Logger
	report func(types.TradeOutcome)
}

func (d *dryRunExecutor) Execute(_ context.Context, opp types.Opportunity, params types.OptimizedParameters) {
	d.log.Info("approved candidate (dry run)",
		zap.String("id", opp.ID),
		zap.Uint64("chain", uint64(opp.Chain)),
		zap.String("pair", opp.Pair),
		zap.String("buy_venue", string(opp.BuyVenue)),
		zap.String("sell_venue", string(opp.SellVenue)),
		zap.Float64("spread_bps", opp.SpreadBps),
		zap.Float64("net_profit", opp.NetProfit),
		zap.Float64("gas_cost", opp.GasCost),
		zap.Float64("confidence", opp.Confidence),
		zap.Float64("trade_size", opp.TradeSize),
		zap.Uint32("slippage_bps", params.SlippageBps),
		zap.String("gas_urgency", string(params.GasUrgency)))

	if d.report != nil {
		d.report(types.TradeOutcome{
			OpportunityID: opp.ID,
			Chain:         opp.Chain,
			Pair:          opp.Pair,
			Token:         opp.Path[0],
			Success:       true,
			Size:          opp.TradeSize,
		})
	}
}

func main() {
	cfgPath := flag.String("config", "./config.yaml", "path to config file")
	flag.Parse()

	log, err := pipeline.NewLogger()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal("config load failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Warn("received signal, shutting down...")
		cancel()
	}()

	metrics.Serve(ctx, cfg.Metrics.ListenAddr, nil, log)

	sources := make(map[types.ChainID]market.ChainSource, len(cfg.Chains))
	ethSources := make(map[types.ChainID]*market.EthSource, len(cfg.Chains))
	for _, cc := range cfg.Chains {
		src, err := market.NewEthSource(ctx, cc.RPCHTTP, log)
		if err != nil {
			// degraded start: the chain's cycles fall back to default
			// conditions until the endpoint comes back on a restart
			log.Warn("chain source dial failed, chain will run on defaults",
				zap.Uint64("chain", cc.ID), zap.String("rpc", cc.RPCHTTP), zap.Error(err))
			continue
		}
		sources[types.ChainID(cc.ID)] = src
		ethSources[types.ChainID(cc.ID)] = src
		defer src.Close()
	}

	decimals := cfg.TokenDecimals()
	addrs := tokenAddresses(cfg)
	registry := venues.NewRegistry()
	symbols := wsSymbols(cfg)
	for _, vc := range cfg.Venues {
		vlog := log.With(zap.String("venue", string(vc.ID)))
		var q venues.Quoter
		switch vc.Kind {
		case "ws":
			ws := venues.NewWSBook(vc.WsURL, decimals, vlog)
			go ws.Run(ctx, symbols)
			q = ws
		case "univ3":
			src, ok := ethSources[types.ChainID(vc.Chain)]
			if !ok {
				vlog.Warn("univ3 venue skipped, chain source unavailable", zap.Uint64("chain", vc.Chain))
				continue
			}
			mc, err := multicall.New(src.Client(), common.HexToAddress(vc.Multicall))
			if err != nil {
				log.Fatal("multicall client", zap.Error(err))
			}
			uq, err := venues.NewUniV3Quoter(mc, common.HexToAddress(vc.QuoterV2), addrs, vc.FeeTiers, vlog)
			if err != nil {
				log.Fatal("univ3 venue", zap.Error(err))
			}
			q = uq
		case "univ2":
			src, ok := ethSources[types.ChainID(vc.Chain)]
			if !ok {
				vlog.Warn("univ2 venue skipped, chain source unavailable", zap.Uint64("chain", vc.Chain))
				continue
			}
			uq, err := venues.NewUniV2Quoter(src.Client(), common.HexToAddress(vc.Router), addrs)
			if err != nil {
				log.Fatal("univ2 venue", zap.Error(err))
			}
			q = uq
		default:
			log.Warn("venue kind not wired, using static quoter",
				zap.String("venue", string(vc.ID)), zap.String("kind", vc.Kind))
			q = venues.NewStaticQuoter(decimals)
		}
		var lim *rate.Limiter
		if vc.RateLimit > 0 {
			lim = rate.NewLimiter(rate.Limit(vc.RateLimit), 1)
		}
		registry.Register(&venues.Venue{ID: vc.ID, Quoter: q, Limiter: lim})
	}

	analyzer := market.NewAnalyzer(cfg.Analyzer, sources, log)
	tracker := perf.NewTracker(cfg.Perf)
	opt := optimizer.New(cfg.Optimizer, log)
	gate := risk.NewGate(cfg.Risk, log)
	pub := feed.NewPublisher(cfg)
	defer pub.Close()

	if cfg.DryRun {
		log.Warn("DRY-RUN: approved candidates are logged, not executed")
	}
	exec := &dryRunExecutor{log: log}

	var board *dash.Store
	if cfg.Dash.ListenAddr != "" {
		board = dash.NewStore()
		go dash.StartHTTP(ctx, board, cfg.Dash.ListenAddr, log)
	}

	sc := scanner.New(cfg, analyzer, opt, gate, tracker, registry, exec, log)
	engine := pipeline.NewEngine(cfg, sc, gate, tracker, pub, board, log)
	exec.report = engine.ReportOutcome

	log.Info("pipeline starting",
		zap.Int("chains", len(cfg.Chains)),
		zap.Int("pairs", len(cfg.Pairs)),
		zap.Int("venues", len(cfg.Venues)),
		zap.Bool("dry_run", cfg.DryRun))
	engine.Run(ctx)
}

// tokenAddresses builds the symbol -> address table for on-chain quoters.
func tokenAddresses(cfg *config.Config) map[string]common.Address {
	out := make(map[string]common.Address, len(cfg.Tokens))
	for _, t := range cfg.Tokens {
		if t.Addr != "" {
			out[strings.ToUpper(t.Symbol)] = common.HexToAddress(t.Addr)
		}
	}
	return out
}

// wsSymbols derives book-ticker subscription symbols from the two-token
// pairs; multi-hop paths subscribe per leg.
func wsSymbols(cfg *config.Config) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, p := range cfg.Pairs {
		for i := 0; i+1 < len(p.Path); i++ {
			sym := strings.ToUpper(p.Path[i] + p.Path[i+1])
			if _, ok := seen[sym]; !ok {
				seen[sym] = struct{}{}
				out = append(out, sym)
			}
		}
	}
	return out
}
