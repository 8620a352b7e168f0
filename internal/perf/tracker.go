package perf

import (
	"sync"
	"time"

	"github.com/theburgerllc/ARBBot2025-sub002/internal/config"
	"github.com/theburgerllc/ARBBot2025-sub002/internal/types"
)

// Record is one immutable completed-trade observation, together with the
// parameters and conditions that were in effect when it executed.
type Record struct {
	Outcome    types.TradeOutcome
	Params     types.OptimizedParameters
	Conditions types.MarketConditions
}

// Stats is the on-demand aggregate over the trailing buffer.
type Stats struct {
	Trades        int
	SuccessRate   float64
	AvgProfit     float64
	GasEfficiency float64 // profit per unit of gas spent
	ReturnOnGas   float64 // total profit / total gas cost
	// trend deltas: most recent half-window minus prior half-window
	SuccessRateDelta float64
	AvgProfitDelta   float64
}

// Tracker keeps a bounded, time-ordered buffer of trade records. Append-only
// from the outside; every other component reads copies.
type Tracker struct {
	mu      sync.Mutex
	cfg     config.PerfCfg
	records []Record
}

func NewTracker(cfg config.PerfCfg) *Tracker {
	return &Tracker{cfg: cfg, records: make([]Record, 0, cfg.MaxRecords)}
}

// Add appends one record and evicts anything over the size cap or older
// than the analysis window.
func (t *Tracker) Add(rec Record) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = append(t.records, rec)
	t.evictLocked(rec.Outcome.Ts)
}

func (t *Tracker) evictLocked(now time.Time) {
	if n := len(t.records) - t.cfg.MaxRecords; n > 0 {
		t.records = t.records[n:]
	}
	cutoff := now.Add(-t.cfg.Window)
	i := 0
	for i < len(t.records) && t.records[i].Outcome.Ts.Before(cutoff) {
		i++
	}
	if i > 0 {
		t.records = t.records[i:]
	}
}

// Records returns a copy of the trailing buffer, oldest first.
func (t *Tracker) Records() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Record, len(t.records))
	copy(out, t.records)
	return out
}

func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}

// Stats aggregates the current buffer.
func (t *Tracker) Stats() Stats {
	recs := t.Records()
	return computeStats(recs)
}

func computeStats(recs []Record) Stats {
	s := Stats{Trades: len(recs)}
	if len(recs) == 0 {
		return s
	}
	var wins int
	var profit, gasUnits, gasSpend float64
	for _, r := range recs {
		if r.Outcome.Success {
			wins++
		}
		profit += r.Outcome.Profit
		gasUnits += float64(r.Outcome.GasUsed)
		gasSpend += gasCost(r.Outcome)
	}
	s.SuccessRate = float64(wins) / float64(len(recs))
	s.AvgProfit = profit / float64(len(recs))
	if gasUnits > 0 {
		s.GasEfficiency = profit / gasUnits
	}
	if gasSpend > 0 {
		s.ReturnOnGas = profit / gasSpend
	}

	if len(recs) >= 4 {
		half := len(recs) / 2
		old := computeStats(recs[:half])
		recent := computeStats(recs[half:])
		s.SuccessRateDelta = recent.SuccessRate - old.SuccessRate
		s.AvgProfitDelta = recent.AvgProfit - old.AvgProfit
	}
	return s
}

func gasCost(o types.TradeOutcome) float64 {
	return float64(o.GasUsed) * float64(o.GasPrice)
}
