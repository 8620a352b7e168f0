package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	Volatility = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scan_volatility",
		Help: "Normalized fee volatility per chain",
	}, []string{"chain"})

	Congestion = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scan_network_congestion",
		Help: "Block utilization per chain",
	}, []string{"chain"})

	MinSpreadBps = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scan_min_spread_bps",
		Help: "Effective minimum spread threshold (bps) per chain",
	}, []string{"chain"})

	CandidatesFound = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scan_candidates_found_total",
		Help: "Candidate opportunities produced per chain",
	}, []string{"chain"})

	CandidatesApproved = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scan_candidates_approved_total",
		Help: "Candidates approved by the risk gate per chain",
	}, []string{"chain"})

	CandidatesRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scan_candidates_rejected_total",
		Help: "Candidates rejected by the risk gate, by limit",
	}, []string{"chain", "limit"})

	QuoteErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scan_quote_errors_total",
		Help: "Number of venue quote failures",
	})

	QuoteLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "scan_quote_latency_seconds",
		Help:    "Time to obtain one venue quote",
		Buckets: prometheus.DefBuckets,
	})

	BreakerOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scan_circuit_breaker_open",
		Help: "1 while the circuit breaker is open",
	})

	Balance = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scan_current_balance",
		Help: "Current balance in quote-asset units",
	})

	Drawdown = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scan_current_drawdown",
		Help: "Fractional loss from peak balance",
	})
)

func init() {
	prometheus.MustRegister(
		Volatility,
		Congestion,
		MinSpreadBps,
		CandidatesFound,
		CandidatesApproved,
		CandidatesRejected,
		QuoteErrors,
		QuoteLatency,
		BreakerOpen,
		Balance,
		Drawdown,
	)
}
