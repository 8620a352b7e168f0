package dash

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/theburgerllc/ARBBot2025-sub002/internal/scanner"
	"github.com/theburgerllc/ARBBot2025-sub002/internal/types"
)

// Row is one chain's latest cycle, flattened for the monitor page.
type Row struct {
	Chain     uint64  `json:"chain"`
	Regime    string  `json:"regime"`
	Stability float64 `json:"stability"`

	Volatility float64 `json:"volatility"`
	Congestion float64 `json:"congestion"`
	Degraded   bool    `json:"degraded"`

	MinSpreadBps float64 `json:"minSpreadBps"`
	MinProfit    float64 `json:"minProfit"`

	Found    int `json:"found"`
	Filtered int `json:"filtered"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`

	Suspended bool  `json:"suspended"`
	ElapsedMs int64 `json:"elapsedMs"`
	TS        int64 `json:"ts"`
}

// Status is the breaker banner shown above the table.
type Status struct {
	BreakerActive bool     `json:"breakerActive"`
	Reasons       []string `json:"reasons,omitempty"`
	RecoveryETA   int64    `json:"recoveryEta,omitempty"`
}

// Store keeps the latest cycle per chain for the monitor. A nil *Store is a
// no-op so the pipeline runs unchanged when the dashboard is not configured.
type Store struct {
	mu      sync.RWMutex
	rows    map[types.ChainID]Row
	breaker Status
}

func NewStore() *Store { return &Store{rows: make(map[types.ChainID]Row, 8)} }

func (s *Store) Update(rep scanner.CycleReport) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.rows[rep.Chain] = Row{
		Chain:        uint64(rep.Chain),
		Regime:       string(rep.Regime.Type),
		Stability:    rep.Regime.Stability,
		Volatility:   rep.Conditions.Volatility,
		Congestion:   rep.Conditions.NetworkCongestion,
		Degraded:     rep.Degraded,
		MinSpreadBps: rep.Params.MinSpreadBps,
		MinProfit:    rep.Params.MinProfit,
		Found:        rep.Found,
		Filtered:     rep.Filtered,
		Approved:     len(rep.Approved),
		Rejected:     len(rep.Rejected),
		Suspended:    rep.Suspended,
		ElapsedMs:    rep.Elapsed.Milliseconds(),
		TS:           rep.Ts.UnixMilli(),
	}
	s.mu.Unlock()
}

func (s *Store) SetBreaker(st types.CircuitBreakerStatus) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.breaker = Status{BreakerActive: st.Active, Reasons: st.Reasons}
	if st.Active {
		s.breaker.RecoveryETA = st.RecoveryETA.UnixMilli()
	}
	s.mu.Unlock()
}

// List returns the rows ordered by chain id.
func (s *Store) List() []Row {
	s.mu.RLock()
	out := make([]Row, 0, len(s.rows))
	for _, r := range s.rows {
		out = append(out, r)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Chain < out[j].Chain })
	return out
}

func (s *Store) Breaker() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.breaker
}

// StartHTTP serves the monitor until ctx is done. Errors are logged, never
// fatal: a broken dashboard must not stop the pipeline.
func StartHTTP(ctx context.Context, s *Store, addr string, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/dash", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			Status Status `json:"status"`
			Rows   []Row  `json:"rows"`
		}{Status: s.Breaker(), Rows: s.List()})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, indexHTML)
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           withCORS(mux),
		ReadHeaderTimeout: 3 * time.Second,
	}

	go func() { <-ctx.Done(); _ = srv.Close() }()

	log.Info("dash listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Warn("dash http server error", zap.Error(err))
	}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

const indexHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8"/>
  <meta name="viewport" content="width=device-width, initial-scale=1"/>
  <title>Pipeline Monitor</title>
  <style>
    :root { --bg:#f8fafc; --card:#fff; --muted:#6b7280; --chip:#e5e7eb; }
    body{margin:0;background:var(--bg);font:14px/1.4 ui-sans-serif,system-ui,-apple-system,Segoe UI,Roboto,Ubuntu; color:#111827;}
    .wrap{max-width:1080px;margin:24px auto;padding:0 16px;}
    .hdr{display:flex;align-items:flex-end;justify-content:space-between;margin-bottom:12px;}
    .state{font-size:12px;padding:2px 8px;border-radius:999px;background:#d1fae5;color:#065f46;}
    .state.halted{background:#fee2e2;color:#991b1b;}
    table{width:100%;border-collapse:collapse;background:var(--card);border-radius:16px;overflow:hidden;box-shadow:0 10px 30px rgba(0,0,0,.06);}
    thead{background:#f3f4f6;} th,td{padding:12px 14px;text-align:left;} tbody tr{border-top:1px solid #f3f4f6;}
    .chip{display:inline-block;font-size:12px;padding:2px 8px;background:var(--chip);border-radius:999px;color:#374151;}
    .chip.warn{background:#fef3c7;color:#92400e;}
    .sub{color:var(--muted);font-size:12px;margin:0;}
  </style>
</head>
<body>
<div class="wrap">
  <div class="hdr">
    <div>
      <h1 style="margin:0;font-size:22px;font-weight:600">Opportunity Pipeline</h1>
      <p class="sub">per-chain cycle state, adaptive thresholds, risk gate</p>
    </div>
    <div id="state" class="state">live</div>
  </div>
  <table>
    <thead>
      <tr>
        <th>Chain</th><th>Regime</th><th>Vol</th><th>Congestion</th>
        <th>Min spread</th><th>Found</th><th>Filtered</th><th>Approved</th><th>Rejected</th>
        <th style="text-align:right">Updated</th>
      </tr>
    </thead>
    <tbody id="rows"></tbody>
  </table>
  <p class="sub" style="margin-top:8px">Min spread is the adaptive acceptance threshold in basis points; filtered counts candidates that fell below it.</p>
</div>
<script>
  function pct(x){ return (x==null||isNaN(x)) ? '—' : ((x*100).toFixed(1)+'%'); }
  function bps(x){ return (x==null||isNaN(x)) ? '—' : (Number(x).toFixed(1)+' bps'); }
  function rowHTML(r){
    var regime = (r.regime||'') + (r.degraded ? ' (degraded)' : '');
    return '<tr>'
      + '<td><strong>' + r.chain + '</strong></td>'
      + '<td><span class="chip' + (r.suspended?' warn':'') + '">' + regime + '</span></td>'
      + '<td>' + pct(r.volatility) + '</td>'
      + '<td>' + pct(r.congestion) + '</td>'
      + '<td>' + bps(r.minSpreadBps) + '</td>'
      + '<td>' + (r.found||0) + '</td>'
      + '<td>' + (r.filtered||0) + '</td>'
      + '<td>' + (r.approved||0) + '</td>'
      + '<td>' + (r.rejected||0) + '</td>'
      + '<td style="text-align:right;color:#6B7280;font-size:12px">' + new Date(r.ts||Date.now()).toLocaleTimeString() + '</td>'
      + '</tr>';
  }
  async function tick(){
    try{
      var res = await fetch('/api/dash', {cache:'no-store'});
      if(!res.ok) throw new Error('status '+res.status);
      var data = await res.json();
      var st = document.getElementById('state');
      if(data.status && data.status.breakerActive){
        st.textContent = 'suspended'; st.className = 'state halted';
      }else{
        st.textContent = 'live'; st.className = 'state';
      }
      document.getElementById('rows').innerHTML = (data.rows||[]).map(rowHTML).join('');
    }catch(e){
      document.getElementById('state').textContent = 'offline';
    }
  }
  tick(); setInterval(tick, 1000);
</script>
</body>
</html>`
