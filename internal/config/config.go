package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/theburgerllc/ARBBot2025-sub002/internal/types"
)

type ChainCfg struct {
	ID          uint64 `yaml:"id"`
	Name        string `yaml:"name"`
	RPCHTTP     string `yaml:"rpc_http"`
	GasUnits    uint64 `yaml:"gas_units_swap"` // conservative per-swap estimate
	BlockTimeMs int    `yaml:"block_time_ms"`
}

type TokenCfg struct {
	Symbol   string `yaml:"symbol"`
	Addr     string `yaml:"addr"`
	Decimals int    `yaml:"decimals"`
}

type PairCfg struct {
	Symbol   string   `yaml:"symbol"`
	Path     []string `yaml:"path"` // token symbols, len >= 2; > 2 is multi-hop
	AmountIn float64  `yaml:"amount_in"` // probe size, units of the first path token
	Chains   []uint64 `yaml:"chains"`
}

type VenueCfg struct {
	ID        types.VenueID `yaml:"id"`
	Kind      string        `yaml:"kind"` // "ws", "univ3", "univ2" or "static"
	WsURL     string        `yaml:"ws_url"`
	RateLimit float64       `yaml:"rate_limit"` // quote requests per second, 0 = unlimited

	// on-chain kinds
	Chain     uint64   `yaml:"chain"`     // which chain's RPC serves this venue
	Router    string   `yaml:"router"`    // univ2: router address
	QuoterV2  string   `yaml:"quoter_v2"` // univ3: QuoterV2 address
	Multicall string   `yaml:"multicall"` // univ3: batcher address
	FeeTiers  []uint32 `yaml:"fee_tiers"` // univ3: pools to probe, default 500/3000
}

type AnalyzerCfg struct {
	FeeWindow      int     `yaml:"fee_window"` // trailing fee samples kept per chain
	QuietBefore    int     `yaml:"quiet_before_hour"`
	QuietAfter     int     `yaml:"quiet_after_hour"`
	PeakStart      int     `yaml:"peak_start_hour"`
	PeakEnd        int     `yaml:"peak_end_hour"`
	HighVol        float64 `yaml:"high_vol"` // regime boundary
	LowVol         float64 `yaml:"low_vol"`
	TrendWindow    int     `yaml:"trend_window"`
	DefaultLiq     float64 `yaml:"default_liquidity"`
	DefaultGasWei  uint64  `yaml:"default_gas_wei"`
	LiquidityScale float64 `yaml:"liquidity_scale"` // quote units of depth at zero congestion
}

type Band struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

type OptimizerCfg struct {
	BaseSpreadBps float64 `yaml:"base_spread_bps"`
	GasUnits      uint64  `yaml:"gas_units"` // conservative breakeven estimate
	MaxGasRatio   float64 `yaml:"max_gas_ratio"`
	RefTradeSize  float64 `yaml:"ref_trade_size"` // quote units, for bps conversion

	// bucket boundaries
	VolLow   float64 `yaml:"vol_low"`
	VolHigh  float64 `yaml:"vol_high"`
	LiqLow   float64 `yaml:"liq_low"`
	LiqHigh  float64 `yaml:"liq_high"`
	CompLow  float64 `yaml:"comp_low"`
	CompHigh float64 `yaml:"comp_high"`

	// adjustment factors keyed by bucket name (low/normal/high) or time of day
	VolatilityFactors  map[string]float64 `yaml:"volatility_factors"`
	LiquidityFactors   map[string]float64 `yaml:"liquidity_factors"`
	CompetitionFactors map[string]float64 `yaml:"competition_factors"`
	TimeFactors        map[string]float64 `yaml:"time_factors"`

	Learning struct {
		MinSamples  int     `yaml:"min_samples"`
		MinFactor   float64 `yaml:"min_factor"`
		MaxFactor   float64 `yaml:"max_factor"`
		LowSuccess  float64 `yaml:"low_success"`
		HighSuccess float64 `yaml:"high_success"`
		HighGas     float64 `yaml:"high_gas"`
	} `yaml:"learning"`

	// safety bands; outputs are clamped here, never returned outside them
	MinSpreadBand   Band          `yaml:"min_spread_band"`
	MinProfitBand   Band          `yaml:"min_profit_band"`
	SlippageBand    Band          `yaml:"slippage_band"`
	TradeSizeBand   Band          `yaml:"trade_size_band"`
	CooldownMin     time.Duration `yaml:"cooldown_min"`
	CooldownMax     time.Duration `yaml:"cooldown_max"`
	BaseSlippageBps uint32        `yaml:"base_slippage_bps"`
	BaseTradeSize   float64       `yaml:"base_trade_size"`
	BaseCooldown    time.Duration `yaml:"base_cooldown"`
}

type RiskCfg struct {
	InitialBalance     float64       `yaml:"initial_balance"`
	MaxDrawdown        float64       `yaml:"max_drawdown"`
	MaxDailyLoss       float64       `yaml:"max_daily_loss"`
	MaxWeeklyLoss      float64       `yaml:"max_weekly_loss"`
	MaxConsecFailures  int           `yaml:"max_consecutive_failures"`
	MinSuccessRate1h   float64       `yaml:"min_success_rate_1h"`
	MinSuccessRate24h  float64       `yaml:"min_success_rate_24h"`
	MinSamples         int           `yaml:"min_samples"`
	MaxGasToCapital    float64       `yaml:"max_gas_to_capital"`
	MaxCapitalFraction float64       `yaml:"max_capital_fraction"` // per-trade size cap
	MaxGasProfitRatio  float64       `yaml:"max_gas_profit_ratio"`
	TokenExposureCap   float64       `yaml:"token_exposure_cap"` // fraction of capital
	ChainExposureCap   float64       `yaml:"chain_exposure_cap"`
	HourWindow         time.Duration `yaml:"hour_window"` // trailing windows behind the rate/loss limits
	DayWindow          time.Duration `yaml:"day_window"`
	WeekWindow         time.Duration `yaml:"week_window"`
	Cooldown           time.Duration `yaml:"cooldown"`
	AllowOverride      bool          `yaml:"allow_override"`
}

type PerfCfg struct {
	MaxRecords int           `yaml:"max_records"`
	Window     time.Duration `yaml:"window"`
}

type ScannerCfg struct {
	IntervalMs     int     `yaml:"interval_ms"`
	QuoteTimeoutMs int     `yaml:"quote_timeout_ms"`
	MinVenues      int     `yaml:"min_venues"`
	GasPriceBump   float64 `yaml:"gas_price_bump"` // headroom on estimated gas cost
	NativeUSD      float64 `yaml:"native_usd"`     // fallback native-asset price
}

type Config struct {
	DryRun bool `yaml:"dry_run"`

	Chains []ChainCfg `yaml:"chains"`
	Tokens []TokenCfg `yaml:"tokens"`
	Pairs  []PairCfg  `yaml:"pairs"`
	Venues []VenueCfg `yaml:"venues"`

	Analyzer  AnalyzerCfg  `yaml:"analyzer"`
	Optimizer OptimizerCfg `yaml:"optimizer"`
	Risk      RiskCfg      `yaml:"risk"`
	Perf      PerfCfg      `yaml:"perf"`
	Scanner   ScannerCfg   `yaml:"scanner"`

	Redis struct {
		Addr      string `yaml:"addr"`
		DB        int    `yaml:"db"`
		Username  string `yaml:"username"`
		Password  string `yaml:"password"`
		Stream    string `yaml:"stream"`
		LatestKey string `yaml:"latest_key"`
		MaxLen    int64  `yaml:"max_len"`
	} `yaml:"redis"`

	Metrics struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"metrics"`

	Dash struct {
		ListenAddr string `yaml:"listen_addr"` // empty disables the monitor
	} `yaml:"dash"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.applyDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Default returns a config with every tunable at its documented default.
// Tests and dry runs start from here.
func Default() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

func (c *Config) applyDefaults() {
	a := &c.Analyzer
	if a.FeeWindow == 0 {
		a.FeeWindow = 20
	}
	if a.QuietBefore == 0 {
		a.QuietBefore = 7
	}
	if a.QuietAfter == 0 {
		a.QuietAfter = 22
	}
	if a.PeakStart == 0 {
		a.PeakStart = 13
	}
	if a.PeakEnd == 0 {
		a.PeakEnd = 17
	}
	if a.HighVol == 0 {
		a.HighVol = 0.7
	}
	if a.LowVol == 0 {
		a.LowVol = 0.2
	}
	if a.TrendWindow == 0 {
		a.TrendWindow = 10
	}
	if a.DefaultLiq == 0 {
		a.DefaultLiq = 50_000
	}
	if a.DefaultGasWei == 0 {
		a.DefaultGasWei = 20_000_000_000 // 20 gwei
	}
	if a.LiquidityScale == 0 {
		a.LiquidityScale = 100_000
	}

	o := &c.Optimizer
	if o.BaseSpreadBps == 0 {
		o.BaseSpreadBps = 30
	}
	if o.GasUnits == 0 {
		o.GasUnits = 500_000
	}
	if o.MaxGasRatio == 0 {
		o.MaxGasRatio = 0.25
	}
	if o.RefTradeSize == 0 {
		o.RefTradeSize = 10_000
	}
	if o.VolLow == 0 {
		o.VolLow = 0.3
	}
	if o.VolHigh == 0 {
		o.VolHigh = 0.7
	}
	if o.LiqLow == 0 {
		o.LiqLow = 10_000
	}
	if o.LiqHigh == 0 {
		o.LiqHigh = 250_000
	}
	if o.CompLow == 0 {
		o.CompLow = 0.3
	}
	if o.CompHigh == 0 {
		o.CompHigh = 0.7
	}
	if o.VolatilityFactors == nil {
		o.VolatilityFactors = map[string]float64{"low": 0.8, "normal": 1.0, "high": 1.4}
	}
	if o.LiquidityFactors == nil {
		o.LiquidityFactors = map[string]float64{"low": 1.3, "normal": 1.0, "high": 0.9}
	}
	if o.CompetitionFactors == nil {
		o.CompetitionFactors = map[string]float64{"low": 0.7, "normal": 1.0, "high": 1.25}
	}
	if o.TimeFactors == nil {
		o.TimeFactors = map[string]float64{"quiet": 0.9, "active": 1.0, "peak": 1.15}
	}
	if o.Learning.MinSamples == 0 {
		o.Learning.MinSamples = 5
	}
	if o.Learning.MinFactor == 0 {
		o.Learning.MinFactor = 0.5
	}
	if o.Learning.MaxFactor == 0 {
		o.Learning.MaxFactor = 2.0
	}
	if o.Learning.LowSuccess == 0 {
		o.Learning.LowSuccess = 0.3
	}
	if o.Learning.HighSuccess == 0 {
		o.Learning.HighSuccess = 0.9
	}
	if o.Learning.HighGas == 0 {
		o.Learning.HighGas = 0.5
	}
	if o.MinSpreadBand == (Band{}) {
		o.MinSpreadBand = Band{Min: 5, Max: 500}
	}
	if o.MinProfitBand == (Band{}) {
		o.MinProfitBand = Band{Min: 1, Max: 100_000}
	}
	if o.SlippageBand == (Band{}) {
		o.SlippageBand = Band{Min: 10, Max: 300}
	}
	if o.TradeSizeBand == (Band{}) {
		o.TradeSizeBand = Band{Min: 100, Max: 250_000}
	}
	if o.CooldownMin == 0 {
		o.CooldownMin = 5 * time.Second
	}
	if o.CooldownMax == 0 {
		o.CooldownMax = 10 * time.Minute
	}
	if o.BaseSlippageBps == 0 {
		o.BaseSlippageBps = 50
	}
	if o.BaseTradeSize == 0 {
		o.BaseTradeSize = 10_000
	}
	if o.BaseCooldown == 0 {
		o.BaseCooldown = 30 * time.Second
	}

	r := &c.Risk
	if r.InitialBalance == 0 {
		r.InitialBalance = 100_000
	}
	if r.MaxDrawdown == 0 {
		r.MaxDrawdown = 0.15
	}
	if r.MaxDailyLoss == 0 {
		r.MaxDailyLoss = 0.05 * r.InitialBalance
	}
	if r.MaxWeeklyLoss == 0 {
		r.MaxWeeklyLoss = 0.10 * r.InitialBalance
	}
	if r.MaxConsecFailures == 0 {
		r.MaxConsecFailures = 5
	}
	if r.MinSuccessRate1h == 0 {
		r.MinSuccessRate1h = 0.4
	}
	if r.MinSuccessRate24h == 0 {
		r.MinSuccessRate24h = 0.5
	}
	if r.MinSamples == 0 {
		r.MinSamples = 10
	}
	if r.MaxGasToCapital == 0 {
		r.MaxGasToCapital = 0.02
	}
	if r.MaxCapitalFraction == 0 {
		r.MaxCapitalFraction = 0.10
	}
	if r.MaxGasProfitRatio == 0 {
		r.MaxGasProfitRatio = 0.5
	}
	if r.TokenExposureCap == 0 {
		r.TokenExposureCap = 0.25
	}
	if r.ChainExposureCap == 0 {
		r.ChainExposureCap = 0.40
	}
	if r.HourWindow == 0 {
		r.HourWindow = time.Hour
	}
	if r.DayWindow == 0 {
		r.DayWindow = 24 * time.Hour
	}
	if r.WeekWindow == 0 {
		r.WeekWindow = 7 * 24 * time.Hour
	}
	if r.Cooldown == 0 {
		r.Cooldown = 30 * time.Minute
	}

	p := &c.Perf
	if p.MaxRecords == 0 {
		p.MaxRecords = 1000
	}
	if p.Window == 0 {
		p.Window = 24 * time.Hour
	}

	s := &c.Scanner
	if s.IntervalMs == 0 {
		s.IntervalMs = 1000
	}
	if s.QuoteTimeoutMs == 0 {
		s.QuoteTimeoutMs = 2000
	}
	if s.MinVenues == 0 {
		s.MinVenues = 2
	}
	if s.GasPriceBump == 0 {
		s.GasPriceBump = 1.1
	}
	if s.NativeUSD == 0 {
		s.NativeUSD = 2000
	}

	if c.Redis.Stream == "" {
		c.Redis.Stream = "scan:cycles"
	}
	if c.Redis.LatestKey == "" {
		c.Redis.LatestKey = "scan:latest"
	}
	if c.Redis.MaxLen == 0 {
		c.Redis.MaxLen = 10_000
	}
}

func (c *Config) validate() error {
	if c.Optimizer.MaxGasRatio <= 0 || c.Optimizer.MaxGasRatio > 1 {
		return fmt.Errorf("optimizer.max_gas_ratio must be in (0,1], got %v", c.Optimizer.MaxGasRatio)
	}
	if c.Risk.MaxDrawdown <= 0 || c.Risk.MaxDrawdown > 1 {
		return fmt.Errorf("risk.max_drawdown must be in (0,1], got %v", c.Risk.MaxDrawdown)
	}
	if c.Optimizer.Learning.MinFactor > c.Optimizer.Learning.MaxFactor {
		return fmt.Errorf("optimizer.learning: min_factor > max_factor")
	}
	known := make(map[string]bool, len(c.Tokens))
	for _, t := range c.Tokens {
		known[t.Symbol] = true
	}
	for _, p := range c.Pairs {
		if len(p.Path) < 2 {
			return fmt.Errorf("pair %q: path needs at least 2 tokens", p.Symbol)
		}
		for _, sym := range p.Path {
			if !known[sym] {
				return fmt.Errorf("pair %q: unknown token %q", p.Symbol, sym)
			}
		}
	}
	return nil
}

// TokenDecimals returns the symbol -> decimals table.
func (c *Config) TokenDecimals() map[string]int {
	out := make(map[string]int, len(c.Tokens))
	for _, t := range c.Tokens {
		out[t.Symbol] = t.Decimals
	}
	return out
}

func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.Scanner.IntervalMs) * time.Millisecond
}

func (c *Config) QuoteTimeout() time.Duration {
	return time.Duration(c.Scanner.QuoteTimeoutMs) * time.Millisecond
}

// Chain returns the chain config for id, or nil.
func (c *Config) Chain(id uint64) *ChainCfg {
	for i := range c.Chains {
		if c.Chains[i].ID == id {
			return &c.Chains[i]
		}
	}
	return nil
}
