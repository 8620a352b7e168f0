package types

import (
	"math/big"
	"time"
)

type ChainID uint64

type VenueID string

// TimeOfDay buckets UTC hours into trading activity windows.
type TimeOfDay string

const (
	TimeQuiet  TimeOfDay = "quiet"
	TimeActive TimeOfDay = "active"
	TimePeak   TimeOfDay = "peak"
)

type Trend string

const (
	TrendBull     Trend = "bull"
	TrendBear     Trend = "bear"
	TrendSideways Trend = "sideways"
)

type RegimeType string

const (
	RegimeBull    RegimeType = "bull_market"
	RegimeBear    RegimeType = "bear_market"
	RegimeSide    RegimeType = "sideways"
	RegimeHighVol RegimeType = "high_volatility"
	RegimeLowVol  RegimeType = "low_volatility"
)

type GasUrgency string

const (
	GasLow    GasUrgency = "low"
	GasMedium GasUrgency = "medium"
	GasHigh   GasUrgency = "high"
	GasUrgent GasUrgency = "urgent"
)

type RiskLevel string

const (
	RiskConservative RiskLevel = "conservative"
	RiskBalanced     RiskLevel = "balanced"
	RiskAggressive   RiskLevel = "aggressive"
)

type RiskTier string

const (
	TierLow    RiskTier = "low"
	TierMedium RiskTier = "medium"
	TierHigh   RiskTier = "high"
)

// MarketConditions is a per-cycle snapshot of chain and market state.
// Bounded fields stay in [0,1]; producing a value outside range is a defect.
type MarketConditions struct {
	Volatility        float64
	Liquidity         float64 // estimated depth in quote-asset units, > 0
	NetworkCongestion float64
	CompetitionLevel  float64
	TimeOfDay         TimeOfDay
	Trend             Trend
	RefGasPrice       uint64 // wei
	SampleBlock       uint64
	Ts                time.Time
}

// MarketRegime is the coarser, sticky classification derived from conditions.
type MarketRegime struct {
	Type      RegimeType
	Strength  float64 // [0,1]
	Stability float64 // [0,1], rises while Type is unchanged
	Since     time.Time
	Duration  time.Duration
}

// OptimizedParameters are the currently-effective acceptance thresholds.
// Every numeric field is clamped to its configured safety band before use.
type OptimizedParameters struct {
	MinSpreadBps     float64
	MinProfit        float64 // quote-asset units
	SlippageBps      uint32
	MaxTradeSize     float64 // quote-asset units
	GasUrgency       GasUrgency
	GasFeeMultiplier float64
	Cooldown         time.Duration
	RiskLevel        RiskLevel
}

// VenueQuote is one venue's raw answer for a candidate's input amount.
type VenueQuote struct {
	Venue     VenueID
	AmountOut *big.Int
	OutFloat  float64 // AmountOut scaled by token decimals
}

// Opportunity is a scored, unexecuted candidate trade. Immutable once built.
type Opportunity struct {
	ID          string
	Chain       ChainID
	Pair        string
	Path        []string // token symbols, len >= 2
	BuyVenue    VenueID
	SellVenue   VenueID
	AmountIn    *big.Int
	Quotes      []VenueQuote
	BestOut     float64
	SecondOut   float64
	Spread      float64 // BestOut - SecondOut, quote-asset units
	SpreadBps   float64
	TradeSize   float64 // recommended, quote-asset units
	GrossProfit float64
	GasCost     float64 // quote-asset units
	NetProfit   float64
	PriceImpact float64
	Confidence  float64 // [0,1], advisory only
	Ts          time.Time
}

// TradeOutcome is what the external executor reports back after a trade.
type TradeOutcome struct {
	OpportunityID string
	Chain         ChainID
	Pair          string
	Token         string
	Success       bool
	Profit        float64 // realized, quote-asset units, negative on loss
	Size          float64
	GasUsed       uint64
	GasPrice      uint64
	Latency       time.Duration
	Ts            time.Time
}

// RiskMetrics is the RiskGate's view of account health. Only the RiskGate
// mutates it; everyone else sees copies.
type RiskMetrics struct {
	CurrentBalance       float64
	PeakBalance          float64 // never decreases
	CurrentDrawdown      float64 // [0,1]
	DailyPnL             float64
	WeeklyPnL            float64
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	GasToCapital         float64
	SuccessRate1h        float64
	SuccessRate24h       float64
	AvgProfitMargin      float64
	TokenExposure        map[string]float64
	ChainExposure        map[ChainID]float64
	TotalTrades          int
	ProfitableTrades     int
}

// CircuitBreakerStatus reports the breaker state machine.
type CircuitBreakerStatus struct {
	Active      bool
	ActivatedAt time.Time
	Reasons     []string
	RecoveryETA time.Time
	CanOverride bool
}

// TradeRiskAssessment is the RiskGate's verdict on one candidate.
// A rejection is a normal negative result, not an error: Approved is false
// and Limit names the exact limit that fired.
type TradeRiskAssessment struct {
	Approved    bool
	Tier        RiskTier
	MaxSafeSize float64
	Limit       string // machine-readable limit name on rejection
	Reason      string
}
