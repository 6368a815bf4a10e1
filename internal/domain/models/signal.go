package models

import "time"

// Family names the six heuristic microstructure patterns.
type Family string

const (
	FamilyAccumulation Family = "accumulation"
	FamilyDistribution Family = "distribution"
	FamilyMomentum     Family = "momentum"
	FamilyExhaustion   Family = "exhaustion"
	FamilyOrderflow    Family = "orderflow"
	FamilyDivergence   Family = "divergence"
)

// Families lists all families in a stable order.
var Families = []Family{
	FamilyAccumulation,
	FamilyDistribution,
	FamilyMomentum,
	FamilyExhaustion,
	FamilyOrderflow,
	FamilyDivergence,
}

// SignalRecord is one family signal for one symbol at one evaluation.
// Method distinguishes the threshold strategy from the diagnostics-derived
// one; both run every interval.
type SignalRecord struct {
	Symbol     string    `json:"symbol"`
	Family     Family    `json:"family"`
	Method     string    `json:"method"` // "threshold" | "diagnostic"
	Score      float64   `json:"score"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// DiagnosticsRecord holds per-symbol rolling correlation diagnostics.
// Correlations degrade to 0 on constant or mismatched series, never error.
type DiagnosticsRecord struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`

	CorrPriceOI        float64 `json:"corr_price_oi"`
	CorrPriceLongShort float64 `json:"corr_price_long_short"`
	CorrOILongShort    float64 `json:"corr_oi_long_short"`

	Volatility       float64 `json:"volatility"`
	VolatilityZScore float64 `json:"volatility_zscore"`

	// ConfluenceDensity is the fraction of recent price moves whose
	// magnitude exceeds the configured threshold.
	ConfluenceDensity float64 `json:"confluence_density"`
}

// ConfluenceRecord summarizes net directional pressure from family signals.
type ConfluenceRecord struct {
	Symbol       string    `json:"symbol"`
	Timestamp    time.Time `json:"timestamp"`
	Score        float64   `json:"score"` // bull - bear
	BullStrength float64   `json:"bull_strength"`
	BearStrength float64   `json:"bear_strength"`
	Volatility   float64   `json:"volatility"`
	Contributing int       `json:"contributing"`
}

// Regime classifies current (confluence, volatility) into a market condition.
type Regime string

const (
	RegimeAccumulation Regime = "accumulation"
	RegimeExpansion    Regime = "expansion"
	RegimeDistribution Regime = "distribution"
	RegimeExhaustion   Regime = "exhaustion"
	RegimeNeutral      Regime = "neutral"
)

// RegimeRecord is the stateless regime classification for one symbol.
type RegimeRecord struct {
	Symbol     string    `json:"symbol"`
	Timestamp  time.Time `json:"timestamp"`
	Regime     Regime    `json:"regime"`
	Confidence float64   `json:"confidence"`
	Confluence float64   `json:"confluence"`
	Volatility float64   `json:"volatility"`
}

// Bias labels the blended context score.
type Bias string

const (
	BiasBullish Bias = "bullish"
	BiasNeutral Bias = "neutral"
	BiasBearish Bias = "bearish"
)

// ContextScoreRecord is the 0-1 blended context score and its bias label.
type ContextScoreRecord struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Score     float64   `json:"score"`
	Bias      Bias      `json:"bias"`
	Regime    Regime    `json:"regime"`
}

// ContextTransition is emitted only when a symbol's bias label changes
// between consecutive evaluations.
type ContextTransition struct {
	Symbol    string    `json:"symbol"`
	From      Bias      `json:"from"`
	To        Bias      `json:"to"`
	Score     float64   `json:"score"`
	Timestamp time.Time `json:"timestamp"`
}

// EngineBatch carries everything one SignalEngine interval produced for all
// symbols; it is handed to the push hook for relay over the live channel.
type EngineBatch struct {
	Timestamp   time.Time            `json:"timestamp"`
	Signals     []SignalRecord       `json:"signals"`
	Diagnostics []DiagnosticsRecord  `json:"diagnostics"`
	Confluence  []ConfluenceRecord   `json:"confluence"`
	Regimes     []RegimeRecord       `json:"regimes"`
	Contexts    []ContextScoreRecord `json:"contexts"`
	Transitions []ContextTransition  `json:"transitions"`
}
