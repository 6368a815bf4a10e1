package models

import "time"

// FeatureSnapshot is a point-in-time per-symbol feature vector derived from
// the rolling MetricRow window. Nil fields mean the input data needed for
// that feature was not available; downstream stages must tolerate that.
type FeatureSnapshot struct {
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	Timestamp time.Time `json:"timestamp"`

	// Short-horizon percentage changes at fixed index offsets.
	PriceChange1  *float64 `json:"price_change_1"`
	PriceChange5  *float64 `json:"price_change_5"`
	PriceChange15 *float64 `json:"price_change_15"`
	OIChange5     *float64 `json:"oi_change_5"`

	// Volatility proxy: population stdev of recent returns scaled by price.
	Volatility *float64 `json:"volatility"`

	// Order book imbalance: bid volume / (bid + ask volume).
	Imbalance *float64 `json:"imbalance"`

	// Taker buy count / taker sell count.
	TakerRatio *float64 `json:"taker_ratio"`

	// Volume pressure: latest volume relative to window mean volume.
	VolumePressure *float64 `json:"volume_pressure"`

	// Component z-scores over the window.
	OIZScore        *float64 `json:"oi_zscore"`
	TopTraderZScore *float64 `json:"top_trader_zscore"`
	ImbalanceZScore *float64 `json:"imbalance_zscore"`
	FundingZScore   *float64 `json:"funding_zscore"`

	// Composite is the renormalized weighted mean of the available component
	// z-scores. Nil only when every component is nil.
	Composite *float64 `json:"composite"`
}
