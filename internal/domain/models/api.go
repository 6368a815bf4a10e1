package models

// Requests for the read-accessor HTTP endpoints. Defined in domain for
// consistency and reuse.

type HistoryRequest struct {
	Symbol string `param:"symbol" json:"symbol" validate:"required,max=20"`
	N      int    `query:"n" json:"n" default:"100" validate:"gte=1,lte=2000"`
	TF     string `query:"tf" json:"tf" default:"1m" validate:"oneof=1m 5m 15m 1h"`
	From   string `query:"from" json:"from,omitempty" validate:"omitempty,max=40"`
	To     string `query:"to" json:"to,omitempty" validate:"omitempty,max=40"`
}

type LatestRequest struct {
	Symbol string `param:"symbol" json:"symbol" validate:"required,max=20"`
	N      int    `query:"n" json:"n" default:"50" validate:"gte=1,lte=1000"`
}

type SummaryRequest struct {
	TF string `query:"tf" json:"tf" default:"1m" validate:"oneof=1m 5m 15m 1h"`
}

// SymbolSummary is the per-symbol roll-up served by the summary endpoint:
// the newest sample joined with the newest engine output.
type SymbolSummary struct {
	Symbol     string   `json:"symbol"`
	Price      *float64 `json:"price"`
	Funding    *float64 `json:"funding"`
	Confluence *float64 `json:"confluence"`
	Regime     Regime   `json:"regime,omitempty"`
	Bias       Bias     `json:"bias,omitempty"`
	Context    *float64 `json:"context"`
}
