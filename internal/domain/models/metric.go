package models

import (
	"encoding/json"
	"time"
)

// EventSource identifies where a raw market event came from.
type EventSource string

const (
	SourceStream EventSource = "stream"
	SourcePoll   EventSource = "poll"
)

// RawEvent is a normalized inbound market event from either the websocket
// stream or the REST snapshot poller. It is transient and never persisted;
// the ingestion pipeline folds it into a MetricRow.
type RawEvent struct {
	Symbol    string
	Source    EventSource
	Timestamp time.Time

	// Optional fields; nil means the upstream frame did not carry them.
	LastPrice    *float64
	MarkPrice    *float64
	OpenInterest *float64
	Funding      *float64
	Volume       *float64

	// Book top and trade tallies, when the frame is a depth or aggTrade frame.
	BookTop    *BookTop
	TradeTally *TradeTally

	// Snapshot-only long/short ratios.
	GlobalLongShort   *float64
	TopTraderAccounts *float64
	TopTraderPosition *float64
	OpenInterestUSD   *float64

	// Err is set when a whole per-symbol snapshot failed; all data fields
	// are nil in that case.
	Err string

	// Raw carries the original payload verbatim for the opaque metadata column.
	Raw json.RawMessage
}

// BookTop is the aggregated top-of-book volume from a depth frame.
type BookTop struct {
	BidVolume float64
	AskVolume float64
}

// TradeTally counts taker-side trades seen in an aggTrade frame.
type TradeTally struct {
	TakerBuys  int
	TakerSells int
}

// MetricRow is the canonical persisted sample. At most one row exists per
// (symbol, timeframe, timestamp); the pipeline merge-replaces, never appends.
// Rows are immutable after write and pruned by age.
type MetricRow struct {
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	Timestamp time.Time `json:"timestamp"`

	Price           *float64 `json:"price"`
	OpenInterest    *float64 `json:"open_interest"`
	OpenInterestUSD *float64 `json:"open_interest_usd"`
	Volume          *float64 `json:"volume"`
	Funding         *float64 `json:"funding"`

	GlobalLongShort   *float64 `json:"global_long_short"`
	TopTraderAccounts *float64 `json:"top_trader_accounts"`
	TopTraderPosition *float64 `json:"top_trader_position"`

	BidVolume  *float64 `json:"bid_volume,omitempty"`
	AskVolume  *float64 `json:"ask_volume,omitempty"`
	TakerBuys  int      `json:"taker_buys"`
	TakerSells int      `json:"taker_sells"`

	// RawJSON holds the source event payload as an opaque blob.
	RawJSON json.RawMessage `json:"raw_json,omitempty"`
}

// Float returns a pointer to v. Convenience for optional numeric fields.
func Float(v float64) *float64 { return &v }
