package repository

// Schema statements are idempotent and run at startup. The metrics table is
// a ReplacingMergeTree keyed on (symbol, timeframe, timestamp) so re-written
// samples collapse to the newest version; everything derived is append-only.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS metrics (
		symbol LowCardinality(String),
		timeframe LowCardinality(String),
		timestamp DateTime64(3, 'UTC'),
		price Nullable(Float64),
		open_interest Nullable(Float64),
		open_interest_usd Nullable(Float64),
		volume Nullable(Float64),
		funding Nullable(Float64),
		global_long_short Nullable(Float64),
		top_trader_accounts Nullable(Float64),
		top_trader_position Nullable(Float64),
		bid_volume Nullable(Float64),
		ask_volume Nullable(Float64),
		taker_buys Int64,
		taker_sells Int64,
		raw_json String,
		updated_at DateTime64(3, 'UTC') DEFAULT now64(3)
	) ENGINE = ReplacingMergeTree(updated_at)
	ORDER BY (symbol, timeframe, timestamp)`,

	`CREATE TABLE IF NOT EXISTS features (
		symbol LowCardinality(String),
		timeframe LowCardinality(String),
		timestamp DateTime64(3, 'UTC'),
		price_change_1 Nullable(Float64),
		price_change_5 Nullable(Float64),
		price_change_15 Nullable(Float64),
		oi_change_5 Nullable(Float64),
		volatility Nullable(Float64),
		imbalance Nullable(Float64),
		taker_ratio Nullable(Float64),
		volume_pressure Nullable(Float64),
		oi_zscore Nullable(Float64),
		top_trader_zscore Nullable(Float64),
		imbalance_zscore Nullable(Float64),
		funding_zscore Nullable(Float64),
		composite Nullable(Float64)
	) ENGINE = MergeTree()
	ORDER BY (symbol, timestamp)`,

	`CREATE TABLE IF NOT EXISTS signals (
		symbol LowCardinality(String),
		family LowCardinality(String),
		method LowCardinality(String),
		score Float64,
		confidence Float64,
		timestamp DateTime64(3, 'UTC')
	) ENGINE = MergeTree()
	ORDER BY (symbol, timestamp, family, method)`,

	`CREATE TABLE IF NOT EXISTS diagnostics (
		symbol LowCardinality(String),
		timestamp DateTime64(3, 'UTC'),
		corr_price_oi Float64,
		corr_price_long_short Float64,
		corr_oi_long_short Float64,
		volatility Float64,
		volatility_zscore Float64,
		confluence_density Float64
	) ENGINE = MergeTree()
	ORDER BY (symbol, timestamp)`,

	`CREATE TABLE IF NOT EXISTS confluence (
		symbol LowCardinality(String),
		timestamp DateTime64(3, 'UTC'),
		score Float64,
		bull_strength Float64,
		bear_strength Float64,
		volatility Float64,
		contributing Int32
	) ENGINE = MergeTree()
	ORDER BY (symbol, timestamp)`,

	`CREATE TABLE IF NOT EXISTS regimes (
		symbol LowCardinality(String),
		timestamp DateTime64(3, 'UTC'),
		regime LowCardinality(String),
		confidence Float64,
		confluence Float64,
		volatility Float64
	) ENGINE = MergeTree()
	ORDER BY (symbol, timestamp)`,

	`CREATE TABLE IF NOT EXISTS contexts (
		symbol LowCardinality(String),
		timestamp DateTime64(3, 'UTC'),
		score Float64,
		bias LowCardinality(String),
		regime LowCardinality(String)
	) ENGINE = MergeTree()
	ORDER BY (symbol, timestamp)`,

	`CREATE TABLE IF NOT EXISTS transitions (
		symbol LowCardinality(String),
		from_bias LowCardinality(String),
		to_bias LowCardinality(String),
		score Float64,
		timestamp DateTime64(3, 'UTC')
	) ENGINE = MergeTree()
	ORDER BY (symbol, timestamp)`,
}
