package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"QuantBoard/internal/domain/models"
	"QuantBoard/pkg/clickhouse"
)

// MetricStore persists canonical metric rows in ClickHouse. Merge-replace is
// delegated to the ReplacingMergeTree: versions of the same (symbol,
// timeframe, timestamp) collapse on merge, reads use FINAL to see only the
// newest version regardless of merge timing.
type MetricStore struct {
	client *clickhouse.Client
}

// NewMetricStore creates the ClickHouse-backed metric store.
func NewMetricStore(client *clickhouse.Client) *MetricStore {
	return &MetricStore{client: client}
}

// Init creates every table the module needs; safe to call repeatedly.
func (s *MetricStore) Init(ctx context.Context) error {
	return s.client.InitSchema(ctx, schemaStatements)
}

const metricInsert = `INSERT INTO metrics
	(symbol, timeframe, timestamp, price, open_interest, open_interest_usd,
	 volume, funding, global_long_short, top_trader_accounts,
	 top_trader_position, bid_volume, ask_volume, taker_buys, taker_sells, raw_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// UpsertBatch writes rows in one transaction-backed batch.
func (s *MetricStore) UpsertBatch(ctx context.Context, rows []*models.MetricRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.client.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, metricInsert)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare batch: %w", err)
	}
	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, metricArgs(row)...); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("append row %s: %w", row.Symbol, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// Upsert writes a single row; the batch fallback path.
func (s *MetricStore) Upsert(ctx context.Context, row *models.MetricRow) error {
	if _, err := s.client.DB().ExecContext(ctx, metricInsert, metricArgs(row)...); err != nil {
		return fmt.Errorf("insert row %s: %w", row.Symbol, err)
	}
	return nil
}

func metricArgs(row *models.MetricRow) []any {
	return []any{
		row.Symbol, row.Timeframe, row.Timestamp,
		row.Price, row.OpenInterest, row.OpenInterestUSD,
		row.Volume, row.Funding, row.GlobalLongShort,
		row.TopTraderAccounts, row.TopTraderPosition,
		row.BidVolume, row.AskVolume,
		int64(row.TakerBuys), int64(row.TakerSells),
		string(row.RawJSON),
	}
}

const metricSelect = `SELECT symbol, timeframe, timestamp, price, open_interest,
	open_interest_usd, volume, funding, global_long_short, top_trader_accounts,
	top_trader_position, bid_volume, ask_volume, taker_buys, taker_sells, raw_json
	FROM metrics FINAL
	WHERE symbol = ? AND timeframe = ?
	ORDER BY timestamp DESC
	LIMIT ?`

// Window returns the most recent n rows in chronological order.
func (s *MetricStore) Window(ctx context.Context, symbol, timeframe string, n int) ([]*models.MetricRow, error) {
	rows, err := s.Latest(ctx, symbol, timeframe, n)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

// Latest returns the most recent n rows, newest first.
func (s *MetricStore) Latest(ctx context.Context, symbol, timeframe string, n int) ([]*models.MetricRow, error) {
	result, err := s.client.DB().QueryContext(ctx, metricSelect, symbol, timeframe, n)
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer result.Close()

	var out []*models.MetricRow
	for result.Next() {
		row, err := scanMetric(result)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, result.Err()
}

func scanMetric(result *sql.Rows) (*models.MetricRow, error) {
	var (
		row                                   models.MetricRow
		price, oi, oiUSD, volume, funding     sql.NullFloat64
		globalLS, topAcc, topPos, bidV, askV  sql.NullFloat64
		takerBuys, takerSells                 int64
		rawJSON                               string
	)
	if err := result.Scan(&row.Symbol, &row.Timeframe, &row.Timestamp,
		&price, &oi, &oiUSD, &volume, &funding,
		&globalLS, &topAcc, &topPos, &bidV, &askV,
		&takerBuys, &takerSells, &rawJSON); err != nil {
		return nil, fmt.Errorf("scan metric: %w", err)
	}
	row.Price = nullable(price)
	row.OpenInterest = nullable(oi)
	row.OpenInterestUSD = nullable(oiUSD)
	row.Volume = nullable(volume)
	row.Funding = nullable(funding)
	row.GlobalLongShort = nullable(globalLS)
	row.TopTraderAccounts = nullable(topAcc)
	row.TopTraderPosition = nullable(topPos)
	row.BidVolume = nullable(bidV)
	row.AskVolume = nullable(askV)
	row.TakerBuys = int(takerBuys)
	row.TakerSells = int(takerSells)
	if rawJSON != "" {
		row.RawJSON = []byte(rawJSON)
	}
	return &row, nil
}

// Prune drops rows older than the cutoff via a lightweight delete mutation.
func (s *MetricStore) Prune(ctx context.Context, olderThan time.Time) error {
	_, err := s.client.DB().ExecContext(ctx,
		`ALTER TABLE metrics DELETE WHERE timestamp < ?`, olderThan)
	if err != nil {
		return fmt.Errorf("prune metrics: %w", err)
	}
	return nil
}

// Health proxies the connection pool ping.
func (s *MetricStore) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

// Close releases the connection pool.
func (s *MetricStore) Close() error {
	return s.client.Close()
}

func nullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
