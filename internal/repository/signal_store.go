package repository

import (
	"context"
	"fmt"
	"time"

	"QuantBoard/internal/domain/models"
	"QuantBoard/pkg/clickhouse"
)

// SignalStore persists everything the signal engine emits. All tables are
// append-only; each evaluation adds one generation of records.
type SignalStore struct {
	client *clickhouse.Client
}

// NewSignalStore creates the ClickHouse-backed signal store.
func NewSignalStore(client *clickhouse.Client) *SignalStore {
	return &SignalStore{client: client}
}

// insertAll writes recs through one prepared statement inside a transaction.
func insertAll[T any](ctx context.Context, client *clickhouse.Client, query, kind string, recs []*T, args func(*T) []any) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := client.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s: %w", kind, err)
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare %s: %w", kind, err)
	}
	for _, rec := range recs {
		if _, err := stmt.ExecContext(ctx, args(rec)...); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("append %s: %w", kind, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", kind, err)
	}
	return nil
}

func (s *SignalStore) InsertSignals(ctx context.Context, recs []*models.SignalRecord) error {
	return insertAll(ctx, s.client,
		`INSERT INTO signals (symbol, family, method, score, confidence, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?)`, "signals", recs,
		func(r *models.SignalRecord) []any {
			return []any{r.Symbol, string(r.Family), r.Method, r.Score, r.Confidence, r.Timestamp}
		})
}

func (s *SignalStore) InsertDiagnostics(ctx context.Context, recs []*models.DiagnosticsRecord) error {
	return insertAll(ctx, s.client,
		`INSERT INTO diagnostics (symbol, timestamp, corr_price_oi,
		 corr_price_long_short, corr_oi_long_short, volatility,
		 volatility_zscore, confluence_density)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, "diagnostics", recs,
		func(r *models.DiagnosticsRecord) []any {
			return []any{r.Symbol, r.Timestamp, r.CorrPriceOI, r.CorrPriceLongShort,
				r.CorrOILongShort, r.Volatility, r.VolatilityZScore, r.ConfluenceDensity}
		})
}

func (s *SignalStore) InsertConfluence(ctx context.Context, recs []*models.ConfluenceRecord) error {
	return insertAll(ctx, s.client,
		`INSERT INTO confluence (symbol, timestamp, score, bull_strength,
		 bear_strength, volatility, contributing)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`, "confluence", recs,
		func(r *models.ConfluenceRecord) []any {
			return []any{r.Symbol, r.Timestamp, r.Score, r.BullStrength,
				r.BearStrength, r.Volatility, int32(r.Contributing)}
		})
}

func (s *SignalStore) InsertRegimes(ctx context.Context, recs []*models.RegimeRecord) error {
	return insertAll(ctx, s.client,
		`INSERT INTO regimes (symbol, timestamp, regime, confidence, confluence, volatility)
		 VALUES (?, ?, ?, ?, ?, ?)`, "regimes", recs,
		func(r *models.RegimeRecord) []any {
			return []any{r.Symbol, r.Timestamp, string(r.Regime), r.Confidence, r.Confluence, r.Volatility}
		})
}

func (s *SignalStore) InsertContexts(ctx context.Context, recs []*models.ContextScoreRecord) error {
	return insertAll(ctx, s.client,
		`INSERT INTO contexts (symbol, timestamp, score, bias, regime)
		 VALUES (?, ?, ?, ?, ?)`, "contexts", recs,
		func(r *models.ContextScoreRecord) []any {
			return []any{r.Symbol, r.Timestamp, r.Score, string(r.Bias), string(r.Regime)}
		})
}

func (s *SignalStore) InsertTransitions(ctx context.Context, recs []*models.ContextTransition) error {
	return insertAll(ctx, s.client,
		`INSERT INTO transitions (symbol, from_bias, to_bias, score, timestamp)
		 VALUES (?, ?, ?, ?, ?)`, "transitions", recs,
		func(r *models.ContextTransition) []any {
			return []any{r.Symbol, string(r.From), string(r.To), r.Score, r.Timestamp}
		})
}

func (s *SignalStore) LatestSignals(ctx context.Context, symbol string, n int) ([]*models.SignalRecord, error) {
	result, err := s.client.DB().QueryContext(ctx,
		`SELECT symbol, family, method, score, confidence, timestamp
		 FROM signals WHERE symbol = ? ORDER BY timestamp DESC LIMIT ?`, symbol, n)
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer result.Close()

	var out []*models.SignalRecord
	for result.Next() {
		var r models.SignalRecord
		var family string
		if err := result.Scan(&r.Symbol, &family, &r.Method, &r.Score, &r.Confidence, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		r.Family = models.Family(family)
		out = append(out, &r)
	}
	return out, result.Err()
}

func (s *SignalStore) LatestDiagnostics(ctx context.Context, symbol string, n int) ([]*models.DiagnosticsRecord, error) {
	result, err := s.client.DB().QueryContext(ctx,
		`SELECT symbol, timestamp, corr_price_oi, corr_price_long_short,
		 corr_oi_long_short, volatility, volatility_zscore, confluence_density
		 FROM diagnostics WHERE symbol = ? ORDER BY timestamp DESC LIMIT ?`, symbol, n)
	if err != nil {
		return nil, fmt.Errorf("query diagnostics: %w", err)
	}
	defer result.Close()

	var out []*models.DiagnosticsRecord
	for result.Next() {
		var r models.DiagnosticsRecord
		if err := result.Scan(&r.Symbol, &r.Timestamp, &r.CorrPriceOI,
			&r.CorrPriceLongShort, &r.CorrOILongShort, &r.Volatility,
			&r.VolatilityZScore, &r.ConfluenceDensity); err != nil {
			return nil, fmt.Errorf("scan diagnostics: %w", err)
		}
		out = append(out, &r)
	}
	return out, result.Err()
}

func (s *SignalStore) LatestConfluence(ctx context.Context, symbol string, n int) ([]*models.ConfluenceRecord, error) {
	result, err := s.client.DB().QueryContext(ctx,
		`SELECT symbol, timestamp, score, bull_strength, bear_strength,
		 volatility, contributing
		 FROM confluence WHERE symbol = ? ORDER BY timestamp DESC LIMIT ?`, symbol, n)
	if err != nil {
		return nil, fmt.Errorf("query confluence: %w", err)
	}
	defer result.Close()

	var out []*models.ConfluenceRecord
	for result.Next() {
		var r models.ConfluenceRecord
		var contributing int32
		if err := result.Scan(&r.Symbol, &r.Timestamp, &r.Score, &r.BullStrength,
			&r.BearStrength, &r.Volatility, &contributing); err != nil {
			return nil, fmt.Errorf("scan confluence: %w", err)
		}
		r.Contributing = int(contributing)
		out = append(out, &r)
	}
	return out, result.Err()
}

func (s *SignalStore) LatestRegimes(ctx context.Context, symbol string, n int) ([]*models.RegimeRecord, error) {
	result, err := s.client.DB().QueryContext(ctx,
		`SELECT symbol, timestamp, regime, confidence, confluence, volatility
		 FROM regimes WHERE symbol = ? ORDER BY timestamp DESC LIMIT ?`, symbol, n)
	if err != nil {
		return nil, fmt.Errorf("query regimes: %w", err)
	}
	defer result.Close()

	var out []*models.RegimeRecord
	for result.Next() {
		var r models.RegimeRecord
		var regime string
		if err := result.Scan(&r.Symbol, &r.Timestamp, &regime, &r.Confidence,
			&r.Confluence, &r.Volatility); err != nil {
			return nil, fmt.Errorf("scan regime: %w", err)
		}
		r.Regime = models.Regime(regime)
		out = append(out, &r)
	}
	return out, result.Err()
}

func (s *SignalStore) LatestContexts(ctx context.Context, symbol string, n int) ([]*models.ContextScoreRecord, error) {
	result, err := s.client.DB().QueryContext(ctx,
		`SELECT symbol, timestamp, score, bias, regime
		 FROM contexts WHERE symbol = ? ORDER BY timestamp DESC LIMIT ?`, symbol, n)
	if err != nil {
		return nil, fmt.Errorf("query contexts: %w", err)
	}
	defer result.Close()

	var out []*models.ContextScoreRecord
	for result.Next() {
		var r models.ContextScoreRecord
		var bias, regime string
		if err := result.Scan(&r.Symbol, &r.Timestamp, &r.Score, &bias, &regime); err != nil {
			return nil, fmt.Errorf("scan context: %w", err)
		}
		r.Bias = models.Bias(bias)
		r.Regime = models.Regime(regime)
		out = append(out, &r)
	}
	return out, result.Err()
}

// Prune drops engine output older than the cutoff across all tables.
func (s *SignalStore) Prune(ctx context.Context, olderThan time.Time) error {
	for _, table := range []string{"signals", "diagnostics", "confluence", "regimes", "contexts", "transitions"} {
		if _, err := s.client.DB().ExecContext(ctx,
			fmt.Sprintf(`ALTER TABLE %s DELETE WHERE timestamp < ?`, table), olderThan); err != nil {
			return fmt.Errorf("prune %s: %w", table, err)
		}
	}
	return nil
}
