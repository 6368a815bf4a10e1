package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"QuantBoard/internal/domain/models"
	"QuantBoard/pkg/clickhouse"
)

// FeatureStore persists derived feature snapshots; append-only, pruned by age.
type FeatureStore struct {
	client *clickhouse.Client
}

// NewFeatureStore creates the ClickHouse-backed feature store.
func NewFeatureStore(client *clickhouse.Client) *FeatureStore {
	return &FeatureStore{client: client}
}

const featureInsert = `INSERT INTO features
	(symbol, timeframe, timestamp, price_change_1, price_change_5,
	 price_change_15, oi_change_5, volatility, imbalance, taker_ratio,
	 volume_pressure, oi_zscore, top_trader_zscore, imbalance_zscore,
	 funding_zscore, composite)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Insert writes one batch of snapshots.
func (s *FeatureStore) Insert(ctx context.Context, snaps []*models.FeatureSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	tx, err := s.client.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin features: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, featureInsert)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare features: %w", err)
	}
	for _, snap := range snaps {
		if _, err := stmt.ExecContext(ctx,
			snap.Symbol, snap.Timeframe, snap.Timestamp,
			snap.PriceChange1, snap.PriceChange5, snap.PriceChange15,
			snap.OIChange5, snap.Volatility, snap.Imbalance,
			snap.TakerRatio, snap.VolumePressure,
			snap.OIZScore, snap.TopTraderZScore, snap.ImbalanceZScore,
			snap.FundingZScore, snap.Composite,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("append feature %s: %w", snap.Symbol, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit features: %w", err)
	}
	return nil
}

const featureSelect = `SELECT symbol, timeframe, timestamp, price_change_1,
	price_change_5, price_change_15, oi_change_5, volatility, imbalance,
	taker_ratio, volume_pressure, oi_zscore, top_trader_zscore,
	imbalance_zscore, funding_zscore, composite
	FROM features
	WHERE symbol = ?
	ORDER BY timestamp DESC
	LIMIT ?`

// Latest returns the most recent n snapshots, newest first.
func (s *FeatureStore) Latest(ctx context.Context, symbol string, n int) ([]*models.FeatureSnapshot, error) {
	result, err := s.client.DB().QueryContext(ctx, featureSelect, symbol, n)
	if err != nil {
		return nil, fmt.Errorf("query features: %w", err)
	}
	defer result.Close()

	var out []*models.FeatureSnapshot
	for result.Next() {
		var (
			snap                                 models.FeatureSnapshot
			pc1, pc5, pc15, oic, vol, imb        sql.NullFloat64
			taker, pressure, oiZ, topZ, imbZ     sql.NullFloat64
			fundZ, composite                     sql.NullFloat64
		)
		if err := result.Scan(&snap.Symbol, &snap.Timeframe, &snap.Timestamp,
			&pc1, &pc5, &pc15, &oic, &vol, &imb, &taker, &pressure,
			&oiZ, &topZ, &imbZ, &fundZ, &composite); err != nil {
			return nil, fmt.Errorf("scan feature: %w", err)
		}
		snap.PriceChange1 = nullable(pc1)
		snap.PriceChange5 = nullable(pc5)
		snap.PriceChange15 = nullable(pc15)
		snap.OIChange5 = nullable(oic)
		snap.Volatility = nullable(vol)
		snap.Imbalance = nullable(imb)
		snap.TakerRatio = nullable(taker)
		snap.VolumePressure = nullable(pressure)
		snap.OIZScore = nullable(oiZ)
		snap.TopTraderZScore = nullable(topZ)
		snap.ImbalanceZScore = nullable(imbZ)
		snap.FundingZScore = nullable(fundZ)
		snap.Composite = nullable(composite)
		out = append(out, &snap)
	}
	return out, result.Err()
}

// Prune drops snapshots older than the cutoff.
func (s *FeatureStore) Prune(ctx context.Context, olderThan time.Time) error {
	_, err := s.client.DB().ExecContext(ctx,
		`ALTER TABLE features DELETE WHERE timestamp < ?`, olderThan)
	if err != nil {
		return fmt.Errorf("prune features: %w", err)
	}
	return nil
}
