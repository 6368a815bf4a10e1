package usecase

import (
	"context"

	"QuantBoard/internal/domain/models"
	domrepo "QuantBoard/internal/domain/repository"
	"QuantBoard/pkg/logger"
)

// MarketReader aggregates the stores behind the read-accessor endpoints.
// All methods are thin pass-throughs; the summary is the only join.
type MarketReader struct {
	metrics  domrepo.MetricStore
	features domrepo.FeatureStore
	signals  domrepo.SignalStore
	log      *logger.Logger
}

// NewMarketReader creates the read aggregator.
func NewMarketReader(metrics domrepo.MetricStore, features domrepo.FeatureStore, signals domrepo.SignalStore, log *logger.Logger) *MarketReader {
	return &MarketReader{metrics: metrics, features: features, signals: signals, log: log}
}

// History returns the latest n metric rows for a symbol, newest first.
func (r *MarketReader) History(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) ([]*models.MetricRow, error) {
	return r.metrics.Latest(ctx, symbol, string(tf), n)
}

// LatestFeatures returns the latest n feature snapshots, newest first.
func (r *MarketReader) LatestFeatures(ctx context.Context, symbol string, n int) ([]*models.FeatureSnapshot, error) {
	return r.features.Latest(ctx, symbol, n)
}

// LatestSignals returns the latest n family signals, newest first.
func (r *MarketReader) LatestSignals(ctx context.Context, symbol string, n int) ([]*models.SignalRecord, error) {
	return r.signals.LatestSignals(ctx, symbol, n)
}

// LatestConfluence returns the latest n confluence records, newest first.
func (r *MarketReader) LatestConfluence(ctx context.Context, symbol string, n int) ([]*models.ConfluenceRecord, error) {
	return r.signals.LatestConfluence(ctx, symbol, n)
}

// LatestRegimes returns the latest n regime records, newest first.
func (r *MarketReader) LatestRegimes(ctx context.Context, symbol string, n int) ([]*models.RegimeRecord, error) {
	return r.signals.LatestRegimes(ctx, symbol, n)
}

// LatestContexts returns the latest n context scores, newest first.
func (r *MarketReader) LatestContexts(ctx context.Context, symbol string, n int) ([]*models.ContextScoreRecord, error) {
	return r.signals.LatestContexts(ctx, symbol, n)
}

// Summary joins the newest sample with the newest engine output per symbol.
// A symbol with partial data still appears; only its missing parts are nil.
func (r *MarketReader) Summary(ctx context.Context, symbols []string, tf domrepo.Timeframe) ([]*models.SymbolSummary, error) {
	out := make([]*models.SymbolSummary, 0, len(symbols))
	for _, symbol := range symbols {
		s := &models.SymbolSummary{Symbol: symbol}

		rows, err := r.metrics.Latest(ctx, symbol, string(tf), 1)
		if err != nil {
			return nil, err
		}
		if len(rows) > 0 {
			s.Price = rows[0].Price
			s.Funding = rows[0].Funding
		}

		if confl, err := r.signals.LatestConfluence(ctx, symbol, 1); err == nil && len(confl) > 0 {
			v := confl[0].Score
			s.Confluence = &v
		}
		if contexts, err := r.signals.LatestContexts(ctx, symbol, 1); err == nil && len(contexts) > 0 {
			v := contexts[0].Score
			s.Context = &v
			s.Bias = contexts[0].Bias
			s.Regime = contexts[0].Regime
		}
		out = append(out, s)
	}
	return out, nil
}

// Health reports storage reachability.
func (r *MarketReader) Health(ctx context.Context) error {
	return r.metrics.Health(ctx)
}
