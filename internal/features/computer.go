package features

import (
	"context"
	"sync"
	"time"

	"QuantBoard/internal/domain/models"
	domrepo "QuantBoard/internal/domain/repository"
	"QuantBoard/pkg/backoff"
	"QuantBoard/pkg/logger"
)

// Composite weights per component z-score. Missing components are dropped
// and the remaining weights renormalized, never zero-filled.
const (
	weightOI        = 0.4
	weightTopTrader = 0.2
	weightImbalance = 0.2
	weightFunding   = 0.2
)

// Config tunes the feature computer.
type Config struct {
	Window       int
	ReturnWindow int
	Interval     time.Duration
	Workers      int
	Timeframe    domrepo.Timeframe
}

// Computer derives per-symbol feature snapshots from the rolling metric
// window. Cross-symbol fan-out is bounded by a worker pool sized to the
// persistence connection pool so compute never starves writes.
type Computer struct {
	cfg      Config
	metrics  domrepo.Metrics
	store    domrepo.MetricStore
	features domrepo.FeatureStore
	log      *logger.Logger
}

// NewComputer creates a feature computer.
func NewComputer(cfg Config, store domrepo.MetricStore, features domrepo.FeatureStore, log *logger.Logger, m domrepo.Metrics) *Computer {
	if cfg.Window <= 0 {
		cfg.Window = 120
	}
	if cfg.ReturnWindow <= 0 {
		cfg.ReturnWindow = 20
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Timeframe == "" {
		cfg.Timeframe = domrepo.DefaultTimeframe()
	}
	return &Computer{cfg: cfg, store: store, features: features, log: log, metrics: m}
}

// Run recomputes features for all symbols on a jittered interval until ctx
// is cancelled.
func (c *Computer) Run(ctx context.Context, symbols []string) {
	c.log.Info("feature computer starting",
		logger.Int("window", c.cfg.Window),
		logger.Int("workers", c.cfg.Workers))
	for {
		select {
		case <-ctx.Done():
			c.log.Info("feature computer stopped")
			return
		case <-time.After(backoff.JitterInterval(c.cfg.Interval, 0.1)):
			c.ComputeAll(ctx, symbols)
		}
	}
}

// ComputeAll fans out one compute per symbol under the worker limit and
// persists the resulting snapshots. Per-symbol failures are logged and
// skipped; one bad symbol never voids the batch.
func (c *Computer) ComputeAll(ctx context.Context, symbols []string) {
	start := time.Now()
	sem := make(chan struct{}, c.cfg.Workers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	snaps := make([]*models.FeatureSnapshot, 0, len(symbols))

	for _, symbol := range symbols {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			defer func() { <-sem }()
			snap, err := c.ComputeSymbol(ctx, symbol)
			if err != nil {
				c.metrics.RecordError("feature_compute")
				c.log.Warn("feature compute failed",
					logger.String("symbol", symbol),
					logger.Error(err))
				return
			}
			if snap == nil {
				return
			}
			mu.Lock()
			snaps = append(snaps, snap)
			mu.Unlock()
		}(symbol)
	}
	wg.Wait()

	if len(snaps) == 0 {
		return
	}
	if err := c.features.Insert(ctx, snaps); err != nil {
		c.metrics.RecordError("feature_write")
		c.log.Warn("feature write failed", logger.Error(err))
		return
	}
	c.metrics.RecordStageLatency("feature_compute", time.Since(start).Seconds())
}

// ComputeSymbol reads the symbol's rolling window and derives one snapshot
// from the tail. Returns (nil, nil) when the window is too thin to say
// anything.
func (c *Computer) ComputeSymbol(ctx context.Context, symbol string) (*models.FeatureSnapshot, error) {
	rows, err := c.store.Window(ctx, symbol, string(c.cfg.Timeframe), c.cfg.Window)
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, nil
	}
	return c.fromWindow(symbol, rows), nil
}

// fromWindow is the pure derivation: rows are chronological, oldest first.
func (c *Computer) fromWindow(symbol string, rows []*models.MetricRow) *models.FeatureSnapshot {
	latest := rows[len(rows)-1]
	snap := &models.FeatureSnapshot{
		Symbol:    symbol,
		Timeframe: latest.Timeframe,
		Timestamp: latest.Timestamp,
	}

	prices := collect(rows, func(r *models.MetricRow) *float64 { return r.Price })
	oi := collect(rows, func(r *models.MetricRow) *float64 { return r.OpenInterest })
	topTrader := collect(rows, func(r *models.MetricRow) *float64 { return r.TopTraderAccounts })
	funding := collect(rows, func(r *models.MetricRow) *float64 { return r.Funding })
	volumes := collect(rows, func(r *models.MetricRow) *float64 { return r.Volume })
	imbalances := imbalanceSeries(rows)

	if v, ok := PctChange(prices, 1); ok {
		snap.PriceChange1 = models.Float(v)
	}
	if v, ok := PctChange(prices, 5); ok {
		snap.PriceChange5 = models.Float(v)
	}
	if v, ok := PctChange(prices, 15); ok {
		snap.PriceChange15 = models.Float(v)
	}
	if v, ok := PctChange(oi, 5); ok {
		snap.OIChange5 = models.Float(v)
	}

	if len(prices) >= 2 {
		rets := Tail(Returns(prices), c.cfg.ReturnWindow)
		if len(rets) >= 2 {
			snap.Volatility = models.Float(Stdev(rets) * prices[len(prices)-1])
		}
	}

	if v := imbalance(latest); v != nil {
		snap.Imbalance = v
	}
	if latest.TakerSells > 0 {
		snap.TakerRatio = models.Float(float64(latest.TakerBuys) / float64(latest.TakerSells))
	}
	if len(volumes) > 0 && latest.Volume != nil {
		if mean := Mean(volumes); mean > 0 {
			snap.VolumePressure = models.Float(*latest.Volume / mean)
		}
	}

	if z, ok := zOfLatest(oi, latest.OpenInterest); ok {
		snap.OIZScore = models.Float(z)
	}
	if z, ok := zOfLatest(topTrader, latest.TopTraderAccounts); ok {
		snap.TopTraderZScore = models.Float(z)
	}
	if z, ok := zOfLatest(imbalances, imbalance(latest)); ok {
		snap.ImbalanceZScore = models.Float(z)
	}
	if z, ok := zOfLatest(funding, latest.Funding); ok {
		snap.FundingZScore = models.Float(z)
	}

	snap.Composite = Composite(snap.OIZScore, snap.TopTraderZScore, snap.ImbalanceZScore, snap.FundingZScore)
	return snap
}

// Composite blends the component z-scores with fixed weights, renormalizing
// over whichever components are present. Nil only when all four are nil.
func Composite(oi, topTrader, imbalance, funding *float64) *float64 {
	var sum, weight float64
	add := func(z *float64, w float64) {
		if z == nil {
			return
		}
		sum += *z * w
		weight += w
	}
	add(oi, weightOI)
	add(topTrader, weightTopTrader)
	add(imbalance, weightImbalance)
	add(funding, weightFunding)
	if weight == 0 {
		return nil
	}
	return models.Float(sum / weight)
}

// zOfLatest scores the latest value against the series it belongs to. The
// series excludes samples where the field was absent, so the latest value
// must itself be present for a score to exist.
func zOfLatest(series []float64, latest *float64) (float64, bool) {
	if latest == nil {
		return 0, false
	}
	return ZScore(series)
}

func collect(rows []*models.MetricRow, get func(*models.MetricRow) *float64) []float64 {
	out := make([]float64, 0, len(rows))
	for _, r := range rows {
		if v := get(r); v != nil {
			out = append(out, *v)
		}
	}
	return out
}

func imbalance(r *models.MetricRow) *float64 {
	if r.BidVolume == nil || r.AskVolume == nil {
		return nil
	}
	total := *r.BidVolume + *r.AskVolume
	if total == 0 {
		return nil
	}
	return models.Float(*r.BidVolume / total)
}

func imbalanceSeries(rows []*models.MetricRow) []float64 {
	out := make([]float64, 0, len(rows))
	for _, r := range rows {
		if v := imbalance(r); v != nil {
			out = append(out, *v)
		}
	}
	return out
}
