package engine

import (
	"context"
	"sync"
	"time"

	"QuantBoard/internal/domain/models"
	domrepo "QuantBoard/internal/domain/repository"
	"QuantBoard/pkg/backoff"
	"QuantBoard/pkg/config"
	"QuantBoard/pkg/logger"
)

// confluenceCut is the minimum confluence magnitude for a directional regime.
const confluenceCut = 0.15

// Config tunes the signal engine.
type Config struct {
	Interval      time.Duration
	History       int
	MoveThreshold float64
	Thresholds    config.Thresholds
	Timeframe     domrepo.Timeframe
}

// Engine runs the five evaluation stages per interval: family signals,
// diagnostics, confluence, regime, and context score with bias transitions.
// Its only carried state is the per-symbol last bias, cleared on restart.
type Engine struct {
	cfg        Config
	store      domrepo.MetricStore
	featStore  domrepo.FeatureStore
	signals    domrepo.SignalStore
	metrics    domrepo.Metrics
	log        *logger.Logger
	strategies []FamilyStrategy

	mu       sync.Mutex
	lastBias map[string]models.Bias
	onBatch  []func(*models.EngineBatch)
}

// New creates a signal engine with both family strategies registered.
func New(cfg Config, store domrepo.MetricStore, featStore domrepo.FeatureStore, signals domrepo.SignalStore, log *logger.Logger, m domrepo.Metrics) *Engine {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.History <= 0 {
		cfg.History = 60
	}
	if cfg.MoveThreshold <= 0 {
		cfg.MoveThreshold = 0.1
	}
	if cfg.Timeframe == "" {
		cfg.Timeframe = domrepo.DefaultTimeframe()
	}
	return &Engine{
		cfg:       cfg,
		store:     store,
		featStore: featStore,
		signals:   signals,
		metrics:   m,
		log:       log,
		strategies: []FamilyStrategy{
			NewThresholdStrategy(cfg.Thresholds),
			NewDiagnosticStrategy(),
		},
		lastBias: make(map[string]models.Bias),
	}
}

// OnBatch registers a hook invoked with every completed evaluation batch.
func (e *Engine) OnBatch(fn func(*models.EngineBatch)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onBatch = append(e.onBatch, fn)
}

// Run evaluates all symbols on a jittered interval until ctx is cancelled.
func (e *Engine) Run(ctx context.Context, symbols []string) {
	e.log.Info("signal engine starting",
		logger.Int("history", e.cfg.History),
		logger.Int("symbols", len(symbols)))
	for {
		select {
		case <-ctx.Done():
			e.log.Info("signal engine stopped")
			return
		case <-time.After(backoff.JitterInterval(e.cfg.Interval, 0.1)):
			batch := e.EvaluateAll(ctx, symbols)
			if batch == nil {
				continue
			}
			e.persist(ctx, batch)
			e.notify(batch)
		}
	}
}

// EvaluateAll runs one full evaluation across symbols. Symbols with missing
// or partial upstream data are skipped for this interval, never failed.
func (e *Engine) EvaluateAll(ctx context.Context, symbols []string) *models.EngineBatch {
	start := time.Now()
	batch := &models.EngineBatch{Timestamp: start.UTC()}

	for _, symbol := range symbols {
		if ctx.Err() != nil {
			return nil
		}
		if err := e.evaluateSymbol(ctx, symbol, batch); err != nil {
			e.metrics.RecordError("engine_eval")
			e.log.Warn("symbol evaluation failed",
				logger.String("symbol", symbol),
				logger.Error(err))
		}
	}

	if len(batch.Contexts) == 0 {
		return nil
	}
	e.metrics.RecordStageLatency("engine_eval", time.Since(start).Seconds())
	return batch
}

func (e *Engine) evaluateSymbol(ctx context.Context, symbol string, batch *models.EngineBatch) error {
	rows, err := e.store.Window(ctx, symbol, string(e.cfg.Timeframe), e.cfg.History)
	if err != nil {
		return err
	}
	if len(rows) < 3 {
		return nil
	}

	hist, err := e.featStore.Latest(ctx, symbol, e.cfg.History)
	if err != nil {
		return err
	}
	if len(hist) == 0 {
		return nil
	}
	// Latest returns newest first; stages want chronological order.
	chrono := make([]*models.FeatureSnapshot, len(hist))
	for i, snap := range hist {
		chrono[len(hist)-1-i] = snap
	}
	snap := chrono[len(chrono)-1]

	diag := diagnostics(symbol, rows, chrono, e.cfg.MoveThreshold)
	if diag == nil {
		return nil
	}
	batch.Diagnostics = append(batch.Diagnostics, *diag)

	in := Input{Snapshot: snap, Latest: rows[len(rows)-1], Diag: diag}
	now := batch.Timestamp

	// The threshold strategy is authoritative for the downstream stages; the
	// diagnostics-derived scores are persisted alongside for comparison.
	var primary map[models.Family]float64
	for _, strat := range e.strategies {
		scores := strat.Scores(in)
		if scores == nil {
			continue
		}
		if strat.Name() == "threshold" {
			primary = scores
		}
		conf := Confidence(scores)
		for _, family := range models.Families {
			batch.Signals = append(batch.Signals, models.SignalRecord{
				Symbol:     symbol,
				Family:     family,
				Method:     strat.Name(),
				Score:      scores[family],
				Confidence: conf,
				Timestamp:  now,
			})
		}
	}
	if primary == nil {
		return nil
	}

	confl := confluence(symbol, primary, deref(snap.Volatility), now)
	batch.Confluence = append(batch.Confluence, confl)

	regime := classifyRegime(symbol, confl.Score, diag.VolatilityZScore, confl.Volatility, now)
	batch.Regimes = append(batch.Regimes, regime)

	cscore := contextScore(symbol, regime, confl, now)
	batch.Contexts = append(batch.Contexts, cscore)

	if tr, ok := e.biasTransition(symbol, cscore); ok {
		batch.Transitions = append(batch.Transitions, tr)
	}
	return nil
}

// confluence reduces family scores to directional pressure. Bull and bear
// strengths average only the families that actually fired; a silent family
// is missing input, not a zero vote.
func confluence(symbol string, scores map[models.Family]float64, vol float64, now time.Time) models.ConfluenceRecord {
	bull := strengthOf(scores, models.FamilyAccumulation, models.FamilyMomentum)
	bear := strengthOf(scores, models.FamilyDistribution, models.FamilyExhaustion)
	contributing := 0
	for _, family := range models.Families {
		if scores[family] > 0 {
			contributing++
		}
	}
	return models.ConfluenceRecord{
		Symbol:       symbol,
		Timestamp:    now,
		Score:        bull - bear,
		BullStrength: bull,
		BearStrength: bear,
		Volatility:   vol,
		Contributing: contributing,
	}
}

func strengthOf(scores map[models.Family]float64, families ...models.Family) float64 {
	var sum float64
	var n int
	for _, family := range families {
		if s := scores[family]; s > 0 {
			sum += s
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// classifyRegime is a pure function of (confluence, volatility z-score).
// Positive confluence maps to accumulation or expansion depending on
// volatility, negative to distribution or exhaustion; weak confluence is
// neutral. Confidence is the confluence magnitude.
func classifyRegime(symbol string, confluence, volZ, vol float64, now time.Time) models.RegimeRecord {
	highVol := volZ > 0
	var regime models.Regime
	switch {
	case confluence > confluenceCut && !highVol:
		regime = models.RegimeAccumulation
	case confluence > confluenceCut && highVol:
		regime = models.RegimeExpansion
	case confluence < -confluenceCut && !highVol:
		regime = models.RegimeDistribution
	case confluence < -confluenceCut && highVol:
		regime = models.RegimeExhaustion
	default:
		regime = models.RegimeNeutral
	}
	return models.RegimeRecord{
		Symbol:     symbol,
		Timestamp:  now,
		Regime:     regime,
		Confidence: clamp01(abs(confluence)),
		Confluence: confluence,
		Volatility: vol,
	}
}

// regimeBoost scales the context score by regime.
func regimeBoost(r models.Regime) float64 {
	switch r {
	case models.RegimeExpansion:
		return 1.15
	case models.RegimeAccumulation:
		return 1.05
	case models.RegimeDistribution:
		return 0.9
	default:
		return 1.0
	}
}

// contextScore blends regime confidence with confluence, boosted by regime
// and clamped to [0,1]. When no family fired at all there is no directional
// evidence either way and the score degrades to a flat neutral 0.5.
func contextScore(symbol string, regime models.RegimeRecord, confl models.ConfluenceRecord, now time.Time) models.ContextScoreRecord {
	score := 0.5
	if confl.Contributing > 0 {
		score = clamp01((0.6*regime.Confidence + 0.4*confl.Score) * regimeBoost(regime.Regime))
	}
	bias := models.BiasNeutral
	switch {
	case score > 0.65:
		bias = models.BiasBullish
	case score < 0.35:
		bias = models.BiasBearish
	}
	return models.ContextScoreRecord{
		Symbol:    symbol,
		Timestamp: now,
		Score:     score,
		Bias:      bias,
		Regime:    regime.Regime,
	}
}

// biasTransition compares the new bias against the symbol's last one and
// records a transition only on change. The first evaluation after a restart
// seeds the map without emitting.
func (e *Engine) biasTransition(symbol string, cs models.ContextScoreRecord) (models.ContextTransition, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	prev, seen := e.lastBias[symbol]
	e.lastBias[symbol] = cs.Bias
	if !seen || prev == cs.Bias {
		return models.ContextTransition{}, false
	}
	return models.ContextTransition{
		Symbol:    symbol,
		From:      prev,
		To:        cs.Bias,
		Score:     cs.Score,
		Timestamp: cs.Timestamp,
	}, true
}

func (e *Engine) persist(ctx context.Context, batch *models.EngineBatch) {
	insert := func(kind string, err error) {
		if err != nil {
			e.metrics.RecordError("engine_write")
			e.log.Warn("engine write failed", logger.String("kind", kind), logger.Error(err))
		}
	}
	insert("signals", e.signals.InsertSignals(ctx, toPtrs(batch.Signals)))
	insert("diagnostics", e.signals.InsertDiagnostics(ctx, toPtrs(batch.Diagnostics)))
	insert("confluence", e.signals.InsertConfluence(ctx, toPtrs(batch.Confluence)))
	insert("regimes", e.signals.InsertRegimes(ctx, toPtrs(batch.Regimes)))
	insert("contexts", e.signals.InsertContexts(ctx, toPtrs(batch.Contexts)))
	if len(batch.Transitions) > 0 {
		insert("transitions", e.signals.InsertTransitions(ctx, toPtrs(batch.Transitions)))
	}
}

func (e *Engine) notify(batch *models.EngineBatch) {
	e.mu.Lock()
	hooks := make([]func(*models.EngineBatch), len(e.onBatch))
	copy(hooks, e.onBatch)
	e.mu.Unlock()
	for _, fn := range hooks {
		fn(batch)
	}
}

func toPtrs[T any](xs []T) []*T {
	out := make([]*T, len(xs))
	for i := range xs {
		out[i] = &xs[i]
	}
	return out
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
