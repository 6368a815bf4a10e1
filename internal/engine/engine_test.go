package engine

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"QuantBoard/internal/domain/models"
	"QuantBoard/internal/features"
	"QuantBoard/pkg/config"
	"QuantBoard/pkg/logger"
)

type nopMetrics struct{}

func (nopMetrics) RecordEvent(source, symbol string)            {}
func (nopMetrics) RecordDrop(reason string)                     {}
func (nopMetrics) RecordRowsWritten(n int)                      {}
func (nopMetrics) RecordQueueDepth(n int)                       {}
func (nopMetrics) RecordError(kind string)                      {}
func (nopMetrics) RecordLastPrice(symbol string, price float64) {}
func (nopMetrics) RecordStageLatency(stage string, s float64)   {}

type memMetricStore struct {
	mu   sync.Mutex
	rows map[string][]*models.MetricRow
}

func newMemMetricStore() *memMetricStore {
	return &memMetricStore{rows: make(map[string][]*models.MetricRow)}
}

func (s *memMetricStore) Init(ctx context.Context) error { return nil }
func (s *memMetricStore) UpsertBatch(ctx context.Context, rows []*models.MetricRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		s.rows[r.Symbol] = append(s.rows[r.Symbol], r)
	}
	return nil
}
func (s *memMetricStore) Upsert(ctx context.Context, row *models.MetricRow) error {
	return s.UpsertBatch(ctx, []*models.MetricRow{row})
}
func (s *memMetricStore) Window(ctx context.Context, symbol, tf string, n int) ([]*models.MetricRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.rows[symbol]
	if len(rows) > n {
		rows = rows[len(rows)-n:]
	}
	return rows, nil
}
func (s *memMetricStore) Latest(ctx context.Context, symbol, tf string, n int) ([]*models.MetricRow, error) {
	return s.Window(ctx, symbol, tf, n)
}
func (s *memMetricStore) Prune(ctx context.Context, olderThan time.Time) error { return nil }
func (s *memMetricStore) Health(ctx context.Context) error                     { return nil }
func (s *memMetricStore) Close() error                                         { return nil }

type memFeatureStore struct {
	mu    sync.Mutex
	snaps map[string][]*models.FeatureSnapshot
}

func newMemFeatureStore() *memFeatureStore {
	return &memFeatureStore{snaps: make(map[string][]*models.FeatureSnapshot)}
}

func (s *memFeatureStore) Insert(ctx context.Context, snaps []*models.FeatureSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, snap := range snaps {
		s.snaps[snap.Symbol] = append(s.snaps[snap.Symbol], snap)
	}
	return nil
}
func (s *memFeatureStore) Latest(ctx context.Context, symbol string, n int) ([]*models.FeatureSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.snaps[symbol]
	out := make([]*models.FeatureSnapshot, 0, n)
	for i := len(all) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, all[i])
	}
	return out, nil
}
func (s *memFeatureStore) Prune(ctx context.Context, olderThan time.Time) error { return nil }

type memSignalStore struct {
	mu          sync.Mutex
	signals     []*models.SignalRecord
	transitions []*models.ContextTransition
}

func (s *memSignalStore) InsertSignals(ctx context.Context, recs []*models.SignalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals = append(s.signals, recs...)
	return nil
}
func (s *memSignalStore) InsertDiagnostics(ctx context.Context, recs []*models.DiagnosticsRecord) error {
	return nil
}
func (s *memSignalStore) InsertConfluence(ctx context.Context, recs []*models.ConfluenceRecord) error {
	return nil
}
func (s *memSignalStore) InsertRegimes(ctx context.Context, recs []*models.RegimeRecord) error {
	return nil
}
func (s *memSignalStore) InsertContexts(ctx context.Context, recs []*models.ContextScoreRecord) error {
	return nil
}
func (s *memSignalStore) InsertTransitions(ctx context.Context, recs []*models.ContextTransition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitions = append(s.transitions, recs...)
	return nil
}
func (s *memSignalStore) LatestSignals(ctx context.Context, symbol string, n int) ([]*models.SignalRecord, error) {
	return nil, nil
}
func (s *memSignalStore) LatestDiagnostics(ctx context.Context, symbol string, n int) ([]*models.DiagnosticsRecord, error) {
	return nil, nil
}
func (s *memSignalStore) LatestConfluence(ctx context.Context, symbol string, n int) ([]*models.ConfluenceRecord, error) {
	return nil, nil
}
func (s *memSignalStore) LatestRegimes(ctx context.Context, symbol string, n int) ([]*models.RegimeRecord, error) {
	return nil, nil
}
func (s *memSignalStore) LatestContexts(ctx context.Context, symbol string, n int) ([]*models.ContextScoreRecord, error) {
	return nil, nil
}
func (s *memSignalStore) Prune(ctx context.Context, olderThan time.Time) error { return nil }

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

func TestRegimeClassificationIdempotent(t *testing.T) {
	now := time.Now()
	cases := []struct {
		confluence float64
		volZ       float64
		want       models.Regime
	}{
		{0.5, -0.5, models.RegimeAccumulation},
		{0.5, 0.5, models.RegimeExpansion},
		{-0.5, -0.5, models.RegimeDistribution},
		{-0.5, 0.5, models.RegimeExhaustion},
		{0.05, 0.5, models.RegimeNeutral},
		{-0.05, -2, models.RegimeNeutral},
	}
	for _, tc := range cases {
		first := classifyRegime("BTCUSDT", tc.confluence, tc.volZ, 1, now)
		second := classifyRegime("BTCUSDT", tc.confluence, tc.volZ, 1, now)
		if first.Regime != tc.want {
			t.Errorf("(%v,%v) regime = %v, want %v", tc.confluence, tc.volZ, first.Regime, tc.want)
		}
		if first.Regime != second.Regime || first.Confidence != second.Confidence {
			t.Errorf("(%v,%v) classification not idempotent", tc.confluence, tc.volZ)
		}
		if first.Confidence != math.Min(math.Abs(tc.confluence), 1) {
			t.Errorf("(%v,%v) confidence = %v", tc.confluence, tc.volZ, first.Confidence)
		}
	}
}

func TestConfluenceAveragesOnlyFiringFamilies(t *testing.T) {
	now := time.Now()
	rec := confluence("BTCUSDT", map[models.Family]float64{
		models.FamilyAccumulation: 1,
	}, 0, now)
	if rec.BullStrength != 1 {
		t.Errorf("bull strength = %v, want 1 (silent momentum must not dilute)", rec.BullStrength)
	}
	if rec.BearStrength != 0 {
		t.Errorf("bear strength = %v, want 0", rec.BearStrength)
	}
	if rec.Score != 1 {
		t.Errorf("score = %v, want 1", rec.Score)
	}
	if rec.Contributing != 1 {
		t.Errorf("contributing = %d, want 1", rec.Contributing)
	}

	both := confluence("BTCUSDT", map[models.Family]float64{
		models.FamilyAccumulation: 1,
		models.FamilyMomentum:     0.5,
		models.FamilyDistribution: 0.5,
	}, 0, now)
	if both.BullStrength != 0.75 || both.BearStrength != 0.5 {
		t.Errorf("strengths = %v/%v, want 0.75/0.5", both.BullStrength, both.BearStrength)
	}
}

func TestBiasTransitionSequence(t *testing.T) {
	e := New(Config{Thresholds: config.DefaultThresholds()},
		newMemMetricStore(), newMemFeatureStore(), &memSignalStore{}, testLogger(t), nopMetrics{})

	now := time.Now()
	sequence := []models.Bias{
		models.BiasNeutral,
		models.BiasNeutral,
		models.BiasBullish,
		models.BiasBullish,
		models.BiasBearish,
	}
	var transitions []models.ContextTransition
	for _, bias := range sequence {
		cs := models.ContextScoreRecord{Symbol: "BTCUSDT", Bias: bias, Timestamp: now}
		if tr, ok := e.biasTransition("BTCUSDT", cs); ok {
			transitions = append(transitions, tr)
		}
	}
	if len(transitions) != 2 {
		t.Fatalf("got %d transitions, want 2", len(transitions))
	}
	if transitions[0].From != models.BiasNeutral || transitions[0].To != models.BiasBullish {
		t.Errorf("first transition %v->%v, want neutral->bullish", transitions[0].From, transitions[0].To)
	}
	if transitions[1].From != models.BiasBullish || transitions[1].To != models.BiasBearish {
		t.Errorf("second transition %v->%v, want bullish->bearish", transitions[1].From, transitions[1].To)
	}
}

func TestContextScoreNoSignalsIsNeutral(t *testing.T) {
	now := time.Now()
	regime := classifyRegime("BTCUSDT", 0, 0, 0, now)
	confl := models.ConfluenceRecord{Symbol: "BTCUSDT", Contributing: 0}
	cs := contextScore("BTCUSDT", regime, confl, now)
	if cs.Bias != models.BiasNeutral {
		t.Errorf("bias = %v, want neutral when nothing fired", cs.Bias)
	}
	if cs.Score != 0.5 {
		t.Errorf("score = %v, want 0.5", cs.Score)
	}
}

func TestThresholdStrategyAccumulation(t *testing.T) {
	strat := NewThresholdStrategy(config.DefaultThresholds())
	in := Input{
		Snapshot: &models.FeatureSnapshot{
			OIChange5:    models.Float(2.0),
			PriceChange5: models.Float(0.0),
			Volatility:   models.Float(0.0),
			Imbalance:    models.Float(0.6),
		},
		Latest: &models.MetricRow{TopTraderAccounts: models.Float(1.8)},
	}
	scores := strat.Scores(in)
	if scores[models.FamilyAccumulation] != 1 {
		t.Errorf("accumulation = %v, want 1", scores[models.FamilyAccumulation])
	}
	if scores[models.FamilyDistribution] != 0 {
		t.Errorf("distribution = %v, want 0", scores[models.FamilyDistribution])
	}

	// drop the imbalance below threshold and the conjunction breaks
	in.Snapshot.Imbalance = models.Float(0.4)
	scores = strat.Scores(in)
	if scores[models.FamilyAccumulation] != 0 {
		t.Errorf("accumulation = %v, want 0 with weak imbalance", scores[models.FamilyAccumulation])
	}
}

func TestConfidenceWeighting(t *testing.T) {
	scores := map[models.Family]float64{models.FamilyAccumulation: 1}
	got := Confidence(scores)
	want := 1.0 / 5.7
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("confidence = %v, want %v", got, want)
	}
	all := map[models.Family]float64{}
	for _, family := range models.Families {
		all[family] = 1
	}
	if got := Confidence(all); math.Abs(got-1) > 1e-9 {
		t.Errorf("all-families confidence = %v, want 1", got)
	}
}

func TestEndToEndRisingOIFlatPrice(t *testing.T) {
	ctx := context.Background()
	metricStore := newMemMetricStore()
	featStore := newMemFeatureStore()
	sigStore := &memSignalStore{}

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 130; i++ {
		row := &models.MetricRow{
			Symbol:            "BTCUSDT",
			Timeframe:         "1m",
			Timestamp:         base.Add(time.Duration(i) * time.Minute),
			Price:             models.Float(43000),
			OpenInterest:      models.Float(1000 + float64(i)*25),
			TopTraderAccounts: models.Float(1.8),
			BidVolume:         models.Float(65),
			AskVolume:         models.Float(35),
		}
		if err := metricStore.Upsert(ctx, row); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	computer := features.NewComputer(features.Config{Window: 120, ReturnWindow: 20},
		metricStore, featStore, testLogger(t), nopMetrics{})
	computer.ComputeAll(ctx, []string{"BTCUSDT"})

	snaps, err := featStore.Latest(ctx, "BTCUSDT", 1)
	if err != nil || len(snaps) != 1 {
		t.Fatalf("feature snapshot missing: %v", err)
	}
	snap := snaps[0]
	if snap.OIZScore == nil || *snap.OIZScore <= 0 {
		t.Fatalf("OI z-score = %v, want positive", snap.OIZScore)
	}

	e := New(Config{Thresholds: config.DefaultThresholds(), Timeframe: "1m"},
		metricStore, featStore, sigStore, testLogger(t), nopMetrics{})
	batch := e.EvaluateAll(ctx, []string{"BTCUSDT"})
	if batch == nil {
		t.Fatal("evaluation produced no batch")
	}

	var accumulation *models.SignalRecord
	for i := range batch.Signals {
		s := &batch.Signals[i]
		if s.Family == models.FamilyAccumulation && s.Method == "threshold" {
			accumulation = s
		}
	}
	if accumulation == nil || accumulation.Score != 1 {
		t.Fatalf("accumulation signal not firing: %+v", accumulation)
	}

	if len(batch.Regimes) != 1 || batch.Regimes[0].Regime != models.RegimeAccumulation {
		t.Fatalf("regime = %+v, want accumulation", batch.Regimes)
	}
	if len(batch.Contexts) != 1 || batch.Contexts[0].Bias != models.BiasBullish {
		t.Fatalf("bias = %+v, want bullish", batch.Contexts)
	}
}
