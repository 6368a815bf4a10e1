package features

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"QuantBoard/internal/domain/models"
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

type windowStore struct {
	mu      sync.Mutex
	windows map[string][]*models.MetricRow
}

func (s *windowStore) Init(ctx context.Context) error                                { return nil }
func (s *windowStore) UpsertBatch(ctx context.Context, rows []*models.MetricRow) error { return nil }
func (s *windowStore) Upsert(ctx context.Context, row *models.MetricRow) error        { return nil }
func (s *windowStore) Window(ctx context.Context, symbol, tf string, n int) ([]*models.MetricRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.windows[symbol]
	if len(rows) > n {
		rows = rows[len(rows)-n:]
	}
	return rows, nil
}
func (s *windowStore) Latest(ctx context.Context, symbol, tf string, n int) ([]*models.MetricRow, error) {
	return s.Window(ctx, symbol, tf, n)
}
func (s *windowStore) Prune(ctx context.Context, olderThan time.Time) error { return nil }
func (s *windowStore) Health(ctx context.Context) error                     { return nil }
func (s *windowStore) Close() error                                         { return nil }

type captureFeatures struct {
	mu    sync.Mutex
	snaps []*models.FeatureSnapshot
}

func (f *captureFeatures) Insert(ctx context.Context, snaps []*models.FeatureSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snaps = append(f.snaps, snaps...)
	return nil
}
func (f *captureFeatures) Latest(ctx context.Context, symbol string, n int) ([]*models.FeatureSnapshot, error) {
	return nil, nil
}
func (f *captureFeatures) Prune(ctx context.Context, olderThan time.Time) error { return nil }

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

func makeRows(n int, price func(i int) float64, oi func(i int) float64) []*models.MetricRow {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := make([]*models.MetricRow, n)
	for i := 0; i < n; i++ {
		rows[i] = &models.MetricRow{
			Symbol:       "BTCUSDT",
			Timeframe:    "1m",
			Timestamp:    base.Add(time.Duration(i) * time.Minute),
			Price:        models.Float(price(i)),
			OpenInterest: models.Float(oi(i)),
		}
	}
	return rows
}

func TestMeanStdev(t *testing.T) {
	xs := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	if m := Mean(xs); m != 5 {
		t.Errorf("mean = %v, want 5", m)
	}
	if sd := Stdev(xs); sd != 2 {
		t.Errorf("stdev = %v, want 2", sd)
	}
}

func TestPearsonDegradesToZero(t *testing.T) {
	cases := []struct {
		name string
		a, b []float64
	}{
		{"constant leg", []float64{1, 1, 1, 1}, []float64{1, 2, 3, 4}},
		{"mismatched length", []float64{1, 2, 3}, []float64{1, 2}},
		{"too short", []float64{1}, []float64{2}},
		{"empty", nil, nil},
	}
	for _, tc := range cases {
		if r := Pearson(tc.a, tc.b); r != 0 {
			t.Errorf("%s: Pearson = %v, want 0", tc.name, r)
		}
	}
}

func TestPearsonPerfectCorrelation(t *testing.T) {
	a := []float64{1, 2, 3, 4, 5}
	b := []float64{2, 4, 6, 8, 10}
	if r := Pearson(a, b); math.Abs(r-1) > 1e-9 {
		t.Errorf("Pearson = %v, want 1", r)
	}
	c := []float64{10, 8, 6, 4, 2}
	if r := Pearson(a, c); math.Abs(r+1) > 1e-9 {
		t.Errorf("Pearson = %v, want -1", r)
	}
}

func TestZScoreConstantSeries(t *testing.T) {
	if _, ok := ZScore([]float64{5, 5, 5, 5}); ok {
		t.Error("constant series should yield no z-score")
	}
	if _, ok := ZScore([]float64{5}); ok {
		t.Error("single sample should yield no z-score")
	}
}

func TestPctChange(t *testing.T) {
	xs := []float64{100, 101, 102, 103, 104, 105}
	v, ok := PctChange(xs, 5)
	if !ok {
		t.Fatal("expected change at offset 5")
	}
	if math.Abs(v-5) > 1e-9 {
		t.Errorf("change = %v, want 5", v)
	}
	if _, ok := PctChange(xs, 6); ok {
		t.Error("offset beyond window should not produce a change")
	}
}

func TestCompositeRenormalizes(t *testing.T) {
	// only OI and funding available: weights 0.4 and 0.2 renormalize to 2/3, 1/3
	got := Composite(models.Float(3), nil, nil, models.Float(-1.5))
	if got == nil {
		t.Fatal("composite should not be nil with two components")
	}
	want := (3*0.4 + -1.5*0.2) / 0.6
	if math.Abs(*got-want) > 1e-9 {
		t.Errorf("composite = %v, want %v", *got, want)
	}

	if got := Composite(nil, nil, nil, nil); got != nil {
		t.Errorf("composite with no components = %v, want nil", *got)
	}

	// single component: composite equals that component exactly
	got = Composite(nil, models.Float(1.7), nil, nil)
	if got == nil || math.Abs(*got-1.7) > 1e-9 {
		t.Errorf("single-component composite = %v, want 1.7", got)
	}
}

func TestFromWindowRisingOIFlatPrice(t *testing.T) {
	c := NewComputer(Config{Window: 120, ReturnWindow: 20}, &windowStore{}, &captureFeatures{}, testLogger(t), nopMetrics{})
	rows := makeRows(120,
		func(i int) float64 { return 43000 },
		func(i int) float64 { return 1000 + float64(i)*10 },
	)
	snap := c.fromWindow("BTCUSDT", rows)

	if snap.OIZScore == nil || *snap.OIZScore <= 0 {
		t.Fatalf("rising OI should give positive z-score, got %v", snap.OIZScore)
	}
	if snap.PriceChange5 == nil || *snap.PriceChange5 != 0 {
		t.Errorf("flat price should give zero change, got %v", snap.PriceChange5)
	}
	// constant price means zero volatility
	if snap.Volatility == nil || *snap.Volatility != 0 {
		t.Errorf("flat price volatility = %v, want 0", snap.Volatility)
	}
	if snap.Composite == nil {
		t.Error("composite should exist when OI z-score exists")
	}
}

func TestFromWindowImbalanceAndTakers(t *testing.T) {
	c := NewComputer(Config{}, &windowStore{}, &captureFeatures{}, testLogger(t), nopMetrics{})
	rows := makeRows(10,
		func(i int) float64 { return 100 + float64(i) },
		func(i int) float64 { return 500 },
	)
	last := rows[len(rows)-1]
	last.BidVolume = models.Float(60)
	last.AskVolume = models.Float(40)
	last.TakerBuys = 30
	last.TakerSells = 10

	snap := c.fromWindow("BTCUSDT", rows)
	if snap.Imbalance == nil || math.Abs(*snap.Imbalance-0.6) > 1e-9 {
		t.Errorf("imbalance = %v, want 0.6", snap.Imbalance)
	}
	if snap.TakerRatio == nil || *snap.TakerRatio != 3 {
		t.Errorf("taker ratio = %v, want 3", snap.TakerRatio)
	}
}

func TestComputeAllPersistsSnapshots(t *testing.T) {
	store := &windowStore{windows: map[string][]*models.MetricRow{
		"BTCUSDT": makeRows(30, func(i int) float64 { return 100 + float64(i) }, func(i int) float64 { return 1000 }),
		"ETHUSDT": makeRows(30, func(i int) float64 { return 2000 - float64(i) }, func(i int) float64 { return 500 }),
		"THINUSD": makeRows(1, func(i int) float64 { return 1 }, func(i int) float64 { return 1 }),
	}}
	sink := &captureFeatures{}
	c := NewComputer(Config{Workers: 2}, store, sink, testLogger(t), nopMetrics{})

	c.ComputeAll(context.Background(), []string{"BTCUSDT", "ETHUSDT", "THINUSD"})

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.snaps) != 2 {
		t.Fatalf("persisted %d snapshots, want 2 (thin window skipped)", len(sink.snaps))
	}
}
