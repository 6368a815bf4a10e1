package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"QuantBoard/internal/domain/models"
	"QuantBoard/internal/usecase"
	"QuantBoard/pkg/logger"

	"github.com/labstack/echo/v4"
)

type fakeMetricStore struct {
	rows map[string][]*models.MetricRow
}

func (s *fakeMetricStore) Init(ctx context.Context) error                                  { return nil }
func (s *fakeMetricStore) UpsertBatch(ctx context.Context, rows []*models.MetricRow) error { return nil }
func (s *fakeMetricStore) Upsert(ctx context.Context, row *models.MetricRow) error         { return nil }
func (s *fakeMetricStore) Window(ctx context.Context, symbol, tf string, n int) ([]*models.MetricRow, error) {
	return s.rows[symbol], nil
}
func (s *fakeMetricStore) Latest(ctx context.Context, symbol, tf string, n int) ([]*models.MetricRow, error) {
	return s.rows[symbol], nil
}
func (s *fakeMetricStore) Prune(ctx context.Context, olderThan time.Time) error { return nil }
func (s *fakeMetricStore) Health(ctx context.Context) error                     { return nil }
func (s *fakeMetricStore) Close() error                                         { return nil }

type fakeFeatureStore struct{}

func (fakeFeatureStore) Insert(ctx context.Context, snaps []*models.FeatureSnapshot) error { return nil }
func (fakeFeatureStore) Latest(ctx context.Context, symbol string, n int) ([]*models.FeatureSnapshot, error) {
	return []*models.FeatureSnapshot{{Symbol: symbol, Timeframe: "1m"}}, nil
}
func (fakeFeatureStore) Prune(ctx context.Context, olderThan time.Time) error { return nil }

type fakeSignalStore struct {
	contexts []*models.ContextScoreRecord
}

func (s *fakeSignalStore) InsertSignals(ctx context.Context, recs []*models.SignalRecord) error {
	return nil
}
func (s *fakeSignalStore) InsertDiagnostics(ctx context.Context, recs []*models.DiagnosticsRecord) error {
	return nil
}
func (s *fakeSignalStore) InsertConfluence(ctx context.Context, recs []*models.ConfluenceRecord) error {
	return nil
}
func (s *fakeSignalStore) InsertRegimes(ctx context.Context, recs []*models.RegimeRecord) error {
	return nil
}
func (s *fakeSignalStore) InsertContexts(ctx context.Context, recs []*models.ContextScoreRecord) error {
	return nil
}
func (s *fakeSignalStore) InsertTransitions(ctx context.Context, recs []*models.ContextTransition) error {
	return nil
}
func (s *fakeSignalStore) LatestSignals(ctx context.Context, symbol string, n int) ([]*models.SignalRecord, error) {
	return nil, nil
}
func (s *fakeSignalStore) LatestDiagnostics(ctx context.Context, symbol string, n int) ([]*models.DiagnosticsRecord, error) {
	return nil, nil
}
func (s *fakeSignalStore) LatestConfluence(ctx context.Context, symbol string, n int) ([]*models.ConfluenceRecord, error) {
	return []*models.ConfluenceRecord{{Symbol: symbol, Score: 0.42}}, nil
}
func (s *fakeSignalStore) LatestRegimes(ctx context.Context, symbol string, n int) ([]*models.RegimeRecord, error) {
	return nil, nil
}
func (s *fakeSignalStore) LatestContexts(ctx context.Context, symbol string, n int) ([]*models.ContextScoreRecord, error) {
	return s.contexts, nil
}
func (s *fakeSignalStore) Prune(ctx context.Context, olderThan time.Time) error { return nil }

type fakeStreamStatus struct{ running bool }

func (s fakeStreamStatus) IsRunning() bool { return s.running }

type fakeQueueStatus struct{ depth int }

func (q fakeQueueStatus) Depth() int { return q.depth }

func newHandler(t *testing.T) *MarketEchoHandler {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	metricStore := &fakeMetricStore{rows: map[string][]*models.MetricRow{
		"BTCUSDT": {{
			Symbol: "BTCUSDT", Timeframe: "1m", Timestamp: time.Now().UTC(),
			Price: models.Float(43000), Funding: models.Float(0.0001),
		}},
	}}
	sigStore := &fakeSignalStore{contexts: []*models.ContextScoreRecord{
		{Symbol: "BTCUSDT", Score: 0.7, Bias: models.BiasBullish, Regime: models.RegimeAccumulation},
	}}
	reader := usecase.NewMarketReader(metricStore, fakeFeatureStore{}, sigStore, l)
	return NewMarketEchoHandler(l, reader, []string{"BTCUSDT"}, fakeStreamStatus{running: true}, fakeQueueStatus{depth: 3})
}

func doRequest(t *testing.T, h *MarketEchoHandler, path string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	h.RegisterRoutes(e)
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestMetricsEndpoint(t *testing.T) {
	rec := doRequest(t, newHandler(t), "/api/metrics/BTCUSDT?n=10")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "43000") {
		t.Errorf("body missing price: %s", rec.Body.String())
	}
}

func TestMetricsEndpointRejectsBadTimeframe(t *testing.T) {
	rec := doRequest(t, newHandler(t), "/api/metrics/BTCUSDT?tf=7d")
	var resp struct {
		Status int `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != http.StatusBadRequest {
		t.Errorf("embedded status = %d, want 400", resp.Status)
	}
}

func TestSummaryEndpoint(t *testing.T) {
	rec := doRequest(t, newHandler(t), "/api/summary")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"BTCUSDT", "bullish", "accumulation", "0.42"} {
		if !strings.Contains(body, want) {
			t.Errorf("summary missing %q: %s", want, body)
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	rec := doRequest(t, newHandler(t), "/api/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{`"status":"ok"`, `"stream":true`, `"queue_depth":3`} {
		if !strings.Contains(body, want) {
			t.Errorf("health missing %s: %s", want, body)
		}
	}
}

func TestMetricsEndpointTimeRange(t *testing.T) {
	l, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	early := time.Date(2024, 10, 10, 10, 0, 0, 0, time.UTC)
	late := time.Date(2024, 10, 10, 10, 30, 0, 0, time.UTC)
	metricStore := &fakeMetricStore{rows: map[string][]*models.MetricRow{
		"BTCUSDT": {
			{Symbol: "BTCUSDT", Timeframe: "1m", Timestamp: late, Price: models.Float(44000)},
			{Symbol: "BTCUSDT", Timeframe: "1m", Timestamp: early, Price: models.Float(43000)},
		},
	}}
	reader := usecase.NewMarketReader(metricStore, fakeFeatureStore{}, &fakeSignalStore{}, l)
	h := NewMarketEchoHandler(l, reader, []string{"BTCUSDT"}, fakeStreamStatus{running: true}, fakeQueueStatus{})

	rec := doRequest(t, h, "/api/metrics/BTCUSDT?from=2024-10-10T10%3A15%3A00Z")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "44000") {
		t.Errorf("row inside range missing: %s", body)
	}
	if strings.Contains(body, "43000") {
		t.Errorf("row before range leaked: %s", body)
	}
}
