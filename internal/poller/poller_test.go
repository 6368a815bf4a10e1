package poller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"QuantBoard/internal/domain/models"
	"QuantBoard/pkg/logger"
)

type nopMetrics struct{}

func (nopMetrics) RecordEvent(string, string)        {}
func (nopMetrics) RecordDrop(string)                 {}
func (nopMetrics) RecordRowsWritten(int)             {}
func (nopMetrics) RecordQueueDepth(int)              {}
func (nopMetrics) RecordError(string)                {}
func (nopMetrics) RecordLastPrice(string, float64)   {}
func (nopMetrics) RecordStageLatency(string, float64) {}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

func apiServer(t *testing.T, failTicker bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/fapi/v1/ticker/24hr", func(w http.ResponseWriter, r *http.Request) {
		if failTicker {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"lastPrice": "42000.5", "volume": "1000", "count": 321,
		})
	})
	mux.HandleFunc("/fapi/v1/openInterest", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"openInterest": "98765"})
	})
	mux.HandleFunc("/fapi/v1/premiumIndex", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"markPrice": "42001.0", "lastFundingRate": "0.0001"})
	})
	mux.HandleFunc("/futures/data/globalLongShortAccountRatio", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]string{{"longShortRatio": "1.8"}})
	})
	mux.HandleFunc("/futures/data/topLongShortAccountRatio", func(w http.ResponseWriter, r *http.Request) {
		// partial failure: this field must simply be omitted
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})
	mux.HandleFunc("/futures/data/topLongShortPositionRatio", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]string{{"longShortRatio": "2.1"}})
	})
	mux.HandleFunc("/futures/data/openInterestHist", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]string{{"sumOpenInterestValue": "4100000000"}})
	})
	return httptest.NewServer(mux)
}

func TestFetchSymbolPartialFailure(t *testing.T) {
	srv := apiServer(t, false)
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	ev := c.FetchSymbol(context.Background(), "BTCUSDT")

	if ev.Err != "" {
		t.Fatalf("unexpected error: %s", ev.Err)
	}
	if ev.LastPrice == nil || *ev.LastPrice != 42000.5 {
		t.Fatalf("last price: %v", ev.LastPrice)
	}
	if ev.OpenInterest == nil || *ev.OpenInterest != 98765 {
		t.Fatalf("open interest: %v", ev.OpenInterest)
	}
	if ev.Funding == nil || *ev.Funding != 0.0001 {
		t.Fatalf("funding: %v", ev.Funding)
	}
	if ev.GlobalLongShort == nil || *ev.GlobalLongShort != 1.8 {
		t.Fatalf("global ls: %v", ev.GlobalLongShort)
	}
	// the failed sub-call omits its field, nothing more
	if ev.TopTraderAccounts != nil {
		t.Fatalf("top trader accounts should be omitted on sub-call failure")
	}
	if ev.TopTraderPosition == nil || *ev.TopTraderPosition != 2.1 {
		t.Fatalf("top trader position: %v", ev.TopTraderPosition)
	}
}

func TestFetchSymbolTotalFailure(t *testing.T) {
	srv := apiServer(t, true)
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	ev := c.FetchSymbol(context.Background(), "BTCUSDT")

	if ev.Err == "" {
		t.Fatalf("expected error event")
	}
	if ev.Symbol != "BTCUSDT" || ev.Timestamp.IsZero() {
		t.Fatalf("error event must keep symbol and timestamp: %+v", ev)
	}
	if ev.LastPrice != nil || ev.OpenInterest != nil {
		t.Fatalf("error event must carry no data fields")
	}
}

func TestPollOnceConcurrencyAndSink(t *testing.T) {
	srv := apiServer(t, false)
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	p := New(c, testLogger(t), nopMetrics{}, 2, time.Second)

	var mu sync.Mutex
	seen := map[string]bool{}
	sink := func(ev *models.RawEvent) {
		mu.Lock()
		seen[ev.Symbol] = true
		mu.Unlock()
	}

	p.pollOnce(context.Background(), []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}, sink)

	if len(seen) != 3 {
		t.Fatalf("expected 3 snapshots, got %v", seen)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	srv := apiServer(t, false)
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	p := New(c, testLogger(t), nopMetrics{}, 2, 100*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx, []string{"BTCUSDT"}, func(*models.RawEvent) {}, 50*time.Millisecond)
		close(done)
	}()

	time.Sleep(150 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("poller did not stop on cancel")
	}
}
