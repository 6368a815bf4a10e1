package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

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

func wsServer(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		// keep the connection open until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func TestManagerDeliversFrames(t *testing.T) {
	srv := wsServer(t, []string{
		`{"e":"24hrTicker","s":"BTCUSDT","E":1700000000000,"c":"42000","v":"10"}`,
		`garbage frame`,
		`{"e":"markPriceUpdate","s":"BTCUSDT","E":1700000001000,"p":"42001","r":"0.0001"}`,
	})
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream?streams="

	var got atomic.Int64
	m := NewManager(Config{URL: url, MaxStreamsPerConn: 10}, testLogger(t), nopMetrics{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := m.Start(ctx, []string{"BTCUSDT"}, func(ev *models.RawEvent) error {
		got.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for got.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("timed out, delivered=%d", got.Load())
		case <-time.After(10 * time.Millisecond):
		}
	}
	m.Stop()
}

func TestManagerStartTwiceAndStopIdle(t *testing.T) {
	srv := wsServer(t, nil)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream?streams="

	m := NewManager(Config{URL: url}, testLogger(t), nopMetrics{})

	// stop while idle is a no-op
	m.Stop()
	if m.IsRunning() {
		t.Fatalf("should be idle")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	onEvent := func(*models.RawEvent) error { return nil }

	if err := m.Start(ctx, []string{"BTCUSDT"}, onEvent); err != nil {
		t.Fatalf("start: %v", err)
	}
	// second start is a no-op, not an error
	if err := m.Start(ctx, []string{"BTCUSDT"}, onEvent); err != nil {
		t.Fatalf("double start: %v", err)
	}
	if !m.IsRunning() {
		t.Fatalf("should be running")
	}
	m.Stop()
	if m.IsRunning() {
		t.Fatalf("should be stopped")
	}
}

func TestCombinedURL(t *testing.T) {
	toks := []string{"btcusdt@ticker", "btcusdt@aggTrade"}

	got := combinedURL("wss://fstream.binance.com/stream", toks)
	want := "wss://fstream.binance.com/stream?streams=btcusdt@ticker/btcusdt@aggTrade"
	if got != want {
		t.Fatalf("bare base: got %q, want %q", got, want)
	}

	// a base already carrying the query keeps it untouched
	got = combinedURL("wss://fstream.binance.com/stream?streams=", toks)
	if got != want {
		t.Fatalf("suffixed base: got %q, want %q", got, want)
	}
}

func TestTokensGrouping(t *testing.T) {
	m := NewManager(Config{URL: "ws://x/", Suffixes: []string{"ticker", "aggTrade"}}, testLogger(t), nopMetrics{})
	toks := m.tokens([]string{"BTCUSDT", " ", "ethusdt"})
	if len(toks) != 4 {
		t.Fatalf("tokens: %v", toks)
	}
	if toks[0] != "btcusdt@ticker" || toks[3] != "ethusdt@aggTrade" {
		t.Fatalf("tokens: %v", toks)
	}
}
