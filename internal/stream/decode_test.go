package stream

import (
	"testing"
)

func TestDecodeCombinedTicker(t *testing.T) {
	raw := []byte(`{"stream":"btcusdt@ticker","data":{"e":"24hrTicker","s":"BTCUSDT","E":1700000000000,"c":"42000.5","v":"12345.6"}}`)
	ev, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Symbol != "BTCUSDT" {
		t.Fatalf("symbol: %s", ev.Symbol)
	}
	if ev.LastPrice == nil || *ev.LastPrice != 42000.5 {
		t.Fatalf("last price: %v", ev.LastPrice)
	}
	if ev.Volume == nil || *ev.Volume != 12345.6 {
		t.Fatalf("volume: %v", ev.Volume)
	}
	if ev.Timestamp.UnixMilli() != 1700000000000 {
		t.Fatalf("timestamp: %v", ev.Timestamp)
	}
}

func TestDecodeMarkPrice(t *testing.T) {
	raw := []byte(`{"e":"markPriceUpdate","s":"ETHUSDT","E":1700000000000,"p":"2200.10","r":"0.0001"}`)
	ev, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.MarkPrice == nil || *ev.MarkPrice != 2200.10 {
		t.Fatalf("mark price: %v", ev.MarkPrice)
	}
	if ev.Funding == nil || *ev.Funding != 0.0001 {
		t.Fatalf("funding: %v", ev.Funding)
	}
	if ev.LastPrice != nil {
		t.Fatalf("mark frame should not set last price")
	}
}

func TestDecodeAggTradeTakerSides(t *testing.T) {
	buy := []byte(`{"e":"aggTrade","s":"BTCUSDT","T":1700000000000,"p":"42000","m":false}`)
	ev, err := Decode(buy)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.TradeTally == nil || ev.TradeTally.TakerBuys != 1 || ev.TradeTally.TakerSells != 0 {
		t.Fatalf("taker buy tally: %+v", ev.TradeTally)
	}

	sell := []byte(`{"e":"aggTrade","s":"BTCUSDT","T":1700000000000,"p":"42000","m":true}`)
	ev, err = Decode(sell)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.TradeTally == nil || ev.TradeTally.TakerSells != 1 {
		t.Fatalf("taker sell tally: %+v", ev.TradeTally)
	}
}

func TestDecodeDepth(t *testing.T) {
	raw := []byte(`{"stream":"btcusdt@depth","data":{"e":"depthUpdate","s":"BTCUSDT","E":1700000000000,"b":[["42000","1.5"],["41999","2.5"]],"a":[["42001","1.0"]]}}`)
	ev, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.BookTop == nil {
		t.Fatalf("expected book top")
	}
	if ev.BookTop.BidVolume != 4.0 || ev.BookTop.AskVolume != 1.0 {
		t.Fatalf("book volumes: %+v", ev.BookTop)
	}
}

func TestDecodeSymbolFromStreamName(t *testing.T) {
	raw := []byte(`{"stream":"solusdt@openInterest","data":{"E":1700000000000,"openInterest":"123456"}}`)
	ev, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Symbol != "SOLUSDT" {
		t.Fatalf("symbol from stream name: %s", ev.Symbol)
	}
	if ev.OpenInterest == nil || *ev.OpenInterest != 123456 {
		t.Fatalf("open interest: %v", ev.OpenInterest)
	}
}

func TestDecodeUnparseable(t *testing.T) {
	cases := [][]byte{
		[]byte(`not json`),
		[]byte(`{"type":"pong"}`),
		[]byte(`{"s":"BTCUSDT"}`), // symbol but no data fields
	}
	for _, raw := range cases {
		if _, err := Decode(raw); err == nil {
			t.Fatalf("expected unparseable: %s", raw)
		}
	}
}

func TestGroupTokens(t *testing.T) {
	tokens := []string{"a", "b", "c", "d", "e"}
	groups := groupTokens(tokens, 2)
	if len(groups) != 3 {
		t.Fatalf("groups: %d", len(groups))
	}
	if len(groups[0]) != 2 || len(groups[2]) != 1 {
		t.Fatalf("group sizes: %v", groups)
	}
}
