package stream

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"QuantBoard/internal/domain/models"
)

// ErrUnparseable marks a frame that matched no known shape. Callers drop
// these silently; the decoder never falls back to sentinel numbers.
var ErrUnparseable = errors.New("stream: unparseable frame")

// combinedFrame is the multiplexed envelope: {"stream": "...", "data": {...}}.
type combinedFrame struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// framePayload covers the union of fields across the event shapes we
// subscribe to. Numeric fields arrive as strings on most exchange payloads,
// so everything is decoded through flexNum.
type framePayload struct {
	EventType string  `json:"e"`
	Symbol    string  `json:"s"`
	EventTime int64   `json:"E"`
	TradeTime int64   `json:"T"`
	Last      flexNum `json:"c"`
	Price     flexNum `json:"p"`
	Funding   flexNum `json:"r"`
	Volume    flexNum `json:"v"`
	OI        flexNum `json:"openInterest"`
	Mark      flexNum `json:"markPrice"`
	IsMaker   bool    `json:"m"`

	Bids [][]flexNum `json:"b"`
	Asks [][]flexNum `json:"a"`
}

// flexNum accepts a JSON number or a numeric string; absent or non-numeric
// values leave it unset.
type flexNum struct {
	val float64
	ok  bool
}

func (f *flexNum) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	f.val = v
	f.ok = true
	return nil
}

func (f flexNum) ptr() *float64 {
	if !f.ok {
		return nil
	}
	v := f.val
	return &v
}

// Decode normalizes one raw websocket frame into a RawEvent. The shapes are
// tried in a fixed order: combined envelope first, then a bare event object.
// A frame with no recognizable symbol or data yields ErrUnparseable.
func Decode(raw []byte) (*models.RawEvent, error) {
	var env combinedFrame
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, ErrUnparseable
	}

	data := raw
	streamName := ""
	if env.Stream != "" && len(env.Data) > 0 {
		data = env.Data
		streamName = env.Stream
	}

	var p framePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, ErrUnparseable
	}

	symbol := normalizeSymbol(p.Symbol)
	if symbol == "" && streamName != "" {
		if i := strings.IndexByte(streamName, '@'); i > 0 {
			symbol = strings.ToUpper(streamName[:i])
		}
	}
	if symbol == "" {
		return nil, ErrUnparseable
	}

	ev := &models.RawEvent{
		Symbol:    symbol,
		Source:    models.SourceStream,
		Timestamp: frameTime(p),
		Raw:       append(json.RawMessage(nil), data...),
	}

	switch p.EventType {
	case "markPriceUpdate":
		ev.MarkPrice = p.Price.ptr()
		if ev.MarkPrice == nil {
			ev.MarkPrice = p.Mark.ptr()
		}
		ev.Funding = p.Funding.ptr()
	case "aggTrade":
		ev.LastPrice = p.Price.ptr()
		tally := &models.TradeTally{}
		// m=true means the buyer is the maker, i.e. a taker sell
		if p.IsMaker {
			tally.TakerSells = 1
		} else {
			tally.TakerBuys = 1
		}
		ev.TradeTally = tally
	case "depthUpdate":
		ev.BookTop = bookTop(p.Bids, p.Asks)
	default:
		// 24hr ticker and openInterest shapes carry no event type we key on
		ev.LastPrice = p.Last.ptr()
		ev.Volume = p.Volume.ptr()
		ev.OpenInterest = p.OI.ptr()
		if ev.LastPrice == nil {
			ev.LastPrice = p.Price.ptr()
		}
		if p.Bids != nil || p.Asks != nil {
			ev.BookTop = bookTop(p.Bids, p.Asks)
		}
	}

	if empty(ev) {
		return nil, ErrUnparseable
	}
	return ev, nil
}

func bookTop(bids, asks [][]flexNum) *models.BookTop {
	top := &models.BookTop{}
	for _, lvl := range bids {
		if len(lvl) >= 2 && lvl[1].ok {
			top.BidVolume += lvl[1].val
		}
	}
	for _, lvl := range asks {
		if len(lvl) >= 2 && lvl[1].ok {
			top.AskVolume += lvl[1].val
		}
	}
	if top.BidVolume == 0 && top.AskVolume == 0 {
		return nil
	}
	return top
}

func frameTime(p framePayload) time.Time {
	ms := p.EventTime
	if ms == 0 {
		ms = p.TradeTime
	}
	if ms == 0 {
		return time.Now().UTC()
	}
	return time.UnixMilli(ms).UTC()
}

func normalizeSymbol(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, "/", "")
	s = strings.TrimSuffix(s, ":USDT")
	return strings.ToUpper(s)
}

func empty(ev *models.RawEvent) bool {
	return ev.LastPrice == nil && ev.MarkPrice == nil && ev.OpenInterest == nil &&
		ev.Funding == nil && ev.Volume == nil && ev.BookTop == nil && ev.TradeTally == nil
}
