package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"QuantBoard/internal/domain/models"
	"QuantBoard/internal/ratelimit"
	xhttp "QuantBoard/pkg/http"
)

// Client issues the fixed per-symbol REST call set against the futures API.
// The 24h ticker is the core call; everything else is best-effort and a
// failure just omits the field.
type Client struct {
	baseURL string
	http    *xhttp.Client
	limiter *ratelimit.Limiter
}

// NewClient creates a snapshot REST client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    xhttp.NewClient(xhttp.WithTimeout(timeout)),
		limiter: ratelimit.New(),
	}
}

type tickerResp struct {
	LastPrice string `json:"lastPrice"`
	Volume    string `json:"volume"`
	Count     int64  `json:"count"`
}

type openInterestResp struct {
	OpenInterest string `json:"openInterest"`
}

type premiumIndexResp struct {
	MarkPrice       string `json:"markPrice"`
	LastFundingRate string `json:"lastFundingRate"`
}

type ratioEntry struct {
	LongShortRatio       string `json:"longShortRatio"`
	SumOpenInterestValue string `json:"sumOpenInterestValue"`
}

// FetchSymbol pulls the full snapshot for one symbol. On total failure the
// returned event carries only symbol, timestamp, and the error string.
func (c *Client) FetchSymbol(ctx context.Context, symbol string) *models.RawEvent {
	ev := &models.RawEvent{
		Symbol:    symbol,
		Source:    models.SourcePoll,
		Timestamp: time.Now().UTC(),
	}

	var tk tickerResp
	if err := c.get(ctx, "/fapi/v1/ticker/24hr", symbol, nil, &tk); err != nil {
		ev.Err = err.Error()
		return ev
	}
	ev.LastPrice = parseNum(tk.LastPrice)
	ev.Volume = parseNum(tk.Volume)

	var oi openInterestResp
	if err := c.get(ctx, "/fapi/v1/openInterest", symbol, nil, &oi); err == nil {
		ev.OpenInterest = parseNum(oi.OpenInterest)
	}

	var pi premiumIndexResp
	if err := c.get(ctx, "/fapi/v1/premiumIndex", symbol, nil, &pi); err == nil {
		ev.MarkPrice = parseNum(pi.MarkPrice)
		ev.Funding = parseNum(pi.LastFundingRate)
	}

	ratioParams := map[string][]string{"period": {"5m"}, "limit": {"1"}}
	if r := c.ratio(ctx, "/futures/data/globalLongShortAccountRatio", symbol, ratioParams); r != nil {
		ev.GlobalLongShort = parseNum(r.LongShortRatio)
	}
	if r := c.ratio(ctx, "/futures/data/topLongShortAccountRatio", symbol, ratioParams); r != nil {
		ev.TopTraderAccounts = parseNum(r.LongShortRatio)
	}
	if r := c.ratio(ctx, "/futures/data/topLongShortPositionRatio", symbol, ratioParams); r != nil {
		ev.TopTraderPosition = parseNum(r.LongShortRatio)
	}
	if r := c.ratio(ctx, "/futures/data/openInterestHist", symbol, ratioParams); r != nil {
		ev.OpenInterestUSD = parseNum(r.SumOpenInterestValue)
	}

	if raw, err := json.Marshal(ev); err == nil {
		ev.Raw = raw
	}
	return ev
}

func (c *Client) get(ctx context.Context, path, symbol string, extra map[string][]string, dest interface{}) error {
	c.limiter.Wait(path, 20, 10)
	params := map[string][]string{"symbol": {symbol}}
	for k, v := range extra {
		params[k] = v
	}
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         c.baseURL + path,
		QueryParams: params,
	}, dest)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	return nil
}

func (c *Client) ratio(ctx context.Context, path, symbol string, params map[string][]string) *ratioEntry {
	var entries []ratioEntry
	if err := c.get(ctx, path, symbol, params, &entries); err != nil || len(entries) == 0 {
		return nil
	}
	return &entries[0]
}

func parseNum(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}
