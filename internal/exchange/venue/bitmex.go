package venue

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"algo_bot/internal/helper"
	"algo_bot/internal/models"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

const (
	bitmexREST        = "https://www.bitmex.com/api/v1"
	bitmexWS          = "wss://ws.bitmex.com/realtime"
	bitmexTestnetREST = "https://testnet.bitmex.com/api/v1"
	bitmexTestnetWS   = "wss://ws.testnet.bitmex.com/realtime"
	bitmexPage        = 1000
	satoshi           = 1e8
)

// bitmex buckets only these sizes.
var bitmexBins = map[string]bool{"1m": true, "5m": true, "1h": true, "1d": true}

type Bitmex struct {
	cfg    Config
	rest   *rest
	ws     string
	dialer *websocket.Dialer
}

func NewBitmex(cfg Config) *Bitmex {
	cfg = cfg.withDefaults()
	base, ws := bitmexREST, bitmexWS
	if cfg.Testnet {
		base, ws = bitmexTestnetREST, bitmexTestnetWS
	}
	if cfg.REST != "" {
		base = cfg.REST
	}
	if cfg.WS != "" {
		ws = cfg.WS
	}

	b := &Bitmex{cfg: cfg, ws: ws, dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second}}
	var sign signer
	if cfg.Account.HasKeys() {
		sign = b.sign
	}
	b.rest = newREST(base, cfg.RateLimit, sign)
	return b
}

func (b *Bitmex) Name() models.Exchange { return models.ExchangeBitmex }

// sign: hex(hmac(secret, verb + path?query + expires + body)).
func (b *Bitmex) sign(req *http.Request, payload []byte) error {
	expires := strconv.FormatInt(time.Now().Add(time.Minute).Unix(), 10)
	msg := req.Method + req.URL.RequestURI() + expires + string(payload)
	req.Header.Set("api-expires", expires)
	req.Header.Set("api-key", b.cfg.Account.APIKey)
	req.Header.Set("api-signature", hmacHex(b.cfg.Account.APISecret, msg))
	return nil
}

type bitmexBin struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// bar converts a bin; bitmex stamps bins with their close time.
func (x bitmexBin) bar(tf time.Duration) models.Bar {
	return models.Bar{
		Start:  x.Timestamp.Add(-tf).UTC(),
		Open:   x.Open,
		High:   x.High,
		Low:    x.Low,
		Close:  x.Close,
		Volume: x.Volume,
	}
}

func (b *Bitmex) Klines(ctx context.Context, pair, timeframe string, start, end time.Time) ([]models.Bar, error) {
	tf := models.TimeframeDuration(timeframe)
	if !bitmexBins[timeframe] {
		return nil, errors.Wrapf(ErrTimeframe, "bitmex %q", timeframe)
	}
	return paginate(ctx, start, end, tf, bitmexPage, func(from, to time.Time) ([]models.Bar, error) {
		q := url.Values{}
		q.Set("binSize", timeframe)
		q.Set("symbol", pair)
		q.Set("startTime", from.Add(tf).UTC().Format(time.RFC3339))
		q.Set("endTime", to.UTC().Format(time.RFC3339))
		q.Set("count", strconv.Itoa(bitmexPage))

		var rows []bitmexBin
		if err := b.rest.call(ctx, http.MethodGet, "/trade/bucketed", q, nil, false, &rows); err != nil {
			return nil, err
		}
		bars := make([]models.Bar, 0, len(rows))
		for _, r := range rows {
			bars = append(bars, r.bar(tf))
		}
		return bars, nil
	})
}

func (b *Bitmex) StreamKlines(ctx context.Context, pair, timeframe string) (<-chan models.Bar, <-chan error) {
	tf := models.TimeframeDuration(timeframe)
	if !bitmexBins[timeframe] {
		out := make(chan models.Bar)
		errs := make(chan error, 1)
		errs <- errors.Wrapf(ErrTimeframe, "bitmex %q", timeframe)
		close(out)
		close(errs)
		return out, errs
	}
	table := "tradeBin" + timeframe
	return streamWS(ctx, b.dialer, wsSpec{
		name:      "bitmex " + table + ":" + pair,
		url:       b.ws + "?subscribe=" + table + ":" + pair,
		ping:      "ping",
		pingEvery: 20 * time.Second,
		parse: func(msg []byte) ([]models.Bar, error) {
			var f struct {
				Table  string      `json:"table"`
				Action string      `json:"action"`
				Data   []bitmexBin `json:"data"`
			}
			if err := sonic.Unmarshal(msg, &f); err != nil {
				return nil, err
			}
			if f.Table != table || f.Action != "insert" {
				return nil, nil
			}
			bars := make([]models.Bar, 0, len(f.Data))
			for _, d := range f.Data {
				bars = append(bars, d.bar(tf))
			}
			return bars, nil
		},
	}, b.cfg.MaxReconnects)
}

// Balance is the XBT wallet balance.
func (b *Bitmex) Balance(ctx context.Context) (float64, error) {
	q := url.Values{}
	q.Set("currency", "XBt")
	var resp struct {
		WalletBalance int64 `json:"walletBalance"`
	}
	if err := b.rest.call(ctx, http.MethodGet, "/user/margin", q, nil, true, &resp); err != nil {
		return 0, err
	}
	return float64(resp.WalletBalance) / satoshi, nil
}

// MarketOrder trades whole contracts; qty is rounded down.
func (b *Bitmex) MarketOrder(ctx context.Context, pair string, side models.Side, qty float64, clientID string) (models.Order, error) {
	lots := helper.RoundDownToTick(qty, 1)
	if lots < 1 {
		return models.Order{}, errors.Errorf("bitmex order of %v is below one contract", qty)
	}
	body := map[string]any{
		"symbol":   pair,
		"side":     bitmexSide(side),
		"orderQty": lots,
		"ordType":  "Market",
		"clOrdID":  clientID,
	}
	var resp struct {
		OrderID   string    `json:"orderID"`
		AvgPx     float64   `json:"avgPx"`
		CumQty    float64   `json:"cumQty"`
		Timestamp time.Time `json:"timestamp"`
	}
	if err := b.rest.call(ctx, http.MethodPost, "/order", nil, body, true, &resp); err != nil {
		return models.Order{}, err
	}
	return models.Order{
		ID:       resp.OrderID,
		ClientID: clientID,
		Pair:     pair,
		Side:     side,
		Qty:      resp.CumQty,
		Price:    resp.AvgPx,
		FilledAt: resp.Timestamp,
	}, nil
}

func bitmexSide(s models.Side) string {
	if s == models.SideSell {
		return "Sell"
	}
	return "Buy"
}

func (b *Bitmex) CancelAll(ctx context.Context, pair string) error {
	return b.rest.call(ctx, http.MethodDelete, "/order/all", nil, map[string]any{"symbol": pair}, true, nil)
}

func (b *Bitmex) Position(ctx context.Context, pair string) (models.Position, error) {
	q := url.Values{}
	q.Set("filter", `{"symbol":"`+pair+`"}`)
	var rows []struct {
		CurrentQty    float64 `json:"currentQty"`
		AvgEntryPrice float64 `json:"avgEntryPrice"`
	}
	if err := b.rest.call(ctx, http.MethodGet, "/position", q, nil, true, &rows); err != nil {
		return models.Position{}, err
	}
	pos := models.Position{Pair: pair}
	if len(rows) > 0 {
		pos.Size = rows[0].CurrentQty
		pos.EntryPrice = rows[0].AvgEntryPrice
	}
	return pos, nil
}
