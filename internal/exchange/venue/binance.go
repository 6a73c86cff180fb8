package venue

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"algo_bot/internal/models"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

const (
	binanceREST        = "https://fapi.binance.com"
	binanceWS          = "wss://fstream.binance.com/ws"
	binanceTestnetREST = "https://testnet.binancefuture.com"
	binanceTestnetWS   = "wss://stream.binancefuture.com/ws"
	binancePage        = 1500
)

// Binance is the USDT-M futures API.
type Binance struct {
	cfg    Config
	rest   *rest
	ws     string
	dialer *websocket.Dialer
}

func NewBinance(cfg Config) *Binance {
	cfg = cfg.withDefaults()
	base, ws := binanceREST, binanceWS
	if cfg.Testnet {
		base, ws = binanceTestnetREST, binanceTestnetWS
	}
	if cfg.REST != "" {
		base = cfg.REST
	}
	if cfg.WS != "" {
		ws = cfg.WS
	}

	b := &Binance{cfg: cfg, ws: ws, dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second}}
	var sign signer
	if cfg.Account.HasKeys() {
		sign = b.sign
	}
	b.rest = newREST(base, cfg.RateLimit, sign)
	return b
}

func (b *Binance) Name() models.Exchange { return models.ExchangeBinance }

// sign appends timestamp and signature to the query string.
func (b *Binance) sign(req *http.Request, _ []byte) error {
	q := req.URL.Query()
	q.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	raw := q.Encode()
	req.URL.RawQuery = raw + "&signature=" + hmacHex(b.cfg.Account.APISecret, raw)
	req.Header.Set("X-MBX-APIKEY", b.cfg.Account.APIKey)
	return nil
}

func (b *Binance) Klines(ctx context.Context, pair, timeframe string, start, end time.Time) ([]models.Bar, error) {
	tf := models.TimeframeDuration(timeframe)
	if tf == 0 {
		return nil, errors.Wrapf(ErrTimeframe, "binance %q", timeframe)
	}
	return paginate(ctx, start, end, tf, binancePage, func(from, to time.Time) ([]models.Bar, error) {
		q := url.Values{}
		q.Set("symbol", strings.ToUpper(pair))
		q.Set("interval", timeframe)
		q.Set("startTime", strconv.FormatInt(from.UnixMilli(), 10))
		q.Set("endTime", strconv.FormatInt(to.UnixMilli()-1, 10))
		q.Set("limit", strconv.Itoa(binancePage))

		var rows [][]any
		if err := b.rest.call(ctx, http.MethodGet, "/fapi/v1/klines", q, nil, false, &rows); err != nil {
			return nil, err
		}
		bars := make([]models.Bar, 0, len(rows))
		for _, r := range rows {
			if len(r) < 6 {
				continue
			}
			bars = append(bars, models.Bar{
				Start:  time.UnixMilli(toInt64(r[0])).UTC(),
				Open:   toFloat(r[1]),
				High:   toFloat(r[2]),
				Low:    toFloat(r[3]),
				Close:  toFloat(r[4]),
				Volume: toFloat(r[5]),
			})
		}
		return bars, nil
	})
}

type binanceKlineFrame struct {
	Event string `json:"e"`
	K     struct {
		Start  int64  `json:"t"`
		Open   string `json:"o"`
		High   string `json:"h"`
		Low    string `json:"l"`
		Close  string `json:"c"`
		Volume string `json:"v"`
		Closed bool   `json:"x"`
	} `json:"k"`
}

func parseBinanceKline(msg []byte) ([]models.Bar, error) {
	var f binanceKlineFrame
	if err := sonic.Unmarshal(msg, &f); err != nil {
		return nil, err
	}
	if f.Event != "kline" || !f.K.Closed {
		return nil, nil
	}
	return []models.Bar{{
		Start:  time.UnixMilli(f.K.Start).UTC(),
		Open:   toFloat(f.K.Open),
		High:   toFloat(f.K.High),
		Low:    toFloat(f.K.Low),
		Close:  toFloat(f.K.Close),
		Volume: toFloat(f.K.Volume),
	}}, nil
}

func (b *Binance) StreamKlines(ctx context.Context, pair, timeframe string) (<-chan models.Bar, <-chan error) {
	stream := strings.ToLower(pair) + "@kline_" + timeframe
	return streamWS(ctx, b.dialer, wsSpec{
		name:  "binance " + stream,
		url:   b.ws + "/" + stream,
		parse: parseBinanceKline,
	}, b.cfg.MaxReconnects)
}

func (b *Binance) Balance(ctx context.Context) (float64, error) {
	var rows []struct {
		Asset   string `json:"asset"`
		Balance string `json:"balance"`
	}
	if err := b.rest.call(ctx, http.MethodGet, "/fapi/v2/balance", url.Values{}, nil, true, &rows); err != nil {
		return 0, err
	}
	for _, r := range rows {
		if r.Asset == "USDT" {
			return toFloat(r.Balance), nil
		}
	}
	return 0, nil
}

func (b *Binance) MarketOrder(ctx context.Context, pair string, side models.Side, qty float64, clientID string) (models.Order, error) {
	q := url.Values{}
	q.Set("symbol", strings.ToUpper(pair))
	q.Set("side", string(side))
	q.Set("type", "MARKET")
	q.Set("quantity", formatQty(qty))
	q.Set("newClientOrderId", clientID)

	var resp struct {
		OrderID     int64  `json:"orderId"`
		AvgPrice    string `json:"avgPrice"`
		ExecutedQty string `json:"executedQty"`
		UpdateTime  int64  `json:"updateTime"`
	}
	if err := b.rest.call(ctx, http.MethodPost, "/fapi/v1/order", q, nil, true, &resp); err != nil {
		return models.Order{}, err
	}
	return models.Order{
		ID:       strconv.FormatInt(resp.OrderID, 10),
		ClientID: clientID,
		Pair:     pair,
		Side:     side,
		Qty:      toFloat(resp.ExecutedQty),
		Price:    toFloat(resp.AvgPrice),
		FilledAt: time.UnixMilli(resp.UpdateTime).UTC(),
	}, nil
}

func (b *Binance) CancelAll(ctx context.Context, pair string) error {
	q := url.Values{}
	q.Set("symbol", strings.ToUpper(pair))
	return b.rest.call(ctx, http.MethodDelete, "/fapi/v1/allOpenOrders", q, nil, true, nil)
}

func (b *Binance) Position(ctx context.Context, pair string) (models.Position, error) {
	q := url.Values{}
	q.Set("symbol", strings.ToUpper(pair))
	var rows []struct {
		PositionAmt string `json:"positionAmt"`
		EntryPrice  string `json:"entryPrice"`
	}
	if err := b.rest.call(ctx, http.MethodGet, "/fapi/v2/positionRisk", q, nil, true, &rows); err != nil {
		return models.Position{}, err
	}
	pos := models.Position{Pair: pair}
	for _, r := range rows {
		pos.Size += toFloat(r.PositionAmt)
		if p := toFloat(r.EntryPrice); p != 0 {
			pos.EntryPrice = p
		}
	}
	return pos, nil
}
