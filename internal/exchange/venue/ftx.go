package venue

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"algo_bot/internal/models"

	"github.com/pkg/errors"
)

const (
	ftxREST = "https://ftx.com/api"
	ftxPage = 1500
)

// Ftx has no testnet and no kline channel; the stream polls candles.
type Ftx struct {
	cfg  Config
	rest *rest
}

func NewFtx(cfg Config) *Ftx {
	cfg = cfg.withDefaults()
	base := ftxREST
	if cfg.REST != "" {
		base = cfg.REST
	}
	f := &Ftx{cfg: cfg}
	var sign signer
	if cfg.Account.HasKeys() {
		sign = f.sign
	}
	f.rest = newREST(base, cfg.RateLimit, sign)
	return f
}

func (f *Ftx) Name() models.Exchange { return models.ExchangeFtx }

// sign: hex(hmac(secret, ts + method + path?query + body)).
func (f *Ftx) sign(req *http.Request, payload []byte) error {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	msg := ts + req.Method + req.URL.RequestURI() + string(payload)
	req.Header.Set("FTX-KEY", f.cfg.Account.APIKey)
	req.Header.Set("FTX-TS", ts)
	req.Header.Set("FTX-SIGN", hmacHex(f.cfg.Account.APISecret, msg))
	return nil
}

type ftxEnvelope[T any] struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Result  T      `json:"result"`
}

func ftxCall[T any](ctx context.Context, f *Ftx, method, path string, q url.Values, body any, signed bool) (T, error) {
	var env ftxEnvelope[T]
	if err := f.rest.call(ctx, method, path, q, body, signed, &env); err != nil {
		return env.Result, err
	}
	if !env.Success {
		return env.Result, errors.Errorf("ftx %s: %s", path, env.Error)
	}
	return env.Result, nil
}

type ftxCandle struct {
	StartTime time.Time `json:"startTime"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

func (f *Ftx) candles(ctx context.Context, pair string, tf time.Duration, from, to time.Time) ([]models.Bar, error) {
	q := url.Values{}
	q.Set("resolution", strconv.FormatInt(int64(tf/time.Second), 10))
	q.Set("start_time", strconv.FormatInt(from.Unix(), 10))
	q.Set("end_time", strconv.FormatInt(to.Unix(), 10))

	rows, err := ftxCall[[]ftxCandle](ctx, f, http.MethodGet, "/markets/"+pair+"/candles", q, nil, false)
	if err != nil {
		return nil, err
	}
	bars := make([]models.Bar, 0, len(rows))
	for _, r := range rows {
		bars = append(bars, models.Bar{
			Start:  r.StartTime.UTC(),
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		})
	}
	return bars, nil
}

func (f *Ftx) Klines(ctx context.Context, pair, timeframe string, start, end time.Time) ([]models.Bar, error) {
	tf := models.TimeframeDuration(timeframe)
	if tf == 0 {
		return nil, errors.Wrapf(ErrTimeframe, "ftx %q", timeframe)
	}
	return paginate(ctx, start, end, tf, ftxPage, func(from, to time.Time) ([]models.Bar, error) {
		return f.candles(ctx, pair, tf, from, to)
	})
}

func (f *Ftx) StreamKlines(ctx context.Context, pair, timeframe string) (<-chan models.Bar, <-chan error) {
	tf := models.TimeframeDuration(timeframe)
	every := tf / 6
	if every < 5*time.Second {
		every = 5 * time.Second
	}
	return pollKlines(ctx, "ftx "+pair, tf, every, f.cfg.MaxReconnects,
		func(ctx context.Context, from, to time.Time) ([]models.Bar, error) {
			return f.candles(ctx, pair, tf, from, to)
		})
}

func (f *Ftx) Balance(ctx context.Context) (float64, error) {
	rows, err := ftxCall[[]struct {
		Coin  string  `json:"coin"`
		Total float64 `json:"total"`
	}](ctx, f, http.MethodGet, "/wallet/balances", nil, nil, true)
	if err != nil {
		return 0, err
	}
	for _, r := range rows {
		if r.Coin == "USD" {
			return r.Total, nil
		}
	}
	return 0, nil
}

func (f *Ftx) MarketOrder(ctx context.Context, pair string, side models.Side, qty float64, clientID string) (models.Order, error) {
	body := map[string]any{
		"market":   pair,
		"side":     ftxSide(side),
		"price":    nil,
		"type":     "market",
		"size":     qty,
		"clientId": clientID,
	}
	res, err := ftxCall[struct {
		ID           int64     `json:"id"`
		AvgFillPrice float64   `json:"avgFillPrice"`
		FilledSize   float64   `json:"filledSize"`
		CreatedAt    time.Time `json:"createdAt"`
	}](ctx, f, http.MethodPost, "/orders", nil, body, true)
	if err != nil {
		return models.Order{}, err
	}
	return models.Order{
		ID:       strconv.FormatInt(res.ID, 10),
		ClientID: clientID,
		Pair:     pair,
		Side:     side,
		Qty:      res.FilledSize,
		Price:    res.AvgFillPrice,
		FilledAt: res.CreatedAt,
	}, nil
}

func ftxSide(s models.Side) string {
	if s == models.SideSell {
		return "sell"
	}
	return "buy"
}

func (f *Ftx) CancelAll(ctx context.Context, pair string) error {
	_, err := ftxCall[any](ctx, f, http.MethodDelete, "/orders", nil, map[string]any{"market": pair}, true)
	return err
}

func (f *Ftx) Position(ctx context.Context, pair string) (models.Position, error) {
	rows, err := ftxCall[[]struct {
		Future     string  `json:"future"`
		NetSize    float64 `json:"netSize"`
		EntryPrice float64 `json:"entryPrice"`
	}](ctx, f, http.MethodGet, "/positions", nil, nil, true)
	if err != nil {
		return models.Position{}, err
	}
	pos := models.Position{Pair: pair}
	for _, r := range rows {
		if r.Future == pair {
			pos.Size = r.NetSize
			pos.EntryPrice = r.EntryPrice
		}
	}
	return pos, nil
}
