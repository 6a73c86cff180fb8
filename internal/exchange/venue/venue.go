// Package venue talks to the exchanges: historical klines, live kline
// streams and signed account calls.
package venue

import (
	"context"
	"time"

	"algo_bot/internal/models"

	"github.com/pkg/errors"
)

var (
	ErrTimeframe = errors.New("timeframe not supported by venue")
	ErrNoKeys    = errors.New("account has no api keys")
)

// MarketData serves bars; the stream yields closed bars only.
type MarketData interface {
	Klines(ctx context.Context, pair, timeframe string, start, end time.Time) ([]models.Bar, error)
	StreamKlines(ctx context.Context, pair, timeframe string) (<-chan models.Bar, <-chan error)
}

// Account covers the signed calls a live backend needs.
type Account interface {
	Balance(ctx context.Context) (float64, error)
	MarketOrder(ctx context.Context, pair string, side models.Side, qty float64, clientID string) (models.Order, error)
	CancelAll(ctx context.Context, pair string) error
	Position(ctx context.Context, pair string) (models.Position, error)
}

type Venue interface {
	MarketData
	Account
	Name() models.Exchange
}

// Config selects endpoints and limits. Empty REST/WS pick the production or
// testnet defaults of the venue.
type Config struct {
	Account       models.Account
	Testnet       bool
	REST          string
	WS            string
	RateLimit     float64 // requests per second
	MaxReconnects int
}

func (c Config) withDefaults() Config {
	if c.RateLimit <= 0 {
		c.RateLimit = 5
	}
	if c.MaxReconnects <= 0 {
		c.MaxReconnects = 8
	}
	return c
}

func New(ex models.Exchange, cfg Config) (Venue, error) {
	cfg = cfg.withDefaults()
	switch ex {
	case models.ExchangeBinance:
		return NewBinance(cfg), nil
	case models.ExchangeBitmex:
		return NewBitmex(cfg), nil
	case models.ExchangeFtx:
		return NewFtx(cfg), nil
	}
	return nil, errors.Wrapf(models.ErrUnknownExchange, "%q", ex)
}

// paginate walks [start, end) in windows of page bars and keeps bars
// strictly increasing in time.
func paginate(
	ctx context.Context,
	start, end time.Time,
	tf time.Duration,
	page int,
	fetch func(from, to time.Time) ([]models.Bar, error),
) ([]models.Bar, error) {
	var out []models.Bar
	for from := start; from.Before(end); {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		to := from.Add(time.Duration(page) * tf)
		if to.After(end) {
			to = end
		}
		bars, err := fetch(from, to)
		if err != nil {
			return nil, err
		}
		next := to
		for _, b := range bars {
			if b.Start.Before(start) || !b.Start.Before(end) {
				continue
			}
			if n := len(out); n > 0 && !b.Start.After(out[n-1].Start) {
				continue
			}
			out = append(out, b)
			if s := b.Start.Add(tf); s.After(next) {
				next = s
			}
		}
		from = next
	}
	return out, nil
}
