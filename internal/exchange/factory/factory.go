// Package factory builds the one backend a run trades on.
package factory

import (
	"context"
	"time"

	"algo_bot/internal/exchange"
	"algo_bot/internal/exchange/backtest"
	"algo_bot/internal/exchange/history"
	"algo_bot/internal/exchange/live"
	"algo_bot/internal/exchange/venue"
	"algo_bot/internal/models"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Config struct {
	// Balance seeds the simulated wallet of paper and backtest runs.
	Balance float64
	FeeRate float64
	// HistoryDays is the backtest window ending at End (now when zero).
	HistoryDays int
	End         time.Time
	CacheDir    string

	RateLimit     float64
	MaxReconnects int
	// REST and WS override venue endpoints, keyed by exchange.
	REST map[models.Exchange]string
	WS   map[models.Exchange]string
}

// Spec is the construction contract of a backend.
type Spec struct {
	Mode     models.Mode
	Exchange models.Exchange
	Account  models.Account
	Pair     string
	Demo     bool
}

type Factory struct {
	cfg Config
	log *zap.Logger
}

func New(cfg Config, log *zap.Logger) *Factory {
	if cfg.HistoryDays <= 0 {
		cfg.HistoryDays = 90
	}
	if cfg.Balance <= 0 {
		cfg.Balance = 10000
	}
	return &Factory{cfg: cfg, log: log}
}

func (f *Factory) venue(ex models.Exchange, acc models.Account, demo bool) (venue.Venue, error) {
	return venue.New(ex, venue.Config{
		Account:       acc,
		Testnet:       demo,
		REST:          f.cfg.REST[ex],
		WS:            f.cfg.WS[ex],
		RateLimit:     f.cfg.RateLimit,
		MaxReconnects: f.cfg.MaxReconnects,
	})
}

// Backend builds a paper, backtest or live backend. Optimize runs build
// their backtests through Backtest instead.
func (f *Factory) Backend(_ context.Context, s Spec) (exchange.Backend, error) {
	if _, err := models.ParseExchange(string(s.Exchange)); err != nil {
		return nil, err
	}
	v, err := f.venue(s.Exchange, s.Account, s.Demo)
	if err != nil {
		return nil, err
	}
	log := f.log.With(zap.String("exchange", string(s.Exchange)), zap.String("pair", s.Pair))

	switch s.Mode {
	case models.ModePaper:
		return live.NewPaper(s.Exchange, s.Pair, v, f.cfg.Balance, f.cfg.FeeRate, log), nil
	case models.ModeBacktest:
		start, end := f.window()
		return backtest.New(f.backtestConfig(s.Exchange, s.Pair, start, end), f.history(s.Exchange, v), log), nil
	case models.ModeLive:
		if !s.Account.HasKeys() {
			return nil, errors.Wrapf(venue.ErrNoKeys, "account %q", s.Account.Name)
		}
		return live.NewLive(v, s.Pair, log), nil
	}
	return nil, errors.Errorf("no backend for mode %q", s.Mode)
}

// LoadBars fetches the backtest window once so parameter search can share
// it across trials.
func (f *Factory) LoadBars(ctx context.Context, ex models.Exchange, acc models.Account, pair, timeframe string) ([]models.Bar, error) {
	v, err := f.venue(ex, acc, false)
	if err != nil {
		return nil, err
	}
	start, end := f.window()
	return f.history(ex, v).Bars(ctx, pair, timeframe, start, end)
}

// Backtest builds a fresh backtest over bars.
func (f *Factory) Backtest(ex models.Exchange, pair string, bars []models.Bar) *backtest.Backtest {
	var start, end time.Time
	if n := len(bars); n > 0 {
		start, end = bars[0].Start, bars[n-1].Start
	}
	return backtest.New(f.backtestConfig(ex, pair, start, end), backtest.Static(bars), zap.NewNop())
}

func (f *Factory) backtestConfig(ex models.Exchange, pair string, start, end time.Time) backtest.Config {
	return backtest.Config{
		Exchange: ex,
		Pair:     pair,
		Start:    start,
		End:      end,
		Balance:  f.cfg.Balance,
		FeeRate:  f.cfg.FeeRate,
	}
}

func (f *Factory) history(ex models.Exchange, src history.Source) *history.Cache {
	return history.NewCache(f.cfg.CacheDir, ex, src, f.log)
}

func (f *Factory) window() (time.Time, time.Time) {
	end := f.cfg.End
	if end.IsZero() {
		end = time.Now().UTC().Truncate(time.Minute)
	}
	return end.AddDate(0, 0, -f.cfg.HistoryDays), end
}
