// Package backtest replays historical bars through a strategy and fills
// its orders on a simulated book.
package backtest

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"algo_bot/internal/exchange"
	"algo_bot/internal/exchange/sim"
	"algo_bot/internal/models"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var ErrStrategyPanic = errors.New("strategy panicked")

// Loader resolves the bars to replay; history.Cache satisfies it.
type Loader interface {
	Bars(ctx context.Context, pair, timeframe string, start, end time.Time) ([]models.Bar, error)
}

// Static replays a fixed slice regardless of timeframe or range. Parameter
// search shares one slice across trials this way.
type Static []models.Bar

func (s Static) Bars(context.Context, string, string, time.Time, time.Time) ([]models.Bar, error) {
	return s, nil
}

type Config struct {
	Exchange models.Exchange
	Pair     string
	Start    time.Time
	End      time.Time
	Balance  float64
	FeeRate  float64
}

type Backtest struct {
	cfg      Config
	loader   Loader
	log      *zap.Logger
	book     *sim.Book
	lookback int
	bars     int
	stopped  atomic.Bool
}

var (
	_ exchange.Backend  = (*Backtest)(nil)
	_ exchange.Reporter = (*Backtest)(nil)
)

func New(cfg Config, loader Loader, log *zap.Logger) *Backtest {
	if log == nil {
		log = zap.NewNop()
	}
	return &Backtest{
		cfg:      cfg,
		loader:   loader,
		log:      log,
		book:     sim.NewBook(cfg.Pair, cfg.Balance, cfg.FeeRate),
		lookback: 100,
	}
}

func (b *Backtest) Name() string { return "backtest/" + string(b.cfg.Exchange) }

func (b *Backtest) SetLookback(n int) {
	if n > 0 {
		b.lookback = n
	}
}

// OnUpdate replays every bar and returns when the replay is done. fn first
// runs once the window holds lookback bars.
func (b *Backtest) OnUpdate(ctx context.Context, timeframe string, fn exchange.StrategyFunc) (err error) {
	bars, err := b.loader.Bars(ctx, b.cfg.Pair, timeframe, b.cfg.Start, b.cfg.End)
	if err != nil {
		return errors.Wrap(err, "load bars")
	}
	if len(bars) < b.lookback {
		return errors.Errorf("%d bars, lookback needs %d", len(bars), b.lookback)
	}

	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrap(ErrStrategyPanic, fmt.Sprint(r))
		}
	}()

	for i := range bars {
		if b.stopped.Load() {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		b.book.Mark(bars[i])
		b.bars++
		if i+1 < b.lookback {
			continue
		}
		fn(ctx, b.book, models.SeriesFromBars(bars[:i+1], b.lookback))
	}
	return nil
}

func (b *Backtest) Balance(ctx context.Context) (float64, error) {
	return b.book.Balance(ctx)
}

func (b *Backtest) Report() exchange.Report {
	return b.book.Report()
}

// ShowResult logs the aggregates of the finished replay.
func (b *Backtest) ShowResult(context.Context) error {
	r := b.Report()
	fields := []zap.Field{
		zap.String("backend", b.Name()),
		zap.String("pair", b.cfg.Pair),
		zap.Int("bars", b.bars),
		zap.Int("trades", r.Trades),
		zap.Int("wins", r.Wins),
		zap.Int("losses", r.Losses),
		zap.Float64("win_profit", r.WinProfit),
		zap.Float64("lose_loss", r.LoseLoss),
		zap.Float64("balance", r.Balance),
	}
	if pf, err := r.ProfitFactor(); err == nil {
		fields = append(fields, zap.Float64("profit_factor", pf))
	}
	b.log.Info("backtest result", fields...)
	return nil
}

func (b *Backtest) Stop() { b.stopped.Store(true) }

func (b *Backtest) CancelAll(ctx context.Context) error {
	return b.book.CancelAll(ctx)
}
