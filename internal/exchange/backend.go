// Package exchange defines the execution backend a strategy runs against.
// Live, paper and backtest variants live in subpackages.
package exchange

import (
	"context"

	"algo_bot/internal/models"

	"github.com/pkg/errors"
)

var (
	// ErrUndefinedProfitFactor means no losing trade closed, so gross profit
	// over gross loss has no value.
	ErrUndefinedProfitFactor = errors.New("profit factor undefined: no losing trades")
	ErrStopped               = errors.New("backend stopped")
)

// Orders is what a strategy may do to its backend.
type Orders interface {
	// Entry opens a position in the given direction. An existing position in
	// the same direction is kept as is; an opposite one is reversed.
	Entry(ctx context.Context, id string, long bool, qty float64) error
	// Exit closes the whole position at market.
	Exit(ctx context.Context, id string) error
	CancelAll(ctx context.Context) error
	Position() models.Position
}

// StrategyFunc is invoked once per closed bar with the lookback window.
type StrategyFunc func(ctx context.Context, orders Orders, s models.Series)

// Backend is the capability set shared by live, paper and backtest.
type Backend interface {
	Name() string
	SetLookback(n int)
	// OnUpdate registers fn for bars of timeframe. Backtests replay all bars
	// before returning; streaming backends return once the feed is attached.
	OnUpdate(ctx context.Context, timeframe string, fn StrategyFunc) error
	Balance(ctx context.Context) (float64, error)
	// ShowResult blocks until the run is over: end of replay for backtests,
	// feed loss or Stop for streaming backends.
	ShowResult(ctx context.Context) error
	// Stop halts the feed. It is safe to call more than once.
	Stop()
	CancelAll(ctx context.Context) error
}

// Reporter is implemented by backends that keep trade aggregates.
type Reporter interface {
	Report() Report
}

// Report aggregates closed trades.
type Report struct {
	Trades    int
	Wins      int
	Losses    int
	WinProfit float64
	LoseLoss  float64
	Balance   float64
}

// ProfitFactor is WinProfit / LoseLoss.
func (r Report) ProfitFactor() (float64, error) {
	if r.LoseLoss == 0 {
		return 0, ErrUndefinedProfitFactor
	}
	return r.WinProfit / r.LoseLoss, nil
}
