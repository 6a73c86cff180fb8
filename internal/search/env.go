package search

import (
	"algo_bot/internal/exchange/factory"
	"algo_bot/internal/models"
)

// FactoryEnv runs trials on the backend factory's backtests.
type FactoryEnv struct {
	*factory.Factory
}

func (e FactoryEnv) NewBacktest(ex models.Exchange, pair string, bars []models.Bar) Backtester {
	return e.Backtest(ex, pair, bars)
}
