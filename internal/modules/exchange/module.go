package exchange

import (
	"context"

	"algo_bot/internal/config"
	"algo_bot/internal/exchange/factory"
	"algo_bot/internal/search"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

func NewFactory(cfg *config.Config, log *zap.Logger) *factory.Factory {
	return factory.New(factory.Config{
		Balance:       cfg.Backtest.Balance,
		FeeRate:       cfg.Backtest.FeeRate,
		HistoryDays:   cfg.Backtest.Days,
		CacheDir:      cfg.Backtest.CacheDir,
		RateLimit:     cfg.Venue.RateLimit,
		MaxReconnects: cfg.Venue.MaxReconnects,
	}, log.Named("exchange"))
}

// NewTrialStore opens the sqlite trial log when one is configured and
// returns nil otherwise.
func NewTrialStore(lc fx.Lifecycle, cfg *config.Config) (*search.TrialStore, error) {
	if cfg.Search.TrialsDB == "" {
		return nil, nil
	}
	s, err := search.OpenTrialStore(context.Background(), cfg.Search.TrialsDB)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return s.Close() },
	})
	return s, nil
}

func Module() fx.Option {
	return fx.Module("exchange",
		fx.Provide(
			NewFactory,
			NewTrialStore,
		),
	)
}
