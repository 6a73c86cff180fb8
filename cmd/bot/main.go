package main

import (
	"algo_bot/internal/modules/config"
	"algo_bot/internal/modules/exchange"
	"algo_bot/internal/modules/health"
	"algo_bot/internal/modules/postgres"
	telegram "algo_bot/internal/modules/telegram_bot"
	"algo_bot/internal/runner"
	"algo_bot/internal/strategy"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	fx.New(
		config.Module(),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		postgres.Module(),
		telegram.Module(),
		health.Module(),
		exchange.Module(),
		strategy.Module(),
		runner.Module(),
	).Run()
}
