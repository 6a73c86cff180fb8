package telegram

import (
	"context"

	"algo_bot/internal/config"
	"algo_bot/internal/notify"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewNotifier talks to Telegram when a token and chat are configured and
// only logs otherwise.
func NewNotifier(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (notify.Notifier, error) {
	if cfg.Telegram.Token == "" || cfg.Telegram.ChatID == 0 {
		return notify.NewStdout(log.Named("notify")), nil
	}
	t, err := notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.Endpoint, cfg.Telegram.ChatID, log.Named("telegram"))
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			// polling outlives the start context
			return t.Start(context.Background())
		},
		OnStop: func(context.Context) error {
			t.Stop()
			return nil
		},
	})
	return t, nil
}

func Module() fx.Option {
	return fx.Module("telegram",
		fx.Provide(NewNotifier),
	)
}
