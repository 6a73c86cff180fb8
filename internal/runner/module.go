package runner

import (
	"context"

	"algo_bot/internal/config"
	"algo_bot/internal/exchange/factory"
	"algo_bot/internal/modules/health/service"
	"algo_bot/internal/notify"
	"algo_bot/internal/search"
	"algo_bot/internal/session"
	"algo_bot/internal/strategy"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

type in struct {
	fx.In

	Config   *config.Config
	Factory  *factory.Factory
	Registry *strategy.Registry
	Store    session.Store
	Notifier notify.Notifier
	Health   *service.State     `optional:"true"`
	Trials   *search.TrialStore `optional:"true"`
	Log      *zap.Logger
}

func newRunner(p in) *Runner {
	env := search.FactoryEnv{Factory: p.Factory}
	log := p.Log.Named("runner")
	return New(Deps{
		Config:   p.Config,
		Backends: p.Factory,
		Search: func(cfg search.Config, def strategy.Definition) Searcher {
			return search.New(cfg, def, env, p.Trials, p.Log.Named("search"))
		},
		Registry: p.Registry,
		Store:    p.Store,
		Notifier: p.Notifier,
		Health:   p.Health,
		Log:      log,
	})
}

// statusCommand answers /status from the chat when the notifier can.
func statusCommand(n notify.Notifier, r *Runner) {
	if s, ok := n.(interface{ SetStatus(notify.StatusFunc) }); ok {
		s.SetStatus(func() string { return r.Status().String() })
	}
}

// run starts the run after every module is up and shuts the app down when
// it ends on its own, with exit code 1 on failure.
func run(lc fx.Lifecycle, sd fx.Shutdowner, r *Runner, log *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				code := 0
				if err := r.Run(ctx); err != nil {
					log.Error("[RUNNER] run failed", zap.Error(err))
					code = 1
				}
				_ = sd.Shutdown(fx.ExitCode(code))
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			err := r.Stop(stopCtx)
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return err
		},
	})
}

func Module() fx.Option {
	return fx.Module("runner",
		fx.Provide(newRunner),
		fx.Invoke(statusCommand, run),
	)
}
