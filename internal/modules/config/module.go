package config

import (
	"context"
	"os"

	"algo_bot/internal/config"
	"algo_bot/pkg/logger"
	"algo_bot/pkg/tracing"

	"github.com/opentracing/opentracing-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Args are the command-line arguments the configuration is parsed from.
type Args []string

func NewConfig(args Args) (*config.Config, error) {
	return config.Load(args)
}

func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	return logger.New(cfg.Log)
}

func NewTracer(lc fx.Lifecycle, cfg *config.Config) (opentracing.Tracer, error) {
	tracing.SetServiceName(cfg.Log.Service)
	tracer, closer, err := tracing.InitTracer(cfg.Tracing)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			closer()
			return nil
		},
	})
	return tracer, nil
}

// Module reads the process arguments; tests supply Args themselves through
// Options.
func Module() fx.Option {
	return Options(Args(os.Args[1:]))
}

func Options(args Args) fx.Option {
	return fx.Module("config",
		fx.Supply(args),
		fx.Provide(
			NewConfig,
			NewLogger,
			NewTracer,
		),
		// spans are started from the global tracer
		fx.Invoke(func(opentracing.Tracer) {}),
	)
}
