package strategy

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Logged strategies accept the run logger.
type Logged interface {
	WithLogger(l *zap.Logger)
}

func Module() fx.Option {
	return fx.Module("strategy",
		fx.Provide(Builtin),
	)
}
