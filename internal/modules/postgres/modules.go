package postgres

import (
	"context"
	"fmt"

	"algo_bot/internal/config"
	"algo_bot/internal/session"
	"algo_bot/pkg/db"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewTxManager connects when a DSN is configured and returns nil otherwise.
func NewTxManager(lc fx.Lifecycle, cfg *config.Config) (*db.PgTxManager, error) {
	if cfg.DatabaseDSN == "" {
		return nil, nil
	}
	poolMaster, err := db.NewPool(context.Background(), db.PoolConfig{
		DSN: cfg.DatabaseDSN,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create poolMaster: %w", err)
	}

	tx := db.NewPgTxManager(poolMaster)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			tx.Close()
			return nil
		},
	})
	return tx, nil
}

// NewSessionStore picks the session backend: the --session file first, a
// postgres row when a DSN and a session name are set, nothing otherwise.
func NewSessionStore(cfg *config.Config, tx *db.PgTxManager, log *zap.Logger) (session.Store, error) {
	switch {
	case cfg.SessionFile != "":
		return session.OpenFile(cfg.SessionFile)
	case tx != nil && cfg.SessionName != "":
		s := session.NewPgStore(tx, cfg.SessionName)
		if err := s.Migrate(context.Background()); err != nil {
			return nil, err
		}
		return s, nil
	}
	log.Debug("session is not persisted")
	return session.NopStore{}, nil
}

func Module() fx.Option {
	return fx.Module("postgres",
		fx.Provide(
			NewTxManager,
			NewSessionStore,
		),
	)
}
