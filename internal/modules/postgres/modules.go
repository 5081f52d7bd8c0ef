package postgres

import (
	"context"
	"fmt"

	"crypto_bot/internal/modules/config"
	"crypto_bot/pkg/db"

	"go.uber.org/fx"
)

// Module — пул Postgres для store.driver=postgres; для файлового хранилища отдаёт nil.
func Module() fx.Option {
	return fx.Module("postgres",
		fx.Provide(
			func(lc fx.Lifecycle, ctx context.Context, cfg *config.Config) (*db.PgTxManager, error) {
				if cfg.Store.Driver != "postgres" {
					return nil, nil
				}
				poolMaster, err := db.NewPool(ctx, db.PoolConfig{
					DSN:      cfg.Store.DSN,
					MaxConns: cfg.Store.MaxConns,
				})
				if err != nil {
					return nil, fmt.Errorf("failed to create poolMaster: %w", err)
				}

				txm := db.NewPgTxManager(poolMaster)
				lc.Append(fx.Hook{
					OnStop: func(context.Context) error {
						txm.Close()
						return nil
					},
				})
				return txm, nil
			},
		),
	)
}
