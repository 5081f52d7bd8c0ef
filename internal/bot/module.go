package bot

import (
	"context"
	"errors"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"crypto_bot/internal/broadcaster"
	"crypto_bot/internal/exchange"
	"crypto_bot/internal/gateway"
	"crypto_bot/internal/modules/config"
	"crypto_bot/internal/modules/health/service"
	"crypto_bot/internal/notify"
	"crypto_bot/internal/store"
	"crypto_bot/pkg/db"
)

func Module() fx.Option {
	return fx.Module("bot",
		fx.Provide(
			NewStore,
			func(cfg *config.Config) gateway.HistoryClient {
				return exchange.NewClient(cfg.Exchange.RestURL, cfg.Exchange.Timeout, nil)
			},
			func(cfg *config.Config, state *service.State, log *zap.Logger) broadcaster.Feed {
				return exchange.NewFeed(cfg.Exchange.WSURL, state, log)
			},
			func(cfg *config.Config) OrderClients {
				return KeyFileClients(cfg.Exchange)
			},
			func(
				cfg *config.Config,
				feed broadcaster.Feed,
				history gateway.HistoryClient,
				orders OrderClients,
				st store.CandleStore,
				notifier notify.Notifier,
				state *service.State,
				log *zap.Logger,
			) (*Bot, error) {
				return New(Deps{
					Config:   cfg,
					Feed:     feed,
					History:  history,
					Orders:   orders,
					Store:    st,
					Notifier: notifier,
					Health:   state,
					Log:      log,
				})
			},
		),
		fx.Invoke(Start),
	)
}

// KeyFileClients — приватный REST-клиент по файлу ключей портфеля. Без key_file торговли нет.
func KeyFileClients(ex config.Exchange) OrderClients {
	return func(p config.Portfolio) (gateway.OrderClient, error) {
		if p.KeyFile == "" {
			return nil, nil
		}
		creds, err := exchange.LoadCredentials(p.KeyFile)
		if err != nil {
			return nil, err
		}
		return exchange.NewClient(ex.RestURL, ex.Timeout, creds), nil
	}
}

// NewStore — хранилище свечей по store.driver. Для postgres нужен пул из модуля postgres.
func NewStore(ctx context.Context, cfg *config.Config, txm *db.PgTxManager) (store.CandleStore, error) {
	switch cfg.Store.Driver {
	case "postgres":
		if txm == nil {
			return nil, errors.New("store: postgres driver without a pool")
		}
		return store.NewPostgres(ctx, txm)
	default:
		return store.NewFile(cfg.Store.Dir)
	}
}

// Start запускает бота на OnStart и дожидается остановки акторов на OnStop.
// Если бот упал сам, приложение гасится через Shutdowner.
func Start(lc fx.Lifecycle, b *Bot, shutdowner fx.Shutdowner, log *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				if err := b.Run(ctx); err != nil && ctx.Err() == nil {
					log.Error("bot failed", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}
