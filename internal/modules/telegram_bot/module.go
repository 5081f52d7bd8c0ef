package telegram

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"crypto_bot/internal/modules/config"
	"crypto_bot/internal/notify"
)

func Module() fx.Option {
	return fx.Module("telegram",
		// 1. Бот, если задан токен; иначе nil
		fx.Provide(
			func(cfg *config.Config, log *zap.Logger) (*notify.Telegram, error) {
				if cfg.Telegram.Token == "" {
					return nil, nil
				}
				return notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID, log)
			},
		),

		// 2. Нотифайер для гейтвеев: телеграм или лог
		fx.Provide(
			func(t *notify.Telegram, log *zap.Logger) notify.Notifier {
				if t == nil {
					return notify.NewStdout(log)
				}
				return t
			},
		),

		// Long-polling живёт на контексте приложения, не на контексте OnStart
		fx.Invoke(
			func(lc fx.Lifecycle, ctx context.Context, t *notify.Telegram) {
				if t == nil {
					return
				}
				lc.Append(fx.Hook{
					OnStart: func(context.Context) error {
						return t.Start(ctx)
					},
					OnStop: func(context.Context) error {
						t.Stop()
						return nil
					},
				})
			},
		),
	)
}
