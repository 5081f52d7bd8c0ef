package control

import (
	"context"
	"os"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"crypto_bot/internal/bot"
	"crypto_bot/internal/modules/config"
	"crypto_bot/internal/notify"
)

func Module() fx.Option {
	return fx.Module("control",
		fx.Provide(
			func(b *bot.Bot, shutdowner fx.Shutdowner, log *zap.Logger) *Handler {
				return NewHandler(b, func() error { return shutdowner.Shutdown() }, log)
			},
		),
		fx.Invoke(
			func(lc fx.Lifecycle, ctx context.Context, cfg *config.Config, h *Handler, t *notify.Telegram) {
				if t != nil {
					t.SetCommander(h)
				}
				if !cfg.Control.Stdin {
					return
				}
				stdinCtx, cancel := context.WithCancel(ctx)
				lc.Append(fx.Hook{
					OnStart: func(context.Context) error {
						go func() {
							if err := h.RunStdin(stdinCtx, os.Stdin, os.Stdout); err != nil {
								h.log.Warn("stdin closed", zap.Error(err))
							}
						}()
						return nil
					},
					OnStop: func(context.Context) error {
						cancel()
						return nil
					},
				})
			},
		),
	)
}
