// Package bot собирает акторы в одно дерево и держит их жизненный цикл.
package bot

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"crypto_bot/internal/broadcaster"
	"crypto_bot/internal/candles"
	"crypto_bot/internal/gateway"
	"crypto_bot/internal/indicator"
	"crypto_bot/internal/modules/config"
	"crypto_bot/internal/monitor"
	"crypto_bot/internal/portfolio"
	"crypto_bot/internal/recorder"
	"crypto_bot/internal/store"
	"crypto_bot/internal/strategy"
)

// OrderClients выдаёт приватный клиент портфеля. nil без ошибки — торговля выключена.
type OrderClients func(p config.Portfolio) (gateway.OrderClient, error)

// Health — флаги готовности и время последнего тика.
type Health interface {
	broadcaster.TickObserver
	SetReady(v bool)
}

type Deps struct {
	Config   *config.Config
	Feed     broadcaster.Feed
	History  gateway.HistoryClient
	Orders   OrderClients
	Store    store.CandleStore // nil — recorder не запускается
	Notifier gateway.Notifier
	Health   Health
	Log      *zap.Logger
}

// Bot — супервизор: публичный гейтвей, бродкастер, портфели и рекордеры.
type Bot struct {
	log    *zap.Logger
	health Health

	public      *gateway.Public
	broadcaster *broadcaster.Broadcaster
	portfolios  []*portfolio.Manager
	recorders   []*recorder.Recorder
}

func New(d Deps) (*Bot, error) {
	cfg := d.Config
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}

	b := &Bot{log: log.Named("bot"), health: d.Health}

	a := cfg.Actors
	b.public = gateway.NewPublic(d.History, a.PublicSleep, a.PublicSpacing, log)

	var tickObserver broadcaster.TickObserver
	if d.Health != nil {
		tickObserver = d.Health
	}
	builder := candles.NewBuilder(cfg.Broadcaster.CandleInterval, cfg.Broadcaster.CandleHistory)
	b.broadcaster = broadcaster.New(d.Feed, cfg.Markets, cfg.Broadcaster.TickGate, builder, tickObserver, log)

	template := MonitorConfig(cfg)
	for _, p := range cfg.Portfolios {
		var auth portfolio.OrderGateway
		if d.Orders != nil {
			client, err := d.Orders(p)
			if err != nil {
				return nil, fmt.Errorf("portfolio %s: %w", p.Name, err)
			}
			if client != nil {
				auth = gateway.NewAuthenticated(p.Name, client, d.Notifier, a.AuthenticatedSleep, log)
			}
		}
		if auth == nil {
			b.log.Warn("portfolio has no keys, orders are logged only", zap.String("portfolio", p.Name))
		}

		b.portfolios = append(b.portfolios, portfolio.New(portfolio.Config{
			Name:          p.Name,
			Markets:       cfg.PortfolioMarkets(p),
			Granularities: cfg.Granularities,
			Monitor:       template,
			Sleep:         a.PortfolioSleep,
		}, b.public, auth, b.broadcaster, log))
	}

	if cfg.Recorder.Enabled && d.Store != nil {
		for _, market := range cfg.Markets {
			b.recorders = append(b.recorders, recorder.New(recorder.Config{
				Market:        market,
				Granularities: cfg.Recorder.Granularities,
				LagFactor:     cfg.Recorder.LagFactor,
				Sleep:         cfg.Recorder.Sleep,
			}, b.public, d.Store, log))
		}
	}
	return b, nil
}

// MonitorConfig — шаблон монитора из секции trading; рынок и гранулярность подставляет портфель.
func MonitorConfig(cfg *config.Config) monitor.Config {
	t := cfg.Trading
	return monitor.Config{
		Params: indicator.Params{
			Fast:      t.EMAFast,
			Slow:      t.EMASlow,
			Signal:    t.EMASignal,
			RSIPeriod: t.RSIPeriod,
		},
		Thresholds:          strategy.NewThresholds(t.RSIOverbought, t.RSIOversold),
		TrendSlopeThreshold: t.TrendSlopeThreshold,
		StalenessWindow:     t.StalenessWindow,
		StalenessPolicy:     t.StalenessPolicy,
		MaxInvestment:       decimal.NewFromFloat(t.MaxInvestment),
		Sleep:               cfg.Actors.MonitorSleep,
		Poll:                cfg.Actors.MonitorPoll,
	}
}

// Run крутит все акторы до отмены ctx. Ошибка любого ветки отменяет остальные.
func (b *Bot) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		b.public.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return b.broadcaster.Run(gctx)
	})
	for _, p := range b.portfolios {
		p := p
		g.Go(func() error {
			return p.Run(gctx)
		})
	}
	for _, r := range b.recorders {
		r := r
		g.Go(func() error {
			return r.Run(gctx)
		})
	}

	if b.health != nil {
		b.health.SetReady(true)
		defer b.health.SetReady(false)
	}
	b.log.Info("bot started",
		zap.Int("portfolios", len(b.portfolios)),
		zap.Int("recorders", len(b.recorders)),
	)

	err := g.Wait()
	b.log.Info("bot stopped", zap.Error(err))
	return err
}

// Portfolios — имена портфелей по алфавиту.
func (b *Bot) Portfolios() []string {
	out := make([]string, 0, len(b.portfolios))
	for _, p := range b.portfolios {
		out = append(out, p.Name())
	}
	sort.Strings(out)
	return out
}

func (b *Bot) Snapshots(name string) []monitor.Snapshot {
	for _, p := range b.portfolios {
		if p.Name() == name {
			return p.Snapshots()
		}
	}
	return nil
}
