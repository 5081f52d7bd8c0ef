// Package portfolio — менеджер одного набора ключей: создаёт мониторы рынков
// и маршрутизирует их запросы в публичный и приватный гейтвеи.
package portfolio

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"crypto_bot/internal/broadcaster"
	"crypto_bot/internal/metrics"
	"crypto_bot/internal/models"
	"crypto_bot/internal/monitor"
	"crypto_bot/internal/worker"
)

// Registry — подписка мониторов на тики (Tick Broadcaster).
type Registry interface {
	Subscribe(s broadcaster.Subscriber)
	Unsubscribe(s broadcaster.Subscriber)
}

// OrderGateway — приватный гейтвей портфеля (gateway.Authenticated).
type OrderGateway interface {
	models.Mailbox
	EnqueuePriority(msg models.Message)
	RequestShutdown()
	Run(ctx context.Context)
}

type Config struct {
	Name          string
	Markets       []string
	Granularities []time.Duration
	Monitor       monitor.Config // шаблон, Market/Granularity подставляются
	Sleep         time.Duration
}

func ID(name string) string { return "portfolio:" + name }

// Manager — актор портфеля. Список мониторов неизменен после New.
type Manager struct {
	*worker.Worker

	cfg      Config
	public   models.Mailbox
	auth     OrderGateway
	registry Registry

	monitors []*monitor.Monitor
}

// New создаёт по монитору на каждую пару (market, granularity). auth == nil — торговля выключена,
// ордера только логируются.
func New(cfg Config, public models.Mailbox, auth OrderGateway, registry Registry, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{
		Worker:   worker.New(ID(cfg.Name), log.Named("portfolio").With(zap.String("portfolio", cfg.Name))),
		cfg:      cfg,
		public:   public,
		auth:     auth,
		registry: registry,
	}
	for _, market := range cfg.Markets {
		for _, g := range cfg.Granularities {
			mc := cfg.Monitor
			mc.Market = market
			mc.Granularity = g
			m.monitors = append(m.monitors, monitor.New(mc, m, log))
		}
	}
	return m
}

func (m *Manager) Name() string { return m.cfg.Name }

func (m *Manager) Monitors() []*monitor.Monitor { return m.monitors }

// Snapshots — состояние всех мониторов; безопасно из любой горутины.
func (m *Manager) Snapshots() []monitor.Snapshot {
	out := make([]monitor.Snapshot, 0, len(m.monitors))
	for _, mon := range m.monitors {
		out = append(out, mon.Snapshot())
	}
	return out
}

// Run запускает гейтвей, мониторы и свой цикл; возвращается, когда все остановлены.
func (m *Manager) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if m.auth != nil {
		g.Go(func() error {
			m.auth.Run(gctx)
			return nil
		})
		m.auth.EnqueuePriority(models.NewMessage(m, m.auth.ID(), models.AccountBalanceRequest{}))
	}
	for _, mon := range m.monitors {
		mon := mon
		if m.registry != nil {
			m.registry.Subscribe(mon)
		}
		g.Go(func() error {
			mon.Run(gctx)
			return nil
		})
	}
	m.Logger().Info("monitors started", zap.Int("count", len(m.monitors)))

	m.Worker.Run(gctx, worker.Options{Sleep: m.cfg.Sleep}, m.handle)
	m.stopChildren()
	return g.Wait()
}

func (m *Manager) stopChildren() {
	for _, mon := range m.monitors {
		if m.registry != nil {
			m.registry.Unsubscribe(mon)
		}
		mon.Enqueue(models.NewMessage(m, mon.ID(), models.Shutdown{}))
	}
	if m.auth != nil {
		m.auth.RequestShutdown()
	}
}

func (m *Manager) handle(_ context.Context, msg models.Message) {
	switch p := msg.Payload().(type) {
	case models.HistoricalDataRequest:
		// отправитель сохраняется: гейтвей ответит монитору напрямую
		m.public.Enqueue(models.NewMessage(msg.Sender(), m.public.ID(), p))
	case models.BuyOrderRequest, models.SellOrderRequest:
		if m.auth == nil {
			m.Logger().Info("trading disabled, order intent logged only", zap.Stringer("msg", msg))
			return
		}
		m.auth.EnqueuePriority(models.NewMessage(msg.Sender(), m.auth.ID(), msg.Payload()))
		// ответ биржи на ордер не знает исполненного размера; баланс за ним в той же очереди
		m.auth.EnqueuePriority(models.NewMessage(m, m.auth.ID(), models.AccountBalanceRequest{}))
	case models.AccountBalanceResponse:
		for _, mon := range m.monitors {
			mon.Enqueue(models.NewMessage(m, mon.ID(), p))
		}
	default:
		m.Logger().Warn("unexpected message dropped", zap.Stringer("msg", msg))
		metrics.DroppedMessages.WithLabelValues("portfolio", msg.Kind().String()).Inc()
	}
}
