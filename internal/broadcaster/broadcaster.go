// Package broadcaster раздаёт live-тики мониторам с ограничением частоты по рынку.
package broadcaster

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"crypto_bot/internal/candles"
	"crypto_bot/internal/metrics"
	"crypto_bot/internal/models"
)

// DefaultGate — минимальный интервал между пересылками тиков одного рынка.
// Меряется по tick.Time (биржевое время), а не по часам процесса.
const DefaultGate = 30 * time.Second

// Feed — live-поток тиков. Канал закрывается, когда поток окончательно остановлен.
type Feed interface {
	Subscribe(ctx context.Context, markets []string) (<-chan models.Tick, error)
}

// Subscriber — монитор, которому нужны тики своего рынка.
type Subscriber interface {
	models.Mailbox
	Market() string
}

// TickObserver — health-состояние, отмечающее время последнего тика.
type TickObserver interface {
	TouchTick(t time.Time)
}

// Broadcaster подписывается на фид один раз. lastForwarded и builder трогает только Run.
type Broadcaster struct {
	log     *zap.Logger
	feed    Feed
	markets []string
	gate    time.Duration
	builder *candles.Builder
	health  TickObserver

	mu   sync.RWMutex
	subs map[string][]Subscriber

	lastForwarded map[string]time.Time
}

func New(feed Feed, markets []string, gate time.Duration, builder *candles.Builder, health TickObserver, log *zap.Logger) *Broadcaster {
	if log == nil {
		log = zap.NewNop()
	}
	if builder == nil {
		builder = candles.NewBuilder(time.Minute, candles.DefaultHistory)
	}
	return &Broadcaster{
		log:           log.Named("broadcaster"),
		feed:          feed,
		markets:       markets,
		gate:          gate,
		builder:       builder,
		health:        health,
		subs:          make(map[string][]Subscriber),
		lastForwarded: make(map[string]time.Time),
	}
}

// Subscribe добавляет монитор в статический список его рынка. Повторная подписка игнорируется.
func (b *Broadcaster) Subscribe(s Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, cur := range b.subs[s.Market()] {
		if cur.ID() == s.ID() {
			return
		}
	}
	b.subs[s.Market()] = append(b.subs[s.Market()], s)
	b.log.Debug("subscribed", zap.String("id", s.ID()), zap.String("market", s.Market()))
}

func (b *Broadcaster) Unsubscribe(s Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[s.Market()]
	for i, cur := range list {
		if cur.ID() == s.ID() {
			b.subs[s.Market()] = append(list[:i:i], list[i+1:]...)
			b.log.Debug("unsubscribed", zap.String("id", s.ID()))
			return
		}
	}
}

// Subscribers — копия списка подписчиков рынка.
func (b *Broadcaster) Subscribers(market string) []Subscriber {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Subscriber(nil), b.subs[market]...)
}

// Run читает фид до отмены ctx или закрытия канала.
func (b *Broadcaster) Run(ctx context.Context) error {
	ticks, err := b.feed.Subscribe(ctx, b.markets)
	if err != nil {
		return fmt.Errorf("subscribe ticker: %w", err)
	}
	b.log.Info("starting", zap.Strings("markets", b.markets), zap.Duration("gate", b.gate))
	defer b.log.Info("terminating")

	for {
		select {
		case <-ctx.Done():
			return nil
		case t, ok := <-ticks:
			if !ok {
				return nil
			}
			b.Dispatch(t)
		}
	}
}

// Dispatch — обработка одного тика: свечи, затем гейт и рассылка.
// Возвращает true, если тик ушёл подписчикам.
func (b *Broadcaster) Dispatch(t models.Tick) bool {
	metrics.TicksTotal.WithLabelValues(t.Market).Inc()
	if b.health != nil {
		b.health.TouchTick(t.Time)
	}

	if sealed, ok := b.builder.Add(t); ok {
		metrics.CandlesSealed.WithLabelValues(t.Market, string(sealed.Pattern)).Inc()
		update := models.CandleUpdate{Candle: sealed.Candle, Pattern: sealed.Pattern}
		for _, s := range b.Subscribers(t.Market) {
			s.Enqueue(models.NewMessage(nil, s.ID(), update))
		}
	}

	if last, ok := b.lastForwarded[t.Market]; ok && t.Time.Sub(last) < b.gate {
		return false
	}
	b.lastForwarded[t.Market] = t.Time
	metrics.TicksForwarded.WithLabelValues(t.Market).Inc()

	for _, s := range b.Subscribers(t.Market) {
		s.Enqueue(models.NewMessage(nil, s.ID(), models.TickerResponse{Tick: t}))
	}
	return true
}
