// Package monitor — актор рынка: держит торговое состояние одной пары (market, granularity),
// пересчитывает индикаторы на каждый тик и отдаёт торговые намерения родителю.
package monitor

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"crypto_bot/internal/indicator"
	"crypto_bot/internal/metrics"
	"crypto_bot/internal/models"
	"crypto_bot/internal/strategy"
	"crypto_bot/internal/worker"
)

const (
	PolicyWall     = "wall"
	PolicyInterval = "interval"
)

type Config struct {
	Market      string
	Granularity time.Duration

	Params     indicator.Params
	Thresholds strategy.Thresholds

	// наклон/цена ниже -TrendSlopeThreshold — рынок не торгуем
	TrendSlopeThreshold float64

	StalenessWindow time.Duration
	StalenessPolicy string

	MaxInvestment decimal.Decimal

	Sleep time.Duration // пауза цикла
	Poll  time.Duration // как часто проверять свежесть истории
}

func (c Config) staleAfter() time.Duration {
	if c.StalenessPolicy == PolicyInterval {
		return c.Granularity
	}
	return c.StalenessWindow
}

// ID актора: monitor:BTC-USD:1h0m0s.
func ID(market string, granularity time.Duration) string {
	return fmt.Sprintf("monitor:%s:%s", market, granularity)
}

// Monitor владеет Trading State. Поля ниже snapshot трогает только горутина Run.
type Monitor struct {
	*worker.Worker

	cfg    Config
	parent models.Mailbox
	now    func() time.Time

	state    models.TradingState
	lastSync time.Time
	owned    decimal.Decimal
	history  []models.Rate
	table    indicator.Table
	candle   models.Candle
	pattern  models.Pattern
	skipped  bool

	snapshot atomic.Pointer[Snapshot]
}

// New — монитор, отправляющий запросы в parent (Portfolio Manager).
func New(cfg Config, parent models.Mailbox, log *zap.Logger) *Monitor {
	if log == nil {
		log = zap.NewNop()
	}
	id := ID(cfg.Market, cfg.Granularity)
	m := &Monitor{
		Worker: worker.New(id, log.Named("monitor").With(
			zap.String("market", cfg.Market),
			zap.Duration("granularity", cfg.Granularity),
		)),
		cfg:    cfg,
		parent: parent,
		now:    time.Now,
		owned:  decimal.Zero,
	}
	m.publish()
	return m
}

func (m *Monitor) Market() string             { return m.cfg.Market }
func (m *Monitor) Granularity() time.Duration { return m.cfg.Granularity }

// Run крутит цикл до shutdown или отмены ctx.
func (m *Monitor) Run(ctx context.Context) {
	m.Worker.Run(ctx, worker.Options{
		Sleep:    m.cfg.Sleep,
		Act:      m.poll,
		ActEvery: m.cfg.Poll,
	}, m.handle)
}

func (m *Monitor) handle(ctx context.Context, msg models.Message) {
	switch p := msg.Payload().(type) {
	case models.HistoricalDataResponse:
		m.onHistory(p)
	case models.TickerResponse:
		m.onTick(p.Tick)
	case models.BuyOrderResponse:
		// рыночный ордер обычно ещё pending с filled_size=0: размер придёт с обновлением баланса
		if p.Order.FilledSize.IsPositive() {
			m.owned = p.Order.FilledSize
		}
		m.Logger().Info("buy placed",
			zap.String("order", p.Order.ID),
			zap.String("status", p.Order.Status),
			zap.Stringer("owned", m.owned),
		)
	case models.SellOrderResponse:
		m.owned = decimal.Zero
		m.Logger().Info("sell filled", zap.String("order", p.Order.ID))
	case models.AccountBalanceResponse:
		m.onBalance(p.Balances)
	case models.CandleUpdate:
		m.onCandle(p)
	default:
		m.Logger().Warn("unexpected message dropped", zap.Stringer("msg", msg))
		metrics.DroppedMessages.WithLabelValues("monitor", msg.Kind().String()).Inc()
		return
	}
	m.publish()
}

// poll — проактивное действие: история устарела — просим свежую через родителя.
func (m *Monitor) poll(context.Context) {
	if !m.lastSync.IsZero() && m.now().Sub(m.lastSync) <= m.cfg.staleAfter() {
		return
	}
	m.Logger().Debug("history is stale, requesting", zap.Time("last_sync", m.lastSync))
	m.parent.Enqueue(models.NewMessage(m, m.parent.ID(), models.HistoricalDataRequest{
		Market:      m.cfg.Market,
		Granularity: m.cfg.Granularity,
	}))
}

func (m *Monitor) onHistory(p models.HistoricalDataResponse) {
	if p.Market != m.cfg.Market || p.Granularity != m.cfg.Granularity {
		m.Logger().Warn("history for another monitor dropped",
			zap.String("got_market", p.Market), zap.Duration("got_granularity", p.Granularity))
		return
	}
	m.lastSync = m.now()
	if len(p.Rows) == 0 {
		return
	}

	newest := p.Rows[len(p.Rows)-1].Time
	if len(m.history) > 0 && !newest.After(m.history[len(m.history)-1].Time) {
		m.Logger().Debug("history is not newer, kept current table")
		return
	}
	m.history = p.Rows
	m.table = indicator.Compute(closes(m.history), m.cfg.Params)
	m.Logger().Debug("history replaced", zap.Int("rows", len(m.history)), zap.Time("newest", newest))
}

func (m *Monitor) onTick(t models.Tick) {
	if len(m.history) == 0 {
		m.Logger().Debug("tick before history, ignored")
		return
	}
	if t.Market != m.cfg.Market {
		m.Logger().Warn("tick for another market dropped", zap.String("got", t.Market))
		return
	}

	series := closes(m.history)
	if !t.Time.After(series[len(series)-1].Time) {
		m.Logger().Debug("tick is older than history, ignored", zap.Time("tick", t.Time))
		return
	}
	series = append(series, indicator.Point{Time: t.Time, Value: t.Price})

	table := indicator.Compute(series, m.cfg.Params)
	if len(table) == 0 {
		m.Logger().Debug("not enough history for indicators", zap.Int("rows", len(series)))
		return
	}
	m.table = table

	prices := make([]float64, len(series))
	for i, p := range series {
		prices[i] = p.Value.InexactFloat64()
	}
	slope := indicator.RelativeSlope(prices)
	m.skipped = slope < -m.cfg.TrendSlopeThreshold
	if m.skipped {
		m.Logger().Warn("declining trend, market skipped", zap.Float64("slope", slope))
		return
	}

	last, _ := table.Last()
	m.evaluate(last)
}

func (m *Monitor) evaluate(row indicator.Row) {
	prev := m.state
	v := strategy.Evaluate(prev, row.RSI, row.MACDDiff(), m.owned, m.cfg.Thresholds)
	m.state = v.State

	if !v.Changed(prev) {
		return
	}
	m.Logger().Info("state transition",
		zap.Stringer("from", prev),
		zap.Stringer("to", v.Reached),
		zap.Stringer("rsi", row.RSI),
		zap.Stringer("macd_diff", row.MACDDiff()),
	)
	metrics.Transitions.WithLabelValues(m.cfg.Market, v.Reached.String()).Inc()

	if v.Blocked {
		m.Logger().Info("order guard blocked transition",
			zap.Stringer("reached", v.Reached), zap.Stringer("owned", m.owned))
		return
	}

	switch v.Action {
	case strategy.ActionBuy:
		m.parent.Enqueue(models.NewMessage(m, m.parent.ID(), models.BuyOrderRequest{
			Market: m.cfg.Market,
			Funds:  m.cfg.MaxInvestment,
		}))
	case strategy.ActionSell:
		m.parent.Enqueue(models.NewMessage(m, m.parent.ID(), models.SellOrderRequest{
			Market: m.cfg.Market,
			Size:   m.owned,
		}))
	}
}

func (m *Monitor) onBalance(balances []models.Balance) {
	base := models.BaseCurrency(m.cfg.Market)
	for _, b := range balances {
		if b.Currency == base {
			m.owned = b.Available
			m.Logger().Debug("owned balance synced", zap.Stringer("owned", m.owned))
			return
		}
	}
}

func (m *Monitor) onCandle(p models.CandleUpdate) {
	if p.Candle.Market != m.cfg.Market {
		return
	}
	m.candle = p.Candle
	m.pattern = p.Pattern
	if p.Pattern != models.PatternNone {
		m.Logger().Info("reversal pattern",
			zap.String("pattern", string(p.Pattern)),
			zap.Time("start", p.Candle.Start),
		)
	}
}

func closes(rows []models.Rate) []indicator.Point {
	out := make([]indicator.Point, len(rows))
	for i, r := range rows {
		out[i] = indicator.Point{Time: r.Time, Value: r.Close}
	}
	return out
}
