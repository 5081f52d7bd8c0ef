package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto_bot/internal/indicator"
	"crypto_bot/internal/models"
	"crypto_bot/internal/strategy"
)

var t0 = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

type inbox struct {
	mu   sync.Mutex
	msgs []models.Message
}

func (b *inbox) ID() string { return "portfolio:test" }

func (b *inbox) Enqueue(msg models.Message) {
	b.mu.Lock()
	b.msgs = append(b.msgs, msg)
	b.mu.Unlock()
}

func (b *inbox) take() []models.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.msgs
	b.msgs = nil
	return out
}

func newTestMonitor(t *testing.T, policy string) (*Monitor, *inbox, *time.Time) {
	t.Helper()
	parent := &inbox{}
	now := t0.Add(48 * time.Hour)
	m := New(Config{
		Market:              "BTC-USD",
		Granularity:         time.Hour,
		Params:              indicator.Params{Fast: 3, Slow: 6, Signal: 3, RSIPeriod: 5},
		Thresholds:          strategy.DefaultThresholds(),
		TrendSlopeThreshold: 0.005,
		StalenessWindow:     5 * time.Minute,
		StalenessPolicy:     policy,
		MaxInvestment:       decimal.NewFromInt(10),
	}, parent, nil)
	m.now = func() time.Time { return now }
	return m, parent, &now
}

func rates(closes ...float64) []models.Rate {
	out := make([]models.Rate, len(closes))
	for i, c := range closes {
		v := decimal.NewFromFloat(c)
		out[i] = models.Rate{Time: t0.Add(time.Duration(i) * time.Hour), Open: v, High: v, Low: v, Close: v}
	}
	return out
}

func ramp(from, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = from + step*float64(i)
	}
	return out
}

func send(m *Monitor, p models.Payload) {
	m.handle(context.Background(), models.NewMessage(nil, m.ID(), p))
}

func history(rows []models.Rate) models.HistoricalDataResponse {
	return models.HistoricalDataResponse{Market: "BTC-USD", Granularity: time.Hour, Rows: rows}
}

func tickAt(price float64, at time.Time) models.TickerResponse {
	return models.TickerResponse{Tick: models.Tick{Market: "BTC-USD", Price: decimal.NewFromFloat(price), Time: at}}
}

func row(rsi, macd, signal float64) indicator.Row {
	return indicator.Row{
		RSI:    decimal.NewFromFloat(rsi),
		MACD:   decimal.NewFromFloat(macd),
		Signal: decimal.NewFromFloat(signal),
	}
}

func TestTickBeforeHistoryIgnored(t *testing.T) {
	m, parent, _ := newTestMonitor(t, PolicyWall)
	send(m, tickAt(100, t0))

	assert.Equal(t, models.StateDefault, m.state)
	assert.Empty(t, parent.take())
	assert.Zero(t, m.Snapshot().Rows)
}

func TestFullCycleWithGuards(t *testing.T) {
	m, parent, _ := newTestMonitor(t, PolicyWall)

	m.evaluate(row(72, 1, 0))
	assert.Equal(t, models.StateOverbought, m.state)
	m.evaluate(row(68, 1, 0))
	assert.Equal(t, models.StateSellIndicated, m.state)

	// нечего продавать: сброс в DEFAULT без ордера
	m.evaluate(row(60, -1, 0))
	assert.Equal(t, models.StateDefault, m.state)
	assert.Empty(t, parent.take())

	send(m, models.BuyOrderResponse{Order: models.OrderResult{ID: "o1", FilledSize: decimal.RequireFromString("0.5")}})
	assert.Equal(t, "0.5", m.Snapshot().Owned)

	m.evaluate(row(72, 1, 0))
	m.evaluate(row(68, 1, 0))
	m.evaluate(row(60, -1, 0))
	assert.Equal(t, models.StateDefault, m.state)

	msgs := parent.take()
	require.Len(t, msgs, 1)
	sell, ok := msgs[0].Payload().(models.SellOrderRequest)
	require.True(t, ok)
	assert.Equal(t, "BTC-USD", sell.Market)
	assert.True(t, sell.Size.Equal(decimal.RequireFromString("0.5")))
	assert.Equal(t, m.ID(), msgs[0].SenderID())
	assert.Equal(t, parent.ID(), msgs[0].Recipient())

	send(m, models.SellOrderResponse{Order: models.OrderResult{ID: "o2"}})
	assert.True(t, m.owned.IsZero())
}

func TestPendingBuyThenBalanceAllowsSell(t *testing.T) {
	m, parent, _ := newTestMonitor(t, PolicyWall)

	// свежий рыночный ордер: pending, ничего не исполнено
	send(m, models.BuyOrderResponse{Order: models.OrderResult{
		ID:         "o1",
		Market:     "BTC-USD",
		Side:       models.SideBuy,
		Status:     "pending",
		FilledSize: decimal.RequireFromString("0.00000000"),
	}})
	assert.True(t, m.owned.IsZero())

	send(m, models.AccountBalanceResponse{Balances: []models.Balance{
		{Currency: "BTC", Available: decimal.RequireFromString("0.00025")},
	}})
	assert.True(t, m.owned.IsPositive())

	// с позицией покупка не проходит
	m.evaluate(row(25, -1, 0))
	m.evaluate(row(35, -1, 0))
	m.evaluate(row(40, 1, 0))
	assert.Empty(t, parent.take())

	m.evaluate(row(72, 1, 0))
	m.evaluate(row(68, 1, 0))
	m.evaluate(row(60, -1, 0))

	msgs := parent.take()
	require.Len(t, msgs, 1)
	sell, ok := msgs[0].Payload().(models.SellOrderRequest)
	require.True(t, ok)
	assert.True(t, sell.Size.Equal(decimal.RequireFromString("0.00025")))
}

func TestBuyUsesMaxInvestment(t *testing.T) {
	m, parent, _ := newTestMonitor(t, PolicyWall)

	m.evaluate(row(25, -1, 0))
	assert.Equal(t, models.StateOversold, m.state)
	m.evaluate(row(35, -1, 0))
	assert.Equal(t, models.StateBuyIndicated, m.state)
	m.evaluate(row(40, 1, 0))
	assert.Equal(t, models.StateDefault, m.state)

	msgs := parent.take()
	require.Len(t, msgs, 1)
	buy, ok := msgs[0].Payload().(models.BuyOrderRequest)
	require.True(t, ok)
	assert.True(t, buy.Funds.Equal(decimal.NewFromInt(10)))

	// с активом на руках покупка блокируется
	send(m, models.AccountBalanceResponse{Balances: []models.Balance{
		{Currency: "USD", Available: decimal.NewFromInt(100)},
		{Currency: "BTC", Available: decimal.RequireFromString("0.01")},
	}})
	m.evaluate(row(25, -1, 0))
	m.evaluate(row(35, -1, 0))
	m.evaluate(row(40, 1, 0))
	assert.Empty(t, parent.take())
	assert.Equal(t, "0.01", m.Snapshot().Owned)
}

func TestTickOnRisingSeriesEvaluates(t *testing.T) {
	m, _, _ := newTestMonitor(t, PolicyWall)
	rows := rates(ramp(100, 1, 40)...)
	send(m, history(rows))
	send(m, tickAt(141, rows[len(rows)-1].Time.Add(10*time.Minute)))

	snap := m.Snapshot()
	assert.Equal(t, models.StateOverbought.String(), snap.State)
	assert.False(t, snap.Skipped)
	assert.Equal(t, "141", snap.Close)
	assert.Equal(t, "100.00", snap.RSI)
}

func TestTickOnDecliningSeriesSkipped(t *testing.T) {
	m, _, _ := newTestMonitor(t, PolicyWall)
	rows := rates(ramp(100, -1, 40)...)
	send(m, history(rows))
	send(m, tickAt(60, rows[len(rows)-1].Time.Add(10*time.Minute)))

	snap := m.Snapshot()
	assert.Equal(t, models.StateDefault.String(), snap.State)
	assert.True(t, snap.Skipped)
}

func TestStaleTickIgnored(t *testing.T) {
	m, _, _ := newTestMonitor(t, PolicyWall)
	rows := rates(ramp(100, 1, 40)...)
	send(m, history(rows))
	before := m.Snapshot()

	send(m, tickAt(500, rows[len(rows)-1].Time))
	assert.Equal(t, before, m.Snapshot())
}

func TestHistoryReplacedOnlyWhenNewer(t *testing.T) {
	m, _, now := newTestMonitor(t, PolicyWall)
	rows := rates(ramp(100, 1, 40)...)
	send(m, history(rows))
	firstSync := m.lastSync

	*now = now.Add(time.Minute)
	send(m, history(rows[:30]))
	assert.Len(t, m.history, 40)
	assert.True(t, m.lastSync.After(firstSync))

	send(m, models.HistoricalDataResponse{Market: "ETH-USD", Granularity: time.Hour, Rows: rates(1, 2, 3)})
	assert.Len(t, m.history, 40)
}

func TestPollRequestsHistoryWhenStale(t *testing.T) {
	m, parent, now := newTestMonitor(t, PolicyWall)

	m.poll(context.Background())
	msgs := parent.take()
	require.Len(t, msgs, 1)
	req, ok := msgs[0].Payload().(models.HistoricalDataRequest)
	require.True(t, ok)
	assert.Equal(t, "BTC-USD", req.Market)
	assert.Equal(t, time.Hour, req.Granularity)
	assert.Equal(t, m.ID(), msgs[0].SenderID())

	send(m, history(rates(1, 2, 3)))
	*now = now.Add(4 * time.Minute)
	m.poll(context.Background())
	assert.Empty(t, parent.take())

	*now = now.Add(2 * time.Minute)
	m.poll(context.Background())
	assert.Len(t, parent.take(), 1)
}

func TestPollIntervalPolicy(t *testing.T) {
	m, parent, now := newTestMonitor(t, PolicyInterval)
	send(m, history(rates(1, 2, 3)))

	*now = now.Add(30 * time.Minute)
	m.poll(context.Background())
	assert.Empty(t, parent.take())

	*now = now.Add(31 * time.Minute)
	m.poll(context.Background())
	assert.Len(t, parent.take(), 1)
}

func TestUnexpectedMessageDropped(t *testing.T) {
	m, parent, _ := newTestMonitor(t, PolicyWall)
	send(m, models.SellOrderRequest{Market: "BTC-USD"})
	send(m, models.CandleUpdate{
		Candle:  models.Candle{Market: "BTC-USD", Start: t0},
		Pattern: models.PatternDoji,
	})

	assert.Equal(t, models.StateDefault, m.state)
	assert.Empty(t, parent.take())
	assert.Equal(t, "doji", m.Snapshot().Pattern)
}

func TestRunStopsOnShutdown(t *testing.T) {
	m, _, _ := newTestMonitor(t, PolicyWall)
	m.cfg.Sleep = 10 * time.Millisecond
	m.cfg.Poll = time.Hour

	done := make(chan struct{})
	go func() {
		m.Run(context.Background())
		close(done)
	}()
	m.Enqueue(models.NewMessage(nil, m.ID(), models.Shutdown{}))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
}
