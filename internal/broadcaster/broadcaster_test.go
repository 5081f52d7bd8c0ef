package broadcaster

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto_bot/internal/candles"
	"crypto_bot/internal/models"
)

var t0 = time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)

type sub struct {
	id, market string
	mu         sync.Mutex
	msgs       []models.Message
}

func (s *sub) ID() string     { return s.id }
func (s *sub) Market() string { return s.market }

func (s *sub) Enqueue(msg models.Message) {
	s.mu.Lock()
	s.msgs = append(s.msgs, msg)
	s.mu.Unlock()
}

func (s *sub) kinds() []models.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Kind, len(s.msgs))
	for i, m := range s.msgs {
		out[i] = m.Kind()
	}
	return out
}

type touch struct{ last time.Time }

func (h *touch) TouchTick(t time.Time) { h.last = t }

type chanFeed struct {
	ch      chan models.Tick
	markets []string
}

func (f *chanFeed) Subscribe(_ context.Context, markets []string) (<-chan models.Tick, error) {
	f.markets = markets
	return f.ch, nil
}

func tick(market string, price float64, offset time.Duration) models.Tick {
	return models.Tick{Market: market, Price: decimal.NewFromFloat(price), Time: t0.Add(offset)}
}

func TestGateForwardsAtMostOncePerWindow(t *testing.T) {
	b := New(nil, []string{"BTC-USD"}, DefaultGate, nil, nil, nil)
	s := &sub{id: "monitor:btc", market: "BTC-USD"}
	b.Subscribe(s)

	assert.True(t, b.Dispatch(tick("BTC-USD", 100, 0)))
	assert.False(t, b.Dispatch(tick("BTC-USD", 101, 10*time.Second)))
	assert.True(t, b.Dispatch(tick("BTC-USD", 102, 31*time.Second)))

	assert.Equal(t, []models.Kind{models.KindTickerResponse, models.KindTickerResponse}, s.kinds())
}

func TestGateUsesTickTime(t *testing.T) {
	b := New(nil, []string{"BTC-USD"}, DefaultGate, nil, nil, nil)
	s := &sub{id: "monitor:btc", market: "BTC-USD"}
	b.Subscribe(s)

	// пачка тиков приходит мгновенно, решает только их время
	assert.True(t, b.Dispatch(tick("BTC-USD", 100, 0)))
	assert.True(t, b.Dispatch(tick("BTC-USD", 101, 45*time.Second)))
	// запоздавший тик после переподключения
	assert.False(t, b.Dispatch(tick("BTC-USD", 99, 20*time.Second)))
	assert.Len(t, s.kinds(), 2)
}

func TestGateIsPerMarket(t *testing.T) {
	b := New(nil, nil, DefaultGate, nil, nil, nil)
	btc := &sub{id: "btc", market: "BTC-USD"}
	eth := &sub{id: "eth", market: "ETH-USD"}
	b.Subscribe(btc)
	b.Subscribe(eth)

	assert.True(t, b.Dispatch(tick("BTC-USD", 100, 0)))
	assert.True(t, b.Dispatch(tick("ETH-USD", 10, time.Second)))
	assert.Len(t, btc.kinds(), 1)
	assert.Len(t, eth.kinds(), 1)
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := New(nil, nil, DefaultGate, nil, nil, nil)
	s := &sub{id: "btc", market: "BTC-USD"}
	b.Subscribe(s)
	b.Subscribe(s)
	assert.Len(t, b.Subscribers("BTC-USD"), 1)

	b.Unsubscribe(s)
	assert.Empty(t, b.Subscribers("BTC-USD"))
	b.Dispatch(tick("BTC-USD", 100, 0))
	assert.Empty(t, s.kinds())
}

func TestSealedCandlesFanOut(t *testing.T) {
	h := &touch{}
	b := New(nil, nil, DefaultGate, candles.NewBuilder(time.Minute, 10), h, nil)
	s := &sub{id: "btc", market: "BTC-USD"}
	b.Subscribe(s)

	b.Dispatch(tick("BTC-USD", 100, 0))
	b.Dispatch(tick("BTC-USD", 102, 10*time.Second))
	b.Dispatch(tick("BTC-USD", 99, 20*time.Second))
	b.Dispatch(tick("BTC-USD", 101, time.Minute))

	assert.Equal(t, t0.Add(time.Minute), h.last)
	assert.Equal(t, []models.Kind{
		models.KindTickerResponse,
		models.KindCandleUpdate,
		models.KindTickerResponse,
	}, s.kinds())

	update := s.msgs[1].Payload().(models.CandleUpdate)
	assert.True(t, update.Candle.High.Equal(decimal.NewFromInt(102)))
	assert.True(t, update.Candle.Close.Equal(decimal.NewFromInt(99)))
}

func TestRunReadsFeedUntilClosed(t *testing.T) {
	feed := &chanFeed{ch: make(chan models.Tick, 2)}
	b := New(feed, []string{"BTC-USD"}, DefaultGate, nil, nil, nil)
	s := &sub{id: "btc", market: "BTC-USD"}
	b.Subscribe(s)

	feed.ch <- tick("BTC-USD", 100, 0)
	feed.ch <- tick("BTC-USD", 101, time.Second)
	close(feed.ch)

	require.NoError(t, b.Run(context.Background()))
	assert.Equal(t, []string{"BTC-USD"}, feed.markets)
	assert.Len(t, s.kinds(), 1)
}
