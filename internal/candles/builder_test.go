package candles

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto_bot/internal/models"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func tick(market string, price float64, offset time.Duration) models.Tick {
	return models.Tick{Market: market, Price: decimal.NewFromFloat(price), Time: t0.Add(offset)}
}

func dec(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func TestBuilderAggregatesMinute(t *testing.T) {
	b := NewBuilder(time.Minute, 0)

	_, sealed := b.Add(tick("BTC-USD", 100, 0))
	assert.False(t, sealed)
	_, sealed = b.Add(tick("BTC-USD", 102, 10*time.Second))
	assert.False(t, sealed)
	_, sealed = b.Add(tick("BTC-USD", 99, 20*time.Second))
	assert.False(t, sealed)

	s, sealed := b.Add(tick("BTC-USD", 101, time.Minute))
	require.True(t, sealed)

	c := s.Candle
	assert.Equal(t, t0, c.Start)
	assert.True(t, c.Open.Equal(dec(100)))
	assert.True(t, c.High.Equal(dec(102)))
	assert.True(t, c.Low.Equal(dec(99)))
	assert.True(t, c.Close.Equal(dec(99)))

	cur, ok := b.Current("BTC-USD")
	require.True(t, ok)
	assert.Equal(t, t0.Add(time.Minute), cur.Start)
	assert.True(t, cur.Open.Equal(dec(101)))
	assert.True(t, cur.Close.Equal(dec(101)))

	last, ok := b.LastSealed("BTC-USD")
	require.True(t, ok)
	assert.Equal(t, c, last)
}

func TestBuilderNeverMutatesSealed(t *testing.T) {
	b := NewBuilder(time.Minute, 0)
	b.Add(tick("ETH-USD", 10, 0))
	s, ok := b.Add(tick("ETH-USD", 11, 61*time.Second))
	require.True(t, ok)

	b.Add(tick("ETH-USD", 50, 62*time.Second))
	b.Add(tick("ETH-USD", 1, 63*time.Second))

	prev, ok := b.At("ETH-USD", 0)
	require.True(t, ok)
	assert.Equal(t, s.Candle, prev)

	cur, _ := b.Current("ETH-USD")
	assert.True(t, cur.High.Equal(dec(50)))
	assert.True(t, cur.Low.Equal(dec(1)))
}

func TestBuilderMarketsAreIndependent(t *testing.T) {
	b := NewBuilder(time.Minute, 0)
	b.Add(tick("BTC-USD", 100, 0))
	_, sealed := b.Add(tick("ETH-USD", 10, 2*time.Minute))
	assert.False(t, sealed)
	assert.Equal(t, 1, b.Len("BTC-USD"))
	assert.Equal(t, 1, b.Len("ETH-USD"))

	_, ok := b.LastSealed("BTC-USD")
	assert.False(t, ok)
	_, ok = b.Current("LTC-USD")
	assert.False(t, ok)
}

func TestBuilderHistoryCap(t *testing.T) {
	b := NewBuilder(time.Minute, 3)
	for i := 0; i < 10; i++ {
		b.Add(tick("BTC-USD", float64(100+i), time.Duration(i)*time.Minute))
	}
	candles := b.Candles("BTC-USD")
	require.Len(t, candles, 3)
	assert.Equal(t, t0.Add(7*time.Minute), candles[0].Start)
	assert.Equal(t, t0.Add(9*time.Minute), candles[2].Start)

	_, ok := b.At("BTC-USD", 3)
	assert.False(t, ok)
}

func TestClassify(t *testing.T) {
	candle := func(o, h, l, c float64) models.Candle {
		return models.Candle{Open: dec(o), High: dec(h), Low: dec(l), Close: dec(c)}
	}
	tests := []struct {
		name   string
		candle models.Candle
		want   models.Pattern
	}{
		{"doji", candle(100, 102, 98, 100.1), models.PatternDoji},
		{"gravestone", candle(98.2, 102, 98, 98.1), models.PatternGravestone},
		{"dragonfly", candle(101.9, 102, 98, 101.8), models.PatternDragonfly},
		{"body too large", candle(100, 102, 98, 101), models.PatternNone},
		{"zero body", candle(100, 102, 98, 100), models.PatternNone},
		{"zero shadow", candle(100, 100, 100, 100), models.PatternNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.candle))
		})
	}
}
