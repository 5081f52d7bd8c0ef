// Package candles собирает тики в OHLC-свечи фиксированного интервала.
package candles

import (
	"time"

	"github.com/shopspring/decimal"

	"crypto_bot/internal/models"
)

const DefaultHistory = 500

// Builder хранит по рынку срез свечей: закрытые + последняя незакрытая.
// Не потокобезопасен — принадлежит одной горутине (broadcaster).
type Builder struct {
	interval time.Duration
	history  int
	markets  map[string][]models.Candle
}

func NewBuilder(interval time.Duration, history int) *Builder {
	if interval <= 0 {
		interval = time.Minute
	}
	if history <= 0 {
		history = DefaultHistory
	}
	return &Builder{
		interval: interval,
		history:  history,
		markets:  make(map[string][]models.Candle),
	}
}

func (b *Builder) Interval() time.Duration { return b.interval }

// Sealed — закрытая свеча и её паттерн.
type Sealed struct {
	Candle  models.Candle
	Pattern models.Pattern
}

// Add учитывает тик. Если тик открыл новый бакет, возвращает закрытую предыдущую свечу.
func (b *Builder) Add(t models.Tick) (Sealed, bool) {
	bucket := t.Time.UTC().Truncate(b.interval)
	list := b.markets[t.Market]

	if len(list) == 0 || bucket.After(list[len(list)-1].Start) {
		var (
			sealed Sealed
			ok     bool
		)
		if len(list) > 0 {
			last := list[len(list)-1]
			sealed, ok = Sealed{Candle: last, Pattern: Classify(last)}, true
		}
		list = append(list, models.Candle{
			Market: t.Market,
			Start:  bucket,
			Open:   t.Price,
			High:   t.Price,
			Low:    t.Price,
			Close:  t.Price,
		})
		if len(list) > b.history {
			list = append(list[:0:0], list[len(list)-b.history:]...)
		}
		b.markets[t.Market] = list
		return sealed, ok
	}

	// обновляем только незакрытую свечу
	cur := &list[len(list)-1]
	if t.Price.GreaterThan(cur.High) {
		cur.High = t.Price
	}
	if t.Price.LessThan(cur.Low) {
		cur.Low = t.Price
	}
	cur.Close = t.Price
	return Sealed{}, false
}

// Current — незакрытая свеча рынка.
func (b *Builder) Current(market string) (models.Candle, bool) {
	list := b.markets[market]
	if len(list) == 0 {
		return models.Candle{}, false
	}
	return list[len(list)-1], true
}

// LastSealed — последняя закрытая свеча рынка.
func (b *Builder) LastSealed(market string) (models.Candle, bool) {
	list := b.markets[market]
	if len(list) < 2 {
		return models.Candle{}, false
	}
	return list[len(list)-2], true
}

// Len — число свечей рынка вместе с незакрытой.
func (b *Builder) Len(market string) int { return len(b.markets[market]) }

// At — свеча по индексу; соседи — At(i-1) и At(i+1).
func (b *Builder) At(market string, i int) (models.Candle, bool) {
	list := b.markets[market]
	if i < 0 || i >= len(list) {
		return models.Candle{}, false
	}
	return list[i], true
}

// Candles — копия свечей рынка по возрастанию времени.
func (b *Builder) Candles(market string) []models.Candle {
	list := b.markets[market]
	out := make([]models.Candle, len(list))
	copy(out, list)
	return out
}

var (
	twenty = decimal.NewFromInt(20)
	three  = decimal.NewFromInt(3)
	two    = decimal.NewFromInt(2)
)

// Classify относит свечу к семейству доджи по положению середины тела внутри тени:
// нижняя треть — gravestone, верхняя — dragonfly, середина — doji.
// Тело и тень ненулевые, тело не больше 1/20 тени.
func Classify(c models.Candle) models.Pattern {
	body := c.Body()
	shadow := c.Shadow()
	if body.IsZero() || !shadow.IsPositive() {
		return models.PatternNone
	}
	if body.Mul(twenty).GreaterThan(shadow) {
		return models.PatternNone
	}

	mid := c.Open.Add(c.Close).Div(two)
	pos := mid.Sub(c.Low).Mul(three) // позиция * 3 * shadow
	switch {
	case pos.LessThan(shadow):
		return models.PatternGravestone
	case pos.GreaterThan(shadow.Mul(two)):
		return models.PatternDragonfly
	default:
		return models.PatternDoji
	}
}
