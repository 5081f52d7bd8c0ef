package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle — OHLC-бар рынка за один интервал.
// Соседние свечи ищутся по индексу в срезе рынка, ссылок нет.
type Candle struct {
	Market string
	Start  time.Time // начало бакета, обрезанное по интервалу
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
}

// Body — |open-close|.
func (c Candle) Body() decimal.Decimal { return c.Open.Sub(c.Close).Abs() }

// Shadow — high-low.
func (c Candle) Shadow() decimal.Decimal { return c.High.Sub(c.Low) }

func (c Candle) Bull() bool { return c.Close.GreaterThan(c.Open) }
func (c Candle) Bear() bool { return c.Close.LessThan(c.Open) }

// Pattern — разворотный паттерн семейства доджи.
type Pattern string

const (
	PatternNone       Pattern = ""
	PatternDoji       Pattern = "doji"
	PatternGravestone Pattern = "gravestone"
	PatternDragonfly  Pattern = "dragonfly"
)

// Rate — строка исторических свечей биржи: [time, low, high, open, close, volume].
type Rate struct {
	Time   time.Time
	Low    decimal.Decimal
	High   decimal.Decimal
	Open   decimal.Decimal
	Close  decimal.Decimal
	Volume decimal.Decimal
}

// Tick — событие live-фида.
type Tick struct {
	Market string
	Price  decimal.Decimal
	Time   time.Time
}
