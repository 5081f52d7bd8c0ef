// Package strategy — таблица переходов RSI/MACD автомата монитора.
// Чистые функции: состояние хранит вызывающий.
package strategy

import (
	"github.com/shopspring/decimal"

	"crypto_bot/internal/models"
)

// Thresholds — границы RSI.
type Thresholds struct {
	Overbought decimal.Decimal
	Oversold   decimal.Decimal
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		Overbought: decimal.NewFromInt(70),
		Oversold:   decimal.NewFromInt(30),
	}
}

func NewThresholds(overbought, oversold float64) Thresholds {
	return Thresholds{
		Overbought: decimal.NewFromFloat(overbought),
		Oversold:   decimal.NewFromFloat(oversold),
	}
}

// Next — один шаг таблицы переходов. Если ни одно условие не выполнено, состояние не меняется.
func Next(state models.TradingState, rsi, macdDiff decimal.Decimal, th Thresholds) models.TradingState {
	switch state {
	case models.StateDefault:
		if rsi.GreaterThanOrEqual(th.Overbought) {
			return models.StateOverbought
		}
		if rsi.LessThanOrEqual(th.Oversold) {
			return models.StateOversold
		}
	case models.StateOverbought:
		if rsi.LessThan(th.Overbought) {
			return models.StateSellIndicated
		}
	case models.StateOversold:
		if rsi.GreaterThan(th.Oversold) {
			return models.StateBuyIndicated
		}
	case models.StateSellIndicated:
		if macdDiff.IsNegative() {
			return models.StateSell
		}
	case models.StateBuyIndicated:
		if macdDiff.IsPositive() {
			return models.StateBuy
		}
	}
	return state
}

// Action — побочный эффект шага.
type Action uint8

const (
	ActionNone Action = iota
	ActionBuy
	ActionSell
)

func (a Action) String() string {
	switch a {
	case ActionBuy:
		return "buy"
	case ActionSell:
		return "sell"
	default:
		return "none"
	}
}

// Verdict — итог оценки.
type Verdict struct {
	Reached models.TradingState // куда привела таблица (может быть BUY/SELL)
	State   models.TradingState // что хранить дальше: BUY/SELL сбрасываются в DEFAULT
	Action  Action
	Blocked bool // BUY/SELL достигнут, но guard по балансу не пустил
}

// Changed — сменилось ли сохраняемое состояние или сработал транзиент.
func (v Verdict) Changed(prev models.TradingState) bool {
	return v.Reached != prev
}

// Evaluate применяет таблицу и guard'ы: BUY только без актива, SELL только с ненулевым балансом.
func Evaluate(state models.TradingState, rsi, macdDiff, owned decimal.Decimal, th Thresholds) Verdict {
	reached := Next(state, rsi, macdDiff, th)
	v := Verdict{Reached: reached, State: reached}

	switch reached {
	case models.StateBuy:
		v.State = models.StateDefault
		if owned.IsZero() {
			v.Action = ActionBuy
		} else {
			v.Blocked = true
		}
	case models.StateSell:
		v.State = models.StateDefault
		if !owned.IsZero() {
			v.Action = ActionSell
		} else {
			v.Blocked = true
		}
	}
	return v
}
