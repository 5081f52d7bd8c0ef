package indicator

import (
	"time"

	"github.com/shopspring/decimal"
)

type RSIRow struct {
	Time    time.Time
	RSI     decimal.Decimal
	AvgGain decimal.Decimal
	AvgLoss decimal.Decimal
}

// RSI: затравка — средние прироста/падения первых period дельт,
// дальше avg = (prev*(period-1) + x) / period. Первая строка — индекс period исходного ряда.
func RSI(closes []Point, period int) []RSIRow {
	if period <= 0 || len(closes) <= period {
		return nil
	}

	n := decimal.NewFromInt(int64(period))
	keep := decimal.NewFromInt(int64(period - 1))

	gain := func(i int) decimal.Decimal {
		d := closes[i].Value.Sub(closes[i-1].Value)
		if d.IsPositive() {
			return d
		}
		return decimal.Zero
	}
	loss := func(i int) decimal.Decimal {
		d := closes[i].Value.Sub(closes[i-1].Value)
		if d.IsNegative() {
			return d.Neg()
		}
		return decimal.Zero
	}

	sumGain, sumLoss := decimal.Zero, decimal.Zero
	for i := 1; i <= period; i++ {
		sumGain = sumGain.Add(gain(i))
		sumLoss = sumLoss.Add(loss(i))
	}
	avgGain := sumGain.Div(n).Round(scale)
	avgLoss := sumLoss.Div(n).Round(scale)

	out := make([]RSIRow, 0, len(closes)-period)
	out = append(out, RSIRow{
		Time:    closes[period].Time,
		RSI:     rsiValue(avgGain, avgLoss),
		AvgGain: avgGain,
		AvgLoss: avgLoss,
	})
	for i := period + 1; i < len(closes); i++ {
		avgGain = avgGain.Mul(keep).Add(gain(i)).Div(n).Round(scale)
		avgLoss = avgLoss.Mul(keep).Add(loss(i)).Div(n).Round(scale)
		out = append(out, RSIRow{
			Time:    closes[i].Time,
			RSI:     rsiValue(avgGain, avgLoss),
			AvgGain: avgGain,
			AvgLoss: avgLoss,
		})
	}
	return out
}

// rsiValue = 100 - 100/(1 + gain/loss). Без падений — 100, без движения вовсе — 50.
func rsiValue(avgGain, avgLoss decimal.Decimal) decimal.Decimal {
	if avgLoss.IsZero() {
		if avgGain.IsZero() {
			return decimal.NewFromInt(50)
		}
		return hundred
	}
	rs := avgGain.Div(avgLoss)
	return hundred.Sub(hundred.Div(one.Add(rs))).Round(scale)
}
