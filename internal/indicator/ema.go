// Package indicator считает EMA, MACD и RSI по упорядоченному ряду цен в decimal.
// Строки без достаточной истории отбрасываются и наружу не попадают.
package indicator

import (
	"time"

	"github.com/shopspring/decimal"
)

// scale — точность (знаков после запятой) рекурсивных шагов, иначе разрядность растёт без границ.
const scale = 12

var (
	one     = decimal.NewFromInt(1)
	two     = decimal.NewFromInt(2)
	hundred = decimal.NewFromInt(100)
)

// Point — значение ряда на момент времени.
type Point struct {
	Time  time.Time
	Value decimal.Decimal
}

// EMA: затравка — среднее первых period точек, дальше price*k + prev*(1-k), k = 2/(period+1).
// Первая точка результата соответствует индексу period-1 исходного ряда.
func EMA(series []Point, period int) []Point {
	if period <= 0 || len(series) < period {
		return nil
	}

	k := two.Div(decimal.NewFromInt(int64(period + 1)))
	rest := one.Sub(k)

	sum := decimal.Zero
	for _, p := range series[:period] {
		sum = sum.Add(p.Value)
	}
	prev := sum.Div(decimal.NewFromInt(int64(period))).Round(scale)

	out := make([]Point, 0, len(series)-period+1)
	out = append(out, Point{Time: series[period-1].Time, Value: prev})
	for _, p := range series[period:] {
		prev = p.Value.Mul(k).Add(prev.Mul(rest)).Round(scale)
		out = append(out, Point{Time: p.Time, Value: prev})
	}
	return out
}

// joinByTime — merge-join двух рядов, отсортированных по времени.
// fn получает индексы строк с совпавшим временем.
func joinByTime(n, m int, ta, tb func(int) time.Time, fn func(i, j int)) {
	i, j := 0, 0
	for i < n && j < m {
		a, b := ta(i), tb(j)
		switch {
		case a.Before(b):
			i++
		case b.Before(a):
			j++
		default:
			fn(i, j)
			i++
			j++
		}
	}
}
