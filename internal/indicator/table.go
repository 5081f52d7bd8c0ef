package indicator

import (
	"time"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"
)

// Params — периоды индикаторов.
type Params struct {
	Fast      int
	Slow      int
	Signal    int
	RSIPeriod int
}

func DefaultParams() Params {
	return Params{Fast: 12, Slow: 26, Signal: 9, RSIPeriod: 14}
}

// WarmUp — сколько первых строк ряда не попадут в таблицу.
func (p Params) WarmUp() int {
	macd := p.Slow - 1 + p.Signal - 1
	if p.RSIPeriod > macd {
		return p.RSIPeriod
	}
	return macd
}

// Row — одна строка таблицы индикаторов.
type Row struct {
	Time      time.Time
	Close     decimal.Decimal
	MACD      decimal.Decimal
	Signal    decimal.Decimal
	Histogram decimal.Decimal
	PosHist   decimal.Decimal
	NegHist   decimal.Decimal
	RSI       decimal.Decimal
}

// MACDDiff = MACD - Signal.
func (r Row) MACDDiff() decimal.Decimal { return r.MACD.Sub(r.Signal) }

// Table — строки, у которых определены все индикаторы, по возрастанию времени.
type Table []Row

// Compute строит таблицу по ценам закрытия. Вход должен быть отсортирован по времени.
func Compute(closes []Point, p Params) Table {
	macd := MACD(closes, p.Fast, p.Slow, p.Signal)
	rsi := RSI(closes, p.RSIPeriod)
	if len(macd) == 0 || len(rsi) == 0 {
		return nil
	}

	joined := make([]Row, 0, len(macd))
	joinByTime(len(macd), len(rsi),
		func(i int) time.Time { return macd[i].Time },
		func(j int) time.Time { return rsi[j].Time },
		func(i, j int) {
			m := macd[i]
			joined = append(joined, Row{
				Time:      m.Time,
				MACD:      m.MACD,
				Signal:    m.Signal,
				Histogram: m.Histogram,
				PosHist:   m.PosHist,
				NegHist:   m.NegHist,
				RSI:       rsi[j].RSI,
			})
		},
	)

	out := make(Table, 0, len(joined))
	joinByTime(len(closes), len(joined),
		func(i int) time.Time { return closes[i].Time },
		func(j int) time.Time { return joined[j].Time },
		func(i, j int) {
			row := joined[j]
			row.Close = closes[i].Value
			out = append(out, row)
		},
	)
	return out
}

// Last — последняя строка.
func (t Table) Last() (Row, bool) {
	if len(t) == 0 {
		return Row{}, false
	}
	return t[len(t)-1], true
}

// Closes — цены закрытия таблицы во float64 (для регрессии).
func (t Table) Closes() []float64 {
	out := make([]float64, len(t))
	for i, r := range t {
		out[i] = r.Close.InexactFloat64()
	}
	return out
}

// TrendSlope — наклон МНК-прямой через точки (i, values[i]).
func TrendSlope(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	xs := make([]float64, len(values))
	for i := range xs {
		xs[i] = float64(i)
	}
	_, beta := stat.LinearRegression(xs, values, nil, false)
	return beta
}

// RelativeSlope — наклон тренда, делённый на последнюю цену. 0 для пустого ряда.
func RelativeSlope(values []float64) float64 {
	if len(values) < 2 || values[len(values)-1] == 0 {
		return 0
	}
	return TrendSlope(values) / values[len(values)-1]
}
