package indicator

import (
	"time"

	"github.com/shopspring/decimal"
)

// MACDRow — MACD, сигнальная линия и гистограмма, разложенная на части >=0 и <=0.
type MACDRow struct {
	Time      time.Time
	MACD      decimal.Decimal
	Signal    decimal.Decimal
	Histogram decimal.Decimal
	PosHist   decimal.Decimal
	NegHist   decimal.Decimal
}

// MACD = EMA(fast) - EMA(slow) по времени; сигнал = EMA(signal) от MACD.
// Строки без любого из входов отбрасываются.
func MACD(closes []Point, fast, slow, signal int) []MACDRow {
	f := EMA(closes, fast)
	s := EMA(closes, slow)
	if len(f) == 0 || len(s) == 0 {
		return nil
	}

	macd := make([]Point, 0, len(s))
	joinByTime(len(f), len(s),
		func(i int) time.Time { return f[i].Time },
		func(j int) time.Time { return s[j].Time },
		func(i, j int) {
			macd = append(macd, Point{Time: s[j].Time, Value: f[i].Value.Sub(s[j].Value)})
		},
	)

	sig := EMA(macd, signal)
	if len(sig) == 0 {
		return nil
	}

	out := make([]MACDRow, 0, len(sig))
	joinByTime(len(macd), len(sig),
		func(i int) time.Time { return macd[i].Time },
		func(j int) time.Time { return sig[j].Time },
		func(i, j int) {
			hist := macd[i].Value.Sub(sig[j].Value)
			row := MACDRow{
				Time:      macd[i].Time,
				MACD:      macd[i].Value,
				Signal:    sig[j].Value,
				Histogram: hist,
				PosHist:   decimal.Zero,
				NegHist:   decimal.Zero,
			}
			if hist.IsPositive() {
				row.PosHist = hist
			} else if hist.IsNegative() {
				row.NegHist = hist
			}
			out = append(out, row)
		},
	)
	return out
}
