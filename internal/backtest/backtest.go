// Package backtest прогоняет сохранённые свечи через индикаторы и автомат монитора.
package backtest

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"crypto_bot/internal/indicator"
	"crypto_bot/internal/models"
	"crypto_bot/internal/strategy"
)

type Config struct {
	Market       string
	Granularity  time.Duration
	StartBalance decimal.Decimal
	FeeRate      decimal.Decimal // доля от суммы сделки, 0.005 = 0.5%
	Params       indicator.Params
	Thresholds   strategy.Thresholds
}

type Trade struct {
	Time  time.Time
	Side  models.Side
	Price decimal.Decimal
	Size  decimal.Decimal
	Value decimal.Decimal // cash, ушедший на покупку или пришедший с продажи, без комиссии
	Fee   decimal.Decimal
}

type Report struct {
	Market       string
	Granularity  time.Duration
	Rows         int
	StartBalance decimal.Decimal
	Cash         decimal.Decimal
	Asset        decimal.Decimal // остаток актива по последней цене
	Fees         decimal.Decimal
	Total        decimal.Decimal
	Profit       decimal.Decimal
	Buys         int
	Sells        int
	Winning      int
	Losing       int
	Trades       []Trade
}

// ProfitPercent — прибыль в процентах от стартового баланса.
func (r Report) ProfitPercent() decimal.Decimal {
	if r.StartBalance.IsZero() {
		return decimal.Zero
	}
	return r.Profit.Mul(decimal.NewFromInt(100)).Div(r.StartBalance).Round(2)
}

func (r Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "backtest %s @ %s (%d rows)\n", r.Market, r.Granularity, r.Rows)
	fmt.Fprintf(&b, "  start balance: %s\n", r.StartBalance.StringFixed(2))
	fmt.Fprintf(&b, "  end cash:      %s\n", r.Cash.StringFixed(2))
	fmt.Fprintf(&b, "  end asset:     %s\n", r.Asset.StringFixed(2))
	fmt.Fprintf(&b, "  fees:          %s\n", r.Fees.StringFixed(2))
	fmt.Fprintf(&b, "  total:         %s\n", r.Total.StringFixed(2))
	fmt.Fprintf(&b, "  profit:        %s (%s%%)\n", r.Profit.StringFixed(2), r.ProfitPercent().StringFixed(2))

	winRate := "-"
	if closed := r.Winning + r.Losing; closed > 0 {
		winRate = decimal.NewFromInt(int64(r.Winning * 100)).Div(decimal.NewFromInt(int64(closed))).StringFixed(2) + "%"
	}
	fmt.Fprintf(&b, "  buys/sells:    %d/%d\n", r.Buys, r.Sells)
	fmt.Fprintf(&b, "  +/- trades:    %d/%d (%s)\n", r.Winning, r.Losing, winRate)
	return b.String()
}

// Run: покупка на весь cash, продажа всей позиции. Состояние автомата ведётся так же,
// как в мониторе, включая guard'ы по балансу.
func Run(rates []models.Rate, cfg Config) (Report, error) {
	if !cfg.StartBalance.IsPositive() {
		return Report{}, fmt.Errorf("backtest: start balance must be > 0")
	}
	sorted := append([]models.Rate(nil), rates...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	closes := make([]indicator.Point, len(sorted))
	for i, r := range sorted {
		closes[i] = indicator.Point{Time: r.Time, Value: r.Close}
	}
	// индикаторы причинны: строка i зависит только от свечей до i включительно
	table := indicator.Compute(closes, cfg.Params)

	rep := Report{
		Market:       cfg.Market,
		Granularity:  cfg.Granularity,
		Rows:         len(table),
		StartBalance: cfg.StartBalance,
		Fees:         decimal.Zero,
	}

	cash := cfg.StartBalance
	owned := decimal.Zero
	entry := decimal.Zero // сколько cash ушло на открытую позицию вместе с комиссией
	state := models.StateDefault

	for _, row := range table {
		v := strategy.Evaluate(state, row.RSI, row.MACDDiff(), owned, cfg.Thresholds)
		state = v.State

		switch v.Action {
		case strategy.ActionBuy:
			if !row.Close.IsPositive() || !cash.IsPositive() {
				continue
			}
			fee := cash.Mul(cfg.FeeRate)
			spend := cash.Sub(fee)
			size := spend.Div(row.Close)

			rep.Trades = append(rep.Trades, Trade{Time: row.Time, Side: models.SideBuy, Price: row.Close, Size: size, Value: spend, Fee: fee})
			rep.Buys++
			rep.Fees = rep.Fees.Add(fee)
			entry = cash
			cash = decimal.Zero
			owned = size

		case strategy.ActionSell:
			value := owned.Mul(row.Close)
			fee := value.Mul(cfg.FeeRate)

			rep.Trades = append(rep.Trades, Trade{Time: row.Time, Side: models.SideSell, Price: row.Close, Size: owned, Value: value, Fee: fee})
			rep.Sells++
			rep.Fees = rep.Fees.Add(fee)
			cash = cash.Add(value.Sub(fee))
			if value.Sub(fee).GreaterThanOrEqual(entry) {
				rep.Winning++
			} else {
				rep.Losing++
			}
			entry = decimal.Zero
			owned = decimal.Zero
		}
	}

	rep.Cash = cash
	rep.Asset = decimal.Zero
	if last, ok := table.Last(); ok {
		rep.Asset = owned.Mul(last.Close)
	}
	rep.Total = rep.Cash.Add(rep.Asset)
	rep.Profit = rep.Total.Sub(rep.StartBalance)
	return rep, nil
}
