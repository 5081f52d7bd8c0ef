package exchange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"crypto_bot/internal/models"
)

// GetHistoricRates — GET /products/{market}/candles.
// Строки биржи: [time, low, high, open, close, volume]; порядок — как вернула биржа.
// Нулевые start/end — последние строки.
func (c *Client) GetHistoricRates(ctx context.Context, market string, start, end time.Time, granularity time.Duration) ([]models.Rate, error) {
	q := url.Values{}
	q.Set("granularity", strconv.FormatInt(int64(granularity/time.Second), 10))
	if !start.IsZero() {
		q.Set("start", start.UTC().Format(time.RFC3339))
	}
	if !end.IsZero() {
		q.Set("end", end.UTC().Format(time.RFC3339))
	}

	var raw [][]json.Number
	path := "/products/" + url.PathEscape(market) + "/candles?" + q.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &raw, false); err != nil {
		return nil, errors.Wrapf(err, "historic rates %s", market)
	}

	rows := make([]models.Rate, 0, len(raw))
	for i, r := range raw {
		rate, err := parseRate(r)
		if err != nil {
			return nil, errors.Wrapf(err, "historic rates %s row %d", market, i)
		}
		rows = append(rows, rate)
	}
	return rows, nil
}

func parseRate(r []json.Number) (models.Rate, error) {
	if len(r) < 6 {
		return models.Rate{}, errors.Errorf("want 6 fields, got %d", len(r))
	}
	sec, err := r[0].Int64()
	if err != nil {
		return models.Rate{}, errors.Wrap(err, "time")
	}
	var vals [5]decimal.Decimal
	for i := range vals {
		if vals[i], err = decimal.NewFromString(r[i+1].String()); err != nil {
			return models.Rate{}, errors.Wrapf(err, "field %d", i+1)
		}
	}
	return models.Rate{
		Time:   time.Unix(sec, 0).UTC(),
		Low:    vals[0],
		High:   vals[1],
		Open:   vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}
