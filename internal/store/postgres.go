package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"crypto_bot/internal/models"
	"crypto_bot/pkg/db"
)

const (
	createCandlesSQL = `
CREATE TABLE IF NOT EXISTS candles (
	market          TEXT        NOT NULL,
	granularity_sec INTEGER     NOT NULL,
	ts              TIMESTAMPTZ NOT NULL,
	low             NUMERIC     NOT NULL,
	high            NUMERIC     NOT NULL,
	open            NUMERIC     NOT NULL,
	close           NUMERIC     NOT NULL,
	volume          NUMERIC     NOT NULL,
	UNIQUE (market, granularity_sec, ts, low, high, open, close, volume)
)`

	insertCandleSQL = `
INSERT INTO candles (market, granularity_sec, ts, low, high, open, close, volume)
VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7::numeric, $8::numeric)
ON CONFLICT DO NOTHING`

	newestCandleSQL = `
SELECT max(ts) FROM candles WHERE market = $1 AND granularity_sec = $2`

	loadCandlesSQL = `
SELECT ts, low::text, high::text, open::text, close::text, volume::text
FROM candles
WHERE market = $1 AND granularity_sec = $2
ORDER BY ts`
)

// Postgres — таблица candles; дубли отсекает UNIQUE по всем колонкам.
type Postgres struct {
	txm db.TxManager
}

// NewPostgres создаёт таблицу, если её нет.
func NewPostgres(ctx context.Context, txm db.TxManager) (store *Postgres, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("store.NewPostgres: %w", err)
		}
	}()
	if _, err = txm.Conn().Exec(ctx, createCandlesSQL); err != nil {
		return nil, err
	}
	return &Postgres{txm: txm}, nil
}

func seconds(g time.Duration) int64 { return int64(g / time.Second) }

func (p *Postgres) Append(ctx context.Context, market string, granularity time.Duration, rows []models.Rate) (n int, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("store.Postgres.Append: %w", err)
		}
	}()
	if len(rows) == 0 {
		return 0, nil
	}

	err = p.txm.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, r := range rows {
			batch.Queue(insertCandleSQL,
				market, seconds(granularity), r.Time.UTC(),
				r.Low.String(), r.High.String(), r.Open.String(), r.Close.String(), r.Volume.String(),
			)
		}
		br := tx.SendBatch(ctxTx, batch)
		defer br.Close()
		for range rows {
			tag, err := br.Exec()
			if err != nil {
				return err
			}
			n += int(tag.RowsAffected())
		}
		return nil
	})
	return n, err
}

func (p *Postgres) Newest(ctx context.Context, market string, granularity time.Duration) (time.Time, bool, error) {
	var ts *time.Time
	if err := p.txm.Conn().QueryRow(ctx, newestCandleSQL, market, seconds(granularity)).Scan(&ts); err != nil {
		return time.Time{}, false, fmt.Errorf("store.Postgres.Newest: %w", err)
	}
	if ts == nil {
		return time.Time{}, false, nil
	}
	return ts.UTC(), true, nil
}

func (p *Postgres) Load(ctx context.Context, market string, granularity time.Duration) (out []models.Rate, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("store.Postgres.Load: %w", err)
		}
	}()

	rows, err := p.txm.Conn().Query(ctx, loadCandlesSQL, market, seconds(granularity))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ts     time.Time
			fields [5]string
		)
		if err = rows.Scan(&ts, &fields[0], &fields[1], &fields[2], &fields[3], &fields[4]); err != nil {
			return nil, err
		}
		var vals [5]decimal.Decimal
		for i, f := range fields {
			if vals[i], err = decimal.NewFromString(f); err != nil {
				return nil, err
			}
		}
		out = append(out, models.Rate{
			Time:   ts.UTC(),
			Low:    vals[0],
			High:   vals[1],
			Open:   vals[2],
			Close:  vals[3],
			Volume: vals[4],
		})
	}
	return out, rows.Err()
}
