package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto_bot/internal/models"
	"crypto_bot/pkg/db"
)

var t0 = time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)

func rate(offset time.Duration, close string) models.Rate {
	c := decimal.RequireFromString(close)
	return models.Rate{Time: t0.Add(offset), Low: c, High: c, Open: c, Close: c, Volume: decimal.NewFromInt(1)}
}

func TestFileAppendIsIdempotent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFile(dir)
	require.NoError(t, err)

	rows := []models.Rate{rate(0, "100.5"), rate(time.Minute, "101")}
	n, err := s.Append(ctx, "BTC-USD", time.Minute, rows)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	path := filepath.Join(dir, "BTC-USD-60.csv")
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	n, err = s.Append(ctx, "BTC-USD", time.Minute, rows)
	require.NoError(t, err)
	assert.Zero(t, n)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
	assert.Equal(t, 2, strings.Count(string(after), "\n"))
}

func TestFileDedupSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFile(dir)
	require.NoError(t, err)
	_, err = s.Append(ctx, "ETH-USD", time.Hour, []models.Rate{rate(0, "10")})
	require.NoError(t, err)

	reopened, err := NewFile(dir)
	require.NoError(t, err)
	n, err := reopened.Append(ctx, "ETH-USD", time.Hour, []models.Rate{rate(0, "10"), rate(time.Hour, "11")})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestFileLoadAndNewest(t *testing.T) {
	ctx := context.Background()
	s, err := NewFile(t.TempDir())
	require.NoError(t, err)

	_, ok, err := s.Newest(ctx, "BTC-USD", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Append(ctx, "BTC-USD", time.Minute, []models.Rate{rate(2*time.Minute, "3"), rate(0, "1")})
	require.NoError(t, err)
	_, err = s.Append(ctx, "BTC-USD", time.Minute, []models.Rate{rate(time.Minute, "2")})
	require.NoError(t, err)

	rows, err := s.Load(ctx, "BTC-USD", time.Minute)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for i, r := range rows {
		assert.Equal(t, t0.Add(time.Duration(i)*time.Minute), r.Time)
	}
	assert.True(t, rows[2].Close.Equal(decimal.NewFromInt(3)))

	newest, ok, err := s.Newest(ctx, "BTC-USD", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, t0.Add(2*time.Minute), newest)

	empty, err := s.Load(ctx, "LTC-USD", time.Minute)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

// Нужен живой Postgres: STORE_TEST_DSN=postgres://...
func TestPostgresAppendIsIdempotent(t *testing.T) {
	dsn := os.Getenv("STORE_TEST_DSN")
	if dsn == "" {
		t.Skip("STORE_TEST_DSN not set")
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, db.PoolConfig{DSN: dsn})
	require.NoError(t, err)
	txm := db.NewPgTxManager(pool)
	defer txm.Close()

	s, err := NewPostgres(ctx, txm)
	require.NoError(t, err)
	market := "TEST-" + strings.ToUpper(strings.ReplaceAll(t.Name(), "/", "-"))
	_, err = txm.Conn().Exec(ctx, "DELETE FROM candles WHERE market = $1", market)
	require.NoError(t, err)

	rows := []models.Rate{rate(0, "1.5"), rate(time.Minute, "2")}
	n, err := s.Append(ctx, market, time.Minute, rows)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.Append(ctx, market, time.Minute, rows)
	require.NoError(t, err)
	assert.Zero(t, n)

	loaded, err := s.Load(ctx, market, time.Minute)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.True(t, loaded[0].Close.Equal(decimal.RequireFromString("1.5")))

	newest, ok, err := s.Newest(ctx, market, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, t0.Add(time.Minute), newest)
}
