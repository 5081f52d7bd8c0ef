package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "values.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "markets: [BTC-USD, ETH-USD]\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"BTC-USD", "ETH-USD"}, cfg.Markets)
	assert.Equal(t, []time.Duration{time.Hour}, cfg.Granularities)
	assert.Equal(t, 70.0, cfg.Trading.RSIOverbought)
	assert.Equal(t, 30.0, cfg.Trading.RSIOversold)
	assert.Equal(t, 14, cfg.Trading.RSIPeriod)
	assert.Equal(t, 12, cfg.Trading.EMAFast)
	assert.Equal(t, 26, cfg.Trading.EMASlow)
	assert.Equal(t, 9, cfg.Trading.EMASignal)
	assert.InDelta(t, 0.005, cfg.Trading.TrendSlopeThreshold, 1e-12)
	assert.Equal(t, 5*time.Minute, cfg.Trading.StalenessWindow)
	assert.Equal(t, "wall", cfg.Trading.StalenessPolicy)
	assert.Equal(t, 30*time.Second, cfg.Broadcaster.TickGate)
	assert.Equal(t, 30*time.Second, cfg.Actors.MonitorPoll)
	assert.Equal(t, 5*time.Second, cfg.Actors.MonitorSleep)
	assert.Equal(t, 333*time.Millisecond, cfg.Actors.PublicSpacing)
	assert.Equal(t, "file", cfg.Store.Driver)
}

func TestLoadOverridesFromFile(t *testing.T) {
	path := writeConfig(t, `
markets: [BTC-USD, ETH-USD]
granularities: [15m, 1h]
trading:
  rsi_overbought: 80
  rsi_oversold: 20
  trend_slope_threshold: 0.01
  staleness_policy: interval
broadcaster:
  tick_gate: 10s
portfolios:
  - name: alt
    key_file: alt.key
    markets: [ETH-USD]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{15 * time.Minute, time.Hour}, cfg.Granularities)
	assert.Equal(t, 80.0, cfg.Trading.RSIOverbought)
	assert.Equal(t, 20.0, cfg.Trading.RSIOversold)
	assert.Equal(t, "interval", cfg.Trading.StalenessPolicy)
	assert.Equal(t, 10*time.Second, cfg.Broadcaster.TickGate)
	require.Len(t, cfg.Portfolios, 1)
	assert.Equal(t, []string{"ETH-USD"}, cfg.PortfolioMarkets(cfg.Portfolios[0]))
	assert.Equal(t, []string{"BTC-USD", "ETH-USD"}, cfg.PortfolioMarkets(Portfolio{}))
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "markets: [BTC-USD]\n")
	t.Setenv("BOT_TRADING_MAX_INVESTMENT", "25")
	t.Setenv("DATABASE_DSN", "postgres://u:p@localhost/db")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 25.0, cfg.Trading.MaxInvestment)
	assert.Equal(t, "postgres://u:p@localhost/db", cfg.Store.DSN)
}

func TestValidate(t *testing.T) {
	cases := map[string]string{
		"no markets":       "markets: []\n",
		"ema order":        "markets: [BTC-USD]\ntrading: {ema_fast: 26, ema_slow: 12}\n",
		"rsi order":        "markets: [BTC-USD]\ntrading: {rsi_overbought: 30, rsi_oversold: 70}\n",
		"policy":           "markets: [BTC-USD]\ntrading: {staleness_policy: sometimes}\n",
		"driver":           "markets: [BTC-USD]\nstore: {driver: mongo}\n",
		"postgres w/o dsn": "markets: [BTC-USD]\nstore: {driver: postgres}\n",
		"portfolio market": "markets: [BTC-USD]\nportfolios: [{name: alt, markets: [ETH-USD]}]\n",
	}
	t.Setenv("DATABASE_DSN", "")
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}
