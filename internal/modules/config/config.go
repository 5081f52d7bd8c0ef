package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	configFilePathENV = "CONFIG_FILE"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
	databaseDSN       = "DATABASE_DSN"
	envPrefix         = "BOT"
)

// Config ...
type Config struct {
	Service struct {
		Name       string `mapstructure:"name"`
		HealthAddr string `mapstructure:"health_addr"`
	} `mapstructure:"service"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"` // json | console
	} `mapstructure:"log"`

	Tracing struct {
		Enabled bool   `mapstructure:"enabled"`
		Host    string `mapstructure:"host"`
		Port    int    `mapstructure:"port"`
	} `mapstructure:"tracing"`

	Telegram struct {
		Token  string `mapstructure:"token"`
		ChatID int64  `mapstructure:"chat_id"`
	} `mapstructure:"telegram"`

	Exchange Exchange `mapstructure:"exchange"`
	Store    Store    `mapstructure:"store"`

	Markets       []string        `mapstructure:"markets"`
	Granularities []time.Duration `mapstructure:"granularities"` // для монитора
	Portfolios    []Portfolio     `mapstructure:"portfolios"`

	Trading     Trading     `mapstructure:"trading"`
	Actors      Actors      `mapstructure:"actors"`
	Broadcaster Broadcaster `mapstructure:"broadcaster"`
	Recorder    Recorder    `mapstructure:"recorder"`
	Control     Control     `mapstructure:"control"`
}

type Exchange struct {
	RestURL string        `mapstructure:"rest_url"`
	WSURL   string        `mapstructure:"ws_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type Store struct {
	Driver string `mapstructure:"driver"` // file | postgres
	Dir    string `mapstructure:"dir"`
	DSN    string `mapstructure:"dsn"`

	MaxConns int32 `mapstructure:"max_conns"`
}

// Portfolio — один набор ключей и его рынки.
type Portfolio struct {
	Name    string   `mapstructure:"name"`
	KeyFile string   `mapstructure:"key_file"`
	Markets []string `mapstructure:"markets"` // пусто — все Markets
}

// Trading — пороги автомата и индикаторов.
type Trading struct {
	RSIPeriod     int     `mapstructure:"rsi_period"`
	RSIOverbought float64 `mapstructure:"rsi_overbought"`
	RSIOversold   float64 `mapstructure:"rsi_oversold"`
	EMAFast       int     `mapstructure:"ema_fast"`
	EMASlow       int     `mapstructure:"ema_slow"`
	EMASignal     int     `mapstructure:"ema_signal"`

	// порог «нерабочего» рынка: наклон тренда / последняя цена
	TrendSlopeThreshold float64 `mapstructure:"trend_slope_threshold"`

	StalenessWindow time.Duration `mapstructure:"staleness_window"`
	StalenessPolicy string        `mapstructure:"staleness_policy"` // wall | interval

	MaxInvestment float64 `mapstructure:"max_investment"` // funds на один buy
}

// Actors — интервалы poll-sleep циклов.
type Actors struct {
	MonitorSleep       time.Duration `mapstructure:"monitor_sleep"`
	MonitorPoll        time.Duration `mapstructure:"monitor_poll"`
	PublicSleep        time.Duration `mapstructure:"public_sleep"`
	PublicSpacing      time.Duration `mapstructure:"public_spacing"` // пауза между запросами к бирже
	AuthenticatedSleep time.Duration `mapstructure:"authenticated_sleep"`
	PortfolioSleep     time.Duration `mapstructure:"portfolio_sleep"`
}

type Broadcaster struct {
	TickGate       time.Duration `mapstructure:"tick_gate"`
	CandleInterval time.Duration `mapstructure:"candle_interval"`
	CandleHistory  int           `mapstructure:"candle_history"`
}

type Recorder struct {
	Enabled       bool            `mapstructure:"enabled"`
	Granularities []time.Duration `mapstructure:"granularities"`
	LagFactor     int             `mapstructure:"lag_factor"`
	Sleep         time.Duration   `mapstructure:"sleep"`
}

type Control struct {
	Stdin bool `mapstructure:"stdin"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "crypto_bot")
	v.SetDefault("service.health_addr", ":8080")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("tracing.host", "localhost")
	v.SetDefault("tracing.port", 6831)

	v.SetDefault("exchange.rest_url", "https://api.exchange.coinbase.com")
	v.SetDefault("exchange.ws_url", "wss://ws-feed.exchange.coinbase.com")
	v.SetDefault("exchange.timeout", "10s")

	v.SetDefault("store.driver", "file")
	v.SetDefault("store.dir", "market_data")

	v.SetDefault("granularities", []string{"1h"})

	v.SetDefault("trading.rsi_period", 14)
	v.SetDefault("trading.rsi_overbought", 70)
	v.SetDefault("trading.rsi_oversold", 30)
	v.SetDefault("trading.ema_fast", 12)
	v.SetDefault("trading.ema_slow", 26)
	v.SetDefault("trading.ema_signal", 9)
	v.SetDefault("trading.trend_slope_threshold", 0.005)
	v.SetDefault("trading.staleness_window", "5m")
	v.SetDefault("trading.staleness_policy", "wall")
	v.SetDefault("trading.max_investment", 10)

	v.SetDefault("actors.monitor_sleep", "5s")
	v.SetDefault("actors.monitor_poll", "30s")
	v.SetDefault("actors.public_sleep", "333ms")
	v.SetDefault("actors.public_spacing", "333ms")
	v.SetDefault("actors.authenticated_sleep", "200ms")
	v.SetDefault("actors.portfolio_sleep", "1s")

	v.SetDefault("broadcaster.tick_gate", "30s")
	v.SetDefault("broadcaster.candle_interval", "1m")
	v.SetDefault("broadcaster.candle_history", 500)

	v.SetDefault("recorder.enabled", false)
	v.SetDefault("recorder.granularities", []string{"1m", "5m", "15m", "1h", "6h", "24h"})
	v.SetDefault("recorder.lag_factor", 5)
	v.SetDefault("recorder.sleep", "1s")

	v.SetDefault("control.stdin", true)
}

// NewConfig читает configs/<CONFIG_FILE> и переопределения из окружения (BOT_*).
func NewConfig() (*Config, error) {
	_ = godotenv.Load()

	configFileName := os.Getenv(configFilePathENV)
	if configFileName == "" {
		configFileName = "values_local.yaml"
	}
	return Load("configs/" + configFileName)
}

// Load — то же, что NewConfig, но с явным путём. Пустой путь — только дефолты и env.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if token := os.Getenv(tokenTelegramENV); token != "" {
		config.Telegram.Token = token
	}
	if dsn := os.Getenv(databaseDSN); dsn != "" {
		config.Store.DSN = dsn
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	if len(c.Markets) == 0 {
		return fmt.Errorf("config: markets list is empty")
	}
	t := c.Trading
	if t.EMAFast <= 0 || t.EMASlow <= 0 || t.EMASignal <= 0 || t.RSIPeriod <= 0 {
		return fmt.Errorf("config: indicator periods must be > 0")
	}
	if t.EMAFast >= t.EMASlow {
		return fmt.Errorf("config: ema_fast must be < ema_slow")
	}
	if t.RSIOversold >= t.RSIOverbought {
		return fmt.Errorf("config: rsi_oversold must be < rsi_overbought")
	}
	switch t.StalenessPolicy {
	case "wall", "interval":
	default:
		return fmt.Errorf("config: unknown staleness_policy %q", t.StalenessPolicy)
	}
	switch c.Store.Driver {
	case "file", "postgres":
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Store.Driver == "postgres" && c.Store.DSN == "" {
		return fmt.Errorf("config: store.dsn is required for postgres")
	}
	for _, g := range c.Granularities {
		if g <= 0 {
			return fmt.Errorf("config: granularity must be > 0")
		}
	}
	// фид подписан только на markets: рынок вне списка монитор не увидит
	known := make(map[string]bool, len(c.Markets))
	for _, m := range c.Markets {
		known[m] = true
	}
	for _, p := range c.Portfolios {
		for _, m := range p.Markets {
			if !known[m] {
				return fmt.Errorf("config: portfolio %s: market %s is not in markets", p.Name, m)
			}
		}
	}
	return nil
}

// PortfolioMarkets — рынки портфеля с учётом общего списка.
func (c *Config) PortfolioMarkets(p Portfolio) []string {
	if len(p.Markets) == 0 {
		return c.Markets
	}
	return p.Markets
}
