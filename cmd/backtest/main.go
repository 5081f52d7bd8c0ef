package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"crypto_bot/internal/backtest"
	"crypto_bot/internal/bot"
	"crypto_bot/internal/modules/config"
	"crypto_bot/pkg/db"
	"crypto_bot/pkg/logger"
)

func main() {
	var (
		configPath  = flag.String("config", "configs/values_local.yaml", "config file")
		markets     = flag.String("markets", "", "comma separated markets, default: all from config")
		granularity = flag.Duration("granularity", time.Hour, "candle granularity")
		balance     = flag.Float64("balance", 10000, "start balance in quote currency")
		fee         = flag.Float64("fee", 0.005, "fee rate per trade")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger.SetServiceName(cfg.Service.Name + "-backtest")
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx := context.Background()

	var txm *db.PgTxManager
	if cfg.Store.Driver == "postgres" {
		pool, err := db.NewPool(ctx, db.PoolConfig{DSN: cfg.Store.DSN, MaxConns: cfg.Store.MaxConns})
		if err != nil {
			log.Fatal("postgres pool", zap.Error(err))
		}
		txm = db.NewPgTxManager(pool)
		defer txm.Close()
	}
	st, err := bot.NewStore(ctx, cfg, txm)
	if err != nil {
		log.Fatal("open store", zap.Error(err))
	}

	mc := bot.MonitorConfig(cfg)
	run := backtest.Config{
		Granularity:  *granularity,
		StartBalance: decimal.NewFromFloat(*balance),
		FeeRate:      decimal.NewFromFloat(*fee),
		Params:       mc.Params,
		Thresholds:   mc.Thresholds,
	}

	for _, market := range marketList(*markets, cfg.Markets) {
		rates, err := st.Load(ctx, market, *granularity)
		if err != nil {
			log.Error("load candles", zap.String("market", market), zap.Error(err))
			continue
		}
		if len(rates) == 0 {
			log.Warn("no stored candles, run the recorder first", zap.String("market", market))
			continue
		}

		run.Market = market
		rep, err := backtest.Run(rates, run)
		if err != nil {
			log.Error("backtest", zap.String("market", market), zap.Error(err))
			continue
		}
		fmt.Println(rep)
	}
}

func marketList(flagValue string, fallback []string) []string {
	if flagValue == "" {
		return fallback
	}
	var out []string
	for _, m := range strings.Split(flagValue, ",") {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, strings.ToUpper(m))
		}
	}
	return out
}
