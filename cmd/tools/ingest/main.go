package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"algotrading/internal/exchange"
	"algotrading/internal/marketdata"
	"algotrading/internal/obs"
	"algotrading/internal/ops"
	"algotrading/internal/store"
	"algotrading/pkg/conn"
)

// ingest copies Binance candles into the ticks table, once or on an interval.
func main() {
	environment := flag.String("environment", "", "Environment name, selects <config-dir>/<environment>.yaml")
	configPath := flag.String("config", "", "Path to YAML config")
	configDir := flag.String("config-dir", "config", "Directory holding <environment>.yaml")
	envFile := flag.String("env-file", ".env", "Optional dotenv file loaded before the config")
	symbols := flag.String("symbols", "", "Comma separated symbols, e.g. BTCUSDT,ETHUSDT")
	interval := flag.String("interval", "1m", "Kline interval")
	limit := flag.Int("limit", 500, "Klines fetched per symbol")
	every := flag.Duration("every", 0, "Repeat interval (0=run once)")
	flag.Parse()

	cfg, err := ops.Load(ops.LoadOptions{Environment: *environment, Path: *configPath, Dir: *configDir, EnvFile: *envFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	list := ops.SplitList(*symbols)
	if len(list) == 0 {
		fmt.Fprintln(os.Stderr, "-symbols is required")
		os.Exit(2)
	}

	logger, err := obs.NewLogger(cfg.LogLevel, "", true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	client, err := conn.New(cfg.Database)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer func() { _ = client.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ing := marketdata.NewIngester(exchange.NewBinance(cfg.Exchange, logger), store.New(client.DB()), logger)
	for {
		if _, err := ing.Ingest(ctx, list, *interval, *limit); err != nil {
			logger.Error("ingest", zap.Error(err))
		}
		if *every <= 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(*every):
		}
	}
}
