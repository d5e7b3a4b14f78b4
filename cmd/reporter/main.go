package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/yanun0323/pkg/sys"
	"go.uber.org/zap"

	"algotrading/internal/exchange"
	"algotrading/internal/obs"
	"algotrading/internal/ops"
	"algotrading/internal/report"
	"algotrading/internal/store"
	"algotrading/pkg/conn"
)

func main() {
	environment := flag.String("environment", "", "Environment name, selects <config-dir>/<environment>.yaml")
	configPath := flag.String("config", "", "Path to YAML config (overrides -environment lookup)")
	configDir := flag.String("config-dir", "config", "Directory holding <environment>.yaml")
	envFile := flag.String("env-file", ".env", "Optional dotenv file loaded before the config")
	addr := flag.String("addr", "", "Listen address (default: report.addr)")
	flag.Parse()

	cfg, err := ops.Load(ops.LoadOptions{
		Environment: *environment,
		Path:        *configPath,
		Dir:         *configDir,
		EnvFile:     *envFile,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	if *addr != "" {
		cfg.Report.Addr = *addr
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "reporter: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg ops.Loaded) error {
	logger, err := obs.NewLogger(cfg.LogLevel, "", true)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	stopProfiling, err := ops.StartProfiling(cfg.Profiling, cfg.Environment, logger)
	if err != nil {
		logger.Warn("profiling disabled", zap.Error(err))
	}
	defer stopProfiling()

	client, err := conn.New(cfg.Database)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer func() { _ = client.Close() }()

	ex, err := exchange.New(cfg.Exchange, logger)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if len(cfg.Report.AuthorisedIPAddresses) == 0 {
		logger.Warn("report.authorised_ip_addresses is empty, every client is allowed")
	}

	srv := report.NewServer(store.New(client.DB()), ex, reg, report.Config{
		AuthorisedIPs:  cfg.Report.AuthorisedIPAddresses,
		TrustedProxies: cfg.Report.TrustedProxies,
		CORSOrigins:    cfg.Report.CORSOrigins,
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ctx, cfg.Report.Addr)
	}()

	select {
	case <-sys.Shutdown():
		logger.Info("shutdown signal received")
		cancel()
		err = <-errCh
	case err = <-errCh:
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
