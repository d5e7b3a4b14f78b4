package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"algotrading/internal/events"
	"algotrading/internal/exchange"
	"algotrading/internal/job"
	"algotrading/internal/lock"
	"algotrading/internal/obs"
	"algotrading/internal/ops"
	"algotrading/internal/pipeline"
	"algotrading/internal/store"
	"algotrading/pkg/conn"
)

var version = "dev"

func main() {
	environment := flag.String("environment", "", "Environment name, selects <config-dir>/<environment>.yaml")
	configPath := flag.String("config", "", "Path to YAML config (overrides -environment lookup)")
	configDir := flag.String("config-dir", "config", "Directory holding <environment>.yaml")
	envFile := flag.String("env-file", ".env", "Optional dotenv file loaded before the config")
	jobName := flag.String("job", "", "Job name used for the log file and the jobs table")
	strategies := flag.String("strategies", "", "Comma separated strategy names")
	mode := flag.String("mode", "", "Exchange mode: simulate or execute")
	portfolio := flag.String("portfolio", "", "Portfolio name")
	riskAppetite := flag.String("risk-appetite", "", "Risk appetite multiplier")
	runDate := flag.String("run-date", "", "Run date YYYYMMDD (default: today)")
	runTime := flag.String("run-time", "", "Run time HHMMSS (default: now)")
	dryRun := flag.Bool("dry-run", false, "Propose trades without executing them")
	migrate := flag.Bool("migrate", false, "Run schema migrations before the pass")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := ops.Load(ops.LoadOptions{
		Environment: *environment,
		Path:        *configPath,
		Dir:         *configDir,
		EnvFile:     *envFile,
		Overrides: ops.Overrides{
			Job:          *jobName,
			Strategies:   ops.SplitList(*strategies),
			Mode:         *mode,
			Portfolio:    *portfolio,
			RiskAppetite: *riskAppetite,
			DryRun:       *dryRun,
			RunDate:      *runDate,
			RunTime:      *runTime,
		},
	})
	if err == nil {
		err = cfg.ValidatePass()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	if err := run(ctx, cfg, *migrate); err != nil {
		fmt.Fprintf(os.Stderr, "trader: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg ops.Loaded, migrate bool) error {
	logPath := obs.LogFilePath(cfg.LogsDir, cfg.Pass.Job, cfg.RunAt)
	logger, err := obs.NewLogger(cfg.LogLevel, logPath, cfg.Environment != "prod")
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("trader starting",
		zap.String("version", version),
		zap.String("environment", cfg.Environment),
		zap.String("config", cfg.ConfigPath),
		zap.String("exchange_mode", cfg.Exchange.Mode),
		zap.String("database_driver", cfg.Database.Driver),
		zap.String("lock_driver", cfg.Lock.Driver),
		zap.Bool("events", cfg.Events.Enabled),
		zap.String("log_path", logPath),
	)

	stopProfiling, err := ops.StartProfiling(cfg.Profiling, cfg.Environment, logger)
	if err != nil {
		logger.Warn("profiling disabled", zap.Error(err))
	}
	defer stopProfiling()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := obs.NewMetrics(reg)
	if cfg.Metrics.Addr != "" {
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server", zap.Error(err))
			}
		}()
		defer func() { _ = srv.Close() }()
	}

	client, err := conn.New(cfg.Database)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer func() { _ = client.Close() }()

	st := store.New(client.DB())
	if migrate {
		if err := st.Migrate(ctx); err != nil {
			return err
		}
	}

	ex, err := exchange.New(cfg.Exchange, logger)
	if err != nil {
		return err
	}

	opts := []pipeline.Option{pipeline.WithMetrics(metrics)}
	if cfg.Lock.Driver == "redis" {
		locker := lock.NewRedis(cfg.Lock.Redis)
		defer func() { _ = locker.Close() }()
		opts = append(opts, pipeline.WithLocker(locker))
	}
	if cfg.Events.Enabled {
		publisher, err := events.NewKafkaPublisher(cfg.Events.Kafka, logger)
		if err != nil {
			return err
		}
		defer func() { _ = publisher.Close() }()
		opts = append(opts, pipeline.WithPublisher(publisher))
	}

	j := job.New(job.Info{
		Name:    cfg.Pass.Job,
		Script:  "trader",
		LogPath: logPath,
		Version: version,
	}, st, logger)
	opts = append(opts, pipeline.WithJob(j))

	pass, err := pipeline.NewPass(pipeline.Config{
		Strategies:      cfg.Pass.Strategies,
		Portfolio:       cfg.Pass.Portfolio,
		RiskAppetite:    cfg.RiskAppetite,
		Workers:         cfg.Pass.Workers,
		ExchangeTimeout: cfg.Pass.ExchangeTimeout,
		Lookback:        cfg.Pass.Lookback,
		StaleScope:      cfg.Pass.StaleScope,
		DryRun:          cfg.Pass.DryRun,
		SnapshotPath:    cfg.Pass.SnapshotPath,
		QueueSize:       cfg.Events.QueueSize,
		Now:             cfg.RunAt,
	}, st, ex, j.Logger(), opts...)
	if err != nil {
		return err
	}

	report, err := pass.Run(ctx)
	if report != nil {
		for _, w := range report.Warnings {
			logger.Warn("pass warning", zap.Error(w))
		}
		for _, t := range report.Executed {
			logger.Info("executed", zap.Stringer("trade", t))
		}
	}
	return err
}
