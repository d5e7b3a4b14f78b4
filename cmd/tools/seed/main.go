package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"algotrading/internal/obs"
	"algotrading/internal/ops"
	"algotrading/internal/state"
	"algotrading/internal/store"
	"algotrading/pkg/conn"
)

// seed migrates the schema, loads a YAML fixture and optionally exports a
// portfolio snapshot for snapshot-driven passes.
func main() {
	environment := flag.String("environment", "", "Environment name, selects <config-dir>/<environment>.yaml")
	configPath := flag.String("config", "", "Path to YAML config")
	configDir := flag.String("config-dir", "config", "Directory holding <environment>.yaml")
	envFile := flag.String("env-file", ".env", "Optional dotenv file loaded before the config")
	fixture := flag.String("fixture", "config/fixture.yaml", "YAML fixture to load (empty: migrate only)")
	exportPortfolio := flag.String("export-portfolio", "", "Portfolio name to write as a snapshot")
	exportPath := flag.String("export-path", "portfolio.json", "Snapshot output path")
	flag.Parse()

	cfg, err := ops.Load(ops.LoadOptions{Environment: *environment, Path: *configPath, Dir: *configDir, EnvFile: *envFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
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

	ctx := context.Background()
	st := store.New(client.DB())
	if err := st.Migrate(ctx); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}
	logger.Info("schema migrated", zap.String("driver", client.Driver()))

	if *fixture != "" {
		if err := st.SeedFile(ctx, *fixture); err != nil {
			logger.Fatal("seed", zap.String("fixture", *fixture), zap.Error(err))
		}
		logger.Info("fixture loaded", zap.String("fixture", *fixture))
	}

	if *exportPortfolio != "" {
		snap, err := st.LoadPortfolio(ctx, *exportPortfolio)
		if err != nil {
			logger.Fatal("load portfolio", zap.String("portfolio", *exportPortfolio), zap.Error(err))
		}
		if err := state.WriteSnapshot(*exportPath, snap); err != nil {
			logger.Fatal("write snapshot", zap.String("path", *exportPath), zap.Error(err))
		}
		logger.Info("snapshot written", zap.String("portfolio", snap.Name), zap.String("path", *exportPath))
	}
}
