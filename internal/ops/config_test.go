package ops

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"algotrading/pkg/exception"
)

const sample = `
environment: test
logs_dir: /tmp/logs
database:
  driver: sqlite
  path: ":memory:"
exchange:
  mode: simulate
  trade_file: trades.csv
  prices:
    A: "10"
pass:
  portfolio: test_portfolio
  strategies: [s1, s2]
  risk_appetite: "1.5"
report:
  authorised_ip_addresses: ["127.0.0.1"]
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	cfg, err := Load(LoadOptions{Path: writeConfig(t, sample), Now: now})
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Environment)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "10", cfg.Exchange.Prices["a"])
	assert.Equal(t, []string{"s1", "s2"}, cfg.Pass.Strategies)
	assert.Equal(t, "1.5", cfg.RiskAppetite.String())
	assert.Equal(t, 4, cfg.Pass.Workers)
	assert.Equal(t, 10*time.Second, cfg.Pass.ExchangeTimeout)
	assert.Equal(t, "memory", cfg.Lock.Driver)
	assert.Equal(t, now, cfg.RunAt)
	assert.Equal(t, []string{"127.0.0.1"}, cfg.Report.AuthorisedIPAddresses)
	require.NoError(t, cfg.ValidatePass())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ALGOTRADING_PASS_WORKERS", "9")

	cfg, err := Load(LoadOptions{
		Path: writeConfig(t, sample),
		Overrides: Overrides{
			Strategies:   []string{"s3"},
			Mode:         "EXECUTE",
			RiskAppetite: "0.5",
			DryRun:       true,
			RunDate:      "20240102",
			RunTime:      "030405",
		},
		Now: time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.Equal(t, 9, cfg.Pass.Workers)
	assert.Equal(t, []string{"s3"}, cfg.Pass.Strategies)
	assert.Equal(t, "execute", cfg.Exchange.Mode)
	assert.Equal(t, "0.5", cfg.RiskAppetite.String())
	assert.True(t, cfg.Pass.DryRun)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), cfg.RunAt)
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("ALGOTRADING_LOG_LEVEL=debug\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("ALGOTRADING_LOG_LEVEL") })

	cfg, err := Load(LoadOptions{Path: writeConfig(t, sample), EnvFile: envFile})
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadByEnvironment(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prod.yaml"), []byte(sample), 0o644))

	cfg, err := Load(LoadOptions{Environment: "PROD", Dir: dir})
	require.NoError(t, err)
	assert.Equal(t, "prod", cfg.Environment)
	assert.Equal(t, filepath.Join(dir, "prod.yaml"), cfg.ConfigPath)
}

func TestLoadInvalid(t *testing.T) {
	testCases := []struct {
		desc      string
		overrides Overrides
		wantErr   error
	}{
		{"bad mode", Overrides{Mode: "paper"}, exception.ErrUnsupportedMode},
		{"bad appetite", Overrides{RiskAppetite: "lots"}, exception.ErrInvalidConfig},
		{"negative appetite", Overrides{RiskAppetite: "-1"}, exception.ErrInvalidConfig},
		{"bad run date", Overrides{RunDate: "2024-01-01"}, exception.ErrInvalidConfig},
	}
	path := writeConfig(t, sample)
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := Load(LoadOptions{Path: path, Overrides: tc.overrides})
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}

	_, err := Load(LoadOptions{Path: filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)
}

func TestValidatePass(t *testing.T) {
	cfg, err := Load(LoadOptions{Path: writeConfig(t, "exchange:\n  mode: simulate\n")})
	require.NoError(t, err)
	assert.ErrorIs(t, cfg.ValidatePass(), exception.ErrInvalidConfig)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"s1", "s2"}, SplitList(" s1, ,s2 "))
	assert.Nil(t, SplitList(""))
}
