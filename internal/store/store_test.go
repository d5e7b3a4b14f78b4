package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"algotrading/internal/schema"
	"algotrading/internal/state"
	"algotrading/pkg/exception"
)

const fixture = `
risk_profiles:
  - name: default
    limits:
      max_exposure: "1000"
      min_liquidity: "500"
strategies:
  - name: s1
    method: fixed
    args: "A,sell,10"
    symbol: A
    risk_profile: default
  - name: s2
    method: hold
    args: B
    symbol: B
    risk_profile: default
portfolios:
  - name: test_portfolio
    exchange: simulator
    capital: "100"
    assets:
      A: 5
      B: 0
ticks:
  - {symbol: A, price: "10", volume: 3, observed_at: 2024-03-01T11:00:00Z}
  - {symbol: A, price: "10.5", volume: 1, observed_at: 2024-03-01T11:30:00Z}
  - {symbol: B, price: "5", volume: 2, observed_at: 2024-03-01T11:10:00Z}
`

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	s := New(db)
	require.NoError(t, s.Migrate(context.Background()))

	f, err := ReadFixture(strings.NewReader(fixture))
	require.NoError(t, err)
	require.NoError(t, s.Seed(context.Background(), f))
	return s
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestStrategies(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	defs, missing, err := s.Strategies(ctx, []string{"s2", "s1"})
	require.NoError(t, err)
	assert.Empty(t, missing)
	require.Len(t, defs, 2)
	assert.Equal(t, "s2", defs[0].Name)
	assert.Equal(t, []string{"A", "sell", "10"}, defs[1].Args)
	assert.Equal(t, "A", defs[1].Symbol)

	defs, missing, err = s.Strategies(ctx, []string{"ghost", "s1", "other"})
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "s1", defs[0].Name)
	assert.Equal(t, []string{"ghost", "other"}, missing)

	all, err := s.AllStrategies(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	one, err := s.StrategyByID(ctx, all[0].ID)
	require.NoError(t, err)
	assert.Equal(t, all[0], one)

	_, err = s.StrategyByID(ctx, 999)
	assert.ErrorIs(t, err, exception.ErrRecordNotFound)
}

func TestRiskLimits(t *testing.T) {
	s := newTestStore(t)
	defs, _, err := s.Strategies(context.Background(), []string{"s1"})
	require.NoError(t, err)

	limits, err := s.RiskLimits(context.Background(), defs[0].RiskProfileID)
	require.NoError(t, err)
	assert.True(t, limits[schema.LimitMaxExposure].Equal(d("1000")))
	assert.True(t, limits[schema.LimitMinLiquidity].Equal(d("500")))

	_, err = s.RiskLimits(context.Background(), 42)
	assert.ErrorIs(t, err, exception.ErrRecordNotFound)
}

func TestPortfolioRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	snap, err := s.LoadPortfolio(ctx, "test_portfolio")
	require.NoError(t, err)
	assert.Equal(t, "simulator", snap.Exchange)
	assert.True(t, snap.Cash.Equal(d("100")))

	p := state.Restore(snap)
	require.NoError(t, p.ApplySell("A", 2, d("20")))
	require.NoError(t, p.ApplyBuy("B", 1, d("5")))
	require.NoError(t, s.SavePortfolio(ctx, p.Snapshot()))

	reloaded, err := s.LoadPortfolio(ctx, "test_portfolio")
	require.NoError(t, err)
	require.NoError(t, state.CompareSnapshots(p.Snapshot(), state.Restore(reloaded).Snapshot()))
	assert.True(t, reloaded.Cash.Equal(d("115")))

	byID, err := s.PortfolioByID(ctx, snap.PortfolioID)
	require.NoError(t, err)
	assert.Equal(t, "test_portfolio", byID.Name)

	_, err = s.LoadPortfolio(ctx, "nope")
	assert.ErrorIs(t, err, exception.ErrRecordNotFound)

	err = s.SavePortfolio(ctx, state.Snapshot{PortfolioID: 999})
	assert.ErrorIs(t, err, exception.ErrRecordNotFound)
}

func TestValuations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveValuation(ctx, 1, base.Add(-48*time.Hour), d("90")))
	require.NoError(t, s.SaveValuation(ctx, 1, base.Add(-time.Hour), d("100")))
	require.NoError(t, s.SaveValuation(ctx, 1, base, d("115")))
	require.NoError(t, s.SaveValuation(ctx, 2, base, d("1")))

	rows, err := s.Valuations(ctx, 1, base.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].Value.Equal(d("100")))
	assert.True(t, rows[1].Value.Equal(d("115")))
}

func TestSignalsAndJobs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	jobID := uuid.NewString()

	var buy, hold schema.Signal
	buy.Buy("A", d("10"))
	buy.Strategy = "s1"
	hold.Hold("B")
	require.NoError(t, s.SaveSignals(ctx, jobID, []schema.Signal{buy, hold}))

	rows, err := s.Signals(ctx, jobID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "buy", rows[0].Action)
	assert.True(t, rows[0].TargetValue.Valid)
	assert.False(t, rows[1].TargetValue.Valid)

	job := Job{ID: jobID, Name: "batch", FinishState: "running"}
	require.NoError(t, s.SaveJob(ctx, job))
	job.FinishState = "succeeded"
	job.ElapsedSeconds = 1.5
	require.NoError(t, s.SaveJob(ctx, job))

	got, err := s.Job(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, "succeeded", got.FinishState)
	assert.Equal(t, 1.5, got.ElapsedSeconds)

	_, err = s.Job(ctx, "missing")
	assert.ErrorIs(t, err, exception.ErrRecordNotFound)
}

func TestTicks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	after := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	before := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	ticks, err := s.Ticks(ctx, "A", after, before)
	require.NoError(t, err)
	require.Len(t, ticks, 2)
	assert.True(t, ticks[1].Price.Equal(d("10.5")))

	require.NoError(t, s.SaveTicks(ctx, []schema.Tick{{Symbol: "A", Price: d("11"), ObservedAt: before.Add(-time.Minute)}}))
	ticks, err = s.Ticks(ctx, "A", after, before)
	require.NoError(t, err)
	assert.Len(t, ticks, 3)

	latest, err := s.LatestTickTime(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, before.Add(-time.Minute), latest)

	latest, err = s.LatestTickTime(ctx, "ZZ")
	require.NoError(t, err)
	assert.True(t, latest.IsZero())
}

func TestSeedIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	f, err := ReadFixture(strings.NewReader(fixture))
	require.NoError(t, err)
	f.Ticks = nil
	require.NoError(t, s.Seed(context.Background(), f))

	all, err := s.AllStrategies(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestReadFixtureRejectsUnknownFields(t *testing.T) {
	_, err := ReadFixture(strings.NewReader("portfolio: []\n"))
	assert.Error(t, err)
}
