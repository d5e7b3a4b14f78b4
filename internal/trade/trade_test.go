package trade

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"algotrading/internal/risk"
	"algotrading/internal/schema"
	"algotrading/internal/state"
	"algotrading/internal/strategy"
	"algotrading/pkg/exception"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fakeExchange struct {
	mu        sync.Mutex
	prices    map[string]decimal.Decimal
	liquidity decimal.Decimal
	failOn    map[int]error
	block     bool
	calls     []string
}

func newFakeExchange(prices map[string]string) *fakeExchange {
	f := &fakeExchange{prices: map[string]decimal.Decimal{}, liquidity: d("2000"), failOn: map[int]error{}}
	for s, p := range prices {
		f.prices[s] = d(p)
	}
	return f
}

func (f *fakeExchange) fill(ctx context.Context, action schema.Action, symbol string, units int64, target decimal.Decimal) (schema.ExecutedTrade, decimal.Decimal, error) {
	f.mu.Lock()
	n := len(f.calls)
	f.calls = append(f.calls, string(action)+" "+symbol)
	err := f.failOn[n]
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return schema.ExecutedTrade{}, decimal.Zero, ctx.Err()
	}
	if err != nil {
		return schema.ExecutedTrade{}, decimal.Zero, err
	}
	price := f.prices[symbol]
	t := schema.ExecutedTrade{
		Action:    action,
		Symbol:    symbol,
		Units:     units,
		Price:     price,
		Requested: schema.Trade{Action: action, Symbol: symbol, Units: units, TargetValue: target},
	}
	return t, t.Amount(), nil
}

func (f *fakeExchange) Ask(ctx context.Context, symbol string, units int64, target decimal.Decimal) (schema.ExecutedTrade, decimal.Decimal, error) {
	return f.fill(ctx, schema.ActionSell, symbol, units, target)
}

func (f *fakeExchange) Bid(ctx context.Context, symbol string, units int64, target decimal.Decimal) (schema.ExecutedTrade, decimal.Decimal, error) {
	return f.fill(ctx, schema.ActionBuy, symbol, units, target)
}

func (f *fakeExchange) Liquidity(context.Context, string) (decimal.Decimal, error) {
	return f.liquidity, nil
}

func (f *fakeExchange) AskPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	p, ok := f.prices[symbol]
	if !ok {
		return decimal.Zero, exception.ErrUnknownSymbol
	}
	return p, nil
}

func signal(action schema.Action, symbol, target string) schema.Signal {
	var s schema.Signal
	switch action {
	case schema.ActionBuy:
		s.Buy(symbol, d(target))
	case schema.ActionSell:
		s.Sell(symbol, d(target))
	default:
		s.Hold(symbol)
	}
	return s
}

func TestProposeExposureSkip(t *testing.T) {
	ex := newFakeExchange(map[string]string{"X": "5", "Y": "1"})
	pf := state.NewPortfolio(1, "test", d("1000"), map[string]int64{"X": 10, "Y": 0})
	defs := []strategy.Definition{
		{Name: "s1", Symbol: "X"},
		{Name: "s2", Symbol: "Y"},
	}
	signals := []schema.Signal{signal(schema.ActionBuy, "X", "5"), signal(schema.ActionBuy, "Y", "5")}
	profiles := map[string]schema.RiskProfile{
		"s1": {schema.LimitMaxExposure: d("54")},
		"s2": {schema.LimitMaxExposure: d("54")},
	}

	proposal, err := NewProposer(ex, pf, nil, nil).Propose(context.Background(), defs, signals, profiles)
	require.NoError(t, err)

	require.Len(t, proposal.Trades, 1)
	assert.Equal(t, "Y", proposal.Trades[0].Symbol)
	assert.Equal(t, "s2", proposal.Trades[0].Strategy)
	assert.Equal(t, int64(1), proposal.Trades[0].Units)

	require.Len(t, proposal.Skipped, 1)
	skipped := proposal.Skipped[0]
	assert.Equal(t, "s1", skipped.Strategy)
	assert.Equal(t, risk.ReasonExposure, skipped.Reason)
	assert.True(t, skipped.Observed.Equal(d("55")))
	assert.ErrorIs(t, skipped.Err(), exception.ErrRiskLimitExceeded)
}

func TestProposeLiquiditySkip(t *testing.T) {
	ex := newFakeExchange(map[string]string{"X": "5"})
	pf := state.NewPortfolio(1, "test", d("1000"), map[string]int64{"X": 0})
	defs := []strategy.Definition{{Name: "s1", Symbol: "X"}}
	signals := []schema.Signal{signal(schema.ActionBuy, "X", "5")}

	for _, tc := range []struct {
		limit   string
		trades  int
		skipped int
	}{
		{"1999", 1, 0},
		{"2000", 1, 0},
		{"2001", 0, 1},
	} {
		t.Run(tc.limit, func(t *testing.T) {
			profiles := map[string]schema.RiskProfile{"s1": {schema.LimitMinLiquidity: d(tc.limit)}}
			proposal, err := NewProposer(ex, pf, nil, nil).Propose(context.Background(), defs, signals, profiles)
			require.NoError(t, err)
			assert.Len(t, proposal.Trades, tc.trades)
			assert.Len(t, proposal.Skipped, tc.skipped)
		})
	}
}

func TestProposeStructuralFailures(t *testing.T) {
	ex := newFakeExchange(map[string]string{"X": "5", "Z": "5"})
	defs := []strategy.Definition{
		{Name: "s0", Symbol: "X"},
		{Name: "s1", Symbol: "Z"},
	}

	t.Run("insufficient capital", func(t *testing.T) {
		pf := state.NewPortfolio(1, "test", d("4"), map[string]int64{"X": 0, "Z": 0})
		signals := []schema.Signal{signal(schema.ActionSell, "X", "1"), signal(schema.ActionBuy, "Z", "5")}

		proposal, err := NewProposer(ex, pf, nil, nil).Propose(context.Background(), defs, signals, nil)
		require.Error(t, err)
		assert.Empty(t, proposal.Trades)
		assert.ErrorIs(t, err, exception.ErrInsufficientCapital)

		var ic *InsufficientCapitalError
		require.True(t, errors.As(err, &ic))
		assert.Equal(t, "s1", ic.Strategy)
		assert.True(t, ic.Required.Equal(d("5")))
		assert.True(t, ic.Available.Equal(d("4")))
	})

	t.Run("buys together exceed cash", func(t *testing.T) {
		pf := state.NewPortfolio(1, "test", d("100"), map[string]int64{"X": 0, "Z": 0})
		signals := []schema.Signal{signal(schema.ActionBuy, "X", "60"), signal(schema.ActionBuy, "Z", "60")}

		proposal, err := NewProposer(ex, pf, nil, nil).Propose(context.Background(), defs, signals, nil)
		assert.ErrorIs(t, err, exception.ErrInsufficientCapital)
		assert.Empty(t, proposal.Trades)

		var ic *InsufficientCapitalError
		require.True(t, errors.As(err, &ic))
		assert.Equal(t, "s1", ic.Strategy)
		assert.True(t, ic.Required.Equal(d("60")))
		assert.True(t, ic.Available.Equal(d("40")), ic.Available.String())
		assert.True(t, pf.Cash().Equal(d("100")))
	})

	t.Run("buys exactly spend cash", func(t *testing.T) {
		pf := state.NewPortfolio(1, "test", d("120"), map[string]int64{"X": 0, "Z": 0})
		signals := []schema.Signal{signal(schema.ActionBuy, "X", "60"), signal(schema.ActionBuy, "Z", "60")}

		proposal, err := NewProposer(ex, pf, nil, nil).Propose(context.Background(), defs, signals, nil)
		require.NoError(t, err)
		assert.Len(t, proposal.Trades, 2)
	})

	t.Run("unknown asset", func(t *testing.T) {
		pf := state.NewPortfolio(1, "test", d("100"), map[string]int64{"X": 0})
		signals := []schema.Signal{signal(schema.ActionBuy, "X", "1"), signal(schema.ActionBuy, "Z", "1")}

		_, err := NewProposer(ex, pf, nil, nil).Propose(context.Background(), defs, signals, nil)
		assert.ErrorIs(t, err, exception.ErrUnknownAsset)

		var ua *UnknownAssetError
		require.True(t, errors.As(err, &ua))
		assert.Equal(t, "Z", ua.Symbol)
	})

	t.Run("risk skip wins over unknown asset", func(t *testing.T) {
		pf := state.NewPortfolio(1, "test", d("100"), map[string]int64{"X": 0})
		signals := []schema.Signal{signal(schema.ActionBuy, "Z", "10")}
		profiles := map[string]schema.RiskProfile{"s1": {schema.LimitMaxExposure: d("1")}}

		proposal, err := NewProposer(ex, pf, nil, nil).Propose(context.Background(), defs, signals, profiles)
		require.NoError(t, err)
		assert.Empty(t, proposal.Trades)
		assert.Len(t, proposal.Skipped, 1)
	})
}

func TestProposeHoldAndMissingSignals(t *testing.T) {
	ex := newFakeExchange(map[string]string{"X": "5"})
	pf := state.NewPortfolio(1, "test", d("100"), map[string]int64{"X": 1})
	defs := []strategy.Definition{
		{Name: "s1", Symbol: "X"},
		{Name: "s2", Symbol: "NOSIGNAL"},
	}
	proposal, err := NewProposer(ex, pf, nil, nil).Propose(context.Background(), defs, []schema.Signal{signal(schema.ActionHold, "X", "")}, nil)
	require.NoError(t, err)
	assert.Empty(t, proposal.Trades)
	assert.Empty(t, proposal.Skipped)
}

type recorder struct {
	indexes []int
}

func (r *recorder) TradeExecuted(index int, _ schema.ExecutedTrade) {
	r.indexes = append(r.indexes, index)
}

func TestExecuteAppliesFills(t *testing.T) {
	ex := newFakeExchange(map[string]string{"A": "10", "B": "5"})
	pf := state.NewPortfolio(1, "test", d("100"), map[string]int64{"A": 5, "B": 0})
	rec := &recorder{}
	exec := NewExecutor(ex, pf, time.Second, nil, nil)
	exec.Notifier = rec

	trades := []schema.Trade{
		{Strategy: "s1", Action: schema.ActionSell, Symbol: "A", Units: 2, TargetValue: d("10")},
		{Strategy: "s2", Action: schema.ActionBuy, Symbol: "B", Units: 1, TargetValue: d("5")},
	}
	executed, err := exec.Execute(context.Background(), trades)
	require.NoError(t, err)
	require.Len(t, executed, 2)

	assert.True(t, pf.Cash().Equal(d("115")), pf.Cash().String())
	assert.Equal(t, int64(3), pf.Units("A"))
	assert.Equal(t, int64(1), pf.Units("B"))
	assert.Equal(t, []string{"sell A", "buy B"}, ex.calls)
	assert.Equal(t, []int{0, 1}, rec.indexes)
	assert.Equal(t, "s1", executed[0].Requested.Strategy)
}

func TestExecutePartialFailure(t *testing.T) {
	ex := newFakeExchange(map[string]string{"A": "10", "B": "5", "C": "1"})
	boom := errors.New("venue rejected")
	ex.failOn[1] = boom
	pf := state.NewPortfolio(1, "test", d("100"), map[string]int64{"A": 0, "B": 0, "C": 0})

	trades := []schema.Trade{
		{Action: schema.ActionBuy, Symbol: "A", Units: 1, TargetValue: d("10")},
		{Action: schema.ActionBuy, Symbol: "B", Units: 1, TargetValue: d("5")},
		{Action: schema.ActionBuy, Symbol: "C", Units: 1, TargetValue: d("1")},
	}
	executed, err := NewExecutor(ex, pf, time.Second, nil, nil).Execute(context.Background(), trades)
	require.Error(t, err)
	assert.ErrorIs(t, err, exception.ErrExchangeExecution)
	assert.ErrorIs(t, err, boom)

	var ee *ExecutionError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, 1, ee.Index)
	assert.Equal(t, "B", ee.Trade.Symbol)

	require.Len(t, executed, 1)
	assert.Equal(t, "A", executed[0].Symbol)
	assert.Len(t, ex.calls, 2)

	// the first fill stays applied
	assert.Equal(t, int64(1), pf.Units("A"))
	assert.Equal(t, int64(0), pf.Units("B"))
	assert.True(t, pf.Cash().Equal(d("90")))
}

func TestExecuteTimeout(t *testing.T) {
	ex := newFakeExchange(map[string]string{"A": "10"})
	ex.block = true
	pf := state.NewPortfolio(1, "test", d("100"), map[string]int64{"A": 0})

	executed, err := NewExecutor(ex, pf, 20*time.Millisecond, nil, nil).Execute(context.Background(),
		[]schema.Trade{{Action: schema.ActionBuy, Symbol: "A", Units: 1, TargetValue: d("10")}})
	assert.Empty(t, executed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, exception.ErrExchangeExecution)
	assert.True(t, pf.Cash().Equal(d("100")))
}

func TestExecuteRejects(t *testing.T) {
	ex := newFakeExchange(map[string]string{"A": "10"})
	pf := state.NewPortfolio(1, "test", d("100"), map[string]int64{"A": 1})

	_, err := NewExecutor(ex, pf, time.Second, nil, nil).Execute(context.Background(),
		[]schema.Trade{{Action: schema.ActionHold, Symbol: "A", Units: 1}})
	assert.ErrorIs(t, err, exception.ErrInvalidTrade)
	assert.Empty(t, ex.calls)

	executed, err := NewExecutor(ex, pf, time.Second, nil, nil).Execute(context.Background(),
		[]schema.Trade{{Action: schema.ActionSell, Symbol: "A", Units: 2, TargetValue: d("10")}})
	assert.Empty(t, executed)
	assert.ErrorIs(t, err, exception.ErrNegativeUnits)
	assert.Empty(t, ex.calls)
}
