package strategy

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"algotrading/internal/schema"
	"algotrading/pkg/exception"
)

type fakeData struct {
	ticks map[string][]schema.Tick
}

func (f fakeData) Latest(symbol string, before time.Time) (schema.Tick, error) {
	ts := f.ticks[symbol]
	for i := len(ts) - 1; i >= 0; i-- {
		if ts[i].ObservedAt.Before(before) {
			return ts[i], nil
		}
	}
	return schema.Tick{}, exception.ErrNoTicks
}

func (f fakeData) Ticks(symbol string, after, before time.Time) ([]schema.Tick, error) {
	var out []schema.Tick
	for _, t := range f.ticks[symbol] {
		if t.ObservedAt.After(after) && t.ObservedAt.Before(before) {
			out = append(out, t)
		}
	}
	return out, nil
}

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func tick(symbol, price string, ago time.Duration) schema.Tick {
	return schema.Tick{Symbol: symbol, Price: decimal.RequireFromString(price), ObservedAt: now.Add(-ago)}
}

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	reg := NewRegistry()
	require.NoError(t, RegisterBuiltins(reg))
	return NewRunner(reg, 4, nil, nil)
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, RegisterBuiltins(reg))
	assert.Equal(t, []string{MethodFixed, MethodHold, MethodMeanReversion, MethodThreshold}, reg.Names())

	err := reg.Register(MethodHold, Hold)
	assert.ErrorIs(t, err, exception.ErrStrategyExists)

	err = reg.Register("", Hold)
	assert.ErrorIs(t, err, exception.ErrInvalidArgument)

	_, ok := reg.Resolve("missing")
	assert.False(t, ok)
}

func TestEvaluate(t *testing.T) {
	r := newTestRunner(t)
	require.NoError(t, r.Registry.Register("boom", func(*Context, []string) (schema.Signal, error) {
		panic("boom")
	}))
	require.NoError(t, r.Registry.Register("bad_signal", func(sc *Context, _ []string) (schema.Signal, error) {
		sig := sc.Signal()
		sig.Buy("AAPL", decimal.Zero)
		return *sig, nil
	}))
	sc := NewContext(now, nil, nil)

	testCases := []struct {
		desc    string
		def     Definition
		want    string
		wantErr error
	}{
		{"hold", Definition{Name: "s1", Method: MethodHold, Args: []string{"AAPL"}}, "[hold AAPL]", nil},
		{"fixed buy", Definition{Name: "s2", Method: MethodFixed, Args: []string{"AAPL", "buy", "10"}}, "[buy AAPL @ 10]", nil},
		{"fixed sell", Definition{Name: "s3", Method: MethodFixed, Args: []string{"AAPL", "SELL", "12.5"}}, "[sell AAPL @ 12.5]", nil},
		{"unknown method", Definition{Name: "s4", Method: "nope"}, "", exception.ErrStrategyNotFound},
		{"missing args", Definition{Name: "s5", Method: MethodFixed, Args: []string{"AAPL"}}, "", exception.ErrStrategyArgs},
		{"panic", Definition{Name: "s6", Method: "boom"}, "", exception.ErrStrategyEvaluation},
		{"invalid signal", Definition{Name: "s7", Method: "bad_signal"}, "", exception.ErrInvalidSignal},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			res := r.Evaluate(sc, tc.def)
			assert.Equal(t, tc.def.Name, res.Strategy)
			if tc.wantErr != nil {
				require.Error(t, res.Err)
				assert.ErrorIs(t, res.Err, tc.wantErr)
				assert.Nil(t, res.Signal)
				return
			}
			require.NoError(t, res.Err)
			require.NotNil(t, res.Signal)
			assert.Equal(t, tc.want, res.Signal.String())
			assert.Equal(t, tc.def.Name, res.Signal.Strategy)
			assert.Equal(t, now, res.Signal.Timestamp)
		})
	}
}

func TestNotFoundIsTyped(t *testing.T) {
	r := newTestRunner(t)
	res := r.Evaluate(NewContext(now, nil, nil), Definition{Name: "s", Method: "gone"})

	var nf *StrategyNotFoundError
	require.True(t, errors.As(res.Err, &nf))
	assert.Equal(t, "gone", nf.Method)
}

func TestNotFoundMessage(t *testing.T) {
	testCases := []struct {
		desc string
		err  *StrategyNotFoundError
		want string
	}{
		{"unknown method", &StrategyNotFoundError{Strategy: "s", Method: "gone"}, `strategy "s": method "gone" not found`},
		{"no definition", &StrategyNotFoundError{Strategy: "ghost"}, `strategy "ghost": no stored definition`},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.err.Error())
			assert.ErrorIs(t, tc.err, exception.ErrStrategyNotFound)
		})
	}
}

func TestEvaluateAllKeepsInputOrder(t *testing.T) {
	r := newTestRunner(t)
	var running, peak atomic.Int32
	require.NoError(t, r.Registry.Register("slow", func(sc *Context, args []string) (schema.Signal, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Add(-1)
		return Hold(sc, args)
	}))

	symbols := []string{"A", "B", "C", "D", "E", "F", "G", "H"}
	defs := make([]Definition, 0, len(symbols)+1)
	for _, s := range symbols {
		defs = append(defs, Definition{Name: "s_" + s, Method: "slow", Args: []string{s}})
	}
	defs = append(defs, Definition{Name: "missing", Method: "nope"})

	results := r.EvaluateAll(context.Background(), NewContext(now, nil, nil), defs)
	require.Len(t, results, len(defs))
	for i, s := range symbols {
		require.NoError(t, results[i].Err)
		assert.Equal(t, "s_"+s, results[i].Strategy)
		assert.Equal(t, s, results[i].Signal.Symbol)
	}
	assert.ErrorIs(t, results[len(defs)-1].Err, exception.ErrStrategyNotFound)
	assert.LessOrEqual(t, peak.Load(), int32(r.Workers))
}

func TestEvaluateAllCancelled(t *testing.T) {
	r := newTestRunner(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := r.EvaluateAll(ctx, NewContext(now, nil, nil), []Definition{{Name: "s", Method: MethodHold, Args: []string{"A"}}})
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, context.Canceled)
}

func TestThreshold(t *testing.T) {
	data := fakeData{ticks: map[string][]schema.Tick{
		"LOW":  {tick("LOW", "9", time.Minute)},
		"HIGH": {tick("HIGH", "21", time.Minute)},
		"MID":  {tick("MID", "15", time.Minute)},
	}}
	sc := NewContext(now, data, nil)

	testCases := []struct {
		symbol string
		want   string
	}{
		{"LOW", "[buy LOW @ 9]"},
		{"HIGH", "[sell HIGH @ 21]"},
		{"MID", "[hold MID]"},
	}
	for _, tc := range testCases {
		t.Run(tc.symbol, func(t *testing.T) {
			sig, err := Threshold(sc, []string{tc.symbol, "10", "20"})
			require.NoError(t, err)
			assert.Equal(t, tc.want, sig.String())
		})
	}

	_, err := Threshold(sc, []string{"NONE", "10", "20"})
	assert.ErrorIs(t, err, exception.ErrNoTicks)
}

func TestMeanReversion(t *testing.T) {
	data := fakeData{ticks: map[string][]schema.Tick{
		"DIP":  {tick("DIP", "100", 30*time.Minute), tick("DIP", "100", 20*time.Minute), tick("DIP", "85", time.Minute)},
		"POP":  {tick("POP", "100", 30*time.Minute), tick("POP", "100", 20*time.Minute), tick("POP", "120", time.Minute)},
		"FLAT": {tick("FLAT", "100", 30*time.Minute), tick("FLAT", "101", time.Minute)},
	}}
	sc := NewContext(now, data, nil)

	sig, err := MeanReversion(sc, []string{"DIP", "1h", "5"})
	require.NoError(t, err)
	assert.Equal(t, "[buy DIP @ 85]", sig.String())

	sig, err = MeanReversion(sc, []string{"POP", "1h", "5"})
	require.NoError(t, err)
	assert.Equal(t, "[sell POP @ 120]", sig.String())

	sig, err = MeanReversion(sc, []string{"FLAT", "1h", "5"})
	require.NoError(t, err)
	assert.Equal(t, "[hold FLAT]", sig.String())

	_, err = MeanReversion(sc, []string{"FLAT", "soon", "5"})
	assert.ErrorIs(t, err, exception.ErrStrategyArgs)
}

func TestParseArgs(t *testing.T) {
	assert.Nil(t, ParseArgs(""))
	assert.Equal(t, []string{"AAPL", "buy", "10"}, ParseArgs("AAPL, buy,10"))
}
