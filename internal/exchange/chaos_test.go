package exchange

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"algotrading/pkg/exception"
)

func TestChaosRejectsEverything(t *testing.T) {
	c, err := NewChaos(NewSimulator(nil), ChaosConfig{Seed: 7, RejectRate: 1}, nil)
	require.NoError(t, err)

	_, _, err = c.Bid(context.Background(), "A", 1, decimal.NewFromInt(10))
	assert.ErrorIs(t, err, exception.ErrExchangeExecution)
	_, _, err = c.Ask(context.Background(), "A", 1, decimal.NewFromInt(10))
	assert.ErrorIs(t, err, exception.ErrExchangeExecution)

	// quotes are not affected
	price, err := c.AskPrice(context.Background(), "A")
	require.NoError(t, err)
	assert.True(t, price.Equal(d("14.83")))
}

func TestChaosIsDeterministicPerSeed(t *testing.T) {
	outcomes := func() []bool {
		c, err := NewChaos(NewSimulator(nil), ChaosConfig{Seed: 42, RejectRate: 0.5}, nil)
		require.NoError(t, err)
		var out []bool
		for i := 0; i < 20; i++ {
			_, _, err := c.Bid(context.Background(), "A", 1, decimal.NewFromInt(1))
			out = append(out, err == nil)
		}
		return out
	}
	assert.Equal(t, outcomes(), outcomes())
}

func TestChaosDelayHonoursContext(t *testing.T) {
	c, err := NewChaos(NewSimulator(nil), ChaosConfig{Seed: 1, MaxDelay: time.Hour}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, _, err = c.Bid(ctx, "A", 1, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestChaosConfigValidate(t *testing.T) {
	testCases := []struct {
		desc    string
		cfg     ChaosConfig
		enabled bool
		valid   bool
	}{
		{"zero", ChaosConfig{}, false, true},
		{"reject", ChaosConfig{RejectRate: 0.1}, true, true},
		{"delay", ChaosConfig{MaxDelay: time.Millisecond}, true, true},
		{"rate too high", ChaosConfig{RejectRate: 1.5}, true, false},
		{"negative delay", ChaosConfig{MaxDelay: -1}, false, false},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Equal(t, tc.enabled, tc.cfg.Enabled())
			assert.Equal(t, tc.valid, tc.cfg.Validate() == nil)
		})
	}
}

func TestChaosIsOpen(t *testing.T) {
	c, err := NewChaos(NewSimulator(nil), ChaosConfig{Seed: 7, RejectRate: 1}, nil)
	require.NoError(t, err)

	open, err := c.IsOpen(context.Background())
	require.NoError(t, err)
	assert.True(t, open)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	open, err = c.IsOpen(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, open)
}
