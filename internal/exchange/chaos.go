package exchange

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"algotrading/internal/errors"
	"algotrading/internal/schema"
	"algotrading/pkg/exception"
)

// ChaosConfig controls fault injection around an exchange.
type ChaosConfig struct {
	Seed       int64         `mapstructure:"seed"`
	RejectRate float64       `mapstructure:"reject_rate"`
	MaxDelay   time.Duration `mapstructure:"max_delay"`
}

func (c ChaosConfig) Enabled() bool {
	return c.RejectRate > 0 || c.MaxDelay > 0
}

// Validate ensures the config is within supported ranges.
func (c ChaosConfig) Validate() error {
	if c.RejectRate < 0 || c.RejectRate > 1 {
		return errors.Wrap(exception.ErrInvalidConfig, "chaos.reject_rate must be between 0 and 1")
	}
	if c.MaxDelay < 0 {
		return errors.Wrap(exception.ErrInvalidConfig, "chaos.max_delay must be >= 0")
	}
	return nil
}

// Chaos wraps an exchange and randomly rejects or delays orders. Quotes pass through.
type Chaos struct {
	Exchange
	cfg    ChaosConfig
	logger *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

func NewChaos(inner Exchange, cfg ChaosConfig, logger *zap.Logger) (*Chaos, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UTC().UnixNano()
	}
	return &Chaos{
		Exchange: inner,
		cfg:      cfg,
		logger:   logger,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

func (c *Chaos) Ask(ctx context.Context, symbol string, units int64, target decimal.Decimal) (schema.ExecutedTrade, decimal.Decimal, error) {
	if err := c.inject(ctx, "ask", symbol); err != nil {
		return schema.ExecutedTrade{}, decimal.Zero, err
	}
	return c.Exchange.Ask(ctx, symbol, units, target)
}

func (c *Chaos) Bid(ctx context.Context, symbol string, units int64, target decimal.Decimal) (schema.ExecutedTrade, decimal.Decimal, error) {
	if err := c.inject(ctx, "bid", symbol); err != nil {
		return schema.ExecutedTrade{}, decimal.Zero, err
	}
	return c.Exchange.Bid(ctx, symbol, units, target)
}

// IsOpen forwards to the wrapped exchange. Venues without a status are open.
func (c *Chaos) IsOpen(ctx context.Context) (bool, error) {
	if st, ok := c.Exchange.(Status); ok {
		return st.IsOpen(ctx)
	}
	return true, ctx.Err()
}

// inject sleeps for a random delay bounded by ctx, then maybe rejects.
func (c *Chaos) inject(ctx context.Context, side, symbol string) error {
	delay, reject := c.roll()
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	if reject {
		c.logger.Warn("chaos rejected order", zap.String("side", side), zap.String("symbol", symbol))
		return errors.Wrapf(exception.ErrExchangeExecution, "chaos rejected %s %s", side, symbol)
	}
	return nil
}

func (c *Chaos) roll() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var delay time.Duration
	if c.cfg.MaxDelay > 0 {
		delay = time.Duration(c.rng.Int63n(c.cfg.MaxDelay.Nanoseconds() + 1))
	}
	reject := c.cfg.RejectRate > 0 && c.rng.Float64() < c.cfg.RejectRate
	return delay, reject
}
