package exchange

import (
	"context"
	"encoding/csv"
	"os"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"algotrading/internal/errors"
	"algotrading/internal/schema"
	"algotrading/pkg/exception"
)

const (
	sideAsk = "ask"
	sideBid = "bid"
)

var (
	defaultLiquidity  = decimal.RequireFromString("2000")
	defaultPrice      = decimal.RequireFromString("14.83")
	defaultCommission = decimal.RequireFromString("0.1")
)

// Simulator fills every trade at its quoted ask price.
// Each requested unit is appended to the trade file as "side,symbol,target".
type Simulator struct {
	logger *zap.Logger

	mu         sync.Mutex
	tradeFile  string
	liquidity  decimal.Decimal
	price      decimal.Decimal
	prices     map[string]decimal.Decimal
	commission decimal.Decimal
	now        func() time.Time
}

type SimulatorOption func(*Simulator)

func WithTradeFile(path string) SimulatorOption {
	return func(s *Simulator) { s.tradeFile = path }
}

func WithLiquidity(v decimal.Decimal) SimulatorOption {
	return func(s *Simulator) { s.liquidity = v }
}

// WithDefaultPrice sets the price quoted for symbols without their own price.
func WithDefaultPrice(v decimal.Decimal) SimulatorOption {
	return func(s *Simulator) { s.price = v }
}

func WithPrice(symbol string, v decimal.Decimal) SimulatorOption {
	return func(s *Simulator) { s.prices[symbol] = v }
}

// WithCommission records the commission rate. It is reported, not charged.
func WithCommission(v decimal.Decimal) SimulatorOption {
	return func(s *Simulator) { s.commission = v }
}

func WithClock(now func() time.Time) SimulatorOption {
	return func(s *Simulator) { s.now = now }
}

func NewSimulator(logger *zap.Logger, opts ...SimulatorOption) *Simulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Simulator{
		logger:     logger,
		liquidity:  defaultLiquidity,
		price:      defaultPrice,
		prices:     make(map[string]decimal.Decimal),
		commission: defaultCommission,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Simulator) Commission() decimal.Decimal {
	return s.commission
}

func (s *Simulator) Ask(ctx context.Context, symbol string, units int64, target decimal.Decimal) (schema.ExecutedTrade, decimal.Decimal, error) {
	return s.execute(ctx, sideAsk, schema.ActionSell, symbol, units, target)
}

func (s *Simulator) Bid(ctx context.Context, symbol string, units int64, target decimal.Decimal) (schema.ExecutedTrade, decimal.Decimal, error) {
	return s.execute(ctx, sideBid, schema.ActionBuy, symbol, units, target)
}

func (s *Simulator) Liquidity(ctx context.Context, _ string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	return s.liquidity, nil
}

// IsOpen is always true: the simulator never closes.
func (s *Simulator) IsOpen(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Simulator) AskPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.prices[symbol]; ok {
		return p, nil
	}
	return s.price, nil
}

func (s *Simulator) execute(ctx context.Context, side string, action schema.Action, symbol string, units int64, target decimal.Decimal) (schema.ExecutedTrade, decimal.Decimal, error) {
	if units <= 0 {
		return schema.ExecutedTrade{}, decimal.Zero, errors.Wrapf(exception.ErrInvalidTrade, "%s %d %s", side, units, symbol)
	}
	if err := ctx.Err(); err != nil {
		return schema.ExecutedTrade{}, decimal.Zero, err
	}

	if err := s.record(side, symbol, units, target); err != nil {
		return schema.ExecutedTrade{}, decimal.Zero, errors.Wrap(err, "write trade file")
	}

	price, err := s.AskPrice(ctx, symbol)
	if err != nil {
		return schema.ExecutedTrade{}, decimal.Zero, err
	}

	executed := schema.ExecutedTrade{
		Action: action,
		Symbol: symbol,
		Units:  units,
		Price:  price,
		Requested: schema.Trade{
			Action:      action,
			Symbol:      symbol,
			Units:       units,
			TargetValue: target,
		},
		ExecutedAt: s.now().UTC(),
	}
	s.logger.Info("simulated trade",
		zap.String("side", side),
		zap.String("symbol", symbol),
		zap.Int64("units", units),
		zap.Stringer("target", target),
		zap.Stringer("price", price))
	return executed, executed.Amount(), nil
}

func (s *Simulator) record(side, symbol string, units int64, target decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tradeFile == "" {
		return nil
	}

	f, err := os.OpenFile(s.tradeFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	row := []string{side, symbol, target.String()}
	for i := int64(0); i < units; i++ {
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
