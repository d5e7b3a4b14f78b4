package trade

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"algotrading/internal/errors"
	"algotrading/internal/exchange"
	"algotrading/internal/obs"
	"algotrading/internal/schema"
	"algotrading/internal/state"
	"algotrading/pkg/exception"
)

// DefaultTimeout bounds a single exchange call.
const DefaultTimeout = 10 * time.Second

// Notifier is told about every applied fill, in execution order.
type Notifier interface {
	TradeExecuted(index int, trade schema.ExecutedTrade)
}

// Executor applies trades to a portfolio through an exchange.
type Executor struct {
	Exchange  exchange.Exchange
	Portfolio *state.Portfolio
	Timeout   time.Duration
	Logger    *zap.Logger
	Metrics   *obs.Metrics
	Notifier  Notifier
}

func NewExecutor(ex exchange.Exchange, portfolio *state.Portfolio, timeout time.Duration, logger *zap.Logger, metrics *obs.Metrics) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Executor{
		Exchange:  ex,
		Portfolio: portfolio,
		Timeout:   timeout,
		Logger:    logger,
		Metrics:   metrics,
	}
}

// Execute runs trades in order, one at a time, holding the portfolio lock for
// the whole batch. The first failure stops the batch: the fills made so far
// are returned together with an *ExecutionError and are not rolled back.
func (e *Executor) Execute(ctx context.Context, trades []schema.Trade) ([]schema.ExecutedTrade, error) {
	for i, t := range trades {
		if !t.Action.Tradable() || t.Units <= 0 {
			return nil, errors.Wrapf(exception.ErrInvalidTrade, "trade %d (%s)", i, t)
		}
	}

	e.Portfolio.Lock()
	defer e.Portfolio.Unlock()

	executed := make([]schema.ExecutedTrade, 0, len(trades))
	for i, t := range trades {
		fill, err := e.executeOne(ctx, t)
		if err != nil {
			e.Logger.Error("trade execution failed, stopping batch",
				zap.Int("index", i),
				zap.Stringer("trade", t),
				zap.Int("executed", len(executed)),
				zap.Int("remaining", len(trades)-i-1),
				zap.Error(err))
			return executed, &ExecutionError{Trade: t, Index: i, Err: err}
		}

		executed = append(executed, fill)
		e.Metrics.IncExecuted(string(fill.Action))
		e.Logger.Info("trade executed",
			zap.Int("index", i),
			zap.Stringer("fill", fill),
			zap.Stringer("cash", e.Portfolio.Cash()))
		if e.Notifier != nil {
			e.Notifier.TradeExecuted(i, fill)
		}
	}
	return executed, nil
}

func (e *Executor) executeOne(ctx context.Context, t schema.Trade) (schema.ExecutedTrade, error) {
	if t.Action == schema.ActionSell {
		if held := e.Portfolio.Units(t.Symbol); held < t.Units {
			return schema.ExecutedTrade{}, errors.Wrapf(exception.ErrNegativeUnits, "sell %d %s, holding %d", t.Units, t.Symbol, held)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	var (
		fill   schema.ExecutedTrade
		amount decimal.Decimal
		err    error
		call   string
	)
	start := time.Now()
	switch t.Action {
	case schema.ActionSell:
		call = "ask"
		fill, amount, err = e.Exchange.Ask(callCtx, t.Symbol, t.Units, t.TargetValue)
	case schema.ActionBuy:
		call = "bid"
		fill, amount, err = e.Exchange.Bid(callCtx, t.Symbol, t.Units, t.TargetValue)
	}
	e.Metrics.ObserveExchange(call, time.Since(start), err)
	if err != nil {
		return schema.ExecutedTrade{}, err
	}
	fill.Requested.Strategy = t.Strategy

	switch fill.Action {
	case schema.ActionSell:
		err = e.Portfolio.ApplySell(fill.Symbol, fill.Units, amount)
	case schema.ActionBuy:
		err = e.Portfolio.ApplyBuy(fill.Symbol, fill.Units, amount)
	default:
		err = errors.Wrapf(exception.ErrInvalidTrade, "fill action %q", fill.Action)
	}
	if err != nil {
		return schema.ExecutedTrade{}, err
	}
	if e.Portfolio.Cash().IsNegative() {
		e.Logger.Warn("cash below zero after fill", zap.Stringer("fill", fill), zap.Stringer("cash", e.Portfolio.Cash()))
	}
	return fill, nil
}
