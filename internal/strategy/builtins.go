package strategy

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"algotrading/internal/errors"
	"algotrading/internal/schema"
	"algotrading/pkg/exception"
)

// Builtin method names.
const (
	MethodHold          = "hold"
	MethodFixed         = "fixed"
	MethodThreshold     = "threshold"
	MethodMeanReversion = "mean_reversion"
)

// RegisterBuiltins registers the strategies shipped with the binary.
func RegisterBuiltins(r *Registry) error {
	builtins := []struct {
		name string
		fn   Func
	}{
		{MethodHold, Hold},
		{MethodFixed, Fixed},
		{MethodThreshold, Threshold},
		{MethodMeanReversion, MeanReversion},
	}
	for _, b := range builtins {
		if err := r.Register(b.name, b.fn); err != nil {
			return err
		}
	}
	return nil
}

// Hold args: symbol.
func Hold(sc *Context, args []string) (schema.Signal, error) {
	if err := needArgs(args, 1); err != nil {
		return schema.Signal{}, err
	}
	sig := sc.Signal()
	sig.Hold(args[0])
	return *sig, nil
}

// Fixed args: symbol, action, price. Always emits the same signal.
func Fixed(sc *Context, args []string) (schema.Signal, error) {
	if err := needArgs(args, 3); err != nil {
		return schema.Signal{}, err
	}
	action, err := schema.ParseAction(args[1])
	if err != nil {
		return schema.Signal{}, errors.Wrap(exception.ErrStrategyArgs, err.Error())
	}

	sig := sc.Signal()
	if action == schema.ActionHold {
		sig.Hold(args[0])
		return *sig, nil
	}

	price, err := parseDecimal(args[2])
	if err != nil {
		return schema.Signal{}, err
	}
	if action == schema.ActionBuy {
		sig.Buy(args[0], price)
	} else {
		sig.Sell(args[0], price)
	}
	return *sig, nil
}

// Threshold args: symbol, buy_below, sell_above.
// Buys at the latest price when it is below buy_below, sells when above sell_above, otherwise holds.
func Threshold(sc *Context, args []string) (schema.Signal, error) {
	if err := needArgs(args, 3); err != nil {
		return schema.Signal{}, err
	}
	buyBelow, err := parseDecimal(args[1])
	if err != nil {
		return schema.Signal{}, err
	}
	sellAbove, err := parseDecimal(args[2])
	if err != nil {
		return schema.Signal{}, err
	}
	if sc.Data == nil {
		return schema.Signal{}, errors.Wrap(exception.ErrNilInstance, "threshold needs a data source")
	}

	tick, err := sc.Data.Latest(args[0], sc.Now)
	if err != nil {
		return schema.Signal{}, err
	}

	sig := sc.Signal()
	switch {
	case tick.Price.LessThan(buyBelow):
		sig.Buy(args[0], tick.Price)
	case tick.Price.GreaterThan(sellAbove):
		sig.Sell(args[0], tick.Price)
	default:
		sig.Hold(args[0])
	}
	return *sig, nil
}

// MeanReversion args: symbol, window (a duration such as 1h), band_pct.
// Compares the latest price with the mean over the window and trades back towards it
// when it drifts more than band_pct percent away.
func MeanReversion(sc *Context, args []string) (schema.Signal, error) {
	if err := needArgs(args, 3); err != nil {
		return schema.Signal{}, err
	}
	window, err := time.ParseDuration(args[1])
	if err != nil || window <= 0 {
		return schema.Signal{}, errors.Wrapf(exception.ErrStrategyArgs, "window %q", args[1])
	}
	band, err := parseDecimal(args[2])
	if err != nil {
		return schema.Signal{}, err
	}
	if sc.Data == nil {
		return schema.Signal{}, errors.Wrap(exception.ErrNilInstance, "mean_reversion needs a data source")
	}

	ticks, err := sc.Data.Ticks(args[0], sc.Now.Add(-window), sc.Now)
	if err != nil {
		return schema.Signal{}, err
	}
	if len(ticks) == 0 {
		return schema.Signal{}, errors.Wrapf(exception.ErrNoTicks, "symbol %s", args[0])
	}

	sum := decimal.Zero
	for _, t := range ticks {
		sum = sum.Add(t.Price)
	}
	mean := sum.Div(decimal.NewFromInt(int64(len(ticks))))
	last := ticks[len(ticks)-1].Price
	offset := mean.Mul(band).Div(decimal.NewFromInt(100))

	sig := sc.Signal()
	switch {
	case last.LessThan(mean.Sub(offset)):
		sig.Buy(args[0], last)
	case last.GreaterThan(mean.Add(offset)):
		sig.Sell(args[0], last)
	default:
		sig.Hold(args[0])
	}
	return *sig, nil
}

func needArgs(args []string, n int) error {
	if len(args) < n {
		return errors.Wrap(exception.ErrStrategyArgs, "want "+strconv.Itoa(n)+" args, got "+strconv.Itoa(len(args)))
	}
	return nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errors.Wrap(exception.ErrStrategyArgs, fmt.Sprintf("parse %q", s))
	}
	return d, nil
}
