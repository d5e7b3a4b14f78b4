package risk

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"algotrading/internal/schema"
	"algotrading/pkg/exception"
)

// Reason is a coarse reason code for a risk decision.
type Reason string

const (
	ReasonNone      Reason = ""
	ReasonExposure  Reason = "exposure"
	ReasonLiquidity Reason = "liquidity"
)

// MarketView provides what the gate needs to know about a symbol.
type MarketView interface {
	// Exposure is the value of the current position, zero when not held.
	Exposure(ctx context.Context, symbol string) (decimal.Decimal, error)
	Liquidity(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Decision is the outcome of gating one trade.
type Decision struct {
	Strategy string          `json:"strategy"`
	Trade    schema.Trade    `json:"trade"`
	Allowed  bool            `json:"allowed"`
	Reason   Reason          `json:"reason,omitempty"`
	Observed decimal.Decimal `json:"observed"`
	Limit    decimal.Decimal `json:"limit"`
}

// Err is nil for allowed trades and wraps exception.ErrRiskLimitExceeded otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return fmt.Errorf("%w: %s %s: %s %s against limit %s",
		exception.ErrRiskLimitExceeded, d.Strategy, d.Trade, d.Reason, d.Observed, d.Limit)
}

// Gate evaluates trades against a strategy's scaled profile.
type Gate struct {
	Market MarketView
}

func NewGate(market MarketView) *Gate {
	return &Gate{Market: market}
}

// Evaluate applies the exposure and liquidity checks. Only limits present in
// the profile are checked. The returned error is reserved for market lookups.
func (g *Gate) Evaluate(ctx context.Context, strategy string, trade schema.Trade, profile schema.RiskProfile) (Decision, error) {
	decision := Decision{
		Strategy: strategy,
		Trade:    trade,
		Allowed:  true,
		Reason:   ReasonNone,
	}

	if maxExposure, ok := profile.Get(schema.LimitMaxExposure); ok {
		exposure, err := g.Market.Exposure(ctx, trade.Symbol)
		if err != nil {
			return decision, err
		}
		potential := applyAction(exposure, trade)
		if potential.GreaterThan(maxExposure) {
			decision.Allowed = false
			decision.Reason = ReasonExposure
			decision.Observed = potential
			decision.Limit = maxExposure
			return decision, nil
		}
	}

	if minLiquidity, ok := profile.Get(schema.LimitMinLiquidity); ok {
		liquidity, err := g.Market.Liquidity(ctx, trade.Symbol)
		if err != nil {
			return decision, err
		}
		if liquidity.LessThan(minLiquidity) {
			decision.Allowed = false
			decision.Reason = ReasonLiquidity
			decision.Observed = liquidity
			decision.Limit = minLiquidity
			return decision, nil
		}
	}

	return decision, nil
}

// applyAction returns exposure after the trade. Sells may take it below zero.
func applyAction(exposure decimal.Decimal, trade schema.Trade) decimal.Decimal {
	switch trade.Action {
	case schema.ActionBuy:
		return exposure.Add(trade.Notional())
	case schema.ActionSell:
		return exposure.Sub(trade.Notional())
	default:
		return exposure
	}
}
