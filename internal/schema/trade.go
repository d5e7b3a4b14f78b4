package schema

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Trade is a proposed order. Units are always positive.
type Trade struct {
	Strategy    string          `json:"strategy"`
	Action      Action          `json:"action"`
	Symbol      string          `json:"symbol"`
	Units       int64           `json:"units"`
	TargetValue decimal.Decimal `json:"targetValue"`
}

// Notional is units * target value.
func (t Trade) Notional() decimal.Decimal {
	return decimal.NewFromInt(t.Units).Mul(t.TargetValue)
}

func (t Trade) String() string {
	return fmt.Sprintf("%s %d %s @ %s", t.Action, t.Units, t.Symbol, t.TargetValue.String())
}

// ExecutedTrade is the exchange's confirmation of a trade.
// Units and Price may differ from the request on a real venue.
type ExecutedTrade struct {
	Action     Action          `json:"action"`
	Symbol     string          `json:"symbol"`
	Units      int64           `json:"units"`
	Price      decimal.Decimal `json:"price"`
	Requested  Trade           `json:"requested"`
	ExecutedAt time.Time       `json:"executedAt"`
}

func (t ExecutedTrade) String() string {
	return fmt.Sprintf("%s %d %s filled @ %s", t.Action, t.Units, t.Symbol, t.Price.String())
}

// Amount is units * fill price.
func (t ExecutedTrade) Amount() decimal.Decimal {
	return decimal.NewFromInt(t.Units).Mul(t.Price)
}
