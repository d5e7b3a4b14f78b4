package schema

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"algotrading/pkg/exception"
)

// Signal is one strategy's intention for a single symbol.
// Hold signals carry no target value; buy and sell carry a positive one.
type Signal struct {
	Strategy    string              `json:"strategy"`
	Symbol      string              `json:"symbol"`
	Action      Action              `json:"action"`
	TargetValue decimal.NullDecimal `json:"targetValue"`
	Timestamp   time.Time           `json:"timestamp"`
}

// Buy sets the signal to buy symbol at no more than price.
func (s *Signal) Buy(symbol string, price decimal.Decimal) {
	s.Symbol = symbol
	s.Action = ActionBuy
	s.TargetValue = decimal.NewNullDecimal(price)
}

// Sell sets the signal to sell symbol at no less than price.
func (s *Signal) Sell(symbol string, price decimal.Decimal) {
	s.Symbol = symbol
	s.Action = ActionSell
	s.TargetValue = decimal.NewNullDecimal(price)
}

// Hold sets the signal to keep the current position in symbol.
func (s *Signal) Hold(symbol string) {
	s.Symbol = symbol
	s.Action = ActionHold
	s.TargetValue = decimal.NullDecimal{}
}

// Target returns the target value, zero for hold signals.
func (s Signal) Target() decimal.Decimal {
	if !s.TargetValue.Valid {
		return decimal.Zero
	}
	return s.TargetValue.Decimal
}

// Validate checks the action/target invariant.
func (s Signal) Validate() error {
	if s.Symbol == "" {
		return fmt.Errorf("%w: empty symbol", exception.ErrInvalidSignal)
	}
	switch s.Action {
	case ActionHold:
		if s.TargetValue.Valid {
			return fmt.Errorf("%w: hold %s carries a target value", exception.ErrInvalidSignal, s.Symbol)
		}
	case ActionBuy, ActionSell:
		if !s.TargetValue.Valid || !s.TargetValue.Decimal.IsPositive() {
			return fmt.Errorf("%w: %s %s needs a positive target value", exception.ErrInvalidSignal, s.Action, s.Symbol)
		}
	default:
		return fmt.Errorf("%w: unknown action %q", exception.ErrInvalidSignal, s.Action)
	}
	return nil
}

func (s Signal) String() string {
	if s.Action == ActionHold || !s.TargetValue.Valid {
		return fmt.Sprintf("[%s %s]", s.Action, s.Symbol)
	}
	return fmt.Sprintf("[%s %s @ %s]", s.Action, s.Symbol, s.TargetValue.Decimal.String())
}
