package trade

import (
	"fmt"

	"github.com/shopspring/decimal"

	"algotrading/internal/schema"
	"algotrading/pkg/exception"
)

// UnknownAssetError aborts a proposal: the symbol is not a portfolio position.
type UnknownAssetError struct {
	Strategy string
	Symbol   string
}

func (e *UnknownAssetError) Error() string {
	return fmt.Sprintf("strategy %q: asset %q not found in portfolio", e.Strategy, e.Symbol)
}

func (e *UnknownAssetError) Unwrap() error { return exception.ErrUnknownAsset }

// InsufficientCapitalError aborts a proposal: a buy costs more than the available cash.
type InsufficientCapitalError struct {
	Strategy  string
	Symbol    string
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientCapitalError) Error() string {
	return fmt.Sprintf("strategy %q: buy %s needs %s, cash is %s", e.Strategy, e.Symbol, e.Required, e.Available)
}

func (e *InsufficientCapitalError) Unwrap() error { return exception.ErrInsufficientCapital }

// ExecutionError stops an execution batch. Trades before Index were applied.
type ExecutionError struct {
	Trade schema.Trade
	Index int
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execute trade %d (%s): %v", e.Index, e.Trade, e.Err)
}

func (e *ExecutionError) Unwrap() []error {
	return []error{exception.ErrExchangeExecution, e.Err}
}
