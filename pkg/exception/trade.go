package exception

import "errors"

// ErrRiskLimitExceeded is soft: the trade is excluded and the pass continues.
var ErrRiskLimitExceeded = errors.New("risk: limit exceeded")

// Structural violations abort the proposal phase.
var (
	ErrUnknownAsset        = errors.New("trade: unknown asset")
	ErrInsufficientCapital = errors.New("trade: insufficient capital")
	ErrInvalidTrade        = errors.New("trade: invalid trade")
)

// ErrExchangeExecution aborts the remaining executions of a pass.
var (
	ErrExchangeExecution = errors.New("exchange: execution failed")
	ErrUnsupportedMode   = errors.New("exchange: unsupported mode")
	ErrNegativeUnits     = errors.New("portfolio: negative units")
	ErrNegativeCash      = errors.New("portfolio: negative cash")
)
