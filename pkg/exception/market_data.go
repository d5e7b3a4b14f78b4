package exception

import "errors"

var (
	ErrNoTicks        = errors.New("market data: no ticks")
	ErrStaleTicker    = errors.New("market data: stale ticker")
	ErrUnknownSymbol  = errors.New("market data: unknown symbol")
	ErrInvalidWindow  = errors.New("market data: invalid time window")
	ErrNoPriceForSide = errors.New("market data: no price for side")
)
