package exception

import "errors"

// Strategy errors are recorded per strategy and never abort a pass.
var (
	ErrStrategyEvaluation = errors.New("strategy: evaluation failed")
	ErrStrategyNotFound   = errors.New("strategy: not found")
	ErrStrategyExists     = errors.New("strategy: already registered")
	ErrInvalidSignal      = errors.New("strategy: invalid signal")
	ErrStrategyArgs       = errors.New("strategy: invalid arguments")
)

// ErrConflictingSignals aborts reconciliation.
var ErrConflictingSignals = errors.New("signal: conflicting actions")
