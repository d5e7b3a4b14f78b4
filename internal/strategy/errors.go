package strategy

import (
	"fmt"

	"algotrading/pkg/exception"
)

// StrategyNotFoundError is returned when a definition names a method no one
// registered, or when no definition is stored under the name. Method is empty
// in the second case.
type StrategyNotFoundError struct {
	Strategy string
	Method   string
}

func (e *StrategyNotFoundError) Error() string {
	if e.Method == "" {
		return fmt.Sprintf("strategy %q: no stored definition", e.Strategy)
	}
	return fmt.Sprintf("strategy %q: method %q not found", e.Strategy, e.Method)
}

func (e *StrategyNotFoundError) Unwrap() error {
	return exception.ErrStrategyNotFound
}

// EvaluationError wraps whatever a strategy function failed with, panics included.
type EvaluationError struct {
	Strategy string
	Err      error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("strategy %q: %s: %v", e.Strategy, exception.ErrStrategyEvaluation, e.Err)
}

func (e *EvaluationError) Unwrap() []error {
	return []error{exception.ErrStrategyEvaluation, e.Err}
}
