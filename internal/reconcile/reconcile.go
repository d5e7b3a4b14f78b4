// Package reconcile reduces the signals of a pass to one decision per symbol.
package reconcile

import (
	"fmt"
	"strings"

	"algotrading/internal/schema"
	"algotrading/internal/strategy"
	"algotrading/pkg/exception"
)

// ConflictingSignalsError is returned when strategies disagree on a symbol.
type ConflictingSignalsError struct {
	Symbol  string
	Signals []schema.Signal
}

func (e *ConflictingSignalsError) Error() string {
	parts := make([]string, len(e.Signals))
	for i, s := range e.Signals {
		parts[i] = s.String()
	}
	return fmt.Sprintf("%s for %q: %s", exception.ErrConflictingSignals, e.Symbol, strings.Join(parts, ", "))
}

func (e *ConflictingSignalsError) Unwrap() error {
	return exception.ErrConflictingSignals
}

// Split separates signals from failed evaluations, keeping input order for both.
func Split(results []strategy.Result) ([]schema.Signal, []error) {
	signals := make([]schema.Signal, 0, len(results))
	var warnings []error
	for _, r := range results {
		if r.Err != nil {
			warnings = append(warnings, r.Err)
			continue
		}
		if r.Signal != nil {
			signals = append(signals, *r.Signal)
		}
	}
	return signals, warnings
}

// Reconcile returns one signal per symbol, ordered by first appearance.
//
// All signals for a symbol must share an action. Buys keep the lowest target,
// sells the highest, holds the first. Ties go to the earliest signal.
func Reconcile(signals []schema.Signal) ([]schema.Signal, error) {
	order := make([]string, 0, len(signals))
	groups := make(map[string][]schema.Signal, len(signals))
	for _, s := range signals {
		if _, ok := groups[s.Symbol]; !ok {
			order = append(order, s.Symbol)
		}
		groups[s.Symbol] = append(groups[s.Symbol], s)
	}

	out := make([]schema.Signal, 0, len(order))
	for _, symbol := range order {
		group := groups[symbol]
		action := group[0].Action
		for _, s := range group[1:] {
			if s.Action != action {
				return nil, &ConflictingSignalsError{Symbol: symbol, Signals: group}
			}
		}
		out = append(out, pick(action, group))
	}
	return out, nil
}

func pick(action schema.Action, group []schema.Signal) schema.Signal {
	best := group[0]
	for _, s := range group[1:] {
		switch action {
		case schema.ActionBuy:
			if s.Target().LessThan(best.Target()) {
				best = s
			}
		case schema.ActionSell:
			if s.Target().GreaterThan(best.Target()) {
				best = s
			}
		}
	}
	return best
}
