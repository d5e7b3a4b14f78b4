package schema

import (
	"fmt"
	"strings"
)

// Action is the trading intention carried by a signal or trade.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// ParseAction converts a case-insensitive name into an Action.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionBuy, ActionSell, ActionHold:
		return a, nil
	default:
		return "", fmt.Errorf("unknown action: %q", s)
	}
}

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	switch a {
	case ActionBuy, ActionSell, ActionHold:
		return true
	default:
		return false
	}
}

// Tradable reports whether the action moves units.
func (a Action) Tradable() bool {
	return a == ActionBuy || a == ActionSell
}

func (a Action) String() string {
	return string(a)
}

func (a Action) MarshalText() ([]byte, error) {
	return []byte(a), nil
}

func (a *Action) UnmarshalText(b []byte) error {
	parsed, err := ParseAction(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
