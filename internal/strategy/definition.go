package strategy

import "strings"

// Definition is one configured strategy.
type Definition struct {
	ID            uint
	Name          string
	Method        string
	Args          []string
	Symbol        string
	RiskProfileID uint
}

// ParseArgs splits a stored argument string. An empty string yields no args.
func ParseArgs(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
