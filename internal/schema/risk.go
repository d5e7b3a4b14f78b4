package schema

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Known limit names.
const (
	LimitMaxExposure  = "max_exposure"
	LimitMinLiquidity = "min_liquidity"
)

// RiskProfile maps a limit name to its value. It is built once per pass and never mutated.
type RiskProfile map[string]decimal.Decimal

// Get returns the limit and whether it is set.
func (p RiskProfile) Get(name string) (decimal.Decimal, bool) {
	v, ok := p[name]
	return v, ok
}

// Names returns the limit names in sorted order.
func (p RiskProfile) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
