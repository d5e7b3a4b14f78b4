package state

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"algotrading/internal/errors"
	"algotrading/pkg/exception"
)

// Pricer quotes the current ask price of a symbol.
type Pricer interface {
	AskPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Portfolio holds cash and whole unit positions.
// Reads are safe from any goroutine. Mutations come from a single executor
// which holds Lock for the whole batch.
type Portfolio struct {
	ID       uint
	Name     string
	Exchange string

	exec sync.Mutex

	mu        sync.RWMutex
	cash      decimal.Decimal
	positions map[string]int64
}

// NewPortfolio creates a portfolio with the given cash and positions.
func NewPortfolio(id uint, name string, cash decimal.Decimal, positions map[string]int64) *Portfolio {
	p := &Portfolio{
		ID:        id,
		Name:      name,
		cash:      cash,
		positions: make(map[string]int64, len(positions)),
	}
	for symbol, units := range positions {
		p.positions[symbol] = units
	}
	return p
}

// Lock serializes executions against this portfolio.
func (p *Portfolio) Lock() { p.exec.Lock() }

func (p *Portfolio) Unlock() { p.exec.Unlock() }

func (p *Portfolio) Cash() decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cash
}

// Units returns the position in symbol, zero when not held.
func (p *Portfolio) Units(symbol string) int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.positions[symbol]
}

// Holds reports whether symbol is a known position, even with zero units.
func (p *Portfolio) Holds(symbol string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.positions[symbol]
	return ok
}

// Positions returns a copy of all positions.
func (p *Portfolio) Positions() map[string]int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]int64, len(p.positions))
	for symbol, units := range p.positions {
		out[symbol] = units
	}
	return out
}

// Symbols returns the held symbols, sorted.
func (p *Portfolio) Symbols() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	symbols := make([]string, 0, len(p.positions))
	for symbol := range p.positions {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// ApplyBuy adds units and pays cost.
func (p *Portfolio) ApplyBuy(symbol string, units int64, cost decimal.Decimal) error {
	if err := checkFill(units, cost); err != nil {
		return errors.Wrapf(err, "buy %s", symbol)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	current, ok := p.positions[symbol]
	if !ok {
		return errors.Wrapf(exception.ErrUnknownAsset, "buy %s", symbol)
	}
	p.positions[symbol] = current + units
	p.cash = p.cash.Sub(cost)
	return nil
}

// ApplySell removes units and collects proceeds.
// Selling more than is held is rejected and leaves the portfolio untouched.
func (p *Portfolio) ApplySell(symbol string, units int64, proceeds decimal.Decimal) error {
	if err := checkFill(units, proceeds); err != nil {
		return errors.Wrapf(err, "sell %s", symbol)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	current, ok := p.positions[symbol]
	if !ok {
		return errors.Wrapf(exception.ErrUnknownAsset, "sell %s", symbol)
	}
	if current < units {
		return errors.Wrapf(exception.ErrNegativeUnits, "sell %d %s, holding %d", units, symbol, current)
	}
	p.positions[symbol] = current - units
	p.cash = p.cash.Add(proceeds)
	return nil
}

func checkFill(units int64, amount decimal.Decimal) error {
	if units <= 0 {
		return errors.Wrap(exception.ErrInvalidTrade, "units must be positive")
	}
	if amount.IsNegative() {
		return errors.Wrap(exception.ErrInvalidTrade, "amount must not be negative")
	}
	return nil
}

// Exposure is units * current ask price, the most the position can lose.
func (p *Portfolio) Exposure(ctx context.Context, pricer Pricer, symbol string) (decimal.Decimal, error) {
	units := p.Units(symbol)
	if units == 0 {
		return decimal.Zero, nil
	}
	price, err := pricer.AskPrice(ctx, symbol)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "price %s", symbol)
	}
	return decimal.NewFromInt(units).Mul(price), nil
}

// Valuate returns cash plus the value of every position at the current ask price.
func (p *Portfolio) Valuate(ctx context.Context, pricer Pricer) (decimal.Decimal, error) {
	snap := p.Snapshot()
	value := snap.Cash
	for _, entry := range snap.Positions {
		if entry.Units == 0 {
			continue
		}
		price, err := pricer.AskPrice(ctx, entry.Symbol)
		if err != nil {
			return decimal.Zero, errors.Wrapf(err, "price %s", entry.Symbol)
		}
		value = value.Add(decimal.NewFromInt(entry.Units).Mul(price))
	}
	return value, nil
}
