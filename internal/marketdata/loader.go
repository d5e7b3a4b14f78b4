// Package marketdata loads ticks once per pass and serves them to strategies.
package marketdata

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"algotrading/internal/errors"
	"algotrading/internal/schema"
	"algotrading/pkg/exception"
)

// TickSource reads stored ticks.
type TickSource interface {
	Ticks(ctx context.Context, symbol string, after, before time.Time) ([]schema.Tick, error)
}

// Loader caches ticks in memory. Load before the pass, read concurrently during it.
type Loader struct {
	source     TickSource
	staleScope int
	logger     *zap.Logger

	mu       sync.RWMutex
	ticks    map[string][]schema.Tick
	warnings map[string][]string
}

// NewLoader creates a loader. staleScope is the run length of equal prices
// that counts as stale, values below 2 disable the check.
func NewLoader(source TickSource, staleScope int, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		source:     source,
		staleScope: staleScope,
		logger:     logger,
		ticks:      make(map[string][]schema.Tick),
		warnings:   make(map[string][]string),
	}
}

// Load reads ticks of every symbol strictly between after and before.
func (l *Loader) Load(ctx context.Context, symbols []string, after, before time.Time) error {
	if !after.Before(before) {
		return errors.Wrapf(exception.ErrInvalidWindow, "%s..%s", after.Format(time.RFC3339), before.Format(time.RFC3339))
	}

	for _, symbol := range symbols {
		ticks, err := l.source.Ticks(ctx, symbol, after, before)
		if err != nil {
			return errors.Wrapf(err, "load ticks %s", symbol)
		}

		l.mu.Lock()
		l.ticks[symbol] = ticks
		if len(ticks) == 0 {
			l.warnings[symbol] = append(l.warnings[symbol], "no_ticks_"+strings.ToLower(symbol))
		} else if l.staleScope > 1 && Staleness(ticks, l.staleScope) > 0 {
			l.warnings[symbol] = append(l.warnings[symbol], "stale_ticker_"+strings.ToLower(symbol))
		}
		l.mu.Unlock()
	}
	return nil
}

// Latest returns the last tick of symbol observed before the given time.
func (l *Loader) Latest(symbol string, before time.Time) (schema.Tick, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ticks, ok := l.ticks[symbol]
	if !ok {
		return schema.Tick{}, errors.Wrapf(exception.ErrUnknownSymbol, "symbol %s not loaded", symbol)
	}
	i := sort.Search(len(ticks), func(i int) bool { return !ticks[i].ObservedAt.Before(before) })
	if i == 0 {
		return schema.Tick{}, errors.Wrapf(exception.ErrNoTicks, "symbol %s before %s", symbol, before.Format(time.RFC3339))
	}
	return ticks[i-1], nil
}

// Ticks returns a copy of the loaded ticks of symbol strictly between after and before.
func (l *Loader) Ticks(symbol string, after, before time.Time) ([]schema.Tick, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ticks, ok := l.ticks[symbol]
	if !ok {
		return nil, errors.Wrapf(exception.ErrUnknownSymbol, "symbol %s not loaded", symbol)
	}
	var out []schema.Tick
	for _, t := range ticks {
		if t.ObservedAt.After(after) && t.ObservedAt.Before(before) {
			out = append(out, t)
		}
	}
	return out, nil
}

// Warnings returns symbol -> data warnings.
func (l *Loader) Warnings() map[string][]string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string][]string, len(l.warnings))
	for symbol, w := range l.warnings {
		out[symbol] = append([]string(nil), w...)
	}
	return out
}

// Errors returns the warnings as errors wrapping exception.ErrStaleTicker or exception.ErrNoTicks.
func (l *Loader) Errors() []error {
	warnings := l.Warnings()
	symbols := make([]string, 0, len(warnings))
	for symbol := range warnings {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	var errs []error
	for _, symbol := range symbols {
		for _, w := range warnings[symbol] {
			sentinel := exception.ErrStaleTicker
			if strings.HasPrefix(w, "no_ticks_") {
				sentinel = exception.ErrNoTicks
			}
			errs = append(errs, fmt.Errorf("%w: %s", sentinel, w))
		}
	}
	return errs
}

// ReportWarnings logs every data warning.
func (l *Loader) ReportWarnings() {
	warnings := l.Warnings()
	if len(warnings) == 0 {
		l.logger.Info("no market data warnings")
		return
	}
	for symbol, w := range warnings {
		l.logger.Warn("market data warning", zap.String("symbol", symbol), zap.Strings("warnings", w))
	}
}

// Staleness is the share of ticks whose price repeats within the next scope
// ticks, itself included.
func Staleness(ticks []schema.Tick, scope int) float64 {
	if len(ticks) == 0 || scope < 2 {
		return 0
	}
	stale := 0
	for i := range ticks {
		end := i + scope
		if end > len(ticks) {
			end = len(ticks)
		}
		if hasRepeat(ticks[i:end]) {
			stale++
		}
	}
	return float64(stale) / float64(len(ticks))
}

func hasRepeat(window []schema.Tick) bool {
	for i := 0; i < len(window); i++ {
		for j := i + 1; j < len(window); j++ {
			if window[i].Price.Equal(window[j].Price) {
				return true
			}
		}
	}
	return false
}
